package dialog

import (
	"context"
	"log/slog"
	"math"
	"slices"
)

// DurationAuto sizes the display time from the text length. A duration of
// zero keeps the text up until it is skipped.
const DurationAuto = -1

// Line is one piece of text to show.
type Line struct {
	Speaker    Speaker
	Custom     Tag
	Text       string
	Duration   float64
	Expression Expression
	Effect     Effect
	VoiceOver  Tag
}

// Box is the line currently on screen.
type Box struct {
	Valid      bool
	Text       string
	Speaker    ActorRef
	Expression Expression
	Effect     Effect
	Remaining  float64
	Duration   float64
	Resume     Continuation
}

// Dialogue is one running conversation. It is created and owned by a
// Manager; once deactivated it cannot be reused.
type Dialogue struct {
	manager      *Manager
	script       Script
	name         string
	player       ActorRef
	target       ActorRef
	speakContext Tag
	onFinished   func()

	activated bool
	active    bool
	paused    bool

	box               Box
	choices           []Choice
	startChoices      int
	hovered           int
	visited           []string
	customSpeakers    map[Tag]ActorRef
	lastClickedAsset  AssetID
	lastClickedChoice string
	maxChoices        int
}

func newDialogue(m *Manager, script Script, name string, player, target Actor, speakContext Tag, onFinished func()) *Dialogue {
	d := &Dialogue{
		manager:        m,
		script:         script,
		name:           name,
		player:         Ref(player),
		target:         Ref(target),
		speakContext:   speakContext,
		onFinished:     onFinished,
		active:         true,
		customSpeakers: make(map[Tag]ActorRef),
	}
	if l, ok := script.(ChoiceLimiter); ok {
		d.maxChoices = l.MaxChoices()
	}
	return d
}

func (d *Dialogue) log() *slog.Logger {
	return d.manager.logger.With(slog.String("conversation", d.name))
}

// Name is the conversation ID the dialogue was started with.
func (d *Dialogue) Name() string { return d.name }

// Manager returns the owning manager.
func (d *Dialogue) Manager() *Manager { return d.manager }

// Script returns the authored logic driving the dialogue.
func (d *Dialogue) Script() Script { return d.script }

// Player returns the player actor, or nil if it is gone.
func (d *Dialogue) Player() Actor { return d.player.Actor() }

// Target returns the actor being talked to, or nil.
func (d *Dialogue) Target() Actor { return d.target.Actor() }

// SpeakContext is the tag the conversation was started under.
func (d *Dialogue) SpeakContext() Tag { return d.speakContext }

// State reports the lifecycle phase.
func (d *Dialogue) State() State {
	switch {
	case !d.active:
		return StateInactive
	case d.paused:
		return StatePaused
	default:
		return StateActive
	}
}

// IsActive reports whether the dialogue has not been deactivated.
func (d *Dialogue) IsActive() bool { return d.active }

// Activate runs the script's entry point. It has no effect once the
// dialogue has been activated or deactivated.
func (d *Dialogue) Activate() {
	if !d.active || d.activated {
		d.log().Warn("activate ignored", slog.Bool("active", d.active), slog.Bool("activated", d.activated))
		return
	}
	d.activated = true
	d.script.OnActivate(d)
}

// Restore re-attaches script state after a snapshot was loaded.
func (d *Dialogue) Restore() {
	d.script.OnRestore(d)
	d.manager.QueueUpdate()
}

// Deactivate ends the conversation: the script is notified, choices and the
// box are dropped, the manager releases the dialogue and the completion
// callback runs. Repeated calls do nothing.
func (d *Dialogue) Deactivate() {
	if d.manager == nil || !d.active {
		return
	}
	done := d.onFinished
	d.onFinished = nil
	d.active = false

	d.script.OnDeactivate(d)

	clear(d.customSpeakers)
	d.ClearChoices()
	d.ClearBox()
	d.manager.release(d)

	if done != nil {
		done()
	}
}

// ShowText puts a line on screen and stores where to continue once it is
// skipped. An invalid continuation ends the conversation on skip.
func (d *Dialogue) ShowText(line Line, next Continuation) {
	if !d.active {
		d.log().Warn("show text on inactive dialogue", slog.String("text", line.Text))
		return
	}
	speaker := d.resolveSpeaker(line.Speaker, line.Custom)

	d.ClearBox()
	duration := line.Duration
	if duration < 0 {
		duration = d.manager.settings.AutoDuration(line.Text)
	}
	d.box = Box{
		Valid:      true,
		Text:       line.Text,
		Speaker:    Ref(speaker),
		Expression: line.Expression,
		Effect:     line.Effect,
		Remaining:  duration,
		Duration:   duration,
		Resume:     next,
	}
	if next.IsValid() && d.HasChoices() {
		d.log().Warn("text with continuation shown while choices are present; continuation is unreachable",
			slog.String("continuation", next.String()), slog.Int("choices", len(d.choices)))
	}

	d.manager.lineSpoken.each(func(fn func(Actor, string)) { fn(speaker, line.Text) })
	d.manager.QueueUpdate()
	d.manager.queueSpeakerUpdate()
	d.playVoiceOver(speaker, line.VoiceOver, line.Expression)
}

func (d *Dialogue) playVoiceOver(speaker Actor, voiceOver Tag, expression Expression) {
	if p, ok := d.script.(VoiceOverPlayer); ok {
		p.PlayVoiceOver(d, speaker, voiceOver, expression)
	}
	if voiceOver.IsValid() {
		d.manager.voiceOver.each(func(fn func(Actor, Tag, Expression)) { fn(speaker, voiceOver, expression) })
	}
}

func (d *Dialogue) resolveSpeaker(role Speaker, custom Tag) Actor {
	switch role {
	case SpeakerPlayer:
		return d.player.Actor()
	case SpeakerTarget:
		return d.target.Actor()
	case SpeakerCustom:
		a, ok := d.CustomSpeaker(custom)
		if !ok {
			d.log().Warn("custom speaker not bound", slog.String("tag", string(custom)))
		}
		return a
	default:
		return nil
	}
}

// ClearBox drops the current line and its continuation.
func (d *Dialogue) ClearBox() {
	d.box = Box{}
}

// ClearChoices drops every choice and resets paging.
func (d *Dialogue) ClearChoices() {
	d.choices = nil
	d.startChoices = 0
}

// Skip advances past the current line. It does nothing while choices are
// shown or when no line is up.
func (d *Dialogue) Skip() {
	if !d.box.Valid || d.HasChoices() {
		return
	}
	next := d.box.Resume
	d.box.Valid = false
	d.box.Resume = Continuation{}

	d.manager.QueueUpdate()
	d.manager.queueSpeakerUpdate()
	d.manager.setHoveredAsset("")

	if !next.IsValid() {
		d.Deactivate()
		return
	}
	d.resume(next)
}

func (d *Dialogue) resume(c Continuation) {
	if err := d.script.Resume(d, c); err != nil {
		d.log().Log(context.Background(), LevelFatal, "cannot resume conversation",
			slog.String("continuation", c.String()), slog.String("error", err.Error()))
		d.Deactivate()
	}
}

// AddChoice offers a branch that continues at next when selected. The list
// is kept with unvisited choices first, each group in insertion order.
func (d *Dialogue) AddChoice(title string, next Continuation, opts ...ChoiceOption) {
	if !d.active {
		d.log().Warn("add choice on inactive dialogue", slog.String("title", title))
		return
	}
	var o choiceOptions
	for _, opt := range opts {
		opt(&o)
	}

	name := ""
	if !o.disableIfVisited {
		name = o.name
		if name == "" {
			name = next.Name()
		}
	}

	d.choices = append(d.choices, Choice{
		Title:         title,
		Enabled:       !o.disabled,
		Name:          name,
		OriginalIndex: len(d.choices),
		Asset:         o.asset,
		Resume:        next,
	})
	sortChoices(d.choices, d.isVisited)

	if d.box.Valid && d.box.Resume.IsValid() {
		d.log().Warn("choice added while the current line has a continuation; continuation is unreachable",
			slog.String("continuation", d.box.Resume.String()))
	}
	d.manager.QueueUpdate()
	d.manager.queueSpeakerUpdate()
}

// SelectOption accepts the choice at index and continues the script from it.
// An out of range index skips instead, which recovers from stale UI indices.
func (d *Dialogue) SelectOption(index int) bool {
	if index < 0 || index >= len(d.choices) {
		d.log().Warn("select out of range", slog.Int("index", index), slog.Int("choices", len(d.choices)))
		d.Skip()
		return false
	}
	c := d.choices[index]
	if !c.Enabled {
		d.log().Warn("select disabled choice", slog.Int("index", index), slog.String("title", c.Title))
		return false
	}

	d.lastClickedAsset = c.Asset
	d.lastClickedChoice = c.Name
	d.manager.setHoveredAsset("")
	if c.Name != "" {
		d.MarkChoiceVisited(c.Name)
	}
	d.ClearChoices()
	d.ClearBox()
	d.manager.QueueUpdate()
	d.manager.queueSpeakerUpdate()
	d.manager.choiceSelected.each(func(fn func(Choice)) { fn(c) })

	if !c.Resume.IsValid() {
		d.Deactivate()
		return true
	}
	d.resume(c.Resume)
	return true
}

// HoverOption highlights the choice at index.
func (d *Dialogue) HoverOption(index int) bool {
	if index < 0 || index >= len(d.choices) {
		return false
	}
	d.hovered = index
	d.manager.setHoveredAsset(d.choices[index].Asset)
	d.manager.notifyUpdated()
	return true
}

// MoveHoveredOption moves the highlight to the next enabled choice in the
// direction's sign.
func (d *Dialogue) MoveHoveredOption(direction int) bool {
	step := sign(direction)
	if step == 0 {
		return false
	}
	for i := d.hovered + step; i >= 0 && i < len(d.choices); i += step {
		if d.choices[i].Enabled {
			return d.HoverOption(i)
		}
	}
	return false
}

// VisiblePage returns the indices of the choices on the current page. When
// every choice fits on one page it returns them all with total 0 and
// paginated false.
func (d *Dialogue) VisiblePage() (indices []int, total int, paginated bool) {
	n := len(d.choices)
	limit := d.manager.MaxVisibleChoices()
	if n <= limit {
		return seq(0, n), 0, false
	}
	return seq(d.startChoices, min(n, d.startChoices+limit)), n, true
}

// HasMorePages reports whether paging in direction would show other
// choices.
func (d *Dialogue) HasMorePages(direction int) bool {
	n := len(d.choices)
	limit := d.manager.MaxVisibleChoices()
	switch {
	case direction > 0:
		return n > limit && d.startChoices+limit < n
	case direction < 0:
		return d.startChoices > 0
	default:
		return false
	}
}

// AdvancePage moves the paging cursor one page in direction. Pages start at
// multiples of the page size, so the last page may be short.
func (d *Dialogue) AdvancePage(direction int) bool {
	if !d.HasMorePages(direction) {
		return false
	}
	limit := d.manager.MaxVisibleChoices()
	if direction > 0 {
		d.startChoices = min(len(d.choices), d.startChoices+limit)
	} else {
		d.startChoices = max(0, d.startChoices-limit)
	}
	d.manager.QueueUpdate()
	return true
}

// PageStart is the index of the first visible choice.
func (d *Dialogue) PageStart() int { return d.startChoices }

// FollowingChoicesAllVisited reports whether the next page exists and holds
// only visited choices.
func (d *Dialogue) FollowingChoicesAllVisited() bool {
	limit := d.manager.MaxVisibleChoices()
	from := d.startChoices + limit
	to := min(len(d.choices), d.startChoices+2*limit)
	if to <= from {
		return false
	}
	for _, c := range d.choices[from:to] {
		if !d.isVisited(c.Name) {
			return false
		}
	}
	return true
}

// SetMaxChoices overrides the page size when positive.
func (d *Dialogue) SetMaxChoices(n int) {
	d.maxChoices = n
	d.manager.QueueUpdate()
}

// MarkChoiceVisited records name as visited. Existing choices keep their
// order until the next AddChoice.
func (d *Dialogue) MarkChoiceVisited(name string) {
	if name == "" || d.isVisited(name) {
		return
	}
	d.visited = append(d.visited, name)
}

func (d *Dialogue) isVisited(name string) bool {
	return name != "" && slices.Contains(d.visited, name)
}

// Visited returns the visited choice names in the order they were chosen.
func (d *Dialogue) Visited() []string { return slices.Clone(d.visited) }

// HasVisitedChoice reports whether the choice at index was picked before.
func (d *Dialogue) HasVisitedChoice(index int) bool {
	c, ok := d.ChoiceAt(index)
	return ok && d.isVisited(c.Name)
}

// CanSelectOption reports whether index names an enabled choice.
func (d *Dialogue) CanSelectOption(index int) bool {
	c, ok := d.ChoiceAt(index)
	return ok && c.Enabled
}

// ChoiceAt returns the choice at index.
func (d *Dialogue) ChoiceAt(index int) (Choice, bool) {
	if index < 0 || index >= len(d.choices) {
		return Choice{}, false
	}
	return d.choices[index], true
}

// Choices returns a copy of the current choices in display order.
func (d *Dialogue) Choices() []Choice { return slices.Clone(d.choices) }

// HasChoices reports whether choices are waiting for a selection.
func (d *Dialogue) HasChoices() bool { return len(d.choices) > 0 }

// HoveredOption is the highlighted choice index.
func (d *Dialogue) HoveredOption() int { return d.hovered }

// LastClicked returns the asset and name of the last selected choice.
func (d *Dialogue) LastClicked() (AssetID, string) {
	return d.lastClickedAsset, d.lastClickedChoice
}

// HasDialogue reports whether a line is on screen.
func (d *Dialogue) HasDialogue() bool { return d.box.Valid }

// Box returns the current line.
func (d *Dialogue) Box() Box { return d.box }

// Text of the current line.
func (d *Dialogue) Text() string {
	if !d.box.Valid {
		return ""
	}
	return d.box.Text
}

// Speaker of the current line, nil for the narrator or when no line is up.
func (d *Dialogue) Speaker() Actor {
	if !d.box.Valid {
		return nil
	}
	return d.box.Speaker.Actor()
}

// Expression of the current line.
func (d *Dialogue) Expression() Expression {
	if !d.box.Valid {
		return ExpressionNone
	}
	return d.box.Expression
}

// Effect of the current line.
func (d *Dialogue) Effect() Effect {
	if !d.box.Valid {
		return EffectNone
	}
	return d.box.Effect
}

// HasDuration reports whether the current line runs on a timer.
func (d *Dialogue) HasDuration() bool {
	return d.box.Valid && !d.HasChoices() && d.box.Duration > 0
}

// TimeFraction is the remaining share of the line's display time, 1 when
// the line has no timer.
func (d *Dialogue) TimeFraction() float64 {
	if !d.HasDuration() {
		return 1
	}
	return math.Max(0, d.box.Remaining/d.box.Duration)
}

// IsPaused reports whether the line timer is held.
func (d *Dialogue) IsPaused() bool { return d.paused }

// SetPaused holds or releases the line timer.
func (d *Dialogue) SetPaused(paused bool) {
	if d.paused == paused {
		return
	}
	d.paused = paused
	d.manager.QueueUpdate()
}

// TogglePause flips the paused flag and returns the new value.
func (d *Dialogue) TogglePause() bool {
	d.SetPaused(!d.paused)
	return d.paused
}

// Tick counts down the line timer, skipping when it runs out, then lets the
// script update. A dialogue waiting for activation only updates.
func (d *Dialogue) Tick(dt float64) {
	if !d.active {
		return
	}
	if d.activated && d.HasDuration() && !d.paused {
		d.box.Remaining -= dt
		if d.box.Remaining <= 0 {
			d.box.Remaining = 0
			d.Skip()
		}
	}
	if d.active {
		d.script.OnUpdate(d, dt)
	}
}

// SetCustomSpeaker binds tag to an actor for SpeakerCustom lines.
func (d *Dialogue) SetCustomSpeaker(tag Tag, a Actor) bool {
	if !tag.IsValid() || a == nil {
		return false
	}
	d.customSpeakers[tag] = Ref(a)
	d.manager.queueSpeakerUpdate()
	return true
}

// CustomSpeaker returns the actor bound to tag if it is still valid.
func (d *Dialogue) CustomSpeaker(tag Tag) (Actor, bool) {
	return d.customSpeakers[tag].Get()
}

// CustomSpeakerTag returns the tag an actor is bound under, if any.
func (d *Dialogue) CustomSpeakerTag(a Actor) (Tag, bool) {
	for tag, ref := range d.customSpeakers {
		if ref.Is(a) {
			return tag, true
		}
	}
	return "", false
}

// FindCustomSpeaker binds tag to the actor of kind nearest to the target,
// or to the player when there is no target. The player and target are never
// picked unless they are the only candidate.
func (d *Dialogue) FindCustomSpeaker(tag Tag, kind string) bool {
	if !tag.IsValid() {
		return false
	}
	if _, ok := d.CustomSpeaker(tag); ok {
		return true
	}
	w := d.manager.world
	if w == nil {
		d.log().Error("no world to search for custom speaker", slog.String("tag", string(tag)))
		return false
	}

	origin, ok := d.target.Get()
	if !ok {
		origin, ok = d.player.Get()
	}
	if !ok {
		d.log().Error("no origin for custom speaker search", slog.String("tag", string(tag)))
		return false
	}

	actors := w.ActorsOfKind(kind)
	var (
		best     Actor
		bestDist = math.Inf(1)
	)
	for _, a := range actors {
		if a == nil || !a.Valid() || d.player.Is(a) || d.target.Is(a) {
			continue
		}
		if dist := origin.Location().Dist(a.Location()); dist < bestDist {
			best, bestDist = a, dist
		}
	}
	if best == nil && len(actors) == 1 && actors[0] != nil && actors[0].Valid() {
		best = actors[0]
	}
	if best == nil {
		d.log().Error("custom speaker not found",
			slog.String("tag", string(tag)), slog.String("kind", kind), slog.Int("candidates", len(actors)))
		return false
	}
	return d.SetCustomSpeaker(tag, best)
}

// Participants lists the player, the target and every bound custom speaker
// that still exists.
func (d *Dialogue) Participants() []Actor {
	var out []Actor
	add := func(a Actor) {
		if a == nil || slices.ContainsFunc(out, func(b Actor) bool { return SameActor(a, b) }) {
			return
		}
		out = append(out, a)
	}
	add(d.player.Actor())
	add(d.target.Actor())

	tags := make([]Tag, 0, len(d.customSpeakers))
	for tag := range d.customSpeakers {
		tags = append(tags, tag)
	}
	slices.Sort(tags)
	for _, tag := range tags {
		add(d.customSpeakers[tag].Actor())
	}
	return out
}

// IsInvolved reports whether a takes part in the conversation.
func (d *Dialogue) IsInvolved(a Actor) bool {
	return slices.ContainsFunc(d.Participants(), func(b Actor) bool { return SameActor(a, b) })
}

// Context returns the manager's context store.
func (d *Dialogue) Context() *ContextStore { return d.manager.store }

// GlobalContext is the global scope of the context store.
func (d *Dialogue) GlobalContext() ScopedContext { return d.manager.store.Scope(GlobalScope) }

// TargetContext is the context scope of the target actor.
func (d *Dialogue) TargetContext() ScopedContext {
	return d.manager.store.Scope(d.TargetScope())
}

// TargetScope is the context scope of the target actor, or the global scope
// without a target.
func (d *Dialogue) TargetScope() Tag {
	if d.target.ID() == "" {
		return GlobalScope
	}
	if a, ok := d.target.Get(); ok {
		return ScopeOf(a)
	}
	return Tag(d.target.ID())
}

// NamedScope maps an authored scope name to a context scope: empty or
// "global" is the global scope, "target" and "player" are the actors'
// scopes, anything else is taken literally.
func (d *Dialogue) NamedScope(name string) Tag {
	switch name {
	case "", "global":
		return GlobalScope
	case "target":
		return d.TargetScope()
	case "player":
		return ScopeOf(d.player.Actor())
	default:
		return Tag(name)
	}
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

func seq(from, to int) []int {
	out := make([]int, 0, max(0, to-from))
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
