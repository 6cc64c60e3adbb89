package dialog

import (
	"log/slog"
)

// Manager owns at most one running Dialogue and the context store. It is
// driven by Tick from a single goroutine; input methods must be called from
// that same goroutine.
type Manager struct {
	settings Settings
	registry *Registry
	world    World
	logger   *slog.Logger
	roller   Roller
	store    *ContextStore

	dialogue       *Dialogue
	waiting        bool
	ticking        bool
	updatePending  bool
	speakerPending bool
	prevSpeaker    ActorRef
	prevExpression Expression
	hoveredAsset   AssetID

	updated           hub[func()]
	speakerChanged    hub[func(prev, cur Actor)]
	expressionChanged hub[func(Actor, Expression)]
	contextChanged    hub[func(Tag, int32)]
	assetHovered      hub[func(AssetID)]
	lineSpoken        hub[func(Actor, string)]
	voiceOver         hub[func(Actor, Tag, Expression)]
	choiceSelected    hub[func(Choice)]
	started           hub[func(string)]
	ended             hub[func(string)]
}

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry sets where conversations are resolved by name.
func WithRegistry(r *Registry) Option { return func(m *Manager) { m.registry = r } }

// WithWorld sets the actor lookup used for custom speakers and restores.
func WithWorld(w World) Option { return func(m *Manager) { m.world = w } }

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option { return func(m *Manager) { m.logger = l } }

// WithRoller sets the random source for context rolls.
func WithRoller(r Roller) Option { return func(m *Manager) { m.roller = r } }

// NewManager creates a manager with no running dialogue.
func NewManager(settings Settings, opts ...Option) *Manager {
	m := &Manager{
		settings: settings,
		registry: NewRegistry(),
		logger:   slog.Default(),
		roller:   defaultRoller{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.store = NewContextStore(
		WithContextRoller(m.roller),
		WithChangeHandler(func(tag Tag, value int32) {
			m.contextChanged.each(func(fn func(Tag, int32)) { fn(tag, value) })
		}),
	)
	return m
}

// Settings returns the pacing configuration.
func (m *Manager) Settings() Settings { return m.settings }

// Registry returns the conversation registry.
func (m *Manager) Registry() *Registry { return m.registry }

// World returns the actor lookup, which may be nil.
func (m *Manager) World() World { return m.world }

// Dialogue returns the running dialogue or nil.
func (m *Manager) Dialogue() *Dialogue { return m.dialogue }

// StartDialogue resolves name in the registry and starts it, replacing any
// running dialogue. With waitForActivation the script's entry point only
// runs on ActivateDialogue. onFinished runs when the dialogue deactivates.
func (m *Manager) StartDialogue(name string, player, target Actor, speakContext Tag, waitForActivation bool, onFinished func()) error {
	if player == nil || !player.Valid() {
		m.logger.Warn("start dialogue without a valid player", slog.String("conversation", name))
		return ErrInvalidPlayer
	}
	script, err := m.registry.Resolve(name)
	if err != nil {
		m.logger.Error("cannot resolve conversation", slog.String("conversation", name), slog.String("error", err.Error()))
		return err
	}
	m.StartScript(name, script, player, target, speakContext, waitForActivation, onFinished)
	return nil
}

// StartScript starts an already constructed script under name.
func (m *Manager) StartScript(name string, script Script, player, target Actor, speakContext Tag, waitForActivation bool, onFinished func()) {
	// A finish callback may start another dialogue while the old one clears.
	for m.dialogue != nil {
		m.ClearDialogue()
	}

	d := newDialogue(m, script, name, player, target, speakContext, onFinished)
	m.dialogue = d
	m.waiting = waitForActivation
	m.ticking = true
	m.QueueUpdate()
	m.queueSpeakerUpdate()
	m.started.each(func(fn func(string)) { fn(name) })

	if !waitForActivation {
		d.Activate()
	}
}

// OneLineConversation is the name one-line dialogues run under.
const OneLineConversation = "one-line"

type oneLineScript struct {
	BaseScript
	line Line
}

func (s *oneLineScript) OnActivate(d *Dialogue) { d.ShowText(s.line, Continuation{}) }

// StartOneLineDialogue shows a single line as its own conversation. It
// declines, running onFinished right away, when the text is empty, the
// player is invalid, or another dialogue is running and overrideCurrent is
// false.
func (m *Manager) StartOneLineDialogue(line Line, player, target Actor, overrideCurrent bool, onFinished func()) bool {
	if line.Text == "" || (!overrideCurrent && m.InDialogue()) || player == nil || !player.Valid() {
		if onFinished != nil {
			onFinished()
		}
		return false
	}
	m.StartScript(OneLineConversation, &oneLineScript{line: line}, player, target, GlobalScope, false, onFinished)
	return true
}

// ActivateDialogue runs the entry point of a dialogue started with
// waitForActivation.
func (m *Manager) ActivateDialogue() bool {
	if m.dialogue == nil || !m.waiting {
		return false
	}
	m.waiting = false
	m.dialogue.Activate()
	return true
}

// WaitingForActivation reports whether the running dialogue has not been
// activated yet.
func (m *Manager) WaitingForActivation() bool { return m.dialogue != nil && m.waiting }

// ClearDialogue deactivates and drops the running dialogue. Pending
// continuations are abandoned.
func (m *Manager) ClearDialogue() {
	m.setHoveredAsset("")
	d := m.dialogue
	if d == nil {
		return
	}
	m.dialogue = nil
	m.waiting = false
	d.Deactivate()
	m.QueueUpdate()
	m.queueSpeakerUpdate()
}

func (m *Manager) release(d *Dialogue) {
	if m.dialogue == d {
		m.dialogue = nil
		m.waiting = false
		m.setHoveredAsset("")
	}
	m.QueueUpdate()
	m.queueSpeakerUpdate()
	m.ended.each(func(fn func(string)) { fn(d.name) })
}

// QueueUpdate asks for one dialogue-updated notification on the next tick.
func (m *Manager) QueueUpdate() { m.updatePending = true }

func (m *Manager) queueSpeakerUpdate() { m.speakerPending = true }

func (m *Manager) notifyUpdated() {
	m.updated.each(func(fn func()) { fn() })
}

func (m *Manager) setHoveredAsset(a AssetID) {
	if a == m.hoveredAsset {
		return
	}
	m.hoveredAsset = a
	m.assetHovered.each(func(fn func(AssetID)) { fn(a) })
}

// HoveredAsset is the asset of the highlighted choice.
func (m *Manager) HoveredAsset() AssetID { return m.hoveredAsset }

// Ticking reports whether Tick has work to do. It turns off once no
// dialogue is running and the final notifications went out.
func (m *Manager) Ticking() bool { return m.ticking }

// Tick advances the running dialogue by dt seconds, then sends at most one
// dialogue-updated and one speaker notification.
func (m *Manager) Tick(dt float64) {
	if !m.ticking {
		return
	}
	if d := m.dialogue; d != nil {
		d.Tick(dt)
	}

	if m.updatePending {
		m.updatePending = false
		m.notifyUpdated()
	}
	if m.speakerPending {
		m.speakerPending = false
		m.dispatchSpeaker()
	}

	if m.dialogue == nil {
		m.ticking = false
	}
}

func (m *Manager) dispatchSpeaker() {
	var cur Actor
	expression := ExpressionNone
	if d := m.dialogue; d != nil {
		if !d.HasChoices() {
			cur = d.Speaker()
		}
		expression = d.Expression()
	}

	curID := ""
	if cur != nil {
		curID = cur.ID()
	}
	changed := m.prevSpeaker.ID() != curID
	if changed {
		prev := m.prevSpeaker.Actor()
		m.speakerChanged.each(func(fn func(Actor, Actor)) { fn(prev, cur) })
	}
	if cur != nil && (changed || expression != m.prevExpression) {
		m.expressionChanged.each(func(fn func(Actor, Expression)) { fn(cur, expression) })
	}
	m.prevSpeaker = Ref(cur)
	m.prevExpression = expression
}

func (m *Manager) active(op string) (*Dialogue, bool) {
	if m.dialogue == nil {
		m.logger.Warn(op+": no active dialogue")
		return nil, false
	}
	return m.dialogue, true
}

// SkipDialogue advances past the current line, or past every line up to the
// next choice or the end when all is set. It refuses while choices are up.
func (m *Manager) SkipDialogue(all bool) bool {
	d, ok := m.active("skip")
	if !ok {
		return false
	}
	if d.HasChoices() {
		m.logger.Warn("skip: choices are showing", slog.String("conversation", d.name))
		return false
	}
	d.Skip()
	for all && m.dialogue == d && d.HasDialogue() && !d.HasChoices() {
		d.Skip()
	}
	return true
}

// SelectDialogueOption selects the choice at index.
func (m *Manager) SelectDialogueOption(index int) bool {
	d, ok := m.active("select")
	if !ok {
		return false
	}
	return d.SelectOption(index)
}

// SelectHoveredOption selects the highlighted choice.
func (m *Manager) SelectHoveredOption() bool {
	d, ok := m.active("select hovered")
	if !ok {
		return false
	}
	return d.SelectOption(d.hovered)
}

// CanSelectDialogueOption reports whether index names an enabled choice.
func (m *Manager) CanSelectDialogueOption(index int) bool {
	return m.dialogue != nil && m.dialogue.CanSelectOption(index)
}

// HoverOption highlights the choice at index.
func (m *Manager) HoverOption(index int) bool {
	d, ok := m.active("hover")
	if !ok {
		return false
	}
	return d.HoverOption(index)
}

// MoveHoveredOption moves the highlight up or down.
func (m *Manager) MoveHoveredOption(direction int) bool {
	d, ok := m.active("move hover")
	if !ok {
		return false
	}
	return d.MoveHoveredOption(direction)
}

// TurnChoicePage moves to the next or previous page of choices.
func (m *Manager) TurnChoicePage(direction int) bool {
	d, ok := m.active("turn page")
	if !ok {
		return false
	}
	return d.AdvancePage(direction)
}

// TogglePause holds or releases the line timer.
func (m *Manager) TogglePause() bool {
	d, ok := m.active("toggle pause")
	if !ok {
		return false
	}
	d.TogglePause()
	return true
}

// MaxVisibleChoices is the page size: the dialogue's override when
// positive, otherwise the configured default, and never below one.
func (m *Manager) MaxVisibleChoices() int {
	n := m.settings.MaxChoices
	if m.dialogue != nil && m.dialogue.maxChoices > 0 {
		n = m.dialogue.maxChoices
	}
	return max(1, n)
}

// InDialogue reports whether a dialogue is running.
func (m *Manager) InDialogue() bool { return m.dialogue != nil }

// InOneLineDialogue reports whether the running dialogue is a one-liner.
func (m *Manager) InOneLineDialogue() bool {
	if m.dialogue == nil {
		return false
	}
	_, ok := m.dialogue.script.(*oneLineScript)
	return ok
}

// HasChoices reports whether choices are waiting for a selection.
func (m *Manager) HasChoices() bool { return m.dialogue != nil && m.dialogue.HasChoices() }

// IsPaused reports whether the line timer is held.
func (m *Manager) IsPaused() bool { return m.dialogue != nil && m.dialogue.paused }

// HasDuration reports whether the current line runs on a timer.
func (m *Manager) HasDuration() bool { return m.dialogue != nil && m.dialogue.HasDuration() }

// TimeFraction is the remaining share of the current line's display time.
func (m *Manager) TimeFraction() float64 {
	if m.dialogue == nil {
		return 1
	}
	return m.dialogue.TimeFraction()
}

// Text of the current line.
func (m *Manager) Text() string {
	if m.dialogue == nil {
		return ""
	}
	return m.dialogue.Text()
}

// Speaker of the current line.
func (m *Manager) Speaker() Actor {
	if m.dialogue == nil {
		return nil
	}
	return m.dialogue.Speaker()
}

// SpeakerName is the display name for the current speaker: the actor ID,
// the narrator name, or the unknown name when the actor is gone.
func (m *Manager) SpeakerName() string {
	if m.dialogue == nil || !m.dialogue.box.Valid {
		return ""
	}
	ref := m.dialogue.box.Speaker
	switch {
	case ref.ID() == "":
		return m.settings.NarratorName
	case !ref.Valid():
		return m.settings.UnknownName
	default:
		return ref.ID()
	}
}

// IsSpeakerPlayer reports whether the player speaks the current line.
func (m *Manager) IsSpeakerPlayer() bool {
	if m.dialogue == nil {
		return false
	}
	s := m.dialogue.Speaker()
	return s != nil && m.dialogue.player.Is(s)
}

// Expression of the current line.
func (m *Manager) Expression() Expression {
	if m.dialogue == nil {
		return ExpressionNone
	}
	return m.dialogue.Expression()
}

// Effect of the current line.
func (m *Manager) Effect() Effect {
	if m.dialogue == nil {
		return EffectNone
	}
	return m.dialogue.Effect()
}

// Player of the running dialogue.
func (m *Manager) Player() Actor {
	if m.dialogue == nil {
		return nil
	}
	return m.dialogue.Player()
}

// Target of the running dialogue.
func (m *Manager) Target() Actor {
	if m.dialogue == nil {
		return nil
	}
	return m.dialogue.Target()
}

// IsActorInvolved reports whether a takes part in the running dialogue.
func (m *Manager) IsActorInvolved(a Actor) bool {
	return m.dialogue != nil && m.dialogue.IsInvolved(a)
}

// Participants of the running dialogue.
func (m *Manager) Participants() []Actor {
	if m.dialogue == nil {
		return nil
	}
	return m.dialogue.Participants()
}

// Context returns the context store.
func (m *Manager) Context() *ContextStore { return m.store }

// GlobalContext is the global scope of the context store.
func (m *Manager) GlobalContext() ScopedContext { return m.store.Scope(GlobalScope) }

// TargetContext is the scope of the running dialogue's target. Without a
// dialogue it is the global scope.
func (m *Manager) TargetContext() ScopedContext {
	if m.dialogue == nil {
		return m.GlobalContext()
	}
	return m.dialogue.TargetContext()
}

// SeedContext loads initial entries, reporting global ones to subscribers.
func (m *Manager) SeedContext(entries []ContextEntry) { m.store.Import(entries) }
