package graph

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
	"github.com/voicetyped/dialoguekit/pkg/world"
)

const tavernYAML = `
name: tavern
start: greet
variables:
  inn: The Prancing Pony
speakers:
  Speaker.Guard: guard
nodes:
  greet:
    on_enter:
      - type: increment_context
        params: {tag: Visits, scope: target}
    lines:
      - text: "Welcome to {{ .Vars.inn }}."
        expression: happy
      - text: Back again?
        condition: '{{ gt (.Target "Visits") 1 }}'
      - text: What'll it be?
        duration: 0
    choices:
      - text: Ale
        target: ale
        asset: item.ale
        actions:
          - type: increment_context
            params: {tag: Gold, delta: "-2"}
      - text: Ask the guard
        target: guard
      - text: Wine
        target: ale
        requires:
          - {tag: Rich}
      - text: Leave
        repeatable: true
      - text: Secret
        condition: '{{ .Has "Secret" }}'
  ale:
    lines:
      - speaker: player
        text: Cheers
    next: greet
  guard:
    lines:
      - speaker: custom
        custom: Speaker.Guard
        text: Move along.
        voice_over: vo.guard.move
    end: true
`

type fixedRoller int32

func (r fixedRoller) Roll(lo, hi int32) int32 { return max(lo, min(int32(r), hi)) }

type mapLocalizer map[string]string

func (m mapLocalizer) Lookup(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

type harness struct {
	m      *dialog.Manager
	world  *world.World
	player *world.Actor
	target *world.Actor
}

func newHarness(t *testing.T, yamlText string, loc Localizer, opts ...dialog.Option) *harness {
	t.Helper()
	g, err := Parse([]byte(yamlText), "fallback")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w := world.New()
	h := &harness{
		world:  w,
		player: w.Spawn("player", "hero", dialog.Vec3{}, ""),
		target: w.Spawn("barkeep", "npc", dialog.Vec3{X: 2}, ""),
	}
	w.Spawn("guard.far", "guard", dialog.Vec3{X: 20}, "")
	w.Spawn("guard.near", "guard", dialog.Vec3{X: 5}, "")

	reg := dialog.NewRegistry()
	reg.Register(g.Name(), func() (dialog.Script, error) { return NewScript(g, loc, logger), nil })

	base := []dialog.Option{dialog.WithWorld(w), dialog.WithRegistry(reg), dialog.WithLogger(logger)}
	h.m = dialog.NewManager(dialog.DefaultSettings(), append(base, opts...)...)
	return h
}

func (h *harness) start(t *testing.T, name string) *dialog.Dialogue {
	t.Helper()
	if err := h.m.StartDialogue(name, h.player, h.target, "", false, nil); err != nil {
		t.Fatalf("StartDialogue: %v", err)
	}
	return h.m.Dialogue()
}

func titles(d *dialog.Dialogue) []string {
	var out []string
	for _, c := range d.Choices() {
		out = append(out, c.Title)
	}
	return out
}

func TestScriptWalkthrough(t *testing.T) {
	h := newHarness(t, tavernYAML, nil)
	d := h.start(t, "tavern")

	if d.Text() != "Welcome to The Prancing Pony." || d.Expression() != dialog.ExpressionHappy {
		t.Fatalf("first line = %q (%v)", d.Text(), d.Expression())
	}
	if d.Speaker().ID() != "barkeep" {
		t.Errorf("default speaker = %q, want the target", d.Speaker().ID())
	}
	if !d.HasDuration() {
		t.Error("line without duration has no auto timer")
	}

	h.m.SkipDialogue(false)
	if d.Text() != "What'll it be?" || d.HasDuration() {
		t.Fatalf("text = %q, timer = %v, want the menu line without timer", d.Text(), d.HasDuration())
	}
	if got, want := titles(d), []string{"Ale", "Ask the guard", "Wine", "Leave"}; !slices.Equal(got, want) {
		t.Fatalf("choices = %v, want %v", got, want)
	}
	if h.m.CanSelectDialogueOption(2) {
		t.Error("Wine selectable without Rich")
	}
	if c, _ := d.ChoiceAt(0); c.Asset != "item.ale" {
		t.Errorf("asset = %q", c.Asset)
	}

	h.m.SelectDialogueOption(0)
	if d.Text() != "Cheers" || !h.m.IsSpeakerPlayer() {
		t.Fatalf("text = %q, want Cheers from the player", d.Text())
	}
	if got := h.m.GlobalContext().Get("Gold"); got != -2 {
		t.Errorf("Gold = %d, want -2", got)
	}

	h.m.SkipDialogue(false)
	if d.Text() != "Welcome to The Prancing Pony." {
		t.Fatalf("text = %q, want the greeting again", d.Text())
	}
	h.m.SkipDialogue(false)
	if d.Text() != "Back again?" {
		t.Fatalf("text = %q, want the second visit line", d.Text())
	}
	if got := h.m.Context().Get("Visits", "barkeep"); got != 2 {
		t.Errorf("Visits = %d, want 2", got)
	}

	h.m.SkipDialogue(false)
	if got, want := titles(d), []string{"Ask the guard", "Wine", "Leave", "Ale"}; !slices.Equal(got, want) {
		t.Fatalf("choices = %v, want visited Ale last", got)
	}

	var voiceOvers []dialog.Tag
	h.m.OnVoiceOver(func(_ dialog.Actor, vo dialog.Tag, _ dialog.Expression) { voiceOvers = append(voiceOvers, vo) })
	h.m.SelectDialogueOption(0)
	if d.Speaker().ID() != "guard.near" || d.Text() != "Move along." {
		t.Fatalf("speaker = %v, text = %q", d.Speaker(), d.Text())
	}
	if !slices.Equal(voiceOvers, []dialog.Tag{"vo.guard.move"}) {
		t.Errorf("voice overs = %v", voiceOvers)
	}

	h.m.SkipDialogue(false)
	if h.m.InDialogue() {
		t.Error("end node did not finish the conversation")
	}

	s := d.Script().(*Script)
	var nodes []string
	for _, r := range s.History().Records() {
		nodes = append(nodes, r.ToNode)
	}
	if want := []string{"greet", "ale", "greet", "guard"}; !slices.Equal(nodes, want) {
		t.Errorf("history = %v, want %v", nodes, want)
	}
	if s.History().Current() != "guard" {
		t.Errorf("current = %q", s.History().Current())
	}
}

func TestScriptChoiceConditionAndRepeatable(t *testing.T) {
	h := newHarness(t, tavernYAML, nil)
	h.m.GlobalContext().Set("Secret", 1)
	h.m.GlobalContext().Set("Rich", 1)
	d := h.start(t, "tavern")
	h.m.SkipDialogue(false)

	if got := titles(d); !slices.Contains(got, "Secret") {
		t.Errorf("choices = %v, want Secret shown", got)
	}
	if !h.m.CanSelectDialogueOption(2) {
		t.Error("Wine not selectable with Rich set")
	}
	if c, _ := d.ChoiceAt(3); c.Title != "Leave" || c.Name != "" {
		t.Errorf("repeatable choice = %+v, want no name", c)
	}

	h.m.SelectDialogueOption(3)
	if h.m.InDialogue() {
		t.Error("choice without target did not end the conversation")
	}
}

func TestScriptResumeErrors(t *testing.T) {
	h := newHarness(t, tavernYAML, nil)
	d := h.start(t, "tavern")
	s := d.Script()

	for _, c := range []dialog.Continuation{dialog.Resume("nowhere", 0), dialog.Resume("greet", 99)} {
		if err := s.Resume(d, c); !errors.Is(err, dialog.ErrResumePointNotFound) {
			t.Errorf("Resume(%v) err = %v, want ErrResumePointNotFound", c, err)
		}
	}
}

func TestScriptMaxChoices(t *testing.T) {
	h := newHarness(t, `
start: a
max_choices: 2
nodes:
  a:
    choices:
      - {text: one}
      - {text: two}
      - {text: three}
`, nil)
	d := h.start(t, "fallback")
	if got := h.m.MaxVisibleChoices(); got != 2 {
		t.Errorf("MaxVisibleChoices = %d, want 2", got)
	}
	if _, total, paginated := d.VisiblePage(); total != 3 || !paginated {
		t.Errorf("total = %d, paginated = %v", total, paginated)
	}
	if d.HasDialogue() {
		t.Error("node without lines showed a box")
	}
}

func TestScriptActions(t *testing.T) {
	h := newHarness(t, `
name: actions
start: a
nodes:
  a:
    on_enter:
      - {type: set_context, params: {tag: Flag}}
      - {type: set_context, params: {tag: Mood, scope: target, value: "3"}}
      - {type: set_context, params: {tag: Temp, scope: player, value: "9"}}
      - {type: remove_context, params: {tag: Temp, scope: player}}
      - {type: set_context, params: {tag: Old, scope: npc.other}}
      - {type: clear_context, params: {scope: npc.other}}
      - {type: roll, params: {tag: Check, min: "1", max: "20"}}
      - {type: increment_context, params: {tag: Missing, create: "false"}}
      - {type: find_speaker, params: {tag: Speaker.Guard, kind: guard}}
      - {type: set_context, params: {tag: Copy, value: '{{ .Target "Mood" }}'}}
    lines:
      - text: 'Rolled {{ .Global "Check" }}'
    next: b
  b:
    on_enter:
      - {type: end}
      - {type: set_context, params: {tag: AfterEnd}}
    lines:
      - text: unreachable
`, nil, dialog.WithRoller(fixedRoller(7)))

	d := h.start(t, "actions")
	ctx := h.m.Context()

	checks := []struct {
		tag, scope dialog.Tag
		want       int32
		has        bool
	}{
		{"Flag", dialog.GlobalScope, 1, true},
		{"Mood", "barkeep", 3, true},
		{"Temp", "player", 0, false},
		{"Old", "npc.other", 0, false},
		{"Check", dialog.GlobalScope, 7, true},
		{"Missing", dialog.GlobalScope, 0, false},
		{"Copy", dialog.GlobalScope, 3, true},
	}
	for _, c := range checks {
		if ctx.Has(c.tag, c.scope) != c.has || ctx.Get(c.tag, c.scope) != c.want {
			t.Errorf("%s@%s = %d (has %v), want %d (has %v)",
				c.tag, c.scope, ctx.Get(c.tag, c.scope), ctx.Has(c.tag, c.scope), c.want, c.has)
		}
	}
	if a, ok := d.CustomSpeaker("Speaker.Guard"); !ok || a.ID() != "guard.near" {
		t.Errorf("guard speaker = %v", a)
	}
	if d.Text() != "Rolled 7" {
		t.Errorf("text = %q", d.Text())
	}

	h.m.SkipDialogue(false)
	if h.m.InDialogue() {
		t.Error("end action did not finish the conversation")
	}
	if ctx.Has("AfterEnd", dialog.GlobalScope) {
		t.Error("actions after end still ran")
	}
}

func TestScriptLocalizedText(t *testing.T) {
	loc := mapLocalizer{"greet.hello": "Hallo, {{ .PlayerID }}!"}
	h := newHarness(t, `
start: a
nodes:
  a:
    lines:
      - text: "@greet.hello"
      - text: "@greet.missing"
`, loc)
	d := h.start(t, "fallback")
	if d.Text() != "Hallo, player!" {
		t.Errorf("text = %q", d.Text())
	}
	h.m.SkipDialogue(false)
	if d.Text() != "@greet.missing" {
		t.Errorf("missing key text = %q, want raw key", d.Text())
	}
}

func TestScriptTemplateErrorEndsConversation(t *testing.T) {
	h := newHarness(t, `
start: a
nodes:
  a:
    lines:
      - text: fine
    next: b
  b:
    lines:
      - text: broken
        condition: '{{ .Nope }}'
`, nil)
	finished := false
	if err := h.m.StartDialogue("fallback", h.player, h.target, "", false, func() { finished = true }); err != nil {
		t.Fatalf("StartDialogue: %v", err)
	}
	if h.m.Text() != "fine" {
		t.Fatalf("text = %q", h.m.Text())
	}
	h.m.SkipDialogue(false)
	if h.m.InDialogue() || !finished {
		t.Error("template error did not end the conversation")
	}
}

func TestScriptRestoreResumesChoices(t *testing.T) {
	h := newHarness(t, tavernYAML, nil)
	h.start(t, "tavern")
	h.m.SkipDialogue(false)
	snap := h.m.Snapshot()

	g := newHarness(t, tavernYAML, nil)
	if err := g.m.Restore(snap, nil); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	d := g.m.Dialogue()
	if a, ok := d.CustomSpeaker("Speaker.Guard"); !ok || a.ID() != "guard.near" {
		t.Errorf("guard speaker after restore = %v", a)
	}
	g.m.SelectDialogueOption(1)
	if d.Text() != "Move along." {
		t.Errorf("text = %q after selecting a restored choice", d.Text())
	}
}
