package dialog

import (
	"errors"
	"slices"
	"testing"
)

func TestStartDialogueErrors(t *testing.T) {
	f := newFixture(t)
	f.m.Registry().Register("tavern", func() (Script, error) {
		drinks := 0
		return tavernScript(&drinks), nil
	})

	if err := f.m.StartDialogue("tavern", nil, f.target, "", false, nil); !errors.Is(err, ErrInvalidPlayer) {
		t.Errorf("nil player err = %v, want ErrInvalidPlayer", err)
	}
	if err := f.m.StartDialogue("missing", f.player, f.target, "", false, nil); !errors.Is(err, ErrUnknownConversation) {
		t.Errorf("unknown err = %v, want ErrUnknownConversation", err)
	}
	if f.m.InDialogue() {
		t.Fatal("failed start left a dialogue running")
	}
	if err := f.m.StartDialogue("tavern", f.player, f.target, "", false, nil); err != nil {
		t.Fatalf("StartDialogue: %v", err)
	}
	if f.m.Text() != "Welcome" || f.m.Dialogue().Name() != "tavern" {
		t.Errorf("text = %q, name = %q", f.m.Text(), f.m.Dialogue().Name())
	}
}

func TestStartReplacesRunningDialogue(t *testing.T) {
	f := newFixture(t)
	var ended []string
	f.m.OnDialogueEnded(func(name string) { ended = append(ended, name) })

	finished, deactivated, resumed := 0, 0, false
	f.start(t, &FuncScript{
		Activate:   func(d *Dialogue) { d.ShowText(Line{Text: "First"}, Resume("later", 0)) },
		Deactivate: func(*Dialogue) { deactivated++ },
		Points: map[string]func(*Dialogue, int){
			"later": func(*Dialogue, int) { resumed = true },
		},
	}, func() { finished++ })

	f.m.StartScript("second", &FuncScript{Activate: func(d *Dialogue) {
		d.ShowText(Line{Text: "Second"}, Continuation{})
	}}, f.player, f.target, "", false, nil)

	if finished != 1 || deactivated != 1 || resumed {
		t.Errorf("finished = %d, deactivated = %d, resumed = %v", finished, deactivated, resumed)
	}
	if f.m.Text() != "Second" {
		t.Errorf("text = %q, want Second", f.m.Text())
	}
	if !slices.Equal(ended, []string{"test"}) {
		t.Errorf("ended = %v, want [test]", ended)
	}
}

func TestWaitForActivation(t *testing.T) {
	f := newFixture(t)
	activated := 0
	var updated float64
	f.m.StartScript("wait", &FuncScript{
		Activate: func(d *Dialogue) {
			activated++
			d.ShowText(Line{Text: "Now", Duration: 1}, Continuation{})
		},
		Update: func(_ *Dialogue, dt float64) { updated += dt },
	}, f.player, f.target, "", true, nil)

	if activated != 0 || !f.m.WaitingForActivation() {
		t.Fatalf("activated = %d, waiting = %v", activated, f.m.WaitingForActivation())
	}
	f.m.Tick(5)
	if !f.m.InDialogue() {
		t.Fatal("waiting dialogue ended on tick")
	}
	if updated != 5 {
		t.Errorf("script updated with %v while waiting, want 5", updated)
	}
	if !f.m.ActivateDialogue() || activated != 1 || f.m.Text() != "Now" {
		t.Fatalf("activated = %d, text = %q", activated, f.m.Text())
	}
	if f.m.ActivateDialogue() {
		t.Error("second ActivateDialogue returned true")
	}
}

func TestUpdatesAreBatchedPerTick(t *testing.T) {
	f := newFixture(t)
	updates := 0
	f.m.OnDialogueUpdated(func() { updates++ })

	drinks := 0
	f.start(t, tavernScript(&drinks), nil)
	f.m.SkipDialogue(false)
	f.m.TurnChoicePage(1)
	if updates != 0 {
		t.Fatalf("updates before tick = %d, want 0", updates)
	}
	f.m.Tick(0)
	f.m.Tick(0)
	if updates != 1 {
		t.Errorf("updates = %d, want 1", updates)
	}
}

func TestSpeakerAndExpressionEvents(t *testing.T) {
	f := newFixture(t)
	var speakers []string
	var expressions []string
	id := func(a Actor) string {
		if a == nil {
			return "-"
		}
		return a.ID()
	}
	f.m.OnSpeakerChanged(func(prev, cur Actor) { speakers = append(speakers, id(prev)+">"+id(cur)) })
	f.m.OnExpressionChanged(func(a Actor, e Expression) { expressions = append(expressions, id(a)+":"+e.String()) })

	drinks := 0
	f.start(t, tavernScript(&drinks), nil)
	f.m.Tick(0)
	f.m.SkipDialogue(false)
	f.m.Tick(0)
	f.m.SelectDialogueOption(0)
	f.m.Tick(0)

	if want := []string{"->barkeep", "barkeep>-", "->player"}; !slices.Equal(speakers, want) {
		t.Errorf("speaker changes = %v, want %v", speakers, want)
	}
	if want := []string{"barkeep:happy", "player:none"}; !slices.Equal(expressions, want) {
		t.Errorf("expression changes = %v, want %v", expressions, want)
	}
}

func TestSkipAllStopsAtChoices(t *testing.T) {
	f := newFixture(t)
	var shown []string
	f.m.OnLineSpoken(func(_ Actor, text string) { shown = append(shown, text) })

	f.start(t, &FuncScript{
		Activate: func(d *Dialogue) { d.ShowText(Line{Text: "one"}, Resume("line", 2)) },
		Points: map[string]func(*Dialogue, int){
			"line": func(d *Dialogue, n int) {
				if n == 3 {
					d.ShowText(Line{Text: "pick"}, Continuation{})
					d.AddChoice("ok", Continuation{})
					return
				}
				d.ShowText(Line{Text: "two"}, Resume("line", n+1))
			},
		},
	}, nil)

	if !f.m.SkipDialogue(true) {
		t.Fatal("SkipDialogue(true) returned false")
	}
	if want := []string{"one", "two", "pick"}; !slices.Equal(shown, want) {
		t.Errorf("shown = %v, want %v", shown, want)
	}
	if !f.m.HasChoices() {
		t.Error("choices missing after skip all")
	}
}

func TestOneLineDialogue(t *testing.T) {
	f := newFixture(t)
	drinks := 0
	tavernFinished := 0
	f.start(t, tavernScript(&drinks), func() { tavernFinished++ })

	declined := 0
	if f.m.StartOneLineDialogue(Line{Text: "Psst"}, f.player, nil, false, func() { declined++ }) {
		t.Error("one-liner started over a running dialogue")
	}
	if declined != 1 || f.m.Text() != "Welcome" {
		t.Errorf("declined = %d, text = %q", declined, f.m.Text())
	}
	if f.m.StartOneLineDialogue(Line{}, f.player, nil, true, nil) {
		t.Error("empty one-liner started")
	}

	done := 0
	if !f.m.StartOneLineDialogue(Line{Text: "Psst", Speaker: SpeakerPlayer}, f.player, nil, true, func() { done++ }) {
		t.Fatal("override was declined")
	}
	if tavernFinished != 1 || !f.m.InOneLineDialogue() || !f.m.IsSpeakerPlayer() {
		t.Errorf("tavern finished = %d, one line = %v, player speaks = %v",
			tavernFinished, f.m.InOneLineDialogue(), f.m.IsSpeakerPlayer())
	}
	f.m.SkipDialogue(false)
	if done != 1 || f.m.InDialogue() {
		t.Errorf("done = %d, in dialogue = %v", done, f.m.InDialogue())
	}
}

type limitedScript struct {
	FuncScript
	limit int
}

func (s *limitedScript) MaxChoices() int { return s.limit }

func TestMaxVisibleChoices(t *testing.T) {
	settings := DefaultSettings()
	settings.MaxChoices = 0
	m := NewManager(settings)
	if got := m.MaxVisibleChoices(); got != 1 {
		t.Errorf("MaxVisibleChoices with zero setting = %d, want 1", got)
	}

	f := newFixture(t)
	s := &limitedScript{FuncScript: FuncScript{Activate: tenChoices}, limit: 3}
	d := f.start(t, s, nil)
	if got := f.m.MaxVisibleChoices(); got != 3 {
		t.Errorf("MaxVisibleChoices = %d, want 3", got)
	}
	d.SetMaxChoices(5)
	if got := f.m.MaxVisibleChoices(); got != 5 {
		t.Errorf("MaxVisibleChoices after override = %d, want 5", got)
	}
	d.SetMaxChoices(0)
	if got := f.m.MaxVisibleChoices(); got != 4 {
		t.Errorf("MaxVisibleChoices without override = %d, want 4", got)
	}
}

func TestContextChangedHub(t *testing.T) {
	f := newFixture(t)
	var got []recordedChange
	cancel := f.m.OnContextChanged(func(tag Tag, v int32) { got = append(got, recordedChange{tag, v}) })

	f.m.Context().Set("Trust", "barkeep", 3)
	f.m.GlobalContext().Set("Day", 2)
	f.m.SeedContext([]ContextEntry{{Tag: "Weather", Value: 1}, {Tag: "Mood", Scope: "barkeep", Value: 1}})
	cancel()
	f.m.GlobalContext().Set("Day", 3)

	if want := []recordedChange{{"Day", 2}, {"Weather", 1}}; !slices.Equal(got, want) {
		t.Errorf("changes = %v, want %v", got, want)
	}
	if !f.m.TargetContext().Has("Day") {
		t.Error("TargetContext without dialogue is not global")
	}
}

func TestTickingTurnsOff(t *testing.T) {
	f := newFixture(t)
	if f.m.Ticking() {
		t.Fatal("ticking before any dialogue")
	}
	f.start(t, &FuncScript{Activate: func(d *Dialogue) {
		d.ShowText(Line{Text: "Bye"}, Continuation{})
	}}, nil)
	if !f.m.Ticking() {
		t.Fatal("not ticking after start")
	}

	updates := 0
	f.m.OnDialogueUpdated(func() { updates++ })
	f.m.SkipDialogue(false)
	f.m.Tick(0)
	if f.m.Ticking() {
		t.Error("still ticking after the dialogue ended")
	}
	if updates != 1 {
		t.Errorf("final updates = %d, want 1", updates)
	}
}

func TestSpeakerName(t *testing.T) {
	f := newFixture(t)
	d := f.start(t, &FuncScript{Activate: func(d *Dialogue) {
		d.ShowText(Line{Speaker: SpeakerNarrator, Text: "…"}, Continuation{})
	}}, nil)
	if got := f.m.SpeakerName(); got != "Narrator" {
		t.Errorf("narrator name = %q", got)
	}

	d.ShowText(Line{Speaker: SpeakerTarget, Text: "Hm"}, Continuation{})
	if got := f.m.SpeakerName(); got != "barkeep" {
		t.Errorf("target name = %q", got)
	}
	f.target.gone = true
	if got := f.m.SpeakerName(); got != "???" {
		t.Errorf("gone speaker name = %q, want ???", got)
	}
	if f.m.Speaker() != nil {
		t.Error("gone speaker still returned")
	}
}

func TestInputWithoutDialogue(t *testing.T) {
	f := newFixture(t)
	if f.m.SkipDialogue(false) || f.m.SelectDialogueOption(0) || f.m.HoverOption(0) ||
		f.m.TurnChoicePage(1) || f.m.TogglePause() || f.m.SelectHoveredOption() {
		t.Error("input accepted without a dialogue")
	}
	if f.m.TimeFraction() != 1 || f.m.Text() != "" || f.m.Participants() != nil {
		t.Error("queries without a dialogue returned state")
	}
}

func TestStartedHubUnsubscribe(t *testing.T) {
	f := newFixture(t)
	var started []string
	cancel := f.m.OnDialogueStarted(func(name string) { started = append(started, name) })

	f.start(t, &FuncScript{Activate: func(*Dialogue) {}}, nil)
	cancel()
	f.start(t, &FuncScript{Activate: func(*Dialogue) {}}, nil)

	if !slices.Equal(started, []string{"test"}) {
		t.Errorf("started = %v, want one start", started)
	}
}

func TestStartReplacesDialogueStartedByFinishCallback(t *testing.T) {
	f := newFixture(t)
	line := func(text string) *FuncScript {
		return &FuncScript{Activate: func(d *Dialogue) {
			d.ShowText(Line{Text: text}, Continuation{})
		}}
	}

	var chained *Dialogue
	chainedEnded := 0
	f.m.StartScript("first", line("One"), f.player, f.target, "", false, func() {
		f.m.StartScript("chained", line("Two"), f.player, f.target, "", false, func() { chainedEnded++ })
		chained = f.m.Dialogue()
	})
	f.m.StartScript("third", line("Three"), f.player, f.target, "", false, nil)

	if chained == nil {
		t.Fatal("finish callback did not start the chained dialogue")
	}
	if chained.IsActive() {
		t.Error("chained dialogue still active")
	}
	if chainedEnded != 1 {
		t.Errorf("chained finish callbacks = %d, want 1", chainedEnded)
	}
	if d := f.m.Dialogue(); d == nil || d.Name() != "third" || f.m.Text() != "Three" {
		t.Errorf("current dialogue = %v, text = %q", d, f.m.Text())
	}
}
