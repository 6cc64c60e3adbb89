package dialog

import (
	"io"
	"log/slog"
	"testing"
)

type testActor struct {
	id   string
	kind string
	pos  Vec3
	gone bool
}

func (a *testActor) ID() string     { return a.id }
func (a *testActor) Kind() string   { return a.kind }
func (a *testActor) Location() Vec3 { return a.pos }
func (a *testActor) Valid() bool    { return !a.gone }

type testWorld struct {
	actors []*testActor
}

func (w *testWorld) ActorsOfKind(kind string) []Actor {
	var out []Actor
	for _, a := range w.actors {
		if a.kind == kind {
			out = append(out, a)
		}
	}
	return out
}

func (w *testWorld) Actor(id string) (Actor, bool) {
	for _, a := range w.actors {
		if a.id == id && !a.gone {
			return a, true
		}
	}
	return nil, false
}

type fixedRoller int32

func (r fixedRoller) Roll(lo, hi int32) int32 { return max(lo, min(int32(r), hi)) }

type fixture struct {
	m      *Manager
	world  *testWorld
	player *testActor
	target *testActor
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	player := &testActor{id: "player", kind: "hero"}
	target := &testActor{id: "barkeep", kind: "npc", pos: Vec3{X: 2}}
	world := &testWorld{actors: []*testActor{player, target}}

	base := []Option{
		WithWorld(world),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	m := NewManager(DefaultSettings(), append(base, opts...)...)
	return &fixture{m: m, world: world, player: player, target: target}
}

func (f *fixture) start(t *testing.T, s Script, onFinished func()) *Dialogue {
	t.Helper()
	f.m.StartScript("test", s, f.player, f.target, "", false, onFinished)
	d := f.m.Dialogue()
	if d == nil {
		t.Fatal("dialogue did not start")
	}
	return d
}

// tavernScript greets, then offers a menu that loops back after each drink.
func tavernScript(drinks *int) *FuncScript {
	return &FuncScript{
		Activate: func(d *Dialogue) {
			d.ShowText(Line{Speaker: SpeakerTarget, Text: "Welcome", Duration: DurationAuto, Expression: ExpressionHappy}, Resume("menu", 0))
		},
		Points: map[string]func(*Dialogue, int){
			"menu": func(d *Dialogue, _ int) {
				d.ShowText(Line{Speaker: SpeakerTarget, Text: "What'll it be?"}, Continuation{})
				d.AddChoice("Ale", Resume("ale", 0), WithAsset("item.ale"))
				d.AddChoice("Leave", Continuation{})
			},
			"ale": func(d *Dialogue, _ int) {
				*drinks++
				d.ShowText(Line{Speaker: SpeakerPlayer, Text: "Cheers"}, Resume("menu", 0))
			},
		},
	}
}

func choiceTitles(d *Dialogue) []string {
	var out []string
	for _, c := range d.Choices() {
		out = append(out, c.Title)
	}
	return out
}
