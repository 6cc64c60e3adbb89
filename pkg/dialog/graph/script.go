package graph

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
)

// Localizer resolves string-table keys. Authored text starting with "@"
// is looked up as a key before template rendering.
type Localizer interface {
	Lookup(key string) (string, bool)
}

// Script runs a Graph as a dialog.Script. A continuation (node, i) with i
// up to the node's line count resumes at line i; i = 0 also runs the
// node's entry actions. Higher outputs name the selected choice:
// (node, lines+1+k) is choice k. The Script keeps no state besides its
// history, so a restored dialogue resumes from its stored choices and box.
type Script struct {
	graph   *Graph
	loc     Localizer
	logger  *slog.Logger
	history *History
}

// NewScript creates a script for one conversation run. loc and logger may
// be nil.
func NewScript(g *Graph, loc Localizer, logger *slog.Logger) *Script {
	if logger == nil {
		logger = slog.Default()
	}
	return &Script{
		graph:   g,
		loc:     loc,
		logger:  logger.With(slog.String("conversation", g.Name())),
		history: NewHistory(DefaultMaxHistory),
	}
}

// Graph returns the conversation being run.
func (s *Script) Graph() *Graph { return s.graph }

// History returns the nodes entered so far.
func (s *Script) History() *History { return s.history }

// MaxChoices implements dialog.ChoiceLimiter.
func (s *Script) MaxChoices() int { return s.graph.conv.MaxChoices }

func (s *Script) OnActivate(d *dialog.Dialogue) {
	s.bindSpeakers(d)
	if err := s.enter(d, s.graph.Start(), "start"); err != nil {
		s.logger.Log(context.Background(), dialog.LevelFatal, "cannot start conversation", slog.String("error", err.Error()))
		d.Deactivate()
	}
}

func (s *Script) OnDeactivate(*dialog.Dialogue) {}

// OnRestore binds any declared speaker that did not survive the restore.
func (s *Script) OnRestore(d *dialog.Dialogue) { s.bindSpeakers(d) }

func (s *Script) OnUpdate(*dialog.Dialogue, float64) {}

func (s *Script) Resume(d *dialog.Dialogue, c dialog.Continuation) error {
	node, ok := s.graph.Node(c.Point)
	if !ok {
		return fmt.Errorf("node %q: %w", c.Point, dialog.ErrResumePointNotFound)
	}
	if c.Output <= len(node.Lines) {
		return s.play(d, c.Point, node, c.Output)
	}

	k := c.Output - len(node.Lines) - 1
	if k >= len(node.Choices) {
		return fmt.Errorf("%s: %w", c, dialog.ErrResumePointNotFound)
	}
	ch := node.Choices[k]
	if err := s.run(d, ch.Actions); err != nil {
		return err
	}
	if !d.IsActive() {
		return nil
	}
	if ch.Target == "" {
		d.Deactivate()
		return nil
	}
	return s.enter(d, ch.Target, "choice:"+c.Name())
}

func (s *Script) bindSpeakers(d *dialog.Dialogue) {
	speakers := s.graph.conv.Speakers
	for _, tag := range slices.Sorted(maps.Keys(speakers)) {
		d.FindCustomSpeaker(tag, speakers[tag])
	}
}

func (s *Script) env(d *dialog.Dialogue) env {
	return newEnv(d, s.graph.conv.Variables)
}

func (s *Script) enter(d *dialog.Dialogue, name, trigger string) error {
	node, ok := s.graph.Node(name)
	if !ok {
		return fmt.Errorf("node %q: %w", name, dialog.ErrResumePointNotFound)
	}
	s.history.Record(name, trigger)
	return s.play(d, name, node, 0)
}

// play shows the first visible line at or after from, or moves on once the
// node's lines are used up.
func (s *Script) play(d *dialog.Dialogue, name string, node Node, from int) error {
	if from == 0 {
		if err := s.run(d, node.OnEnter); err != nil {
			return err
		}
		if !d.IsActive() {
			return nil
		}
	}
	e := s.env(d)

	choices, err := s.visibleChoices(node, e)
	if err != nil {
		return err
	}
	offer := len(choices) > 0 && !node.End

	i, err := s.nextLine(node, from, e)
	if err != nil {
		return err
	}
	if i >= 0 {
		following, err := s.nextLine(node, i+1, e)
		if err != nil {
			return err
		}
		line, err := s.line(node.Lines[i], e)
		if err != nil {
			return err
		}
		if following >= 0 || !offer {
			d.ShowText(line, dialog.Resume(name, i+1))
			return nil
		}
		d.ShowText(line, dialog.Continuation{})
		return s.offer(d, name, node, choices, e)
	}

	switch {
	case node.End:
		d.Deactivate()
	case offer:
		return s.offer(d, name, node, choices, e)
	case node.Next != "":
		return s.enter(d, node.Next, "next")
	default:
		d.Deactivate()
	}
	return nil
}

func (s *Script) nextLine(node Node, from int, e env) (int, error) {
	for i := from; i < len(node.Lines); i++ {
		ok, err := EvalCondition(node.Lines[i].Condition, e)
		if err != nil {
			return -1, fmt.Errorf("line %d condition: %w", i, err)
		}
		if ok {
			return i, nil
		}
	}
	return -1, nil
}

func (s *Script) visibleChoices(node Node, e env) ([]int, error) {
	var out []int
	for k, ch := range node.Choices {
		ok, err := EvalCondition(ch.Condition, e)
		if err != nil {
			return nil, fmt.Errorf("choice %d condition: %w", k, err)
		}
		if ok {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *Script) offer(d *dialog.Dialogue, name string, node Node, choices []int, e env) error {
	for _, k := range choices {
		ch := node.Choices[k]
		title, err := s.text(ch.Text, e)
		if err != nil {
			return fmt.Errorf("choice %d text: %w", k, err)
		}
		opts := []dialog.ChoiceOption{
			dialog.Enabled(s.requirementsMet(d, ch.Requires)),
			dialog.WithAsset(ch.Asset),
		}
		if ch.Name != "" {
			opts = append(opts, dialog.Named(ch.Name))
		}
		if ch.Repeatable {
			opts = append(opts, dialog.Repeatable())
		}
		d.AddChoice(title, dialog.Resume(name, len(node.Lines)+1+k), opts...)
	}
	return nil
}

func (s *Script) requirementsMet(d *dialog.Dialogue, conds []dialog.ContextCondition) bool {
	for _, c := range conds {
		c.Scope = d.NamedScope(string(c.Scope))
		if !c.Satisfied(d.Context()) {
			return false
		}
	}
	return true
}

func (s *Script) line(l Line, e env) (dialog.Line, error) {
	text, err := s.text(l.Text, e)
	if err != nil {
		return dialog.Line{}, err
	}
	speaker := dialog.SpeakerTarget
	if l.Speaker != nil {
		speaker = *l.Speaker
	}
	duration := float64(dialog.DurationAuto)
	if l.Duration != nil {
		duration = *l.Duration
	}
	return dialog.Line{
		Speaker:    speaker,
		Custom:     l.Custom,
		Text:       text,
		Duration:   duration,
		Expression: l.Expression,
		Effect:     l.Effect,
		VoiceOver:  l.VoiceOver,
	}, nil
}

func (s *Script) text(raw string, e env) (string, error) {
	if key, ok := strings.CutPrefix(raw, "@"); ok && s.loc != nil {
		if t, found := s.loc.Lookup(key); found {
			raw = t
		} else {
			s.logger.Warn("string table key missing", slog.String("key", key))
		}
	}
	return RenderParam(raw, e)
}

func (s *Script) run(d *dialog.Dialogue, actions []Action) error {
	for _, a := range actions {
		if !d.IsActive() {
			return nil
		}
		e := s.env(d)
		p := make(map[string]string, len(a.Params))
		for k, v := range a.Params {
			r, err := RenderParam(v, e)
			if err != nil {
				return fmt.Errorf("action %s param %q: %w", a.Type, k, err)
			}
			p[k] = strings.TrimSpace(r)
		}

		store := d.Context()
		tag := dialog.Tag(p["tag"])
		scope := d.NamedScope(p["scope"])
		switch a.Type {
		case ActionSetContext:
			v, err := intParam(p, "value", 1)
			if err != nil {
				return err
			}
			store.Set(tag, scope, v)
		case ActionIncrementContext:
			delta, err := intParam(p, "delta", 1)
			if err != nil {
				return err
			}
			store.Increment(tag, scope, delta, p["create"] != "false")
		case ActionRemoveContext:
			store.Remove(tag, scope)
		case ActionClearContext:
			store.RemoveAllFor(scope)
		case ActionRoll:
			lo, err := intParam(p, "min", 1)
			if err != nil {
				return err
			}
			hi, err := intParam(p, "max", 100)
			if err != nil {
				return err
			}
			store.MakeRandomRoll(tag, scope, lo, hi)
		case ActionFindSpeaker:
			d.FindCustomSpeaker(tag, p["kind"])
		case ActionEnd:
			d.Deactivate()
		default:
			return fmt.Errorf("unknown action %q", a.Type)
		}
	}
	return nil
}

func intParam(p map[string]string, key string, def int32) (int32, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("param %q: %w", key, err)
	}
	return int32(n), nil
}
