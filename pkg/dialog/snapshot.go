package dialog

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
)

// SnapshotVersion is the current snapshot layout.
const SnapshotVersion = 1

// ErrSnapshotVersion is returned when restoring a snapshot of an unknown
// layout.
var ErrSnapshotVersion = errors.New("unsupported snapshot version")

// Snapshot is the flat, serialisable state of a Manager.
type Snapshot struct {
	Version  int               `json:"version"`
	Context  []ContextEntry    `json:"context,omitempty"`
	Dialogue *DialogueSnapshot `json:"dialogue,omitempty"`
}

// BoxSnapshot is a Box with its speaker stored by ID.
type BoxSnapshot struct {
	Valid      bool         `json:"valid"`
	Text       string       `json:"text,omitempty"`
	SpeakerID  string       `json:"speaker_id,omitempty"`
	Expression Expression   `json:"expression"`
	Effect     Effect       `json:"effect"`
	Remaining  float64      `json:"remaining"`
	Duration   float64      `json:"duration"`
	Resume     Continuation `json:"resume"`
}

// DialogueSnapshot is the state of a running dialogue.
type DialogueSnapshot struct {
	Name                 string         `json:"name"`
	PlayerID             string         `json:"player_id"`
	TargetID             string         `json:"target_id,omitempty"`
	SpeakContext         Tag            `json:"speak_context,omitempty"`
	Activated            bool           `json:"activated"`
	WaitingForActivation bool           `json:"waiting_for_activation,omitempty"`
	Paused               bool           `json:"paused,omitempty"`
	Box                  BoxSnapshot    `json:"box"`
	Choices              []Choice       `json:"choices,omitempty"`
	StartChoices         int            `json:"start_choices,omitempty"`
	Hovered              int            `json:"hovered,omitempty"`
	Visited              []string       `json:"visited,omitempty"`
	CustomSpeakers       map[Tag]string `json:"custom_speakers,omitempty"`
	LastClickedAsset     AssetID        `json:"last_clicked_asset,omitempty"`
	LastClickedChoice    string         `json:"last_clicked_choice,omitempty"`
	MaxChoices           int            `json:"max_choices,omitempty"`
}

// Snapshot captures the context store and the running dialogue.
func (m *Manager) Snapshot() Snapshot {
	s := Snapshot{
		Version: SnapshotVersion,
		Context: m.store.Entries(),
	}
	if d := m.dialogue; d != nil {
		ds := d.snapshot()
		ds.WaitingForActivation = m.waiting
		s.Dialogue = &ds
	}
	return s
}

func (d *Dialogue) snapshot() DialogueSnapshot {
	speakers := make(map[Tag]string, len(d.customSpeakers))
	for tag, ref := range d.customSpeakers {
		if ref.Valid() {
			speakers[tag] = ref.ID()
		}
	}
	return DialogueSnapshot{
		Name:         d.name,
		PlayerID:     d.player.ID(),
		TargetID:     d.target.ID(),
		SpeakContext: d.speakContext,
		Activated:    d.activated,
		Paused:       d.paused,
		Box: BoxSnapshot{
			Valid:      d.box.Valid,
			Text:       d.box.Text,
			SpeakerID:  d.box.Speaker.ID(),
			Expression: d.box.Expression,
			Effect:     d.box.Effect,
			Remaining:  d.box.Remaining,
			Duration:   d.box.Duration,
			Resume:     d.box.Resume,
		},
		Choices:           slices.Clone(d.choices),
		StartChoices:      d.startChoices,
		Hovered:           d.hovered,
		Visited:           slices.Clone(d.visited),
		CustomSpeakers:    speakers,
		LastClickedAsset:  d.lastClickedAsset,
		LastClickedChoice: d.lastClickedChoice,
		MaxChoices:        d.maxChoices,
	}
}

// Restore replaces the manager's state with s. The running dialogue, if any,
// is cleared first. The restored dialogue's script is rebuilt from the
// registry and its OnRestore hook runs; onFinished becomes its completion
// callback.
func (m *Manager) Restore(s Snapshot, onFinished func()) error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("version %d: %w", s.Version, ErrSnapshotVersion)
	}

	var (
		script Script
		err    error
	)
	switch ds := s.Dialogue; {
	case ds == nil:
	case ds.Name == OneLineConversation:
		script = &oneLineScript{}
	default:
		script, err = m.registry.Resolve(ds.Name)
		if err != nil {
			return err
		}
	}

	m.ClearDialogue()
	m.store.Replace(s.Context)
	if s.Dialogue == nil {
		return nil
	}

	ds := s.Dialogue
	d := newDialogue(m, script, ds.Name, m.lookupActor(ds.PlayerID), m.lookupActor(ds.TargetID), ds.SpeakContext, onFinished)
	d.activated = ds.Activated
	d.paused = ds.Paused
	d.box = Box{
		Valid:      ds.Box.Valid,
		Text:       ds.Box.Text,
		Speaker:    Ref(m.lookupActor(ds.Box.SpeakerID)),
		Expression: ds.Box.Expression,
		Effect:     ds.Box.Effect,
		Remaining:  ds.Box.Remaining,
		Duration:   ds.Box.Duration,
		Resume:     ds.Box.Resume,
	}
	d.choices = slices.Clone(ds.Choices)
	d.startChoices = ds.StartChoices
	d.hovered = ds.Hovered
	d.visited = slices.Clone(ds.Visited)
	for _, tag := range slices.Sorted(maps.Keys(ds.CustomSpeakers)) {
		if a := m.lookupActor(ds.CustomSpeakers[tag]); a != nil {
			d.customSpeakers[tag] = Ref(a)
		}
	}
	d.lastClickedAsset = ds.LastClickedAsset
	d.lastClickedChoice = ds.LastClickedChoice
	d.maxChoices = ds.MaxChoices

	m.dialogue = d
	m.waiting = ds.WaitingForActivation
	m.ticking = true
	m.queueSpeakerUpdate()
	d.Restore()
	return nil
}

func (m *Manager) lookupActor(id string) Actor {
	if id == "" {
		return nil
	}
	if m.world == nil {
		m.logger.Warn("no world to restore actor", slog.String("actor_id", id))
		return nil
	}
	a, ok := m.world.Actor(id)
	if !ok {
		m.logger.Warn("actor missing on restore", slog.String("actor_id", id))
		return nil
	}
	return a
}
