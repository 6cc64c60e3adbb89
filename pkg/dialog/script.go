package dialog

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
)

var (
	// ErrResumePointNotFound is returned by Script.Resume when the
	// continuation names a point the script does not have.
	ErrResumePointNotFound = errors.New("resume point not found")
	// ErrUnknownConversation is returned when no factory is registered.
	ErrUnknownConversation = errors.New("unknown conversation")
	// ErrInvalidPlayer is returned when a dialogue is started without a
	// valid player actor.
	ErrInvalidPlayer = errors.New("invalid player actor")
	// ErrNoDialogue is returned when an operation needs an active dialogue.
	ErrNoDialogue = errors.New("no active dialogue")
)

// LevelFatal marks failures that end a conversation without ending the
// process.
const LevelFatal = slog.LevelError + 4

// Continuation is a resume handle into a script: the point to re-enter and
// which output of that point to take. The zero value means no continuation.
type Continuation struct {
	Point  string `json:"point,omitempty"  yaml:"point,omitempty"`
	Output int    `json:"output,omitempty" yaml:"output,omitempty"`
}

// Resume builds a continuation.
func Resume(point string, output int) Continuation {
	return Continuation{Point: point, Output: output}
}

// IsValid reports whether the continuation leads anywhere.
func (c Continuation) IsValid() bool { return c.Point != "" && c.Output >= 0 }

// Name is the stable choice identifier derived from the continuation.
func (c Continuation) Name() string { return fmt.Sprintf("%s_%d", c.Point, c.Output) }

func (c Continuation) String() string {
	if !c.IsValid() {
		return "<none>"
	}
	return c.Name()
}

// Script is the authored logic behind a conversation. The Dialogue calls the
// lifecycle hooks and re-enters the script through Resume.
type Script interface {
	OnActivate(d *Dialogue)
	OnDeactivate(d *Dialogue)
	OnRestore(d *Dialogue)
	OnUpdate(d *Dialogue, dt float64)
	// Resume continues at c. It returns an error wrapping
	// ErrResumePointNotFound when c cannot be resolved.
	Resume(d *Dialogue, c Continuation) error
}

// VoiceOverPlayer is implemented by scripts that handle voice-over for the
// lines they show.
type VoiceOverPlayer interface {
	PlayVoiceOver(d *Dialogue, speaker Actor, voiceOver Tag, expression Expression)
}

// ChoiceLimiter is implemented by scripts that override how many choices
// are visible per page. Non-positive values keep the manager default.
type ChoiceLimiter interface {
	MaxChoices() int
}

// BaseScript provides no-op hooks for embedding. Its OnActivate ends the
// conversation immediately.
type BaseScript struct{}

func (BaseScript) OnActivate(d *Dialogue) { d.Deactivate() }

func (BaseScript) OnDeactivate(*Dialogue) {}

func (BaseScript) OnRestore(*Dialogue) {}

func (BaseScript) OnUpdate(*Dialogue, float64) {}

func (BaseScript) Resume(_ *Dialogue, c Continuation) error {
	return fmt.Errorf("%s: %w", c, ErrResumePointNotFound)
}

// FuncScript is a conversation written as Go closures. Points maps resume
// point names to handlers that receive the output index.
type FuncScript struct {
	Activate   func(d *Dialogue)
	Deactivate func(d *Dialogue)
	Restore    func(d *Dialogue)
	Update     func(d *Dialogue, dt float64)
	Points     map[string]func(d *Dialogue, output int)
}

func (s *FuncScript) OnActivate(d *Dialogue) {
	if s.Activate == nil {
		d.Deactivate()
		return
	}
	s.Activate(d)
}

func (s *FuncScript) OnDeactivate(d *Dialogue) {
	if s.Deactivate != nil {
		s.Deactivate(d)
	}
}

func (s *FuncScript) OnRestore(d *Dialogue) {
	if s.Restore != nil {
		s.Restore(d)
	}
}

func (s *FuncScript) OnUpdate(d *Dialogue, dt float64) {
	if s.Update != nil {
		s.Update(d, dt)
	}
}

func (s *FuncScript) Resume(d *Dialogue, c Continuation) error {
	fn, ok := s.Points[c.Point]
	if !ok || fn == nil {
		return fmt.Errorf("%s: %w", c, ErrResumePointNotFound)
	}
	fn(d, c.Output)
	return nil
}

// Factory builds a fresh Script for one conversation run.
type Factory func() (Script, error)

// Registry maps conversation IDs to script factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for name.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	r.factories[name] = f
	r.mu.Unlock()
}

// Unregister removes name.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	delete(r.factories, name)
	r.mu.Unlock()
}

// Resolve builds a new script for name.
func (r *Registry) Resolve(name string) (Script, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownConversation)
	}
	s, err := f()
	if err != nil {
		return nil, fmt.Errorf("build conversation %q: %w", name, err)
	}
	return s, nil
}

// Names lists registered conversations in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}
