// Package world is an in-memory actor registry for hosts that have no
// engine scene graph of their own.
package world

import (
	"cmp"
	"fmt"
	"os"
	"slices"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
)

// Actor is a placed entity. It stays valid until despawned.
type Actor struct {
	id    string
	kind  string
	scope dialog.Tag

	mu    sync.RWMutex
	pos   dialog.Vec3
	alive bool
}

func (a *Actor) ID() string   { return a.id }
func (a *Actor) Kind() string { return a.kind }

func (a *Actor) Location() dialog.Vec3 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.pos
}

func (a *Actor) Valid() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.alive
}

// ContextScope is the scope tag set at spawn, or the actor ID.
func (a *Actor) ContextScope() dialog.Tag {
	if a.scope.IsValid() {
		return a.scope
	}
	return dialog.Tag(a.id)
}

// MoveTo places the actor at pos.
func (a *Actor) MoveTo(pos dialog.Vec3) {
	a.mu.Lock()
	a.pos = pos
	a.mu.Unlock()
}

func (a *Actor) kill() {
	a.mu.Lock()
	a.alive = false
	a.mu.Unlock()
}

// World holds actors by ID.
type World struct {
	mu     sync.RWMutex
	actors map[string]*Actor
}

// New creates an empty world.
func New() *World {
	return &World{actors: make(map[string]*Actor)}
}

// Spawn places a new actor. An existing actor with the same ID is
// despawned first, so references to it become invalid.
func (w *World) Spawn(id, kind string, pos dialog.Vec3, scope dialog.Tag) *Actor {
	a := &Actor{id: id, kind: kind, scope: scope, pos: pos, alive: true}
	w.mu.Lock()
	old := w.actors[id]
	w.actors[id] = a
	w.mu.Unlock()
	if old != nil {
		old.kill()
	}
	return a
}

// Despawn removes an actor and invalidates every reference to it.
func (w *World) Despawn(id string) bool {
	w.mu.Lock()
	a, ok := w.actors[id]
	delete(w.actors, id)
	w.mu.Unlock()
	if ok {
		a.kill()
	}
	return ok
}

// Get returns the concrete actor.
func (w *World) Get(id string) (*Actor, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	a, ok := w.actors[id]
	return a, ok
}

// Actor implements dialog.World.
func (w *World) Actor(id string) (dialog.Actor, bool) {
	a, ok := w.Get(id)
	if !ok {
		return nil, false
	}
	return a, true
}

// ActorsOfKind implements dialog.World. Actors are returned in ID order.
func (w *World) ActorsOfKind(kind string) []dialog.Actor {
	var out []dialog.Actor
	for _, a := range w.All() {
		if a.kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// All lists actors in ID order.
func (w *World) All() []*Actor {
	w.mu.RLock()
	out := make([]*Actor, 0, len(w.actors))
	for _, a := range w.actors {
		out = append(out, a)
	}
	w.mu.RUnlock()
	slices.SortFunc(out, func(a, b *Actor) int { return cmp.Compare(a.id, b.id) })
	return out
}

// File is the YAML layout of a world file.
type File struct {
	Actors  []ActorSpec           `yaml:"actors"`
	Context []dialog.ContextEntry `yaml:"context"`
}

// ActorSpec describes one actor in a world file.
type ActorSpec struct {
	ID       string      `yaml:"id"`
	Kind     string      `yaml:"kind"`
	Scope    dialog.Tag  `yaml:"scope"`
	Position dialog.Vec3 `yaml:"position"`
}

// Parse builds a world from YAML and returns the initial context entries
// it declares.
func Parse(data []byte) (*World, []dialog.ContextEntry, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, nil, fmt.Errorf("parse world YAML: %w", err)
	}
	w := New()
	for i, s := range f.Actors {
		if s.ID == "" || s.Kind == "" {
			return nil, nil, fmt.Errorf("actor %d: id and kind are required", i)
		}
		if _, dup := w.Get(s.ID); dup {
			return nil, nil, fmt.Errorf("actor %q declared twice", s.ID)
		}
		w.Spawn(s.ID, s.Kind, s.Position, s.Scope)
	}
	return w, f.Context, nil
}

// Load reads a world file.
func Load(path string) (*World, []dialog.ContextEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read world %q: %w", path, err)
	}
	return Parse(data)
}
