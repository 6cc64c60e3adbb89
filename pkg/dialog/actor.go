package dialog

import (
	"math"
	"math/rand/v2"
)

// Vec3 is a world position.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Dist returns the straight-line distance between two positions.
func (v Vec3) Dist(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Actor is a world entity that can take part in a conversation.
// Valid reports false once the entity no longer exists.
type Actor interface {
	ID() string
	Kind() string
	Location() Vec3
	Valid() bool
}

// Scoped is implemented by actors that keep their context under a tag
// other than their ID.
type Scoped interface {
	ContextScope() Tag
}

// World resolves actors for speaker lookup and snapshot restore.
type World interface {
	ActorsOfKind(kind string) []Actor
	Actor(id string) (Actor, bool)
}

// Roller draws a uniformly random integer in [lo, hi].
type Roller interface {
	Roll(lo, hi int32) int32
}

type defaultRoller struct{}

func (defaultRoller) Roll(lo, hi int32) int32 {
	if hi <= lo {
		return lo
	}
	return lo + rand.Int32N(hi-lo+1)
}

// ActorRef is a checked handle to an actor. Get fails once the referent is
// gone, so a stale reference is never dereferenced.
type ActorRef struct {
	a Actor
}

// Ref wraps an actor in a checked handle. A nil actor yields an empty ref.
func Ref(a Actor) ActorRef { return ActorRef{a: a} }

// Get returns the actor if it is still valid.
func (r ActorRef) Get() (Actor, bool) {
	if r.a == nil || !r.a.Valid() {
		return nil, false
	}
	return r.a, true
}

// Actor returns the actor or nil.
func (r ActorRef) Actor() Actor {
	a, _ := r.Get()
	return a
}

// ID returns the referent's ID even if it has become invalid.
func (r ActorRef) ID() string {
	if r.a == nil {
		return ""
	}
	return r.a.ID()
}

// Valid reports whether the referent still exists.
func (r ActorRef) Valid() bool {
	_, ok := r.Get()
	return ok
}

// Is reports whether the ref points at the given actor.
func (r ActorRef) Is(a Actor) bool {
	return SameActor(r.Actor(), a)
}

// SameActor compares actors by identity. Two nil actors are the same.
func SameActor(a, b Actor) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID() == b.ID()
}

// ScopeOf returns the context scope used for an actor.
func ScopeOf(a Actor) Tag {
	if a == nil {
		return GlobalScope
	}
	if s, ok := a.(Scoped); ok {
		return s.ContextScope()
	}
	return Tag(a.ID())
}
