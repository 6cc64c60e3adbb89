package dialog

import (
	"cmp"
	"slices"
	"sync"
)

// Tag is a hierarchical identifier such as "Context.Quest.MetSmuggler".
// The empty tag is invalid.
type Tag string

// GlobalScope is the scope shared by every actor.
const GlobalScope Tag = ""

// IsValid reports whether the tag names anything.
func (t Tag) IsValid() bool { return t != "" }

// ContextEntry is one stored value, used for bulk import and export.
type ContextEntry struct {
	Tag   Tag   `json:"tag"             yaml:"tag"`
	Scope Tag   `json:"scope,omitempty" yaml:"scope,omitempty"`
	Value int32 `json:"value"           yaml:"value"`
}

// ContextStore holds tag to integer state in independent scopes.
// Changes to the global scope are reported to the change handler.
// All access is thread-safe; read-modify-write operations are atomic.
type ContextStore struct {
	mu       sync.Mutex
	scopes   map[Tag]map[Tag]int32
	onChange func(tag Tag, value int32)
	roller   Roller
}

// ContextOption configures a ContextStore.
type ContextOption func(*ContextStore)

// WithChangeHandler sets the function called after a global value changes.
// Removal reports a value of 0.
func WithChangeHandler(fn func(tag Tag, value int32)) ContextOption {
	return func(s *ContextStore) { s.onChange = fn }
}

// WithContextRoller sets the random source for MakeRandomRoll.
func WithContextRoller(r Roller) ContextOption {
	return func(s *ContextStore) { s.roller = r }
}

// NewContextStore creates an empty store.
func NewContextStore(opts ...ContextOption) *ContextStore {
	s := &ContextStore{
		scopes: make(map[Tag]map[Tag]int32),
		roller: defaultRoller{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type change struct {
	tag   Tag
	value int32
}

func (s *ContextStore) notify(changes ...change) {
	if s.onChange == nil {
		return
	}
	for _, c := range changes {
		s.onChange(c.tag, c.value)
	}
}

// set must be called with mu held.
func (s *ContextStore) set(tag, scope Tag, value int32) (bool, []change) {
	if !tag.IsValid() {
		return false, nil
	}
	m, ok := s.scopes[scope]
	if !ok {
		m = make(map[Tag]int32)
		s.scopes[scope] = m
	}
	if old, ok := m[tag]; ok && old == value {
		return false, nil
	}
	m[tag] = value
	if scope != GlobalScope {
		return true, nil
	}
	return true, []change{{tag, value}}
}

func (s *ContextStore) get(tag, scope Tag) (int32, bool) {
	v, ok := s.scopes[scope][tag]
	return v, ok
}

// Set stores value under tag. It returns false when the tag is invalid or
// the value is unchanged.
func (s *ContextStore) Set(tag, scope Tag, value int32) bool {
	s.mu.Lock()
	ok, changes := s.set(tag, scope, value)
	s.mu.Unlock()
	s.notify(changes...)
	return ok
}

// Remove deletes the entry and reports whether one existed.
func (s *ContextStore) Remove(tag, scope Tag) bool {
	s.mu.Lock()
	m := s.scopes[scope]
	if _, ok := m[tag]; !ok {
		s.mu.Unlock()
		return false
	}
	delete(m, tag)
	s.mu.Unlock()

	if scope == GlobalScope {
		s.notify(change{tag, 0})
	}
	return true
}

// Has reports whether an entry exists.
func (s *ContextStore) Has(tag, scope Tag) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.get(tag, scope)
	return ok
}

// Get returns the stored value, or 0 when absent.
func (s *ContextStore) Get(tag, scope Tag) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.get(tag, scope)
	return v
}

// Increment adds delta to the stored value. A missing entry is created only
// when createIfMissing is set.
func (s *ContextStore) Increment(tag, scope Tag, delta int32, createIfMissing bool) bool {
	s.mu.Lock()
	old, ok := s.get(tag, scope)
	if !ok && !createIfMissing {
		s.mu.Unlock()
		return false
	}
	changed, changes := s.set(tag, scope, old+delta)
	s.mu.Unlock()
	s.notify(changes...)
	return changed
}

// IncreaseToLimit adds delta and, once the total reaches limit, keeps only
// the remainder. It returns how many times the limit was reached and
// whether it was reached at all. A stored value that ends up unchanged is
// not reported as a change even when the limit was reached.
func (s *ContextStore) IncreaseToLimit(tag, scope Tag, delta, limit int32) (int32, bool) {
	if limit < 1 {
		limit = 1
	}
	s.mu.Lock()
	old, _ := s.get(tag, scope)
	total := old + delta
	var (
		quotient int32
		reached  bool
	)
	if total >= limit {
		quotient = total / limit
		total %= limit
		reached = true
	}
	_, changes := s.set(tag, scope, total)
	s.mu.Unlock()
	s.notify(changes...)
	return quotient, reached
}

// MakeRandomRoll returns the recorded roll for tag clamped into [lo, hi],
// or draws, stores and returns a new one.
func (s *ContextStore) MakeRandomRoll(tag, scope Tag, lo, hi int32) int32 {
	if lo > hi {
		lo, hi = hi, lo
	}
	s.mu.Lock()
	if v, ok := s.get(tag, scope); ok {
		s.mu.Unlock()
		return max(lo, min(v, hi))
	}
	roll := s.roller.Roll(lo, hi)
	_, changes := s.set(tag, scope, roll)
	s.mu.Unlock()
	s.notify(changes...)
	return roll
}

// RemoveAllFor clears a scope without notifying and reports whether
// anything was removed.
func (s *ContextStore) RemoveAllFor(scope Tag) bool {
	s.mu.Lock()
	m := s.scopes[scope]
	if len(m) == 0 {
		s.mu.Unlock()
		return false
	}
	delete(s.scopes, scope)
	s.mu.Unlock()
	return true
}

// Entries exports every entry ordered by scope, then tag.
func (s *ContextStore) Entries() []ContextEntry {
	s.mu.Lock()
	out := make([]ContextEntry, 0, len(s.scopes))
	for scope, m := range s.scopes {
		for tag, v := range m {
			out = append(out, ContextEntry{Tag: tag, Scope: scope, Value: v})
		}
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b ContextEntry) int {
		if c := cmp.Compare(a.Scope, b.Scope); c != 0 {
			return c
		}
		return cmp.Compare(a.Tag, b.Tag)
	})
	return out
}

// Import writes entries through Set, so global changes are reported.
func (s *ContextStore) Import(entries []ContextEntry) {
	for _, e := range entries {
		s.Set(e.Tag, e.Scope, e.Value)
	}
}

// Replace discards all state and loads entries without reporting changes.
func (s *ContextStore) Replace(entries []ContextEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes = make(map[Tag]map[Tag]int32)
	for _, e := range entries {
		s.set(e.Tag, e.Scope, e.Value)
	}
}

// Scope returns a view of the store bound to one scope.
func (s *ContextStore) Scope(scope Tag) ScopedContext {
	return ScopedContext{store: s, scope: scope}
}

// ScopedContext is a ContextStore view fixed to one scope.
type ScopedContext struct {
	store *ContextStore
	scope Tag
}

func (c ScopedContext) Scope() Tag { return c.scope }

func (c ScopedContext) Set(tag Tag, value int32) bool { return c.store.Set(tag, c.scope, value) }

func (c ScopedContext) Remove(tag Tag) bool { return c.store.Remove(tag, c.scope) }

func (c ScopedContext) Has(tag Tag) bool { return c.store.Has(tag, c.scope) }

func (c ScopedContext) Get(tag Tag) int32 { return c.store.Get(tag, c.scope) }

func (c ScopedContext) RemoveAll() bool { return c.store.RemoveAllFor(c.scope) }

func (c ScopedContext) Roll(tag Tag, lo, hi int32) int32 {
	return c.store.MakeRandomRoll(tag, c.scope, lo, hi)
}

func (c ScopedContext) Increment(tag Tag, delta int32, createIfMissing bool) bool {
	return c.store.Increment(tag, c.scope, delta, createIfMissing)
}

func (c ScopedContext) IncreaseToLimit(tag Tag, delta, limit int32) (int32, bool) {
	return c.store.IncreaseToLimit(tag, c.scope, delta, limit)
}
