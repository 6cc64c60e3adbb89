package dialog

// ContextCondition is an authored check or mutation against one context
// entry. Without UseValue it tests or sets mere existence.
type ContextCondition struct {
	Tag      Tag   `json:"tag"                 yaml:"tag"`
	Scope    Tag   `json:"scope,omitempty"     yaml:"scope,omitempty"`
	UseValue bool  `json:"use_value,omitempty" yaml:"use_value,omitempty"`
	Value    int32 `json:"value,omitempty"     yaml:"value,omitempty"`
}

// HasCondition builds an existence check.
func HasCondition(tag, scope Tag) ContextCondition {
	return ContextCondition{Tag: tag, Scope: scope, Value: 1}
}

// ValueCondition builds an equality check.
func ValueCondition(tag, scope Tag, value int32) ContextCondition {
	return ContextCondition{Tag: tag, Scope: scope, UseValue: true, Value: value}
}

// Satisfied reports whether the store matches. An invalid tag always matches.
func (c ContextCondition) Satisfied(s *ContextStore) bool {
	if !c.Tag.IsValid() {
		return true
	}
	if c.UseValue {
		return s.Get(c.Tag, c.Scope) == c.Value
	}
	return s.Has(c.Tag, c.Scope)
}

// Unsatisfied is the inverse of Satisfied, except that an invalid tag still
// matches.
func (c ContextCondition) Unsatisfied(s *ContextStore) bool {
	if !c.Tag.IsValid() {
		return true
	}
	return !c.Satisfied(s)
}

// Apply makes the condition hold. Existence conditions store 1 only when the
// entry is missing, so an existing counter is left alone.
func (c ContextCondition) Apply(s *ContextStore) bool {
	if c.UseValue {
		return s.Set(c.Tag, c.Scope, c.Value)
	}
	if s.Has(c.Tag, c.Scope) {
		return false
	}
	v := c.Value
	if v == 0 {
		v = 1
	}
	return s.Set(c.Tag, c.Scope, v)
}

// Revoke removes the entry if the condition currently holds.
func (c ContextCondition) Revoke(s *ContextStore) bool {
	if !c.Tag.IsValid() || !c.Satisfied(s) {
		return false
	}
	return s.Remove(c.Tag, c.Scope)
}

// AllSatisfied reports whether every condition holds.
func AllSatisfied(s *ContextStore, conds []ContextCondition) bool {
	for _, c := range conds {
		if !c.Satisfied(s) {
			return false
		}
	}
	return true
}
