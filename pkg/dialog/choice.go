package dialog

import (
	"cmp"
	"slices"
)

// AssetID references data a choice previews, such as an item tooltip.
type AssetID string

// Choice is one selectable branch. An empty Name is never marked visited.
type Choice struct {
	Title         string       `json:"title"`
	Enabled       bool         `json:"enabled"`
	Name          string       `json:"name,omitempty"`
	OriginalIndex int          `json:"original_index"`
	Asset         AssetID      `json:"asset,omitempty"`
	Resume        Continuation `json:"resume"`
}

// ChoiceOption customises AddChoice.
type ChoiceOption func(*choiceOptions)

type choiceOptions struct {
	disabled         bool
	name             string
	disableIfVisited bool
	asset            AssetID
}

// Disabled shows the choice but rejects selecting it.
func Disabled() ChoiceOption { return func(o *choiceOptions) { o.disabled = true } }

// Enabled sets whether the choice can be selected.
func Enabled(ok bool) ChoiceOption { return func(o *choiceOptions) { o.disabled = !ok } }

// Named overrides the synthesised choice identifier.
func Named(name string) ChoiceOption { return func(o *choiceOptions) { o.name = name } }

// Repeatable keeps the choice out of visited tracking so it is always
// offered as new.
func Repeatable() ChoiceOption { return func(o *choiceOptions) { o.disableIfVisited = true } }

// WithAsset attaches a previewable asset.
func WithAsset(a AssetID) ChoiceOption { return func(o *choiceOptions) { o.asset = a } }

// sortChoices puts unvisited choices first, each group in insertion order.
func sortChoices(choices []Choice, visited func(name string) bool) {
	slices.SortStableFunc(choices, func(a, b Choice) int {
		av, bv := visited(a.Name), visited(b.Name)
		if av != bv {
			if av {
				return 1
			}
			return -1
		}
		return cmp.Compare(a.OriginalIndex, b.OriginalIndex)
	})
}
