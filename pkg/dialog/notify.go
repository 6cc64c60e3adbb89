package dialog

import (
	"slices"
	"sync"
)

type listener[F any] struct {
	id int
	fn F
}

// hub is an ordered set of subscribers. Callbacks run without the lock held
// so they may subscribe or unsubscribe.
type hub[F any] struct {
	mu   sync.Mutex
	next int
	ls   []listener[F]
}

func (h *hub[F]) add(fn F) func() {
	h.mu.Lock()
	h.next++
	id := h.next
	h.ls = append(h.ls, listener[F]{id: id, fn: fn})
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		h.ls = slices.DeleteFunc(h.ls, func(l listener[F]) bool { return l.id == id })
		h.mu.Unlock()
	}
}

func (h *hub[F]) each(call func(F)) {
	h.mu.Lock()
	ls := slices.Clone(h.ls)
	h.mu.Unlock()
	for _, l := range ls {
		call(l.fn)
	}
}

// OnDialogueUpdated is called at most once per tick after the visible state
// changed, and immediately on hover. The returned func unsubscribes.
func (m *Manager) OnDialogueUpdated(fn func()) func() { return m.updated.add(fn) }

// OnSpeakerChanged is called when the attributed speaker differs from the
// previous tick. Either side may be nil.
func (m *Manager) OnSpeakerChanged(fn func(prev, cur Actor)) func() {
	return m.speakerChanged.add(fn)
}

// OnExpressionChanged is called when a valid speaker's expression, or the
// speaker itself, changed since the previous tick.
func (m *Manager) OnExpressionChanged(fn func(speaker Actor, expression Expression)) func() {
	return m.expressionChanged.add(fn)
}

// OnContextChanged is called for every change to the global context scope.
func (m *Manager) OnContextChanged(fn func(tag Tag, value int32)) func() {
	return m.contextChanged.add(fn)
}

// OnAssetHovered is called when the previewed choice asset changes. An
// empty asset means nothing is hovered.
func (m *Manager) OnAssetHovered(fn func(asset AssetID)) func() {
	return m.assetHovered.add(fn)
}

// OnLineSpoken is called for every line shown. speaker is nil for the
// narrator.
func (m *Manager) OnLineSpoken(fn func(speaker Actor, text string)) func() {
	return m.lineSpoken.add(fn)
}

// OnVoiceOver is called when a line carries a voice-over tag.
func (m *Manager) OnVoiceOver(fn func(speaker Actor, voiceOver Tag, expression Expression)) func() {
	return m.voiceOver.add(fn)
}

// OnChoiceSelected is called after a choice was accepted, before its
// continuation runs.
func (m *Manager) OnChoiceSelected(fn func(c Choice)) func() {
	return m.choiceSelected.add(fn)
}

// OnDialogueStarted is called when a conversation is constructed.
func (m *Manager) OnDialogueStarted(fn func(name string)) func() {
	return m.started.add(fn)
}

// OnDialogueEnded is called when a conversation deactivates, before its
// completion callback.
func (m *Manager) OnDialogueEnded(fn func(name string)) func() {
	return m.ended.add(fn)
}
