package runtime

import (
	"github.com/voicetyped/dialoguekit/pkg/dialog"
	"github.com/voicetyped/dialoguekit/pkg/events"
)

// View renders the manager's presentation state. It must be called on the
// goroutine that owns m.
func View(m *dialog.Manager) events.DialogueView {
	d := m.Dialogue()
	if d == nil {
		return events.DialogueView{State: dialog.StateInactive.String(), Hovered: -1}
	}

	v := events.DialogueView{
		Active:       true,
		Conversation: d.Name(),
		State:        d.State().String(),
		Text:         d.Text(),
		SpeakerName:  m.SpeakerName(),
		IsPlayer:     m.IsSpeakerPlayer(),
		Expression:   d.Expression().String(),
		Effect:       d.Effect().String(),
		Hovered:      d.HoveredOption(),
		PageStart:    d.PageStart(),
		PageSize:     m.MaxVisibleChoices(),
		MorePrev:     d.HasMorePages(-1),
		MoreNext:     d.HasMorePages(1),
	}
	if s := d.Speaker(); s != nil {
		v.SpeakerID = s.ID()
	}
	if d.HasDuration() {
		v.TimeFraction = d.TimeFraction()
	}
	for i, c := range d.Choices() {
		v.Choices = append(v.Choices, events.ChoiceView{
			Index:   i,
			Title:   c.Title,
			Enabled: c.Enabled,
			Visited: d.HasVisitedChoice(i),
			Asset:   string(c.Asset),
		})
	}
	return v
}
