package runtime

import (
	"context"

	"github.com/pitabwire/util"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
	"github.com/voicetyped/dialoguekit/pkg/events"
)

// Bridge forwards every manager notification to pub as an envelope for
// sessionID. Notifications fire on the manager's goroutine. The returned
// func detaches the bridge.
func Bridge(ctx context.Context, m *dialog.Manager, pub *events.Publisher, sessionID string) func() {
	emit := func(t events.EventType, data any) {
		if err := pub.Emit(ctx, t, sessionID, data); err != nil {
			util.Log(ctx).WithError(err).WithField("event_type", string(t)).Warn("emit dialogue event")
		}
	}

	cancels := []func(){
		m.OnDialogueStarted(func(name string) {
			data := events.DialogueData{Conversation: name, OneLine: m.InOneLineDialogue()}
			if d := m.Dialogue(); d != nil {
				data.PlayerID = actorID(d.Player())
				data.TargetID = actorID(d.Target())
			}
			emit(events.DialogueStarted, data)
		}),
		m.OnDialogueEnded(func(name string) {
			emit(events.DialogueEnded, events.DialogueData{Conversation: name})
		}),
		m.OnDialogueUpdated(func() {
			emit(events.DialogueUpdated, View(m))
		}),
		m.OnSpeakerChanged(func(prev, cur dialog.Actor) {
			emit(events.SpeakerChanged, events.SpeakerChangedData{PreviousID: actorID(prev), CurrentID: actorID(cur)})
		}),
		m.OnExpressionChanged(func(speaker dialog.Actor, e dialog.Expression) {
			emit(events.ExpressionChanged, events.ExpressionChangedData{SpeakerID: actorID(speaker), Expression: e.String()})
		}),
		m.OnContextChanged(func(tag dialog.Tag, value int32) {
			emit(events.ContextChanged, events.ContextChangedData{Tag: string(tag), Value: value})
		}),
		m.OnAssetHovered(func(a dialog.AssetID) {
			emit(events.AssetHovered, events.AssetHoveredData{Asset: string(a)})
		}),
		m.OnLineSpoken(func(speaker dialog.Actor, text string) {
			emit(events.LineSpoken, events.LineSpokenData{SpeakerID: actorID(speaker), Text: text})
		}),
		m.OnVoiceOver(func(speaker dialog.Actor, vo dialog.Tag, e dialog.Expression) {
			emit(events.VoiceOverRequested, events.VoiceOverData{SpeakerID: actorID(speaker), VoiceOver: string(vo), Expression: e.String()})
		}),
		m.OnChoiceSelected(func(c dialog.Choice) {
			emit(events.ChoiceSelected, events.ChoiceSelectedData{Title: c.Title, Name: c.Name, Asset: string(c.Asset)})
		}),
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func actorID(a dialog.Actor) string {
	if a == nil {
		return ""
	}
	return a.ID()
}
