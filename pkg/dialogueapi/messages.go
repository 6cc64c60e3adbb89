// Package dialogueapi defines the DialogueService wire messages, procedure
// names, the handler mount and a typed client. Messages are plain structs
// carried by a JSON codec.
package dialogueapi

import (
	"github.com/voicetyped/dialoguekit/pkg/dialog"
	"github.com/voicetyped/dialoguekit/pkg/events"
)

// SessionRef addresses one session. Request messages embed it.
type SessionRef struct {
	SessionID string `json:"session_id"`
}

func (r SessionRef) GetSessionID() string { return r.SessionID }

type StartSessionRequest struct {
	// SessionID is optional; the server generates one when empty.
	SessionID string `json:"session_id,omitempty"`
	PlayerID  string `json:"player_id"`
}

func (r StartSessionRequest) GetSessionID() string { return r.SessionID }

type StartSessionResponse struct {
	SessionID string `json:"session_id"`
	PlayerID  string `json:"player_id"`
}

type EndSessionRequest struct {
	SessionRef
}

type EndSessionResponse struct{}

type StartDialogueRequest struct {
	SessionRef
	Conversation      string     `json:"conversation"`
	TargetID          string     `json:"target_id,omitempty"`
	SpeakContext      dialog.Tag `json:"speak_context,omitempty"`
	WaitForActivation bool       `json:"wait_for_activation,omitempty"`
}

type ActivateRequest struct {
	SessionRef
}

type StartOneLineRequest struct {
	SessionRef
	TargetID   string  `json:"target_id,omitempty"`
	Speaker    string  `json:"speaker,omitempty"`
	Text       string  `json:"text"`
	Duration   float64 `json:"duration,omitempty"`
	Expression string  `json:"expression,omitempty"`
	Override   bool    `json:"override,omitempty"`
}

type SkipRequest struct {
	SessionRef
	All bool `json:"all,omitempty"`
}

type SelectRequest struct {
	SessionRef
	Index int `json:"index"`
	// Hovered selects the highlighted choice and ignores Index.
	Hovered bool `json:"hovered,omitempty"`
}

type HoverRequest struct {
	SessionRef
	Index int `json:"index"`
}

type NavigateRequest struct {
	SessionRef
	Direction int `json:"direction"`
	// Page turns the choice page instead of moving the highlight.
	Page bool `json:"page,omitempty"`
}

type TogglePauseRequest struct {
	SessionRef
}

type GetStateRequest struct {
	SessionRef
}

// StateResponse answers every input RPC. Accepted reports whether the
// input had an effect.
type StateResponse struct {
	Accepted bool                `json:"accepted"`
	View     events.DialogueView `json:"view"`
}

type SetContextRequest struct {
	SessionRef
	Tag dialog.Tag `json:"tag"`
	// Scope is "global", "player", "target" or a raw scope tag.
	Scope  string `json:"scope,omitempty"`
	Value  int32  `json:"value"`
	Remove bool   `json:"remove,omitempty"`
}

type GetContextRequest struct {
	SessionRef
	Tag   dialog.Tag `json:"tag"`
	Scope string     `json:"scope,omitempty"`
}

type ContextResponse struct {
	Tag     dialog.Tag `json:"tag"`
	Scope   dialog.Tag `json:"scope"`
	Value   int32      `json:"value"`
	Present bool       `json:"present"`
}

type SaveRequest struct {
	SessionRef
	Slot string `json:"slot"`
}

type SaveResponse struct {
	Slot         string `json:"slot"`
	Conversation string `json:"conversation,omitempty"`
}

type LoadRequest struct {
	SessionRef
	Slot string `json:"slot"`
}

type ListSlotsRequest struct {
	SessionRef
}

type SlotInfo struct {
	Slot         string `json:"slot"`
	Conversation string `json:"conversation,omitempty"`
	SavedAt      string `json:"saved_at"`
}

type ListSlotsResponse struct {
	Slots []SlotInfo `json:"slots"`
}

type ListConversationsRequest struct{}

type ListConversationsResponse struct {
	Conversations []string `json:"conversations"`
}

type WatchEventsRequest struct {
	SessionRef
}
