package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	SessionStarted     EventType = "session.started"
	SessionEnded       EventType = "session.ended"
	DialogueStarted    EventType = "dialogue.started"
	DialogueEnded      EventType = "dialogue.ended"
	DialogueUpdated    EventType = "dialogue.updated"
	SpeakerChanged     EventType = "speaker.changed"
	ExpressionChanged  EventType = "expression.changed"
	ContextChanged     EventType = "context.changed"
	AssetHovered       EventType = "asset.hovered"
	LineSpoken         EventType = "line.spoken"
	VoiceOverRequested EventType = "voiceover.requested"
	ChoiceSelected     EventType = "choice.selected"
	GameSaved          EventType = "game.saved"
	GameLoaded         EventType = "game.loaded"
	SystemError        EventType = "error"
)

// Envelope is the standard event wrapper published to the event bus.
type Envelope struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	SessionID string            `json:"session_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// SessionData is the payload for session.started and session.ended events.
type SessionData struct {
	PlayerID string `json:"player_id"`
	Reason   string `json:"reason,omitempty"`
}

// DialogueData is the payload for dialogue.started and dialogue.ended events.
type DialogueData struct {
	Conversation string `json:"conversation"`
	PlayerID     string `json:"player_id,omitempty"`
	TargetID     string `json:"target_id,omitempty"`
	OneLine      bool   `json:"one_line,omitempty"`
}

// ChoiceView is one choice as shown to a client.
type ChoiceView struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	Enabled bool   `json:"enabled"`
	Visited bool   `json:"visited"`
	Asset   string `json:"asset,omitempty"`
}

// DialogueView is the presentation state of a running dialogue. It is the
// payload for dialogue.updated events.
type DialogueView struct {
	Active       bool         `json:"active"`
	Conversation string       `json:"conversation,omitempty"`
	State        string       `json:"state"`
	Text         string       `json:"text,omitempty"`
	SpeakerID    string       `json:"speaker_id,omitempty"`
	SpeakerName  string       `json:"speaker_name,omitempty"`
	IsPlayer     bool         `json:"is_player,omitempty"`
	Expression   string       `json:"expression,omitempty"`
	Effect       string       `json:"effect,omitempty"`
	TimeFraction float64      `json:"time_fraction,omitempty"`
	Choices      []ChoiceView `json:"choices,omitempty"`
	Hovered      int          `json:"hovered"`
	PageStart    int          `json:"page_start"`
	PageSize     int          `json:"page_size"`
	MorePrev     bool         `json:"more_prev,omitempty"`
	MoreNext     bool         `json:"more_next,omitempty"`
}

// SpeakerChangedData is the payload for speaker.changed events.
type SpeakerChangedData struct {
	PreviousID string `json:"previous_id,omitempty"`
	CurrentID  string `json:"current_id,omitempty"`
}

// ExpressionChangedData is the payload for expression.changed events.
type ExpressionChangedData struct {
	SpeakerID  string `json:"speaker_id"`
	Expression string `json:"expression"`
}

// ContextChangedData is the payload for context.changed events.
type ContextChangedData struct {
	Tag   string `json:"tag"`
	Value int32  `json:"value"`
}

// AssetHoveredData is the payload for asset.hovered events.
type AssetHoveredData struct {
	Asset string `json:"asset"`
}

// LineSpokenData is the payload for line.spoken events.
type LineSpokenData struct {
	SpeakerID string `json:"speaker_id,omitempty"`
	Text      string `json:"text"`
}

// VoiceOverData is the payload for voiceover.requested events.
type VoiceOverData struct {
	SpeakerID  string `json:"speaker_id,omitempty"`
	VoiceOver  string `json:"voice_over"`
	Expression string `json:"expression"`
}

// ChoiceSelectedData is the payload for choice.selected events.
type ChoiceSelectedData struct {
	Title string `json:"title"`
	Name  string `json:"name,omitempty"`
	Asset string `json:"asset,omitempty"`
}

// SaveData is the payload for game.saved and game.loaded events.
type SaveData struct {
	Slot string `json:"slot"`
}

// ErrorData is the payload for error events.
type ErrorData struct {
	Message string `json:"message"`
}
