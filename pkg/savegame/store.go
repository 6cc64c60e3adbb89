// Package savegame persists dialogue snapshots in named slots per player.
package savegame

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
)

// ErrSlotNotFound is returned when a slot has never been saved or was
// deleted.
var ErrSlotNotFound = errors.New("save slot not found")

// ErrInvalidKey is returned when the player id or slot name is empty.
var ErrInvalidKey = errors.New("invalid save key")

// SlotInfo describes a stored slot without its snapshot.
type SlotInfo struct {
	PlayerID     string    `json:"player_id"`
	Slot         string    `json:"slot"`
	Conversation string    `json:"conversation,omitempty"`
	SavedAt      time.Time `json:"saved_at"`
}

// Store saves and loads snapshots. Saving to an existing slot overwrites
// it.
type Store interface {
	Save(ctx context.Context, playerID, slot string, s *dialog.Snapshot) error
	Load(ctx context.Context, playerID, slot string) (*dialog.Snapshot, error)
	Delete(ctx context.Context, playerID, slot string) error
	List(ctx context.Context, playerID string) ([]SlotInfo, error)
}

func conversationOf(s *dialog.Snapshot) string {
	if s == nil || s.Dialogue == nil {
		return ""
	}
	return s.Dialogue.Name
}

func encodeSnapshot(s *dialog.Snapshot) (string, error) {
	if s == nil {
		return "", errors.New("snapshot is required")
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}
	return string(raw), nil
}

func decodeSnapshot(raw string) (*dialog.Snapshot, error) {
	var s dialog.Snapshot
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &s, nil
}

func validateKey(playerID, slot string) error {
	if playerID == "" {
		return fmt.Errorf("player id is required: %w", ErrInvalidKey)
	}
	if slot == "" {
		return fmt.Errorf("slot name is required: %w", ErrInvalidKey)
	}
	return nil
}
