package savegame

import (
	"encoding/json"
	"errors"

	"github.com/pitabwire/frame/data"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
)

// SaveSlot is the gorm model behind GormStore.
type SaveSlot struct {
	data.BaseModel

	PlayerID     string       `gorm:"type:varchar(255);not null;uniqueIndex:idx_save_slot_key" json:"player_id"`
	Slot         string       `gorm:"type:varchar(255);not null;uniqueIndex:idx_save_slot_key" json:"slot"`
	Conversation string       `gorm:"type:varchar(255)"                                        json:"conversation"`
	Snapshot     SnapshotJSON `gorm:"type:jsonb;not null"                                      json:"snapshot"`
}

func (SaveSlot) TableName() string { return "save_slots" }

// SnapshotJSON stores a dialog.Snapshot as a JSON column.
type SnapshotJSON dialog.Snapshot

func (s SnapshotJSON) Value() (any, error) {
	return json.Marshal(dialog.Snapshot(s))
}

func (s *SnapshotJSON) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	case nil:
		*s = SnapshotJSON{}
		return nil
	default:
		return errors.New("snapshot column has unsupported type")
	}
	var snap dialog.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return err
	}
	*s = SnapshotJSON(snap)
	return nil
}
