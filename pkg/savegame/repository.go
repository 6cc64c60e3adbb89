package savegame

import (
	"context"
	"errors"
	"fmt"

	"github.com/pitabwire/frame/datastore/pool"
	"gorm.io/gorm"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
)

// GormStore keeps save slots in the service datastore.
type GormStore struct {
	pool pool.Pool
}

var _ Store = (*GormStore)(nil)

// NewGormStore creates a store over the given datastore pool.
func NewGormStore(pool pool.Pool) *GormStore {
	return &GormStore{pool: pool}
}

func (r *GormStore) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

// Migrate creates or updates the save_slots table.
func (r *GormStore) Migrate(ctx context.Context) error {
	return r.db(ctx, false).AutoMigrate(&SaveSlot{})
}

func (r *GormStore) Save(ctx context.Context, playerID, slot string, snap *dialog.Snapshot) error {
	if err := validateKey(playerID, slot); err != nil {
		return err
	}
	if snap == nil {
		return errors.New("snapshot is required")
	}

	var row SaveSlot
	err := r.db(ctx, true).Where("player_id = ? AND slot = ?", playerID, slot).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = SaveSlot{PlayerID: playerID, Slot: slot}
	case err != nil:
		return fmt.Errorf("find slot %q: %w", slot, err)
	}
	row.Conversation = conversationOf(snap)
	row.Snapshot = SnapshotJSON(*snap)
	return r.db(ctx, false).Save(&row).Error
}

func (r *GormStore) Load(ctx context.Context, playerID, slot string) (*dialog.Snapshot, error) {
	var row SaveSlot
	err := r.db(ctx, true).Where("player_id = ? AND slot = ?", playerID, slot).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("slot %q: %w", slot, ErrSlotNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load slot %q: %w", slot, err)
	}
	snap := dialog.Snapshot(row.Snapshot)
	return &snap, nil
}

// Delete soft-deletes a slot.
func (r *GormStore) Delete(ctx context.Context, playerID, slot string) error {
	res := r.db(ctx, false).Where("player_id = ? AND slot = ?", playerID, slot).Delete(&SaveSlot{})
	if res.Error != nil {
		return fmt.Errorf("delete slot %q: %w", slot, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("slot %q: %w", slot, ErrSlotNotFound)
	}
	return nil
}

// List returns the player's slots, most recently saved first.
func (r *GormStore) List(ctx context.Context, playerID string) ([]SlotInfo, error) {
	var rows []SaveSlot
	err := r.db(ctx, true).
		Select("player_id", "slot", "conversation", "modified_at").
		Where("player_id = ?", playerID).
		Order("modified_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	out := make([]SlotInfo, 0, len(rows))
	for _, row := range rows {
		out = append(out, SlotInfo{
			PlayerID:     row.PlayerID,
			Slot:         row.Slot,
			Conversation: row.Conversation,
			SavedAt:      row.ModifiedAt,
		})
	}
	return out, nil
}
