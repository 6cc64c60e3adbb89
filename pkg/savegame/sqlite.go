package savegame

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
	"github.com/voicetyped/dialoguekit/pkg/savegame/migrations"
)

// SQLiteStore keeps save slots in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// OpenSQLite opens or creates the database at path and applies the
// schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := ApplyMigrations(ctx, db, migrations.FS, "."); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, playerID, slot string, snap *dialog.Snapshot) error {
	if err := validateKey(playerID, slot); err != nil {
		return err
	}
	raw, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO save_slots (player_id, slot, conversation, snapshot, saved_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (player_id, slot) DO UPDATE SET
    conversation = excluded.conversation,
    snapshot = excluded.snapshot,
    saved_at = excluded.saved_at`,
		playerID, slot, conversationOf(snap), raw, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save slot %q: %w", slot, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, playerID, slot string) (*dialog.Snapshot, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT snapshot FROM save_slots WHERE player_id = ? AND slot = ?", playerID, slot,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("slot %q: %w", slot, ErrSlotNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load slot %q: %w", slot, err)
	}
	return decodeSnapshot(raw)
}

func (s *SQLiteStore) Delete(ctx context.Context, playerID, slot string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM save_slots WHERE player_id = ? AND slot = ?", playerID, slot)
	if err != nil {
		return fmt.Errorf("delete slot %q: %w", slot, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("slot %q: %w", slot, ErrSlotNotFound)
	}
	return nil
}

// List returns the player's slots, most recently saved first.
func (s *SQLiteStore) List(ctx context.Context, playerID string) ([]SlotInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT slot, conversation, saved_at FROM save_slots WHERE player_id = ? ORDER BY saved_at DESC, slot",
		playerID)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer rows.Close()

	var out []SlotInfo
	for rows.Next() {
		info := SlotInfo{PlayerID: playerID}
		var savedAt int64
		if err := rows.Scan(&info.Slot, &info.Conversation, &savedAt); err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		info.SavedAt = time.UnixMilli(savedAt).UTC()
		out = append(out, info)
	}
	return out, rows.Err()
}
