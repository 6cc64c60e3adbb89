package savegame

import (
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

func TestApplyMigrationsOnce(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	fsys := fstest.MapFS{
		"001_init.sql":  {Data: []byte("-- +migrate Up\nCREATE TABLE t (id INTEGER);\n-- +migrate Down\nDROP TABLE t;\n")},
		"002_seed.sql":  {Data: []byte("INSERT INTO t (id) VALUES (1);")},
		"README.md":     {Data: []byte("ignored")},
		"003_empty.sql": {Data: []byte("-- +migrate Up\n-- +migrate Down\nDROP TABLE t;")},
	}
	for range 2 {
		if err := ApplyMigrations(t.Context(), db, fsys, ""); err != nil {
			t.Fatalf("ApplyMigrations: %v", err)
		}
	}

	var rows int
	if err := db.QueryRow("SELECT COUNT(*) FROM t").Scan(&rows); err != nil {
		t.Fatalf("count: %v", err)
	}
	if rows != 1 {
		t.Errorf("seed applied %d times, want 1", rows)
	}
}

func TestExtractUpMigration(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"CREATE TABLE a;", "CREATE TABLE a;"},
		{"-- +migrate Up\nA;\n-- +migrate Down\nB;", "\nA;\n"},
		{"-- +migrate Up\nA;", "\nA;"},
	}
	for _, tt := range tests {
		if got := ExtractUpMigration(tt.in); got != tt.want {
			t.Errorf("ExtractUpMigration(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestApplyMigrationsNilDB(t *testing.T) {
	if err := ApplyMigrations(t.Context(), nil, fstest.MapFS{}, ""); err == nil {
		t.Error("expected error for nil db")
	}
}
