package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/text/language"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
)

func TestPacingDefaultsMatchSettings(t *testing.T) {
	var p Pacing
	if err := env.Parse(&p); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got, want := p.Settings(), dialog.DefaultSettings(); got != want {
		t.Errorf("settings = %+v, want %+v", got, want)
	}
}

func TestDialogueConfigEnv(t *testing.T) {
	t.Setenv("SESSION_TTL", "90s")
	t.Setenv("DIALOGUE_MAX_CHOICES", "6")
	t.Setenv("SCRIPT_DIR", "/srv/conversations")

	var cfg DialogueConfig
	if err := env.Parse(&cfg); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.SessionTTL != 90*time.Second {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL)
	}
	if cfg.Settings().MaxChoices != 6 {
		t.Errorf("MaxChoices = %d", cfg.Settings().MaxChoices)
	}
	if cfg.ScriptDir != "/srv/conversations" || cfg.TickRateHz != 60 || !cfg.WatchScripts {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadPlayerConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "PLAYER_ID=from-file\nCONVERSATION=tavern\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PLAYER_ID", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("CONVERSATION") })

	cfg, err := LoadPlayerConfig(path, filepath.Join(dir, "missing.env"))
	if err != nil {
		t.Fatalf("LoadPlayerConfig: %v", err)
	}
	if cfg.PlayerID != "from-env" {
		t.Errorf("PlayerID = %q, environment should win", cfg.PlayerID)
	}
	if cfg.Conversation != "tavern" {
		t.Errorf("Conversation = %q", cfg.Conversation)
	}
	if cfg.SaveSlot != "auto" || cfg.SaveDBPath != "./saves.db" {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestContentLanguages(t *testing.T) {
	lang, fallback, err := Content{Language: "pt-BR", FallbackLanguage: "en"}.Languages()
	if err != nil {
		t.Fatalf("Languages: %v", err)
	}
	if lang != language.BrazilianPortuguese || fallback != language.English {
		t.Errorf("got %v, %v", lang, fallback)
	}
	if _, _, err := (Content{Language: "not a tag!", FallbackLanguage: "en"}).Languages(); err == nil {
		t.Error("expected parse error")
	}
}
