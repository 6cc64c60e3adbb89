package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/pitabwire/frame/config"
	"golang.org/x/text/language"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
)

// Pacing holds the text pacing and choice paging settings.
type Pacing struct {
	TimePerLetter      float64 `envDefault:"0.05"     env:"DIALOGUE_TIME_PER_LETTER"`
	AdditionalTextTime float64 `envDefault:"0.5"      env:"DIALOGUE_ADDITIONAL_TEXT_TIME"`
	MinimumTextTime    float64 `envDefault:"1.0"      env:"DIALOGUE_MINIMUM_TEXT_TIME"`
	MaxChoices         int     `envDefault:"4"        env:"DIALOGUE_MAX_CHOICES"`
	NarratorName       string  `envDefault:"Narrator" env:"DIALOGUE_NARRATOR_NAME"`
	UnknownName        string  `envDefault:"???"      env:"DIALOGUE_UNKNOWN_NAME"`
}

// Settings converts the pacing to manager settings.
func (p Pacing) Settings() dialog.Settings {
	return dialog.Settings{
		TimePerLetter:      p.TimePerLetter,
		AdditionalTextTime: p.AdditionalTextTime,
		MinimumTextTime:    p.MinimumTextTime,
		MaxChoices:         p.MaxChoices,
		NarratorName:       p.NarratorName,
		UnknownName:        p.UnknownName,
	}
}

// Content locates authored conversations, the world and string tables.
type Content struct {
	ScriptDir        string `envDefault:"./conversations" env:"SCRIPT_DIR"`
	WorldFile        string `envDefault:""                env:"WORLD_FILE"`
	StringTableDir   string `envDefault:""                env:"STRING_TABLE_DIR"`
	Language         string `envDefault:"en"              env:"LANGUAGE"`
	FallbackLanguage string `envDefault:"en"              env:"FALLBACK_LANGUAGE"`
}

// Languages parses the configured language and fallback.
func (c Content) Languages() (lang, fallback language.Tag, err error) {
	if lang, err = language.Parse(c.Language); err != nil {
		return lang, fallback, fmt.Errorf("LANGUAGE %q: %w", c.Language, err)
	}
	if fallback, err = language.Parse(c.FallbackLanguage); err != nil {
		return lang, fallback, fmt.Errorf("FALLBACK_LANGUAGE %q: %w", c.FallbackLanguage, err)
	}
	return lang, fallback, nil
}

// DialogueConfig holds configuration for the dialogue service.
type DialogueConfig struct {
	config.ConfigurationDefault
	Content
	Pacing

	WatchScripts bool          `envDefault:"true" env:"WATCH_SCRIPTS"`
	TickRateHz   int           `envDefault:"60"   env:"TICK_RATE_HZ"`
	SessionTTL   time.Duration `envDefault:"30m"  env:"SESSION_TTL"`
	SaveGames    bool          `envDefault:"true" env:"SAVE_GAMES"`
}

// PlayerConfig holds configuration for the terminal player. It does not
// use the service framework.
type PlayerConfig struct {
	Content
	Pacing

	SaveDBPath   string `envDefault:"./saves.db" env:"SAVE_DB_PATH"`
	SaveSlot     string `envDefault:"auto"       env:"SAVE_SLOT"`
	PlayerID     string `envDefault:"player"     env:"PLAYER_ID"`
	Conversation string `envDefault:""           env:"CONVERSATION"`
	TargetID     string `envDefault:""           env:"TARGET_ID"`
	RemoteURL    string `envDefault:""           env:"REMOTE_URL"`
}

// LoadPlayerConfig loads the given .env files, or ./.env when none are
// named, then parses the environment. Missing files are skipped; variables
// already set win over file values.
func LoadPlayerConfig(files ...string) (PlayerConfig, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return PlayerConfig{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg PlayerConfig
	if err := env.Parse(&cfg); err != nil {
		return PlayerConfig{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
