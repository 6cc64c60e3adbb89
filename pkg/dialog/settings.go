package dialog

import (
	"math"
	"unicode/utf8"
)

// Settings controls text pacing and choice paging for a Manager.
type Settings struct {
	TimePerLetter      float64 `json:"time_per_letter"      yaml:"time_per_letter"`
	AdditionalTextTime float64 `json:"additional_text_time" yaml:"additional_text_time"`
	MinimumTextTime    float64 `json:"minimum_text_time"    yaml:"minimum_text_time"`
	MaxChoices         int     `json:"max_choices"          yaml:"max_choices"`
	UnknownName        string  `json:"unknown_name"         yaml:"unknown_name"`
	NarratorName       string  `json:"narrator_name"        yaml:"narrator_name"`
}

// DefaultSettings returns the stock pacing values.
func DefaultSettings() Settings {
	return Settings{
		TimePerLetter:      0.05,
		AdditionalTextTime: 0.5,
		MinimumTextTime:    1.0,
		MaxChoices:         4,
		UnknownName:        "???",
		NarratorName:       "Narrator",
	}
}

// AutoDuration is how long text stays on screen when no duration is given.
func (s Settings) AutoDuration(text string) float64 {
	d := s.AdditionalTextTime + s.TimePerLetter*float64(utf8.RuneCountInString(text))
	return math.Max(d, s.MinimumTextTime)
}
