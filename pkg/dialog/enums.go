package dialog

import (
	"fmt"
	"strings"
)

// Speaker selects who a line of text is attributed to.
type Speaker int

const (
	SpeakerPlayer Speaker = iota
	SpeakerTarget
	SpeakerNarrator
	SpeakerCustom
)

var speakerNames = []string{"player", "target", "narrator", "custom"}

func (s Speaker) String() string { return enumName(speakerNames, int(s)) }

// MarshalText implements encoding.TextMarshaler.
func (s Speaker) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Speaker) UnmarshalText(b []byte) error {
	v, err := parseEnum("speaker", speakerNames, string(b))
	if err != nil {
		return err
	}
	*s = Speaker(v)
	return nil
}

// Expression is the facial expression the speaker shows for a line.
type Expression int

const (
	ExpressionNone Expression = iota
	ExpressionHappy
	ExpressionAngry
	ExpressionCurious
	ExpressionShy
	ExpressionAnnoyed
	ExpressionScared
	ExpressionSmug
	ExpressionProud
	ExpressionDisgusted
	ExpressionWorried
	ExpressionCrying
	ExpressionSad
	ExpressionSmirk
)

var expressionNames = []string{
	"none", "happy", "angry", "curious", "shy", "annoyed", "scared",
	"smug", "proud", "disgusted", "worried", "crying", "sad", "smirk",
}

func (e Expression) String() string { return enumName(expressionNames, int(e)) }

// MarshalText implements encoding.TextMarshaler.
func (e Expression) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Expression) UnmarshalText(b []byte) error {
	v, err := parseEnum("expression", expressionNames, string(b))
	if err != nil {
		return err
	}
	*e = Expression(v)
	return nil
}

// Effect is a presentation effect applied to the text box.
type Effect int

const (
	EffectNone Effect = iota
	EffectShake
	EffectBend
	EffectBlur
	EffectDamage
)

var effectNames = []string{"none", "shake", "bend", "blur", "damage"}

func (e Effect) String() string { return enumName(effectNames, int(e)) }

// MarshalText implements encoding.TextMarshaler.
func (e Effect) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Effect) UnmarshalText(b []byte) error {
	v, err := parseEnum("effect", effectNames, string(b))
	if err != nil {
		return err
	}
	*e = Effect(v)
	return nil
}

// State is the lifecycle phase of a Dialogue.
type State int

const (
	StateInactive State = iota
	StateActive
	StatePaused
)

func (s State) String() string { return enumName([]string{"inactive", "active", "paused"}, int(s)) }

func enumName(names []string, v int) string {
	if v < 0 || v >= len(names) {
		return fmt.Sprintf("unknown(%d)", v)
	}
	return names[v]
}

func parseEnum(kind string, names []string, s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, nil
	}
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", kind, s)
}
