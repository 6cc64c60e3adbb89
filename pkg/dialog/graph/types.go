package graph

import "github.com/voicetyped/dialoguekit/pkg/dialog"

// Conversation is a YAML-mappable conversation graph.
type Conversation struct {
	Name        string                `yaml:"name"        json:"name"`
	Version     string                `yaml:"version"     json:"version"`
	Description string                `yaml:"description" json:"description"`
	Variables   map[string]string     `yaml:"variables"   json:"variables,omitempty"`
	Start       string                `yaml:"start"       json:"start"`
	MaxChoices  int                   `yaml:"max_choices" json:"max_choices,omitempty"`
	Speakers    map[dialog.Tag]string `yaml:"speakers"    json:"speakers,omitempty"`
	Nodes       map[string]Node       `yaml:"nodes"       json:"nodes"`
}

// Node is one step of the conversation: entry actions, lines shown in
// order, then either choices, a jump to Next, or the end.
type Node struct {
	OnEnter []Action    `yaml:"on_enter" json:"on_enter,omitempty"`
	Lines   []Line      `yaml:"lines"    json:"lines,omitempty"`
	Choices []ChoiceDef `yaml:"choices"  json:"choices,omitempty"`
	Next    string      `yaml:"next"     json:"next,omitempty"`
	End     bool        `yaml:"end"      json:"end,omitempty"`
}

// Line is one authored line. A nil Speaker means the target speaks; a nil
// Duration sizes the display time from the text.
type Line struct {
	Speaker    *dialog.Speaker   `yaml:"speaker"    json:"speaker,omitempty"`
	Custom     dialog.Tag        `yaml:"custom"     json:"custom,omitempty"`
	Text       string            `yaml:"text"       json:"text"`
	Duration   *float64          `yaml:"duration"   json:"duration,omitempty"`
	Expression dialog.Expression `yaml:"expression" json:"expression,omitempty"`
	Effect     dialog.Effect     `yaml:"effect"     json:"effect,omitempty"`
	VoiceOver  dialog.Tag        `yaml:"voice_over" json:"voice_over,omitempty"`
	Condition  string            `yaml:"condition"  json:"condition,omitempty"`
}

// ChoiceDef is an authored choice. An empty Target ends the conversation
// after the choice's actions run.
type ChoiceDef struct {
	Text       string                    `yaml:"text"       json:"text"`
	Target     string                    `yaml:"target"     json:"target,omitempty"`
	Name       string                    `yaml:"name"       json:"name,omitempty"`
	Repeatable bool                      `yaml:"repeatable" json:"repeatable,omitempty"`
	Asset      dialog.AssetID            `yaml:"asset"      json:"asset,omitempty"`
	Condition  string                    `yaml:"condition"  json:"condition,omitempty"`
	Requires   []dialog.ContextCondition `yaml:"requires"   json:"requires,omitempty"`
	Actions    []Action                  `yaml:"actions"    json:"actions,omitempty"`
}

// Action is an operation executed on node entry or when a choice is taken.
type Action struct {
	Type   string            `yaml:"type"   json:"type"`
	Params map[string]string `yaml:"params" json:"params,omitempty"`
}

// Action types.
const (
	ActionSetContext       = "set_context"
	ActionIncrementContext = "increment_context"
	ActionRemoveContext    = "remove_context"
	ActionClearContext     = "clear_context"
	ActionRoll             = "roll"
	ActionFindSpeaker      = "find_speaker"
	ActionEnd              = "end"
)

var knownActions = map[string]bool{
	ActionSetContext:       true,
	ActionIncrementContext: true,
	ActionRemoveContext:    true,
	ActionClearContext:     true,
	ActionRoll:             true,
	ActionFindSpeaker:      true,
	ActionEnd:              true,
}
