package graph

import (
	"fmt"
	"maps"
	"slices"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
)

// Graph validates and provides access to conversation nodes.
type Graph struct {
	conv *Conversation
}

// New creates a graph from a conversation definition.
func New(c *Conversation) *Graph {
	return &Graph{conv: c}
}

// Validate checks the conversation definition for consistency.
func (g *Graph) Validate() error {
	c := g.conv
	if c.Start == "" {
		return fmt.Errorf("conversation %q: start is required", c.Name)
	}
	if _, ok := c.Nodes[c.Start]; !ok {
		return fmt.Errorf("conversation %q: start %q not found in nodes", c.Name, c.Start)
	}
	if c.MaxChoices < 0 {
		return fmt.Errorf("conversation %q: max_choices must not be negative", c.Name)
	}
	for tag, kind := range c.Speakers {
		if !tag.IsValid() || kind == "" {
			return fmt.Errorf("conversation %q: speaker %q needs a tag and a kind", c.Name, tag)
		}
	}

	for _, name := range slices.Sorted(maps.Keys(c.Nodes)) {
		node := c.Nodes[name]
		if node.Next != "" {
			if _, ok := c.Nodes[node.Next]; !ok {
				return fmt.Errorf("conversation %q node %q: next %q not found", c.Name, name, node.Next)
			}
		}
		if err := validateActions(node.OnEnter); err != nil {
			return fmt.Errorf("conversation %q node %q on_enter: %w", c.Name, name, err)
		}
		for i, l := range node.Lines {
			if l.Speaker != nil && *l.Speaker == dialog.SpeakerCustom && !l.Custom.IsValid() {
				return fmt.Errorf("conversation %q node %q line %d: custom speaker needs a tag", c.Name, name, i)
			}
		}
		for i, ch := range node.Choices {
			if ch.Text == "" {
				return fmt.Errorf("conversation %q node %q choice %d: text is required", c.Name, name, i)
			}
			if ch.Target != "" {
				if _, ok := c.Nodes[ch.Target]; !ok {
					return fmt.Errorf("conversation %q node %q choice %d: target %q not found",
						c.Name, name, i, ch.Target)
				}
			}
			if err := validateActions(ch.Actions); err != nil {
				return fmt.Errorf("conversation %q node %q choice %d: %w", c.Name, name, i, err)
			}
		}
	}
	return nil
}

func validateActions(actions []Action) error {
	for i, a := range actions {
		if !knownActions[a.Type] {
			return fmt.Errorf("action %d: unknown type %q", i, a.Type)
		}
		switch a.Type {
		case ActionSetContext, ActionIncrementContext, ActionRemoveContext, ActionRoll:
			if a.Params["tag"] == "" {
				return fmt.Errorf("action %d (%s): tag is required", i, a.Type)
			}
		case ActionFindSpeaker:
			if a.Params["tag"] == "" || a.Params["kind"] == "" {
				return fmt.Errorf("action %d (%s): tag and kind are required", i, a.Type)
			}
		}
	}
	return nil
}

// Node returns the node definition for the given name.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.conv.Nodes[name]
	return n, ok
}

// Start returns the entry node name.
func (g *Graph) Start() string {
	return g.conv.Start
}

// Conversation returns the underlying definition.
func (g *Graph) Conversation() *Conversation {
	return g.conv
}

// Name is the conversation ID.
func (g *Graph) Name() string {
	return g.conv.Name
}
