package main

import (
	"fmt"
	"io"

	"github.com/voicetyped/dialoguekit/pkg/events"
)

// visibleChoices returns the choices on the current page.
func visibleChoices(v events.DialogueView) []events.ChoiceView {
	if v.PageSize <= 0 || len(v.Choices) <= v.PageSize {
		return v.Choices
	}
	start := min(max(v.PageStart, 0), len(v.Choices))
	return v.Choices[start:min(len(v.Choices), start+v.PageSize)]
}

func render(w io.Writer, v events.DialogueView) {
	if !v.Active {
		fmt.Fprintln(w, "(no conversation)")
		return
	}

	name := v.SpeakerName
	if v.IsPlayer {
		name = "You"
	}
	if v.Text != "" {
		if v.Expression != "" && v.Expression != "none" {
			fmt.Fprintf(w, "%s [%s]: %s\n", name, v.Expression, v.Text)
		} else {
			fmt.Fprintf(w, "%s: %s\n", name, v.Text)
		}
	}

	for _, c := range visibleChoices(v) {
		marker := " "
		if c.Index == v.Hovered {
			marker = ">"
		}
		suffix := ""
		if c.Visited {
			suffix += " *"
		}
		if !c.Enabled {
			suffix += " (unavailable)"
		}
		fmt.Fprintf(w, "%s %d) %s%s\n", marker, c.Index+1, c.Title, suffix)
	}
	if v.MorePrev {
		fmt.Fprintln(w, "  [p] previous page")
	}
	if v.MoreNext {
		fmt.Fprintln(w, "  [n] next page")
	}
	if v.State == "paused" {
		fmt.Fprintln(w, "(paused)")
	}
}
