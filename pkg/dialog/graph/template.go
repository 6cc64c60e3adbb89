package graph

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"text/template"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
)

const maxTemplateOutput = 64 * 1024

// templateCache caches parsed templates to avoid re-parsing on every call.
var templateCache sync.Map

// env is the data available in template expressions, for example
// {{ if gt (.Global "Gold") 10 }} or {{ .Visited "ask_2" }}.
type env struct {
	d    *dialog.Dialogue
	Vars map[string]string
}

func newEnv(d *dialog.Dialogue, vars map[string]string) env {
	return env{d: d, Vars: vars}
}

// Global returns a value from the global scope.
func (e env) Global(tag string) int32 {
	return e.d.GlobalContext().Get(dialog.Tag(tag))
}

// Target returns a value from the target's scope.
func (e env) Target(tag string) int32 {
	return e.d.TargetContext().Get(dialog.Tag(tag))
}

// Ctx returns a value from a named scope.
func (e env) Ctx(tag, scope string) int32 {
	return e.d.Context().Get(dialog.Tag(tag), e.d.NamedScope(scope))
}

// Has reports whether a global entry exists.
func (e env) Has(tag string) bool {
	return e.d.GlobalContext().Has(dialog.Tag(tag))
}

// Visited reports whether a choice name was picked in this conversation.
func (e env) Visited(name string) bool {
	return slices.Contains(e.d.Visited(), name)
}

// PlayerID is the player actor's ID.
func (e env) PlayerID() string {
	if a := e.d.Player(); a != nil {
		return a.ID()
	}
	return ""
}

// TargetID is the target actor's ID.
func (e env) TargetID() string {
	if a := e.d.Target(); a != nil {
		return a.ID()
	}
	return ""
}

// EvalCondition evaluates a Go template condition string.
// Returns true if the result is non-empty and not "false".
func EvalCondition(condition string, e env) (bool, error) {
	if condition == "" {
		return true, nil
	}

	result, err := renderTemplate(condition, e)
	if err != nil {
		return false, err
	}

	result = strings.TrimSpace(result)
	return result != "" && result != "false" && result != "<no value>", nil
}

// RenderParam evaluates a Go template string in text and param values.
func RenderParam(tmpl string, e env) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return tmpl, nil
	}
	return renderTemplate(tmpl, e)
}

// limitWriter caps output from template.Execute.
type limitWriter struct {
	w       io.Writer
	n       int64
	written int64
}

func (lw *limitWriter) Write(p []byte) (int, error) {
	if lw.written+int64(len(p)) > lw.n {
		allowed := lw.n - lw.written
		if allowed > 0 {
			n, err := lw.w.Write(p[:allowed])
			lw.written += int64(n)
			if err != nil {
				return n, err
			}
		}
		return 0, fmt.Errorf("template output exceeds %d bytes", lw.n)
	}
	n, err := lw.w.Write(p)
	lw.written += int64(n)
	return n, err
}

func renderTemplate(tmplStr string, e env) (string, error) {
	var tmpl *template.Template
	if cached, ok := templateCache.Load(tmplStr); ok {
		tmpl = cached.(*template.Template)
	} else {
		var err error
		tmpl, err = template.New("").Option("missingkey=zero").Parse(tmplStr)
		if err != nil {
			return "", err
		}
		templateCache.Store(tmplStr, tmpl)
	}

	var buf bytes.Buffer
	lw := &limitWriter{w: &buf, n: maxTemplateOutput}
	if err := tmpl.Execute(lw, e); err != nil {
		return "", err
	}
	return buf.String(), nil
}
