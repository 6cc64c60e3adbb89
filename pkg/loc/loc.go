// Package loc provides string tables for authored conversation text.
// A table is a YAML file named after its language (en.yaml, de-AT.yaml)
// mapping keys to messages.
package loc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
	"gopkg.in/yaml.v3"
)

// Tables resolves keys for one display language, falling back to a
// default language for keys the display language lacks.
type Tables struct {
	fallback language.Tag

	mu       sync.Mutex
	builder  *catalog.Builder
	keys     map[language.Tag]map[string]struct{}
	lang     language.Tag
	printers map[language.Tag]*message.Printer
}

// New creates empty tables displaying lang.
func New(lang, fallback language.Tag) *Tables {
	t := &Tables{
		fallback: fallback,
		builder:  catalog.NewBuilder(catalog.Fallback(fallback)),
		keys:     make(map[language.Tag]map[string]struct{}),
		lang:     lang,
		printers: make(map[language.Tag]*message.Printer),
	}
	return t
}

// SetLanguage switches the display language.
func (t *Tables) SetLanguage(lang language.Tag) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lang = lang
}

// Language returns the display language.
func (t *Tables) Language() language.Tag {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lang
}

// Add stores messages for lang, replacing existing keys.
func (t *Tables) Add(lang language.Tag, messages map[string]string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	known, ok := t.keys[lang]
	if !ok {
		known = make(map[string]struct{})
		t.keys[lang] = known
	}
	for key, msg := range messages {
		if err := t.builder.SetString(lang, key, msg); err != nil {
			return fmt.Errorf("set %s/%s: %w", lang, key, err)
		}
		known[key] = struct{}{}
	}
	clear(t.printers)
	return nil
}

// Lookup returns the message for key in the display language, its parent
// languages or the fallback, in that order. Messages are fmt-style formats
// rendered without arguments.
func (t *Tables) Lookup(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	lang, ok := t.source(key)
	if !ok {
		return "", false
	}
	p, ok := t.printers[lang]
	if !ok {
		p = message.NewPrinter(lang, message.Catalog(t.builder))
		t.printers[lang] = p
	}
	return p.Sprintf(key), true
}

// source must be called with mu held.
func (t *Tables) source(key string) (language.Tag, bool) {
	for tag := t.lang; ; tag = tag.Parent() {
		if _, ok := t.keys[tag][key]; ok {
			return tag, true
		}
		if tag == language.Und {
			break
		}
	}
	if _, ok := t.keys[t.fallback][key]; ok {
		return t.fallback, true
	}
	return language.Und, false
}

// Languages lists the languages with at least one table.
func (t *Tables) Languages() []language.Tag {
	return t.builder.Languages()
}

// LoadDir adds every <lang>.yaml or <lang>.yml table in dir.
func (t *Tables) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read string table dir %q: %w", dir, err)
	}
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		lang, err := language.Parse(strings.TrimSuffix(entry.Name(), ext))
		if err != nil {
			return fmt.Errorf("string table %q: %w", entry.Name(), err)
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		var messages map[string]string
		if err := yaml.Unmarshal(data, &messages); err != nil {
			return fmt.Errorf("parse %q: %w", entry.Name(), err)
		}
		if err := t.Add(lang, messages); err != nil {
			return err
		}
	}
	return nil
}
