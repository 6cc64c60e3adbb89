package graph

import (
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
)

// Loader loads and optionally hot-reloads conversation graphs from YAML
// files.
type Loader struct {
	dir    string
	loc    Localizer
	logger *slog.Logger

	mu       sync.RWMutex
	graphs   map[string]*Graph
	registry *dialog.Registry
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithLocalizer resolves "@key" texts through loc.
func WithLocalizer(loc Localizer) LoaderOption {
	return func(l *Loader) { l.loc = loc }
}

// WithLogger sets the logger handed to scripts.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a new conversation loader for the given directory.
func NewLoader(dir string, opts ...LoaderOption) *Loader {
	l := &Loader{
		dir:    dir,
		logger: slog.Default(),
		graphs: make(map[string]*Graph),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func isGraphFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

// LoadAll loads all .yaml and .yml files from the configured directory and
// refreshes the registry bound with Register.
func (l *Loader) LoadAll() (map[string]*Graph, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read conversation dir %q: %w", l.dir, err)
	}

	result := make(map[string]*Graph)
	for _, entry := range entries {
		if entry.IsDir() || !isGraphFile(entry.Name()) {
			continue
		}

		path := filepath.Join(l.dir, entry.Name())
		g, err := LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load %q: %w", path, err)
		}
		if _, dup := result[g.Name()]; dup {
			return nil, fmt.Errorf("load %q: conversation %q defined twice", path, g.Name())
		}
		result[g.Name()] = g
	}

	l.mu.Lock()
	old := l.graphs
	l.graphs = result
	reg := l.registry
	l.mu.Unlock()

	if reg != nil {
		for name := range old {
			if _, ok := result[name]; !ok {
				reg.Unregister(name)
			}
		}
		for name := range result {
			reg.Register(name, l.factory(name))
		}
	}
	return maps.Clone(result), nil
}

// Register binds the loader to reg: every loaded conversation is
// registered now and after each reload. Scripts are built from the graph
// current at Resolve time.
func (l *Loader) Register(reg *dialog.Registry) {
	l.mu.Lock()
	l.registry = reg
	names := make([]string, 0, len(l.graphs))
	for name := range l.graphs {
		names = append(names, name)
	}
	l.mu.Unlock()

	for _, name := range names {
		reg.Register(name, l.factory(name))
	}
}

func (l *Loader) factory(name string) dialog.Factory {
	return func() (dialog.Script, error) {
		g, ok := l.Get(name)
		if !ok {
			return nil, fmt.Errorf("%q: %w", name, dialog.ErrUnknownConversation)
		}
		return NewScript(g, l.loc, l.logger), nil
	}
}

// Get returns a loaded graph by conversation name.
func (l *Loader) Get(name string) (*Graph, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	g, ok := l.graphs[name]
	return g, ok
}

// All returns all loaded graphs.
func (l *Loader) All() map[string]*Graph {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return maps.Clone(l.graphs)
}

// LoadFile parses and validates one conversation file. The file name
// without extension is used when the conversation has no name.
func LoadFile(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
}

// Parse decodes and validates a conversation from YAML.
func Parse(data []byte, fallbackName string) (*Graph, error) {
	var c Conversation
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if c.Name == "" {
		c.Name = fallbackName
	}

	g := New(&c)
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// WatchAndReload starts watching the conversation directory for changes and
// reloads. This blocks until the done channel is closed.
func (l *Loader) WatchAndReload(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(l.dir); err != nil {
		return fmt.Errorf("watch dir %q: %w", l.dir, err)
	}

	for {
		select {
		case <-done:
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isGraphFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if _, err := l.LoadAll(); err != nil {
					l.logger.Error("reload conversations", slog.String("dir", l.dir), slog.String("error", err.Error()))
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
