package luascript

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
)

// Loader registers every .lua file in a directory as a conversation named
// after the file. Each Resolve compiles the file into a fresh Lua state,
// so edits take effect for the next conversation started.
type Loader struct {
	dir    string
	logger *slog.Logger

	mu       sync.RWMutex
	paths    map[string]string
	registry *dialog.Registry
}

// NewLoader creates a loader for dir. logger may be nil.
func NewLoader(dir string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		dir:    dir,
		logger: logger,
		paths:  make(map[string]string),
	}
}

func isScriptFile(name string) bool { return filepath.Ext(name) == ".lua" }

// LoadAll compiles every script once to check it and refreshes the
// registry bound with Register. It returns the conversation names.
func (l *Loader) LoadAll() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read script dir %q: %w", l.dir, err)
	}

	result := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !isScriptFile(entry.Name()) {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		name := strings.TrimSuffix(entry.Name(), ".lua")
		if _, err := NewScriptFile(name, path, l.logger); err != nil {
			return nil, err
		}
		result[name] = path
	}

	l.mu.Lock()
	old := l.paths
	l.paths = result
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

	names := make([]string, 0, len(result))
	for name := range result {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Register binds the loader to reg and registers the loaded scripts.
func (l *Loader) Register(reg *dialog.Registry) {
	l.mu.Lock()
	l.registry = reg
	names := make([]string, 0, len(l.paths))
	for name := range l.paths {
		names = append(names, name)
	}
	l.mu.Unlock()

	for _, name := range names {
		reg.Register(name, l.factory(name))
	}
}

func (l *Loader) factory(name string) dialog.Factory {
	return func() (dialog.Script, error) {
		l.mu.RLock()
		path, ok := l.paths[name]
		l.mu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("%q: %w", name, dialog.ErrUnknownConversation)
		}
		return NewScriptFile(name, path, l.logger)
	}
}

// WatchAndReload reloads the directory whenever a script changes. It
// blocks until done is closed.
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
			if !isScriptFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				if _, err := l.LoadAll(); err != nil {
					l.logger.Error("reload scripts", slog.String("dir", l.dir), slog.String("error", err.Error()))
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
