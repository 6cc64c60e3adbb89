package luascript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Shopify/go-lua"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
)

// Entry points a script may define as globals. Only activate is required.
const (
	fnActivate   = "activate"
	fnDeactivate = "deactivate"
	fnRestore    = "restore"
	fnUpdate     = "update"
)

var errNoActivate = errors.New("script defines no activate function")

// Script runs a Lua conversation as a dialog.Script. Resume points are
// global Lua functions called with the continuation output; the host API
// is the global "dialogue" table. Each Script owns its Lua state and is
// driven from one goroutine.
type Script struct {
	name       string
	state      *lua.State
	logger     *slog.Logger
	maxChoices int
	hasUpdate  bool

	d *dialog.Dialogue
}

// NewScript compiles and runs the chunk in src. name is used as the chunk
// name in Lua error messages.
func NewScript(name, src string, logger *slog.Logger) (*Script, error) {
	s := newScript(name, logger)
	if err := lua.LoadBuffer(s.state, src, "="+name, ""); err != nil {
		return nil, fmt.Errorf("compile %s: %w", name, err)
	}
	return s.init()
}

// NewScriptFile compiles and runs the Lua file at path.
func NewScriptFile(name, path string, logger *slog.Logger) (*Script, error) {
	s := newScript(name, logger)
	if err := lua.LoadFile(s.state, path, ""); err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}
	return s.init()
}

func newScript(name string, logger *slog.Logger) *Script {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Script{
		name:   name,
		state:  lua.NewState(),
		logger: logger.With(slog.String("conversation", name)),
	}
	lua.OpenLibraries(s.state)
	s.register()
	return s
}

func (s *Script) init() (*Script, error) {
	l := s.state
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return nil, fmt.Errorf("run %s: %w", s.name, err)
	}
	if !s.defined(fnActivate) {
		return nil, fmt.Errorf("%s: %w", s.name, errNoActivate)
	}
	s.hasUpdate = s.defined(fnUpdate)

	l.Global("max_choices")
	if n, ok := l.ToInteger(-1); ok {
		s.maxChoices = n
	}
	l.Pop(1)
	return s, nil
}

func (s *Script) defined(fn string) bool {
	s.state.Global(fn)
	defer s.state.Pop(1)
	return s.state.IsFunction(-1)
}

// Name returns the conversation name.
func (s *Script) Name() string { return s.name }

// MaxChoices implements dialog.ChoiceLimiter from the global max_choices.
func (s *Script) MaxChoices() int { return s.maxChoices }

// call invokes the global function fn. It reports false when fn is not
// a function.
func (s *Script) call(d *dialog.Dialogue, fn string, args ...float64) (bool, error) {
	l := s.state
	l.Global(fn)
	if !l.IsFunction(-1) {
		l.Pop(1)
		return false, nil
	}
	prev := s.d
	s.d = d
	defer func() { s.d = prev }()

	for _, a := range args {
		l.PushNumber(a)
	}
	if err := l.ProtectedCall(len(args), 0, 0); err != nil {
		return true, fmt.Errorf("%s: %w", fn, err)
	}
	return true, nil
}

func (s *Script) fatal(d *dialog.Dialogue, msg string, err error) {
	s.logger.Log(context.Background(), dialog.LevelFatal, msg, slog.String("error", err.Error()))
	d.Deactivate()
}

func (s *Script) OnActivate(d *dialog.Dialogue) {
	if _, err := s.call(d, fnActivate); err != nil {
		s.fatal(d, "cannot start conversation", err)
	}
}

func (s *Script) OnDeactivate(d *dialog.Dialogue) {
	if _, err := s.call(d, fnDeactivate); err != nil {
		s.logger.Warn("deactivate hook failed", slog.String("error", err.Error()))
	}
}

func (s *Script) OnRestore(d *dialog.Dialogue) {
	if _, err := s.call(d, fnRestore); err != nil {
		s.fatal(d, "cannot restore conversation", err)
	}
}

func (s *Script) OnUpdate(d *dialog.Dialogue, dt float64) {
	if !s.hasUpdate {
		return
	}
	if _, err := s.call(d, fnUpdate, dt); err != nil {
		s.fatal(d, "update hook failed", err)
	}
}

func (s *Script) Resume(d *dialog.Dialogue, c dialog.Continuation) error {
	switch c.Point {
	case fnActivate, fnDeactivate, fnRestore, fnUpdate:
		return fmt.Errorf("%s: %w", c, dialog.ErrResumePointNotFound)
	}
	ok, err := s.call(d, c.Point, float64(c.Output))
	if !ok {
		return fmt.Errorf("%s: %w", c, dialog.ErrResumePointNotFound)
	}
	return err
}
