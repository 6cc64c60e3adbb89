// Package runtime drives dialogue managers on their own goroutines and
// forwards their notifications to the event bus.
package runtime

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/voicetyped/dialoguekit/pkg/dialog"
)

// ErrHostStopped is returned by Do once the host loop has exited.
var ErrHostStopped = errors.New("dialogue host stopped")

const defaultTickRate = 60

type command struct {
	fn   func(*dialog.Manager) error
	done chan error
}

// Host owns one Manager. The manager is only touched from the Run
// goroutine: ticks at a fixed rate and commands submitted through Do.
type Host struct {
	id       string
	manager  *dialog.Manager
	interval time.Duration
	logger   *slog.Logger

	cmds       chan command
	stopped    chan struct{}
	lastActive atomic.Int64
}

// HostOption configures a Host.
type HostOption func(*Host)

// WithTickRate sets how many ticks run per second.
func WithTickRate(hz int) HostOption {
	return func(h *Host) {
		if hz > 0 {
			h.interval = time.Second / time.Duration(hz)
		}
	}
}

// WithHostLogger sets the host logger.
func WithHostLogger(l *slog.Logger) HostOption {
	return func(h *Host) { h.logger = l }
}

// NewHost creates a host for m. Nothing runs until Run is called.
func NewHost(id string, m *dialog.Manager, opts ...HostOption) *Host {
	h := &Host{
		id:       id,
		manager:  m,
		interval: time.Second / defaultTickRate,
		logger:   slog.Default(),
		cmds:     make(chan command),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.With(slog.String("session_id", id))
	h.touch()
	return h
}

// ID returns the host's session ID.
func (h *Host) ID() string { return h.id }

// Stopped is closed when Run returns.
func (h *Host) Stopped() <-chan struct{} { return h.stopped }

// LastActive is the time of the last command.
func (h *Host) LastActive() time.Time { return time.Unix(0, h.lastActive.Load()) }

func (h *Host) touch() { h.lastActive.Store(time.Now().UnixNano()) }

// Run ticks the manager until ctx is done. It must be called once.
func (h *Host) Run(ctx context.Context) {
	defer close(h.stopped)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			h.manager.ClearDialogue()
			h.manager.Tick(0)
			h.logger.Debug("dialogue host stopped")
			return
		case now := <-ticker.C:
			h.manager.Tick(now.Sub(last).Seconds())
			last = now
		case cmd := <-h.cmds:
			cmd.done <- h.exec(cmd.fn)
			// Flush notifications raised by the command right away.
			h.manager.Tick(0)
		}
	}
}

func (h *Host) exec(fn func(*dialog.Manager) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("dialogue command panicked", slog.Any("panic", r))
			err = errors.New("dialogue command panicked")
		}
	}()
	return fn(h.manager)
}

// Do runs fn on the host goroutine and returns its error.
func (h *Host) Do(ctx context.Context, fn func(*dialog.Manager) error) error {
	h.touch()
	cmd := command{fn: fn, done: make(chan error, 1)}
	select {
	case h.cmds <- cmd:
	case <-h.stopped:
		return ErrHostStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
