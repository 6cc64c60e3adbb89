// Package presentation streams dialogue events to game clients over a
// websocket and feeds their input back into the session.
package presentation

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/xid"

	"github.com/voicetyped/dialoguekit/internal/dialog/handler"
	"github.com/voicetyped/dialoguekit/internal/runtime"
	"github.com/voicetyped/dialoguekit/pkg/dialog"
	"github.com/voicetyped/dialoguekit/pkg/events"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = pongWait * 9 / 10
	maxReadBytes = 4096
	eventBuffer  = 128
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Command is an input message sent by the client.
type Command struct {
	Type      string `json:"type"`
	Index     int    `json:"index,omitempty"`
	Direction int    `json:"direction,omitempty"`
	All       bool   `json:"all,omitempty"`
	Hovered   bool   `json:"hovered,omitempty"`
}

// Server serves /ws?session=<id>.
type Server struct {
	sessions *handler.DialogueHandler
}

// NewServer creates a websocket bridge over the sessions of h.
func NewServer(h *handler.DialogueHandler) *Server {
	return &Server{sessions: h}
}

// Register mounts the bridge on mux at /ws.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("/ws", s)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	done, ok := s.sessions.SessionDone(sessionID)
	if !ok {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("session_id", sessionID), slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	pub := s.sessions.Publisher()
	subID := xid.New().String()
	feed := pub.SubscribeSession(subID, sessionID, eventBuffer)
	defer pub.Unsubscribe(subID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	replies := make(chan events.Envelope, 8)
	go s.readLoop(ctx, cancel, conn, sessionID, replies)

	if first, err := s.view(ctx, sessionID); err == nil {
		replies <- first
	}
	s.writeLoop(ctx, conn, sessionID, feed, replies, done)
}

func (s *Server) view(ctx context.Context, sessionID string) (events.Envelope, error) {
	var v events.DialogueView
	if err := s.sessions.Do(ctx, sessionID, func(m *dialog.Manager) error {
		v = runtime.View(m)
		return nil
	}); err != nil {
		return events.Envelope{}, err
	}
	return s.sessions.Publisher().NewEnvelope(events.DialogueUpdated, sessionID, v)
}

// writeLoop is the only writer on conn.
func (s *Server) writeLoop(ctx context.Context, conn *websocket.Conn, sessionID string, feed <-chan events.Envelope, replies <-chan events.Envelope, done <-chan struct{}) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	write := func(env events.Envelope) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(env); err != nil {
			slog.Debug("websocket write failed", slog.String("session_id", sessionID), slog.String("error", err.Error()))
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"), time.Now().Add(writeWait))
			return
		case env := <-replies:
			if !write(env) {
				return
			}
		case env, ok := <-feed:
			if !ok {
				return
			}
			if !write(env) {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sessionID string, replies chan<- events.Envelope) {
	defer cancel()

	conn.SetReadLimit(maxReadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var cmd Command
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read failed", slog.String("session_id", sessionID), slog.String("error", err.Error()))
			}
			return
		}

		var accepted bool
		err := s.sessions.Do(ctx, sessionID, func(m *dialog.Manager) error {
			var err error
			accepted, err = Apply(m, cmd)
			return err
		})
		if err == nil && accepted {
			continue
		}
		msg := fmt.Sprintf("%s ignored", cmd.Type)
		if err != nil {
			msg = err.Error()
		}
		env, envErr := s.sessions.Publisher().NewEnvelope(events.SystemError, sessionID, events.ErrorData{Message: msg})
		if envErr != nil {
			continue
		}
		select {
		case replies <- env:
		case <-ctx.Done():
			return
		}
	}
}

// Apply runs one client command against m and reports whether it had an
// effect.
func Apply(m *dialog.Manager, cmd Command) (bool, error) {
	switch cmd.Type {
	case "skip":
		return m.SkipDialogue(cmd.All), nil
	case "select":
		if cmd.Hovered {
			return m.SelectHoveredOption(), nil
		}
		return m.SelectDialogueOption(cmd.Index), nil
	case "hover":
		return m.HoverOption(cmd.Index), nil
	case "navigate":
		return m.MoveHoveredOption(cmd.Direction), nil
	case "page":
		return m.TurnChoicePage(cmd.Direction), nil
	case "pause":
		return m.TogglePause(), nil
	case "activate":
		return m.ActivateDialogue(), nil
	default:
		return false, fmt.Errorf("unknown command %q", cmd.Type)
	}
}
