package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"connectrpc.com/connect"
	"github.com/pitabwire/frame/workerpool"
	"github.com/pitabwire/util"
	"github.com/rs/xid"

	"github.com/voicetyped/dialoguekit/internal/runtime"
	"github.com/voicetyped/dialoguekit/pkg/dialog"
	"github.com/voicetyped/dialoguekit/pkg/dialogueapi"
	"github.com/voicetyped/dialoguekit/pkg/events"
	"github.com/voicetyped/dialoguekit/pkg/savegame"
	"github.com/voicetyped/dialoguekit/pkg/world"
)

const (
	defaultSessionTTL = 30 * time.Minute
	reaperInterval    = 1 * time.Minute
	endSessionWait    = 5 * time.Second
	defaultPlayerID   = "player"
	watchBuffer       = 128
)

var _ dialogueapi.DialogueServiceHandler = (*DialogueHandler)(nil)

// DialogueHandler implements dialogueapi.DialogueServiceHandler. Every
// session owns a runtime.Host with its own manager and world.
type DialogueHandler struct {
	registry  *dialog.Registry
	publisher *events.Publisher
	pool      workerpool.WorkerPool
	store     SessionStore

	settings   dialog.Settings
	worldData  []byte
	saves      savegame.Store
	tickRate   int
	sessionTTL time.Duration
}

// Option configures a DialogueHandler.
type Option func(*DialogueHandler)

// WithSettings sets the pacing used by new sessions.
func WithSettings(s dialog.Settings) Option { return func(h *DialogueHandler) { h.settings = s } }

// WithWorldData sets the world YAML every session starts from.
func WithWorldData(data []byte) Option { return func(h *DialogueHandler) { h.worldData = data } }

// WithSaveStore enables Save, Load and ListSlots.
func WithSaveStore(s savegame.Store) Option { return func(h *DialogueHandler) { h.saves = s } }

// WithTickRate sets the host tick rate in Hz.
func WithTickRate(hz int) Option { return func(h *DialogueHandler) { h.tickRate = hz } }

// WithSessionTTL sets how long an idle session survives.
func WithSessionTTL(d time.Duration) Option {
	return func(h *DialogueHandler) {
		if d > 0 {
			h.sessionTTL = d
		}
	}
}

// NewDialogueHandler creates the service. pub and pool may be nil: events
// then stay in-process and session loops run on plain goroutines.
func NewDialogueHandler(reg *dialog.Registry, pub *events.Publisher, pool workerpool.WorkerPool, opts ...Option) *DialogueHandler {
	if pub == nil {
		pub = events.NewPublisher(nil, "dialogue", "")
	}
	h := &DialogueHandler{
		registry:   reg,
		publisher:  pub,
		pool:       pool,
		store:      newSessionStore(),
		settings:   dialog.DefaultSettings(),
		sessionTTL: defaultSessionTTL,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Publisher returns the event publisher sessions emit to.
func (h *DialogueHandler) Publisher() *events.Publisher { return h.publisher }

// Sessions exposes the active session store.
func (h *DialogueHandler) Sessions() *SessionStore { return &h.store }

func (h *DialogueHandler) submit(ctx context.Context, fn func()) {
	if h.pool != nil {
		if err := h.pool.Submit(ctx, fn); err == nil {
			return
		}
	}
	go fn()
}

// StartReaper ends sessions idle for longer than the session TTL.
func (h *DialogueHandler) StartReaper(ctx context.Context) {
	h.submit(ctx, func() {
		ticker := time.NewTicker(reaperInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				h.reapStaleSessions(ctx, now)
			}
		}
	})
}

func (h *DialogueHandler) reapStaleSessions(ctx context.Context, now time.Time) int {
	reaped := 0
	for _, as := range h.store.snapshot() {
		if now.Sub(as.host.LastActive()) > h.sessionTTL {
			util.Log(ctx).WithField("session_id", as.id).
				WithField("idle", now.Sub(as.host.LastActive()).String()).
				Warn("reaping idle dialogue session")
			if h.endSession(as.id, "idle") {
				reaped++
			}
		}
	}
	return reaped
}

// Close ends every session.
func (h *DialogueHandler) Close() {
	for _, as := range h.store.snapshot() {
		h.endSession(as.id, "shutdown")
	}
}

func (h *DialogueHandler) newWorld() (*world.World, []dialog.ContextEntry, error) {
	if len(h.worldData) == 0 {
		return world.New(), nil, nil
	}
	return world.Parse(h.worldData)
}

// OpenSession creates a session for playerID. An empty id is generated.
func (h *DialogueHandler) OpenSession(ctx context.Context, id, playerID string) (string, error) {
	if id == "" {
		id = xid.New().String()
	}
	if playerID == "" {
		playerID = defaultPlayerID
	}

	w, seed, err := h.newWorld()
	if err != nil {
		return "", err
	}
	if _, ok := w.Get(playerID); !ok {
		w.Spawn(playerID, "player", dialog.Vec3{}, "")
	}

	m := dialog.NewManager(h.settings,
		dialog.WithRegistry(h.registry),
		dialog.WithWorld(w),
		dialog.WithLogger(slog.Default().With(slog.String("session_id", id))),
	)
	m.SeedContext(seed)

	sessionCtx, cancel := context.WithCancel(context.Background())
	as := &activeSession{
		id:       id,
		playerID: playerID,
		host:     runtime.NewHost(id, m, runtime.WithTickRate(h.tickRate)),
		world:    w,
		cancel:   cancel,
	}
	if !h.store.add(as) {
		cancel()
		return "", connect.NewError(connect.CodeAlreadyExists, fmt.Errorf("session %q already exists", id))
	}
	// The final dialogue.ended notifications go out after cancellation.
	as.detach = runtime.Bridge(context.WithoutCancel(sessionCtx), m, h.publisher, id)
	h.submit(sessionCtx, func() { as.host.Run(sessionCtx) })

	if err := h.publisher.Emit(ctx, events.SessionStarted, id, events.SessionData{PlayerID: playerID}); err != nil {
		util.Log(ctx).WithError(err).WithField("session_id", id).Warn("emit session started")
	}
	return id, nil
}

func (h *DialogueHandler) endSession(id, reason string) bool {
	as, ok := h.store.remove(id)
	if !ok {
		return false
	}
	as.cancel()
	select {
	case <-as.host.Stopped():
		as.detach()
	case <-time.After(endSessionWait):
		slog.Warn("dialogue host did not stop in time", slog.String("session_id", id))
	}

	ctx := context.Background()
	if err := h.publisher.Emit(ctx, events.SessionEnded, id, events.SessionData{PlayerID: as.playerID, Reason: reason}); err != nil {
		util.Log(ctx).WithError(err).WithField("session_id", id).Warn("emit session ended")
	}
	return true
}

func (h *DialogueHandler) session(id string) (*activeSession, error) {
	as, ok := h.store.get(id)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", id))
	}
	return as, nil
}

// SessionDone returns a channel closed when the session's host stops.
func (h *DialogueHandler) SessionDone(id string) (<-chan struct{}, bool) {
	as, ok := h.store.get(id)
	if !ok {
		return nil, false
	}
	return as.host.Stopped(), true
}

// Do runs fn on the session's host goroutine.
func (h *DialogueHandler) Do(ctx context.Context, sessionID string, fn func(*dialog.Manager) error) error {
	as, err := h.session(sessionID)
	if err != nil {
		return err
	}
	return toConnectError(as.host.Do(ctx, fn))
}

// input runs fn and answers with its result and the resulting view.
func (h *DialogueHandler) input(ctx context.Context, sessionID string, fn func(*dialog.Manager) bool) (*connect.Response[dialogueapi.StateResponse], error) {
	var resp dialogueapi.StateResponse
	err := h.Do(ctx, sessionID, func(m *dialog.Manager) error {
		resp.Accepted = fn(m)
		resp.View = runtime.View(m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&resp), nil
}

func toConnectError(err error) error {
	if err == nil {
		return nil
	}
	var ce *connect.Error
	if errors.As(err, &ce) {
		return ce
	}
	switch {
	case errors.Is(err, dialog.ErrUnknownConversation), errors.Is(err, savegame.ErrSlotNotFound):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, dialog.ErrInvalidPlayer), errors.Is(err, savegame.ErrInvalidKey):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, dialog.ErrNoDialogue), errors.Is(err, dialog.ErrSnapshotVersion):
		return connect.NewError(connect.CodeFailedPrecondition, err)
	case errors.Is(err, runtime.ErrHostStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, context.Canceled):
		return connect.NewError(connect.CodeCanceled, err)
	case errors.Is(err, context.DeadlineExceeded):
		return connect.NewError(connect.CodeDeadlineExceeded, err)
	default:
		return connect.NewError(connect.CodeInternal, err)
	}
}

func (h *DialogueHandler) StartSession(ctx context.Context, req *connect.Request[dialogueapi.StartSessionRequest]) (*connect.Response[dialogueapi.StartSessionResponse], error) {
	id, err := h.OpenSession(ctx, req.Msg.SessionID, req.Msg.PlayerID)
	if err != nil {
		return nil, toConnectError(err)
	}
	as, err := h.session(id)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&dialogueapi.StartSessionResponse{SessionID: id, PlayerID: as.playerID}), nil
}

func (h *DialogueHandler) EndSession(_ context.Context, req *connect.Request[dialogueapi.EndSessionRequest]) (*connect.Response[dialogueapi.EndSessionResponse], error) {
	if !h.endSession(req.Msg.SessionID, "ended") {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.SessionID))
	}
	return connect.NewResponse(&dialogueapi.EndSessionResponse{}), nil
}

func (h *DialogueHandler) StartDialogue(ctx context.Context, req *connect.Request[dialogueapi.StartDialogueRequest]) (*connect.Response[dialogueapi.StateResponse], error) {
	as, err := h.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	if req.Msg.Conversation == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("conversation is required"))
	}
	player, target, err := as.participants(req.Msg.TargetID)
	if err != nil {
		return nil, err
	}

	var resp dialogueapi.StateResponse
	err = h.Do(ctx, as.id, func(m *dialog.Manager) error {
		if err := m.StartDialogue(req.Msg.Conversation, player, target, req.Msg.SpeakContext, req.Msg.WaitForActivation, nil); err != nil {
			return err
		}
		resp.Accepted = true
		resp.View = runtime.View(m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&resp), nil
}

func (as *activeSession) participants(targetID string) (dialog.Actor, dialog.Actor, error) {
	player, ok := as.world.Actor(as.playerID)
	if !ok {
		return nil, nil, connect.NewError(connect.CodeFailedPrecondition, fmt.Errorf("player %q left the world", as.playerID))
	}
	if targetID == "" {
		return player, nil, nil
	}
	target, ok := as.world.Actor(targetID)
	if !ok {
		return nil, nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("actor %q not found", targetID))
	}
	return player, target, nil
}

func (h *DialogueHandler) Activate(ctx context.Context, req *connect.Request[dialogueapi.ActivateRequest]) (*connect.Response[dialogueapi.StateResponse], error) {
	return h.input(ctx, req.Msg.SessionID, (*dialog.Manager).ActivateDialogue)
}

func (h *DialogueHandler) StartOneLine(ctx context.Context, req *connect.Request[dialogueapi.StartOneLineRequest]) (*connect.Response[dialogueapi.StateResponse], error) {
	as, err := h.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}
	line, err := oneLine(req.Msg)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	player, target, err := as.participants(req.Msg.TargetID)
	if err != nil {
		return nil, err
	}
	return h.input(ctx, as.id, func(m *dialog.Manager) bool {
		return m.StartOneLineDialogue(line, player, target, req.Msg.Override, nil)
	})
}

func oneLine(msg *dialogueapi.StartOneLineRequest) (dialog.Line, error) {
	line := dialog.Line{Speaker: dialog.SpeakerTarget, Text: msg.Text, Duration: msg.Duration}
	if msg.Speaker != "" {
		if err := line.Speaker.UnmarshalText([]byte(msg.Speaker)); err != nil {
			return line, err
		}
	}
	if err := line.Expression.UnmarshalText([]byte(msg.Expression)); err != nil {
		return line, err
	}
	if line.Duration == 0 {
		line.Duration = dialog.DurationAuto
	}
	return line, nil
}

func (h *DialogueHandler) Skip(ctx context.Context, req *connect.Request[dialogueapi.SkipRequest]) (*connect.Response[dialogueapi.StateResponse], error) {
	return h.input(ctx, req.Msg.SessionID, func(m *dialog.Manager) bool { return m.SkipDialogue(req.Msg.All) })
}

func (h *DialogueHandler) Select(ctx context.Context, req *connect.Request[dialogueapi.SelectRequest]) (*connect.Response[dialogueapi.StateResponse], error) {
	return h.input(ctx, req.Msg.SessionID, func(m *dialog.Manager) bool {
		if req.Msg.Hovered {
			return m.SelectHoveredOption()
		}
		return m.SelectDialogueOption(req.Msg.Index)
	})
}

func (h *DialogueHandler) Hover(ctx context.Context, req *connect.Request[dialogueapi.HoverRequest]) (*connect.Response[dialogueapi.StateResponse], error) {
	return h.input(ctx, req.Msg.SessionID, func(m *dialog.Manager) bool { return m.HoverOption(req.Msg.Index) })
}

func (h *DialogueHandler) Navigate(ctx context.Context, req *connect.Request[dialogueapi.NavigateRequest]) (*connect.Response[dialogueapi.StateResponse], error) {
	return h.input(ctx, req.Msg.SessionID, func(m *dialog.Manager) bool {
		if req.Msg.Page {
			return m.TurnChoicePage(req.Msg.Direction)
		}
		return m.MoveHoveredOption(req.Msg.Direction)
	})
}

func (h *DialogueHandler) TogglePause(ctx context.Context, req *connect.Request[dialogueapi.TogglePauseRequest]) (*connect.Response[dialogueapi.StateResponse], error) {
	return h.input(ctx, req.Msg.SessionID, (*dialog.Manager).TogglePause)
}

func (h *DialogueHandler) GetState(ctx context.Context, req *connect.Request[dialogueapi.GetStateRequest]) (*connect.Response[dialogueapi.StateResponse], error) {
	return h.input(ctx, req.Msg.SessionID, func(*dialog.Manager) bool { return true })
}

// resolveScope maps a scope name to a context scope. With a dialogue
// running, "target" and "player" follow its participants.
func (as *activeSession) resolveScope(m *dialog.Manager, name string) (dialog.Tag, error) {
	if d := m.Dialogue(); d != nil {
		return d.NamedScope(name), nil
	}
	switch name {
	case "", "global":
		return dialog.GlobalScope, nil
	case "player":
		player, _ := as.world.Actor(as.playerID)
		return dialog.ScopeOf(player), nil
	case "target":
		return "", connect.NewError(connect.CodeFailedPrecondition, errors.New("target scope needs a running dialogue"))
	default:
		return dialog.Tag(name), nil
	}
}

func (h *DialogueHandler) SetContext(ctx context.Context, req *connect.Request[dialogueapi.SetContextRequest]) (*connect.Response[dialogueapi.ContextResponse], error) {
	if !req.Msg.Tag.IsValid() {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("tag is required"))
	}
	as, err := h.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}

	resp := dialogueapi.ContextResponse{Tag: req.Msg.Tag}
	err = h.Do(ctx, as.id, func(m *dialog.Manager) error {
		scope, err := as.resolveScope(m, req.Msg.Scope)
		if err != nil {
			return err
		}
		store := m.Context()
		if req.Msg.Remove {
			store.Remove(req.Msg.Tag, scope)
		} else {
			store.Set(req.Msg.Tag, scope, req.Msg.Value)
		}
		resp.Scope = scope
		resp.Value = store.Get(req.Msg.Tag, scope)
		resp.Present = store.Has(req.Msg.Tag, scope)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&resp), nil
}

func (h *DialogueHandler) GetContext(ctx context.Context, req *connect.Request[dialogueapi.GetContextRequest]) (*connect.Response[dialogueapi.ContextResponse], error) {
	if !req.Msg.Tag.IsValid() {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("tag is required"))
	}
	as, err := h.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}

	resp := dialogueapi.ContextResponse{Tag: req.Msg.Tag}
	err = h.Do(ctx, as.id, func(m *dialog.Manager) error {
		scope, err := as.resolveScope(m, req.Msg.Scope)
		if err != nil {
			return err
		}
		resp.Scope = scope
		resp.Value = m.Context().Get(req.Msg.Tag, scope)
		resp.Present = m.Context().Has(req.Msg.Tag, scope)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&resp), nil
}

func (h *DialogueHandler) saveStore() (savegame.Store, error) {
	if h.saves == nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, errors.New("saving is not configured"))
	}
	return h.saves, nil
}

func (h *DialogueHandler) Save(ctx context.Context, req *connect.Request[dialogueapi.SaveRequest]) (*connect.Response[dialogueapi.SaveResponse], error) {
	saves, err := h.saveStore()
	if err != nil {
		return nil, err
	}
	as, err := h.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}

	var snap dialog.Snapshot
	if err := h.Do(ctx, as.id, func(m *dialog.Manager) error {
		snap = m.Snapshot()
		return nil
	}); err != nil {
		return nil, err
	}
	if err := saves.Save(ctx, as.playerID, req.Msg.Slot, &snap); err != nil {
		util.Log(ctx).WithError(err).WithField("session_id", as.id).Error("save game")
		return nil, toConnectError(err)
	}

	if err := h.publisher.Emit(ctx, events.GameSaved, as.id, events.SaveData{Slot: req.Msg.Slot}); err != nil {
		util.Log(ctx).WithError(err).WithField("session_id", as.id).Warn("emit game saved")
	}
	resp := &dialogueapi.SaveResponse{Slot: req.Msg.Slot}
	if snap.Dialogue != nil {
		resp.Conversation = snap.Dialogue.Name
	}
	return connect.NewResponse(resp), nil
}

func (h *DialogueHandler) Load(ctx context.Context, req *connect.Request[dialogueapi.LoadRequest]) (*connect.Response[dialogueapi.StateResponse], error) {
	saves, err := h.saveStore()
	if err != nil {
		return nil, err
	}
	as, err := h.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}

	snap, err := saves.Load(ctx, as.playerID, req.Msg.Slot)
	if err != nil {
		return nil, toConnectError(err)
	}

	var resp dialogueapi.StateResponse
	if err := h.Do(ctx, as.id, func(m *dialog.Manager) error {
		if err := m.Restore(*snap, nil); err != nil {
			return err
		}
		resp.Accepted = true
		resp.View = runtime.View(m)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := h.publisher.Emit(ctx, events.GameLoaded, as.id, events.SaveData{Slot: req.Msg.Slot}); err != nil {
		util.Log(ctx).WithError(err).WithField("session_id", as.id).Warn("emit game loaded")
	}
	return connect.NewResponse(&resp), nil
}

func (h *DialogueHandler) ListSlots(ctx context.Context, req *connect.Request[dialogueapi.ListSlotsRequest]) (*connect.Response[dialogueapi.ListSlotsResponse], error) {
	saves, err := h.saveStore()
	if err != nil {
		return nil, err
	}
	as, err := h.session(req.Msg.SessionID)
	if err != nil {
		return nil, err
	}

	infos, err := saves.List(ctx, as.playerID)
	if err != nil {
		return nil, toConnectError(err)
	}
	resp := &dialogueapi.ListSlotsResponse{Slots: make([]dialogueapi.SlotInfo, 0, len(infos))}
	for _, info := range infos {
		resp.Slots = append(resp.Slots, dialogueapi.SlotInfo{
			Slot:         info.Slot,
			Conversation: info.Conversation,
			SavedAt:      info.SavedAt.UTC().Format(time.RFC3339),
		})
	}
	return connect.NewResponse(resp), nil
}

func (h *DialogueHandler) ListConversations(_ context.Context, _ *connect.Request[dialogueapi.ListConversationsRequest]) (*connect.Response[dialogueapi.ListConversationsResponse], error) {
	return connect.NewResponse(&dialogueapi.ListConversationsResponse{Conversations: h.registry.Names()}), nil
}

// WatchEvents streams the session's envelopes, starting with a
// dialogue.updated envelope for the current state.
func (h *DialogueHandler) WatchEvents(ctx context.Context, req *connect.Request[dialogueapi.WatchEventsRequest], stream *connect.ServerStream[events.Envelope]) error {
	as, err := h.session(req.Msg.SessionID)
	if err != nil {
		return err
	}

	subID := xid.New().String()
	ch := h.publisher.SubscribeSession(subID, as.id, watchBuffer)
	defer h.publisher.Unsubscribe(subID)

	var view events.DialogueView
	if err := h.Do(ctx, as.id, func(m *dialog.Manager) error {
		view = runtime.View(m)
		return nil
	}); err != nil {
		return err
	}
	first, err := h.publisher.NewEnvelope(events.DialogueUpdated, as.id, view)
	if err != nil {
		return connect.NewError(connect.CodeInternal, err)
	}
	if err := stream.Send(&first); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-as.host.Stopped():
			return nil
		case env, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(&env); err != nil {
				return err
			}
		}
	}
}
