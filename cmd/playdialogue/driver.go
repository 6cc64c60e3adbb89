package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	dkconfig "github.com/voicetyped/dialoguekit/config"
	"github.com/voicetyped/dialoguekit/internal/connectutil"
	"github.com/voicetyped/dialoguekit/internal/presentation"
	"github.com/voicetyped/dialoguekit/internal/runtime"
	"github.com/voicetyped/dialoguekit/pkg/dialog"
	"github.com/voicetyped/dialoguekit/pkg/dialog/graph"
	"github.com/voicetyped/dialoguekit/pkg/dialog/luascript"
	"github.com/voicetyped/dialoguekit/pkg/dialogueapi"
	"github.com/voicetyped/dialoguekit/pkg/events"
	"github.com/voicetyped/dialoguekit/pkg/loc"
	"github.com/voicetyped/dialoguekit/pkg/savegame"
	"github.com/voicetyped/dialoguekit/pkg/world"
)

// driver runs a dialogue session for the terminal, in process or against
// a remote service.
type driver interface {
	Start(ctx context.Context, conversation, targetID string) (events.DialogueView, error)
	Input(ctx context.Context, cmd presentation.Command) (bool, events.DialogueView, error)
	State(ctx context.Context) (events.DialogueView, error)
	Save(ctx context.Context, slot string) error
	Load(ctx context.Context, slot string) (events.DialogueView, error)
	Close()
}

type localDriver struct {
	host     *runtime.Host
	world    *world.World
	playerID string
	saves    savegame.Store
	closeDB  func() error
	cancel   context.CancelFunc
}

func loadRegistry(cfg dkconfig.PlayerConfig, logger *slog.Logger) (*dialog.Registry, error) {
	lang, fallback, err := cfg.Languages()
	if err != nil {
		return nil, err
	}
	tables := loc.New(lang, fallback)
	if cfg.StringTableDir != "" {
		if err := tables.LoadDir(cfg.StringTableDir); err != nil {
			return nil, err
		}
	}

	reg := dialog.NewRegistry()
	graphs := graph.NewLoader(cfg.ScriptDir, graph.WithLocalizer(tables), graph.WithLogger(logger))
	if _, err := graphs.LoadAll(); err != nil {
		return nil, err
	}
	graphs.Register(reg)
	scripts := luascript.NewLoader(cfg.ScriptDir, logger)
	if _, err := scripts.LoadAll(); err != nil {
		return nil, err
	}
	scripts.Register(reg)
	return reg, nil
}

func newLocalDriver(ctx context.Context, cfg dkconfig.PlayerConfig, logger *slog.Logger) (*localDriver, error) {
	reg, err := loadRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}

	w := world.New()
	var seed []dialog.ContextEntry
	if cfg.WorldFile != "" {
		if w, seed, err = world.Load(cfg.WorldFile); err != nil {
			return nil, err
		}
	}
	if _, ok := w.Get(cfg.PlayerID); !ok {
		w.Spawn(cfg.PlayerID, "player", dialog.Vec3{}, "")
	}

	saves, err := savegame.OpenSQLite(ctx, cfg.SaveDBPath)
	if err != nil {
		return nil, err
	}

	m := dialog.NewManager(cfg.Settings(), dialog.WithRegistry(reg), dialog.WithWorld(w), dialog.WithLogger(logger))
	m.SeedContext(seed)

	runCtx, cancel := context.WithCancel(ctx)
	d := &localDriver{
		host:     runtime.NewHost("local", m, runtime.WithHostLogger(logger)),
		world:    w,
		playerID: cfg.PlayerID,
		saves:    saves,
		closeDB:  saves.Close,
		cancel:   cancel,
	}
	go d.host.Run(runCtx)
	return d, nil
}

func (d *localDriver) view(ctx context.Context, fn func(*dialog.Manager) error) (events.DialogueView, error) {
	var v events.DialogueView
	err := d.host.Do(ctx, func(m *dialog.Manager) error {
		if err := fn(m); err != nil {
			return err
		}
		v = runtime.View(m)
		return nil
	})
	return v, err
}

func (d *localDriver) Start(ctx context.Context, conversation, targetID string) (events.DialogueView, error) {
	player, _ := d.world.Actor(d.playerID)
	var target dialog.Actor
	if targetID != "" {
		a, ok := d.world.Actor(targetID)
		if !ok {
			return events.DialogueView{}, fmt.Errorf("actor %q not found", targetID)
		}
		target = a
	}
	return d.view(ctx, func(m *dialog.Manager) error {
		return m.StartDialogue(conversation, player, target, "", false, nil)
	})
}

func (d *localDriver) Input(ctx context.Context, cmd presentation.Command) (bool, events.DialogueView, error) {
	var accepted bool
	v, err := d.view(ctx, func(m *dialog.Manager) error {
		var err error
		accepted, err = presentation.Apply(m, cmd)
		return err
	})
	return accepted, v, err
}

func (d *localDriver) State(ctx context.Context) (events.DialogueView, error) {
	return d.view(ctx, func(*dialog.Manager) error { return nil })
}

func (d *localDriver) Save(ctx context.Context, slot string) error {
	var snap dialog.Snapshot
	if err := d.host.Do(ctx, func(m *dialog.Manager) error {
		snap = m.Snapshot()
		return nil
	}); err != nil {
		return err
	}
	return d.saves.Save(ctx, d.playerID, slot, &snap)
}

func (d *localDriver) Load(ctx context.Context, slot string) (events.DialogueView, error) {
	snap, err := d.saves.Load(ctx, d.playerID, slot)
	if err != nil {
		return events.DialogueView{}, err
	}
	return d.view(ctx, func(m *dialog.Manager) error { return m.Restore(*snap, nil) })
}

func (d *localDriver) Close() {
	d.cancel()
	<-d.host.Stopped()
	if err := d.closeDB(); err != nil {
		slog.Warn("closing save database", slog.String("error", err.Error()))
	}
}

type remoteDriver struct {
	client    *dialogueapi.Client
	sessionID string
}

func newRemoteDriver(ctx context.Context, cfg dkconfig.PlayerConfig) (*remoteDriver, error) {
	client := dialogueapi.NewClient(http.DefaultClient, cfg.RemoteURL, connectutil.DefaultClientOptions()...)
	resp, err := client.StartSession(ctx, connect.NewRequest(&dialogueapi.StartSessionRequest{PlayerID: cfg.PlayerID}))
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return &remoteDriver{client: client, sessionID: resp.Msg.SessionID}, nil
}

func (d *remoteDriver) ref() dialogueapi.SessionRef {
	return dialogueapi.SessionRef{SessionID: d.sessionID}
}

func (d *remoteDriver) Start(ctx context.Context, conversation, targetID string) (events.DialogueView, error) {
	resp, err := d.client.StartDialogue(ctx, connect.NewRequest(&dialogueapi.StartDialogueRequest{
		SessionRef:   d.ref(),
		Conversation: conversation,
		TargetID:     targetID,
	}))
	if err != nil {
		return events.DialogueView{}, err
	}
	return resp.Msg.View, nil
}

func (d *remoteDriver) Input(ctx context.Context, cmd presentation.Command) (bool, events.DialogueView, error) {
	var (
		resp *connect.Response[dialogueapi.StateResponse]
		err  error
	)
	switch cmd.Type {
	case "skip":
		resp, err = d.client.Skip(ctx, connect.NewRequest(&dialogueapi.SkipRequest{SessionRef: d.ref(), All: cmd.All}))
	case "select":
		resp, err = d.client.Select(ctx, connect.NewRequest(&dialogueapi.SelectRequest{SessionRef: d.ref(), Index: cmd.Index, Hovered: cmd.Hovered}))
	case "hover":
		resp, err = d.client.Hover(ctx, connect.NewRequest(&dialogueapi.HoverRequest{SessionRef: d.ref(), Index: cmd.Index}))
	case "navigate", "page":
		resp, err = d.client.Navigate(ctx, connect.NewRequest(&dialogueapi.NavigateRequest{SessionRef: d.ref(), Direction: cmd.Direction, Page: cmd.Type == "page"}))
	case "pause":
		resp, err = d.client.TogglePause(ctx, connect.NewRequest(&dialogueapi.TogglePauseRequest{SessionRef: d.ref()}))
	case "activate":
		resp, err = d.client.Activate(ctx, connect.NewRequest(&dialogueapi.ActivateRequest{SessionRef: d.ref()}))
	default:
		return false, events.DialogueView{}, fmt.Errorf("unknown command %q", cmd.Type)
	}
	if err != nil {
		return false, events.DialogueView{}, err
	}
	return resp.Msg.Accepted, resp.Msg.View, nil
}

func (d *remoteDriver) State(ctx context.Context) (events.DialogueView, error) {
	resp, err := d.client.GetState(ctx, connect.NewRequest(&dialogueapi.GetStateRequest{SessionRef: d.ref()}))
	if err != nil {
		return events.DialogueView{}, err
	}
	return resp.Msg.View, nil
}

func (d *remoteDriver) Save(ctx context.Context, slot string) error {
	_, err := d.client.Save(ctx, connect.NewRequest(&dialogueapi.SaveRequest{SessionRef: d.ref(), Slot: slot}))
	return err
}

func (d *remoteDriver) Load(ctx context.Context, slot string) (events.DialogueView, error) {
	resp, err := d.client.Load(ctx, connect.NewRequest(&dialogueapi.LoadRequest{SessionRef: d.ref(), Slot: slot}))
	if err != nil {
		return events.DialogueView{}, err
	}
	return resp.Msg.View, nil
}

func (d *remoteDriver) Close() {
	_, err := d.client.EndSession(context.Background(), connect.NewRequest(&dialogueapi.EndSessionRequest{SessionRef: d.ref()}))
	if err != nil {
		slog.Warn("ending remote session", slog.String("error", err.Error()))
	}
}
