package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"
	"github.com/pitabwire/util"

	dkconfig "github.com/voicetyped/dialoguekit/config"
	"github.com/voicetyped/dialoguekit/internal/connectutil"
	dialoguehandler "github.com/voicetyped/dialoguekit/internal/dialog/handler"
	"github.com/voicetyped/dialoguekit/internal/presentation"
	"github.com/voicetyped/dialoguekit/pkg/dialog"
	"github.com/voicetyped/dialoguekit/pkg/dialog/graph"
	"github.com/voicetyped/dialoguekit/pkg/dialog/luascript"
	"github.com/voicetyped/dialoguekit/pkg/dialogueapi"
	"github.com/voicetyped/dialoguekit/pkg/events"
	"github.com/voicetyped/dialoguekit/pkg/loc"
	"github.com/voicetyped/dialoguekit/pkg/savegame"
	"github.com/voicetyped/dialoguekit/pkg/world"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadWithOIDC[dkconfig.DialogueConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("dialoguekit"),
		frame.WithRegisterServerOauth2Client(),
		frame.WithDatastore(),
		frame.WithRegisterPublisher(eventRef, eventURL),
	)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	authenticator := srv.SecurityManager().GetAuthenticator(ctx)

	pub := events.NewPublisher(srv.QueueManager(), "dialogue", eventRef)

	lang, fallback, err := cfg.Languages()
	if err != nil {
		log.Fatalf("parsing languages: %v", err)
	}
	tables := loc.New(lang, fallback)
	if cfg.StringTableDir != "" {
		if err := tables.LoadDir(cfg.StringTableDir); err != nil {
			log.Fatalf("loading string tables: %v", err)
		}
	}

	registry := dialog.NewRegistry()
	graphs := graph.NewLoader(cfg.ScriptDir, graph.WithLocalizer(tables))
	if _, err := graphs.LoadAll(); err != nil {
		util.Log(ctx).WithError(err).Warn("loading conversation graphs")
	}
	graphs.Register(registry)
	scripts := luascript.NewLoader(cfg.ScriptDir, nil)
	if _, err := scripts.LoadAll(); err != nil {
		util.Log(ctx).WithError(err).Warn("loading lua conversations")
	}
	scripts.Register(registry)

	if cfg.WatchScripts {
		_ = pool.Submit(ctx, func() {
			if err := graphs.WatchAndReload(ctx.Done()); err != nil {
				util.Log(ctx).WithError(err).Error("watching conversation graphs")
			}
		})
		_ = pool.Submit(ctx, func() {
			if err := scripts.WatchAndReload(ctx.Done()); err != nil {
				util.Log(ctx).WithError(err).Error("watching lua conversations")
			}
		})
	}

	opts := []dialoguehandler.Option{
		dialoguehandler.WithSettings(cfg.Settings()),
		dialoguehandler.WithTickRate(cfg.TickRateHz),
		dialoguehandler.WithSessionTTL(cfg.SessionTTL),
	}
	if cfg.WorldFile != "" {
		data, err := os.ReadFile(cfg.WorldFile)
		if err != nil {
			log.Fatalf("reading world: %v", err)
		}
		if _, _, err := world.Parse(data); err != nil {
			log.Fatalf("parsing world: %v", err)
		}
		opts = append(opts, dialoguehandler.WithWorldData(data))
	}
	if cfg.SaveGames {
		saves := savegame.NewGormStore(srv.DatastoreManager().GetPool(ctx, "__default__pool_name__"))
		if err := saves.Migrate(ctx); err != nil {
			log.Fatalf("migrating save slots: %v", err)
		}
		opts = append(opts, dialoguehandler.WithSaveStore(saves))
	}

	handler := dialoguehandler.NewDialogueHandler(registry, pub, pool, opts...)
	defer handler.Close()

	mux := http.NewServeMux()
	rpcOpts, err := connectutil.AuthenticatedOptions(ctx, authenticator)
	if err != nil {
		log.Fatalf("setting up auth interceptors: %v", err)
	}
	path, hdlr := dialogueapi.NewDialogueServiceHandler(handler, rpcOpts...)
	mux.Handle(path, hdlr)
	mux.Handle("/ws", connectutil.AuthenticatedHTTPMiddleware(presentation.NewServer(handler), authenticator))

	handler.StartReaper(ctx)

	srv.Init(ctx, frame.WithHTTPHandler(connectutil.H2CHandler(mux)))

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
