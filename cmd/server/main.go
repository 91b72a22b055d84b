package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/fiecsoft/procflow/internal/api"
	"github.com/fiecsoft/procflow/internal/audit"
	"github.com/fiecsoft/procflow/internal/catalog"
	"github.com/fiecsoft/procflow/internal/config"
	"github.com/fiecsoft/procflow/internal/database"
	"github.com/fiecsoft/procflow/internal/identity"
	"github.com/fiecsoft/procflow/internal/ledger"
	"github.com/fiecsoft/procflow/internal/logger"
	"github.com/fiecsoft/procflow/internal/model"
	"github.com/fiecsoft/procflow/internal/objstore"
	"github.com/fiecsoft/procflow/internal/queue"
	"github.com/fiecsoft/procflow/internal/repository"
	"github.com/fiecsoft/procflow/internal/signing"
	"github.com/fiecsoft/procflow/internal/store"
	"github.com/fiecsoft/procflow/internal/workflow"
)

// dataStore is everything the API process needs from one backend. Both the
// in-memory store and the Postgres repository satisfy it.
type dataStore interface {
	workflow.Store
	catalog.Store
	identity.Store
	ledger.Store
	audit.TrailStore
	api.Store
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	zlog, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	var db dataStore
	if cfg.DatabaseURL != "" {
		pool, err := database.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			zlog.Fatal("connect database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			zlog.Fatal("ensure schema", zap.Error(err))
		}
		db = repository.New(pool)
	} else {
		zlog.Warn("no database configured, using in-memory store")
		db = store.NewMemory()
	}

	objects, err := objstore.New(cfg)
	if err != nil {
		zlog.Fatal("init object storage", zap.Error(err))
	}
	if err := objects.EnsureBuckets(ctx); err != nil {
		zlog.Warn("ensure buckets, uploads unavailable until object storage is reachable", zap.Error(err))
	}

	queueClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer queueClient.Close()

	bus := audit.NewBus(zlog, cfg.EventWorkers)
	bus.Subscribe(audit.NewTrailSink(db, zlog))
	bus.Subscribe(audit.NewLogSink(zlog))
	bus.Subscribe(notifySink(queueClient, zlog))
	bus.Start(ctx)

	engine := workflow.NewService(db, bus)
	catalogSvc := catalog.NewService(db, bus)
	ledgerSvc := ledger.NewService(db, objects, engine, bus)
	identitySvc := identity.NewService(db, cfg.JWTSecret, cfg.TokenTTL)
	signer := signing.NewSigner(cfg.SigningSecret)

	srv := api.New(cfg, zlog, api.Deps{
		Identity: identitySvc,
		Catalog:  catalogSvc,
		Engine:   engine,
		Ledger:   ledgerSvc,
		Store:    db,
		Exports:  objects,
		Queue:    queueClient,
		Signer:   signer,
	})
	if err := srv.Run(ctx); err != nil {
		zlog.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

// notifySink forwards core events to the worker's notification task. Delivery
// failures are logged and dropped; notifications are best-effort.
func notifySink(client *asynq.Client, zlog *zap.Logger) audit.Sink {
	return func(ctx context.Context, ev model.Event) {
		if err := queue.EnqueueNotify(ctx, client, queue.NotifyPayload{Event: ev}); err != nil {
			zlog.Warn("enqueue notify", zap.String("event", string(ev.Type)), zap.Error(err))
		}
	}
}
