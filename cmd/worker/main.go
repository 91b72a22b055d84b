package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/fiecsoft/procflow/internal/audit"
	"github.com/fiecsoft/procflow/internal/config"
	"github.com/fiecsoft/procflow/internal/database"
	"github.com/fiecsoft/procflow/internal/logger"
	"github.com/fiecsoft/procflow/internal/objstore"
	"github.com/fiecsoft/procflow/internal/repository"
	"github.com/fiecsoft/procflow/internal/worker"
	"github.com/fiecsoft/procflow/internal/workflow"
)

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

	if cfg.DatabaseURL == "" {
		zlog.Fatal("worker requires PROCFLOW_DATABASE_URL; the in-memory store is not shared across processes")
	}
	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		zlog.Fatal("connect database", zap.Error(err))
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		zlog.Fatal("ensure schema", zap.Error(err))
	}
	repo := repository.New(pool)

	objects, err := objstore.New(cfg)
	if err != nil {
		zlog.Fatal("init object storage", zap.Error(err))
	}
	if err := objects.EnsureBuckets(ctx); err != nil {
		zlog.Fatal("ensure buckets", zap.Error(err))
	}

	bus := audit.NewBus(zlog, cfg.EventWorkers)
	bus.Subscribe(audit.NewTrailSink(repo, zlog))
	bus.Start(ctx)
	engine := workflow.NewService(repo, bus)

	server := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, asynq.Config{
		Concurrency: cfg.Workers,
	})
	processor := worker.NewProcessor(repo, objects, engine, zlog)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	if err := server.Run(mux); err != nil {
		zlog.Error("worker stopped", zap.Error(err))
		os.Exit(1)
	}
}
