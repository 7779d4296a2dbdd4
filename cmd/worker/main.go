package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/uvian/internal/bus"
	"github.com/you/uvian/internal/config"
	"github.com/you/uvian/internal/jobs"
	"github.com/you/uvian/internal/queue"
	"github.com/you/uvian/internal/storage"
	"github.com/you/uvian/internal/worker"
)

func main() {
	cfg := config.Load()
	log := newLogger(cfg.AppEnv)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := pgxpool.New(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()

	rdb := r.NewClient(&r.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer rdb.Close()

	store := storage.New(db)
	q := queue.New(rdb)
	b := bus.NewRedis(rdb, log)
	mgr := jobs.NewManager(store, q, b, log)

	reg := worker.NewRegistry()
	reg.Register("echo", worker.Echo)
	summarizer := &worker.Summarizer{}
	reg.Register("summarize", summarizer.Handle)

	pool := worker.NewPool(q, mgr, b, reg, cfg.WorkerConcurrency, log)
	log.Info("worker running",
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.Strings("types", reg.Names()))

	if err := pool.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("worker pool", zap.Error(err))
	}
	log.Info("worker stopped")
}

func newLogger(appEnv string) *zap.Logger {
	if appEnv == "dev" {
		log, _ := zap.NewDevelopment()
		return log
	}
	log, _ := zap.NewProduction()
	return log
}
