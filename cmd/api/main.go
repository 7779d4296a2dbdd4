package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	r "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/you/uvian/internal/bus"
	"github.com/you/uvian/internal/config"
	"github.com/you/uvian/internal/jobs"
	"github.com/you/uvian/internal/queue"
	"github.com/you/uvian/internal/relay"
	"github.com/you/uvian/internal/server"
	"github.com/you/uvian/internal/storage"
	"github.com/you/uvian/internal/ws"
)

func main() {
	cfg := config.Load()
	log := newLogger(cfg.AppEnv)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := storage.Migrate(cfg.PostgresDSN, cfg.MigrationsDir); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

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
	hub := ws.NewHub(log)
	mgr := jobs.NewManager(store, q, b, log)

	rel := relay.New(b, hub, log)
	rel.Start(ctx)
	defer rel.Stop()

	srv := server.New(mgr, hub, log)
	httpSrv := &http.Server{Addr: cfg.APIAddr, Handler: srv.Routes()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
	}()

	log.Info("api listening", zap.String("addr", cfg.APIAddr))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("http serve", zap.Error(err))
	}
	log.Info("api stopped")
}

func newLogger(appEnv string) *zap.Logger {
	if appEnv == "dev" {
		log, _ := zap.NewDevelopment()
		return log
	}
	log, _ := zap.NewProduction()
	return log
}
