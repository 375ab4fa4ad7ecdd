package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/subosito/gotenv"

	"github.com/shulebox/circulation/internal/catalog/postgres"
	"github.com/shulebox/circulation/internal/circulation"
	"github.com/shulebox/circulation/internal/config"
	"github.com/shulebox/circulation/internal/infra/db"
	httpx "github.com/shulebox/circulation/internal/infra/http"
	"github.com/shulebox/circulation/internal/infra/logger"
	"github.com/shulebox/circulation/internal/infra/metrics"
	"github.com/shulebox/circulation/internal/infra/notify"
	"github.com/shulebox/circulation/internal/jobs"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("postgres", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func main() {
	_ = gotenv.Load()

	cfgPath := os.Getenv("APP_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/example.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.Postgres.DSN); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	var sink notify.Sink
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegramSink(cfg.Telegram.Token, cfg.Telegram.OpsChatID,
			time.Duration(cfg.Telegram.TimeoutSec)*time.Second, log)
		if err != nil {
			log.Error("telegram sink init failed", "err", err)
			return
		}
		sink = tg
	} else {
		sink = notify.NewLogSink(log)
	}

	store := postgres.New(pool)
	met := metrics.New(prometheus.DefaultRegisterer)
	svc := circulation.NewService(store, sink, log, met, circulation.Config{
		DefaultLoanDays:    cfg.Circulation.DefaultLoanDays,
		ClaimWindowDays:    cfg.Circulation.ClaimWindowDays,
		FineBlockThreshold: cfg.Circulation.FineBlockThreshold,
		DefaultWaitDays:    cfg.Circulation.DefaultWaitDays,
	})
	stats := circulation.NewStatsReader(store, time.Duration(cfg.Circulation.StatsCacheTTLSec)*time.Second)

	sched, err := jobs.Start(svc, log, cfg)
	if err != nil {
		log.Error("scheduler init failed", "err", err)
		return
	}
	defer sched.Stop()
	log.Info("sweeps scheduled",
		"overdue", cfg.Jobs.OverdueSweep,
		"reservations", cfg.Jobs.ReservationSweep,
		"popularity", cfg.Jobs.PopularitySweep)

	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled, svc, stats, log)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
