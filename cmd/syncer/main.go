package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"frontsync/internal/app"
	"frontsync/internal/config"
	"frontsync/internal/httpserver"
	"frontsync/internal/mqhandler"
	"frontsync/internal/scheduler"
	pkgconfig "frontsync/pkg/config"
	"frontsync/pkg/logger"
	"frontsync/pkg/mq"
	"frontsync/pkg/otel"
	"frontsync/pkg/outbox"
	"frontsync/pkg/util"
)

const retryCounterTTL = 24 * time.Hour

func main() {
	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	cfg, err := config.Load(pkgconfig.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		logger.NewLogger("info").Fatal("Failed to load config", zap.Error(err))
	}

	log := logger.NewLogger(cfg.LogLevel)
	defer log.Sync()

	log.Info("Starting frontsync syncer...",
		zap.String("env", cfg.Env),
		zap.String("db_host", cfg.DB.Host),
		zap.String("front_base_url", cfg.Front.BaseURL),
	)

	shutdownTracing, err := otel.Init(otel.Config{
		ServiceName:    "frontsync-syncer",
		ServiceVersion: "1.0.0",
		Endpoint:       cfg.OTel.Endpoint,
		Enabled:        cfg.OTel.Enabled,
		SampleRatio:    cfg.OTel.SampleRatio,
	}, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownTracing()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB + Redis + 编排器
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("Failed to init sync engine", zap.Error(err))
	}
	defer a.Close()

	if err := a.Store.Migrate(ctx); err != nil {
		log.Fatal("Failed to apply schema", zap.Error(err))
	}

	// MQ Publisher
	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to init MQ publisher", zap.Error(err))
	}
	defer publisher.Close()

	if err := publisher.DeclareDLQ(cfg.Resync.RoutingKey); err != nil {
		log.Fatal("Failed to declare resync DLQ", zap.Error(err))
	}

	// 重新同步请求消费者
	consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.Resync.Queue, cfg.Resync.RoutingKey, log)
	if err != nil {
		log.Fatal("Failed to init MQ consumer", zap.Error(err))
	}
	defer consumer.Close()

	resync := mqhandler.NewConversationResyncHandler(
		a.Orchestrator,
		util.NewDeduper(a.Redis, cfg.Resync.DedupTTL, log),
		util.NewRetryCounter(a.Redis, retryCounterTTL),
		publisher,
		cfg.Resync.MaxRetries,
		log,
	)
	consumer.SetHandler(resync.Handle)

	outboxRepo := a.Store.Outbox()
	dispatcher := outbox.NewDispatcher(outboxRepo, publisher, log).
		WithInterval(cfg.Outbox.Interval).
		WithBatchSize(cfg.Outbox.BatchSize).
		WithMaxRetries(cfg.Outbox.MaxRetries)

	sched := scheduler.New(a.Orchestrator, a.Store.SyncRuns(), scheduler.Config{
		IncrementalInterval: cfg.Sync.IncrementalInterval,
		FullInterval:        cfg.Sync.FullInterval,
		Overlap:             cfg.Sync.Overlap,
	}, log)

	router := httpserver.NewRouter(httpserver.Deps{
		Monitor:  a.Monitor,
		Syncer:   a.Orchestrator,
		Enqueuer: publisher,
		Replayer: outbox.NewReplayService(outboxRepo, publisher, log),
		Readiness: map[string]httpserver.ReadinessCheck{
			"postgres": a.Store.Ping,
			"redis": func(ctx context.Context) error {
				return a.Redis.Ping(ctx).Err()
			},
			"rabbitmq": func(ctx context.Context) error {
				if !publisher.IsConnected() {
					return errors.New("publisher connection closed")
				}
				return nil
			},
		},
		JWTSecret: cfg.JWT.Secret,
		Logger:    log,
	})
	srv := httpserver.NewServer(cfg.Server.Port, router, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dispatcher.Start(gctx)
		return nil
	})
	g.Go(func() error {
		sched.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return consumer.StartConsuming(gctx)
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("frontsync syncer is fully initialized and running")

	if err := g.Wait(); err != nil {
		log.Error("Syncer stopped with error", zap.Error(err))
		exitCode = 1
		return
	}
	log.Info("frontsync syncer shutdown complete")
}
