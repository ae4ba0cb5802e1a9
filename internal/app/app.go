// Package app 组装同步引擎的依赖，守护进程和 syncctl 共用。
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"frontsync/internal/changes"
	"frontsync/internal/config"
	"frontsync/internal/frontapi"
	"frontsync/internal/health"
	"frontsync/internal/repository"
	"frontsync/internal/store"
	"frontsync/internal/syncer"
	"frontsync/pkg/circuitbreaker"
	"frontsync/pkg/db"
	"frontsync/pkg/kv"
	redisclient "frontsync/pkg/redis"
)

const kvPrefix = "frontsync:"

type App struct {
	Config *config.Config
	Logger *zap.Logger
	// Pool, Store 和 Redis 在 dry-run 模式下为空
	Pool         *pgxpool.Pool
	Store        *repository.Postgres
	Redis        *redis.Client
	Monitor      *health.Monitor
	Client       *frontapi.Client
	Detector     *changes.Detector
	Orchestrator *syncer.Orchestrator
}

// New 连接 PostgreSQL 和 Redis 并构建编排器；失败时已打开的连接会被关闭
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	pool, err := db.NewConnection(ctx, cfg.DB, cfg.SlowQueryThreshold, logger)
	if err != nil {
		return nil, fmt.Errorf("init db: %w", err)
	}

	rdb, err := redisclient.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	st := repository.NewPostgres(pool, logger)
	a := build(cfg, st, kv.NewRedis(rdb, kvPrefix), logger)
	a.Pool, a.Store, a.Redis = pool, st, rdb
	return a, nil
}

// NewDryRun 使用内存存储：从远端拉取并走完整个同步流程，但不写数据库
func NewDryRun(cfg *config.Config, logger *zap.Logger) *App {
	return build(cfg, store.NewMemory(), kv.NewMemory(), logger)
}

func build(cfg *config.Config, st store.Store, kvs kv.Store, logger *zap.Logger) *App {
	monitor := health.NewMonitor(kvs, st.SyncRuns(), health.Config{
		Breaker: circuitbreaker.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Cooldown:         cfg.Breaker.Cooldown,
		},
		StuckAfter: cfg.Health.StuckAfter,
	}, logger)

	clientCfg := frontapi.DefaultConfig()
	clientCfg.BaseURL = cfg.Front.BaseURL
	clientCfg.Token = cfg.Front.Token
	clientCfg.PageLimit = cfg.Front.PageLimit
	clientCfg.MaxRetries = cfg.Front.MaxRetries
	clientCfg.BaseDelay = cfg.Front.RetryDelay
	clientCfg.MaxDelay = cfg.Front.MaxDelay
	client := frontapi.NewClient(clientCfg, monitor, logger)

	detectorCfg := changes.DefaultConfig()
	if cfg.Sync.MaxEvents > 0 {
		detectorCfg.MaxEvents = cfg.Sync.MaxEvents
	}
	if cfg.Sync.NewConversationPages > 0 {
		detectorCfg.NewConversationPages = cfg.Sync.NewConversationPages
	}
	detector := changes.NewDetector(client, detectorCfg, logger)

	registry := syncer.DefaultRegistry(syncer.Deps{
		Store:           st,
		Client:          client,
		Logger:          logger,
		IncludeComments: cfg.Sync.IncludeComments,
	})
	orch := syncer.NewOrchestrator(st, registry, detector, monitor, syncer.OrchestratorConfig{
		FoundationConcurrency: cfg.Sync.FoundationConcurrency,
	}, logger)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Monitor:      monitor,
		Client:       client,
		Detector:     detector,
		Orchestrator: orch,
	}
}

func (a *App) Close() {
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
