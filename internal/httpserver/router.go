package httpserver

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"frontsync/internal/health"
	"frontsync/internal/syncer"
	"frontsync/pkg/otel"
	"frontsync/pkg/rbac"
)

// Monitor 由 health.Monitor 实现
type Monitor interface {
	SyncStatus(ctx context.Context) (health.SyncStatus, error)
	HealthMetrics(ctx context.Context) (health.HealthMetrics, error)
	PerformanceStats(ctx context.Context) (health.PerformanceStats, error)
	CircuitBreakerStatus(ctx context.Context) (health.CircuitBreakerStatus, error)
	ResetCircuitBreaker(ctx context.Context) error
}

type ConversationSyncer interface {
	SyncConversationIDs(ctx context.Context, ids []string, withMessages bool) syncer.Stats
}

// Enqueuer 把重新同步请求发布到 MQ，由 mq.Publisher 实现
type Enqueuer interface {
	PublishWithContext(ctx context.Context, routingKey string, payload any) error
}

type OutboxReplayer interface {
	ReplayEvent(ctx context.Context, eventID int64) error
	ReplayFailedEvents(ctx context.Context, limit int) (int, error)
}

// ReadinessCheck 返回 nil 表示依赖可用
type ReadinessCheck func(ctx context.Context) error

type Deps struct {
	Monitor   Monitor
	Syncer    ConversationSyncer
	Enqueuer  Enqueuer       // 可选；为空时同步执行
	Replayer  OutboxReplayer // 可选
	Readiness map[string]ReadinessCheck
	JWTSecret string
	Logger    *zap.Logger
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), TraceMiddleware(), otel.GinMiddleware())

	sync := NewSyncHandler(d.Monitor, d.Syncer, d.Enqueuer, d.Logger)
	probes := NewProbeHandler(d.Readiness, d.Logger)

	r.GET("/healthz", probes.Liveness)
	r.GET("/readyz", probes.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/sync/status", sync.Status)
	r.GET("/sync/health", sync.Health)
	r.GET("/sync/performance", sync.Performance)
	r.GET("/sync/circuit-breaker", sync.CircuitBreaker)

	admin := r.Group("/admin")
	admin.Use(AuthMiddleware(d.JWTSecret))
	{
		admin.POST("/circuit-breaker/reset", RequirePermission(rbac.PermissionResetBreaker), sync.ResetCircuitBreaker)
		admin.POST("/sync/conversations", RequirePermission(rbac.PermissionTriggerSync), sync.SyncConversations)

		if d.Replayer != nil {
			outbox := NewAdminHandler(d.Replayer, d.Logger)
			admin.POST("/outbox/replay", RequirePermission(rbac.PermissionTriggerSync), outbox.ReplayOutboxEvent)
			admin.POST("/outbox/replay-failed", RequirePermission(rbac.PermissionTriggerSync), outbox.ReplayFailedEvents)
		}
	}

	return r
}
