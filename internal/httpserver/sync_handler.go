package httpserver

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	mqcontracts "frontsync/contracts/mq"
	"frontsync/pkg/logger"
	"frontsync/pkg/trace"
)

// maxSyncRequestIDs 单次请求最多的会话数
const maxSyncRequestIDs = 100

type SyncHandler struct {
	monitor  Monitor
	syncer   ConversationSyncer
	enqueuer Enqueuer
	logger   *zap.Logger
}

func NewSyncHandler(monitor Monitor, s ConversationSyncer, enqueuer Enqueuer, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{monitor: monitor, syncer: s, enqueuer: enqueuer, logger: logger}
}

// Status GET /sync/status
func (h *SyncHandler) Status(c *gin.Context) {
	status, err := h.monitor.SyncStatus(c.Request.Context())
	h.respond(c, "sync status", status, err)
}

// Health GET /sync/health
func (h *SyncHandler) Health(c *gin.Context) {
	m, err := h.monitor.HealthMetrics(c.Request.Context())
	h.respond(c, "health metrics", m, err)
}

// Performance GET /sync/performance
func (h *SyncHandler) Performance(c *gin.Context) {
	p, err := h.monitor.PerformanceStats(c.Request.Context())
	h.respond(c, "performance stats", p, err)
}

// CircuitBreaker GET /sync/circuit-breaker
func (h *SyncHandler) CircuitBreaker(c *gin.Context) {
	s, err := h.monitor.CircuitBreakerStatus(c.Request.Context())
	h.respond(c, "circuit breaker status", s, err)
}

// ResetCircuitBreaker POST /admin/circuit-breaker/reset
func (h *SyncHandler) ResetCircuitBreaker(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.monitor.ResetCircuitBreaker(ctx); err != nil {
		h.respond(c, "reset circuit breaker", nil, err)
		return
	}
	logger.WithTrace(ctx, h.logger).Warn("Circuit breaker reset manually",
		zap.String("subject", c.GetString(ctxSubject)))

	status, err := h.monitor.CircuitBreakerStatus(ctx)
	h.respond(c, "circuit breaker status", status, err)
}

type syncConversationsRequest struct {
	ConversationIDs []string `json:"conversation_ids" binding:"required"`
	WithMessages    bool     `json:"with_messages"`
	// Async 为 true 且配置了 MQ 时只入队
	Async bool `json:"async"`
}

// SyncConversations POST /admin/sync/conversations
func (h *SyncHandler) SyncConversations(c *gin.Context) {
	var req syncConversationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	ids := make([]string, 0, len(req.ConversationIDs))
	for _, id := range req.ConversationIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 || len(ids) > maxSyncRequestIDs {
		c.JSON(http.StatusBadRequest, gin.H{"error": "conversation_ids must contain 1 to 100 ids"})
		return
	}

	ctx := c.Request.Context()
	log := logger.WithTrace(ctx, h.logger)
	subject := c.GetString(ctxSubject)

	if req.Async && h.enqueuer != nil {
		payload := mqcontracts.ConversationResyncPayload{
			ConversationIDs: ids,
			WithMessages:    req.WithMessages,
			RequestedBy:     subject,
			TraceID:         trace.FromContext(ctx),
		}
		if err := h.enqueuer.PublishWithContext(ctx, mqcontracts.RoutingKeyConversationResync, payload); err != nil {
			log.Error("Failed to enqueue resync request", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to enqueue resync request"})
			return
		}
		log.Info("Resync request enqueued", zap.Strings("conversation_ids", ids), zap.String("subject", subject))
		c.JSON(http.StatusAccepted, gin.H{"status": "queued", "conversation_ids": ids})
		return
	}

	log.Info("Running targeted conversation sync", zap.Strings("conversation_ids", ids), zap.String("subject", subject))
	stats := h.syncer.SyncConversationIDs(ctx, ids, req.WithMessages)
	code := http.StatusOK
	if stats.Incomplete() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, stats)
}

func (h *SyncHandler) respond(c *gin.Context, what string, body any, err error) {
	if err != nil {
		logger.WithTrace(c.Request.Context(), h.logger).Error("Failed to load "+what, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load " + what})
		return
	}
	c.JSON(http.StatusOK, body)
}
