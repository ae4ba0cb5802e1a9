package httpserver

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ProbeHandler struct {
	checks map[string]ReadinessCheck
	logger *zap.Logger
}

func NewProbeHandler(checks map[string]ReadinessCheck, logger *zap.Logger) *ProbeHandler {
	return &ProbeHandler{checks: checks, logger: logger}
}

// Liveness GET /healthz
func (h *ProbeHandler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Readiness GET /readyz 所有依赖都可用才返回 200
func (h *ProbeHandler) Readiness(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	ready := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			ready = false
			results[name] = err.Error()
			h.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			continue
		}
		results[name] = "ok"
	}

	code := http.StatusOK
	status := "ready"
	if !ready {
		code = http.StatusServiceUnavailable
		status = "not_ready"
	}
	c.JSON(code, gin.H{"status": status, "checks": results})
}
