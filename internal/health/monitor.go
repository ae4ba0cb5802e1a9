// Package health 记录每次远端调用的结果，维护熔断器和滚动指标。
package health

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"frontsync/internal/store"
	"frontsync/pkg/circuitbreaker"
	"frontsync/pkg/kv"
	"frontsync/pkg/metrics"
	"frontsync/pkg/util"
)

const (
	keyTotals        = "health:totals"
	keyFailures      = "health:failure_patterns"
	keyHourly        = "health:hourly"
	keyResponseTimes = "health:response_times"
	keyWindow        = "health:window"

	responseWindow = 100
	breakerName    = "front_api"
)

type Config struct {
	Breaker circuitbreaker.Config
	// StuckAfter 运行中超过该时长的同步视为卡住
	StuckAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		Breaker:    circuitbreaker.DefaultConfig(),
		StuckAfter: 2 * time.Hour,
	}
}

type window struct {
	StartedAt time.Time `json:"started_at"`
}

// Monitor 显式构造并注入到客户端和编排器中
type Monitor struct {
	kv         kv.Store
	breaker    *circuitbreaker.CircuitBreaker
	runs       store.SyncRunRepository
	stuckAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

func NewMonitor(kvs kv.Store, runs store.SyncRunRepository, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.StuckAfter <= 0 {
		cfg.StuckAfter = DefaultConfig().StuckAfter
	}
	return &Monitor{
		kv:         kvs,
		breaker:    circuitbreaker.NewCircuitBreaker(breakerName, cfg.Breaker, kvs),
		runs:       runs,
		stuckAfter: cfg.StuckAfter,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock 替换时钟（测试用），熔断器共用同一时钟
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	m.breaker.WithClock(now)
	return m
}

// Allow 熔断器打开且未到冷却结束时返回 false。
// 状态读取失败时放行，只记录警告。
func (m *Monitor) Allow(ctx context.Context) bool {
	ok, err := m.breaker.Allow(ctx)
	if err != nil {
		m.logger.Warn("Failed to read circuit breaker state, allowing call", zap.Error(err))
		return true
	}
	return ok
}

// RecordCall 记录一次远端调用的结果和耗时
func (m *Monitor) RecordCall(ctx context.Context, endpoint string, duration time.Duration, callErr error) {
	now := m.now()
	ms := float64(duration.Microseconds()) / 1000

	status, counter := "success", "successes"
	pattern := ""
	if callErr != nil {
		status, counter = "failure", "failures"
		pattern = util.ClassifyFailure(callErr)
	}
	metrics.RecordRemoteCall(endpoint, status, duration)

	m.logIfErr("record totals", m.kv.IncrBy(ctx, keyTotals, "calls", 1))
	m.logIfErr("record totals", m.kv.IncrBy(ctx, keyTotals, counter, 1))
	m.logIfErr("record duration", m.kv.IncrBy(ctx, keyTotals, "duration_us", duration.Microseconds()))
	m.logIfErr("record hourly usage", m.kv.IncrBy(ctx, keyHourly, fmt.Sprintf("%02d", now.Hour()), 1))
	m.logIfErr("record response time", m.kv.PushCapped(ctx, keyResponseTimes, ms, responseWindow))
	var w window
	m.logIfErr("record window", m.kv.Update(ctx, keyWindow, &w, func(found bool) error {
		if !found {
			w.StartedAt = now
		}
		return nil
	}))

	if callErr == nil {
		m.recordBreakerSuccess(ctx)
		return
	}

	m.logIfErr("record failure pattern", m.kv.IncrBy(ctx, keyFailures, pattern, 1))
	// 单个资源不存在不代表远端不可用
	if pattern == util.FailureNotFound {
		return
	}
	m.recordBreakerFailure(ctx, endpoint, callErr)
}

func (m *Monitor) recordBreakerSuccess(ctx context.Context) {
	before, err := m.breaker.Snapshot(ctx)
	if err != nil {
		m.logIfErr("read circuit breaker", err)
		return
	}
	if !before.Open && before.ConsecutiveFailures == 0 {
		metrics.SetCircuitBreakerState(breakerName, string(circuitbreaker.StateClosed))
		return
	}
	if _, err := m.breaker.RecordSuccess(ctx); err != nil {
		m.logIfErr("record circuit breaker success", err)
		return
	}
	if before.Open {
		m.logger.Info("Circuit breaker closed after successful call",
			zap.Int("previous_failures", before.ConsecutiveFailures),
		)
	}
	metrics.SetCircuitBreakerState(breakerName, string(circuitbreaker.StateClosed))
}

func (m *Monitor) recordBreakerFailure(ctx context.Context, endpoint string, callErr error) {
	snap, err := m.breaker.RecordFailure(ctx, callErr)
	if err != nil {
		m.logIfErr("record circuit breaker failure", err)
		return
	}
	state := snap.StateAt(m.now())
	metrics.SetCircuitBreakerState(breakerName, string(state))
	if snap.Open && snap.ConsecutiveFailures == m.breaker.Config().FailureThreshold {
		m.logger.Error("Circuit breaker opened",
			zap.String("endpoint", endpoint),
			zap.Int("consecutive_failures", snap.ConsecutiveFailures),
			zap.Timep("next_attempt_at", snap.NextAttemptAt),
			zap.Error(callErr),
		)
	} else if snap.Open {
		m.logger.Warn("Remote call failed while circuit open, cool-down restarted",
			zap.String("endpoint", endpoint),
			zap.Int("consecutive_failures", snap.ConsecutiveFailures),
			zap.Timep("next_attempt_at", snap.NextAttemptAt),
		)
	}
}

// ResetCircuitBreaker 运维手动关闭熔断器
func (m *Monitor) ResetCircuitBreaker(ctx context.Context) error {
	if err := m.breaker.Reset(ctx); err != nil {
		return fmt.Errorf("reset circuit breaker: %w", err)
	}
	metrics.SetCircuitBreakerState(breakerName, string(circuitbreaker.StateClosed))
	m.logger.Info("Circuit breaker manually reset")
	return nil
}

// ResetMetrics 清空滚动指标，不影响熔断器
func (m *Monitor) ResetMetrics(ctx context.Context) error {
	return m.kv.Delete(ctx, keyTotals, keyFailures, keyHourly, keyResponseTimes, keyWindow)
}

func (m *Monitor) logIfErr(op string, err error) {
	if err != nil {
		m.logger.Warn("Health monitor store operation failed", zap.String("op", op), zap.Error(err))
	}
}
