package health

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"frontsync/internal/model"
	"frontsync/internal/store"
	"frontsync/pkg/circuitbreaker"
	"frontsync/pkg/util"
)

type SyncStatus struct {
	LastRun       *model.SyncRun  `json:"last_run,omitempty"`
	LastCompleted *model.SyncRun  `json:"last_completed,omitempty"`
	RecentRuns    []model.SyncRun `json:"recent_runs"`
	StuckRunIDs   []string        `json:"stuck_run_ids,omitempty"`
	CircuitState  string          `json:"circuit_state"`
}

type HealthMetrics struct {
	Status          string           `json:"status"` // healthy, degraded, unhealthy, unknown
	TotalCalls      int64            `json:"total_calls"`
	Successes       int64            `json:"successes"`
	Failures        int64            `json:"failures"`
	SuccessRate     float64          `json:"success_rate"`
	AvgDurationMs   float64          `json:"avg_duration_ms"`
	FailurePatterns map[string]int64 `json:"failure_patterns"`
	CircuitState    string           `json:"circuit_state"`
	Recommendations []string         `json:"recommendations"`
}

type PerformanceStats struct {
	SampleSize          int           `json:"sample_size"`
	AvgMs               float64       `json:"avg_ms"`
	P95Ms               float64       `json:"p95_ms"`
	MinMs               float64       `json:"min_ms"`
	MaxMs               float64       `json:"max_ms"`
	ThroughputPerMinute float64       `json:"throughput_per_minute"`
	PeakHour            *int          `json:"peak_hour,omitempty"`
	HourlyUsage         map[int]int64 `json:"hourly_usage"`
}

type CircuitBreakerStatus struct {
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	FailureThreshold    int        `json:"failure_threshold"`
	CooldownSeconds     float64    `json:"cooldown_seconds"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	NextAttemptAt       *time.Time `json:"next_attempt_at,omitempty"`
	RemainingSeconds    float64    `json:"remaining_seconds"`
	LastError           string     `json:"last_error,omitempty"`
}

// SyncStatus 最近的同步运行情况，卡住的运行只报告不终止
func (m *Monitor) SyncStatus(ctx context.Context) (SyncStatus, error) {
	recent, err := m.runs.Recent(ctx, 10)
	if err != nil {
		return SyncStatus{}, fmt.Errorf("list recent sync runs: %w", err)
	}
	out := SyncStatus{RecentRuns: recent}
	if len(recent) > 0 {
		out.LastRun = &recent[0]
	}
	last, err := m.runs.LastCompleted(ctx)
	switch {
	case err == nil:
		out.LastCompleted = last
	case !errors.Is(err, store.ErrNotFound):
		return SyncStatus{}, fmt.Errorf("load last completed run: %w", err)
	}

	now := m.now()
	for i := range recent {
		if recent[i].IsStuck(now, m.stuckAfter) {
			out.StuckRunIDs = append(out.StuckRunIDs, recent[i].ID)
		}
	}
	out.CircuitState = m.circuitState(ctx)
	return out, nil
}

// HealthMetrics 成功率、平均耗时、失败模式和建议
func (m *Monitor) HealthMetrics(ctx context.Context) (HealthMetrics, error) {
	totals, err := m.kv.Counters(ctx, keyTotals)
	if err != nil {
		return HealthMetrics{}, fmt.Errorf("load totals: %w", err)
	}
	patterns, err := m.kv.Counters(ctx, keyFailures)
	if err != nil {
		return HealthMetrics{}, fmt.Errorf("load failure patterns: %w", err)
	}

	out := HealthMetrics{
		TotalCalls:      totals["calls"],
		Successes:       totals["successes"],
		Failures:        totals["failures"],
		FailurePatterns: patterns,
		CircuitState:    m.circuitState(ctx),
	}
	if out.TotalCalls > 0 {
		out.SuccessRate = round2(float64(out.Successes) / float64(out.TotalCalls) * 100)
		out.AvgDurationMs = round2(float64(totals["duration_us"]) / float64(out.TotalCalls) / 1000)
	}
	out.Status = classifyStatus(out)
	out.Recommendations = recommendations(out)
	return out, nil
}

func classifyStatus(h HealthMetrics) string {
	switch {
	case h.CircuitState == string(circuitbreaker.StateOpen):
		return "unhealthy"
	case h.TotalCalls == 0:
		return "unknown"
	case h.SuccessRate < 80:
		return "unhealthy"
	case h.SuccessRate < 95 || h.CircuitState == string(circuitbreaker.StateHalfOpen):
		return "degraded"
	}
	return "healthy"
}

// recommendations 基于阈值的建议文本，只作参考
func recommendations(h HealthMetrics) []string {
	recs := []string{}
	switch h.CircuitState {
	case string(circuitbreaker.StateOpen):
		recs = append(recs, "Circuit breaker is open: remote calls are suspended until the cool-down elapses; check remote API availability or reset manually")
	case string(circuitbreaker.StateHalfOpen):
		recs = append(recs, "Circuit breaker cool-down elapsed: the next call decides whether it closes")
	}
	if h.TotalCalls >= 20 && h.SuccessRate < 95 {
		recs = append(recs, fmt.Sprintf("Success rate is %.1f%%: investigate recent failures", h.SuccessRate))
	}
	if h.AvgDurationMs > 2000 {
		recs = append(recs, fmt.Sprintf("Average response time is %.0fms: consider smaller page sizes or less frequent syncs", h.AvgDurationMs))
	}
	if n := h.FailurePatterns[util.FailureRateLimit]; n > 0 {
		recs = append(recs, fmt.Sprintf("Rate limit hit %d times: reduce sync frequency", n))
	}
	if n := h.FailurePatterns[util.FailureAuth]; n > 0 {
		recs = append(recs, fmt.Sprintf("Authentication failed %d times: verify the API token", n))
	}
	if n := h.FailurePatterns[util.FailureTimeout]; n > 0 && h.TotalCalls > 0 && float64(n)/float64(h.TotalCalls) > 0.05 {
		recs = append(recs, "Frequent timeouts: check network connectivity to the remote API")
	}
	return recs
}

// PerformanceStats 最近 100 次响应时间的统计和吞吐量
func (m *Monitor) PerformanceStats(ctx context.Context) (PerformanceStats, error) {
	samples, err := m.kv.List(ctx, keyResponseTimes)
	if err != nil {
		return PerformanceStats{}, fmt.Errorf("load response times: %w", err)
	}
	hourly, err := m.kv.Counters(ctx, keyHourly)
	if err != nil {
		return PerformanceStats{}, fmt.Errorf("load hourly usage: %w", err)
	}
	totals, err := m.kv.Counters(ctx, keyTotals)
	if err != nil {
		return PerformanceStats{}, fmt.Errorf("load totals: %w", err)
	}

	out := PerformanceStats{SampleSize: len(samples), HourlyUsage: make(map[int]int64, len(hourly))}
	if len(samples) > 0 {
		sorted := append([]float64(nil), samples...)
		sort.Float64s(sorted)
		var sum float64
		for _, v := range sorted {
			sum += v
		}
		out.AvgMs = round2(sum / float64(len(sorted)))
		out.MinMs = sorted[0]
		out.MaxMs = sorted[len(sorted)-1]
		out.P95Ms = percentile(sorted, 0.95)
	}

	var peak int64
	for field, n := range hourly {
		hour, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		out.HourlyUsage[hour] = n
		if n > peak || (n == peak && out.PeakHour != nil && hour < *out.PeakHour) {
			h := hour
			peak, out.PeakHour = n, &h
		}
	}

	var w window
	found, err := m.kv.Get(ctx, keyWindow, &w)
	if err != nil {
		return PerformanceStats{}, fmt.Errorf("load window: %w", err)
	}
	if found {
		minutes := m.now().Sub(w.StartedAt).Minutes()
		if minutes < 1 {
			minutes = 1
		}
		out.ThroughputPerMinute = round2(float64(totals["calls"]) / minutes)
	}
	return out, nil
}

// CircuitBreakerStatus 熔断器当前状态
func (m *Monitor) CircuitBreakerStatus(ctx context.Context) (CircuitBreakerStatus, error) {
	snap, err := m.breaker.Snapshot(ctx)
	if err != nil {
		return CircuitBreakerStatus{}, fmt.Errorf("load circuit breaker: %w", err)
	}
	now := m.now()
	cfg := m.breaker.Config()
	out := CircuitBreakerStatus{
		State:               string(snap.StateAt(now)),
		ConsecutiveFailures: snap.ConsecutiveFailures,
		FailureThreshold:    cfg.FailureThreshold,
		CooldownSeconds:     cfg.Cooldown.Seconds(),
		LastFailureAt:       snap.LastFailureAt,
		NextAttemptAt:       snap.NextAttemptAt,
		LastError:           snap.LastError,
	}
	if snap.Open && snap.NextAttemptAt != nil && now.Before(*snap.NextAttemptAt) {
		out.RemainingSeconds = math.Ceil(snap.NextAttemptAt.Sub(now).Seconds())
	}
	return out, nil
}

func (m *Monitor) circuitState(ctx context.Context) string {
	state, err := m.breaker.GetState(ctx)
	if err != nil {
		m.logIfErr("read circuit breaker", err)
		return "unknown"
	}
	return string(state)
}

// percentile 最近秩法，sorted 必须升序
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
