package health

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"frontsync/internal/model"
	"frontsync/internal/store"
	"frontsync/pkg/kv"
)

type statusErr int

func (e statusErr) Error() string   { return fmt.Sprintf("remote returned %d", int(e)) }
func (e statusErr) HTTPStatus() int { return int(e) }

func newTestMonitor(t *testing.T) (*Monitor, *store.Memory, *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	mem := store.NewMemory()
	m := NewMonitor(kv.NewMemory(), mem.SyncRuns(), DefaultConfig(), zap.NewNop())
	m.WithClock(func() time.Time { return now })
	return m, mem, &now
}

func TestRecordCallOpensBreakerAfterFiveFailures(t *testing.T) {
	ctx := context.Background()
	m, _, now := newTestMonitor(t)

	for i := 0; i < 5; i++ {
		if !m.Allow(ctx) {
			t.Fatalf("expected call %d to be allowed", i+1)
		}
		m.RecordCall(ctx, "/conversations", 120*time.Millisecond, statusErr(503))
	}
	if m.Allow(ctx) {
		t.Fatalf("expected circuit open after five failures")
	}
	status, err := m.CircuitBreakerStatus(ctx)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.State != "open" || status.ConsecutiveFailures != 5 || status.RemainingSeconds != 300 {
		t.Fatalf("unexpected status %+v", status)
	}

	*now = now.Add(5 * time.Minute)
	if !m.Allow(ctx) {
		t.Fatalf("expected trial call after cool-down")
	}
	m.RecordCall(ctx, "/conversations", 80*time.Millisecond, nil)
	status, _ = m.CircuitBreakerStatus(ctx)
	if status.State != "closed" || status.ConsecutiveFailures != 0 {
		t.Fatalf("expected closed after success, got %+v", status)
	}
}

func TestNotFoundDoesNotTripBreaker(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestMonitor(t)
	for i := 0; i < 10; i++ {
		m.RecordCall(ctx, "/conversations/cnv_x", time.Millisecond, statusErr(404))
	}
	if !m.Allow(ctx) {
		t.Fatalf("expected 404s to leave the circuit closed")
	}
	h, _ := m.HealthMetrics(ctx)
	if h.FailurePatterns["not_found"] != 10 {
		t.Fatalf("expected 10 not_found failures, got %v", h.FailurePatterns)
	}
}

func TestHealthMetricsAndRecommendations(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestMonitor(t)
	for i := 0; i < 18; i++ {
		m.RecordCall(ctx, "/contacts", 100*time.Millisecond, nil)
	}
	m.RecordCall(ctx, "/contacts", 100*time.Millisecond, statusErr(429))
	m.RecordCall(ctx, "/contacts", 100*time.Millisecond, errors.New("dial tcp: connection refused"))

	h, err := m.HealthMetrics(ctx)
	if err != nil {
		t.Fatalf("health metrics: %v", err)
	}
	if h.TotalCalls != 20 || h.Successes != 18 || h.Failures != 2 {
		t.Fatalf("unexpected totals %+v", h)
	}
	if h.SuccessRate != 90 || h.AvgDurationMs != 100 {
		t.Fatalf("expected 90%% success and 100ms avg, got %v / %v", h.SuccessRate, h.AvgDurationMs)
	}
	if h.FailurePatterns["rate_limit"] != 1 || h.FailurePatterns["network"] != 1 {
		t.Fatalf("unexpected failure patterns %v", h.FailurePatterns)
	}
	if h.Status != "degraded" {
		t.Fatalf("expected degraded, got %s", h.Status)
	}
	if len(h.Recommendations) != 2 {
		t.Fatalf("expected success-rate and rate-limit recommendations, got %v", h.Recommendations)
	}
}

func TestPerformanceStatsKeepsLastHundred(t *testing.T) {
	ctx := context.Background()
	m, _, now := newTestMonitor(t)
	for i := 1; i <= 120; i++ {
		m.RecordCall(ctx, "/tags", time.Duration(i)*time.Millisecond, nil)
	}
	*now = now.Add(2 * time.Minute)

	p, err := m.PerformanceStats(ctx)
	if err != nil {
		t.Fatalf("performance stats: %v", err)
	}
	if p.SampleSize != 100 {
		t.Fatalf("expected 100 samples, got %d", p.SampleSize)
	}
	if p.MinMs != 21 || p.MaxMs != 120 || p.P95Ms != 115 {
		t.Fatalf("unexpected min/max/p95 %v/%v/%v", p.MinMs, p.MaxMs, p.P95Ms)
	}
	if p.AvgMs != 70.5 {
		t.Fatalf("expected avg 70.5, got %v", p.AvgMs)
	}
	if p.ThroughputPerMinute != 60 {
		t.Fatalf("expected 60 calls/min, got %v", p.ThroughputPerMinute)
	}
	if p.PeakHour == nil || *p.PeakHour != 9 || p.HourlyUsage[9] != 120 {
		t.Fatalf("expected peak hour 9, got %v %v", p.PeakHour, p.HourlyUsage)
	}
}

func TestSyncStatusReportsStuckRuns(t *testing.T) {
	ctx := context.Background()
	m, mem, now := newTestMonitor(t)
	finished := now.Add(-3 * time.Hour)
	mem.SyncRuns().Create(ctx, &model.SyncRun{ID: "run-1", Status: model.SyncRunCompleted, StartedAt: now.Add(-4 * time.Hour), FinishedAt: &finished})
	mem.SyncRuns().Create(ctx, &model.SyncRun{ID: "run-2", Status: model.SyncRunRunning, StartedAt: now.Add(-150 * time.Minute)})

	s, err := m.SyncStatus(ctx)
	if err != nil {
		t.Fatalf("sync status: %v", err)
	}
	if s.LastRun == nil || s.LastRun.ID != "run-2" {
		t.Fatalf("expected run-2 as last run, got %+v", s.LastRun)
	}
	if s.LastCompleted == nil || s.LastCompleted.ID != "run-1" {
		t.Fatalf("expected run-1 as last completed, got %+v", s.LastCompleted)
	}
	if len(s.StuckRunIDs) != 1 || s.StuckRunIDs[0] != "run-2" {
		t.Fatalf("expected run-2 reported stuck, got %v", s.StuckRunIDs)
	}
}

func TestResetCircuitBreaker(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestMonitor(t)
	for i := 0; i < 5; i++ {
		m.RecordCall(ctx, "/teammates", time.Millisecond, statusErr(500))
	}
	if err := m.ResetCircuitBreaker(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !m.Allow(ctx) {
		t.Fatalf("expected calls allowed after reset")
	}
}
