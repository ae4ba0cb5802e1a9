package db

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSlowQueryTracerLogsOnlySlowQueries(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tracer := NewSlowQueryTracer(zap.New(core), 50*time.Millisecond)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tracer.now = func() time.Time { return now }

	ctx := tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "SELECT 1"})
	now = now.Add(10 * time.Millisecond)
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})
	if logs.Len() != 0 {
		t.Fatalf("expected fast query not logged, got %d entries", logs.Len())
	}

	ctx = tracer.TraceQueryStart(context.Background(), nil, pgx.TraceQueryStartData{SQL: "UPDATE conversations SET subject = $1"})
	now = now.Add(80 * time.Millisecond)
	tracer.TraceQueryEnd(ctx, nil, pgx.TraceQueryEndData{})
	if logs.Len() != 1 {
		t.Fatalf("expected slow query logged once, got %d entries", logs.Len())
	}
	if got := logs.All()[0].ContextMap()["sql"]; got != "UPDATE conversations SET subject = $1" {
		t.Fatalf("expected sql field, got %v", got)
	}
}

func TestTraceQueryEndWithoutStartIsIgnored(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	NewSlowQueryTracer(zap.New(core), time.Nanosecond).TraceQueryEnd(context.Background(), nil, pgx.TraceQueryEndData{})
	if logs.Len() != 0 {
		t.Fatalf("expected nothing logged, got %d", logs.Len())
	}
}

func TestTruncateSQL(t *testing.T) {
	long := strings.Repeat("x", 250)
	if got := truncateSQL(long, 200); len(got) != 203 || !strings.HasSuffix(got, "...") {
		t.Fatalf("expected truncated sql, got len %d", len(got))
	}
	if got := truncateSQL("", 200); got != "unknown" {
		t.Fatalf("expected unknown for empty sql, got %q", got)
	}
}
