package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"frontsync/internal/model"
	"frontsync/internal/store"
	"frontsync/pkg/trace"
)

func TestPlaceholders(t *testing.T) {
	if got := placeholders(3, 3); got != "$3, $4, $5" {
		t.Fatalf("expected $3, $4, $5, got %q", got)
	}
}

func TestRelationTableRejectsUnknownRelation(t *testing.T) {
	if _, err := relationTable(store.Relation("users; DROP TABLE tags")); err == nil {
		t.Fatalf("expected unknown relation rejected")
	}
	if name, err := relationTable(store.RelationConversationTags); err != nil || name != "conversation_tags" {
		t.Fatalf("expected conversation_tags, got %q %v", name, err)
	}
}

func TestCompletedPayloadCarriesTraceAndCounts(t *testing.T) {
	finished := time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC)
	run := &model.SyncRun{
		ID:         "run-1",
		Mode:       model.SyncModeIncremental,
		Status:     model.SyncRunError,
		StartedAt:  finished.Add(-5 * time.Minute),
		FinishedAt: &finished,
		Created:    2,
		Failed:     1,
		Errors:     []string{"conversations: boom"},
	}
	p := completedPayload(trace.WithContext(context.Background(), "trace-1"), run)
	if p.RunID != "run-1" || p.Mode != "incremental" || p.Status != "error" {
		t.Fatalf("unexpected payload identity %+v", p)
	}
	if p.ErrorCount != 1 || p.Created != 2 || p.Failed != 1 || !p.FinishedAt.Equal(finished) {
		t.Fatalf("unexpected payload counts %+v", p)
	}
	if p.TraceID != "trace-1" {
		t.Fatalf("expected trace id, got %q", p.TraceID)
	}
}

func TestMessageColumnsStoreUnknownAuthorWithoutID(t *testing.T) {
	vals := messageColumns.values(&model.Message{Author: model.UnknownAuthor()})
	if vals[8] != "unknown" {
		t.Fatalf("expected unknown author kind, got %v", vals[8])
	}
	if id, ok := vals[9].(*int64); !ok || id != nil {
		t.Fatalf("expected nil author id, got %v", vals[9])
	}
	vals = messageColumns.values(&model.Message{Author: model.TeammateAuthor(7)})
	if id := vals[9].(*int64); id == nil || *id != 7 {
		t.Fatalf("expected teammate id 7, got %v", vals[9])
	}
}

// 以下测试需要真实数据库：FRONTSYNC_TEST_DATABASE_URL=postgres://...
func testPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("FRONTSYNC_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("FRONTSYNC_TEST_DATABASE_URL not set")
	}
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)
	p := NewPostgres(pool, zap.NewNop())
	if err := p.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return p
}

func TestPostgresContactRoundTrip(t *testing.T) {
	p := testPostgres(t)
	ctx := context.Background()
	suffix := uuid.NewString()

	c := &model.Contact{
		Base:    model.Base{ExternalID: "crd_" + suffix},
		Name:    "Ann",
		Handles: []model.ContactHandle{{Handle: "Ann+" + suffix + "@Example.com", Source: "email"}},
	}
	if err := p.Contacts().Create(ctx, c); err != nil {
		t.Fatalf("create: %v", err)
	}
	c.AddAlias("crd_alias_" + suffix)
	if err := p.Contacts().Update(ctx, c); err != nil {
		t.Fatalf("update: %v", err)
	}

	byAlias, err := p.Contacts().FindByExternalID(ctx, "crd_alias_"+suffix)
	if err != nil || byAlias.ID != c.ID {
		t.Fatalf("expected alias lookup to find contact %d, got %+v %v", c.ID, byAlias, err)
	}
	byHandle, err := p.Contacts().FindByHandles(ctx, []string{"ann+" + suffix + "@example.com"})
	if err != nil || byHandle.ID != c.ID {
		t.Fatalf("expected handle lookup to find contact %d, got %+v %v", c.ID, byHandle, err)
	}
	if err := p.Contacts().Create(ctx, &model.Contact{Base: model.Base{ExternalID: c.ExternalID}}); err == nil {
		t.Fatalf("expected duplicate external id rejected")
	}
	if _, err := p.Contacts().FindByExternalID(ctx, "crd_missing_"+suffix); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresFinishWritesOutboxEvent(t *testing.T) {
	p := testPostgres(t)
	ctx := context.Background()

	run := &model.SyncRun{ID: uuid.NewString(), Mode: model.SyncModeFull, Status: model.SyncRunRunning, StartedAt: time.Now().UTC()}
	if err := p.SyncRuns().Create(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	finished := time.Now().UTC()
	run.Status, run.FinishedAt = model.SyncRunCompleted, &finished
	if err := p.SyncRuns().Finish(ctx, run); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	var count int
	err := p.pool.QueryRow(ctx,
		`SELECT count(*) FROM outbox_events WHERE aggregate_id = $1 AND routing_key = 'sync.run.completed'`, run.ID).Scan(&count)
	if err != nil || count != 1 {
		t.Fatalf("expected one outbox event, got %d %v", count, err)
	}
	last, err := p.SyncRuns().LastCompleted(ctx)
	if err != nil || last.Status != model.SyncRunCompleted {
		t.Fatalf("expected a completed run, got %+v %v", last, err)
	}
}
