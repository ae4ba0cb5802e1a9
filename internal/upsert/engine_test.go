package upsert

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"frontsync/internal/model"
	"frontsync/internal/store"
)

func setTagName(name string) Transform[model.Tag] {
	return func(rec *model.Tag, existing bool) error {
		rec.Name = name
		return nil
	}
}

func newTagEngine(t *testing.T) (*Engine[model.Tag, *model.Tag], *store.Memory, time.Time) {
	t.Helper()
	mem := store.NewMemory()
	localT := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	mem.SetClock(func() time.Time { return localT })
	return New[model.Tag]("tags", mem.Tags(), zap.NewNop()), mem, localT
}

func TestUpsertCreatesThenSkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	e, mem, localT := newTagEngine(t)
	remote := float64(localT.Add(-time.Hour).Unix())

	out := e.Upsert(ctx, "tag_1", remote, setTagName("Billing"))
	if out.Action != ActionCreated || out.Record.ID == 0 || out.Record.ExternalID != "tag_1" {
		t.Fatalf("expected created record, got %+v", out)
	}
	if out.Record.RemoteUpdatedAt == nil || out.Record.RemoteUpdatedAt.Unix() != int64(remote) {
		t.Fatalf("expected remote timestamp stored, got %v", out.Record.RemoteUpdatedAt)
	}

	out = e.Upsert(ctx, "tag_1", remote, setTagName("Billing"))
	if out.Action != ActionSkipped {
		t.Fatalf("expected skipped on second run, got %s", out.Action)
	}
	if mem.Counts()["tags"] != 1 {
		t.Fatalf("expected a single tag, got %d", mem.Counts()["tags"])
	}
}

func TestUpsertConflictResolution(t *testing.T) {
	ctx := context.Background()
	e, mem, localT := newTagEngine(t)
	e.Upsert(ctx, "tag_1", nil, setTagName("Old"))

	older := float64(localT.Add(-time.Second).Unix())
	out := e.Upsert(ctx, "tag_1", older, setTagName("Stale"))
	if out.Action != ActionSkipped {
		t.Fatalf("expected skipped for T-1s, got %s", out.Action)
	}
	tag, _ := mem.Tags().FindByExternalID(ctx, "tag_1")
	if tag.Name != "Old" {
		t.Fatalf("expected local fields untouched, got %q", tag.Name)
	}

	equal := float64(localT.Unix())
	if out := e.Upsert(ctx, "tag_1", equal, setTagName("Tie")); out.Action != ActionSkipped {
		t.Fatalf("expected local to win a tie, got %s", out.Action)
	}

	newer := float64(localT.Add(time.Second).Unix())
	out = e.Upsert(ctx, "tag_1", newer, setTagName("Fresh"))
	if out.Action != ActionUpdated {
		t.Fatalf("expected updated for T+1s, got %s", out.Action)
	}
	tag, _ = mem.Tags().FindByExternalID(ctx, "tag_1")
	if tag.Name != "Fresh" {
		t.Fatalf("expected new payload applied, got %q", tag.Name)
	}
}

func TestUpsertWithoutTimestampUpdates(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTagEngine(t)
	e.Upsert(ctx, "tag_1", nil, setTagName("A"))

	if out := e.Upsert(ctx, "tag_1", "not-a-date", setTagName("B")); out.Action != ActionUpdated || out.Record.Name != "B" {
		t.Fatalf("expected unparseable timestamp to allow update, got %+v", out)
	}
}

func TestUpsertExternalIDIsImmutable(t *testing.T) {
	ctx := context.Background()
	e, mem, _ := newTagEngine(t)
	e.Upsert(ctx, "tag_1", nil, setTagName("A"))

	out := e.Upsert(ctx, "tag_1", nil, func(rec *model.Tag, existing bool) error {
		rec.ExternalID = "tag_other"
		rec.Name = "B"
		return nil
	})
	if out.Action != ActionUpdated || out.Record.ExternalID != "tag_1" {
		t.Fatalf("expected external id preserved, got %+v", out)
	}
	if _, err := mem.Tags().FindByExternalID(ctx, "tag_other"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no record under rewritten id, got %v", err)
	}
}

func TestUpsertFailures(t *testing.T) {
	ctx := context.Background()
	e, mem, _ := newTagEngine(t)

	out := e.Upsert(ctx, "tag_1", nil, func(rec *model.Tag, existing bool) error {
		return errors.New("name is required")
	})
	if out.Action != ActionFailed || !strings.Contains(out.Err.Error(), "name is required") {
		t.Fatalf("expected failed with message, got %+v", out)
	}

	out = e.Upsert(ctx, "tag_2", nil, func(rec *model.Tag, existing bool) error {
		var m map[string]string
		m["boom"] = "x"
		return nil
	})
	if out.Action != ActionFailed || !strings.Contains(out.Err.Error(), "panic") {
		t.Fatalf("expected panic converted to failed, got %+v", out)
	}

	if out := e.Upsert(ctx, "", nil, setTagName("x")); out.Action != ActionFailed {
		t.Fatalf("expected blank external id to fail, got %s", out.Action)
	}
	if mem.Counts()["tags"] != 0 {
		t.Fatalf("expected nothing persisted, got %d", mem.Counts()["tags"])
	}
}

func TestMergeIgnoresTimestamps(t *testing.T) {
	ctx := context.Background()
	e, _, localT := newTagEngine(t)
	created := e.Upsert(ctx, "tag_1", nil, setTagName("A"))

	older := float64(localT.Add(-time.Hour).Unix())
	out := e.Merge(ctx, created.Record, older, setTagName("Merged"))
	if out.Action != ActionUpdated || out.Record.Name != "Merged" {
		t.Fatalf("expected merge to update, got %+v", out)
	}
}

func TestUpsertWithoutTimestampSkipsIdenticalContent(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newTagEngine(t)
	e.Upsert(ctx, "tag_1", nil, setTagName("A"))

	if out := e.Upsert(ctx, "tag_1", nil, setTagName("A")); out.Action != ActionSkipped {
		t.Fatalf("expected identical payload without timestamp to be skipped, got %s", out.Action)
	}
}
