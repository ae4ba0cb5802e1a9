package relation

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"frontsync/internal/store"
)

var tagLookup = map[string]int64{"tag_a": 1, "tag_b": 2, "tag_c": 3, "tag_d": 4}

func associated(t *testing.T, mem *store.Memory, parentID int64) []int64 {
	t.Helper()
	got, err := mem.Associations().ListAssociations(context.Background(), store.RelationConversationTags, []int64{parentID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	return got[parentID]
}

func TestReconcileAddsAndRemovesDifference(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := NewReconciler(mem.Associations(), zap.NewNop())

	if _, err := r.Reconcile(ctx, store.RelationConversationTags, 10, tagLookup, []string{"tag_a", "tag_b", "tag_c"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	res, err := r.Reconcile(ctx, store.RelationConversationTags, 10, tagLookup, []string{"tag_b", "tag_c", "tag_d"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Added != 1 || res.Removed != 1 {
		t.Fatalf("expected one add and one remove, got %+v", res)
	}
	got := associated(t, mem, 10)
	if len(got) != 3 || got[0] != 2 || got[1] != 3 || got[2] != 4 {
		t.Fatalf("expected {B,C,D}, got %v", got)
	}
}

func TestReconcileBatchUsesSingleBulkOperations(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := NewReconciler(mem.Associations(), zap.NewNop())
	r.ReconcileBatch(ctx, store.RelationConversationTags, tagLookup, map[int64][]string{
		1: {"tag_a"},
		2: {"tag_b"},
	})
	list0, ins0, del0 := mem.AssociationCalls()

	res, err := r.ReconcileBatch(ctx, store.RelationConversationTags, tagLookup, map[int64][]string{
		1: {"tag_c", "tag_d"},
		2: {},
		3: {"tag_a", "tag_a"},
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	list1, ins1, del1 := mem.AssociationCalls()
	if list1-list0 != 1 || ins1-ins0 != 1 || del1-del0 != 1 {
		t.Fatalf("expected one list, insert and delete call, got %d/%d/%d", list1-list0, ins1-ins0, del1-del0)
	}
	if res.Added != 3 || res.Removed != 2 {
		t.Fatalf("expected 3 added 2 removed, got %+v", res)
	}
	if got := associated(t, mem, 2); len(got) != 0 {
		t.Fatalf("expected parent 2 cleared, got %v", got)
	}
}

func TestReconcileSkipsUnresolved(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := NewReconciler(mem.Associations(), zap.NewNop())

	res, err := r.Reconcile(ctx, store.RelationConversationTags, 7, tagLookup, []string{"tag_a", "tag_unknown"})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if res.Added != 1 || len(res.Unresolved) != 1 || res.Unresolved[0] != "tag_unknown" {
		t.Fatalf("expected unknown tag skipped, got %+v", res)
	}
}

func TestReconcileNoChangesWritesNothing(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	r := NewReconciler(mem.Associations(), zap.NewNop())
	r.Reconcile(ctx, store.RelationConversationTags, 1, tagLookup, []string{"tag_a"})
	_, ins0, del0 := mem.AssociationCalls()

	res, _ := r.Reconcile(ctx, store.RelationConversationTags, 1, tagLookup, []string{"tag_a"})
	_, ins1, del1 := mem.AssociationCalls()
	if res.Added != 0 || res.Removed != 0 || ins1 != ins0 || del1 != del0 {
		t.Fatalf("expected no writes for an unchanged set, got %+v", res)
	}
}
