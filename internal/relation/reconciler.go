// Package relation 批量对齐多对多关联：一次查询、一次批量插入、一次批量删除。
package relation

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"frontsync/internal/store"
	"frontsync/pkg/metrics"
)

type Result struct {
	Added   int
	Removed int
	// Unresolved 本地查不到的关联外部 ID，已跳过
	Unresolved []string
}

type Reconciler struct {
	assoc  store.AssociationStore
	logger *zap.Logger
}

func NewReconciler(assoc store.AssociationStore, logger *zap.Logger) *Reconciler {
	return &Reconciler{assoc: assoc, logger: logger}
}

// Reconcile 单个父实体的情况
func (r *Reconciler) Reconcile(ctx context.Context, rel store.Relation, parentID int64, lookup map[string]int64, relatedExternalIDs []string) (Result, error) {
	return r.ReconcileBatch(ctx, rel, lookup, map[int64][]string{parentID: relatedExternalIDs})
}

// ReconcileBatch 把每个父实体的关联集合对齐到 desired（外部 ID 列表，通过 lookup 解析为本地 ID）。
// desired 中出现的父实体以空列表表示"清空全部关联"。
func (r *Reconciler) ReconcileBatch(ctx context.Context, rel store.Relation, lookup map[string]int64, desired map[int64][]string) (Result, error) {
	var res Result
	if len(desired) == 0 {
		return res, nil
	}

	parentIDs := make([]int64, 0, len(desired))
	for id := range desired {
		parentIDs = append(parentIDs, id)
	}
	sort.Slice(parentIDs, func(i, j int) bool { return parentIDs[i] < parentIDs[j] })

	current, err := r.assoc.ListAssociations(ctx, rel, parentIDs)
	if err != nil {
		return res, fmt.Errorf("list %s: %w", rel, err)
	}

	var toAdd, toRemove []store.Pair
	unresolved := make(map[string]struct{})
	for _, parentID := range parentIDs {
		want := make(map[int64]struct{})
		for _, ext := range desired[parentID] {
			id, ok := lookup[ext]
			if !ok {
				if _, seen := unresolved[ext]; !seen {
					unresolved[ext] = struct{}{}
					res.Unresolved = append(res.Unresolved, ext)
					r.logger.Warn("Unresolved related record, association skipped",
						zap.String("relation", string(rel)),
						zap.Int64("parent_id", parentID),
						zap.String("external_id", ext),
					)
				}
				continue
			}
			want[id] = struct{}{}
		}

		have := make(map[int64]struct{}, len(current[parentID]))
		for _, id := range current[parentID] {
			have[id] = struct{}{}
			if _, keep := want[id]; !keep {
				toRemove = append(toRemove, store.Pair{ParentID: parentID, RelatedID: id})
			}
		}
		added := make([]int64, 0, len(want))
		for id := range want {
			if _, exists := have[id]; !exists {
				added = append(added, id)
			}
		}
		sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
		for _, id := range added {
			toAdd = append(toAdd, store.Pair{ParentID: parentID, RelatedID: id})
		}
	}

	if len(toAdd) > 0 {
		if err := r.assoc.InsertAssociations(ctx, rel, toAdd); err != nil {
			return res, fmt.Errorf("insert %s: %w", rel, err)
		}
		res.Added = len(toAdd)
	}
	if len(toRemove) > 0 {
		if err := r.assoc.DeleteAssociations(ctx, rel, toRemove); err != nil {
			return res, fmt.Errorf("delete %s: %w", rel, err)
		}
		res.Removed = len(toRemove)
	}
	metrics.AddRelationChanges(string(rel), res.Added, res.Removed)
	return res, nil
}
