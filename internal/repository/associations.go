package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"frontsync/internal/store"
	"frontsync/pkg/otel"
)

type pgAssociations struct {
	p *Postgres
}

// relationTable 关联名直接用作表名，只接受已知关联
func relationTable(rel store.Relation) (string, error) {
	switch rel {
	case store.RelationConversationTags, store.RelationConversationInboxes:
		return string(rel), nil
	default:
		return "", fmt.Errorf("unknown relation %q", rel)
	}
}

func (a *pgAssociations) ListAssociations(ctx context.Context, rel store.Relation, parentIDs []int64) (map[int64][]int64, error) {
	table, err := relationTable(rel)
	if err != nil {
		return nil, err
	}
	out := make(map[int64][]int64)
	if len(parentIDs) == 0 {
		return out, nil
	}
	err = otel.DB(ctx, "select", table, func(ctx context.Context) error {
		rows, err := a.p.pool.Query(ctx,
			"SELECT parent_id, related_id FROM "+table+" WHERE parent_id = ANY($1) ORDER BY parent_id, related_id", parentIDs)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var parent, related int64
			if err := rows.Scan(&parent, &related); err != nil {
				return err
			}
			out[parent] = append(out[parent], related)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	return out, nil
}

// InsertAssociations 一个批次发送所有插入，已存在的行忽略
func (a *pgAssociations) InsertAssociations(ctx context.Context, rel store.Relation, pairs []store.Pair) error {
	return a.batch(ctx, rel, "insert",
		"INSERT INTO %s (parent_id, related_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", pairs)
}

func (a *pgAssociations) DeleteAssociations(ctx context.Context, rel store.Relation, pairs []store.Pair) error {
	return a.batch(ctx, rel, "delete",
		"DELETE FROM %s WHERE parent_id = $1 AND related_id = $2", pairs)
}

func (a *pgAssociations) batch(ctx context.Context, rel store.Relation, op, format string, pairs []store.Pair) error {
	table, err := relationTable(rel)
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return nil
	}
	query := fmt.Sprintf(format, table)

	err = otel.DB(ctx, op, table, func(ctx context.Context) error {
		return a.p.inTx(ctx, func(tx pgx.Tx) error {
			b := &pgx.Batch{}
			for _, pair := range pairs {
				b.Queue(query, pair.ParentID, pair.RelatedID)
			}
			return tx.SendBatch(ctx, b).Close()
		})
	})
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, table, err)
	}
	return nil
}
