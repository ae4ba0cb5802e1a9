package repository

import (
	"context"
	"fmt"

	"frontsync/internal/model"
	"frontsync/internal/store"
	"frontsync/pkg/otel"
)

type pgTags struct {
	*table[model.Tag, *model.Tag]
}

func (r *pgTags) List(ctx context.Context) ([]model.Tag, error) {
	return r.findMany(ctx, "ORDER BY id")
}

// SetParent 第二遍解析父标签，不改动本地修改时间
func (r *pgTags) SetParent(ctx context.Context, tagID int64, parentID *int64) error {
	var affected int64
	err := otel.DB(ctx, "update", "tags", func(ctx context.Context) error {
		tag, err := r.p.pool.Exec(ctx, `UPDATE tags SET parent_tag_id = $2 WHERE id = $1`, tagID, parentID)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("set tag parent: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
