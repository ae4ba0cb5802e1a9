package repository

import (
	"context"
	"fmt"
	"strings"

	"frontsync/internal/model"
	"frontsync/pkg/otel"
)

type pgContacts struct {
	*table[model.Contact, *model.Contact]
}

// FindByExternalID 主外部 ID 优先，其次匹配合并进来的别名
func (r *pgContacts) FindByExternalID(ctx context.Context, externalID string) (*model.Contact, error) {
	return r.findOne(ctx, `
		WHERE external_id = $1 OR $1 = ANY(alias_external_ids)
		ORDER BY (external_id = $1) DESC, id
		LIMIT 1`, externalID)
}

// FindByHandles 不区分大小写匹配主 handle 或 handles 中任一地址，多条命中时取最早创建的
func (r *pgContacts) FindByHandles(ctx context.Context, handles []string) (*model.Contact, error) {
	want := make([]string, 0, len(handles))
	for _, h := range handles {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			want = append(want, h)
		}
	}
	return r.findOne(ctx, `
		WHERE (handle <> '' AND lower(handle) = ANY($1))
		   OR EXISTS (
		       SELECT 1 FROM jsonb_array_elements(handles) AS h
		       WHERE lower(h->>'handle') = ANY($1)
		   )
		ORDER BY id
		LIMIT 1`, want)
}

// ExternalIDMap 包含别名
func (r *pgContacts) ExternalIDMap(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	err := otel.DB(ctx, "select", "contacts", func(ctx context.Context) error {
		rows, err := r.p.pool.Query(ctx, `SELECT id, external_id, alias_external_ids FROM contacts`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var ext string
			var aliases []string
			if err := rows.Scan(&id, &ext, &aliases); err != nil {
				return err
			}
			out[ext] = id
			for _, alias := range aliases {
				out[alias] = id
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("contact external id map: %w", err)
	}
	return out, nil
}

func (r *pgContacts) HandleMap(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	err := otel.DB(ctx, "select", "contacts", func(ctx context.Context) error {
		rows, err := r.p.pool.Query(ctx, `SELECT id, handle, handles FROM contacts`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var handle string
			var handles []model.ContactHandle
			if err := rows.Scan(&id, &handle, &handles); err != nil {
				return err
			}
			if handle != "" {
				out[strings.ToLower(handle)] = id
			}
			for _, h := range handles {
				out[strings.ToLower(h.Handle)] = id
			}
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("contact handle map: %w", err)
	}
	return out, nil
}
