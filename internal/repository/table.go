package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"frontsync/internal/model"
	"frontsync/internal/store"
	"frontsync/pkg/otel"
)

type entityPtr[T any] interface {
	*T
	model.Entity
}

// columns 描述实体在 Base 之外的列
type columns[T any] struct {
	table string
	names []string
	// selects 查询时使用的表达式，默认与 names 相同
	selects []string
	values  func(*T) []any
	dest    func(*T) []any
	// normalize 扫描后修正零值，保证与同步时构造的记录可比较
	normalize func(*T)
}

const baseColumns = "id, external_id, remote_updated_at, created_at, updated_at, metadata"

// table 通用的按外部 ID 读写实现
type table[T any, P entityPtr[T]] struct {
	p    *Postgres
	cols columns[T]
}

func newTable[T any, P entityPtr[T]](p *Postgres, cols columns[T]) *table[T, P] {
	if cols.selects == nil {
		cols.selects = cols.names
	}
	return &table[T, P]{p: p, cols: cols}
}

func (t *table[T, P]) selectSQL() string {
	return "SELECT " + baseColumns + ", " + strings.Join(t.cols.selects, ", ") + " FROM " + t.cols.table
}

func (t *table[T, P]) scan(row pgx.Row) (*T, error) {
	rec := new(T)
	meta := P(rec).Meta()
	dest := append([]any{
		&meta.ID, &meta.ExternalID, &meta.RemoteUpdatedAt, &meta.CreatedAt, &meta.UpdatedAt, &meta.Metadata,
	}, t.cols.dest(rec)...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	meta.RemoteUpdatedAt = utcPtr(meta.RemoteUpdatedAt)
	meta.CreatedAt = utc(meta.CreatedAt)
	meta.UpdatedAt = utc(meta.UpdatedAt)
	if t.cols.normalize != nil {
		t.cols.normalize(rec)
	}
	return rec, nil
}

func (t *table[T, P]) findOne(ctx context.Context, where string, args ...any) (*T, error) {
	var rec *T
	err := otel.DB(ctx, "select", t.cols.table, func(ctx context.Context) error {
		var err error
		rec, err = t.scan(t.p.pool.QueryRow(ctx, t.selectSQL()+" "+where, args...))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", t.cols.table, err)
	}
	return rec, nil
}

func (t *table[T, P]) findMany(ctx context.Context, where string, args ...any) ([]T, error) {
	var out []T
	err := otel.DB(ctx, "select", t.cols.table, func(ctx context.Context) error {
		rows, err := t.p.pool.Query(ctx, t.selectSQL()+" "+where, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := t.scan(rows)
			if err != nil {
				return err
			}
			out = append(out, *rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.cols.table, err)
	}
	return out, nil
}

func (t *table[T, P]) FindByExternalID(ctx context.Context, externalID string) (*T, error) {
	return t.findOne(ctx, "WHERE external_id = $1", externalID)
}

func (t *table[T, P]) Create(ctx context.Context, rec *T) error {
	meta := P(rec).Meta()
	if strings.TrimSpace(meta.ExternalID) == "" {
		return &store.ValidationError{Field: "external_id", Message: "can't be blank"}
	}
	now := t.p.clock()

	names := append([]string{"external_id", "remote_updated_at", "created_at", "updated_at", "metadata"}, t.cols.names...)
	args := append([]any{meta.ExternalID, meta.RemoteUpdatedAt, now, now, meta.Metadata}, t.cols.values(rec)...)
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING id",
		t.cols.table, strings.Join(names, ", "), placeholders(1, len(args)))

	err := otel.DB(ctx, "insert", t.cols.table, func(ctx context.Context) error {
		return t.p.pool.QueryRow(ctx, query, args...).Scan(&meta.ID)
	})
	if isUniqueViolation(err) {
		return &store.ValidationError{Field: "external_id", Message: "has already been taken"}
	}
	if err != nil {
		return fmt.Errorf("insert %s: %w", t.cols.table, err)
	}
	meta.CreatedAt = now
	meta.UpdatedAt = now
	return nil
}

// Update 按主键更新；外部 ID 不可修改
func (t *table[T, P]) Update(ctx context.Context, rec *T) error {
	meta := P(rec).Meta()
	now := t.p.clock()

	sets := []string{"remote_updated_at = $3", "updated_at = $4", "metadata = $5"}
	for i, name := range t.cols.names {
		sets = append(sets, fmt.Sprintf("%s = $%d", name, i+6))
	}
	args := append([]any{meta.ID, meta.ExternalID, meta.RemoteUpdatedAt, now, meta.Metadata}, t.cols.values(rec)...)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $1 AND external_id = $2",
		t.cols.table, strings.Join(sets, ", "))

	var affected int64
	err := otel.DB(ctx, "update", t.cols.table, func(ctx context.Context) error {
		tag, err := t.p.pool.Exec(ctx, query, args...)
		affected = tag.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", t.cols.table, err)
	}
	if affected == 0 {
		return t.missingOrImmutable(ctx, meta.ID)
	}
	meta.UpdatedAt = now
	return nil
}

func (t *table[T, P]) missingOrImmutable(ctx context.Context, id int64) error {
	var exists bool
	err := t.p.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM "+t.cols.table+" WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return fmt.Errorf("update %s: %w", t.cols.table, err)
	}
	if exists {
		return &store.ValidationError{Field: "external_id", Message: "is immutable"}
	}
	return store.ErrNotFound
}

func (t *table[T, P]) ExternalIDMap(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64)
	err := otel.DB(ctx, "select", t.cols.table, func(ctx context.Context) error {
		rows, err := t.p.pool.Query(ctx, "SELECT external_id, id FROM "+t.cols.table)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var ext string
			var id int64
			if err := rows.Scan(&ext, &id); err != nil {
				return err
			}
			out[ext] = id
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("external id map %s: %w", t.cols.table, err)
	}
	return out, nil
}

// placeholders 生成 "$from, ..., $from+n-1"
func placeholders(from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(parts, ", ")
}
