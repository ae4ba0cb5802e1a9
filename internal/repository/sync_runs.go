package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	mqcontracts "frontsync/contracts/mq"
	"frontsync/internal/model"
	"frontsync/internal/store"
	"frontsync/pkg/otel"
	"frontsync/pkg/outbox"
	"frontsync/pkg/trace"
)

type pgRuns struct {
	p *Postgres
}

const runColumns = `id, mode, status, since, started_at, finished_at, created, updated, skipped, failed, errors`

func (r *pgRuns) Create(ctx context.Context, run *model.SyncRun) error {
	return otel.DB(ctx, "insert", "sync_runs", func(ctx context.Context) error {
		_, err := r.p.pool.Exec(ctx, `
			INSERT INTO sync_runs (id, mode, status, since, started_at)
			VALUES ($1, $2, $3, $4, $5)`,
			run.ID, string(run.Mode), string(run.Status), run.Since, run.StartedAt)
		if err != nil {
			return fmt.Errorf("insert sync run: %w", err)
		}
		return nil
	})
}

// Finish 更新运行结果，并在同一事务写入 sync.run.completed outbox 事件
func (r *pgRuns) Finish(ctx context.Context, run *model.SyncRun) error {
	errs := run.Errors
	if errs == nil {
		errs = []string{}
	}
	return otel.DB(ctx, "update", "sync_runs", func(ctx context.Context) error {
		return r.p.inTx(ctx, func(tx pgx.Tx) error {
			tag, err := tx.Exec(ctx, `
				UPDATE sync_runs
				SET status = $2, finished_at = $3, created = $4, updated = $5, skipped = $6, failed = $7, errors = $8
				WHERE id = $1`,
				run.ID, string(run.Status), run.FinishedAt, run.Created, run.Updated, run.Skipped, run.Failed, errs)
			if err != nil {
				return fmt.Errorf("update sync run: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return store.ErrNotFound
			}
			return outbox.InsertEventInTx(ctx, tx, r.p.outbox,
				mqcontracts.AggregateTypeSyncRun, &run.ID, mqcontracts.RoutingKeySyncRunCompleted, completedPayload(ctx, run))
		})
	})
}

func completedPayload(ctx context.Context, run *model.SyncRun) mqcontracts.SyncRunCompletedPayload {
	p := mqcontracts.SyncRunCompletedPayload{
		RunID:      run.ID,
		Mode:       string(run.Mode),
		Status:     string(run.Status),
		Since:      run.Since,
		StartedAt:  run.StartedAt,
		Created:    run.Created,
		Updated:    run.Updated,
		Skipped:    run.Skipped,
		Failed:     run.Failed,
		ErrorCount: len(run.Errors),
		TraceID:    trace.FromContext(ctx),
	}
	if run.FinishedAt != nil {
		p.FinishedAt = *run.FinishedAt
	}
	return p
}

func (r *pgRuns) Recent(ctx context.Context, limit int) ([]model.SyncRun, error) {
	var out []model.SyncRun
	err := otel.DB(ctx, "select", "sync_runs", func(ctx context.Context) error {
		rows, err := r.p.pool.Query(ctx, `SELECT `+runColumns+` FROM sync_runs ORDER BY started_at DESC LIMIT $1`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			run, err := scanRun(rows)
			if err != nil {
				return err
			}
			out = append(out, *run)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("recent sync runs: %w", err)
	}
	return out, nil
}

func (r *pgRuns) LastCompleted(ctx context.Context) (*model.SyncRun, error) {
	var run *model.SyncRun
	err := otel.DB(ctx, "select", "sync_runs", func(ctx context.Context) error {
		var err error
		run, err = scanRun(r.p.pool.QueryRow(ctx,
			`SELECT `+runColumns+` FROM sync_runs WHERE status = 'completed' ORDER BY started_at DESC LIMIT 1`))
		return err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("last completed sync run: %w", err)
	}
	return run, nil
}

func scanRun(row pgx.Row) (*model.SyncRun, error) {
	var run model.SyncRun
	err := row.Scan(&run.ID, &run.Mode, &run.Status, &run.Since, &run.StartedAt, &run.FinishedAt,
		&run.Created, &run.Updated, &run.Skipped, &run.Failed, &run.Errors)
	if err != nil {
		return nil, err
	}
	run.Since = utcPtr(run.Since)
	run.StartedAt = utc(run.StartedAt)
	run.FinishedAt = utcPtr(run.FinishedAt)
	if len(run.Errors) == 0 {
		run.Errors = nil
	}
	return &run, nil
}
