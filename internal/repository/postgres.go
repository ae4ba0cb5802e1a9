// Package repository 基于 pgx 的 store.Store 实现。
package repository

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"frontsync/internal/model"
	"frontsync/internal/store"
	"frontsync/pkg/otel"
	"frontsync/pkg/outbox"
)

//go:embed schema.sql
var schemaSQL string

// Postgres 实现 store.Store
type Postgres struct {
	pool   *pgxpool.Pool
	outbox *outbox.Repository
	logger *zap.Logger
	now    func() time.Time

	teammates     *table[model.Teammate, *model.Teammate]
	tags          *pgTags
	inboxes       *table[model.Inbox, *model.Inbox]
	contacts      *pgContacts
	conversations *table[model.Conversation, *model.Conversation]
	messages      *pgMessages
	assoc         *pgAssociations
	runs          *pgRuns
}

func NewPostgres(pool *pgxpool.Pool, logger *zap.Logger) *Postgres {
	p := &Postgres{
		pool:   pool,
		outbox: outbox.NewRepository(pool),
		logger: logger,
		now:    time.Now,
	}
	p.teammates = newTable(p, teammateColumns)
	p.tags = &pgTags{table: newTable(p, tagColumns)}
	p.inboxes = newTable(p, inboxColumns)
	p.contacts = &pgContacts{table: newTable(p, contactColumns)}
	p.conversations = newTable(p, conversationColumns)
	p.messages = &pgMessages{table: newTable(p, messageColumns)}
	p.assoc = &pgAssociations{p: p}
	p.runs = &pgRuns{p: p}
	return p
}

func (p *Postgres) Teammates() store.Repository[model.Teammate]         { return p.teammates }
func (p *Postgres) Tags() store.TagRepository                           { return p.tags }
func (p *Postgres) Inboxes() store.Repository[model.Inbox]              { return p.inboxes }
func (p *Postgres) Contacts() store.ContactRepository                   { return p.contacts }
func (p *Postgres) Conversations() store.Repository[model.Conversation] { return p.conversations }
func (p *Postgres) Messages() store.MessageRepository                   { return p.messages }
func (p *Postgres) Associations() store.AssociationStore                { return p.assoc }
func (p *Postgres) SyncRuns() store.SyncRunRepository                   { return p.runs }

// Outbox 与同步记录共用连接池的 outbox 仓库
func (p *Postgres) Outbox() *outbox.Repository {
	return p.outbox
}

// Migrate 执行内嵌的建表语句，可重复执行
func (p *Postgres) Migrate(ctx context.Context) error {
	return otel.DB(ctx, "migrate", "schema", func(ctx context.Context) error {
		if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
		p.logger.Info("Database schema is up to date")
		return nil
	})
}

// Ping 供 /readyz 使用
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) clock() time.Time {
	// timestamptz 只保留微秒
	return p.now().UTC().Truncate(time.Microsecond)
}

// inTx 在事务中执行 fn，fn 返回错误时回滚
func (p *Postgres) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
