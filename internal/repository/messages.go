package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"frontsync/internal/model"
	"frontsync/pkg/otel"
)

type pgMessages struct {
	*table[model.Message, *model.Message]
}

// ReplaceRecipients 删除后用 COPY 重建，同一事务内完成
func (r *pgMessages) ReplaceRecipients(ctx context.Context, messageID int64, recipients []model.Recipient) error {
	rows := make([][]any, 0, len(recipients))
	for _, rc := range recipients {
		rows = append(rows, []any{messageID, rc.Handle, rc.Role, rc.ContactID})
	}
	return r.replaceChildren(ctx, "message_recipients", messageID,
		[]string{"message_id", "handle", "role", "contact_id"}, rows)
}

func (r *pgMessages) ReplaceAttachments(ctx context.Context, messageID int64, attachments []model.Attachment) error {
	rows := make([][]any, 0, len(attachments))
	for _, a := range attachments {
		rows = append(rows, []any{messageID, a.Filename, a.URL, a.ContentType, a.Size, a.IsInline})
	}
	return r.replaceChildren(ctx, "message_attachments", messageID,
		[]string{"message_id", "filename", "url", "content_type", "size", "is_inline"}, rows)
}

func (r *pgMessages) replaceChildren(ctx context.Context, table string, messageID int64, cols []string, rows [][]any) error {
	err := otel.DB(ctx, "replace", table, func(ctx context.Context) error {
		return r.p.inTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE message_id = $1", messageID); err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}
			_, err := tx.CopyFrom(ctx, pgx.Identifier{table}, cols, pgx.CopyFromRows(rows))
			return err
		})
	})
	if err != nil {
		return fmt.Errorf("replace %s for message %d: %w", table, messageID, err)
	}
	return nil
}
