package database

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// MessageRepository remembers the last chat message delivered under each
// notification ID, so a restarted process can still replace it.
type MessageRepository struct {
	db *sqlx.DB
	sb sq.StatementBuilderType
}

// NewMessageRepository creates a new repository instance
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db, sb: statementBuilder(db)}
}

// LastMessage returns the chat and message ID last stored for notificationID, or ErrNotFound
func (r *MessageRepository) LastMessage(ctx context.Context, notificationID string) (int64, int, error) {
	query, args, err := r.sb.Select("chat_id", "message_id").
		From("notification_messages").
		Where(sq.Eq{"notification_id": notificationID}).
		ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("build message query: %w", err)
	}
	var row struct {
		ChatID    int64 `db:"chat_id"`
		MessageID int64 `db:"message_id"`
	}
	if err := r.db.GetContext(ctx, &row, query, args...); err != nil {
		return 0, 0, wrapErr("get message "+notificationID, err)
	}
	return row.ChatID, int(row.MessageID), nil
}

// RememberMessage stores messageID as the current message for notificationID
func (r *MessageRepository) RememberMessage(ctx context.Context, notificationID string, chatID int64, messageID int) error {
	query := r.db.Rebind(`
		INSERT INTO notification_messages (notification_id, chat_id, message_id)
		VALUES (?, ?, ?)
		ON CONFLICT (notification_id) DO UPDATE SET
			chat_id = excluded.chat_id,
			message_id = excluded.message_id`)
	err := retryOnContention(ctx, func() error {
		_, err := r.db.ExecContext(ctx, query, notificationID, chatID, int64(messageID))
		return err
	})
	return wrapErr("remember message "+notificationID, err)
}
