package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/RichardoC/chatpad/internal/models"
)

const selectMessages = `
SELECT id, conversation_id, role, COALESCE(content, ''), timestamp, COALESCE(model, '')
FROM messages`

func scanMessage(row interface{ Scan(...any) error }) (models.Message, error) {
	var (
		msg models.Message
		ts  sqliteTime
	)
	if err := row.Scan(&msg.ID, &msg.ConvID, &msg.Role, &msg.Content, &ts, &msg.Model); err != nil {
		return msg, err
	}
	msg.Timestamp = ts.Time
	return msg, nil
}

func (d *Database) queryMessages(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// AppendMessage stores a message and bumps the conversation's updated_at in
// the same transaction.
func (d *Database) AppendMessage(ctx context.Context, convID int64, role models.Role, content, model string) (models.Message, error) {
	now := d.timestamp()
	msg := models.Message{
		ConvID:    convID,
		Role:      role,
		Content:   content,
		Timestamp: now,
		Model:     model,
	}

	err := d.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
            INSERT INTO messages (conversation_id, role, content, timestamp, model)
            VALUES (?, ?, ?, ?, ?)
            RETURNING id`, convID, string(role), content, now, model).Scan(&msg.ID)
		if err != nil {
			return err
		}
		return touchConversation(ctx, tx, convID, now)
	})
	if err != nil {
		return msg, fmt.Errorf("append %s message to conversation %d: %w", role, convID, err)
	}
	return msg, nil
}

// Messages returns the whole history of a conversation in id order.
func (d *Database) Messages(ctx context.Context, convID int64) ([]models.Message, error) {
	messages, err := d.queryMessages(ctx, selectMessages+`
WHERE conversation_id = ?
ORDER BY id ASC`, convID)
	if err != nil {
		return nil, fmt.Errorf("messages of conversation %d: %w", convID, err)
	}
	return messages, nil
}

// ContextMessages returns the messages after the conversation's context
// start marker (the marker itself excluded), or the whole history when no
// marker is set. This is what gets sent to the model.
func (d *Database) ContextMessages(ctx context.Context, convID int64) ([]models.Message, error) {
	messages, err := d.queryMessages(ctx, selectMessages+`
WHERE conversation_id = ?
  AND id > COALESCE((SELECT context_start_message_id FROM conversations WHERE id = ?), 0)
ORDER BY id ASC`, convID, convID)
	if err != nil {
		return nil, fmt.Errorf("context messages of conversation %d: %w", convID, err)
	}
	return messages, nil
}

// MessagesUntil returns the role/content pairs of every message with id up to
// and including maxID, in id order.
func (d *Database) MessagesUntil(ctx context.Context, convID, maxID int64) ([]models.ChatMessage, error) {
	rows, err := d.db.QueryContext(ctx, `
SELECT role, COALESCE(content, '')
FROM messages
WHERE conversation_id = ? AND id <= ?
ORDER BY id ASC`, convID, maxID)
	if err != nil {
		return nil, fmt.Errorf("messages of conversation %d until %d: %w", convID, maxID, err)
	}
	defer rows.Close()

	history := make([]models.ChatMessage, 0)
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.Role, &m.Content); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		history = append(history, m)
	}
	return history, rows.Err()
}

func (d *Database) GetMessage(ctx context.Context, id int64) (models.Message, error) {
	msg, err := scanMessage(d.db.QueryRowContext(ctx, selectMessages+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return msg, ErrMessageNotFound
	}
	if err != nil {
		return msg, fmt.Errorf("get message %d: %w", id, err)
	}
	return msg, nil
}

// LastUserMessageAtOrBefore finds the most recent user message with id <= id.
func (d *Database) LastUserMessageAtOrBefore(ctx context.Context, convID, id int64) (int64, bool, error) {
	return d.findMessageID(ctx, `
SELECT id FROM messages
WHERE conversation_id = ? AND role = 'user' AND id <= ?
ORDER BY id DESC LIMIT 1`, convID, id)
}

// NextAssistantMessageAfter finds the earliest assistant message with id > id.
func (d *Database) NextAssistantMessageAfter(ctx context.Context, convID, id int64) (int64, bool, error) {
	return d.findMessageID(ctx, `
SELECT id FROM messages
WHERE conversation_id = ? AND role = 'assistant' AND id > ?
ORDER BY id ASC LIMIT 1`, convID, id)
}

func (d *Database) findMessageID(ctx context.Context, query string, args ...any) (int64, bool, error) {
	var id int64
	err := d.db.QueryRowContext(ctx, query, args...).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find message: %w", err)
	}
	return id, true, nil
}

// UpdateMessageContent overwrites a message's content in place and refreshes
// its timestamp, which is returned.
func (d *Database) UpdateMessageContent(ctx context.Context, id int64, content string) (time.Time, error) {
	now := d.timestamp()
	res, err := d.db.ExecContext(ctx,
		"UPDATE messages SET content = ?, timestamp = ? WHERE id = ?", content, now, id)
	if err != nil {
		return time.Time{}, fmt.Errorf("update message %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("update message %d: %w", id, err)
	}
	if n == 0 {
		return time.Time{}, ErrMessageNotFound
	}
	return now, nil
}

// DeleteMessage removes one message. Later ids are left untouched. Deleting a
// missing message still reports success.
func (d *Database) DeleteMessage(ctx context.Context, id int64) (bool, error) {
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		var convID int64
		err := tx.QueryRowContext(ctx, "SELECT conversation_id FROM messages WHERE id = ?", id).Scan(&convID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", id); err != nil {
			return err
		}
		return touchConversation(ctx, tx, convID, d.timestamp())
	})
	if err != nil {
		return false, fmt.Errorf("delete message %d: %w", id, err)
	}
	return true, nil
}

// ClearContext moves the conversation's context start marker to its latest
// message, hiding everything so far from future model calls. It reports
// false when the conversation has no messages. The marker never moves
// backward.
func (d *Database) ClearContext(ctx context.Context, convID int64) (bool, error) {
	cleared := false
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		var maxID sql.NullInt64
		err := tx.QueryRowContext(ctx,
			"SELECT MAX(id) FROM messages WHERE conversation_id = ?", convID).Scan(&maxID)
		if err != nil {
			return err
		}
		if !maxID.Valid {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
            UPDATE conversations
            SET context_start_message_id = ?, updated_at = ?
            WHERE id = ?
              AND (context_start_message_id IS NULL OR context_start_message_id < ?)`,
			maxID.Int64, d.timestamp(), convID, maxID.Int64)
		if err != nil {
			return err
		}
		cleared = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("clear context of conversation %d: %w", convID, err)
	}
	return cleared, nil
}
