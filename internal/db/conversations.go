package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/RichardoC/chatpad/internal/models"
	"go.uber.org/zap"
)

const selectConversations = `
SELECT c.id, COALESCE(c.title, ''), c.created_at, c.updated_at,
       COUNT(m.id) AS message_count, c.context_start_message_id
FROM conversations c
LEFT JOIN messages m ON m.conversation_id = c.id`

func scanConversation(row interface{ Scan(...any) error }) (models.Conversation, error) {
	var (
		conv           models.Conversation
		created        sqliteTime
		updated        sqliteTime
		contextStartID sql.NullInt64
	)
	if err := row.Scan(&conv.ID, &conv.Title, &created, &updated, &conv.MessageCount, &contextStartID); err != nil {
		return conv, err
	}
	conv.CreatedAt = created.Time
	conv.UpdatedAt = updated.Time
	if contextStartID.Valid {
		id := contextStartID.Int64
		conv.ContextStartMessageID = &id
	}
	return conv, nil
}

// ListConversations returns every conversation, most recently updated first,
// with its message count.
func (d *Database) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	rows, err := d.db.QueryContext(ctx, selectConversations+`
GROUP BY c.id
ORDER BY c.updated_at DESC, c.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, conv)
	}
	return conversations, rows.Err()
}

func (d *Database) GetConversation(ctx context.Context, id int64) (models.Conversation, error) {
	row := d.db.QueryRowContext(ctx, selectConversations+`
WHERE c.id = ?
GROUP BY c.id`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return conv, ErrConversationNotFound
	}
	if err != nil {
		return conv, fmt.Errorf("get conversation %d: %w", id, err)
	}
	return conv, nil
}

// LatestConversation returns the most recently updated conversation, or
// false when there are none.
func (d *Database) LatestConversation(ctx context.Context) (models.Conversation, bool, error) {
	row := d.db.QueryRowContext(ctx, selectConversations+`
GROUP BY c.id
ORDER BY c.updated_at DESC, c.id DESC
LIMIT 1`)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return conv, false, nil
	}
	if err != nil {
		return conv, false, fmt.Errorf("latest conversation: %w", err)
	}
	return conv, true, nil
}

// CreateConversation stores a new conversation. A blank title, or the
// placeholder DefaultConversationTitle, is replaced by a generated one. Any
// other title is stored as given.
func (d *Database) CreateConversation(ctx context.Context, title string) (models.Conversation, error) {
	if trimmed := strings.TrimSpace(title); trimmed == "" || trimmed == models.DefaultConversationTitle {
		generated, err := d.GenerateTitle(ctx)
		if err != nil {
			return models.Conversation{}, err
		}
		title = generated
	}

	now := d.timestamp()
	conv := models.Conversation{Title: title, CreatedAt: now, UpdatedAt: now}
	err := d.db.QueryRowContext(ctx, `
        INSERT INTO conversations (title, created_at, updated_at)
        VALUES (?, ?, ?)
        RETURNING id`, title, now, now).Scan(&conv.ID)
	if err != nil {
		return conv, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// RenameConversation sets a trimmed, non-empty title and returns it.
func (d *Database) RenameConversation(ctx context.Context, id int64, title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", ErrEmptyTitle
	}

	res, err := d.db.ExecContext(ctx,
		"UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?",
		title, d.timestamp(), id)
	if err != nil {
		return "", fmt.Errorf("rename conversation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("rename conversation %d: %w", id, err)
	}
	if n == 0 {
		return "", ErrConversationNotFound
	}
	return title, nil
}

// DeleteConversation removes a conversation and all of its messages.
// Deleting a missing conversation still reports success.
func (d *Database) DeleteConversation(ctx context.Context, id int64) (bool, error) {
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", id)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("delete conversation %d: %w", id, err)
	}
	return true, nil
}

// TouchConversation bumps updated_at.
func (d *Database) TouchConversation(ctx context.Context, id int64) error {
	if _, err := d.db.ExecContext(ctx, "UPDATE conversations SET updated_at = ? WHERE id = ?", d.timestamp(), id); err != nil {
		return fmt.Errorf("touch conversation %d: %w", id, err)
	}
	return nil
}

// EnsureDefaultConversation creates one conversation with a generated title
// when the table is empty.
func (d *Database) EnsureDefaultConversation(ctx context.Context) (bool, error) {
	var count int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&count); err != nil {
		return false, fmt.Errorf("count conversations: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	conv, err := d.CreateConversation(ctx, "")
	if err != nil {
		return false, err
	}
	d.logger.Info("created default conversation",
		zap.Int64("conversation_id", conv.ID),
		zap.String("title", conv.Title))
	return true, nil
}
