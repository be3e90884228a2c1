package fundboard

import (
	"context"
	"database/sql"
)

const (
	defaultChatHistoryLimit = 100
	maxChatHistoryLimit     = 1000
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one persisted chat history row.
type ChatMessage struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"createdAt"`
}

// GetChatHistory returns the user's most recent limit messages in
// conversational order (oldest of the window first).
func (c *Core) GetChatHistory(ctx context.Context, userID int64, limit int) ([]ChatMessage, error) {
	if limit <= 0 {
		limit = defaultChatHistoryLimit
	}
	if limit > maxChatHistoryLimit {
		limit = maxChatHistoryLimit
	}
	rows, err := c.queryContext(ctx, `
		SELECT id, role, content, created_at
		FROM (
			SELECT id, role, content, created_at
			FROM chat_history
			WHERE user_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, id ASC
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := []ChatMessage{}
	for rows.Next() {
		var msg ChatMessage
		var createdAt sql.NullString
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, WrapError(ErrCodeDatabase, "failed to read chat history", err)
		}
		msg.CreatedAt = createdAt.String
		history = append(history, msg)
	}
	return history, rows.Err()
}

// ClearChatHistory deletes all chat history of the user.
func (c *Core) ClearChatHistory(ctx context.Context, userID int64) (int64, error) {
	result, err := c.execContext(ctx, "DELETE FROM chat_history WHERE user_id = ?", userID)
	if err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, WrapError(ErrCodeDatabase, "failed to clear chat history", err)
	}
	return n, nil
}

// appendChatTurn writes the user message and the assistant reply, in that order.
func (c *Core) appendChatTurn(ctx context.Context, userID int64, userMessage, reply string) error {
	return c.WithTx(ctx, func(tx *sql.Tx) error {
		const insert = "INSERT INTO chat_history (user_id, role, content) VALUES (?, ?, ?)"
		if _, err := tx.ExecContext(ctx, insert, userID, RoleUser, userMessage); err != nil {
			return WrapError(ErrCodeDatabase, "failed to save user message", err)
		}
		if _, err := tx.ExecContext(ctx, insert, userID, RoleAssistant, reply); err != nil {
			return WrapError(ErrCodeDatabase, "failed to save assistant message", err)
		}
		return nil
	})
}
