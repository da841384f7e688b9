package models

import (
	"database/sql"
	"fmt"
	"time"
)

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one turn of a user's conversation with the trainer.
type ChatMessage struct {
	ID        int64
	UserID    int64
	Role      string
	Content   string
	CreatedAt time.Time
}

// NewChatMessage is a message to be inserted.
type NewChatMessage struct {
	Role    string
	Content string
}

// ListChatMessages returns up to limit of the user's most recent messages,
// newest first. Insertion order breaks timestamp ties. limit <= 0 means no limit.
func ListChatMessages(db *sql.DB, userID int64, limit int) ([]*ChatMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`
		SELECT id, user_id, role, content, created_at
		FROM chat_messages
		WHERE user_id = ?
		ORDER BY id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("models: list chat messages for user %d: %w", userID, err)
	}
	defer rows.Close()

	var msgs []*ChatMessage
	for rows.Next() {
		m := &ChatMessage{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("models: scan chat message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// InsertChatMessages appends messages in argument order within one transaction.
func InsertChatMessages(db *sql.DB, userID int64, msgs ...NewChatMessage) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("models: begin insert chat messages: %w", err)
	}
	defer tx.Rollback()

	for _, m := range msgs {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("models: invalid chat role %q", m.Role)
		}
		if _, err := tx.Exec(`INSERT INTO chat_messages (user_id, role, content) VALUES (?, ?, ?)`,
			userID, m.Role, m.Content); err != nil {
			return fmt.Errorf("models: insert %s chat message for user %d: %w", m.Role, userID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("models: commit chat messages: %w", err)
	}
	return nil
}

// DeleteChatMessagesBefore removes messages created before t across all users.
func DeleteChatMessagesBefore(db *sql.DB, t time.Time) (int64, error) {
	result, err := db.Exec(`DELETE FROM chat_messages WHERE created_at < ?`, t.UTC().Format(sqliteDateTime))
	if err != nil {
		return 0, fmt.Errorf("models: delete old chat messages: %w", err)
	}
	return result.RowsAffected()
}
