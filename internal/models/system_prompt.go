package models

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SystemPrompt is a user's trainer persona: a display name and instructions.
type SystemPrompt struct {
	UserID    int64
	Name      string
	Prompt    string
	UpdatedAt time.Time
}

// GetSystemPrompt returns the user's persona, or ErrNotFound when unset.
func GetSystemPrompt(db *sql.DB, userID int64) (*SystemPrompt, error) {
	sp := &SystemPrompt{}
	err := db.QueryRow(`SELECT user_id, name, prompt, updated_at FROM system_prompts WHERE user_id = ?`, userID).
		Scan(&sp.UserID, &sp.Name, &sp.Prompt, &sp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("models: get system prompt for user %d: %w", userID, err)
	}
	return sp, nil
}

// UpsertSystemPrompt sets the user's persona. Name and prompt must be non-blank.
func UpsertSystemPrompt(db *sql.DB, userID int64, name, prompt string) (*SystemPrompt, error) {
	name, prompt = strings.TrimSpace(name), strings.TrimSpace(prompt)
	if name == "" || prompt == "" {
		return nil, fmt.Errorf("models: system prompt name and prompt are required")
	}
	if _, err := db.Exec(`
		INSERT INTO system_prompts (user_id, name, prompt) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET name = excluded.name, prompt = excluded.prompt, updated_at = CURRENT_TIMESTAMP`,
		userID, name, prompt); err != nil {
		return nil, fmt.Errorf("models: upsert system prompt for user %d: %w", userID, err)
	}
	return GetSystemPrompt(db, userID)
}
