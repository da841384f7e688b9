package models

import (
	"database/sql"
	"fmt"
	"time"
)

// Notification types, stored in notifications.type.
const (
	NotifyPlanReady       = "plan_ready"
	NotifyWorkoutLogged   = "workout_logged"
	NotifyStreakMilestone = "streak_milestone"
)

// NotificationType describes a type for the preferences screen.
type NotificationType struct {
	Type        string `json:"type"`
	Label       string `json:"label"`
	Description string `json:"description"`
}

// AllNotificationTypes lists the known types in display order.
var AllNotificationTypes = []NotificationType{
	{Type: NotifyPlanReady, Label: "Plan Ready", Description: "When your trainer finishes a new workout plan"},
	{Type: NotifyWorkoutLogged, Label: "Workout Logged", Description: "When a completed workout is recorded"},
	{Type: NotifyStreakMilestone, Label: "Streak Milestone", Description: "When your daily streak reaches a milestone"},
}

// Notification is an in-app notification row.
type Notification struct {
	ID        int64
	UserID    int64
	Type      string
	Title     string
	Message   sql.NullString
	Link      sql.NullString
	Read      bool
	CreatedAt time.Time
}

// NotificationPreference is a user's channel choice for one type. Types with
// no stored row default to in-app only.
type NotificationPreference struct {
	Type     string `json:"type"`
	InApp    bool   `json:"inApp"`
	External bool   `json:"external"`
}

const notificationColumns = `id, user_id, type, title, message, link, read, created_at`

func scanNotification(row interface{ Scan(...any) error }) (*Notification, error) {
	n := &Notification{}
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Link, &n.Read, &n.CreatedAt)
	return n, err
}

// CreateNotification inserts an unread notification.
func CreateNotification(db *sql.DB, userID int64, nType, title, message, link string) (*Notification, error) {
	n, err := scanNotification(db.QueryRow(`
		INSERT INTO notifications (user_id, type, title, message, link)
		VALUES (?, ?, ?, ?, ?)
		RETURNING `+notificationColumns,
		userID, nType, title, nullString(message), nullString(link),
	))
	if err != nil {
		return nil, fmt.Errorf("models: create notification: %w", err)
	}
	return n, nil
}

// GetUnreadCount returns how many unread notifications the user has.
func GetUnreadCount(db *sql.DB, userID int64) (int, error) {
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = 0`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("models: get unread count for user %d: %w", userID, err)
	}
	return count, nil
}

// ListNotifications pages through the user's notifications, newest first.
func ListNotifications(db *sql.DB, userID int64, limit, offset int) ([]*Notification, error) {
	rows, err := db.Query(`
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("models: list notifications for user %d: %w", userID, err)
	}
	defer rows.Close()

	var list []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("models: scan notification: %w", err)
		}
		list = append(list, n)
	}
	return list, rows.Err()
}

// MarkAsRead marks one of the user's notifications read.
func MarkAsRead(db *sql.DB, userID, id int64) error {
	result, err := db.Exec(`UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("models: mark notification %d read: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllAsRead marks every unread notification of the user read.
func MarkAllAsRead(db *sql.DB, userID int64) (int64, error) {
	result, err := db.Exec(`UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0`, userID)
	if err != nil {
		return 0, fmt.Errorf("models: mark all read for user %d: %w", userID, err)
	}
	return result.RowsAffected()
}

// DeleteOldNotifications removes read notifications created before t.
func DeleteOldNotifications(db *sql.DB, t time.Time) (int64, error) {
	result, err := db.Exec(`DELETE FROM notifications WHERE read = 1 AND created_at < ?`, t.UTC().Format(sqliteDateTime))
	if err != nil {
		return 0, fmt.Errorf("models: delete old notifications: %w", err)
	}
	return result.RowsAffected()
}

// GetNotificationPreference returns the user's preference for a type.
func GetNotificationPreference(db *sql.DB, userID int64, nType string) NotificationPreference {
	pref := NotificationPreference{Type: nType, InApp: true}
	// A missing row leaves the defaults.
	_ = db.QueryRow(`SELECT in_app, external FROM notification_preferences WHERE user_id = ? AND type = ?`,
		userID, nType).Scan(&pref.InApp, &pref.External)
	return pref
}

// ListNotificationPreferences returns a preference for every known type.
func ListNotificationPreferences(db *sql.DB, userID int64) []NotificationPreference {
	prefs := make([]NotificationPreference, 0, len(AllNotificationTypes))
	for _, nt := range AllNotificationTypes {
		prefs = append(prefs, GetNotificationPreference(db, userID, nt.Type))
	}
	return prefs
}

// SetNotificationPreference stores the user's channel choice for a known type.
func SetNotificationPreference(db *sql.DB, userID int64, p NotificationPreference) error {
	known := false
	for _, nt := range AllNotificationTypes {
		known = known || nt.Type == p.Type
	}
	if !known {
		return fmt.Errorf("models: unknown notification type %q", p.Type)
	}
	if _, err := db.Exec(`
		INSERT INTO notification_preferences (user_id, type, in_app, external) VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, type) DO UPDATE SET in_app = excluded.in_app, external = excluded.external`,
		userID, p.Type, boolToInt(p.InApp), boolToInt(p.External)); err != nil {
		return fmt.Errorf("models: set notification preference %q for user %d: %w", p.Type, userID, err)
	}
	return nil
}
