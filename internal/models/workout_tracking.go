package models

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// WorkoutTracking records that a user finished a workout.
type WorkoutTracking struct {
	ID           int64
	UserID       int64
	WorkoutID    sql.NullString
	CompletedAt  time.Time
	Duration     sql.NullInt64 // minutes
	Intensity    sql.NullInt64 // 1-10
	WouldDoAgain sql.NullBool
	Notes        sql.NullString
	CreatedAt    time.Time
}

// TrackingInput describes a completed workout to record.
type TrackingInput struct {
	WorkoutID    string
	CompletedAt  time.Time
	Duration     *int
	Intensity    *int
	WouldDoAgain *bool
	Notes        string
}

// CreateWorkoutTracking records a completed workout. When the workout belongs
// to the user its status is set to completed in the same transaction.
func CreateWorkoutTracking(db *sql.DB, userID int64, in TrackingInput) (*WorkoutTracking, error) {
	if in.Intensity != nil && (*in.Intensity < 1 || *in.Intensity > 10) {
		return nil, fmt.Errorf("models: intensity %d out of range 1-10", *in.Intensity)
	}

	var duration, intensity sql.NullInt64
	if in.Duration != nil {
		duration = sql.NullInt64{Int64: int64(*in.Duration), Valid: true}
	}
	if in.Intensity != nil {
		intensity = sql.NullInt64{Int64: int64(*in.Intensity), Valid: true}
	}
	var again sql.NullInt64
	if in.WouldDoAgain != nil {
		again = sql.NullInt64{Int64: int64(boolToInt(*in.WouldDoAgain)), Valid: true}
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("models: begin tracking: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO workout_tracking (user_id, workout_id, completed_at, duration, intensity, would_do_again, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		userID, nullString(in.WorkoutID), formatTimestamp(in.CompletedAt), duration, intensity, again, nullString(in.Notes),
	)
	if err != nil {
		return nil, fmt.Errorf("models: create workout tracking for user %d: %w", userID, err)
	}
	id, _ := result.LastInsertId()

	if in.WorkoutID != "" {
		if _, err := tx.Exec(`UPDATE workouts SET status = ? WHERE id = ? AND user_id = ?`,
			StatusCompleted, in.WorkoutID, userID); err != nil {
			return nil, fmt.Errorf("models: mark workout %q completed: %w", in.WorkoutID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("models: commit tracking: %w", err)
	}
	return GetWorkoutTracking(db, userID, id)
}

const trackingColumns = `id, user_id, workout_id, completed_at, duration, intensity, would_do_again, notes, created_at`

func scanTracking(row interface{ Scan(...any) error }) (*WorkoutTracking, error) {
	wt := &WorkoutTracking{}
	var completed string
	if err := row.Scan(&wt.ID, &wt.UserID, &wt.WorkoutID, &completed, &wt.Duration, &wt.Intensity,
		&wt.WouldDoAgain, &wt.Notes, &wt.CreatedAt); err != nil {
		return nil, err
	}
	t, err := parseTimestamp(completed)
	if err != nil {
		return nil, fmt.Errorf("models: parse completed_at %q: %w", completed, err)
	}
	wt.CompletedAt = t
	return wt, nil
}

// GetWorkoutTracking retrieves one tracking row owned by userID.
func GetWorkoutTracking(db *sql.DB, userID, id int64) (*WorkoutTracking, error) {
	wt, err := scanTracking(db.QueryRow(
		`SELECT `+trackingColumns+` FROM workout_tracking WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("models: get workout tracking %d: %w", id, err)
	}
	return wt, nil
}

// ListWorkoutTracking returns the user's tracking rows with from <= completed_at <= to,
// oldest first.
func ListWorkoutTracking(db *sql.DB, userID int64, from, to time.Time) ([]*WorkoutTracking, error) {
	rows, err := db.Query(`
		SELECT `+trackingColumns+`
		FROM workout_tracking
		WHERE user_id = ? AND completed_at >= ? AND completed_at <= ?
		ORDER BY completed_at, id`,
		userID, formatTimestamp(from), formatTimestamp(to),
	)
	if err != nil {
		return nil, fmt.Errorf("models: list workout tracking for user %d: %w", userID, err)
	}
	defer rows.Close()

	var list []*WorkoutTracking
	for rows.Next() {
		wt, err := scanTracking(rows)
		if err != nil {
			return nil, fmt.Errorf("models: scan workout tracking: %w", err)
		}
		list = append(list, wt)
	}
	return list, rows.Err()
}

// ImportWorkoutTracking records completed sessions from an external export in
// one transaction. Entries whose completed_at matches an existing row of the
// user are skipped, so re-importing the same file is a no-op.
func ImportWorkoutTracking(db *sql.DB, userID int64, entries []TrackingInput) (imported, skipped int, err error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("models: begin tracking import: %w", err)
	}
	defer tx.Rollback()

	for _, in := range entries {
		if in.Intensity != nil && (*in.Intensity < 1 || *in.Intensity > 10) {
			return 0, 0, fmt.Errorf("models: intensity %d out of range 1-10", *in.Intensity)
		}
		ts := formatTimestamp(in.CompletedAt)

		var exists int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM workout_tracking WHERE user_id = ? AND completed_at = ?`,
			userID, ts).Scan(&exists); err != nil {
			return 0, 0, fmt.Errorf("models: check existing tracking: %w", err)
		}
		if exists > 0 {
			skipped++
			continue
		}

		var duration, intensity sql.NullInt64
		if in.Duration != nil {
			duration = sql.NullInt64{Int64: int64(*in.Duration), Valid: true}
		}
		if in.Intensity != nil {
			intensity = sql.NullInt64{Int64: int64(*in.Intensity), Valid: true}
		}
		if _, err := tx.Exec(`
			INSERT INTO workout_tracking (user_id, completed_at, duration, intensity, notes)
			VALUES (?, ?, ?, ?, ?)`,
			userID, ts, duration, intensity, nullString(in.Notes),
		); err != nil {
			return 0, 0, fmt.Errorf("models: import tracking for user %d: %w", userID, err)
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("models: commit tracking import: %w", err)
	}
	return imported, skipped, nil
}
