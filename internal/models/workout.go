package models

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Workout types.
const (
	WorkoutTypeClass   = "class"
	WorkoutTypeWorkout = "workout"
)

// Workout statuses.
const (
	StatusNotRecorded  = "not_recorded"
	StatusCompleted    = "completed"
	StatusNotCompleted = "not_completed"
)

// Exercise is one line of a non-class workout's breakdown.
type Exercise struct {
	Name     string   `json:"name"`
	Sets     int      `json:"sets"`
	Reps     int      `json:"reps"`
	WeightKg *float64 `json:"weightKg,omitempty"`
}

// Workout is either a bookable studio class (catalog entry, no owner) or a
// user-owned session: a planned class linked via ClassID, or a self-guided
// workout with an exercise breakdown.
type Workout struct {
	ID           string
	UserID       sql.NullInt64
	Name         string
	Description  sql.NullString
	Instructor   sql.NullString
	Duration     int // minutes
	Type         string
	ActivityType sql.NullString
	Level        sql.NullString
	Bookable     bool
	ClassID      sql.NullString
	Status       string
	IsBooked     bool
	Exercises    []Exercise
	Archived     bool
	CreatedAt    time.Time
}

// ActivityType is a free (non-class) activity users can log or be planned.
type ActivityType struct {
	ID          string
	Name        string
	Description sql.NullString
}

const workoutColumns = `id, user_id, name, description, instructor, duration, type, activity_type, level,
	bookable, class_id, status, is_booked, exercises, archived, created_at`

func scanWorkout(row interface{ Scan(...any) error }) (*Workout, error) {
	w := &Workout{}
	var exercises sql.NullString
	err := row.Scan(
		&w.ID, &w.UserID, &w.Name, &w.Description, &w.Instructor, &w.Duration, &w.Type, &w.ActivityType, &w.Level,
		&w.Bookable, &w.ClassID, &w.Status, &w.IsBooked, &exercises, &w.Archived, &w.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if exercises.Valid && exercises.String != "" {
		if err := json.Unmarshal([]byte(exercises.String), &w.Exercises); err != nil {
			return nil, fmt.Errorf("models: unmarshal exercises for workout %q: %w", w.ID, err)
		}
	}
	return w, nil
}

func marshalExercises(ex []Exercise) (sql.NullString, error) {
	if len(ex) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(ex)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("models: marshal exercises: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertWorkout(ex execer, w *Workout) error {
	exercises, err := marshalExercises(w.Exercises)
	if err != nil {
		return err
	}
	status := w.Status
	if status == "" {
		status = StatusNotRecorded
	}
	_, err = ex.Exec(`
		INSERT INTO workouts (id, user_id, name, description, instructor, duration, type, activity_type, level,
		                      bookable, class_id, status, is_booked, exercises, archived)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		w.ID, w.UserID, w.Name, w.Description, w.Instructor, w.Duration, w.Type, w.ActivityType, w.Level,
		boolToInt(w.Bookable), w.ClassID, status, boolToInt(w.IsBooked), exercises, boolToInt(w.Archived),
	)
	if err != nil {
		return fmt.Errorf("models: insert workout %q: %w", w.ID, err)
	}
	return nil
}

// CreateWorkout inserts a workout row. The caller supplies the id.
func CreateWorkout(db *sql.DB, w *Workout) (*Workout, error) {
	if err := insertWorkout(db, w); err != nil {
		return nil, err
	}
	return GetWorkout(db, w.ID)
}

// GetWorkout retrieves a workout by id.
func GetWorkout(db *sql.DB, id string) (*Workout, error) {
	w, err := scanWorkout(db.QueryRow(`SELECT `+workoutColumns+` FROM workouts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("models: get workout %q: %w", id, err)
	}
	return w, nil
}

// ListClassCatalog returns the bookable studio classes, ordered by name.
func ListClassCatalog(db *sql.DB) ([]*Workout, error) {
	rows, err := db.Query(`
		SELECT ` + workoutColumns + `
		FROM workouts
		WHERE type = 'class' AND bookable = 1 AND user_id IS NULL AND archived = 0
		ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("models: list class catalog: %w", err)
	}
	defer rows.Close()

	var classes []*Workout
	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			return nil, fmt.Errorf("models: scan class: %w", err)
		}
		classes = append(classes, w)
	}
	return classes, rows.Err()
}

// UpdateWorkoutStatus records whether a user-owned workout was done.
func UpdateWorkoutStatus(db *sql.DB, userID int64, id, status string) error {
	switch status {
	case StatusNotRecorded, StatusCompleted, StatusNotCompleted:
	default:
		return fmt.Errorf("models: invalid workout status %q", status)
	}
	result, err := db.Exec(`UPDATE workouts SET status = ? WHERE id = ? AND user_id = ?`, status, id, userID)
	if err != nil {
		return fmt.Errorf("models: update workout %q status: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetWorkoutBooked flags a planned class session as booked or not.
func SetWorkoutBooked(db *sql.DB, userID int64, id string, booked bool) error {
	result, err := db.Exec(`UPDATE workouts SET is_booked = ? WHERE id = ? AND user_id = ? AND type = 'class'`,
		boolToInt(booked), id, userID)
	if err != nil {
		return fmt.Errorf("models: set workout %q booked: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActivityTypes returns all free-activity types, ordered by name.
func ListActivityTypes(db *sql.DB) ([]*ActivityType, error) {
	rows, err := db.Query(`SELECT id, name, description FROM activity_types ORDER BY name COLLATE NOCASE`)
	if err != nil {
		return nil, fmt.Errorf("models: list activity types: %w", err)
	}
	defer rows.Close()

	var types []*ActivityType
	for rows.Next() {
		at := &ActivityType{}
		if err := rows.Scan(&at.ID, &at.Name, &at.Description); err != nil {
			return nil, fmt.Errorf("models: scan activity type: %w", err)
		}
		types = append(types, at)
	}
	return types, rows.Err()
}
