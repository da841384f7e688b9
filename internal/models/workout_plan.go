package models

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// WorkoutPlan is a multi-week plan. A user has at most one active plan.
type WorkoutPlan struct {
	ID          string
	UserID      int64
	Name        string
	Description sql.NullString
	StartDate   sql.NullString // YYYY-MM-DD
	EndDate     sql.NullString // YYYY-MM-DD
	IsActive    bool
	Archived    bool
	CreatedAt   time.Time
}

// WeeklySchedule places one workout in a plan week.
type WeeklySchedule struct {
	ID         string
	PlanID     string
	WeekNumber int
	Position   int
	WorkoutID  string
}

// PlanDraft is a complete plan ready to be persisted: the plan row, its
// workouts and the schedule linking them.
type PlanDraft struct {
	Plan      WorkoutPlan
	Workouts  []Workout
	Schedules []WeeklySchedule
}

// ScheduledWorkout is one schedule slot joined with its workout.
type ScheduledWorkout struct {
	WeekNumber int
	Position   int
	Workout    *Workout
}

// ActivePlan is a plan with its schedule in week, then position, order.
type ActivePlan struct {
	Plan    *WorkoutPlan
	Entries []ScheduledWorkout
}

// SavePlan persists a draft as the user's active plan. In one transaction it
// deactivates the user's current plans, inserts the plan as active, then its
// workouts and schedule rows. Either everything is written or nothing is.
func SavePlan(db *sql.DB, userID int64, d *PlanDraft) (*WorkoutPlan, error) {
	if d == nil || d.Plan.ID == "" {
		return nil, fmt.Errorf("models: save plan: missing plan id")
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("models: begin save plan: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE workout_plans SET is_active = 0 WHERE user_id = ? AND is_active = 1`, userID); err != nil {
		return nil, fmt.Errorf("models: deactivate plans for user %d: %w", userID, err)
	}

	if _, err := tx.Exec(`
		INSERT INTO workout_plans (id, user_id, name, description, start_date, end_date, is_active, archived)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		d.Plan.ID, userID, d.Plan.Name, d.Plan.Description, d.Plan.StartDate, d.Plan.EndDate, boolToInt(d.Plan.Archived),
	); err != nil {
		return nil, fmt.Errorf("models: insert plan %q: %w", d.Plan.ID, err)
	}

	for i := range d.Workouts {
		w := d.Workouts[i]
		w.UserID = sql.NullInt64{Int64: userID, Valid: true}
		if err := insertWorkout(tx, &w); err != nil {
			return nil, err
		}
	}

	for _, s := range d.Schedules {
		if _, err := tx.Exec(`
			INSERT INTO weekly_schedules (id, plan_id, week_number, position, workout_id)
			VALUES (?, ?, ?, ?, ?)`,
			s.ID, d.Plan.ID, s.WeekNumber, s.Position, s.WorkoutID,
		); err != nil {
			return nil, fmt.Errorf("models: insert schedule week %d workout %q: %w", s.WeekNumber, s.WorkoutID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("models: commit save plan: %w", err)
	}
	return GetPlan(db, userID, d.Plan.ID)
}

const planColumns = `id, user_id, name, description, start_date, end_date, is_active, archived, created_at`

func scanPlan(row interface{ Scan(...any) error }) (*WorkoutPlan, error) {
	p := &WorkoutPlan{}
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.StartDate, &p.EndDate, &p.IsActive, &p.Archived, &p.CreatedAt)
	return p, err
}

// GetPlan retrieves a plan owned by userID.
func GetPlan(db *sql.DB, userID int64, id string) (*WorkoutPlan, error) {
	p, err := scanPlan(db.QueryRow(`SELECT `+planColumns+` FROM workout_plans WHERE id = ? AND user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("models: get plan %q: %w", id, err)
	}
	return p, nil
}

// ListPlans returns the user's plans, newest first.
func ListPlans(db *sql.DB, userID int64) ([]*WorkoutPlan, error) {
	rows, err := db.Query(`SELECT `+planColumns+` FROM workout_plans WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("models: list plans for user %d: %w", userID, err)
	}
	defer rows.Close()

	var plans []*WorkoutPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("models: scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// GetActivePlan returns the user's active plan with its schedule, or
// ErrNotFound when the user has none.
func GetActivePlan(db *sql.DB, userID int64) (*ActivePlan, error) {
	p, err := scanPlan(db.QueryRow(
		`SELECT `+planColumns+` FROM workout_plans WHERE user_id = ? AND is_active = 1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("models: get active plan for user %d: %w", userID, err)
	}

	rows, err := db.Query(`
		SELECT s.week_number, s.position,
		       w.id, w.user_id, w.name, w.description, w.instructor, w.duration, w.type, w.activity_type, w.level,
		       w.bookable, w.class_id, w.status, w.is_booked, w.exercises, w.archived, w.created_at
		FROM weekly_schedules s
		JOIN workouts w ON w.id = s.workout_id
		WHERE s.plan_id = ?
		ORDER BY s.week_number, s.position, s.rowid`, p.ID)
	if err != nil {
		return nil, fmt.Errorf("models: list schedule for plan %q: %w", p.ID, err)
	}
	defer rows.Close()

	ap := &ActivePlan{Plan: p}
	for rows.Next() {
		var e ScheduledWorkout
		w, err := scanWorkout(scanPrefix{rows: rows, prefix: []any{&e.WeekNumber, &e.Position}})
		if err != nil {
			return nil, fmt.Errorf("models: scan scheduled workout: %w", err)
		}
		e.Workout = w
		ap.Entries = append(ap.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("models: iterate schedule: %w", err)
	}
	return ap, nil
}

// scanPrefix lets scanWorkout read rows that carry extra leading columns.
type scanPrefix struct {
	rows   *sql.Rows
	prefix []any
}

func (s scanPrefix) Scan(dest ...any) error {
	return s.rows.Scan(append(s.prefix, dest...)...)
}

// ArchivePlan archives and deactivates a plan.
func ArchivePlan(db *sql.DB, userID int64, id string) error {
	result, err := db.Exec(`UPDATE workout_plans SET archived = 1, is_active = 0 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("models: archive plan %q: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
