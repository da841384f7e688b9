package models

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Onboarding holds a user's answers from the onboarding wizard. Every answer
// is optional: a NULL column means the question has not been reached yet.
type Onboarding struct {
	UserID int64

	Name     sql.NullString
	Age      sql.NullInt64
	HeightCm sql.NullFloat64
	WeightKg sql.NullFloat64
	Gender   sql.NullString

	FitnessLevel        sql.NullString
	FitnessGoals        []string
	GoalTimeline        sql.NullString
	ExercisePreferences []string
	ExerciseFrequency   sql.NullString
	SessionLength       sql.NullString

	PilatesExperience    sql.NullBool
	PilatesDuration      sql.NullString
	StudioFrequency      sql.NullString
	SessionPreference    sql.NullString
	ApparatusPreferences []string

	Injuries          sql.NullBool
	InjuriesDetails   sql.NullString
	RecentSurgery     sql.NullBool
	SurgeryDetails    sql.NullString
	ChronicConditions []string
	Pregnancy         sql.NullString

	Motivation       []string
	ProgressTracking []string

	Step      int
	Completed bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OnboardingUpdate is one wizard step. Nil fields are left unchanged.
type OnboardingUpdate struct {
	Name     *string  `json:"name,omitempty"`
	Age      *int     `json:"age,omitempty"`
	HeightCm *float64 `json:"heightCm,omitempty"`
	WeightKg *float64 `json:"weightKg,omitempty"`
	Gender   *string  `json:"gender,omitempty"`

	FitnessLevel        *string  `json:"fitnessLevel,omitempty"`
	FitnessGoals        []string `json:"fitnessGoals,omitempty"`
	GoalTimeline        *string  `json:"goalTimeline,omitempty"`
	ExercisePreferences []string `json:"exercisePreferences,omitempty"`
	ExerciseFrequency   *string  `json:"exerciseFrequency,omitempty"`
	SessionLength       *string  `json:"sessionLength,omitempty"`

	PilatesExperience    *bool    `json:"pilatesExperience,omitempty"`
	PilatesDuration      *string  `json:"pilatesDuration,omitempty"`
	StudioFrequency      *string  `json:"studioFrequency,omitempty"`
	SessionPreference    *string  `json:"sessionPreference,omitempty"`
	ApparatusPreferences []string `json:"apparatusPreferences,omitempty"`

	Injuries          *bool    `json:"injuries,omitempty"`
	InjuriesDetails   *string  `json:"injuriesDetails,omitempty"`
	RecentSurgery     *bool    `json:"recentSurgery,omitempty"`
	SurgeryDetails    *string  `json:"surgeryDetails,omitempty"`
	ChronicConditions []string `json:"chronicConditions,omitempty"`
	Pregnancy         *string  `json:"pregnancy,omitempty"`

	Motivation       []string `json:"motivation,omitempty"`
	ProgressTracking []string `json:"progressTracking,omitempty"`

	Step      *int  `json:"step,omitempty"`
	Completed *bool `json:"completed,omitempty"`
}

// columns returns the column/value pairs set by this update, in a fixed order.
func (u OnboardingUpdate) columns() ([]string, []any, error) {
	var cols []string
	var vals []any
	add := func(col string, v any) {
		cols = append(cols, col)
		vals = append(vals, v)
	}
	addList := func(col string, list []string) error {
		if list == nil {
			return nil
		}
		v, err := marshalList(list)
		if err != nil {
			return err
		}
		add(col, v)
		return nil
	}

	if u.Name != nil {
		add("name", *u.Name)
	}
	if u.Age != nil {
		add("age", *u.Age)
	}
	if u.HeightCm != nil {
		add("height_cm", *u.HeightCm)
	}
	if u.WeightKg != nil {
		add("weight_kg", *u.WeightKg)
	}
	if u.Gender != nil {
		add("gender", *u.Gender)
	}
	if u.FitnessLevel != nil {
		add("fitness_level", *u.FitnessLevel)
	}
	if u.GoalTimeline != nil {
		add("goal_timeline", *u.GoalTimeline)
	}
	if u.ExerciseFrequency != nil {
		add("exercise_frequency", *u.ExerciseFrequency)
	}
	if u.SessionLength != nil {
		add("session_length", *u.SessionLength)
	}
	if u.PilatesExperience != nil {
		add("pilates_experience", boolToInt(*u.PilatesExperience))
	}
	if u.PilatesDuration != nil {
		add("pilates_duration", *u.PilatesDuration)
	}
	if u.StudioFrequency != nil {
		add("studio_frequency", *u.StudioFrequency)
	}
	if u.SessionPreference != nil {
		add("session_preference", *u.SessionPreference)
	}
	if u.Injuries != nil {
		add("injuries", boolToInt(*u.Injuries))
	}
	if u.InjuriesDetails != nil {
		add("injuries_details", *u.InjuriesDetails)
	}
	if u.RecentSurgery != nil {
		add("recent_surgery", boolToInt(*u.RecentSurgery))
	}
	if u.SurgeryDetails != nil {
		add("surgery_details", *u.SurgeryDetails)
	}
	if u.Pregnancy != nil {
		add("pregnancy", *u.Pregnancy)
	}
	if u.Step != nil {
		add("step", *u.Step)
	}
	if u.Completed != nil {
		add("completed", boolToInt(*u.Completed))
	}

	for _, l := range []struct {
		col  string
		list []string
	}{
		{"fitness_goals", u.FitnessGoals},
		{"exercise_preferences", u.ExercisePreferences},
		{"apparatus_preferences", u.ApparatusPreferences},
		{"chronic_conditions", u.ChronicConditions},
		{"motivation", u.Motivation},
		{"progress_tracking", u.ProgressTracking},
	} {
		if err := addList(l.col, l.list); err != nil {
			return nil, nil, err
		}
	}
	return cols, vals, nil
}

// UpsertOnboarding writes one wizard step. The row is created on the first
// call; later calls only touch the fields present in the update.
func UpsertOnboarding(db *sql.DB, userID int64, u OnboardingUpdate) (*Onboarding, error) {
	cols, vals, err := u.columns()
	if err != nil {
		return nil, err
	}

	insertCols := append([]string{"user_id"}, cols...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(insertCols)), ", ")
	sets := []string{"updated_at = CURRENT_TIMESTAMP"}
	for _, c := range cols {
		sets = append(sets, c+" = excluded."+c)
	}

	// Column names come from OnboardingUpdate.columns, never from input.
	query := `INSERT INTO onboarding (` + strings.Join(insertCols, ", ") + `) VALUES (` + placeholders + `)
		ON CONFLICT(user_id) DO UPDATE SET ` + strings.Join(sets, ", ")

	args := append([]any{userID}, vals...)
	if _, err := db.Exec(query, args...); err != nil {
		return nil, fmt.Errorf("models: upsert onboarding for user %d: %w", userID, err)
	}
	return GetOnboarding(db, userID)
}

// GetOnboarding returns the user's onboarding answers, or ErrNotFound when
// the user has not started onboarding.
func GetOnboarding(db *sql.DB, userID int64) (*Onboarding, error) {
	o := &Onboarding{}
	var goals, prefs, apparatus, chronic, motivation, tracking sql.NullString
	err := db.QueryRow(`
		SELECT user_id, name, age, height_cm, weight_kg, gender,
		       fitness_level, fitness_goals, goal_timeline, exercise_preferences, exercise_frequency, session_length,
		       pilates_experience, pilates_duration, studio_frequency, session_preference, apparatus_preferences,
		       injuries, injuries_details, recent_surgery, surgery_details, chronic_conditions, pregnancy,
		       motivation, progress_tracking, step, completed, created_at, updated_at
		FROM onboarding WHERE user_id = ?`, userID,
	).Scan(
		&o.UserID, &o.Name, &o.Age, &o.HeightCm, &o.WeightKg, &o.Gender,
		&o.FitnessLevel, &goals, &o.GoalTimeline, &prefs, &o.ExerciseFrequency, &o.SessionLength,
		&o.PilatesExperience, &o.PilatesDuration, &o.StudioFrequency, &o.SessionPreference, &apparatus,
		&o.Injuries, &o.InjuriesDetails, &o.RecentSurgery, &o.SurgeryDetails, &chronic, &o.Pregnancy,
		&motivation, &tracking, &o.Step, &o.Completed, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("models: get onboarding for user %d: %w", userID, err)
	}

	for _, l := range []struct {
		src sql.NullString
		dst *[]string
	}{
		{goals, &o.FitnessGoals},
		{prefs, &o.ExercisePreferences},
		{apparatus, &o.ApparatusPreferences},
		{chronic, &o.ChronicConditions},
		{motivation, &o.Motivation},
		{tracking, &o.ProgressTracking},
	} {
		list, err := unmarshalList(l.src)
		if err != nil {
			return nil, err
		}
		*l.dst = list
	}
	return o, nil
}
