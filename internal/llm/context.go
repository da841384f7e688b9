// Package llm builds the AI personal trainer for Reformer.
//
// The package implements a three-stage pipeline:
//  1. Context Assembly: project a user's onboarding answers, recent activity
//     and active plan into a UserContext
//  2. Formatting: render that context as plain text for a system prompt
//  3. Generation: chat replies and structured workout plans from a Provider
package llm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/models"
)

// DefaultWindowDays is the recent-activity window when no range is given.
const DefaultWindowDays = 30

// UserContext is everything the trainer knows about one user, rebuilt from
// stored state on every request.
type UserContext struct {
	UserID         int64            `json:"user_id"`
	Profile        *Profile         `json:"profile"`
	RecentActivity RecentActivity   `json:"recent_activity"`
	Progress       Progress         `json:"progress"`
	WorkoutPlan    []PlannedWorkout `json:"workout_plan"`
}

// Profile mirrors the onboarding answers. A nil pointer or empty slice means
// the question has not been answered. A nil *Profile means onboarding was
// never started.
type Profile struct {
	Name     *string  `json:"name"`
	Age      *int     `json:"age"`
	HeightCm *float64 `json:"height_cm"`
	WeightKg *float64 `json:"weight_kg"`
	Gender   *string  `json:"gender"`

	FitnessLevel        *string  `json:"fitness_level"`
	FitnessGoals        []string `json:"fitness_goals"`
	GoalTimeline        *string  `json:"goal_timeline"`
	ExercisePreferences []string `json:"exercise_preferences"`
	ExerciseFrequency   *string  `json:"exercise_frequency"`
	SessionLength       *string  `json:"session_length"`

	PilatesExperience    *bool    `json:"pilates_experience"`
	PilatesDuration      *string  `json:"pilates_duration"`
	StudioFrequency      *string  `json:"studio_frequency"`
	SessionPreference    *string  `json:"session_preference"`
	ApparatusPreferences []string `json:"apparatus_preferences"`

	Injuries          *bool    `json:"injuries"`
	InjuriesDetails   *string  `json:"injuries_details"`
	RecentSurgery     *bool    `json:"recent_surgery"`
	SurgeryDetails    *string  `json:"surgery_details"`
	ChronicConditions []string `json:"chronic_conditions"`
	Pregnancy         *string  `json:"pregnancy"`

	Motivation       []string `json:"motivation"`
	ProgressTracking []string `json:"progress_tracking"`
}

// RecentActivity is the completed workouts in the window, oldest first.
type RecentActivity struct {
	Workouts    []CompletedWorkout `json:"workouts"`
	Consistency Consistency        `json:"consistency"`
}

// CompletedWorkout pairs a workout definition with its tracking record.
type CompletedWorkout struct {
	WorkoutID    string    `json:"workout_id,omitempty"`
	Name         string    `json:"name"`
	Type         string    `json:"type"`
	ActivityType string    `json:"activity_type,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
	Duration     *int      `json:"duration,omitempty"`
	Intensity    *int      `json:"intensity,omitempty"`
	WouldDoAgain *bool     `json:"would_do_again,omitempty"`
	Notes        *string   `json:"notes,omitempty"`
}

// Consistency summarizes how regularly the user trains.
type Consistency struct {
	WeeklyAverage  float64 `json:"weekly_average"`
	MonthlyAverage float64 `json:"monthly_average"`
	Streak         int     `json:"streak"`
}

// Progress holds per-goal scores. Improvements and Challenges are reserved
// and always empty.
type Progress struct {
	GoalProgress map[string]GoalScore `json:"goal_progress"`
	Improvements []string             `json:"improvements"`
	Challenges   []string             `json:"challenges"`
}

// PlannedWorkout is one slot of the active plan.
type PlannedWorkout struct {
	WorkoutID    string `json:"workout_id"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	ActivityType string `json:"activity_type,omitempty"`
	ClassID      string `json:"class_id,omitempty"`
	WeekNumber   int    `json:"week_number"`
	Position     int    `json:"position"`
	Duration     int    `json:"duration"`
	Status       string `json:"status"`
	IsBooked     bool   `json:"is_booked"`
}

// TimeRange bounds the activity window, inclusive on both ends.
type TimeRange struct {
	From time.Time
	To   time.Time
}

// Aggregator builds UserContexts from a Store.
type Aggregator struct {
	Store      Store
	Now        func() time.Time
	Location   *time.Location
	WindowDays int
	Goals      GoalEvaluators
	Log        *logger.Logger
}

// NewAggregator returns an Aggregator with the default window, local time
// zone and goal evaluators.
func NewAggregator(store Store, log *logger.Logger) *Aggregator {
	return &Aggregator{
		Store:      store,
		Now:        time.Now,
		Location:   time.Local,
		WindowDays: DefaultWindowDays,
		Goals:      DefaultGoalEvaluators(),
		Log:        log,
	}
}

// BuildUserContext projects the user's current stored state into a
// UserContext. A nil tr means the last WindowDays days. Workouts whose
// definition cannot be loaded are skipped; failures of the top-level fetches
// are returned.
func (a *Aggregator) BuildUserContext(ctx context.Context, userID int64, tr *TimeRange) (*UserContext, error) {
	ctx, span := tracer.Start(ctx, "llm.build_user_context")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	window := a.timeRange(tr)
	loc := a.location()

	var (
		onboarding *models.Onboarding
		tracking   []*models.WorkoutTracking
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		o, err := a.Store.GetOnboarding(gctx, userID)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("llm: load onboarding: %w", err)
		}
		onboarding = o
		return nil
	})
	g.Go(func() error {
		list, err := a.Store.ListWorkoutTracking(gctx, userID, window.From, window.To)
		if err != nil {
			return fmt.Errorf("llm: load workout tracking: %w", err)
		}
		tracking = list
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		return nil, err
	}

	uc := &UserContext{
		UserID:  userID,
		Profile: profileFromOnboarding(onboarding),
		RecentActivity: RecentActivity{
			Workouts: []CompletedWorkout{},
		},
		Progress: Progress{
			GoalProgress: map[string]GoalScore{},
			Improvements: []string{},
			Challenges:   []string{},
		},
		WorkoutPlan: []PlannedWorkout{},
	}

	for _, wt := range tracking {
		// Rows logged without a workout (quick logs, imported history)
		// still count as activity.
		if !wt.WorkoutID.Valid {
			uc.RecentActivity.Workouts = append(uc.RecentActivity.Workouts, completedWorkout(nil, wt, loc))
			continue
		}
		w, err := a.Store.GetWorkout(ctx, wt.WorkoutID.String)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			a.logger().Debug("skipping tracked workout",
				"user_id", userID, "workout_id", wt.WorkoutID.String, "error", err)
			continue
		}
		uc.RecentActivity.Workouts = append(uc.RecentActivity.Workouts, completedWorkout(w, wt, loc))
	}

	active, err := a.Store.GetActivePlan(ctx, userID)
	switch {
	case errors.Is(err, models.ErrNotFound):
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, "active plan fetch failed")
		return nil, fmt.Errorf("llm: load active plan: %w", err)
	default:
		uc.WorkoutPlan = flattenPlan(active)
	}

	times := make([]time.Time, len(uc.RecentActivity.Workouts))
	for i, cw := range uc.RecentActivity.Workouts {
		times[i] = cw.CompletedAt
	}
	uc.RecentActivity.Consistency = CalculateConsistency(times, loc)

	if uc.Profile != nil {
		in := GoalInput{
			WeeklyAverage: uc.RecentActivity.Consistency.WeeklyAverage,
			Variety:       varietyScore(uc.RecentActivity.Workouts),
			Workouts:      uc.RecentActivity.Workouts,
		}
		goals := a.Goals
		if goals == nil {
			goals = DefaultGoalEvaluators()
		}
		for _, goal := range uc.Profile.FitnessGoals {
			uc.Progress.GoalProgress[goal] = goals.Evaluate(goal, in)
		}
	}

	span.SetAttributes(
		attribute.Int("context.workouts", len(uc.RecentActivity.Workouts)),
		attribute.Int("context.plan_workouts", len(uc.WorkoutPlan)),
	)
	return uc, nil
}

func (a *Aggregator) timeRange(tr *TimeRange) TimeRange {
	if tr != nil {
		return *tr
	}
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	days := a.WindowDays
	if days <= 0 {
		days = DefaultWindowDays
	}
	to := now()
	return TimeRange{From: to.AddDate(0, 0, -days), To: to}
}

func (a *Aggregator) location() *time.Location {
	if a.Location != nil {
		return a.Location
	}
	return time.Local
}

func (a *Aggregator) logger() *logger.Logger {
	if a.Log != nil {
		return a.Log
	}
	return logger.Nop()
}

// unlinkedWorkoutName labels tracking rows that reference no workout.
const unlinkedWorkoutName = "Logged workout"

// completedWorkout pairs a tracking row with its workout, which may be nil.
// CompletedAt is expressed in loc so rendered dates agree with the streak.
func completedWorkout(w *models.Workout, wt *models.WorkoutTracking, loc *time.Location) CompletedWorkout {
	cw := CompletedWorkout{
		Name:         unlinkedWorkoutName,
		Type:         models.WorkoutTypeWorkout,
		CompletedAt:  wt.CompletedAt.In(loc),
		Duration:     intPtr(wt.Duration),
		Intensity:    intPtr(wt.Intensity),
		WouldDoAgain: boolPtr(wt.WouldDoAgain),
		Notes:        stringPtr(wt.Notes),
	}
	if w != nil {
		cw.WorkoutID = w.ID
		cw.Name = w.Name
		cw.Type = w.Type
		cw.ActivityType = w.ActivityType.String
	}
	return cw
}

func flattenPlan(p *models.ActivePlan) []PlannedWorkout {
	out := make([]PlannedWorkout, 0, len(p.Entries))
	for _, e := range p.Entries {
		if e.Workout == nil {
			continue
		}
		out = append(out, PlannedWorkout{
			WorkoutID:    e.Workout.ID,
			Name:         e.Workout.Name,
			Type:         e.Workout.Type,
			ActivityType: e.Workout.ActivityType.String,
			ClassID:      e.Workout.ClassID.String,
			WeekNumber:   e.WeekNumber,
			Position:     e.Position,
			Duration:     e.Workout.Duration,
			Status:       e.Workout.Status,
			IsBooked:     e.Workout.IsBooked,
		})
	}
	return out
}

func profileFromOnboarding(o *models.Onboarding) *Profile {
	if o == nil {
		return nil
	}
	return &Profile{
		Name:     stringPtr(o.Name),
		Age:      intPtr(o.Age),
		HeightCm: floatPtr(o.HeightCm),
		WeightKg: floatPtr(o.WeightKg),
		Gender:   stringPtr(o.Gender),

		FitnessLevel:        stringPtr(o.FitnessLevel),
		FitnessGoals:        o.FitnessGoals,
		GoalTimeline:        stringPtr(o.GoalTimeline),
		ExercisePreferences: o.ExercisePreferences,
		ExerciseFrequency:   stringPtr(o.ExerciseFrequency),
		SessionLength:       stringPtr(o.SessionLength),

		PilatesExperience:    boolPtr(o.PilatesExperience),
		PilatesDuration:      stringPtr(o.PilatesDuration),
		StudioFrequency:      stringPtr(o.StudioFrequency),
		SessionPreference:    stringPtr(o.SessionPreference),
		ApparatusPreferences: o.ApparatusPreferences,

		Injuries:          boolPtr(o.Injuries),
		InjuriesDetails:   stringPtr(o.InjuriesDetails),
		RecentSurgery:     boolPtr(o.RecentSurgery),
		SurgeryDetails:    stringPtr(o.SurgeryDetails),
		ChronicConditions: o.ChronicConditions,
		Pregnancy:         stringPtr(o.Pregnancy),

		Motivation:       o.Motivation,
		ProgressTracking: o.ProgressTracking,
	}
}

// CalculateConsistency buckets completion times by ISO week and calendar
// month in loc. Averages are completions per bucket rounded to one decimal,
// and 0 when there are no buckets.
func CalculateConsistency(completed []time.Time, loc *time.Location) Consistency {
	if loc == nil {
		loc = time.Local
	}
	weeks := make(map[string]int)
	months := make(map[string]int)
	for _, t := range completed {
		lt := t.In(loc)
		year, week := lt.ISOWeek()
		weeks[fmt.Sprintf("%d-W%d", year, week)]++
		months[fmt.Sprintf("%d-%02d", lt.Year(), int(lt.Month()))]++
	}
	return Consistency{
		WeeklyAverage:  bucketAverage(weeks),
		MonthlyAverage: bucketAverage(months),
		Streak:         CalculateStreak(completed, loc),
	}
}

func bucketAverage(buckets map[string]int) float64 {
	if len(buckets) == 0 {
		return 0
	}
	total := 0
	for _, n := range buckets {
		total += n
	}
	return math.Round(float64(total)/float64(len(buckets))*10) / 10
}

// CalculateStreak counts consecutive calendar days (in loc) walking back from
// the most recent completion. The walk stops at the first pair of entries
// that are not exactly one day apart, including two entries on the same day.
func CalculateStreak(completed []time.Time, loc *time.Location) int {
	if len(completed) == 0 {
		return 0
	}
	if loc == nil {
		loc = time.Local
	}
	days := make([]time.Time, len(completed))
	for i, t := range completed {
		y, m, d := t.In(loc).Date()
		days[i] = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })

	streak := 1
	for i := 1; i < len(days); i++ {
		if days[i-1].Sub(days[i]) != 24*time.Hour {
			break
		}
		streak++
	}
	return streak
}

// varietyScore is the number of distinct activities divided by four. The
// activity type is used when set, the workout type otherwise.
func varietyScore(workouts []CompletedWorkout) float64 {
	seen := make(map[string]struct{})
	for _, w := range workouts {
		key := w.ActivityType
		if key == "" {
			key = w.Type
		}
		if key == "" {
			continue
		}
		seen[strings.ToLower(key)] = struct{}{}
	}
	return float64(len(seen)) / 4
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid || strings.TrimSpace(ns.String) == "" {
		return nil
	}
	s := ns.String
	return &s
}

func intPtr(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	n := int(ni.Int64)
	return &n
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	f := nf.Float64
	return &f
}

func boolPtr(nb sql.NullBool) *bool {
	if !nb.Valid {
		return nil
	}
	b := nb.Bool
	return &b
}
