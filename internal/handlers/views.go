package handlers

import (
	"database/sql"
	"time"

	"github.com/carpenike/reformer/internal/models"
)

// API response shapes. Model rows carry sql.Null* fields, which are flattened
// here into pointers so clients see null rather than {"Valid":false}.

type userView struct {
	ID       int64   `json:"id"`
	Username string  `json:"username"`
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	IsAdmin  bool    `json:"isAdmin"`
}

func newUserView(u *models.User) userView {
	return userView{
		ID:       u.ID,
		Username: u.Username,
		Name:     nullStr(u.Name),
		Email:    nullStr(u.Email),
		IsAdmin:  u.IsAdmin,
	}
}

type onboardingView struct {
	Name     *string  `json:"name"`
	Age      *int64   `json:"age"`
	HeightCm *float64 `json:"heightCm"`
	WeightKg *float64 `json:"weightKg"`
	Gender   *string  `json:"gender"`

	FitnessLevel        *string  `json:"fitnessLevel"`
	FitnessGoals        []string `json:"fitnessGoals"`
	GoalTimeline        *string  `json:"goalTimeline"`
	ExercisePreferences []string `json:"exercisePreferences"`
	ExerciseFrequency   *string  `json:"exerciseFrequency"`
	SessionLength       *string  `json:"sessionLength"`

	PilatesExperience    *bool    `json:"pilatesExperience"`
	PilatesDuration      *string  `json:"pilatesDuration"`
	StudioFrequency      *string  `json:"studioFrequency"`
	SessionPreference    *string  `json:"sessionPreference"`
	ApparatusPreferences []string `json:"apparatusPreferences"`

	Injuries          *bool    `json:"injuries"`
	InjuriesDetails   *string  `json:"injuriesDetails"`
	RecentSurgery     *bool    `json:"recentSurgery"`
	SurgeryDetails    *string  `json:"surgeryDetails"`
	ChronicConditions []string `json:"chronicConditions"`
	Pregnancy         *string  `json:"pregnancy"`

	Motivation       []string `json:"motivation"`
	ProgressTracking []string `json:"progressTracking"`

	Step      int       `json:"step"`
	Completed bool      `json:"completed"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newOnboardingView(o *models.Onboarding) onboardingView {
	return onboardingView{
		Name:                 nullStr(o.Name),
		Age:                  nullInt(o.Age),
		HeightCm:             nullFloat(o.HeightCm),
		WeightKg:             nullFloat(o.WeightKg),
		Gender:               nullStr(o.Gender),
		FitnessLevel:         nullStr(o.FitnessLevel),
		FitnessGoals:         o.FitnessGoals,
		GoalTimeline:         nullStr(o.GoalTimeline),
		ExercisePreferences:  o.ExercisePreferences,
		ExerciseFrequency:    nullStr(o.ExerciseFrequency),
		SessionLength:        nullStr(o.SessionLength),
		PilatesExperience:    nullBool(o.PilatesExperience),
		PilatesDuration:      nullStr(o.PilatesDuration),
		StudioFrequency:      nullStr(o.StudioFrequency),
		SessionPreference:    nullStr(o.SessionPreference),
		ApparatusPreferences: o.ApparatusPreferences,
		Injuries:             nullBool(o.Injuries),
		InjuriesDetails:      nullStr(o.InjuriesDetails),
		RecentSurgery:        nullBool(o.RecentSurgery),
		SurgeryDetails:       nullStr(o.SurgeryDetails),
		ChronicConditions:    o.ChronicConditions,
		Pregnancy:            nullStr(o.Pregnancy),
		Motivation:           o.Motivation,
		ProgressTracking:     o.ProgressTracking,
		Step:                 o.Step,
		Completed:            o.Completed,
		UpdatedAt:            o.UpdatedAt,
	}
}

type trackingView struct {
	ID           int64     `json:"id"`
	WorkoutID    *string   `json:"workoutId"`
	CompletedAt  time.Time `json:"completedAt"`
	Duration     *int64    `json:"duration"`
	Intensity    *int64    `json:"intensity"`
	WouldDoAgain *bool     `json:"wouldDoAgain"`
	Notes        *string   `json:"notes"`
}

func newTrackingView(t *models.WorkoutTracking) trackingView {
	return trackingView{
		ID:           t.ID,
		WorkoutID:    nullStr(t.WorkoutID),
		CompletedAt:  t.CompletedAt,
		Duration:     nullInt(t.Duration),
		Intensity:    nullInt(t.Intensity),
		WouldDoAgain: nullBool(t.WouldDoAgain),
		Notes:        nullStr(t.Notes),
	}
}

type workoutView struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  *string           `json:"description"`
	Instructor   *string           `json:"instructor"`
	Duration     int               `json:"duration"`
	Type         string            `json:"type"`
	ActivityType *string           `json:"activityType"`
	Level        *string           `json:"level"`
	Bookable     bool              `json:"bookable"`
	ClassID      *string           `json:"classId"`
	Status       string            `json:"status,omitempty"`
	IsBooked     bool              `json:"isBooked"`
	Exercises    []models.Exercise `json:"exercises,omitempty"`
}

func newWorkoutView(w *models.Workout) workoutView {
	return workoutView{
		ID:           w.ID,
		Name:         w.Name,
		Description:  nullStr(w.Description),
		Instructor:   nullStr(w.Instructor),
		Duration:     w.Duration,
		Type:         w.Type,
		ActivityType: nullStr(w.ActivityType),
		Level:        nullStr(w.Level),
		Bookable:     w.Bookable,
		ClassID:      nullStr(w.ClassID),
		Status:       w.Status,
		IsBooked:     w.IsBooked,
		Exercises:    w.Exercises,
	}
}

type activityTypeView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type planView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	StartDate   *string   `json:"startDate"`
	EndDate     *string   `json:"endDate"`
	IsActive    bool      `json:"isActive"`
	Archived    bool      `json:"archived"`
	CreatedAt   time.Time `json:"createdAt"`
}

func newPlanView(p *models.WorkoutPlan) planView {
	return planView{
		ID:          p.ID,
		Name:        p.Name,
		Description: nullStr(p.Description),
		StartDate:   nullStr(p.StartDate),
		EndDate:     nullStr(p.EndDate),
		IsActive:    p.IsActive,
		Archived:    p.Archived,
		CreatedAt:   p.CreatedAt,
	}
}

type scheduleEntryView struct {
	WeekNumber int         `json:"weekNumber"`
	Position   int         `json:"position"`
	Workout    workoutView `json:"workout"`
}

type activePlanView struct {
	Plan     planView            `json:"plan"`
	Schedule []scheduleEntryView `json:"schedule"`
}

func newActivePlanView(ap *models.ActivePlan) activePlanView {
	v := activePlanView{Plan: newPlanView(ap.Plan), Schedule: make([]scheduleEntryView, 0, len(ap.Entries))}
	for _, e := range ap.Entries {
		v.Schedule = append(v.Schedule, scheduleEntryView{
			WeekNumber: e.WeekNumber,
			Position:   e.Position,
			Workout:    newWorkoutView(e.Workout),
		})
	}
	return v
}

type notificationView struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   *string   `json:"message"`
	Link      *string   `json:"link"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

func newNotificationView(n *models.Notification) notificationView {
	return notificationView{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   nullStr(n.Message),
		Link:      nullStr(n.Link),
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
	}
}

type chatMessageView struct {
	ID        int64     `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

type passkeyView struct {
	ID        int64     `json:"id"`
	Label     *string   `json:"label"`
	CreatedAt time.Time `json:"createdAt"`
}

func nullStr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullInt(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	return &ni.Int64
}

func nullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	return &nf.Float64
}

func nullBool(nb sql.NullBool) *bool {
	if !nb.Valid {
		return nil
	}
	return &nb.Bool
}
