package llm

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/models"
)

// Notifier delivers a user notification. notify.Dispatcher implements it.
type Notifier interface {
	Notify(ctx context.Context, userID int64, kind, title, message, link string) error
}

// DefaultPlanRequest is sent when the user gives no instructions.
const DefaultPlanRequest = "Create a 4-week workout plan that fits my goals, schedule and experience."

// PlanGenerator produces validated workout plans from a Provider.
type PlanGenerator struct {
	Store    Store
	Provider Provider
	Notifier Notifier
	Log      *logger.Logger
	Options  Options
	// NewID mints storage ids. Defaults to uuid.NewString.
	NewID func() string
	Now   func() time.Time
}

// planPayload is the provider's structured output, shaped by PlanSchema.
type planPayload struct {
	Plan struct {
		Name        string  `json:"name"`
		Description *string `json:"description"`
		StartDate   *string `json:"startDate"`
		EndDate     *string `json:"endDate"`
	} `json:"plan"`
	Workouts        []workoutPayload  `json:"workouts"`
	WeeklySchedules []schedulePayload `json:"weeklySchedules"`
}

type workoutPayload struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  *string           `json:"description"`
	Type         string            `json:"type"`
	ActivityType *string           `json:"activityType"`
	ClassID      *string           `json:"classId"`
	Duration     int               `json:"duration"`
	Level        *string           `json:"level"`
	Exercises    []models.Exercise `json:"exercises"`
}

type schedulePayload struct {
	WeekNumber int    `json:"weekNumber"`
	WorkoutID  string `json:"workoutId"`
}

// Generate asks the provider for a plan for uc and validates it against the
// class catalog. The returned draft is inactive and re-keyed with fresh ids.
// Provider failures and payloads that are empty, unparseable or break the
// plan contract are logged and reported as ErrParseResponse.
func (g *PlanGenerator) Generate(ctx context.Context, uc *UserContext, userPrompt string) (*models.PlanDraft, error) {
	ctx, span := tracer.Start(ctx, "llm.generate_plan")
	defer span.End()

	var userID int64
	if uc != nil {
		userID = uc.UserID
	}
	span.SetAttributes(attribute.Int64("user.id", userID))

	if g.Provider == nil {
		return nil, ErrNotConfigured
	}

	catalog, err := g.Store.ListClassCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("llm: load class catalog: %w", err)
	}
	activities, err := g.Store.ListActivityTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("llm: load activity types: %w", err)
	}

	opts := g.Options
	opts.Schema = PlanSchema

	system := BuildPlanSystemPrompt(catalog, activities, uc)
	prompt := strings.TrimSpace(userPrompt)
	if prompt == "" {
		prompt = DefaultPlanRequest
	}
	prompt = fmt.Sprintf("Today is %s.\n\n%s", g.now().Format("2006-01-02"), prompt)

	fail := func(msg string, err error, kv ...any) (*models.PlanDraft, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		kv = append([]any{"user_id", userID, "error", err}, kv...)
		g.logger().Error(msg, kv...)
		return nil, ErrParseResponse
	}

	resp, err := g.Provider.Chat(ctx, system, []Message{{Role: RoleUser, Content: prompt}}, opts)
	if err != nil {
		return fail("plan generation request failed", err, "provider", g.Provider.Name())
	}
	if resp.StopReason == "refusal" {
		return fail("plan generation refused", errors.New(resp.Content), "provider", g.Provider.Name())
	}

	raw := extractJSON(resp.Content)
	if raw == nil {
		return fail("no plan in provider response", errors.New("no JSON object found"),
			"provider", g.Provider.Name(), "stop_reason", resp.StopReason, "content_length", len(resp.Content))
	}

	var payload planPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fail("unparseable plan payload", err, "provider", g.Provider.Name())
	}

	draft, err := g.buildDraft(userID, &payload, catalog)
	if err != nil {
		return fail("plan payload rejected", err, "provider", g.Provider.Name())
	}

	span.SetAttributes(
		attribute.Int("plan.workouts", len(draft.Workouts)),
		attribute.Int("plan.schedules", len(draft.Schedules)),
	)
	g.logger().Info("workout plan generated",
		"user_id", userID, "provider", g.Provider.Name(), "model", resp.Model,
		"workouts", len(draft.Workouts), "schedules", len(draft.Schedules),
		"tokens", resp.TokensUsed, "duration", resp.Duration)
	return draft, nil
}

// Save persists draft as the user's only active plan, then notifies the user.
// A notification failure is logged and does not fail the save.
func (g *PlanGenerator) Save(ctx context.Context, userID int64, draft *models.PlanDraft) (*models.WorkoutPlan, error) {
	plan, err := g.Store.SavePlan(ctx, userID, draft)
	if err != nil {
		return nil, err
	}
	if g.Notifier != nil {
		msg := fmt.Sprintf("Your plan %q is ready with %d workouts.", plan.Name, len(draft.Workouts))
		if err := g.Notifier.Notify(ctx, userID, models.NotifyPlanReady, "New workout plan", msg, "/plans/active"); err != nil {
			g.logger().Warn("plan ready notification failed", "user_id", userID, "plan_id", plan.ID, "error", err)
		}
	}
	return plan, nil
}

// buildDraft validates the payload against the catalog, fills defaults and
// replaces every id with a freshly minted one.
func (g *PlanGenerator) buildDraft(userID int64, p *planPayload, catalog []*models.Workout) (*models.PlanDraft, error) {
	if strings.TrimSpace(p.Plan.Name) == "" {
		return nil, errors.New("plan has no name")
	}
	if len(p.Workouts) == 0 {
		return nil, errors.New("plan has no workouts")
	}
	if len(p.WeeklySchedules) == 0 {
		return nil, errors.New("plan has no weekly schedule")
	}
	for _, d := range []*string{p.Plan.StartDate, p.Plan.EndDate} {
		if d == nil || *d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", *d); err != nil {
			return nil, fmt.Errorf("plan date %q is not YYYY-MM-DD", *d)
		}
	}

	classes := make(map[string]*models.Workout, len(catalog))
	for _, c := range catalog {
		classes[c.ID] = c
	}

	newID := g.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	draft := &models.PlanDraft{
		Plan: models.WorkoutPlan{
			ID:          newID(),
			UserID:      userID,
			Name:        strings.TrimSpace(p.Plan.Name),
			Description: nullString(p.Plan.Description),
			StartDate:   nullString(p.Plan.StartDate),
			EndDate:     nullString(p.Plan.EndDate),
			IsActive:    false,
			Archived:    false,
		},
	}

	ids := make(map[string]string, len(p.Workouts))
	for i, w := range p.Workouts {
		id := strings.TrimSpace(w.ID)
		switch {
		case id == "":
			return nil, fmt.Errorf("workout %d has no id", i)
		case ids[id] != "":
			return nil, fmt.Errorf("workout id %q is used twice", id)
		case classes[id] != nil:
			return nil, fmt.Errorf("workout id %q reuses a catalog class id", id)
		}
		if strings.TrimSpace(w.Name) == "" {
			return nil, fmt.Errorf("workout %q has no name", id)
		}
		if w.Duration < 0 {
			return nil, fmt.Errorf("workout %q has negative duration", id)
		}

		mw := models.Workout{
			ID:           newID(),
			Name:         strings.TrimSpace(w.Name),
			Description:  nullString(w.Description),
			Duration:     w.Duration,
			Type:         w.Type,
			ActivityType: nullString(w.ActivityType),
			Level:        nullString(w.Level),
			Status:       models.StatusNotRecorded,
		}

		switch w.Type {
		case models.WorkoutTypeClass:
			if w.ClassID == nil || strings.TrimSpace(*w.ClassID) == "" {
				return nil, fmt.Errorf("class workout %q has no classId", id)
			}
			class := classes[strings.TrimSpace(*w.ClassID)]
			if class == nil {
				return nil, fmt.Errorf("class workout %q references unknown class %q", id, *w.ClassID)
			}
			mw.ClassID = sql.NullString{String: class.ID, Valid: true}
			mw.Instructor = class.Instructor
			if !mw.ActivityType.Valid {
				mw.ActivityType = class.ActivityType
			}
			if !mw.Level.Valid {
				mw.Level = class.Level
			}
			if mw.Duration == 0 {
				mw.Duration = class.Duration
			}
		case models.WorkoutTypeWorkout:
			if w.ClassID != nil && strings.TrimSpace(*w.ClassID) != "" {
				return nil, fmt.Errorf("workout %q is not a class but has classId %q", id, *w.ClassID)
			}
			if len(w.Exercises) == 0 {
				return nil, fmt.Errorf("workout %q has no exercises", id)
			}
			for j, ex := range w.Exercises {
				if strings.TrimSpace(ex.Name) == "" || ex.Sets <= 0 || ex.Reps <= 0 {
					return nil, fmt.Errorf("workout %q exercise %d needs a name, sets and reps", id, j)
				}
			}
			mw.Exercises = w.Exercises
		default:
			return nil, fmt.Errorf("workout %q has unknown type %q", id, w.Type)
		}

		ids[id] = mw.ID
		draft.Workouts = append(draft.Workouts, mw)
	}

	positions := make(map[int]int)
	for _, s := range p.WeeklySchedules {
		if s.WeekNumber < 1 {
			return nil, fmt.Errorf("schedule week %d is before week 1", s.WeekNumber)
		}
		wid, ok := ids[strings.TrimSpace(s.WorkoutID)]
		if !ok {
			return nil, fmt.Errorf("schedule references unknown workout %q", s.WorkoutID)
		}
		draft.Schedules = append(draft.Schedules, models.WeeklySchedule{
			ID:         newID(),
			PlanID:     draft.Plan.ID,
			WeekNumber: s.WeekNumber,
			Position:   positions[s.WeekNumber],
			WorkoutID:  wid,
		})
		positions[s.WeekNumber]++
	}

	return draft, nil
}

// BuildPlanSystemPrompt lists the class catalog and activity types, the
// formatted user context and the structural rules the plan must follow.
func BuildPlanSystemPrompt(catalog []*models.Workout, activities []*models.ActivityType, uc *UserContext) string {
	var b strings.Builder

	b.WriteString("You are an expert Pilates instructor and personal trainer building a multi-week workout plan.\n\n")

	b.WriteString("## Studio Class Catalog\n\n")
	if len(catalog) == 0 {
		b.WriteString("No studio classes are available. Use only self-guided workouts.\n")
	}
	for _, c := range catalog {
		fmt.Fprintf(&b, "- id: %s | %s | %d min", c.ID, c.Name, c.Duration)
		if c.Level.Valid {
			fmt.Fprintf(&b, " | level: %s", c.Level.String)
		}
		if c.Instructor.Valid {
			fmt.Fprintf(&b, " | instructor: %s", c.Instructor.String)
		}
		if c.Description.Valid {
			fmt.Fprintf(&b, " | %s", c.Description.String)
		}
		b.WriteByte('\n')
	}

	b.WriteString("\n## Activity Types\n\n")
	for _, a := range activities {
		fmt.Fprintf(&b, "- %s", a.ID)
		if a.Name != "" && a.Name != a.ID {
			fmt.Fprintf(&b, " (%s)", a.Name)
		}
		if a.Description.Valid {
			fmt.Fprintf(&b, ": %s", a.Description.String)
		}
		b.WriteByte('\n')
	}

	b.WriteString("\n## User Context\n\n")
	b.WriteString(FormatUserContext(uc))

	b.WriteString(`
## Plan Rules

1. Every workout needs its own new unique "id". Never reuse a catalog class id as a workout id.
2. A workout of type "class" books a studio class: set "classId" to the catalog id of that class.
3. A workout of type "workout" is self-guided: set "classId" to null and list concrete exercises,
   each with a name, sets and reps, and weightKg when load matters. Never use a generic placeholder
   such as "Cardio" or "Strength session" as the only exercise.
4. "weeklySchedules" places workouts into weeks starting at week 1. A workout may appear in several weeks.
5. Respect injuries, surgery and pregnancy notes. Match the user's level, frequency and session length.
6. Dates use YYYY-MM-DD.

Respond with a single JSON object that matches the workout_plan schema.
`)
	return b.String()
}

// extractJSON returns the first valid JSON object in s, preferring a fenced
// ```json block. It returns nil when none is found.
func extractJSON(s string) []byte {
	if idx := strings.Index(s, "```json"); idx != -1 {
		start := idx + len("```json")
		if end := strings.Index(s[start:], "```"); end != -1 {
			candidate := strings.TrimSpace(s[start : start+end])
			if json.Valid([]byte(candidate)) {
				return []byte(candidate)
			}
		}
	}

	depth := 0
	start := -1
	for i, ch := range s {
		switch ch {
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				candidate := s[start : i+1]
				if json.Valid([]byte(candidate)) {
					return []byte(candidate)
				}
				start = -1
			}
		}
	}
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil || strings.TrimSpace(*s) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: strings.TrimSpace(*s), Valid: true}
}

func (g *PlanGenerator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g *PlanGenerator) logger() *logger.Logger {
	if g.Log != nil {
		return g.Log
	}
	return logger.Nop()
}
