package llm

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/carpenike/reformer/internal/models"
)

// Store is the persistence the AI pipeline reads and writes. Missing single
// rows are reported as models.ErrNotFound.
type Store interface {
	GetOnboarding(ctx context.Context, userID int64) (*models.Onboarding, error)
	ListWorkoutTracking(ctx context.Context, userID int64, from, to time.Time) ([]*models.WorkoutTracking, error)
	GetWorkout(ctx context.Context, id string) (*models.Workout, error)
	GetActivePlan(ctx context.Context, userID int64) (*models.ActivePlan, error)
	ListClassCatalog(ctx context.Context) ([]*models.Workout, error)
	ListActivityTypes(ctx context.Context) ([]*models.ActivityType, error)
	GetSystemPrompt(ctx context.Context, userID int64) (*models.SystemPrompt, error)
	ListChatMessages(ctx context.Context, userID int64, limit int) ([]*models.ChatMessage, error)
	InsertChatMessages(ctx context.Context, userID int64, msgs ...models.NewChatMessage) error
	SavePlan(ctx context.Context, userID int64, draft *models.PlanDraft) (*models.WorkoutPlan, error)
}

// SQLStore implements Store over the models package.
type SQLStore struct {
	DB *sql.DB
}

// NewSQLStore returns a Store backed by db.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db}
}

// span starts a child span for one store call and returns a finisher that
// records err. Not-found results are not errors.
func span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, s := tracer.Start(ctx, "store."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			s.RecordError(err)
			s.SetStatus(codes.Error, op+" failed")
		}
		s.End()
	}
}

func (s *SQLStore) GetOnboarding(ctx context.Context, userID int64) (o *models.Onboarding, err error) {
	_, done := span(ctx, "get_onboarding")
	defer func() { done(err) }()
	return models.GetOnboarding(s.DB, userID)
}

func (s *SQLStore) ListWorkoutTracking(ctx context.Context, userID int64, from, to time.Time) (list []*models.WorkoutTracking, err error) {
	_, done := span(ctx, "list_workout_tracking")
	defer func() { done(err) }()
	return models.ListWorkoutTracking(s.DB, userID, from, to)
}

func (s *SQLStore) GetWorkout(ctx context.Context, id string) (w *models.Workout, err error) {
	_, done := span(ctx, "get_workout", attribute.String("workout.id", id))
	defer func() { done(err) }()
	return models.GetWorkout(s.DB, id)
}

func (s *SQLStore) GetActivePlan(ctx context.Context, userID int64) (p *models.ActivePlan, err error) {
	_, done := span(ctx, "get_active_plan")
	defer func() { done(err) }()
	return models.GetActivePlan(s.DB, userID)
}

func (s *SQLStore) ListClassCatalog(ctx context.Context) (list []*models.Workout, err error) {
	_, done := span(ctx, "list_class_catalog")
	defer func() { done(err) }()
	return models.ListClassCatalog(s.DB)
}

func (s *SQLStore) ListActivityTypes(ctx context.Context) (list []*models.ActivityType, err error) {
	_, done := span(ctx, "list_activity_types")
	defer func() { done(err) }()
	return models.ListActivityTypes(s.DB)
}

func (s *SQLStore) GetSystemPrompt(ctx context.Context, userID int64) (p *models.SystemPrompt, err error) {
	_, done := span(ctx, "get_system_prompt")
	defer func() { done(err) }()
	return models.GetSystemPrompt(s.DB, userID)
}

func (s *SQLStore) ListChatMessages(ctx context.Context, userID int64, limit int) (list []*models.ChatMessage, err error) {
	_, done := span(ctx, "list_chat_messages", attribute.Int("limit", limit))
	defer func() { done(err) }()
	return models.ListChatMessages(s.DB, userID, limit)
}

func (s *SQLStore) InsertChatMessages(ctx context.Context, userID int64, msgs ...models.NewChatMessage) (err error) {
	_, done := span(ctx, "insert_chat_messages", attribute.Int("count", len(msgs)))
	defer func() { done(err) }()
	return models.InsertChatMessages(s.DB, userID, msgs...)
}

func (s *SQLStore) SavePlan(ctx context.Context, userID int64, draft *models.PlanDraft) (p *models.WorkoutPlan, err error) {
	_, done := span(ctx, "save_plan",
		attribute.Int("plan.workouts", len(draft.Workouts)),
		attribute.Int("plan.schedules", len(draft.Schedules)))
	defer func() { done(err) }()
	return models.SavePlan(s.DB, userID, draft)
}
