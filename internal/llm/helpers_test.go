package llm

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/carpenike/reformer/internal/database"
	"github.com/carpenike/reformer/internal/models"
)

func testDB(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := database.RunMigrations(db); err != nil {
		db.Close()
		t.Fatalf("run migrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func ptr[T any](v T) *T { return &v }

// fakeStore is an in-memory Store. Errors set on it are returned by the
// matching method.
type fakeStore struct {
	mu sync.Mutex

	onboarding *models.Onboarding
	tracking   []*models.WorkoutTracking
	workouts   map[string]*models.Workout
	activePlan *models.ActivePlan
	catalog    []*models.Workout
	activities []*models.ActivityType
	prompt     *models.SystemPrompt
	messages   []*models.ChatMessage
	saved      []*models.PlanDraft

	onboardingErr error
	trackingErr   error
	planErr       error
	insertErr     error
	saveErr       error

	trackingFrom, trackingTo time.Time
	historyLimit             int
}

func newFakeStore() *fakeStore {
	return &fakeStore{workouts: map[string]*models.Workout{}}
}

func (f *fakeStore) GetOnboarding(_ context.Context, _ int64) (*models.Onboarding, error) {
	if f.onboardingErr != nil {
		return nil, f.onboardingErr
	}
	if f.onboarding == nil {
		return nil, models.ErrNotFound
	}
	return f.onboarding, nil
}

func (f *fakeStore) ListWorkoutTracking(_ context.Context, _ int64, from, to time.Time) ([]*models.WorkoutTracking, error) {
	f.mu.Lock()
	f.trackingFrom, f.trackingTo = from, to
	f.mu.Unlock()
	if f.trackingErr != nil {
		return nil, f.trackingErr
	}
	return f.tracking, nil
}

func (f *fakeStore) GetWorkout(_ context.Context, id string) (*models.Workout, error) {
	w, ok := f.workouts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return w, nil
}

func (f *fakeStore) GetActivePlan(_ context.Context, _ int64) (*models.ActivePlan, error) {
	if f.planErr != nil {
		return nil, f.planErr
	}
	if f.activePlan == nil {
		return nil, models.ErrNotFound
	}
	return f.activePlan, nil
}

func (f *fakeStore) ListClassCatalog(_ context.Context) ([]*models.Workout, error) {
	return f.catalog, nil
}

func (f *fakeStore) ListActivityTypes(_ context.Context) ([]*models.ActivityType, error) {
	return f.activities, nil
}

func (f *fakeStore) GetSystemPrompt(_ context.Context, _ int64) (*models.SystemPrompt, error) {
	if f.prompt == nil {
		return nil, models.ErrNotFound
	}
	return f.prompt, nil
}

// ListChatMessages returns newest first, like the SQL store.
func (f *fakeStore) ListChatMessages(_ context.Context, _ int64, limit int) ([]*models.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyLimit = limit
	var out []*models.ChatMessage
	for i := len(f.messages) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, f.messages[i])
	}
	return out, nil
}

func (f *fakeStore) InsertChatMessages(_ context.Context, userID int64, msgs ...models.NewChatMessage) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.messages = append(f.messages, &models.ChatMessage{
			ID:      int64(len(f.messages) + 1),
			UserID:  userID,
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return nil
}

func (f *fakeStore) SavePlan(_ context.Context, userID int64, d *models.PlanDraft) (*models.WorkoutPlan, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, d)
	p := d.Plan
	p.UserID = userID
	p.IsActive = true
	return &p, nil
}

// recordingNotifier captures Notify calls.
type recordingNotifier struct {
	calls []string
	err   error
}

func (n *recordingNotifier) Notify(_ context.Context, _ int64, kind, title, _, link string) error {
	n.calls = append(n.calls, kind+"|"+title+"|"+link)
	return n.err
}
