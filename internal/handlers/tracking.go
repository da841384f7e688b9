package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/carpenike/reformer/internal/importers"
	"github.com/carpenike/reformer/internal/llm"
	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/middleware"
	"github.com/carpenike/reformer/internal/models"
)

// streakMilestones are the day counts that trigger a streak notification.
var streakMilestones = []int{7, 14, 30, 60, 100, 365}

// Tracking records and lists completed workouts.
type Tracking struct {
	DB       *sql.DB
	Notifier llm.Notifier
	Location *time.Location
	Now      func() time.Time
	Log      *logger.Logger
}

type trackingRequest struct {
	WorkoutID    string     `json:"workoutId"`
	CompletedAt  *time.Time `json:"completedAt"`
	Duration     *int       `json:"duration"`
	Intensity    *int       `json:"intensity"`
	WouldDoAgain *bool      `json:"wouldDoAgain"`
	Notes        string     `json:"notes"`
}

// List returns completions in the last ?days=N days (default 30), oldest first.
// GET /api/tracking
func (h *Tracking) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	days, err := queryInt(r, "days", llm.DefaultWindowDays, 1, 3650)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	now := h.now()
	list, err := models.ListWorkoutTracking(h.DB, user.ID, now.AddDate(0, 0, -days), now)
	if err != nil {
		serverError(w, h.Log, "list tracking failed", err, "user_id", user.ID)
		return
	}
	out := make([]trackingView, 0, len(list))
	for _, t := range list {
		out = append(out, newTrackingView(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// Create records a completed workout. A workout the user owns is marked
// completed. Notifications are sent for the log and for streak milestones.
// POST /api/tracking
func (h *Tracking) Create(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	var req trackingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.validate(&req); err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	var workoutName string
	if req.WorkoutID != "" {
		wo, err := models.GetWorkout(h.DB, req.WorkoutID)
		if errors.Is(err, models.ErrNotFound) || (err == nil && wo.UserID.Valid && wo.UserID.Int64 != user.ID) {
			jsonError(w, "Unknown workout", http.StatusUnprocessableEntity)
			return
		}
		if err != nil {
			serverError(w, h.Log, "get workout failed", err, "workout_id", req.WorkoutID)
			return
		}
		workoutName = wo.Name
	}

	t, err := models.CreateWorkoutTracking(h.DB, user.ID, models.TrackingInput{
		WorkoutID:    req.WorkoutID,
		CompletedAt:  *req.CompletedAt,
		Duration:     req.Duration,
		Intensity:    req.Intensity,
		WouldDoAgain: req.WouldDoAgain,
		Notes:        strings.TrimSpace(req.Notes),
	})
	if err != nil {
		serverError(w, h.Log, "create tracking failed", err, "user_id", user.ID)
		return
	}

	h.notify(r, user.ID, workoutName, t.CompletedAt)
	writeJSON(w, http.StatusCreated, newTrackingView(t))
}

// maxImportBytes caps an uploaded export file.
const maxImportBytes = 5 << 20

// Import records the sessions of a Strong or Hevy CSV export. The file is
// sent as the "file" field of a multipart form or as the raw request body.
// Sessions already recorded at the same time are skipped.
// POST /api/tracking/import
func (h *Tracking) Import(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	data, err := readImportFile(w, r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	parsed, err := importers.Parse(data, h.Location)
	if errors.Is(err, importers.ErrUnknownFormat) {
		jsonError(w, "Unsupported file. Export a CSV from Strong or Hevy.", http.StatusUnprocessableEntity)
		return
	}
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	cutoff := h.now().Add(time.Hour)
	entries := make([]models.TrackingInput, 0, len(parsed.Sessions))
	for _, s := range parsed.Sessions {
		if s.StartedAt.After(cutoff) {
			continue
		}
		in := models.TrackingInput{
			CompletedAt: s.StartedAt,
			Intensity:   s.Intensity(),
			Notes:       s.Summary(),
		}
		if s.Duration > 0 {
			d := min(s.Duration, 600)
			in.Duration = &d
		}
		entries = append(entries, in)
	}

	imported, skipped, err := models.ImportWorkoutTracking(h.DB, user.ID, entries)
	if err != nil {
		serverError(w, h.Log, "import tracking failed", err, "user_id", user.ID)
		return
	}

	// Future-dated sessions count as skipped.
	skipped += len(parsed.Sessions) - len(entries)
	h.Log.Info("tracking imported", "user_id", user.ID, "format", parsed.Format,
		"imported", imported, "skipped", skipped)
	writeJSON(w, http.StatusOK, map[string]any{
		"format":   parsed.Format,
		"imported": imported,
		"skipped":  skipped,
	})
}

func readImportFile(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			return nil, errors.New("missing file upload")
		}
		defer f.Close()
		src = f
	}

	data, err := io.ReadAll(src)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, errors.New("file is too large")
	}
	if err != nil {
		return nil, errors.New("could not read upload")
	}
	if len(data) == 0 {
		return nil, errors.New("file is empty")
	}
	return data, nil
}

func (h *Tracking) validate(req *trackingRequest) error {
	req.WorkoutID = strings.TrimSpace(req.WorkoutID)
	if req.CompletedAt == nil {
		now := h.now()
		req.CompletedAt = &now
	}
	switch {
	case req.CompletedAt.After(h.now().Add(time.Hour)):
		return errors.New("completedAt must not be in the future")
	case req.Duration != nil && (*req.Duration < 1 || *req.Duration > 600):
		return errors.New("duration must be between 1 and 600 minutes")
	case req.Intensity != nil && (*req.Intensity < 1 || *req.Intensity > 10):
		return errors.New("intensity must be between 1 and 10")
	}
	return nil
}

// notify announces a logged workout and, when completedAt is the user's most
// recent training day, any streak milestone it reaches.
func (h *Tracking) notify(r *http.Request, userID int64, workoutName string, completedAt time.Time) {
	if h.Notifier == nil {
		return
	}
	ctx := r.Context()

	msg := "Nice work, your workout is logged."
	if workoutName != "" {
		msg = fmt.Sprintf("Nice work, %s is logged.", workoutName)
	}
	if err := h.Notifier.Notify(ctx, userID, models.NotifyWorkoutLogged, "Workout logged", msg, "/tracking"); err != nil {
		h.Log.Warn("workout logged notification failed", "user_id", userID, "error", err)
	}

	now := h.now()
	list, err := models.ListWorkoutTracking(h.DB, userID, now.AddDate(-1, 0, -1), now.Add(time.Hour))
	if err != nil {
		h.Log.Warn("streak lookup failed", "user_id", userID, "error", err)
		return
	}
	loc := h.Location
	if loc == nil {
		loc = time.Local
	}
	logged := dayOf(completedAt, loc)
	times := make([]time.Time, len(list))
	for i, t := range list {
		// Backdated logs leave the current streak alone.
		if dayOf(t.CompletedAt, loc).After(logged) {
			return
		}
		times[i] = t.CompletedAt
	}
	streak := llm.CalculateStreak(times, loc)
	if !slices.Contains(streakMilestones, streak) {
		return
	}
	title := fmt.Sprintf("%d-day streak!", streak)
	msg = fmt.Sprintf("You've trained %d days in a row. Keep it going!", streak)
	if err := h.Notifier.Notify(ctx, userID, models.NotifyStreakMilestone, title, msg, "/tracking"); err != nil {
		h.Log.Warn("streak notification failed", "user_id", userID, "error", err)
	}
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (h *Tracking) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}
