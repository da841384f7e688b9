package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/middleware"
	"github.com/carpenike/reformer/internal/models"
)

// Plans serves stored workout plans and the studio catalog.
type Plans struct {
	DB  *sql.DB
	Log *logger.Logger
}

// List returns every plan of the user, newest first.
// GET /api/plans
func (h *Plans) List(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	plans, err := models.ListPlans(h.DB, user.ID)
	if err != nil {
		serverError(w, h.Log, "list plans failed", err, "user_id", user.ID)
		return
	}
	out := make([]planView, 0, len(plans))
	for _, p := range plans {
		out = append(out, newPlanView(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// Active returns the active plan with its schedule.
// GET /api/plans/active
func (h *Plans) Active(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	ap, err := models.GetActivePlan(h.DB, user.ID)
	if errors.Is(err, models.ErrNotFound) {
		jsonError(w, "No active plan", http.StatusNotFound)
		return
	}
	if err != nil {
		serverError(w, h.Log, "get active plan failed", err, "user_id", user.ID)
		return
	}
	writeJSON(w, http.StatusOK, newActivePlanView(ap))
}

// Archive archives one of the user's plans; an active plan is deactivated.
// POST /api/plans/{id}/archive
func (h *Plans) Archive(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	err := models.ArchivePlan(h.DB, user.ID, id)
	if errors.Is(err, models.ErrNotFound) {
		jsonError(w, "Plan not found", http.StatusNotFound)
		return
	}
	if err != nil {
		serverError(w, h.Log, "archive plan failed", err, "user_id", user.ID, "plan_id", id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type workoutStatusRequest struct {
	Status   *string `json:"status"`
	IsBooked *bool   `json:"isBooked"`
}

// UpdateWorkout sets the status or booking flag of a planned workout.
// PUT /api/workouts/{id}
func (h *Plans) UpdateWorkout(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req workoutStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Status == nil && req.IsBooked == nil {
		jsonError(w, "Nothing to update", http.StatusBadRequest)
		return
	}

	if req.Status != nil {
		switch *req.Status {
		case models.StatusNotRecorded, models.StatusCompleted, models.StatusNotCompleted:
		default:
			jsonError(w, "Unknown status", http.StatusUnprocessableEntity)
			return
		}
		if !h.apply(w, user.ID, id, models.UpdateWorkoutStatus(h.DB, user.ID, id, *req.Status)) {
			return
		}
	}
	if req.IsBooked != nil {
		if !h.apply(w, user.ID, id, models.SetWorkoutBooked(h.DB, user.ID, id, *req.IsBooked)) {
			return
		}
	}

	wo, err := models.GetWorkout(h.DB, id)
	if err != nil {
		serverError(w, h.Log, "reload workout failed", err, "workout_id", id)
		return
	}
	writeJSON(w, http.StatusOK, newWorkoutView(wo))
}

func (h *Plans) apply(w http.ResponseWriter, userID int64, id string, err error) bool {
	if errors.Is(err, models.ErrNotFound) {
		jsonError(w, "Workout not found", http.StatusNotFound)
		return false
	}
	if err != nil {
		serverError(w, h.Log, "update workout failed", err, "user_id", userID, "workout_id", id)
		return false
	}
	return true
}

// Classes returns the bookable studio class catalog.
// GET /api/classes
func (h *Plans) Classes(w http.ResponseWriter, r *http.Request) {
	classes, err := models.ListClassCatalog(h.DB)
	if err != nil {
		serverError(w, h.Log, "list classes failed", err)
		return
	}
	out := make([]workoutView, 0, len(classes))
	for _, c := range classes {
		out = append(out, newWorkoutView(c))
	}
	writeJSON(w, http.StatusOK, out)
}

// ActivityTypes returns the non-class activities users can log or be planned.
// GET /api/activity-types
func (h *Plans) ActivityTypes(w http.ResponseWriter, r *http.Request) {
	types, err := models.ListActivityTypes(h.DB)
	if err != nil {
		serverError(w, h.Log, "list activity types failed", err)
		return
	}
	out := make([]activityTypeView, 0, len(types))
	for _, t := range types {
		out = append(out, activityTypeView{ID: t.ID, Name: t.Name, Description: nullStr(t.Description)})
	}
	writeJSON(w, http.StatusOK, out)
}
