package handlers

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/middleware"
	"github.com/carpenike/reformer/internal/models"
)

// Onboarding serves the onboarding wizard answers.
type Onboarding struct {
	DB  *sql.DB
	Log *logger.Logger
}

// Get returns the current user's answers, or 404 if the wizard was never
// started.
// GET /api/onboarding
func (h *Onboarding) Get(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	o, err := models.GetOnboarding(h.DB, user.ID)
	if errors.Is(err, models.ErrNotFound) {
		jsonError(w, "Onboarding not started", http.StatusNotFound)
		return
	}
	if err != nil {
		serverError(w, h.Log, "get onboarding failed", err, "user_id", user.ID)
		return
	}
	writeJSON(w, http.StatusOK, newOnboardingView(o))
}

// Update saves one wizard step. Fields absent from the body are unchanged.
// PUT /api/onboarding
func (h *Onboarding) Update(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	var u models.OnboardingUpdate
	if err := decodeJSON(w, r, &u); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := validateOnboarding(u); err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	o, err := models.UpsertOnboarding(h.DB, user.ID, u)
	if err != nil {
		serverError(w, h.Log, "save onboarding failed", err, "user_id", user.ID)
		return
	}
	writeJSON(w, http.StatusOK, newOnboardingView(o))
}

func validateOnboarding(u models.OnboardingUpdate) error {
	switch {
	case u.Age != nil && (*u.Age < 1 || *u.Age > 120):
		return errors.New("age must be between 1 and 120")
	case u.HeightCm != nil && (*u.HeightCm < 50 || *u.HeightCm > 300):
		return errors.New("heightCm must be between 50 and 300")
	case u.WeightKg != nil && (*u.WeightKg < 20 || *u.WeightKg > 500):
		return errors.New("weightKg must be between 20 and 500")
	case u.Step != nil && *u.Step < 0:
		return errors.New("step must not be negative")
	}
	return nil
}
