package handlers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/carpenike/reformer/internal/llm"
	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/middleware"
	"github.com/carpenike/reformer/internal/models"
)

const (
	maxChatMessageLen = 4000
	maxPlanPromptLen  = 2000
	chatTimeout       = 2 * time.Minute
	planTimeout       = 5 * time.Minute
)

// Coach serves the AI trainer: the user context, chat and plan generation.
// The provider is resolved per request so settings changes apply immediately.
type Coach struct {
	DB           *sql.DB
	Aggregator   *llm.Aggregator
	Notifier     llm.Notifier
	NewProvider  func(*sql.DB) (llm.Provider, error)
	HistoryLimit int
	Log          *logger.Logger
}

// provider resolves the configured provider, writing 503 when none is set.
func (h *Coach) provider(w http.ResponseWriter) (llm.Provider, bool) {
	newProvider := h.NewProvider
	if newProvider == nil {
		newProvider = llm.NewProviderFromSettings
	}
	p, err := newProvider(h.DB)
	if err != nil {
		if !errors.Is(err, llm.ErrNotConfigured) {
			h.Log.Error("build AI provider failed", "error", err)
		}
		jsonError(w, "The AI coach is not configured", http.StatusServiceUnavailable)
		return nil, false
	}
	return p, true
}

func (h *Coach) userContext(ctx context.Context, w http.ResponseWriter, r *http.Request, userID int64) (*llm.UserContext, bool) {
	days, err := queryInt(r, "days", 0, 1, 3650)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	var tr *llm.TimeRange
	if days > 0 {
		now := h.Aggregator.Now()
		tr = &llm.TimeRange{From: now.AddDate(0, 0, -days), To: now}
	}
	uc, err := h.Aggregator.BuildUserContext(ctx, userID, tr)
	if err != nil {
		serverError(w, h.Log, "build user context failed", err, "user_id", userID)
		return nil, false
	}
	return uc, true
}

// Context returns the aggregated user context and its prompt rendering.
// GET /api/context
func (h *Coach) Context(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	uc, ok := h.userContext(r.Context(), w, r, user.ID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"context":   uc,
		"formatted": llm.FormatUserContext(uc),
	})
}

// ChatHistory returns up to ?limit=N recent messages, oldest first.
// GET /api/chat
func (h *Coach) ChatHistory(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	limit, err := queryInt(r, "limit", 100, 1, 1000)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	msgs, err := models.ListChatMessages(h.DB, user.ID, limit)
	if err != nil {
		serverError(w, h.Log, "list chat messages failed", err, "user_id", user.ID)
		return
	}
	out := make([]chatMessageView, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = chatMessageView{ID: m.ID, Role: m.Role, Content: m.Content, CreatedAt: m.CreatedAt}
	}
	writeJSON(w, http.StatusOK, out)
}

type chatRequest struct {
	Message string `json:"message"`
}

// Chat sends a message to the trainer and returns the stored reply.
// POST /api/chat
func (h *Coach) Chat(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		jsonError(w, "Message is required", http.StatusBadRequest)
		return
	}
	if len(msg) > maxChatMessageLen {
		jsonError(w, "Message is too long", http.StatusRequestEntityTooLarge)
		return
	}

	provider, ok := h.provider(w)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), chatTimeout)
	defer cancel()

	uc, ok := h.userContext(ctx, w, r, user.ID)
	if !ok {
		return
	}

	gen := &llm.ChatGenerator{
		Store:        h.Aggregator.Store,
		Provider:     provider,
		Log:          h.Log,
		Options:      llm.OptionsFromSettings(h.DB),
		HistoryLimit: h.HistoryLimit,
	}
	reply, err := gen.Respond(ctx, msg, user.ID, uc)
	if err != nil {
		jsonError(w, "The AI coach could not respond. Please try again.", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

// GetSystemPrompt returns the user's trainer persona, or the default.
// GET /api/chat/system-prompt
func (h *Coach) GetSystemPrompt(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	sp, err := models.GetSystemPrompt(h.DB, user.ID)
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeJSON(w, http.StatusOK, map[string]any{
			"name": llm.DefaultPersona.Name, "prompt": llm.DefaultPersona.Prompt, "isDefault": true,
		})
	case err != nil:
		serverError(w, h.Log, "get system prompt failed", err, "user_id", user.ID)
	default:
		writeJSON(w, http.StatusOK, map[string]any{"name": sp.Name, "prompt": sp.Prompt, "isDefault": false})
	}
}

type systemPromptRequest struct {
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

// PutSystemPrompt sets the user's trainer persona.
// PUT /api/chat/system-prompt
func (h *Coach) PutSystemPrompt(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())
	var req systemPromptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Prompt) == "" {
		jsonError(w, "Name and prompt are required", http.StatusUnprocessableEntity)
		return
	}

	sp, err := models.UpsertSystemPrompt(h.DB, user.ID, req.Name, req.Prompt)
	if err != nil {
		serverError(w, h.Log, "save system prompt failed", err, "user_id", user.ID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": sp.Name, "prompt": sp.Prompt, "isDefault": false})
}

type generatePlanRequest struct {
	Prompt string `json:"prompt"`
}

// GeneratePlan asks the trainer for a new plan, saves it as the active plan
// and returns it.
// POST /api/plans/generate
func (h *Coach) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFromContext(r.Context())

	var req generatePlanRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if len(req.Prompt) > maxPlanPromptLen {
		jsonError(w, "Prompt is too long", http.StatusRequestEntityTooLarge)
		return
	}

	provider, ok := h.provider(w)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), planTimeout)
	defer cancel()

	uc, ok := h.userContext(ctx, w, r, user.ID)
	if !ok {
		return
	}

	gen := &llm.PlanGenerator{
		Store:    h.Aggregator.Store,
		Provider: provider,
		Notifier: h.Notifier,
		Log:      h.Log,
		Options:  llm.OptionsFromSettings(h.DB),
		Now:      h.Aggregator.Now,
	}
	draft, err := gen.Generate(ctx, uc, req.Prompt)
	if errors.Is(err, llm.ErrParseResponse) {
		jsonError(w, "The AI coach returned an unusable plan. Please try again.", http.StatusBadGateway)
		return
	}
	if err != nil {
		serverError(w, h.Log, "generate plan failed", err, "user_id", user.ID)
		return
	}

	if _, err := gen.Save(ctx, user.ID, draft); err != nil {
		serverError(w, h.Log, "save plan failed", err, "user_id", user.ID)
		return
	}

	active, err := models.GetActivePlan(h.DB, user.ID)
	if err != nil {
		serverError(w, h.Log, "load saved plan failed", err, "user_id", user.ID)
		return
	}
	writeJSON(w, http.StatusCreated, newActivePlanView(active))
}
