package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConfigured is returned when no AI provider is selected.
	ErrNotConfigured = errors.New("llm: AI provider not configured")

	// ErrGenerateResponse is the only error chat callers see when a reply
	// could not be produced or stored.
	ErrGenerateResponse = errors.New("llm: failed to generate AI response")

	// ErrParseResponse is returned when a plan payload is missing, malformed
	// or violates the plan contract.
	ErrParseResponse = errors.New("llm: failed to parse AI response")
)

// APIError is a non-200 response from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("llm/%s: HTTP %d (%s): %s", strings.ToLower(e.Provider), e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("llm/%s: HTTP %d: %s", strings.ToLower(e.Provider), e.StatusCode, e.Message)
}

// UserMessage is a short, operator-facing explanation for the admin
// connection test. It never contains the API key.
func (e *APIError) UserMessage() string {
	msg := strings.ToLower(e.Message + " " + e.Code)
	switch {
	case e.StatusCode == 401 || e.StatusCode == 403:
		return fmt.Sprintf("Invalid API key for %s. Check the key in settings.", e.Provider)
	case e.StatusCode == 429:
		return fmt.Sprintf("Rate limit exceeded at %s. Wait a moment and try again.", e.Provider)
	case strings.Contains(msg, "credit") || strings.Contains(msg, "billing") || strings.Contains(msg, "quota"):
		return fmt.Sprintf("Insufficient credits on the %s account.", e.Provider)
	case e.StatusCode == 404 || (strings.Contains(msg, "model") && strings.Contains(msg, "not found")):
		return fmt.Sprintf("Model not found at %s. Check the model name in settings.", e.Provider)
	case e.StatusCode >= 500:
		return fmt.Sprintf("%s is temporarily unavailable (HTTP %d).", e.Provider, e.StatusCode)
	default:
		return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
	}
}
