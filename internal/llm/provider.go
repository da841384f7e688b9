package llm

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/carpenike/reformer/internal/models"
)

var tracer = otel.Tracer("github.com/carpenike/reformer/internal/llm")

// Message roles sent to providers.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Schema constrains a response to a JSON document. Body is a JSON Schema.
type Schema struct {
	Name        string
	Description string
	Body        map[string]any
}

// Options controls a single provider call.
type Options struct {
	Temperature float64
	MaxTokens   int
	// Schema, when set, requests structured output; Response.Content is
	// then the JSON document.
	Schema *Schema
}

// Response is a provider reply.
type Response struct {
	Content    string
	Model      string
	TokensUsed int
	Duration   time.Duration
	StopReason string
}

// Provider is an LLM chat-completion backend.
type Provider interface {
	// Chat sends a system instruction followed by the ordered messages.
	Chat(ctx context.Context, systemPrompt string, messages []Message, opts Options) (*Response, error)

	// Ping validates connectivity and credentials.
	Ping(ctx context.Context) error

	// Name is the display name, e.g. "OpenAI".
	Name() string
}

// NewProviderFromSettings builds the provider selected in app settings.
func NewProviderFromSettings(db *sql.DB) (Provider, error) {
	provider := models.GetSetting(db, "llm.provider")
	if provider == "" {
		return nil, ErrNotConfigured
	}

	model := models.GetSetting(db, "llm.model")
	apiKey := models.GetSetting(db, "llm.api_key")
	baseURL := models.GetSetting(db, "llm.base_url")

	var p Provider
	switch provider {
	case "openai":
		p = NewOpenAIProvider(apiKey, model, baseURL)
	case "anthropic":
		p = NewAnthropicProvider(apiKey, model, baseURL)
	case "ollama":
		p = NewOllamaProvider(baseURL, model)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", provider)
	}
	return Traced(p), nil
}

// TemperatureFromSettings reads llm.temperature, defaulting to 0.7.
func TemperatureFromSettings(db *sql.DB) float64 {
	temp, err := strconv.ParseFloat(models.GetSetting(db, "llm.temperature"), 64)
	if err != nil || temp < 0 || temp > 2 {
		return 0.7
	}
	return temp
}

// MaxTokensFromSettings reads llm.max_tokens, defaulting to 4096.
func MaxTokensFromSettings(db *sql.DB) int {
	n, err := strconv.Atoi(models.GetSetting(db, "llm.max_tokens"))
	if err != nil || n < 256 || n > 65536 {
		return 4096
	}
	return n
}

// OptionsFromSettings combines the temperature and token settings.
func OptionsFromSettings(db *sql.DB) Options {
	return Options{Temperature: TemperatureFromSettings(db), MaxTokens: MaxTokensFromSettings(db)}
}

// Traced wraps p so each call records an OpenTelemetry span.
func Traced(p Provider) Provider {
	if _, ok := p.(tracedProvider); ok {
		return p
	}
	return tracedProvider{p}
}

type tracedProvider struct {
	Provider
}

func (t tracedProvider) Chat(ctx context.Context, systemPrompt string, messages []Message, opts Options) (*Response, error) {
	ctx, span := tracer.Start(ctx, "llm.chat")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", t.Name()),
		attribute.Int("llm.messages", len(messages)),
		attribute.Bool("llm.structured", opts.Schema != nil),
	)

	resp, err := t.Provider.Chat(ctx, systemPrompt, messages, opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider call failed")
		return nil, err
	}
	span.SetAttributes(
		attribute.String("llm.model", resp.Model),
		attribute.Int("llm.tokens", resp.TokensUsed),
		attribute.String("llm.stop_reason", resp.StopReason),
	)
	return resp, nil
}

func (t tracedProvider) Ping(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "llm.ping")
	defer span.End()
	span.SetAttributes(attribute.String("llm.provider", t.Name()))
	err := t.Provider.Ping(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ping failed")
	}
	return err
}
