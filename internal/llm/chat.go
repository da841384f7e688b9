package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/carpenike/reformer/internal/logger"
	"github.com/carpenike/reformer/internal/models"
)

// DefaultChatHistoryLimit bounds how many past messages are replayed.
const DefaultChatHistoryLimit = 50

// DefaultPersona is used when the user has no custom system prompt.
var DefaultPersona = models.SystemPrompt{
	Name: "Coach Ava",
	Prompt: "You are Coach Ava, a warm and knowledgeable Pilates instructor and personal trainer. " +
		"Give safe, specific, encouraging guidance grounded in the user's profile, health notes and recent training. " +
		"Respect injuries and medical conditions, and suggest seeing a professional when something sounds like it needs one.",
}

// FallbackReply is returned when the provider produces no usable text.
const FallbackReply = "Sorry, I couldn't come up with a reply just now. Could you try asking that again?"

const replyLengthRule = "Keep replies to about 5 sentences, text-message length. Do not use markdown headings."

// ChatGenerator turns one user message into a persisted assistant reply.
type ChatGenerator struct {
	Store        Store
	Provider     Provider
	Log          *logger.Logger
	Options      Options
	// HistoryLimit is how many past messages are replayed. Zero or less
	// uses DefaultChatHistoryLimit; history is never replayed unbounded.
	HistoryLimit int
}

// Respond generates the trainer's reply to userInput and stores both messages,
// user first. Any failure is logged and reported as ErrGenerateResponse.
func (g *ChatGenerator) Respond(ctx context.Context, userInput string, userID int64, uc *UserContext) (string, error) {
	ctx, span := tracer.Start(ctx, "llm.chat_response")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", userID))

	reply, err := g.respond(ctx, userInput, userID, uc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat response failed")
		g.logger().Error("failed to generate chat response", "user_id", userID, "error", err)
		return "", ErrGenerateResponse
	}
	return reply, nil
}

func (g *ChatGenerator) respond(ctx context.Context, userInput string, userID int64, uc *UserContext) (string, error) {
	if strings.TrimSpace(userInput) == "" {
		return "", errors.New("empty message")
	}
	if g.Provider == nil {
		return "", ErrNotConfigured
	}

	persona := DefaultPersona
	sp, err := g.Store.GetSystemPrompt(ctx, userID)
	switch {
	case errors.Is(err, models.ErrNotFound):
	case err != nil:
		return "", fmt.Errorf("load system prompt: %w", err)
	default:
		persona = *sp
	}

	limit := g.HistoryLimit
	if limit <= 0 {
		limit = DefaultChatHistoryLimit
	}
	history, err := g.Store.ListChatMessages(ctx, userID, limit)
	if err != nil {
		return "", fmt.Errorf("load chat history: %w", err)
	}

	// History arrives newest first.
	messages := make([]Message, 0, len(history)+1)
	for i := len(history) - 1; i >= 0; i-- {
		messages = append(messages, Message{Role: history[i].Role, Content: history[i].Content})
	}
	messages = append(messages, Message{Role: RoleUser, Content: userInput})

	resp, err := g.Provider.Chat(ctx, BuildChatSystemPrompt(persona, uc), messages, g.Options)
	if err != nil {
		return "", fmt.Errorf("provider %s: %w", g.Provider.Name(), err)
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		g.logger().Warn("empty chat reply from provider",
			"user_id", userID, "provider", g.Provider.Name(), "stop_reason", resp.StopReason)
		reply = FallbackReply
	}

	if err := g.Store.InsertChatMessages(ctx, userID,
		models.NewChatMessage{Role: models.RoleUser, Content: userInput},
		models.NewChatMessage{Role: models.RoleAssistant, Content: reply},
	); err != nil {
		return "", fmt.Errorf("save chat messages: %w", err)
	}

	g.logger().Info("chat response generated",
		"user_id", userID, "provider", g.Provider.Name(), "model", resp.Model,
		"tokens", resp.TokensUsed, "duration", resp.Duration)
	return reply, nil
}

// BuildChatSystemPrompt combines the persona, the formatted context and the
// reply length rule into one system message.
func BuildChatSystemPrompt(persona models.SystemPrompt, uc *UserContext) string {
	var b strings.Builder
	if persona.Name != "" {
		fmt.Fprintf(&b, "Your name is %s.\n\n", persona.Name)
	}
	b.WriteString(strings.TrimSpace(persona.Prompt))
	b.WriteString("\n\n## User Context\n\n")
	b.WriteString(FormatUserContext(uc))
	b.WriteString("\n")
	b.WriteString(replyLengthRule)
	return b.String()
}

func (g *ChatGenerator) logger() *logger.Logger {
	if g.Log != nil {
		return g.Log
	}
	return logger.Nop()
}
