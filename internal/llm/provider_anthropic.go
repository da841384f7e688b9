package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// AnthropicProvider implements Provider for the Anthropic Messages API.
type AnthropicProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewAnthropicProvider creates an Anthropic provider. An empty baseURL means
// the official API.
func NewAnthropicProvider(apiKey, model, baseURL string) *AnthropicProvider {
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	return &AnthropicProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (p *AnthropicProvider) Name() string { return "Anthropic" }

func (p *AnthropicProvider) Ping(ctx context.Context) error {
	_, err := p.Chat(ctx, "Respond with OK.", []Message{{Role: RoleUser, Content: "ping"}}, Options{MaxTokens: 10})
	return err
}

// Chat calls the Messages API. Structured output is requested by forcing a
// single tool call whose input schema is the requested schema; the tool input
// becomes the response content.
func (p *AnthropicProvider) Chat(ctx context.Context, systemPrompt string, messages []Message, opts Options) (*Response, error) {
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body := map[string]any{
		"model":       p.model,
		"max_tokens":  maxTokens,
		"system":      systemPrompt,
		"messages":    messages,
		"temperature": opts.Temperature,
	}
	if opts.Schema != nil {
		body["tools"] = []map[string]any{{
			"name":         opts.Schema.Name,
			"description":  opts.Schema.Description,
			"input_schema": opts.Schema.Body,
		}}
		body["tool_choice"] = map[string]string{"type": "tool", "name": opts.Schema.Name}
	}

	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": "2023-06-01",
	}
	raw, status, duration, err := postJSON(ctx, p.client, "anthropic", p.baseURL+"/v1/messages", headers, body)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		apiErr := &APIError{Provider: p.Name(), StatusCode: status}
		var errResp struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error.Message != "" {
			apiErr.Code = errResp.Error.Type
			apiErr.Message = errResp.Error.Message
		} else {
			apiErr.Message = string(raw)
		}
		return nil, apiErr
	}

	var result struct {
		Content []struct {
			Type  string          `json:"type"`
			Text  string          `json:"text"`
			Name  string          `json:"name"`
			Input json.RawMessage `json:"input"`
		} `json:"content"`
		Model      string `json:"model"`
		StopReason string `json:"stop_reason"`
		Usage      struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("llm/anthropic: parse response: %w", err)
	}
	if len(result.Content) == 0 {
		return nil, fmt.Errorf("llm/anthropic: no content blocks in response")
	}

	var content strings.Builder
	for _, block := range result.Content {
		switch {
		case opts.Schema != nil && block.Type == "tool_use" && block.Name == opts.Schema.Name:
			content.Reset()
			content.Write(block.Input)
		case opts.Schema == nil && block.Type == "text":
			content.WriteString(block.Text)
		}
	}

	return &Response{
		Content:    content.String(),
		Model:      result.Model,
		TokensUsed: result.Usage.InputTokens + result.Usage.OutputTokens,
		Duration:   duration,
		StopReason: result.StopReason,
	}, nil
}
