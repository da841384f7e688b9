package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// OpenAIProvider implements Provider for OpenAI and OpenAI-compatible APIs.
type OpenAIProvider struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

// NewOpenAIProvider creates an OpenAI provider. An empty baseURL means the
// official API.
func NewOpenAIProvider(apiKey, model, baseURL string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "gpt-4o"
	}
	return &OpenAIProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

func (p *OpenAIProvider) Name() string { return "OpenAI" }

func (p *OpenAIProvider) Ping(ctx context.Context) error {
	_, err := p.Chat(ctx, "Respond with OK.", []Message{{Role: RoleUser, Content: "ping"}}, Options{MaxTokens: 10})
	return err
}

func (p *OpenAIProvider) Chat(ctx context.Context, systemPrompt string, messages []Message, opts Options) (*Response, error) {
	msgs := make([]Message, 0, len(messages)+1)
	msgs = append(msgs, Message{Role: "system", Content: systemPrompt})
	msgs = append(msgs, messages...)

	body := map[string]any{
		"model":       p.model,
		"messages":    msgs,
		"temperature": opts.Temperature,
	}
	if opts.MaxTokens > 0 {
		body["max_tokens"] = opts.MaxTokens
	}
	if opts.Schema != nil {
		body["response_format"] = map[string]any{
			"type": "json_schema",
			"json_schema": map[string]any{
				"name":   opts.Schema.Name,
				"strict": true,
				"schema": opts.Schema.Body,
			},
		}
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	raw, status, duration, err := postJSON(ctx, p.client, "openai", p.baseURL+"/chat/completions", headers, body)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		apiErr := &APIError{Provider: p.Name(), StatusCode: status}
		var errResp struct {
			Error struct {
				Type    string `json:"type"`
				Message string `json:"message"`
				Code    string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &errResp) == nil && errResp.Error.Message != "" {
			apiErr.Code = errResp.Error.Code
			if apiErr.Code == "" {
				apiErr.Code = errResp.Error.Type
			}
			apiErr.Message = errResp.Error.Message
		} else {
			apiErr.Message = string(raw)
		}
		return nil, apiErr
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
				Refusal string `json:"refusal"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
		Model string `json:"model"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("llm/openai: parse response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("llm/openai: no choices in response")
	}

	stop := result.Choices[0].FinishReason
	if result.Choices[0].Message.Refusal != "" {
		stop = "refusal"
	}
	return &Response{
		Content:    result.Choices[0].Message.Content,
		Model:      result.Model,
		TokensUsed: result.Usage.TotalTokens,
		Duration:   duration,
		StopReason: stop,
	}, nil
}
