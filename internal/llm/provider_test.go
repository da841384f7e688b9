package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/carpenike/reformer/internal/models"
)

// --- Settings helpers tests ---

func TestNewProviderFromSettings_NotConfigured(t *testing.T) {
	db := testDB(t)
	_, err := NewProviderFromSettings(db)
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("got %v, want ErrNotConfigured", err)
	}
}

func TestNewProviderFromSettings(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{"anthropic", "Anthropic"},
		{"openai", "OpenAI"},
		{"ollama", "Ollama"},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			db := testDB(t)
			models.SetSetting(db, "llm.provider", tt.provider)
			models.SetSetting(db, "llm.api_key", "test-key")

			p, err := NewProviderFromSettings(db)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Name() != tt.want {
				t.Errorf("name = %q, want %q", p.Name(), tt.want)
			}
		})
	}
}

func TestNewProviderFromSettings_InvalidProvider(t *testing.T) {
	db := testDB(t)
	models.SetSetting(db, "llm.provider", "invalid")

	_, err := NewProviderFromSettings(db)
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestTemperatureFromSettings(t *testing.T) {
	db := testDB(t)

	if temp := TemperatureFromSettings(db); temp != 0.7 {
		t.Errorf("default temperature = %f, want 0.7", temp)
	}

	models.SetSetting(db, "llm.temperature", "0.3")
	if temp := TemperatureFromSettings(db); temp != 0.3 {
		t.Errorf("custom temperature = %f, want 0.3", temp)
	}

	models.SetSetting(db, "llm.temperature", "5")
	if temp := TemperatureFromSettings(db); temp != 0.7 {
		t.Errorf("out of range temperature = %f, want default 0.7", temp)
	}
}

func TestMaxTokensFromSettings(t *testing.T) {
	db := testDB(t)

	if tokens := MaxTokensFromSettings(db); tokens != 4096 {
		t.Errorf("default tokens = %d, want 4096", tokens)
	}

	models.SetSetting(db, "llm.max_tokens", "16384")
	if tokens := MaxTokensFromSettings(db); tokens != 16384 {
		t.Errorf("custom tokens = %d, want 16384", tokens)
	}
}

// --- API Error tests ---

func TestAPIError_UserMessage(t *testing.T) {
	tests := []struct {
		name       string
		err        *APIError
		wantSubstr string
	}{
		{
			name:       "401 invalid key",
			err:        &APIError{Provider: "OpenAI", StatusCode: 401, Message: "invalid api key"},
			wantSubstr: "Invalid API key",
		},
		{
			name:       "429 rate limit",
			err:        &APIError{Provider: "Anthropic", StatusCode: 429, Message: "rate limited"},
			wantSubstr: "Rate limit exceeded",
		},
		{
			name:       "400 billing",
			err:        &APIError{Provider: "OpenAI", StatusCode: 400, Message: "insufficient credit balance"},
			wantSubstr: "Insufficient credits",
		},
		{
			name:       "400 model not found",
			err:        &APIError{Provider: "OpenAI", StatusCode: 400, Message: "model not found"},
			wantSubstr: "Model not found",
		},
		{
			name:       "503 unavailable",
			err:        &APIError{Provider: "Anthropic", StatusCode: 503, Message: "service unavailable"},
			wantSubstr: "temporarily unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.UserMessage()
			if msg == "" {
				t.Fatal("UserMessage returned empty string")
			}
			if !containsAny(msg, tt.wantSubstr) {
				t.Errorf("UserMessage = %q, want to contain %q", msg, tt.wantSubstr)
			}
		})
	}
}

// --- HTTP provider integration tests (using httptest) ---

var testSchema = &Schema{
	Name:        "answer",
	Description: "test answer",
	Body: map[string]any{
		"type":       "object",
		"properties": map[string]any{"ok": map[string]any{"type": "boolean"}},
	},
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		t.Fatalf("decode request body: %v", err)
	}
	return body
}

func TestOpenAIProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %q, want POST", r.Method)
		}
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		body := decodeBody(t, r)
		msgs := body["messages"].([]any)
		if len(msgs) != 3 {
			t.Fatalf("messages = %d, want system + 2", len(msgs))
		}
		if role := msgs[0].(map[string]any)["role"]; role != "system" {
			t.Errorf("first role = %v, want system", role)
		}
		if _, ok := body["response_format"]; ok {
			t.Error("response_format set without a schema")
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"content": "Hello from OpenAI"},
				"finish_reason": "stop",
			}},
			"model": "gpt-4o",
			"usage": map[string]int{"total_tokens": 42},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider("test-key", "gpt-4o", srv.URL)
	result, err := p.Chat(context.Background(), "system", []Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleAssistant, Content: "hello"},
	}, Options{Temperature: 0.7, MaxTokens: 100})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Content != "Hello from OpenAI" {
		t.Errorf("content = %q", result.Content)
	}
	if result.Model != "gpt-4o" {
		t.Errorf("model = %q", result.Model)
	}
	if result.TokensUsed != 42 {
		t.Errorf("tokens = %d", result.TokensUsed)
	}
	if result.StopReason != "stop" {
		t.Errorf("stop_reason = %q", result.StopReason)
	}
}

func TestOpenAIProvider_Schema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		rf, ok := body["response_format"].(map[string]any)
		if !ok {
			t.Fatal("missing response_format")
		}
		if rf["type"] != "json_schema" {
			t.Errorf("response_format.type = %v", rf["type"])
		}
		js := rf["json_schema"].(map[string]any)
		if js["name"] != "answer" || js["strict"] != true {
			t.Errorf("json_schema = %v", js)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]string{"content": `{"ok":true}`},
				"finish_reason": "stop",
			}},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider("", "gpt-4o", srv.URL)
	result, err := p.Chat(context.Background(), "system", []Message{{Role: RoleUser, Content: "q"}}, Options{Schema: testSchema})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Content != `{"ok":true}` {
		t.Errorf("content = %q", result.Content)
	}
}

func TestOpenAIProvider_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"type": "invalid_api_key", "message": "bad key"},
		})
	}))
	defer srv.Close()

	p := NewOpenAIProvider("bad-key", "gpt-4o", srv.URL)
	_, err := p.Chat(context.Background(), "system", []Message{{Role: RoleUser, Content: "q"}}, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.StatusCode != 401 {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
	if apiErr.Provider != "OpenAI" {
		t.Errorf("provider = %q", apiErr.Provider)
	}
	if apiErr.Code != "invalid_api_key" {
		t.Errorf("code = %q", apiErr.Code)
	}
}

func TestAnthropicProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}
		body := decodeBody(t, r)
		if body["system"] != "system" {
			t.Errorf("system = %v", body["system"])
		}
		if _, ok := body["tools"]; ok {
			t.Error("tools set without a schema")
		}

		json.NewEncoder(w).Encode(map[string]any{
			"content":     []map[string]string{{"type": "text", "text": "Hello from Anthropic"}},
			"model":       "claude-sonnet-4-20250514",
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 20},
		})
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "claude-sonnet-4-20250514", srv.URL)
	result, err := p.Chat(context.Background(), "system", []Message{{Role: RoleUser, Content: "hi"}}, Options{Temperature: 0.5, MaxTokens: 100})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Content != "Hello from Anthropic" {
		t.Errorf("content = %q", result.Content)
	}
	if result.TokensUsed != 30 {
		t.Errorf("tokens = %d, want 30", result.TokensUsed)
	}
}

func TestAnthropicProvider_Schema(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body := decodeBody(t, r)
		tools, ok := body["tools"].([]any)
		if !ok || len(tools) != 1 {
			t.Fatalf("tools = %v", body["tools"])
		}
		if tools[0].(map[string]any)["name"] != "answer" {
			t.Errorf("tool = %v", tools[0])
		}
		choice := body["tool_choice"].(map[string]any)
		if choice["type"] != "tool" || choice["name"] != "answer" {
			t.Errorf("tool_choice = %v", choice)
		}

		fmt.Fprint(w, `{
			"content": [
				{"type": "text", "text": "Here you go"},
				{"type": "tool_use", "name": "answer", "input": {"ok": true}}
			],
			"model": "claude",
			"stop_reason": "tool_use",
			"usage": {"input_tokens": 1, "output_tokens": 2}
		}`)
	}))
	defer srv.Close()

	p := NewAnthropicProvider("test-key", "", srv.URL)
	result, err := p.Chat(context.Background(), "system", []Message{{Role: RoleUser, Content: "q"}}, Options{Schema: testSchema})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Content != `{"ok": true}` {
		t.Errorf("content = %q", result.Content)
	}
	if result.StopReason != "tool_use" {
		t.Errorf("stop_reason = %q", result.StopReason)
	}
}

func TestOllamaProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("path = %q", r.URL.Path)
		}
		body := decodeBody(t, r)
		if body["stream"] != false {
			t.Errorf("stream = %v", body["stream"])
		}
		if _, ok := body["format"].(map[string]any); !ok {
			t.Errorf("format = %v, want schema object", body["format"])
		}
		opts := body["options"].(map[string]any)
		if opts["num_predict"] != float64(200) {
			t.Errorf("num_predict = %v", opts["num_predict"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]string{"content": `{"ok":true}`},
			"model":             "llama3",
			"done_reason":       "stop",
			"prompt_eval_count": 5,
			"eval_count":        7,
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3")
	result, err := p.Chat(context.Background(), "system", []Message{{Role: RoleUser, Content: "q"}},
		Options{Temperature: 0.5, MaxTokens: 200, Schema: testSchema})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Content != `{"ok":true}` {
		t.Errorf("content = %q", result.Content)
	}
	if result.Model != "llama3" {
		t.Errorf("model = %q", result.Model)
	}
	if result.TokensUsed != 12 {
		t.Errorf("tokens = %d, want 12", result.TokensUsed)
	}
}

func TestOllamaProvider_Ping(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"models":[]}`)
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL, "llama3")
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestTraced_PassesThrough(t *testing.T) {
	mock := NewMockProvider("hello")
	p := Traced(mock)
	if p.Name() != "Mock" {
		t.Errorf("name = %q", p.Name())
	}
	resp, err := p.Chat(context.Background(), "sys", []Message{{Role: RoleUser, Content: "hi"}}, Options{MaxTokens: 10})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "hello" {
		t.Errorf("content = %q", resp.Content)
	}
	if calls := mock.Calls(); len(calls) != 1 || calls[0].System != "sys" {
		t.Errorf("calls = %+v", calls)
	}

	mock.GenerateErr = errors.New("boom")
	if _, err := p.Chat(context.Background(), "sys", nil, Options{}); err == nil {
		t.Error("expected error to pass through")
	}
}
