package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// defaultHTTPTimeout bounds a single provider request. Plan generation with
// structured output can take minutes on slower models.
const defaultHTTPTimeout = 5 * time.Minute

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 8 << 20

// postJSON sends body to url and returns the raw response body and status.
func postJSON(ctx context.Context, client *http.Client, tag, url string, headers map[string]string, body any) ([]byte, int, time.Duration, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("llm/%s: marshal request: %w", tag, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("llm/%s: create request: %w", tag, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("llm/%s: request failed: %w", tag, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, 0, fmt.Errorf("llm/%s: read response: %w", tag, err)
	}
	return raw, resp.StatusCode, time.Since(start), nil
}
