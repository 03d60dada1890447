package brain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sonara-ai/sonara/internal/reliability"
)

// HTTPAdapter forwards requests to a text-completion HTTP endpoint.
type HTTPAdapter struct {
	url    string
	token  string
	client *http.Client
}

func NewHTTPAdapter(url, token string) *HTTPAdapter {
	return &HTTPAdapter{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

func (a *HTTPAdapter) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.token)
	}

	res, err := a.client.Do(httpReq)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return CompletionResponse{}, fmt.Errorf("brain http status %d (retryable): %s", res.StatusCode, string(body))
		}
		return CompletionResponse{}, fmt.Errorf("brain http status %d: %s", res.StatusCode, string(body))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return CompletionResponse{}, fmt.Errorf("read response: %w", err)
	}

	var out CompletionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		// Plain-text backends are accepted as-is.
		text := strings.TrimSpace(string(body))
		if text == "" {
			return CompletionResponse{}, fmt.Errorf("empty brain response")
		}
		return CompletionResponse{Text: text}, nil
	}
	return out, nil
}
