package voice

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

const (
	sttRequestTimeout = 30 * time.Second
	ttsRequestTimeout = 30 * time.Second

	sttMaxAttempts = 2
	sttBackoffBase = 200 * time.Millisecond
	sttBackoffCap  = time.Second
)

// HTTPSTTProvider posts a WAV payload to a request/response transcription
// endpoint and reads back `{"text": ...}` or a plain-text body.
type HTTPSTTProvider struct {
	url    string
	apiKey string
	client *http.Client
}

func NewHTTPSTTProvider(url, apiKey string) *HTTPSTTProvider {
	return &HTTPSTTProvider{
		url:    strings.TrimSpace(url),
		apiKey: strings.TrimSpace(apiKey),
		client: &http.Client{Timeout: sttRequestTimeout},
	}
}

// Transcribe posts the utterance and retries once on retryable statuses.
// Recognition is on the critical path of every turn, so a single quick retry
// is the most we spend here.
func (p *HTTPSTTProvider) Transcribe(ctx context.Context, wav []byte) (string, error) {
	var lastErr error
	for attempt := 0; attempt < sttMaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(reliability.ExponentialBackoff(attempt-1, sttBackoffBase, sttBackoffCap)):
			}
		}
		text, retryable, err := p.transcribeOnce(ctx, wav)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			return "", err
		}
	}
	return "", lastErr
}

func (p *HTTPSTTProvider) transcribeOnce(ctx context.Context, wav []byte) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, sttRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(wav))
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "audio/wav")
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("stt request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return "", true, fmt.Errorf("stt http status %d (retryable): %s", res.StatusCode, string(body))
		}
		return "", false, fmt.Errorf("stt http status %d: %s", res.StatusCode, string(body))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return "", true, fmt.Errorf("read stt response: %w", err)
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		return parsed.Text, false, nil
	}
	return string(body), false, nil
}

// HTTPTTSProvider posts text to a synthesis endpoint and reads back raw
// PCM16LE audio bytes.
type HTTPTTSProvider struct {
	name    string
	url     string
	apiKey  string
	voiceID string
	client  *http.Client
}

func NewHTTPTTSProvider(name, url, apiKey, voiceID string) *HTTPTTSProvider {
	return &HTTPTTSProvider{
		name:    name,
		url:     strings.TrimSpace(url),
		apiKey:  strings.TrimSpace(apiKey),
		voiceID: strings.TrimSpace(voiceID),
		client:  &http.Client{Timeout: ttsRequestTimeout},
	}
}

func (p *HTTPTTSProvider) Name() string { return p.name }

func (p *HTTPTTSProvider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, ttsRequestTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{
		"text":     text,
		"voice_id": p.voiceID,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("X-API-Key", p.apiKey)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		if reliability.IsRetryableHTTPStatus(res.StatusCode) {
			return nil, fmt.Errorf("tts http status %d (retryable): %s", res.StatusCode, string(body))
		}
		return nil, fmt.Errorf("tts http status %d: %s", res.StatusCode, string(body))
	}

	audio, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read tts response: %w", err)
	}
	return audio, nil
}
