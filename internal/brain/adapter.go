package brain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Turn is one entry in the conversation history sent to the reasoning service.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Roles used in conversation history.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// CompletionRequest is the normalized request sent to the reasoning backend.
type CompletionRequest struct {
	SessionID string `json:"session_id"`
	TurnID    string `json:"turn_id"`
	System    string `json:"system,omitempty"`
	History   []Turn `json:"messages"`
}

// CompletionResponse is the backend's raw answer. Text may embed a single
// action block; callers strip it with ParseActionBlock.
type CompletionResponse struct {
	Text string `json:"text"`
}

// Adapter bridges the pipeline with the reasoning service.
type Adapter interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}

// Config controls adapter construction.
type Config struct {
	Mode    string
	HTTPURL string
	Token   string
}

func NewAdapter(cfg Config) (Adapter, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.HTTPURL) != "" {
			return NewHTTPAdapter(cfg.HTTPURL, cfg.Token), nil
		}
		return NewMockAdapter(), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("brain HTTP url is required for http mode")
		}
		return NewHTTPAdapter(cfg.HTTPURL, cfg.Token), nil
	case "mock":
		return NewMockAdapter(), nil
	default:
		return nil, fmt.Errorf("unsupported brain adapter mode %q", cfg.Mode)
	}
}
