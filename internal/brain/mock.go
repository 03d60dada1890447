package brain

import (
	"context"
	"fmt"
	"strings"
)

// MockAdapter provides deterministic local replies when no backend is configured.
type MockAdapter struct{}

func NewMockAdapter() *MockAdapter { return &MockAdapter{} }

func (a *MockAdapter) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	select {
	case <-ctx.Done():
		return CompletionResponse{}, ctx.Err()
	default:
	}

	var lastUser string
	for i := len(req.History) - 1; i >= 0; i-- {
		if req.History[i].Role == RoleUser {
			lastUser = strings.TrimSpace(req.History[i].Content)
			break
		}
	}
	if lastUser == "" {
		return CompletionResponse{Text: "I am listening."}, nil
	}
	return CompletionResponse{Text: fmt.Sprintf("I heard you: %s", lastUser)}, nil
}
