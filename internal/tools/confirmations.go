package tools

import (
	"sync"
	"time"
)

// ConfirmationRequest is a pending client-facing confirmation prompt.
type ConfirmationRequest struct {
	ToolCallID string
	Message    string
	Severity   string
	ExpiresAt  time.Time
}

// ConfirmationRegistry holds pending confirmation prompts with a fixed TTL.
// Each request is consumed at most once: confirm or deny removes it, and
// expired entries are evicted on lookup and by Sweep.
type ConfirmationRegistry struct {
	mu      sync.Mutex
	ttl     time.Duration
	pending map[string]ConfirmationRequest
}

func NewConfirmationRegistry(ttl time.Duration) *ConfirmationRegistry {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ConfirmationRegistry{
		ttl:     ttl,
		pending: make(map[string]ConfirmationRequest),
	}
}

// Add registers a prompt for the tool call and returns it with its expiry set.
func (r *ConfirmationRegistry) Add(toolCallID string, spec ConfirmationSpec) ConfirmationRequest {
	req := ConfirmationRequest{
		ToolCallID: toolCallID,
		Message:    spec.Message,
		Severity:   spec.Severity,
		ExpiresAt:  time.Now().Add(r.ttl),
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[toolCallID] = req
	return req
}

// Consume removes and returns the pending request, if still live.
func (r *ConfirmationRegistry) Consume(toolCallID string) (ConfirmationRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.pending[toolCallID]
	if !ok {
		return ConfirmationRequest{}, false
	}
	delete(r.pending, toolCallID)
	if time.Now().After(req.ExpiresAt) {
		return ConfirmationRequest{}, false
	}
	return req, true
}

// Sweep evicts expired prompts and returns how many were removed.
func (r *ConfirmationRegistry) Sweep() int {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, req := range r.pending {
		if now.After(req.ExpiresAt) {
			delete(r.pending, id)
			removed++
		}
	}
	return removed
}

// Pending reports how many prompts are outstanding.
func (r *ConfirmationRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
