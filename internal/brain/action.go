package brain

import (
	"encoding/json"
	"strings"
)

// ActionRequest is a structured tool invocation embedded in model output.
type ActionRequest struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

const (
	actionOpenTag  = "<tool_call>"
	actionCloseTag = "</tool_call>"
)

// ParseActionBlock extracts the first recognized action block from model
// output. It returns the request, the text with the block removed, and
// whether a block was found. A block whose payload does not decode, or that
// carries no tool name, is treated as plain text and left untouched.
func ParseActionBlock(text string) (ActionRequest, string, bool) {
	start := strings.Index(text, actionOpenTag)
	if start < 0 {
		return ActionRequest{}, text, false
	}
	rest := text[start+len(actionOpenTag):]
	end := strings.Index(rest, actionCloseTag)
	if end < 0 {
		return ActionRequest{}, text, false
	}

	payload := strings.TrimSpace(rest[:end])
	var req ActionRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return ActionRequest{}, text, false
	}
	if strings.TrimSpace(req.Name) == "" {
		return ActionRequest{}, text, false
	}
	if req.Arguments == nil {
		req.Arguments = map[string]any{}
	}

	cleaned := text[:start] + rest[end+len(actionCloseTag):]
	return req, strings.TrimSpace(cleaned), true
}
