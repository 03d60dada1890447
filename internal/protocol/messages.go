package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket text payload variants. Raw binary frames
// carry PCM audio client→server and synthesized audio server→client and are
// not enveloped.
type MessageType string

const (
	// Client → server control messages.
	TypeStart      MessageType = "start"
	TypeStop       MessageType = "stop"
	TypeBargeIn    MessageType = "barge_in"
	TypeText       MessageType = "text"
	TypeToolResult MessageType = "tool_result"

	// Server → client events.
	TypeState                MessageType = "state"
	TypeASRPartial           MessageType = "asr_partial"
	TypeASRFinal             MessageType = "asr_final"
	TypeAgentTextPartial     MessageType = "agent_text_partial"
	TypeAgentTextFinal       MessageType = "agent_text_final"
	TypeToolCall             MessageType = "tool_call"
	TypeToolCallConfirmation MessageType = "tool_call_requires_confirmation"
	TypeToolResultEvent      MessageType = "tool_result"
	TypeUIAction             MessageType = "ui_action"
	TypeError                MessageType = "error"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// Start begins audio capture for the next turn.
type Start struct {
	Type       MessageType `json:"type"`
	SampleRate int         `json:"sample_rate,omitempty"`
}

// Stop ends audio capture and triggers recognition.
type Stop struct {
	Type MessageType `json:"type"`
}

// BargeIn interrupts in-flight synthesis.
type BargeIn struct {
	Type MessageType `json:"type"`
}

// Text submits a direct text turn, bypassing speech recognition.
type Text struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

// ToolResultAck is a client echo of a delivered tool result, kept for
// telemetry only; it never changes session state.
type ToolResultAck struct {
	Type       MessageType `json:"type"`
	ToolCallID string      `json:"tool_call_id"`
}

// StateEvent announces a session state transition. This is the authoritative
// client-visible signal for whether the agent is currently talking.
type StateEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	State     string      `json:"state"`
	TurnID    string      `json:"turn_id,omitempty"`
}

type ASRPartial struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type ASRFinal struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type AgentTextPartial struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	TextDelta string      `json:"text_delta"`
}

type AgentTextFinal struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	TurnID    string      `json:"turn_id"`
	Text      string      `json:"text"`
}

type ToolCallEvent struct {
	Type       MessageType    `json:"type"`
	SessionID  string         `json:"session_id"`
	ToolCallID string         `json:"tool_call_id"`
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments,omitempty"`
}

type ToolCallConfirmation struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id"`
	ToolCallID string      `json:"tool_call_id"`
	Message    string      `json:"message"`
	Severity   string      `json:"severity"`
	ExpiresAt  int64       `json:"expires_at_ms"`
}

type ToolResultEvent struct {
	Type       MessageType `json:"type"`
	SessionID  string      `json:"session_id"`
	ToolCallID string      `json:"tool_call_id"`
	Name       string      `json:"name"`
	Success    bool        `json:"success"`
	Result     any         `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
}

type UIActionEvent struct {
	Type      MessageType    `json:"type"`
	SessionID string         `json:"session_id"`
	Action    string         `json:"action"`
	Params    map[string]any `json:"params,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes a client text frame into its typed form.
// Unknown or malformed messages return an error; the caller reports them to
// the client without closing the connection.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeStart:
		var msg Start
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SampleRate < 0 {
			return nil, errors.New("invalid start: negative sample_rate")
		}
		return msg, nil
	case TypeStop:
		var msg Stop
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeBargeIn:
		var msg BargeIn
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeText:
		var msg Text
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Text == "" {
			return nil, errors.New("invalid text: empty text")
		}
		return msg, nil
	case TypeToolResult:
		var msg ToolResultAck
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.ToolCallID == "" {
			return nil, errors.New("invalid tool_result: missing tool_call_id")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
