package tools

// Call is one tool invocation requested by the model.
type Call struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// UIAction is a side-effect instruction for the presentation layer,
// returned alongside tool data.
type UIAction struct {
	Action string         `json:"action"`
	Params map[string]any `json:"params,omitempty"`
}

// Result echoes the call id and name. Handler errors are always folded into
// a failed Result, never surfaced as protocol faults.
type Result struct {
	ID      string    `json:"id"`
	Name    string    `json:"name"`
	Success bool      `json:"success"`
	Result  any       `json:"result,omitempty"`
	Error   string    `json:"error,omitempty"`
	UI      *UIAction `json:"ui,omitempty"`
}

// Subject is the caller's identity and session-level flags. Handlers that
// change roles or privilege mode mutate it in place on success; the session
// copies the mutation back into its own state.
type Subject struct {
	UserID     string
	Role       string
	Privileged bool
}

func failed(call Call, msg string) Result {
	return Result{ID: call.ID, Name: call.Name, Success: false, Error: msg}
}
