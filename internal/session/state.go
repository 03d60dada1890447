package session

// State is the client-visible conversation state. Every transition is
// announced with a state event before any event that presumes the new state.
type State string

const (
	StateConnecting State = "connecting"
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateSpeaking   State = "speaking"
	StateExecuting  State = "executing"
	StateError      State = "error"
)

// transitions lists the allowed next states for each state. Error is
// reachable from anywhere; listening is reachable from anywhere because
// barge-in reopens capture from any mid-turn state.
var transitions = map[State][]State{
	StateConnecting: {StateIdle},
	StateIdle:       {StateListening, StateProcessing},
	StateListening:  {StateProcessing, StateIdle},
	StateProcessing: {StateSpeaking, StateExecuting, StateIdle},
	StateExecuting:  {StateProcessing, StateIdle},
	StateSpeaking:   {StateIdle},
	StateError:      {StateIdle, StateListening},
}

// CanTransition reports whether from → to is a legal state change.
func CanTransition(from, to State) bool {
	if from == to {
		return false
	}
	if to == StateError || to == StateListening {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
