package session

import "testing"

func TestCanTransitionHappyPath(t *testing.T) {
	path := []State{StateConnecting, StateIdle, StateListening, StateProcessing, StateExecuting, StateProcessing, StateSpeaking, StateIdle}
	for i := 0; i < len(path)-1; i++ {
		if !CanTransition(path[i], path[i+1]) {
			t.Fatalf("CanTransition(%s, %s) = false, want true", path[i], path[i+1])
		}
	}
}

func TestCanTransitionBargeInFromAnywhere(t *testing.T) {
	for _, from := range []State{StateIdle, StateProcessing, StateSpeaking, StateExecuting, StateError} {
		if !CanTransition(from, StateListening) {
			t.Fatalf("CanTransition(%s, listening) = false, want true", from)
		}
	}
}

func TestCanTransitionErrorFromAnywhere(t *testing.T) {
	for _, from := range []State{StateConnecting, StateIdle, StateListening, StateProcessing, StateSpeaking, StateExecuting} {
		if !CanTransition(from, StateError) {
			t.Fatalf("CanTransition(%s, error) = false, want true", from)
		}
	}
}

func TestCanTransitionRejectsIllegalMoves(t *testing.T) {
	cases := [][2]State{
		{StateConnecting, StateSpeaking},
		{StateIdle, StateSpeaking},
		{StateSpeaking, StateExecuting},
		{StateIdle, StateIdle},
		{StateError, StateSpeaking},
	}
	for _, c := range cases {
		if CanTransition(c[0], c[1]) {
			t.Fatalf("CanTransition(%s, %s) = true, want false", c[0], c[1])
		}
	}
}
