package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sonara-ai/sonara/internal/brain"
	"github.com/sonara-ai/sonara/internal/persona"
	"github.com/sonara-ai/sonara/internal/pipeline"
	"github.com/sonara-ai/sonara/internal/protocol"
	"github.com/sonara-ai/sonara/internal/tools"
	"github.com/sonara-ai/sonara/internal/vault"
	"github.com/sonara-ai/sonara/internal/voice"
)

// stubBrain answers with a fixed text, optionally blocking until released.
// When texts is set each call answers with the next entry, the last one
// repeating.
type stubBrain struct {
	mu      sync.Mutex
	text    string
	texts   []string
	calls   int
	release chan struct{}
}

func (b *stubBrain) Complete(ctx context.Context, _ brain.CompletionRequest) (brain.CompletionResponse, error) {
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return brain.CompletionResponse{}, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if len(b.texts) > 0 {
		i := b.calls - 1
		if i >= len(b.texts) {
			i = len(b.texts) - 1
		}
		return brain.CompletionResponse{Text: b.texts[i]}, nil
	}
	text := b.text
	if text == "" {
		text = "Here is a plain answer for the test."
	}
	return brain.CompletionResponse{Text: text}, nil
}

func testHandler(t *testing.T, b brain.Adapter, transcripts ...string) (*Handler, *Manager) {
	t.Helper()
	store := vault.NewInMemoryStore()
	sub := &tools.Subject{UserID: "u-1", Role: "user"}
	p, err := pipeline.New(pipeline.Config{
		SessionID:  "sess-1",
		Subject:    sub,
		Persona:    persona.DefaultProfile(),
		STT:        voice.NewMockSTTProvider(transcripts...),
		TTSPrimary: voice.NewMockTTSProvider(),
		Brain:      b,
		Executor:   tools.NewExecutor(store),
		FrameBytes: 2048,
	})
	if err != nil {
		t.Fatalf("pipeline.New() error = %v", err)
	}

	m := NewManager(time.Minute)
	s := m.Create("u-1", "user", "default", nil)
	h := NewHandler(HandlerConfig{
		SessionID:     s.ID,
		Manager:       m,
		Pipeline:      p,
		Confirmations: tools.NewConfirmationRegistry(time.Minute),
	})
	return h, m
}

// collectUntilIdle drains outbound events until the idle state event arrives.
func collectUntilIdle(t *testing.T, h *Handler) []Outbound {
	t.Helper()
	var out []Outbound
	deadline := time.After(3 * time.Second)
	for {
		select {
		case o := <-h.Events():
			out = append(out, o)
			if ev, ok := o.Event.(protocol.StateEvent); ok && ev.State == string(StateIdle) {
				return out
			}
		case <-deadline:
			t.Fatalf("timed out waiting for idle; got %d events", len(out))
		}
	}
}

func drainOne(t *testing.T, h *Handler) Outbound {
	t.Helper()
	select {
	case o := <-h.Events():
		return o
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for an event")
		return Outbound{}
	}
}

func statesOf(events []Outbound) []string {
	var states []string
	for _, o := range events {
		if ev, ok := o.Event.(protocol.StateEvent); ok {
			states = append(states, ev.State)
		}
	}
	return states
}

func TestHandlerStartEmitsIdleAndGreeting(t *testing.T) {
	h, _ := testHandler(t, &stubBrain{})
	h.Start()

	first := drainOne(t, h)
	if ev, ok := first.Event.(protocol.StateEvent); !ok || ev.State != string(StateIdle) {
		t.Fatalf("first event = %+v, want idle state", first.Event)
	}
	second := drainOne(t, h)
	greet, ok := second.Event.(protocol.AgentTextFinal)
	if !ok || greet.Text == "" {
		t.Fatalf("second event = %+v, want greeting text", second.Event)
	}
	h.Close()
}

func TestHandlerVoiceTurnFlow(t *testing.T) {
	h, _ := testHandler(t, &stubBrain{text: "The answer is forty two."}, "what is the answer")
	h.Start()
	drainOne(t, h) // idle
	drainOne(t, h) // greeting

	ctx := context.Background()
	h.HandleText(ctx, []byte(`{"type":"start"}`))
	h.HandleAudio(make([]byte, 3200))
	h.HandleText(ctx, []byte(`{"type":"stop"}`))

	events := collectUntilIdle(t, h)
	h.Close()

	states := statesOf(events)
	want := []string{"listening", "processing", "speaking", "idle"}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}

	sawTranscript, sawText := false, false
	lastAudio, idleAt := -1, -1
	for i, o := range events {
		if len(o.Audio) > 0 {
			lastAudio = i
		}
		switch ev := o.Event.(type) {
		case protocol.ASRFinal:
			sawTranscript = ev.Text == "what is the answer"
		case protocol.AgentTextFinal:
			sawText = ev.Text == "The answer is forty two."
		case protocol.StateEvent:
			if ev.State == string(StateIdle) {
				idleAt = i
			}
		}
	}
	if !sawTranscript || !sawText {
		t.Fatalf("missing transcript/text events")
	}
	if lastAudio < 0 {
		t.Fatalf("no audio frames emitted")
	}
	if idleAt < lastAudio {
		t.Fatalf("idle at %d before last audio frame at %d", idleAt, lastAudio)
	}
}

func TestHandlerAudioDroppedWhenNotCapturing(t *testing.T) {
	h, _ := testHandler(t, &stubBrain{}, "anything")
	h.Start()
	drainOne(t, h)
	drainOne(t, h)

	ctx := context.Background()
	h.HandleAudio(make([]byte, 640)) // before start: dropped
	h.HandleText(ctx, []byte(`{"type":"start"}`))
	h.HandleText(ctx, []byte(`{"type":"stop"}`))

	events := collectUntilIdle(t, h)
	h.Close()

	sawNoSpeech := false
	for _, o := range events {
		if ev, ok := o.Event.(protocol.ErrorEvent); ok && ev.Code == "no_speech" {
			sawNoSpeech = true
		}
	}
	if !sawNoSpeech {
		t.Fatalf("dropped audio should yield a no_speech turn")
	}
}

func TestHandlerStopWithoutStartIsProtocolError(t *testing.T) {
	h, _ := testHandler(t, &stubBrain{})
	h.Start()
	drainOne(t, h)
	drainOne(t, h)

	h.HandleText(context.Background(), []byte(`{"type":"stop"}`))
	o := drainOne(t, h)
	ev, ok := o.Event.(protocol.ErrorEvent)
	if !ok || ev.Code != "not_listening" {
		t.Fatalf("event = %+v, want not_listening error", o.Event)
	}
	h.Close()
}

func TestHandlerUnknownMessageType(t *testing.T) {
	h, _ := testHandler(t, &stubBrain{})
	h.Start()
	drainOne(t, h)
	drainOne(t, h)

	h.HandleText(context.Background(), []byte(`{"type":"warp_drive"}`))
	o := drainOne(t, h)
	ev, ok := o.Event.(protocol.ErrorEvent)
	if !ok || ev.Code != "unsupported_type" {
		t.Fatalf("event = %+v, want unsupported_type error", o.Event)
	}
	h.Close()
}

func TestHandlerBusyRejectsOverlappingTextTurn(t *testing.T) {
	b := &stubBrain{release: make(chan struct{})}
	h, _ := testHandler(t, b)
	h.Start()
	drainOne(t, h)
	drainOne(t, h)

	ctx := context.Background()
	h.HandleText(ctx, []byte(`{"type":"text","text":"first question"}`))
	drainOne(t, h) // processing state

	h.HandleText(ctx, []byte(`{"type":"text","text":"second question"}`))
	o := drainOne(t, h)
	ev, ok := o.Event.(protocol.ErrorEvent)
	if !ok || ev.Code != "busy" {
		t.Fatalf("event = %+v, want busy error", o.Event)
	}

	close(b.release)
	collectUntilIdle(t, h)
	h.Close()
}

func TestHandlerBargeInInterruptsAndListens(t *testing.T) {
	b := &stubBrain{release: make(chan struct{})}
	h, m := testHandler(t, b)
	h.Start()
	drainOne(t, h)
	drainOne(t, h)

	ctx := context.Background()
	h.HandleText(ctx, []byte(`{"type":"text","text":"tell me a long story"}`))
	drainOne(t, h) // processing state

	h.HandleText(ctx, []byte(`{"type":"barge_in"}`))
	o := drainOne(t, h)
	if ev, ok := o.Event.(protocol.StateEvent); !ok || ev.State != string(StateListening) {
		t.Fatalf("event = %+v, want listening state", o.Event)
	}

	close(b.release)
	time.Sleep(50 * time.Millisecond)
	h.Close()

	if got := h.CurrentState(); got != StateListening {
		t.Fatalf("state after barge-in = %s, want listening", got)
	}
	for o := range h.Events() {
		if len(o.Audio) > 0 {
			t.Fatalf("audio emitted after barge-in")
		}
		if ev, ok := o.Event.(protocol.StateEvent); ok && ev.State == string(StateIdle) {
			t.Fatalf("idle state emitted after barge-in moved to listening")
		}
	}

	s, err := m.Get(h.cfg.SessionID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if s.InterruptionCount != 1 {
		t.Fatalf("InterruptionCount = %d, want 1", s.InterruptionCount)
	}
}

// A stop that lands while the interrupted turn is still draining must not
// launch a second turn on top of it; the retry succeeds once the old turn
// has finished, and nothing from the old turn ever reaches the client.
func TestHandlerStopDuringDrainingTurnIsBusy(t *testing.T) {
	b := &stubBrain{
		texts:   []string{"The first answer must never surface.", "The second answer comes through."},
		release: make(chan struct{}),
	}
	h, _ := testHandler(t, b, "a follow up question")
	h.Start()
	drainOne(t, h) // idle
	drainOne(t, h) // greeting

	ctx := context.Background()
	h.HandleText(ctx, []byte(`{"type":"text","text":"tell me a long story"}`))
	drainOne(t, h) // processing

	h.HandleText(ctx, []byte(`{"type":"barge_in"}`))
	drainOne(t, h) // listening

	h.HandleAudio(make([]byte, 3200))
	h.HandleText(ctx, []byte(`{"type":"stop"}`))
	o := drainOne(t, h)
	if ev, ok := o.Event.(protocol.ErrorEvent); !ok || ev.Code != "busy" {
		t.Fatalf("event = %+v, want busy error", o.Event)
	}

	close(b.release)

	var events []Outbound
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.HandleText(ctx, []byte(`{"type":"stop"}`))
		o := drainOne(t, h)
		if ev, ok := o.Event.(protocol.ErrorEvent); ok && ev.Code == "busy" {
			if time.Now().After(deadline) {
				t.Fatalf("stop still busy after the interrupted turn finished")
			}
			time.Sleep(10 * time.Millisecond)
			continue
		}
		events = append(events, o)
		break
	}
	events = append(events, collectUntilIdle(t, h)...)
	h.Close()

	sawSecond, frames := false, 0
	for _, o := range events {
		if len(o.Audio) > 0 {
			frames++
		}
		if ev, ok := o.Event.(protocol.AgentTextFinal); ok {
			if ev.Text == b.texts[0] {
				t.Fatalf("interrupted turn's text surfaced: %q", ev.Text)
			}
			if ev.Text == b.texts[1] {
				sawSecond = true
			}
		}
	}
	if !sawSecond {
		t.Fatalf("second turn's answer never arrived")
	}
	if frames == 0 {
		t.Fatalf("second turn produced no audio")
	}
}

// State events carry the client's view of the machine and must never be
// dropped, even when the outbound queue is saturated with droppable frames.
func TestHandlerStateEventSurvivesSaturatedQueue(t *testing.T) {
	h, _ := testHandler(t, &stubBrain{})
	ctx := context.Background()
	for i := 0; i < outboundBuffer+64; i++ {
		h.HandleText(ctx, []byte(`{"type":"warp_drive"}`))
	}

	done := make(chan struct{})
	go func() {
		h.Start() // must not give up on the idle state event
		close(done)
	}()

	sawIdle := false
	deadline := time.After(3 * time.Second)
	for !sawIdle {
		select {
		case o := <-h.Events():
			if ev, ok := o.Event.(protocol.StateEvent); ok && ev.State == string(StateIdle) {
				sawIdle = true
			}
		case <-deadline:
			t.Fatalf("idle state event never arrived")
		}
	}
	<-done
	h.Close()
	for range h.Events() {
	}
}

func TestHandlerCloseIsIdempotentAndDrains(t *testing.T) {
	h, _ := testHandler(t, &stubBrain{})
	h.Start()
	h.Close()
	h.Close()
	for range h.Events() {
	}
}
