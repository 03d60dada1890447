package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sonara-ai/sonara/internal/audio"
	"github.com/sonara-ai/sonara/internal/brain"
	"github.com/sonara-ai/sonara/internal/observability"
	"github.com/sonara-ai/sonara/internal/persona"
	"github.com/sonara-ai/sonara/internal/tools"
	"github.com/sonara-ai/sonara/internal/voice"
)

// Turn completion reasons reported through OnComplete.
const (
	ReasonOK        = "ok"
	ReasonNoSpeech  = "no_speech"
	ReasonCancelled = "cancelled"
	ReasonError     = "error"
	ReasonTTSFailed = "tts_failed"
)

// Capture buffers larger than this are truncated; a runaway client cannot
// grow the buffer without bound.
const captureMaxBytes = 10 << 20

// TurnCallbacks receives turn progress. All callbacks are optional and are
// invoked from the turn goroutine, in order, so a callback that forwards to
// an outbound channel preserves event ordering. OnComplete fires exactly
// once per turn, on every path.
type TurnCallbacks struct {
	OnTranscript       func(text string)
	OnText             func(turnID, text string)
	OnToolCall         func(call tools.Call)
	OnToolConfirmation func(req tools.ConfirmationRequest)
	OnToolResult       func(res tools.Result)
	OnUIAction         func(ui tools.UIAction)
	OnAudioFrame       func(frame []byte)
	OnNoSpeech         func()
	OnError            func(code, source string, retryable bool, detail string)
	OnComplete         func(reason string)
}

func (cb TurnCallbacks) transcript(text string) {
	if cb.OnTranscript != nil {
		cb.OnTranscript(text)
	}
}

func (cb TurnCallbacks) text(turnID, text string) {
	if cb.OnText != nil {
		cb.OnText(turnID, text)
	}
}

func (cb TurnCallbacks) toolCall(call tools.Call) {
	if cb.OnToolCall != nil {
		cb.OnToolCall(call)
	}
}

func (cb TurnCallbacks) toolConfirmation(req tools.ConfirmationRequest) {
	if cb.OnToolConfirmation != nil {
		cb.OnToolConfirmation(req)
	}
}

func (cb TurnCallbacks) toolResult(res tools.Result) {
	if cb.OnToolResult != nil {
		cb.OnToolResult(res)
	}
}

func (cb TurnCallbacks) uiAction(ui tools.UIAction) {
	if cb.OnUIAction != nil {
		cb.OnUIAction(ui)
	}
}

func (cb TurnCallbacks) audioFrame(frame []byte) {
	if cb.OnAudioFrame != nil {
		cb.OnAudioFrame(frame)
	}
}

func (cb TurnCallbacks) noSpeech() {
	if cb.OnNoSpeech != nil {
		cb.OnNoSpeech()
	}
}

func (cb TurnCallbacks) errorEvent(code, source string, retryable bool, detail string) {
	if cb.OnError != nil {
		cb.OnError(code, source, retryable, detail)
	}
}

// Config wires one session's pipeline. STT, Brain, and TTSPrimary are
// required; TTSSecondary and Metrics are optional.
type Config struct {
	SessionID     string
	Subject       *tools.Subject
	Persona       persona.Profile
	STT           voice.STTProvider
	TTSPrimary    voice.TTSProvider
	TTSSecondary  voice.TTSProvider
	Brain         brain.Adapter
	Executor      *tools.Executor
	Confirmations *tools.ConfirmationRegistry
	Metrics       *observability.Metrics

	HistoryWindow int
	ToolLoopLimit int
	ChunkMaxChars int
	FrameBytes    int
	SampleRate    int
}

// Pipeline runs one session's turns: capture, recognition, reasoning, tool
// dispatch, and synthesis. At most one turn runs at a time; the session
// handler enforces that by serializing RunVoiceTurn/RunTextTurn calls.
type Pipeline struct {
	cfg Config

	mu        sync.Mutex
	capturing bool
	capture   []byte
	history   []brain.Turn
	cancel    *atomic.Bool
}

func New(cfg Config) (*Pipeline, error) {
	if cfg.STT == nil || cfg.Brain == nil || cfg.TTSPrimary == nil {
		return nil, fmt.Errorf("pipeline for session %s is missing a required provider", cfg.SessionID)
	}
	if cfg.Subject == nil {
		return nil, fmt.Errorf("pipeline for session %s has no subject", cfg.SessionID)
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("pipeline for session %s has no tool executor", cfg.SessionID)
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 10
	}
	if cfg.ToolLoopLimit <= 0 {
		cfg.ToolLoopLimit = 5
	}
	if cfg.ChunkMaxChars <= 0 {
		cfg.ChunkMaxChars = 500
	}
	if cfg.FrameBytes <= 0 || cfg.FrameBytes > 16<<10 {
		cfg.FrameBytes = 16 << 10
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Pipeline{cfg: cfg}, nil
}

// StartCapture opens the audio capture buffer for the next utterance.
// Frames that arrive while capture is closed are dropped by the caller.
func (p *Pipeline) StartCapture() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.capturing = true
	p.capture = p.capture[:0]
}

// AppendAudio adds one raw PCM frame to the open capture buffer. It reports
// whether the frame was accepted.
func (p *Pipeline) AppendAudio(frame []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.capturing {
		return false
	}
	if len(p.capture)+len(frame) > captureMaxBytes {
		return false
	}
	p.capture = append(p.capture, frame...)
	return true
}

// Capturing reports whether the capture buffer is open.
func (p *Pipeline) Capturing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capturing
}

// flushCapture closes capture and returns the buffered utterance.
func (p *Pipeline) flushCapture() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.capturing = false
	out := make([]byte, len(p.capture))
	copy(out, p.capture)
	p.capture = p.capture[:0]
	return out
}

// beginTurn installs a fresh cancellation token for the starting turn. Each
// turn owns its token: cancelling one turn can never be undone by a later
// turn starting.
func (p *Pipeline) beginTurn() *atomic.Bool {
	token := new(atomic.Bool)
	p.mu.Lock()
	p.cancel = token
	p.mu.Unlock()
	return token
}

// Cancel interrupts the in-flight turn. Cancellation is cooperative: the
// turn goroutine checks its token at chunk and frame boundaries, so an
// in-flight provider call completes and its result is discarded. No audio
// frame is emitted after the check that observes the token.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	token := p.cancel
	p.mu.Unlock()
	if token != nil {
		token.Store(true)
	}
}

// Greeting returns the persona greeting spoken when the session opens.
func (p *Pipeline) Greeting() string {
	return p.cfg.Persona.Greeting
}

// RunVoiceTurn flushes the capture buffer, transcribes it, and runs the
// conversation turn. An empty transcript ends the turn without touching the
// reasoning backend.
func (p *Pipeline) RunVoiceTurn(ctx context.Context, turnID string, cb TurnCallbacks) {
	cancelled := p.beginTurn()
	started := time.Now()
	complete := p.completer(cb, started)

	pcm := p.flushCapture()
	if len(pcm) == 0 {
		cb.noSpeech()
		complete(ReasonNoSpeech)
		return
	}

	wav, err := audio.EncodeWAVPCM16LE(pcm, p.cfg.SampleRate)
	if err != nil {
		cb.errorEvent("stt_encode_failed", "stt", false, err.Error())
		complete(ReasonError)
		return
	}

	transcript, err := p.cfg.STT.Transcribe(ctx, wav)
	if err != nil {
		log.Printf("session %s: transcription failed: %v", p.cfg.SessionID, err)
		p.providerError("stt", err)
		cb.errorEvent("stt_failed", "stt", true, err.Error())
		complete(ReasonError)
		return
	}
	if cancelled.Load() {
		complete(ReasonCancelled)
		return
	}

	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		cb.noSpeech()
		complete(ReasonNoSpeech)
		return
	}

	cb.transcript(transcript)
	p.runTurn(ctx, turnID, transcript, cb, complete, started, cancelled)
}

// RunTextTurn runs a typed turn, bypassing capture and recognition.
func (p *Pipeline) RunTextTurn(ctx context.Context, turnID, text string, cb TurnCallbacks) {
	cancelled := p.beginTurn()
	started := time.Now()
	complete := p.completer(cb, started)

	text = strings.TrimSpace(text)
	if text == "" {
		cb.noSpeech()
		complete(ReasonNoSpeech)
		return
	}
	p.runTurn(ctx, turnID, text, cb, complete, started, cancelled)
}

// completer wraps OnComplete so it fires exactly once and records turn
// metrics alongside.
func (p *Pipeline) completer(cb TurnCallbacks, started time.Time) func(string) {
	var once sync.Once
	return func(reason string) {
		once.Do(func() {
			if m := p.cfg.Metrics; m != nil {
				m.TurnsCompleted.WithLabelValues(reason).Inc()
				m.ObserveTurnDuration(time.Since(started))
			}
			if cb.OnComplete != nil {
				cb.OnComplete(reason)
			}
		})
	}
}

func (p *Pipeline) runTurn(ctx context.Context, turnID, userText string, cb TurnCallbacks, complete func(string), started time.Time, cancelled *atomic.Bool) {
	p.appendHistory(brain.Turn{Role: brain.RoleUser, Content: userText})

	finalText := ""
	for hop := 0; ; hop++ {
		if hop >= p.cfg.ToolLoopLimit {
			finalText = "I tried a few things but couldn't finish that request. Could you ask another way?"
			break
		}

		resp, err := p.cfg.Brain.Complete(ctx, brain.CompletionRequest{
			SessionID: p.cfg.SessionID,
			TurnID:    turnID,
			System:    p.cfg.Persona.SystemPrompt,
			History:   p.snapshotHistory(),
		})
		if err != nil {
			log.Printf("session %s: completion failed: %v", p.cfg.SessionID, err)
			p.providerError("brain", err)
			cb.errorEvent("brain_failed", "brain", true, err.Error())
			complete(ReasonError)
			return
		}
		if cancelled.Load() {
			complete(ReasonCancelled)
			return
		}

		// Refusal interception runs before action detection: a refusal that
		// happens to wrap an action block is still a refusal.
		if IsRefusal(resp.Text) {
			finalText = FallbackResponse(userText, p.cfg.Persona.DisplayName)
			break
		}

		req, cleaned, found := brain.ParseActionBlock(resp.Text)
		if !found {
			finalText = cleaned
			break
		}

		call := tools.Call{ID: uuid.NewString(), Name: req.Name, Arguments: req.Arguments}
		cb.toolCall(call)
		if spec, ok := tools.NeedsConfirmation(call.Name); ok && p.cfg.Confirmations != nil {
			cb.toolConfirmation(p.cfg.Confirmations.Add(call.ID, spec))
		}

		res := p.cfg.Executor.Execute(ctx, call, p.cfg.Subject)
		p.countToolCall(res)
		cb.toolResult(res)
		if res.UI != nil {
			cb.uiAction(*res.UI)
		}
		if cancelled.Load() {
			complete(ReasonCancelled)
			return
		}

		p.appendHistory(brain.Turn{Role: brain.RoleTool, Content: encodeToolTurn(res)})
		if cleaned != "" {
			finalText = cleaned
		}
	}

	finalText = strings.TrimSpace(finalText)
	if finalText == "" {
		finalText = FallbackResponse(userText, p.cfg.Persona.DisplayName)
	}
	p.appendHistory(brain.Turn{Role: brain.RoleAssistant, Content: finalText})

	if cancelled.Load() {
		complete(ReasonCancelled)
		return
	}
	cb.text(turnID, finalText)

	complete(p.speak(ctx, finalText, cb, started, cancelled))
}

// speak synthesizes the final text chunk by chunk and streams bounded audio
// frames. The primary synthesizer is tried first; after its first failure the
// remaining chunks go to the secondary. It returns the completion reason.
func (p *Pipeline) speak(ctx context.Context, text string, cb TurnCallbacks, started time.Time, cancelled *atomic.Bool) string {
	spoken := sanitizeSpeechText(text)
	if spoken == "" {
		return ReasonOK
	}

	provider := p.cfg.TTSPrimary
	firstFrame := true
	for _, chunk := range ChunkText(spoken, p.cfg.ChunkMaxChars) {
		if cancelled.Load() {
			return ReasonCancelled
		}

		pcm, err := provider.Synthesize(ctx, chunk)
		if err != nil {
			log.Printf("session %s: synthesis via %s failed: %v", p.cfg.SessionID, provider.Name(), err)
			p.providerError(provider.Name(), err)
			if provider == p.cfg.TTSPrimary && p.cfg.TTSSecondary != nil {
				provider = p.cfg.TTSSecondary
				pcm, err = provider.Synthesize(ctx, chunk)
			}
			if err != nil {
				if provider != p.cfg.TTSPrimary {
					p.providerError(provider.Name(), err)
				}
				cb.errorEvent("tts_failed", "tts", true, err.Error())
				return ReasonTTSFailed
			}
		}
		if cancelled.Load() {
			return ReasonCancelled
		}

		for off := 0; off < len(pcm); off += p.cfg.FrameBytes {
			if cancelled.Load() {
				return ReasonCancelled
			}
			end := off + p.cfg.FrameBytes
			if end > len(pcm) {
				end = len(pcm)
			}
			if firstFrame {
				firstFrame = false
				if m := p.cfg.Metrics; m != nil {
					m.ObserveFirstAudioLatency(time.Since(started))
				}
			}
			cb.audioFrame(pcm[off:end])
		}
	}
	return ReasonOK
}

func (p *Pipeline) appendHistory(turn brain.Turn) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.history = append(p.history, turn)
	if max := p.cfg.HistoryWindow * 2; len(p.history) > max {
		p.history = append(p.history[:0], p.history[len(p.history)-max:]...)
	}
}

func (p *Pipeline) snapshotHistory() []brain.Turn {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]brain.Turn, len(p.history))
	copy(out, p.history)
	return out
}

func (p *Pipeline) providerError(provider string, err error) {
	if m := p.cfg.Metrics; m != nil {
		m.ProviderErrors.WithLabelValues(provider, errorCode(err)).Inc()
	}
}

func (p *Pipeline) countToolCall(res tools.Result) {
	if m := p.cfg.Metrics; m != nil {
		outcome := "ok"
		if !res.Success {
			outcome = "failed"
		}
		m.ToolCalls.WithLabelValues(res.Name, outcome).Inc()
	}
}

func errorCode(err error) string {
	if err == nil {
		return "none"
	}
	if strings.Contains(err.Error(), "context deadline exceeded") {
		return "timeout"
	}
	return "error"
}

// encodeToolTurn folds a tool result into a history entry the reasoning
// backend can read back.
func encodeToolTurn(res tools.Result) string {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Sprintf(`{"id":%q,"name":%q,"success":%v}`, res.ID, res.Name, res.Success)
	}
	return string(payload)
}
