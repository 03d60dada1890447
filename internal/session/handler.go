package session

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/sonara-ai/sonara/internal/observability"
	"github.com/sonara-ai/sonara/internal/pipeline"
	"github.com/sonara-ai/sonara/internal/protocol"
	"github.com/sonara-ai/sonara/internal/tools"
)

// Outbound is one server→client frame. Audio carries a raw binary frame;
// otherwise Event is marshalled as a JSON text frame.
type Outbound struct {
	Audio []byte
	Event any
}

// outboundBuffer bounds the event queue toward a slow client. The writer
// pump normally drains far faster than turns produce.
const outboundBuffer = 512

// HandlerConfig wires one connection's handler.
type HandlerConfig struct {
	SessionID     string
	Manager       *Manager
	Pipeline      *pipeline.Pipeline
	Confirmations *tools.ConfirmationRegistry
	Metrics       *observability.Metrics
}

// Handler owns one connection's conversation state machine. The transport
// feeds it decoded text frames and raw audio frames from its read loop and
// drains Events() from its write loop. All state changes happen either on
// the read-loop goroutine or inside turn callbacks, guarded by mu.
type Handler struct {
	cfg HandlerConfig

	mu         sync.Mutex
	state      State
	turnActive bool
	turnID     string

	wg        sync.WaitGroup
	out       chan Outbound
	closed    chan struct{}
	closeOnce sync.Once
}

func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		cfg:    cfg,
		state:  StateConnecting,
		out:    make(chan Outbound, outboundBuffer),
		closed: make(chan struct{}),
	}
}

// Events is drained by the transport's write loop. The channel is closed by
// Close after the in-flight turn has finished.
func (h *Handler) Events() <-chan Outbound {
	return h.out
}

// Start announces the session as ready and delivers the persona greeting.
func (h *Handler) Start() {
	h.mu.Lock()
	h.setStateLocked(StateIdle, "")
	h.mu.Unlock()

	if greeting := h.cfg.Pipeline.Greeting(); greeting != "" {
		h.emit(Outbound{Event: protocol.AgentTextFinal{
			Type:      protocol.TypeAgentTextFinal,
			SessionID: h.cfg.SessionID,
			TurnID:    "welcome",
			Text:      greeting,
		}})
	}
}

// Close cancels the in-flight turn, waits for it to drain, and closes the
// event channel.
func (h *Handler) Close() {
	h.closeOnce.Do(func() {
		close(h.closed)
		h.cfg.Pipeline.Cancel()
		h.wg.Wait()
		close(h.out)
	})
}

// HandleAudio accepts one raw PCM frame. Frames that arrive while capture is
// closed are dropped silently.
func (h *Handler) HandleAudio(frame []byte) {
	h.cfg.Pipeline.AppendAudio(frame)
}

// HandleText dispatches one decoded client control message.
func (h *Handler) HandleText(ctx context.Context, raw []byte) {
	msg, err := protocol.ParseClientMessage(raw)
	if err != nil {
		if errors.Is(err, protocol.ErrUnsupportedType) {
			h.protocolError("unsupported_type", err.Error())
			return
		}
		h.protocolError("malformed_message", err.Error())
		return
	}

	if h.cfg.Manager != nil {
		_ = h.cfg.Manager.Touch(h.cfg.SessionID)
	}

	switch m := msg.(type) {
	case protocol.Start:
		h.handleStart()
	case protocol.Stop:
		h.handleStop(ctx)
	case protocol.BargeIn:
		h.handleBargeIn()
	case protocol.Text:
		h.handleTextTurn(ctx, m.Text)
	case protocol.ToolResultAck:
		h.handleToolResultAck(m)
	}
}

func (h *Handler) handleStart() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.turnActive {
		h.busy()
		return
	}
	h.cfg.Pipeline.StartCapture()
	h.setStateLocked(StateListening, "")
}

func (h *Handler) handleStop(ctx context.Context) {
	h.mu.Lock()
	if h.turnActive {
		h.busy()
		h.mu.Unlock()
		return
	}
	if h.state != StateListening {
		h.mu.Unlock()
		h.protocolError("not_listening", "stop received outside of capture")
		return
	}
	turnID := uuid.NewString()
	h.turnActive = true
	h.turnID = turnID
	h.setStateLocked(StateProcessing, turnID)
	h.mu.Unlock()

	if h.cfg.Manager != nil {
		_ = h.cfg.Manager.StartTurn(h.cfg.SessionID, turnID)
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.cfg.Pipeline.RunVoiceTurn(ctx, turnID, h.turnCallbacks(turnID))
	}()
}

func (h *Handler) handleTextTurn(ctx context.Context, text string) {
	h.mu.Lock()
	if h.turnActive {
		h.busy()
		h.mu.Unlock()
		return
	}
	turnID := uuid.NewString()
	h.turnActive = true
	h.turnID = turnID
	h.setStateLocked(StateProcessing, turnID)
	h.mu.Unlock()

	if h.cfg.Manager != nil {
		_ = h.cfg.Manager.StartTurn(h.cfg.SessionID, turnID)
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.cfg.Pipeline.RunTextTurn(ctx, turnID, text, h.turnCallbacks(turnID))
	}()
}

// handleBargeIn cancels the in-flight turn and reopens capture: the user is
// about to talk over the agent. With no turn in flight it just reopens
// capture, matching a client that skips the explicit start.
func (h *Handler) handleBargeIn() {
	h.cfg.Pipeline.Cancel()
	if h.cfg.Manager != nil {
		_ = h.cfg.Manager.Interrupt(h.cfg.SessionID)
	}
	if m := h.cfg.Metrics; m != nil {
		m.SessionEvents.WithLabelValues("barge_in").Inc()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.cfg.Pipeline.StartCapture()
	h.setStateLocked(StateListening, "")
}

// handleToolResultAck consumes a pending confirmation. The ack is telemetry:
// the tool already ran and the prompt only gates what the client surfaces.
func (h *Handler) handleToolResultAck(m protocol.ToolResultAck) {
	if h.cfg.Confirmations == nil {
		return
	}
	if _, ok := h.cfg.Confirmations.Consume(m.ToolCallID); !ok {
		log.Printf("session %s: ack for unknown or expired confirmation %s", h.cfg.SessionID, m.ToolCallID)
	}
}

func (h *Handler) turnCallbacks(turnID string) pipeline.TurnCallbacks {
	return pipeline.TurnCallbacks{
		OnTranscript: func(text string) {
			h.emit(Outbound{Event: protocol.ASRFinal{
				Type:      protocol.TypeASRFinal,
				SessionID: h.cfg.SessionID,
				Text:      text,
			}})
		},
		OnText: func(turnID, text string) {
			h.emit(Outbound{Event: protocol.AgentTextFinal{
				Type:      protocol.TypeAgentTextFinal,
				SessionID: h.cfg.SessionID,
				TurnID:    turnID,
				Text:      text,
			}})
			h.transition(StateSpeaking, turnID)
		},
		OnToolCall: func(call tools.Call) {
			h.transition(StateExecuting, turnID)
			h.emit(Outbound{Event: protocol.ToolCallEvent{
				Type:       protocol.TypeToolCall,
				SessionID:  h.cfg.SessionID,
				ToolCallID: call.ID,
				Name:       call.Name,
				Arguments:  call.Arguments,
			}})
		},
		OnToolConfirmation: func(req tools.ConfirmationRequest) {
			h.emit(Outbound{Event: protocol.ToolCallConfirmation{
				Type:       protocol.TypeToolCallConfirmation,
				SessionID:  h.cfg.SessionID,
				ToolCallID: req.ToolCallID,
				Message:    req.Message,
				Severity:   req.Severity,
				ExpiresAt:  req.ExpiresAt.UnixMilli(),
			}})
		},
		OnToolResult: func(res tools.Result) {
			h.emit(Outbound{Event: protocol.ToolResultEvent{
				Type:       protocol.TypeToolResultEvent,
				SessionID:  h.cfg.SessionID,
				ToolCallID: res.ID,
				Name:       res.Name,
				Success:    res.Success,
				Result:     res.Result,
				Error:      res.Error,
			}})
			h.transition(StateProcessing, turnID)
		},
		OnUIAction: func(ui tools.UIAction) {
			h.emit(Outbound{Event: protocol.UIActionEvent{
				Type:      protocol.TypeUIAction,
				SessionID: h.cfg.SessionID,
				Action:    ui.Action,
				Params:    ui.Params,
			}})
		},
		OnAudioFrame: func(frame []byte) {
			copied := make([]byte, len(frame))
			copy(copied, frame)
			h.emit(Outbound{Audio: copied})
		},
		OnNoSpeech: func() {
			h.emit(Outbound{Event: protocol.ErrorEvent{
				Type:      protocol.TypeError,
				SessionID: h.cfg.SessionID,
				Code:      "no_speech",
				Source:    "stt",
				Retryable: true,
				Detail:    "no speech detected in the captured audio",
			}})
		},
		OnError: func(code, source string, retryable bool, detail string) {
			h.emit(Outbound{Event: protocol.ErrorEvent{
				Type:      protocol.TypeError,
				SessionID: h.cfg.SessionID,
				Code:      code,
				Source:    source,
				Retryable: retryable,
				Detail:    detail,
			}})
			if code != "no_speech" {
				h.transition(StateError, turnID)
			}
		},
		OnComplete: func(reason string) {
			h.finishTurn(turnID, reason)
		},
	}
}

// finishTurn returns the session to idle. A barge-in may already have moved
// the state to listening for the next utterance; that state wins. A turn
// that is no longer the active one only clears its bookkeeping and must
// never move the state underneath whatever superseded it.
func (h *Handler) finishTurn(turnID, reason string) {
	if m := h.cfg.Metrics; m != nil {
		m.SessionEvents.WithLabelValues("turn_" + reason).Inc()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.turnID != turnID {
		return
	}
	if h.cfg.Manager != nil {
		_ = h.cfg.Manager.EndTurn(h.cfg.SessionID)
	}
	h.turnActive = false
	h.turnID = ""
	if h.state != StateListening && h.state != StateIdle {
		h.setStateLocked(StateIdle, "")
	}
}

// transition applies a mid-turn state change unless the turn was already
// superseded by a barge-in.
func (h *Handler) transition(to State, turnID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.turnID != turnID {
		return
	}
	h.setStateLocked(to, turnID)
}

// setStateLocked validates and applies a transition, emitting the state
// event. Callers hold mu.
func (h *Handler) setStateLocked(to State, turnID string) {
	if h.state == to {
		return
	}
	if !CanTransition(h.state, to) {
		log.Printf("session %s: suppressing illegal transition %s -> %s", h.cfg.SessionID, h.state, to)
		return
	}
	h.state = to
	h.emitState(Outbound{Event: protocol.StateEvent{
		Type:      protocol.TypeState,
		SessionID: h.cfg.SessionID,
		State:     string(to),
		TurnID:    turnID,
	}})
	if m := h.cfg.Metrics; m != nil {
		m.SessionEvents.WithLabelValues("state_" + string(to)).Inc()
	}
}

// CurrentState reports the session state. Test and introspection helper.
func (h *Handler) CurrentState() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handler) busy() {
	h.emit(Outbound{Event: protocol.ErrorEvent{
		Type:      protocol.TypeError,
		SessionID: h.cfg.SessionID,
		Code:      "busy",
		Source:    "session",
		Retryable: true,
		Detail:    "a turn is already in flight; barge_in interrupts it",
	}})
}

func (h *Handler) protocolError(code, detail string) {
	h.emit(Outbound{Event: protocol.ErrorEvent{
		Type:      protocol.TypeError,
		SessionID: h.cfg.SessionID,
		Code:      code,
		Source:    "protocol",
		Retryable: true,
		Detail:    detail,
	}})
}

// emit queues an outbound frame, dropping it if the client cannot keep up.
// State events go through emitState instead: a client that misses one would
// hold a stale view of the machine for the rest of the session.
func (h *Handler) emit(o Outbound) {
	select {
	case <-h.closed:
		return
	default:
	}
	select {
	case h.out <- o:
	default:
		log.Printf("session %s: outbound queue full, dropping frame", h.cfg.SessionID)
	}
}

// emitState blocks on a saturated queue rather than drop. The send is
// released either by the writer draining or by Close, so a dead connection
// cannot wedge the sender.
func (h *Handler) emitState(o Outbound) {
	select {
	case <-h.closed:
		return
	default:
	}
	select {
	case h.out <- o:
	case <-h.closed:
	}
}

