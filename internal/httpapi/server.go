package httpapi

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sonara-ai/sonara/internal/auth"
	"github.com/sonara-ai/sonara/internal/config"
	"github.com/sonara-ai/sonara/internal/observability"
	"github.com/sonara-ai/sonara/internal/persona"
	"github.com/sonara-ai/sonara/internal/pipeline"
	"github.com/sonara-ai/sonara/internal/session"
	"github.com/sonara-ai/sonara/internal/tools"
)

// WebSocket close codes used before a session exists. 4401 is sent when no
// credential path succeeds; 4500 when session setup fails after auth.
const (
	CloseUnauthorized = 4401
	CloseInitFailed   = 4500
)

// PipelineFactory builds the per-connection pipeline. The subject is shared
// with the tool executor so role changes made by tools stick for the
// session's lifetime. The profile was resolved for this session at connect
// time.
type PipelineFactory func(sessionID string, sub *tools.Subject, profile persona.Profile) (*pipeline.Pipeline, error)

type Server struct {
	cfg           config.Config
	sessions      *session.Manager
	authenticator *auth.Authenticator
	tokens        *auth.TokenStore
	confirmations *tools.ConfirmationRegistry
	personas      persona.Resolver
	newPipeline   PipelineFactory
	metrics       *observability.Metrics
	upgrader      websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, authenticator *auth.Authenticator, tokens *auth.TokenStore, confirmations *tools.ConfirmationRegistry, personas persona.Resolver, factory PipelineFactory, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:           cfg,
		sessions:      sessions,
		authenticator: authenticator,
		tokens:        tokens,
		confirmations: confirmations,
		personas:      personas,
		newPipeline:   factory,
		metrics:       metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Browser connections must come from the same origin unless
				// explicitly relaxed; a foreign page must not be able to drive
				// someone's voice session.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/v1/session", s.handleBootstrap)
	r.Get("/v1/session/{id}", s.handleGetSession)
	r.Get("/v1/session/ws", s.handleSessionWS)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

type bootstrapResponse struct {
	SessionToken string `json:"session_token"`
	ExpiresInMS  int64  `json:"expires_in_ms"`
	WSPath       string `json:"ws_path"`
}

// handleBootstrap exchanges a cookie or service-token credential for an
// opaque session token that native clients present on the upgrade. Browsers
// with the identity cookie can skip this and connect directly.
func (s *Server) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	principal, path, err := s.authenticator.Authenticate(r)
	if err != nil {
		s.countAuth("none", "rejected")
		respondError(w, http.StatusUnauthorized, "unauthorized", "no valid credential presented")
		return
	}
	s.countAuth(path, "accepted")

	token := s.tokens.Issue(principal)
	respondJSON(w, http.StatusCreated, bootstrapResponse{
		SessionToken: token,
		ExpiresInMS:  s.cfg.SessionTokenTTL.Milliseconds(),
		WSPath:       "/v1/session/ws?session_token=" + token,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	if _, _, err := s.authenticator.Authenticate(r); err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized", "no valid credential presented")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	sess, err := s.sessions.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

// handleSessionWS runs one connection: upgrade, authenticate, build the
// pipeline, then pump frames between the socket and the session handler.
// Auth failures close with 4401 and setup failures with 4500; in both cases
// no session is registered.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	principal, path, err := s.authenticator.Authenticate(r)
	if err != nil {
		s.countAuth("none", "rejected")
		closeWith(conn, CloseUnauthorized, "unauthorized")
		return
	}
	s.countAuth(path, "accepted")

	sess := s.sessions.Create(principal.UserID, principal.Role, s.cfg.PersonaID, func() {
		_ = conn.Close()
	})

	// Persona config is fetched fresh for every session so edits land on the
	// next connect. Resolution is best-effort: defaults on any failure.
	profile := persona.DefaultProfile()
	if s.personas != nil {
		profile = s.personas.Resolve(r.Context(), s.cfg.PersonaID)
	}

	sub := &tools.Subject{UserID: principal.UserID, Role: principal.Role, Privileged: principal.Privileged}
	pipe, err := s.newPipeline(sess.ID, sub, profile)
	if err != nil {
		log.Printf("session %s: pipeline setup failed: %v", sess.ID, err)
		_, _ = s.sessions.End(sess.ID)
		closeWith(conn, CloseInitFailed, "session initialization failed")
		return
	}

	handler := session.NewHandler(session.HandlerConfig{
		SessionID:     sess.ID,
		Manager:       s.sessions,
		Pipeline:      pipe,
		Confirmations: s.confirmations,
		Metrics:       s.metrics,
	})

	if m := s.metrics; m != nil {
		m.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
		m.SessionEvents.WithLabelValues("ws_connected").Inc()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		s.writePump(ctx, conn, handler)
		// A dead writer must take the reader down with it, or a full
		// outbound queue would leave the connection wedged until the read
		// deadline.
		cancel()
		_ = conn.Close()
	}()

	handler.Start()
	s.readPump(ctx, conn, handler, sess.ID)

	cancel()
	handler.Close()
	<-writerDone

	_, _ = s.sessions.End(sess.ID)
	if m := s.metrics; m != nil {
		m.ActiveSessions.Set(float64(s.sessions.ActiveCount()))
		m.SessionEvents.WithLabelValues("ws_disconnected").Inc()
	}
}

// writePump serializes all socket writes: session events, synthesized audio
// frames, and keepalive pings.
func (s *Server) writePump(ctx context.Context, conn *websocket.Conn, handler *session.Handler) {
	ticker := time.NewTicker(s.keepalive())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case out, ok := <-handler.Events():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if len(out.Audio) > 0 {
				if err := conn.WriteMessage(websocket.BinaryMessage, out.Audio); err != nil {
					return
				}
				s.countMessage("outbound", "audio")
				continue
			}
			if err := conn.WriteJSON(out.Event); err != nil {
				return
			}
			s.countMessage("outbound", "event")
		}
	}
}

func (s *Server) readPump(ctx context.Context, conn *websocket.Conn, handler *session.Handler, sessionID string) {
	wait := s.pongWait()
	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		_ = s.sessions.Touch(sessionID)
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wait))

		switch msgType {
		case websocket.BinaryMessage:
			s.countMessage("inbound", "audio")
			_ = s.sessions.Touch(sessionID)
			handler.HandleAudio(data)
		case websocket.TextMessage:
			s.countMessage("inbound", "control")
			handler.HandleText(ctx, data)
		}
	}
}

func (s *Server) keepalive() time.Duration {
	if s.cfg.KeepaliveInterval > 0 {
		return s.cfg.KeepaliveInterval
	}
	return 25 * time.Second
}

// pongWait is the read deadline: one missed pong plus slack. A peer that
// stops answering pings is detected within roughly two keepalive intervals.
func (s *Server) pongWait() time.Duration {
	interval := s.keepalive()
	return interval + interval/2
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(5*time.Second))
}

func (s *Server) countAuth(path, outcome string) {
	if m := s.metrics; m != nil {
		m.AuthAttempts.WithLabelValues(path, outcome).Inc()
	}
}

func (s *Server) countMessage(direction, kind string) {
	if m := s.metrics; m != nil {
		m.WSMessages.WithLabelValues(direction, kind).Inc()
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
