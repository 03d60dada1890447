package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sonara-ai/sonara/internal/auth"
	"github.com/sonara-ai/sonara/internal/brain"
	"github.com/sonara-ai/sonara/internal/config"
	"github.com/sonara-ai/sonara/internal/httpapi"
	"github.com/sonara-ai/sonara/internal/observability"
	"github.com/sonara-ai/sonara/internal/persona"
	"github.com/sonara-ai/sonara/internal/pipeline"
	"github.com/sonara-ai/sonara/internal/session"
	"github.com/sonara-ai/sonara/internal/tools"
	"github.com/sonara-ai/sonara/internal/vault"
	"github.com/sonara-ai/sonara/internal/voice"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if cfg.ServiceTokenSecret == "" && cfg.AppSessionSecret == "" {
		log.Fatalf("no auth secret configured: set AUTH_SERVICE_TOKEN_SECRET or AUTH_APP_SESSION_SECRET")
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := vault.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("vault store init failed: %v", err)
	}
	defer store.Close()

	brainAdapter, err := brain.NewAdapter(brain.Config{
		Mode:    cfg.BrainMode,
		HTTPURL: cfg.BrainURL,
		Token:   cfg.BrainToken,
	})
	if err != nil {
		log.Fatalf("brain adapter init failed: %v", err)
	}

	var stt voice.STTProvider
	if cfg.STTURL != "" {
		stt = voice.NewHTTPSTTProvider(cfg.STTURL, cfg.STTAPIKey)
		log.Printf("stt provider: http (%s)", cfg.STTURL)
	} else {
		stt = voice.NewMockSTTProvider()
		log.Printf("stt provider: mock (STT_HTTP_URL not set)")
	}

	var ttsPrimary, ttsSecondary voice.TTSProvider
	if cfg.TTSPrimaryURL != "" {
		ttsPrimary = voice.NewHTTPTTSProvider("tts_primary", cfg.TTSPrimaryURL, cfg.TTSPrimaryAPIKey, cfg.TTSPrimaryVoice)
		log.Printf("tts primary: http (%s)", cfg.TTSPrimaryURL)
	} else {
		ttsPrimary = voice.NewMockTTSProvider()
		log.Printf("tts primary: mock (TTS_PRIMARY_URL not set)")
	}
	if cfg.TTSSecondaryURL != "" {
		ttsSecondary = voice.NewHTTPTTSProvider("tts_secondary", cfg.TTSSecondaryURL, cfg.TTSSecondaryAPIKey, cfg.TTSSecondaryVoice)
		log.Printf("tts secondary: http (%s)", cfg.TTSSecondaryURL)
	}

	var personaResolver persona.Resolver
	if cfg.PersonaURL != "" {
		personaResolver = persona.NewHTTPResolver(cfg.PersonaURL)
		log.Printf("persona config: http (%s), resolved per session", cfg.PersonaURL)
	} else {
		personaResolver = persona.StaticResolver{}
		log.Printf("persona config: static defaults (PERSONA_CONFIG_URL not set)")
	}

	executor := tools.NewExecutor(store)
	confirmations := tools.NewConfirmationRegistry(0)
	tokens := auth.NewTokenStore(cfg.SessionTokenTTL)
	authenticator := auth.NewAuthenticator(cfg.ServiceTokenSecret, cfg.AppSessionSecret, tokens)

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	factory := func(sessionID string, sub *tools.Subject, profile persona.Profile) (*pipeline.Pipeline, error) {
		return pipeline.New(pipeline.Config{
			SessionID:     sessionID,
			Subject:       sub,
			Persona:       profile,
			STT:           stt,
			TTSPrimary:    ttsPrimary,
			TTSSecondary:  ttsSecondary,
			Brain:         brainAdapter,
			Executor:      executor,
			Confirmations: confirmations,
			Metrics:       metrics,
			HistoryWindow: cfg.HistoryWindow,
			ToolLoopLimit: cfg.ToolLoopLimit,
			ChunkMaxChars: cfg.TTSChunkMaxChars,
			FrameBytes:    cfg.AudioFrameBytes,
			SampleRate:    cfg.SampleRate,
		})
	}

	api := httpapi.New(cfg, sessions, authenticator, tokens, confirmations, personaResolver, factory, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, cfg.SessionSweepInterval)
	go func() {
		ticker := time.NewTicker(cfg.SessionSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				confirmations.Sweep()
				tokens.Purge()
			}
		}
	}()

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
