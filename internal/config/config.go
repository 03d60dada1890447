package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice control plane.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// Session lifecycle.
	SessionInactivityTimeout time.Duration
	SessionSweepInterval     time.Duration
	KeepaliveInterval        time.Duration

	// Authentication secrets. ServiceTokenSecret signs short-lived tokens for
	// cross-service callers; AppSessionSecret validates cookie identity tokens
	// issued by the main application.
	ServiceTokenSecret string
	AppSessionSecret   string
	SessionTokenTTL    time.Duration

	// Pipeline shape.
	HistoryWindow    int
	ToolLoopLimit    int
	TTSChunkMaxChars int
	AudioFrameBytes  int
	SampleRate       int

	// Collaborator endpoints.
	BrainMode  string
	BrainURL   string
	BrainToken string

	STTURL    string
	STTAPIKey string

	TTSPrimaryURL      string
	TTSPrimaryAPIKey   string
	TTSPrimaryVoice    string
	TTSSecondaryURL    string
	TTSSecondaryAPIKey string
	TTSSecondaryVoice  string

	PersonaURL string
	PersonaID  string

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:                 envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:         envOrDefault("APP_METRICS_NAMESPACE", "sonara"),
		AllowAnyOrigin:           false,
		ShutdownTimeout:          15 * time.Second,
		SessionInactivityTimeout: 30 * time.Minute,
		SessionSweepInterval:     60 * time.Second,
		KeepaliveInterval:        25 * time.Second,
		ServiceTokenSecret:       trimEnv("AUTH_SERVICE_TOKEN_SECRET"),
		AppSessionSecret:         trimEnv("AUTH_APP_SESSION_SECRET"),
		SessionTokenTTL:          12 * time.Hour,
		HistoryWindow:            10,
		ToolLoopLimit:            5,
		TTSChunkMaxChars:         500,
		AudioFrameBytes:          16 * 1024,
		SampleRate:               16000,
		BrainMode:                envOrDefault("BRAIN_MODE", "auto"),
		BrainURL:                 trimEnv("BRAIN_HTTP_URL"),
		BrainToken:               trimEnv("BRAIN_HTTP_TOKEN"),
		STTURL:                   trimEnv("STT_HTTP_URL"),
		STTAPIKey:                trimEnv("STT_API_KEY"),
		TTSPrimaryURL:            trimEnv("TTS_PRIMARY_URL"),
		TTSPrimaryAPIKey:         trimEnv("TTS_PRIMARY_API_KEY"),
		TTSPrimaryVoice:          envOrDefault("TTS_PRIMARY_VOICE_ID", "sonara_default"),
		TTSSecondaryURL:          trimEnv("TTS_SECONDARY_URL"),
		TTSSecondaryAPIKey:       trimEnv("TTS_SECONDARY_API_KEY"),
		TTSSecondaryVoice:        trimEnv("TTS_SECONDARY_VOICE_ID"),
		PersonaURL:               trimEnv("PERSONA_CONFIG_URL"),
		PersonaID:                envOrDefault("PERSONA_ID", "default"),
		DatabaseURL:              trimEnv("DATABASE_URL"),
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionInactivityTimeout, err = durationFromEnv("APP_SESSION_INACTIVITY_TIMEOUT", cfg.SessionInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionSweepInterval, err = durationFromEnv("APP_SESSION_SWEEP_INTERVAL", cfg.SessionSweepInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.KeepaliveInterval, err = durationFromEnv("APP_KEEPALIVE_INTERVAL", cfg.KeepaliveInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.SessionTokenTTL, err = durationFromEnv("AUTH_SESSION_TOKEN_TTL", cfg.SessionTokenTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryWindow, err = intFromEnv("PIPELINE_HISTORY_WINDOW", cfg.HistoryWindow)
	if err != nil {
		return Config{}, err
	}
	cfg.ToolLoopLimit, err = intFromEnv("PIPELINE_TOOL_LOOP_LIMIT", cfg.ToolLoopLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.TTSChunkMaxChars, err = intFromEnv("PIPELINE_TTS_CHUNK_MAX_CHARS", cfg.TTSChunkMaxChars)
	if err != nil {
		return Config{}, err
	}
	cfg.AudioFrameBytes, err = intFromEnv("PIPELINE_AUDIO_FRAME_BYTES", cfg.AudioFrameBytes)
	if err != nil {
		return Config{}, err
	}
	cfg.SampleRate, err = intFromEnv("PIPELINE_SAMPLE_RATE", cfg.SampleRate)
	if err != nil {
		return Config{}, err
	}

	if cfg.SessionInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_SESSION_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.KeepaliveInterval < time.Second {
		return Config{}, fmt.Errorf("APP_KEEPALIVE_INTERVAL must be at least 1s")
	}
	if cfg.HistoryWindow <= 0 {
		return Config{}, fmt.Errorf("PIPELINE_HISTORY_WINDOW must be positive")
	}
	if cfg.ToolLoopLimit <= 0 {
		return Config{}, fmt.Errorf("PIPELINE_TOOL_LOOP_LIMIT must be positive")
	}
	if cfg.TTSChunkMaxChars <= 0 {
		return Config{}, fmt.Errorf("PIPELINE_TTS_CHUNK_MAX_CHARS must be positive")
	}
	if cfg.AudioFrameBytes <= 0 || cfg.AudioFrameBytes > 16*1024 {
		return Config{}, fmt.Errorf("PIPELINE_AUDIO_FRAME_BYTES must be in (0, 16384]")
	}
	if cfg.SampleRate <= 0 {
		return Config{}, fmt.Errorf("PIPELINE_SAMPLE_RATE must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func trimEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimEnv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := trimEnv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(trimEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
