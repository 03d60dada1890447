package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want :8080", cfg.BindAddr)
	}
	if cfg.SessionInactivityTimeout != 30*time.Minute {
		t.Fatalf("SessionInactivityTimeout = %v, want 30m", cfg.SessionInactivityTimeout)
	}
	if cfg.KeepaliveInterval != 25*time.Second {
		t.Fatalf("KeepaliveInterval = %v, want 25s", cfg.KeepaliveInterval)
	}
	if cfg.HistoryWindow != 10 {
		t.Fatalf("HistoryWindow = %d, want 10", cfg.HistoryWindow)
	}
	if cfg.ToolLoopLimit != 5 {
		t.Fatalf("ToolLoopLimit = %d, want 5", cfg.ToolLoopLimit)
	}
	if cfg.AudioFrameBytes != 16*1024 {
		t.Fatalf("AudioFrameBytes = %d, want 16384", cfg.AudioFrameBytes)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("APP_SESSION_INACTIVITY_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for bad duration")
	}
}

func TestLoadRejectsTinyInactivityTimeout(t *testing.T) {
	t.Setenv("APP_SESSION_INACTIVITY_TIMEOUT", "1s")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for timeout under 5s")
	}
}

func TestLoadRejectsOversizedAudioFrame(t *testing.T) {
	t.Setenv("PIPELINE_AUDIO_FRAME_BYTES", "65536")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error for frame size above 16KiB")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("APP_KEEPALIVE_INTERVAL", "10s")
	t.Setenv("PIPELINE_HISTORY_WINDOW", "4")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.KeepaliveInterval != 10*time.Second {
		t.Fatalf("KeepaliveInterval = %v, want 10s", cfg.KeepaliveInterval)
	}
	if cfg.HistoryWindow != 4 {
		t.Fatalf("HistoryWindow = %d, want 4", cfg.HistoryWindow)
	}
}
