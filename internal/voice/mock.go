package voice

import (
	"context"
	"sync"
)

// MockSTTProvider returns scripted transcripts for local use and tests.
type MockSTTProvider struct {
	mu          sync.Mutex
	Transcripts []string
	calls       int
}

func NewMockSTTProvider(transcripts ...string) *MockSTTProvider {
	return &MockSTTProvider{Transcripts: transcripts}
}

func (p *MockSTTProvider) Transcribe(ctx context.Context, _ []byte) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Transcripts) == 0 {
		return "", nil
	}
	text := p.Transcripts[p.calls%len(p.Transcripts)]
	p.calls++
	return text, nil
}

// MockTTSProvider emits deterministic silence proportional to the text length.
type MockTTSProvider struct {
	ProviderName string
}

func NewMockTTSProvider() *MockTTSProvider {
	return &MockTTSProvider{ProviderName: "mock_tts"}
}

func (p *MockTTSProvider) Name() string {
	if p.ProviderName == "" {
		return "mock_tts"
	}
	return p.ProviderName
}

func (p *MockTTSProvider) Synthesize(ctx context.Context, text string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	// 20ms of 16kHz PCM16 silence per character keeps playback length
	// roughly proportional to the utterance.
	return make([]byte, len(text)*640), nil
}
