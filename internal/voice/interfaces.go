package voice

import "context"

// STTProvider transcribes one flushed utterance. The audio is a complete WAV
// payload; an empty or whitespace-only transcript means "no speech" and is
// not an error.
type STTProvider interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// TTSProvider synthesizes one text chunk into raw PCM16LE audio bytes.
type TTSProvider interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
	Name() string
}
