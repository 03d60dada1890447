package audio

import (
	"bytes"
	"testing"
)

func TestPCM16FloatRoundTripIsLossless(t *testing.T) {
	samples := []int16{-32768, -32767, -16384, -1, 0, 1, 255, 16384, 32766, 32767}
	pcm := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		pcm = append(pcm, byte(s), byte(uint16(s)>>8))
	}

	back := FloatToPCM16(PCM16ToFloat(pcm))
	if !bytes.Equal(back, pcm) {
		t.Fatalf("round trip = %v, want %v", back, pcm)
	}
}

func TestPCM16FloatRoundTripFullRange(t *testing.T) {
	pcm := make([]byte, 0, 65536*2)
	for s := -32768; s <= 32767; s++ {
		v := int16(s)
		pcm = append(pcm, byte(v), byte(uint16(v)>>8))
	}
	back := FloatToPCM16(PCM16ToFloat(pcm))
	if !bytes.Equal(back, pcm) {
		for i := 0; i+1 < len(pcm); i += 2 {
			if pcm[i] != back[i] || pcm[i+1] != back[i+1] {
				want := int16(pcm[i]) | int16(pcm[i+1])<<8
				got := int16(back[i]) | int16(back[i+1])<<8
				t.Fatalf("sample %d = %d, want %d", i/2, got, want)
			}
		}
	}
}

func TestFloatToPCM16ClampsOutOfRange(t *testing.T) {
	out := FloatToPCM16([]float64{1.5, -1.5, 1.0, -1.0})
	got := make([]int16, 0, 4)
	for i := 0; i+1 < len(out); i += 2 {
		got = append(got, int16(out[i])|int16(out[i+1])<<8)
	}
	want := []int16{32767, -32768, 32767, -32768}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("clamped[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPCM16ToFloatIgnoresTrailingOddByte(t *testing.T) {
	out := PCM16ToFloat([]byte{0x00, 0x40, 0x7f})
	if len(out) != 1 {
		t.Fatalf("len = %d, want 1", len(out))
	}
	if out[0] != 0.5 {
		t.Fatalf("sample = %v, want 0.5", out[0])
	}
}

func TestEncodeWAVPCM16LEHeader(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	wav, err := EncodeWAVPCM16LE(pcm, 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE markers: %q %q", wav[0:4], wav[8:12])
	}
	if !bytes.Equal(wav[44:], pcm) {
		t.Fatalf("data chunk = %v, want %v", wav[44:], pcm)
	}
}
