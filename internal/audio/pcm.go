package audio

// PCM16ToFloat converts 16-bit signed little-endian PCM bytes into
// normalized float64 samples in [-1, 1]. A trailing odd byte is ignored.
func PCM16ToFloat(pcm []byte) []float64 {
	n := len(pcm) / 2
	out := make([]float64, 0, n)
	for i := 0; i+1 < len(pcm); i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		out = append(out, float64(sample)/32768.0)
	}
	return out
}

// FloatToPCM16 converts normalized float64 samples into 16-bit signed
// little-endian PCM bytes. Inputs outside [-1, 1] clamp rather than wrap,
// so 1.5 maps to 32767 and -1.5 maps to -32768. The positive range tops
// out at 32767 (two's complement is asymmetric); every value produced by
// PCM16ToFloat converts back to the original sample exactly.
func FloatToPCM16(samples []float64) []byte {
	out := make([]byte, 0, len(samples)*2)
	for _, f := range samples {
		if f > 1 {
			f = 1
		}
		if f < -1 {
			f = -1
		}
		scaled := f * 32768.0
		if scaled > 32767 {
			scaled = 32767
		}
		if scaled < -32768 {
			scaled = -32768
		}
		v := int16(scaled)
		out = append(out, byte(v), byte(uint16(v)>>8))
	}
	return out
}
