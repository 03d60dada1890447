package pipeline

import (
	"strings"
	"unicode/utf8"
)

// ChunkText splits text into synthesis-sized pieces of at most max bytes.
// Within the first max bytes it prefers the last sentence-terminal
// punctuation followed by a space, then the last space, then a hard split.
// A hard split backs off to the nearest rune boundary so no chunk ever
// carries a torn multi-byte sequence. Empty fragments are discarded.
func ChunkText(text string, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if max <= 0 || len(text) <= max {
		return []string{text}
	}

	out := make([]string, 0, len(text)/max+1)
	for len(text) > max {
		window := text[:max]

		split := -1
		for i := len(window) - 1; i > 0; i-- {
			if window[i] == ' ' && isSentenceTerminal(window[i-1]) {
				split = i
				break
			}
		}
		if split < 0 {
			split = strings.LastIndexByte(window, ' ')
		}
		if split <= 0 {
			split = max
			for split > 0 && !utf8.RuneStart(text[split]) {
				split--
			}
			if split == 0 {
				split = max
			}
		}

		if chunk := strings.TrimSpace(text[:split]); chunk != "" {
			out = append(out, chunk)
		}
		text = strings.TrimSpace(text[split:])
	}
	if text != "" {
		out = append(out, text)
	}
	return out
}

func isSentenceTerminal(c byte) bool {
	return c == '.' || c == '?' || c == '!'
}
