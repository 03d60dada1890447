package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestChunkTextFitsWhole(t *testing.T) {
	got := ChunkText("short sentence.", 100)
	if len(got) != 1 || got[0] != "short sentence." {
		t.Fatalf("chunks = %v", got)
	}
}

func TestChunkTextPrefersSentenceBoundary(t *testing.T) {
	text := "First sentence ends here. Second sentence is a bit longer and keeps going."
	got := ChunkText(text, 40)
	if got[0] != "First sentence ends here." {
		t.Fatalf("first chunk = %q", got[0])
	}
}

func TestChunkTextFallsBackToLastSpace(t *testing.T) {
	text := "no terminal punctuation here just many plain words flowing along"
	got := ChunkText(text, 30)
	for _, c := range got {
		if len(c) > 30 {
			t.Fatalf("chunk %q exceeds max", c)
		}
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
			t.Fatalf("chunk %q not trimmed", c)
		}
	}
}

func TestChunkTextHardSplitsUnbrokenRun(t *testing.T) {
	text := strings.Repeat("a", 75)
	got := ChunkText(text, 30)
	want := []string{strings.Repeat("a", 30), strings.Repeat("a", 30), strings.Repeat("a", 15)}
	if len(got) != len(want) {
		t.Fatalf("chunks = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunk[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestChunkTextRoundTrip(t *testing.T) {
	cases := []struct {
		text string
		max  int
	}{
		{"One. Two? Three! Four words remain here at the end.", 12},
		{"a b c d e f g h i j k l m n o p", 5},
		{"Single.", 100},
		{"No punctuation at all in this rather long running line of text", 17},
	}
	for _, tc := range cases {
		chunks := ChunkText(tc.text, tc.max)
		for _, c := range chunks {
			if len(c) > tc.max {
				t.Fatalf("chunk %q exceeds max %d (input %q)", c, tc.max, tc.text)
			}
			if c == "" {
				t.Fatalf("empty chunk for input %q", tc.text)
			}
		}
		if got := strings.Join(chunks, " "); got != tc.text {
			t.Fatalf("round trip = %q, want %q", got, tc.text)
		}
	}
}

func TestChunkTextHardSplitKeepsRunesIntact(t *testing.T) {
	cases := []struct {
		text string
		max  int
	}{
		{strings.Repeat("é", 40), 15},
		{strings.Repeat("日本語テキスト", 12), 20},
		{"naïve façade " + strings.Repeat("ü", 30), 11},
	}
	for _, tc := range cases {
		chunks := ChunkText(tc.text, tc.max)
		var rebuilt strings.Builder
		for i, c := range chunks {
			if !utf8.ValidString(c) {
				t.Fatalf("chunk[%d] = %q is not valid UTF-8 (input %q)", i, c, tc.text)
			}
			if len(c) > tc.max {
				t.Fatalf("chunk[%d] = %q exceeds max %d", i, c, tc.max)
			}
			rebuilt.WriteString(c)
		}
		got := strings.ReplaceAll(rebuilt.String(), " ", "")
		want := strings.ReplaceAll(tc.text, " ", "")
		if got != want {
			t.Fatalf("round trip lost text: got %q, want %q", got, want)
		}
	}
}

func TestChunkTextEmptyInput(t *testing.T) {
	if got := ChunkText("   ", 10); got != nil {
		t.Fatalf("chunks = %v, want nil", got)
	}
}
