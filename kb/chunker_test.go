package kb

import (
	"strings"
	"testing"
)

func TestNewChunkerDispatchesByStrategy(t *testing.T) {
	cfg := DefaultChunkerConfig()
	tests := []struct {
		strategy ChunkStrategy
		want     ChunkStrategy
	}{
		{StrategyHierarchical, StrategyHierarchical},
		{StrategySemantic, StrategySemantic},
		{StrategySentence, StrategySentence},
		{StrategyFixedWindow, StrategyFixedWindow},
		{"unknown", StrategyFixedWindow},
	}
	for _, tt := range tests {
		c := NewChunker(tt.strategy, cfg)
		if c.Strategy() != tt.want {
			t.Errorf("NewChunker(%q).Strategy() = %q, want %q", tt.strategy, c.Strategy(), tt.want)
		}
	}
}

func TestFixedWindowChunkerSplitsWithOverlap(t *testing.T) {
	cfg := ChunkerConfig{TargetSize: 10, Overlap: 2}
	c := NewChunker(StrategyFixedWindow, cfg)
	content := strings.Repeat("a", 25)

	chunks := c.Split(content)
	if len(chunks) < 2 {
		t.Fatalf("Split() produced %d chunks, want at least 2", len(chunks))
	}
	for _, ch := range chunks {
		if len([]rune(ch)) > 10 {
			t.Errorf("chunk length %d exceeds TargetSize 10", len([]rune(ch)))
		}
	}
}

func TestFixedWindowChunkerEmptyContent(t *testing.T) {
	c := NewChunker(StrategyFixedWindow, DefaultChunkerConfig())
	if chunks := c.Split(""); len(chunks) != 0 {
		t.Fatalf("Split(\"\") = %v, want no chunks", chunks)
	}
}

func TestHierarchicalChunkerSplitsOnHeadings(t *testing.T) {
	content := "# Intro\nsome intro text that is reasonably long for a chunk\n\n# Details\nmore details text that is also long enough"
	c := NewChunker(StrategyHierarchical, ChunkerConfig{TargetSize: 40, MinChunkSize: 0, MaxChunkSize: 0, Overlap: 0})
	chunks := c.Split(content)
	if len(chunks) < 2 {
		t.Fatalf("Split() produced %d chunks, want at least 2 (one per heading)", len(chunks))
	}
}

func TestSentenceChunkerSplitsOnPunctuation(t *testing.T) {
	content := "First sentence. Second sentence! Third sentence?"
	c := NewChunker(StrategySentence, ChunkerConfig{TargetSize: 1000, Overlap: 0})
	chunks := c.Split(content)
	if len(chunks) != 1 {
		t.Fatalf("Split() = %v, want all sentences merged into one chunk under TargetSize", chunks)
	}
	if !strings.Contains(chunks[0], "First sentence.") {
		t.Errorf("chunk missing first sentence: %q", chunks[0])
	}
}

func TestNormalizeChunkSizesMergesUndersized(t *testing.T) {
	cfg := ChunkerConfig{TargetSize: 100, MinChunkSize: 50, MaxChunkSize: 0, Overlap: 0}
	out := normalizeChunkSizes([]string{"this is a long enough first chunk to stand alone", "tiny"}, cfg)
	if len(out) != 1 {
		t.Fatalf("normalizeChunkSizes() = %v, want undersized chunk merged into previous", out)
	}
}

func TestNormalizeChunkSizesResplitsOversized(t *testing.T) {
	cfg := ChunkerConfig{TargetSize: 10, MinChunkSize: 0, MaxChunkSize: 10, Overlap: 2}
	out := normalizeChunkSizes([]string{strings.Repeat("x", 30)}, cfg)
	for _, c := range out {
		if len([]rune(c)) > 10 {
			t.Errorf("chunk length %d exceeds MaxChunkSize 10", len([]rune(c)))
		}
	}
	if len(out) < 3 {
		t.Fatalf("normalizeChunkSizes() produced %d chunks, want at least 3 for a 30-char oversized input", len(out))
	}
}
