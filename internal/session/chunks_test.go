package session

import (
	"strings"
	"testing"
)

func TestSmallToolResultSentWhole(t *testing.T) {
	chunks := chunkToolResult("tu_1", "short output", false)
	if len(chunks) != 1 {
		t.Fatalf("expected one event, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Chunked || !c.Last || c.Index != 0 || c.Content != "short output" {
		t.Errorf("unexpected event: %+v", c)
	}
}

func TestChunkedToolResultReassembles(t *testing.T) {
	// Not a multiple of the chunk size, and larger than two chunks.
	original := strings.Repeat("abcdefg", 3*toolResultChunkSize/7+11)
	chunks := chunkToolResult("tu_1", original, true)

	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}

	var rebuilt strings.Builder
	lastFlags := 0
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d carries index %d", i, c.Index)
		}
		if !c.Chunked || !c.IsError || c.ToolID != "tu_1" {
			t.Errorf("chunk %d lost metadata: %+v", i, c)
		}
		if c.Last {
			lastFlags++
			if i != len(chunks)-1 {
				t.Errorf("non-final chunk %d has last flag", i)
			}
		}
		if i < len(chunks)-1 && len(c.Content) != toolResultChunkSize {
			t.Errorf("chunk %d is %d bytes, want %d", i, len(c.Content), toolResultChunkSize)
		}
		rebuilt.WriteString(c.Content)
	}

	if lastFlags != 1 {
		t.Errorf("expected exactly one last flag, got %d", lastFlags)
	}
	if rebuilt.String() != original {
		t.Error("reassembled content does not match original byte-for-byte")
	}
}
