package session

import (
	"github.com/Yllib/socketclaude/internal/wire"
)

// toolResultChunkSize is both the chunking threshold and the piece size for
// oversized tool outputs. Receivers reassemble pieces in index order.
const toolResultChunkSize = 64 * 1024

// chunkToolResult splits a tool output into outward events. Outputs at or
// below the threshold are sent whole; larger ones become fixed-size pieces
// where only the final piece carries the last flag.
func chunkToolResult(toolID, content string, isError bool) []wire.ToolResult {
	if len(content) <= toolResultChunkSize {
		return []wire.ToolResult{{
			Type:    wire.EvToolResult,
			ToolID:  toolID,
			Content: content,
			IsError: isError,
			Index:   0,
			Last:    true,
		}}
	}

	var chunks []wire.ToolResult
	for start := 0; start < len(content); start += toolResultChunkSize {
		end := start + toolResultChunkSize
		if end > len(content) {
			end = len(content)
		}
		chunks = append(chunks, wire.ToolResult{
			Type:    wire.EvToolResult,
			ToolID:  toolID,
			Content: content[start:end],
			IsError: isError,
			Chunked: true,
			Index:   len(chunks),
			Last:    end == len(content),
		})
	}
	return chunks
}
