package wire

import (
	"encoding/base64"
)

// FileChunkSize is the payload size of one file-chunk event before base64
// encoding.
const FileChunkSize = 512 * 1024

// FileEvents splits a file into a metadata event followed by base64 chunks.
// An empty file still produces one empty chunk so receivers always see a
// terminating chunk.
func FileEvents(name string, data []byte) (FileMetadata, []FileChunk) {
	total := (len(data) + FileChunkSize - 1) / FileChunkSize
	if total == 0 {
		total = 1
	}

	chunks := make([]FileChunk, 0, total)
	for i := 0; i < total; i++ {
		start := i * FileChunkSize
		end := start + FileChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, FileChunk{
			Type:  EvFileChunk,
			Name:  name,
			Index: i,
			Total: total,
			Data:  base64.StdEncoding.EncodeToString(data[start:end]),
		})
	}

	meta := FileMetadata{
		Type:   EvFileMetadata,
		Name:   name,
		Size:   int64(len(data)),
		Chunks: total,
	}
	return meta, chunks
}
