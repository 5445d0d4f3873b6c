package server

import (
	"encoding/base64"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Yllib/socketclaude/internal/wire"
)

// upload is one in-flight chunked file transfer from a client.
type upload struct {
	name   string
	dir    string
	total  int
	chunks map[int][]byte
}

// resolveDir is the directory relative paths resolve against: the bound
// engine's working directory, falling back to the configured default.
func (c *Conn) resolveDir() string {
	c.mu.Lock()
	eng := c.engine
	c.mu.Unlock()
	if eng != nil {
		if cwd := eng.Cwd(); cwd != "" {
			return cwd
		}
	}
	return c.d.workDir
}

// requestFile streams a file to the client. A missing or unreadable file is
// an error event, not a connection fault.
func (c *Conn) requestFile(path string) {
	if path == "" {
		c.send(wire.NewError("request-file requires a path"))
		return
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.resolveDir(), path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("File request failed", "path", path, "error", err)
		c.send(wire.NewError("cannot read file: " + err.Error()))
		return
	}

	meta, chunks := wire.FileEvents(filepath.Base(path), data)
	c.send(meta)
	for _, chunk := range chunks {
		c.send(chunk)
	}
}

func (c *Conn) uploadStart(cmd wire.Command) {
	if cmd.UploadID == "" || cmd.Name == "" || cmd.Total <= 0 {
		c.send(wire.NewError("upload-start requires uploadId, name, and total"))
		return
	}
	dir := cmd.Path
	if dir == "" {
		dir = c.resolveDir()
	}

	c.mu.Lock()
	c.uploads[cmd.UploadID] = &upload{
		name:   filepath.Base(cmd.Name),
		dir:    dir,
		total:  cmd.Total,
		chunks: make(map[int][]byte),
	}
	c.mu.Unlock()
}

func (c *Conn) uploadChunk(cmd wire.Command) {
	c.mu.Lock()
	up, ok := c.uploads[cmd.UploadID]
	c.mu.Unlock()
	if !ok {
		c.send(wire.NewError("unknown upload: " + cmd.UploadID))
		return
	}

	data, err := base64.StdEncoding.DecodeString(cmd.Data)
	if err != nil {
		c.send(wire.NewError("invalid upload chunk encoding: " + err.Error()))
		return
	}
	if cmd.Index < 0 || cmd.Index >= up.total {
		c.send(wire.NewError("upload chunk index out of range"))
		return
	}

	c.mu.Lock()
	up.chunks[cmd.Index] = data
	complete := len(up.chunks) == up.total
	if complete {
		delete(c.uploads, cmd.UploadID)
	}
	c.mu.Unlock()

	if !complete {
		return
	}
	c.finishUpload(cmd.UploadID, up)
}

// finishUpload assembles the chunks in index order and writes the file.
func (c *Conn) finishUpload(uploadID string, up *upload) {
	var assembled []byte
	for i := 0; i < up.total; i++ {
		assembled = append(assembled, up.chunks[i]...)
	}

	if err := os.MkdirAll(up.dir, 0o755); err != nil {
		c.send(wire.NewError("cannot create upload directory: " + err.Error()))
		return
	}
	dest := filepath.Join(up.dir, up.name)
	if err := os.WriteFile(dest, assembled, 0o644); err != nil {
		slog.Warn("Upload write failed", "path", dest, "error", err)
		c.send(wire.NewError("cannot write upload: " + err.Error()))
		return
	}

	slog.Info("Upload complete", "upload_id", uploadID, "path", dest, "bytes", len(assembled))
	c.send(wire.UploadComplete{Type: wire.EvUploadComplete, UploadID: uploadID, Path: dest})
}
