package server

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Yllib/socketclaude/internal/agent"
	"github.com/Yllib/socketclaude/internal/domain"
	"github.com/Yllib/socketclaude/internal/session"
	"github.com/Yllib/socketclaude/internal/store"
	"github.com/Yllib/socketclaude/internal/wire"
)

type recorder struct {
	mu   sync.Mutex
	msgs []any
}

func (rc *recorder) Send(v any) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.msgs = append(rc.msgs, v)
	return nil
}

func (rc *recorder) Open() bool { return true }

func (rc *recorder) snapshot() []any {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]any(nil), rc.msgs...)
}

// scriptedRunner replays a fixed event stream in place of a real agent
// subprocess.
type scriptedRunner struct {
	events chan agent.Event

	mu   sync.Mutex
	sent []string
}

func newScriptedRunner(events ...agent.Event) *scriptedRunner {
	r := &scriptedRunner{events: make(chan agent.Event, len(events))}
	for _, ev := range events {
		r.events <- ev
	}
	close(r.events)
	return r
}

func (r *scriptedRunner) Events() <-chan agent.Event { return r.events }

func (r *scriptedRunner) Send(text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
	return nil
}

func (r *scriptedRunner) Answer(string, map[string]any) error { return nil }
func (r *scriptedRunner) CancelTask(string) error             { return nil }
func (r *scriptedRunner) Interrupt() error                    { return nil }
func (r *scriptedRunner) Kill()                               {}

func newTestConn(t *testing.T) (*Conn, *recorder, store.Repository) {
	t.Helper()
	conn, tr, repo, _ := newTestConnWithDispatcher(t)
	return conn, tr, repo
}

func newTestConnWithDispatcher(t *testing.T) (*Conn, *recorder, store.Repository, *Dispatcher) {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	d := NewDispatcher(repo, session.NewRegistry(), nil, "agent", t.TempDir())
	tr := &recorder{}
	return d.NewConn(tr), tr, repo, d
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func lastError(tr *recorder) (wire.Error, bool) {
	var last wire.Error
	found := false
	for _, msg := range tr.snapshot() {
		if e, ok := msg.(wire.Error); ok {
			last = e
			found = true
		}
	}
	return last, found
}

func TestMalformedMessageProducesErrorEvent(t *testing.T) {
	conn, tr, _ := newTestConn(t)

	conn.Handle(context.Background(), []byte("{not json"))

	if _, ok := lastError(tr); !ok {
		t.Fatal("no error event for malformed message")
	}

	// The connection stays usable afterwards.
	conn.Handle(context.Background(), []byte(`{"type":"list-sessions"}`))
	var listed bool
	for _, msg := range tr.snapshot() {
		if _, ok := msg.(wire.SessionList); ok {
			listed = true
		}
	}
	if !listed {
		t.Fatal("connection unusable after malformed message")
	}
}

func TestUnknownCommandProducesErrorEvent(t *testing.T) {
	conn, tr, _ := newTestConn(t)
	conn.Handle(context.Background(), []byte(`{"type":"no-such-command"}`))
	if _, ok := lastError(tr); !ok {
		t.Fatal("no error event for unknown command")
	}
}

func TestCommandsWithoutSessionAreRejected(t *testing.T) {
	conn, tr, _ := newTestConn(t)

	for _, raw := range []string{
		`{"type":"abort"}`,
		`{"type":"answer-question","questionId":1,"answers":{"q":"a"}}`,
		`{"type":"stop-task","id":"t1"}`,
	} {
		conn.Handle(context.Background(), []byte(raw))
	}

	errs := 0
	for _, msg := range tr.snapshot() {
		if _, ok := msg.(wire.Error); ok {
			errs++
		}
	}
	if errs != 3 {
		t.Fatalf("error events = %d, want 3", errs)
	}
}

func TestStartNewSessionBindsTransport(t *testing.T) {
	conn, tr, _ := newTestConn(t)

	conn.Handle(context.Background(), []byte(`{"type":"start-new-session"}`))

	var status *wire.Status
	for _, msg := range tr.snapshot() {
		if s, ok := msg.(wire.Status); ok {
			status = &s
		}
	}
	if status == nil {
		t.Fatal("no status event after start-new-session")
	}
	if status.Running || status.SessionID != "" {
		t.Fatalf("fresh session status = %+v", status)
	}
}

func TestSubmitPromptWithoutSessionStartsOne(t *testing.T) {
	conn, tr, _, d := newTestConnWithDispatcher(t)

	runner := newScriptedRunner(
		agent.Event{Type: agent.EventInit, SessionID: "s-new"},
		agent.Event{Type: agent.EventDelta, Text: "hi "},
		agent.Event{Type: agent.EventDelta, Text: "there"},
		agent.Event{Type: agent.EventAssistant, Text: "hi there"},
		agent.Event{Type: agent.EventResult, Result: &agent.Result{NumTurns: 1}},
	)
	d.SetRunnerFactory(func(agent.Options) (session.Runner, error) { return runner, nil })

	conn.Handle(context.Background(), []byte(`{"type":"submit-prompt","text":"hello"}`))

	waitFor(t, "query result", func() bool {
		for _, msg := range tr.snapshot() {
			if _, ok := msg.(wire.Result); ok {
				return true
			}
		}
		return false
	})

	var created bool
	var text string
	for _, msg := range tr.snapshot() {
		switch m := msg.(type) {
		case wire.Error:
			t.Fatalf("unexpected error event: %q", m.Message)
		case wire.SessionCreated:
			if m.SessionID != "s-new" {
				t.Fatalf("session-created id = %q", m.SessionID)
			}
			created = true
		case wire.TextDelta:
			text += m.Text
		}
	}
	if !created {
		t.Fatal("no session-created event for implicit session start")
	}
	if text != "hi there" {
		t.Fatalf("streamed text = %q", text)
	}
	if eng := d.registry.Get("s-new"); eng == nil {
		t.Fatal("implicitly started session not registered")
	}

	runner.mu.Lock()
	sent := append([]string(nil), runner.sent...)
	runner.mu.Unlock()
	if len(sent) != 1 || sent[0] != "hello" {
		t.Fatalf("prompts delivered = %v", sent)
	}
}

func TestResumeUnknownSessionIsError(t *testing.T) {
	conn, tr, _ := newTestConn(t)
	conn.Handle(context.Background(), []byte(`{"type":"resume-session","sessionId":"nope"}`))
	if _, ok := lastError(tr); !ok {
		t.Fatal("no error event for unknown session resume")
	}
}

func TestResumeStoredSessionSendsHistory(t *testing.T) {
	conn, tr, repo := newTestConn(t)
	ctx := context.Background()

	now := time.Now()
	if err := repo.SaveSession(ctx, &domain.Session{ID: "s1", Cwd: "/tmp", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatal(err)
	}
	for _, content := range []string{"hello", "hi there"} {
		if err := repo.AppendEntry(ctx, &domain.ChatEntry{SessionID: "s1", Kind: domain.EntryUser, Content: content}); err != nil {
			t.Fatal(err)
		}
	}

	conn.Handle(ctx, []byte(`{"type":"resume-session","sessionId":"s1"}`))

	var history *wire.SessionHistory
	for _, msg := range tr.snapshot() {
		if h, ok := msg.(wire.SessionHistory); ok {
			history = &h
		}
	}
	if history == nil {
		t.Fatal("no history event after resume")
	}
	if history.Total != 2 || len(history.Entries) != 2 || history.Append {
		t.Fatalf("history = total %d, entries %d, append %v", history.Total, len(history.Entries), history.Append)
	}
	if history.Entries[0].Content != "hello" {
		t.Fatalf("history order wrong: %q first", history.Entries[0].Content)
	}
}

func TestRequestMissingFileKeepsConnection(t *testing.T) {
	conn, tr, _ := newTestConn(t)

	conn.Handle(context.Background(), []byte(`{"type":"request-file","path":"/does/not/exist.txt"}`))
	if _, ok := lastError(tr); !ok {
		t.Fatal("no error event for missing file")
	}

	conn.Handle(context.Background(), []byte(`{"type":"list-sessions"}`))
	found := false
	for _, msg := range tr.snapshot() {
		if _, ok := msg.(wire.SessionList); ok {
			found = true
		}
	}
	if !found {
		t.Fatal("connection unusable after file error")
	}
}

func TestRequestFileStreamsChunks(t *testing.T) {
	conn, tr, _ := newTestConn(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	if err := os.WriteFile(path, []byte("file contents"), 0o644); err != nil {
		t.Fatal(err)
	}

	conn.Handle(context.Background(), []byte(`{"type":"request-file","path":"`+path+`"}`))

	var meta *wire.FileMetadata
	var chunks []wire.FileChunk
	for _, msg := range tr.snapshot() {
		switch m := msg.(type) {
		case wire.FileMetadata:
			meta = &m
		case wire.FileChunk:
			chunks = append(chunks, m)
		}
	}
	if meta == nil || meta.Name != "hello.txt" || meta.Size != int64(len("file contents")) {
		t.Fatalf("metadata = %+v", meta)
	}
	if len(chunks) != meta.Chunks {
		t.Fatalf("chunks = %d, metadata said %d", len(chunks), meta.Chunks)
	}
	decoded, err := base64.StdEncoding.DecodeString(chunks[0].Data)
	if err != nil || string(decoded) != "file contents" {
		t.Fatalf("chunk payload = %q, err %v", decoded, err)
	}
}

func TestUploadAssemblesOutOfOrderChunks(t *testing.T) {
	conn, tr, _ := newTestConn(t)
	dir := t.TempDir()
	ctx := context.Background()

	part1 := base64.StdEncoding.EncodeToString([]byte("hello "))
	part2 := base64.StdEncoding.EncodeToString([]byte("world"))

	conn.Handle(ctx, []byte(`{"type":"upload-start","uploadId":"u1","name":"greeting.txt","total":2,"path":"`+dir+`"}`))
	conn.Handle(ctx, []byte(`{"type":"upload-chunk","uploadId":"u1","index":1,"data":"`+part2+`"}`))
	conn.Handle(ctx, []byte(`{"type":"upload-chunk","uploadId":"u1","index":0,"data":"`+part1+`"}`))

	var done *wire.UploadComplete
	for _, msg := range tr.snapshot() {
		if u, ok := msg.(wire.UploadComplete); ok {
			done = &u
		}
	}
	if done == nil || done.UploadID != "u1" {
		t.Fatalf("upload-complete = %+v", done)
	}

	data, err := os.ReadFile(filepath.Join(dir, "greeting.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello world" {
		t.Fatalf("assembled file = %q", data)
	}
}

func TestUploadChunkForUnknownUploadIsError(t *testing.T) {
	conn, tr, _ := newTestConn(t)
	conn.Handle(context.Background(), []byte(`{"type":"upload-chunk","uploadId":"ghost","index":0,"data":"aGk="}`))
	if _, ok := lastError(tr); !ok {
		t.Fatal("no error event for unknown upload")
	}
}
