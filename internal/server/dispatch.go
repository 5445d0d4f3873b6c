// Package server exposes the engine to clients: a chi HTTP surface with a
// direct websocket endpoint, and a command dispatcher shared with the relay
// tunnel so both paths speak the identical protocol.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/Yllib/socketclaude/internal/domain"
	"github.com/Yllib/socketclaude/internal/plugin"
	"github.com/Yllib/socketclaude/internal/session"
	"github.com/Yllib/socketclaude/internal/store"
	"github.com/Yllib/socketclaude/internal/transport"
	"github.com/Yllib/socketclaude/internal/wire"
)

const defaultHistoryPage = 50

// Dispatcher holds the shared dependencies for serving client commands.
type Dispatcher struct {
	repo          store.Repository
	registry      *session.Registry
	plugins       *plugin.Host
	binary        string
	workDir       string
	runnerFactory session.RunnerFactory
}

// NewDispatcher creates a dispatcher over the shared engine dependencies.
func NewDispatcher(repo store.Repository, registry *session.Registry, plugins *plugin.Host, binary, workDir string) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		registry: registry,
		plugins:  plugins,
		binary:   binary,
		workDir:  workDir,
	}
}

// SetRunnerFactory overrides how engines start agent subprocesses.
func (d *Dispatcher) SetRunnerFactory(f session.RunnerFactory) {
	d.runnerFactory = f
}

// newEngine creates an engine wired with the dispatcher's dependencies.
func (d *Dispatcher) newEngine(cwd string) *session.Engine {
	eng := session.New(d.repo, d.plugins, d.registry, d.binary, cwd)
	if d.runnerFactory != nil {
		eng.SetRunnerFactory(d.runnerFactory)
	}
	return eng
}

// Conn is one attached client: a transport plus the engine it currently
// drives and any in-flight uploads. Not safe for concurrent Handle calls;
// each connection's read loop is the single caller.
type Conn struct {
	d  *Dispatcher
	tr transport.Transport

	mu      sync.Mutex
	engine  *session.Engine
	uploads map[string]*upload
}

// NewConn attaches a transport and returns its command handler.
func (d *Dispatcher) NewConn(tr transport.Transport) *Conn {
	return &Conn{d: d, tr: tr, uploads: make(map[string]*upload)}
}

// Handle processes one raw inbound message. Malformed input produces an error
// event; the connection stays usable.
func (c *Conn) Handle(ctx context.Context, raw []byte) {
	var cmd wire.Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		slog.Warn("Malformed client message", "error", err)
		c.send(wire.NewError("malformed message: " + err.Error()))
		return
	}

	switch cmd.Type {
	case wire.CmdStartNewSession:
		c.startNewSession(cmd.Cwd)
	case wire.CmdResumeSession:
		c.resumeSession(ctx, cmd.SessionID)
	case wire.CmdSubmitPrompt:
		c.submitPrompt(cmd)
	case wire.CmdAnswerQuestion:
		if eng := c.currentEngine(cmd.SessionID); eng != nil {
			eng.ResolveQuestion(cmd.QuestionID, cmd.Answers)
		}
	case wire.CmdAbort:
		if eng := c.currentEngine(cmd.SessionID); eng != nil {
			eng.Abort()
		}
	case wire.CmdInterrupt:
		if eng := c.currentEngine(cmd.SessionID); eng != nil {
			eng.Interrupt()
		}
	case wire.CmdSetEffort:
		if eng := c.currentEngine(cmd.SessionID); eng != nil {
			eng.SetEffort(domain.EffortLevel(cmd.Level))
		}
	case wire.CmdSetThinking:
		if eng := c.currentEngine(cmd.SessionID); eng != nil && cmd.Thinking != nil {
			eng.SetThinking(*cmd.Thinking)
		}
	case wire.CmdStopTask:
		if eng := c.currentEngine(cmd.SessionID); eng != nil {
			eng.StopTask(cmd.TaskID)
		}
	case wire.CmdForkSession:
		c.forkSession(cmd.SourceID)
	case wire.CmdRequestFile:
		c.requestFile(cmd.Path)
	case wire.CmdUploadStart:
		c.uploadStart(cmd)
	case wire.CmdUploadChunk:
		c.uploadChunk(cmd)
	case wire.CmdLoadMoreHistory:
		c.loadMoreHistory(ctx, cmd)
	case wire.CmdListSessions:
		c.listSessions(ctx)
	default:
		slog.Warn("Unknown command type", "type", cmd.Type)
		c.send(wire.NewError("unknown command type: " + cmd.Type))
	}
}

// Detach releases the transport from the bound engine. The engine keeps
// running headless; a later resume re-attaches.
func (c *Conn) Detach() {
	c.mu.Lock()
	eng := c.engine
	c.mu.Unlock()
	if eng != nil {
		eng.DetachTransport()
	}
}

func (c *Conn) send(v any) {
	if err := c.tr.Send(v); err != nil {
		slog.Debug("Client send failed", "error", err)
	}
}

// currentEngine resolves the engine a command addresses: an explicit session
// id wins, otherwise the connection's bound engine. Missing targets produce
// an error event and nil.
func (c *Conn) currentEngine(sessionID string) *session.Engine {
	if sessionID != "" {
		if eng := c.d.registry.Get(sessionID); eng != nil {
			return eng
		}
		c.send(wire.NewError("unknown session: " + sessionID))
		return nil
	}

	c.mu.Lock()
	eng := c.engine
	c.mu.Unlock()
	if eng == nil {
		c.send(wire.NewError("no active session"))
	}
	return eng
}

// bind makes eng the connection's engine, detaching whichever one held the
// transport before.
func (c *Conn) bind(eng *session.Engine) {
	c.mu.Lock()
	prev := c.engine
	c.engine = eng
	c.mu.Unlock()

	if prev != nil && prev != eng {
		prev.DetachTransport()
	}
	eng.SetTransport(c.tr)
}

func (c *Conn) startNewSession(cwd string) {
	if cwd == "" {
		cwd = c.d.workDir
	}
	c.bind(c.d.newEngine(cwd))
}

// resumeSession re-attaches to a live engine when one exists, otherwise
// reconstructs one around the persisted conversation. Either way the client
// receives the most recent history page.
func (c *Conn) resumeSession(ctx context.Context, id string) {
	if id == "" {
		c.send(wire.NewError("resume-session requires a session id"))
		return
	}

	eng := c.d.registry.Get(id)
	if eng == nil {
		stored, err := c.d.repo.GetSession(ctx, id)
		if err != nil {
			c.send(wire.NewError("failed to look up session: " + err.Error()))
			return
		}
		if stored == nil {
			c.send(wire.NewError("unknown session: " + id))
			return
		}
		cwd := stored.Cwd
		if cwd == "" {
			cwd = c.d.workDir
		}
		eng = c.d.newEngine(cwd)
		eng.Adopt(id)
		c.d.registry.Insert(id, eng)
	}
	c.bind(eng)
	c.sendRecentHistory(ctx, id)
}

// sendRecentHistory pushes the latest page of persisted entries.
func (c *Conn) sendRecentHistory(ctx context.Context, sessionID string) {
	entries, total, err := c.d.repo.PageEntries(ctx, sessionID, defaultHistoryPage, 0)
	if err != nil {
		c.send(wire.NewError("failed to load history: " + err.Error()))
		return
	}
	offset := 0
	if total > defaultHistoryPage {
		offset = total - defaultHistoryPage
		entries, _, err = c.d.repo.PageEntries(ctx, sessionID, defaultHistoryPage, offset)
		if err != nil {
			c.send(wire.NewError("failed to load history: " + err.Error()))
			return
		}
	}
	c.send(wire.SessionHistory{
		Type:      wire.EvSessionHistory,
		SessionID: sessionID,
		Entries:   entries,
		Total:     total,
		Offset:    offset,
	})
}

// submitPrompt runs one query. A prompt on a connection with no session yet
// starts one implicitly, in the default working directory.
func (c *Conn) submitPrompt(cmd wire.Command) {
	var eng *session.Engine
	if cmd.SessionID != "" {
		eng = c.d.registry.Get(cmd.SessionID)
		if eng == nil {
			c.send(wire.NewError("unknown session: " + cmd.SessionID))
			return
		}
		c.bind(eng)
	} else {
		c.mu.Lock()
		eng = c.engine
		c.mu.Unlock()
		if eng == nil {
			c.startNewSession("")
			c.mu.Lock()
			eng = c.engine
			c.mu.Unlock()
		}
	}
	// Background context: the query outlives the connection that started it.
	go eng.RunQuery(context.Background(), cmd.Text, "")
}

func (c *Conn) forkSession(sourceID string) {
	if sourceID == "" {
		c.send(wire.NewError("fork-session requires a source session id"))
		return
	}
	var cwd string
	if src := c.d.registry.Get(sourceID); src != nil {
		cwd = src.Cwd()
	}
	if cwd == "" {
		cwd = c.d.workDir
	}
	eng := c.d.newEngine(cwd)
	eng.SetForkSource(sourceID)
	c.bind(eng)
}

func (c *Conn) loadMoreHistory(ctx context.Context, cmd wire.Command) {
	if cmd.SessionID == "" {
		c.send(wire.NewError("load-more-history requires a session id"))
		return
	}
	limit := cmd.Limit
	if limit <= 0 {
		limit = defaultHistoryPage
	}
	entries, total, err := c.d.repo.PageEntries(ctx, cmd.SessionID, limit, cmd.Offset)
	if err != nil {
		c.send(wire.NewError("failed to load history: " + err.Error()))
		return
	}
	c.send(wire.SessionHistory{
		Type:      wire.EvSessionHistory,
		SessionID: cmd.SessionID,
		Entries:   entries,
		Total:     total,
		Offset:    cmd.Offset,
		Append:    true,
	})
}

func (c *Conn) listSessions(ctx context.Context) {
	sessions, err := c.d.repo.ListSessions(ctx)
	if err != nil {
		c.send(wire.NewError("failed to list sessions: " + err.Error()))
		return
	}
	c.send(wire.SessionList{Type: wire.EvSessionList, Sessions: sessions})
}
