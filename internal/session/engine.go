// Package session implements the engine that owns one agent conversation
// end-to-end: streaming event translation, interactive questions, mid-flight
// message injection, abort, forking, and background-task tracking.
package session

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Yllib/socketclaude/internal/agent"
	"github.com/Yllib/socketclaude/internal/domain"
	"github.com/Yllib/socketclaude/internal/plugin"
	"github.com/Yllib/socketclaude/internal/store"
	"github.com/Yllib/socketclaude/internal/transport"
	"github.com/Yllib/socketclaude/internal/wire"
)

// First-party tool names the engine recognizes and translates into dedicated
// events instead of generic tool-call events.
const (
	toolAskUserQuestion  = "AskUserQuestion"
	toolExitPlanMode     = "ExitPlanMode"
	toolTodoWrite        = "TodoWrite"
	toolSpeak            = "Speak"
	toolSendFile         = "SendFile"
	toolScheduleReminder = "ScheduleReminder"
)

// Engine owns the full lifecycle of one agent conversation. All state is
// owned exclusively by the engine instance; the only mutation paths from
// other goroutines (Abort, InjectMessage, ResolveQuestion, StopTask,
// SetTransport) go through the engine's mutex.
type Engine struct {
	repo      store.Repository
	plugins   *plugin.Host
	registry  *Registry
	binary    string
	newRunner RunnerFactory

	mu          sync.Mutex
	id          string
	cwd         string
	running     bool
	effort      domain.EffortLevel
	thinking    domain.Thinking
	forkSource  string
	lastFork    bool
	tr          transport.Transport
	buf         strings.Builder
	lastUsage   *agent.Usage
	questionSeq int64
	questions   map[int64]*pendingQuestion
	tasks       map[string]string // provider task id -> tool invocation id
	toolNames   map[string]string // tool invocation id -> tool name
	stopped     map[string]struct{}
	pending     []*domain.ChatEntry // entries awaiting a confirmed session id
	runner      Runner
	cancel      context.CancelFunc
	watcher     *outputWatcher
}

// New creates an idle engine. The session id stays empty until the agent
// confirms one.
func New(repo store.Repository, plugins *plugin.Host, registry *Registry, binary, cwd string) *Engine {
	return &Engine{
		repo:      repo,
		plugins:   plugins,
		registry:  registry,
		binary:    binary,
		newRunner: defaultRunnerFactory,
		cwd:       cwd,
		effort:    domain.EffortMedium,
		thinking:  domain.Thinking{Mode: domain.ThinkingAdaptive},
		tr:        transport.Discard,
		questions: make(map[int64]*pendingQuestion),
		tasks:     make(map[string]string),
		toolNames: make(map[string]string),
		stopped:   make(map[string]struct{}),
	}
}

// SetRunnerFactory overrides how the engine starts agent subprocesses.
func (e *Engine) SetRunnerFactory(f RunnerFactory) {
	e.mu.Lock()
	e.newRunner = f
	e.mu.Unlock()
}

// ID returns the confirmed session id, or "" before confirmation.
func (e *Engine) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

// Running reports whether a query is in flight.
func (e *Engine) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Cwd returns the engine's working directory.
func (e *Engine) Cwd() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cwd
}

// SetEffort updates the effort level for subsequent queries.
func (e *Engine) SetEffort(level domain.EffortLevel) {
	if !level.Valid() {
		slog.Warn("Ignoring unknown effort level", "level", level)
		return
	}
	e.mu.Lock()
	e.effort = level
	e.mu.Unlock()
}

// SetThinking updates the thinking mode for subsequent queries.
func (e *Engine) SetThinking(t domain.Thinking) {
	e.mu.Lock()
	e.thinking = t
	e.mu.Unlock()
}

// Adopt binds the engine to a persisted session id so the next query resumes
// that conversation. Only valid on an idle engine with no id yet.
func (e *Engine) Adopt(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running || e.id != "" {
		slog.Warn("Ignoring adopt on an active engine", "id", id, "current", e.id)
		return
	}
	e.id = id
}

// SetForkSource marks that the next query branches from an existing
// conversation's history. Consumed and cleared by that query.
func (e *Engine) SetForkSource(id string) {
	e.mu.Lock()
	e.forkSource = id
	e.mu.Unlock()
}

// SetTransport replaces the outward channel and immediately replays the text
// accumulated since the last completed turn plus every still-pending
// question, so the new channel observes consistent state.
func (e *Engine) SetTransport(t transport.Transport) {
	e.mu.Lock()
	e.tr = t
	id := e.id
	running := e.running
	buffered := e.buf.String()
	var replay []wire.Question
	for _, p := range e.questions {
		replay = append(replay, p.message)
	}
	e.mu.Unlock()

	e.send(wire.Status{Type: wire.EvStatus, SessionID: id, Running: running})
	if buffered != "" {
		e.send(wire.NewTextDelta(buffered))
	}
	for _, q := range replay {
		e.send(q)
	}
}

// DetachTransport swaps in a no-op sink. A running engine keeps going in the
// background so the client can reconnect; an idle one has nothing left to
// deliver and is dropped from the registry.
func (e *Engine) DetachTransport() {
	e.mu.Lock()
	e.tr = transport.Discard
	id := e.id
	running := e.running
	e.mu.Unlock()

	if !running && id != "" {
		e.registry.Remove(id, e)
	}
}

func (e *Engine) send(v any) {
	e.mu.Lock()
	tr := e.tr
	e.mu.Unlock()
	if err := tr.Send(v); err != nil {
		slog.Debug("Outward send failed", "error", err)
	}
}

// RunQuery starts (or resumes) one query. It never returns an error: faults
// surface as a single outward error event. At most one query runs per engine;
// a prompt submitted while one is running is delivered as an injected turn.
func (e *Engine) RunQuery(ctx context.Context, prompt, resume string) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		slog.Info("Query already running, injecting prompt instead")
		e.InjectMessage(prompt)
		return
	}
	e.running = true
	fork := e.forkSource
	e.forkSource = ""
	if resume == "" {
		resume = e.id
	}
	isFork := fork != ""
	if isFork {
		resume = fork
	}
	e.lastFork = isFork
	opts := agent.Options{
		Binary:       e.binary,
		Cwd:          e.cwd,
		Resume:       resume,
		Fork:         isFork,
		Effort:       e.effort,
		Thinking:     e.thinking,
		AllowedTools: e.plugins.AllowedTools(),
		ExtraEnv:     e.plugins.ExtraEnv(),
		PromptExtra:  e.plugins.PromptFragments(),
	}
	factory := e.newRunner
	e.mu.Unlock()

	runner, err := factory(opts)
	if err != nil {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		slog.Error("Failed to start agent", "error", err)
		e.send(wire.NewError("failed to start agent: " + err.Error()))
		return
	}

	qctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.runner = runner
	e.cancel = cancel
	e.mu.Unlock()
	defer e.finishQuery(cancel, runner)

	if prompt != "" {
		e.persistEntry(&domain.ChatEntry{Kind: domain.EntryUser, Content: prompt})
		if err := runner.Send(prompt); err != nil {
			slog.Error("Failed to deliver prompt", "error", err)
			e.send(wire.NewError("failed to deliver prompt: " + err.Error()))
			runner.Kill()
			return
		}
	}

	for {
		select {
		case <-qctx.Done():
			runner.Kill()
			// Drain so subprocess cleanup completes before the engine idles.
			for range runner.Events() {
			}
			return
		case ev, ok := <-runner.Events():
			if !ok {
				return
			}
			e.handleEvent(qctx, ev)
		}
	}
}

// finishQuery returns the engine to idle. Outstanding questions are voided:
// callers must not rely on a question resolving after the loop exits. An
// engine with no observer left is dropped from the registry; resuming later
// reconstructs one around the persisted conversation.
func (e *Engine) finishQuery(cancel context.CancelFunc, runner Runner) {
	cancel()
	e.mu.Lock()
	e.running = false
	if e.runner == runner {
		e.runner = nil
		e.cancel = nil
	}
	e.questions = make(map[int64]*pendingQuestion)
	e.tasks = make(map[string]string)
	e.toolNames = make(map[string]string)
	e.stopped = make(map[string]struct{})
	w := e.watcher
	e.watcher = nil
	id := e.id
	observed := e.tr.Open()
	e.mu.Unlock()

	// Stopped outside the lock: the watcher's final poll emits through the
	// engine and would deadlock otherwise.
	if w != nil {
		w.Stop()
	}

	if !observed && id != "" {
		e.registry.Remove(id, e)
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev agent.Event) {
	switch ev.Type {
	case agent.EventInit:
		e.handleInit(ev)
	case agent.EventDelta:
		e.mu.Lock()
		e.buf.WriteString(ev.Text)
		e.mu.Unlock()
		e.send(wire.NewTextDelta(ev.Text))
	case agent.EventAssistant:
		e.handleTurnComplete(ev)
	case agent.EventToolCall:
		e.handleToolCall(ctx, ev.Tool)
	case agent.EventToolResult:
		e.handleToolResult(ev.ToolResult)
	case agent.EventCompacting:
		e.send(wire.Compacting{Type: wire.EvCompacting, Active: ev.Active})
	case agent.EventCompactBoundary:
		e.send(wire.CompactBoundary{
			Type:      wire.EvCompactBoundary,
			Trigger:   ev.Compact.Trigger,
			PreTokens: ev.Compact.PreTokens,
		})
	case agent.EventResult:
		e.handleResult(ev.Result)
	case agent.EventError:
		slog.Warn("Agent stream error", "error", ev.Err)
		e.send(wire.NewError(ev.Err))
	}
}

// handleInit assigns the session its identity; it is unknown before this
// point. A fork gets fresh metadata; a query replacing a cleared prior
// session re-points the store record from the old id to the new one.
func (e *Engine) handleInit(ev agent.Event) {
	e.mu.Lock()
	old := e.id
	e.id = ev.SessionID
	isFork := e.lastFork
	cwd := e.cwd
	queued := e.pending
	e.pending = nil
	e.mu.Unlock()

	ctx, cancelPersist := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPersist()

	switch {
	case old == ev.SessionID && old != "":
		// Resumed in place, identity unchanged.
		e.registry.Insert(ev.SessionID, e)
	case old != "" && !isFork:
		if err := e.repo.RenameSession(ctx, old, ev.SessionID); err != nil {
			slog.Warn("Failed to re-point session record", "old", old, "new", ev.SessionID, "error", err)
		}
		e.registry.Rename(old, ev.SessionID, e)
	default:
		now := time.Now()
		if err := e.repo.SaveSession(ctx, &domain.Session{
			ID:        ev.SessionID,
			Cwd:       cwd,
			CreatedAt: now,
			UpdatedAt: now,
		}); err != nil {
			slog.Warn("Failed to save session metadata", "session_id", ev.SessionID, "error", err)
		}
		e.registry.Insert(ev.SessionID, e)
		e.send(wire.SessionCreated{Type: wire.EvSessionCreated, SessionID: ev.SessionID, Cwd: cwd})
	}

	for _, entry := range queued {
		entry.SessionID = ev.SessionID
		if err := e.repo.AppendEntry(ctx, entry); err != nil {
			slog.Warn("Failed to persist queued entry", "error", err)
		}
	}
}

// handleTurnComplete flushes the accumulated delta buffer to history exactly
// once per turn and resets it for the next turn.
func (e *Engine) handleTurnComplete(ev agent.Event) {
	e.mu.Lock()
	text := ev.Text
	if text == "" {
		text = e.buf.String()
	}
	e.buf.Reset()
	if ev.Usage != nil {
		e.lastUsage = ev.Usage
	}
	e.mu.Unlock()

	if text != "" {
		e.persistEntry(&domain.ChatEntry{Kind: domain.EntryAssistant, Content: text})
	}
}

func (e *Engine) handleToolCall(ctx context.Context, tool *agent.ToolUse) {
	if tool == nil {
		return
	}

	e.mu.Lock()
	e.toolNames[tool.ID] = tool.Name
	e.mu.Unlock()

	// Plugin interceptors run first and may short-circuit built-in handling.
	verdict, err := e.plugins.InterceptTool(ctx, tool.Name, tool.Input)
	if err != nil {
		slog.Warn("Tool interceptor failed", "tool", tool.Name, "error", err)
	} else if verdict.Handled {
		for _, chunk := range chunkToolResult(tool.ID, verdict.Output, verdict.IsError) {
			e.send(chunk)
		}
		e.persistEntry(&domain.ChatEntry{Kind: domain.EntryTool, ToolName: tool.Name, Content: verdict.Output})
		return
	}

	switch tool.Name {
	case toolAskUserQuestion:
		e.askQuestion(ctx, tool, questionFromInput(e.nextQuestionID(), tool.ID, tool.Input), false)
	case toolExitPlanMode:
		e.askQuestion(ctx, tool, planQuestion(e.nextQuestionID(), tool.ID, tool.Input), true)
	case toolTodoWrite:
		e.handleTodos(tool)
	case toolSpeak:
		e.send(wire.Speak{Type: wire.EvSpeak, Text: stringField(tool.Input, "text")})
	case toolSendFile:
		e.sendFile(stringField(tool.Input, "path"))
	case toolScheduleReminder:
		e.send(wire.Reminder{
			Type: wire.EvReminder,
			At:   stringField(tool.Input, "at"),
			Text: stringField(tool.Input, "text"),
		})
	default:
		e.send(wire.NewToolCall(tool.ID, tool.Name, tool.Input))
		if path := stringField(tool.Input, "outputFile"); path != "" {
			e.startWatcher(tool.ID, path)
		}
	}
}

func (e *Engine) nextQuestionID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.questionSeq++
	return e.questionSeq
}

// askQuestion suspends the tool call until an answer resolves the question.
// Questions have no timeout: approval may legitimately take as long as the
// human needs, and engine teardown voids anything still outstanding.
func (e *Engine) askQuestion(ctx context.Context, tool *agent.ToolUse, q wire.Question, isPlan bool) {
	if answers, ok := e.plugins.InterceptAnswer(ctx, q); ok {
		e.answerTool(tool, answers, isPlan)
		return
	}

	p := newPendingQuestion(q)
	e.mu.Lock()
	e.questions[q.QuestionID] = p
	e.mu.Unlock()

	summary := ""
	if len(q.Questions) > 0 {
		summary = q.Questions[0].Prompt
	}
	e.persistEntry(&domain.ChatEntry{Kind: domain.EntryQuestion, Content: summary, QuestionID: q.QuestionID})
	e.send(q)

	select {
	case answers := <-p.answers:
		e.answerTool(tool, answers, isPlan)
	case <-ctx.Done():
		e.mu.Lock()
		delete(e.questions, q.QuestionID)
		e.mu.Unlock()
	}
}

// answerTool maps a client answer back into the tool's expected input shape.
func (e *Engine) answerTool(tool *agent.ToolUse, answers map[string]string, isPlan bool) {
	var payload map[string]any
	if isPlan {
		approved := false
		for _, v := range answers {
			if strings.EqualFold(v, "approve") || strings.EqualFold(v, "yes") {
				approved = true
			}
		}
		if approved {
			payload = map[string]any{"behavior": "allow", "updatedInput": tool.Input}
		} else {
			payload = map[string]any{"behavior": "deny", "message": "User chose to keep planning"}
		}
	} else {
		payload = map[string]any{"behavior": "allow", "updatedInput": map[string]any{"answers": answers}}
	}

	e.mu.Lock()
	runner := e.runner
	e.mu.Unlock()
	if runner == nil {
		return
	}
	if err := runner.Answer(tool.ID, payload); err != nil {
		slog.Warn("Failed to deliver answer", "tool_id", tool.ID, "error", err)
	}
}

// ResolveQuestion resolves exactly one pending question. Unknown ids are a
// logged no-op: the question was already resolved or never existed.
func (e *Engine) ResolveQuestion(id int64, answers map[string]string) {
	e.mu.Lock()
	p, ok := e.questions[id]
	if !ok {
		e.mu.Unlock()
		slog.Debug("Ignoring answer for unknown question", "question_id", id)
		return
	}
	delete(e.questions, id)
	sessionID := e.id
	e.mu.Unlock()

	p.resolve(answers)

	if sessionID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.repo.MarkQuestionAnswered(ctx, sessionID, id); err != nil {
			slog.Warn("Failed to mark question answered", "question_id", id, "error", err)
		}
	}
}

func (e *Engine) handleTodos(tool *agent.ToolUse) {
	items, _ := tool.Input["todos"].([]any)
	todos := make([]domain.TodoItem, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		todos = append(todos, domain.TodoItem{
			Content:    stringField(m, "content"),
			Status:     domain.TodoStatus(stringField(m, "status")),
			ActiveForm: stringField(m, "activeForm"),
		})
	}

	e.mu.Lock()
	sessionID := e.id
	e.mu.Unlock()
	if sessionID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.repo.SaveTodos(ctx, sessionID, todos); err != nil {
			slog.Warn("Failed to persist todos", "error", err)
		}
	}
	e.send(wire.Todos{Type: wire.EvTodos, Todos: todos})
}

func (e *Engine) sendFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		e.send(wire.NewError("cannot read file: " + err.Error()))
		return
	}
	meta, chunks := wire.FileEvents(filepath.Base(path), data)
	e.send(meta)
	for _, chunk := range chunks {
		e.send(chunk)
	}
}

func (e *Engine) startWatcher(toolID, path string) {
	e.mu.Lock()
	old := e.watcher
	e.watcher = newOutputWatcher(toolID, path, watchInterval, func(id, delta string) {
		e.send(wire.ToolProgress{Type: wire.EvToolProgress, ToolID: id, Output: delta})
	})
	e.mu.Unlock()

	if old != nil {
		old.Stop()
	}
}

// providerTaskLocked reverse-looks the tracked background task, if any, that
// maps to a tool invocation id. Caller holds e.mu.
func (e *Engine) providerTaskLocked(toolID string) string {
	for pid, tid := range e.tasks {
		if tid == toolID {
			return pid
		}
	}
	return ""
}

// handleToolResult forwards a tool's output, chunked when oversized, and
// tracks background-task transitions: the moved-to-background signal starts
// tracking, and a later result for the same invocation is the terminal one.
func (e *Engine) handleToolResult(tr *agent.ToolOutput) {
	if tr == nil {
		return
	}

	taskID := detectBackgroundTask(tr.Content)
	var finished *outputWatcher
	terminal := ""
	e.mu.Lock()
	toolName := e.toolNames[tr.ToolID]
	if taskID != "" {
		e.tasks[taskID] = tr.ToolID
		if e.watcher != nil && e.watcher.toolID == tr.ToolID {
			if path := detectBackgroundOutputPath(tr.Content); path != "" {
				// The task keeps producing output under a new source.
				e.watcher.Retarget(path)
			}
		}
	} else {
		if pid := e.providerTaskLocked(tr.ToolID); pid != "" {
			delete(e.tasks, pid)
			if _, wasStopped := e.stopped[tr.ToolID]; !wasStopped {
				// A stop request already reported "stopped" as the terminal
				// state for this task.
				if tr.IsError {
					terminal = "failed"
				} else {
					terminal = "completed"
				}
			}
		}
		if e.watcher != nil && e.watcher.toolID == tr.ToolID {
			finished = e.watcher
			e.watcher = nil
		}
	}
	e.mu.Unlock()

	if finished != nil {
		finished.Stop()
	}

	if taskID != "" {
		e.send(wire.TaskNotification{
			Type:   wire.EvTaskNotify,
			TaskID: tr.ToolID,
			Status: "started",
		})
	}
	if terminal != "" {
		e.send(wire.TaskNotification{
			Type:   wire.EvTaskNotify,
			TaskID: tr.ToolID,
			Status: terminal,
		})
	}

	for _, chunk := range chunkToolResult(tr.ToolID, tr.Content, tr.IsError) {
		e.send(chunk)
	}
	e.persistEntry(&domain.ChatEntry{Kind: domain.EntryTool, ToolName: toolName, Content: tr.Content})
}

// handleResult emits usage and cost using only the most recent turn's token
// counts: cumulative provider totals do not reflect current context
// occupancy.
func (e *Engine) handleResult(res *agent.Result) {
	if res == nil {
		return
	}

	e.mu.Lock()
	usage := res.Usage
	if e.lastUsage != nil {
		usage = *e.lastUsage
	}
	e.mu.Unlock()

	e.send(wire.Result{
		Type:       wire.EvResult,
		DurationMs: res.DurationMs,
		CostUSD:    res.CostUSD,
		NumTurns:   res.NumTurns,
		StopReason: res.StopReason,
		IsError:    res.IsError,
		Usage: wire.Usage{
			InputTokens:         usage.InputTokens,
			OutputTokens:        usage.OutputTokens,
			CacheReadTokens:     usage.CacheReadTokens,
			CacheCreationTokens: usage.CacheCreationTokens,
		},
	})
}

// InjectMessage enqueues text as an additional turn for the in-flight query.
// No-op (logged) when no query is running. The text is persisted immediately,
// not deferred to the turn boundary.
func (e *Engine) InjectMessage(text string) {
	e.mu.Lock()
	runner := e.runner
	running := e.running
	e.mu.Unlock()

	if !running || runner == nil {
		slog.Info("Ignoring injected message with no running query")
		return
	}

	e.persistEntry(&domain.ChatEntry{Kind: domain.EntryUser, Content: text})
	if err := runner.Send(text); err != nil {
		slog.Warn("Failed to inject message", "error", err)
	}
}

// Abort signals cancellation to the streaming loop and force-terminates the
// subprocess tree. Safe to call at any time, from any goroutine, repeatedly.
func (e *Engine) Abort() {
	e.mu.Lock()
	cancel := e.cancel
	runner := e.runner
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if runner != nil {
		runner.Kill()
	}
}

// StopTask requests cancellation of a background task. Deduplicated per
// caller-facing id: the first call wins, later calls are silently dropped.
func (e *Engine) StopTask(callerTaskID string) {
	e.mu.Lock()
	if _, dup := e.stopped[callerTaskID]; dup {
		e.mu.Unlock()
		return
	}
	e.stopped[callerTaskID] = struct{}{}
	providerID := e.providerTaskLocked(callerTaskID)
	runner := e.runner
	e.mu.Unlock()

	if providerID == "" || runner == nil {
		slog.Debug("No background task mapping for stop request", "task_id", callerTaskID)
		return
	}

	// Async so a slow agent stdin never blocks the caller; the terminal
	// notification follows the delivered cancel request.
	go func() {
		if err := runner.CancelTask(providerID); err != nil {
			slog.Warn("Background task cancellation failed", "task_id", providerID, "error", err)
			return
		}
		e.send(wire.TaskNotification{
			Type:   wire.EvTaskNotify,
			TaskID: callerTaskID,
			Status: "stopped",
		})
	}()
}

// Interrupt asks the agent to stop generating the current turn without
// killing the session. No-op when idle.
func (e *Engine) Interrupt() {
	e.mu.Lock()
	runner := e.runner
	running := e.running
	e.mu.Unlock()

	if !running || runner == nil {
		return
	}
	if err := runner.Interrupt(); err != nil {
		slog.Warn("Failed to interrupt agent", "error", err)
	}
}

// persistEntry appends to history, queueing the entry when the session id is
// not yet confirmed.
func (e *Engine) persistEntry(entry *domain.ChatEntry) {
	e.mu.Lock()
	id := e.id
	if id == "" {
		e.pending = append(e.pending, entry)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()

	entry.SessionID = id
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.repo.AppendEntry(ctx, entry); err != nil {
		slog.Warn("Failed to persist history entry", "kind", entry.Kind, "error", err)
	}
}

// Close aborts any running query and removes the engine from the registry.
func (e *Engine) Close() {
	e.Abort()
	e.mu.Lock()
	id := e.id
	e.mu.Unlock()
	if id != "" {
		e.registry.Remove(id, e)
	}
}
