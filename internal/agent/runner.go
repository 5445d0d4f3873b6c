//go:build !windows

package agent

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Yllib/socketclaude/internal/domain"
	"github.com/google/uuid"
)

// killGrace is how long a terminated agent gets before the whole process
// group is killed outright.
const killGrace = 2 * time.Second

// maxLineSize bounds a single stream-json line. Tool results can be large.
const maxLineSize = 10 << 20

// Options configure one agent subprocess.
type Options struct {
	Binary       string
	Cwd          string
	Resume       string // resume target session id; empty starts fresh
	Fork         bool   // branch from Resume instead of continuing in place
	Effort       domain.EffortLevel
	Thinking     domain.Thinking
	AllowedTools []string
	ExtraEnv     map[string]string
	PromptExtra  []string // system prompt fragments, appended in order
}

// Runner owns one agent subprocess: its stdin for injected turns and control
// messages, and its stdout parsed into an event stream.
type Runner struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	events chan Event

	writeMu  sync.Mutex
	killOnce sync.Once
}

// Start spawns the agent subprocess and begins pumping events.
func Start(opts Options) (*Runner, error) {
	binary := opts.Binary
	if binary == "" {
		binary = "claude"
	}
	resolved, err := exec.LookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("agent binary %s: %w", binary, err)
	}

	cmd := exec.Command(resolved, buildArgs(opts)...)
	cmd.Dir = opts.Cwd
	cmd.Env = buildEnv(opts)
	// Own process group so Kill can take down the whole tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start agent: %w", err)
	}

	r := &Runner{
		cmd:    cmd,
		stdin:  stdin,
		events: make(chan Event, 64),
	}
	go r.readLoop(stdout)
	return r, nil
}

func buildArgs(opts Options) []string {
	args := []string{
		"--print",
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--include-partial-messages",
		"--verbose",
	}
	if opts.Resume != "" {
		args = append(args, "--resume", opts.Resume)
		if opts.Fork {
			args = append(args, "--fork-session")
		}
	}
	if opts.Effort.Valid() {
		args = append(args, "--effort", string(opts.Effort))
	}
	if opts.Thinking.Mode == domain.ThinkingEnabled && opts.Thinking.BudgetTokens > 0 {
		args = append(args, "--max-thinking-tokens", strconv.Itoa(opts.Thinking.BudgetTokens))
	}
	if len(opts.AllowedTools) > 0 {
		args = append(args, "--allowedTools", strings.Join(opts.AllowedTools, ","))
	}
	if len(opts.PromptExtra) > 0 {
		args = append(args, "--append-system-prompt", strings.Join(opts.PromptExtra, "\n\n"))
	}
	return args
}

func buildEnv(opts Options) []string {
	env := os.Environ()
	if opts.Thinking.Mode == domain.ThinkingDisabled {
		env = append(env, "MAX_THINKING_TOKENS=0")
	}
	for k, v := range opts.ExtraEnv {
		env = append(env, k+"="+v)
	}
	return env
}

// Events returns the stream of parsed agent events. The channel closes when
// the subprocess exits and its stdout drains.
func (r *Runner) Events() <-chan Event {
	return r.events
}

func (r *Runner) readLoop(stdout io.Reader) {
	defer close(r.events)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		events, err := ParseLine(scanner.Text())
		if err != nil {
			slog.Warn("Skipping unparseable agent line", "error", err)
			continue
		}
		for _, ev := range events {
			r.events <- ev
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		slog.Debug("Agent stdout closed", "error", err)
	}

	if err := r.cmd.Wait(); err != nil {
		slog.Debug("Agent process exited", "error", err)
	}
}

// Send injects text as a discrete user turn on the agent's stdin.
func (r *Runner) Send(text string) error {
	return r.writeLine(map[string]any{
		"type": "user",
		"message": map[string]any{
			"role": "user",
			"content": []map[string]any{
				{"type": "text", "text": text},
			},
		},
	})
}

// Answer resolves a suspended interactive tool call with the tool's expected
// input shape.
func (r *Runner) Answer(toolID string, payload map[string]any) error {
	return r.writeLine(map[string]any{
		"type": "control_response",
		"response": map[string]any{
			"subtype":    "success",
			"request_id": toolID,
			"response":   payload,
		},
	})
}

// CancelTask requests cancellation of a background task. Best-effort: the
// outcome, if any, arrives later as a stream event.
func (r *Runner) CancelTask(taskID string) error {
	return r.writeLine(map[string]any{
		"type":       "control_request",
		"request_id": uuid.NewString(),
		"request": map[string]any{
			"subtype": "cancel_task",
			"task_id": taskID,
		},
	})
}

// Interrupt asks the agent to stop the current turn without killing it.
func (r *Runner) Interrupt() error {
	return r.writeLine(map[string]any{
		"type":       "control_request",
		"request_id": uuid.NewString(),
		"request":    map[string]any{"subtype": "interrupt"},
	})
}

func (r *Runner) writeLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal agent input: %w", err)
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	if _, err := r.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write agent stdin: %w", err)
	}
	return nil
}

// Kill force-terminates the subprocess tree. Idempotent and safe to call
// concurrently with the event loop.
func (r *Runner) Kill() {
	r.killOnce.Do(func() {
		pid := r.cmd.Process.Pid
		_ = r.stdin.Close()
		if err := signalGroup(pid, syscall.SIGTERM); err != nil {
			slog.Debug("SIGTERM to agent group failed", "pid", pid, "error", err)
		}
		go func() {
			time.Sleep(killGrace)
			if err := signalGroup(pid, syscall.SIGKILL); err != nil {
				slog.Debug("SIGKILL to agent group failed", "pid", pid, "error", err)
			}
		}()
	})
}

// signalGroup signals the whole process group, tolerating an already-gone
// process.
func signalGroup(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
