package session

import (
	"github.com/Yllib/socketclaude/internal/agent"
)

// Runner is the engine's view of the agent subprocess. Satisfied by
// agent.Runner; tests substitute fakes through the engine's factory.
type Runner interface {
	// Events returns the agent's stream. The channel closes when the
	// subprocess exits.
	Events() <-chan agent.Event

	// Send injects text as a discrete user turn.
	Send(text string) error

	// Answer resolves a suspended interactive tool call.
	Answer(toolID string, payload map[string]any) error

	// CancelTask requests cancellation of a background task, fire-and-forget.
	CancelTask(taskID string) error

	// Interrupt asks the agent to stop the current turn.
	Interrupt() error

	// Kill force-terminates the subprocess tree. Idempotent.
	Kill()
}

// RunnerFactory starts a runner for one query.
type RunnerFactory func(opts agent.Options) (Runner, error)

func defaultRunnerFactory(opts agent.Options) (Runner, error) {
	return agent.Start(opts)
}
