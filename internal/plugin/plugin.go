// Package plugin hosts optional hook chains supplied by externally installed
// plugins. The engine calls into the host at fixed points; hook discovery and
// loading live elsewhere.
package plugin

import (
	"context"

	"github.com/Yllib/socketclaude/internal/wire"
)

// Hook is the shared capability interface. Concrete hooks additionally
// implement one or more of the capability interfaces below; the host resolves
// capabilities by type assertion and tries hooks in registration order.
type Hook interface {
	Name() string
}

// ToolVerdict is a tool interceptor's decision. The zero value means
// "no opinion": built-in handling proceeds.
type ToolVerdict struct {
	Handled bool
	Output  string
	IsError bool
}

// NoOpinion lets the next hook, or the built-in handler, decide.
var NoOpinion = ToolVerdict{}

// ToolInterceptor may take over a tool call before built-in handling runs.
type ToolInterceptor interface {
	InterceptTool(ctx context.Context, name string, input map[string]any) (ToolVerdict, error)
}

// AnswerInterceptor may answer an interactive question without involving the
// client. Returning ok=false passes the question through.
type AnswerInterceptor interface {
	InterceptAnswer(ctx context.Context, question wire.Question) (map[string]string, bool)
}

// ToolProvider contributes extra tool names to the agent's allowed set.
type ToolProvider interface {
	AllowedTools() []string
}

// EnvProvider contributes extra environment variables for the agent process.
type EnvProvider interface {
	ExtraEnv() map[string]string
}

// PromptProvider contributes a fragment appended to the system prompt.
type PromptProvider interface {
	PromptFragment() string
}

// Host holds the ordered hook list.
type Host struct {
	hooks []Hook
}

// NewHost creates a host over the given hooks, tried in order.
func NewHost(hooks ...Hook) *Host {
	return &Host{hooks: hooks}
}

// InterceptTool runs tool interceptors in order until one returns a definite
// verdict. Errors from a hook are treated as no opinion for that hook.
func (h *Host) InterceptTool(ctx context.Context, name string, input map[string]any) (ToolVerdict, error) {
	if h == nil {
		return NoOpinion, nil
	}
	for _, hook := range h.hooks {
		ti, ok := hook.(ToolInterceptor)
		if !ok {
			continue
		}
		verdict, err := ti.InterceptTool(ctx, name, input)
		if err != nil {
			return NoOpinion, err
		}
		if verdict.Handled {
			return verdict, nil
		}
	}
	return NoOpinion, nil
}

// InterceptAnswer runs answer interceptors in order until one answers.
func (h *Host) InterceptAnswer(ctx context.Context, question wire.Question) (map[string]string, bool) {
	if h == nil {
		return nil, false
	}
	for _, hook := range h.hooks {
		ai, ok := hook.(AnswerInterceptor)
		if !ok {
			continue
		}
		if answers, ok := ai.InterceptAnswer(ctx, question); ok {
			return answers, true
		}
	}
	return nil, false
}

// AllowedTools collects extra tool names from all providers.
func (h *Host) AllowedTools() []string {
	if h == nil {
		return nil
	}
	var tools []string
	for _, hook := range h.hooks {
		if tp, ok := hook.(ToolProvider); ok {
			tools = append(tools, tp.AllowedTools()...)
		}
	}
	return tools
}

// ExtraEnv merges extra environment variables from all providers. Later hooks
// win on key collisions.
func (h *Host) ExtraEnv() map[string]string {
	if h == nil {
		return nil
	}
	env := make(map[string]string)
	for _, hook := range h.hooks {
		if ep, ok := hook.(EnvProvider); ok {
			for k, v := range ep.ExtraEnv() {
				env[k] = v
			}
		}
	}
	if len(env) == 0 {
		return nil
	}
	return env
}

// PromptFragments collects system prompt fragments in hook order.
func (h *Host) PromptFragments() []string {
	if h == nil {
		return nil
	}
	var fragments []string
	for _, hook := range h.hooks {
		if pp, ok := hook.(PromptProvider); ok {
			if f := pp.PromptFragment(); f != "" {
				fragments = append(fragments, f)
			}
		}
	}
	return fragments
}
