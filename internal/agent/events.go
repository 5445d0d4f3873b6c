// Package agent runs the conversational agent as a streaming subprocess and
// translates its stdout into typed events.
package agent

import (
	"encoding/json"
)

// EventType discriminates stream events.
type EventType string

const (
	// EventInit is the agent's session-identity confirmation. The session id
	// is unknown before this event arrives.
	EventInit EventType = "init"
	// EventDelta is one incremental piece of assistant text.
	EventDelta EventType = "delta"
	// EventAssistant is a completed assistant turn with its full text.
	EventAssistant EventType = "assistant"
	// EventToolCall is a tool invocation request.
	EventToolCall EventType = "tool_call"
	// EventToolResult is a tool's output returning to the agent.
	EventToolResult EventType = "tool_result"
	// EventResult closes the query with usage and cost figures.
	EventResult EventType = "result"
	// EventCompacting reports a context-compaction state change.
	EventCompacting EventType = "compacting"
	// EventCompactBoundary marks a compaction point.
	EventCompactBoundary EventType = "compact_boundary"
	// EventError is a provider-reported fault.
	EventError EventType = "error"
)

// ToolUse describes one tool invocation.
type ToolUse struct {
	ID    string
	Name  string
	Input map[string]any
}

// ToolOutput is a tool result addressed to its originating invocation.
type ToolOutput struct {
	ToolID  string
	Content string
	IsError bool
}

// Usage is token accounting for a single turn.
type Usage struct {
	InputTokens         int
	OutputTokens        int
	CacheReadTokens     int
	CacheCreationTokens int
}

// Result summarizes a finished query. Usage covers the final turn only.
type Result struct {
	DurationMs int64
	CostUSD    float64
	NumTurns   int
	StopReason string
	Usage      Usage
	IsError    bool
}

// Compact describes a compaction boundary.
type Compact struct {
	Trigger   string
	PreTokens int
}

// Event is one item of the agent's stream.
type Event struct {
	Type       EventType
	SessionID  string
	Text       string
	Tool       *ToolUse
	ToolResult *ToolOutput
	Usage      *Usage
	Result     *Result
	Compact    *Compact
	Active     bool // EventCompacting
	Err        string
	Raw        json.RawMessage
}
