package wire

import (
	"github.com/Yllib/socketclaude/internal/domain"
)

// Outbound event types (engine → client).
const (
	EvTextDelta       = "text-delta"
	EvToolCall        = "tool-call"
	EvToolResult      = "tool-result"
	EvToolProgress    = "tool-progress"
	EvQuestion        = "question"
	EvResult          = "result"
	EvSessionCreated  = "session-created"
	EvSessionHistory  = "session-history"
	EvSessionList     = "session-list"
	EvStatus          = "status"
	EvCompacting      = "compacting-state-change"
	EvCompactBoundary = "compact-boundary"
	EvTaskNotify      = "task-notification"
	EvTodos           = "todos"
	EvSpeak           = "speak"
	EvReminder        = "reminder"
	EvFileMetadata    = "file-metadata"
	EvFileChunk       = "file-chunk"
	EvUploadComplete  = "upload-complete"
	EvError           = "error"
)

// TextDelta carries one incremental piece of assistant output.
type TextDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func NewTextDelta(text string) TextDelta {
	return TextDelta{Type: EvTextDelta, Text: text}
}

// ToolCall announces a generic tool invocation.
type ToolCall struct {
	Type   string         `json:"type"`
	ToolID string         `json:"toolId"`
	Name   string         `json:"name"`
	Input  map[string]any `json:"input,omitempty"`
}

func NewToolCall(toolID, name string, input map[string]any) ToolCall {
	return ToolCall{Type: EvToolCall, ToolID: toolID, Name: name, Input: input}
}

// ToolResult carries a tool's output, whole or as one chunk of a split
// output. For unchunked results Index is 0 and Last is true.
type ToolResult struct {
	Type    string `json:"type"`
	ToolID  string `json:"toolId"`
	Content string `json:"content"`
	IsError bool   `json:"isError,omitempty"`
	Chunked bool   `json:"chunked,omitempty"`
	Index   int    `json:"index"`
	Last    bool   `json:"last"`
}

// ToolProgress forwards live output appended while a tool is still running.
type ToolProgress struct {
	Type   string `json:"type"`
	ToolID string `json:"toolId"`
	Output string `json:"output"`
}

// QuestionOption is one selectable answer for a sub-question.
type QuestionOption struct {
	Label string `json:"label"`
}

// SubQuestion is one prompt inside an interactive question.
type SubQuestion struct {
	Prompt      string           `json:"prompt"`
	Header      string           `json:"header,omitempty"`
	Options     []QuestionOption `json:"options,omitempty"`
	MultiSelect bool             `json:"multiSelect,omitempty"`
}

// Question suspends a tool call until the client answers.
type Question struct {
	Type       string        `json:"type"`
	QuestionID int64         `json:"questionId"`
	ToolID     string        `json:"toolId,omitempty"`
	Questions  []SubQuestion `json:"questions"`
}

// Usage is the token accounting for the most recent turn only; cumulative
// provider totals do not reflect current context occupancy.
type Usage struct {
	InputTokens         int `json:"inputTokens"`
	OutputTokens        int `json:"outputTokens"`
	CacheReadTokens     int `json:"cacheReadTokens,omitempty"`
	CacheCreationTokens int `json:"cacheCreationTokens,omitempty"`
}

// Result closes one query.
type Result struct {
	Type       string  `json:"type"`
	DurationMs int64   `json:"durationMs"`
	CostUSD    float64 `json:"costUsd"`
	NumTurns   int     `json:"numTurns"`
	StopReason string  `json:"stopReason,omitempty"`
	Usage      Usage   `json:"usage"`
	IsError    bool    `json:"isError,omitempty"`
}

// SessionCreated reports the agent-confirmed session identity.
type SessionCreated struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Cwd       string `json:"cwd,omitempty"`
}

// SessionHistory is one page of persisted history. Append marks out-of-band
// recovered messages that extend what the client already has.
type SessionHistory struct {
	Type      string              `json:"type"`
	SessionID string              `json:"sessionId"`
	Entries   []*domain.ChatEntry `json:"entries"`
	Total     int                 `json:"total"`
	Offset    int                 `json:"offset"`
	Append    bool                `json:"append,omitempty"`
}

// SessionList enumerates known sessions.
type SessionList struct {
	Type     string            `json:"type"`
	Sessions []*domain.Session `json:"sessions"`
}

// Status resynchronizes a (re)connecting client with engine state.
type Status struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Running   bool   `json:"running"`
}

// Compacting reports that context compaction started or finished.
type Compacting struct {
	Type   string `json:"type"`
	Active bool   `json:"active"`
}

// CompactBoundary marks a compaction point in the stream.
type CompactBoundary struct {
	Type      string `json:"type"`
	Trigger   string `json:"trigger"`
	PreTokens int    `json:"preCompactionTokens"`
}

// TaskNotification reports a background task transition.
type TaskNotification struct {
	Type    string `json:"type"`
	TaskID  string `json:"taskId"`
	Status  string `json:"status"`
	Summary string `json:"summary,omitempty"`
}

// Todos carries the agent-maintained task list.
type Todos struct {
	Type  string            `json:"type"`
	Todos []domain.TodoItem `json:"todos"`
}

// Speak asks the client to read text aloud.
type Speak struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Reminder asks the client to schedule a local reminder.
type Reminder struct {
	Type string `json:"type"`
	At   string `json:"at"`
	Text string `json:"text"`
}

// FileMetadata precedes a file-chunk sequence.
type FileMetadata struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	Chunks int    `json:"chunks"`
}

// FileChunk is one base64 piece of a transferred file.
type FileChunk struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Index int    `json:"index"`
	Total int    `json:"total"`
	Data  string `json:"data"` // base64
}

// UploadComplete acknowledges a fully assembled upload.
type UploadComplete struct {
	Type     string `json:"type"`
	UploadID string `json:"uploadId"`
	Path     string `json:"path"`
}

// Error is a session- or connection-scoped fault report.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewError(message string) Error {
	return Error{Type: EvError, Message: message}
}
