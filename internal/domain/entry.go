package domain

import (
	"time"
)

// EntryKind categorizes chat history entries.
type EntryKind string

const (
	// EntryUser is a user prompt, including mid-query injected messages.
	EntryUser EntryKind = "user"
	// EntryAssistant is one complete assistant turn.
	EntryAssistant EntryKind = "assistant"
	// EntryTool is a tool invocation with its (possibly truncated) result.
	EntryTool EntryKind = "tool"
	// EntryQuestion is an interactive question surfaced to the client.
	EntryQuestion EntryKind = "question"
)

// ChatEntry is a single row of persisted conversation history.
type ChatEntry struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"sessionId"`
	Kind       EntryKind `json:"kind"`
	Content    string    `json:"content"`
	ToolName   string    `json:"toolName,omitempty"`
	QuestionID int64     `json:"questionId,omitempty"`
	Answered   bool      `json:"answered,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}
