// Package domain holds the core value types shared across the server.
package domain

import (
	"time"
)

// EffortLevel controls how much reasoning effort the agent spends per turn.
type EffortLevel string

const (
	EffortLow    EffortLevel = "low"
	EffortMedium EffortLevel = "medium"
	EffortHigh   EffortLevel = "high"
)

// Valid reports whether the level is one of the known values.
func (e EffortLevel) Valid() bool {
	switch e {
	case EffortLow, EffortMedium, EffortHigh:
		return true
	}
	return false
}

// ThinkingMode selects how extended thinking is requested from the agent.
type ThinkingMode string

const (
	// ThinkingAdaptive lets the agent decide when to think.
	ThinkingAdaptive ThinkingMode = "adaptive"
	// ThinkingEnabled forces thinking with an explicit token budget.
	ThinkingEnabled ThinkingMode = "enabled"
	// ThinkingDisabled turns extended thinking off.
	ThinkingDisabled ThinkingMode = "disabled"
)

// Thinking is the full thinking setting for a session. BudgetTokens is only
// meaningful when Mode is ThinkingEnabled.
type Thinking struct {
	Mode         ThinkingMode `json:"mode"`
	BudgetTokens int          `json:"budgetTokens,omitempty"`
}

// Session is the persisted metadata for one agent conversation. The ID is
// assigned by the agent on its first init event, never locally.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Cwd       string    `json:"cwd"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
