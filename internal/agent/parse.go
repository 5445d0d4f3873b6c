package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseLine parses one line of the agent's stream-json output into zero or
// more events. Blank lines and unrecognized record types yield no events.
func ParseLine(line string) ([]Event, error) {
	if strings.TrimSpace(line) == "" {
		return nil, nil
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return nil, fmt.Errorf("agent: invalid JSON line: %w", err)
	}

	typeStr, _ := raw["type"].(string)
	rawMsg := json.RawMessage(line)

	switch typeStr {
	case "system":
		return parseSystem(raw, rawMsg), nil
	case "assistant":
		return parseAssistant(raw, rawMsg), nil
	case "user":
		return parseUser(raw, rawMsg), nil
	case "stream_event":
		return parseStreamEvent(raw, rawMsg), nil
	case "result":
		return []Event{parseResult(raw, rawMsg)}, nil
	case "error":
		return []Event{{Type: EventError, Err: getString(raw, "message"), Raw: rawMsg}}, nil
	default:
		return nil, nil
	}
}

func parseSystem(raw map[string]any, rawMsg json.RawMessage) []Event {
	switch getString(raw, "subtype") {
	case "init":
		return []Event{{Type: EventInit, SessionID: getString(raw, "session_id"), Raw: rawMsg}}
	case "compact_boundary":
		meta, _ := raw["compact_metadata"].(map[string]any)
		return []Event{{
			Type: EventCompactBoundary,
			Compact: &Compact{
				Trigger:   getString(meta, "trigger"),
				PreTokens: getInt(meta, "pre_tokens"),
			},
			Raw: rawMsg,
		}}
	case "status":
		// The stream flags compaction start/end as a status transition.
		status := getString(raw, "status")
		if status == "compacting" || status == "ready" {
			return []Event{{Type: EventCompacting, Active: status == "compacting", Raw: rawMsg}}
		}
	}
	return nil
}

// parseAssistant emits tool_call events for each tool_use block, then one
// assistant event carrying the turn's full text and usage.
func parseAssistant(raw map[string]any, rawMsg json.RawMessage) []Event {
	message, _ := raw["message"].(map[string]any)
	contentArr, _ := message["content"].([]any)

	var events []Event
	var text strings.Builder
	for _, c := range contentArr {
		block, ok := c.(map[string]any)
		if !ok {
			continue
		}
		switch getString(block, "type") {
		case "text":
			text.WriteString(getString(block, "text"))
		case "tool_use":
			input, _ := block["input"].(map[string]any)
			events = append(events, Event{
				Type: EventToolCall,
				Tool: &ToolUse{
					ID:    getString(block, "id"),
					Name:  getString(block, "name"),
					Input: input,
				},
				Raw: rawMsg,
			})
		}
	}

	events = append(events, Event{
		Type:  EventAssistant,
		Text:  text.String(),
		Usage: extractUsage(message),
		Raw:   rawMsg,
	})
	return events
}

func parseUser(raw map[string]any, rawMsg json.RawMessage) []Event {
	message, _ := raw["message"].(map[string]any)
	contentArr, _ := message["content"].([]any)

	var events []Event
	for _, c := range contentArr {
		block, ok := c.(map[string]any)
		if !ok || getString(block, "type") != "tool_result" {
			continue
		}
		events = append(events, Event{
			Type: EventToolResult,
			ToolResult: &ToolOutput{
				ToolID:  getString(block, "tool_use_id"),
				Content: blockContentText(block["content"]),
				IsError: getBool(block, "is_error"),
			},
			Raw: rawMsg,
		})
	}
	return events
}

// parseStreamEvent unwraps the inner event: stream_event carries its own
// type discriminator one level down.
func parseStreamEvent(raw map[string]any, rawMsg json.RawMessage) []Event {
	inner, _ := raw["event"].(map[string]any)
	if getString(inner, "type") != "content_block_delta" {
		return nil
	}
	delta, _ := inner["delta"].(map[string]any)
	if getString(delta, "type") != "text_delta" {
		return nil
	}
	return []Event{{Type: EventDelta, Text: getString(delta, "text"), Raw: rawMsg}}
}

func parseResult(raw map[string]any, rawMsg json.RawMessage) Event {
	usage, _ := raw["usage"].(map[string]any)
	res := &Result{
		DurationMs: int64(getInt(raw, "duration_ms")),
		CostUSD:    getFloat(raw, "total_cost_usd"),
		NumTurns:   getInt(raw, "num_turns"),
		StopReason: getString(raw, "subtype"),
		IsError:    getBool(raw, "is_error"),
	}
	if u := extractUsage(map[string]any{"usage": usage}); u != nil {
		res.Usage = *u
	}
	return Event{Type: EventResult, Result: res, Raw: rawMsg}
}

// blockContentText flattens a tool_result content value, which is either a
// plain string or an array of text blocks.
func blockContentText(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []any:
		var b strings.Builder
		for _, item := range c {
			if block, ok := item.(map[string]any); ok {
				b.WriteString(getString(block, "text"))
			}
		}
		return b.String()
	}
	return ""
}

func extractUsage(message map[string]any) *Usage {
	usage, ok := message["usage"].(map[string]any)
	if !ok {
		return nil
	}
	return &Usage{
		InputTokens:         getInt(usage, "input_tokens"),
		OutputTokens:        getInt(usage, "output_tokens"),
		CacheReadTokens:     getInt(usage, "cache_read_input_tokens"),
		CacheCreationTokens: getInt(usage, "cache_creation_input_tokens"),
	}
}

func getString(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func getBool(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

func getInt(m map[string]any, key string) int {
	if m == nil {
		return 0
	}
	if f, ok := m[key].(float64); ok {
		return int(f)
	}
	return 0
}

func getFloat(m map[string]any, key string) float64 {
	if m == nil {
		return 0
	}
	f, _ := m[key].(float64)
	return f
}
