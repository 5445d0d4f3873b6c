package agent

import (
	"testing"
)

func TestParseLineInit(t *testing.T) {
	line := `{"type":"system","subtype":"init","session_id":"sess-42","cwd":"/tmp"}`
	events, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != EventInit {
		t.Fatalf("expected one init event, got %+v", events)
	}
	if events[0].SessionID != "sess-42" {
		t.Errorf("expected session id sess-42, got %q", events[0].SessionID)
	}
}

func TestParseLineTextDelta(t *testing.T) {
	line := `{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hel"}}}`
	events, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != EventDelta || events[0].Text != "Hel" {
		t.Errorf("unexpected events: %+v", events)
	}

	// Non-text deltas are not forwarded.
	line = `{"type":"stream_event","event":{"type":"content_block_delta","delta":{"type":"input_json_delta","partial_json":"{"}}}`
	events, err = ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected no events for input_json_delta, got %+v", events)
	}
}

func TestParseLineAssistantWithToolUse(t *testing.T) {
	line := `{"type":"assistant","message":{"content":[` +
		`{"type":"text","text":"Running it."},` +
		`{"type":"tool_use","id":"tu_1","name":"Bash","input":{"command":"ls"}}],` +
		`"usage":{"input_tokens":120,"output_tokens":8}}}`
	events, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected tool_call + assistant events, got %d", len(events))
	}

	tool := events[0]
	if tool.Type != EventToolCall || tool.Tool == nil {
		t.Fatalf("expected tool_call first, got %+v", tool)
	}
	if tool.Tool.ID != "tu_1" || tool.Tool.Name != "Bash" || tool.Tool.Input["command"] != "ls" {
		t.Errorf("unexpected tool call: %+v", tool.Tool)
	}

	turn := events[1]
	if turn.Type != EventAssistant || turn.Text != "Running it." {
		t.Errorf("unexpected assistant event: %+v", turn)
	}
	if turn.Usage == nil || turn.Usage.InputTokens != 120 || turn.Usage.OutputTokens != 8 {
		t.Errorf("unexpected usage: %+v", turn.Usage)
	}
}

func TestParseLineToolResult(t *testing.T) {
	line := `{"type":"user","message":{"content":[` +
		`{"type":"tool_result","tool_use_id":"tu_1","content":[{"type":"text","text":"file-a\nfile-b"}],"is_error":false}]}}`
	events, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != EventToolResult {
		t.Fatalf("expected one tool_result event, got %+v", events)
	}
	tr := events[0].ToolResult
	if tr.ToolID != "tu_1" || tr.Content != "file-a\nfile-b" || tr.IsError {
		t.Errorf("unexpected tool result: %+v", tr)
	}
}

func TestParseLineResult(t *testing.T) {
	line := `{"type":"result","subtype":"success","duration_ms":5120,"total_cost_usd":0.023,"num_turns":3,` +
		`"usage":{"input_tokens":900,"output_tokens":45,"cache_read_input_tokens":14000}}`
	events, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != EventResult {
		t.Fatalf("expected one result event, got %+v", events)
	}
	res := events[0].Result
	if res.DurationMs != 5120 || res.CostUSD != 0.023 || res.NumTurns != 3 || res.StopReason != "success" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Usage.InputTokens != 900 || res.Usage.CacheReadTokens != 14000 {
		t.Errorf("unexpected result usage: %+v", res.Usage)
	}
}

func TestParseLineCompactBoundary(t *testing.T) {
	line := `{"type":"system","subtype":"compact_boundary","compact_metadata":{"trigger":"auto","pre_tokens":161234}}`
	events, err := ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != EventCompactBoundary {
		t.Fatalf("expected compact_boundary, got %+v", events)
	}
	if events[0].Compact.Trigger != "auto" || events[0].Compact.PreTokens != 161234 {
		t.Errorf("unexpected compact metadata: %+v", events[0].Compact)
	}
}

func TestParseLineSkipsBlankAndUnknown(t *testing.T) {
	for _, line := range []string{"", "   ", `{"type":"something_new"}`} {
		events, err := ParseLine(line)
		if err != nil {
			t.Errorf("line %q: unexpected error %v", line, err)
		}
		if len(events) != 0 {
			t.Errorf("line %q: expected no events, got %+v", line, events)
		}
	}

	if _, err := ParseLine("not json"); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
