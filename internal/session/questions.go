package session

import (
	"sync"

	"github.com/Yllib/socketclaude/internal/wire"
)

// pendingQuestion is one interactive question awaiting a client answer. The
// outward message is cached so it can be replayed verbatim to a reconnecting
// client. Resolution happens at most once.
type pendingQuestion struct {
	id      int64
	toolID  string
	message wire.Question
	answers chan map[string]string
	once    sync.Once
}

func newPendingQuestion(msg wire.Question) *pendingQuestion {
	return &pendingQuestion{
		id:      msg.QuestionID,
		toolID:  msg.ToolID,
		message: msg,
		answers: make(chan map[string]string, 1),
	}
}

// resolve delivers the answers exactly once; later calls are dropped.
func (p *pendingQuestion) resolve(answers map[string]string) {
	p.once.Do(func() {
		p.answers <- answers
	})
}

// questionFromInput builds the outward question for the question-asking tool.
// The input carries one or more sub-questions, each with a free-form prompt,
// optional header, labeled options, and a multi-select flag.
func questionFromInput(questionID int64, toolID string, input map[string]any) wire.Question {
	q := wire.Question{
		Type:       wire.EvQuestion,
		QuestionID: questionID,
		ToolID:     toolID,
	}

	items, _ := input["questions"].([]any)
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		sub := wire.SubQuestion{
			Prompt:      stringField(m, "question"),
			Header:      stringField(m, "header"),
			MultiSelect: boolField(m, "multiSelect"),
		}
		options, _ := m["options"].([]any)
		for _, opt := range options {
			switch o := opt.(type) {
			case string:
				sub.Options = append(sub.Options, wire.QuestionOption{Label: o})
			case map[string]any:
				sub.Options = append(sub.Options, wire.QuestionOption{Label: stringField(o, "label")})
			}
		}
		q.Questions = append(q.Questions, sub)
	}

	if len(q.Questions) == 0 {
		// Malformed input still yields an answerable question rather than a
		// wedged tool call.
		q.Questions = []wire.SubQuestion{{Prompt: stringField(input, "question")}}
	}
	return q
}

// planQuestion builds the approval question for the plan-approval tool.
func planQuestion(questionID int64, toolID string, input map[string]any) wire.Question {
	return wire.Question{
		Type:       wire.EvQuestion,
		QuestionID: questionID,
		ToolID:     toolID,
		Questions: []wire.SubQuestion{{
			Prompt: stringField(input, "plan"),
			Header: "Plan approval",
			Options: []wire.QuestionOption{
				{Label: "Approve"},
				{Label: "Keep planning"},
			},
		}},
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}
