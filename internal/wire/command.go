// Package wire defines the tagged JSON records exchanged with clients: inbound
// control commands and outbound events.
package wire

import (
	"github.com/Yllib/socketclaude/internal/domain"
)

// Inbound command types (client → engine).
const (
	CmdStartNewSession = "start-new-session"
	CmdResumeSession   = "resume-session"
	CmdSubmitPrompt    = "submit-prompt"
	CmdAnswerQuestion  = "answer-question"
	CmdAbort           = "abort"
	CmdInterrupt       = "interrupt"
	CmdSetEffort       = "set-effort"
	CmdSetThinking     = "set-thinking"
	CmdStopTask        = "stop-task"
	CmdForkSession     = "fork-session"
	CmdRequestFile     = "request-file"
	CmdUploadStart     = "upload-start"
	CmdUploadChunk     = "upload-chunk"
	CmdLoadMoreHistory = "load-more-history"
	CmdListSessions    = "list-sessions"
)

// Command is one inbound control message. It is a flat union: only the fields
// relevant to Type are populated.
type Command struct {
	Type string `json:"type"`

	// start-new-session
	Cwd string `json:"cwd,omitempty"`

	// resume-session, submit-prompt, load-more-history
	SessionID string `json:"sessionId,omitempty"`

	// submit-prompt
	Text string `json:"text,omitempty"`

	// answer-question
	QuestionID int64             `json:"questionId,omitempty"`
	Answers    map[string]string `json:"answers,omitempty"`

	// set-effort
	Level string `json:"level,omitempty"`

	// set-thinking
	Thinking *domain.Thinking `json:"thinking,omitempty"`

	// stop-task
	TaskID string `json:"id,omitempty"`

	// fork-session
	SourceID string `json:"sourceId,omitempty"`

	// request-file, upload-start
	Path string `json:"path,omitempty"`

	// upload-start, upload-chunk
	UploadID string `json:"uploadId,omitempty"`
	Name     string `json:"name,omitempty"`
	Total    int    `json:"total,omitempty"`
	Index    int    `json:"index,omitempty"`
	Data     string `json:"data,omitempty"` // base64

	// load-more-history
	Offset int `json:"offset,omitempty"`
	Limit  int `json:"limit,omitempty"`
}
