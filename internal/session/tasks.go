package session

import (
	"regexp"
)

// Background-task correlation relies on pattern-matching free-form tool
// output. This is a best-effort heuristic, not a contract: a non-match simply
// leaves the task untracked and never fails the query.
var (
	backgroundTaskPattern = regexp.MustCompile(`(?i)running in (?:the )?background[^\n]*?\b(?:task |shell )?id[:\s]+"?([\w.-]+)"?`)
	backgroundPathPattern = regexp.MustCompile(`(?i)output (?:file|path)[:\s]+"?([^\s"]+)"?`)
)

// detectBackgroundTask extracts the provider-assigned background-task id from
// a tool's textual output, or "" when the output carries no such signal.
func detectBackgroundTask(output string) string {
	m := backgroundTaskPattern.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	return m[1]
}

// detectBackgroundOutputPath extracts the new live-output source announced
// alongside a background transition, or "" when none is named.
func detectBackgroundOutputPath(output string) string {
	m := backgroundPathPattern.FindStringSubmatch(output)
	if m == nil {
		return ""
	}
	return m[1]
}
