package agent

import (
	"strings"

	"github.com/loomwork/loom/pkg/orchestra"
)

// defaultStopPhrases are the spec's stop sentinels, matched
// case-insensitively as substrings of driver output.
var defaultStopPhrases = []string{"feature-complete", "all issues completed"}

// StopSentinel scans driver output for the configured stop phrases. A
// phrase anywhere in a session's free text ends the outer loop with
// StopPhrase, the same way an operator typing it into the original
// tracker would.
type StopSentinel struct {
	// Phrases overrides defaultStopPhrases when non-empty.
	Phrases []string
}

// Match reports whether text contains any stop phrase.
func (s *StopSentinel) Match(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	phrases := s.Phrases
	if len(phrases) == 0 {
		phrases = defaultStopPhrases
	}
	for _, p := range phrases {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// Observe scans one drive result and reports whether a sentinel fired.
func (s *StopSentinel) Observe(res *orchestra.DriveResult) bool {
	return s.Match(driveOutputText(res))
}

// driveOutputText is the free text a driver session produced — every
// assistant turn plus the conclusion summary — so the session
// orchestrator can scan it the same way it would scan raw LLM output.
func driveOutputText(res *orchestra.DriveResult) string {
	if res == nil {
		return ""
	}
	return res.Output + " " + res.Summary
}

// driveChangeCount is the number of file changes a session applied, the
// progress signal Circuit.RecordSuccess uses to detect a WorkItem the
// driver keeps running against without touching any files.
func driveChangeCount(res *orchestra.DriveResult) int {
	if res == nil {
		return 0
	}
	return len(res.Changes)
}
