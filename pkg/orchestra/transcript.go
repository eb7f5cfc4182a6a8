package orchestra

import (
	"fmt"
	"strings"
	"time"

	"github.com/loomwork/loom/internal/fileutil"
)

// Transcript persists one session's event stream under the project
// directory's .loom/sessions, so an operator can read back what the
// agent saw and did without the tracker. It accumulates in memory and
// writes session.md and result.md on Close.
type Transcript struct {
	dir string
	buf strings.Builder
}

// NewTranscript creates the session record directory, named from the
// current time and the WorkItem title so .loom/sessions reads as a
// chronological log of every session the driver has run.
func NewTranscript(projectDir, itemTitle string) (*Transcript, error) {
	dir := fileutil.Join(projectDir, ".loom", "sessions",
		time.Now().Format("2006-01-02-1504")+"-"+slugTitle(itemTitle))
	if err := fileutil.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	return &Transcript{dir: dir}, nil
}

// Dir returns the session record directory.
func (t *Transcript) Dir() string { return t.dir }

// Record appends one event to the in-memory transcript.
func (t *Transcript) Record(ev Event) {
	switch ev.Kind {
	case EventSystemInit:
		t.buf.WriteString("## system\n" + ev.Text + "\n\n")
	case EventAssistantTurn:
		t.buf.WriteString("## assistant\n" + ev.Text + "\n\n")
	case EventToolUse:
		fmt.Fprintf(&t.buf, "### tool_use %s (%s)\n%s\n\n", ev.Tool, ev.ToolID, ev.Text)
	case EventToolResult:
		status := "ok"
		if ev.IsError {
			status = "error"
		}
		fmt.Fprintf(&t.buf, "### tool_result %s (%s) [%s]\n%s\n\n", ev.Tool, ev.ToolID, status, ev.Text)
	case EventResult:
		t.buf.WriteString("## result\n" + ev.Text + "\n")
	}
}

// Close writes session.md plus a result.md naming the outcome.
func (t *Transcript) Close(outcome, summary string) error {
	if err := fileutil.WriteFile(fileutil.Join(t.dir, "session.md"), []byte(t.buf.String())); err != nil {
		return err
	}
	body := "# Session result\n\nOutcome: " + outcome + "\n\n" + summary + "\n"
	return fileutil.WriteFile(fileutil.Join(t.dir, "result.md"), []byte(body))
}

// slugTitle creates a valid directory name from a WorkItem title.
func slugTitle(title string) string {
	if len(title) > 50 {
		title = title[:50]
	}
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, title)
	if mapped == "" {
		return "item"
	}
	return mapped
}
