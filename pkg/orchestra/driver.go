// Package orchestra is the Agent Driver (spec §4.5): it executes one
// coding session per WorkItem as a message loop over {system_init,
// assistant_turn, tool_use, tool_result, result} events, dispatching the
// model's tool calls — file edits, sandboxed shell commands, tracker
// updates, optional browser/retrieval skills — synchronously against the
// project directory and feeding each result back into the conversation.
package orchestra

import (
	"context"
	"fmt"
	"strings"

	"github.com/loomwork/loom/pkg/llm"
	"github.com/loomwork/loom/pkg/sandbox"
	"github.com/loomwork/loom/pkg/sdk"
	"github.com/loomwork/loom/pkg/tracker"
)

// Outcome is the driver's reading of a session's conclusion.
type Outcome string

const (
	// OutcomeCompleted means the model emitted a well-formed completion
	// conclusion; the WorkItem transitions to done.
	OutcomeCompleted Outcome = "completed"

	// OutcomeBlocked means the model explicitly declared the item
	// blocked; the WorkItem transitions to blocked with the reason.
	OutcomeBlocked Outcome = "blocked"

	// OutcomeInconclusive means the session ended without a well-formed
	// conclusion (turn budget, or free text with no RESULT line); the
	// failure policy applies.
	OutcomeInconclusive Outcome = "inconclusive"
)

// DriverConfig configures the Agent Driver for one project directory.
type DriverConfig struct {
	// WorkDir is the project directory the session owns.
	WorkDir string

	// Model overrides the provider's default model when non-empty.
	Model string

	// MaxTurns bounds one session's assistant turns; 0 uses the default.
	MaxTurns int

	// SystemPrompt overrides the kind-specific prompt template; empty
	// uses WebCodingPrompt.
	SystemPrompt string
}

// Driver runs one coding session per WorkItem. It owns the item's
// status transitions, the session transcript, and the tracker comments;
// the Session loop owns the conversation.
type Driver struct {
	router  *llm.Router
	tracker tracker.Tracker
	policy  *sandbox.Policy
	hooks   *sdk.HookSet
	config  DriverConfig
	skills  []sdk.Skill

	// ResetOnFailure sends a failed item back to todo for an automatic
	// retry on the next iteration instead of leaving it in_progress for
	// operator inspection (spec §4.5 failure policy).
	ResetOnFailure bool
}

// NewDriver wires a router, tracker, and sandbox policy into an Agent
// Driver. The pre-tool-use hook set it installs denies writes to
// sensitive paths; writes outside the project directory are refused by
// the sandbox's containment check at dispatch time.
func NewDriver(router *llm.Router, trk tracker.Tracker, policy *sandbox.Policy, cfg DriverConfig) (*Driver, error) {
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("driver requires a project directory")
	}
	if cfg.Model != "" {
		router.SetDefaultModel(cfg.Model)
	}

	hooks := sdk.NewHookSet()
	hooks.Register(sdk.HookPreToolUse, sdk.SensitivePathHook())

	return &Driver{
		router:  router,
		tracker: trk,
		policy:  policy,
		hooks:   hooks,
		config:  cfg,
	}, nil
}

// WithSkills attaches the optional tool set (spec §4.5) the session
// declares to the model alongside the built-in tools — the browser
// skill for web-coding sessions, retrieval for library-coding ones.
func (d *Driver) WithSkills(skills ...sdk.Skill) *Driver {
	d.skills = skills
	return d
}

// DriveResult summarizes one WorkItem session for the loop controller.
type DriveResult struct {
	Item    *sdk.WorkItem
	Outcome Outcome

	// Summary is the conclusion text after the RESULT marker.
	Summary string

	// Output is every assistant turn's text, concatenated; the session
	// orchestrator scans it for stop sentinels.
	Output string

	// Changes are the file modifications the session applied.
	Changes []Change

	// Commands are the shell commands the session ran.
	Commands []string

	Accepted  bool
	Turns     int
	ToolCalls int
	TokensIn  int
	TokensOut int
}

// RunItem drives a single WorkItem through one coding session: the item
// transitions to in_progress on entry; a completed conclusion moves it
// to done with a structured comment plus a meta-item summary; an
// explicit blocked conclusion moves it to blocked with the reason; a
// driver error or an inconclusive session leaves it in_progress for the
// operator — or resets it to todo when ResetOnFailure is set — with the
// failure posted as a comment either way.
func (d *Driver) RunItem(ctx context.Context, item *sdk.WorkItem) (*DriveResult, error) {
	item.Transition(sdk.ItemStatusInProgress)
	if err := d.tracker.Update(item); err != nil {
		return nil, fmt.Errorf("mark in progress: %w", err)
	}

	transcript, err := NewTranscript(d.config.WorkDir, item.Title)
	if err != nil {
		return nil, err
	}

	tools := NewToolset(d.config.WorkDir, d.policy, d.hooks, d.tracker, item.ID, d.skills)
	system := d.config.SystemPrompt
	if system == "" {
		system = WebCodingPrompt
	}
	session := NewSession(d.router, tools, system, renderItem(item), d.config.MaxTurns)

	sres, err := session.Run(ctx, transcript.Record)
	if err != nil {
		_ = transcript.Close("error", err.Error())
		d.recordFailure(item, "driver session failed: "+err.Error())
		return nil, err
	}

	outcome, summary := parseConclusion(sres.FinalText)
	if !sres.Concluded {
		outcome, summary = OutcomeInconclusive, "turn budget exhausted"
	}
	_ = transcript.Close(string(outcome), summary)

	res := &DriveResult{
		Item:      item,
		Outcome:   outcome,
		Summary:   summary,
		Output:    sres.Output,
		Changes:   tools.Changes(),
		Commands:  tools.Commands(),
		Accepted:  outcome == OutcomeCompleted,
		Turns:     sres.Turns,
		ToolCalls: sres.ToolCalls,
		TokensIn:  sres.TokensIn,
		TokensOut: sres.TokensOut,
	}

	switch outcome {
	case OutcomeCompleted:
		item.Transition(sdk.ItemStatusDone)
		_ = d.tracker.AddComment(item.ID, completionComment(summary, res), "driver")
		if err := d.tracker.Update(item); err != nil {
			return nil, fmt.Errorf("persist done status: %w", err)
		}
		d.commentMetaItem(item, res)
	case OutcomeBlocked:
		item.Transition(sdk.ItemStatusBlocked)
		_ = d.tracker.AddComment(item.ID, "blocked: "+summary, "driver")
		if err := d.tracker.Update(item); err != nil {
			return nil, fmt.Errorf("persist blocked status: %w", err)
		}
		d.commentMetaItem(item, res)
	default:
		d.recordFailure(item, "session ended without a conclusion: "+summary)
	}

	return res, nil
}

// recordFailure posts the failure to the item and applies the configured
// failure policy (spec §4.5: leave in_progress for operator inspection,
// or reset to todo to auto-retry).
func (d *Driver) recordFailure(item *sdk.WorkItem, reason string) {
	_ = d.tracker.AddComment(item.ID, reason, "driver")
	if d.ResetOnFailure {
		item.Transition(sdk.ItemStatusTodo)
		_ = d.tracker.Update(item)
	}
}

// commentMetaItem appends the cross-session handoff note to the
// project's meta item: which item ran, how it ended, and what changed.
func (d *Driver) commentMetaItem(item *sdk.WorkItem, res *DriveResult) {
	var meta *sdk.WorkItem
	for _, candidate := range d.tracker.List() {
		if candidate.IsMeta {
			meta = candidate
			break
		}
	}
	if meta == nil {
		return
	}
	body := fmt.Sprintf("session: %q -> %s, %d turn(s), %d tool call(s), %d file(s) changed",
		item.Title, res.Outcome, res.Turns, res.ToolCalls, len(res.Changes))
	_ = d.tracker.AddComment(meta.ID, body, "driver")
}

// renderItem is the opening user message: the WorkItem the session must
// implement, with its operator-authored test steps.
func renderItem(item *sdk.WorkItem) string {
	var sb strings.Builder
	sb.WriteString("Implement the following work item.\n\n")
	sb.WriteString("Title: " + item.Title + "\n")
	if item.Category != "" {
		sb.WriteString("Category: " + item.Category + "\n")
	}
	sb.WriteString("\n" + item.Description + "\n")
	if len(item.TestSteps) > 0 {
		sb.WriteString("\nTest steps:\n")
		for i, step := range item.TestSteps {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, step)
		}
	}
	return sb.String()
}

// completionComment is the structured "what changed and what tests ran"
// record a done WorkItem gets.
func completionComment(summary string, res *DriveResult) string {
	var sb strings.Builder
	sb.WriteString("completed: " + summary)
	if len(res.Changes) > 0 {
		sb.WriteString("\nfiles changed:")
		for _, c := range res.Changes {
			sb.WriteString("\n- " + string(c.Type) + " " + c.Path)
		}
	}
	if len(res.Commands) > 0 {
		sb.WriteString("\ncommands run:")
		for _, cmd := range res.Commands {
			sb.WriteString("\n- " + cmd)
		}
	}
	return sb.String()
}

// parseConclusion reads the session's final turn for the well-formed
// conclusion the prompts require: a line starting "RESULT: completed" or
// "RESULT: blocked", with everything after the marker as the summary.
func parseConclusion(finalText string) (Outcome, string) {
	for _, line := range strings.Split(finalText, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), "RESULT:")
		if !ok {
			continue
		}
		rest = strings.TrimSpace(rest)
		lower := strings.ToLower(rest)
		switch {
		case strings.HasPrefix(lower, "completed"):
			return OutcomeCompleted, trimConclusion(rest, "completed")
		case strings.HasPrefix(lower, "blocked"):
			return OutcomeBlocked, trimConclusion(rest, "blocked")
		}
	}
	return OutcomeInconclusive, firstLine(finalText)
}

func trimConclusion(rest, marker string) string {
	rest = strings.TrimSpace(rest[len(marker):])
	rest = strings.TrimLeft(rest, "-—: ")
	if rest == "" {
		return marker
	}
	return rest
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
