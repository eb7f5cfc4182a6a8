package sdk

import (
	"context"
	"regexp"
	"strings"
)

// SkillMetadata provides identification and documentation for a skill.
type SkillMetadata struct {
	// Name is the unique identifier for this skill.
	Name string `json:"name"`

	// Description explains what this skill does.
	Description string `json:"description"`

	// Version is the semantic version.
	Version string `json:"version"`

	// Triggers are patterns that activate this skill; see MatchTrigger.
	Triggers []string `json:"triggers"`

	// RequiredTools lists external tools needed.
	RequiredTools []string `json:"required_tools,omitempty"`

	// Tags provide categorization.
	Tags []string `json:"tags,omitempty"`
}

// Skill is the Agent Driver's optional tool surface (spec §4.5): browser
// automation for web-coding sessions, retrieval queries for library-style
// sessions. The driver exposes each attached Skill to the model as a
// session tool; a tool call builds a Task from the call's input and runs
// Plan then Execute, feeding the Result back as the tool's output.
type Skill interface {
	// Metadata returns skill identification and documentation; Name and
	// Description become the declared tool's.
	Metadata() SkillMetadata

	// CanHandle reports whether this skill applies to task, and with what
	// confidence (0.0-1.0). The driver declares attached skills
	// unconditionally; CanHandle serves embedders that pick skills
	// per-task.
	CanHandle(ctx context.Context, execCtx *ExecutionContext, task *Task) (bool, float64)

	// Plan generates an execution plan for the task. The driver calls it
	// on every skill tool call, without consulting CanHandle.
	Plan(ctx context.Context, execCtx *ExecutionContext, task *Task) (*Plan, error)

	// Execute performs the planned actions.
	// Should be idempotent where possible.
	Execute(ctx context.Context, execCtx *ExecutionContext, plan *Plan) (*Result, error)

	// Validate checks execution result for correctness.
	// Return nil to skip validation.
	Validate(ctx context.Context, execCtx *ExecutionContext, result *Result) error
}

// MatchTrigger reports whether text (typically a WorkItem's title and
// description, concatenated) matches one of triggers: a "re:"-prefixed
// trigger is a regular expression matched case-insensitively, anything
// else is a case-insensitive substring match.
func MatchTrigger(text string, triggers []string) bool {
	lower := strings.ToLower(text)
	for _, trigger := range triggers {
		if pattern, ok := strings.CutPrefix(trigger, "re:"); ok {
			if re, err := regexp.Compile("(?i)" + pattern); err == nil && re.MatchString(text) {
				return true
			}
			continue
		}
		if strings.Contains(lower, strings.ToLower(trigger)) {
			return true
		}
	}
	return false
}
