package sdk

import "log/slog"

// ExecutionContext carries the per-session services a Skill may consult
// during CanHandle/Plan/Execute/Validate. The Agent Driver passes a nil
// context when it runs a skill tool; both shipped skills (skills/browser,
// skills/retrieval) are self-contained and accept a nil context.
type ExecutionContext struct {
	// LLM gives skills access to the session's language models.
	LLM LLMRouter

	// WorkDir is the project working directory the session owns. Skills
	// must not touch paths outside it; see Hooks.
	WorkDir string

	// Hooks gates tool use inside this session (sensitive-path denies).
	Hooks *HookSet

	// Logger is the session's structured logger.
	Logger *slog.Logger

	// Iteration is the outer loop's current iteration number.
	Iteration int

	// DryRun asks skills to plan but not mutate anything.
	DryRun bool
}

// NewExecutionContext returns a context with a default logger and an
// empty hook set.
func NewExecutionContext(workDir string) *ExecutionContext {
	return &ExecutionContext{
		WorkDir: workDir,
		Hooks:   NewHookSet(),
		Logger:  slog.Default(),
	}
}
