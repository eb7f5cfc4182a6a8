package sdk

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
)

// HookPoint names a place in the Agent Driver's tool loop where hooks
// fire.
type HookPoint string

const (
	// HookPreToolUse fires before the driver executes a file_write or
	// file_edit call. A hook error at this point denies the call; the deny
	// reason is fed back to the model, which may retry with a different tool.
	HookPreToolUse HookPoint = "pre_tool_use"

	// HookPostToolUse names the point after a tool call completed, deny
	// or not. The Agent Driver does not run hooks registered here.
	HookPostToolUse HookPoint = "post_tool_use"

	// HookSessionEnd names the point at which a coding session finishes.
	// The Agent Driver does not run hooks registered here.
	HookSessionEnd HookPoint = "session_end"
)

// ToolUse describes one tool call about to be (or just) executed.
type ToolUse struct {
	// Tool is the declared tool name (file_write, shell, browser, ...).
	Tool string

	// Path is the filesystem target, if the tool touches one.
	Path string

	// Mutating reports whether the call writes, as opposed to reads.
	Mutating bool

	// Arguments is the raw argument payload for hooks that need more
	// than the path.
	Arguments map[string]any

	// Denied and DenyReason record a pre-tool-use deny for post-hooks and
	// session records; the Agent Driver does not set them.
	Denied     bool
	DenyReason string
}

// Hook inspects a tool call. Returning a non-nil error from a
// HookPreToolUse hook denies the call with that error as the reason.
type Hook func(ctx context.Context, use *ToolUse) error

// HookSet holds the hooks registered for a session, by point.
type HookSet struct {
	mu    sync.RWMutex
	hooks map[HookPoint][]Hook
}

// NewHookSet returns an empty hook set.
func NewHookSet() *HookSet {
	return &HookSet{hooks: make(map[HookPoint][]Hook)}
}

// Register adds a hook at the given point.
func (h *HookSet) Register(point HookPoint, hook Hook) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks[point] = append(h.hooks[point], hook)
}

// Check runs every hook registered at point, stopping at the first
// error. For HookPreToolUse the returned error is the deny reason.
func (h *HookSet) Check(ctx context.Context, point HookPoint, use *ToolUse) error {
	h.mu.RLock()
	hooks := h.hooks[point]
	h.mu.RUnlock()
	for _, hook := range hooks {
		if err := hook(ctx, use); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of hooks registered at point.
func (h *HookSet) Count(point HookPoint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.hooks[point])
}

// defaultSensitivePatterns are the path basenames and extensions a
// coding session must never write: credentials outlive any one
// WorkItem.
var defaultSensitivePatterns = []string{
	".env", ".env.local", ".env.production",
	"credentials", "credentials.json",
	"secrets", "secrets.json", "secrets.yaml",
	"id_rsa", "id_ed25519",
	".netrc", ".npmrc", ".pypirc",
}

// SensitivePathHook returns a pre-tool-use hook that denies mutating
// tool calls targeting credential-like files. extra patterns are added
// to the built-in list; matching is by basename, case-insensitive, with
// a prefix match so ".env" also covers ".env.staging".
func SensitivePathHook(extra ...string) Hook {
	patterns := append(append([]string{}, defaultSensitivePatterns...), extra...)
	return func(_ context.Context, use *ToolUse) error {
		if !use.Mutating || use.Path == "" {
			return nil
		}
		base := strings.ToLower(filepath.Base(use.Path))
		for _, p := range patterns {
			p = strings.ToLower(p)
			if base == p || strings.HasPrefix(base, p+".") {
				return NewError(ErrSandboxDeny, "hooks.SensitivePath",
					"write to sensitive path denied: "+use.Path, nil)
			}
		}
		return nil
	}
}

// ProjectScopeHook returns a pre-tool-use hook that denies mutating
// tool calls whose target resolves outside projectDir after symlink
// resolution.
func ProjectScopeHook(projectDir string) Hook {
	return func(_ context.Context, use *ToolUse) error {
		if !use.Mutating || use.Path == "" {
			return nil
		}
		target := use.Path
		if !filepath.IsAbs(target) {
			target = filepath.Join(projectDir, target)
		}
		resolved, err := filepath.EvalSymlinks(filepath.Dir(target))
		if err != nil {
			// Parent does not exist yet; fall back to a lexical check.
			resolved = filepath.Clean(filepath.Dir(target))
		}
		root, err := filepath.EvalSymlinks(projectDir)
		if err != nil {
			root = filepath.Clean(projectDir)
		}
		rel, err := filepath.Rel(root, resolved)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return NewError(ErrSandboxDeny, "hooks.ProjectScope",
				"write outside project directory denied: "+use.Path, nil)
		}
		return nil
	}
}
