// Package sandbox implements the Sandbox & Tool-Policy layer shared by the
// Agent Driver: a shell command allow-list, filesystem-write containment
// under the project directory, and a restricted permission-set operation.
// Denials are returned as *sdk.Error{Kind: sdk.ErrSandboxDeny} so the
// driver can surface them to the LLM for retry rather than aborting.
package sandbox

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/loomwork/loom/pkg/sdk"
)

// defaultAllowedBinaries is the shell command allow-list. Only the bare
// command name (argv[0]) is checked; arguments are the caller's concern.
var defaultAllowedBinaries = map[string]bool{
	"ls": true, "cat": true, "head": true, "tail": true, "wc": true, "grep": true,
	"find": true, "cp": true, "mkdir": true,
	"go": true, "git": true, "make": true,
	"npm": true, "npx": true, "node": true, "tsc": true,
	"python3": true, "pytest": true, "mypy": true,
	"echo": true, "sed": true, "awk": true,
	"ps": true, "sleep": true,
	"kill": true, "pkill": true, // further gated by devProcessPattern
	"curl": false, // present to document an explicit deny, not an allow
}

// devProcessPattern names the processes a kill/pkill invocation may
// target: the dev servers and watchers a coding session itself starts.
var devProcessPattern = regexp.MustCompile(`\b(node|npm|npx|vite|next|webpack|flask|uvicorn|python3?|go run)\b`)

// killPattern matches shell invocations that attempt to kill/terminate
// processes outside the sandboxed build/test loop; these are always denied
// regardless of the allow-list, matching the "rm -rf /" class of scenario
// named in the spec's testable properties.
var killPattern = regexp.MustCompile(`(?i)\b(rm\s+-rf\s+/|:\(\)\s*\{|kill\s+-9\s+1\b|shutdown\b|reboot\b)`)

// Policy configures the sandbox for one project directory.
type Policy struct {
	ProjectDir       string
	AllowedBinaries  map[string]bool // nil uses defaultAllowedBinaries
	InitScriptPath   string          // the only path CanExecuteInitScript permits, relative to ProjectDir
}

// New creates a Policy rooted at projectDir. projectDir must already exist.
func New(projectDir string, initScript string) *Policy {
	return &Policy{
		ProjectDir:      projectDir,
		AllowedBinaries: defaultAllowedBinaries,
		InitScriptPath:  initScript,
	}
}

// CheckShell validates a shell command against the allow-list and the
// kill-pattern deny list before the driver is permitted to run it.
func (p *Policy) CheckShell(cmdline string) error {
	if killPattern.MatchString(cmdline) {
		return sdk.NewError(sdk.ErrSandboxDeny, "sandbox.CheckShell", "command matches a denied destructive pattern: "+cmdline, nil)
	}

	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return sdk.NewError(sdk.ErrSandboxDeny, "sandbox.CheckShell", "empty command", nil)
	}

	bin := filepath.Base(fields[0])
	allowed := p.AllowedBinaries
	if allowed == nil {
		allowed = defaultAllowedBinaries
	}
	if ok, known := allowed[bin]; !known || !ok {
		return sdk.NewError(sdk.ErrSandboxDeny, "sandbox.CheckShell", "binary not on allow-list: "+bin, nil)
	}

	if bin == "kill" || bin == "pkill" {
		if !devProcessPattern.MatchString(cmdline) {
			return sdk.NewError(sdk.ErrSandboxDeny, "sandbox.CheckShell",
				"kill target does not match a known dev-process pattern: "+cmdline, nil)
		}
	}

	return nil
}

// Run executes an allow-listed shell command with its working directory
// pinned to the project directory.
func (p *Policy) Run(ctx context.Context, cmdline string) ([]byte, error) {
	if err := p.CheckShell(cmdline); err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", cmdline)
	cmd.Dir = p.ProjectDir
	return cmd.CombinedOutput()
}

// ResolveWrite resolves relativePath against the project directory and
// verifies that the result — after resolving any symlinks in the existing
// portion of the path — still falls under the project directory. This is
// the filesystem-write containment invariant: no write may escape the
// project directory via a traversal or symlink, even indirectly.
func (p *Policy) ResolveWrite(relativePath string) (string, error) {
	root, err := filepath.Abs(p.ProjectDir)
	if err != nil {
		return "", sdk.NewError(sdk.ErrConfig, "sandbox.ResolveWrite", "resolve project dir", err)
	}
	root, err = filepath.EvalSymlinks(root)
	if err != nil {
		return "", sdk.NewError(sdk.ErrConfig, "sandbox.ResolveWrite", "resolve project dir symlinks", err)
	}

	candidate := filepath.Join(root, relativePath)
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}

	// Resolve symlinks along the existing ancestor chain, since the target
	// file itself may not exist yet.
	resolved, err := resolveExistingAncestor(candidate)
	if err != nil {
		return "", sdk.NewError(sdk.ErrSandboxDeny, "sandbox.ResolveWrite", "cannot resolve path ancestry", err)
	}

	if resolved != strings.TrimSuffix(root, string(filepath.Separator)) &&
		!strings.HasPrefix(resolved, root) {
		return "", sdk.NewError(sdk.ErrSandboxDeny, "sandbox.ResolveWrite",
			"write would escape project directory: "+relativePath, nil)
	}

	return candidate, nil
}

// resolveExistingAncestor walks up from path until it finds a segment that
// exists, resolves symlinks on that segment, then re-appends the
// not-yet-existing suffix unresolved.
func resolveExistingAncestor(path string) (string, error) {
	suffix := ""
	cur := path
	for {
		if _, err := os.Lstat(cur); err == nil {
			resolved, err := filepath.EvalSymlinks(cur)
			if err != nil {
				return "", err
			}
			return filepath.Join(resolved, suffix), nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			// Reached filesystem root without finding an existing ancestor.
			return path, nil
		}
		suffix = filepath.Join(filepath.Base(cur), suffix)
		cur = parent
	}
}

// MakeExecutable is the only permission-set operation the sandbox allows:
// it sets the owner-execute bit and nothing else (no writes to group/other,
// no arbitrary chmod). The target must already resolve under the project
// directory.
func (p *Policy) MakeExecutable(relativePath string) error {
	resolved, err := p.ResolveWrite(relativePath)
	if err != nil {
		return err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return sdk.NewError(sdk.ErrSandboxDeny, "sandbox.MakeExecutable", "stat target", err)
	}
	mode := info.Mode().Perm() | 0o100
	return os.Chmod(resolved, mode)
}

// CanExecuteInitScript reports whether relativePath is the one path
// permitted to run as a project-init script.
func (p *Policy) CanExecuteInitScript(relativePath string) bool {
	if p.InitScriptPath == "" {
		return false
	}
	return filepath.Clean(relativePath) == filepath.Clean(p.InitScriptPath)
}
