package orchestra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/loomwork/loom/pkg/llm"
	"github.com/loomwork/loom/pkg/sandbox"
	"github.com/loomwork/loom/pkg/sdk"
	"github.com/loomwork/loom/pkg/tracker"
)

// readCap bounds how much of a file one file_read call feeds the model.
const readCap = 64 * 1024

// grepCap bounds how many matches one search_files call returns.
const grepCap = 100

// ChangeType indicates the type of file modification.
type ChangeType string

const (
	ChangeCreate ChangeType = "create"
	ChangeModify ChangeType = "modify"
)

// Change is one file modification a session's file_write/file_edit tool
// call applied to the project directory.
type Change struct {
	Type ChangeType
	Path string
}

// ToolResult is what one tool call produced. IsError results are still
// fed back to the model (spec §4.1: a deny is fatal for that call only;
// the model may retry with a different tool).
type ToolResult struct {
	Content string
	IsError bool
}

type toolDef struct {
	decl llm.Tool
	fn   func(ctx context.Context, args map[string]any) ToolResult
}

// Toolset is the tool surface one coding session declares to the model:
// file tools scoped to the project directory, the sandboxed shell,
// tracker tools, and whatever optional skills (browser, retrieval) the
// session kind carries. It records every applied file change and every
// shell command for the session's completion comment.
type Toolset struct {
	workDir string
	policy  *sandbox.Policy
	hooks   *sdk.HookSet
	tracker tracker.Tracker
	itemID  string

	names []string // declaration order
	tools map[string]toolDef

	changes  []Change
	commands []string
	denies   int
}

// NewToolset builds the session tool surface for one WorkItem.
func NewToolset(workDir string, policy *sandbox.Policy, hooks *sdk.HookSet, trk tracker.Tracker, itemID string, skills []sdk.Skill) *Toolset {
	t := &Toolset{
		workDir: workDir,
		policy:  policy,
		hooks:   hooks,
		tracker: trk,
		itemID:  itemID,
		tools:   make(map[string]toolDef),
	}

	t.register("file_read", "Read a file from the project directory. Long files are truncated.",
		objectSchema(map[string]any{
			"path": map[string]any{"type": "string", "description": "Path relative to the project directory."},
		}, "path"), t.fileRead)

	t.register("file_write", "Create or overwrite a file in the project directory with the given content.",
		objectSchema(map[string]any{
			"path":    map[string]any{"type": "string"},
			"content": map[string]any{"type": "string"},
		}, "path", "content"), t.fileWrite)

	t.register("file_edit", "Replace one occurrence of old_text with new_text in a project file. old_text must match exactly.",
		objectSchema(map[string]any{
			"path":     map[string]any{"type": "string"},
			"old_text": map[string]any{"type": "string"},
			"new_text": map[string]any{"type": "string"},
		}, "path", "old_text", "new_text"), t.fileEdit)

	t.register("list_files", "List project files matching a glob pattern, e.g. \"internal/*/*.go\".",
		objectSchema(map[string]any{
			"pattern": map[string]any{"type": "string"},
		}, "pattern"), t.listFiles)

	t.register("search_files", "Search project files for a regular expression; returns path:line: text matches.",
		objectSchema(map[string]any{
			"pattern": map[string]any{"type": "string"},
		}, "pattern"), t.searchFiles)

	t.register("shell", "Run a shell command in the project directory. Only allow-listed binaries run; everything else is denied.",
		objectSchema(map[string]any{
			"command": map[string]any{"type": "string"},
		}, "command"), t.shell)

	t.register("tracker_list_items", "List the project's tracked work items with their status and priority.",
		objectSchema(map[string]any{}), t.trackerListItems)

	t.register("tracker_comment", "Append a comment to a tracked work item. item_id defaults to the item this session is working.",
		objectSchema(map[string]any{
			"item_id": map[string]any{"type": "string"},
			"body":    map[string]any{"type": "string"},
		}, "body"), t.trackerComment)

	t.register("tracker_set_status", "Set a work item's status: todo, in_progress, done, or blocked.",
		objectSchema(map[string]any{
			"item_id": map[string]any{"type": "string"},
			"status":  map[string]any{"type": "string"},
		}, "item_id", "status"), t.trackerSetStatus)

	for _, skill := range skills {
		t.registerSkill(skill)
	}

	return t
}

func (t *Toolset) register(name, description string, params map[string]any, fn func(context.Context, map[string]any) ToolResult) {
	t.names = append(t.names, name)
	t.tools[name] = toolDef{
		decl: llm.Tool{Name: name, Description: description, Parameters: params},
		fn:   fn,
	}
}

// registerSkill exposes an sdk.Skill as a single tool taking one "input"
// argument (a URL for the browser skill, a query for retrieval).
func (t *Toolset) registerSkill(skill sdk.Skill) {
	meta := skill.Metadata()
	t.register(meta.Name, meta.Description,
		objectSchema(map[string]any{
			"input": map[string]any{"type": "string"},
		}, "input"), func(ctx context.Context, args map[string]any) ToolResult {
			input := argString(args, "input")
			task := &sdk.Task{
				ID:          t.itemID,
				Description: input,
				Context:     map[string]any{"url": input, "query": input},
			}
			plan, err := skill.Plan(ctx, nil, task)
			if err != nil {
				return errResult("skill plan: " + err.Error())
			}
			result, err := skill.Execute(ctx, nil, plan)
			if err != nil {
				return errResult("skill execute: " + err.Error())
			}
			if !result.IsSuccess() {
				return errResult(result.Message + " " + result.ErrorMessage)
			}
			out := result.Message
			for name, body := range result.Artifacts {
				out += "\n" + name + ": " + body
			}
			return ToolResult{Content: out}
		})
}

// Declarations returns the tool list in registration order, as declared
// to the model each turn.
func (t *Toolset) Declarations() []llm.Tool {
	decls := make([]llm.Tool, 0, len(t.names))
	for _, name := range t.names {
		decls = append(decls, t.tools[name].decl)
	}
	return decls
}

// Dispatch executes one tool call. Unknown tools and bad arguments come
// back as error results, not Go errors: the model sees the reason and
// may try again differently.
func (t *Toolset) Dispatch(ctx context.Context, call llm.ToolCall) ToolResult {
	def, ok := t.tools[call.Name]
	if !ok {
		return errResult("unknown tool: " + call.Name)
	}

	args := map[string]any{}
	if strings.TrimSpace(call.Arguments) != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return errResult("malformed tool arguments: " + err.Error())
		}
	}
	return def.fn(ctx, args)
}

// Changes returns the file changes applied so far, in order.
func (t *Toolset) Changes() []Change { return t.changes }

// Commands returns the shell commands run so far, in order.
func (t *Toolset) Commands() []string { return t.commands }

// Denies returns how many tool calls the policy refused.
func (t *Toolset) Denies() int { return t.denies }

func (t *Toolset) fileRead(_ context.Context, args map[string]any) ToolResult {
	path := argString(args, "path")
	resolved, err := t.policy.ResolveWrite(path)
	if err != nil {
		t.denies++
		return errResult(err.Error())
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return errResult("read " + path + ": " + err.Error())
	}
	if len(data) > readCap {
		return ToolResult{Content: string(data[:readCap]) + "\n[truncated]"}
	}
	return ToolResult{Content: string(data)}
}

// checkMutation runs the pre-tool-use hooks and the sandbox containment
// check for a write to path, returning the resolved target.
func (t *Toolset) checkMutation(ctx context.Context, tool, path string) (string, error) {
	if t.hooks != nil {
		use := &sdk.ToolUse{Tool: tool, Path: path, Mutating: true}
		if err := t.hooks.Check(ctx, sdk.HookPreToolUse, use); err != nil {
			return "", err
		}
	}
	return t.policy.ResolveWrite(path)
}

func (t *Toolset) fileWrite(ctx context.Context, args map[string]any) ToolResult {
	path := argString(args, "path")
	content := argString(args, "content")

	resolved, err := t.checkMutation(ctx, "file_write", path)
	if err != nil {
		t.denies++
		return errResult(err.Error())
	}

	changeType := ChangeCreate
	if _, err := os.Stat(resolved); err == nil {
		changeType = ChangeModify
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return errResult("create parent dir: " + err.Error())
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return errResult("write " + path + ": " + err.Error())
	}

	t.changes = append(t.changes, Change{Type: changeType, Path: path})
	return ToolResult{Content: fmt.Sprintf("%sd %s (%d bytes)", changeType, path, len(content))}
}

func (t *Toolset) fileEdit(ctx context.Context, args map[string]any) ToolResult {
	path := argString(args, "path")
	oldText := argString(args, "old_text")
	newText := argString(args, "new_text")
	if oldText == "" {
		return errResult("old_text must be non-empty")
	}

	resolved, err := t.checkMutation(ctx, "file_edit", path)
	if err != nil {
		t.denies++
		return errResult(err.Error())
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return errResult("read " + path + ": " + err.Error())
	}
	content := string(data)
	if !strings.Contains(content, oldText) {
		return errResult("old_text not found in " + path)
	}

	content = strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return errResult("write " + path + ": " + err.Error())
	}

	t.changes = append(t.changes, Change{Type: ChangeModify, Path: path})
	return ToolResult{Content: "edited " + path}
}

func (t *Toolset) listFiles(_ context.Context, args map[string]any) ToolResult {
	pattern := argString(args, "pattern")
	if strings.Contains(pattern, "..") {
		t.denies++
		return errResult("pattern must not traverse outside the project directory")
	}

	matches, err := filepath.Glob(filepath.Join(t.workDir, pattern))
	if err != nil {
		return errResult("bad pattern: " + err.Error())
	}
	sort.Strings(matches)

	var sb strings.Builder
	for _, m := range matches {
		rel, err := filepath.Rel(t.workDir, m)
		if err != nil {
			continue
		}
		sb.WriteString(rel + "\n")
	}
	if sb.Len() == 0 {
		return ToolResult{Content: "no matches"}
	}
	return ToolResult{Content: strings.TrimRight(sb.String(), "\n")}
}

func (t *Toolset) searchFiles(_ context.Context, args map[string]any) ToolResult {
	re, err := regexp.Compile(argString(args, "pattern"))
	if err != nil {
		return errResult("bad pattern: " + err.Error())
	}

	var sb strings.Builder
	matched := 0
	_ = filepath.WalkDir(t.workDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if matched >= grepCap {
			return filepath.SkipAll
		}
		if d.IsDir() {
			switch d.Name() {
			case ".git", ".loom", "node_modules", "vendor":
				return filepath.SkipDir
			}
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil || strings.ContainsRune(string(data[:min(len(data), 1024)]), 0) {
			return nil
		}
		rel, _ := filepath.Rel(t.workDir, path)
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				fmt.Fprintf(&sb, "%s:%d: %s\n", rel, i+1, strings.TrimSpace(line))
				matched++
				if matched >= grepCap {
					break
				}
			}
		}
		return nil
	})

	if matched == 0 {
		return ToolResult{Content: "no matches"}
	}
	return ToolResult{Content: strings.TrimRight(sb.String(), "\n")}
}

func (t *Toolset) shell(ctx context.Context, args map[string]any) ToolResult {
	command := argString(args, "command")
	output, err := t.policy.Run(ctx, command)
	if err != nil {
		if sandboxDenied(err) {
			t.denies++
			return errResult(err.Error())
		}
		return errResult(strings.TrimSpace(string(output) + "\n" + err.Error()))
	}
	t.commands = append(t.commands, command)
	out := strings.TrimSpace(string(output))
	if out == "" {
		out = "(no output)"
	}
	return ToolResult{Content: out}
}

func (t *Toolset) trackerListItems(_ context.Context, _ map[string]any) ToolResult {
	items := t.tracker.List()
	sort.Slice(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority < items[j].Priority
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})

	var sb strings.Builder
	for _, item := range items {
		if item.IsMeta {
			continue
		}
		fmt.Fprintf(&sb, "%s [%s] p%d %s\n", item.ID, item.Status, item.Priority, item.Title)
	}
	if sb.Len() == 0 {
		return ToolResult{Content: "no work items"}
	}
	return ToolResult{Content: strings.TrimRight(sb.String(), "\n")}
}

func (t *Toolset) trackerComment(_ context.Context, args map[string]any) ToolResult {
	itemID := argString(args, "item_id")
	if itemID == "" {
		itemID = t.itemID
	}
	body := argString(args, "body")
	if body == "" {
		return errResult("body must be non-empty")
	}
	if err := t.tracker.AddComment(itemID, body, "agent"); err != nil {
		return errResult(err.Error())
	}
	return ToolResult{Content: "comment added to " + itemID}
}

func (t *Toolset) trackerSetStatus(_ context.Context, args map[string]any) ToolResult {
	status := sdk.ItemStatus(argString(args, "status"))
	switch status {
	case sdk.ItemStatusTodo, sdk.ItemStatusInProgress, sdk.ItemStatusDone, sdk.ItemStatusBlocked:
	default:
		return errResult("invalid status: " + string(status))
	}

	item, ok := t.tracker.Get(argString(args, "item_id"))
	if !ok {
		return errResult("work item not found: " + argString(args, "item_id"))
	}
	item.Transition(status)
	if err := t.tracker.Update(item); err != nil {
		return errResult(err.Error())
	}
	return ToolResult{Content: fmt.Sprintf("%s -> %s", item.ID, status)}
}

func objectSchema(props map[string]any, required ...string) map[string]any {
	s := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func errResult(msg string) ToolResult {
	return ToolResult{Content: msg, IsError: true}
}

func sandboxDenied(err error) bool {
	var e *sdk.Error
	return errors.As(err, &e) && e.Kind == sdk.ErrSandboxDeny
}
