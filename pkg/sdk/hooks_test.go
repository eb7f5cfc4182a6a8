package sdk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSensitivePathHook_DeniesEnvWrite(t *testing.T) {
	hook := SensitivePathHook()

	err := hook(context.Background(), &ToolUse{
		Tool:     "file_write",
		Path:     "/project/.env",
		Mutating: true,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, KindSentinel(ErrSandboxDeny)))
	assert.Contains(t, err.Error(), "/project/.env")
}

func TestSensitivePathHook_PrefixVariants(t *testing.T) {
	hook := SensitivePathHook()

	for _, path := range []string{
		"app/.env.staging",
		"config/SECRETS.JSON",
		"deploy/credentials",
	} {
		err := hook(context.Background(), &ToolUse{Tool: "file_write", Path: path, Mutating: true})
		assert.Error(t, err, "expected deny for %s", path)
	}
}

func TestSensitivePathHook_AllowsReads(t *testing.T) {
	hook := SensitivePathHook()

	err := hook(context.Background(), &ToolUse{
		Tool:     "file_read",
		Path:     "/project/.env",
		Mutating: false,
	})

	assert.NoError(t, err, "reads are the sandbox layer's concern, not this hook's")
}

func TestSensitivePathHook_AllowsOrdinaryWrites(t *testing.T) {
	hook := SensitivePathHook()

	err := hook(context.Background(), &ToolUse{
		Tool:     "file_write",
		Path:     "src/main.go",
		Mutating: true,
	})

	assert.NoError(t, err)
}

func TestSensitivePathHook_ExtraPatterns(t *testing.T) {
	hook := SensitivePathHook("service-account.json")

	err := hook(context.Background(), &ToolUse{
		Tool:     "file_write",
		Path:     "keys/service-account.json",
		Mutating: true,
	})

	assert.Error(t, err)
}

func TestProjectScopeHook(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	hook := ProjectScopeHook(dir)

	assert.NoError(t, hook(context.Background(), &ToolUse{
		Tool: "file_write", Path: filepath.Join(dir, "src", "main.go"), Mutating: true,
	}))

	err := hook(context.Background(), &ToolUse{
		Tool: "file_write", Path: "/etc/passwd", Mutating: true,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, KindSentinel(ErrSandboxDeny)))
}

func TestProjectScopeHook_RelativePathsResolveUnderProject(t *testing.T) {
	dir := t.TempDir()
	hook := ProjectScopeHook(dir)

	assert.NoError(t, hook(context.Background(), &ToolUse{
		Tool: "file_write", Path: "newdir/file.go", Mutating: true,
	}))

	assert.Error(t, hook(context.Background(), &ToolUse{
		Tool: "file_write", Path: "../outside.go", Mutating: true,
	}))
}

func TestHookSet_CheckStopsAtFirstDeny(t *testing.T) {
	hs := NewHookSet()
	var calls int
	hs.Register(HookPreToolUse, func(context.Context, *ToolUse) error {
		calls++
		return NewError(ErrSandboxDeny, "test", "denied", nil)
	})
	hs.Register(HookPreToolUse, func(context.Context, *ToolUse) error {
		calls++
		return nil
	})

	err := hs.Check(context.Background(), HookPreToolUse, &ToolUse{Tool: "shell"})

	require.Error(t, err)
	assert.Equal(t, 1, calls, "second hook must not run after a deny")
}

func TestHookSet_EmptyPointAllows(t *testing.T) {
	hs := NewHookSet()

	assert.NoError(t, hs.Check(context.Background(), HookPreToolUse, &ToolUse{Tool: "shell"}))
	assert.Equal(t, 0, hs.Count(HookPreToolUse))
}
