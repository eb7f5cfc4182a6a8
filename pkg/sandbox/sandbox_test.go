package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loomwork/loom/pkg/sdk"
)

func TestCheckShell_DeniesDestructivePattern(t *testing.T) {
	p := New(t.TempDir(), "")
	err := p.CheckShell(`rm -rf /`)
	require.Error(t, err)

	var sdkErr *sdk.Error
	require.True(t, errors.As(err, &sdkErr))
	require.Equal(t, sdk.ErrSandboxDeny, sdkErr.Kind)
}

func TestCheckShell_DeniesUnlistedBinary(t *testing.T) {
	p := New(t.TempDir(), "")
	require.Error(t, p.CheckShell("curl https://example.com"))
}

func TestCheckShell_AllowsListedBinary(t *testing.T) {
	p := New(t.TempDir(), "")
	require.NoError(t, p.CheckShell("go build ./..."))
}

func TestCheckShell_KillLimitedToDevProcesses(t *testing.T) {
	p := New(t.TempDir(), "")

	require.NoError(t, p.CheckShell("pkill -f vite"))
	require.NoError(t, p.CheckShell("pkill -f 'npm run dev'"))

	err := p.CheckShell("pkill -f sshd")
	require.Error(t, err)
	require.Contains(t, err.Error(), "dev-process")
}

func TestRun_RejectsDeniedCommandBeforeExec(t *testing.T) {
	p := New(t.TempDir(), "")
	_, err := p.Run(context.Background(), `rm -rf /`)
	require.Error(t, err)
}

func TestResolveWrite_RejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, "")

	_, err := p.ResolveWrite("../../etc/passwd")
	require.Error(t, err)

	var sdkErr *sdk.Error
	require.True(t, errors.As(err, &sdkErr))
	require.Equal(t, sdk.ErrSandboxDeny, sdkErr.Kind)
}

func TestResolveWrite_AllowsPathUnderRoot(t *testing.T) {
	dir := t.TempDir()
	p := New(dir, "")

	resolved, err := p.ResolveWrite("src/main.go")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "src/main.go"), resolved)
}

func TestResolveWrite_RejectsSymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(dir, "escape")
	require.NoError(t, os.Symlink(outside, link))

	p := New(dir, "")
	_, err := p.ResolveWrite("escape/payload.txt")
	require.Error(t, err)
}

func TestCanExecuteInitScript(t *testing.T) {
	p := New(t.TempDir(), "scripts/init.sh")
	require.True(t, p.CanExecuteInitScript("scripts/init.sh"))
	require.False(t, p.CanExecuteInitScript("scripts/other.sh"))
}
