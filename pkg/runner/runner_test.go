package runner

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffeebe4code/mono/pkg/manifest"
)

func newJob(t *testing.T, command string) (Job, *Shell, *bytes.Buffer) {
	t.Helper()

	project, err := manifest.CreateProject("@acme/web", manifest.ProjectApp, "src/apps/acme/web", false)
	require.NoError(t, err)

	target, _ := project.Target(manifest.KindBuild)
	target.Command = command

	stdout := new(bytes.Buffer)
	shell := &Shell{Stdout: stdout, Stderr: new(bytes.Buffer)}
	return Job{Root: t.TempDir(), Project: project, Target: target}, shell, stdout
}

func TestShellExportsTargetVariables(t *testing.T) {
	job, shell, stdout := newJob(t, `echo "$MONO_PROJECT|$MONO_PROJECT_PATH|$MONO_TARGET|$MONO_TARGET_ID"`)

	require.NoError(t, shell.Run(context.Background(), job))
	assert.Equal(t, strings.Join([]string{
		"@acme/web", "src/apps/acme/web", "build", job.Target.Identity,
	}, "|")+"\n", stdout.String())
}

func TestShellRunsInRoot(t *testing.T) {
	job, shell, _ := newJob(t, `echo hello > out.txt`)

	require.NoError(t, shell.Run(context.Background(), job))
	data, err := os.ReadFile(filepath.Join(job.Root, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))
}

func TestShellReportsExitStatus(t *testing.T) {
	job, shell, stdout := newJob(t, "echo before\nexit 3\necho after")

	err := shell.Run(context.Background(), job)
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, 3, exitErr.Status)
	assert.Equal(t, "before\n", stdout.String())
}

func TestShellStopsOnFirstFailure(t *testing.T) {
	job, shell, stdout := newJob(t, "false\necho unreachable")

	err := shell.Run(context.Background(), job)
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "got %v", err)
	assert.Equal(t, 1, exitErr.Status)
	assert.Empty(t, stdout.String())
}

func TestShellDryRun(t *testing.T) {
	job, shell, stdout := newJob(t, `echo hello > out.txt`)
	shell.DryRun = true

	require.NoError(t, shell.Run(context.Background(), job))
	assert.Empty(t, stdout.String())
	_, err := os.Stat(filepath.Join(job.Root, "out.txt"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestShellRejectsSyntaxErrors(t *testing.T) {
	job, shell, _ := newJob(t, `echo "unterminated`)

	err := shell.Run(context.Background(), job)
	require.Error(t, err)
	var exitErr *ExitError
	assert.False(t, errors.As(err, &exitErr))
}

func TestShellDevNull(t *testing.T) {
	job, shell, stdout := newJob(t, `echo hidden > /dev/null; echo visible`)

	require.NoError(t, shell.Run(context.Background(), job))
	assert.Equal(t, "visible\n", stdout.String())
}
