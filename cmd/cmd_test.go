package cmd

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
	"gopkg.in/yaml.v3"

	"github.com/coffeebe4code/mono/pkg/manifest"
	"github.com/coffeebe4code/mono/pkg/scheduler"
)

// inWorkspace runs the test inside a fresh directory.
func inWorkspace(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	require.NoError(t, err)

	dir := t.TempDir()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		os.Chdir(wd)
	})
	return dir
}

func mono(t *testing.T, args ...string) (int, string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// useEcho replaces every target command with one that logs the target to run.log.
func useEcho(t *testing.T, root string) {
	t.Helper()
	ctx := context.Background()

	store := manifest.NewStore(filepath.Join(root, manifest.DefaultFileName))
	m, err := store.Load(ctx)
	require.NoError(t, err)

	for _, p := range m.Projects {
		for _, target := range p.Targets {
			target.Command = `echo "$MONO_PROJECT.$MONO_TARGET" >> run.log`
		}
	}
	require.NoError(t, store.Save(ctx, m))
}

func readLog(t *testing.T, root string) []string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, "run.log"))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(root, "run.log")))
	return strings.Fields(string(data))
}

func setupWorkspace(t *testing.T) string {
	t.Helper()
	root := inWorkspace(t)

	code, _, stderr := mono(t, "init")
	require.Equal(t, Success, code, stderr)

	for _, name := range []string{"p1", "p2"} {
		code, _, stderr = mono(t, "add", name, "--template", "package")
		require.Equal(t, Success, code, stderr)
	}

	code, _, stderr = mono(t, "graph", "p1", "--depends-on", "p2")
	require.Equal(t, Success, code, stderr)

	for _, name := range []string{"p1", "p2"} {
		path := filepath.Join(root, "src", "packages", name, "src", "index.js")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	useEcho(t, root)
	return root
}

func TestInit(t *testing.T) {
	root := inWorkspace(t)

	code, _, stderr := mono(t, "init")
	require.Equal(t, Success, code, stderr)

	_, err := os.Stat(filepath.Join(root, "mono.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(root, ".mono-cache"))
	assert.NoError(t, err)

	ignore, err := os.ReadFile(filepath.Join(root, ".gitignore"))
	require.NoError(t, err)
	assert.Equal(t, ".mono-cache\n", string(ignore))

	code, _, _ = mono(t, "init")
	assert.NotEqual(t, Success, code)
}

func TestIgnoreCacheDirKeepsExistingEntries(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("node_modules"), 0o644))

	added, err := ignoreCacheDir(root, ".mono-cache")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = ignoreCacheDir(root, ".mono-cache")
	require.NoError(t, err)
	assert.False(t, added)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "node_modules\n.mono-cache\n", string(data))
}

func TestAdd(t *testing.T) {
	root := inWorkspace(t)
	code, _, _ := mono(t, "init")
	require.Equal(t, Success, code)

	code, _, stderr := mono(t, "add", "@acme/tool", "--template", "mini", "--publishable")
	require.Equal(t, Success, code, stderr)

	_, err := os.Stat(filepath.Join(root, "src", "clis", "acme", "tool", "src"))
	assert.NoError(t, err)

	m, err := manifest.NewStore(filepath.Join(root, "mono.json")).Load(context.Background())
	require.NoError(t, err)
	project, ok := m.Lookup("@acme/tool")
	require.True(t, ok)
	assert.Equal(t, manifest.ProjectCLI, project.Kind)
	assert.Equal(t, "src/clis/acme/tool", project.Path)
	_, ok = project.Target(manifest.KindInstall)
	assert.True(t, ok)

	code, _, _ = mono(t, "add", "@acme/tool")
	assert.Equal(t, UsageError, code, "duplicate names are rejected")

	code, _, _ = mono(t, "add", "bad/name")
	assert.Equal(t, UsageError, code)

	code, _, _ = mono(t, "add", "x", "--template", "nope")
	assert.Equal(t, UsageError, code)
}

func TestBuildRunsDependenciesOnce(t *testing.T) {
	root := setupWorkspace(t)

	code, _, stderr := mono(t, "build", "p1")
	require.Equal(t, Success, code, stderr)
	assert.Equal(t, []string{"p2.lint", "p2.build", "p1.lint", "p1.build"}, sortedBatches(readLog(t, root)))

	code, stdout, stderr := mono(t, "build", "p1")
	require.Equal(t, Success, code, stderr)
	assert.Empty(t, readLog(t, root))
	assert.Contains(t, stdout, "everything is up to date")

	code, _, stderr = mono(t, "build", "p1", "--no-cache", "--serial")
	require.Equal(t, Success, code, stderr)
	assert.Equal(t, []string{"p2.lint", "p2.build", "p1.lint", "p1.build"}, readLog(t, root))
}

// sortedBatches puts the targets of each project back into kind order since batches may run in
// parallel.
func sortedBatches(calls []string) []string {
	result := append([]string{}, calls...)
	for idx := 0; idx+1 < len(result); idx++ {
		a := strings.SplitN(result[idx], ".", 2)
		b := strings.SplitN(result[idx+1], ".", 2)
		if a[0] == b[0] && a[1] == "build" && b[1] == "lint" {
			result[idx], result[idx+1] = result[idx+1], result[idx]
		}
	}
	return result
}

func TestTouchResolvesPaths(t *testing.T) {
	root := setupWorkspace(t)

	code, _, stderr := mono(t, "build", "p1", "--serial")
	require.Equal(t, Success, code, stderr)
	readLog(t, root)

	code, _, stderr = mono(t, "touch", filepath.Join("src", "packages", "p2", "src", "index.js"), "--no-cache", "--serial")
	require.Equal(t, Success, code, stderr)
	assert.Equal(t, []string{"p2.lint", "p2.build"}, readLog(t, root))
}

func TestDryRun(t *testing.T) {
	root := setupWorkspace(t)

	code, _, stderr := mono(t, "build", "p2", "--dry")
	require.Equal(t, Success, code, stderr)
	assert.Empty(t, readLog(t, root))
	assert.Contains(t, stderr, "run.log")
}

func TestDryRunKeepsMarkers(t *testing.T) {
	root := setupWorkspace(t)

	code, _, stderr := mono(t, "build", "p1", "--serial")
	require.Equal(t, Success, code, stderr)
	readLog(t, root)

	code, stdout, stderr := mono(t, "build", "p1", "--no-cache", "--dry")
	require.Equal(t, Success, code, stderr)
	assert.Empty(t, readLog(t, root))
	assert.Contains(t, stdout, "ran 4 target(s)")

	code, stdout, stderr = mono(t, "build", "p1")
	require.Equal(t, Success, code, stderr)
	assert.Empty(t, readLog(t, root))
	assert.Contains(t, stdout, "everything is up to date")
}

func TestGraphShow(t *testing.T) {
	setupWorkspace(t)

	code, stdout, stderr := mono(t, "graph", "p1", "--show", "--kind", "build")
	require.Equal(t, Success, code, stderr)

	var view struct {
		Project string `yaml:"project"`
		Order   []struct {
			Project string `yaml:"project"`
			Kind    string `yaml:"kind"`
		} `yaml:"order"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &view))
	assert.Equal(t, "p1", view.Project)

	labels := make([]string, len(view.Order))
	for idx, ref := range view.Order {
		labels[idx] = ref.Project + "." + ref.Kind
	}
	assert.Equal(t, []string{"p2.lint", "p2.build", "p1.lint", "p1.build"}, labels)
}

func TestExitCodes(t *testing.T) {
	root := setupWorkspace(t)

	code, _, stderr := mono(t, "build", "ghost")
	assert.Equal(t, UsageError, code)
	assert.Contains(t, stderr, "ghost")

	code, _, _ = mono(t, "frobnicate")
	assert.Equal(t, UsageError, code)

	code, _, _ = mono(t, "build")
	assert.Equal(t, UsageError, code)

	code, _, _ = mono(t, "graph", "p2", "-d", "p1")
	assert.Equal(t, CycleError, code)

	ctx := context.Background()
	store := manifest.NewStore(filepath.Join(root, manifest.DefaultFileName))
	m, err := store.Load(ctx)
	require.NoError(t, err)
	p2, _ := m.Lookup("p2")
	lint, _ := p2.Target(manifest.KindLint)
	lint.Command = "exit 7"
	require.NoError(t, store.Save(ctx, m))

	code, _, _ = mono(t, "build", "p1")
	assert.Equal(t, ExecutionError, code)

	require.NoError(t, os.WriteFile(store.Path(), []byte(`{"version": 99, "projects": []}`), 0o644))
	code, _, _ = mono(t, "build", "p1")
	assert.Equal(t, SchemaError, code)
}

func TestExitCodeMapping(t *testing.T) {
	assert.Equal(t, Success, ExitCode(nil))
	assert.Equal(t, CycleError, ExitCode(&manifest.CycleError{Path: []string{"a", "a"}}))
	assert.Equal(t, SchemaError, ExitCode(&manifest.SchemaError{}))
	assert.Equal(t, UsageError, ExitCode(&manifest.NotFoundError{What: "project", Name: "x"}))
	assert.Equal(t, ExecutionError, ExitCode(&scheduler.ExecutionError{Err: errors.New("boom")}))
	assert.Equal(t, UsageError, ExitCode(usageErrorf("bad")))
	assert.Equal(t, ExecutionError, ExitCode(errors.New("disk on fire")))
}

func TestTemplates(t *testing.T) {
	code, stdout, _ := mono(t, "templates")
	require.Equal(t, Success, code)

	for _, name := range []string{"uws", "mini", "package", "app"} {
		assert.Contains(t, stdout, name)
	}
}
