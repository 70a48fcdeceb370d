package manifest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kindsOf(p *Project) []TargetKind {
	result := make([]TargetKind, len(p.Targets))
	for idx, t := range p.Targets {
		result[idx] = t.Kind
	}
	return result
}

func mustProject(t *testing.T, name string, kind ProjectKind, publishable bool) *Project {
	t.Helper()

	p, err := CreateProject(name, kind, DefaultPath(name, kind), publishable)
	require.NoError(t, err)
	return p
}

func TestCreateProject(t *testing.T) {
	tests := []struct {
		name        string
		kind        ProjectKind
		publishable bool
		want        []TargetKind
	}{
		{"service", ProjectService, false, []TargetKind{KindLint, KindBuild, KindTest, KindServe}},
		{"publishable cli", ProjectCLI, true, []TargetKind{KindLint, KindBuild, KindTest, KindInstall}},
		{"private cli", ProjectCLI, false, []TargetKind{KindLint, KindBuild, KindTest}},
		{"package", ProjectPackage, true, []TargetKind{KindLint, KindBuild, KindTest}},
		{"app", ProjectApp, false, []TargetKind{KindLint, KindBuild, KindTest}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := CreateProject("p", tt.kind, "src/p", tt.publishable)
			require.NoError(t, err)
			assert.Equal(t, tt.want, kindsOf(p))

			seen := make(map[string]bool)
			for _, target := range p.Targets {
				assert.NotEmpty(t, target.Identity)
				assert.False(t, seen[target.Identity], "identities must be unique")
				seen[target.Identity] = true
				assert.Equal(t, DefaultCommand, target.Command)
				assert.Empty(t, target.Dependencies)
			}
		})
	}
}

func TestCreateProjectRejectsUnknownKind(t *testing.T) {
	_, err := CreateProject("p", ProjectKind("library"), "src/p", false)
	assert.Error(t, err)
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"web", "@acme/web", "my-tool"} {
		assert.NoError(t, ValidateName(name), name)
	}

	for _, name := range []string{"", "acme/web", "@acme", "@acme/web/extra", "@/web", "@acme/", "@a@b/c"} {
		assert.Error(t, ValidateName(name), name)
	}
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "src/services/api", DefaultPath("api", ProjectService))
	assert.Equal(t, "src/clis/acme/tool", DefaultPath("@acme/tool", ProjectCLI))
	assert.Equal(t, "src/packages/util", DefaultPath("util", ProjectPackage))
	assert.Equal(t, "src/apps/web", DefaultPath("web", ProjectApp))
}

func TestAddProjectRejectsDuplicates(t *testing.T) {
	m := &Manifest{}
	require.NoError(t, m.AddProject(mustProject(t, "api", ProjectService, false)))

	dupName, err := CreateProject("api", ProjectService, "src/other", false)
	require.NoError(t, err)
	assert.Error(t, m.AddProject(dupName))

	dupPath, err := CreateProject("other", ProjectService, "src/services/api/", false)
	require.NoError(t, err)
	assert.Error(t, m.AddProject(dupPath))

	assert.Len(t, m.Projects, 1)
}

func TestAddDependencyGreaterOrEqualPolicy(t *testing.T) {
	m := &Manifest{}
	service := mustProject(t, "api", ProjectService, false)
	lib := mustProject(t, "util", ProjectPackage, false)
	require.NoError(t, m.AddProject(service))
	require.NoError(t, m.AddProject(lib))

	added, err := m.AddDependency(service, lib)
	require.NoError(t, err)
	// lint->1, build->2, test->3, serve->3
	assert.Equal(t, 9, added)

	libKinds := func(kind TargetKind) []TargetKind {
		target, ok := service.Target(kind)
		require.True(t, ok)

		result := make([]TargetKind, 0)
		for _, dep := range target.Dependencies {
			assert.Equal(t, "util", dep.Project)
			_, dt, err := m.FindTarget(dep)
			require.NoError(t, err)
			result = append(result, dt.Kind)
		}
		return result
	}

	assert.Equal(t, []TargetKind{KindLint}, libKinds(KindLint))
	assert.Equal(t, []TargetKind{KindLint, KindBuild}, libKinds(KindBuild))
	assert.Equal(t, []TargetKind{KindLint, KindBuild, KindTest}, libKinds(KindTest))
	assert.Equal(t, []TargetKind{KindLint, KindBuild, KindTest}, libKinds(KindServe))

	for _, target := range lib.Targets {
		assert.Empty(t, target.Dependencies)
	}
}

func TestAddDependencyIsIdempotent(t *testing.T) {
	m := &Manifest{}
	a := mustProject(t, "a", ProjectPackage, false)
	b := mustProject(t, "b", ProjectPackage, false)
	require.NoError(t, m.AddProject(a))
	require.NoError(t, m.AddProject(b))

	added, err := m.AddDependency(a, b)
	require.NoError(t, err)
	assert.Equal(t, 6, added)

	added, err = m.AddDependency(a, b)
	require.NoError(t, err)
	assert.Equal(t, 0, added)

	build, _ := a.Target(KindBuild)
	assert.Len(t, build.Dependencies, 2)
}

func TestAddDependencyRejectsSelf(t *testing.T) {
	m := &Manifest{}
	a := mustProject(t, "a", ProjectPackage, false)
	require.NoError(t, m.AddProject(a))

	_, err := m.AddDependency(a, a)
	assert.Error(t, err)
}

func TestAddDependencyRollsBackCycles(t *testing.T) {
	m := &Manifest{}
	a := mustProject(t, "a", ProjectPackage, false)
	b := mustProject(t, "b", ProjectPackage, false)
	require.NoError(t, m.AddProject(a))
	require.NoError(t, m.AddProject(b))

	_, err := m.AddDependency(a, b)
	require.NoError(t, err)

	_, err = m.AddDependency(b, a)
	var cycle *CycleError
	require.True(t, errors.As(err, &cycle), "expected a cycle error, got %v", err)
	assert.GreaterOrEqual(t, len(cycle.Path), 3)
	assert.Equal(t, cycle.Path[0], cycle.Path[len(cycle.Path)-1])

	for _, target := range b.Targets {
		assert.Empty(t, target.Dependencies, "failed edges must be rolled back")
	}
	assert.NoError(t, m.Validate())
}

func TestClosure(t *testing.T) {
	m := &Manifest{}
	p1 := mustProject(t, "p1", ProjectPackage, false)
	p2 := mustProject(t, "p2", ProjectPackage, false)
	require.NoError(t, m.AddProject(p1))
	require.NoError(t, m.AddProject(p2))
	_, err := m.AddDependency(p1, p2)
	require.NoError(t, err)

	refs, err := m.Closure(p1, KindBuild)
	require.NoError(t, err)

	labels := make([]string, len(refs))
	for idx, ref := range refs {
		labels[idx] = ref.String()
	}
	assert.Equal(t, []string{"p2.lint", "p2.build", "p1.lint", "p1.build"}, labels)

	_, err = m.Closure(p1, KindServe)
	var notFound *NotFoundError
	assert.True(t, errors.As(err, &notFound))
}

func TestChainAndIncludes(t *testing.T) {
	assert.True(t, Includes(KindLint, KindBuild))
	assert.True(t, Includes(KindServe, KindServe))
	assert.False(t, Includes(KindInstall, KindServe))
	assert.False(t, Includes(KindServe, KindInstall))
	assert.False(t, Includes(KindTest, KindBuild))

	p := mustProject(t, "tool", ProjectCLI, true)
	chain := p.Chain(KindInstall)
	kinds := make([]TargetKind, len(chain))
	for idx, target := range chain {
		kinds[idx] = target.Kind
	}
	assert.Equal(t, []TargetKind{KindLint, KindBuild, KindTest, KindInstall}, kinds)
	assert.Len(t, p.Chain(KindLint), 1)
}
