package manifest

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// DefaultCommand is the command template assigned to new targets.
const DefaultCommand = `npm run "$MONO_TARGET" -w "$MONO_PROJECT_PATH"`

// NewTarget creates a target with a fresh identity and no dependencies.
func NewTarget(kind TargetKind) *Target {
	return &Target{
		Kind:         kind,
		Identity:     uuid.NewString(),
		Command:      DefaultCommand,
		Dependencies: []Dependency{},
	}
}

// CreateProject synthesizes a project with the default targets for its kind. The install target is
// only kept for publishable projects.
func CreateProject(name string, kind ProjectKind, projectPath string, publishable bool) (*Project, error) {
	if !kind.Valid() {
		return nil, eris.Errorf("unknown project kind %q", kind)
	}

	if err := ValidateName(name); err != nil {
		return nil, err
	}

	project := &Project{
		Name:        name,
		Path:        projectPath,
		Kind:        kind,
		Publishable: publishable,
		Targets:     make([]*Target, 0),
	}

	for _, tk := range kind.TargetKinds() {
		if tk == KindInstall && !publishable {
			continue
		}

		project.Targets = append(project.Targets, NewTarget(tk))
	}

	return project, nil
}

// DefaultPath returns the location new projects of the given kind and name are placed in.
func DefaultPath(name string, kind ProjectKind) string {
	return path.Join("src", kind.Folder(), strings.TrimPrefix(name, "@"))
}

// ValidateName checks that name is either a plain name or a scoped name of depth one (@scope/name).
func ValidateName(name string) error {
	if name == "" {
		return eris.New("project name is empty")
	}

	if !strings.ContainsAny(name, "@/") {
		return nil
	}

	if !strings.HasPrefix(name, "@") || strings.Count(name, "@") != 1 {
		return eris.Errorf("scoped project name %s has to start with '@'", name)
	}

	parts := strings.Split(name[1:], "/")
	if len(parts) != 2 {
		return eris.Errorf("scoped project name %s has to contain exactly one '/'", name)
	}

	if parts[0] == "" || parts[1] == "" {
		return eris.Errorf("scoped project name %s has an empty scope or name", name)
	}

	return nil
}

// AddProject appends a project after making sure neither its name nor its path is taken.
func (m *Manifest) AddProject(p *Project) error {
	if err := ValidateName(p.Name); err != nil {
		return err
	}

	for _, other := range m.Projects {
		if other.Name == p.Name {
			return eris.Errorf("a project named %s already exists", p.Name)
		}

		if path.Clean(other.Path) == path.Clean(p.Path) {
			return eris.Errorf("%s already uses the path %s", other.Name, p.Path)
		}
	}

	m.Projects = append(m.Projects, p)
	return nil
}

// AddDependency makes from depend on to. Each target of from depends on every target of to whose
// kind ranks at or below its own, so building from first lints and builds to.
// It returns the number of new edges. Edges that already exist are left alone and an edge set that
// would close a cycle is rolled back.
func (m *Manifest) AddDependency(from, to *Project) (int, error) {
	if from.Name == to.Name {
		return 0, eris.Errorf("%s can't depend on itself", from.Name)
	}

	backup := make(map[*Target][]Dependency, len(from.Targets))
	for _, t := range from.Targets {
		backup[t] = t.Dependencies
	}

	added := 0
	for _, ft := range from.Targets {
		fo, ok := ft.Kind.Order()
		if !ok {
			return 0, eris.Errorf("%s has a target of unknown kind %s", from.Name, ft.Kind)
		}

		for _, tt := range to.Targets {
			tto, ok := tt.Kind.Order()
			if !ok || fo < tto {
				continue
			}

			dep := Dependency{Project: to.Name, Identity: tt.Identity}
			if hasDependency(ft, dep) {
				continue
			}

			ft.Dependencies = append(ft.Dependencies, dep)
			added++
		}
	}

	if cycle := m.findCycle(); cycle != nil {
		for t, deps := range backup {
			t.Dependencies = deps
		}
		return 0, &CycleError{Path: cycle}
	}

	return added, nil
}

func hasDependency(t *Target, dep Dependency) bool {
	for _, item := range t.Dependencies {
		if item == dep {
			return true
		}
	}
	return false
}

// Closure returns every target that a request for kind on project reaches, dependencies first.
func (m *Manifest) Closure(project *Project, kind TargetKind) ([]TargetRef, error) {
	if _, ok := project.Target(kind); !ok {
		return nil, &NotFoundError{
			What: "target",
			Name: fmt.Sprintf("%s.%s", project.Name, kind),
		}
	}

	seen := make(map[string]bool)
	result := make([]TargetRef, 0)

	var visit func(p *Project, t *Target) error
	visit = func(p *Project, t *Target) error {
		if seen[t.Identity] {
			return nil
		}
		seen[t.Identity] = true

		for _, local := range p.Chain(t.Kind) {
			for _, dep := range local.Dependencies {
				dp, dt, err := m.FindTarget(dep)
				if err != nil {
					return err
				}

				if err = visit(dp, dt); err != nil {
					return err
				}
			}
		}

		for _, local := range p.Chain(t.Kind) {
			if local != t && !seen[local.Identity] {
				seen[local.Identity] = true
				result = append(result, p.Ref(local))
			}
		}
		result = append(result, p.Ref(t))
		return nil
	}

	target, _ := project.Target(kind)
	if err := visit(project, target); err != nil {
		return nil, err
	}

	return result, nil
}
