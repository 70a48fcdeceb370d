package manifest

import (
	"fmt"
	"sort"
)

// TargetKind names one stage of a project's pipeline.
type TargetKind string

const (
	KindLint    TargetKind = "lint"
	KindBuild   TargetKind = "build"
	KindTest    TargetKind = "test"
	KindServe   TargetKind = "serve"
	KindInstall TargetKind = "install"
)

// ProjectKind determines which targets a project gets when it's created.
type ProjectKind string

const (
	ProjectService ProjectKind = "service"
	ProjectCLI     ProjectKind = "cli"
	ProjectApp     ProjectKind = "app"
	ProjectPackage ProjectKind = "package"
)

// serve and install share the highest rank and are not ordered against each other
var kindOrder = map[TargetKind]int{
	KindLint:    0,
	KindBuild:   1,
	KindTest:    2,
	KindServe:   3,
	KindInstall: 3,
}

// the order of each list must match kindOrder
var projectTargets = map[ProjectKind][]TargetKind{
	ProjectService: {KindLint, KindBuild, KindTest, KindServe},
	ProjectCLI:     {KindLint, KindBuild, KindTest, KindInstall},
	ProjectApp:     {KindLint, KindBuild, KindTest},
	ProjectPackage: {KindLint, KindBuild, KindTest},
}

var projectFolders = map[ProjectKind]string{
	ProjectService: "services",
	ProjectCLI:     "clis",
	ProjectApp:     "apps",
	ProjectPackage: "packages",
}

// Order returns the rank of the kind. ok is false for unknown kinds.
func (k TargetKind) Order() (rank int, ok bool) {
	rank, ok = kindOrder[k]
	return
}

// Valid reports whether k is one of the known target kinds.
func (k TargetKind) Valid() bool {
	_, ok := kindOrder[k]
	return ok
}

// Includes reports whether a target of kind k belongs to the local chain of a request for kind req:
// every strictly earlier stage plus req itself.
func Includes(k, req TargetKind) bool {
	if k == req {
		return true
	}

	a, okA := k.Order()
	b, okB := req.Order()
	return okA && okB && a < b
}

// TargetKinds returns the default target kinds for projects of this kind in ascending order.
func (k ProjectKind) TargetKinds() []TargetKind {
	kinds := projectTargets[k]
	result := make([]TargetKind, len(kinds))
	copy(result, kinds)
	return result
}

// Valid reports whether k is one of the known project kinds.
func (k ProjectKind) Valid() bool {
	_, ok := projectTargets[k]
	return ok
}

// Folder returns the directory below src/ that holds projects of this kind.
func (k ProjectKind) Folder() string {
	return projectFolders[k]
}

func (k ProjectKind) allows(t TargetKind) bool {
	for _, item := range projectTargets[k] {
		if item == t {
			return true
		}
	}
	return false
}

// Manifest is the persisted project graph.
type Manifest struct {
	Version  int        `json:"version"`
	Projects []*Project `json:"projects"`
}

// Project is a named, pathed unit of source code with a fixed set of targets.
type Project struct {
	Name        string      `json:"name"`
	Path        string      `json:"path"`
	Kind        ProjectKind `json:"kind"`
	Publishable bool        `json:"publishable"`
	Targets     []*Target   `json:"targets"`
}

// Target is one unit of work belonging to a project.
type Target struct {
	Kind         TargetKind   `json:"kind"`
	Identity     string       `json:"identity"`
	Command      string       `json:"command"`
	Dependencies []Dependency `json:"dependencies"`
}

// Dependency is a weak reference to a target in another project that has to complete first.
type Dependency struct {
	Project  string `json:"project"`
	Identity string `json:"identity"`
}

// TargetRef identifies a target for reporting purposes.
type TargetRef struct {
	Project  string     `yaml:"project"`
	Kind     TargetKind `yaml:"kind"`
	Identity string     `yaml:"identity"`
}

func (r TargetRef) String() string {
	return fmt.Sprintf("%s.%s", r.Project, r.Kind)
}

// Ref returns the reporting reference for t.
func (p *Project) Ref(t *Target) TargetRef {
	return TargetRef{Project: p.Name, Kind: t.Kind, Identity: t.Identity}
}

// Target returns the project's target of the given kind.
func (p *Project) Target(kind TargetKind) (*Target, bool) {
	for _, t := range p.Targets {
		if t.Kind == kind {
			return t, true
		}
	}
	return nil, false
}

// TargetByIdentity returns the project's target with the given identity.
func (p *Project) TargetByIdentity(identity string) (*Target, bool) {
	for _, t := range p.Targets {
		if t.Identity == identity {
			return t, true
		}
	}
	return nil, false
}

// Chain returns the targets that have to run to satisfy a request for kind, in ascending order.
func (p *Project) Chain(kind TargetKind) []*Target {
	result := make([]*Target, 0, len(p.Targets))
	for _, t := range p.Targets {
		if Includes(t.Kind, kind) {
			result = append(result, t)
		}
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, _ := result[i].Kind.Order()
		b, _ := result[j].Kind.Order()
		return a < b
	})
	return result
}

// Lookup finds a project by its exact name.
func (m *Manifest) Lookup(name string) (*Project, bool) {
	for _, p := range m.Projects {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// FindTarget resolves a dependency reference.
func (m *Manifest) FindTarget(dep Dependency) (*Project, *Target, error) {
	project, ok := m.Lookup(dep.Project)
	if !ok {
		return nil, nil, &NotFoundError{
			What: "project",
			Name: dep.Project,
			Hints: []string{
				fmt.Sprintf("a dependency refers to the project %s which is not part of the manifest", dep.Project),
				"remove the dependency or restore the project",
			},
		}
	}

	target, ok := project.TargetByIdentity(dep.Identity)
	if !ok {
		return nil, nil, &NotFoundError{
			What: "target",
			Name: fmt.Sprintf("%s#%s", dep.Project, dep.Identity),
			Hints: []string{
				fmt.Sprintf("%s has no target with identity %s", dep.Project, dep.Identity),
				"identities are never regenerated; re-add the dependency with `mono graph`",
			},
		}
	}

	return project, target, nil
}
