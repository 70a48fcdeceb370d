package manifest

import (
	"fmt"
	"path"

	"github.com/rotisserie/eris"
	"go.uber.org/multierr"
)

// Validate checks the whole document and reports every problem it finds at once.
func (m *Manifest) Validate() error {
	var result error

	names := make(map[string]bool, len(m.Projects))
	paths := make(map[string]string, len(m.Projects))
	identities := make(map[string]string)

	for _, p := range m.Projects {
		if err := ValidateName(p.Name); err != nil {
			result = multierr.Append(result, err)
		}

		if names[p.Name] {
			result = multierr.Append(result, eris.Errorf("project name %s is used more than once", p.Name))
		}
		names[p.Name] = true

		if p.Path == "" {
			result = multierr.Append(result, eris.Errorf("project %s has no path", p.Name))
		} else {
			clean := path.Clean(p.Path)
			if other, ok := paths[clean]; ok {
				result = multierr.Append(result, eris.Errorf("projects %s and %s share the path %s", other, p.Name, p.Path))
			}
			paths[clean] = p.Name
		}

		if !p.Kind.Valid() {
			result = multierr.Append(result, eris.Errorf("project %s has unknown kind %q", p.Name, p.Kind))
		}

		kinds := make(map[TargetKind]bool, len(p.Targets))
		for _, t := range p.Targets {
			label := fmt.Sprintf("%s.%s", p.Name, t.Kind)
			if !t.Kind.Valid() {
				result = multierr.Append(result, eris.Errorf("%s has unknown target kind", label))
			} else if p.Kind.Valid() && !p.Kind.allows(t.Kind) {
				result = multierr.Append(result, eris.Errorf("%s is not a valid target for a %s project", label, p.Kind))
			}

			if kinds[t.Kind] {
				result = multierr.Append(result, eris.Errorf("%s is defined more than once", label))
			}
			kinds[t.Kind] = true

			if t.Identity == "" {
				result = multierr.Append(result, eris.Errorf("%s has no identity", label))
			} else if other, ok := identities[t.Identity]; ok {
				result = multierr.Append(result, eris.Errorf("%s reuses the identity %s of %s", label, t.Identity, other))
			} else {
				identities[t.Identity] = label
			}
		}
	}

	// references can only be checked once every project is known
	for _, p := range m.Projects {
		for _, t := range p.Targets {
			for _, dep := range t.Dependencies {
				if dep.Project == p.Name {
					result = multierr.Append(result, eris.Errorf("%s.%s depends on a target of its own project", p.Name, t.Kind))
					continue
				}

				if _, _, err := m.FindTarget(dep); err != nil {
					result = multierr.Append(result, eris.Wrapf(err, "%s.%s has a broken dependency", p.Name, t.Kind))
				}
			}
		}
	}

	if result != nil {
		return result
	}

	if cycle := m.findCycle(); cycle != nil {
		return &CycleError{Path: cycle}
	}

	return nil
}

const (
	white = iota
	grey
	black
)

// findCycle searches the graph the scheduler walks: a target leads to the dependencies of every
// target in its local chain, and only the target itself is in progress while they are visited.
// It returns the labels along the first cycle found or nil.
func (m *Manifest) findCycle() []string {
	color := make(map[string]int)
	stack := make([]string, 0)

	var visit func(p *Project, t *Target) []string
	visit = func(p *Project, t *Target) []string {
		label := fmt.Sprintf("%s.%s", p.Name, t.Kind)
		switch color[t.Identity] {
		case grey:
			for idx, item := range stack {
				if item == label {
					return append(append([]string{}, stack[idx:]...), label)
				}
			}
			return []string{label, label}
		case black:
			return nil
		}

		color[t.Identity] = grey
		stack = append(stack, label)

		for _, local := range p.Chain(t.Kind) {
			for _, dep := range local.Dependencies {
				dp, dt, err := m.FindTarget(dep)
				if err != nil {
					// dangling references are reported by Validate
					continue
				}

				if cycle := visit(dp, dt); cycle != nil {
					return cycle
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[t.Identity] = black
		return nil
	}

	for _, p := range m.Projects {
		for _, t := range p.Targets {
			if cycle := visit(p, t); cycle != nil {
				return cycle
			}
		}
	}

	return nil
}
