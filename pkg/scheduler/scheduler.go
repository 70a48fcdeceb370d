// Package scheduler brings a requested target and everything it depends on up to date.
//
// The walk is depth-first and post-order: every dependency is settled before the project that
// needs it. Each target ends up in exactly one terminal state per invocation, which keeps shared
// dependencies from running twice and makes diamond-shaped graphs converge.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/coffeebe4code/mono/pkg/cache"
	"github.com/coffeebe4code/mono/pkg/manifest"
	"github.com/coffeebe4code/mono/pkg/output"
	"github.com/coffeebe4code/mono/pkg/runner"
	"github.com/coffeebe4code/mono/pkg/staleness"
)

// State is the progress of a single target within one invocation.
type State int

const (
	Unvisited State = iota
	Visiting
	Skipped
	Executed
	Failed
)

func (s State) String() string {
	switch s {
	case Unvisited:
		return "unvisited"
	case Visiting:
		return "visiting"
	case Skipped:
		return "skipped"
	case Executed:
		return "executed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Options controls how batches are executed.
type Options struct {
	// Root is the workspace root commands run in.
	Root string
	// DryRun logs commands without running them and writes no markers.
	DryRun bool
	// Parallel runs the targets of a batch concurrently. Otherwise they run one after another
	// in kind order.
	Parallel bool
	// Force treats every target as stale without touching the markers.
	Force bool
	// Jobs limits the number of concurrent commands in a batch. 0 means no limit.
	Jobs int
	// Now is used for marker timestamps. Defaults to time.Now.
	Now func() time.Time
}

// Scheduler runs targets of one manifest. A Scheduler represents one invocation: targets that were
// skipped or executed once are never reconsidered.
type Scheduler struct {
	manifest *manifest.Manifest
	oracle   *staleness.Oracle
	markers  cache.Store
	runner   runner.Runner
	opts     Options

	states   map[string]State
	refs     map[string]manifest.TargetRef
	stack    []string
	executed []manifest.TargetRef
}

// New returns a scheduler for m.
func New(m *manifest.Manifest, oracle *staleness.Oracle, markers cache.Store, run runner.Runner, opts Options) *Scheduler {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Scheduler{
		manifest: m,
		oracle:   oracle,
		markers:  markers,
		runner:   run,
		opts:     opts,
		states:   make(map[string]State),
		refs:     make(map[string]manifest.TargetRef),
	}
}

func (s *Scheduler) resolve(projectName string, kind manifest.TargetKind) (*manifest.Project, *manifest.Target, error) {
	project, ok := s.manifest.Lookup(projectName)
	if !ok {
		return nil, nil, &manifest.NotFoundError{
			What: "project",
			Name: projectName,
			Hints: []string{
				"check the spelling, scoped names include the scope (@scope/name)",
				"add the project with `mono add`",
			},
		}
	}

	target, ok := project.Target(kind)
	if !ok {
		kinds := make([]string, 0, len(project.Targets))
		for _, t := range project.Targets {
			kinds = append(kinds, string(t.Kind))
		}

		return nil, nil, &manifest.NotFoundError{
			What: "target",
			Name: fmt.Sprintf("%s.%s", projectName, kind),
			Hints: []string{
				fmt.Sprintf("%s does not have a %s target", projectName, kind),
				fmt.Sprintf("available targets: %v", kinds),
			},
		}
	}

	return project, target, nil
}

// Invalidate removes the markers of every target a request for kind on the project reaches.
func (s *Scheduler) Invalidate(ctx context.Context, projectName string, kind manifest.TargetKind) error {
	project, _, err := s.resolve(projectName, kind)
	if err != nil {
		return err
	}

	closure, err := s.manifest.Closure(project, kind)
	if err != nil {
		return err
	}

	identities := make([]string, len(closure))
	for idx, ref := range closure {
		identities[idx] = ref.Identity
	}

	output.Log(ctx).Info().
		Str("project", projectName).
		Msgf("removing %d cache markers", len(identities))
	return s.markers.Invalidate(ctx, identities)
}

// Run brings the target of kind on the named project up to date and returns the number of
// targets this call executed.
func (s *Scheduler) Run(ctx context.Context, projectName string, kind manifest.TargetKind) (int, error) {
	project, target, err := s.resolve(projectName, kind)
	if err != nil {
		return 0, err
	}

	before := len(s.executed)
	_, err = s.visit(ctx, project, target)
	return len(s.executed) - before, err
}

// State returns the state of the target with the given identity.
func (s *Scheduler) State(identity string) State {
	return s.states[identity]
}

// Executed returns the targets executed so far in execution order.
func (s *Scheduler) Executed() []manifest.TargetRef {
	result := make([]manifest.TargetRef, len(s.executed))
	copy(result, s.executed)
	return result
}

// ReportEntry is the final state of one target.
type ReportEntry struct {
	Target manifest.TargetRef
	State  State
}

// Report lists every target this scheduler looked at, sorted by project and kind.
func (s *Scheduler) Report() []ReportEntry {
	result := make([]ReportEntry, 0, len(s.states))
	for identity, state := range s.states {
		result = append(result, ReportEntry{Target: s.refs[identity], State: state})
	}

	sort.Slice(result, func(i, j int) bool {
		a, b := result[i].Target, result[j].Target
		if a.Project != b.Project {
			return a.Project < b.Project
		}
		ao, _ := a.Kind.Order()
		bo, _ := b.Kind.Order()
		return ao < bo
	})
	return result
}

// visit settles target and the earlier stages of its project. dirty reports whether the target ran
// during this invocation, which forces everything depending on it to run as well.
func (s *Scheduler) visit(ctx context.Context, project *manifest.Project, target *manifest.Target) (dirty bool, err error) {
	if err = ctx.Err(); err != nil {
		return false, err
	}

	switch s.states[target.Identity] {
	case Visiting:
		return false, s.cycleError(project.Ref(target))
	case Skipped:
		return false, nil
	case Executed:
		return true, nil
	case Failed:
		return false, eris.Errorf("%s already failed", project.Ref(target))
	}

	chain := project.Chain(target.Kind)
	for _, local := range chain {
		if s.states[local.Identity] == Visiting {
			return false, s.cycleError(project.Ref(local))
		}
	}

	// only the requested target is in progress, earlier stages may still be settled on their own
	// by the walk below
	ref := project.Ref(target)
	s.states[target.Identity] = Visiting
	s.refs[target.Identity] = ref
	s.stack = append(s.stack, ref.String())

	upstream := false
	for _, local := range chain {
		for _, dep := range local.Dependencies {
			depProject, depTarget, err := s.manifest.FindTarget(dep)
			if err != nil {
				return false, eris.Wrapf(err, "failed to resolve a dependency of %s", project.Ref(local))
			}

			ran, err := s.visit(ctx, depProject, depTarget)
			if err != nil {
				return false, err
			}
			upstream = upstream || ran
		}
	}

	s.stack = s.stack[:len(s.stack)-1]

	pending := make([]*manifest.Target, 0, len(chain))
	for _, local := range chain {
		switch s.states[local.Identity] {
		case Unvisited, Visiting:
			s.refs[local.Identity] = project.Ref(local)
			pending = append(pending, local)
		case Executed:
			upstream = true
		case Failed:
			return false, eris.Errorf("%s already failed", project.Ref(local))
		}
	}

	logger := output.Log(ctx).With().
		Str("project", project.Name).
		Str("target", string(target.Kind)).
		Logger()

	trigger := upstream
	if upstream {
		logger.Debug().Msg("a dependency or an earlier stage ran, rebuilding")
	} else {
		for _, local := range pending {
			if s.isStale(ctx, project, local) {
				trigger = true
				break
			}
		}
	}

	if !trigger {
		for _, local := range pending {
			s.states[local.Identity] = Skipped
		}

		logger.Info().Msg("nothing to do")
		return false, nil
	}

	if err = s.runBatch(ctx, project, pending); err != nil {
		for _, local := range pending {
			s.states[local.Identity] = Failed
		}
		return false, err
	}

	return true, nil
}

func (s *Scheduler) isStale(ctx context.Context, project *manifest.Project, target *manifest.Target) bool {
	if s.opts.Force {
		return true
	}

	at, found, err := s.markers.Marker(ctx, target.Identity)
	if err != nil {
		output.Log(ctx).Warn().
			Err(err).
			Str("project", project.Name).
			Str("target", string(target.Kind)).
			Msg("could not read cache marker, assuming stale")
		return true
	}

	return s.oracle.IsStale(ctx, project, target, at, found)
}

// runBatch executes the given targets of a single project. Markers are only written if every
// command succeeded.
func (s *Scheduler) runBatch(ctx context.Context, project *manifest.Project, batch []*manifest.Target) error {
	run := func(t *manifest.Target) error {
		err := s.runner.Run(ctx, runner.Job{Root: s.opts.Root, Project: project, Target: t})
		if err != nil {
			return &ExecutionError{Target: project.Ref(t), Err: err}
		}
		return nil
	}

	var err error
	if s.opts.Parallel && len(batch) > 1 {
		// Wait blocks until every command returned, so no child process outlives a failed batch
		var group errgroup.Group
		if s.opts.Jobs > 0 {
			group.SetLimit(s.opts.Jobs)
		}

		for _, t := range batch {
			t := t
			group.Go(func() error {
				return run(t)
			})
		}
		err = group.Wait()
	} else {
		for _, t := range batch {
			if err = run(t); err != nil {
				break
			}
		}
	}

	if err != nil {
		return err
	}

	identities := make([]string, len(batch))
	for idx, t := range batch {
		identities[idx] = t.Identity
	}

	if !s.opts.DryRun {
		if err = s.markers.Mark(ctx, identities, s.opts.Now()); err != nil {
			return eris.Wrapf(err, "failed to record the results of %s", project.Name)
		}
	}

	for _, t := range batch {
		s.states[t.Identity] = Executed
		s.executed = append(s.executed, project.Ref(t))
	}

	return nil
}

func (s *Scheduler) cycleError(ref manifest.TargetRef) error {
	label := ref.String()
	for idx, item := range s.stack {
		if item == label {
			path := append(append([]string{}, s.stack[idx:]...), label)
			return &manifest.CycleError{Path: path}
		}
	}

	return &manifest.CycleError{Path: []string{label, label}}
}
