package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coffeebe4code/mono/pkg/cache"
	"github.com/coffeebe4code/mono/pkg/manifest"
	"github.com/coffeebe4code/mono/pkg/runner"
	"github.com/coffeebe4code/mono/pkg/scheduler"
	"github.com/coffeebe4code/mono/pkg/staleness"
	"github.com/coffeebe4code/mono/pkg/workspace"
)

type verb struct {
	name  string
	kind  manifest.TargetKind
	short string
	// paths allows passing a file path instead of a project name
	paths bool
}

var verbs = []verb{
	{name: "build", kind: manifest.KindBuild, short: "Lint and build a project and everything it depends on"},
	{name: "deploy", kind: manifest.KindInstall, short: "Run the full pipeline of a publishable project up to install"},
	{name: "serve", kind: manifest.KindServe, short: "Run the full pipeline of a service up to serve"},
	{name: "local", kind: manifest.KindServe, short: "Run a service locally after bringing its dependencies up to date"},
	{name: "touch", kind: manifest.KindBuild, short: "Rebuild the project a file belongs to", paths: true},
}

func newTargetCmds() []*cobra.Command {
	result := make([]*cobra.Command, len(verbs))
	for idx, v := range verbs {
		result[idx] = newTargetCmd(v)
	}
	return result
}

func newTargetCmd(v verb) *cobra.Command {
	use := v.name + " <project>"
	if v.paths {
		use = v.name + " <project|path>"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: v.short,
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTarget(cmd, v, args[0])
		},
	}

	flags := cmd.Flags()
	flags.BoolP("no-cache", "n", false, "remove the cache markers of every reachable target before running")
	flags.Bool("dry", false, "dry run; only print the commands, don't execute anything")
	flags.Bool("serial", false, "run the targets of a project one after another (overrides runner.parallel)")
	flags.IntP("jobs", "j", 0, "maximum number of concurrent commands, 0 for no limit (overrides runner.jobs)")
	return cmd
}

func runTarget(cmd *cobra.Command, v verb, arg string) error {
	s, err := newSession(cmd, true)
	if err != nil {
		return err
	}

	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return err
	}

	dryRun, err := cmd.Flags().GetBool("dry")
	if err != nil {
		return err
	}

	m, err := s.store.Load(s.ctx)
	if err != nil {
		return err
	}

	projectName := arg
	if v.paths {
		if _, ok := m.Lookup(arg); !ok && looksLikePath(arg) {
			project, err := workspace.ProjectForPath(m, s.root, arg)
			if err != nil {
				return err
			}
			projectName = project.Name
		}
	}

	markers, err := cache.Open(s.ctx, s.cfg.Cache.Backend, s.cfg.CachePath(s.root))
	if err != nil {
		return err
	}
	defer markers.Close()

	oracle := staleness.New(s.root, s.cfg.Sources.Src, s.cfg.Sources.Assets)
	shell := runner.NewShell(dryRun)
	shell.Stdout = cmd.OutOrStdout()
	shell.Stderr = cmd.ErrOrStderr()

	sched := scheduler.New(m, oracle, markers, shell, scheduler.Options{
		Root:     s.root,
		DryRun:   dryRun,
		Force:    noCache && dryRun,
		Parallel: s.cfg.Runner.Parallel,
		Jobs:     s.cfg.Runner.Jobs,
	})

	if noCache && !dryRun {
		if err = sched.Invalidate(s.ctx, projectName, v.kind); err != nil {
			return err
		}
	}

	PrintTask(s.out, fmt.Sprintf("%s %s", v.name, projectName))
	count, err := sched.Run(s.ctx, projectName, v.kind)
	if err != nil {
		return err
	}

	for _, entry := range sched.Report() {
		s.logger.Debug().
			Str("project", entry.Target.Project).
			Str("target", string(entry.Target.Kind)).
			Msg(entry.State.String())
	}

	if count == 0 {
		PrintSubtask(s.out, "everything is up to date")
	} else {
		PrintSubtask(s.out, fmt.Sprintf("ran %d target(s)", count))
	}
	return nil
}

func looksLikePath(arg string) bool {
	if arg == "." || (strings.ContainsRune(arg, os.PathSeparator) && !strings.HasPrefix(arg, "@")) {
		return true
	}

	_, err := os.Stat(arg)
	return err == nil
}
