package cmd

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/coffeebe4code/mono/pkg/manifest"
)

type graphView struct {
	Project string               `yaml:"project"`
	Kind    manifest.TargetKind  `yaml:"kind"`
	Order   []manifest.TargetRef `yaml:"order"`
	Direct  map[string][]string  `yaml:"direct,omitempty"`
}

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph <project>",
		Short: "Add dependencies between projects or show what a project depends on",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			dependsOn, err := flags.GetStringSlice("depends-on")
			if err != nil {
				return err
			}

			show, err := flags.GetBool("show")
			if err != nil {
				return err
			}

			kind, err := flags.GetString("kind")
			if err != nil {
				return err
			}

			if len(dependsOn) == 0 && !show {
				return usageErrorf("pass --depends-on to add dependencies or --show to print them")
			}

			s, err := newSession(cmd, true)
			if err != nil {
				return err
			}

			m, err := s.store.Load(s.ctx)
			if err != nil {
				return err
			}

			project, ok := m.Lookup(args[0])
			if !ok {
				return &manifest.NotFoundError{What: "project", Name: args[0]}
			}

			if len(dependsOn) > 0 {
				for _, name := range dependsOn {
					other, ok := m.Lookup(name)
					if !ok {
						return &manifest.NotFoundError{
							What:  "project",
							Name:  name,
							Hints: []string{"add it with `mono add` before depending on it"},
						}
					}

					added, err := m.AddDependency(project, other)
					if err != nil {
						return err
					}

					if added == 0 {
						PrintSubtask(s.out, fmt.Sprintf("%s already depends on %s", project.Name, other.Name))
					} else {
						PrintSubtask(s.out, fmt.Sprintf("%s now depends on %s (%d edges)", project.Name, other.Name, added))
					}
				}

				if err = s.store.Save(s.ctx, m); err != nil {
					return err
				}
			}

			if show {
				return showGraph(cmd, m, project, manifest.TargetKind(kind))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringSliceP("depends-on", "d", nil, "projects the given project depends on")
	flags.BoolP("show", "s", false, "print every target a request reaches, in execution order")
	flags.StringP("kind", "k", "", "target kind to show (defaults to the last stage of the project)")
	return cmd
}

func showGraph(cmd *cobra.Command, m *manifest.Manifest, project *manifest.Project, kind manifest.TargetKind) error {
	if kind == "" {
		chain := project.Chain(manifest.KindServe)
		chain = append(chain, project.Chain(manifest.KindInstall)...)
		if len(chain) == 0 {
			return eris.Errorf("%s has no targets", project.Name)
		}

		best := chain[0]
		bestOrder, _ := best.Kind.Order()
		for _, t := range chain[1:] {
			if order, _ := t.Kind.Order(); order > bestOrder {
				best, bestOrder = t, order
			}
		}
		kind = best.Kind
	} else if !kind.Valid() {
		return usageErrorf("unknown target kind %s", kind)
	}

	order, err := m.Closure(project, kind)
	if err != nil {
		return err
	}

	view := graphView{
		Project: project.Name,
		Kind:    kind,
		Order:   order,
		Direct:  make(map[string][]string),
	}

	for _, t := range project.Chain(kind) {
		for _, dep := range t.Dependencies {
			depProject, depTarget, err := m.FindTarget(dep)
			if err != nil {
				return err
			}

			label := project.Ref(t).String()
			view.Direct[label] = append(view.Direct[label], depProject.Ref(depTarget).String())
		}
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err = enc.Encode(view); err != nil {
		return eris.Wrap(err, "failed to render graph")
	}
	return enc.Close()
}
