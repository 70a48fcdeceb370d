package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"mvdan.cc/sh/v3/syntax"

	"github.com/coffeebe4code/mono/pkg/manifest"
	"github.com/coffeebe4code/mono/pkg/runner"
	"github.com/coffeebe4code/mono/pkg/workspace"
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <project|.> [packages...]",
		Short: "Install npm packages into a project or the workspace root",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dev, err := cmd.Flags().GetBool("dev")
			if err != nil {
				return err
			}

			dryRun, err := cmd.Flags().GetBool("dry")
			if err != nil {
				return err
			}

			s, err := newSession(cmd, true)
			if err != nil {
				return err
			}

			command, err := installCommand(s, args[0], args[1:], dev)
			if err != nil {
				return err
			}

			shell := runner.NewShell(dryRun)
			shell.Stdout = cmd.OutOrStdout()
			shell.Stderr = cmd.ErrOrStderr()
			return shell.Exec(s.ctx, s.root, "install", command, []string{"MONO_ROOT=" + s.root})
		},
	}

	cmd.Flags().BoolP("dev", "D", false, "install as development dependencies")
	cmd.Flags().Bool("dry", false, "dry run; only print the command")
	return cmd
}

// installCommand builds the npm invocation. "." targets the workspace root, anything else has to
// name a project or point into one.
func installCommand(s *session, target string, packages []string, dev bool) (string, error) {
	words := []string{"npm", "install"}
	if dev {
		words = append(words, "-D")
	}

	for _, pkg := range packages {
		words = append(words, quote(pkg))
	}

	if target == "." {
		return strings.Join(words, " "), nil
	}

	m, err := s.store.Load(s.ctx)
	if err != nil {
		return "", err
	}

	project, ok := m.Lookup(target)
	if !ok {
		if !looksLikePath(target) {
			return "", &manifest.NotFoundError{What: "project", Name: target}
		}

		project, err = workspace.ProjectForPath(m, s.root, target)
		if err != nil {
			return "", err
		}
	}

	words = append(words, "-w", quote(project.Path))
	return strings.Join(words, " "), nil
}

func quote(word string) string {
	quoted, err := syntax.Quote(word, syntax.LangBash)
	if err != nil {
		// only fails for strings containing NUL bytes
		return word
	}
	return quoted
}
