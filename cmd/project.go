package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/coffeebe4code/mono/pkg/manifest"
)

// templates maps the names accepted by `add --template` to project kinds.
var templates = map[string]manifest.ProjectKind{
	"uws":     manifest.ProjectService,
	"mini":    manifest.ProjectCLI,
	"package": manifest.ProjectPackage,
	"app":     manifest.ProjectApp,
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty manifest in the current directory",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, false)
			if err != nil {
				return err
			}

			if _, err = s.store.Init(s.ctx); err != nil {
				return err
			}
			PrintTask(s.out, "created "+s.cfg.Manifest)

			cacheDir := s.cfg.CachePath(s.root)
			if err = os.MkdirAll(cacheDir, 0o770); err != nil {
				return eris.Wrapf(err, "failed to create %s", cacheDir)
			}

			added, err := ignoreCacheDir(s.root, s.cfg.Cache.Dir)
			if err != nil {
				return err
			}
			if added {
				PrintSubtask(s.out, fmt.Sprintf("added %s to .gitignore", s.cfg.Cache.Dir))
			}
			return nil
		},
	}
}

// ignoreCacheDir appends the cache directory to the .gitignore file in root unless it's already
// listed.
func ignoreCacheDir(root, cacheDir string) (bool, error) {
	ignorePath := filepath.Join(root, ".gitignore")
	entry := filepath.ToSlash(cacheDir)

	data, err := os.ReadFile(ignorePath)
	if err != nil && !eris.Is(err, os.ErrNotExist) {
		return false, eris.Wrapf(err, "failed to read %s", ignorePath)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(line), "/"), "/")
		if line == entry {
			return false, nil
		}
	}

	prefix := ""
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		prefix = "\n"
	}

	f, err := os.OpenFile(ignorePath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o660)
	if err != nil {
		return false, eris.Wrapf(err, "failed to open %s", ignorePath)
	}
	defer f.Close()

	if _, err = f.WriteString(prefix + entry + "\n"); err != nil {
		return false, eris.Wrapf(err, "failed to write %s", ignorePath)
	}
	return true, nil
}

func newAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a new project",
		Long: `Adds a project to the manifest and creates its source directory. Scoped names (@scope/name)
are placed in a folder named after the part behind the scope.`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]

			template, err := cmd.Flags().GetString("template")
			if err != nil {
				return err
			}

			publishable, err := cmd.Flags().GetBool("publishable")
			if err != nil {
				return err
			}

			kind, ok := templates[template]
			if !ok {
				return usageErrorf("unknown template %s, available: %s", template, strings.Join(templateNames(), ", "))
			}

			if err = manifest.ValidateName(name); err != nil {
				return &usageError{err: err}
			}

			s, err := newSession(cmd, true)
			if err != nil {
				return err
			}

			m, err := s.store.Load(s.ctx)
			if err != nil {
				return err
			}

			projectPath := manifest.DefaultPath(name, kind)
			project, err := manifest.CreateProject(name, kind, projectPath, publishable)
			if err != nil {
				return err
			}

			if err = m.AddProject(project); err != nil {
				return &usageError{err: err}
			}

			srcDir := filepath.Join(s.root, filepath.FromSlash(projectPath), s.cfg.Sources.Src)
			if err = os.MkdirAll(srcDir, 0o770); err != nil {
				return eris.Wrapf(err, "failed to create %s", srcDir)
			}

			if err = s.store.Save(s.ctx, m); err != nil {
				return err
			}

			PrintTask(s.out, fmt.Sprintf("added %s %s in %s", kind, name, projectPath))
			for _, t := range project.Targets {
				PrintSubtask(s.out, string(t.Kind))
			}
			return nil
		},
	}

	cmd.Flags().StringP("template", "t", "package", "project template: "+strings.Join(templateNames(), ", "))
	cmd.Flags().BoolP("publishable", "p", false, "give the project an install target")
	return cmd
}

func templateNames() []string {
	names := make([]string, 0, len(templates))
	for name := range templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newTemplatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List the project templates accepted by add",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			PrintTask(out, "Available templates:")

			for _, name := range templateNames() {
				kind := templates[name]
				kinds := make([]string, 0)
				for _, k := range kind.TargetKinds() {
					kinds = append(kinds, string(k))
				}

				PrintSubtask(out, fmt.Sprintf("%-8s %-8s %s (%s)", name, kind, kind.Folder(), strings.Join(kinds, ", ")))
			}
			return nil
		},
	}
}
