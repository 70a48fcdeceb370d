// Package workspace locates the repository root and maps file paths to projects.
package workspace

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/coffeebe4code/mono/pkg/manifest"
)

// FindRoot walks upwards from start until it finds a directory containing fileName.
func FindRoot(start, fileName string) (string, error) {
	path, err := filepath.Abs(start)
	if err != nil {
		return "", eris.Wrapf(err, "failed to resolve %s", start)
	}

	// a file path starts the search in its directory
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		path = filepath.Dir(path)
	}

	for {
		candidate := filepath.Join(path, fileName)
		_, err := os.Stat(candidate)
		if err == nil {
			return path, nil
		}

		if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrapf(err, "failed to check %s", candidate)
		}

		parent := filepath.Dir(path)
		if parent == path {
			return "", &manifest.NotFoundError{
				What: "manifest",
				Name: fileName,
				Hints: []string{
					"run `mono init` in the root of your repository",
					"or run this command from inside an initialized repository",
				},
			}
		}

		path = parent
	}
}

// ProjectForPath returns the project whose directory is the nearest ancestor of path.
func ProjectForPath(m *manifest.Manifest, root, path string) (*manifest.Project, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, eris.Wrapf(err, "failed to resolve %s", path)
	}

	rel, err := filepath.Rel(root, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, eris.Errorf("%s is outside of the workspace %s", path, root)
	}
	rel = filepath.ToSlash(rel)

	var best *manifest.Project
	for _, p := range m.Projects {
		projectPath := strings.TrimSuffix(filepath.ToSlash(filepath.Clean(filepath.FromSlash(p.Path))), "/")
		if rel != projectPath && !strings.HasPrefix(rel, projectPath+"/") {
			continue
		}

		if best == nil || len(projectPath) > len(filepath.Clean(best.Path)) {
			best = p
		}
	}

	if best == nil {
		return nil, &manifest.NotFoundError{
			What: "project containing",
			Name: rel,
			Hints: []string{
				"the file does not belong to any project listed in the manifest",
			},
		}
	}

	return best, nil
}
