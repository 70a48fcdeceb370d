package manifest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"

	"github.com/coffeebe4code/mono/pkg/output"
)

// Version is the newest manifest version this build understands.
const Version = 0

// DefaultFileName is the name of the manifest file in the workspace root.
const DefaultFileName = "mono.json"

// Store reads and writes the manifest document at a fixed location.
type Store struct {
	path string
}

// NewStore returns a store for the manifest at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the manifest file.
func (s *Store) Path() string {
	return s.path
}

// Init creates an empty manifest. It fails if one already exists.
func (s *Store) Init(ctx context.Context) (*Manifest, error) {
	_, err := os.Stat(s.path)
	if err == nil {
		return nil, eris.Errorf("%s already exists", s.path)
	}
	if !eris.Is(err, os.ErrNotExist) {
		return nil, eris.Wrapf(err, "failed to check %s", s.path)
	}

	m := &Manifest{
		Version:  Version,
		Projects: make([]*Project, 0),
	}

	if err = s.Save(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// Load reads and validates the manifest.
func (s *Store) Load(ctx context.Context) (*Manifest, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return nil, &NotFoundError{
				What: "manifest",
				Name: s.path,
				Hints: []string{
					"run `mono init` in the root of your repository",
					"or run this command from inside an initialized repository",
				},
			}
		}
		return nil, eris.Wrapf(err, "failed to read %s", s.path)
	}

	// check the version before decoding the rest since newer versions might use a different layout
	var header struct {
		Version int `json:"version"`
	}
	if err = json.Unmarshal(data, &header); err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", s.path)
	}

	if header.Version > Version {
		return nil, &SchemaError{Path: s.path, Found: header.Version, Supported: Version}
	}

	m := new(Manifest)
	if err = json.Unmarshal(data, m); err != nil {
		return nil, eris.Wrapf(err, "failed to parse %s", s.path)
	}
	m.normalize()

	if err = m.Validate(); err != nil {
		return nil, err
	}

	output.Log(ctx).Debug().
		Str("path", s.path).
		Int("projects", len(m.Projects)).
		Msg("loaded manifest")
	return m, nil
}

// Save validates m and replaces the manifest file with it. The document is written to a temporary
// file next to the manifest first so that readers never see a partial write.
func (s *Store) Save(ctx context.Context, m *Manifest) error {
	m.normalize()
	if err := m.Validate(); err != nil {
		return eris.Wrap(err, "refusing to save an invalid manifest")
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return eris.Wrap(err, "failed to serialize manifest")
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmpPath := filepath.Join(dir, "."+filepath.Base(s.path)+"."+nanoid.New()+".tmp")
	if err = os.WriteFile(tmpPath, data, 0o644); err != nil {
		return eris.Wrapf(err, "failed to write %s", tmpPath)
	}

	if err = os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return eris.Wrapf(err, "failed to replace %s", s.path)
	}

	output.Log(ctx).Debug().
		Str("path", s.path).
		Msg("saved manifest")
	return nil
}

// normalize replaces nil slices so that the document always contains arrays instead of null.
func (m *Manifest) normalize() {
	if m.Projects == nil {
		m.Projects = make([]*Project, 0)
	}

	for _, p := range m.Projects {
		if p.Targets == nil {
			p.Targets = make([]*Target, 0)
		}

		for _, t := range p.Targets {
			if t.Dependencies == nil {
				t.Dependencies = make([]Dependency, 0)
			}
		}
	}
}
