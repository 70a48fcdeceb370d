package cache

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
)

// FileStore keeps one empty file per identity. Only the file's modification time matters.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) Marker(ctx context.Context, identity string) (time.Time, bool, error) {
	if err := checkIdentity(identity); err != nil {
		return time.Time{}, false, err
	}

	info, err := os.Stat(filepath.Join(s.dir, identity))
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, eris.Wrapf(err, "failed to check marker %s", identity)
	}

	return info.ModTime(), true, nil
}

func (s *FileStore) Mark(ctx context.Context, identities []string, at time.Time) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return eris.Wrapf(err, "failed to create %s", s.dir)
	}

	for _, identity := range identities {
		if err := checkIdentity(identity); err != nil {
			return err
		}

		path := filepath.Join(s.dir, identity)
		handle, err := os.Create(path)
		if err != nil {
			return eris.Wrapf(err, "failed to write marker %s", identity)
		}
		handle.Close()

		if err = os.Chtimes(path, at, at); err != nil {
			return eris.Wrapf(err, "failed to update marker %s", identity)
		}
	}

	return nil
}

func (s *FileStore) Invalidate(ctx context.Context, identities []string) error {
	for _, identity := range identities {
		if err := checkIdentity(identity); err != nil {
			return err
		}

		err := os.Remove(filepath.Join(s.dir, identity))
		if err != nil && !eris.Is(err, os.ErrNotExist) {
			return eris.Wrapf(err, "failed to remove marker %s", identity)
		}
	}

	return nil
}

func (s *FileStore) Close() error {
	return nil
}
