// Package cache records when each target last completed successfully.
//
// A marker is keyed by the target's identity. Its absence means the target never ran, its
// timestamp is compared against the project's source files to decide staleness.
package cache

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Store persists completion markers.
type Store interface {
	// Marker returns the time of the last successful run. ok is false if the target never ran.
	Marker(ctx context.Context, identity string) (at time.Time, ok bool, err error)
	// Mark records a successful run for every identity.
	Mark(ctx context.Context, identities []string, at time.Time) error
	// Invalidate removes the markers of the given identities.
	Invalidate(ctx context.Context, identities []string) error
	Close() error
}

const (
	BackendFiles = "files"
	BackendBolt  = "bolt"
)

// Open returns the store for backend rooted in dir.
func Open(ctx context.Context, backend, dir string) (Store, error) {
	switch backend {
	case BackendFiles, "":
		return NewFileStore(filepath.Join(dir, "targets")), nil
	case BackendBolt:
		return OpenBoltStore(ctx, filepath.Join(dir, "markers.db"))
	default:
		return nil, eris.Errorf("unknown cache backend %q (must be %s or %s)", backend, BackendFiles, BackendBolt)
	}
}

func checkIdentity(identity string) error {
	if identity == "" || identity == "." || identity == ".." || strings.ContainsAny(identity, `/\`) {
		return eris.Errorf("invalid target identity %q", identity)
	}
	return nil
}
