// Package staleness decides whether a target's last successful run still reflects its inputs.
//
// The check is purely mtime based: a target is stale if any file below the project's source or
// asset directory was modified at or after the target's cache marker. Touching a file without
// changing it therefore forces a rebuild.
package staleness

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/coffeebe4code/mono/pkg/manifest"
	"github.com/coffeebe4code/mono/pkg/output"
)

type scanResult struct {
	newest time.Time
	err    error
}

// Oracle answers staleness questions for the projects of one workspace. Scan results are
// memoized, so an Oracle should only live for a single invocation.
type Oracle struct {
	root     string
	srcDir   string
	assetDir string

	lock  sync.Mutex
	scans map[string]scanResult
}

// New returns an oracle for the workspace at root. srcDir and assetDir are relative to each project.
func New(root, srcDir, assetDir string) *Oracle {
	return &Oracle{
		root:     root,
		srcDir:   srcDir,
		assetDir: assetDir,
		scans:    make(map[string]scanResult),
	}
}

// IsStale reports whether target has to run again. found is false if the target has no marker.
// Filesystem errors make the target stale.
func (o *Oracle) IsStale(ctx context.Context, project *manifest.Project, target *manifest.Target, marker time.Time, found bool) bool {
	logger := output.Log(ctx).With().
		Str("project", project.Name).
		Str("target", string(target.Kind)).
		Logger()

	if !found {
		logger.Debug().Msg("no cache marker")
		return true
	}

	newest, err := o.NewestChange(ctx, project)
	if err != nil {
		logger.Warn().Err(err).Msg("could not check sources, assuming stale")
		return true
	}

	if !newest.Before(marker) {
		logger.Debug().
			Time("marker", marker).
			Time("newest", newest).
			Msg("sources changed since the last run")
		return true
	}

	return false
}

// NewestChange returns the newest modification time below the project's source and asset
// directories. A missing asset directory is ignored, a missing source directory is an error.
func (o *Oracle) NewestChange(ctx context.Context, project *manifest.Project) (time.Time, error) {
	o.lock.Lock()
	result, ok := o.scans[project.Path]
	o.lock.Unlock()
	if ok {
		return result.newest, result.err
	}

	base := filepath.Join(o.root, filepath.FromSlash(project.Path))
	var srcNewest, assetNewest time.Time

	var group errgroup.Group
	group.Go(func() error {
		var err error
		srcNewest, err = newestIn(ctx, filepath.Join(base, o.srcDir), false)
		return err
	})
	if o.assetDir != "" {
		group.Go(func() error {
			var err error
			assetNewest, err = newestIn(ctx, filepath.Join(base, o.assetDir), true)
			return err
		})
	}

	result.err = group.Wait()
	if result.err == nil {
		result.newest = srcNewest
		if assetNewest.After(result.newest) {
			result.newest = assetNewest
		}
	}

	o.lock.Lock()
	o.scans[project.Path] = result
	o.lock.Unlock()
	return result.newest, result.err
}

func newestIn(ctx context.Context, dir string, optional bool) (time.Time, error) {
	var newest time.Time

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if err = ctx.Err(); err != nil {
			return err
		}

		if path == dir {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}

		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
		return nil
	})
	if err != nil {
		if optional && eris.Is(err, os.ErrNotExist) {
			if _, statErr := os.Stat(dir); eris.Is(statErr, os.ErrNotExist) {
				return time.Time{}, nil
			}
		}
		return time.Time{}, eris.Wrapf(err, "failed to scan %s", dir)
	}

	return newest, nil
}
