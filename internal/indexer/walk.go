package indexer

import (
	"context"
	"io/fs"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"gallery-viewer/internal/filesystem"
	"gallery-viewer/internal/fingerprint"
	"gallery-viewer/internal/gallery"
	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/mediatypes"
)

// defaultWalkWorkers bounds how many roots are walked at once. Kept low so
// network mounts are not flooded with directory reads.
const defaultWalkWorkers = 3

// found is a gallery location discovered by a walk.
type found struct {
	kind gallery.Kind
	path string
}

// discover walks roots concurrently and returns what it found, root by
// root in the order given.
func discover(ctx context.Context, roots []string, workers int) ([]found, error) {
	if workers < 1 {
		workers = defaultWalkWorkers
	}
	perRoot := make([][]found, len(roots))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, root := range roots {
		g.Go(func() error {
			var err error
			perRoot[i], err = walkRoot(ctx, root)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []found
	for _, f := range perRoot {
		out = append(out, f...)
	}
	return out, nil
}

// walkRoot classifies every directory below root that directly holds image
// files as a folder gallery and every archive file as an archive gallery.
// Hidden entries are skipped. Unreadable directories are logged and skipped.
func walkRoot(ctx context.Context, root string) ([]found, error) {
	var out []found
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			logging.Warn("Error accessing path %s: %v", path, err)
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if path != root && filesystem.IsHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if holdsImages(path) {
				out = append(out, found{kind: gallery.KindFolder, path: path})
			}
			return nil
		}
		if kind, ok := gallery.ArchiveKind(d.Name()); ok {
			out = append(out, found{kind: kind, path: path})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// holdsImages reports whether dir directly contains a content image.
func holdsImages(dir string) bool {
	entries, err := filesystem.ReadDirWithRetry(dir, filesystem.DefaultRetryConfig())
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.IsDir() || filesystem.IsHidden(e.Name()) {
			continue
		}
		if mediatypes.IsImage(e.Name()) && !fingerprint.IsFiller(e.Name()) {
			return true
		}
	}
	return false
}
