package app

import (
	"path/filepath"
	"slices"
	"strings"

	"gallery-viewer/internal/filesystem"
	"gallery-viewer/internal/gallery"
	"gallery-viewer/internal/library"
	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/mediatypes"
)

// handleChanges applies one debounced batch of filesystem changes. A removed
// gallery location marks the gallery gone unless the batch shows where it
// was renamed to; any change inside a gallery drops its file list and queues
// it for reconciliation; new directories and archives are scanned.
func (a *App) handleChanges(changes []filesystem.Change) {
	var scan []string
	var renamed []*gallery.Gallery
	queued := make(map[int64]*gallery.Gallery)
	gone := make(map[int64]*gallery.Gallery)

	for _, c := range changes {
		path := filesystem.NormalizePath(c.Path)
		if g, ok := a.lib.ByPath(path); ok && (c.Op == filesystem.OpRemove || c.Op == filesystem.OpRename) {
			if c.Op == filesystem.OpRename {
				renamed = append(renamed, g)
			}
			gone[g.ID()] = g
			delete(queued, g.ID())
			continue
		}

		if g, ok := a.lib.Owner(path); ok {
			if _, away := gone[g.ID()]; away {
				continue
			}
			g.InvalidateFiles()
			queued[g.ID()] = g
			continue
		}

		if c.Op != filesystem.OpCreate {
			continue
		}
		switch {
		case mediatypes.IsImage(path):
			// first image of a directory that is not a gallery yet
			scan = append(scan, filepath.Dir(path))
		case mediatypes.IsArchive(path):
			scan = append(scan, path)
		default:
			if info, err := filesystem.StatWithRetry(path, filesystem.DefaultRetryConfig()); err == nil && info.IsDir() {
				scan = append(scan, path)
			}
		}
	}

	if g, target, ok := renameTarget(renamed, scan); ok {
		if err := a.relocate(g, target); err != nil {
			logging.Warn("Failed to follow %s to %s: %v", g, target, err)
		} else {
			delete(gone, g.ID())
			queued[g.ID()] = g
			scan = slices.DeleteFunc(scan, func(p string) bool { return p == target })
		}
	}

	if len(gone) > 0 {
		ids := make([]int64, 0, len(gone))
		for id, g := range gone {
			if err := g.MarkGone(a.ctx); err != nil {
				logging.Error("Failed to mark %s gone: %v", g, err)
			}
			ids = append(ids, id)
		}
		a.lib.Remove(ids...)
	}
	if len(queued) > 0 {
		batch := make([]*gallery.Gallery, 0, len(queued))
		for _, g := range queued {
			batch = append(batch, g)
		}
		a.reconcile.Submit(batch...)
	}
	if len(scan) > 0 {
		logging.Debug("Watcher queued a scan of %d paths", len(scan))
		a.idx.Submit(scan...)
	}
}

// renameTarget pairs the one gallery renamed away in a batch with the one
// new path of the same kind that appeared with it.
func renameTarget(renamed []*gallery.Gallery, created []string) (*gallery.Gallery, string, bool) {
	if len(renamed) != 1 {
		return nil, "", false
	}
	g := renamed[0]
	ext := strings.ToLower(filepath.Ext(g.Location()))

	var target string
	for _, p := range created {
		if g.IsArchive() != mediatypes.IsArchive(p) {
			continue
		}
		if g.IsArchive() && strings.ToLower(filepath.Ext(p)) != ext {
			continue
		}
		if target != "" && target != p {
			return nil, "", false
		}
		target = p
	}
	return g, target, target != ""
}

// relocate points a gallery at its new location and stores it.
func (a *App) relocate(g *gallery.Gallery, target string) error {
	from := g.Location()
	if err := a.lib.Relocate(g.ID(), target); err != nil {
		return err
	}
	if err := g.Save(a.ctx); err != nil {
		return err
	}
	logging.Info("%s moved from %s", g, from)
	a.lib.Events().Publish(library.EventGalleriesUpdated, g.ID())
	return nil
}
