package dedupe

import (
	"context"
	"fmt"
	"sort"

	"gallery-viewer/internal/filesystem"
	"gallery-viewer/internal/gallery"
	"gallery-viewer/internal/library"
	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/metrics"
	"gallery-viewer/internal/workers"
)

// Member is what the elimination policy looks at.
type Member interface {
	ID() int64
	Location() string
	HasCatalogMetadata() bool
	HasCustomMetadata() bool
	IsArchive() bool
}

// pass is one elimination predicate.
type pass struct {
	name string
	keep func(Member) bool
}

var passes = []pass{
	{"catalog metadata", Member.HasCatalogMetadata},
	{"custom metadata", Member.HasCustomMetadata},
	{"archive", Member.IsArchive},
}

// Select picks the survivor of a duplicate group and returns the members to
// drop. Ties are broken by id, then location.
func Select[M Member](group []M) (keep M, drop []M) {
	remaining := append([]M(nil), group...)
	sort.SliceStable(remaining, func(i, j int) bool {
		if remaining[i].ID() != remaining[j].ID() {
			return remaining[i].ID() < remaining[j].ID()
		}
		return remaining[i].Location() < remaining[j].Location()
	})
	if len(remaining) == 0 {
		return keep, nil
	}

	for _, p := range passes {
		var kept, failed []M
		for _, m := range remaining {
			if p.keep(m) {
				kept = append(kept, m)
			} else {
				failed = append(failed, m)
			}
		}
		if len(kept) == 0 {
			continue
		}
		if len(failed) > 0 {
			logging.Debug("Duplicate pass %q dropped %d of %d", p.name, len(failed), len(remaining))
		}
		drop = append(drop, failed...)
		remaining = kept
	}
	return remaining[0], append(drop, remaining[1:]...)
}

// Report summarizes one resolution run.
type Report struct {
	Groups  int     `json:"groups"`
	Removed []int64 `json:"removed"`
	Skipped int     `json:"skipped"`
	Failed  int     `json:"failed"`
}

// Resolver finds and removes duplicate galleries.
type Resolver struct {
	lib     *library.Library
	remover library.Remover
	workers int
}

// New creates a resolver deleting content through remover. workers sizes
// the identity pool; 0 sizes it for I/O.
func New(lib *library.Library, remover library.Remover, workers int) *Resolver {
	return &Resolver{lib: lib, remover: remover, workers: workers}
}

type keyed struct {
	g        *gallery.Gallery
	identity string
}

// Groups computes identities of all live galleries and returns the groups
// with more than one member, ordered by identity.
func (r *Resolver) Groups(ctx context.Context) ([][]*gallery.Gallery, int) {
	n := r.workers
	if n <= 0 {
		n = workers.ForIO(8)
	}
	results, errs := workers.Run(ctx, "dedupe", n, r.lib.All(),
		func(ctx context.Context, g *gallery.Gallery) (keyed, error) {
			identity, err := g.ComputeIdentity()
			if err != nil {
				return keyed{}, fmt.Errorf("%s: %w", g, err)
			}
			return keyed{g: g, identity: identity}, nil
		})
	for _, err := range errs {
		logging.Warn("Skipping gallery in duplicate search: %v", err)
	}

	byIdentity := make(map[string][]*gallery.Gallery)
	for _, k := range results {
		byIdentity[k.identity] = append(byIdentity[k.identity], k.g)
	}
	keys := make([]string, 0, len(byIdentity))
	for identity, members := range byIdentity {
		if len(members) > 1 {
			keys = append(keys, identity)
		}
	}
	sort.Strings(keys)

	groups := make([][]*gallery.Gallery, 0, len(keys))
	for _, identity := range keys {
		groups = append(groups, byIdentity[identity])
	}
	return groups, len(errs)
}

// Resolve removes all but one member of every duplicate group.
func (r *Resolver) Resolve(ctx context.Context) (Report, error) {
	groups, failed := r.Groups(ctx)
	report := Report{Groups: len(groups), Failed: failed}
	if err := ctx.Err(); err != nil {
		return report, err
	}

	var drop []int64
	for _, group := range groups {
		if err := distinctPaths(group); err != nil {
			logging.Error("Skipping duplicate group: %v", err)
			report.Skipped++
			continue
		}
		keep, losers := Select(group)
		for _, g := range losers {
			drop = append(drop, g.ID())
		}
		logging.Info("Keeping %s, removing %d duplicates", keep, len(losers))
	}
	metrics.DuplicateGroupsTotal.Add(float64(len(groups)))

	removed, err := r.lib.Delete(ctx, r.remover, drop...)
	report.Removed = removed
	metrics.DuplicatesRemovedTotal.Add(float64(len(removed)))
	if len(removed) > 0 {
		r.lib.Events().Publish(library.EventDuplicatesRemoved, removed...)
	}
	if err != nil {
		return report, fmt.Errorf("failed to delete duplicates: %w", err)
	}
	return report, nil
}

// distinctPaths asserts that a group never holds one location twice.
func distinctPaths(group []*gallery.Gallery) error {
	seen := make(map[string]bool, len(group))
	for _, g := range group {
		p := filesystem.NormalizePath(g.Location())
		if seen[p] {
			return fmt.Errorf("%w: %s appears twice in one group", gallery.ErrAssertion, p)
		}
		seen[p] = true
	}
	return nil
}
