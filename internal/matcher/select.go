package matcher

import (
	"math"

	"gallery-viewer/internal/metadata"
)

const (
	// minSimilarity is the lowest title ratio a candidate needs.
	minSimilarity        = 0.6
	folderSizeTolerance  = 0.10
	archiveSizeTolerance = 0.15
	countTolerance       = 0.10
)

// Target is what a gallery offers for matching.
type Target struct {
	Name      string
	Size      int64
	FileCount int
	Archive   bool
}

// SelectMatch narrows catalog candidates down to one. Candidates need a
// title similar to the target name; then the first of these filters that
// leaves exactly one candidate decides: exact size, size within tolerance,
// exact file count, file count within tolerance, and both tolerances at
// once. ok is false when none does.
func SelectMatch(t Target, candidates []metadata.CatalogRecord) (metadata.CatalogRecord, bool) {
	var similar []metadata.CatalogRecord
	for _, c := range candidates {
		if metadata.Similarity(t.Name, c.Title) >= minSimilarity {
			similar = append(similar, c)
		}
	}
	if len(similar) == 0 {
		return metadata.CatalogRecord{}, false
	}

	tolerance := folderSizeTolerance
	if t.Archive {
		tolerance = archiveSizeTolerance
	}
	minSize := int64(math.Floor(float64(t.Size) * (1 - tolerance)))
	maxSize := int64(math.Floor(float64(t.Size) * (1 + tolerance)))
	minCount := int(math.Floor(float64(t.FileCount) * (1 - countTolerance)))
	maxCount := int(math.Floor(float64(t.FileCount) * (1 + countTolerance)))

	exactSize := filter(similar, func(c metadata.CatalogRecord) bool { return c.FileSize == t.Size })
	roughSize := filter(similar, func(c metadata.CatalogRecord) bool {
		return c.FileSize >= minSize && c.FileSize <= maxSize
	})
	exactCount := filter(similar, func(c metadata.CatalogRecord) bool { return c.FileCount == t.FileCount })
	roughCount := filter(similar, func(c metadata.CatalogRecord) bool {
		return c.FileCount >= minCount && c.FileCount <= maxCount
	})
	both := filter(roughSize, func(c metadata.CatalogRecord) bool {
		return c.FileCount >= minCount && c.FileCount <= maxCount
	})

	for _, set := range [][]metadata.CatalogRecord{exactSize, roughSize, exactCount, roughCount, both} {
		if len(set) == 1 {
			return set[0], true
		}
	}
	return metadata.CatalogRecord{}, false
}

func filter(in []metadata.CatalogRecord, keep func(metadata.CatalogRecord) bool) []metadata.CatalogRecord {
	var out []metadata.CatalogRecord
	for _, c := range in {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}
