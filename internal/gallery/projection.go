package gallery

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"gallery-viewer/internal/metadata"
)

// maxTooltipLine is the width at which a tag line wraps in tooltips.
const maxTooltipLine = 80

// Summary is the list projection of a gallery.
type Summary struct {
	ID                 int64    `json:"id"`
	Kind               string   `json:"kind"`
	Title              string   `json:"title"`
	Rating             float64  `json:"rating"`
	Tooltip            string   `json:"tooltip"`
	Thumbnail          string   `json:"thumbnail,omitempty"`
	Tags               []string `json:"tags"`
	Category           string   `json:"category"`
	URL                string   `json:"url,omitempty"`
	HasCatalogMetadata bool     `json:"hasCatalogMetadata"`
	Location           string   `json:"location"`
	ReadCount          int      `json:"readCount"`
	LastRead           int64    `json:"lastRead,omitempty"`
	TimeAdded          int64    `json:"timeAdded"`
}

// Detail adds the file list and the editable facets to a summary.
type Detail struct {
	Summary
	Files    []string             `json:"files"`
	Metadata []metadata.FacetView `json:"metadata"`
}

// Title is the resolved title, falling back to the gallery name.
func (g *Gallery) Title() string {
	title := g.meta.Title()
	if title == "" {
		title = g.Name()
	}
	return strings.ReplaceAll(title, "_", " ")
}

// SortName is the title normalized for ordering.
func (g *Gallery) SortName() string {
	return metadata.CleanTitle(g.Title(), true)
}

// ThumbnailPath is where the thumbnail lives under thumbDir, empty until one
// was generated.
func (g *Gallery) ThumbnailPath(thumbDir string) string {
	hash := g.ImageHash()
	if hash == "" {
		return ""
	}
	return filepath.Join(thumbDir, hash+".jpg")
}

// Summary builds the list projection.
func (g *Gallery) Summary(thumbDir string) Summary {
	g.stateMu.RLock()
	readCount, lastRead, timeAdded := g.readCount, g.lastRead, g.timeAdded
	g.stateMu.RUnlock()

	return Summary{
		ID:                 g.ID(),
		Kind:               g.kind.String(),
		Title:              g.Title(),
		Rating:             g.meta.Rating(),
		Tooltip:            g.Tooltip(time.Now()),
		Thumbnail:          g.ThumbnailPath(thumbDir),
		Tags:               g.meta.AllTags(),
		Category:           g.meta.Category(),
		URL:                g.meta.URL(metadata.Catalog),
		HasCatalogMetadata: g.meta.URL(metadata.Catalog) != "",
		Location:           g.Location(),
		ReadCount:          readCount,
		LastRead:           lastRead,
		TimeAdded:          timeAdded,
	}
}

// Detail builds the detailed projection. Archive galleries list entry names.
func (g *Gallery) Detail(thumbDir string) (Detail, error) {
	files, err := g.Files()
	if err != nil {
		return Detail{}, err
	}
	return Detail{
		Summary:  g.Summary(thumbDir),
		Files:    files,
		Metadata: g.meta.Views(),
	}, nil
}

// Tooltip describes read history and tags grouped by namespace.
func (g *Gallery) Tooltip(now time.Time) string {
	readCount, lastRead := g.ReadCount(), g.LastRead()

	var b strings.Builder
	plural := "s"
	if readCount == 1 {
		plural = ""
	}
	fmt.Fprintf(&b, "Read %d time%s", readCount, plural)
	if lastRead > 0 {
		fmt.Fprintf(&b, "\nLast read %s", humanize.RelTime(time.Unix(lastRead, 0), now, "ago", "from now"))
	}

	groups := make(map[string][]string)
	for _, tag := range g.meta.AllTags() {
		name, namespace := metadata.SplitTag(tag)
		groups[namespaceLabel(namespace)] = append(groups[namespaceLabel(namespace)], name)
	}
	namespaces := make([]string, 0, len(groups))
	for ns := range groups {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	for _, ns := range namespaces {
		tags := groups[ns]
		sort.Strings(tags)
		fmt.Fprintf(&b, "\n%s: %s", ns, wrapTags(tags))
	}
	return b.String()
}

func namespaceLabel(namespace string) string {
	if namespace == "" {
		return "Misc"
	}
	return cases.Title(language.Und).String(strings.ToLower(namespace))
}

// wrapTags joins tags with commas, breaking lines that grow past
// maxTooltipLine.
func wrapTags(tags []string) string {
	var b strings.Builder
	line := 0
	for i, tag := range tags {
		if i > 0 {
			if line+len(tag) > maxTooltipLine {
				b.WriteString(",\n")
				line = 0
			} else {
				b.WriteString(", ")
			}
		}
		b.WriteString(tag)
		line += len(tag)
	}
	return b.String()
}
