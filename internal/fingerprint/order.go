package fingerprint

import (
	"path"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// fillerNames are lower-case basenames (without extension) of scanlation
// credit pages and banners that are not part of the gallery content.
var fillerNames = map[string]bool{
	"hentairulesbanner": true,
	"credits":           true,
	"recruit":           true,
	"zcredits":          true,
	"kameden":           true,
	"!credits":          true,
}

// IsFiller reports whether name is a known non-content file.
// Archive member names with forward slashes are accepted.
func IsFiller(name string) bool {
	base := path.Base(filepath.ToSlash(name))
	stem := strings.TrimSuffix(base, path.Ext(base))
	return fillerNames[strings.ToLower(stem)]
}

// FilterFiller returns names without filler files, preserving order.
func FilterFiller(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		if !IsFiller(name) {
			out = append(out, name)
		}
	}
	return out
}

// NaturalSort orders names in place so that "page2" sorts before "page10".
func NaturalSort(names []string) {
	// Collators keep internal buffers and are not safe for concurrent use.
	c := collate.New(language.Und, collate.Numeric, collate.IgnoreCase)
	sort.SliceStable(names, func(i, j int) bool {
		if cmp := c.CompareString(names[i], names[j]); cmp != 0 {
			return cmp < 0
		}
		return names[i] < names[j]
	})
}

// Ordered returns a naturally sorted copy of names with filler files removed.
func Ordered(names []string) []string {
	out := FilterFiller(names)
	NaturalSort(out)
	return out
}
