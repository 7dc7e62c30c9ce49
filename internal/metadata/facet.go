package metadata

import (
	"fmt"
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// FacetName is the persisted name of a facet.
type FacetName string

const (
	// Custom holds user edits.
	Custom FacetName = "cmetadata"
	// Catalog holds the external catalog record.
	Catalog FacetName = "gmetadata"
	// Alternate holds the alternate catalog record.
	Alternate FacetName = "chaikametadata"
)

// Priority is the resolution order for values present in several facets.
var Priority = []FacetName{Custom, Catalog, Alternate}

// autoKey marks whether automatic collection is allowed for a catalog facet.
const autoKey = "auto"

const (
	catalogURLFormat   = "http://exhentai.org/g/%d/%s/"
	alternateURLFormat = "http://panda.chaika.moe/archive/%d/"
)

var (
	catalogURLPattern   = regexp.MustCompile(`^(?:https?://)?(?:www\.)?(?:exhentai|e-hentai)\.org/g/(\d+)/(\w+)/?$`)
	alternateURLPattern = regexp.MustCompile(`^(?:https?://)?panda\.chaika\.moe/archive/(\d+)/?$`)
)

// ParseFacetName validates a facet name.
func ParseFacetName(s string) (FacetName, bool) {
	for _, name := range Priority {
		if string(name) == s {
			return name, true
		}
	}
	return "", false
}

// IsCatalog reports whether the facet is fetched from a remote catalog.
func (n FacetName) IsCatalog() bool {
	return n == Catalog || n == Alternate
}

// Label is the human-readable facet name.
func (n FacetName) Label() string {
	switch n {
	case Custom:
		return "Custom Metadata"
	case Catalog:
		return "ExHentai Metadata"
	case Alternate:
		return "Chaika Metadata"
	}
	return string(n)
}

// GalleryRef identifies a record in the external catalog.
type GalleryRef struct {
	GID   int64
	Token string
}

// URL returns the catalog page of the record.
func (r GalleryRef) URL() string {
	return fmt.Sprintf(catalogURLFormat, r.GID, r.Token)
}

// ParseCatalogURL extracts gid and token from a catalog gallery URL.
func ParseCatalogURL(url string) (GalleryRef, bool) {
	m := catalogURLPattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return GalleryRef{}, false
	}
	gid, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return GalleryRef{}, false
	}
	return GalleryRef{GID: gid, Token: m[2]}, true
}

// ParseAlternateURL extracts the archive id from an alternate catalog URL.
func ParseAlternateURL(url string) (int64, bool) {
	m := alternateURLPattern.FindStringSubmatch(strings.TrimSpace(url))
	if m == nil {
		return 0, false
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	return id, err == nil
}

// Facet is one named metadata blob of a gallery.
type Facet struct {
	name   FacetName
	id     int64
	values map[string]interface{}
}

func newFacet(name FacetName) *Facet {
	return &Facet{name: name, values: make(map[string]interface{})}
}

// decodeFacet parses a stored blob.
func decodeFacet(name FacetName, id int64, blob string) (*Facet, error) {
	f := newFacet(name)
	f.id = id
	if strings.TrimSpace(blob) == "" {
		return f, nil
	}
	if err := json.Unmarshal([]byte(blob), &f.values); err != nil {
		return nil, fmt.Errorf("failed to decode %s facet %d: %w", name, id, err)
	}
	if f.values == nil {
		f.values = make(map[string]interface{})
	}
	return f, nil
}

func (f *Facet) encode() (string, error) {
	data, err := json.Marshal(f.values)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s facet: %w", f.name, err)
	}
	return string(data), nil
}

// Name returns the facet name.
func (f *Facet) Name() FacetName {
	return f.name
}

// ID returns the store id, zero until first saved.
func (f *Facet) ID() int64 {
	return f.id
}

// Get returns a raw value.
func (f *Facet) Get(key string) (interface{}, bool) {
	v, ok := f.values[key]
	return v, ok
}

// Values returns a shallow copy of the blob.
func (f *Facet) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// Update merges values into the facet after unescaping HTML entities.
func (f *Facet) Update(values map[string]interface{}) {
	for k, v := range values {
		f.values[k] = clean(v)
	}
}

// Set stores one value; nil removes the key.
func (f *Facet) Set(key string, value interface{}) {
	if value == nil {
		delete(f.values, key)
		return
	}
	f.values[key] = clean(value)
}

// HasMetadata reports whether the facet carries any data besides the
// auto-collection flag.
func (f *Facet) HasMetadata() bool {
	for k := range f.values {
		if k != autoKey {
			return true
		}
	}
	return false
}

// Title returns the stored title with underscores shown as spaces.
func (f *Facet) Title() string {
	return strings.ReplaceAll(toString(f.values["title"]), "_", " ")
}

// Rating returns the stored rating, zero when absent or unparsable.
func (f *Facet) Rating() float64 {
	return toFloat(f.values["rating"])
}

// Category returns the stored category.
func (f *Facet) Category() string {
	return toString(f.values["category"])
}

// Tags returns the stored tags.
func (f *Facet) Tags() []string {
	return toStrings(f.values["tags"])
}

// FileCount returns the catalog page count, zero when unknown.
func (f *Facet) FileCount() int {
	return int(toInt(f.values["filecount"]))
}

// AutoCollection reports whether automatic collection may overwrite this
// facet. Custom facets always report true.
func (f *Facet) AutoCollection() bool {
	if !f.name.IsCatalog() {
		return true
	}
	v, ok := f.values[autoKey].(bool)
	return !ok || v
}

// SetAutoCollection stores the auto-collection flag on catalog facets.
func (f *Facet) SetAutoCollection(enabled bool) {
	if f.name.IsCatalog() {
		f.values[autoKey] = enabled
	}
}

// Ref returns the external catalog record of a Catalog facet.
func (f *Facet) Ref() (GalleryRef, bool) {
	if f.name != Catalog {
		return GalleryRef{}, false
	}
	gid := toInt(f.values["gid"])
	token := toString(f.values["token"])
	if gid == 0 || token == "" {
		return GalleryRef{}, false
	}
	return GalleryRef{GID: gid, Token: token}, true
}

// AlternateID returns the archive id of an Alternate facet.
func (f *Facet) AlternateID() (int64, bool) {
	if f.name != Alternate {
		return 0, false
	}
	id := toInt(f.values["id"])
	return id, id != 0
}

// URL returns the catalog page of the facet, empty for custom facets or
// facets without a record id.
func (f *Facet) URL() string {
	if ref, ok := f.Ref(); ok {
		return ref.URL()
	}
	if id, ok := f.AlternateID(); ok {
		return fmt.Sprintf(alternateURLFormat, id)
	}
	return ""
}

// SetURL points a catalog facet at a record. An empty url clears the record.
func (f *Facet) SetURL(url string) error {
	url = strings.TrimSpace(url)
	switch f.name {
	case Catalog:
		if url == "" {
			delete(f.values, "gid")
			delete(f.values, "token")
			return nil
		}
		ref, ok := ParseCatalogURL(url)
		if !ok {
			return fmt.Errorf("invalid catalog url %q", url)
		}
		f.values["gid"] = ref.GID
		f.values["token"] = ref.Token
		return nil
	case Alternate:
		if url == "" {
			delete(f.values, "id")
			return nil
		}
		id, ok := ParseAlternateURL(url)
		if !ok {
			return fmt.Errorf("invalid alternate catalog url %q", url)
		}
		f.values["id"] = id
		return nil
	}
	return fmt.Errorf("%s facet has no url", f.name)
}

// clean unescapes HTML entities in strings, recursively.
func clean(v interface{}) interface{} {
	switch t := v.(type) {
	case string:
		return html.UnescapeString(t)
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = clean(e)
		}
		return out
	case []string:
		out := make([]interface{}, len(t))
		for i, e := range t {
			out[i] = html.UnescapeString(e)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, e := range t {
			out[k] = clean(e)
		}
		return out
	}
	return v
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func toFloat(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func toInt(v interface{}) int64 {
	switch t := v.(type) {
	case float64:
		return int64(t)
	case int:
		return int64(t)
	case int64:
		return t
	case json.Number:
		i, _ := t.Int64()
		return i
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		if err != nil {
			return 0
		}
		return i
	}
	return 0
}

func toStrings(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s := toString(e); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
