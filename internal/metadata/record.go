package metadata

// CatalogRecord is one entry of the external catalog as returned by its
// metadata API. Numeric fields arrive as strings or numbers depending on the
// endpoint; both are accepted.
type CatalogRecord struct {
	GID       int64
	Token     string
	Title     string
	TitleJpn  string
	Category  string
	FileCount int
	FileSize  int64
	Rating    float64
	Posted    int64
	Tags      []string
	Raw       map[string]interface{}
}

// NewCatalogRecord reads a decoded API entry.
func NewCatalogRecord(raw map[string]interface{}) CatalogRecord {
	return CatalogRecord{
		GID:       toInt(raw["gid"]),
		Token:     toString(raw["token"]),
		Title:     toString(raw["title"]),
		TitleJpn:  toString(raw["title_jpn"]),
		Category:  toString(raw["category"]),
		FileCount: int(toInt(raw["filecount"])),
		FileSize:  toInt(raw["filesize"]),
		Rating:    toFloat(raw["rating"]),
		Posted:    toInt(raw["posted"]),
		Tags:      toStrings(raw["tags"]),
		Raw:       raw,
	}
}

// Ref returns the catalog record id.
func (r CatalogRecord) Ref() GalleryRef {
	return GalleryRef{GID: r.GID, Token: r.Token}
}

// Valid reports whether the record carries an id.
func (r CatalogRecord) Valid() bool {
	return r.GID != 0 && r.Token != ""
}

// Values is the facet blob for the record. The raw entry is kept as is so
// fields this package does not model survive a save.
func (r CatalogRecord) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Raw)+2)
	for k, v := range r.Raw {
		out[k] = v
	}
	out["gid"] = r.GID
	out["token"] = r.Token
	return out
}
