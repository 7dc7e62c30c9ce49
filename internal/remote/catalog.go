package remote

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"gallery-viewer/internal/metadata"
)

const (
	// DefaultCatalogURL is the external catalog site.
	DefaultCatalogURL = "http://exhentai.org"
	// APIBatchSize is how many records one metadata request asks for.
	APIBatchSize = 5
	// APIMaxBatchSize is the most records the API accepts per request.
	APIMaxBatchSize = 25
)

// CatalogClient talks to the external catalog through a gate.
type CatalogClient struct {
	gate    *Gate
	baseURL string
}

// NewCatalogClient creates a client for the catalog at baseURL.
func NewCatalogClient(gate *Gate, baseURL string) *CatalogClient {
	if baseURL == "" {
		baseURL = DefaultCatalogURL
	}
	return &CatalogClient{gate: gate, baseURL: strings.TrimRight(baseURL, "/")}
}

// HashSearch finds catalog pages containing an image with the given SHA-1.
// With coverOnly set only first pages are compared. Returns record URLs in
// result order.
func (c *CatalogClient) HashSearch(ctx context.Context, sha1 string, coverOnly bool) ([]string, error) {
	q := url.Values{}
	q.Set("f_shash", sha1)
	q.Set("fs_similar", "1")
	q.Set("f_sname", "on")
	q.Set("advsearch", "1")
	q.Set("page", "0")
	q.Set("inline_set", "dm_t")
	if coverOnly {
		q.Set("fs_covers", "1")
	} else {
		q.Set("fs_covers", "0")
	}

	resp, err := c.gate.Get(ctx, c.baseURL+"/?"+q.Encode())
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(resp.Body)
	if err != nil {
		return nil, err
	}

	var urls []string
	for _, cell := range findAll(doc, tagWithClass("div", "it5")) {
		if a := findFirst(cell, isTag("a")); a != nil {
			if href := attr(a, "href"); href != "" {
				urls = append(urls, href)
			}
		}
	}
	return urls, nil
}

// apiRequest is the metadata API payload.
type apiRequest struct {
	Method    string          `json:"method"`
	GIDList   [][]interface{} `json:"gidlist"`
	Namespace int             `json:"namespace"`
}

// Metadata fetches catalog records. refs may hold at most APIMaxBatchSize
// entries. Records come back in API order; unknown refs are omitted.
func (c *CatalogClient) Metadata(ctx context.Context, refs []metadata.GalleryRef) ([]metadata.CatalogRecord, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	if len(refs) > APIMaxBatchSize {
		return nil, fmt.Errorf("metadata request for %d records exceeds the limit of %d", len(refs), APIMaxBatchSize)
	}

	payload := apiRequest{Method: "gdata", Namespace: 1}
	for _, r := range refs {
		payload.GIDList = append(payload.GIDList, []interface{}{r.GID, r.Token})
	}
	resp, err := c.gate.Post(ctx, c.baseURL+"/api.php", payload)
	if err != nil {
		return nil, err
	}

	var body struct {
		GMetadata []map[string]interface{} `json:"gmetadata"`
	}
	if err := resp.JSON(&body); err != nil {
		return nil, err
	}
	records := make([]metadata.CatalogRecord, 0, len(body.GMetadata))
	for _, raw := range body.GMetadata {
		if _, failed := raw["error"]; failed {
			continue
		}
		if r := metadata.NewCatalogRecord(raw); r.Valid() {
			records = append(records, r)
		}
	}
	return records, nil
}
