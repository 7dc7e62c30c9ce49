package remote

import (
	"context"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"gallery-viewer/internal/metadata"
)

const (
	// DefaultAlternateURL is the alternate catalog site.
	DefaultAlternateURL = "http://panda.chaika.moe"
	// MinTitleSimilarity is the lowest title ratio accepted as a match.
	MinTitleSimilarity = 0.6
)

// AlternateResult is one title search hit.
type AlternateResult struct {
	URL   string
	Title string
}

// AlternateClient searches the alternate catalog, which links its archives
// back to external catalog records.
type AlternateClient struct {
	gate    *Gate
	baseURL string
}

// NewAlternateClient creates a client for the alternate catalog at baseURL.
func NewAlternateClient(gate *Gate, baseURL string) *AlternateClient {
	if baseURL == "" {
		baseURL = DefaultAlternateURL
	}
	return &AlternateClient{gate: gate, baseURL: strings.TrimRight(baseURL, "/")}
}

// SearchTitle returns the archives listed for a title query.
func (c *AlternateClient) SearchTitle(ctx context.Context, title string) ([]AlternateResult, error) {
	q := url.Values{}
	q.Set("title", title)
	q.Set("sort", "posted")
	q.Set("asc_desc", "desc")
	q.Set("apply", "Apply")

	resp, err := c.gate.Get(ctx, c.baseURL+"/?"+q.Encode())
	if err != nil {
		return nil, err
	}
	doc, err := parseHTML(resp.Body)
	if err != nil {
		return nil, err
	}

	table := findFirst(doc, tagWithClass("table", "resulttable"))
	if table == nil {
		return nil, nil
	}
	var results []AlternateResult
	for _, row := range findAll(table, isTag("tr")) {
		a := findFirst(row, isTag("a"))
		if a == nil {
			continue
		}
		results = append(results, AlternateResult{
			URL:   c.absolute(attr(a, "href")),
			Title: text(a),
		})
	}
	return results, nil
}

// CatalogURL reads the external catalog link from an archive page.
func (c *AlternateClient) CatalogURL(ctx context.Context, pageURL string) (string, bool, error) {
	resp, err := c.gate.Get(ctx, pageURL)
	if err != nil {
		return "", false, err
	}
	doc, err := parseHTML(resp.Body)
	if err != nil {
		return "", false, err
	}
	link := findFirst(doc, func(n *html.Node) bool {
		return n.Data == "a" && attr(n, "rel") == "nofollow"
	})
	if link == nil {
		return "", false, nil
	}
	u := text(link)
	return u, u != "", nil
}

// FindCatalogURL searches by title and follows the first result whose
// title is similar enough to name.
func (c *AlternateClient) FindCatalogURL(ctx context.Context, name, title string) (string, bool, error) {
	results, err := c.SearchTitle(ctx, title)
	if err != nil {
		return "", false, err
	}
	for _, r := range results {
		if metadata.Similarity(name, r.Title) >= MinTitleSimilarity {
			return c.CatalogURL(ctx, r.URL)
		}
	}
	return "", false, nil
}

func (c *AlternateClient) absolute(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	return c.baseURL + "/" + strings.TrimLeft(href, "/")
}
