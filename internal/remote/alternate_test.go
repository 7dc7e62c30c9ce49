package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const alternateResults = `<html><body>
<table class="resulttable">
<tr><th>Title</th></tr>
<tr><td><a href="/archive/12/">Sample Title Vol 1</a></td></tr>
<tr><td><a href="/archive/13/">Something Else Entirely</a></td></tr>
</table></body></html>`

const alternateArchive = `<html><body>
<a href="/">home</a>
<a rel="nofollow" href="http://exhentai.org/g/618395/0439fa3666/">http://exhentai.org/g/618395/0439fa3666/</a>
</body></html>`

func alternateServer(t testing.TB) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/archive/12/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(alternateArchive))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		if r.URL.Query().Get("title") == "" {
			w.Write([]byte("<html></html>"))
			return
		}
		w.Write([]byte(alternateResults))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAlternateSearchTitle(t *testing.T) {
	t.Parallel()

	srv := alternateServer(t)
	g, _ := testGate(GateConfig{Retries: 1})
	c := NewAlternateClient(g, srv.URL)

	results, err := c.SearchTitle(context.Background(), "Sample Title")
	if err != nil {
		t.Fatalf("SearchTitle failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %v", results)
	}
	if results[0].URL != srv.URL+"/archive/12/" || results[0].Title != "Sample Title Vol 1" {
		t.Errorf("Unexpected first result %+v", results[0])
	}

	none, err := c.SearchTitle(context.Background(), "")
	if err != nil || len(none) != 0 {
		t.Errorf("Expected no results without a table, got %v %v", none, err)
	}
}

func TestAlternateFindCatalogURL(t *testing.T) {
	t.Parallel()

	srv := alternateServer(t)
	g, _ := testGate(GateConfig{Retries: 1})
	c := NewAlternateClient(g, srv.URL)

	tests := []struct {
		name  string
		found bool
	}{
		{"Sample Title Vol. 1", true},
		{"Completely unrelated words", false},
	}
	for _, tt := range tests {
		u, found, err := c.FindCatalogURL(context.Background(), tt.name, "Sample Title")
		if err != nil {
			t.Fatalf("FindCatalogURL(%q) failed: %v", tt.name, err)
		}
		if found != tt.found {
			t.Errorf("FindCatalogURL(%q): expected found=%v, got %v", tt.name, tt.found, found)
		}
		if found && u != "http://exhentai.org/g/618395/0439fa3666/" {
			t.Errorf("Unexpected url %q", u)
		}
	}
}
