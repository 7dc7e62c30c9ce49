package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"gallery-viewer/internal/metadata"
)

const hashResults = `<html><body><table class="itg">
<tr><td><div class="it5"><a href="http://exhentai.org/g/1/aaa/">First</a></div></td></tr>
<tr><td><div class="it5 extra"><a href="http://exhentai.org/g/2/bbb/">Second</a></div></td></tr>
<tr><td><div class="it4"><a href="http://exhentai.org/g/3/ccc/">Not a result</a></div></td></tr>
</table></body></html>`

func TestHashSearch(t *testing.T) {
	t.Parallel()

	var covers string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("f_shash") != "deadbeef" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		covers = r.URL.Query().Get("fs_covers")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(hashResults))
	}))
	defer srv.Close()

	g, _ := testGate(GateConfig{Retries: 1})
	c := NewCatalogClient(g, srv.URL+"/")

	urls, err := c.HashSearch(context.Background(), "deadbeef", true)
	if err != nil {
		t.Fatalf("HashSearch failed: %v", err)
	}
	want := []string{"http://exhentai.org/g/1/aaa/", "http://exhentai.org/g/2/bbb/"}
	if len(urls) != len(want) || urls[0] != want[0] || urls[1] != want[1] {
		t.Errorf("Expected %v, got %v", want, urls)
	}
	if covers != "1" {
		t.Errorf("Expected cover-only search, got fs_covers=%q", covers)
	}

	if _, err := c.HashSearch(context.Background(), "deadbeef", false); err != nil {
		t.Fatal(err)
	}
	if covers != "0" {
		t.Errorf("Expected all-pages search, got fs_covers=%q", covers)
	}
}

func TestMetadata(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api.php" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req struct {
			Method    string          `json:"method"`
			GIDList   [][]interface{} `json:"gidlist"`
			Namespace int             `json:"namespace"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Method != "gdata" || req.Namespace != 1 || len(req.GIDList) != 2 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"gmetadata": [
			{"gid": 1, "token": "aaa", "title": "One", "filecount": "10", "filesize": 1000, "rating": "4.5", "tags": ["a"]},
			{"gid": 2, "error": "Key missing, or incorrect key provided."}
		]}`))
	}))
	defer srv.Close()

	g, _ := testGate(GateConfig{Retries: 1})
	c := NewCatalogClient(g, srv.URL)
	records, err := c.Metadata(context.Background(), []metadata.GalleryRef{{GID: 1, Token: "aaa"}, {GID: 2, Token: "bbb"}})
	if err != nil {
		t.Fatalf("Metadata failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	if r := records[0]; r.Title != "One" || r.FileCount != 10 || r.Rating != 4.5 {
		t.Errorf("Unexpected record %+v", r)
	}
}

func TestMetadataLimits(t *testing.T) {
	t.Parallel()

	c := NewCatalogClient(nil, "")
	records, err := c.Metadata(context.Background(), nil)
	if err != nil || records != nil {
		t.Errorf("Expected empty request to be a no-op, got %v %v", records, err)
	}
	if _, err := c.Metadata(context.Background(), make([]metadata.GalleryRef, APIMaxBatchSize+1)); err == nil {
		t.Error("Expected oversized batch to be rejected")
	}
}
