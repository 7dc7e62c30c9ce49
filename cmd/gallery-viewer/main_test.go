package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gallery-viewer/internal/startup"
)

// setupLibrary points the configuration at temporary folders holding the
// given galleries.
func setupLibrary(t *testing.T, galleries map[string]map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, files := range galleries {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
		for file, content := range files {
			if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644); err != nil {
				t.Fatal(err)
			}
		}
	}
	t.Setenv(startup.ConfigPathEnvVar, "")
	t.Setenv("GALLERY_DATA_DIR", t.TempDir())
	t.Setenv("GALLERY_LIBRARY__FOLDERS", root)
	t.Setenv("GALLERY_SCAN__WATCH", "false")
	t.Setenv("GALLERY_LOG__LEVEL", "error")
	return root
}

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScanThenList(t *testing.T) {
	setupLibrary(t, map[string]map[string]string{
		"Alpha": {"1.png": "a"},
		"Beta":  {"1.png": "b", "2.png": "c"},
	})

	out, err := runCLI(t, "", "scan", "--validate")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if !strings.Contains(out, "2 added") {
		t.Errorf("Expected 2 added galleries in %q", out)
	}
	if !strings.Contains(out, "validate: 2 checked") {
		t.Errorf("Expected a validation summary in %q", out)
	}

	out, err = runCLI(t, "", "list", "--order", "desc")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	alpha, beta := strings.Index(out, "Alpha"), strings.Index(out, "Beta")
	if alpha < 0 || beta < 0 || beta > alpha {
		t.Errorf("Expected Beta listed before Alpha in %q", out)
	}
}

func TestListRejectsBadOrder(t *testing.T) {
	setupLibrary(t, nil)

	if _, err := runCLI(t, "", "list", "--order", "sideways"); err == nil {
		t.Error("Expected an error for an unknown order")
	}
}

func TestDedupeDryRun(t *testing.T) {
	files := map[string]string{"1.png": "a", "2.png": "b"}
	setupLibrary(t, map[string]map[string]string{"Original": files, "Copy": files})

	if _, err := runCLI(t, "", "scan"); err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	out, err := runCLI(t, "", "dedupe", "--dry-run")
	if err != nil {
		t.Fatalf("dedupe failed: %v", err)
	}
	if !strings.Contains(out, "1 duplicate groups") {
		t.Errorf("Expected one duplicate group in %q", out)
	}

	out, err = runCLI(t, "", "dedupe")
	if err != nil {
		t.Fatalf("dedupe failed: %v", err)
	}
	if !strings.Contains(out, "1 groups, 1 removed") {
		t.Errorf("Expected one removal in %q", out)
	}
}

func TestMirrorImportFromStdin(t *testing.T) {
	setupLibrary(t, nil)

	const records = `[{"gid": 10, "token": "abc", "title": "Imported", "category": "Manga", "filecount": "3", "filesize": 100}]`
	out, err := runCLI(t, records, "mirror", "import", "-")
	if err != nil {
		t.Skipf("catalog mirror unavailable: %v", err)
	}
	if !strings.Contains(out, "1 records imported") {
		t.Errorf("Expected 1 imported record in %q", out)
	}
}

func TestRenderTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		headers []string
		rows    [][]string
		want    []string
	}{
		{"empty headers", nil, nil, nil},
		{"rows", []string{"ID", "Title"}, [][]string{{"1", "First"}, {"2"}}, []string{"ID", "TITLE", "First"}},
		{"long title", []string{"Title"}, [][]string{{strings.Repeat("x", 100)}}, []string{strings.Repeat("x", maxTitleWidth)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := renderTable(tt.headers, tt.rows, []columnAlignment{alignRight})
			if tt.want == nil && got != "" {
				t.Errorf("Expected empty output, got %q", got)
			}
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("Expected %q in %q", w, got)
				}
			}
			if tt.name == "long title" && strings.Contains(got, strings.Repeat("x", maxTitleWidth+1)) {
				t.Errorf("Expected the title to be truncated, got %q", got)
			}
		})
	}
}
