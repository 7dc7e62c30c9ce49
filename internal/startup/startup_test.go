package startup

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
)

func TestGetBuildInfo(t *testing.T) {
	t.Parallel()

	info := GetBuildInfo()
	if info.Version == "" {
		t.Error("Expected Version to be set")
	}
	if info.OS == "" || info.Arch == "" {
		t.Error("Expected OS and Arch to be set")
	}
	if info.GoVersion != GoVersion {
		t.Errorf("Expected GoVersion=%s, got %s", GoVersion, info.GoVersion)
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("GALLERY_DATA_DIR", t.TempDir())

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.DeleteMode != "trash" {
		t.Errorf("Expected delete mode trash, got %s", cfg.DeleteMode)
	}
	if cfg.Scan.ValidationDelay != 5*time.Second {
		t.Errorf("Expected 5s validation delay, got %v", cfg.Scan.ValidationDelay)
	}
	if cfg.Thumbnails.Width != 200 || cfg.Thumbnails.Height != 280 {
		t.Errorf("Expected 200x280 thumbnails, got %dx%d", cfg.Thumbnails.Width, cfg.Thumbnails.Height)
	}
	if cfg.Remote.Enabled() {
		t.Error("Expected remote search to be disabled without credentials")
	}
	if cfg.DatabasePath != filepath.Join(cfg.DataDir, "galleries.db") {
		t.Errorf("Unexpected database path %s", cfg.DatabasePath)
	}
	if !filepath.IsAbs(cfg.ThumbnailDir) {
		t.Errorf("Expected absolute thumbnail dir, got %s", cfg.ThumbnailDir)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gallery.yaml")
	yaml := `
data_dir: ` + filepath.Join(dir, "data") + `
delete_mode: remove
library:
  folders:
    - path: /srv/manga
      auto_metadata: false
    - path: /srv/doujin
      auto_metadata: true
scan:
  validation_delay: 2s
  workers: 2
remote:
  member_id: "123"
  pass_hash: abc
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GALLERY_HTTP__ADDR", "0.0.0.0:9000")
	t.Setenv("GALLERY_SCAN__WORKERS", "4")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.DeleteMode != "remove" {
		t.Errorf("Expected delete mode remove, got %s", cfg.DeleteMode)
	}
	if len(cfg.Library.Folders) != 2 {
		t.Fatalf("Expected 2 folders, got %d", len(cfg.Library.Folders))
	}
	if cfg.Library.Folders[0].Path != "/srv/manga" || cfg.Library.Folders[0].AutoMetadata {
		t.Errorf("Unexpected first folder %+v", cfg.Library.Folders[0])
	}
	if !cfg.Library.Folders[1].AutoMetadata {
		t.Errorf("Expected auto metadata on second folder")
	}
	if cfg.Scan.ValidationDelay != 2*time.Second {
		t.Errorf("Expected 2s validation delay, got %v", cfg.Scan.ValidationDelay)
	}
	if cfg.Scan.Workers != 4 {
		t.Errorf("Expected env to override workers to 4, got %d", cfg.Scan.Workers)
	}
	if cfg.HTTP.Addr != "0.0.0.0:9000" {
		t.Errorf("Expected env address, got %s", cfg.HTTP.Addr)
	}
	if !cfg.Remote.Enabled() {
		t.Error("Expected remote search to be enabled")
	}
	if cfg.Remote.Retries != 3 {
		t.Errorf("Expected default retries to survive, got %d", cfg.Remote.Retries)
	}
}

func TestLoadConfigFolderList(t *testing.T) {
	t.Setenv(ConfigPathEnvVar, "")
	t.Setenv("GALLERY_DATA_DIR", t.TempDir())
	t.Setenv("GALLERY_LIBRARY__FOLDERS", "/a, /b,,")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	got := cfg.FolderPaths()
	if len(got) != 2 || got[0] != "/a" || got[1] != "/b" {
		t.Errorf("Expected [/a /b], got %v", got)
	}
	for _, f := range cfg.Library.Folders {
		if !f.AutoMetadata {
			t.Errorf("Expected auto metadata for %s", f.Path)
		}
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	t.Parallel()

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected an error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{
			name:    "unknown delete mode",
			modify:  func(c *Config) { c.DeleteMode = "shred" },
			wantErr: "DeleteMode",
		},
		{
			name:    "folder without path",
			modify:  func(c *Config) { c.Library.Folders = []FolderConfig{{AutoMetadata: true}} },
			wantErr: "Path",
		},
		{
			name:    "bad log level",
			modify:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: "Level",
		},
		{
			name:    "member id without pass hash",
			modify:  func(c *Config) { c.Remote.MemberID = "1" },
			wantErr: "pass_hash",
		},
		{
			name:    "bad catalog url",
			modify:  func(c *Config) { c.Remote.CatalogURL = "not a url" },
			wantErr: "CatalogURL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := defaultConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestPrepareDataDir(t *testing.T) {
	t.Parallel()

	cfg := defaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "nested", "data")
	if err := cfg.resolvePaths(); err != nil {
		t.Fatal(err)
	}
	if err := PrepareDataDir(&cfg); err != nil {
		t.Fatalf("PrepareDataDir failed: %v", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.ThumbnailDir, cfg.TrashDir, cfg.TempDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("Expected directory %s, got %v", dir, err)
		}
	}
}

func TestGetRouteGroup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want string
	}{
		{"/api/galleries/{id}", "api/galleries"},
		{"/api/scan", "api/scan"},
		{"/health", "health"},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := getRouteGroup(tt.path); got != tt.want {
			t.Errorf("getRouteGroup(%q) = %q, expected %q", tt.path, got, tt.want)
		}
	}
}

func TestGetRoutes(t *testing.T) {
	t.Parallel()

	r := mux.NewRouter()
	noop := func(http.ResponseWriter, *http.Request) {}
	r.HandleFunc("/api/galleries", noop).Methods(http.MethodGet).Name("list")
	r.HandleFunc("/api/galleries/{id}", noop).Methods(http.MethodGet, http.MethodDelete)

	routes, err := GetRoutes(r)
	if err != nil {
		t.Fatalf("GetRoutes failed: %v", err)
	}
	if len(routes) != 3 {
		t.Fatalf("Expected 3 routes, got %d", len(routes))
	}
	if routes[0].Name != "list" || routes[0].Method != http.MethodGet {
		t.Errorf("Unexpected first route %+v", routes[0])
	}
}
