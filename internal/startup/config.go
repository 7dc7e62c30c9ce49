package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix starts every environment override. "__" separates nesting
	// levels: GALLERY_REMOTE__MEMBER_ID sets remote.member_id.
	EnvPrefix = "GALLERY_"
	// ConfigPathEnvVar points at the YAML file when no path is given.
	ConfigPathEnvVar = "GALLERY_CONFIG"
)

// Config holds all application configuration.
type Config struct {
	Library    LibraryConfig   `koanf:"library"`
	DataDir    string          `koanf:"data_dir" validate:"required"`
	DeleteMode string          `koanf:"delete_mode" validate:"oneof=trash remove"`
	Scan       ScanConfig      `koanf:"scan"`
	Thumbnails ThumbnailConfig `koanf:"thumbnails"`
	Remote     RemoteConfig    `koanf:"remote"`
	HTTP       HTTPConfig      `koanf:"http"`
	Log        LogConfig       `koanf:"log"`
	Memory     MemoryConfig    `koanf:"memory"`

	// Derived paths
	DatabasePath string `koanf:"-"`
	MirrorPath   string `koanf:"-"`
	ThumbnailDir string `koanf:"-"`
	TrashDir     string `koanf:"-"`
	TempDir      string `koanf:"-"`
	LockPath     string `koanf:"-"`
}

// LibraryConfig lists the folders holding galleries.
type LibraryConfig struct {
	Folders []FolderConfig `koanf:"folders" validate:"dive"`
}

// FolderConfig is one library root.
type FolderConfig struct {
	Path string `koanf:"path" validate:"required"`
	// AutoMetadata allows bulk metadata searches for galleries in this
	// folder.
	AutoMetadata bool `koanf:"auto_metadata"`
}

type ScanConfig struct {
	Workers         int           `koanf:"workers" validate:"gte=0"`
	ValidationDelay time.Duration `koanf:"validation_delay" validate:"gte=0"`
	Watch           bool          `koanf:"watch"`
	WatchDebounce   time.Duration `koanf:"watch_debounce" validate:"gte=0"`
	// ThumbnailAfterScan regenerates stale thumbnails after each scan.
	ThumbnailAfterScan bool `koanf:"thumbnail_after_scan"`
}

type ThumbnailConfig struct {
	Width   int `koanf:"width" validate:"gte=0,lte=2000"`
	Height  int `koanf:"height" validate:"gte=0,lte=2000"`
	Workers int `koanf:"workers" validate:"gte=0"`
}

// RemoteConfig holds catalog credentials and endpoints. Remote search is
// disabled until both credentials are set.
type RemoteConfig struct {
	MemberID     string        `koanf:"member_id"`
	PassHash     string        `koanf:"pass_hash"`
	CatalogURL   string        `koanf:"catalog_url" validate:"omitempty,url"`
	AlternateURL string        `koanf:"alternate_url" validate:"omitempty,url"`
	Spacing      time.Duration `koanf:"spacing" validate:"gte=0"`
	Timeout      time.Duration `koanf:"timeout" validate:"gte=0"`
	Retries      int           `koanf:"retries" validate:"gte=0,lte=10"`
}

// Enabled reports whether catalog credentials are configured.
func (r RemoteConfig) Enabled() bool {
	return r.MemberID != "" && r.PassHash != ""
}

type HTTPConfig struct {
	Addr            string `koanf:"addr" validate:"required"`
	LogHealthChecks bool   `koanf:"log_health_checks"`
}

type LogConfig struct {
	Level      string `koanf:"level" validate:"omitempty,oneof=debug info warn warning error"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `koanf:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `koanf:"max_age_days" validate:"gte=0"`
}

// MemoryConfig sizes GOMEMLIMIT from a container limit such as "2GiB".
type MemoryConfig struct {
	Limit string  `koanf:"limit"`
	Ratio float64 `koanf:"ratio" validate:"gte=0,lte=1"`
}

func defaultConfig() Config {
	return Config{
		DataDir:    "data",
		DeleteMode: "trash",
		Scan: ScanConfig{
			ValidationDelay:    5 * time.Second,
			Watch:              true,
			WatchDebounce:      500 * time.Millisecond,
			ThumbnailAfterScan: true,
		},
		Thumbnails: ThumbnailConfig{Width: 200, Height: 280},
		Remote: RemoteConfig{
			CatalogURL:   "http://exhentai.org",
			AlternateURL: "http://panda.chaika.moe",
			Spacing:      3 * time.Second,
			Timeout:      30 * time.Second,
			Retries:      3,
		},
		HTTP:   HTTPConfig{Addr: "127.0.0.1:8080", LogHealthChecks: false},
		Log:    LogConfig{MaxSizeMB: 50, MaxBackups: 3, MaxAgeDays: 28},
		Memory: MemoryConfig{Ratio: 0.85},
	}
}

var validate = validator.New()

// LoadConfig layers defaults, the YAML file at path (or $GALLERY_CONFIG)
// and GALLERY_ environment variables, then validates the result and
// resolves the data directory layout. A missing file is an error only when
// path was given explicitly.
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = os.Getenv(ConfigPathEnvVar)
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil || explicit {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := splitFolders(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey maps GALLERY_REMOTE__MEMBER_ID to remote.member_id.
func envKey(key string) string {
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ToLower(strings.ReplaceAll(key, "__", "."))
}

// splitFolders accepts library.folders as a comma-separated list of paths,
// which is the only form an environment variable can carry.
func splitFolders(k *koanf.Koanf) error {
	s, ok := k.Get("library.folders").(string)
	if !ok {
		return nil
	}
	var folders []interface{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			folders = append(folders, map[string]interface{}{"path": p, "auto_metadata": true})
		}
	}
	if err := k.Set("library.folders", folders); err != nil {
		return fmt.Errorf("failed to set library.folders: %w", err)
	}
	return nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if (c.Remote.MemberID == "") != (c.Remote.PassHash == "") {
		return errors.New("remote.member_id and remote.pass_hash must be set together")
	}
	return nil
}

func (c *Config) resolvePaths() error {
	dataDir, err := filepath.Abs(c.DataDir)
	if err != nil {
		return fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	c.DataDir = dataDir
	for i, f := range c.Library.Folders {
		abs, err := filepath.Abs(f.Path)
		if err != nil {
			return fmt.Errorf("failed to resolve library folder %s: %w", f.Path, err)
		}
		c.Library.Folders[i].Path = abs
	}

	c.DatabasePath = filepath.Join(dataDir, "galleries.db")
	c.MirrorPath = filepath.Join(dataDir, "catalog.db")
	c.ThumbnailDir = filepath.Join(dataDir, "thumbs")
	c.TrashDir = filepath.Join(dataDir, "trash")
	c.TempDir = filepath.Join(dataDir, "tmp")
	c.LockPath = filepath.Join(dataDir, ".lock")
	return nil
}

// FolderPaths returns the library folder paths.
func (c *Config) FolderPaths() []string {
	out := make([]string, len(c.Library.Folders))
	for i, f := range c.Library.Folders {
		out[i] = f.Path
	}
	return out
}
