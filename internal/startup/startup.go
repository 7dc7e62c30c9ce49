package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"gallery-viewer/internal/logging"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

func section(title string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("%s", title)
	logging.Info("------------------------------------------------------------")
}

// LogStartup prints the banner, system information and the effective
// configuration.
func LogStartup(cfg *Config) {
	printBanner()
	logSystemInfo()

	section("CONFIGURATION")
	logging.Info("  Data directory:   %s", cfg.DataDir)
	logging.Info("  Library folders:  %d", len(cfg.Library.Folders))
	for _, f := range cfg.Library.Folders {
		auto := "auto metadata"
		if !f.AutoMetadata {
			auto = "manual metadata"
		}
		logging.Info("    %s (%s)", f.Path, auto)
	}
	logging.Info("  Delete mode:      %s", cfg.DeleteMode)
	logging.Info("  Scan workers:     %s", workersString(cfg.Scan.Workers))
	logging.Info("  Validation delay: %v", cfg.Scan.ValidationDelay)
	logging.Info("  Watch folders:    %v", cfg.Scan.Watch)
	logging.Info("  Thumbnails:       %dx%d", cfg.Thumbnails.Width, cfg.Thumbnails.Height)
	logging.Info("  Remote search:    %s", enabledString(cfg.Remote.Enabled()))
	logging.Info("  HTTP address:     %s", cfg.HTTP.Addr)
	logging.Info("  Log level:        %s", logging.GetLevel())
	if cfg.Log.File != "" {
		logging.Info("  Log file:         %s", cfg.Log.File)
	}
}

// PrepareDataDir creates the data directory layout and checks that it is
// writable.
func PrepareDataDir(cfg *Config) error {
	section("DIRECTORY SETUP")
	for _, dir := range []string{cfg.DataDir, cfg.ThumbnailDir, cfg.TrashDir, cfg.TempDir} {
		if err := ensureDirectory(dir); err != nil {
			return fmt.Errorf("data directory error: %w", err)
		}
	}
	if err := testWriteAccess(cfg.DataDir); err != nil {
		return fmt.Errorf("data directory is not writable: %w", err)
	}
	logging.Info("  [OK] Data directory is writable")

	for _, f := range cfg.Library.Folders {
		info, err := os.Stat(f.Path)
		switch {
		case err != nil:
			logging.Warn("  Library folder %s is not accessible: %v", f.Path, err)
		case !info.IsDir():
			logging.Warn("  Library folder %s is not a directory", f.Path)
		default:
			logging.Debug("  [OK] %s", f.Path)
		}
	}
	return nil
}

func workersString(n int) string {
	if n == 0 {
		return "auto"
	}
	return fmt.Sprint(n)
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration, mirror bool, fts bool) {
	section("DATABASE INITIALIZATION")
	logging.Info("  [OK] Database initialized in %v", duration)
	switch {
	case !mirror:
		logging.Info("  Catalog mirror:   DISABLED")
	case fts:
		logging.Info("  Catalog mirror:   ENABLED (full text index)")
	default:
		logging.Info("  Catalog mirror:   ENABLED (LIKE matching, build with -tags fts5 for the index)")
	}
}

// LogIndexerInit logs indexer initialization
func LogIndexerInit(folders int, watching int) {
	section("INDEXER INITIALIZATION")
	logging.Info("  Library folders: %d", folders)
	if watching > 0 {
		logging.Info("  Watching %d directories", watching)
	}
	logging.Info("  Starting indexer...")
}

// LogIndexerStarted logs successful indexer start
func LogIndexerStarted() {
	logging.Info("  [OK] Indexer started")
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs registered routes grouped by prefix at debug level.
func LogHTTPRoutes(router *mux.Router) {
	section("HTTP SERVER SETUP")
	if !logging.IsDebugEnabled() {
		return
	}

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("error walking routes: %v", err)
	}
	logging.Debug("  Registered routes (%d total):", len(routes))

	groups := make(map[string][]RouteInfo)
	for _, route := range routes {
		prefix := getRouteGroup(route.Path)
		groups[prefix] = append(groups[prefix], route)
	}
	groupKeys := make([]string, 0, len(groups))
	for k := range groups {
		groupKeys = append(groupKeys, k)
	}
	sort.Strings(groupKeys)

	for _, group := range groupKeys {
		if group != "" {
			logging.Debug("  [%s]", group)
		} else {
			logging.Debug("  [root]")
		}
		for _, route := range groups[group] {
			logging.Debug("    %-6s %s", route.Method, route.Path)
		}
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")
	parts := strings.SplitN(path, "/", 2)
	first := parts[0]
	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}
	return first
}

// LogServerStarted logs successful server start with endpoint information
func LogServerStarted(addr string, startup time.Duration) {
	section("SERVER STARTED")
	logging.Info("  Startup time:    %v", startup)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    API:           http://%s/api/galleries", addr)
	logging.Info("    Events:        ws://%s/api/events", addr)
	logging.Info("    Metrics:       http://%s/metrics", addr)
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(reason string) {
	section(fmt.Sprintf("SHUTDOWN INITIATED (%s)", reason))
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

func printBanner() {
	banner := `
------------------------------------------------------------
   ______      ____                  _    ___
  / ____/___ _/ / /__  _______  __  | |  / (_)__ _      _____  _____
 / / __/ __ '/ / / _ \/ ___/ / / /  | | / / / _ \ | /| / / _ \/ ___/
/ /_/ / /_/ / / /  __/ /  / /_/ /   | |/ / /  __/ |/ |/ /  __/ /
\____/\__,_/_/_/\___/_/   \__, /    |___/_/\___/|__/|__/\___/_/
                         /____/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	section("SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}
}

func ensureDirectory(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("  [OK] Created directory: %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists but is not a directory", path)
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}
