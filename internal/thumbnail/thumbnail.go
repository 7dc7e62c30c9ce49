package thumbnail

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // WebP covers

	"gallery-viewer/internal/gallery"
	"gallery-viewer/internal/logging"
	"gallery-viewer/internal/memory"
	"gallery-viewer/internal/metrics"
	"gallery-viewer/internal/workers"
)

const (
	DefaultWidth  = 200
	DefaultHeight = 280

	// maxImagePixels bounds decoding; a 20MP RGBA image takes ~80MB.
	maxImagePixels = 20_000_000
	jpegQuality    = 80
	extension      = ".jpg"
)

// Report summarizes one EnsureAll run.
type Report struct {
	Valid     int `json:"valid"`
	Generated int `json:"generated"`
	Failed    int `json:"failed"`
	Pruned    int `json:"pruned"`
}

type Generator struct {
	dir     string
	width   int
	height  int
	workers int
	monitor *memory.Monitor
	// mu serializes writes so two galleries sharing a cover do not race on
	// one file.
	mu sync.Mutex
}

// New creates a generator writing into dir. Zero sizes select the defaults.
func New(dir string, width, height, workerCount int) (*Generator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create thumbnail dir: %w", err)
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	if workerCount <= 0 {
		workerCount = workers.ForMixed(8)
	}
	logging.Debug("Thumbnails: %s (%dx%d)", dir, width, height)
	return &Generator{dir: dir, width: width, height: height, workers: workerCount}, nil
}

func (t *Generator) Dir() string {
	return t.dir
}

// SetMonitor makes generation wait while memory usage is critical.
func (t *Generator) SetMonitor(m *memory.Monitor) {
	t.monitor = m
}

// Path is the thumbnail file for an image hash.
func (t *Generator) Path(hash string) string {
	return filepath.Join(t.dir, hash+extension)
}

func (t *Generator) exists(hash string) bool {
	if hash == "" {
		return false
	}
	_, err := os.Stat(t.Path(hash))
	return err == nil
}

// Ensure validates the thumbnail of g and regenerates it when stale.
// generated is true when a new hash was recorded on the gallery.
func (t *Generator) Ensure(ctx context.Context, g *gallery.Gallery) (generated bool, err error) {
	if g.ThumbnailVerified() && t.exists(g.ImageHash()) {
		return false, nil
	}

	source := g.ThumbnailSource()
	hash, err := g.RepresentativeHash()
	if err != nil && source != "0" {
		logging.Warn("%s: thumbnail source %s is unusable, falling back to the first file: %v", g, source, err)
		g.PickThumbnail("0")
		source = g.ThumbnailSource()
		hash, err = g.RepresentativeHash()
	}
	if err != nil {
		return false, fmt.Errorf("failed to hash thumbnail source of %s: %w", g, err)
	}

	if hash == g.ImageHash() && t.exists(hash) {
		g.SetThumbnail(source, hash)
		return false, nil
	}

	if !t.exists(hash) {
		if err := t.monitor.Wait(ctx); err != nil {
			return false, err
		}
		if err := t.generate(g, hash); err != nil {
			return false, err
		}
	}
	g.SetThumbnail(source, hash)
	if err := g.Save(ctx); err != nil {
		return true, err
	}
	return true, nil
}

func (t *Generator) generate(g *gallery.Gallery, hash string) error {
	start := time.Now()
	rc, err := g.OpenRepresentative()
	if err != nil {
		return err
	}
	data, err := io.ReadAll(rc)
	closeErr := rc.Close()
	if err != nil {
		return fmt.Errorf("failed to read thumbnail source of %s: %w", g, err)
	}
	if closeErr != nil {
		logging.Warn("failed to close thumbnail source of %s: %v", g, closeErr)
	}

	img, err := t.render(data)
	if err != nil {
		return fmt.Errorf("failed to render thumbnail of %s: %w", g, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.exists(hash) {
		return nil
	}
	tmp := t.Path(hash) + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}
	if err := os.Rename(tmp, t.Path(hash)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to store thumbnail: %w", err)
	}
	metrics.ThumbnailGenerationDuration.Observe(time.Since(start).Seconds())
	logging.Debug("Thumbnail generated for %s: %s", g, t.Path(hash))
	return nil
}

// render decodes a cover, turns landscape images upright and crops it to
// the thumbnail size.
func (t *Generator) render(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width*cfg.Height > maxImagePixels {
		return nil, fmt.Errorf("image too large: %dx%d", cfg.Width, cfg.Height)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() > b.Dy() {
		img = imaging.Rotate90(img)
	}
	return imaging.Fill(img, t.width, t.height, imaging.Center, imaging.Lanczos), nil
}

// EnsureAll validates every gallery in parallel and prunes orphans
// against live.
func (t *Generator) EnsureAll(ctx context.Context, galleries, live []*gallery.Gallery) Report {
	var report Report
	results, errs := workers.Run(ctx, "thumbnail", t.workers, galleries,
		func(ctx context.Context, g *gallery.Gallery) (bool, error) {
			if g.Expired() {
				return false, nil
			}
			return t.Ensure(ctx, g)
		})

	for _, generated := range results {
		if generated {
			report.Generated++
			metrics.ThumbnailGenerationsTotal.WithLabelValues("generated").Inc()
		} else {
			report.Valid++
			metrics.ThumbnailGenerationsTotal.WithLabelValues("valid").Inc()
		}
	}
	for _, err := range errs {
		report.Failed++
		metrics.ThumbnailGenerationsTotal.WithLabelValues("error").Inc()
		logging.Warn("Thumbnail failed: %v", err)
	}

	if report.Generated > 0 {
		pruned, err := t.Prune(live)
		if err != nil {
			logging.Warn("Failed to prune thumbnails: %v", err)
		}
		report.Pruned = pruned
	}
	return report
}

// Prune removes thumbnails whose hash no live gallery references.
func (t *Generator) Prune(live []*gallery.Gallery) (int, error) {
	keep := make(map[string]bool, len(live))
	for _, g := range live {
		if h := g.ImageHash(); h != "" {
			keep[h] = true
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list thumbnails: %w", err)
	}
	pruned := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, extension) {
			continue
		}
		if keep[strings.TrimSuffix(name, extension)] {
			continue
		}
		if err := os.Remove(filepath.Join(t.dir, name)); err != nil {
			logging.Warn("Failed to remove thumbnail %s: %v", name, err)
			continue
		}
		pruned++
	}
	if pruned > 0 {
		metrics.ThumbnailsPrunedTotal.Add(float64(pruned))
		logging.Info("Pruned %d orphan thumbnails", pruned)
	}
	return pruned, nil
}
