package filesystem

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"gallery-viewer/internal/logging"
)

// DeleteMode selects how gallery content is removed from disk.
type DeleteMode string

const (
	// DeleteTrash moves content into the trash directory.
	DeleteTrash DeleteMode = "trash"
	// DeleteRemove removes content permanently.
	DeleteRemove DeleteMode = "remove"
)

// Remover deletes gallery content from disk.
type Remover struct {
	mode     DeleteMode
	trashDir string
}

// NewRemover creates a remover. trashDir is only used in trash mode.
func NewRemover(mode DeleteMode, trashDir string) *Remover {
	if mode != DeleteRemove {
		mode = DeleteTrash
	}
	return &Remover{mode: mode, trashDir: trashDir}
}

// Mode returns the configured delete mode.
func (r *Remover) Mode() DeleteMode {
	return r.mode
}

// Remove deletes every path. Missing paths are ignored. All paths are
// attempted; failures are joined.
func (r *Remover) Remove(paths ...string) error {
	var errs []error
	for _, path := range paths {
		if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		var err error
		if r.mode == DeleteRemove {
			err = os.RemoveAll(path)
		} else {
			err = r.trash(path)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", path, err))
			continue
		}
		logging.Info("Deleted %s (%s)", path, r.mode)
	}
	return errors.Join(errs...)
}

func (r *Remover) trash(path string) error {
	if err := os.MkdirAll(r.trashDir, 0o755); err != nil {
		return err
	}
	dest := trashName(r.trashDir, filepath.Base(path))

	err := os.Rename(path, dest)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	// trash lives on another device
	if err := copyTree(path, dest); err != nil {
		_ = os.RemoveAll(dest)
		return err
	}
	return os.RemoveAll(path)
}

// trashName returns a destination under dir that does not exist yet.
func trashName(dir, base string) string {
	dest := filepath.Join(dir, base)
	if _, err := os.Lstat(dest); errors.Is(err, fs.ErrNotExist) {
		return dest
	}
	stamp := time.Now().Format("20060102-150405")
	for i := 0; ; i++ {
		name := fmt.Sprintf("%s.%s", base, stamp)
		if i > 0 {
			name = fmt.Sprintf("%s.%s-%d", base, stamp, i)
		}
		dest = filepath.Join(dir, name)
		if _, err := os.Lstat(dest); errors.Is(err, fs.ErrNotExist) {
			return dest
		}
	}
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
