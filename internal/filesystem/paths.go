package filesystem

import (
	"path/filepath"
	"strings"
)

// NormalizePath returns the cleaned absolute form of path. When the path
// cannot be made absolute it is only cleaned.
func NormalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// PathUnder reports whether path is root or lies inside it.
func PathUnder(path, root string) bool {
	rel, err := filepath.Rel(NormalizePath(root), NormalizePath(path))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// IsHidden reports whether a file or directory name is hidden.
func IsHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// HasHiddenElement reports whether any element of path below root is hidden.
func HasHiddenElement(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if IsHidden(part) && part != ".." {
			return true
		}
	}
	return false
}
