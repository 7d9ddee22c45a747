// Package pathsafe validates client-supplied PDF names and confines resolved
// paths to the PDF root directory.
package pathsafe

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

var (
	ErrUnsafeName  = errors.New("unsafe file name")
	ErrOutsideRoot = errors.New("path escapes root directory")
	ErrNotFound    = errors.New("file not found")
)

var pdfName = regexp.MustCompile(`^[A-Za-z0-9_.\-]+\.pdf$`)

// CheckFileName accepts only bare PDF base names. Separators of either
// flavour, NUL bytes and absolute paths are refused outright instead of
// being reduced to a base name. Without a separator ".." cannot name a
// parent directory, so dots inside a name like "a..b.pdf" are allowed.
func CheckFileName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrUnsafeName)
	case strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: contains NUL", ErrUnsafeName)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: contains a path separator", ErrUnsafeName)
	case name == "." || name == "..":
		return fmt.Errorf("%w: parent reference", ErrUnsafeName)
	case filepath.IsAbs(name) || filepath.VolumeName(name) != "":
		return fmt.Errorf("%w: absolute path", ErrUnsafeName)
	case filepath.Base(name) != name:
		return fmt.Errorf("%w: not a base name", ErrUnsafeName)
	case !pdfName.MatchString(name):
		return fmt.Errorf("%w: must match %s", ErrUnsafeName, pdfName.String())
	}
	return nil
}

// Root is a directory that resolved files must stay inside.
type Root struct {
	dir string
}

func NewRoot(dir string) *Root {
	return &Root{dir: dir}
}

// Resolve maps a bound file name to a regular file inside the root. The
// root and the candidate are both resolved through symlinks before the
// containment check, so a link pointing outside the root is a violation.
func (r *Root) Resolve(name string) (string, error) {
	absRoot, err := filepath.Abs(r.dir)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: root %s missing", ErrNotFound, r.dir)
		}
		return "", fmt.Errorf("resolve root: %w", err)
	}

	candidate := filepath.Join(realRoot, filepath.Base(name))
	realPath, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(name))
		}
		return "", fmt.Errorf("resolve file: %w", err)
	}

	if !Within(realRoot, realPath) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, realPath)
	}

	info, err := os.Stat(realPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(name))
		}
		return "", fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrNotFound, filepath.Base(name))
	}
	return realPath, nil
}

// Within reports whether path lies strictly below root. Both must be
// absolute and cleaned.
func Within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || filepath.IsAbs(rel) {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
