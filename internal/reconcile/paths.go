package reconcile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// PathValidator keeps tool inputs inside the configured directory.
type PathValidator struct {
	root string
}

// NewPathValidator creates a validator rooted at dir. The directory does not
// have to exist yet; until it does, any path is accepted.
func NewPathValidator(dir string) (*PathValidator, error) {
	if dir == "" {
		return nil, errors.New("configured directory cannot be empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configured directory: %w", err)
	}
	return &PathValidator{root: abs}, nil
}

// Root returns the configured directory.
func (v *PathValidator) Root() string {
	return v.root
}

// Resolve makes path absolute, relative paths being taken from the root,
// and rejects paths that land outside the root.
func (v *PathValidator) Resolve(path string) (string, error) {
	path = strings.ReplaceAll(path, "\x00", "")
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path cannot be empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(v.root, path)
	}
	path = filepath.Clean(path)

	if _, err := os.Stat(v.root); os.IsNotExist(err) {
		return path, nil
	}
	if !v.within(path) {
		return "", fmt.Errorf("path is outside configured directory: %s", path)
	}
	return path, nil
}

// within checks path both as written and with symlinks resolved.
func (v *PathValidator) within(path string) bool {
	roots := []string{v.root}
	if real, err := filepath.EvalSymlinks(v.root); err == nil && real != v.root {
		roots = append(roots, real)
	}

	candidates := []string{path}
	if real, err := filepath.EvalSymlinks(path); err == nil && real != path {
		candidates = append(candidates, real)
	}

	for _, p := range candidates {
		ok := false
		for _, root := range roots {
			if p == root || strings.HasPrefix(p, root+string(filepath.Separator)) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
