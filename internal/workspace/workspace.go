// ABOUTME: Workspace boundary that confines every tool path to one root directory.
// ABOUTME: Canonicalizes paths (.. and symlinks) before checking containment.

package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/tool-gateway/internal/toolerr"
)

// Boundary resolves caller-supplied relative paths against a fixed root.
// It is immutable after construction and safe for concurrent use.
type Boundary struct {
	root string
}

// New returns a boundary rooted at root. The directory is created if it
// does not exist, and the root itself is made absolute and symlink-resolved
// so later containment checks compare canonical paths.
func New(root string) (*Boundary, error) {
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getwd: %w", err)
		}
		root = cwd
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("abs(%s): %w", root, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}

	return &Boundary{root: abs}, nil
}

// Root returns the canonical absolute workspace root.
func (b *Boundary) Root() string {
	return b.root
}

// Resolve joins rel onto the root and returns the canonical absolute path.
// It fails with a path_error when rel is absolute or resolves outside the
// root, including escapes through symlinked directories.
func (b *Boundary) Resolve(rel string) (string, error) {
	if strings.ContainsRune(rel, 0) {
		return "", toolerr.Path("resolve", "invalid_path", "path contains a NUL byte")
	}
	if filepath.IsAbs(rel) || filepath.VolumeName(rel) != "" {
		return "", toolerr.Path("resolve", toolerr.CodeOutsideWorkspace, "absolute paths are not allowed")
	}

	cleaned := filepath.Clean(rel)
	candidate := filepath.Join(b.root, cleaned)

	if !b.contains(candidate) {
		return "", escapeError(rel)
	}

	resolved, err := resolveExisting(candidate)
	if err != nil {
		return "", toolerr.Path("resolve", "invalid_path", err.Error())
	}
	if !b.contains(resolved) {
		return "", escapeError(rel)
	}

	return resolved, nil
}

// Rel converts a path inside the workspace back to its slash-separated
// workspace-relative form. Paths outside the root are returned unchanged.
func (b *Boundary) Rel(abs string) string {
	rel, err := filepath.Rel(b.root, abs)
	if err != nil || !b.contains(abs) {
		return abs
	}
	return filepath.ToSlash(rel)
}

// contains reports whether p is the root or a descendant of it.
func (b *Boundary) contains(p string) bool {
	rel, err := filepath.Rel(b.root, p)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of p
// and re-joins the missing tail, so paths that do not exist yet (write
// targets) are still checked through any symlinked parent.
func resolveExisting(p string) (string, error) {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved, nil
	}

	var tail []string
	cur := p
	for {
		parent := filepath.Dir(cur)
		tail = append([]string{filepath.Base(cur)}, tail...)
		if parent == cur {
			return p, nil
		}
		if resolved, err := filepath.EvalSymlinks(parent); err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		cur = parent
	}
}

func escapeError(rel string) error {
	return toolerr.Path("resolve", toolerr.CodeOutsideWorkspace,
		fmt.Sprintf("path %q resolves outside the workspace root", rel))
}
