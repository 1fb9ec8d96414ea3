// ABOUTME: Depth-bounded directory tree rendering.
// ABOUTME: Unreadable directories render as a [Permission Denied] line.

package fsops

import (
	"os"
	"path/filepath"
	"strings"
)

// DefaultTreeDepth is the depth Tree uses when given a negative depth.
const DefaultTreeDepth = 3

// Tree renders the directory at rel as an indented tree. The first line is
// the workspace-relative path; directories are descended up to maxDepth
// levels below it.
func (f *FS) Tree(rel string, maxDepth int) (string, error) {
	const op = "directory_tree"
	if maxDepth < 0 {
		maxDepth = DefaultTreeDepth
	}
	abs, err := f.dir(op, rel)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(f.boundary.Rel(abs))
	sb.WriteByte('\n')
	writeTree(&sb, abs, "", 0, maxDepth)
	return sb.String(), nil
}

func writeTree(sb *strings.Builder, dir, prefix string, depth, maxDepth int) {
	if depth > maxDepth {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		sb.WriteString(prefix + "[Permission Denied]\n")
		return
	}

	for i, e := range entries {
		last := i == len(entries)-1
		connector, extension := "├── ", "│   "
		if last {
			connector, extension = "└── ", "    "
		}
		sb.WriteString(prefix + connector + e.Name() + "\n")
		// Symlinked directories report a symlink type and are not descended.
		if e.IsDir() {
			writeTree(sb, filepath.Join(dir, e.Name()), prefix+extension, depth+1, maxDepth)
		}
	}
}
