// ABOUTME: Glob search, in-place search-and-replace, and unified diffs.
// ABOUTME: Diffs are produced with go-difflib in the classic unified format.

package fsops

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/2389/tool-gateway/internal/toolerr"
)

// DefaultDiffContext is the number of context lines Diff uses when asked for
// a negative amount.
const DefaultDiffContext = 3

// Glob walks the directory at root and returns every path whose name matches
// pattern, at any depth. Patterns containing a slash or a "**" segment are
// matched against the slash-separated path relative to root, where "**"
// stands for zero or more directories. Results are workspace-relative and
// sorted.
func (f *FS) Glob(pattern, root string) ([]string, error) {
	const op = "search_files"
	if pattern == "" {
		return nil, toolerr.Missing(op, "pattern")
	}
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, toolerr.Invalid(op, "pattern", err.Error())
	}

	absRoot, err := f.dir(op, root)
	if err != nil {
		return nil, err
	}

	matchPath := strings.ContainsRune(pattern, '/') || pattern == "**"
	matches := []string{}
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if d != nil && d.IsDir() && p != absRoot {
				return fs.SkipDir
			}
			return walkErr
		}
		if p == absRoot {
			return nil
		}
		matched := false
		if matchPath {
			rel, _ := filepath.Rel(absRoot, p)
			matched = matchGlob(pattern, filepath.ToSlash(rel))
		} else {
			matched, _ = path.Match(pattern, d.Name())
		}
		if matched {
			matches = append(matches, f.boundary.Rel(p))
		}
		return nil
	})
	if err != nil {
		return nil, toolerr.IO(op, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// matchGlob matches the slash-separated rel against pattern one segment at a
// time. A "**" segment matches zero or more whole segments.
func matchGlob(pattern, rel string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(rel, "/"))
}

func matchSegments(pat, segs []string) bool {
	for len(pat) > 0 {
		if pat[0] == "**" {
			for i := 0; i <= len(segs); i++ {
				if matchSegments(pat[1:], segs[i:]) {
					return true
				}
			}
			return false
		}
		if len(segs) == 0 {
			return false
		}
		if ok, _ := path.Match(pat[0], segs[0]); !ok {
			return false
		}
		pat, segs = pat[1:], segs[1:]
	}
	return len(segs) == 0
}

// Replace substitutes search with replacement in the file at rel. A negative
// count replaces every occurrence. It returns the number of replacements
// actually made; the file is only rewritten when that number is positive.
func (f *FS) Replace(rel, search, replacement string, count int) (int, error) {
	const op = "search_and_replace"
	if search == "" {
		return 0, toolerr.Missing(op, "search")
	}
	abs, err := f.file(op, rel)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return 0, toolerr.IO(op, err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return 0, toolerr.IO(op, err)
	}

	content := string(data)
	n := strings.Count(content, search)
	if count >= 0 && count < n {
		n = count
	}
	if n == 0 {
		return 0, nil
	}

	updated := strings.Replace(content, search, replacement, n)
	if err := os.WriteFile(abs, []byte(updated), info.Mode().Perm()); err != nil {
		return 0, toolerr.IO(op, err)
	}
	f.logger.Debug("replaced text", "path", rel, "replacements", n)
	return n, nil
}

// Diff returns a unified diff between the files at rel1 and rel2 with
// contextLines lines of context. Identical files yield an empty string.
func (f *FS) Diff(rel1, rel2 string, contextLines int) (string, error) {
	const op = "file_diff"
	if contextLines < 0 {
		contextLines = DefaultDiffContext
	}

	a, err := f.Read(rel1)
	if err != nil {
		return "", relabel(err, op)
	}
	b, err := f.Read(rel2)
	if err != nil {
		return "", relabel(err, op)
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: rel1,
		ToFile:   rel2,
		Context:  contextLines,
	}
	out, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return "", toolerr.From(op, err)
	}
	return out, nil
}

// relabel rewrites the op of a tool error produced by a nested operation.
func relabel(err error, op string) error {
	var te *toolerr.Error
	if errors.As(err, &te) {
		cp := *te
		cp.Op = op
		return &cp
	}
	return err
}
