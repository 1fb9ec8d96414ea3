// ABOUTME: Filesystem tool set confined to the workspace boundary.
// ABOUTME: Every operation resolves its paths through the boundary before any I/O.

package fsops

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/2389/tool-gateway/internal/toolerr"
	"github.com/2389/tool-gateway/internal/workspace"
)

// FS performs file operations beneath a workspace root.
type FS struct {
	boundary *workspace.Boundary
	logger   *slog.Logger
	runner   commandRunner
}

// New creates an FS over boundary.
func New(boundary *workspace.Boundary, logger *slog.Logger) *FS {
	if logger == nil {
		logger = slog.Default()
	}
	return &FS{
		boundary: boundary,
		logger:   logger.With("component", "fsops"),
		runner:   execRunner{},
	}
}

// Boundary returns the workspace boundary the FS resolves against.
func (f *FS) Boundary() *workspace.Boundary {
	return f.boundary
}

// FileInfo is the metadata returned by Stat.
type FileInfo struct {
	Path      string `json:"path"`
	IsFile    bool   `json:"is_file"`
	IsDir     bool   `json:"is_dir"`
	Size      int64  `json:"size"`
	SizeHuman string `json:"size_human"`
	Created   string `json:"created"`
	Modified  string `json:"modified"`
	Mode      string `json:"mode"`
}

// List returns the sorted entry names of the directory at rel.
func (f *FS) List(rel string) ([]string, error) {
	const op = "list_dir"
	abs, err := f.dir(op, rel)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, toolerr.IO(op, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Read returns the UTF-8 text content of the file at rel.
func (f *FS) Read(rel string) (string, error) {
	const op = "read_file"
	abs, err := f.file(op, rel)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", toolerr.IO(op, err)
	}
	if !utf8.Valid(data) {
		return "", &toolerr.Error{Kind: toolerr.KindIO, Op: op, Code: "not_text", Message: "file is not valid UTF-8 text"}
	}
	return string(data), nil
}

// Write replaces the content of the file at rel, creating it and any
// missing parent directories.
func (f *FS) Write(rel, content string) error {
	const op = "write_file"
	abs, err := f.boundary.Resolve(rel)
	if err != nil {
		return err
	}
	if abs == f.boundary.Root() {
		return toolerr.Path(op, toolerr.CodeIsDirectory, "cannot write to the workspace root")
	}
	if info, err := os.Stat(abs); err == nil && info.IsDir() {
		return toolerr.Path(op, toolerr.CodeIsDirectory, fmt.Sprintf("%s is a directory", rel))
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return toolerr.IO(op, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return toolerr.IO(op, err)
	}
	f.logger.Debug("wrote file", "path", rel, "bytes", len(content))
	return nil
}

// DeleteFile removes the regular file at rel.
func (f *FS) DeleteFile(rel string) error {
	const op = "delete_file"
	abs, err := f.file(op, rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return toolerr.IO(op, err)
	}
	f.logger.Debug("deleted file", "path", rel)
	return nil
}

// MakeDir creates the directory at rel with any parents. Existing
// directories are not an error.
func (f *FS) MakeDir(rel string) error {
	const op = "create_folder"
	abs, err := f.boundary.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return toolerr.IO(op, err)
	}
	return nil
}

// RemoveDir deletes the directory at rel and everything beneath it.
// The workspace root itself cannot be removed.
func (f *FS) RemoveDir(rel string) error {
	const op = "delete_folder"
	abs, err := f.dir(op, rel)
	if err != nil {
		return err
	}
	if abs == f.boundary.Root() {
		return toolerr.Path(op, "workspace_root", "cannot delete the workspace root")
	}
	if err := os.RemoveAll(abs); err != nil {
		return toolerr.IO(op, err)
	}
	f.logger.Debug("deleted folder", "path", rel)
	return nil
}

// Stat returns metadata for the file or directory at rel.
func (f *FS) Stat(rel string) (*FileInfo, error) {
	const op = "get_file_info"
	abs, err := f.boundary.Resolve(rel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, toolerr.IO(op, err)
	}
	return &FileInfo{
		Path:      f.boundary.Rel(abs),
		IsFile:    info.Mode().IsRegular(),
		IsDir:     info.IsDir(),
		Size:      info.Size(),
		SizeHuman: humanize.Bytes(uint64(info.Size())),
		Created:   changeTime(info).UTC().Format(time.RFC3339),
		Modified:  info.ModTime().UTC().Format(time.RFC3339),
		Mode:      fmt.Sprintf("%#o", info.Mode().Perm()),
	}, nil
}

// dir resolves rel and requires it to be an existing directory.
func (f *FS) dir(op, rel string) (string, error) {
	abs, err := f.boundary.Resolve(rel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", toolerr.IO(op, err)
	}
	if !info.IsDir() {
		return "", &toolerr.Error{Kind: toolerr.KindIO, Op: op, Code: toolerr.CodeNotDirectory, Message: fmt.Sprintf("%s is not a directory", rel)}
	}
	return abs, nil
}

// file resolves rel and requires it to be an existing non-directory.
func (f *FS) file(op, rel string) (string, error) {
	abs, err := f.boundary.Resolve(rel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", toolerr.IO(op, err)
	}
	if info.IsDir() {
		return "", &toolerr.Error{Kind: toolerr.KindIO, Op: op, Code: toolerr.CodeIsDirectory, Message: fmt.Sprintf("%s is a directory", rel)}
	}
	return abs, nil
}
