// ABOUTME: Zip and unzip operations for workspace files.
// ABOUTME: Unzip rejects archive entries that would land outside the destination.

package fsops

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/2389/tool-gateway/internal/toolerr"
)

// Zip writes a new archive at zipRel containing each file in files, stored
// under its base name.
func (f *FS) Zip(zipRel string, files []string) error {
	const op = "zip_files"
	if len(files) == 0 {
		return toolerr.Missing(op, "files")
	}

	sources := make([]string, 0, len(files))
	seen := make(map[string]string)
	for _, rel := range files {
		abs, err := f.file(op, rel)
		if err != nil {
			return err
		}
		name := filepath.Base(abs)
		if prev, dup := seen[name]; dup {
			return toolerr.Invalid(op, "files", fmt.Sprintf("%s and %s share the entry name %q", prev, rel, name))
		}
		seen[name] = rel
		sources = append(sources, abs)
	}

	zipAbs, err := f.boundary.Resolve(zipRel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(zipAbs), 0o755); err != nil {
		return toolerr.IO(op, err)
	}

	out, err := os.Create(zipAbs)
	if err != nil {
		return toolerr.IO(op, err)
	}
	zw := zip.NewWriter(out)
	for _, src := range sources {
		if err := addToZip(zw, src); err != nil {
			_ = zw.Close()
			_ = out.Close()
			_ = os.Remove(zipAbs)
			return toolerr.IO(op, err)
		}
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return toolerr.IO(op, err)
	}
	if err := out.Close(); err != nil {
		return toolerr.IO(op, err)
	}

	f.logger.Debug("created archive", "path", zipRel, "files", len(sources))
	return nil
}

func addToZip(zw *zip.Writer, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = filepath.Base(src)
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// Unzip extracts the archive at zipRel into the directory destRel and
// returns the workspace-relative paths of the extracted files. Any entry
// that would resolve outside the destination aborts the extraction before
// anything is written.
func (f *FS) Unzip(zipRel, destRel string) ([]string, error) {
	const op = "unzip_file"
	zipAbs, err := f.file(op, zipRel)
	if err != nil {
		return nil, err
	}
	destAbs, err := f.boundary.Resolve(destRel)
	if err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(zipAbs)
	if err != nil {
		return nil, toolerr.IO(op, err)
	}
	defer zr.Close()

	targets := make([]string, len(zr.File))
	for i, zf := range zr.File {
		target, err := entryTarget(destAbs, zf.Name)
		if err != nil {
			return nil, toolerr.Path(op, toolerr.CodeOutsideWorkspace, err.Error())
		}
		if zf.Mode()&os.ModeSymlink != 0 {
			return nil, toolerr.Path(op, "symlink_entry", fmt.Sprintf("archive entry %q is a symbolic link", zf.Name))
		}
		targets[i] = target
	}

	if err := os.MkdirAll(destAbs, 0o755); err != nil {
		return nil, toolerr.IO(op, err)
	}

	var extracted []string
	for i, zf := range zr.File {
		if zf.FileInfo().IsDir() {
			if err := os.MkdirAll(targets[i], 0o755); err != nil {
				return extracted, toolerr.IO(op, err)
			}
			continue
		}
		if err := extractEntry(zf, targets[i]); err != nil {
			return extracted, toolerr.IO(op, err)
		}
		extracted = append(extracted, f.boundary.Rel(targets[i]))
	}

	f.logger.Debug("extracted archive", "path", zipRel, "dest", destRel, "files", len(extracted))
	return extracted, nil
}

// entryTarget joins an archive entry name onto dest and rejects names that
// are absolute or climb out of dest.
func entryTarget(dest, name string) (string, error) {
	clean := filepath.FromSlash(name)
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("archive entry %q has an absolute path", name)
	}
	target := filepath.Join(dest, clean)
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("archive entry %q escapes the destination", name)
	}
	return target, nil
}

func extractEntry(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := zf.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
