// ABOUTME: Source formatting through external formatters (black, prettier).
// ABOUTME: Formatters run with an argv inside the workspace, never through a shell.

package fsops

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/2389/tool-gateway/internal/toolerr"
)

// FormatResult reports the outcome of a formatter run.
type FormatResult struct {
	Success bool   `json:"success"`
	Stdout  string `json:"stdout"`
	Stderr  string `json:"stderr"`
}

// formatters maps a lower-cased file extension to the argv that formats a
// file at the given path.
var formatters = map[string]func(path string) []string{
	".py": func(p string) []string { return []string{"black", p, "--quiet"} },
	".js": func(p string) []string { return []string{"npx", "prettier", "--write", p} },
	".ts": func(p string) []string { return []string{"npx", "prettier", "--write", p} },
}

type commandRunner interface {
	Run(ctx context.Context, dir string, argv []string) (stdout, stderr string, exitCode int, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir string, argv []string) (string, string, int, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
	}
	return stdout.String(), stderr.String(), 0, err
}

// FormatCode formats the file at rel in place with the formatter registered
// for its extension. Unsupported extensions and missing formatters are
// reported as an unsuccessful result rather than an error.
func (f *FS) FormatCode(ctx context.Context, rel string) (*FormatResult, error) {
	const op = "format_code"
	abs, err := f.file(op, rel)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(abs))
	argv, ok := formatters[ext]
	if !ok {
		return &FormatResult{Stderr: "Unsupported file type: " + ext}, nil
	}

	stdout, stderr, code, err := f.runner.Run(ctx, f.boundary.Root(), argv(abs))
	if err != nil {
		if ctx.Err() != nil {
			return nil, toolerr.From(op, ctx.Err())
		}
		return &FormatResult{Stdout: stdout, Stderr: err.Error()}, nil
	}
	f.logger.Debug("formatted file", "path", rel, "exit_code", code)
	return &FormatResult{Success: code == 0, Stdout: stdout, Stderr: stderr}, nil
}
