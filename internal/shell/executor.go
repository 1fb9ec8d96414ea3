// ABOUTME: Shell executor that runs guarded commands inside the workspace.
// ABOUTME: Non-zero exits are normal results; only guard blocks and timeouts are errors.

package shell

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/2389/tool-gateway/internal/guard"
	"github.com/2389/tool-gateway/internal/toolerr"
	"github.com/2389/tool-gateway/internal/workspace"
)

// DefaultTimeout bounds a command when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Minute

// Config configures an Executor.
type Config struct {
	Boundary *workspace.Boundary
	Guard    *guard.Guard
	Timeout  time.Duration
	Logger   *slog.Logger
}

// Result is the outcome of one command.
type Result struct {
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"returncode"`
	Blocked  bool          `json:"blocked,omitempty"`
	Pattern  string        `json:"pattern,omitempty"`
	Duration time.Duration `json:"-"`
}

// Executor runs shell commands with the workspace as the default cwd.
type Executor struct {
	boundary *workspace.Boundary
	guard    *guard.Guard
	timeout  time.Duration
	logger   *slog.Logger

	// newCommand builds the process for a command line; replaced in tests.
	newCommand func(ctx context.Context, command string) *exec.Cmd
}

// New creates an Executor.
func New(cfg Config) *Executor {
	if cfg.Guard == nil {
		cfg.Guard = guard.New()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		boundary:   cfg.Boundary,
		guard:      cfg.Guard,
		timeout:    cfg.Timeout,
		logger:     cfg.Logger.With("component", "shell"),
		newCommand: systemShell,
	}
}

func systemShell(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

// Run executes command with cwdRel (relative to the workspace root) as the
// working directory. A guard match returns a Result with the blocked exit
// code together with a policy_blocked error and never spawns a process.
func (e *Executor) Run(ctx context.Context, command, cwdRel string) (*Result, error) {
	const op = "execute_shell_command"
	if command == "" {
		return nil, toolerr.Missing(op, "command")
	}

	if v := e.guard.Classify(command); !v.Allowed {
		e.logger.Warn("blocked dangerous command", "pattern", v.Pattern)
		return &Result{
			Stderr:   "Blocked dangerous command: '" + v.Pattern + "' detected in input.",
			ExitCode: guard.BlockedExitCode,
			Blocked:  true,
			Pattern:  v.Pattern,
		}, toolerr.Blocked(op, v.Pattern, guard.BlockedExitCode)
	}

	dir, err := e.boundary.Resolve(cwdRel)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, toolerr.IO(op, err)
	}
	if !info.IsDir() {
		return nil, toolerr.Path(op, toolerr.CodeNotDirectory, "working directory is not a directory")
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := e.newCommand(runCtx, command)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	// Grandchildren holding the pipes open must not outlive the deadline.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return res, toolerr.Timeout(op, e.timeout, runErr)
		}
		if ctx.Err() != nil {
			return res, toolerr.From(op, ctx.Err())
		}
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return res, toolerr.IO(op, runErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}

	e.logger.Debug("command finished", "exit_code", res.ExitCode, "duration", res.Duration)
	return res, nil
}
