// ABOUTME: Process listing via go-ps and guarded process termination.
// ABOUTME: Killing pid 1 (or lower) and the gateway itself is always refused.

package sysinfo

import (
	"errors"
	"fmt"
	"os"
	"sort"

	ps "github.com/mitchellh/go-ps"

	"github.com/2389/tool-gateway/internal/toolerr"
)

// Process is one entry of the process table.
type Process struct {
	PID  int    `json:"pid"`
	PPID int    `json:"ppid"`
	Name string `json:"name"`
}

// Processes returns the process table ordered by pid.
func (s *Service) Processes() ([]Process, error) {
	procs, err := ps.Processes()
	if err != nil {
		return nil, toolerr.From("list_processes", err)
	}
	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		out = append(out, Process{PID: p.Pid(), PPID: p.PPid(), Name: p.Executable()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out, nil
}

// Kill sends SIGKILL to pid.
func (s *Service) Kill(pid int) error {
	const op = "kill_process"
	if pid <= 1 {
		return &toolerr.Error{Kind: toolerr.KindPolicyBlocked, Op: op, Field: "pid", Message: fmt.Sprintf("refusing to kill pid %d", pid)}
	}
	if pid == s.selfPID {
		return &toolerr.Error{Kind: toolerr.KindPolicyBlocked, Op: op, Field: "pid", Message: "refusing to kill the gateway process"}
	}

	proc, err := ps.FindProcess(pid)
	if err != nil {
		return toolerr.From(op, err)
	}
	if proc == nil {
		return &toolerr.Error{Kind: toolerr.KindIO, Op: op, Code: toolerr.CodeNotFound, Message: fmt.Sprintf("no process with pid %d", pid)}
	}

	p, err := os.FindProcess(pid)
	if err != nil {
		return toolerr.From(op, err)
	}
	if err := p.Kill(); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return &toolerr.Error{Kind: toolerr.KindIO, Op: op, Code: toolerr.CodeNotFound, Message: fmt.Sprintf("no process with pid %d", pid), Err: err}
		}
		return toolerr.IO(op, err)
	}
	s.logger.Warn("killed process", "pid", pid, "name", proc.Executable())
	return nil
}
