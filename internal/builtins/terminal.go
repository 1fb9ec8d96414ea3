// ABOUTME: Terminal pack: guarded shell command execution in the workspace.
// ABOUTME: Requires the "terminal" capability.

package builtins

import (
	"context"
	"encoding/json"
	"time"

	"github.com/2389/tool-gateway/internal/packs"
	"github.com/2389/tool-gateway/internal/shell"
)

// TerminalPack creates the terminal pack. timeout is the executor's command
// bound and sets the router timeout for the tool.
func TerminalPack(exec *shell.Executor, timeout time.Duration) *packs.BuiltinPack {
	if timeout <= 0 {
		timeout = shell.DefaultTimeout
	}
	t := &terminalHandlers{exec: exec}
	return &packs.BuiltinPack{
		ID: "builtin:terminal",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:                 "execute_shell_command",
					Description:          "Run a shell command in the workspace and capture its output. Destructive commands are blocked.",
					InputSchemaJSON:      `{"type":"object","properties":{"command":{"type":"string"},"cwd":{"type":"string","description":"working directory relative to the workspace"}},"required":["command"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"stdout":{"type":"string"},"stderr":{"type":"string"},"returncode":{"type":"integer"}},"required":["stdout","stderr","returncode"]}`,
					RequiredCapabilities: []string{CapTerminal},
					TimeoutSeconds:       timeoutSeconds(timeout, 10*time.Second),
				},
				Handler: t.Execute,
			},
		},
	}
}

type terminalHandlers struct {
	exec *shell.Executor
}

type executeInput struct {
	Command string `json:"command"`
	Cwd     string `json:"cwd"`
}

// Execute runs the command. A blocked command returns the guard's error, whose
// body carries the reserved exit status.
func (t *terminalHandlers) Execute(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in executeInput
	if err := decode("execute_shell_command", input, &in); err != nil {
		return nil, err
	}
	res, err := t.exec.Run(ctx, in.Command, in.Cwd)
	if err != nil {
		return nil, err
	}
	return encode(res)
}
