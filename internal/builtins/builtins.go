// ABOUTME: Registration entry point and shared helpers for the built-in packs.
// ABOUTME: Decodes tool input, encodes results, and wires packs into a registry.

package builtins

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/2389/tool-gateway/internal/browser"
	"github.com/2389/tool-gateway/internal/fsops"
	"github.com/2389/tool-gateway/internal/packs"
	"github.com/2389/tool-gateway/internal/shell"
	"github.com/2389/tool-gateway/internal/sysinfo"
	"github.com/2389/tool-gateway/internal/toolerr"
)

// Capabilities a caller can be granted. Each pack requires exactly one.
const (
	CapFiles    = "files"
	CapTerminal = "terminal"
	CapBrowser  = "browser"
	CapSystem   = "system"
	CapUtility  = "utility"
)

// AllCapabilities lists every capability in pack order.
var AllCapabilities = []string{CapFiles, CapTerminal, CapBrowser, CapSystem, CapUtility}

// Deps carries the services the packs run on. A nil service skips its pack.
type Deps struct {
	FS      *fsops.FS
	Shell   *shell.Executor
	Browser *browser.Tools
	System  *sysinfo.Service

	ShellTimeout   time.Duration
	BrowserTimeout time.Duration
	MaxWait        time.Duration
}

// RegisterAll registers every pack whose service is present.
func RegisterAll(reg *packs.Registry, d Deps) error {
	var all []*packs.BuiltinPack
	if d.FS != nil {
		all = append(all, FilesPack(d.FS))
	}
	if d.Shell != nil {
		all = append(all, TerminalPack(d.Shell, d.ShellTimeout))
	}
	if d.Browser != nil {
		all = append(all, BrowserPack(d.Browser, d.BrowserTimeout))
	}
	if d.System != nil {
		all = append(all, SystemPack(d.System))
	}
	all = append(all, UtilityPack(d.MaxWait))

	for _, p := range all {
		if err := reg.RegisterBuiltinPack(p); err != nil {
			return fmt.Errorf("register %s: %w", p.ID, err)
		}
	}
	return nil
}

// decode unmarshals tool input into v. Unknown fields are ignored.
func decode(op string, input json.RawMessage, v any) error {
	if len(bytes.TrimSpace(input)) == 0 {
		input = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(input, v); err != nil {
		return &toolerr.Error{Kind: toolerr.KindInvalidInput, Op: op, Message: "invalid input: " + err.Error(), Err: err}
	}
	return nil
}

func encode(v any) (json.RawMessage, error) {
	return json.Marshal(v)
}

// timeoutSeconds converts a handler bound into a router timeout with slack
// so the handler's own timeout error wins.
func timeoutSeconds(d time.Duration, slack time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	return int32((d + slack + time.Second - 1) / time.Second)
}
