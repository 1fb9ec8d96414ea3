// ABOUTME: Thread-safe registry for built-in tool packs.
// ABOUTME: Manages pack registration, tool lookup, and capability-based filtering.

package packs

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
)

// ErrToolCollision indicates a tool name is already registered.
var ErrToolCollision = errors.New("tool name collision")

// Registry maintains the registered built-in packs and their tools.
type Registry struct {
	mu       sync.RWMutex
	builtins map[string]*builtinEntry // tool name -> entry
	logger   *slog.Logger
}

// NewRegistry creates a new Registry instance.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		builtins: make(map[string]*builtinEntry),
		logger:   logger,
	}
}

// RegisterBuiltinPack registers a pack of built-in tools that execute in-process.
// Returns error if any tool name collides with an existing tool; nothing from
// the pack is registered in that case.
func (r *Registry) RegisterBuiltinPack(pack *BuiltinPack) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(pack.Tools))
	for _, tool := range pack.Tools {
		name := tool.Definition.GetName()
		if name == "" {
			return fmt.Errorf("pack %s: tool with empty name", pack.ID)
		}
		if tool.Handler == nil {
			return fmt.Errorf("pack %s: tool %s has no handler", pack.ID, name)
		}
		if existing, exists := r.builtins[name]; exists {
			return fmt.Errorf("%w: tool '%s' already registered by pack '%s'", ErrToolCollision, name, existing.PackID)
		}
		if seen[name] {
			return fmt.Errorf("%w: tool '%s' appears twice in pack '%s'", ErrToolCollision, name, pack.ID)
		}
		seen[name] = true
	}

	for _, tool := range pack.Tools {
		r.builtins[tool.Definition.GetName()] = &builtinEntry{
			Tool:   tool,
			PackID: pack.ID,
		}
	}

	r.logger.Info("tool pack registered",
		"pack_id", pack.ID,
		"tools", len(pack.Tools),
		"total_tools", len(r.builtins),
	)
	return nil
}

// GetBuiltinTool returns the tool with the given name, or nil.
func (r *Registry) GetBuiltinTool(name string) *BuiltinTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if entry, ok := r.builtins[name]; ok {
		return entry.Tool
	}
	return nil
}

// BuiltinPackInfo is a registered pack as listed by GET /tools.
type BuiltinPackInfo struct {
	ID    string
	Tools []*BuiltinTool
}

// ListBuiltinPacks returns the registered packs ordered by ID, each with its
// tools ordered by name.
func (r *Registry) ListBuiltinPacks() []BuiltinPackInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	packTools := make(map[string][]*BuiltinTool)
	for _, entry := range r.builtins {
		packTools[entry.PackID] = append(packTools[entry.PackID], entry.Tool)
	}

	result := make([]BuiltinPackInfo, 0, len(packTools))
	for _, packID := range slices.Sorted(maps.Keys(packTools)) {
		tools := packTools[packID]
		slices.SortFunc(tools, func(a, b *BuiltinTool) int {
			return strings.Compare(a.Definition.GetName(), b.Definition.GetName())
		})
		result = append(result, BuiltinPackInfo{ID: packID, Tools: tools})
	}
	return result
}

// GetAllTools returns every registered tool definition ordered by name.
func (r *Registry) GetAllTools() []*ToolDefinition {
	return r.GetToolsForCapabilities(nil, true)
}

// GetToolsForCapabilities returns, ordered by name, the tools whose required
// capabilities are all in caps. Tools without requirements are always
// included. When all is true the capability filter is skipped.
func (r *Registry) GetToolsForCapabilities(caps []string, all bool) []*ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	capSet := make(map[string]struct{}, len(caps))
	for _, c := range caps {
		capSet[c] = struct{}{}
	}

	result := make([]*ToolDefinition, 0, len(r.builtins))
	for _, entry := range r.builtins {
		if all || HasAllCapabilities(entry.Tool.Definition.GetRequiredCapabilities(), capSet) {
			result = append(result, entry.Tool.Definition)
		}
	}
	slices.SortFunc(result, func(a, b *ToolDefinition) int { return strings.Compare(a.Name, b.Name) })
	return result
}

// HasAllCapabilities checks if the capability set contains all required capabilities.
func HasAllCapabilities(required []string, capSet map[string]struct{}) bool {
	for _, req := range required {
		if _, has := capSet[req]; !has {
			return false
		}
	}
	return true
}

// Close drops every registered tool. Called on gateway shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := len(r.builtins)
	r.builtins = make(map[string]*builtinEntry)
	r.logger.Info("registry closed", "builtins_cleared", count)
}
