// ABOUTME: Built-in tool types: definitions, handlers, and packs of tools.
// ABOUTME: Every gateway tool executes in-process through a ToolHandler.

package packs

import (
	"context"
	"encoding/json"
)

// ToolDefinition describes a tool in the catalog a caller discovers.
type ToolDefinition struct {
	Name                 string
	Description          string
	InputSchemaJSON      string
	OutputSchemaJSON     string
	RequiredCapabilities []string
	// TimeoutSeconds overrides the router's default bound when positive.
	TimeoutSeconds int32
}

// GetName returns the tool name; nil-safe.
func (d *ToolDefinition) GetName() string {
	if d == nil {
		return ""
	}
	return d.Name
}

// GetRequiredCapabilities returns the capabilities a caller needs; nil-safe.
func (d *ToolDefinition) GetRequiredCapabilities() []string {
	if d == nil {
		return nil
	}
	return d.RequiredCapabilities
}

// ToolHandler is a function that executes a built-in tool.
// It receives the caller's ID and the tool input as JSON.
// Returns the result as JSON or an error.
type ToolHandler func(ctx context.Context, callerID string, input json.RawMessage) (json.RawMessage, error)

// BuiltinTool represents a tool that executes in the gateway process.
type BuiltinTool struct {
	Definition *ToolDefinition
	Handler    ToolHandler
}

// BuiltinPack is a collection of built-in tools with a pack ID.
type BuiltinPack struct {
	ID    string
	Tools []*BuiltinTool
}

// builtinEntry stores a builtin tool with its pack ID for registry lookup.
type builtinEntry struct {
	Tool   *BuiltinTool
	PackID string
}
