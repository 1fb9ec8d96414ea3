// ABOUTME: Routes tool calls to built-in handlers and records every invocation.
// ABOUTME: Handler errors and panics become structured tool errors, never crashes.

package packs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/2389/tool-gateway/internal/toolerr"
)

// ErrToolNotFound indicates the requested tool is not registered.
var ErrToolNotFound = errors.New("tool not found")

// DefaultTimeout is the default timeout for tool execution.
const DefaultTimeout = 60 * time.Second

// CallRecorder persists completed tool invocations.
type CallRecorder interface {
	RecordToolCall(ctx context.Context, name string, args, result json.RawMessage, callErr error) error
}

// ToolResponse is the outcome of one routed call. Exactly one of Output and
// Error is set.
type ToolResponse struct {
	RequestID string
	Output    json.RawMessage
	Error     *toolerr.Error
}

// Router routes tool calls to the registered built-in handlers.
type Router struct {
	registry *Registry
	logger   *slog.Logger
	timeout  time.Duration
	recorder CallRecorder
}

// RouterConfig contains configuration options for the Router.
type RouterConfig struct {
	Registry *Registry
	Logger   *slog.Logger
	Timeout  time.Duration
	Recorder CallRecorder
}

// NewRouter creates a new Router with the given configuration.
func NewRouter(cfg RouterConfig) *Router {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		registry: cfg.Registry,
		logger:   logger,
		timeout:  timeout,
		recorder: cfg.Recorder,
	}
}

// RouteToolCall runs the named tool with the given JSON input. It returns
// ErrToolNotFound for unknown tools; every other failure, including a
// panicking handler, comes back as a ToolResponse carrying a structured error.
func (r *Router) RouteToolCall(ctx context.Context, toolName string, input json.RawMessage, requestID, callerID string) (*ToolResponse, error) {
	builtin := r.registry.GetBuiltinTool(toolName)
	if builtin == nil {
		r.logger.Debug("tool not found in registry",
			"tool_name", toolName,
			"request_id", requestID,
		)
		return nil, ErrToolNotFound
	}
	if len(input) == 0 || string(input) == "null" {
		input = json.RawMessage(`{}`)
	}

	timeout := r.timeout
	if builtin.Definition.TimeoutSeconds > 0 {
		timeout = time.Duration(builtin.Definition.TimeoutSeconds) * time.Second
	}

	r.logger.Info("→ dispatching to builtin",
		"tool_name", toolName,
		"request_id", requestID,
		"caller_id", callerID,
	)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := r.invoke(callCtx, builtin, toolName, callerID, input)
	resp := &ToolResponse{RequestID: requestID}

	if err != nil {
		var handlerErr *toolerr.Error
		routerDeadline := errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil
		te := toolerr.From(toolName, err)
		if routerDeadline && !(errors.As(err, &handlerErr) && handlerErr != nil) {
			te = toolerr.Timeout(toolName, timeout, err)
		}
		if te == nil {
			te = toolerr.New(toolerr.KindInternal, toolName, "tool failed without an error value")
		}
		resp.Error = te
		r.logger.Warn("builtin tool error",
			"tool_name", toolName,
			"request_id", requestID,
			"kind", te.Kind,
			"error", te,
			"duration", time.Since(start),
		)
	} else {
		if len(result) == 0 {
			result = json.RawMessage(`null`)
		}
		resp.Output = result
		r.logger.Info("← builtin responded",
			"tool_name", toolName,
			"request_id", requestID,
			"duration", time.Since(start),
		)
	}

	if r.recorder != nil {
		var callErr error
		if resp.Error != nil {
			callErr = resp.Error
		}
		if recErr := r.recorder.RecordToolCall(ctx, toolName, input, resp.Output, callErr); recErr != nil {
			r.logger.Error("failed to record tool call",
				"tool_name", toolName,
				"request_id", requestID,
				"error", recErr,
			)
		}
	}

	return resp, nil
}

// invoke calls the handler, converting a panic into an internal error.
func (r *Router) invoke(ctx context.Context, tool *BuiltinTool, toolName, callerID string, input json.RawMessage) (out json.RawMessage, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("builtin tool panicked",
				"tool_name", toolName,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			out = nil
			err = toolerr.New(toolerr.KindInternal, toolName, fmt.Sprintf("tool panicked: %v", p))
		}
	}()
	return tool.Handler(ctx, callerID, input)
}

// GetToolDefinition returns the tool definition for a given tool name.
// Returns nil if the tool is not found.
func (r *Router) GetToolDefinition(toolName string) *ToolDefinition {
	if builtin := r.registry.GetBuiltinTool(toolName); builtin != nil {
		return builtin.Definition
	}
	return nil
}
