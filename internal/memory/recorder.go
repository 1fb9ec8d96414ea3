// ABOUTME: Recorder that turns tool invocations and conversation turns into log entries.
// ABOUTME: Hooked into the tool router so every call is persisted after it completes.

package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// Recorder appends tool invocations and conversation turns to a Store.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

// NewRecorder creates a Recorder over store.
func NewRecorder(store Store, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: store, logger: logger.With("component", "recorder")}
}

// RecordToolCall persists one completed tool invocation. The result is the
// JSON the caller received; callErr, when set, replaces it with the error
// text.
func (r *Recorder) RecordToolCall(ctx context.Context, name string, args, result json.RawMessage, callErr error) error {
	e := &Entry{
		Kind:     KindTool,
		ToolName: name,
	}
	if len(args) > 0 && json.Valid(args) {
		e.ToolArgs = args
	}

	if callErr != nil {
		body := callErr.Error()
		var je interface{ JSON() string }
		if errors.As(callErr, &je) {
			body = je.JSON()
		}
		e.Content = fmt.Sprintf("%s failed: %s", name, callErr.Error())
		e.ToolResult = body
	} else {
		e.Content = fmt.Sprintf("%s succeeded", name)
		e.ToolResult = string(result)
	}

	// Persist even if the caller has gone away; the call already happened.
	if err := r.store.Append(context.WithoutCancel(ctx), e); err != nil {
		return fmt.Errorf("recording %s: %w", name, err)
	}
	r.logger.Debug("recorded tool call", "tool", name, "category", e.Category, "id", e.ID)
	return nil
}

// RecordTurn appends a user or agent conversation turn.
func (r *Recorder) RecordTurn(ctx context.Context, role Kind, content string) (*Entry, error) {
	if role != KindUser && role != KindAgent {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	e := &Entry{Kind: role, Content: content}
	if err := r.store.Append(ctx, e); err != nil {
		return nil, fmt.Errorf("recording %s turn: %w", role, err)
	}
	return e, nil
}
