// ABOUTME: Memory store interface and entry types for the conversation log
// ABOUTME: Entries are tool invocations or conversation turns, ordered by timestamp

package memory

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"
)

// ErrClosed is returned by store operations after Close.
var ErrClosed = errors.New("memory store closed")

// Kind distinguishes tool invocations from conversation turns.
type Kind string

// Entry kinds.
const (
	KindUser  Kind = "user"
	KindAgent Kind = "agent"
	KindTool  Kind = "tool"
)

// ParseKind validates a conversation role. Only user and agent turns can be
// appended directly; tool entries come from the recorder.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindUser, KindAgent:
		return Kind(s), nil
	default:
		return "", errors.New(`role must be "user" or "agent"`)
	}
}

// Entry is one immutable record in the log.
type Entry struct {
	ID         int64           `json:"id"`
	Kind       Kind            `json:"type"`
	Content    string          `json:"content"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolArgs   json.RawMessage `json:"tool_args,omitempty"`
	ToolResult string          `json:"tool_result,omitempty"`
	Category   Category        `json:"category,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// CategoryCount is one row of the statistics.
type CategoryCount struct {
	Category Category `json:"category"`
	Count    int      `json:"count"`
}

// Stats holds per-category tool counts sorted by descending count, then name.
type Stats []CategoryCount

// Map returns the statistics as a category to count mapping.
func (s Stats) Map() map[string]int {
	m := make(map[string]int, len(s))
	for _, c := range s {
		m[string(c.Category)] = c.Count
	}
	return m
}

// sortStats orders counts by descending count, then ascending category.
func sortStats(s Stats) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].Count != s[j].Count {
			return s[i].Count > s[j].Count
		}
		return s[i].Category < s[j].Category
	})
}

// Store is the append-only conversation log.
type Store interface {
	// Append writes e, assigning its ID, Timestamp and (for tool entries)
	// Category. Timestamps are strictly increasing within a store.
	Append(ctx context.Context, e *Entry) error

	// All returns the full log, oldest first.
	All(ctx context.Context) ([]Entry, error)

	// ByCategory returns the entries whose category equals c, oldest first.
	ByCategory(ctx context.Context, c Category) ([]Entry, error)

	// Stats counts tool entries per category.
	Stats(ctx context.Context) (Stats, error)

	// Clear deletes every entry.
	Clear(ctx context.Context) error

	Close() error
}
