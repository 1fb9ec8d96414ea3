// ABOUTME: Tests for the SQLite memory store.
// ABOUTME: Covers ordering, category filtering, statistics, clearing, and reopening.

package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func appendTool(t *testing.T, s Store, name string) *Entry {
	t.Helper()
	e := &Entry{Kind: KindTool, ToolName: name, Content: name, ToolArgs: json.RawMessage(`{}`)}
	require.NoError(t, s.Append(context.Background(), e))
	return e
}

func TestAppend_AssignsFields(t *testing.T) {
	s := newTestStore(t)

	e := appendTool(t, s, "read_file")
	assert.Positive(t, e.ID)
	assert.Equal(t, CategoryFiles, e.Category)
	assert.False(t, e.Timestamp.IsZero())

	turn := &Entry{Kind: KindUser, Content: "hello", Category: CategoryBrowser}
	require.NoError(t, s.Append(context.Background(), turn))
	assert.Empty(t, turn.Category, "conversation turns never carry a category")
}

func TestAppend_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.Append(ctx, &Entry{Content: "no kind"}))
	assert.Error(t, s.Append(ctx, &Entry{Kind: KindTool}))
	assert.Error(t, s.Append(ctx, &Entry{Kind: KindTool, ToolName: "x", ToolArgs: json.RawMessage(`{bad`)}))
}

func TestAll_OrderMatchesInsertion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 50; i++ {
		e := &Entry{Kind: KindAgent, Content: fmt.Sprintf("turn %d", i)}
		require.NoError(t, s.Append(ctx, e))
		ids = append(ids, e.ID)
	}

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 50)
	for i := range all {
		assert.Equal(t, ids[i], all[i].ID)
		if i > 0 {
			assert.True(t, all[i].Timestamp.After(all[i-1].Timestamp), "timestamps must strictly increase")
		}
	}
}

func TestAppend_ConcurrentWritersKeepOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const writers, perWriter = 8, 25
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				e := &Entry{Kind: KindTool, ToolName: "browser_click", Content: fmt.Sprintf("%d-%d", w, i)}
				assert.NoError(t, s.Append(ctx, e))
			}
		}(w)
	}
	wg.Wait()

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, writers*perWriter)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i].Timestamp.After(all[i-1].Timestamp))
		assert.Greater(t, all[i].ID, all[i-1].ID)
	}
}

func TestByCategory_IsSubsequenceOfAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"read_file", "browser_click", "write_file", "math_operation", "list_dir"} {
		appendTool(t, s, name)
		require.NoError(t, s.Append(ctx, &Entry{Kind: KindAgent, Content: "between"}))
	}

	all, err := s.All(ctx)
	require.NoError(t, err)
	for _, c := range Categories {
		got, err := s.ByCategory(ctx, c)
		require.NoError(t, err)

		var want []Entry
		for _, e := range all {
			if e.Category == c {
				want = append(want, e)
			}
		}
		if want == nil {
			want = []Entry{}
		}
		assert.Equal(t, want, got, c)
	}
}

func TestStats_ToolsOnlySortedByCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		appendTool(t, s, fmt.Sprintf("browser_step_%d", i))
	}
	appendTool(t, s, "execute_shell_command")
	require.NoError(t, s.Append(ctx, &Entry{Kind: KindUser, Content: "not counted"}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"browser": 3, "terminal": 1}, stats.Map())
	require.Len(t, stats, 2)
	assert.Equal(t, CategoryBrowser, stats[0].Category)
	assert.Equal(t, CategoryTerminal, stats[1].Category)
}

func TestStats_TiesBreakByName(t *testing.T) {
	s := newTestStore(t)
	appendTool(t, s, "math_operation")
	appendTool(t, s, "read_file")

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{{CategoryFiles, 1}, {CategoryUtility, 1}}, stats)
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	appendTool(t, s, "read_file")
	require.NoError(t, s.Append(ctx, &Entry{Kind: KindUser, Content: "hi"}))

	require.NoError(t, s.Clear(ctx))

	all, err := s.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats.Map())
}

func TestReopen_TimestampsStayMonotonic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.db")
	ctx := context.Background()

	s1, err := NewSQLiteStore(path)
	require.NoError(t, err)
	first := appendTool(t, s1, "read_file")
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()
	second := appendTool(t, s2, "write_file")
	assert.True(t, second.Timestamp.After(first.Timestamp))

	all, err := s2.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "read_file", all[0].ToolName)
	assert.JSONEq(t, `{}`, string(all[0].ToolArgs))
}

func TestAppend_AfterClose(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	err := s.Append(context.Background(), &Entry{Kind: KindUser, Content: "late"})
	assert.True(t, errors.Is(err, ErrClosed))
}
