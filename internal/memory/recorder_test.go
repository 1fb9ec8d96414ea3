// ABOUTME: Tests for the recorder and transcript rendering.
// ABOUTME: Includes the read_file and mixed browser/shell recording scenarios.

package memory

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type jsonErr struct{ msg string }

func (e jsonErr) Error() string { return e.msg }
func (e jsonErr) JSON() string  { return `{"kind":"io_error","message":"` + e.msg + `"}` }

func TestRecordToolCall_ReadFileLandsInFiles(t *testing.T) {
	s := newTestStore(t)
	r := NewRecorder(s, nil)
	ctx := context.Background()

	err := r.RecordToolCall(ctx, "read_file", json.RawMessage(`{"path":"a.txt"}`), json.RawMessage(`"hi"`), nil)
	require.NoError(t, err)

	got, err := s.ByCategory(ctx, CategoryFiles)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "read_file", got[0].ToolName)
	assert.Equal(t, CategoryFiles, got[0].Category)
	assert.Equal(t, `"hi"`, got[0].ToolResult)
	assert.JSONEq(t, `{"path":"a.txt"}`, string(got[0].ToolArgs))
}

func TestRecordToolCall_StatsScenario(t *testing.T) {
	s := newTestStore(t)
	r := NewRecorder(s, nil)
	ctx := context.Background()

	for _, name := range []string{"browser_open_page", "browser_click", "browser_extract"} {
		require.NoError(t, r.RecordToolCall(ctx, name, nil, json.RawMessage(`"ok"`), nil))
	}
	require.NoError(t, r.RecordToolCall(ctx, "execute_shell_command", nil, json.RawMessage(`{}`), nil))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"browser": 3, "terminal": 1}, stats.Map())
}

func TestRecordToolCall_ErrorBody(t *testing.T) {
	s := newTestStore(t)
	r := NewRecorder(s, nil)
	ctx := context.Background()

	require.NoError(t, r.RecordToolCall(ctx, "read_file", json.RawMessage(`{"path":"x"}`), nil, jsonErr{"missing"}))
	require.NoError(t, r.RecordToolCall(ctx, "write_file", json.RawMessage(`not json`), nil, errors.New("plain")))

	all, err := s.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.JSONEq(t, `{"kind":"io_error","message":"missing"}`, all[0].ToolResult)
	assert.Contains(t, all[0].Content, "failed")
	assert.Equal(t, "plain", all[1].ToolResult)
	assert.Nil(t, all[1].ToolArgs, "invalid argument JSON is dropped")
}

func TestRecordToolCall_SurvivesCancelledContext(t *testing.T) {
	s := newTestStore(t)
	r := NewRecorder(s, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, r.RecordToolCall(ctx, "read_file", nil, json.RawMessage(`""`), nil))
	all, err := s.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecordTurn(t *testing.T) {
	s := newTestStore(t)
	r := NewRecorder(s, nil)
	ctx := context.Background()

	e, err := r.RecordTurn(ctx, KindUser, "hello")
	require.NoError(t, err)
	assert.Equal(t, KindUser, e.Kind)

	_, err = r.RecordTurn(ctx, KindTool, "nope")
	assert.Error(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestTranscript(t *testing.T) {
	s := newTestStore(t)
	r := NewRecorder(s, nil)
	ctx := context.Background()

	_, err := r.RecordTurn(ctx, KindUser, "read <b>a.txt</b> please")
	require.NoError(t, err)
	require.NoError(t, r.RecordToolCall(ctx, "read_file", json.RawMessage(`{"path":"a.txt"}`), json.RawMessage("\"```\""), nil))
	_, err = r.RecordTurn(ctx, KindAgent, "it says hi")
	require.NoError(t, err)

	all, err := s.All(ctx)
	require.NoError(t, err)

	md := RenderMarkdown(all)
	assert.True(t, strings.HasPrefix(md, "# Conversation transcript"))
	assert.Contains(t, md, "## Tool `read_file` [files]")
	assert.Contains(t, md, "````\n\"```\"\n````")
	assert.Less(t, strings.Index(md, "## User"), strings.Index(md, "## Agent"))

	html, err := RenderHTML(all)
	require.NoError(t, err)
	assert.Contains(t, html, "<h1>Conversation transcript</h1>")
	assert.NotContains(t, html, "<b>a.txt</b>", "raw HTML from entries must not pass through")
}

func TestTranscript_Empty(t *testing.T) {
	assert.Contains(t, RenderMarkdown(nil), "_No entries._")
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("agent")
	require.NoError(t, err)
	assert.Equal(t, KindAgent, k)

	_, err = ParseKind("tool")
	assert.Error(t, err)
}
