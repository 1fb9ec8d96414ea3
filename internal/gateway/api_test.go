// ABOUTME: Tests for the HTTP API handlers: index, health, tool catalog, and memory endpoints.
// ABOUTME: Verifies response shapes, category validation, transcripts, and store failures.

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tool-gateway/internal/config"
	"github.com/2389/tool-gateway/internal/memory"
)

func doRequest(t *testing.T, gw *Gateway, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)
	return rec
}

// seedMemory records a short conversation with tool calls in two categories.
func seedMemory(t *testing.T, gw *Gateway) {
	t.Helper()
	ctx := context.Background()
	rec := gw.Recorder()

	_, err := rec.RecordTurn(ctx, memory.KindUser, "list my files")
	require.NoError(t, err)
	require.NoError(t, rec.RecordToolCall(ctx, "list_dir", json.RawMessage(`{"path":"."}`), json.RawMessage(`{"path":".","entries":[]}`), nil))
	require.NoError(t, rec.RecordToolCall(ctx, "read_file", json.RawMessage(`{"path":"a.txt"}`), json.RawMessage(`{"path":"a.txt","content":"hi"}`), nil))
	require.NoError(t, rec.RecordToolCall(ctx, "math_operation", json.RawMessage(`{"operation":"add","a":1,"b":2}`), json.RawMessage(`{"result":3}`), nil))
	_, err = rec.RecordTurn(ctx, memory.KindAgent, "You have one file.")
	require.NoError(t, err)
}

func TestHandleIndex(t *testing.T) {
	gw := newTestGateway(t)
	rec := doRequest(t, gw, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Endpoints  map[string]string `json:"endpoints"`
		Categories []string          `json:"available_categories"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "/mcp", body.Endpoints["mcp"])
	assert.Equal(t, "/memory/stats", body.Endpoints["tool_stats"])
	assert.Equal(t, []string{"files", "terminal", "browser", "system", "utility", "other"}, body.Categories)

	// Only the exact root is the index.
	assert.Equal(t, http.StatusNotFound, doRequest(t, gw, http.MethodGet, "/nope", "").Code)
}

func TestHandleHealth(t *testing.T) {
	gw := newTestGateway(t)
	rec := doRequest(t, gw, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "test", body.Version)
	assert.Equal(t, "uninitialized", body.Browser)
	assert.Equal(t, 40, body.Tools)
	assert.Equal(t, gw.boundary.Root(), body.Workspace)
}

func TestHandleHealth_MemoryDown(t *testing.T) {
	gw := newTestGateway(t)
	require.NoError(t, gw.memory.Close())

	rec := doRequest(t, gw, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
}

func TestHandleListTools(t *testing.T) {
	gw := newTestGateway(t, func(c *config.Config) { c.Tools.Capabilities = []string{"files", "utility"} })
	rec := doRequest(t, gw, http.MethodGet, "/tools", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tools []ToolInfoResponse `json:"tools"`
		Count int                `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, len(body.Tools), body.Count)

	byName := make(map[string]ToolInfoResponse)
	for _, tool := range body.Tools {
		byName[tool.Name] = tool
	}
	require.Contains(t, byName, "read_file")
	assert.Equal(t, "builtin:files", byName["read_file"].Pack)
	assert.True(t, byName["read_file"].Enabled)
	assert.Equal(t, []string{"utility"}, byName["math_operation"].Capabilities)
	assert.NotContains(t, byName, "browser_open_page", "disabled packs are not registered")
}

func TestHandleMemory(t *testing.T) {
	gw := newTestGateway(t)

	t.Run("empty log is an empty list", func(t *testing.T) {
		rec := doRequest(t, gw, http.MethodGet, "/memory", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"memory":[]}`, rec.Body.String())
	})

	seedMemory(t, gw)

	t.Run("full log in order", func(t *testing.T) {
		rec := doRequest(t, gw, http.MethodGet, "/memory", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body MemoryResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Len(t, body.Memory, 5)
		assert.Equal(t, memory.KindUser, body.Memory[0].Kind)
		assert.Equal(t, "list_dir", body.Memory[1].ToolName)
		assert.Equal(t, memory.KindAgent, body.Memory[4].Kind)
	})

	t.Run("by category", func(t *testing.T) {
		rec := doRequest(t, gw, http.MethodGet, "/memory/category/files", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body MemoryResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.Len(t, body.Memory, 2)
		for _, e := range body.Memory {
			assert.Equal(t, memory.CategoryFiles, e.Category)
		}
	})

	t.Run("empty category", func(t *testing.T) {
		rec := doRequest(t, gw, http.MethodGet, "/memory/category/browser", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"memory":[]}`, rec.Body.String())
	})

	t.Run("invalid category", func(t *testing.T) {
		rec := doRequest(t, gw, http.MethodGet, "/memory/category/networking", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var body map[string]string
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Contains(t, body["error"], "invalid category")
	})

	t.Run("stats", func(t *testing.T) {
		rec := doRequest(t, gw, http.MethodGet, "/memory/stats", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"stats":{"files":2,"utility":1}}`, rec.Body.String())
	})
}

func TestHandleTranscript(t *testing.T) {
	gw := newTestGateway(t)
	seedMemory(t, gw)

	t.Run("markdown by default", func(t *testing.T) {
		rec := doRequest(t, gw, http.MethodGet, "/memory/transcript", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/markdown")
		assert.Contains(t, rec.Body.String(), "# Conversation transcript")
		assert.Contains(t, rec.Body.String(), "list my files")
		assert.Contains(t, rec.Body.String(), "`read_file`")
	})

	t.Run("html", func(t *testing.T) {
		rec := doRequest(t, gw, http.MethodGet, "/memory/transcript?format=html", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), "<h1>Conversation transcript</h1>")
	})

	t.Run("unknown format", func(t *testing.T) {
		rec := doRequest(t, gw, http.MethodGet, "/memory/transcript?format=pdf", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleClearMemory(t *testing.T) {
	gw := newTestGateway(t)
	seedMemory(t, gw)

	rec := doRequest(t, gw, http.MethodDelete, "/memory/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Memory cleared successfully","success":true}`, rec.Body.String())

	rec = doRequest(t, gw, http.MethodGet, "/memory", "")
	assert.JSONEq(t, `{"memory":[]}`, rec.Body.String())

	rec = doRequest(t, gw, http.MethodGet, "/memory/stats", "")
	assert.JSONEq(t, `{"stats":{}}`, rec.Body.String())

	// Wrong method on a memory route.
	assert.Equal(t, http.StatusMethodNotAllowed, doRequest(t, gw, http.MethodGet, "/memory/clear", "").Code)
}

func TestHandleAppendTurn(t *testing.T) {
	gw := newTestGateway(t)

	rec := doRequest(t, gw, http.MethodPost, "/memory/turns", `{"role":"user","content":"hello"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var entry memory.Entry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entry))
	assert.Equal(t, memory.KindUser, entry.Kind)
	assert.Equal(t, "hello", entry.Content)
	assert.NotZero(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())

	tests := []struct {
		name string
		body string
	}{
		{"invalid JSON", `{"role":`},
		{"missing role", `{"content":"x"}`},
		{"missing content", `{"role":"agent"}`},
		{"tool role", `{"role":"tool","content":"x"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, gw, http.MethodPost, "/memory/turns", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}

	entries, err := gw.memory.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "rejected turns are not stored")
}

func TestMemoryEndpoints_StoreUnavailable(t *testing.T) {
	gw := newTestGateway(t)
	require.NoError(t, gw.memory.Close())

	for _, tc := range []struct{ method, target, body string }{
		{http.MethodGet, "/memory", ""},
		{http.MethodGet, "/memory/category/files", ""},
		{http.MethodGet, "/memory/stats", ""},
		{http.MethodGet, "/memory/transcript", ""},
		{http.MethodDelete, "/memory/clear", ""},
		{http.MethodPost, "/memory/turns", `{"role":"user","content":"x"}`},
	} {
		rec := doRequest(t, gw, tc.method, tc.target, tc.body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, "%s %s", tc.method, tc.target)
	}
}
