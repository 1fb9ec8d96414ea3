// ABOUTME: Tests for Gateway wiring, lifecycle, and end-to-end tool calls over MCP
// ABOUTME: Calls flow through the real router and land in a real SQLite memory store

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/tool-gateway/internal/browser"
	"github.com/2389/tool-gateway/internal/config"
)

// testConfig creates a config rooted in temporary directories.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Workspace.Root = filepath.Join(dir, "workspace")
	cfg.Memory.Path = filepath.Join(dir, "memory.db")
	cfg.Tools.CallTimeout = 10 * time.Second
	cfg.Tools.ShellTimeout = 10 * time.Second
	cfg.Tools.MaxWait = time.Second
	cfg.Server.ShutdownTimeout = 5 * time.Second
	return cfg
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var errNoBrowser = errors.New("no browser in tests")

func noBrowser(context.Context, browser.Config) (browser.Session, error) {
	return nil, errNoBrowser
}

func newTestGateway(t *testing.T, mutate ...func(*config.Config)) *Gateway {
	t.Helper()
	cfg := testConfig(t)
	for _, m := range mutate {
		m(cfg)
	}
	gw, err := New(cfg, testLogger(), "test", WithBrowserLauncher(noBrowser))
	require.NoError(t, err)
	t.Cleanup(func() { _ = gw.Shutdown(context.Background()) })
	return gw
}

// mcpClient drives the MCP endpoint of a test server.
type mcpClient struct {
	t         *testing.T
	url       string
	sessionID string
	nextID    int
}

func newMCPClient(t *testing.T, baseURL string) *mcpClient {
	c := &mcpClient{t: t, url: baseURL + "/mcp"}
	resp := c.rpc("initialize", map[string]any{})
	require.Nil(t, resp.Error)
	return c
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *mcpClient) rpc(method string, params any) rpcResponse {
	c.t.Helper()
	c.nextID++
	body, err := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": c.nextID, "method": method, "params": params})
	require.NoError(c.t, err)

	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.sessionID != "" {
		req.Header.Set("Mcp-Session-Id", c.sessionID)
	}
	httpResp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer httpResp.Body.Close()
	require.Equal(c.t, http.StatusOK, httpResp.StatusCode)

	if sid := httpResp.Header.Get("Mcp-Session-Id"); sid != "" {
		c.sessionID = sid
	}
	var resp rpcResponse
	require.NoError(c.t, json.NewDecoder(httpResp.Body).Decode(&resp))
	return resp
}

type callResult struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	StructuredContent json.RawMessage `json:"structuredContent"`
	IsError           bool            `json:"isError"`
}

func (c *mcpClient) call(name string, args any) callResult {
	c.t.Helper()
	resp := c.rpc("tools/call", map[string]any{"name": name, "arguments": args})
	require.Nil(c.t, resp.Error, "tools/call %s", name)
	var result callResult
	require.NoError(c.t, json.Unmarshal(resp.Result, &result))
	return result
}

func TestGatewayNew(t *testing.T) {
	gw := newTestGateway(t)

	assert.NotNil(t, gw.packRegistry)
	assert.NotNil(t, gw.packRouter)
	assert.NotNil(t, gw.mcpServer)
	assert.NotNil(t, gw.browser)
	assert.Len(t, gw.Tools(), 40)
	assert.Equal(t, browser.StateUninitialized, gw.browser.State(), "browser launches lazily")
}

func TestGatewayNew_CapabilitySubset(t *testing.T) {
	gw := newTestGateway(t, func(c *config.Config) {
		c.Tools.Capabilities = []string{"files", "utility"}
	})

	assert.Nil(t, gw.browser, "browser manager is only built for the browser capability")
	for _, def := range gw.Tools() {
		caps := def.GetRequiredCapabilities()
		require.Len(t, caps, 1)
		assert.Contains(t, []string{"files", "utility"}, caps[0], def.Name)
	}
	assert.Len(t, gw.Tools(), 17)
}

func TestGatewayNew_UnknownCapability(t *testing.T) {
	cfg := testConfig(t)
	cfg.Tools.Capabilities = []string{"files", "teleport"}

	_, err := New(cfg, testLogger(), "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "teleport")
}

func TestGatewayNew_BadMemoryPath(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))
	cfg.Memory.Path = filepath.Join(blocker, "memory.db")

	_, err := New(cfg, testLogger(), "test")
	require.Error(t, err)
}

func TestEndToEnd_ToolCallsAreRecorded(t *testing.T) {
	gw := newTestGateway(t)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	c := newMCPClient(t, srv.URL)

	write := c.call("write_file", map[string]any{"path": "a.txt", "content": "hi"})
	require.False(t, write.IsError, write.Content)

	read := c.call("read_file", map[string]any{"path": "a.txt"})
	require.False(t, read.IsError)
	assert.JSONEq(t, `{"path":"a.txt","content":"hi"}`, string(read.StructuredContent))

	divide := c.call("math_operation", map[string]any{"operation": "divide", "a": 10, "b": 0})
	require.True(t, divide.IsError)
	assert.Contains(t, divide.Content[0].Text, "division by zero")

	blocked := c.call("execute_shell_command", map[string]any{"command": "sudo rm -rf /"})
	require.True(t, blocked.IsError)
	var blockedBody map[string]any
	require.NoError(t, json.Unmarshal([]byte(blocked.Content[0].Text), &blockedBody))
	assert.Equal(t, "policy_blocked", blockedBody["kind"])
	assert.EqualValues(t, 126, blockedBody["status"])

	escape := c.call("read_file", map[string]any{"path": "../outside.txt"})
	require.True(t, escape.IsError)
	assert.Contains(t, escape.Content[0].Text, "path_error")

	entries, err := gw.memory.All(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 5)

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.ToolName
		if i > 0 {
			assert.True(t, e.Timestamp.After(entries[i-1].Timestamp), "timestamps strictly increase")
		}
	}
	assert.Equal(t, []string{"write_file", "read_file", "math_operation", "execute_shell_command", "read_file"}, names)
	assert.Equal(t, "files", string(entries[0].Category))
	assert.Equal(t, "utility", string(entries[2].Category))
	assert.Equal(t, "terminal", string(entries[3].Category))
	assert.Contains(t, entries[2].ToolResult, "division by zero")

	stats, err := gw.memory.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"files": 3, "utility": 1, "terminal": 1}, stats.Map())
}

func TestEndToEnd_BrowserFailureIsAToolError(t *testing.T) {
	gw := newTestGateway(t)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	c := newMCPClient(t, srv.URL)
	res := c.call("browser_open_page", map[string]any{"url": "https://example.com"})
	require.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "session_error")

	// The gateway keeps serving after a failed launch.
	ok := c.call("math_operation", map[string]any{"operation": "add", "a": 1, "b": 2})
	require.False(t, ok.IsError)
	assert.JSONEq(t, `{"result":3}`, string(ok.StructuredContent))
}

func TestEndToEnd_SessionCapabilities(t *testing.T) {
	gw := newTestGateway(t)
	srv := httptest.NewServer(gw.Handler())
	defer srv.Close()

	c := &mcpClient{t: t, url: srv.URL + "/mcp?capabilities=utility"}
	require.Nil(t, c.rpc("initialize", map[string]any{}).Error)

	list := c.rpc("tools/list", nil)
	require.Nil(t, list.Error)
	var tools struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(list.Result, &tools))
	require.Len(t, tools.Tools, 3)

	resp := c.rpc("tools/call", map[string]any{"name": "read_file", "arguments": map[string]any{"path": "a.txt"}})
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "insufficient capabilities")
}

// freeAddr reserves a local port and releases it for the gateway to bind.
func freeAddr(t *testing.T) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return "127.0.0.1", ln.Addr().(*net.TCPAddr).Port
}

func TestGatewayRun(t *testing.T) {
	host, port := freeAddr(t)
	gw := newTestGateway(t, func(c *config.Config) {
		c.Server.Host = host
		c.Server.Port = port
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gw.Run(ctx) }()

	url := "http://" + gw.config.Server.Addr() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// The memory store is closed on shutdown.
	_, err := gw.memory.All(context.Background())
	assert.Error(t, err)
}

func TestGatewayRun_AddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	gw := newTestGateway(t, func(c *config.Config) {
		c.Server.Host = "127.0.0.1"
		c.Server.Port = ln.Addr().(*net.TCPAddr).Port
	})

	err = gw.Run(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "listening on HTTP address"), err.Error())
}
