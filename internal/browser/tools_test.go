// ABOUTME: Tests for browser page operations.
// ABOUTME: Pure helpers always run; page tests need a local Chrome and skip otherwise.

package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ysmood/gson"

	"github.com/2389/tool-gateway/internal/toolerr"
	"github.com/2389/tool-gateway/internal/workspace"
)

func TestRequestMatches(t *testing.T) {
	tests := []struct {
		method, resourceType, filter string
		want                         bool
	}{
		{"GET", "Document", "", true},
		{"GET", "Document", "get", true},
		{"POST", "XHR", "xhr", true},
		{"POST", "Fetch", "FETCH", true},
		{"GET", "Image", "post", false},
		{"GET", "Script", "stylesheet", false},
	}
	for _, tc := range tests {
		got := requestMatches(tc.method, tc.resourceType, tc.filter)
		assert.Equal(t, tc.want, got, "%s %s filter=%q", tc.method, tc.resourceType, tc.filter)
	}
}

func TestScrollState(t *testing.T) {
	s := newScrollState(1000)

	assert.Equal(t, 2, s.collect([]string{"one", "", "two", "one"}))
	assert.False(t, s.exhausted(0, 2))
	assert.False(t, s.exhausted(0, 0), "the first round never stops the run")

	assert.True(t, s.grew(1800))
	assert.Equal(t, 1, s.collect([]string{"one", "two", "three"}))
	assert.False(t, s.exhausted(1, 1))

	assert.False(t, s.grew(1800), "an unchanged height ends scrolling")
	assert.Equal(t, 0, s.collect([]string{"three", "two"}))
	assert.True(t, s.exhausted(2, 0), "a later round with nothing new ends scrolling")

	assert.Equal(t, []string{"one", "two", "three"}, s.results)
}

func TestFunctionLiteral(t *testing.T) {
	for _, js := range []string{
		"() => 1",
		"async () => fetch('/')",
		"function () { return document.title }",
		"x => x",
	} {
		assert.True(t, functionLiteral.MatchString(js), js)
	}
	for _, js := range []string{"document.title", "1 + 2", "(1 + 2)"} {
		assert.False(t, functionLiteral.MatchString(js), js)
	}
}

func TestSummarizeAXTree(t *testing.T) {
	role := func(s string) *proto.AccessibilityAXValue {
		return &proto.AccessibilityAXValue{Value: gson.New(s)}
	}
	nodes := []*proto.AccessibilityAXNode{
		{Role: role("RootWebArea"), Name: role("Home")},
		{Role: role("button"), Name: role("Go")},
		{Role: role("button")},
		{Ignored: true, Role: role("generic")},
		{},
		nil,
	}
	sum := summarizeAXTree(nodes)
	assert.Equal(t, 4, sum.TotalNodes)
	assert.Equal(t, map[string]int{"RootWebArea": 1, "button": 2, "unknown": 1}, sum.Roles)
	assert.Equal(t, AXNode{Role: "button", Name: "Go"}, sum.Nodes[1])
}

func TestFailWithin(t *testing.T) {
	tools := &Tools{cfg: Config{NavigationTimeout: 3 * time.Second}}

	assert.Nil(t, tools.fail("op", nil))

	err := tools.failWithin("browser_wait_for_element", 250*time.Millisecond, context.DeadlineExceeded)
	assert.Equal(t, toolerr.KindTimeout, toolerr.KindOf(err))
	assert.Contains(t, err.Error(), "250ms")

	own := toolerr.Missing("op", "url")
	assert.Same(t, own, tools.fail("op", own))
}

func TestValidationBeforeLaunch(t *testing.T) {
	launched := false
	mgr := NewManager(Config{Launch: func(context.Context, Config) (Session, error) {
		launched = true
		return &fakeSession{}, nil
	}})
	defer mgr.Close()
	b, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	tools := NewTools(mgr, b)
	ctx := context.Background()

	_, err = tools.Click(ctx, "http://example.com", "", "")
	assert.Equal(t, toolerr.KindInvalidInput, toolerr.KindOf(err))

	_, err = tools.HandleDialog(ctx, "http://example.com", "ignore", "")
	assert.Equal(t, toolerr.KindInvalidInput, toolerr.KindOf(err))

	_, err = tools.HandleDialog(ctx, "http://example.com", DialogPrompt, "")
	assert.Equal(t, toolerr.KindInvalidInput, toolerr.KindOf(err))

	_, err = tools.Screenshot(ctx, "http://example.com", "../escape.png", false)
	assert.Equal(t, toolerr.KindPath, toolerr.KindOf(err))

	_, err = tools.UploadFile(ctx, "http://example.com", "#f", "missing.txt")
	assert.Equal(t, toolerr.KindIO, toolerr.KindOf(err))

	_, err = tools.ExecuteJavaScript(ctx, "http://example.com", "  ")
	assert.Equal(t, toolerr.KindInvalidInput, toolerr.KindOf(err))

	_, err = tools.NavigateWithCookies(ctx, "http://example.com", []Cookie{{Value: "v"}})
	assert.Equal(t, toolerr.KindInvalidInput, toolerr.KindOf(err))

	assert.False(t, launched, "invalid input must not start a browser")
}

const testPage = `<!doctype html>
<html><head><title>Fixture</title></head>
<body>
<h1 id="title">Hello</h1>
<ul><li class="item">one</li><li class="item">two</li></ul>
<a id="link" href="/next">next</a>
<img src="/a.png">
<img src="/b.png" alt="b">
<label for="named">Name</label><input id="named"><input id="orphan">
<input id="file" type="file">
<button id="go" onclick="document.getElementById('title').textContent='Clicked'">go</button>
</body></html>`

func chromeTools(t *testing.T) (*Tools, *httptest.Server) {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests skipped in short mode")
	}
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no local Chrome/Chromium found")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, testPage)
	})
	mux.HandleFunc("/alert", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<html><body><p id="r"></p><script>document.getElementById('r').textContent = String(confirm('ok?'));</script></body></html>`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mgr := NewManager(Config{
		Headless:          true,
		Bin:               bin,
		NoSandbox:         os.Getuid() == 0,
		NavigationTimeout: 20 * time.Second,
		NetworkWindow:     500 * time.Millisecond,
		ScrollPause:       100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = mgr.Close() })

	b, err := workspace.New(t.TempDir())
	require.NoError(t, err)
	return NewTools(mgr, b), srv
}

func TestBrowserTools(t *testing.T) {
	tools, srv := chromeTools(t)
	ctx := context.Background()

	t.Run("open page", func(t *testing.T) {
		html, err := tools.OpenPage(ctx, srv.URL)
		require.NoError(t, err)
		assert.Contains(t, html, "<h1 id=\"title\">Hello</h1>")
	})

	t.Run("extract", func(t *testing.T) {
		first, err := tools.Extract(ctx, srv.URL, ".item", "", false)
		require.NoError(t, err)
		require.NotNil(t, first)
		assert.Equal(t, "one", *first.(*string))

		all, err := tools.Extract(ctx, srv.URL, "a", "href", true)
		require.NoError(t, err)
		hrefs := all.([]*string)
		require.Len(t, hrefs, 1)
		assert.Equal(t, "/next", *hrefs[0])

		none, err := tools.Extract(ctx, srv.URL, ".missing", "", false)
		require.NoError(t, err)
		assert.Nil(t, none)
	})

	t.Run("click", func(t *testing.T) {
		html, err := tools.Click(ctx, srv.URL, "#go", "")
		require.NoError(t, err)
		assert.Contains(t, html, "Clicked")
	})

	t.Run("type", func(t *testing.T) {
		html, err := tools.Type(ctx, TypeRequest{URL: srv.URL, Selector: "#named", Text: "gopher"})
		require.NoError(t, err)
		assert.NotEmpty(t, html)
	})

	t.Run("javascript", func(t *testing.T) {
		out, err := tools.ExecuteJavaScript(ctx, srv.URL, "document.title")
		require.NoError(t, err)
		assert.JSONEq(t, `"Fixture"`, string(out))

		out, err = tools.ExecuteJavaScript(ctx, srv.URL, "() => [1, 2].map(x => x * 2)")
		require.NoError(t, err)
		assert.JSONEq(t, `[2,4]`, string(out))
	})

	t.Run("wait for element timeout", func(t *testing.T) {
		_, err := tools.WaitForElement(ctx, srv.URL, "#never", 200*time.Millisecond)
		assert.Equal(t, toolerr.KindTimeout, toolerr.KindOf(err))
	})

	t.Run("screenshot", func(t *testing.T) {
		res, err := tools.Screenshot(ctx, srv.URL, "shots/page.png", false)
		require.NoError(t, err)
		assert.Equal(t, "shots/page.png", res.Path)
		data, err := os.ReadFile(filepath.Join(tools.boundary.Root(), "shots", "page.png"))
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(string(data), "\x89PNG"))
	})

	t.Run("page info", func(t *testing.T) {
		info, err := tools.PageInfo(ctx, srv.URL)
		require.NoError(t, err)
		assert.Equal(t, "Fixture", info.Title)
		assert.Positive(t, info.Viewport.Width)
		assert.Contains(t, info.TextContent, "Hello")
		assert.NotEmpty(t, info.Screenshot)
		_, err = json.Marshal(info)
		assert.NoError(t, err)
	})

	t.Run("accessibility", func(t *testing.T) {
		report, err := tools.AccessibilityReport(ctx, srv.URL)
		require.NoError(t, err)
		assert.Contains(t, report.Issues, "Image missing alt text")
		assert.Contains(t, report.Issues, "Input with id 'orphan' missing label")
		assert.NotContains(t, report.Issues, "Input with id 'named' missing label")
		assert.Equal(t, len(report.Issues), report.TotalIssues)
		assert.Positive(t, report.Snapshot.TotalNodes)
	})

	t.Run("compare", func(t *testing.T) {
		cmp, err := tools.ComparePages(ctx, srv.URL, srv.URL+"/?x=1", "#title")
		require.NoError(t, err)
		assert.True(t, cmp.Identical)
		require.NotNil(t, cmp.LengthDiff)
		assert.Zero(t, *cmp.LengthDiff)
	})

	t.Run("dialog", func(t *testing.T) {
		html, err := tools.HandleDialog(ctx, srv.URL+"/alert", DialogDismiss, "")
		require.NoError(t, err)
		assert.Contains(t, html, "false")
	})

	t.Run("network", func(t *testing.T) {
		reqs, err := tools.NetworkRequests(ctx, srv.URL, "GET")
		require.NoError(t, err)
		require.NotEmpty(t, reqs)
		assert.Equal(t, "GET", reqs[0].Method)
	})

	t.Run("upload", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(tools.boundary.Root(), "up.txt"), []byte("x"), 0o644))
		_, err := tools.UploadFile(ctx, srv.URL, "#file", "up.txt")
		require.NoError(t, err)
	})

	assert.EqualValues(t, 1, tools.mgr.Launches(), "every operation shares one browser")
}
