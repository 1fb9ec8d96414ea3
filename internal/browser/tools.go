// ABOUTME: Page-level browser operations run against the shared session.
// ABOUTME: Each call opens a fresh page, navigates, acts, and closes the page.

package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/2389/tool-gateway/internal/toolerr"
	"github.com/2389/tool-gateway/internal/workspace"
)

// DefaultScreenshotPath is used when a screenshot request names no file.
const DefaultScreenshotPath = "screenshot.png"

// DefaultMaxScrolls bounds ScrollAndExtract when the caller gives no limit.
const DefaultMaxScrolls = 5

// Tools runs browser operations on pages from a Manager.
type Tools struct {
	mgr      *Manager
	boundary *workspace.Boundary
	cfg      Config
}

// NewTools binds browser operations to a manager and the workspace used for
// screenshot and upload paths.
func NewTools(mgr *Manager, boundary *workspace.Boundary) *Tools {
	return &Tools{mgr: mgr, boundary: boundary, cfg: mgr.Config()}
}

// OpenPage returns the HTML of url after it loads.
func (t *Tools) OpenPage(ctx context.Context, url string) (string, error) {
	const op = "browser_open_page"
	var html string
	err := t.mgr.WithPage(ctx, op, func(page *rod.Page) error {
		if err := t.navigate(ctx, page, op, url); err != nil {
			return err
		}
		var err error
		html, err = t.content(ctx, page, op)
		return err
	})
	return html, err
}

// ScreenshotResult describes a saved screenshot.
type ScreenshotResult struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

// Screenshot captures url as PNG and saves it inside the workspace.
func (t *Tools) Screenshot(ctx context.Context, url, rel string, fullPage bool) (*ScreenshotResult, error) {
	const op = "browser_screenshot"
	if rel == "" {
		rel = DefaultScreenshotPath
	}
	dst, err := t.boundary.Resolve(rel)
	if err != nil {
		return nil, err
	}

	var img []byte
	err = t.mgr.WithPage(ctx, op, func(page *rod.Page) error {
		if err := t.navigate(ctx, page, op, url); err != nil {
			return err
		}
		p, cancel := t.bounded(ctx, page)
		defer cancel()
		var err error
		img, err = p.Screenshot(fullPage, nil)
		return t.fail(op, err)
	})
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, toolerr.IO(op, err)
	}
	if err := os.WriteFile(dst, img, 0o644); err != nil {
		return nil, toolerr.IO(op, err)
	}
	return &ScreenshotResult{Path: t.boundary.Rel(dst), Bytes: len(img)}, nil
}

// Click clicks selector and returns the resulting HTML. When waitFor is set
// the call also waits for that selector to appear.
func (t *Tools) Click(ctx context.Context, url, selector, waitFor string) (string, error) {
	const op = "browser_click"
	if selector == "" {
		return "", toolerr.Missing(op, "selector")
	}
	var html string
	err := t.mgr.WithPage(ctx, op, func(page *rod.Page) error {
		if err := t.navigate(ctx, page, op, url); err != nil {
			return err
		}
		if err := t.click(ctx, page, op, selector); err != nil {
			return err
		}
		if err := t.waitFor(ctx, page, op, waitFor); err != nil {
			return err
		}
		var err error
		html, err = t.content(ctx, page, op)
		return err
	})
	return html, err
}

// TypeRequest fills one field and optionally submits.
type TypeRequest struct {
	URL            string
	Selector       string
	Text           string
	SubmitSelector string
	WaitFor        string
}

// Type replaces the value of a field, optionally clicks a submit control, and
// returns the resulting HTML.
func (t *Tools) Type(ctx context.Context, r TypeRequest) (string, error) {
	const op = "browser_type"
	if r.Selector == "" {
		return "", toolerr.Missing(op, "selector")
	}
	return t.fillAndSubmit(ctx, op, r.URL, []formField{{r.Selector, r.Text}}, r.SubmitSelector, r.WaitFor)
}

// FillForm fills every selector in fields, in selector order, then optionally
// submits and waits.
func (t *Tools) FillForm(ctx context.Context, url string, fields map[string]string, submitSelector, waitFor string) (string, error) {
	const op = "browser_fill_form"
	if len(fields) == 0 {
		return "", toolerr.Missing(op, "form_data")
	}
	ordered := make([]formField, 0, len(fields))
	for sel, val := range fields {
		ordered = append(ordered, formField{sel, val})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].selector < ordered[j].selector })
	return t.fillAndSubmit(ctx, op, url, ordered, submitSelector, waitFor)
}

type formField struct {
	selector string
	value    string
}

func (t *Tools) fillAndSubmit(ctx context.Context, op, url string, fields []formField, submitSelector, waitFor string) (string, error) {
	var html string
	err := t.mgr.WithPage(ctx, op, func(page *rod.Page) error {
		if err := t.navigate(ctx, page, op, url); err != nil {
			return err
		}
		for _, f := range fields {
			if err := t.fill(ctx, page, op, f.selector, f.value); err != nil {
				return err
			}
		}
		if submitSelector != "" {
			if err := t.click(ctx, page, op, submitSelector); err != nil {
				return err
			}
		}
		if err := t.waitFor(ctx, page, op, waitFor); err != nil {
			return err
		}
		var err error
		html, err = t.content(ctx, page, op)
		return err
	})
	return html, err
}

// Extract reads inner text, or attr when set, from the elements matching
// selector. With all unset it returns the first match or nil when nothing
// matches; with all set it returns every match.
func (t *Tools) Extract(ctx context.Context, url, selector, attr string, all bool) (interface{}, error) {
	const op = "browser_extract"
	if selector == "" {
		return nil, toolerr.Missing(op, "selector")
	}
	var out interface{}
	err := t.mgr.WithPage(ctx, op, func(page *rod.Page) error {
		if err := t.navigate(ctx, page, op, url); err != nil {
			return err
		}
		p, cancel := t.bounded(ctx, page)
		defer cancel()

		if all {
			els, err := p.Elements(selector)
			if err != nil {
				return t.fail(op, err)
			}
			values := make([]*string, 0, len(els))
			for _, el := range els {
				v, err := readElement(el, attr)
				if err != nil {
					return t.fail(op, err)
				}
				values = append(values, v)
			}
			out = values
			return nil
		}

		has, el, err := p.Has(selector)
		if err != nil {
			return t.fail(op, err)
		}
		if !has {
			out = nil
			return nil
		}
		v, err := readElement(el, attr)
		if err != nil {
			return t.fail(op, err)
		}
		out = v
		return nil
	})
	return out, err
}

func readElement(el *rod.Element, attr string) (*string, error) {
	if attr != "" {
		return el.Attribute(attr)
	}
	text, err := el.Text()
	if err != nil {
		return nil, err
	}
	return &text, nil
}

// WaitForElement waits up to timeout for selector and returns the page HTML.
func (t *Tools) WaitForElement(ctx context.Context, url, selector string, timeout time.Duration) (string, error) {
	const op = "browser_wait_for_element"
	if selector == "" {
		return "", toolerr.Missing(op, "selector")
	}
	if timeout <= 0 {
		timeout = t.cfg.NavigationTimeout
	}
	var html string
	err := t.mgr.WithPage(ctx, op, func(page *rod.Page) error {
		if err := t.navigate(ctx, page, op, url); err != nil {
			return err
		}
		p := page.Context(ctx).Timeout(timeout)
		_, err := p.Element(selector)
		p.CancelTimeout()
		if err != nil {
			return t.failWithin(op, timeout, err)
		}
		html, err = t.content(ctx, page, op)
		return err
	})
	return html, err
}

// ScrollAndExtract repeatedly collects the text of selector matches and
// scrolls, stopping after maxScrolls rounds, when the page height stops
// growing, or when a round finds no new text. Results keep first-seen order.
func (t *Tools) ScrollAndExtract(ctx context.Context, url, selector, scrollSelector string, maxScrolls int) ([]string, error) {
	const op = "browser_scroll_and_extract"
	if selector == "" {
		return nil, toolerr.Missing(op, "selector")
	}
	if maxScrolls <= 0 {
		maxScrolls = DefaultMaxScrolls
	}
	results := []string{}
	err := t.mgr.WithPage(ctx, op, func(page *rod.Page) error {
		if err := t.navigate(ctx, page, op, url); err != nil {
			return err
		}
		height, err := t.scrollHeight(ctx, page, op)
		if err != nil {
			return err
		}
		state := newScrollState(height)
		for round := 0; round < maxScrolls; round++ {
			els, err := page.Context(ctx).Elements(selector)
			if err != nil {
				return t.fail(op, err)
			}
			texts := make([]string, 0, len(els))
			for _, el := range els {
				if text, err := el.Text(); err == nil {
					texts = append(texts, text)
				}
			}
			if state.exhausted(round, state.collect(texts)) {
				break
			}

			if scrollSelector != "" {
				if err := t.click(ctx, page, op, scrollSelector); err != nil {
					return err
				}
			} else if _, err := page.Context(ctx).Eval(`() => window.scrollTo(0, document.body.scrollHeight)`); err != nil {
				return t.fail(op, err)
			}

			if err := sleep(ctx, t.cfg.ScrollPause); err != nil {
				return toolerr.From(op, err)
			}

			height, err := t.scrollHeight(ctx, page, op)
			if err != nil {
				return err
			}
			if !state.grew(height) {
				break
			}
		}
		results = state.results
		return nil
	})
	return results, err
}

// scrollState tracks what a scroll-and-extract run has collected.
type scrollState struct {
	seen       map[string]bool
	results    []string
	lastHeight int
}

func newScrollState(height int) *scrollState {
	return &scrollState{seen: make(map[string]bool), results: []string{}, lastHeight: height}
}

// collect appends the non-empty texts not seen before and returns how many
// were new.
func (s *scrollState) collect(texts []string) int {
	found := 0
	for _, text := range texts {
		if text == "" || s.seen[text] {
			continue
		}
		s.seen[text] = true
		s.results = append(s.results, text)
		found++
	}
	return found
}

// exhausted reports that a round after the first produced nothing new.
func (s *scrollState) exhausted(round, found int) bool {
	return round > 0 && found == 0
}

// grew records height and reports whether the page got taller.
func (s *scrollState) grew(height int) bool {
	if height == s.lastHeight {
		return false
	}
	s.lastHeight = height
	return true
}

func (t *Tools) scrollHeight(ctx context.Context, page *rod.Page, op string) (int, error) {
	res, err := page.Context(ctx).Eval(`() => document.body ? document.body.scrollHeight : 0`)
	if err != nil {
		return 0, t.fail(op, err)
	}
	return res.Value.Int(), nil
}

// Dialog actions accepted by HandleDialog.
const (
	DialogAccept  = "accept"
	DialogDismiss = "dismiss"
	DialogPrompt  = "prompt"
)

// HandleDialog registers a dialog handler before navigating so alerts,
// confirms, and prompts raised during load are answered with action.
func (t *Tools) HandleDialog(ctx context.Context, url, action, promptText string) (string, error) {
	const op = "browser_handle_dialog"
	if action == "" {
		action = DialogAccept
	}
	accept := true
	switch action {
	case DialogAccept:
	case DialogDismiss:
		accept = false
	case DialogPrompt:
		if promptText == "" {
			return "", toolerr.Missing(op, "prompt_text")
		}
	default:
		return "", toolerr.Invalid(op, "action", "action must be accept, dismiss, or prompt")
	}

	var html string
	err := t.mgr.WithPage(ctx, op, func(page *rod.Page) error {
		stop := observe(ctx, page, func(e *proto.PageJavascriptDialogOpening) {
			answer := proto.PageHandleJavaScriptDialog{Accept: accept}
			if action == DialogPrompt {
				answer.PromptText = promptText
			}
			_ = answer.Call(page)
		})
		defer stop()

		if err := t.navigate(ctx, page, op, url); err != nil {
			return err
		}
		var err error
		html, err = t.content(ctx, page, op)
		return err
	})
	return html, err
}

// UploadFile sets a workspace file on a file input and returns the page HTML.
func (t *Tools) UploadFile(ctx context.Context, url, inputSelector, fileRel string) (string, error) {
	const op = "browser_upload_file"
	if inputSelector == "" {
		return "", toolerr.Missing(op, "file_input_selector")
	}
	if fileRel == "" {
		return "", toolerr.Missing(op, "file_path")
	}
	abs, err := t.boundary.Resolve(fileRel)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", toolerr.IO(op, err)
	}
	if info.IsDir() {
		return "", &toolerr.Error{Kind: toolerr.KindIO, Op: op, Code: toolerr.CodeIsDirectory, Message: "is a directory"}
	}

	var html string
	err = t.mgr.WithPage(ctx, op, func(page *rod.Page) error {
		if err := t.navigate(ctx, page, op, url); err != nil {
			return err
		}
		p, cancel := t.bounded(ctx, page)
		defer cancel()
		el, err := p.Element(inputSelector)
		if err != nil {
			return t.fail(op, err)
		}
		if err := el.SetFiles([]string{abs}); err != nil {
			return t.fail(op, err)
		}
		html, err = t.content(ctx, page, op)
		return err
	})
	return html, err
}

// NetworkRequest is one request observed while a page loaded.
type NetworkRequest struct {
	URL          string            `json:"url"`
	Method       string            `json:"method"`
	ResourceType string            `json:"resource_type,omitempty"`
	Headers      map[string]string `json:"headers"`
	PostData     string            `json:"post_data,omitempty"`
}

// NetworkRequests records the requests issued during the load of url and the
// observation window after it. filter, when set, keeps only requests whose
// method or resource type matches case-insensitively.
func (t *Tools) NetworkRequests(ctx context.Context, url, filter string) ([]NetworkRequest, error) {
	const op = "browser_get_network_requests"
	var (
		mu   sync.Mutex
		reqs = []NetworkRequest{}
	)
	err := t.mgr.WithPage(ctx, op, func(page *rod.Page) error {
		stop := observe(ctx, page, func(e *proto.NetworkRequestWillBeSent) {
			if e.Request == nil {
				return
			}
			kind := string(e.Type)
			if !requestMatches(e.Request.Method, kind, filter) {
				return
			}
			headers := make(map[string]string, len(e.Request.Headers))
			for k, v := range e.Request.Headers {
				headers[k] = v.Str()
			}
			mu.Lock()
			reqs = append(reqs, NetworkRequest{
				URL:          e.Request.URL,
				Method:       e.Request.Method,
				ResourceType: kind,
				Headers:      headers,
				PostData:     e.Request.PostData,
			})
			mu.Unlock()
		})
		defer stop()

		if err := t.navigate(ctx, page, op, url); err != nil {
			return err
		}
		if err := sleep(ctx, t.cfg.NetworkWindow); err != nil {
			return toolerr.From(op, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	mu.Lock()
	defer mu.Unlock()
	return reqs, nil
}

// requestMatches applies the network filter: empty keeps everything,
// otherwise the method or the resource type must match case-insensitively.
func requestMatches(method, resourceType, filter string) bool {
	if filter == "" {
		return true
	}
	return strings.EqualFold(method, filter) || strings.EqualFold(resourceType, filter)
}

var functionLiteral = regexp.MustCompile(`^\s*(async\s+)?(function\b|\([^)]*\)\s*=>|[A-Za-z_$][\w$]*\s*=>)`)

// ExecuteJavaScript evaluates script on the loaded page and returns its
// JSON-encoded value. script may be a function or a bare expression; promises
// are awaited.
func (t *Tools) ExecuteJavaScript(ctx context.Context, url, script string) (json.RawMessage, error) {
	const op = "browser_execute_javascript"
	if strings.TrimSpace(script) == "" {
		return nil, toolerr.Missing(op, "script")
	}
	js := script
	if !functionLiteral.MatchString(js) {
		js = fmt.Sprintf("() => (%s)", strings.TrimRight(strings.TrimSpace(js), ";"))
	}

	var out json.RawMessage
	err := t.mgr.WithPage(ctx, op, func(page *rod.Page) error {
		if err := t.navigate(ctx, page, op, url); err != nil {
			return err
		}
		p, cancel := t.bounded(ctx, page)
		defer cancel()
		res, err := p.Evaluate(rod.Eval(js).ByPromise())
		if err != nil {
			return t.fail(op, err)
		}
		raw, err := res.Value.MarshalJSON()
		if err != nil {
			return toolerr.From(op, err)
		}
		out = raw
		return nil
	})
	return out, err
}

// Viewport is a page's inner window size in CSS pixels.
type Viewport struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PageInfo summarizes a loaded page.
type PageInfo struct {
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Viewport    Viewport `json:"viewport"`
	Content     string   `json:"content"`
	TextContent string   `json:"text_content"`
	// Screenshot is a JPEG; it encodes as base64 in JSON.
	Screenshot []byte `json:"screenshot"`
}

// PageInfo returns the title, URL, viewport, HTML, body text, and a JPEG
// screenshot of url.
func (t *Tools) PageInfo(ctx context.Context, url string) (*PageInfo, error) {
	const op = "browser_get_page_info"
	info := &PageInfo{}
	err := t.mgr.WithPage(ctx, op, func(page *rod.Page) error {
		if err := t.navigate(ctx, page, op, url); err != nil {
			return err
		}
		p, cancel := t.bounded(ctx, page)
		defer cancel()

		target, err := p.Info()
		if err != nil {
			return t.fail(op, err)
		}
		info.Title, info.URL = target.Title, target.URL

		vp, err := p.Eval(`() => ({width: window.innerWidth, height: window.innerHeight})`)
		if err != nil {
			return t.fail(op, err)
		}
		info.Viewport = Viewport{Width: vp.Value.Get("width").Int(), Height: vp.Value.Get("height").Int()}

		if info.Content, err = p.HTML(); err != nil {
			return t.fail(op, err)
		}
		if has, body, err := p.Has("body"); err == nil && has {
			info.TextContent, _ = body.Text()
		}

		info.Screenshot, err = p.Screenshot(false, &proto.PageCaptureScreenshot{
			Format:  proto.PageCaptureScreenshotFormatJpeg,
			Quality: gson.Int(80),
		})
		return t.fail(op, err)
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

// Cookie is a cookie set before navigation. When neither URL nor Domain is
// given the cookie is scoped to the target URL.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	URL      string  `json:"url,omitempty"`
	Domain   string  `json:"domain,omitempty"`
	Path     string  `json:"path,omitempty"`
	Expires  float64 `json:"expires,omitempty"`
	HTTPOnly bool    `json:"httpOnly,omitempty"`
	Secure   bool    `json:"secure,omitempty"`
}

// NavigateWithCookies installs cookies and then loads url.
func (t *Tools) NavigateWithCookies(ctx context.Context, url string, cookies []Cookie) (string, error) {
	const op = "browser_navigate_with_cookies"
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for i, c := range cookies {
		if c.Name == "" {
			return "", toolerr.Invalid(op, fmt.Sprintf("cookies[%d].name", i), "cookie name is required")
		}
		p := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			URL:      c.URL,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if c.Expires > 0 {
			p.Expires = proto.TimeSinceEpoch(c.Expires)
		}
		if p.URL == "" && p.Domain == "" {
			p.URL = url
		}
		params = append(params, p)
	}

	var html string
	err := t.mgr.WithPage(ctx, op, func(page *rod.Page) error {
		if len(params) > 0 {
			if err := page.Context(ctx).SetCookies(params); err != nil {
				return t.fail(op, err)
			}
		}
		if err := t.navigate(ctx, page, op, url); err != nil {
			return err
		}
		var err error
		html, err = t.content(ctx, page, op)
		return err
	})
	return html, err
}

// Comparison is the result of ComparePages.
type Comparison struct {
	URL1      string `json:"url1"`
	URL2      string `json:"url2"`
	Content1  string `json:"content1"`
	Content2  string `json:"content2"`
	Identical bool   `json:"identical"`
	// LengthDiff is nil unless both sides have text.
	LengthDiff *int `json:"length_diff"`
}

// ComparePages loads both URLs and compares the text of selector on each.
func (t *Tools) ComparePages(ctx context.Context, url1, url2, selector string) (*Comparison, error) {
	const op = "browser_compare_pages"
	if selector == "" {
		return nil, toolerr.Missing(op, "selector")
	}
	c1, err := t.selectorText(ctx, op, url1, selector)
	if err != nil {
		return nil, err
	}
	c2, err := t.selectorText(ctx, op, url2, selector)
	if err != nil {
		return nil, err
	}

	cmp := &Comparison{URL1: url1, URL2: url2, Content1: c1, Content2: c2, Identical: c1 == c2}
	if c1 != "" && c2 != "" {
		d := utf8.RuneCountInString(c1) - utf8.RuneCountInString(c2)
		cmp.LengthDiff = &d
	}
	return cmp, nil
}

func (t *Tools) selectorText(ctx context.Context, op, url, selector string) (string, error) {
	var text string
	err := t.mgr.WithPage(ctx, op, func(page *rod.Page) error {
		if err := t.navigate(ctx, page, op, url); err != nil {
			return err
		}
		p, cancel := t.bounded(ctx, page)
		defer cancel()
		el, err := p.Element(selector)
		if err != nil {
			return t.fail(op, err)
		}
		text, err = el.Text()
		return t.fail(op, err)
	})
	return text, err
}

// AXNode is one non-ignored node of the accessibility tree.
type AXNode struct {
	Role string `json:"role"`
	Name string `json:"name,omitempty"`
}

// AXSummary condenses the full accessibility tree.
type AXSummary struct {
	TotalNodes int            `json:"total_nodes"`
	Roles      map[string]int `json:"roles"`
	Nodes      []AXNode       `json:"nodes"`
}

// AccessibilityReport is the result of auditing one page.
type AccessibilityReport struct {
	URL         string    `json:"url"`
	Snapshot    AXSummary `json:"accessibility_snapshot"`
	Issues      []string  `json:"issues_found"`
	TotalIssues int       `json:"total_issues"`
}

// maxAXNodes caps the node list in a report.
const maxAXNodes = 200

// AccessibilityReport summarizes the accessibility tree of url and lists
// images without alt text and inputs whose id no label[for] references.
func (t *Tools) AccessibilityReport(ctx context.Context, url string) (*AccessibilityReport, error) {
	const op = "browser_generate_accessibility_report"
	report := &AccessibilityReport{URL: url, Issues: []string{}}
	err := t.mgr.WithPage(ctx, op, func(page *rod.Page) error {
		if err := t.navigate(ctx, page, op, url); err != nil {
			return err
		}
		p, cancel := t.bounded(ctx, page)
		defer cancel()

		tree, err := proto.AccessibilityGetFullAXTree{}.Call(p)
		if err != nil {
			return t.fail(op, err)
		}
		report.Snapshot = summarizeAXTree(tree.Nodes)

		imgs, err := p.Elements("img")
		if err != nil {
			return t.fail(op, err)
		}
		for _, img := range imgs {
			alt, err := img.Attribute("alt")
			if err != nil {
				return t.fail(op, err)
			}
			if alt == nil || *alt == "" {
				report.Issues = append(report.Issues, "Image missing alt text")
			}
		}

		labels, err := p.Elements("label[for]")
		if err != nil {
			return t.fail(op, err)
		}
		labelled := make(map[string]bool, len(labels))
		for _, l := range labels {
			if v, err := l.Attribute("for"); err == nil && v != nil {
				labelled[*v] = true
			}
		}
		inputs, err := p.Elements("input")
		if err != nil {
			return t.fail(op, err)
		}
		for _, in := range inputs {
			id, err := in.Attribute("id")
			if err != nil {
				return t.fail(op, err)
			}
			if id != nil && *id != "" && !labelled[*id] {
				report.Issues = append(report.Issues, fmt.Sprintf("Input with id '%s' missing label", *id))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	report.TotalIssues = len(report.Issues)
	return report, nil
}

func summarizeAXTree(nodes []*proto.AccessibilityAXNode) AXSummary {
	sum := AXSummary{Roles: map[string]int{}, Nodes: []AXNode{}}
	for _, n := range nodes {
		if n == nil || n.Ignored {
			continue
		}
		sum.TotalNodes++
		role := axValue(n.Role)
		if role == "" {
			role = "unknown"
		}
		sum.Roles[role]++
		if len(sum.Nodes) < maxAXNodes {
			sum.Nodes = append(sum.Nodes, AXNode{Role: role, Name: axValue(n.Name)})
		}
	}
	return sum
}

func axValue(v *proto.AccessibilityAXValue) string {
	if v == nil || v.Value.Nil() {
		return ""
	}
	return v.Value.Str()
}

// navigate loads url and waits for the load event within the navigation bound.
func (t *Tools) navigate(ctx context.Context, page *rod.Page, op, url string) error {
	if strings.TrimSpace(url) == "" {
		return toolerr.Missing(op, "url")
	}
	p := page.Context(ctx).Timeout(t.cfg.NavigationTimeout)
	defer p.CancelTimeout()
	if err := p.Navigate(url); err != nil {
		return t.fail(op, err)
	}
	return t.fail(op, p.WaitLoad())
}

// bounded returns page limited by the navigation timeout; call cancel when done.
func (t *Tools) bounded(ctx context.Context, page *rod.Page) (*rod.Page, func()) {
	p := page.Context(ctx).Timeout(t.cfg.NavigationTimeout)
	return p, func() { p.CancelTimeout() }
}

func (t *Tools) content(ctx context.Context, page *rod.Page, op string) (string, error) {
	p, cancel := t.bounded(ctx, page)
	defer cancel()
	html, err := p.HTML()
	return html, t.fail(op, err)
}

func (t *Tools) click(ctx context.Context, page *rod.Page, op, selector string) error {
	p, cancel := t.bounded(ctx, page)
	defer cancel()
	el, err := p.Element(selector)
	if err != nil {
		return t.fail(op, err)
	}
	return t.fail(op, el.Click(proto.InputMouseButtonLeft, 1))
}

func (t *Tools) fill(ctx context.Context, page *rod.Page, op, selector, value string) error {
	p, cancel := t.bounded(ctx, page)
	defer cancel()
	el, err := p.Element(selector)
	if err != nil {
		return t.fail(op, err)
	}
	if err := el.SelectAllText(); err != nil {
		return t.fail(op, err)
	}
	return t.fail(op, el.Input(value))
}

func (t *Tools) waitFor(ctx context.Context, page *rod.Page, op, selector string) error {
	if selector == "" {
		return nil
	}
	p, cancel := t.bounded(ctx, page)
	defer cancel()
	_, err := p.Element(selector)
	return t.fail(op, err)
}

func (t *Tools) fail(op string, err error) error {
	return t.failWithin(op, t.cfg.NavigationTimeout, err)
}

// failWithin maps a rod error onto the tool error taxonomy.
func (t *Tools) failWithin(op string, bound time.Duration, err error) error {
	if err == nil {
		return nil
	}
	var te *toolerr.Error
	if errors.As(err, &te) && te != nil {
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return toolerr.Timeout(op, bound, err)
	}
	var evalErr *rod.EvalError
	if errors.As(err, &evalErr) {
		return &toolerr.Error{Kind: toolerr.KindInvalidInput, Op: op, Field: "script", Message: "script error", Err: err}
	}
	var navErr *rod.NavigationError
	if errors.As(err, &navErr) {
		return &toolerr.Error{Kind: toolerr.KindIO, Op: op, Code: "navigation", Message: "navigation failed", Err: err}
	}
	return toolerr.From(op, err)
}

// observe subscribes fn to page events until the returned stop is called.
func observe(ctx context.Context, page *rod.Page, fn interface{}) (stop func()) {
	obsCtx, cancel := context.WithCancel(ctx)
	wait := page.Context(obsCtx).EachEvent(fn)
	done := make(chan struct{})
	go func() {
		defer close(done)
		wait()
	}()
	return func() {
		cancel()
		<-done
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
