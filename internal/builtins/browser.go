// ABOUTME: Browser pack: page automation tools on the shared browser session.
// ABOUTME: Requires the "browser" capability.

package builtins

import (
	"context"
	"encoding/json"
	"time"

	"github.com/2389/tool-gateway/internal/browser"
	"github.com/2389/tool-gateway/internal/packs"
	"github.com/2389/tool-gateway/internal/toolerr"
)

// DefaultBrowserTimeout bounds one browser tool call when none is configured.
const DefaultBrowserTimeout = 2 * time.Minute

const htmlSchema = `{"type":"object","properties":{"url":{"type":"string"},"html":{"type":"string"}},"required":["html"]}`

// BrowserPack creates the browser pack over tools. timeout bounds each call;
// the router bound adds ten seconds of slack.
func BrowserPack(tools *browser.Tools, timeout time.Duration) *packs.BuiltinPack {
	if timeout <= 0 {
		timeout = DefaultBrowserTimeout
	}
	secs := timeoutSeconds(timeout, 10*time.Second)
	b := &browserHandlers{tools: tools}

	def := func(name, desc, in, out string) *packs.ToolDefinition {
		return &packs.ToolDefinition{
			Name:                 name,
			Description:          desc,
			InputSchemaJSON:      in,
			OutputSchemaJSON:     out,
			RequiredCapabilities: []string{CapBrowser},
			TimeoutSeconds:       secs,
		}
	}

	return &packs.BuiltinPack{
		ID: "builtin:browser",
		Tools: []*packs.BuiltinTool{
			{
				Definition: def("browser_open_page", "Open a web page and return its HTML",
					`{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`, htmlSchema),
				Handler: b.OpenPage,
			},
			{
				Definition: def("browser_screenshot", "Screenshot a web page into a workspace file",
					`{"type":"object","properties":{"url":{"type":"string"},"path":{"type":"string","default":"screenshot.png"},"full_page":{"type":"boolean"}},"required":["url"]}`,
					`{"type":"object","properties":{"path":{"type":"string"},"bytes":{"type":"integer"}}}`),
				Handler: b.Screenshot,
			},
			{
				Definition: def("browser_click", "Click an element and return the resulting HTML, optionally waiting for another selector",
					`{"type":"object","properties":{"url":{"type":"string"},"selector":{"type":"string"},"wait_for":{"type":"string"}},"required":["url","selector"]}`, htmlSchema),
				Handler: b.Click,
			},
			{
				Definition: def("browser_type", "Fill a field with text, optionally click a submit control, and return the resulting HTML",
					`{"type":"object","properties":{"url":{"type":"string"},"selector":{"type":"string"},"text":{"type":"string"},"submit_selector":{"type":"string"},"wait_for":{"type":"string"}},"required":["url","selector","text"]}`, htmlSchema),
				Handler: b.Type,
			},
			{
				Definition: def("browser_extract", "Extract inner text or an attribute from the first or all matching elements",
					`{"type":"object","properties":{"url":{"type":"string"},"selector":{"type":"string"},"attr":{"type":"string"},"all_matches":{"type":"boolean"}},"required":["url","selector"]}`,
					`{"type":"object","properties":{"result":{}}}`),
				Handler: b.Extract,
			},
			{
				Definition: def("browser_wait_for_element", "Wait for an element to appear and return the page HTML",
					`{"type":"object","properties":{"url":{"type":"string"},"selector":{"type":"string"},"timeout":{"type":"integer","description":"milliseconds","default":30000}},"required":["url","selector"]}`, htmlSchema),
				Handler: b.WaitForElement,
			},
			{
				Definition: def("browser_scroll_and_extract", "Scroll a page and collect the text of matching elements",
					`{"type":"object","properties":{"url":{"type":"string"},"selector":{"type":"string"},"scroll_selector":{"type":"string"},"max_scrolls":{"type":"integer","minimum":1,"default":5}},"required":["url","selector"]}`,
					`{"type":"object","properties":{"items":{"type":"array","items":{"type":"string"}},"count":{"type":"integer"}}}`),
				Handler: b.ScrollAndExtract,
			},
			{
				Definition: def("browser_fill_form", "Fill several fields, keyed by selector, and optionally submit",
					`{"type":"object","properties":{"url":{"type":"string"},"form_data":{"type":"object","additionalProperties":{"type":"string"}},"submit_selector":{"type":"string"},"wait_for":{"type":"string"}},"required":["url","form_data"]}`, htmlSchema),
				Handler: b.FillForm,
			},
			{
				Definition: def("browser_handle_dialog", "Load a page answering alerts, confirms, and prompts with the given action",
					`{"type":"object","properties":{"url":{"type":"string"},"action":{"type":"string","enum":["accept","dismiss","prompt"],"default":"accept"},"prompt_text":{"type":"string"}},"required":["url"]}`, htmlSchema),
				Handler: b.HandleDialog,
			},
			{
				Definition: def("browser_upload_file", "Set a workspace file on a file input element",
					`{"type":"object","properties":{"url":{"type":"string"},"file_input_selector":{"type":"string"},"file_path":{"type":"string"}},"required":["url","file_input_selector","file_path"]}`, htmlSchema),
				Handler: b.UploadFile,
			},
			{
				Definition: def("browser_get_network_requests", "Capture the requests a page makes while loading, optionally filtered by method or resource type",
					`{"type":"object","properties":{"url":{"type":"string"},"request_type":{"type":"string"}},"required":["url"]}`,
					`{"type":"object","properties":{"requests":{"type":"array","items":{"type":"object"}},"count":{"type":"integer"}}}`),
				Handler: b.NetworkRequests,
			},
			{
				Definition: def("browser_execute_javascript", "Evaluate a JavaScript function or expression on a page and return its value",
					`{"type":"object","properties":{"url":{"type":"string"},"script":{"type":"string"}},"required":["url","script"]}`,
					`{"type":"object","properties":{"result":{}}}`),
				Handler: b.ExecuteJavaScript,
			},
			{
				Definition: def("browser_get_page_info", "Get title, URL, viewport, HTML, body text, and a JPEG screenshot of a page",
					`{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`,
					`{"type":"object","properties":{"title":{"type":"string"},"url":{"type":"string"},"viewport":{"type":"object"},"content":{"type":"string"},"text_content":{"type":"string"},"screenshot":{"type":"string","contentEncoding":"base64"}}}`),
				Handler: b.PageInfo,
			},
			{
				Definition: def("browser_navigate_with_cookies", "Set cookies and then load a page",
					`{"type":"object","properties":{"url":{"type":"string"},"cookies":{"type":"array","items":{"type":"object","properties":{"name":{"type":"string"},"value":{"type":"string"},"url":{"type":"string"},"domain":{"type":"string"},"path":{"type":"string"},"expires":{"type":"number"},"httpOnly":{"type":"boolean"},"secure":{"type":"boolean"}},"required":["name","value"]}}},"required":["url","cookies"]}`, htmlSchema),
				Handler: b.NavigateWithCookies,
			},
			{
				Definition: def("browser_compare_pages", "Compare the text of a selector on two pages",
					`{"type":"object","properties":{"url1":{"type":"string"},"url2":{"type":"string"},"selector":{"type":"string"}},"required":["url1","url2","selector"]}`,
					`{"type":"object","properties":{"url1":{"type":"string"},"url2":{"type":"string"},"content1":{"type":"string"},"content2":{"type":"string"},"identical":{"type":"boolean"},"length_diff":{"type":["integer","null"]}}}`),
				Handler: b.ComparePages,
			},
			{
				Definition: def("browser_generate_accessibility_report", "Summarize the accessibility tree and list common issues",
					`{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`,
					`{"type":"object","properties":{"url":{"type":"string"},"accessibility_snapshot":{"type":"object"},"issues_found":{"type":"array","items":{"type":"string"}},"total_issues":{"type":"integer"}}}`),
				Handler: b.AccessibilityReport,
			},
		},
	}
}

type browserHandlers struct {
	tools *browser.Tools
}

type urlInput struct {
	URL string `json:"url"`
}

func htmlResult(url, html string, err error) (json.RawMessage, error) {
	if err != nil {
		return nil, err
	}
	return encode(map[string]string{"url": url, "html": html})
}

func (b *browserHandlers) OpenPage(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in urlInput
	if err := decode("browser_open_page", input, &in); err != nil {
		return nil, err
	}
	html, err := b.tools.OpenPage(ctx, in.URL)
	return htmlResult(in.URL, html, err)
}

type screenshotInput struct {
	URL      string `json:"url"`
	Path     string `json:"path"`
	FullPage bool   `json:"full_page"`
}

func (b *browserHandlers) Screenshot(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in screenshotInput
	if err := decode("browser_screenshot", input, &in); err != nil {
		return nil, err
	}
	res, err := b.tools.Screenshot(ctx, in.URL, in.Path, in.FullPage)
	if err != nil {
		return nil, err
	}
	return encode(res)
}

type clickInput struct {
	URL      string `json:"url"`
	Selector string `json:"selector"`
	WaitFor  string `json:"wait_for"`
}

func (b *browserHandlers) Click(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in clickInput
	if err := decode("browser_click", input, &in); err != nil {
		return nil, err
	}
	html, err := b.tools.Click(ctx, in.URL, in.Selector, in.WaitFor)
	return htmlResult(in.URL, html, err)
}

type typeInput struct {
	URL            string  `json:"url"`
	Selector       string  `json:"selector"`
	Text           *string `json:"text"`
	SubmitSelector string  `json:"submit_selector"`
	WaitFor        string  `json:"wait_for"`
}

func (b *browserHandlers) Type(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	const op = "browser_type"
	var in typeInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}
	if in.Text == nil {
		return nil, toolerr.Missing(op, "text")
	}
	html, err := b.tools.Type(ctx, browser.TypeRequest{
		URL:            in.URL,
		Selector:       in.Selector,
		Text:           *in.Text,
		SubmitSelector: in.SubmitSelector,
		WaitFor:        in.WaitFor,
	})
	return htmlResult(in.URL, html, err)
}

type extractInput struct {
	URL        string `json:"url"`
	Selector   string `json:"selector"`
	Attr       string `json:"attr"`
	AllMatches bool   `json:"all_matches"`
}

func (b *browserHandlers) Extract(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in extractInput
	if err := decode("browser_extract", input, &in); err != nil {
		return nil, err
	}
	res, err := b.tools.Extract(ctx, in.URL, in.Selector, in.Attr, in.AllMatches)
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{"result": res})
}

type waitForElementInput struct {
	URL      string `json:"url"`
	Selector string `json:"selector"`
	Timeout  int    `json:"timeout"`
}

func (b *browserHandlers) WaitForElement(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	const op = "browser_wait_for_element"
	var in waitForElementInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}
	if in.Timeout < 0 {
		return nil, toolerr.Invalid(op, "timeout", "timeout must not be negative")
	}
	timeout := 30 * time.Second
	if in.Timeout > 0 {
		timeout = time.Duration(in.Timeout) * time.Millisecond
	}
	html, err := b.tools.WaitForElement(ctx, in.URL, in.Selector, timeout)
	return htmlResult(in.URL, html, err)
}

type scrollInput struct {
	URL            string `json:"url"`
	Selector       string `json:"selector"`
	ScrollSelector string `json:"scroll_selector"`
	MaxScrolls     int    `json:"max_scrolls"`
}

func (b *browserHandlers) ScrollAndExtract(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in scrollInput
	if err := decode("browser_scroll_and_extract", input, &in); err != nil {
		return nil, err
	}
	items, err := b.tools.ScrollAndExtract(ctx, in.URL, in.Selector, in.ScrollSelector, in.MaxScrolls)
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{"items": items, "count": len(items)})
}

type fillFormInput struct {
	URL            string            `json:"url"`
	FormData       map[string]string `json:"form_data"`
	SubmitSelector string            `json:"submit_selector"`
	WaitFor        string            `json:"wait_for"`
}

func (b *browserHandlers) FillForm(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in fillFormInput
	if err := decode("browser_fill_form", input, &in); err != nil {
		return nil, err
	}
	html, err := b.tools.FillForm(ctx, in.URL, in.FormData, in.SubmitSelector, in.WaitFor)
	return htmlResult(in.URL, html, err)
}

type dialogInput struct {
	URL        string `json:"url"`
	Action     string `json:"action"`
	PromptText string `json:"prompt_text"`
}

func (b *browserHandlers) HandleDialog(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in dialogInput
	if err := decode("browser_handle_dialog", input, &in); err != nil {
		return nil, err
	}
	html, err := b.tools.HandleDialog(ctx, in.URL, in.Action, in.PromptText)
	return htmlResult(in.URL, html, err)
}

type uploadInput struct {
	URL               string `json:"url"`
	FileInputSelector string `json:"file_input_selector"`
	FilePath          string `json:"file_path"`
}

func (b *browserHandlers) UploadFile(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in uploadInput
	if err := decode("browser_upload_file", input, &in); err != nil {
		return nil, err
	}
	html, err := b.tools.UploadFile(ctx, in.URL, in.FileInputSelector, in.FilePath)
	return htmlResult(in.URL, html, err)
}

type networkInput struct {
	URL         string `json:"url"`
	RequestType string `json:"request_type"`
}

func (b *browserHandlers) NetworkRequests(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in networkInput
	if err := decode("browser_get_network_requests", input, &in); err != nil {
		return nil, err
	}
	reqs, err := b.tools.NetworkRequests(ctx, in.URL, in.RequestType)
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{"requests": reqs, "count": len(reqs)})
}

type scriptInput struct {
	URL    string `json:"url"`
	Script string `json:"script"`
}

func (b *browserHandlers) ExecuteJavaScript(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in scriptInput
	if err := decode("browser_execute_javascript", input, &in); err != nil {
		return nil, err
	}
	res, err := b.tools.ExecuteJavaScript(ctx, in.URL, in.Script)
	if err != nil {
		return nil, err
	}
	return encode(map[string]json.RawMessage{"result": res})
}

func (b *browserHandlers) PageInfo(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in urlInput
	if err := decode("browser_get_page_info", input, &in); err != nil {
		return nil, err
	}
	info, err := b.tools.PageInfo(ctx, in.URL)
	if err != nil {
		return nil, err
	}
	return encode(info)
}

type cookiesInput struct {
	URL     string           `json:"url"`
	Cookies []browser.Cookie `json:"cookies"`
}

func (b *browserHandlers) NavigateWithCookies(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in cookiesInput
	if err := decode("browser_navigate_with_cookies", input, &in); err != nil {
		return nil, err
	}
	html, err := b.tools.NavigateWithCookies(ctx, in.URL, in.Cookies)
	return htmlResult(in.URL, html, err)
}

type compareInput struct {
	URL1     string `json:"url1"`
	URL2     string `json:"url2"`
	Selector string `json:"selector"`
}

func (b *browserHandlers) ComparePages(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	const op = "browser_compare_pages"
	var in compareInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}
	if in.URL1 == "" {
		return nil, toolerr.Missing(op, "url1")
	}
	if in.URL2 == "" {
		return nil, toolerr.Missing(op, "url2")
	}
	cmp, err := b.tools.ComparePages(ctx, in.URL1, in.URL2, in.Selector)
	if err != nil {
		return nil, err
	}
	return encode(cmp)
}

func (b *browserHandlers) AccessibilityReport(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in urlInput
	if err := decode("browser_generate_accessibility_report", input, &in); err != nil {
		return nil, err
	}
	report, err := b.tools.AccessibilityReport(ctx, in.URL)
	if err != nil {
		return nil, err
	}
	return encode(report)
}
