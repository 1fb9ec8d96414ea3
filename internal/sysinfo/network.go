// ABOUTME: Network tools: bounded ping, workspace-confined downloads, HTTP requests.
// ABOUTME: Responses are read up to a fixed cap and decoded as JSON when possible.

package sysinfo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/2389/tool-gateway/internal/toolerr"
)

// CommandResult is the outcome of an external command such as ping.
type CommandResult struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"returncode"`
}

func pingArgv(host string, count int) []string {
	flag := "-c"
	if runtime.GOOS == "windows" {
		flag = "-n"
	}
	return []string{"ping", flag, strconv.Itoa(count), host}
}

// Ping sends count echo requests to host. The whole run is bounded by the
// configured ping timeout; exceeding it is a timeout error. A missing ping
// binary is reported in the result, not as an error.
func (s *Service) Ping(ctx context.Context, host string, count int) (*CommandResult, error) {
	const op = "ping_host"
	host = strings.TrimSpace(host)
	if host == "" {
		return nil, toolerr.Missing(op, "host")
	}
	if strings.HasPrefix(host, "-") || strings.ContainsAny(host, " \t\n") {
		return nil, toolerr.Invalid(op, "host", "host must be a hostname or IP address")
	}
	if count <= 0 {
		count = 1
	}
	if count > MaxPingCount {
		return nil, toolerr.Invalid(op, "count", fmt.Sprintf("count must be at most %d", MaxPingCount))
	}

	runCtx, cancel := context.WithTimeout(ctx, s.pingTimeout)
	defer cancel()

	argv := s.pingCommand(host, count)
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := &CommandResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return nil, toolerr.Timeout(op, s.pingTimeout, err)
	}
	if ctx.Err() != nil {
		return nil, toolerr.From(op, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ReturnCode = exitErr.ExitCode()
		return res, nil
	}
	if errors.Is(err, exec.ErrNotFound) {
		return &CommandResult{Stderr: "Ping command not available in this environment", ReturnCode: -1}, nil
	}
	return &CommandResult{Stderr: err.Error(), ReturnCode: -1}, nil
}

// DownloadResult describes a saved download.
type DownloadResult struct {
	Path        string `json:"path"`
	Bytes       int64  `json:"bytes"`
	SizeHuman   string `json:"size_human"`
	ContentType string `json:"content_type,omitempty"`
}

// Download fetches url and stores the body at saveRel inside the workspace.
// Non-2xx responses fail without touching the destination.
func (s *Service) Download(ctx context.Context, url, saveRel string) (*DownloadResult, error) {
	const op = "download_url"
	if url == "" {
		return nil, toolerr.Missing(op, "url")
	}
	if saveRel == "" {
		return nil, toolerr.Missing(op, "save_path")
	}
	dest, err := s.boundary.Resolve(saveRel)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, toolerr.Invalid(op, "url", err.Error())
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, toolerr.From(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &toolerr.Error{Kind: toolerr.KindIO, Op: op, Code: "http_status", Message: "unexpected status " + resp.Status}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, toolerr.IO(op, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return nil, toolerr.IO(op, err)
	}
	n, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		if copyErr != nil {
			return nil, toolerr.From(op, copyErr)
		}
		return nil, toolerr.IO(op, closeErr)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return nil, toolerr.IO(op, err)
	}

	s.logger.Info("downloaded file", "url", url, "path", saveRel, "bytes", n)
	return &DownloadResult{
		Path:        s.boundary.Rel(dest),
		Bytes:       n,
		SizeHuman:   humanize.Bytes(uint64(n)),
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// HTTPRequest is an outbound HTTP call made on behalf of a caller.
type HTTPRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Data    string            `json:"data,omitempty"`
	JSON    json.RawMessage   `json:"json_data,omitempty"`
	Timeout float64           `json:"timeout,omitempty"`
}

// HTTPResponse is the captured response.
type HTTPResponse struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Text       string            `json:"text"`
	JSON       json.RawMessage   `json:"json"`
	Truncated  bool              `json:"truncated,omitempty"`
}

// Do performs r. A JSON body takes precedence over raw data and sets the
// content type unless the caller supplied one.
func (s *Service) Do(ctx context.Context, r HTTPRequest) (*HTTPResponse, error) {
	const op = "http_request"
	if r.URL == "" {
		return nil, toolerr.Missing(op, "url")
	}
	method := strings.ToUpper(strings.TrimSpace(r.Method))
	if method == "" {
		method = http.MethodGet
	}
	timeout := DefaultHTTPTimeout
	if r.Timeout > 0 {
		timeout = time.Duration(r.Timeout * float64(time.Second))
	}

	var body io.Reader
	contentType := ""
	switch {
	case len(r.JSON) > 0 && string(r.JSON) != "null":
		if !json.Valid(r.JSON) {
			return nil, toolerr.Invalid(op, "json_data", "json_data is not valid JSON")
		}
		body = bytes.NewReader(r.JSON)
		contentType = "application/json"
	case r.Data != "":
		body = strings.NewReader(r.Data)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, method, r.URL, body)
	if err != nil {
		return nil, toolerr.Invalid(op, "url", err.Error())
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, toolerr.Timeout(op, timeout, err)
		}
		return nil, toolerr.From(op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
			return nil, toolerr.Timeout(op, timeout, err)
		}
		return nil, toolerr.From(op, err)
	}
	out := &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    make(map[string]string, len(resp.Header)),
	}
	if len(data) > MaxResponseBytes {
		data = data[:MaxResponseBytes]
		out.Truncated = true
	}
	for k := range resp.Header {
		out.Headers[k] = resp.Header.Get(k)
	}
	out.Text = string(data)
	if json.Valid(data) {
		out.JSON = json.RawMessage(data)
	}
	return out, nil
}
