// ABOUTME: MCP Streamable HTTP endpoint exposing the gateway's tool catalog.
// ABOUTME: Handles sessions, capability scoping, rate limiting, and tool dispatch.

package mcp

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/2389/tool-gateway/internal/packs"
)

// Protocol versions accepted in the Mcp-Protocol-Version header.
var supportedProtocolVersions = []string{"2025-03-26", "2025-06-18", "2025-11-25"}

// latestProtocolVersion is advertised in initialize responses.
const latestProtocolVersion = "2025-11-25"

// MaxRequestBodySize is the maximum allowed size for request bodies (10MB).
// write_file content travels inline, so this is larger than a typical RPC.
const MaxRequestBodySize = 10 << 20

// DefaultPath is where the endpoint is mounted when Config.Path is empty.
const DefaultPath = "/mcp"

const (
	headerSessionID       = "Mcp-Session-Id"
	headerProtocolVersion = "Mcp-Protocol-Version"
)

// Config holds configuration for the MCP server.
type Config struct {
	Registry *packs.Registry
	Router   *packs.Router
	Logger   *slog.Logger
	// Path is the endpoint path. Defaults to DefaultPath.
	Path string
	// Capabilities are the capabilities enabled on this gateway. A session
	// may narrow them with ?capabilities=a,b on initialize but never widen
	// them.
	Capabilities []string
	// RateLimit is the sustained tools/call rate per second; 0 disables
	// limiting. RateBurst defaults to 1 when limiting is on.
	RateLimit float64
	RateBurst int
	// Version is reported in serverInfo.
	Version string
}

// Server serves the MCP endpoint. Only client-initiated POSTs carry
// messages; server-initiated SSE streams are not offered.
type Server struct {
	registry *packs.Registry
	router   *packs.Router
	logger   *slog.Logger
	path     string
	caps     []string
	limiter  *rate.Limiter
	version  string
	sessions *sessionTable
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	switch {
	case cfg.Registry == nil:
		return nil, errors.New("registry is required")
	case cfg.Router == nil:
		return nil, errors.New("router is required")
	case cfg.RateLimit < 0:
		return nil, fmt.Errorf("rate limit must not be negative: %v", cfg.RateLimit)
	}

	path := cmp.Or(cfg.Path, DefaultPath)
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("path must start with '/': %q", path)
	}

	s := &Server{
		registry: cfg.Registry,
		router:   cfg.Router,
		logger:   cfg.Logger,
		path:     path,
		caps:     slices.Clone(cfg.Capabilities),
		version:  cmp.Or(cfg.Version, "dev"),
		sessions: newSessionTable(),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
	}
	return s, nil
}

// Path returns the endpoint path.
func (s *Server) Path() string { return s.path }

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int { return s.sessions.len() }

// RegisterRoutes mounts the endpoint. Other methods on the path get 405 from
// the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST "+s.path, s.handlePost)
	mux.HandleFunc("DELETE "+s.path, s.handleDelete)
}

// handleDelete terminates a session.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get(headerSessionID)
	if sessionID == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}
	if !s.sessions.end(sessionID) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	s.logger.Info("MCP session terminated", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// decodeRequest reads one JSON-RPC message from the body.
func decodeRequest(w http.ResponseWriter, r *http.Request) (JSONRPCRequest, *JSONRPCError) {
	var req JSONRPCRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodySize))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return req, rpcFail(JSONRPCInvalidRequest, "request body too large")
		}
		return req, rpcFail(JSONRPCParseError, "invalid JSON")
	}
	if req.JSONRPC != "2.0" {
		return req, rpcFail(JSONRPCInvalidRequest, "invalid JSON-RPC version")
	}
	return req, nil
}

// handlePost processes one JSON-RPC message.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	req, rpcErr := decodeRequest(w, r)
	if rpcErr != nil {
		writeRPC(w, s.logger, req.ID, nil, rpcErr)
		return
	}

	if req.Method == "initialize" {
		s.handleInitialize(w, r, req)
		return
	}

	if v := r.Header.Get(headerProtocolVersion); v != "" && !slices.Contains(supportedProtocolVersions, v) {
		http.Error(w, "Bad Request: unsupported MCP-Protocol-Version", http.StatusBadRequest)
		return
	}
	sessionID := r.Header.Get(headerSessionID)
	if sessionID == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}
	sess := s.sessions.lookup(sessionID)
	if sess == nil {
		// Unknown or terminated; the client must initialize again.
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	if req.isNotification() {
		s.logger.Debug("accepted MCP notification", "method", req.Method, "session_id", sessionID)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var result any
	switch req.Method {
	case "ping":
		result = map[string]any{}
	case "tools/list":
		result = s.listTools(sess)
	case "tools/call":
		result, rpcErr = s.callTool(r.Context(), sess, req.Params)
	default:
		rpcErr = rpcFail(JSONRPCMethodNotFound, "method not found")
	}
	writeRPC(w, s.logger, req.ID, result, rpcErr)
}

// handleInitialize opens a session scoped to the requested capabilities.
func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request, req JSONRPCRequest) {
	caps, err := s.sessionCapabilities(r.URL.Query().Get("capabilities"))
	if err != nil {
		writeRPC(w, s.logger, req.ID, nil, rpcFail(JSONRPCInvalidParams, err.Error()))
		return
	}

	sess := s.sessions.open(latestProtocolVersion, caps)
	s.logger.Info("MCP session created",
		"session_id", sess.id,
		"protocol_version", sess.protocolVersion,
		"capabilities", caps,
	)

	w.Header().Set(headerSessionID, sess.id)
	writeRPC(w, s.logger, req.ID, map[string]any{
		"protocolVersion": latestProtocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo":      map[string]any{"name": "tool-gateway", "version": s.version},
	}, nil)
}

// sessionCapabilities parses the comma-separated capabilities query. An empty
// query grants everything the gateway enables; naming a capability the
// gateway does not enable is an error.
func (s *Server) sessionCapabilities(raw string) ([]string, error) {
	if raw == "" {
		return slices.Clone(s.caps), nil
	}

	var caps []string
	for c := range strings.SplitSeq(raw, ",") {
		c = strings.TrimSpace(c)
		if c == "" || slices.Contains(caps, c) {
			continue
		}
		if !slices.Contains(s.caps, c) {
			return nil, fmt.Errorf("capability not enabled: %s", c)
		}
		caps = append(caps, c)
	}
	return caps, nil
}

func (s *Server) listTools(sess *session) MCPListToolsResult {
	defs := s.registry.GetToolsForCapabilities(sess.capabilities, false)
	tools := make([]MCPToolInfo, 0, len(defs))
	for _, def := range defs {
		info := MCPToolInfo{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: json.RawMessage(def.InputSchemaJSON),
		}
		if def.OutputSchemaJSON != "" {
			info.OutputSchema = json.RawMessage(def.OutputSchemaJSON)
		}
		tools = append(tools, info)
	}
	return MCPListToolsResult{Tools: tools}
}

// callTool checks scope, waits for the rate limiter, and runs the tool. The
// router records the call before it returns.
func (s *Server) callTool(ctx context.Context, sess *session, raw json.RawMessage) (any, *JSONRPCError) {
	var params MCPCallToolParams
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &params); err != nil {
			return nil, rpcFail(JSONRPCInvalidParams, "invalid params")
		}
	}
	if params.Name == "" {
		return nil, rpcFail(JSONRPCInvalidParams, "tool name is required")
	}

	def := s.router.GetToolDefinition(params.Name)
	if def == nil {
		return nil, rpcFail(JSONRPCInvalidParams, "tool not found")
	}
	if !packs.HasAllCapabilities(def.GetRequiredCapabilities(), sess.capSet) {
		return nil, rpcFail(JSONRPCInvalidRequest, "insufficient capabilities for this tool")
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.logger.Warn("tools/call rate limited", "tool_name", params.Name, "error", err)
			return nil, rpcFail(JSONRPCInternalError, "rate limit exceeded")
		}
	}

	requestID := uuid.NewString()
	resp, err := s.router.RouteToolCall(ctx, params.Name, params.Arguments, requestID, sess.id)
	if err != nil {
		return nil, s.toolCallError(params.Name, requestID, err)
	}

	if resp.Error != nil {
		s.logger.Debug("tools/call returned a tool error",
			"tool_name", params.Name,
			"request_id", requestID,
			"kind", resp.Error.Kind,
		)
		return MCPCallToolResult{Content: textContent(resp.Error.JSON()), IsError: true}, nil
	}
	return MCPCallToolResult{
		Content:           textContent(string(resp.Output)),
		StructuredContent: resp.Output,
	}, nil
}

// toolCallError maps a routing failure to a protocol error.
func (s *Server) toolCallError(toolName, requestID string, err error) *JSONRPCError {
	s.logger.Warn("tool execution failed",
		"tool_name", toolName,
		"request_id", requestID,
		"error", err,
	)

	switch {
	case errors.Is(err, packs.ErrToolNotFound):
		return rpcFail(JSONRPCInvalidParams, "tool not found")
	case errors.Is(err, context.DeadlineExceeded):
		return rpcFail(JSONRPCInternalError, "tool execution timed out")
	case errors.Is(err, context.Canceled):
		return rpcFail(JSONRPCInternalError, "request cancelled")
	default:
		return rpcFail(JSONRPCInternalError, "tool execution failed")
	}
}
