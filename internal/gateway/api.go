// ABOUTME: HTTP API handlers for the gateway's health, tool catalog, and conversation memory
// ABOUTME: Provides the memory read/clear/append endpoints and transcript rendering

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/2389/tool-gateway/internal/memory"
)

// maxTurnBodySize bounds POST /memory/turns bodies (1MB).
const maxTurnBodySize = 1 << 20

// MemoryResponse is the JSON response for the memory read endpoints.
type MemoryResponse struct {
	Memory []memory.Entry `json:"memory"`
}

// StatsResponse is the JSON response for GET /memory/stats.
type StatsResponse struct {
	Stats map[string]int `json:"stats"`
}

// ClearResponse is the JSON response for DELETE /memory/clear.
type ClearResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// AppendTurnRequest is the JSON request body for POST /memory/turns.
type AppendTurnRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolInfoResponse describes one tool for GET /tools.
type ToolInfoResponse struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Pack         string   `json:"pack"`
	Capabilities []string `json:"capabilities"`
	Enabled      bool     `json:"enabled"`
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Uptime       string `json:"uptime"`
	Workspace    string `json:"workspace"`
	Browser      string `json:"browser"`
	Tools        int    `json:"tools"`
	MCPSessions  int    `json:"mcp_sessions"`
	MCPEndpoint  string `json:"mcp_endpoint"`
	MemoryStatus string `json:"memory"`
}

// registerHTTPAPIRoutes registers the health, catalog, and memory endpoints.
func (g *Gateway) registerHTTPAPIRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", g.handleIndex)
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /tools", g.handleListTools)
	mux.HandleFunc("GET /memory", g.handleMemory)
	mux.HandleFunc("GET /memory/category/{category}", g.handleMemoryByCategory)
	mux.HandleFunc("GET /memory/stats", g.handleMemoryStats)
	mux.HandleFunc("GET /memory/transcript", g.handleTranscript)
	mux.HandleFunc("DELETE /memory/clear", g.handleClearMemory)
	mux.HandleFunc("POST /memory/turns", g.handleAppendTurn)
}

// handleIndex lists the endpoints and the valid memory categories.
func (g *Gateway) handleIndex(w http.ResponseWriter, _ *http.Request) {
	categories := make([]string, len(memory.Categories))
	for i, c := range memory.Categories {
		categories[i] = string(c)
	}
	g.writeJSON(w, http.StatusOK, map[string]any{
		"message": "tool-gateway: MCP tools with conversation memory",
		"version": g.version,
		"endpoints": map[string]string{
			"mcp":                g.mcpServer.Path(),
			"health":             "/health",
			"tools":              "/tools",
			"memory":             "/memory",
			"memory_by_category": "/memory/category/{category}",
			"tool_stats":         "/memory/stats",
			"transcript":         "/memory/transcript?format=md|html",
			"append_turn":        "/memory/turns",
			"clear_memory":       "/memory/clear",
		},
		"available_categories": categories,
	})
}

// handleHealth reports liveness plus a summary of the shared resources.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:       "ok",
		Version:      g.version,
		Uptime:       time.Since(g.startedAt).Round(time.Second).String(),
		Workspace:    g.boundary.Root(),
		Browser:      "disabled",
		Tools:        len(g.Tools()),
		MCPSessions:  g.mcpServer.SessionCount(),
		MCPEndpoint:  g.mcpServer.Path(),
		MemoryStatus: "ok",
	}
	if g.browser != nil {
		resp.Browser = g.browser.State().String()
	}

	status := http.StatusOK
	if _, err := g.memory.Stats(r.Context()); err != nil {
		g.logger.Warn("health check: memory store unavailable", "error", err)
		resp.Status = "degraded"
		resp.MemoryStatus = err.Error()
		status = http.StatusServiceUnavailable
	}
	g.writeJSON(w, status, resp)
}

// handleListTools lists every registered tool, marking the ones enabled.
func (g *Gateway) handleListTools(w http.ResponseWriter, _ *http.Request) {
	enabled := make(map[string]bool)
	for _, def := range g.Tools() {
		enabled[def.Name] = true
	}

	var tools []ToolInfoResponse
	for _, pack := range g.packRegistry.ListBuiltinPacks() {
		for _, tool := range pack.Tools {
			def := tool.Definition
			tools = append(tools, ToolInfoResponse{
				Name:         def.Name,
				Description:  def.Description,
				Pack:         pack.ID,
				Capabilities: def.GetRequiredCapabilities(),
				Enabled:      enabled[def.Name],
			})
		}
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"tools": tools, "count": len(tools)})
}

// handleMemory returns the full conversation log in chronological order.
func (g *Gateway) handleMemory(w http.ResponseWriter, r *http.Request) {
	entries, err := g.memory.All(r.Context())
	if err != nil {
		g.memoryError(w, "memory retrieval", err)
		return
	}
	g.writeJSON(w, http.StatusOK, MemoryResponse{Memory: nonNil(entries)})
}

// handleMemoryByCategory returns the entries of one category.
func (g *Gateway) handleMemoryByCategory(w http.ResponseWriter, r *http.Request) {
	category, err := memory.ParseCategory(r.PathValue("category"))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := g.memory.ByCategory(r.Context(), category)
	if err != nil {
		g.memoryError(w, "memory retrieval", err)
		return
	}
	g.writeJSON(w, http.StatusOK, MemoryResponse{Memory: nonNil(entries)})
}

// handleMemoryStats returns tool usage counts per category.
func (g *Gateway) handleMemoryStats(w http.ResponseWriter, r *http.Request) {
	stats, err := g.memory.Stats(r.Context())
	if err != nil {
		g.memoryError(w, "statistics", err)
		return
	}
	g.writeJSON(w, http.StatusOK, StatsResponse{Stats: stats.Map()})
}

// handleTranscript renders the log as Markdown (default) or HTML.
func (g *Gateway) handleTranscript(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "md"
	}
	if format != "md" && format != "html" {
		g.sendJSONError(w, http.StatusBadRequest, `format must be "md" or "html"`)
		return
	}

	entries, err := g.memory.All(r.Context())
	if err != nil {
		g.memoryError(w, "transcript", err)
		return
	}

	if format == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = io.WriteString(w, memory.RenderMarkdown(entries))
		return
	}

	html, err := memory.RenderHTML(entries)
	if err != nil {
		g.memoryError(w, "transcript", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

// handleClearMemory deletes every entry.
func (g *Gateway) handleClearMemory(w http.ResponseWriter, r *http.Request) {
	if err := g.memory.Clear(r.Context()); err != nil {
		g.memoryError(w, "memory clearing", err)
		return
	}
	g.logger.Info("conversation memory cleared")
	g.writeJSON(w, http.StatusOK, ClearResponse{Message: "Memory cleared successfully", Success: true})
}

// handleAppendTurn appends a user or agent turn to the log.
func (g *Gateway) handleAppendTurn(w http.ResponseWriter, r *http.Request) {
	req, err := parseAppendTurnRequest(http.MaxBytesReader(w, r.Body, maxTurnBodySize))
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	role, err := memory.ParseKind(req.Role)
	if err != nil {
		g.sendJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := g.recorder.RecordTurn(r.Context(), role, req.Content)
	if err != nil {
		g.memoryError(w, "memory append", err)
		return
	}
	g.writeJSON(w, http.StatusCreated, entry)
}

// parseAppendTurnRequest parses and validates an AppendTurnRequest.
func parseAppendTurnRequest(r io.Reader) (*AppendTurnRequest, error) {
	var req AppendTurnRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if req.Role == "" {
		return nil, errors.New("role is required")
	}
	if req.Content == "" {
		return nil, errors.New("content is required")
	}
	return &req, nil
}

// memoryError logs a store failure and reports it as a 500.
func (g *Gateway) memoryError(w http.ResponseWriter, what string, err error) {
	g.logger.Error(what+" failed", "error", err)
	g.sendJSONError(w, http.StatusInternalServerError, fmt.Sprintf("%s error: %v", what, err))
}

func nonNil(entries []memory.Entry) []memory.Entry {
	if entries == nil {
		return []memory.Entry{}
	}
	return entries
}

// writeJSON writes v as a JSON response with the given status.
func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Warn("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	g.writeJSON(w, status, map[string]string{"error": message})
}
