// Package gateway orchestrates the tool-gateway server components.
//
// # Overview
//
// The Gateway owns every long-lived resource: the workspace boundary, the
// shared browser manager, the SQLite conversation memory, the tool pack
// registry and router, and one HTTP server. That server carries both the
// MCP endpoint and the memory API.
//
//	gw, err := gateway.New(cfg, logger, version)
//	if err != nil {
//	    return err
//	}
//	return gw.Run(ctx) // blocks until ctx is canceled
//
// Only the capabilities listed in tools.capabilities are registered. The
// browser manager is built only when the browser capability is enabled and
// launches Chromium on the first browser tool call.
//
// # Recording
//
// Every tool call routed through MCP is appended to memory before the
// response is returned, including calls that fail. User and agent turns are
// appended through POST /memory/turns.
//
// # HTTP API
//
//	GET    /                            endpoint index and memory categories
//	GET    /health                      liveness; 503 when memory is unavailable
//	GET    /tools                       registered tools
//	POST   /mcp                         MCP JSON-RPC (path configurable)
//	GET    /memory                      full log, oldest first
//	GET    /memory/category/{category}  entries of one category
//	GET    /memory/stats                tool counts per category
//	GET    /memory/transcript           ?format=md (default) or html
//	POST   /memory/turns                {"role": "user"|"agent", "content": "..."}
//	DELETE /memory/clear                delete every entry
//
// Errors are JSON objects of the form {"error": "..."}.
//
// # Shutdown
//
// Run returns after ctx is canceled. The HTTP server drains in-flight
// requests within server.shutdown_timeout, then the browser, the registry,
// and the memory store are closed.
package gateway
