// ABOUTME: Package mcp serves the tool catalog over the Model Context Protocol.
// ABOUTME: Streamable HTTP transport, JSON-RPC 2.0, one endpoint path.

// Package mcp implements the Model Context Protocol server for tool access.
//
// # Protocol
//
// The server speaks JSON-RPC 2.0 over a single HTTP endpoint (default /mcp):
//
//   - POST: initialize, ping, tools/list, tools/call, and notifications
//   - DELETE: terminate the session named by Mcp-Session-Id
//   - GET: 405, server-initiated streams are not offered
//
// initialize creates a session and returns its id in the Mcp-Session-Id
// header. Every later request must carry that header.
//
// # Capabilities
//
// The gateway enables a set of capabilities (files, terminal, browser,
// system, utility). A session gets all of them unless the client narrows the
// set on initialize:
//
//	POST /mcp?capabilities=files,utility
//
// Asking for a capability the gateway does not enable fails the handshake.
// tools/list only shows tools the session may call, and tools/call rejects
// the rest.
//
// # Tool Results
//
// A successful call returns the tool's JSON object both as text content and
// as structuredContent. A failed call returns isError with the JSON error
// body as text:
//
//	{"kind":"domain_error","op":"math_operation","message":"division by zero"}
//
// Protocol problems (unknown tool, bad params, rate limit) are JSON-RPC
// errors instead.
//
// # Rate Limiting
//
// tools/call is gated by a token bucket when Config.RateLimit is positive.
// Callers wait for a token up to their request deadline.
package mcp
