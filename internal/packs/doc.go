// ABOUTME: Package packs holds the tool registry and the call router.
// ABOUTME: Tools are grouped into capability-scoped packs that run in-process.

// Package packs manages the gateway's tool catalog.
//
// A pack is a named group of tools, each with a JSON input schema, an optional
// output schema, and the capabilities a caller needs to see it. The Registry
// rejects name collisions across packs. The Router looks tools up by name,
// bounds each call with a timeout, turns handler errors and panics into
// toolerr values, and hands every completed call to a CallRecorder.
package packs
