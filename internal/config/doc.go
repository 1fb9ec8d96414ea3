// Package config handles configuration loading for tool-gateway.
//
// # Sources
//
// Configuration is built in layers, each overriding the previous one:
//
//  1. Built-in defaults (Default)
//  2. A YAML or TOML file, chosen by extension
//  3. Deployment environment variables
//
// The file is found by Find: the TOOL_GATEWAY_CONFIG path, else config.yaml,
// config.yml or config.toml in the current directory. Without a file the
// gateway runs on defaults plus environment.
//
// # Environment Variables
//
// File contents may reference variables as ${VAR_NAME}; unset variables
// expand to the empty string. After the file is applied these variables
// override it directly:
//
//	MCP_HOST, MCP_PORT, MCP_PATH   listener and endpoint path
//	MCP_WORKSPACE                  workspace root
//	BROWSER_HEADLESS               true or false
//	LOG_LEVEL                      debug, info, warn, error
//	MEMORY_DB_PATH                 SQLite file for conversation memory
//
// # Example
//
//	server:
//	  host: "0.0.0.0"
//	  port: 8000
//	  path: "/mcp"
//	  rate_limit: 10     # tools/call per second, 0 disables
//	  rate_burst: 20
//
//	workspace:
//	  root: "/app/workspace"
//
//	browser:
//	  headless: true
//	  navigation_timeout: "30s"
//	  tool_timeout: "2m"
//
//	tools:
//	  capabilities: [files, terminal, browser, system, utility]
//	  shell_timeout: "5m"
//	  max_wait: "5m"
//
//	guard:
//	  extra_patterns: ["curl | sh"]
//
//	memory:
//	  path: "memory.db"
//
//	logging:
//	  level: "info"
//	  format: "text"   # or json
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax ("30s", "5m").
// Negative durations are rejected.
//
// # Validation
//
// Load rejects unknown keys, out-of-range ports, relative endpoint paths, an
// empty capability list, and unknown log levels or formats.
package config
