// ABOUTME: Package builtins defines the gateway's tool packs.
// ABOUTME: Each pack wraps one service and is gated by one capability.

// Package builtins provides the gateway's built-in tool packs.
//
// # Tool Packs
//
// The package provides 5 packs with 40 tools:
//
// Files Pack (builtin:files) - requires "files" capability:
//
//   - list_dir, read_file, write_file, delete_file
//   - create_folder, delete_folder, get_file_info, directory_tree
//   - search_files, search_and_replace, file_diff
//   - zip_files, unzip_file, format_code
//
// Terminal Pack (builtin:terminal) - requires "terminal" capability:
//
//   - execute_shell_command: run a guarded shell command in the workspace
//
// Browser Pack (builtin:browser) - requires "browser" capability:
//
//   - browser_open_page, browser_screenshot, browser_click, browser_type
//   - browser_extract, browser_wait_for_element, browser_scroll_and_extract
//   - browser_fill_form, browser_handle_dialog, browser_upload_file
//   - browser_get_network_requests, browser_execute_javascript
//   - browser_get_page_info, browser_navigate_with_cookies
//   - browser_compare_pages, browser_generate_accessibility_report
//
// System Pack (builtin:system) - requires "system" capability:
//
//   - get_system_info, ping_host, download_url, http_request
//   - list_processes, kill_process
//
// Utility Pack (builtin:utility) - requires "utility" capability:
//
//   - math_operation, time_operation, wait_operation
//
// # Registration
//
//	builtins.RegisterAll(registry, builtins.Deps{FS: fs, Shell: exec, ...})
//
// A nil service in Deps skips its pack. The utility pack has no service and
// is always registered.
//
// # Results
//
// Every handler returns a JSON object so MCP clients can rely on
// structuredContent. Failures are *toolerr.Error values; the router reports
// them to the caller as a tool error rather than a protocol error.
package builtins
