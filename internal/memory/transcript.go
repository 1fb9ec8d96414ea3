// ABOUTME: Markdown and HTML transcript rendering of the conversation log.
// ABOUTME: HTML is produced from the Markdown with goldmark; raw HTML in entries is escaped.

package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
)

// RenderMarkdown renders entries as a Markdown transcript, oldest first.
func RenderMarkdown(entries []Entry) string {
	var sb strings.Builder
	sb.WriteString("# Conversation transcript\n\n")
	if len(entries) == 0 {
		sb.WriteString("_No entries._\n")
		return sb.String()
	}

	for _, e := range entries {
		stamp := e.Timestamp.UTC().Format(time.RFC3339)
		switch e.Kind {
		case KindUser:
			fmt.Fprintf(&sb, "## User (%s)\n\n%s\n\n", stamp, e.Content)
		case KindAgent:
			fmt.Fprintf(&sb, "## Agent (%s)\n\n%s\n\n", stamp, e.Content)
		case KindTool:
			fmt.Fprintf(&sb, "## Tool `%s` [%s] (%s)\n\n", e.ToolName, e.Category, stamp)
			if len(e.ToolArgs) > 0 {
				sb.WriteString("**Arguments**\n\n")
				writeFenced(&sb, "json", indentJSON(e.ToolArgs))
			}
			if e.ToolResult != "" {
				sb.WriteString("**Result**\n\n")
				writeFenced(&sb, "", e.ToolResult)
			}
		default:
			fmt.Fprintf(&sb, "## %s (%s)\n\n%s\n\n", e.Kind, stamp, e.Content)
		}
	}
	return sb.String()
}

// RenderHTML renders entries as an HTML fragment.
func RenderHTML(entries []Entry) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(RenderMarkdown(entries)), &buf); err != nil {
		return "", fmt.Errorf("rendering transcript: %w", err)
	}
	return buf.String(), nil
}

// writeFenced writes body in a code fence longer than any backtick run it
// contains.
func writeFenced(sb *strings.Builder, lang, body string) {
	fence := "```"
	for strings.Contains(body, fence) {
		fence += "`"
	}
	sb.WriteString(fence + lang + "\n")
	sb.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		sb.WriteByte('\n')
	}
	sb.WriteString(fence + "\n\n")
}

func indentJSON(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
