// ABOUTME: System pack: host information, processes, and outbound network calls.
// ABOUTME: Requires the "system" capability.

package builtins

import (
	"context"
	"encoding/json"
	"time"

	"github.com/2389/tool-gateway/internal/packs"
	"github.com/2389/tool-gateway/internal/sysinfo"
	"github.com/2389/tool-gateway/internal/toolerr"
)

// SystemPack creates the system pack over svc.
func SystemPack(svc *sysinfo.Service) *packs.BuiltinPack {
	s := &systemHandlers{svc: svc}
	return &packs.BuiltinPack{
		ID: "builtin:system",
		Tools: []*packs.BuiltinTool{
			{
				Definition: &packs.ToolDefinition{
					Name:                 "get_system_info",
					Description:          "Describe the host: OS, CPU, hostname, workspace, and disk usage",
					InputSchemaJSON:      `{"type":"object","properties":{}}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"os":{"type":"string"},"os_version":{"type":"string"},"platform":{"type":"string"},"cpu":{"type":"string"},"num_cpu":{"type":"integer"},"hostname":{"type":"string"},"cwd":{"type":"string"},"workspace":{"type":"string"},"go_version":{"type":"string"},"disk_usage":{"type":"object"}}}`,
					RequiredCapabilities: []string{CapSystem},
				},
				Handler: s.SystemInfo,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "ping_host",
					Description:          "Ping a host and return the command output",
					InputSchemaJSON:      `{"type":"object","properties":{"host":{"type":"string"},"count":{"type":"integer","minimum":1,"maximum":20,"default":1}},"required":["host"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"stdout":{"type":"string"},"stderr":{"type":"string"},"returncode":{"type":"integer"}}}`,
					RequiredCapabilities: []string{CapSystem},
					TimeoutSeconds:       timeoutSeconds(sysinfo.DefaultPingTimeout, 5*time.Second),
				},
				Handler: s.Ping,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "download_url",
					Description:          "Download a URL into a workspace file",
					InputSchemaJSON:      `{"type":"object","properties":{"url":{"type":"string"},"save_path":{"type":"string"}},"required":["url","save_path"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"path":{"type":"string"},"bytes":{"type":"integer"},"size_human":{"type":"string"},"content_type":{"type":"string"}}}`,
					RequiredCapabilities: []string{CapSystem},
					TimeoutSeconds:       300,
				},
				Handler: s.Download,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "list_processes",
					Description:          "List running processes",
					InputSchemaJSON:      `{"type":"object","properties":{}}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"processes":{"type":"array","items":{"type":"object","properties":{"pid":{"type":"integer"},"ppid":{"type":"integer"},"name":{"type":"string"}}}},"count":{"type":"integer"}}}`,
					RequiredCapabilities: []string{CapSystem},
				},
				Handler: s.ListProcesses,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "kill_process",
					Description:          "Kill a process by pid. Refuses pid 1 and the gateway itself.",
					InputSchemaJSON:      `{"type":"object","properties":{"pid":{"type":"integer","minimum":2}},"required":["pid"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"pid":{"type":"integer"},"status":{"type":"string"}}}`,
					RequiredCapabilities: []string{CapSystem},
				},
				Handler: s.KillProcess,
			},
			{
				Definition: &packs.ToolDefinition{
					Name:                 "http_request",
					Description:          "Make an HTTP request; json_data takes precedence over data",
					InputSchemaJSON:      `{"type":"object","properties":{"method":{"type":"string","default":"GET"},"url":{"type":"string"},"headers":{"type":"object","additionalProperties":{"type":"string"}},"data":{"type":"string"},"json_data":{},"timeout":{"type":"number","description":"seconds","default":10}},"required":["url"]}`,
					OutputSchemaJSON:     `{"type":"object","properties":{"status_code":{"type":"integer"},"headers":{"type":"object"},"text":{"type":"string"},"json":{}}}`,
					RequiredCapabilities: []string{CapSystem},
					TimeoutSeconds:       120,
				},
				Handler: s.HTTPRequest,
			},
		},
	}
}

type systemHandlers struct {
	svc *sysinfo.Service
}

func (s *systemHandlers) SystemInfo(_ context.Context, _ string, _ json.RawMessage) (json.RawMessage, error) {
	return encode(s.svc.SystemInfo())
}

type pingInput struct {
	Host  string `json:"host"`
	Count int    `json:"count"`
}

func (s *systemHandlers) Ping(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in pingInput
	if err := decode("ping_host", input, &in); err != nil {
		return nil, err
	}
	res, err := s.svc.Ping(ctx, in.Host, in.Count)
	if err != nil {
		return nil, err
	}
	return encode(res)
}

type downloadInput struct {
	URL      string `json:"url"`
	SavePath string `json:"save_path"`
}

func (s *systemHandlers) Download(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in downloadInput
	if err := decode("download_url", input, &in); err != nil {
		return nil, err
	}
	res, err := s.svc.Download(ctx, in.URL, in.SavePath)
	if err != nil {
		return nil, err
	}
	return encode(res)
}

func (s *systemHandlers) ListProcesses(_ context.Context, _ string, _ json.RawMessage) (json.RawMessage, error) {
	procs, err := s.svc.Processes()
	if err != nil {
		return nil, err
	}
	return encode(map[string]any{"processes": procs, "count": len(procs)})
}

type killInput struct {
	PID *int `json:"pid"`
}

func (s *systemHandlers) KillProcess(_ context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	const op = "kill_process"
	var in killInput
	if err := decode(op, input, &in); err != nil {
		return nil, err
	}
	if in.PID == nil {
		return nil, toolerr.Missing(op, "pid")
	}
	if err := s.svc.Kill(*in.PID); err != nil {
		return nil, err
	}
	return encode(map[string]any{"pid": *in.PID, "status": "killed"})
}

func (s *systemHandlers) HTTPRequest(ctx context.Context, _ string, input json.RawMessage) (json.RawMessage, error) {
	var in sysinfo.HTTPRequest
	if err := decode("http_request", input, &in); err != nil {
		return nil, err
	}
	res, err := s.svc.Do(ctx, in)
	if err != nil {
		return nil, err
	}
	return encode(res)
}
