// ABOUTME: System and network tools: host info, ping, downloads, processes, HTTP.
// ABOUTME: Downloads are confined to the workspace; process kills refuse init and self.

package sysinfo

import (
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/2389/tool-gateway/internal/workspace"
)

// Default bounds for network operations.
const (
	DefaultPingTimeout = 30 * time.Second
	DefaultHTTPTimeout = 10 * time.Second
	MaxPingCount       = 20
	MaxResponseBytes   = 10 << 20
)

// Config configures a Service.
type Config struct {
	Boundary    *workspace.Boundary
	HTTPClient  *http.Client
	PingTimeout time.Duration
	Logger      *slog.Logger
}

// Service implements the system tool set.
type Service struct {
	boundary    *workspace.Boundary
	client      *http.Client
	pingTimeout time.Duration
	logger      *slog.Logger
	selfPID     int

	// pingCommand builds the ping argv; replaced in tests.
	pingCommand func(host string, count int) []string
}

// New creates a Service.
func New(cfg Config) *Service {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = DefaultPingTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		boundary:    cfg.Boundary,
		client:      cfg.HTTPClient,
		pingTimeout: cfg.PingTimeout,
		logger:      cfg.Logger.With("component", "sysinfo"),
		selfPID:     os.Getpid(),
		pingCommand: pingArgv,
	}
}

// Info describes the host running the gateway.
type Info struct {
	OS        string     `json:"os"`
	OSVersion string     `json:"os_version"`
	Platform  string     `json:"platform"`
	CPU       string     `json:"cpu"`
	NumCPU    int        `json:"num_cpu"`
	Hostname  string     `json:"hostname"`
	Cwd       string     `json:"cwd"`
	Workspace string     `json:"workspace"`
	GoVersion string     `json:"go_version"`
	DiskUsage *DiskUsage `json:"disk_usage,omitempty"`
}

// DiskUsage reports capacity of the filesystem holding the workspace.
type DiskUsage struct {
	Total      uint64 `json:"total"`
	Used       uint64 `json:"used"`
	Free       uint64 `json:"free"`
	TotalHuman string `json:"total_human"`
	UsedHuman  string `json:"used_human"`
	FreeHuman  string `json:"free_human"`
}

// SystemInfo gathers host details and disk usage for the workspace volume.
func (s *Service) SystemInfo() *Info {
	hostname, _ := os.Hostname()
	cwd, _ := os.Getwd()

	info := &Info{
		OS:        runtime.GOOS,
		OSVersion: kernelRelease(),
		Platform:  runtime.GOOS + "-" + runtime.GOARCH,
		CPU:       runtime.GOARCH,
		NumCPU:    runtime.NumCPU(),
		Hostname:  hostname,
		Cwd:       cwd,
		GoVersion: runtime.Version(),
	}
	if s.boundary != nil {
		info.Workspace = s.boundary.Root()
		if du, err := diskUsage(s.boundary.Root()); err == nil {
			info.DiskUsage = du
		} else {
			s.logger.Debug("disk usage unavailable", "error", err)
		}
	}
	return info
}
