// ABOUTME: Configuration loading and parsing for tool-gateway
// ABOUTME: Supports YAML or TOML files with env var expansion, defaults, and env overrides

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ConfigEnvVar names the environment variable holding the config file path.
const ConfigEnvVar = "TOOL_GATEWAY_CONFIG"

// Config represents the complete tool-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Workspace WorkspaceConfig `yaml:"workspace" toml:"workspace"`
	Browser   BrowserConfig   `yaml:"browser" toml:"browser"`
	Tools     ToolsConfig     `yaml:"tools" toml:"tools"`
	Guard     GuardConfig     `yaml:"guard" toml:"guard"`
	Memory    MemoryConfig    `yaml:"memory" toml:"memory"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig holds the HTTP listener and MCP endpoint configuration
type ServerConfig struct {
	Host      string  `yaml:"host" toml:"host"`
	Port      int     `yaml:"port" toml:"port"`
	Path      string  `yaml:"path" toml:"path"`
	RateLimit float64 `yaml:"rate_limit" toml:"rate_limit"` // tools/call per second, 0 disables
	RateBurst int     `yaml:"rate_burst" toml:"rate_burst"`

	ShutdownTimeout    time.Duration `yaml:"-" toml:"-"`
	ShutdownTimeoutRaw string        `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// WorkspaceConfig holds the filesystem boundary
type WorkspaceConfig struct {
	Root string `yaml:"root" toml:"root"`
}

// BrowserConfig holds the shared browser session settings
type BrowserConfig struct {
	Headless       bool   `yaml:"headless" toml:"headless"`
	Bin            string `yaml:"bin" toml:"bin"` // empty means download or find a Chromium
	NoSandbox      bool   `yaml:"no_sandbox" toml:"no_sandbox"`
	ViewportWidth  int    `yaml:"viewport_width" toml:"viewport_width"`
	ViewportHeight int    `yaml:"viewport_height" toml:"viewport_height"`

	NavigationTimeout    time.Duration `yaml:"-" toml:"-"`
	NavigationTimeoutRaw string        `yaml:"navigation_timeout" toml:"navigation_timeout"`
	ToolTimeout          time.Duration `yaml:"-" toml:"-"`
	ToolTimeoutRaw       string        `yaml:"tool_timeout" toml:"tool_timeout"`
}

// ToolsConfig selects tool packs and bounds long-running tools
type ToolsConfig struct {
	// Capabilities enables tool packs by capability name.
	Capabilities []string `yaml:"capabilities" toml:"capabilities"`

	CallTimeout     time.Duration `yaml:"-" toml:"-"`
	CallTimeoutRaw  string        `yaml:"call_timeout" toml:"call_timeout"`
	ShellTimeout    time.Duration `yaml:"-" toml:"-"`
	ShellTimeoutRaw string        `yaml:"shell_timeout" toml:"shell_timeout"`
	MaxWait         time.Duration `yaml:"-" toml:"-"`
	MaxWaitRaw      string        `yaml:"max_wait" toml:"max_wait"`
}

// GuardConfig extends the built-in command denylist
type GuardConfig struct {
	ExtraPatterns []string `yaml:"extra_patterns" toml:"extra_patterns"`
}

// MemoryConfig holds the conversation memory database location
type MemoryConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // text or json
}

// SlogLevel returns the configured level. Validate rejects unknown levels,
// so this falls back to info only for unvalidated configs.
func (l LoggingConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Default returns the configuration used when no file sets a value.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8000,
			Path:               "/mcp",
			ShutdownTimeoutRaw: "10s",
		},
		Workspace: WorkspaceConfig{Root: "workspace"},
		Browser: BrowserConfig{
			Headless:             true,
			ViewportWidth:        1280,
			ViewportHeight:       720,
			NavigationTimeoutRaw: "30s",
			ToolTimeoutRaw:       "2m",
		},
		Tools: ToolsConfig{
			Capabilities:    []string{"files", "terminal", "browser", "system", "utility"},
			CallTimeoutRaw:  "60s",
			ShellTimeoutRaw: "5m",
			MaxWaitRaw:      "5m",
		},
		Memory:  MemoryConfig{Path: "memory.db"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load builds a Config from defaults, the file at path (if path is not
// empty), and environment overrides, in that order. Environment variables
// in the format ${VAR_NAME} are expanded in the file. The file format is
// chosen by extension: .yaml, .yml, or .toml.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := decodeFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Find returns the config file to load: the path in TOOL_GATEWAY_CONFIG,
// else the first of config.yaml, config.yml, config.toml in the current
// directory, else "" to run on defaults.
func Find() string {
	if p := os.Getenv(ConfigEnvVar); p != "" {
		return p
	}
	for _, name := range []string{"config.yaml", "config.yml", "config.toml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

func decodeFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewBufferString(expanded))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parsing config file: %w", err)
		}
	case ".toml":
		md, err := toml.Decode(expanded, cfg)
		if err != nil {
			return fmt.Errorf("parsing config file: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("parsing config file: unknown key %q", undecoded[0].String())
		}
	default:
		return fmt.Errorf("unsupported config file extension %q (want .yaml, .yml, or .toml)", filepath.Ext(path))
	}
	return nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// applyEnv overlays the deployment environment variables onto cfg.
func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("MCP_HOST"); ok {
		cfg.Server.Host = v
	}
	if v, ok := os.LookupEnv("MCP_PORT"); ok {
		port, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("MCP_PORT %q: %w", v, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := os.LookupEnv("MCP_PATH"); ok {
		cfg.Server.Path = v
	}
	if v, ok := os.LookupEnv("MCP_WORKSPACE"); ok {
		cfg.Workspace.Root = v
	}
	if v, ok := os.LookupEnv("BROWSER_HEADLESS"); ok {
		headless, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("BROWSER_HEADLESS %q: %w", v, err)
		}
		cfg.Browser.Headless = headless
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv("MEMORY_DB_PATH"); ok {
		cfg.Memory.Path = v
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return fmt.Errorf("server.path must start with '/', got %q", c.Server.Path)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if c.Server.RateBurst < 0 {
		return fmt.Errorf("server.rate_burst must not be negative")
	}

	if c.Workspace.Root == "" {
		return fmt.Errorf("workspace.root is required")
	}
	if c.Memory.Path == "" {
		return fmt.Errorf("memory.path is required")
	}

	if c.Browser.ViewportWidth <= 0 || c.Browser.ViewportHeight <= 0 {
		return fmt.Errorf("browser viewport must be positive, got %dx%d", c.Browser.ViewportWidth, c.Browser.ViewportHeight)
	}

	if len(c.Tools.Capabilities) == 0 {
		return fmt.Errorf("tools.capabilities must enable at least one capability")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	for _, p := range c.Guard.ExtraPatterns {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("guard.extra_patterns must not contain empty patterns")
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"server.shutdown_timeout", cfg.Server.ShutdownTimeoutRaw, &cfg.Server.ShutdownTimeout},
		{"browser.navigation_timeout", cfg.Browser.NavigationTimeoutRaw, &cfg.Browser.NavigationTimeout},
		{"browser.tool_timeout", cfg.Browser.ToolTimeoutRaw, &cfg.Browser.ToolTimeout},
		{"tools.call_timeout", cfg.Tools.CallTimeoutRaw, &cfg.Tools.CallTimeout},
		{"tools.shell_timeout", cfg.Tools.ShellTimeoutRaw, &cfg.Tools.ShellTimeout},
		{"tools.max_wait", cfg.Tools.MaxWaitRaw, &cfg.Tools.MaxWait},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative, got %s", f.name, f.raw)
		}
		*f.dst = d
	}
	return nil
}
