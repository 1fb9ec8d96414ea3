// ABOUTME: Gateway orchestrator that wires tool services, memory, and the HTTP server
// ABOUTME: Manages the shared browser, memory store, and MCP endpoint lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"time"

	"github.com/2389/tool-gateway/internal/browser"
	"github.com/2389/tool-gateway/internal/builtins"
	"github.com/2389/tool-gateway/internal/config"
	"github.com/2389/tool-gateway/internal/fsops"
	"github.com/2389/tool-gateway/internal/guard"
	"github.com/2389/tool-gateway/internal/mcp"
	"github.com/2389/tool-gateway/internal/memory"
	"github.com/2389/tool-gateway/internal/packs"
	"github.com/2389/tool-gateway/internal/shell"
	"github.com/2389/tool-gateway/internal/sysinfo"
	"github.com/2389/tool-gateway/internal/workspace"
)

// Gateway orchestrates the tool-gateway server components.
// It owns the tool services, the memory store, and one HTTP server that
// carries both the MCP endpoint and the memory API.
type Gateway struct {
	config     *config.Config
	logger     *slog.Logger
	version    string
	startedAt  time.Time
	httpServer *http.Server

	boundary *workspace.Boundary

	// browser is nil when the browser capability is disabled
	browser *browser.Manager

	// memory is the conversation log; recorder appends tool calls to it
	memory   memory.Store
	recorder *memory.Recorder

	// packRegistry holds every enabled tool pack
	packRegistry *packs.Registry

	// packRouter routes tool calls to packs and records them
	packRouter *packs.Router

	// mcpServer is the MCP endpoint
	mcpServer *mcp.Server

	// launch overrides the browser launcher in tests
	launch browser.LaunchFunc
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithBrowserLauncher replaces the rod launcher.
func WithBrowserLauncher(launch browser.LaunchFunc) Option {
	return func(g *Gateway) { g.launch = launch }
}

// validateCapabilities rejects capability names no pack provides.
func validateCapabilities(caps []string) error {
	for _, c := range caps {
		if !slices.Contains(builtins.AllCapabilities, c) {
			return fmt.Errorf("unknown capability %q (known: %v)", c, builtins.AllCapabilities)
		}
	}
	return nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, version string, opts ...Option) (*Gateway, error) {
	if err := validateCapabilities(cfg.Tools.Capabilities); err != nil {
		return nil, err
	}

	gw := &Gateway{
		config:    cfg,
		logger:    logger.With("component", "gateway"),
		version:   version,
		startedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(gw)
	}

	boundary, err := workspace.New(cfg.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("initializing workspace: %w", err)
	}
	gw.boundary = boundary

	store, err := memory.NewSQLiteStore(cfg.Memory.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing memory store: %w", err)
	}
	gw.memory = store
	gw.recorder = memory.NewRecorder(store, logger.With("component", "recorder"))

	gw.packRegistry = packs.NewRegistry(logger.With("component", "pack-registry"))
	gw.packRouter = packs.NewRouter(packs.RouterConfig{
		Registry: gw.packRegistry,
		Logger:   logger.With("component", "pack-router"),
		Timeout:  cfg.Tools.CallTimeout,
		Recorder: gw.recorder,
	})
	if err := builtins.RegisterAll(gw.packRegistry, gw.buildDeps(logger)); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("registering tool packs: %w", err)
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Registry:     gw.packRegistry,
		Router:       gw.packRouter,
		Logger:       logger.With("component", "mcp"),
		Path:         cfg.Server.Path,
		Capabilities: cfg.Tools.Capabilities,
		RateLimit:    cfg.Server.RateLimit,
		RateBurst:    cfg.Server.RateBurst,
		Version:      version,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}
	gw.mcpServer = mcpServer

	mux := http.NewServeMux()
	gw.mcpServer.RegisterRoutes(mux)
	gw.registerHTTPAPIRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	gw.logger.Info("gateway initialized",
		"workspace", boundary.Root(),
		"memory", cfg.Memory.Path,
		"capabilities", cfg.Tools.Capabilities,
		"tools", len(gw.packRegistry.GetToolsForCapabilities(cfg.Tools.Capabilities, false)),
	)
	return gw, nil
}

// buildDeps creates the service behind each enabled capability.
func (g *Gateway) buildDeps(logger *slog.Logger) builtins.Deps {
	cfg := g.config
	enabled := func(c string) bool { return slices.Contains(cfg.Tools.Capabilities, c) }

	deps := builtins.Deps{
		ShellTimeout:   cfg.Tools.ShellTimeout,
		BrowserTimeout: cfg.Browser.ToolTimeout,
		MaxWait:        cfg.Tools.MaxWait,
	}
	if enabled(builtins.CapFiles) {
		deps.FS = fsops.New(g.boundary, logger.With("component", "fsops"))
	}
	if enabled(builtins.CapTerminal) {
		cmdGuard := guard.New(cfg.Guard.ExtraPatterns...)
		logger.Debug("command guard loaded", "patterns", cmdGuard.Patterns())
		deps.Shell = shell.New(shell.Config{
			Boundary: g.boundary,
			Guard:    cmdGuard,
			Timeout:  cfg.Tools.ShellTimeout,
			Logger:   logger.With("component", "shell"),
		})
	}
	if enabled(builtins.CapBrowser) {
		g.browser = browser.NewManager(browser.Config{
			Headless:          cfg.Browser.Headless,
			Bin:               cfg.Browser.Bin,
			NoSandbox:         cfg.Browser.NoSandbox,
			ViewportWidth:     cfg.Browser.ViewportWidth,
			ViewportHeight:    cfg.Browser.ViewportHeight,
			NavigationTimeout: cfg.Browser.NavigationTimeout,
			Logger:            logger.With("component", "browser"),
			Launch:            g.launch,
		})
		deps.Browser = browser.NewTools(g.browser, g.boundary)
	}
	if enabled(builtins.CapSystem) {
		deps.System = sysinfo.New(sysinfo.Config{
			Boundary: g.boundary,
			Logger:   logger.With("component", "sysinfo"),
		})
	}
	return deps
}

// Handler returns the HTTP handler serving MCP and the memory API.
func (g *Gateway) Handler() http.Handler {
	return g.httpServer.Handler
}

// Tools returns the definitions of every tool the gateway exposes.
func (g *Gateway) Tools() []*packs.ToolDefinition {
	return g.packRegistry.GetToolsForCapabilities(g.config.Tools.Capabilities, false)
}

// Recorder returns the recorder that appends to conversation memory.
func (g *Gateway) Recorder() *memory.Recorder {
	return g.recorder
}

// setupTCPListener creates the HTTP listener.
func (g *Gateway) setupTCPListener() (net.Listener, error) {
	g.logger.Info("starting gateway", "http_addr", g.httpServer.Addr)

	ln, err := net.Listen("tcp", g.httpServer.Addr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)

	go func() {
		g.logger.Info("HTTP server listening",
			"addr", ln.Addr().String(),
			"mcp_path", g.mcpServer.Path(),
		)
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.setupTCPListener()
	if err != nil {
		_ = g.closeComponents()
		return err
	}
	return g.serve(ctx, ln)
}

func (g *Gateway) serve(ctx context.Context, ln net.Listener) error {
	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// closeComponents releases the browser, registry, and memory store.
func (g *Gateway) closeComponents() error {
	var errs []error
	if g.browser != nil {
		errs = appendCloseError(errs, "browser close", g.browser.Close())
	}
	if g.packRegistry != nil {
		g.packRegistry.Close()
	}
	if g.memory != nil {
		errs = appendCloseError(errs, "memory close", g.memory.Close())
	}
	return errors.Join(errs...)
}

// Shutdown gracefully stops the HTTP server and releases resources.
// In-flight tool calls finish (or hit ctx) before the browser is closed.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	if err := g.closeComponents(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}
