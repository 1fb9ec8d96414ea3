// ABOUTME: Owns the single shared browser session and its lifecycle.
// ABOUTME: Launch is single-flight; a crashed session is replaced on next use.

package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"golang.org/x/sync/singleflight"

	"github.com/2389/tool-gateway/internal/toolerr"
)

// ErrClosed is returned once the manager has been shut down.
var ErrClosed = errors.New("browser manager closed")

// Defaults applied when Config leaves a field zero.
const (
	DefaultViewportWidth     = 1280
	DefaultViewportHeight    = 720
	DefaultNavigationTimeout = 30 * time.Second
	DefaultScrollPause       = 2 * time.Second
	DefaultNetworkWindow     = 5 * time.Second
)

// State is the lifecycle state of the shared session.
type State int32

const (
	StateUninitialized State = iota
	StateLaunching
	StateReady
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLaunching:
		return "launching"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session is a launched browser able to hand out pages.
type Session interface {
	// Page opens a blank page. release closes it.
	Page(ctx context.Context) (page *rod.Page, release func(), err error)
	// Ping reports whether the browser process still answers.
	Ping(ctx context.Context) error
	Close() error
}

// LaunchFunc starts a new browser session.
type LaunchFunc func(ctx context.Context, cfg Config) (Session, error)

// Config controls how the browser is launched and driven.
type Config struct {
	Headless          bool
	Bin               string
	NoSandbox         bool
	ViewportWidth     int
	ViewportHeight    int
	NavigationTimeout time.Duration
	ScrollPause       time.Duration
	NetworkWindow     time.Duration
	Logger            *slog.Logger
	// Launch replaces the default rod launcher, mainly for tests.
	Launch LaunchFunc
}

func (c *Config) applyDefaults() {
	if c.ViewportWidth <= 0 {
		c.ViewportWidth = DefaultViewportWidth
	}
	if c.ViewportHeight <= 0 {
		c.ViewportHeight = DefaultViewportHeight
	}
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = DefaultNavigationTimeout
	}
	if c.ScrollPause <= 0 {
		c.ScrollPause = DefaultScrollPause
	}
	if c.NetworkWindow <= 0 {
		c.NetworkWindow = DefaultNetworkWindow
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Launch == nil {
		c.Launch = LaunchRod
	}
}

// Manager hands out pages from one lazily launched browser.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	group singleflight.Group

	mu       sync.RWMutex
	state    State
	session  Session
	closed   bool
	launches atomic.Int64
}

// NewManager creates a manager. No browser is started until the first call.
func NewManager(cfg Config) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "browser"),
	}
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Launches returns how many browsers have been started.
func (m *Manager) Launches() int64 { return m.launches.Load() }

// WithPage opens a page on the shared session, runs fn, and closes the page.
// When page creation fails on a session that no longer answers, the session
// is replaced and the call retried once.
func (m *Manager) WithPage(ctx context.Context, op string, fn func(page *rod.Page) error) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		s, err := m.acquire(ctx, op)
		if err != nil {
			return err
		}

		page, release, err := s.Page(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return toolerr.From(op, ctx.Err())
			}
			lastErr = err
			if pingErr := s.Ping(ctx); pingErr != nil {
				m.logger.Warn("browser session unresponsive, relaunching",
					"op", op,
					"error", pingErr,
				)
				m.invalidate(s)
				continue
			}
			return toolerr.Session(op, err)
		}

		defer release()
		return pageResult(fn(page))
	}
	return toolerr.Session(op, lastErr)
}

// pageResult drops a nil *toolerr.Error carried in a non-nil error so callers
// can compare the result against nil.
func pageResult(err error) error {
	if te, ok := err.(*toolerr.Error); ok && te == nil {
		return nil
	}
	return err
}

// acquire returns the ready session, launching it if needed. Concurrent
// callers share one launch; a caller that gives up does not abort it.
func (m *Manager) acquire(ctx context.Context, op string) (Session, error) {
	m.mu.RLock()
	s, closed := m.session, m.closed
	m.mu.RUnlock()
	if closed {
		return nil, toolerr.Session(op, ErrClosed)
	}
	if s != nil {
		return s, nil
	}

	launchCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan("launch", func() (interface{}, error) {
		return m.launch(launchCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, ErrClosed) {
				return nil, toolerr.Session(op, res.Err)
			}
			return nil, toolerr.Session(op, fmt.Errorf("launching browser: %w", res.Err))
		}
		return res.Val.(Session), nil
	case <-ctx.Done():
		return nil, toolerr.From(op, ctx.Err())
	}
}

func (m *Manager) launch(ctx context.Context) (Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.session != nil {
		s := m.session
		m.mu.Unlock()
		return s, nil
	}
	m.state = StateLaunching
	m.mu.Unlock()

	start := time.Now()
	s, err := m.cfg.Launch(ctx, m.cfg)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = StateUninitialized
		m.logger.Error("browser launch failed", "error", err)
		return nil, err
	}
	m.launches.Add(1)
	if m.closed {
		_ = s.Close()
		m.state = StateUninitialized
		return nil, ErrClosed
	}
	m.session = s
	m.state = StateReady
	m.logger.Info("browser launched",
		"headless", m.cfg.Headless,
		"duration", time.Since(start),
	)
	return s, nil
}

// invalidate drops s if it is still the current session.
func (m *Manager) invalidate(s Session) {
	m.mu.Lock()
	if m.session == s {
		m.session = nil
		m.state = StateUninitialized
	}
	m.mu.Unlock()
	if err := s.Close(); err != nil {
		m.logger.Debug("closing dead browser session", "error", err)
	}
}

// Close shuts the browser down. Later calls fail with a session error.
func (m *Manager) Close() error {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.closed = true
	m.state = StateUninitialized
	m.mu.Unlock()

	if s == nil {
		return nil
	}
	m.logger.Info("closing browser")
	return s.Close()
}

type rodSession struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      Config
}

// LaunchRod starts Chromium through the rod launcher and connects to it.
func LaunchRod(ctx context.Context, cfg Config) (Session, error) {
	l := launcher.New().Headless(cfg.Headless).NoSandbox(cfg.NoSandbox)
	if cfg.Bin != "" {
		l = l.Bin(cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}
	return &rodSession{browser: browser, launcher: l, cfg: cfg}, nil
}

func (s *rodSession) Page(ctx context.Context) (*rod.Page, func(), error) {
	page, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, nil, fmt.Errorf("create page: %w", err)
	}
	release := func() {
		_ = page.Context(context.Background()).Close()
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             s.cfg.ViewportWidth,
		Height:            s.cfg.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		release()
		return nil, nil, fmt.Errorf("set viewport: %w", err)
	}
	return page, release, nil
}

func (s *rodSession) Ping(ctx context.Context) error {
	_, err := s.browser.Context(ctx).Version()
	return err
}

func (s *rodSession) Close() error {
	err := s.browser.Close()
	s.launcher.Kill()
	s.launcher.Cleanup()
	return err
}
