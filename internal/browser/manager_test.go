// ABOUTME: Tests for the browser session lifecycle using fake sessions.
// ABOUTME: Covers single-flight launch, relaunch after a crash, and shutdown.

package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/tool-gateway/internal/toolerr"
)

type fakeSession struct {
	pageErr error
	pingErr error
	pages   atomic.Int32
	closed  atomic.Bool
}

func (f *fakeSession) Page(context.Context) (*rod.Page, func(), error) {
	if f.pageErr != nil {
		return nil, nil, f.pageErr
	}
	f.pages.Add(1)
	return nil, func() {}, nil
}

func (f *fakeSession) Ping(context.Context) error { return f.pingErr }

func (f *fakeSession) Close() error {
	f.closed.Store(true)
	return nil
}

func noop(*rod.Page) error { return nil }

func TestWithPage_ConcurrentFirstUseLaunchesOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	gate := make(chan struct{})
	session := &fakeSession{}
	mgr := NewManager(Config{Launch: func(context.Context, Config) (Session, error) {
		<-gate
		return session, nil
	}})
	defer mgr.Close()

	const callers = 16
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- mgr.WithPage(context.Background(), "test", noop)
		}()
	}

	require.Eventually(t, func() bool { return mgr.State() == StateLaunching }, time.Second, time.Millisecond)
	close(gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.EqualValues(t, 1, mgr.Launches())
	assert.EqualValues(t, callers, session.pages.Load())
	assert.Equal(t, StateReady, mgr.State())
}

func TestWithPage_CancelledCallerDoesNotAbortLaunch(t *testing.T) {
	defer goleak.VerifyNone(t)

	gate := make(chan struct{})
	var launchCtxErr atomic.Value
	mgr := NewManager(Config{Launch: func(ctx context.Context, _ Config) (Session, error) {
		<-gate
		if ctx.Err() != nil {
			launchCtxErr.Store(ctx.Err())
		}
		return &fakeSession{}, nil
	}})
	defer mgr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.WithPage(ctx, "test", noop) }()

	require.Eventually(t, func() bool { return mgr.State() == StateLaunching }, time.Second, time.Millisecond)
	cancel()
	err := <-done
	require.Error(t, err)

	close(gate)
	require.Eventually(t, func() bool { return mgr.State() == StateReady }, time.Second, time.Millisecond)
	assert.Nil(t, launchCtxErr.Load(), "launch must not see the caller's cancellation")

	require.NoError(t, mgr.WithPage(context.Background(), "test", noop))
	assert.EqualValues(t, 1, mgr.Launches())
}

func TestWithPage_RelaunchesDeadSession(t *testing.T) {
	dead := &fakeSession{pageErr: errors.New("websocket closed"), pingErr: errors.New("no answer")}
	healthy := &fakeSession{}
	sessions := []*fakeSession{dead, healthy}
	var n atomic.Int32
	mgr := NewManager(Config{Launch: func(context.Context, Config) (Session, error) {
		return sessions[n.Add(1)-1], nil
	}})
	defer mgr.Close()

	calls := 0
	err := mgr.WithPage(context.Background(), "test", func(*rod.Page) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.EqualValues(t, 2, mgr.Launches())
	assert.True(t, dead.closed.Load(), "dead session is closed")
	assert.EqualValues(t, 1, healthy.pages.Load())
}

func TestWithPage_SecondFailureIsSessionError(t *testing.T) {
	mgr := NewManager(Config{Launch: func(context.Context, Config) (Session, error) {
		return &fakeSession{pageErr: errors.New("crashed"), pingErr: errors.New("gone")}, nil
	}})
	defer mgr.Close()

	err := mgr.WithPage(context.Background(), "browser_open_page", noop)
	require.Error(t, err)
	assert.Equal(t, toolerr.KindSession, toolerr.KindOf(err))
	assert.EqualValues(t, 2, mgr.Launches())
}

func TestWithPage_LiveSessionPageErrorNotRetried(t *testing.T) {
	mgr := NewManager(Config{Launch: func(context.Context, Config) (Session, error) {
		return &fakeSession{pageErr: errors.New("too many tabs")}, nil
	}})
	defer mgr.Close()

	err := mgr.WithPage(context.Background(), "test", noop)
	assert.Equal(t, toolerr.KindSession, toolerr.KindOf(err))
	assert.EqualValues(t, 1, mgr.Launches())
}

func TestWithPage_LaunchFailureCanRecover(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	mgr := NewManager(Config{Launch: func(context.Context, Config) (Session, error) {
		if fail.Load() {
			return nil, errors.New("chrome not found")
		}
		return &fakeSession{}, nil
	}})
	defer mgr.Close()

	err := mgr.WithPage(context.Background(), "test", noop)
	assert.Equal(t, toolerr.KindSession, toolerr.KindOf(err))
	assert.Equal(t, StateUninitialized, mgr.State())

	fail.Store(false)
	require.NoError(t, mgr.WithPage(context.Background(), "test", noop))
	assert.Equal(t, StateReady, mgr.State())
}

func TestWithPage_HandlerErrorPassesThrough(t *testing.T) {
	mgr := NewManager(Config{Launch: func(context.Context, Config) (Session, error) {
		return &fakeSession{}, nil
	}})
	defer mgr.Close()

	want := toolerr.Missing("browser_click", "selector")
	err := mgr.WithPage(context.Background(), "browser_click", func(*rod.Page) error { return want })
	assert.Same(t, want, err)
}

func TestWithPage_NilResultIsSuccess(t *testing.T) {
	mgr := NewManager(Config{Launch: func(context.Context, Config) (Session, error) {
		return &fakeSession{}, nil
	}})
	defer mgr.Close()

	err := mgr.WithPage(context.Background(), "browser_get_network_requests", func(*rod.Page) error {
		return nil
	})
	assert.True(t, err == nil, "expected an untyped nil error, got %#v", err)

	err = mgr.WithPage(context.Background(), "browser_get_network_requests", func(*rod.Page) error {
		var te *toolerr.Error
		return te
	})
	assert.True(t, err == nil, "a nil tool error must not surface as a failure, got %#v", err)
	assert.Nil(t, toolerr.From("browser_get_network_requests", err))
}

func TestClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	session := &fakeSession{}
	mgr := NewManager(Config{Launch: func(context.Context, Config) (Session, error) {
		return session, nil
	}})
	require.NoError(t, mgr.WithPage(context.Background(), "test", noop))

	require.NoError(t, mgr.Close())
	assert.True(t, session.closed.Load())
	assert.Equal(t, StateUninitialized, mgr.State())

	err := mgr.WithPage(context.Background(), "test", noop)
	assert.Equal(t, toolerr.KindSession, toolerr.KindOf(err))
	assert.ErrorIs(t, err, ErrClosed)
	assert.EqualValues(t, 1, mgr.Launches())
}

func TestConfigDefaults(t *testing.T) {
	mgr := NewManager(Config{})
	cfg := mgr.Config()
	assert.Equal(t, DefaultNavigationTimeout, cfg.NavigationTimeout)
	assert.Equal(t, DefaultViewportWidth, cfg.ViewportWidth)
	assert.Equal(t, DefaultNetworkWindow, cfg.NetworkWindow)
	assert.NotNil(t, cfg.Launch)
	assert.Equal(t, "uninitialized", mgr.State().String())
	assert.NoError(t, mgr.Close())
}
