package loader

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingInjector struct {
	mu      sync.Mutex
	scripts []string
	fail    map[string]bool
}

func (r *recordingInjector) Inject(_ context.Context, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail[path] {
		return &ScriptLoadError{Path: path}
	}
	r.scripts = append(r.scripts, path)
	return nil
}

func echoLoad(delay time.Duration) Load {
	return func(ctx context.Context, moduleIDs []string) ([]any, error) {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		values := make([]any, len(moduleIDs))
		for i, id := range moduleIDs {
			values[i] = "value:" + id
		}
		return values, nil
	}
}

func TestWaitForActiveLoadsWithNothingActive(t *testing.T) {
	c := New(&recordingInjector{})

	modules, err := c.WaitForActiveLoads(context.Background())
	require.NoError(t, err)
	assert.Empty(t, modules)
	assert.NotNil(t, modules)
}

func TestWaitForActiveLoadsKeepsRegistrationOrder(t *testing.T) {
	c := New(&recordingInjector{})
	c.RegisterLoad("slow", echoLoad(50*time.Millisecond))
	c.RegisterLoad("fast", echoLoad(0))

	ctx := context.Background()
	_, err := c.Load(ctx, "slow", []string{"a", "b"})
	require.NoError(t, err)
	fast, err := c.Load(ctx, "fast", []string{"c", "d", "e"})
	require.NoError(t, err)

	// the fast load settles first but was started second
	_, err = fast.Wait(ctx)
	require.NoError(t, err)

	modules, err := c.WaitForActiveLoads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"value:a", "value:b", "value:c", "value:d", "value:e"}, modules)
	assert.Equal(t, 0, c.ActiveLoads())
}

func TestLoadWithoutLoader(t *testing.T) {
	c := New(&recordingInjector{})

	p, err := c.Load(context.Background(), "missingType", []string{"m1"})
	assert.Nil(t, p)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoLoader))
	assert.Contains(t, err.Error(), "missingType")
	assert.Contains(t, err.Error(), "m1")
	assert.Equal(t, 0, c.ActiveLoads())

	var configErr *ConfigurationError
	require.True(t, errors.As(err, &configErr))
	assert.Equal(t, "missingType", configErr.Type)
}

func TestRetrieverRunsForEveryLoad(t *testing.T) {
	injector := &recordingInjector{}
	c := New(injector)

	var mu sync.Mutex
	retrieved := 0
	c.RegisterLoader("dojo", func(ctx context.Context, inject InjectScript) (Load, error) {
		mu.Lock()
		retrieved++
		mu.Unlock()
		if err := inject(ctx, "dojo/dojo.js"); err != nil {
			return nil, err
		}
		return echoLoad(0), nil
	})

	ctx := context.Background()
	for _, id := range []string{"x", "y"} {
		_, err := c.Load(ctx, "dojo", []string{id})
		require.NoError(t, err)
	}

	modules, err := c.WaitForActiveLoads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"value:x", "value:y"}, modules)
	assert.Equal(t, 2, retrieved)
	assert.Equal(t, []string{"dojo/dojo.js", "dojo/dojo.js"}, injector.scripts)
}

func TestRegisterLoaderLastWriteWins(t *testing.T) {
	c := New(nil)
	c.RegisterLoad("t", func(context.Context, []string) ([]any, error) { return []any{"first"}, nil })
	c.RegisterLoad("t", func(context.Context, []string) ([]any, error) { return []any{"second"}, nil })

	p, err := c.Load(context.Background(), "t", []string{"m"})
	require.NoError(t, err)

	values, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []any{"second"}, values)
}

func TestWaitForActiveLoadsFailure(t *testing.T) {
	injector := &recordingInjector{fail: map[string]bool{"broken.js": true}}
	c := New(injector)
	c.RegisterLoad("ok", echoLoad(0))
	c.RegisterLoader("broken", func(ctx context.Context, inject InjectScript) (Load, error) {
		if err := inject(ctx, "broken.js"); err != nil {
			return nil, err
		}
		return echoLoad(0), nil
	})

	ctx := context.Background()
	_, err := c.Load(ctx, "ok", []string{"a"})
	require.NoError(t, err)
	_, err = c.Load(ctx, "broken", []string{"b"})
	require.NoError(t, err)

	modules, err := c.WaitForActiveLoads(ctx)
	assert.Nil(t, modules)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrScriptLoad))
	assert.True(t, strings.Contains(err.Error(), "broken.js"))
	assert.Equal(t, 2, c.ActiveLoads(), "failed waits leave the active set untouched")
}

func TestLoadsStartedDuringWaitAreLeftForTheNextWait(t *testing.T) {
	c := New(nil)
	release := make(chan struct{})
	c.RegisterLoad("gated", func(ctx context.Context, moduleIDs []string) ([]any, error) {
		<-release
		return []any{moduleIDs[0]}, nil
	})
	c.RegisterLoad("now", echoLoad(0))

	ctx := context.Background()
	_, err := c.Load(ctx, "gated", []string{"first"})
	require.NoError(t, err)

	type result struct {
		modules []any
		err     error
	}
	waited := make(chan result, 1)
	go func() {
		modules, err := c.WaitForActiveLoads(ctx)
		waited <- result{modules, err}
	}()

	// give the wait a chance to take its snapshot before the late load starts
	require.Eventually(t, func() bool { return c.ActiveLoads() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	late, err := c.Load(ctx, "now", []string{"late"})
	require.NoError(t, err)
	_, err = late.Wait(ctx)
	require.NoError(t, err)

	close(release)
	r := <-waited
	require.NoError(t, r.err)
	assert.Equal(t, []any{"first"}, r.modules)
	assert.Equal(t, 1, c.ActiveLoads())

	modules, err := c.WaitForActiveLoads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"value:late"}, modules)
}

func TestWaitForActiveLoadsHonoursContext(t *testing.T) {
	c := New(nil)
	c.RegisterLoad("never", func(ctx context.Context, _ []string) ([]any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	loadCtx, cancelLoad := context.WithCancel(context.Background())
	defer cancelLoad()
	_, err := c.Load(loadCtx, "never", []string{"m"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = c.WaitForActiveLoads(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRegisterNilRemovesLoader(t *testing.T) {
	c := New(&recordingInjector{})
	ctx := context.Background()

	c.RegisterLoad("dojo", echoLoad(0))
	c.RegisterLoader("dojo", nil)
	_, err := c.Load(ctx, "dojo", []string{"dojo/dom"})
	assert.ErrorIs(t, err, ErrNoLoader)

	c.RegisterLoader("legacy", func(context.Context, InjectScript) (Load, error) { return echoLoad(0), nil })
	c.RegisterLoad("legacy", nil)
	_, err = c.Load(ctx, "legacy", []string{"legacy/widget"})
	assert.ErrorIs(t, err, ErrNoLoader)
	assert.Equal(t, 0, c.ActiveLoads())
}
