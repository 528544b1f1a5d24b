// Package loader coordinates run-time loading of external module groups. Each
// group is loaded by a loader registered under a type name; the results of every
// load in flight are collected, in the order the loads were started, into one
// flat argument list.
package loader

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// InjectScript loads the script at path into the host environment.
type InjectScript func(ctx context.Context, path string) error

// Load resolves module ids to module values, one value per id.
type Load func(ctx context.Context, moduleIDs []string) ([]any, error)

// RetrieveLoader prepares a Load function, typically by injecting the loader's
// own script first.
type RetrieveLoader func(ctx context.Context, inject InjectScript) (Load, error)

type ScriptInjector interface {
	Inject(ctx context.Context, path string) error
}

type registration struct {
	retrieve RetrieveLoader
	load     Load
}

// Coordinator owns a loader registry and the set of active loads. Independent
// applications should each use their own Coordinator.
type Coordinator struct {
	mu      sync.Mutex
	loaders map[string]registration
	active  []*Pending
	inject  InjectScript
}

func New(injector ScriptInjector) *Coordinator {
	c := &Coordinator{loaders: make(map[string]registration)}
	if injector != nil {
		c.inject = injector.Inject
	} else {
		c.inject = func(ctx context.Context, path string) error {
			return &ScriptLoadError{Path: path, Err: ErrNoLoader}
		}
	}
	return c
}

// RegisterLoader installs retrieve for typ, replacing any previous registration.
// The retriever is invoked again for every load of typ. A nil retrieve removes
// the registration.
func (c *Coordinator) RegisterLoader(typ string, retrieve RetrieveLoader) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if retrieve == nil {
		delete(c.loaders, typ)
		return
	}
	c.loaders[typ] = registration{retrieve: retrieve}
}

// RegisterLoad installs an already retrieved load function for typ. It is reused
// as is by every load of typ. A nil load removes the registration.
func (c *Coordinator) RegisterLoad(typ string, load Load) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if load == nil {
		delete(c.loaders, typ)
		return
	}
	c.loaders[typ] = registration{load: load}
}

// Load starts loading moduleIDs with the loader registered for typ and tracks
// the load as active. An unknown type fails immediately and is not tracked.
func (c *Coordinator) Load(ctx context.Context, typ string, moduleIDs []string) (*Pending, error) {
	c.mu.Lock()
	reg, ok := c.loaders[typ]
	if !ok {
		c.mu.Unlock()
		return nil, &ConfigurationError{Type: typ, ModuleIDs: moduleIDs}
	}

	p := newPending(typ, moduleIDs)
	c.active = append(c.active, p)
	inject := c.inject
	c.mu.Unlock()

	slog.Debug("Loading external modules", slog.String("type", typ), slog.Any("modules", moduleIDs))

	go func() {
		load := reg.load
		if load == nil {
			var err error
			load, err = reg.retrieve(ctx, inject)
			if err != nil {
				p.settle(nil, err)
				return
			}
		}

		values, err := load(ctx, moduleIDs)
		p.settle(values, err)
	}()

	return p, nil
}

// ActiveLoads is the number of tracked loads not yet drained by
// WaitForActiveLoads.
func (c *Coordinator) ActiveLoads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// WaitForActiveLoads waits for the loads active at the time of the call and
// returns their values flattened in the order the loads were started. Loads
// started while waiting are left for the next call. If any load fails, the
// first error is returned and the active set is left untouched.
func (c *Coordinator) WaitForActiveLoads(ctx context.Context) ([]any, error) {
	c.mu.Lock()
	snapshot := append([]*Pending(nil), c.active...)
	c.mu.Unlock()

	if len(snapshot) == 0 {
		return []any{}, nil
	}

	results := make([][]any, len(snapshot))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range snapshot {
		i, p := i, p
		g.Go(func() error {
			values, err := p.Wait(gctx)
			results[i] = values
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	drained := make(map[*Pending]struct{}, len(snapshot))
	for _, p := range snapshot {
		drained[p] = struct{}{}
	}
	remaining := c.active[:0:0]
	for _, p := range c.active {
		if _, ok := drained[p]; !ok {
			remaining = append(remaining, p)
		}
	}
	c.active = remaining
	c.mu.Unlock()

	var modules []any
	for _, values := range results {
		modules = append(modules, values...)
	}
	if modules == nil {
		modules = []any{}
	}
	return modules, nil
}
