package loader

import (
	"context"
	"sync"
)

// Pending is a load in flight.
type Pending struct {
	Type      string
	ModuleIDs []string

	once   sync.Once
	done   chan struct{}
	values []any
	err    error
}

func newPending(typ string, moduleIDs []string) *Pending {
	return &Pending{
		Type:      typ,
		ModuleIDs: append([]string(nil), moduleIDs...),
		done:      make(chan struct{}),
	}
}

func (p *Pending) settle(values []any, err error) {
	p.once.Do(func() {
		p.values = values
		p.err = err
		close(p.done)
	})
}

func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the load settles or ctx is done.
func (p *Pending) Wait(ctx context.Context) ([]any, error) {
	select {
	case <-p.done:
		return p.values, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
