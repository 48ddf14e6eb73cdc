package scripting

import (
	"context"
	"fmt"
	"sync"
)

// InvocablePool keeps independent InvocableScript instances of one prepared script
// so concurrent callers never share an evaluated scope. It grows on demand up to a
// maximum size.
type InvocablePool struct {
	pool      chan *InvocableScript
	script    EvaluatableScript
	configure BindingsConfigurer

	mu     sync.Mutex
	total  int // instances created and not discarded
	max    int
	closed bool
}

// NewInvocablePool prepares script once and pre-builds initialSize instances.
// Every instance gets its own configure call and initial evaluation.
func (p *Provider) NewInvocablePool(ctx context.Context, script *Script, configure BindingsConfigurer, initialSize, maxSize int) (*InvocablePool, error) {
	if maxSize < 1 || initialSize < 0 || initialSize > maxSize {
		return nil, fmt.Errorf("%w: invalid sizes: initial=%d max=%d", ErrInvalidArgument, initialSize, maxSize)
	}
	if configure == nil {
		return nil, fmt.Errorf("%w: bindings configurer must not be nil", ErrInvalidArgument)
	}

	evaluatable, err := p.PrepareEvaluatableScript(ctx, script)
	if err != nil {
		return nil, err
	}

	pl := &InvocablePool{
		pool:      make(chan *InvocableScript, maxSize),
		script:    evaluatable,
		configure: configure,
		max:       maxSize,
	}

	for i := 0; i < initialSize; i++ {
		inv, err := evaluatable.Invocable(ctx, configure)
		if err != nil {
			_ = pl.Close()
			return nil, err
		}
		pl.pool <- inv
		pl.total++
	}

	return pl, nil
}

// Acquire returns an idle instance, builds a new one while below the maximum, or
// blocks until one is released or ctx is done.
func (p *InvocablePool) Acquire(ctx context.Context) (*InvocableScript, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.mu.Unlock()

	select {
	case inv, ok := <-p.pool:
		if !ok {
			return nil, ErrPoolClosed
		}
		return inv, nil
	default:
	}

	p.mu.Lock()
	if p.total < p.max {
		p.total++
		p.mu.Unlock()
		inv, err := p.script.Invocable(ctx, p.configure)
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			return nil, err
		}
		return inv, nil
	}
	p.mu.Unlock()

	select {
	case inv, ok := <-p.pool:
		if !ok {
			return nil, ErrPoolClosed
		}
		return inv, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns inv to the pool. After Close the instance is closed and dropped.
func (p *InvocablePool) Release(inv *InvocableScript) {
	if inv == nil {
		return
	}

	p.mu.Lock()
	if !p.closed {
		select {
		case p.pool <- inv:
			p.mu.Unlock()
			return
		default:
		}
	}
	p.total--
	p.mu.Unlock()

	_ = inv.Close()
}

// Call runs acquire, call and release.
func (p *InvocablePool) Call(ctx context.Context, name string, args ...any) (any, error) {
	inv, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(inv)
	return inv.Call(ctx, name, args...)
}

// Size returns the number of live instances, idle or acquired.
func (p *InvocablePool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total
}

// Close closes the idle instances; acquired ones are closed on Release.
func (p *InvocablePool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.pool)
	idle := make([]*InvocableScript, 0, len(p.pool))
	for inv := range p.pool {
		idle = append(idle, inv)
		p.total--
	}
	p.mu.Unlock()

	for _, inv := range idle {
		_ = inv.Close()
	}
	return nil
}

// IsClosed reports whether Close was called.
func (p *InvocablePool) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
