// Package pool implements a bounded pool of reusable resources,
// such as database connections.
package pool

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrPoisoned is the error returned by Lock
// after a holder of one of the pool's values panicked.
var ErrPoisoned = errors.New("pool poisoned")

// Pool is a fixed set of values of type V.
// A caller takes exclusive use of one value with Lock
// and returns it with Guard.Release.
// Waiters are not served in any particular order.
type Pool[V any] struct {
	mu       sync.Mutex
	cond     *sync.Cond
	vals     []V
	poisoned bool
}

// New produces a Pool holding vals.
func New[V any](vals []V) *Pool[V] {
	p := &Pool[V]{vals: append([]V(nil), vals...)}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Lock waits until a value is available and takes it.
// The caller must release the returned Guard when done.
func (p *Pool[V]) Lock() (*Guard[V], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.vals) == 0 && !p.poisoned {
		p.cond.Wait()
	}
	if p.poisoned {
		return nil, ErrPoisoned
	}

	n := len(p.vals) - 1
	v := p.vals[n]
	var zero V
	p.vals[n] = zero
	p.vals = p.vals[:n]

	return &Guard[V]{p: p, v: v}, nil
}

// With locks a value, calls f with it, and releases it.
// If f panics, the pool is poisoned before the panic continues.
func (p *Pool[V]) With(f func(V) error) error {
	g, err := p.Lock()
	if err != nil {
		return err
	}

	ok := false
	defer func() {
		if !ok {
			p.poison()
		}
	}()

	err = f(g.v)
	ok = true
	g.Release()
	return err
}

// Len is the number of values currently available.
func (p *Pool[V]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.vals)
}

func (p *Pool[V]) poison() {
	p.mu.Lock()
	p.poisoned = true
	p.mu.Unlock()
	p.cond.Broadcast()
}

func (p *Pool[V]) put(v V) {
	p.mu.Lock()
	p.vals = append(p.vals, v)
	p.mu.Unlock()
	p.cond.Signal()
}

// Guard holds one value taken from a Pool.
type Guard[V any] struct {
	p        *Pool[V]
	v        V
	released bool
}

// Value is the value held by g.
func (g *Guard[V]) Value() V {
	return g.v
}

// Release returns g's value to its pool and wakes one waiter.
// Only the first call has any effect.
func (g *Guard[V]) Release() {
	if g.released {
		return
	}
	g.released = true
	g.p.put(g.v)
}
