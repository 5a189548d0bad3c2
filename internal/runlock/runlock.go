// Package runlock serializes ingestion runs. A run must hold the gate for
// its whole duration.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrBusy = errors.New("an ingestion run is already in progress")

type Gate interface {
	// TryAcquire returns ErrBusy immediately when the gate is held.
	TryAcquire(ctx context.Context) (release func(), err error)
	// Acquire waits for the gate until ctx ends, then returns ErrBusy.
	Acquire(ctx context.Context) (release func(), err error)
}

// LocalGate is a single-slot in-process gate.
type LocalGate struct {
	slot chan struct{}
}

func NewLocalGate() *LocalGate {
	return &LocalGate{slot: make(chan struct{}, 1)}
}

func (g *LocalGate) TryAcquire(_ context.Context) (func(), error) {
	select {
	case g.slot <- struct{}{}:
		return g.releaseFunc(), nil
	default:
		return nil, ErrBusy
	}
}

func (g *LocalGate) Acquire(ctx context.Context) (func(), error) {
	select {
	case g.slot <- struct{}{}:
		return g.releaseFunc(), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrBusy, ctx.Err())
	}
}

func (g *LocalGate) releaseFunc() func() {
	var once sync.Once
	return func() { once.Do(func() { <-g.slot }) }
}

type chain []Gate

// Chain acquires gates in order and releases them in reverse.
func Chain(gates ...Gate) Gate {
	if len(gates) == 1 {
		return gates[0]
	}
	return chain(gates)
}

func (c chain) TryAcquire(ctx context.Context) (func(), error) {
	return c.acquire(ctx, Gate.TryAcquire)
}

func (c chain) Acquire(ctx context.Context) (func(), error) {
	return c.acquire(ctx, Gate.Acquire)
}

func (c chain) acquire(ctx context.Context, take func(Gate, context.Context) (func(), error)) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, g := range c {
		release, err := take(g, ctx)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
