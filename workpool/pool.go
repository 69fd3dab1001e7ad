// Package workpool bounds how many blocking jobs of one kind run at once.
package workpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

var ErrClosed = errors.New("worker pool closed")

type Stats struct {
	Name      string `json:"name"`
	Size      int    `json:"size"`
	InFlight  int64  `json:"in_flight"`
	Waiting   int64  `json:"waiting"`
	Completed int64  `json:"completed"`
	Peak      int64  `json:"peak"`
}

// Pool admits at most Size concurrent jobs. Jobs run on the caller's goroutine
// once a slot is free.
type Pool struct {
	name string
	size int64
	sem  *semaphore.Weighted

	inFlight  atomic.Int64
	waiting   atomic.Int64
	completed atomic.Int64
	peak      atomic.Int64

	mu     sync.RWMutex
	closed bool
}

func New(name string, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		name: name,
		size: int64(size),
		sem:  semaphore.NewWeighted(int64(size)),
	}
}

func (p *Pool) Name() string { return p.name }
func (p *Pool) Size() int    { return int(p.size) }

// Do waits for a slot and runs fn. A cancelled ctx aborts the wait but never
// interrupts fn once it has started.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	p.waiting.Add(1)
	err := p.sem.Acquire(ctx, 1)
	p.waiting.Add(-1)
	if err != nil {
		return err
	}
	defer p.sem.Release(1)
	// Close may have won the race while this job was queued.
	p.mu.RLock()
	closed = p.closed
	p.mu.RUnlock()
	if closed {
		return ErrClosed
	}

	n := p.inFlight.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	defer func() {
		p.inFlight.Add(-1)
		p.completed.Add(1)
	}()
	return fn()
}

// Submit runs fn on p and returns its value.
func Submit[T any](ctx context.Context, p *Pool, fn func() (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

func (p *Pool) Stats() Stats {
	return Stats{
		Name:      p.name,
		Size:      int(p.size),
		InFlight:  p.inFlight.Load(),
		Waiting:   p.waiting.Load(),
		Completed: p.completed.Load(),
		Peak:      p.peak.Load(),
	}
}

// Close rejects new jobs and waits until every running job has returned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	if err := p.sem.Acquire(ctx, p.size); err != nil {
		return err
	}
	p.sem.Release(p.size)
	return nil
}
