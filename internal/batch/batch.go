// Package batch coalesces concurrent lookups by key into windowed bulk
// fetches.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Load after Close.
var ErrClosed = errors.New("batch: batcher closed")

// FetchFunc loads values for a set of unique keys. Keys absent from the
// returned map resolve to Options.Missing (or the zero value).
type FetchFunc[K comparable, V any] func(ctx context.Context, keys []K) (map[K]V, error)

// Options tunes a Batcher.
type Options struct {
	// Window is how long the first queued key waits for company.
	Window time.Duration
	// MaxSize flushes early once this many distinct keys are queued.
	MaxSize int
	// Missing is returned for keys the fetch did not resolve. Nil means the
	// zero value with no error.
	Missing error
	// OnFlush observes the number of distinct keys in each flushed batch.
	OnFlush func(size int)
}

type result[V any] struct {
	val V
	err error
}

// Batcher groups Load calls that arrive within a window into a single fetch.
// Duplicate keys in the same window share one fetch slot.
type Batcher[K comparable, V any] struct {
	fetch FetchFunc[K, V]
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[K][]chan result[V]
	order   []K
	timer   *time.Timer
	gen     uint64 // bumped each time a batch is detached
	closed  bool
}

// New returns a Batcher calling fetch for each flushed window.
func New[K comparable, V any](fetch FetchFunc[K, V], opts Options) *Batcher[K, V] {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 100
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Batcher[K, V]{
		fetch:   fetch,
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[K][]chan result[V]),
	}
}

// Load queues key and waits for its batch to resolve or ctx to end. A caller
// giving up does not cancel the shared fetch.
func (b *Batcher[K, V]) Load(ctx context.Context, key K) (V, error) {
	var zero V
	ch := make(chan result[V], 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return zero, ErrClosed
	}
	if _, ok := b.pending[key]; !ok {
		b.order = append(b.order, key)
	}
	b.pending[key] = append(b.pending[key], ch)

	var flush map[K][]chan result[V]
	var keys []K
	switch {
	case len(b.order) >= b.opts.MaxSize || b.opts.Window <= 0:
		keys, flush = b.takeLocked()
	case b.timer == nil:
		gen := b.gen
		b.timer = time.AfterFunc(b.opts.Window, func() { b.flushWindow(gen) })
	}
	b.mu.Unlock()

	if flush != nil {
		b.dispatch(keys, flush)
	}

	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close flushes anything queued, waits for in-flight fetches and rejects
// further Loads.
func (b *Batcher[K, V]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	keys, flush := b.takeLocked()
	b.mu.Unlock()

	if flush != nil {
		b.dispatch(keys, flush)
	}
	b.wg.Wait()
	b.cancel()
}

// flushWindow runs when the window timer for batch gen fires. A timer that
// lost the race with a size flush or Close finds a newer gen and does nothing.
func (b *Batcher[K, V]) flushWindow(gen uint64) {
	b.mu.Lock()
	if gen != b.gen {
		b.mu.Unlock()
		return
	}
	keys, flush := b.takeLocked()
	b.mu.Unlock()
	if flush != nil {
		b.dispatch(keys, flush)
	}
}

// takeLocked detaches the queued batch and registers it with b.wg; the
// caller must dispatch a non-nil result. b.mu must be held.
func (b *Batcher[K, V]) takeLocked() ([]K, map[K][]chan result[V]) {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	if len(b.order) == 0 {
		return nil, nil
	}
	keys, waiters := b.order, b.pending
	b.order = nil
	b.pending = make(map[K][]chan result[V])
	b.wg.Add(1)
	return keys, waiters
}

func (b *Batcher[K, V]) dispatch(keys []K, waiters map[K][]chan result[V]) {
	go func() {
		defer b.wg.Done()
		if b.opts.OnFlush != nil {
			b.opts.OnFlush(len(keys))
		}
		vals, err := b.fetch(b.ctx, keys)
		for _, k := range keys {
			r := result[V]{err: err}
			if err == nil {
				v, ok := vals[k]
				r.val = v
				if !ok {
					r.err = b.opts.Missing
				}
			}
			for _, ch := range waiters[k] {
				ch <- r
			}
		}
	}()
}
