// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// ThreadBridge lets a non-cooperative goroutine (one not running inside any
// [Operation]) schedule work onto the owning goroutine's cancellation
// machinery, and lets cooperative code offload blocking calls to a bounded
// worker pool without losing cancellability at the await point.
//
// This implements spec.md §4.I. Go has no single "the event loop" the way
// an async runtime does, so call_soon_threadsafe is realized as a buffered
// (64-slot) dispatch channel drained by one goroutine per [ThreadBridge]:
// [Token.CancelSync] posts the waiter-wake/callback work here instead of
// running it directly on the calling (possibly signal-handler) goroutine.
// run_in_thread is realized with a [golang.org/x/sync/semaphore.Weighted]
// admission gate, grounded on the bounded-concurrency idiom used across the
// retrieval pack (e.g. joeycumines-go-utilpkg's worker-pool helpers) rather
// than an unbounded goroutine-per-call design.
type ThreadBridge struct {
	sem   *semaphore.Weighted
	tasks chan func()
	done  chan struct{}
}

// NewThreadBridge creates a [*ThreadBridge] with the given worker pool size
// for [ThreadBridge.RunInThread]. A non-positive size is treated as 1.
func NewThreadBridge(poolSize int64) *ThreadBridge {
	if poolSize <= 0 {
		poolSize = 1
	}
	b := &ThreadBridge{
		sem:   semaphore.NewWeighted(poolSize),
		tasks: make(chan func(), 64),
		done:  make(chan struct{}),
	}
	go b.dispatchLoop()
	return b
}

// dispatchLoop is the single goroutine that serializes everything posted via
// [ThreadBridge.CallSoonThreadsafe], matching spec.md §5's "single loop per
// token" simplification: callbacks fired on cancellation always run here,
// never concurrently with each other.
func (b *ThreadBridge) dispatchLoop() {
	for {
		select {
		case fn := <-b.tasks:
			fn()
		case <-b.done:
			return
		}
	}
}

// CallSoonThreadsafe enqueues fn to run on the bridge's dispatch goroutine.
// Safe to call from any goroutine, including OS signal handlers (it never
// blocks on anything but the channel send, which is buffered and blocks
// only while all 64 slots are full).
func (b *ThreadBridge) CallSoonThreadsafe(fn func()) {
	select {
	case b.tasks <- fn:
	case <-b.done:
	}
}

// RunInThread offloads fn to the bridge's bounded worker pool and blocks
// until it completes or ctx is cancelled first. When ctx is cancelled before
// a worker slot is acquired, RunInThread returns ctx.Err() without running
// fn. When ctx is cancelled while fn is already running, RunInThread returns
// ctx.Err() at once without waiting for fn: fn keeps running in its own
// goroutine (Go has no way to forcibly abort a running goroutine), its
// result is discarded, and its worker slot is released as RunInThread
// returns.
func RunInThread[T any](ctx context.Context, b *ThreadBridge, fn func() T) (T, error) {
	var zero T
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	defer b.sem.Release(1)

	result := make(chan T, 1)
	go func() { result <- fn() }()

	select {
	case r := <-result:
		return r, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// Close stops the bridge's dispatch goroutine. Pending [ThreadBridge.CallSoonThreadsafe]
// sends that race with Close may be dropped; callers should stop using the
// bridge before closing it.
func (b *ThreadBridge) Close() {
	close(b.done)
}
