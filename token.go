// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import (
	"context"
	"sync"
	"sync/atomic"
)

// Token is a thread-safe, one-shot cancellation signal. It implements
// spec.md §4.A.
//
// A zero Token is not usable; construct one with [NewToken]. Once
// cancelled, a Token stays cancelled forever — reason and message become
// immutable the instant the first cancel request wins the race.
type Token struct {
	cancelled atomic.Bool

	mu      sync.Mutex
	reason  CancelReason
	message string
	nextCbID int
	cbs     []registeredCallback

	done   chan struct{}
	origin string

	bridgeOnce sync.Once
	bridge     *ThreadBridge
}

// NewToken creates a new, not-yet-cancelled [*Token].
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// bindBridge captures the owning [*ThreadBridge]; [Operation.Enter] calls
// it with the operation's bridge, and the first non-nil bridge bound wins
// (spec.md §4.I). [Token.Wait] and [Token.Cancel] do not bind a bridge.
// Safe to call with a nil bridge — it is simply a no-op in that case,
// meaning [Token.CancelSync] performed before any binding cancels directly
// on the calling goroutine.
func (t *Token) bindBridge(bridge *ThreadBridge) {
	if bridge == nil {
		return
	}
	t.bridgeOnce.Do(func() { t.bridge = bridge })
}

// Cancel attempts to transition the token from not-cancelled to cancelled,
// recording reason and message. It is idempotent: if the token is already
// cancelled, Cancel returns false and reason/message are left untouched.
// Registered callbacks are invoked outside the lock, in registration order.
func (t *Token) Cancel(reason CancelReason, message string) bool {
	if !t.cancelled.CompareAndSwap(false, true) {
		return false
	}

	t.mu.Lock()
	t.reason = reason
	t.message = message
	cbs := t.cbs
	t.cbs = nil
	t.mu.Unlock()

	close(t.done)
	for _, rc := range cbs {
		rc.fn(reason, message)
	}
	return true
}

// CancelSync is [Token.Cancel]'s thread-safe-from-anywhere counterpart,
// callable from a signal handler or any goroutine that isn't running
// cooperative code for this token's owner. If a [*ThreadBridge] has been
// bound, the atomic transition, the callback list swap, and the callback
// invocations are all marshalled onto the bridge's single dispatch
// goroutine so callbacks never run concurrently with other token activity.
// If no bridge has been bound yet, CancelSync still performs the atomic
// flag flip and closes the wait channel directly — waiters park on a
// channel receive, which is itself safe to satisfy from any goroutine; only
// the callback-invocation ordering guarantee depends on the bridge.
//
// Returns false if the token was already cancelled.
func (t *Token) CancelSync(reason CancelReason, message string) bool {
	if t.bridge == nil {
		return t.Cancel(reason, message)
	}

	result := make(chan bool, 1)
	t.bridge.CallSoonThreadsafe(func() {
		result <- t.Cancel(reason, message)
	})
	return <-result
}

// Check returns a *[CancelError] if the token is cancelled, nil otherwise.
// This is the synchronous observation point spec.md §5 calls out as the
// only one that never suspends.
func (t *Token) Check() error {
	if !t.cancelled.Load() {
		return nil
	}
	t.mu.Lock()
	reason, message := t.reason, t.message
	t.mu.Unlock()
	return newCancelError(reason, message)
}

// IsCancelled reports the token's current state.
func (t *Token) IsCancelled() bool {
	return t.cancelled.Load()
}

// Reason returns the recorded cancellation reason. The result is
// meaningful only once [Token.IsCancelled] is true.
func (t *Token) Reason() CancelReason {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reason
}

// Message returns the recorded cancellation message. The result is
// meaningful only once [Token.IsCancelled] is true.
func (t *Token) Message() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.message
}

// Wait blocks until the token is cancelled or ctx is done, whichever
// happens first. On token cancellation it returns a *[CancelError]
// wrapping [context.Canceled]; on context cancellation it returns ctx.Err().
func (t *Token) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Check()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitChan exposes the internal done channel for callers that want to
// select on it alongside other channels without going through
// [Token.Wait]'s context plumbing (used by [Operation.Enter] to cancel the
// operation's context when the token fires).
func (t *Token) WaitChan() <-chan struct{} {
	return t.done
}

// registeredCallback pairs a callback with an id so the unregister func
// returned by [Token.RegisterCallback] can remove it before it fires, e.g. when a
// [tokenSource] deactivates without its external token ever cancelling.
type registeredCallback struct {
	id int
	fn func(CancelReason, string)
}

// RegisterCallback registers cb to run on cancellation, in registration
// order relative to other callbacks. If the token is already cancelled, cb
// fires immediately (synchronously, on the calling goroutine) with the
// recorded reason and message, and the returned unregister func is a
// no-op. Otherwise the returned func removes cb if called before the
// token fires.
func (t *Token) RegisterCallback(cb func(reason CancelReason, message string)) (unregister func()) {
	t.mu.Lock()
	if t.cancelled.Load() {
		reason, message := t.reason, t.message
		t.mu.Unlock()
		cb(reason, message)
		return func() {}
	}
	id := t.nextCbID
	t.nextCbID++
	t.cbs = append(t.cbs, registeredCallback{id: id, fn: cb})
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		for i, rc := range t.cbs {
			if rc.id == id {
				t.cbs = append(t.cbs[:i], t.cbs[i+1:]...)
				return
			}
		}
	}
}
