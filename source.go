// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import "sync/atomic"

// cancelSink is what a firing [Source] reports to: ordinarily an
// operation's own token, but [allOfSource] substitutes its own sink when
// activating children, so a child firing updates the composite's
// bookkeeping instead of cancelling the enclosing operation directly.
// [anyOfSource] passes its own sink through to its children unchanged.
type cancelSink func(reason CancelReason, message string)

// Source is a background-monitored trigger that cancels its enclosing
// [Operation] when it fires (spec.md §4.C). Concrete variants:
// [deadlineSource], [predicateSource], [signalSource], [tokenSource],
// [anyOfSource], [allOfSource].
//
// Contract: activate attaches the source to a specific Operation and
// starts whatever background monitoring it needs; a nil sink means "fire
// directly onto op's own token", and a non-nil sink (used by composite
// sources activating their children) redirects firing there instead.
// deactivate is idempotent and MUST clean up any resource the source
// acquired (monitor goroutine, installed signal handler, derived context).
// A Source must not be activated into more than one Operation.
type Source interface {
	// activate attaches the source to op and starts whatever background
	// monitoring it needs. Called at most once per source instance.
	activate(op *Operation, sink cancelSink)

	// deactivate stops monitoring and releases resources. Idempotent.
	deactivate()

	// triggered reports whether this source is the one that fired.
	triggered() bool

	// String describes the source for logs and Operation introspection.
	String() string
}

// sourceBase centralizes the activation bookkeeping shared by every concrete
// [Source]: the owning [*Operation] reference (needed by sources like
// [deadlineSource] that derive a context from it), the [cancelSink] firing
// reports to, and the fired flag, which must tolerate concurrent access
// since monitor goroutines fire sources from outside the goroutine that
// activated them.
type sourceBase struct {
	op    *Operation
	sink  cancelSink
	fired atomic.Bool
}

// bind records op and resolves the effective sink: a nil sink defaults to
// [Token.CancelSync] on op's own token. Using the thread-safe variant
// uniformly (rather than only for [signalSource]) is the closest Go
// equivalent of spec.md §4.I's "cancel_sync marshals onto the runtime
// thread" contract — in Go, CancelSync degrades to a direct [Token.Cancel]
// call when no [ThreadBridge] is bound, so this costs nothing for sources
// that never fire from outside the operation's own goroutines, while
// giving signal handlers (which always fire cross-goroutine) the same
// code path as everything else.
func (b *sourceBase) bind(op *Operation, sink cancelSink) {
	b.op = op
	if sink == nil {
		sink = func(reason CancelReason, message string) { op.token.CancelSync(reason, message) }
	}
	b.sink = sink
}

func (b *sourceBase) triggered() bool {
	return b.fired.Load()
}

// fire reports reason/message to this source's sink, marking this source
// as the one that triggered. Safe to call more than once or concurrently;
// only the first call has any effect, matching the one-shot [Token]
// contract.
func (b *sourceBase) fire(reason CancelReason, message string) {
	if !b.fired.CompareAndSwap(false, true) {
		return
	}
	if b.sink != nil {
		b.sink(reason, message)
	}
}
