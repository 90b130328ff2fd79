// SPDX-License-Identifier: GPL-3.0-or-later

// Package cancelops unifies deadlines, manual tokens, OS signals, and
// arbitrary predicates behind a single scoped cancellation primitive:
// [Operation].
//
// # Core Abstraction
//
// An [Operation] is a scoped region of work. It owns a [Token] — a
// thread-safe, one-shot cancellation signal carrying a [CancelReason] and a
// message — and zero or more [Source] instances that watch for a trigger
// (a deadline, a predicate, an OS signal, another token) and cancel the
// Token when they fire.
//
//	op, err := cancelops.NewOperation(cancelops.WithDeadline(5 * time.Second))
//	if err != nil {
//		return err
//	}
//	ctx := op.Enter(context.Background())
//	defer op.Exit(nil)
//
//	if err := longRunningStep(ctx); err != nil {
//		return err
//	}
//
// Cancellation is cooperative: cancelops does not preempt running
// goroutines. It relies on the caller observing ctx.Err() (or
// [Token.Check]) at suspension points — exactly the points Go code already
// checks for context cancellation.
//
// # Composition
//
// Multiple [Source] instances combine with [AnyOf] (first to fire wins) or
// [AllOf] (fires once every child has fired). [LinkToken] builds a [Token]
// that fires when any of several parent tokens fire, recording which one.
//
// # Registry
//
// Operations constructed with registration enabled are tracked in the
// package-level [Registry] (or a private one, for tests — see
// [NewRegistry]), which supports lookup by ID, filtered enumeration,
// glob-pattern bulk cancellation, and bounded historical retention.
//
// # Streams and shielding
//
// [Operation.Stream] wraps an [iter.Seq2] so every pull is a cancellation
// checkpoint, optionally buffering a partial result and reporting progress
// every N elements. [Operation.Shield] returns a guard that suppresses the
// enclosing Operation's cancellation for the suspension points inside it —
// for bounded cleanup work that must run to completion.
//
// # Observability
//
// All primitives support structured logging via [SLogger] (compatible with
// [log/slog]); by default logging is disabled. Errors surfaced by user code,
// callbacks, or source monitors are classified by [ErrClassifier] before
// being logged; by default a no-op classifier is used. Use [NewOperationID]
// to mint the UUIDv7 identifier [Operation] uses for itself, if you need one
// independently (e.g. to pre-correlate logs before construction).
//
// # Thread bridge
//
// [Token.CancelSync] and [ThreadBridge] let a non-cancelops goroutine (an
// OS signal handler, a callback from a C library, a dedicated OS thread)
// request cancellation or schedule work onto a cancelops-aware dispatcher
// without the caller needing to reason about which goroutine is "the" owner
// of a Token. Bind a bridge with [WithThreadBridge] (or [Config.ThreadBridge]
// to share one across every operation built from that config); without one,
// [Token.CancelSync] still works, it just runs the cancellation directly on
// the calling goroutine instead of marshalling it through a dispatch loop.
//
// # Design Boundaries
//
// This package intentionally does not provide a scheduler, transport
// integrations (HTTP/SQL/retry-library adapters), metrics exporters, or
// cross-process persistence of operation history. Those are the concern of
// higher-level packages built on top of [Operation] and [Registry].
package cancelops
