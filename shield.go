// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import "context"

// ScopedGuard is a scoped acquisition released by calling [ScopedGuard.Release].
// It is returned by [Operation.Shield] and [Operation.Wrapping].
type ScopedGuard struct {
	release func()
}

// Release ends the guarded section. Idempotent.
func (g *ScopedGuard) Release() {
	if g.release != nil {
		g.release()
		g.release = nil
	}
}

// Shield returns a [*ScopedGuard] and a [context.Context] derived with
// [context.WithoutCancel] from op's own context: suspension points that
// use the returned context do not observe op's cancellation (nor any
// ancestor's) while the guard is held, matching spec.md §4.D's
// "runtime-native shield semantics". [Token.Check] on op's own token
// remains available inside the shield for code that wants to honor
// cancellation voluntarily, per spec.md §5.
//
// The operation's status briefly reports [StatusShielded] while the guard
// is held and reverts to its prior value on [ScopedGuard.Release]. Callers
// MUST release the guard — typically via defer — and SHOULD keep shielded
// sections short; no enforcement of a bound is provided, per spec.md §5.
func (op *Operation) Shield() (*ScopedGuard, context.Context) {
	op.statusMu.Lock()
	op.preShieldStatus = op.status
	op.status = StatusShielded
	op.statusMu.Unlock()

	shielded := context.WithoutCancel(op.ctx)

	released := false
	return &ScopedGuard{release: func() {
		if released {
			return
		}
		released = true
		op.statusMu.Lock()
		if op.status == StatusShielded {
			op.status = op.preShieldStatus
		}
		op.statusMu.Unlock()
	}}, shielded
}

// WrappedFunc performs a cancellation check on the operation's token
// before invoking fn, returning the token's [*CancelError] instead of
// calling fn if the operation is already cancelled.
type WrappedFunc func(ctx context.Context, fn func(context.Context) error) error

// Wrap returns a [WrappedFunc] that checks op's token before each
// invocation, then calls the original (spec.md §4.D "wrap").
func (op *Operation) Wrap() WrappedFunc {
	return func(ctx context.Context, fn func(context.Context) error) error {
		if err := op.token.Check(); err != nil {
			return err
		}
		return fn(ctx)
	}
}

// Wrapping returns a [*ScopedGuard] and the same [WrappedFunc] [Operation.Wrap]
// would return, for call sites that prefer a scoped-acquisition style
// (spec.md §4.D "wrapping").
func (op *Operation) Wrapping() (*ScopedGuard, WrappedFunc) {
	return &ScopedGuard{release: func() {}}, op.Wrap()
}
