// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import "context"

// ambientKey is the unexported [context.Context] value key used to carry
// the innermost active [*Operation], implementing spec.md §4.G. Go has no
// goroutine-local storage primitive; the idiomatic translation, and the one
// this module uses, is ordinary context value propagation: [Operation.Enter]
// returns a context carrying the entered operation, and [CurrentOperation]
// reads it back out. Library code that wants ambient access must be handed
// the context returned by Enter — there is no magic lookup that works
// without threading a context, by design (see SPEC_FULL.md §6 for the
// rationale).
type ambientKey struct{}

// withOperation returns a copy of ctx carrying op as the current innermost
// operation.
func withOperation(ctx context.Context, op *Operation) context.Context {
	return context.WithValue(ctx, ambientKey{}, op)
}

// CurrentOperation returns the innermost active [*Operation] for ctx, or
// nil if ctx was never derived from an [Operation.Enter] call. Pushing
// happens on [Operation.Enter]; there is no explicit pop — once the caller
// stops using the context Enter returned (e.g. after [Operation.Exit]),
// the ambient reference is simply unreachable again, including on
// abnormal exit, since it lives only in the context value chain and never
// in goroutine-local state.
func CurrentOperation(ctx context.Context) *Operation {
	op, _ := ctx.Value(ambientKey{}).(*Operation)
	return op
}
