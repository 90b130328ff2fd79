// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import "fmt"

// LinkToken creates a [*Token] that fires when any of the given parent
// tokens fire, recording which one (spec.md §4.B). It registers a callback
// on each parent; the first parent to fire propagates its reason and
// message, annotated with the parent's position, into the linked token.
//
// Cycle-breaking: [Token.Cancel] clears its own callback list the instant
// it fires (see token.go), and the linked token unregisters its closure
// from every parent when it fires, so once the linked token or any parent
// fires, the registered closures are released and nothing keeps the
// parents or the child pinned to each other beyond that point — there is
// no persistent back-reference cycle to break, only the transient closures
// captured at registration time.
func LinkToken(parents ...*Token) *Token {
	child := NewToken()
	unregister := make([]func(), 0, len(parents))
	for i, parent := range parents {
		i, parent := i, parent
		unregister = append(unregister, parent.RegisterCallback(func(reason CancelReason, message string) {
			child.Cancel(reason, fmt.Sprintf("linked from parent[%d]: %s", i, message))
		}))
	}
	child.RegisterCallback(func(CancelReason, string) {
		for _, unreg := range unregister {
			unreg()
		}
	})
	return child
}
