// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
)

// addChild appends child to op's live-child list, implementing spec.md
// §4.F's entry-time linkage. Cycles are structurally prevented: a parent
// must already be entered before a child is constructed under it, which
// [NewOperation] enforces by rejecting a pending parent.
func (op *Operation) addChild(child *Operation) {
	op.childrenMu.Lock()
	op.children = append(op.children, child)
	op.childrenMu.Unlock()
}

// removeChild removes child from op's live-child list on the child's own
// exit.
func (op *Operation) removeChild(child *Operation) {
	op.childrenMu.Lock()
	defer op.childrenMu.Unlock()
	for i, c := range op.children {
		if c == child {
			op.children = append(op.children[:i], op.children[i+1:]...)
			return
		}
	}
}

// liveChildren returns a snapshot of op's currently live children.
func (op *Operation) liveChildren() []*Operation {
	op.childrenMu.Lock()
	defer op.childrenMu.Unlock()
	out := make([]*Operation, len(op.children))
	copy(out, op.children)
	return out
}

// cancelChildren cancels every live child with reason and message,
// without waiting for them to exit. Each child's own cancel call
// recursively propagates to its own children.
func (op *Operation) cancelChildren(reason CancelReason, message string) {
	for _, child := range op.liveChildren() {
		child.cancelWithReason(reason, message, true)
	}
}

// cancelChildrenAndWait cancels every live child, then waits for each to
// exit, bounded by [Config.ShutdownBudget] (spec.md §4.F). The children
// remain cancelled even if the wait times out; this only bounds how long
// the parent's own [Operation.Exit] blocks on them.
func (op *Operation) cancelChildrenAndWait(reason CancelReason, message string) {
	children := op.liveChildren()
	if len(children) == 0 {
		return
	}
	for _, child := range children {
		child.cancelWithReason(reason, message, true)
	}

	ctx, cancel := context.WithTimeout(context.Background(), op.cfg.ShutdownBudget)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, child := range children {
		child := child
		g.Go(func() error {
			select {
			case <-child.exitedCh:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}
	_ = g.Wait() // a timed-out wait leaves children cancelled but unexited; logged by the caller if desired
}

// awaitChildren blocks the caller until every currently-live child of op
// has exited or timeout elapses, without cancelling anything. Exposed for
// tests and for callers that want to observe quiescence without tearing
// down op itself.
func (op *Operation) awaitChildren(timeout time.Duration) bool {
	children := op.liveChildren()
	if len(children) == 0 {
		return true
	}
	deadline := time.After(timeout)
	for _, child := range children {
		select {
		case <-child.exitedCh:
		case <-deadline:
			return false
		}
	}
	return true
}
