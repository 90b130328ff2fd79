// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredicateSourceFiresOnFirstTrue(t *testing.T) {
	var ready atomic.Bool
	src := NewPredicateSource(ready.Load, 5*time.Millisecond, 0)

	op, err := NewOperation(WithRegisterGlobally(false), WithSources(src))
	require.NoError(t, err)
	ctx := op.Enter(context.Background())
	defer op.Exit(nil)

	ready.Store(true)

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("predicate source never fired")
	}
	assert.Equal(t, ReasonCondition, op.Token().Reason())
}

func TestPredicateSourceSustainedResetsOnFalse(t *testing.T) {
	var flips atomic.Int32
	pred := func() bool {
		n := flips.Add(1)
		// True, false, then true-forever: the false observation must
		// reset the sustained-true window.
		return n != 2
	}
	src := NewPredicateSource(pred, 5*time.Millisecond, 20*time.Millisecond)

	op, err := NewOperation(WithRegisterGlobally(false), WithSources(src))
	require.NoError(t, err)
	ctx := op.Enter(context.Background())
	defer op.Exit(nil)

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("sustained predicate source never fired")
	}
	assert.Equal(t, ReasonCondition, op.Token().Reason())
}

func TestPredicateSourceNeverTrueNeverFires(t *testing.T) {
	src := NewPredicateSource(func() bool { return false }, 5*time.Millisecond, 0)

	op, err := NewOperation(WithRegisterGlobally(false), WithSources(src))
	require.NoError(t, err)
	op.Enter(context.Background())
	time.Sleep(30 * time.Millisecond)
	op.Exit(nil)

	assert.False(t, op.Token().IsCancelled())
}

func TestPredicateSourceZeroIntervalIsConstructionError(t *testing.T) {
	_, err := NewPredicateSourceErr(func() bool { return true }, 0, 0)
	require.Error(t, err)
}

func TestPredicateSourceZeroIntervalViaConstructorFiresOnError(t *testing.T) {
	var gotErr error
	src := NewPredicateSource(func() bool { return true }, 0, 0)
	op, err := NewOperation(WithRegisterGlobally(false), WithSources(src))
	require.NoError(t, err)
	op.OnError(func(_ *Operation, e error) { gotErr = e })
	op.Enter(context.Background())
	defer op.Exit(nil)

	require.Error(t, gotErr)
}

func TestPredicateSourceMonitorPanicCancelsWithReasonErrorAndNotifiesOnError(t *testing.T) {
	// Pinned per SPEC_FULL.md §12 Open Question #4: a panicking predicate
	// is a monitor failure, recovered, routed to OnError, and cancels the
	// operation with ReasonError rather than crashing the process.
	src := NewPredicateSource(func() bool { panic("predicate exploded") }, 5*time.Millisecond, 0)

	op, err := NewOperation(WithRegisterGlobally(false), WithSources(src))
	require.NoError(t, err)

	var gotErr error
	op.OnError(func(_ *Operation, e error) { gotErr = e })

	ctx := op.Enter(context.Background())
	defer op.Exit(nil)

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("predicate source panic never cancelled the operation")
	}

	assert.Equal(t, ReasonError, op.Token().Reason())
	require.Error(t, gotErr)
	assert.Contains(t, gotErr.Error(), "predicate exploded")
}

func TestPredicateSourceString(t *testing.T) {
	src := NewPredicateSourceMust(func() bool { return false }, time.Second, 3*time.Second)
	assert.Contains(t, src.String(), "predicate(")
}

// NewPredicateSourceMust is a tiny test helper wrapping
// [NewPredicateSourceErr] for cases where construction is known to
// succeed.
func NewPredicateSourceMust(pred Predicate, interval, sustainedFor time.Duration) Source {
	src, err := NewPredicateSourceErr(pred, interval, sustainedFor)
	if err != nil {
		panic(err)
	}
	return src
}
