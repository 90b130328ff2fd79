// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationLifecycleCompleted(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false), WithName("work"))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, op.Status())

	op.Enter(context.Background())
	assert.Equal(t, StatusRunning, op.Status())

	require.NoError(t, op.Exit(nil))
	assert.Equal(t, StatusCompleted, op.Status())
	assert.NoError(t, op.Err())
}

func TestOperationLifecycleFailed(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false), WithName("work"))
	require.NoError(t, err)
	op.Enter(context.Background())

	boom := errors.New("boom")
	gotErr := op.Exit(boom)
	assert.Same(t, boom, gotErr)
	assert.Equal(t, StatusFailed, op.Status())
	assert.Same(t, boom, op.Err())
}

func TestOperationLifecycleCancelled(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false), WithName("work"))
	require.NoError(t, err)
	ctx := op.Enter(context.Background())

	op.Cancel("nope")
	<-ctx.Done()

	require.NoError(t, op.Exit(nil))
	assert.Equal(t, StatusCancelled, op.Status())
	cerr, ok := AsCancelError(op.Err())
	require.True(t, ok)
	assert.Equal(t, ReasonManual, cerr.Reason)
	assert.Equal(t, "nope", cerr.Message)
}

func TestOperationClassifyExitTreatsContextCanceledAsCancelled(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false), WithName("ctx-cancel"))
	require.NoError(t, err)
	op.Enter(context.Background())

	op.Exit(context.Canceled)
	assert.Equal(t, StatusCancelled, op.Status())
}

func TestOperationCancelIsIdempotent(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false), WithName("idempotent-cancel"))
	require.NoError(t, err)
	op.Enter(context.Background())
	defer op.Exit(nil)

	assert.True(t, op.Cancel("first"))
	assert.False(t, op.Cancel("second"))
	assert.Equal(t, "first", op.Token().Message())
}

func TestOperationCancelGraceful(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false), WithName("graceful"))
	require.NoError(t, err)
	ctx := op.Enter(context.Background())

	go func() {
		<-ctx.Done()
		op.Exit(op.Err())
	}()

	ok := op.CancelGraceful(ReasonManual, "graceful stop", time.Second)
	assert.True(t, ok)
}

func TestOperationCancelGracefulTimesOut(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false), WithName("graceful-timeout"))
	require.NoError(t, err)
	op.Enter(context.Background())
	defer op.Exit(nil)

	ok := op.CancelGraceful(ReasonManual, "never exits", 20*time.Millisecond)
	assert.False(t, ok)
}

func TestOperationStringIncludesName(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false), WithID("abc"), WithName("named"))
	require.NoError(t, err)
	assert.Equal(t, "Operation(named, id=abc)", op.String())
}

func TestOperationStringWithoutName(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false), WithID("xyz"))
	require.NoError(t, err)
	assert.Equal(t, "Operation(id=xyz)", op.String())
}

func TestOperationMetadataRoundTrip(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false))
	require.NoError(t, err)

	op.SetMetadata("retries", 3)
	assert.Equal(t, 3, op.Metadata()["retries"])

	// Metadata() is a defensive copy.
	snap := op.Metadata()
	snap["retries"] = 99
	assert.Equal(t, 3, op.Metadata()["retries"])
}

func TestOperationLifecycleCallbacks(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false), WithName("callbacks"))
	require.NoError(t, err)

	var started, completed bool
	op.OnStart(func(*Operation) { started = true })
	op.OnComplete(func(*Operation) { completed = true })

	op.Enter(context.Background())
	assert.True(t, started)
	assert.False(t, completed)

	op.Exit(nil)
	assert.True(t, completed)
}

func TestOperationOnCancelCallback(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false), WithName("cancel-cb"))
	require.NoError(t, err)

	var cancelledReason CancelReason
	op.OnCancel(func(o *Operation) { cancelledReason = o.Token().Reason() })

	op.Enter(context.Background())
	op.Cancel("stop")
	op.Exit(nil)

	assert.Equal(t, ReasonManual, cancelledReason)
}

func TestOperationOnErrorCallback(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false), WithName("error-cb"))
	require.NoError(t, err)

	var gotErr error
	op.OnError(func(_ *Operation, e error) { gotErr = e })

	op.Enter(context.Background())
	boom := errors.New("kaboom")
	op.Exit(boom)

	assert.Same(t, boom, gotErr)
}

func TestOperationEnterRecoversPanickingOnStartCallback(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false), WithName("onstart-panic"))
	require.NoError(t, err)

	var ranAfter bool
	op.OnStart(func(*Operation) { panic("boom") })
	op.OnStart(func(*Operation) { ranAfter = true })

	assert.NotPanics(t, func() {
		op.Enter(context.Background())
	})
	defer op.Exit(nil)
	assert.True(t, ranAfter)
}

func TestOperationExitRecoversPanickingOnCompleteCallbackAndFinishesLifecycle(t *testing.T) {
	reg := newTestRegistry()
	op, err := NewOperation(WithName("oncomplete-panic"), WithRegistry(reg))
	require.NoError(t, err)

	var ranAfter bool
	op.OnComplete(func(*Operation) { panic("boom") })
	op.OnComplete(func(*Operation) { ranAfter = true })

	op.Enter(context.Background())
	assert.NotPanics(t, func() {
		require.NoError(t, op.Exit(nil))
	})

	assert.True(t, ranAfter)
	// Exit must still have unregistered from the registry and closed
	// exitedCh despite the panicking callback (lifecycle invariant 3).
	_, known := reg.Get(op.ID())
	assert.True(t, known) // moved to history, not vanished
	assert.Equal(t, 0, reg.Stats().ActiveCount)
	select {
	case <-op.exitedCh:
	default:
		t.Fatal("exitedCh was never closed after a panicking onComplete callback")
	}
}

func TestOperationExitRecoversPanickingOnCancelCallback(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false), WithName("oncancel-panic"))
	require.NoError(t, err)

	var ranAfter bool
	op.OnCancel(func(*Operation) { panic("boom") })
	op.OnCancel(func(*Operation) { ranAfter = true })

	op.Enter(context.Background())
	op.Cancel("stop")
	assert.NotPanics(t, func() {
		op.Exit(nil)
	})
	assert.True(t, ranAfter)
}

func TestOperationExitRecoversPanickingOnErrorCallback(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false), WithName("onerror-panic"))
	require.NoError(t, err)

	var ranAfter bool
	op.OnError(func(*Operation, error) { panic("boom") })
	op.OnError(func(*Operation, error) { ranAfter = true })

	op.Enter(context.Background())
	assert.NotPanics(t, func() {
		op.Exit(errors.New("boom"))
	})
	assert.True(t, ranAfter)
}

func TestOperationCombineFiresWhenEitherSourceCancels(t *testing.T) {
	a, err := NewOperation(WithRegisterGlobally(false), WithName("a"))
	require.NoError(t, err)
	a.Enter(context.Background())
	defer a.Exit(nil)

	b, err := NewOperation(WithRegisterGlobally(false), WithName("b"))
	require.NoError(t, err)
	b.Enter(context.Background())
	defer b.Exit(nil)

	combined, err := a.Combine(b)
	require.NoError(t, err)
	assert.Equal(t, "a+b", combined.Name())
	ctx := combined.Enter(context.Background())
	defer combined.Exit(nil)

	b.Cancel("b stopped")

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("combined operation never observed source b's cancellation")
	}
	assert.True(t, combined.Token().IsCancelled())
}

func TestOperationLogsEnterAndExit(t *testing.T) {
	logger, records := newCapturingLogger()
	op, err := NewOperation(
		WithRegisterGlobally(false),
		WithName("logged"),
		WithConfig(&Config{TimeNow: time.Now, Logger: logger}),
	)
	require.NoError(t, err)

	op.Enter(context.Background())
	op.Exit(nil)

	var messages []string
	for _, r := range *records {
		messages = append(messages, r.Message)
	}
	assert.Contains(t, messages, "operationEnter")
	assert.Contains(t, messages, "operationExit")
}

func TestOperationCancelSyncMarshalsThroughBoundThreadBridge(t *testing.T) {
	// spec.md §4.I scenario S3: an external goroutine (here, simulating a
	// signal handler) calls CancelSync on an operation whose Token has a
	// real ThreadBridge bound via the public WithThreadBridge option, and
	// the cancellation is observed through the operation's own context.
	bridge := NewThreadBridge(1)
	defer bridge.Close()

	op, err := NewOperation(WithRegisterGlobally(false), WithName("bridged"), WithThreadBridge(bridge))
	require.NoError(t, err)
	ctx := op.Enter(context.Background())
	defer op.Exit(nil)

	go func() {
		op.Token().CancelSync(ReasonSignal, "sigint")
	}()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("operation never observed CancelSync through the bound thread bridge")
	}
	assert.Equal(t, ReasonSignal, op.Token().Reason())
}

func TestOperationConfigThreadBridgeIsUsedWhenNoPerOperationOverride(t *testing.T) {
	bridge := NewThreadBridge(1)
	defer bridge.Close()

	op, err := NewOperation(
		WithRegisterGlobally(false),
		WithConfig(&Config{TimeNow: time.Now, ThreadBridge: bridge}),
	)
	require.NoError(t, err)
	op.Enter(context.Background())
	defer op.Exit(nil)

	assert.Same(t, bridge, op.Token().bridge)
	assert.True(t, op.Token().CancelSync(ReasonManual, "via config bridge"))
}

func TestOperationDeadlineSourceCancelsOperation(t *testing.T) {
	op, err := NewOperation(WithRegisterGlobally(false), WithName("deadline-op"), WithDeadline(10*time.Millisecond))
	require.NoError(t, err)
	ctx := op.Enter(context.Background())
	defer op.Exit(nil)

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("operation deadline never fired")
	}
	assert.Equal(t, StatusRunning, op.Status())
	assert.True(t, op.Token().IsCancelled())
}
