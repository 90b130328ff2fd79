// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSourceFiresOnExternalCancel(t *testing.T) {
	external := NewToken()
	op, err := NewOperation(WithRegisterGlobally(false), WithSources(NewTokenSource(external)))
	require.NoError(t, err)
	ctx := op.Enter(context.Background())
	defer op.Exit(nil)

	external.Cancel(ReasonManual, "stop please")

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("token source never fired")
	}
	assert.Equal(t, ReasonManual, op.Token().Reason())
	assert.Equal(t, "stop please", op.Token().Message())
}

func TestWithTokenOption(t *testing.T) {
	external := NewToken()
	op, err := NewOperation(WithRegisterGlobally(false), WithToken(external))
	require.NoError(t, err)
	op.Enter(context.Background())
	defer op.Exit(nil)

	external.Cancel(ReasonManual, "external stop")
	assert.True(t, op.Token().IsCancelled())
}

func TestWithTokenNilIsConstructionError(t *testing.T) {
	_, err := NewOperation(WithRegisterGlobally(false), WithToken(nil))
	require.Error(t, err)
}

func TestTokenSourceDeactivateRemovesCallback(t *testing.T) {
	external := NewToken()
	op, err := NewOperation(WithRegisterGlobally(false), WithSources(NewTokenSource(external)))
	require.NoError(t, err)
	op.Enter(context.Background())
	op.Exit(nil)

	// The operation's own source deactivated and unregistered before the
	// external token ever fired, so this must not panic or deadlock, and
	// the operation's token must remain uncancelled.
	external.Cancel(ReasonManual, "late")
	assert.False(t, op.Token().IsCancelled())
}

func TestTokenSourceAlreadyCancelledFiresImmediately(t *testing.T) {
	external := NewToken()
	external.Cancel(ReasonSignal, "pre-cancelled")

	op, err := NewOperation(WithRegisterGlobally(false), WithSources(NewTokenSource(external)))
	require.NoError(t, err)
	op.Enter(context.Background())
	defer op.Exit(nil)

	assert.True(t, op.Token().IsCancelled())
	assert.Equal(t, ReasonManual, op.Token().Reason())
}

func TestTokenSourceString(t *testing.T) {
	src := NewTokenSource(NewToken())
	assert.Equal(t, "token(external)", src.String())
}
