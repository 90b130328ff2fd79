// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatchContextFiresOnCancel(t *testing.T) {
	var fired atomic.Bool

	ctx, cancel := context.WithCancel(context.Background())
	stop := watchContext(ctx, func() { fired.Store(true) })
	defer stop()

	assert.False(t, fired.Load())

	cancel()

	assert.Eventually(t, fired.Load, time.Second, 10*time.Millisecond)
}

func TestWatchContextAlreadyDone(t *testing.T) {
	var fired atomic.Bool

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stop := watchContext(ctx, func() { fired.Store(true) })
	defer stop()

	assert.Eventually(t, fired.Load, time.Second, 10*time.Millisecond)
}

func TestWatchContextStopUnregisters(t *testing.T) {
	var fireCount atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := watchContext(ctx, func() { fireCount.Add(1) })

	stopped := stop()
	assert.True(t, stopped)

	cancel()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), fireCount.Load())
}
