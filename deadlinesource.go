// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import (
	"context"
	"time"
)

// deadlineSource fires when monotonic time passes a deadline, implementing
// spec.md §4.C.1. It derives a [context.Context] with [context.WithDeadline]
// from the operation's own context and watches it with [watchContext]
// rather than polling, so firing accuracy is bounded only by the Go
// runtime's timer resolution (well within the "one scheduling quantum"
// spec.md requires).
//
// A deadline already in the past still activates normally: [context.WithDeadline]
// returns an already-done context, and [watchContext] fires its callback
// immediately, so cancellation is observed at the very next suspension
// point, matching spec.md §4.C.1's edge case.
type deadlineSource struct {
	sourceBase
	deadline time.Time
	cancel   context.CancelFunc
	stop     func() bool
}

var _ Source = (*deadlineSource)(nil)

// NewDeadlineSource creates a [Source] that fires with reason
// [ReasonTimeout] when wall-clock time reaches deadline.
func NewDeadlineSource(deadline time.Time) Source {
	return &deadlineSource{deadline: deadline}
}

// NewTimeoutSource creates a [Source] that fires after d elapses, computed
// relative to [Config.TimeNow] at activation time (or [time.Now] if the
// operation has no config). A non-positive d fires immediately on
// activation.
func NewTimeoutSource(d time.Duration) Source {
	return &deadlineSourceFromDuration{duration: d}
}

// deadlineSourceFromDuration defers computing the absolute deadline until
// activation, since "now" is only meaningful once the enclosing Operation
// (and its configured clock) is known.
type deadlineSourceFromDuration struct {
	sourceBase
	duration time.Duration
	inner    *deadlineSource
}

var _ Source = (*deadlineSourceFromDuration)(nil)

func (s *deadlineSourceFromDuration) activate(op *Operation, sink cancelSink) {
	s.op = op
	now := time.Now()
	if op.cfg.TimeNow != nil {
		now = op.cfg.TimeNow()
	}
	s.inner = &deadlineSource{deadline: now.Add(s.duration)}
	s.inner.activate(op, sink)
}

func (s *deadlineSourceFromDuration) deactivate() {
	if s.inner != nil {
		s.inner.deactivate()
	}
}

func (s *deadlineSourceFromDuration) triggered() bool {
	return s.inner != nil && s.inner.triggered()
}

func (s *deadlineSourceFromDuration) String() string {
	return "deadline(" + s.duration.String() + ")"
}

func (s *deadlineSource) activate(op *Operation, sink cancelSink) {
	s.bind(op, sink)
	ctx, cancel := context.WithDeadline(op.ctx, s.deadline)
	s.cancel = cancel
	s.stop = watchContext(ctx, func() {
		// ctx also ends when op's own context is cancelled for another
		// reason; only an expired deadline fires this source.
		if ctx.Err() == context.DeadlineExceeded {
			s.fire(ReasonTimeout, "deadline exceeded at "+s.deadline.Format(time.RFC3339))
		}
	})
}

func (s *deadlineSource) deactivate() {
	if s.stop != nil {
		s.stop()
	}
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *deadlineSource) String() string {
	return "deadline(" + s.deadline.Format(time.RFC3339) + ")"
}
