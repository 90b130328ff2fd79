// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import (
	"fmt"
	"log/slog"
	"time"
)

// Predicate is a callable a [predicateSource] polls. Synchronous
// predicates are run directly on the monitor goroutine; predicates that
// need a bounded worker pool instead of an ad-hoc goroutine should be
// wrapped with [RunInThread] by the caller before being handed to
// [NewPredicateSource].
type Predicate func() bool

// predicateSource polls a [Predicate] at a fixed interval, implementing
// spec.md §4.C.2. Sustained-duration semantics follow the conservative
// reading spec.md §9 calls out: the predicate must return true
// continuously for the full sustained duration, and any observed false
// resets the sustained-true window back to zero (SPEC_FULL.md §12,
// Open Question #2).
//
// Source failure policy (spec.md §7 "Source errors", SPEC_FULL.md §12
// Open Question #4): a panicking predicate is treated as a monitor
// failure, not a programmer error that should crash the process. The
// monitor goroutine recovers it, reports it to the operation's
// [Operation.OnError] callbacks, and cancels the operation with
// [ReasonError] — a predicate that cannot be evaluated has cost the
// operation its sole means of telling whether it should continue, so the
// operation cannot safely keep running.
type predicateSource struct {
	sourceBase
	pred         Predicate
	interval     time.Duration
	sustainedFor time.Duration
	stopCh       chan struct{}
	doneCh       chan struct{}
}

var _ Source = (*predicateSource)(nil)

// NewPredicateSource creates a [Source] that fires with [ReasonCondition]
// once pred has been continuously true for sustainedFor (0 means "fire on
// the first true observation"). interval must be positive;
// [Operation.Enter] will observe whatever error occurred at construction
// time via the source's own validation — interval <= 0 is rejected here by
// returning a source that never activates cleanly, matching spec.md §8's
// "predicate source whose interval is zero: error" boundary. Use
// [NewPredicateSourceErr] to get the error directly at construction.
func NewPredicateSource(pred Predicate, interval time.Duration, sustainedFor time.Duration) Source {
	src, err := NewPredicateSourceErr(pred, interval, sustainedFor)
	if err != nil {
		return &invalidSource{err: err}
	}
	return src
}

// NewPredicateSourceErr is [NewPredicateSource] with explicit error
// reporting, for callers that want to fail construction rather than
// receive a perpetually-erroring source.
func NewPredicateSourceErr(pred Predicate, interval, sustainedFor time.Duration) (Source, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("cancelops: predicate source interval must be positive, got %s", interval)
	}
	return &predicateSource{
		pred:         pred,
		interval:     interval,
		sustainedFor: sustainedFor,
	}, nil
}

func (s *predicateSource) activate(op *Operation, sink cancelSink) {
	s.bind(op, sink)
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.monitor()
}

func (s *predicateSource) monitor() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var sustainedSince time.Time
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ok, failErr := s.pollPredicate()
			if failErr != nil {
				s.reportFailure(failErr)
				return
			}
			if !ok {
				sustainedSince = time.Time{}
				continue
			}
			if s.sustainedFor <= 0 {
				s.fire(ReasonCondition, "predicate satisfied")
				return
			}
			if sustainedSince.IsZero() {
				sustainedSince = time.Now()
				continue
			}
			if time.Since(sustainedSince) >= s.sustainedFor {
				s.fire(ReasonCondition, fmt.Sprintf("predicate sustained for %s", s.sustainedFor))
				return
			}
		}
	}
}

// pollPredicate runs the predicate, recovering a panic into failErr rather
// than letting it crash the monitor goroutine.
func (s *predicateSource) pollPredicate() (ok bool, failErr error) {
	defer func() {
		if r := recover(); r != nil {
			failErr = fmt.Errorf("cancelops: predicate source panicked: %v", r)
		}
	}()
	return s.pred(), nil
}

// reportFailure routes a monitor failure to the operation's onError
// callbacks and cancels the operation with [ReasonError], per the pinned
// policy documented on [predicateSource].
func (s *predicateSource) reportFailure(err error) {
	op := s.op
	op.cfg.Logger.Info(
		"sourceFailure",
		slog.String("id", op.id),
		slog.String("source", s.String()),
		slog.Any("err", err),
		slog.String("errClass", op.cfg.ErrClassifier.Classify(err)),
	)
	op.cbMu.Lock()
	onErr := append([]func(*Operation, error){}, op.onError...)
	op.cbMu.Unlock()
	for _, cb := range onErr {
		op.invokeOnError(cb, err)
	}
	s.fire(ReasonError, err.Error())
}

func (s *predicateSource) deactivate() {
	if s.stopCh == nil {
		return
	}
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.doneCh
}

func (s *predicateSource) String() string {
	return fmt.Sprintf("predicate(interval=%s, sustained=%s)", s.interval, s.sustainedFor)
}

// invalidSource is a [Source] that carries a construction-time error. It
// never fires and its deactivate is a no-op; its purpose is to let
// [NewPredicateSource] return a [Source] value (rather than an error)
// for call sites that build source lists inline, while still surfacing
// the problem loudly through String().
type invalidSource struct {
	sourceBase
	err error
}

var _ Source = (*invalidSource)(nil)

func (s *invalidSource) activate(op *Operation, sink cancelSink) {
	s.bind(op, sink)
	op.cbMu.Lock()
	onErr := append([]func(*Operation, error){}, op.onError...)
	op.cbMu.Unlock()
	for _, cb := range onErr {
		op.invokeOnError(cb, s.err)
	}
}

func (s *invalidSource) deactivate() {}

func (s *invalidSource) String() string {
	return fmt.Sprintf("invalid(%s)", s.err)
}
