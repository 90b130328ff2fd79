// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import (
	"iter"
	"sync"
)

// PartialResult accumulates elements observed by a stream wrapped with
// bufferPartial=true, surviving past cancellation so callers can inspect
// what was produced before the stream was cut off (spec.md §4.D.1,
// glossary "Partial result"). Safe for concurrent reads while a stream is
// still being consumed.
type PartialResult struct {
	mu     sync.Mutex
	Buffer []any
	Count  int
}

func (p *PartialResult) append(v any) {
	p.mu.Lock()
	p.Buffer = append(p.Buffer, v)
	p.Count++
	p.mu.Unlock()
}

// Snapshot returns a defensive copy of the buffered elements and the
// running count.
func (p *PartialResult) Snapshot() ([]any, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]any, len(p.Buffer))
	copy(out, p.Buffer)
	return out, p.Count
}

// PartialResult returns the operation's partial-result accumulator,
// populated only if a stream was wrapped with [StreamOptions.BufferPartial].
// Returns nil if no such stream was ever wrapped.
func (op *Operation) PartialResult() *PartialResult {
	op.metaMu.Lock()
	defer op.metaMu.Unlock()
	return op.partialResult
}

// StreamOptions configures [Operation.Stream].
type StreamOptions struct {
	// ReportInterval, if positive, emits a progress report every N
	// elements via [Operation.ReportProgress], with [MetaCurrent] set to
	// the running count.
	ReportInterval int

	// BufferPartial, if true, appends every emitted element to the
	// operation's [PartialResult] as it is pulled.
	BufferPartial bool
}

// Stream wraps src, an arbitrary lazy sequence of (T, error), implementing
// spec.md §4.D.1. After each element is pulled from src, and before it is
// buffered, reported or yielded, it checks the operation's token; if the
// token has fired, it yields the resulting [*CancelError] in place of that
// element and pulls nothing further. The token is not checked before the
// first pull, and the element pulled when the check fails is dropped.
// Elements are yielded in source order; no reordering is performed.
func (op *Operation) Stream(src iter.Seq2[any, error], opts StreamOptions) iter.Seq2[any, error] {
	if opts.BufferPartial && op.partialResult == nil {
		op.metaMu.Lock()
		if op.partialResult == nil {
			op.partialResult = &PartialResult{}
		}
		op.metaMu.Unlock()
	}

	return func(yield func(any, error) bool) {
		count := 0
		for v, err := range src {
			if cerr := op.token.Check(); cerr != nil {
				yield(nil, cerr)
				return
			}
			if err != nil {
				if !yield(v, err) {
					return
				}
				continue
			}

			if opts.BufferPartial {
				op.partialResult.append(v)
			}
			count++
			if opts.ReportInterval > 0 && count%opts.ReportInterval == 0 {
				_ = op.ReportProgress("stream progress", map[string]any{MetaCurrent: count})
			}

			if !yield(v, nil) {
				return
			}
		}
	}
}

// ChunkedStream is a convenience variant of [Operation.Stream] (spec.md
// §4.D.2) that yields slices of up to size elements from src. It checks
// the operation's token after every element pulled from src, not only
// between chunks; once the token has fired, it yields the partly filled
// chunk (if any) and then the [*CancelError].
func (op *Operation) ChunkedStream(src iter.Seq2[any, error], size int) iter.Seq2[[]any, error] {
	if size <= 0 {
		size = 1
	}
	return func(yield func([]any, error) bool) {
		chunk := make([]any, 0, size)
		for v, err := range src {
			if cerr := op.token.Check(); cerr != nil {
				if len(chunk) > 0 {
					if !yield(chunk, nil) {
						return
					}
				}
				yield(nil, cerr)
				return
			}
			if err != nil {
				if len(chunk) > 0 {
					if !yield(chunk, nil) {
						return
					}
					chunk = chunk[:0]
				}
				if !yield(nil, err) {
					return
				}
				continue
			}

			chunk = append(chunk, v)
			if len(chunk) == size {
				if !yield(chunk, nil) {
					return
				}
				chunk = make([]any, 0, size)
			}
		}
		if len(chunk) > 0 {
			yield(chunk, nil)
		}
	}
}
