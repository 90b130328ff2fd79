// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

// tokenSource wraps an externally owned [*Token]; when it fires, the
// enclosing operation's own token fires with [ReasonManual], implementing
// spec.md §4.C.4. There is no monitor goroutine — activation registers a
// callback directly on the external token — and deactivation's only
// effect is removing that callback, per spec.md §4.C.4.
type tokenSource struct {
	sourceBase
	external   *Token
	unregister func()
}

var _ Source = (*tokenSource)(nil)

// NewTokenSource creates a [Source] backed by an externally owned token.
func NewTokenSource(external *Token) Source {
	return &tokenSource{external: external}
}

func (s *tokenSource) activate(op *Operation, sink cancelSink) {
	s.bind(op, sink)
	s.unregister = s.external.RegisterCallback(func(reason CancelReason, message string) {
		s.fire(ReasonManual, message)
	})
}

func (s *tokenSource) deactivate() {
	if s.unregister != nil {
		s.unregister()
	}
}

func (s *tokenSource) String() string {
	return "token(external)"
}
