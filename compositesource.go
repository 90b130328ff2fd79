// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import (
	"fmt"
	"strings"
	"sync"
)

// anyOfSource fires when the first of its child sources fires, recording
// that child's reason and message, implementing spec.md §4.C.5. Child
// sources are consumed: each must be activated by exactly one composite
// (or directly), never both.
//
// Because every child is activated with the enclosing operation's own
// sink (no substitution needed — the first child to fire simply wins the
// underlying [Token]'s one-shot race), the composite itself never calls
// fire(): [anyOfSource.triggered] reports whichever child's own triggered
// flag is set.
type anyOfSource struct {
	sourceBase
	children []Source
}

var _ Source = (*anyOfSource)(nil)

// AnyOf combines sources with OR semantics: the composite fires when the
// first child fires, and the remaining children are deactivated without
// having fired (spec.md §4.C.5, scenario S4).
func AnyOf(sources ...Source) Source {
	return &anyOfSource{children: sources}
}

func (s *anyOfSource) activate(op *Operation, sink cancelSink) {
	s.bind(op, sink)
	for _, child := range s.children {
		child.activate(op, sink)
	}
}

func (s *anyOfSource) deactivate() {
	for _, child := range s.children {
		child.deactivate()
	}
}

func (s *anyOfSource) triggered() bool {
	for _, child := range s.children {
		if child.triggered() {
			return true
		}
	}
	return false
}

func (s *anyOfSource) String() string {
	parts := make([]string, len(s.children))
	for i, c := range s.children {
		parts[i] = c.String()
	}
	return fmt.Sprintf("anyOf(%s)", strings.Join(parts, ", "))
}

// allOfSource fires only once every child source has fired, with reason
// [ReasonCondition] and a message summarizing every contributing reason,
// implementing spec.md §4.C.6. Each child is activated with a private
// sink that records the child's contribution instead of touching the
// enclosing operation's token directly; only once every child has
// reported does the composite call its own fire, which delivers to
// whatever sink the composite itself was given.
type allOfSource struct {
	sourceBase
	children []Source

	mu        sync.Mutex
	fireOrder []string
	remaining int
}

var _ Source = (*allOfSource)(nil)

// AllOf combines sources with AND semantics: the composite fires only
// once every child has fired (spec.md §4.C.6, scenario S5).
func AllOf(sources ...Source) Source {
	return &allOfSource{children: sources, remaining: len(sources)}
}

func (s *allOfSource) activate(op *Operation, sink cancelSink) {
	s.bind(op, sink)
	for i, child := range s.children {
		i := i
		child.activate(op, func(reason CancelReason, message string) {
			s.recordChildFire(i, reason, message)
		})
	}
}

// recordChildFire is invoked once per child, in arrival order. When every
// child has reported, the composite fires with ReasonCondition and a
// message naming every contributing child in arrival order.
func (s *allOfSource) recordChildFire(childIndex int, reason CancelReason, message string) {
	s.mu.Lock()
	s.fireOrder = append(s.fireOrder, fmt.Sprintf("child[%d]=%s(%s)", childIndex, reason, message))
	s.remaining--
	done := s.remaining <= 0
	summary := strings.Join(s.fireOrder, "; ")
	s.mu.Unlock()

	if done {
		s.fire(ReasonCondition, summary)
	}
}

func (s *allOfSource) deactivate() {
	for _, child := range s.children {
		child.deactivate()
	}
}

func (s *allOfSource) String() string {
	parts := make([]string, len(s.children))
	for i, c := range s.children {
		parts[i] = c.String()
	}
	return fmt.Sprintf("allOf(%s)", strings.Join(parts, ", "))
}
