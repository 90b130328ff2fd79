// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
)

// signalSource fires with [ReasonSignal] when one of a configured set of
// OS signals arrives, implementing spec.md §4.C.3. Signal delivery
// originates on an arbitrary OS thread via Go's runtime signal handling,
// which is itself what makes [Token.CancelSync] essential here rather
// than [Token.Cancel]: this source always fires through CancelSync.
//
// Default signal sets differ per platform because not every OS signal
// spec.md references exists everywhere; see signalsource_unix.go and
// signalsource_windows.go for the per-platform default list used by
// [NewSignalSource] when called with no arguments.
type signalSource struct {
	sourceBase
	signals []os.Signal
	sigCh   chan os.Signal
	stopCh  chan struct{}
	doneCh  chan struct{}
}

var _ Source = (*signalSource)(nil)

// NewSignalSource creates a [Source] that fires on any of the given
// signals. With no arguments, it watches the platform's default
// interrupt-style signal set.
func NewSignalSource(signals ...os.Signal) Source {
	if len(signals) == 0 {
		signals = defaultSignals()
	}
	return &signalSource{signals: signals}
}

func (s *signalSource) activate(op *Operation, sink cancelSink) {
	s.bind(op, sink)
	s.sigCh = make(chan os.Signal, 16)
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	signal.Notify(s.sigCh, s.signals...)

	go func() {
		defer close(s.doneCh)
		for {
			select {
			case sig := <-s.sigCh:
				// Signals are always delivered on an arbitrary
				// runtime-managed goroutine (spec.md §4.C.3's
				// portability note); every sink this source can be
				// given — the default CancelSync-backed one from
				// sourceBase.bind, or a composite's bookkeeping
				// callback — is safe to call from here.
				s.fire(ReasonSignal, fmt.Sprintf("received signal %s", sig))
			case <-s.stopCh:
				return
			}
		}
	}()
}

func (s *signalSource) deactivate() {
	if s.stopCh == nil {
		return
	}
	signal.Stop(s.sigCh)
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	<-s.doneCh
}

func (s *signalSource) String() string {
	names := make([]string, len(s.signals))
	for i, sig := range s.signals {
		names[i] = sig.String()
	}
	return fmt.Sprintf("signal(%s)", strings.Join(names, ", "))
}
