// SPDX-License-Identifier: GPL-3.0-or-later

//go:build unix

package cancelops

import (
	"os"
	"syscall"
)

// defaultSignals is the default signal set [NewSignalSource] watches on
// Unix-family platforms when called with no arguments: the usual
// interrupt/terminate/quit triad.
func defaultSignals() []os.Signal {
	return []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT}
}
