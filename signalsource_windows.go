// SPDX-License-Identifier: GPL-3.0-or-later

//go:build windows

package cancelops

import (
	"os"
)

// defaultSignals is the default signal set [NewSignalSource] watches on
// Windows when called with no arguments. Windows has no SIGQUIT/SIGTERM
// equivalent that Go's runtime delivers through os/signal, so the default
// set is limited to os.Interrupt, matching spec.md §4.C.3's "implementations
// may limit to the host OS's signal set" portability allowance.
func defaultSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}
