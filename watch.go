// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import "context"

// watchContext arranges for fire to run when ctx is done (cancelled or
// deadline exceeded), using [context.AfterFunc] rather than a dedicated
// monitor goroutine. The returned stop function unregisters the watcher; it
// must be called once the watched context's lifetime ends even if it was
// never cancelled, to avoid leaking the registration.
//
// This is the primitive [deadlineSource] builds on: a deadline source
// derives a context with [context.WithDeadline] and watches it. Centralizing
// it here keeps the "register a callback that fires at most once, and can
// be unregistered early" behavior in one place. ([tokenSource] gets the
// same shape from [Token.RegisterCallback] instead.)
func watchContext(ctx context.Context, fire func()) (stop func() bool) {
	return context.AfterFunc(ctx, fire)
}
