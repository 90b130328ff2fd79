// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import "time"

// defaultShutdownBudget is how long an [Operation] waits for its live
// children to observe and handle cancellation before giving up on them, per
// spec's open question on the parent-await-children budget (the
// original design notes a 5s default, tunable; see [Config.ShutdownBudget]).
const defaultShutdownBudget = 5 * time.Second

// defaultHistoryCap bounds the [Registry] history ring buffer.
const defaultHistoryCap = 1024

// Config holds common configuration for cancelops.
//
// Pass this to [NewOperation] and [NewRegistry] to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use (configurable for testing or custom
	// logging).
	//
	// Set by [NewConfig] to [DefaultSLogger].
	Logger SLogger

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time

	// ShutdownBudget bounds how long a cancelled [Operation] waits for its
	// live children to exit before it gives up waiting (the children
	// themselves are still cancelled; this only bounds how long the parent
	// blocks on them).
	//
	// Set by [NewConfig] to 5 seconds.
	ShutdownBudget time.Duration

	// HistoryCap bounds the number of completed operations a [Registry]
	// retains for historical [Registry.Get]/[Registry.List] queries. Once
	// exceeded, the oldest entries are dropped.
	//
	// Set by [NewConfig] to 1024.
	HistoryCap int

	// HistoryMaxAge, if positive, additionally trims history entries older
	// than this age on each [Registry.CleanupCompleted] call.
	//
	// Zero (the [NewConfig] default) disables age-based trimming; entries
	// are then trimmed only by [Config.HistoryCap].
	HistoryMaxAge time.Duration

	// ThreadBridge, if set, is bound to every [Operation]'s [*Token] on
	// [Operation.Enter], giving [Token.CancelSync] a dispatch goroutine to
	// marshal onto (spec.md §4.I). Nil (the [NewConfig] default) leaves
	// tokens unbound: [Token.CancelSync] still works, it just runs the
	// cancellation directly on the calling goroutine instead of through a
	// bridge. Also settable per-operation via [WithThreadBridge].
	ThreadBridge *ThreadBridge
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		ErrClassifier:  DefaultErrClassifier,
		Logger:         DefaultSLogger(),
		TimeNow:        time.Now,
		ShutdownBudget: defaultShutdownBudget,
		HistoryCap:     defaultHistoryCap,
	}
}

// withDefaults returns cfg, or [NewConfig] if cfg is nil, with any zero-value
// fields in a non-nil cfg backfilled from the defaults. This lets callers
// pass a partially-populated *Config (e.g. just overriding TimeNow in a
// test) without silently operating with nil dependencies.
func (cfg *Config) withDefaults() *Config {
	if cfg == nil {
		return NewConfig()
	}
	out := *cfg
	if out.ErrClassifier == nil {
		out.ErrClassifier = DefaultErrClassifier
	}
	if out.Logger == nil {
		out.Logger = DefaultSLogger()
	}
	if out.TimeNow == nil {
		out.TimeNow = time.Now
	}
	if out.ShutdownBudget <= 0 {
		out.ShutdownBudget = defaultShutdownBudget
	}
	if out.HistoryCap <= 0 {
		out.HistoryCap = defaultHistoryCap
	}
	return &out
}
