// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import (
	"fmt"
	"time"
)

// operationOptions accumulates [Option] values before [NewOperation]
// assembles the final [*Operation]. Grounded on the functional-options
// pattern used throughout the retrieval pack's event-loop package
// (joeycumines-go-utilpkg/eventloop/options.go), adapted here to let
// options fail (a negative deadline or a nil token is a construction-time
// error per spec.md §8's boundary behaviors, not a panic and not a silent
// default).
type operationOptions struct {
	id               string
	name             string
	parent           *Operation
	sources          []Source
	metadata         map[string]any
	registerGlobally bool
	cfg              *Config
	registry         *Registry
	initialToken     *Token
	threadBridge     *ThreadBridge
}

// Option configures a [*Operation] created by [NewOperation].
type Option interface {
	apply(*operationOptions) error
}

type optionFunc func(*operationOptions) error

func (f optionFunc) apply(o *operationOptions) error { return f(o) }

// WithID sets an explicit operation id instead of generating one with
// [NewOperationID].
func WithID(id string) Option {
	return optionFunc(func(o *operationOptions) error {
		o.id = id
		return nil
	})
}

// WithName sets the operation's human name, used for log correlation and
// [Registry] glob-pattern matching.
func WithName(name string) Option {
	return optionFunc(func(o *operationOptions) error {
		o.name = name
		return nil
	})
}

// WithParent makes the constructed operation a child of parent: on
// [Operation.Enter] it is appended to parent's live-child list, and
// parent cancellation cascades to it with [ReasonParent] (spec.md §4.F).
// parent must already be entered — [NewOperation] returns an error
// otherwise, which structurally prevents parent/child construction cycles.
func WithParent(parent *Operation) Option {
	return optionFunc(func(o *operationOptions) error {
		o.parent = parent
		return nil
	})
}

// WithSources adds sources to the operation. Deadline sources are always
// activated first regardless of argument order (spec.md §4.D).
func WithSources(sources ...Source) Option {
	return optionFunc(func(o *operationOptions) error {
		o.sources = append(o.sources, sources...)
		return nil
	})
}

// WithDeadline adds a deadline source that fires [ReasonTimeout] after d
// elapses. d == 0 fires at the first suspension point after entry; d < 0
// is a construction-time error (spec.md §8).
func WithDeadline(d time.Duration) Option {
	return optionFunc(func(o *operationOptions) error {
		if d < 0 {
			return fmt.Errorf("cancelops: negative deadline %s", d)
		}
		o.sources = append(o.sources, NewTimeoutSource(d))
		return nil
	})
}

// WithAbsoluteDeadline adds a deadline source that fires [ReasonTimeout]
// when wall-clock time reaches t. A t in the past fires at the first
// suspension point after entry.
func WithAbsoluteDeadline(t time.Time) Option {
	return optionFunc(func(o *operationOptions) error {
		o.sources = append(o.sources, NewDeadlineSource(t))
		return nil
	})
}

// WithToken adds a token source wrapping an externally owned token: when
// tok fires, the operation's own token fires with [ReasonManual] (spec.md
// §4.C.4).
func WithToken(tok *Token) Option {
	return optionFunc(func(o *operationOptions) error {
		if tok == nil {
			return fmt.Errorf("cancelops: nil token")
		}
		o.sources = append(o.sources, NewTokenSource(tok))
		return nil
	})
}

// WithMetadata sets a metadata entry, seeding the operation's metadata map
// with key/value before entry.
func WithMetadata(key string, value any) Option {
	return optionFunc(func(o *operationOptions) error {
		if o.metadata == nil {
			o.metadata = make(map[string]any)
		}
		o.metadata[key] = value
		return nil
	})
}

// WithRegisterGlobally overrides whether the operation registers itself
// with the [Registry] on entry. Default is true.
func WithRegisterGlobally(register bool) Option {
	return optionFunc(func(o *operationOptions) error {
		o.registerGlobally = register
		return nil
	})
}

// WithConfig supplies the [*Config] used for clock, classifier, logger and
// shutdown-budget settings. Default is [NewConfig].
func WithConfig(cfg *Config) Option {
	return optionFunc(func(o *operationOptions) error {
		o.cfg = cfg
		return nil
	})
}

// WithRegistry supplies the [*Registry] the operation registers itself
// into when registerGlobally is true. Default is [DefaultRegistry].
func WithRegistry(registry *Registry) Option {
	return optionFunc(func(o *operationOptions) error {
		o.registry = registry
		return nil
	})
}

// WithThreadBridge binds a [*ThreadBridge] to the operation's [*Token] on
// [Operation.Enter], so [Token.CancelSync] marshals the cancellation and
// its registered callbacks onto the bridge's dispatch goroutine instead of
// running them on the calling goroutine (spec.md §4.I, scenario S3).
// Overrides [Config.ThreadBridge] for this operation. A nil argument is a
// no-op, matching [Token.bindBridge]'s own nil handling.
func WithThreadBridge(bridge *ThreadBridge) Option {
	return optionFunc(func(o *operationOptions) error {
		o.threadBridge = bridge
		return nil
	})
}

// withInitialToken is the unexported escape hatch [Operation.Combine] uses
// to make a linked token the operation's own token directly, rather than
// installing it as a source on top of a freshly minted token.
func withInitialToken(tok *Token) Option {
	return optionFunc(func(o *operationOptions) error {
		o.initialToken = tok
		return nil
	})
}

func resolveOptions(opts []Option) (*operationOptions, error) {
	o := &operationOptions{registerGlobally: true}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}
