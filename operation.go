// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ProgressCallback is invoked by [Operation.ReportProgress]. metadata may
// be nil. Implements the callback signature from spec.md §4.H.
type ProgressCallback func(operationID, message string, metadata map[string]any)

// Operation is a scoped async region wrapping a task, implementing
// spec.md §4.D. It owns a cancel scope (a derived [context.Context]), a
// [*Token], zero or more [Source]s, an optional parent, and the callback
// registries described in §4.D and §4.H.
//
// A zero Operation is not usable; construct one with [NewOperation].
type Operation struct {
	id        string
	name      string
	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time

	cfg      *Config
	registry *Registry

	token *Token

	statusMu sync.RWMutex
	status   OperationStatus
	preShieldStatus OperationStatus
	finalErr error

	metaMu        sync.Mutex
	metadata      map[string]any
	partialResult *PartialResult

	sources []Source

	parent      *Operation
	childrenMu  sync.Mutex
	children    []*Operation
	removedSelf bool

	ctx         context.Context
	cancelFunc  context.CancelFunc
	stopWatchCh chan struct{}
	exitedCh    chan struct{}

	registeredGlobally bool
	bubbleProgressFlag bool
	threadBridge       *ThreadBridge

	cbMu       sync.Mutex
	onProgress []ProgressCallback
	onStart    []func(*Operation)
	onComplete []func(*Operation)
	onCancel   []func(*Operation)
	onError    []func(*Operation, error)
}

// NewOperation constructs a [*Operation] from opts. It does not activate
// sources or register with a [Registry]; call [Operation.Enter] to do
// that. Returns an error for construction-time validation failures (a
// negative deadline, a parent not yet entered, a nil token).
func NewOperation(opts ...Option) (*Operation, error) {
	o, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}
	if o.parent != nil && o.parent.Status() == StatusPending {
		return nil, fmt.Errorf("cancelops: parent operation %q has not been entered", o.parent.id)
	}

	cfg := o.cfg.withDefaults()
	registry := o.registry
	if registry == nil {
		registry = DefaultRegistry()
	}

	id := o.id
	if id == "" {
		id = NewOperationID()
	}

	tok := o.initialToken
	if tok == nil {
		tok = NewToken()
	}

	bridge := o.threadBridge
	if bridge == nil {
		bridge = cfg.ThreadBridge
	}

	op := &Operation{
		id:                 id,
		name:               o.name,
		createdAt:          cfg.TimeNow(),
		cfg:                cfg,
		registry:           registry,
		token:              tok,
		status:             StatusPending,
		metadata:           o.metadata,
		sources:            o.sources,
		parent:             o.parent,
		registeredGlobally: o.registerGlobally,
		threadBridge:       bridge,
		exitedCh:           make(chan struct{}),
	}
	if op.metadata == nil {
		op.metadata = make(map[string]any)
	}
	return op, nil
}

// ID returns the operation's identifier.
func (op *Operation) ID() string { return op.id }

// Name returns the operation's human name, which may be empty.
func (op *Operation) Name() string { return op.name }

// CreatedAt returns the construction timestamp.
func (op *Operation) CreatedAt() time.Time { return op.createdAt }

// StartedAt returns the [Operation.Enter] timestamp, zero if not yet entered.
func (op *Operation) StartedAt() time.Time { return op.startedAt }

// EndedAt returns the [Operation.Exit] timestamp, zero if not yet exited.
func (op *Operation) EndedAt() time.Time { return op.endedAt }

// Status returns the current [OperationStatus].
func (op *Operation) Status() OperationStatus {
	op.statusMu.RLock()
	defer op.statusMu.RUnlock()
	return op.status
}

func (op *Operation) setStatus(s OperationStatus) {
	op.statusMu.Lock()
	op.status = s
	op.statusMu.Unlock()
}

// Token returns the operation's own [*Token].
func (op *Operation) Token() *Token { return op.token }

// Parent returns the parent operation, or nil.
func (op *Operation) Parent() *Operation { return op.parent }

// Err returns the terminal error recorded at exit: nil if the operation
// has not exited or completed successfully, a *[CancelError] if its token
// fired, the context error passed to [Operation.Exit] if it was cancelled
// only through its context, or the original error if it failed. This is a convenience
// accessor supplementing spec.md §4.D, grounded on the Status-query
// pattern in other_examples' cancellation-manager.go.
func (op *Operation) Err() error {
	op.statusMu.RLock()
	defer op.statusMu.RUnlock()
	return op.finalErr
}

// String implements [fmt.Stringer].
func (op *Operation) String() string {
	if op.name != "" {
		return fmt.Sprintf("Operation(%s, id=%s)", op.name, op.id)
	}
	return fmt.Sprintf("Operation(id=%s)", op.id)
}

// Metadata returns a copy of the operation's metadata map.
func (op *Operation) Metadata() map[string]any {
	op.metaMu.Lock()
	defer op.metaMu.Unlock()
	out := make(map[string]any, len(op.metadata))
	for k, v := range op.metadata {
		out[k] = v
	}
	return out
}

// SetMetadata sets a metadata entry.
func (op *Operation) SetMetadata(key string, value any) {
	op.metaMu.Lock()
	op.metadata[key] = value
	op.metaMu.Unlock()
}

// Enter activates the operation: it sets status [StatusRunning], captures
// the start time, pushes itself onto the ambient context, registers with
// the [Registry] if configured to, activates sources (deadline sources
// first, then the rest, per spec.md §4.D), links into the parent's child
// list, and invokes on-start callbacks. Returns a derived context that
// callers MUST use for the remainder of the scoped region: it is done
// when either ctx or the operation's token is cancelled, and
// [CurrentOperation] resolves to op from it.
func (op *Operation) Enter(ctx context.Context) context.Context {
	op.startedAt = op.cfg.TimeNow()
	op.setStatus(StatusRunning)
	op.cfg.Logger.Info(
		"operationEnter",
		slog.String("id", op.id),
		slog.String("name", op.name),
		slog.Time("t", op.startedAt),
	)

	cctx, cancel := context.WithCancel(ctx)
	op.cancelFunc = cancel
	op.stopWatchCh = make(chan struct{})
	op.token.bindBridge(op.threadBridge) // nil bridge is a documented no-op

	go func() {
		select {
		case <-op.token.WaitChan():
			cancel()
		case <-op.stopWatchCh:
		}
	}()

	ambientCtx := withOperation(cctx, op)
	op.ctx = ambientCtx

	if op.registeredGlobally {
		// A duplicate id is a usage error (spec.md §4.E, §7), not a
		// recoverable runtime condition: ids are either generated fresh
		// by [NewOperationID] or supplied explicitly via [WithID], so a
		// collision means the caller reused an id that is still active.
		// Enter has no error return to propagate it through (its
		// signature mirrors context.Context-returning constructors
		// throughout the pack), so it fails fast with a panic instead,
		// matching the teacher's convention for programmer errors.
		if err := op.registry.register(op); err != nil {
			panic(err)
		}
	}

	deadlines := make([]Source, 0, len(op.sources))
	others := make([]Source, 0, len(op.sources))
	for _, src := range op.sources {
		if isDeadlineSource(src) {
			deadlines = append(deadlines, src)
		} else {
			others = append(others, src)
		}
	}
	op.sources = append(deadlines, others...) // Exit deactivates in reverse of this order
	for _, src := range deadlines {
		src.activate(op, nil)
		op.cfg.Logger.Debug("sourceActivate", slog.String("id", op.id), slog.String("source", src.String()))
	}
	for _, src := range others {
		src.activate(op, nil)
		op.cfg.Logger.Debug("sourceActivate", slog.String("id", op.id), slog.String("source", src.String()))
	}

	if op.parent != nil {
		op.parent.addChild(op)
	}

	op.cbMu.Lock()
	starters := append([]func(*Operation){}, op.onStart...)
	op.cbMu.Unlock()
	for _, cb := range starters {
		op.invokeOnStart(cb)
	}

	return ambientCtx
}

// recoverCallback recovers a panicking lifecycle or progress callback so
// it cannot abort [Operation.Enter]/[Operation.Exit]/[Operation.ReportProgress]
// partway through — spec.md §7 requires that callback exceptions "are
// captured and suppressed; they never interrupt lifecycle management",
// and §4.H requires that "an exception in one callback does not prevent
// later callbacks from running". The recovered panic is routed through
// [Config.Logger]/[Config.ErrClassifier] the same way a real error would
// be, using the teacher's connect.go structured-logging call shape.
func (op *Operation) recoverCallback(kind string) {
	if r := recover(); r != nil {
		err := fmt.Errorf("cancelops: %s callback panicked: %v", kind, r)
		op.cfg.Logger.Info(
			"callbackPanic",
			slog.String("id", op.id),
			slog.String("kind", kind),
			slog.Any("err", err),
			slog.String("errClass", op.cfg.ErrClassifier.Classify(err)),
		)
	}
}

func (op *Operation) invokeOnStart(cb func(*Operation)) {
	defer op.recoverCallback("onStart")
	cb(op)
}

func (op *Operation) invokeOnComplete(cb func(*Operation)) {
	defer op.recoverCallback("onComplete")
	cb(op)
}

func (op *Operation) invokeOnCancel(cb func(*Operation)) {
	defer op.recoverCallback("onCancel")
	cb(op)
}

func (op *Operation) invokeOnError(cb func(*Operation, error), err error) {
	defer op.recoverCallback("onError")
	cb(op, err)
}

func isDeadlineSource(s Source) bool {
	switch s.(type) {
	case *deadlineSource, *deadlineSourceFromDuration:
		return true
	default:
		return false
	}
}

// Exit finalizes the operation. It must be called exactly once, typically
// via defer immediately after [Operation.Enter], and is passed the error
// (if any) that the enclosed task region produced. Exit deactivates
// sources in reverse activation order, cancels and awaits live children
// (bounded by [Config.ShutdownBudget]), determines the final status,
// invokes the matching lifecycle callbacks, unregisters from the
// [Registry], and returns incomingErr unchanged — it never swallows it.
func (op *Operation) Exit(incomingErr error) error {
	for i := len(op.sources) - 1; i >= 0; i-- {
		op.sources[i].deactivate()
	}

	op.cancelChildrenAndWait(ReasonParent, "parent exiting")

	if op.stopWatchCh != nil {
		close(op.stopWatchCh)
	}
	if op.cancelFunc != nil {
		op.cancelFunc()
	}

	op.endedAt = op.cfg.TimeNow()

	finalStatus, finalErr := op.classifyExit(incomingErr)
	op.statusMu.Lock()
	op.status = finalStatus
	op.finalErr = finalErr
	op.statusMu.Unlock()

	op.cfg.Logger.Info(
		"operationExit",
		slog.String("id", op.id),
		slog.String("name", op.name),
		slog.String("status", finalStatus.String()),
		slog.Any("err", finalErr),
		slog.String("errClass", op.cfg.ErrClassifier.Classify(finalErr)),
		slog.Time("t", op.endedAt),
	)

	op.cbMu.Lock()
	onCancel := append([]func(*Operation){}, op.onCancel...)
	onComplete := append([]func(*Operation){}, op.onComplete...)
	onError := append([]func(*Operation, error){}, op.onError...)
	op.cbMu.Unlock()

	switch finalStatus {
	case StatusCancelled:
		for _, cb := range onCancel {
			op.invokeOnCancel(cb)
		}
	case StatusFailed:
		for _, cb := range onError {
			op.invokeOnError(cb, finalErr)
		}
	case StatusCompleted:
		for _, cb := range onComplete {
			op.invokeOnComplete(cb)
		}
	}

	if op.registeredGlobally {
		op.registry.unregister(op)
	}
	if op.parent != nil {
		op.parent.removeChild(op)
	}

	close(op.exitedCh)

	return incomingErr
}

// classifyExit implements the status-determination rule from spec.md
// §4.D: an already-fired token yields Cancelled with the token's reason,
// whatever error was passed in; otherwise a [context.Canceled] or
// [context.DeadlineExceeded] error yields Cancelled with that error; any
// other non-nil error yields Failed; otherwise Completed.
func (op *Operation) classifyExit(incomingErr error) (OperationStatus, error) {
	if op.token.IsCancelled() {
		return StatusCancelled, newCancelError(op.token.Reason(), op.token.Message())
	}
	if incomingErr != nil {
		if errors.Is(incomingErr, context.Canceled) || errors.Is(incomingErr, context.DeadlineExceeded) {
			return StatusCancelled, incomingErr
		}
		return StatusFailed, incomingErr
	}
	return StatusCompleted, nil
}

// Cancel cancels the operation with [ReasonManual], propagating
// [ReasonParent] to all live children. Returns false if already cancelled.
func (op *Operation) Cancel(message string) bool {
	return op.cancelWithReason(ReasonManual, message, true)
}

func (op *Operation) cancelWithReason(reason CancelReason, message string, propagateToChildren bool) bool {
	ok := op.token.Cancel(reason, message)
	if propagateToChildren {
		op.cancelChildren(ReasonParent, fmt.Sprintf("parent %q cancelled", op.id))
	}
	return ok
}

// CancelGraceful cancels the operation then blocks until it exits or grace
// elapses, whichever comes first. It returns true if the operation exited
// within the grace period. This supplements spec.md with a grace-period
// wait grounded on other_examples' cancellation-manager.go GracePeriod
// field — there is nothing left to force afterward in a cooperative
// model, so CancelGraceful only reports whether the wait succeeded.
func (op *Operation) CancelGraceful(reason CancelReason, message string, grace time.Duration) bool {
	op.cancelWithReason(reason, message, true)
	select {
	case <-op.exitedCh:
		return true
	case <-time.After(grace):
		return false
	}
}

// Combine returns a new [*Operation] whose token is a [LinkToken] of op's
// and other's tokens: cancelling either original cancels the combined
// scope (spec.md §4.D "combine"). Child operations may be constructed
// under the result via [WithParent].
func (op *Operation) Combine(other *Operation) (*Operation, error) {
	linked := LinkToken(op.token, other.token)
	name := op.name
	if other.name != "" {
		name = name + "+" + other.name
	}
	return NewOperation(
		WithName(name),
		WithConfig(op.cfg),
		WithRegistry(op.registry),
		WithRegisterGlobally(op.registeredGlobally),
		WithThreadBridge(op.threadBridge),
		withInitialToken(linked),
	)
}

// OnStart registers cb to run when the operation is entered.
func (op *Operation) OnStart(cb func(*Operation)) {
	op.cbMu.Lock()
	op.onStart = append(op.onStart, cb)
	op.cbMu.Unlock()
}

// OnComplete registers cb to run if the operation exits with
// [StatusCompleted].
func (op *Operation) OnComplete(cb func(*Operation)) {
	op.cbMu.Lock()
	op.onComplete = append(op.onComplete, cb)
	op.cbMu.Unlock()
}

// OnCancel registers cb to run if the operation exits with
// [StatusCancelled].
func (op *Operation) OnCancel(cb func(*Operation)) {
	op.cbMu.Lock()
	op.onCancel = append(op.onCancel, cb)
	op.cbMu.Unlock()
}

// OnError registers cb to run if the operation exits with [StatusFailed].
func (op *Operation) OnError(cb func(*Operation, error)) {
	op.cbMu.Lock()
	op.onError = append(op.onError, cb)
	op.cbMu.Unlock()
}
