// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
)

// OperationInfo is a defensively-copied, read-only snapshot of an
// [*Operation]'s identity and lifecycle state, returned by [Registry.Get],
// [Registry.List], and [Registry.Snapshot]. Spec.md §4.E requires that
// "snapshots returned to callers are independent copies" — OperationInfo
// makes that requirement an explicit, documented type rather than handing
// callers a live *Operation they could mutate through.
type OperationInfo struct {
	ID        string
	Name      string
	Status    OperationStatus
	ParentID  string
	CreatedAt time.Time
	StartedAt time.Time
	EndedAt   time.Time
	Reason    CancelReason
	Message   string
}

func newOperationInfo(op *Operation) OperationInfo {
	info := OperationInfo{
		ID:        op.ID(),
		Name:      op.Name(),
		Status:    op.Status(),
		CreatedAt: op.CreatedAt(),
		StartedAt: op.StartedAt(),
		EndedAt:   op.EndedAt(),
	}
	if op.Parent() != nil {
		info.ParentID = op.Parent().ID()
	}
	if op.token.IsCancelled() {
		info.Reason = op.token.Reason()
		info.Message = op.token.Message()
	}
	return info
}

// ListFilter narrows [Registry.List] and [Registry.CancelAll] to a subset
// of active operations (spec.md §4.E). A zero-value field means
// "unconstrained" for that dimension.
type ListFilter struct {
	// Status, if non-nil, restricts results to operations with this status.
	Status *OperationStatus

	// ParentID, if non-empty, restricts results to direct children of the
	// named operation.
	ParentID string

	// NamePattern, if non-empty, is a shell-style glob matched against
	// the operation's Name (spec.md §6).
	NamePattern string

	// MinAge and MaxAge, if positive, bound how long ago the operation
	// was created, relative to the registry's configured clock.
	MinAge time.Duration
	MaxAge time.Duration
}

func (f ListFilter) matches(op *Operation, now time.Time) bool {
	if f.Status != nil && op.Status() != *f.Status {
		return false
	}
	if f.ParentID != "" {
		if op.Parent() == nil || op.Parent().ID() != f.ParentID {
			return false
		}
	}
	if f.NamePattern != "" {
		g, err := glob.Compile(f.NamePattern)
		if err != nil || !g.Match(op.Name()) {
			return false
		}
	}
	age := now.Sub(op.CreatedAt())
	if f.MinAge > 0 && age < f.MinAge {
		return false
	}
	if f.MaxAge > 0 && age > f.MaxAge {
		return false
	}
	return true
}

// Stats are plain running counters, exposed with no exporter (metrics
// exporters are out of scope per spec.md §1). Grounded on the
// totalCancellations/successfulCancellations/failedCancellations counters
// in other_examples' cancellation-manager.go.
type Stats struct {
	ActiveCount    int
	TotalCompleted int64
	TotalCancelled int64
	TotalFailed    int64
}

// Registry is the process-wide directory of live and recently-completed
// operations, implementing spec.md §4.E. The zero Registry is not usable;
// construct one with [NewRegistry], or use [DefaultRegistry] for the
// process-level shared instance.
type Registry struct {
	cfg *Config

	mu      sync.RWMutex
	active  map[string]*Operation
	history []OperationInfo

	totalCompleted atomic.Int64
	totalCancelled atomic.Int64
	totalFailed    atomic.Int64
}

// NewRegistry creates a non-singleton [*Registry], primarily useful for
// test isolation (spec.md §9 "global singleton Registry" design note).
func NewRegistry(cfg *Config) *Registry {
	return &Registry{
		cfg:    cfg.withDefaults(),
		active: make(map[string]*Operation),
	}
}

var defaultRegistry = sync.OnceValue(func() *Registry {
	return NewRegistry(NewConfig())
})

// DefaultRegistry returns the process-level shared [*Registry], created
// lazily on first use and surviving until process exit (spec.md §9).
func DefaultRegistry() *Registry {
	return defaultRegistry()
}

// register inserts op into the active map. Registering an id that is
// already active is a Usage Error (spec.md §4.E "Fails if id already
// present", §7) — it returns a descriptive error rather than silently
// dropping the new operation or clobbering the existing entry.
func (r *Registry) register(op *Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.active[op.ID()]; exists {
		return fmt.Errorf("cancelops: operation id %q is already registered", op.ID())
	}
	r.active[op.ID()] = op
	return nil
}

// unregister removes op from the active map and appends it to history
// with its final status. If history exceeds [Config.HistoryCap], the
// oldest entries are dropped. A no-op if op was never registered.
func (r *Registry) unregister(op *Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[op.ID()]; !exists {
		return
	}
	delete(r.active, op.ID())

	info := newOperationInfo(op)
	r.history = append(r.history, info)
	if cap := r.cfg.HistoryCap; cap > 0 && len(r.history) > cap {
		r.history = r.history[len(r.history)-cap:]
	}

	switch info.Status {
	case StatusCompleted:
		r.totalCompleted.Add(1)
	case StatusCancelled:
		r.totalCancelled.Add(1)
	case StatusFailed:
		r.totalFailed.Add(1)
	}
}

// Get returns the active or historical operation snapshot for id.
func (r *Registry) Get(id string) (OperationInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if op, ok := r.active[id]; ok {
		return newOperationInfo(op), true
	}
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].ID == id {
			return r.history[i], true
		}
	}
	return OperationInfo{}, false
}

// List returns a snapshot of active operations matching filter.
func (r *Registry) List(filter ListFilter) []OperationInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.cfg.TimeNow()
	out := make([]OperationInfo, 0, len(r.active))
	for _, op := range r.active {
		if filter.matches(op, now) {
			out = append(out, newOperationInfo(op))
		}
	}
	return out
}

// CancelOperation cancels the active operation with the given id, if
// present. Returns false if no such active operation exists or it was
// already cancelled.
func (r *Registry) CancelOperation(id string, reason CancelReason, message string) bool {
	r.mu.RLock()
	op, ok := r.active[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return op.cancelWithReason(reason, message, true)
}

// CancelAll cancels every active operation matching filter with reason
// and message, returning the number of operations it actually cancelled
// (excluding ones already cancelled).
func (r *Registry) CancelAll(filter ListFilter, reason CancelReason, message string) int {
	r.mu.RLock()
	now := r.cfg.TimeNow()
	matched := make([]*Operation, 0, len(r.active))
	for _, op := range r.active {
		if filter.matches(op, now) {
			matched = append(matched, op)
		}
	}
	r.mu.RUnlock()

	count := 0
	for _, op := range matched {
		if op.cancelWithReason(reason, message, true) {
			count++
		}
	}
	return count
}

// GetChildren enumerates the direct children of parentID that are
// currently active.
func (r *Registry) GetChildren(parentID string) []OperationInfo {
	return r.List(ListFilter{ParentID: parentID})
}

// Clear drops all active entries and history without cancelling
// anything. For tests only (spec.md §4.E).
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = make(map[string]*Operation)
	r.history = nil
	r.totalCompleted.Store(0)
	r.totalCancelled.Store(0)
	r.totalFailed.Store(0)
}

// CleanupCompleted trims history. maxAge <= 0 drops all history
// wholesale; maxAge > 0 drops entries whose EndedAt is older than maxAge
// (or than [Config.HistoryMaxAge], if that is positive and shorter)
// relative to the registry's configured clock. Returns the number of
// entries dropped.
func (r *Registry) CleanupCompleted(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if maxAge <= 0 {
		dropped := len(r.history)
		r.history = nil
		return dropped
	}

	if cfgMax := r.cfg.HistoryMaxAge; cfgMax > 0 && cfgMax < maxAge {
		maxAge = cfgMax
	}
	now := r.cfg.TimeNow()
	kept := r.history[:0:0]
	for _, entry := range r.history {
		if now.Sub(entry.EndedAt) <= maxAge {
			kept = append(kept, entry)
		}
	}
	dropped := len(r.history) - len(kept)
	r.history = kept
	return dropped
}

// Snapshot returns an independent copy of every active operation's
// current state, regardless of filter — a convenience entry point
// distinct from [Registry.List] for callers that want "everything,
// right now" without constructing an empty [ListFilter].
func (r *Registry) Snapshot() []OperationInfo {
	return r.List(ListFilter{})
}

// Stats returns the registry's running counters.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	active := len(r.active)
	r.mu.RUnlock()
	return Stats{
		ActiveCount:    active,
		TotalCompleted: r.totalCompleted.Load(),
		TotalCancelled: r.totalCancelled.Load(),
		TotalFailed:    r.totalFailed.Load(),
	}
}
