// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

// Recognized, advisory progress metadata keys (spec.md §6). The metadata
// map itself stays map[string]any — these constants document convention,
// they are not enforced.
const (
	MetaProgress = "progress" // 0-100 float
	MetaCurrent  = "current"
	MetaTotal    = "total"
	MetaRate     = "rate"
	MetaETA      = "eta"
	MetaPhase    = "phase"
)

// OnProgress registers cb to run on every [Operation.ReportProgress] call,
// in registration order (spec.md §4.H).
func (op *Operation) OnProgress(cb ProgressCallback) {
	op.cbMu.Lock()
	op.onProgress = append(op.onProgress, cb)
	op.cbMu.Unlock()
}

// BubbleProgress controls whether progress reports on this operation are
// also delivered to its parent's progress callbacks. Default is false
// (spec.md §9 Open Question, resolved in SPEC_FULL.md §12: bubbling is
// opt-in, not silent default behavior).
func (op *Operation) BubbleProgress(enabled bool) {
	op.bubbleProgressFlag = enabled
}

// ReportProgress invokes every registered progress callback with
// (operation id, message, metadata), in registration order, then — if
// [Operation.BubbleProgress] was enabled — repeats the delivery to the
// parent's callbacks (recursively, since the parent's own
// BubbleProgress setting governs whether it continues bubbling further).
// A progress report is itself a cancellation checkpoint: if the
// operation's token is already cancelled, ReportProgress returns the
// token's [*CancelError] without invoking any callback (spec.md §4.D). An
// exception from one callback does not prevent later callbacks from
// running (spec.md §4.H): a panicking callback is recovered and routed
// through [Config.Logger]/[Config.ErrClassifier], exactly as for the
// onStart/onComplete/onCancel/onError lifecycle callbacks.
func (op *Operation) ReportProgress(message string, metadata map[string]any) error {
	if err := op.token.Check(); err != nil {
		return err
	}

	op.cbMu.Lock()
	cbs := append([]ProgressCallback{}, op.onProgress...)
	op.cbMu.Unlock()

	for _, cb := range cbs {
		op.invokeOnProgress(cb, message, metadata)
	}

	if op.bubbleProgressFlag && op.parent != nil {
		return op.parent.ReportProgress(message, metadata)
	}
	return nil
}

func (op *Operation) invokeOnProgress(cb ProgressCallback, message string, metadata map[string]any) {
	defer op.recoverCallback("onProgress")
	cb(op.id, message, metadata)
}
