// SPDX-License-Identifier: GPL-3.0-or-later

package cancelops

// ErrClassifier classifies errors into categorical strings for structured
// logging and analysis.
//
// Implementations map errors to short, descriptive labels (e.g.,
// "Timeout", "Manual") that facilitate systematic analysis of operation
// exit logs. [AsCancelError] is the natural building block for a
// cancellation-aware classifier.
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
//
// This allows using simple functions as classifiers:
//
//	cfg.ErrClassifier = ErrClassifierFunc(func(err error) string {
//		if ce, ok := AsCancelError(err); ok {
//			return ce.Reason.String()
//		}
//		return ""
//	})
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// DefaultErrClassifier is a no-op classifier that returns an empty string.
var DefaultErrClassifier = ErrClassifierFunc(func(error) string { return "" })
