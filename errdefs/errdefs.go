// Package errdefs defines the error categories every analysis resolves to.
// Callers classify with errors.Is against the exported sentinels; the
// constructors attach context while keeping the category intact.
package errdefs

import (
	stderrors "errors"
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrConfiguration marks a caller misconfiguration such as a
	// non-positive tile size or target area. Never retried.
	ErrConfiguration = stderrors.New("invalid configuration")

	// ErrInvalidArgument marks a bad runtime argument, e.g. a negative
	// person count handed to the scorer.
	ErrInvalidArgument = stderrors.New("invalid argument")

	// ErrDetectionUnavailable covers every detection backend failure:
	// missing runtime library, unloadable model, inference error,
	// malformed output, or a per-invocation deadline. It is the signal
	// that flips an analysis onto the heuristic fallback.
	ErrDetectionUnavailable = stderrors.New("detection unavailable")

	// ErrAnalysisFailed means both the detector and the fallback failed,
	// or the input image itself was unreadable.
	ErrAnalysisFailed = stderrors.New("analysis failed")

	// ErrCanceled means the caller's context ended the run. Distinct
	// from failure: the work was abandoned, not broken.
	ErrCanceled = stderrors.New("analysis canceled")
)

// Configuration wraps ErrConfiguration with a formatted description.
func Configuration(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}

// InvalidArgument wraps ErrInvalidArgument with a formatted description.
func InvalidArgument(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidArgument, format, args...)
}

// Unavailable tags a backend failure as ErrDetectionUnavailable while
// preserving the underlying cause for logs.
func Unavailable(cause error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return errors.WithMessage(ErrDetectionUnavailable, msg)
	}
	return errors.WithMessagef(ErrDetectionUnavailable, "%s: %v", msg, cause)
}

// Failed tags a terminal analysis failure, keeping the cause text.
func Failed(cause error, format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	if cause == nil {
		return errors.WithMessage(ErrAnalysisFailed, msg)
	}
	return errors.WithMessagef(ErrAnalysisFailed, "%s: %v", msg, cause)
}

// Canceled tags a context-driven abort.
func Canceled(cause error) error {
	if cause == nil {
		return ErrCanceled
	}
	return errors.WithMessagef(ErrCanceled, "%v", cause)
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool { return stderrors.Is(err, ErrConfiguration) }

// IsInvalidArgument reports whether err is an invalid-argument error.
func IsInvalidArgument(err error) bool { return stderrors.Is(err, ErrInvalidArgument) }

// IsUnavailable reports whether err marks the detection backend as down.
func IsUnavailable(err error) bool { return stderrors.Is(err, ErrDetectionUnavailable) }

// IsFailed reports whether err is a terminal analysis failure.
func IsFailed(err error) bool { return stderrors.Is(err, ErrAnalysisFailed) }

// IsCanceled reports whether err came from caller cancellation.
func IsCanceled(err error) bool { return stderrors.Is(err, ErrCanceled) }
