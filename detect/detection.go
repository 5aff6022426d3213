// Package detect defines the detection contract the analysis engine is
// built around: the Detection value, the Source interface every backend
// implements, union merging with duplicate suppression, and confidence
// summarization. Backends live in subpackages; this package has no
// inference dependencies of its own.
package detect

import (
	"context"
	"image"

	"github.com/beachwatch/go-crowd/images"
)

// ClassPerson is the only class the engine asks backends for.
const ClassPerson = "person"

// Detection is one detected person. Box is in the pixel space of the
// region the backend was handed; the orchestrator shifts tile-local boxes
// into full-frame space before merging.
type Detection struct {
	Box   images.Rect `json:"box"`
	Score float32     `json:"score"`
	Class string      `json:"class"`
}

// Source is a detection backend. Detect runs one synchronous inference
// over the given region and returns every person at or above threshold,
// in region-local coordinates.
//
// Implementations must be safe for concurrent Detect calls: the engine
// fans tiles out across workers against a single Source. The model handle
// is loaded once at construction and treated as read-only afterwards.
//
// Every failure mode - missing runtime, unloadable model, inference
// error, malformed output, ctx deadline - is reported as
// errdefs.ErrDetectionUnavailable so the caller can switch to the
// fallback without backend-specific knowledge.
type Source interface {
	// Name identifies the backend in logs and health output.
	Name() string
	// Detect finds people in one image region.
	Detect(ctx context.Context, region image.Image, threshold float32) ([]Detection, error)
	// Close releases the model handle and any runtime resources.
	Close() error
}
