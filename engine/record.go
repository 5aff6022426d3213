package engine

import (
	"time"

	"github.com/beachwatch/go-crowd/detect"
	"github.com/beachwatch/go-crowd/heuristic"
	"github.com/beachwatch/go-crowd/score"
)

// Method identifies which analysis path produced a record.
const (
	MethodDetector  = "detector"
	MethodHeuristic = "heuristic"
)

// Status classifies one analysis outcome.
type Status string

const (
	// StatusSuccess means the detection path produced the record.
	StatusSuccess Status = "success"
	// StatusFallbackSuccess means detection was unavailable and the
	// heuristic produced the record.
	StatusFallbackSuccess Status = "fallback_success"
	// StatusFailed means both paths failed or the input was unusable.
	StatusFailed Status = "failed"
	// StatusCanceled means the caller's context ended the run.
	StatusCanceled Status = "canceled"
)

// Request names one analysis: where the frame was taken and how large
// the visible ground area is.
type Request struct {
	Location string
	Area     score.TargetArea
	// CapturedAt stamps the record; zero means the analysis time.
	CapturedAt time.Time
}

// Outcome is the complete result of one Analyze call. Record is
// non-nil for the two success statuses, Err is non-nil for failed and
// canceled; never both.
type Outcome struct {
	Status Status
	Record *Record
	Err    error
}

// StageTimings breaks the run duration down by pipeline stage.
type StageTimings struct {
	PlanMS     int64 `json:"plan_ms"`
	DetectMS   int64 `json:"detect_ms"`
	MergeMS    int64 `json:"merge_ms"`
	FallbackMS int64 `json:"fallback_ms"`
	ScoreMS    int64 `json:"score_ms"`
}

// Record is one completed crowd analysis.
type Record struct {
	ID        string    `json:"id"`
	Location  string    `json:"location"`
	Timestamp time.Time `json:"timestamp"`

	Width  int `json:"width"`
	Height int `json:"height"`

	PersonCount  int                 `json:"person_count"`
	Method       string              `json:"method"`
	Confidence   detect.Stats        `json:"confidence"`
	Distribution detect.Distribution `json:"confidence_distribution"`
	Busyness     score.Busyness      `json:"busyness"`
	AreaSqm      float64             `json:"area_sqm"`

	// TileCount is zero for full-frame-only runs; Invocations counts
	// every detector call including the full-frame pass.
	TileCount        int `json:"tile_count"`
	Invocations      int `json:"invocations,omitempty"`
	FailuresAbsorbed int `json:"failures_absorbed,omitempty"`

	FallbackUsed   bool               `json:"fallback_used"`
	FallbackReason string             `json:"fallback_reason,omitempty"`
	Signals        *heuristic.Signals `json:"signals,omitempty"`

	// Detections carries the merged boxes, capped by configuration so
	// records stay bounded on packed frames.
	Detections []detect.Detection `json:"detections,omitempty"`

	DurationMS int64        `json:"duration_ms"`
	Stages     StageTimings `json:"stages"`
}
