package detect

import (
	"github.com/chewxy/math32"
)

// Stats summarizes the confidence scores of a detection set. All fields
// are zero when the set is empty.
type Stats struct {
	Min float32 `json:"min"`
	Max float32 `json:"max"`
	Avg float32 `json:"avg"`
}

// Distribution counts detections per confidence band. The band edges come
// from Bands so deployments can tighten or loosen what counts as a
// trustworthy detection.
type Distribution struct {
	High   int `json:"high"`
	Medium int `json:"medium"`
	Low    int `json:"low"`
}

// Bands holds the confidence band edges: a score >= High is high
// confidence, >= Medium is medium, anything below is low.
type Bands struct {
	High   float32 `json:"high"`
	Medium float32 `json:"medium"`
}

// DefaultBands returns the review-tooling bands: high at 0.7 and medium
// at 0.5.
func DefaultBands() Bands {
	return Bands{High: 0.7, Medium: 0.5}
}

// Band classifies a single score.
func (b Bands) Band(score float32) string {
	switch {
	case score >= b.High:
		return "high"
	case score >= b.Medium:
		return "medium"
	default:
		return "low"
	}
}

// Summarize computes score statistics and the per-band head count for a
// detection set.
func Summarize(dets []Detection, bands Bands) (Stats, Distribution) {
	var stats Stats
	var dist Distribution
	if len(dets) == 0 {
		return stats, dist
	}

	stats.Min = dets[0].Score
	stats.Max = dets[0].Score
	var sum float32
	for _, d := range dets {
		stats.Min = math32.Min(stats.Min, d.Score)
		stats.Max = math32.Max(stats.Max, d.Score)
		sum += d.Score

		switch {
		case d.Score >= bands.High:
			dist.High++
		case d.Score >= bands.Medium:
			dist.Medium++
		default:
			dist.Low++
		}
	}
	stats.Avg = sum / float32(len(dets))
	return stats, dist
}
