package detect

import (
	"sort"

	"github.com/beachwatch/go-crowd/images"
)

// DefaultIoUThreshold is the overlap above which two boxes are treated as
// the same person. Calibrated on overlapping-tile output.
const DefaultIoUThreshold = 0.4

// Merge reduces the union of per-tile and full-frame detections to one
// box per person. Detections below confThreshold are dropped first, then
// greedy non-maximum suppression removes every box overlapping a
// higher-scoring survivor by more than iouThreshold.
//
// Merge is idempotent: feeding its output back in returns the same set.
// It never mutates the input slice.
func Merge(dets []Detection, confThreshold, iouThreshold float32) []Detection {
	filtered := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Score >= confThreshold {
			filtered = append(filtered, d)
		}
	}
	return NMS(filtered, iouThreshold)
}

// NMS applies greedy non-maximum suppression: detections are visited in
// descending score order, each survivor suppressing every remaining box
// it overlaps by more than iouThreshold.
func NMS(dets []Detection, iouThreshold float32) []Detection {
	if len(dets) <= 1 {
		return append([]Detection(nil), dets...)
	}

	sorted := append([]Detection(nil), dets...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	suppressed := make([]bool, len(sorted))
	kept := make([]Detection, 0, len(sorted))

	for i := 0; i < len(sorted); i++ {
		if suppressed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if suppressed[j] {
				continue
			}
			if images.IoU(sorted[i].Box, sorted[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return kept
}

// Shift moves every detection by (dx, dy), mapping tile-local boxes into
// full-frame coordinates.
func Shift(dets []Detection, dx, dy int) []Detection {
	if dx == 0 && dy == 0 {
		return dets
	}
	out := make([]Detection, len(dets))
	for i, d := range dets {
		d.Box = d.Box.Add(dx, dy)
		out[i] = d
	}
	return out
}
