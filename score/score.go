// Package score turns a person count for a known target area into the
// 0-100 busyness score published to clients. Scoring is pure arithmetic
// over crowd density so two deployments with the same density always
// report the same score.
package score

import (
	"math"

	"github.com/beachwatch/go-crowd/errdefs"
)

// Level buckets the score for display. Levels are ordered from empty to
// very busy; the JSON strings match what the public feeds have always
// used.
type Level string

const (
	LevelEmpty    Level = "empty"
	LevelQuiet    Level = "quiet"
	LevelModerate Level = "moderate"
	LevelBusy     Level = "busy"
	LevelVeryBusy Level = "very_busy"
)

// Thresholds are the density boundaries between levels, in persons per
// 100 square meters. Each threshold is the upper edge of its level.
type Thresholds struct {
	Quiet    float64 `json:"quiet"`
	Moderate float64 `json:"moderate"`
	Busy     float64 `json:"busy"`
	VeryBusy float64 `json:"very_busy"`
}

// DefaultThresholds returns the calibration used for open beaches: quiet
// up to 0.5 persons per 100 m2, moderate to 2, busy to 4, saturating at 8.
func DefaultThresholds() Thresholds {
	return Thresholds{Quiet: 0.5, Moderate: 2.0, Busy: 4.0, VeryBusy: 8.0}
}

// Validate rejects threshold sets the piecewise mapping cannot work with.
func (t Thresholds) Validate() error {
	if t.Quiet <= 0 {
		return errdefs.Configuration("quiet threshold %.3f must be positive", t.Quiet)
	}
	if t.Moderate <= t.Quiet || t.Busy <= t.Moderate || t.VeryBusy <= t.Busy {
		return errdefs.Configuration(
			"thresholds must be strictly ascending: quiet %.2f, moderate %.2f, busy %.2f, very busy %.2f",
			t.Quiet, t.Moderate, t.Busy, t.VeryBusy)
	}
	return nil
}

// TargetArea describes the monitored space: its visible ground area and
// the density calibration the deployment uses.
type TargetArea struct {
	// AreaSqm is the visible ground area in square meters.
	AreaSqm float64 `json:"area_sqm"`
	// Thresholds are the level boundaries for this deployment.
	Thresholds Thresholds `json:"thresholds"`
}

// NewTargetArea builds a TargetArea with the default thresholds.
func NewTargetArea(areaSqm float64) TargetArea {
	return TargetArea{AreaSqm: areaSqm, Thresholds: DefaultThresholds()}
}

// Validate rejects areas the scorer cannot produce a density for.
func (a TargetArea) Validate() error {
	if a.AreaSqm <= 0 {
		return errdefs.Configuration("target area %.2f sqm must be positive", a.AreaSqm)
	}
	return a.Thresholds.Validate()
}

// Busyness is the published crowding result.
type Busyness struct {
	// Density is persons per 100 square meters.
	Density float64 `json:"density"`
	// Score is 0-100, piecewise linear across the level boundaries.
	Score int `json:"score"`
	// Level is the display bucket for Score.
	Level Level `json:"level"`
}

// Compute maps a person count onto the busyness scale for the target
// area.
//
// Density is personCount / AreaSqm * 100. Zero density is reported as
// level empty with score 0. Each level spans 25 score points, linear in
// density between its boundaries, and the scale saturates at 100 once
// density reaches the very-busy threshold.
//
// A non-positive area or invalid thresholds are configuration errors; a
// negative count is an invalid argument.
func Compute(personCount int, area TargetArea) (Busyness, error) {
	if err := area.Validate(); err != nil {
		return Busyness{}, err
	}
	if personCount < 0 {
		return Busyness{}, errdefs.InvalidArgument("person count %d must not be negative", personCount)
	}

	density := float64(personCount) / area.AreaSqm * 100
	th := area.Thresholds

	var (
		score float64
		level Level
	)
	switch {
	case density == 0:
		return Busyness{Density: 0, Score: 0, Level: LevelEmpty}, nil
	case density <= th.Quiet:
		score = density / th.Quiet * 25
		level = LevelQuiet
	case density <= th.Moderate:
		score = 25 + (density-th.Quiet)/(th.Moderate-th.Quiet)*25
		level = LevelModerate
	case density <= th.Busy:
		score = 50 + (density-th.Moderate)/(th.Busy-th.Moderate)*25
		level = LevelBusy
	default:
		over := math.Min(density-th.Busy, th.VeryBusy-th.Busy)
		score = 75 + over/(th.VeryBusy-th.Busy)*25
		level = LevelVeryBusy
	}

	rounded := int(math.Round(score))
	if rounded > 100 {
		rounded = 100
	}
	return Busyness{
		Density: math.Round(density*100) / 100,
		Score:   rounded,
		Level:   level,
	}, nil
}
