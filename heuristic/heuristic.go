// Package heuristic estimates crowd size from pixel statistics alone. It
// is the fallback path when no detection backend can run: skin tones,
// bright gear colors, and edge texture together approximate how much of
// the frame is occupied by people, which scales into a rough head count.
// Estimates carry a reduced synthetic confidence so downstream consumers
// can tell them apart from detector output.
package heuristic

import (
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	"github.com/beachwatch/go-crowd/errdefs"
	"github.com/beachwatch/go-crowd/images"
	"github.com/beachwatch/go-crowd/score"
)

// ConfidenceBand maps a signal strength ceiling to the synthetic
// confidence reported below it.
type ConfidenceBand struct {
	StrengthBelow float64 `json:"strength_below"`
	Confidence    float32 `json:"confidence"`
}

// Config holds the analyzer calibration. Every constant that tunes the
// estimate lives here rather than in the code.
type Config struct {
	// Signal weights. Skin is the strongest people indicator, bright
	// gear secondary, edge texture weakest. Normalized by their sum.
	SkinWeight   float64 `json:"skin_weight"`
	BrightWeight float64 `json:"bright_weight"`
	EdgeWeight   float64 `json:"edge_weight"`

	// CapacitySqmPerPerson converts activity into a head count: at full
	// activity the space holds AreaSqm / CapacitySqmPerPerson people.
	CapacitySqmPerPerson float64 `json:"capacity_sqm_per_person"`
	// MaxCount caps the estimate; public webcams do not show crowds
	// beyond it.
	MaxCount int `json:"max_count"`

	// EdgeThreshold is the Sobel magnitude above which a pixel counts
	// as texture, on the clamped 0-255 scale.
	EdgeThreshold float32 `json:"edge_threshold"`
	// MaxAnalysisDim downscales larger frames before scanning. Pixel
	// fractions are scale-invariant, so this only trades precision for
	// time.
	MaxAnalysisDim int `json:"max_analysis_dim"`

	// Bands map signal strength to synthetic confidence, checked in
	// order; TopConfidence applies beyond the last band.
	Bands         []ConfidenceBand `json:"bands"`
	TopConfidence float32          `json:"top_confidence"`
}

// DefaultConfig returns the production calibration.
func DefaultConfig() Config {
	return Config{
		SkinWeight:           0.6,
		BrightWeight:         0.25,
		EdgeWeight:           0.15,
		CapacitySqmPerPerson: 50,
		MaxCount:             500,
		EdgeThreshold:        100,
		MaxAnalysisDim:       1024,
		Bands: []ConfidenceBand{
			{StrengthBelow: 1.0, Confidence: 0.3},
			{StrengthBelow: 3.0, Confidence: 0.5},
			{StrengthBelow: 6.0, Confidence: 0.7},
		},
		TopConfidence: 0.85,
	}
}

// Validate rejects calibrations the analyzer cannot run with.
func (c Config) Validate() error {
	if c.SkinWeight < 0 || c.BrightWeight < 0 || c.EdgeWeight < 0 {
		return errdefs.Configuration("signal weights must not be negative")
	}
	if c.SkinWeight+c.BrightWeight+c.EdgeWeight <= 0 {
		return errdefs.Configuration("at least one signal weight must be positive")
	}
	if c.CapacitySqmPerPerson <= 0 {
		return errdefs.Configuration("capacity %.2f sqm per person must be positive", c.CapacitySqmPerPerson)
	}
	if c.MaxCount <= 0 {
		return errdefs.Configuration("max count %d must be positive", c.MaxCount)
	}
	for i, band := range c.Bands {
		if i > 0 && band.StrengthBelow <= c.Bands[i-1].StrengthBelow {
			return errdefs.Configuration("confidence bands must have ascending strength ceilings")
		}
	}
	return nil
}

// Estimate is the fallback analysis result.
type Estimate struct {
	PersonCount int     `json:"person_count"`
	Confidence  float32 `json:"confidence"`
	Signals     Signals `json:"signals"`
}

// Analyzer runs pixel-density analysis. It holds no per-run state and is
// safe for concurrent use.
type Analyzer struct {
	cfg Config
	log *logrus.Logger
}

// New builds an Analyzer, validating the calibration up front.
func New(cfg Config, log *logrus.Logger) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Analyzer{cfg: cfg, log: log}, nil
}

// Analyze estimates the crowd in one frame.
//
// A well-formed image always produces an estimate; only a nil or
// zero-dimension frame fails, as ErrAnalysisFailed. An invalid target
// area is a configuration error.
func (a *Analyzer) Analyze(img image.Image, area score.TargetArea) (Estimate, error) {
	if err := area.Validate(); err != nil {
		return Estimate{}, err
	}
	if img == nil {
		return Estimate{}, errdefs.Failed(nil, "no image to analyze")
	}
	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return Estimate{}, errdefs.Failed(nil, "image has no pixels")
	}

	frame := img
	if m := a.cfg.MaxAnalysisDim; m > 0 && (bounds.Dx() > m || bounds.Dy() > m) {
		frame = imaging.Fit(img, m, m, imaging.Lanczos)
	}

	skinMask, brightMask, width, height := scanMasks(frame)
	edges := edgeMask(images.GrayPlane(frame), width, height, a.cfg.EdgeThreshold)

	skin, err := coverage(skinMask, width, height)
	if err != nil {
		return Estimate{}, errdefs.Failed(err, "skin coverage")
	}
	bright, err := coverage(brightMask, width, height)
	if err != nil {
		return Estimate{}, errdefs.Failed(err, "bright coverage")
	}
	edge, err := coverage(edges, width, height)
	if err != nil {
		return Estimate{}, errdefs.Failed(err, "edge coverage")
	}

	weightSum := a.cfg.SkinWeight + a.cfg.BrightWeight + a.cfg.EdgeWeight
	activity := (a.cfg.SkinWeight*skin + a.cfg.BrightWeight*bright + a.cfg.EdgeWeight*edge) / weightSum

	count := int(math.Round(activity * area.AreaSqm / a.cfg.CapacitySqmPerPerson))
	if count < 0 {
		count = 0
	}
	if count > a.cfg.MaxCount {
		count = a.cfg.MaxCount
	}

	strength := (skin + bright) / 2 * 100
	confidence := a.cfg.TopConfidence
	for _, band := range a.cfg.Bands {
		if strength < band.StrengthBelow {
			confidence = band.Confidence
			break
		}
	}

	est := Estimate{
		PersonCount: count,
		Confidence:  confidence,
		Signals: Signals{
			Skin:     skin,
			Bright:   bright,
			Edge:     edge,
			Activity: activity,
			Strength: strength,
		},
	}

	a.log.WithFields(logrus.Fields{
		"skin":     skin,
		"bright":   bright,
		"edge":     edge,
		"activity": activity,
		"count":    count,
	}).Debug("pixel-density estimate")

	return est, nil
}
