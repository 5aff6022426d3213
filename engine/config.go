package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/beachwatch/go-crowd/detect"
	"github.com/beachwatch/go-crowd/errdefs"
	"github.com/beachwatch/go-crowd/heuristic"
	"github.com/beachwatch/go-crowd/images"
)

// Config tunes the analysis pipeline. Every field is optional: nil
// falls back to the matching Get* default, so partial JSON files are
// safe and the zero Config is fully usable.
type Config struct {
	// TileSize and TileOverlap shape the tiling plan for large frames.
	TileSize    *int     `json:"tile_size,omitempty"`
	TileOverlap *float64 `json:"tile_overlap,omitempty"`

	// MinSliceDim gates tiling: frames whose width and height both stay
	// at or under it are analyzed with the full-frame pass alone.
	MinSliceDim *int `json:"min_slice_dim,omitempty"`

	// Confidence is the detection score floor, kept low because distant
	// people score poorly.
	Confidence *float64 `json:"confidence_threshold,omitempty"`

	// MergeIoU is the union-merge suppression threshold across tiles.
	MergeIoU *float64 `json:"merge_iou,omitempty"`

	// Workers bounds concurrent detector invocations per analysis.
	Workers *int `json:"workers,omitempty"`

	// InvocationTimeout is a duration string like "30s" applied to each
	// detector invocation.
	InvocationTimeout *string `json:"invocation_timeout,omitempty"`

	// BandHigh and BandMedium split confidences into high/medium/low
	// for the record's distribution.
	BandHigh   *float64 `json:"band_high,omitempty"`
	BandMedium *float64 `json:"band_medium,omitempty"`

	// MaxRecorded caps how many merged boxes a record carries.
	MaxRecorded *int `json:"max_recorded_detections,omitempty"`

	// Heuristic overrides the fallback calibration.
	Heuristic *heuristic.Config `json:"heuristic,omitempty"`
}

// maxConfigBytes bounds config files read from disk.
const maxConfigBytes = 1 << 20

// LoadConfig reads a JSON tuning file. Omitted fields keep their
// defaults, so partial configs are safe.
func LoadConfig(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, errdefs.Configuration("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, errdefs.Configuration("stat config file: %v", err)
	}
	if info.Size() > maxConfigBytes {
		return nil, errdefs.Configuration("config file too large: %d bytes (max %d)", info.Size(), maxConfigBytes)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, errdefs.Configuration("read config file: %v", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errdefs.Configuration("parse config JSON: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every field that is set, plus the effective band
// ordering.
func (c *Config) Validate() error {
	if c.TileSize != nil && *c.TileSize <= 0 {
		return errdefs.Configuration("tile_size %d must be positive", *c.TileSize)
	}
	if c.TileOverlap != nil && (*c.TileOverlap < 0 || *c.TileOverlap >= 1) {
		return errdefs.Configuration("tile_overlap %.2f must be in [0, 1)", *c.TileOverlap)
	}
	if c.MinSliceDim != nil && *c.MinSliceDim <= 0 {
		return errdefs.Configuration("min_slice_dim %d must be positive", *c.MinSliceDim)
	}
	if c.Confidence != nil && (*c.Confidence < 0 || *c.Confidence > 1) {
		return errdefs.Configuration("confidence_threshold %.2f must be in [0, 1]", *c.Confidence)
	}
	if c.MergeIoU != nil && (*c.MergeIoU <= 0 || *c.MergeIoU >= 1) {
		return errdefs.Configuration("merge_iou %.2f must be in (0, 1)", *c.MergeIoU)
	}
	if c.Workers != nil && *c.Workers <= 0 {
		return errdefs.Configuration("workers %d must be positive", *c.Workers)
	}
	if c.InvocationTimeout != nil && *c.InvocationTimeout != "" {
		d, err := time.ParseDuration(*c.InvocationTimeout)
		if err != nil {
			return errdefs.Configuration("invalid invocation_timeout %q: %v", *c.InvocationTimeout, err)
		}
		if d <= 0 {
			return errdefs.Configuration("invocation_timeout %q must be positive", *c.InvocationTimeout)
		}
	}
	if c.BandHigh != nil && (*c.BandHigh <= 0 || *c.BandHigh >= 1) {
		return errdefs.Configuration("band_high %.2f must be in (0, 1)", *c.BandHigh)
	}
	if c.BandMedium != nil && (*c.BandMedium <= 0 || *c.BandMedium >= 1) {
		return errdefs.Configuration("band_medium %.2f must be in (0, 1)", *c.BandMedium)
	}
	if b := c.GetBands(); b.High <= b.Medium {
		return errdefs.Configuration("band_high %.2f must exceed band_medium %.2f", b.High, b.Medium)
	}
	if c.MaxRecorded != nil && *c.MaxRecorded < 0 {
		return errdefs.Configuration("max_recorded_detections %d must not be negative", *c.MaxRecorded)
	}
	if c.Heuristic != nil {
		if err := c.Heuristic.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GetTileSize returns the tile edge or the default.
func (c *Config) GetTileSize() int {
	if c.TileSize == nil {
		return 640
	}
	return *c.TileSize
}

// GetTileOverlap returns the tile overlap fraction or the default.
func (c *Config) GetTileOverlap() float64 {
	if c.TileOverlap == nil {
		return 0.25
	}
	return *c.TileOverlap
}

// GetTiling bundles the tile settings for the planner.
func (c *Config) GetTiling() images.TilingConfig {
	return images.TilingConfig{TileSize: c.GetTileSize(), Overlap: c.GetTileOverlap()}
}

// GetMinSliceDim returns the tiling gate or the default.
func (c *Config) GetMinSliceDim() int {
	if c.MinSliceDim == nil {
		return 1280
	}
	return *c.MinSliceDim
}

// GetConfidence returns the detection score floor or the default.
func (c *Config) GetConfidence() float32 {
	if c.Confidence == nil {
		return 0.15
	}
	return float32(*c.Confidence)
}

// GetMergeIoU returns the union-merge threshold or the default.
func (c *Config) GetMergeIoU() float32 {
	if c.MergeIoU == nil {
		return detect.DefaultIoUThreshold
	}
	return float32(*c.MergeIoU)
}

// GetWorkers returns the invocation pool size or the default.
func (c *Config) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetInvocationTimeout returns the per-invocation deadline or the
// default.
func (c *Config) GetInvocationTimeout() time.Duration {
	if c.InvocationTimeout == nil || *c.InvocationTimeout == "" {
		return 30 * time.Second
	}
	d, err := time.ParseDuration(*c.InvocationTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetBands returns the confidence band boundaries or the defaults.
func (c *Config) GetBands() detect.Bands {
	bands := detect.DefaultBands()
	if c.BandHigh != nil {
		bands.High = float32(*c.BandHigh)
	}
	if c.BandMedium != nil {
		bands.Medium = float32(*c.BandMedium)
	}
	return bands
}

// GetMaxRecorded returns the record detection cap or the default.
func (c *Config) GetMaxRecorded() int {
	if c.MaxRecorded == nil {
		return 100
	}
	return *c.MaxRecorded
}

// GetHeuristic returns the fallback calibration or the default.
func (c *Config) GetHeuristic() heuristic.Config {
	if c.Heuristic == nil {
		return heuristic.DefaultConfig()
	}
	return *c.Heuristic
}
