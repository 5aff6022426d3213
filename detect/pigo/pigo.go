// Package pigo estimates person presence with the pigo face cascade.
// It is a pure-Go backend with no native runtime: far weaker than the
// model-based sources on distant or turned-away people, but it needs
// nothing beyond a cascade file, which suits near-field cameras and
// installs where neither onnxruntime nor OpenCV is available.
package pigo

import (
	"context"
	"image"
	"os"

	pigo "github.com/esimov/pigo/core"
	"github.com/sirupsen/logrus"

	"github.com/beachwatch/go-crowd/detect"
	"github.com/beachwatch/go-crowd/errdefs"
	"github.com/beachwatch/go-crowd/images"
)

// Config describes one face-cascade detection source.
type Config struct {
	// CascadePath is the binary facefinder cascade to unpack.
	CascadePath string `json:"cascade_path"`
	// MinSize and MaxSize bound the detection window in pixels.
	// MaxSize zero means the larger region edge.
	MinSize int `json:"min_size"`
	MaxSize int `json:"max_size"`
	// ShiftFactor moves the window by a fraction of its size;
	// ScaleFactor grows it between passes.
	ShiftFactor float64 `json:"shift_factor"`
	ScaleFactor float64 `json:"scale_factor"`
	// Angle is the cascade rotation in radians over a full circle,
	// 0 for upright faces.
	Angle float64 `json:"angle"`
	// ClusterIoU merges overlapping raw windows into one detection.
	ClusterIoU float64 `json:"cluster_iou"`
	// QualityNorm divides the cascade quality score into a [0, 1]
	// confidence. Cascade scores around 40 map to full confidence.
	QualityNorm float32 `json:"quality_norm"`
}

// DefaultConfig returns cascade settings tuned for crowd frames.
func DefaultConfig(cascadePath string) Config {
	return Config{
		CascadePath: cascadePath,
		MinSize:     20,
		MaxSize:     0,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		Angle:       0,
		ClusterIoU:  0.2,
		QualityNorm: 40,
	}
}

// Validate rejects cascade settings that cannot run.
func (c Config) Validate() error {
	if c.CascadePath == "" {
		return errdefs.Configuration("cascade path is required")
	}
	if c.MinSize <= 0 {
		return errdefs.Configuration("min size %d must be positive", c.MinSize)
	}
	if c.MaxSize < 0 {
		return errdefs.Configuration("max size %d must not be negative", c.MaxSize)
	}
	if c.ShiftFactor <= 0 || c.ShiftFactor > 1 {
		return errdefs.Configuration("shift factor %.2f must be in (0, 1]", c.ShiftFactor)
	}
	if c.ScaleFactor <= 1 {
		return errdefs.Configuration("scale factor %.2f must exceed 1", c.ScaleFactor)
	}
	if c.ClusterIoU <= 0 || c.ClusterIoU >= 1 {
		return errdefs.Configuration("cluster iou %.2f must be in (0, 1)", c.ClusterIoU)
	}
	if c.QualityNorm <= 0 {
		return errdefs.Configuration("quality norm %.1f must be positive", c.QualityNorm)
	}
	return nil
}

// Source detects people by their faces. The unpacked cascade is
// read-only, so one Source serves concurrent callers. It implements
// detect.Source.
type Source struct {
	cfg        Config
	classifier *pigo.Pigo
	log        *logrus.Logger
}

var _ detect.Source = (*Source)(nil)

// New unpacks the cascade file.
func New(cfg Config, log *logrus.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	raw, err := os.ReadFile(cfg.CascadePath)
	if err != nil {
		return nil, errdefs.Unavailable(err, "read cascade %s", cfg.CascadePath)
	}
	classifier, err := pigo.NewPigo().Unpack(raw)
	if err != nil {
		return nil, errdefs.Unavailable(err, "unpack cascade %s", cfg.CascadePath)
	}

	log.WithField("cascade", cfg.CascadePath).Info("pigo detection source ready")
	return &Source{cfg: cfg, classifier: classifier, log: log}, nil
}

// Name identifies the backend in records and logs.
func (p *Source) Name() string {
	return "pigo"
}

// Detect runs the cascade over the region. Each clustered face becomes
// one person detection whose box is the face window and whose score is
// the normalized cascade quality. Regions must have a zero origin, as
// image crops from this module do.
func (p *Source) Detect(ctx context.Context, region image.Image, threshold float32) ([]detect.Detection, error) {
	if region == nil {
		return nil, errdefs.Unavailable(nil, "nil region")
	}
	bounds := region.Bounds()
	dx, dy := bounds.Dx(), bounds.Dy()
	if dx <= 0 || dy <= 0 {
		return nil, errdefs.Unavailable(nil, "empty region")
	}
	if err := ctx.Err(); err != nil {
		return nil, errdefs.Unavailable(err, "detection context done")
	}

	maxSize := p.cfg.MaxSize
	if maxSize <= 0 {
		maxSize = max(dx, dy)
	}
	params := pigo.CascadeParams{
		MinSize:     p.cfg.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: p.cfg.ShiftFactor,
		ScaleFactor: p.cfg.ScaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pigo.RgbToGrayscale(region),
			Rows:   dy,
			Cols:   dx,
			Dim:    dx,
		},
	}

	faces := p.classifier.RunCascade(params, p.cfg.Angle)
	faces = p.classifier.ClusterDetections(faces, p.cfg.ClusterIoU)

	dets := make([]detect.Detection, 0, len(faces))
	for _, f := range faces {
		score := min(f.Q/p.cfg.QualityNorm, 1)
		if score < threshold {
			continue
		}
		half := f.Scale / 2
		box := images.Rect{
			X1: f.Col - half,
			Y1: f.Row - half,
			X2: f.Col + half,
			Y2: f.Row + half,
		}.Clamp(dx, dy)
		if box.Empty() {
			continue
		}
		dets = append(dets, detect.Detection{Box: box, Score: score, Class: detect.ClassPerson})
	}
	return dets, nil
}

// Close releases nothing: the cascade lives in Go memory.
func (p *Source) Close() error {
	return nil
}
