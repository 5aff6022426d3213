// Package dnn runs person detection through OpenCV's DNN module. It
// loads the same YOLO-family ONNX models as the onnx backend but
// executes them inside OpenCV, which is the practical choice when a
// deployment already ships OpenCV and no onnxruntime library.
package dnn

import (
	"context"
	"image"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/beachwatch/go-crowd/detect"
	"github.com/beachwatch/go-crowd/errdefs"
)

// Config describes one OpenCV DNN detection source.
type Config struct {
	// ModelPath is the YOLO-family ONNX model to load.
	ModelPath string `json:"model_path"`
	// InputSize is the square model input edge, a multiple of 32.
	InputSize int `json:"input_size"`
	// NumClasses is the width of the class-score block in the output.
	NumClasses int `json:"num_classes"`
	// PersonClassIndex is the row holding the person score.
	PersonClassIndex int `json:"person_class_index"`
	// NMSIoU is the per-inference suppression threshold.
	NMSIoU float32 `json:"nms_iou"`
}

// DefaultConfig returns the standard YOLOv8 settings for a model path.
func DefaultConfig(modelPath string) Config {
	return Config{
		ModelPath:        modelPath,
		InputSize:        640,
		NumClasses:       80,
		PersonClassIndex: 0,
		NMSIoU:           0.45,
	}
}

// Validate rejects configurations OpenCV cannot load.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errdefs.Configuration("dnn model path is required")
	}
	if c.InputSize <= 0 || c.InputSize%32 != 0 {
		return errdefs.Configuration("input size %d must be a positive multiple of 32", c.InputSize)
	}
	if c.NumClasses <= 0 {
		return errdefs.Configuration("num classes %d must be positive", c.NumClasses)
	}
	if c.PersonClassIndex < 0 || c.PersonClassIndex >= c.NumClasses {
		return errdefs.Configuration("person class index %d outside [0, %d)", c.PersonClassIndex, c.NumClasses)
	}
	if c.NMSIoU <= 0 || c.NMSIoU >= 1 {
		return errdefs.Configuration("nms iou %.2f must be in (0, 1)", c.NMSIoU)
	}
	return nil
}

// Source detects people with an OpenCV DNN net. The net is not
// reentrant, so a mutex serializes inference; it implements
// detect.Source.
type Source struct {
	cfg     Config
	anchors int
	log     *logrus.Logger

	mu     sync.Mutex
	net    gocv.Net
	closed bool
}

var _ detect.Source = (*Source)(nil)

// New loads the model into OpenCV's DNN module.
func New(cfg Config, log *logrus.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	info, err := os.Stat(cfg.ModelPath)
	if err != nil {
		return nil, errdefs.Unavailable(err, "stat model %s", cfg.ModelPath)
	}
	if info.Size() == 0 {
		return nil, errdefs.Unavailable(nil, "model %s is empty", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, errdefs.Unavailable(nil, "load model %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendOpenCV)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	log.WithFields(logrus.Fields{
		"model": cfg.ModelPath,
		"input": cfg.InputSize,
	}).Info("dnn detection source ready")
	return &Source{
		cfg:     cfg,
		anchors: detect.YOLOAnchors(cfg.InputSize),
		log:     log,
		net:     net,
	}, nil
}

// Name identifies the backend in records and logs.
func (d *Source) Name() string {
	return "dnn"
}

// Detect runs the region through the net and returns person detections
// in region coordinates. Every failure reports as detection
// unavailability.
func (d *Source) Detect(ctx context.Context, region image.Image, threshold float32) ([]detect.Detection, error) {
	if region == nil {
		return nil, errdefs.Unavailable(nil, "nil region")
	}
	bounds := region.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, errdefs.Unavailable(nil, "empty region")
	}
	if err := ctx.Err(); err != nil {
		return nil, errdefs.Unavailable(err, "detection context done")
	}

	mat, err := gocv.ImageToMatRGB(region)
	if err != nil {
		return nil, errdefs.Unavailable(err, "convert region")
	}
	defer mat.Close()

	size := image.Pt(d.cfg.InputSize, d.cfg.InputSize)
	// The mat is already RGB, so the blob keeps channel order as-is.
	blob := gocv.BlobFromImage(mat, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	raw, err := d.forward(blob)
	if err != nil {
		return nil, err
	}

	need := d.anchors * (4 + d.cfg.NumClasses)
	if len(raw) < need {
		return nil, errdefs.Unavailable(nil, "model output has %d values, want %d", len(raw), need)
	}
	return detect.DecodeYOLO(raw, detect.YOLOLayout{
		Anchors:      d.anchors,
		PersonIndex:  d.cfg.PersonClassIndex,
		InputSize:    d.cfg.InputSize,
		RegionWidth:  bounds.Dx(),
		RegionHeight: bounds.Dy(),
		Threshold:    threshold,
		NMSIoU:       d.cfg.NMSIoU,
	}), nil
}

// forward serializes net access and copies the output out of OpenCV
// memory before the lock is released, since the next Forward reuses
// the same output blob.
func (d *Source) forward(blob gocv.Mat) (raw []float32, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errdefs.Unavailable(nil, "inference panic: %v", r)
		}
	}()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errdefs.Unavailable(nil, "detection source closed")
	}

	d.net.SetInput(blob, "")
	prob := d.net.Forward("")
	defer prob.Close()
	if prob.Empty() {
		return nil, errdefs.Unavailable(nil, "inference returned empty output")
	}

	ptr, perr := prob.DataPtrFloat32()
	if perr != nil {
		return nil, errdefs.Unavailable(perr, "read inference output")
	}
	raw = make([]float32, len(ptr))
	copy(raw, ptr)
	return raw, nil
}

// Close releases the net. Detect calls after Close fail as unavailable.
func (d *Source) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if !d.net.Empty() {
		return d.net.Close()
	}
	return nil
}
