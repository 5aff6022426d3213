package onnx

import (
	"github.com/beachwatch/go-crowd/errdefs"
)

// Config describes one ONNX Runtime detection source.
type Config struct {
	// ModelPath is the YOLO-family ONNX model to load.
	ModelPath string `json:"model_path"`
	// LibraryPath points at the onnxruntime shared library. Empty uses
	// whatever path the runtime bindings default to.
	LibraryPath string `json:"library_path"`

	// InputName and OutputName are the model's graph bindings.
	InputName  string `json:"input_name"`
	OutputName string `json:"output_name"`

	// InputSize is the square model input edge. Must be a multiple of
	// 32, the coarsest YOLO stride.
	InputSize int `json:"input_size"`
	// NumClasses is the width of the class-score block in the output.
	NumClasses int `json:"num_classes"`
	// PersonClassIndex is the row holding the person score.
	PersonClassIndex int `json:"person_class_index"`

	// Sessions is the number of concurrent inference sessions to pool.
	Sessions int `json:"sessions"`
	// IntraOpThreads and InterOpThreads are the onnxruntime thread
	// pools per session; zero lets the runtime choose.
	IntraOpThreads int `json:"intra_op_threads"`
	InterOpThreads int `json:"inter_op_threads"`

	// WarmupRuns primes each session at startup so the first real frame
	// does not pay graph-initialization cost.
	WarmupRuns int `json:"warmup_runs"`

	// NMSIoU is the per-inference suppression threshold applied to the
	// raw anchor grid before results leave the backend.
	NMSIoU float32 `json:"nms_iou"`
}

// DefaultConfig returns the standard YOLOv8 settings for a model path.
func DefaultConfig(modelPath string) Config {
	return Config{
		ModelPath:        modelPath,
		InputName:        "images",
		OutputName:       "output0",
		InputSize:        640,
		NumClasses:       80,
		PersonClassIndex: 0,
		Sessions:         2,
		IntraOpThreads:   4,
		InterOpThreads:   2,
		WarmupRuns:       1,
		NMSIoU:           0.45,
	}
}

// Validate rejects configurations the runtime cannot load.
func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errdefs.Configuration("onnx model path is required")
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
	if c.Sessions <= 0 {
		return errdefs.Configuration("session pool size %d must be positive", c.Sessions)
	}
	if c.NMSIoU <= 0 || c.NMSIoU >= 1 {
		return errdefs.Configuration("nms iou %.2f must be in (0, 1)", c.NMSIoU)
	}
	return nil
}
