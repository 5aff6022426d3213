// Package onnx runs person detection through ONNX Runtime sessions
// bound to a YOLO-family model. A fixed pool of sessions with
// preallocated tensors serves concurrent callers without per-call
// allocation of runtime state.
package onnx

import (
	"context"
	"image"
	"sync"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/beachwatch/go-crowd/detect"
	"github.com/beachwatch/go-crowd/errdefs"
)

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// initRuntime brings up the process-wide onnxruntime environment. The
// environment is shared by every Source and stays up until the process
// exits.
func initRuntime(libraryPath string) error {
	runtimeOnce.Do(func() {
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if !ort.IsInitialized() {
			runtimeErr = ort.InitializeEnvironment()
		}
	})
	return runtimeErr
}

// session owns one inference session and its input/output tensors. A
// session is used by at most one goroutine at a time, enforced by the
// pool channel.
type session struct {
	sess   *ort.AdvancedSession
	input  *ort.Tensor[float32]
	output *ort.Tensor[float32]
}

func (s *session) destroy() {
	if s.sess != nil {
		s.sess.Destroy()
	}
	if s.input != nil {
		s.input.Destroy()
	}
	if s.output != nil {
		s.output.Destroy()
	}
}

// Source detects people with an ONNX Runtime model pool. It implements
// detect.Source.
type Source struct {
	cfg     Config
	anchors int
	pool    chan *session
	log     *logrus.Logger

	closeOnce sync.Once
}

var _ detect.Source = (*Source)(nil)

// New loads the model and builds cfg.Sessions pooled sessions. The
// returned Source is safe for concurrent use.
func New(cfg Config, log *logrus.Logger) (*Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := initRuntime(cfg.LibraryPath); err != nil {
		return nil, errdefs.Unavailable(err, "initialize onnxruntime")
	}

	src := &Source{
		cfg:     cfg,
		anchors: detect.YOLOAnchors(cfg.InputSize),
		pool:    make(chan *session, cfg.Sessions),
		log:     log,
	}
	for i := 0; i < cfg.Sessions; i++ {
		s, err := src.newSession()
		if err != nil {
			src.Close()
			return nil, err
		}
		src.pool <- s
	}

	if cfg.WarmupRuns > 0 {
		if err := src.warmUp(cfg.WarmupRuns); err != nil {
			src.Close()
			return nil, err
		}
	}

	log.WithFields(logrus.Fields{
		"model":    cfg.ModelPath,
		"sessions": cfg.Sessions,
		"input":    cfg.InputSize,
	}).Info("onnx detection source ready")
	return src, nil
}

func (o *Source) newSession() (*session, error) {
	inputShape := ort.NewShape(1, 3, int64(o.cfg.InputSize), int64(o.cfg.InputSize))
	input, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, errdefs.Unavailable(err, "create input tensor")
	}

	outputShape := ort.NewShape(1, int64(4+o.cfg.NumClasses), int64(o.anchors))
	output, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		input.Destroy()
		return nil, errdefs.Unavailable(err, "create output tensor")
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errdefs.Unavailable(err, "create session options")
	}
	defer options.Destroy()

	if o.cfg.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(o.cfg.IntraOpThreads); err != nil {
			input.Destroy()
			output.Destroy()
			return nil, errdefs.Unavailable(err, "set intra-op threads")
		}
	}
	if o.cfg.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(o.cfg.InterOpThreads); err != nil {
			input.Destroy()
			output.Destroy()
			return nil, errdefs.Unavailable(err, "set inter-op threads")
		}
	}
	if err := options.SetGraphOptimizationLevel(ort.GraphOptimizationLevelEnableExtended); err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errdefs.Unavailable(err, "set graph optimization level")
	}

	sess, err := ort.NewAdvancedSession(
		o.cfg.ModelPath,
		[]string{o.cfg.InputName},
		[]string{o.cfg.OutputName},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errdefs.Unavailable(err, "load model %s", o.cfg.ModelPath)
	}
	return &session{sess: sess, input: input, output: output}, nil
}

// warmUp runs blank frames through every pooled session so graph
// initialization happens before the first caller arrives.
func (o *Source) warmUp(runs int) error {
	blank := image.NewRGBA(image.Rect(0, 0, o.cfg.InputSize, o.cfg.InputSize))
	for i := 0; i < runs*o.cfg.Sessions; i++ {
		if _, err := o.Detect(context.Background(), blank, 0.99); err != nil {
			return err
		}
	}
	return nil
}

// Name identifies the backend in records and logs.
func (o *Source) Name() string {
	return "onnx"
}

// Detect runs the region through one pooled session and returns person
// detections in region coordinates. Every failure, including ctx
// expiry while waiting or running, reports as detection unavailability.
func (o *Source) Detect(ctx context.Context, region image.Image, threshold float32) ([]detect.Detection, error) {
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

	var s *session
	select {
	case s = <-o.pool:
	case <-ctx.Done():
		return nil, errdefs.Unavailable(ctx.Err(), "waiting for inference session")
	}

	if err := prepareInput(region, s.input, o.cfg.InputSize); err != nil {
		o.pool <- s
		return nil, err
	}

	done := make(chan error, 1)
	go func() {
		done <- s.sess.Run()
	}()

	select {
	case err := <-done:
		if err != nil {
			o.pool <- s
			return nil, errdefs.Unavailable(err, "inference run")
		}
	case <-ctx.Done():
		// The runtime call cannot be interrupted. Hand the session back
		// once it finishes so the pool is not leaked.
		go func() {
			<-done
			o.pool <- s
		}()
		return nil, errdefs.Unavailable(ctx.Err(), "inference deadline")
	}

	raw := s.output.GetData()
	need := o.anchors * (4 + o.cfg.NumClasses)
	if len(raw) < need {
		o.pool <- s
		return nil, errdefs.Unavailable(nil, "model output has %d values, want %d", len(raw), need)
	}

	dets := detect.DecodeYOLO(raw, detect.YOLOLayout{
		Anchors:      o.anchors,
		PersonIndex:  o.cfg.PersonClassIndex,
		InputSize:    o.cfg.InputSize,
		RegionWidth:  bounds.Dx(),
		RegionHeight: bounds.Dy(),
		Threshold:    threshold,
		NMSIoU:       o.cfg.NMSIoU,
	})
	o.pool <- s
	return dets, nil
}

// Close destroys every pooled session. Callers must not invoke Detect
// concurrently with or after Close. The shared runtime environment is
// left up for other sources in the process.
func (o *Source) Close() error {
	o.closeOnce.Do(func() {
		for i := 0; i < cap(o.pool); i++ {
			select {
			case s := <-o.pool:
				s.destroy()
			default:
			}
		}
	})
	return nil
}
