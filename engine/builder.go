package engine

import (
	"github.com/sirupsen/logrus"

	"github.com/beachwatch/go-crowd/detect"
	"github.com/beachwatch/go-crowd/detect/dnn"
	"github.com/beachwatch/go-crowd/detect/onnx"
	"github.com/beachwatch/go-crowd/detect/pigo"
	"github.com/beachwatch/go-crowd/errdefs"
	"github.com/beachwatch/go-crowd/heuristic"
)

// Backend names accepted by Builder.WithBackend.
const (
	BackendONNX = "onnx"
	BackendDNN  = "dnn"
	BackendPigo = "pigo"
	BackendNone = "none"
)

// BackendOptions carries the artifact paths the backend constructors
// need. Fields irrelevant to the chosen backend are ignored.
type BackendOptions struct {
	// ModelPath is the ONNX model for the onnx and dnn backends.
	ModelPath string
	// LibraryPath locates the onnxruntime shared library.
	LibraryPath string
	// CascadePath is the facefinder cascade for the pigo backend.
	CascadePath string
}

// Builder assembles an Engine with a fluent API. The first error stops
// the chain and surfaces from Build. Set the logger before WithBackend
// so backend construction logs through it.
type Builder struct {
	source   detect.Source
	fallback Fallback
	cfg      *Config
	log      *logrus.Logger
	err      error
}

// NewBuilder creates an empty engine builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// HasError reports whether an earlier step failed.
func (b *Builder) HasError() bool {
	return b.err != nil
}

// WithLogger sets the logger for the engine and every component the
// builder constructs.
func (b *Builder) WithLogger(log *logrus.Logger) *Builder {
	if b.HasError() {
		return b
	}
	b.log = log
	return b
}

// WithConfig sets the tuning configuration.
func (b *Builder) WithConfig(cfg *Config) *Builder {
	if b.HasError() {
		return b
	}
	b.cfg = cfg
	return b
}

// WithSource sets a ready detection source. Nil means fallback-only
// operation.
func (b *Builder) WithSource(src detect.Source) *Builder {
	if b.HasError() {
		return b
	}
	b.source = src
	return b
}

// WithFallback replaces the default pixel-heuristic fallback.
func (b *Builder) WithFallback(fb Fallback) *Builder {
	if b.HasError() {
		return b
	}
	b.fallback = fb
	return b
}

// WithBackend constructs the detection source by name: onnx, dnn,
// pigo, or none for fallback-only operation.
func (b *Builder) WithBackend(kind string, opts BackendOptions) *Builder {
	if b.HasError() {
		return b
	}
	switch kind {
	case "", BackendNone:
		b.source = nil
	case BackendONNX:
		cfg := onnx.DefaultConfig(opts.ModelPath)
		cfg.LibraryPath = opts.LibraryPath
		src, err := onnx.New(cfg, b.logger())
		if err != nil {
			b.err = err
			return b
		}
		b.source = src
	case BackendDNN:
		src, err := dnn.New(dnn.DefaultConfig(opts.ModelPath), b.logger())
		if err != nil {
			b.err = err
			return b
		}
		b.source = src
	case BackendPigo:
		src, err := pigo.New(pigo.DefaultConfig(opts.CascadePath), b.logger())
		if err != nil {
			b.err = err
			return b
		}
		b.source = src
	default:
		b.err = errdefs.Configuration("unknown detection backend %q", kind)
	}
	return b
}

func (b *Builder) logger() *logrus.Logger {
	if b.log != nil {
		return b.log
	}
	return logrus.StandardLogger()
}

// Build validates the configuration and assembles the engine. A
// missing fallback gets the default pixel heuristic.
func (b *Builder) Build() (*Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	cfg := b.cfg
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := b.logger()

	fallback := b.fallback
	if fallback == nil {
		analyzer, err := heuristic.New(cfg.GetHeuristic(), log)
		if err != nil {
			return nil, err
		}
		fallback = analyzer
	}

	return &Engine{
		source:   b.source,
		fallback: fallback,
		cfg:      cfg,
		log:      log,
	}, nil
}

// MustBuild builds the engine and panics on error, for wiring code
// where a bad configuration is fatal anyway.
func (b *Builder) MustBuild() *Engine {
	e, err := b.Build()
	if err != nil {
		panic(err)
	}
	return e
}
