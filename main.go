package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/beachwatch/go-crowd/api"
	"github.com/beachwatch/go-crowd/capture"
	"github.com/beachwatch/go-crowd/engine"
	"github.com/beachwatch/go-crowd/errdefs"
	"github.com/beachwatch/go-crowd/images"
	"github.com/beachwatch/go-crowd/score"
	"github.com/beachwatch/go-crowd/store"
)

const (
	// DefaultAddr is where the HTTP server listens in serve mode.
	DefaultAddr = ":8080"
	// DefaultAreaSqm assumes a mid-sized beach cam field of view when the
	// operator gives no measurement.
	DefaultAreaSqm = 2000.0
)

func main() {
	var (
		imagePath  string
		dirPath    string
		serve      bool
		addr       string
		location   string
		areaSqm    float64
		configPath string
		backend    string
		modelPath  string
		libPath    string
		cascade    string
		dbPath     string
		annotate   string
		confidence float64
		jsonOut    bool
		logLevel   string
		logJSON    bool
	)
	flag.StringVar(&imagePath, "image", "", "Path to a single frame to analyze")
	flag.StringVar(&dirPath, "dir", "", "Directory of snapshot frames to analyze in order")
	flag.BoolVar(&serve, "serve", false, "Run the HTTP analysis server")
	flag.StringVar(&addr, "addr", DefaultAddr, "Listen address in serve mode")
	flag.StringVar(&location, "location", "", "Location label stored with each analysis")
	flag.Float64Var(&areaSqm, "area", DefaultAreaSqm, "Visible ground area in square meters")
	flag.StringVar(&configPath, "config", "", "Path to a tuning JSON file")
	flag.StringVar(&backend, "backend", engine.BackendNone, "Detection backend: onnx, dnn, pigo, or none")
	flag.StringVar(&modelPath, "model", "", "Path to the YOLO ONNX model (onnx and dnn backends)")
	flag.StringVar(&libPath, "lib", "", "Path to the ONNX Runtime shared library (onnx backend)")
	flag.StringVar(&cascade, "cascade", "", "Path to the pigo cascade file (pigo backend)")
	flag.StringVar(&dbPath, "db", "", "Path to the SQLite analysis history database")
	flag.StringVar(&annotate, "annotate", "", "Write a copy of the frame with detection boxes to this path")
	flag.Float64Var(&confidence, "confidence", 0, "Detection confidence threshold override")
	flag.BoolVar(&jsonOut, "json", false, "Print the full record as JSON instead of a summary")
	flag.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")
	flag.Parse()

	log := newLogger(logLevel, logJSON)

	if err := validateModeFlags(imagePath, dirPath, serve); err != nil {
		log.Fatal(err)
	}

	cfg, err := loadConfig(configPath, confidence)
	if err != nil {
		log.Fatal(err)
	}

	eng := buildEngine(log, cfg, backend, engine.BackendOptions{
		ModelPath:   modelPath,
		LibraryPath: libPath,
		CascadePath: cascade,
	})
	defer eng.Close()

	var st *store.Store
	if dbPath != "" {
		st, err = store.Open(dbPath)
		if err != nil {
			log.Fatalf("opening analysis store: %v", err)
		}
		defer st.Close()
	}

	switch {
	case serve:
		runServer(log, eng, st, addr)
	case imagePath != "":
		analyzeOne(log, eng, st, imagePath, location, areaSqm, annotate, jsonOut)
	default:
		analyzeBatch(log, eng, st, dirPath, location, areaSqm)
	}
}

func newLogger(level string, asJSON bool) *logrus.Logger {
	log := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	log.SetLevel(parsed)
	if asJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
	return log
}

func validateModeFlags(imagePath, dirPath string, serve bool) error {
	modes := 0
	if imagePath != "" {
		modes++
	}
	if dirPath != "" {
		modes++
	}
	if serve {
		modes++
	}
	if modes == 0 {
		return errors.New("one of -image, -dir, or -serve is required")
	}
	if modes > 1 {
		return errors.New("-image, -dir, and -serve are mutually exclusive")
	}
	return nil
}

func loadConfig(path string, confidence float64) (*engine.Config, error) {
	cfg := &engine.Config{}
	if path != "" {
		loaded, err := engine.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if confidence > 0 {
		cfg.Confidence = &confidence
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// buildEngine falls back to the heuristic-only engine when a detection
// backend cannot start, so a missing model degrades the analysis instead
// of killing the process.
func buildEngine(log *logrus.Logger, cfg *engine.Config, backend string, opts engine.BackendOptions) *engine.Engine {
	eng, err := engine.NewBuilder().
		WithLogger(log).
		WithConfig(cfg).
		WithBackend(backend, opts).
		Build()
	if err == nil {
		return eng
	}
	if backend != engine.BackendNone && errdefs.IsUnavailable(err) {
		log.Warnf("detection backend %q unavailable: %v", backend, err)
		log.Warn("continuing with heuristic analysis only")
		eng, err = engine.NewBuilder().WithLogger(log).WithConfig(cfg).Build()
		if err == nil {
			return eng
		}
	}
	log.Fatalf("building engine: %v", err)
	return nil
}

func runServer(log *logrus.Logger, eng *engine.Engine, st *store.Store, addr string) {
	server := api.NewServer(eng, st, log)

	srv := &http.Server{
		Handler:      server.Router(),
		Addr:         addr,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	log.WithFields(logrus.Fields{
		"addr":    addr,
		"backend": eng.Backend(),
	}).Info("starting analysis server")
	log.Fatal(srv.ListenAndServe())
}

func analyzeOne(log *logrus.Logger, eng *engine.Engine, st *store.Store, path, location string, areaSqm float64, annotate string, jsonOut bool) {
	img, _, err := images.Open(path)
	if err != nil {
		log.Fatalf("loading frame: %v", err)
	}

	outcome := eng.Analyze(context.Background(), img, engine.Request{
		Location: location,
		Area:     score.NewTargetArea(areaSqm),
	})
	if outcome.Record == nil {
		log.Fatalf("analysis %s: %v", outcome.Status, outcome.Err)
	}
	rec := outcome.Record

	if st != nil {
		if err := st.Insert(context.Background(), rec); err != nil {
			log.Warnf("persisting record: %v", err)
		}
	}

	if annotate != "" {
		if err := writeAnnotated(img, rec, annotate); err != nil {
			log.Warnf("writing annotated frame: %v", err)
		} else {
			fmt.Printf("Annotated frame saved to %s\n", annotate)
		}
	}

	if jsonOut {
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			log.Fatalf("encoding record: %v", err)
		}
		fmt.Println(string(data))
		return
	}
	printSummary(path, rec, outcome.Status)
}

func analyzeBatch(log *logrus.Logger, eng *engine.Engine, st *store.Store, dir, location string, areaSqm float64) {
	src, err := capture.NewDirectorySource(dir)
	if err != nil {
		log.Fatalf("opening snapshot directory: %v", err)
	}
	fmt.Printf("Analyzing %d frames from %s\n", src.Len(), dir)

	ctx := context.Background()
	area := score.NewTargetArea(areaSqm)
	analyzed, failed := 0, 0

	for {
		frame, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warnf("skipping frame: %v", err)
			failed++
			continue
		}

		outcome := eng.Analyze(ctx, frame.Image, engine.Request{
			Location:   location,
			Area:       area,
			CapturedAt: frame.CapturedAt,
		})
		if outcome.Record == nil {
			log.Warnf("frame %s: analysis %s: %v", filepath.Base(frame.Origin), outcome.Status, outcome.Err)
			failed++
			continue
		}
		rec := outcome.Record
		analyzed++

		method := ""
		if rec.FallbackUsed {
			method = " (heuristic)"
		}
		fmt.Printf("%-32s %4d persons  busyness %3d %-10s%s\n",
			filepath.Base(frame.Origin), rec.PersonCount, rec.Busyness.Score, rec.Busyness.Level, method)

		if st != nil {
			if err := st.Insert(ctx, rec); err != nil {
				log.Warnf("persisting record for %s: %v", frame.Origin, err)
			}
		}
	}

	fmt.Printf("\nDone: %d analyzed, %d failed\n", analyzed, failed)
	if analyzed == 0 && failed > 0 {
		os.Exit(1)
	}
}

func writeAnnotated(img image.Image, rec *engine.Record, path string) error {
	anns := make([]images.Annotation, 0, len(rec.Detections))
	for _, d := range rec.Detections {
		anns = append(anns, images.Annotation{Box: d.Box, Score: d.Score})
	}
	return images.Save(path, images.DrawAnnotations(img, anns))
}

func printSummary(path string, rec *engine.Record, status engine.Status) {
	fmt.Printf("Frame:       %s (%dx%d)\n", filepath.Base(path), rec.Width, rec.Height)
	if rec.Location != "" {
		fmt.Printf("Location:    %s\n", rec.Location)
	}
	fmt.Printf("Persons:     %d\n", rec.PersonCount)
	fmt.Printf("Busyness:    %d/100 (%s)\n", rec.Busyness.Score, rec.Busyness.Level)
	fmt.Printf("Density:     %.2f persons per 100 sqm over %.0f sqm\n", rec.Busyness.Density, rec.AreaSqm)
	fmt.Printf("Confidence:  avg %.2f (min %.2f, max %.2f)\n",
		rec.Confidence.Avg, rec.Confidence.Min, rec.Confidence.Max)
	if rec.TileCount > 0 {
		fmt.Printf("Tiling:      %d tiles, %d detector calls", rec.TileCount, rec.Invocations)
		if rec.FailuresAbsorbed > 0 {
			fmt.Printf(" (%d failed)", rec.FailuresAbsorbed)
		}
		fmt.Println()
	}
	if rec.FallbackUsed {
		fmt.Printf("Fallback:    heuristic estimate (%s)\n", rec.FallbackReason)
	}
	fmt.Printf("Duration:    %dms\n", rec.DurationMS)
	if status == engine.StatusFallbackSuccess {
		fmt.Println("\nNote: detector unavailable; counts are a coarse pixel estimate.")
	}
}
