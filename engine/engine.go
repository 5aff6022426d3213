// Package engine orchestrates one crowd analysis end to end: plan
// tiles, fan detector invocations out over a bounded worker pool,
// merge the per-tile detections, score busyness, and fall back to the
// pixel heuristic when detection is unavailable.
package engine

import (
	"context"
	stderrors "errors"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/beachwatch/go-crowd/detect"
	"github.com/beachwatch/go-crowd/errdefs"
	"github.com/beachwatch/go-crowd/heuristic"
	"github.com/beachwatch/go-crowd/images"
	"github.com/beachwatch/go-crowd/score"
)

// Fallback estimates a crowd when no detector can. heuristic.Analyzer
// is the production implementation; tests substitute scripted ones.
type Fallback interface {
	Analyze(img image.Image, area score.TargetArea) (heuristic.Estimate, error)
}

// Engine runs analyses. It holds no per-run state, so concurrent
// Analyze calls on one Engine are independent.
type Engine struct {
	source   detect.Source
	fallback Fallback
	cfg      *Config
	log      *logrus.Logger
}

// Backend names the configured detection source, "none" when the
// engine is fallback-only.
func (e *Engine) Backend() string {
	if e.source == nil {
		return "none"
	}
	return e.source.Name()
}

// Close releases the detection source, when one is configured.
func (e *Engine) Close() error {
	if e.source == nil {
		return nil
	}
	return e.source.Close()
}

// invocation is one detector call: a region plus its offset in frame
// coordinates.
type invocation struct {
	region image.Image
	dx, dy int
}

// Analyze estimates the crowd in one frame and resolves to a complete
// Outcome: success, fallback_success, failed, or canceled. Detection
// unavailability flips the run onto the heuristic; caller cancellation
// never does.
func (e *Engine) Analyze(ctx context.Context, img image.Image, req Request) Outcome {
	started := time.Now()

	if err := req.Area.Validate(); err != nil {
		return Outcome{Status: StatusFailed, Err: err}
	}
	if img == nil {
		return Outcome{Status: StatusFailed, Err: errdefs.Failed(nil, "no image data")}
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return Outcome{Status: StatusFailed, Err: errdefs.Failed(nil, "empty image %dx%d", width, height)}
	}
	if err := ctx.Err(); err != nil {
		return Outcome{Status: StatusCanceled, Err: errdefs.Canceled(err)}
	}

	ts := req.CapturedAt
	if ts.IsZero() {
		ts = started.UTC()
	}
	rec := &Record{
		ID:        uuid.NewString(),
		Location:  req.Location,
		Timestamp: ts,
		Width:     width,
		Height:    height,
		AreaSqm:   req.Area.AreaSqm,
	}
	var timings StageTimings

	// Plan. Tiling only pays off past the gate; the full-frame pass
	// runs either way.
	planStart := time.Now()
	var tiles []images.Tile
	if e.source != nil && (width > e.cfg.GetMinSliceDim() || height > e.cfg.GetMinSliceDim()) {
		var err error
		tiles, err = images.PlanTiles(width, height, e.cfg.GetTiling())
		if err != nil {
			return Outcome{Status: StatusFailed, Err: err}
		}
	}
	timings.PlanMS = time.Since(planStart).Milliseconds()
	rec.TileCount = len(tiles)

	var detErr error
	if e.source == nil {
		detErr = errdefs.Unavailable(nil, "no detector configured")
	} else {
		detectStart := time.Now()
		collected, absorbed, err := e.runDetection(ctx, img, tiles)
		timings.DetectMS = time.Since(detectStart).Milliseconds()

		if err == nil {
			mergeStart := time.Now()
			merged := detect.Merge(collected, e.cfg.GetConfidence(), e.cfg.GetMergeIoU())
			stats, dist := detect.Summarize(merged, e.cfg.GetBands())
			timings.MergeMS = time.Since(mergeStart).Milliseconds()

			scoreStart := time.Now()
			busy, serr := score.Compute(len(merged), req.Area)
			timings.ScoreMS = time.Since(scoreStart).Milliseconds()
			if serr != nil {
				return Outcome{Status: StatusFailed, Err: serr}
			}

			rec.PersonCount = len(merged)
			rec.Method = MethodDetector
			rec.Confidence = stats
			rec.Distribution = dist
			rec.Busyness = busy
			rec.Invocations = len(tiles) + 1
			rec.FailuresAbsorbed = absorbed
			rec.Detections = capDetections(merged, e.cfg.GetMaxRecorded())
			rec.DurationMS = time.Since(started).Milliseconds()
			rec.Stages = timings

			e.log.WithFields(logrus.Fields{
				"location":    req.Location,
				"persons":     rec.PersonCount,
				"score":       busy.Score,
				"level":       busy.Level,
				"tiles":       len(tiles),
				"duration_ms": rec.DurationMS,
			}).Info("analysis complete")
			return Outcome{Status: StatusSuccess, Record: rec}
		}
		if err := ctx.Err(); err != nil {
			return Outcome{Status: StatusCanceled, Err: errdefs.Canceled(err)}
		}
		detErr = err
	}

	// Fallback path. Reached only for detection unavailability, never
	// for cancellation.
	e.log.WithError(detErr).Warn("detection unavailable, using pixel heuristic")
	fallbackStart := time.Now()
	est, herr := e.fallback.Analyze(img, req.Area)
	timings.FallbackMS = time.Since(fallbackStart).Milliseconds()
	if herr != nil {
		return Outcome{
			Status: StatusFailed,
			Err:    errdefs.Failed(stderrors.Join(detErr, herr), "detection and fallback both failed"),
		}
	}

	scoreStart := time.Now()
	busy, serr := score.Compute(est.PersonCount, req.Area)
	timings.ScoreMS = time.Since(scoreStart).Milliseconds()
	if serr != nil {
		return Outcome{Status: StatusFailed, Err: serr}
	}

	signals := est.Signals
	rec.PersonCount = est.PersonCount
	rec.Method = MethodHeuristic
	rec.Confidence = detect.Stats{Min: est.Confidence, Max: est.Confidence, Avg: est.Confidence}
	rec.Busyness = busy
	rec.FallbackUsed = true
	rec.FallbackReason = detErr.Error()
	rec.Signals = &signals
	rec.DurationMS = time.Since(started).Milliseconds()
	rec.Stages = timings

	e.log.WithFields(logrus.Fields{
		"location":    req.Location,
		"persons":     rec.PersonCount,
		"score":       busy.Score,
		"level":       busy.Level,
		"duration_ms": rec.DurationMS,
	}).Info("fallback analysis complete")
	return Outcome{Status: StatusFallbackSuccess, Record: rec}
}

// runDetection fans the full-frame pass plus every tile out over the
// worker pool. It returns detections in frame coordinates, the number
// of absorbed invocation failures, and an error only when nothing
// succeeded. A failure before any success cancels the outstanding
// invocations, since a dead backend fails them all anyway.
func (e *Engine) runDetection(ctx context.Context, img image.Image, tiles []images.Tile) ([]detect.Detection, int, error) {
	invocations := make([]invocation, 0, len(tiles)+1)
	invocations = append(invocations, invocation{region: img})
	for _, tile := range tiles {
		invocations = append(invocations, invocation{
			region: images.Crop(img, tile.Rect()),
			dx:     tile.X,
			dy:     tile.Y,
		})
	}

	detectCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		collected []detect.Detection
		successes int
		failures  []error
	)
	sem := make(chan struct{}, e.cfg.GetWorkers())
	threshold := e.cfg.GetConfidence()
	timeout := e.cfg.GetInvocationTimeout()

	var wg sync.WaitGroup
	for _, inv := range invocations {
		wg.Add(1)
		go func(inv invocation) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-detectCtx.Done():
				return
			}
			defer func() { <-sem }()

			runCtx, done := context.WithTimeout(detectCtx, timeout)
			defer done()
			dets, err := e.source.Detect(runCtx, inv.region, threshold)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				if successes == 0 {
					cancel()
				}
				return
			}
			successes++
			collected = append(collected, detect.Shift(dets, inv.dx, inv.dy)...)
		}(inv)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, errdefs.Canceled(err)
	}
	if successes == 0 {
		if len(failures) == 0 {
			return nil, 0, errdefs.Unavailable(nil, "no detector invocation ran")
		}
		return nil, 0, failures[0]
	}
	if len(failures) > 0 {
		e.log.WithFields(logrus.Fields{
			"failed":    len(failures),
			"succeeded": successes,
		}).Warn("absorbed failed detector invocations")
	}
	return collected, len(failures), nil
}

func capDetections(dets []detect.Detection, limit int) []detect.Detection {
	if limit <= 0 {
		return nil
	}
	if len(dets) <= limit {
		return dets
	}
	return dets[:limit]
}
