// Package profiler aggregates operation timings and process gauges for the
// stats endpoint. It keeps running aggregates only; reading a snapshot is
// cheap enough to do on every request.
package profiler

import (
	"runtime"
	"sync"
	"time"
)

// OpSnapshot summarizes every completed run of one named operation.
type OpSnapshot struct {
	Count int64   `json:"count"`
	AvgMS float64 `json:"avg_ms"`
	MinMS float64 `json:"min_ms"`
	MaxMS float64 `json:"max_ms"`
}

// RuntimeSnapshot captures process gauges at read time.
type RuntimeSnapshot struct {
	UptimeSeconds  float64 `json:"uptime_seconds"`
	Goroutines     int     `json:"goroutines"`
	HeapAllocBytes uint64  `json:"heap_alloc_bytes"`
	GCCycles       uint32  `json:"gc_cycles"`
}

type opStats struct {
	count int64
	total time.Duration
	min   time.Duration
	max   time.Duration
}

// Tracker records operation durations.
type Tracker struct {
	mu      sync.Mutex
	started time.Time
	ops     map[string]*opStats
}

// New creates a Tracker with its uptime clock started.
func New() *Tracker {
	return &Tracker{started: time.Now(), ops: make(map[string]*opStats)}
}

// StartOperation begins timing one run of name. Call the returned func
// when the run completes.
func (t *Tracker) StartOperation(name string) func() {
	start := time.Now()
	return func() { t.Record(name, time.Since(start)) }
}

// Record folds one completed run into the aggregate for name.
func (t *Tracker) Record(name string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.ops[name]
	if !ok {
		st = &opStats{min: d, max: d}
		t.ops[name] = st
	}
	st.count++
	st.total += d
	if d < st.min {
		st.min = d
	}
	if d > st.max {
		st.max = d
	}
}

// Operations snapshots every tracked operation.
func (t *Tracker) Operations() map[string]OpSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]OpSnapshot, len(t.ops))
	for name, st := range t.ops {
		out[name] = OpSnapshot{
			Count: st.count,
			AvgMS: ms(st.total / time.Duration(st.count)),
			MinMS: ms(st.min),
			MaxMS: ms(st.max),
		}
	}
	return out
}

// Runtime reports process gauges.
func (t *Tracker) Runtime() RuntimeSnapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return RuntimeSnapshot{
		UptimeSeconds:  time.Since(t.started).Seconds(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: mem.HeapAlloc,
		GCCycles:       mem.NumGC,
	}
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
