package profiler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAggregates(t *testing.T) {
	tr := New()
	tr.Record("analyze", 10*time.Millisecond)
	tr.Record("analyze", 30*time.Millisecond)
	tr.Record("analyze", 20*time.Millisecond)

	ops := tr.Operations()
	require.Contains(t, ops, "analyze")

	got := ops["analyze"]
	assert.Equal(t, int64(3), got.Count)
	assert.InDelta(t, 20.0, got.AvgMS, 0.01)
	assert.InDelta(t, 10.0, got.MinMS, 0.01)
	assert.InDelta(t, 30.0, got.MaxMS, 0.01)
}

func TestStartOperationMeasuresElapsed(t *testing.T) {
	tr := New()

	stop := tr.StartOperation("sleep")
	time.Sleep(15 * time.Millisecond)
	stop()

	ops := tr.Operations()
	require.Contains(t, ops, "sleep")
	assert.Equal(t, int64(1), ops["sleep"].Count)
	assert.GreaterOrEqual(t, ops["sleep"].MinMS, 10.0)
}

func TestOperationsEmptyTracker(t *testing.T) {
	assert.Empty(t, New().Operations())
}

func TestRuntimeGauges(t *testing.T) {
	tr := New()
	rt := tr.Runtime()

	assert.GreaterOrEqual(t, rt.UptimeSeconds, 0.0)
	assert.Positive(t, rt.Goroutines)
	assert.Positive(t, rt.HeapAllocBytes)
}

func TestRecordConcurrent(t *testing.T) {
	tr := New()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Record("op", time.Millisecond)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(800), tr.Operations()["op"].Count)
}
