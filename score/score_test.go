package score

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beachwatch/go-crowd/errdefs"
)

func TestComputeLevels(t *testing.T) {
	area := NewTargetArea(5000)

	tests := []struct {
		name        string
		count       int
		wantScore   int
		wantLevel   Level
		wantDensity float64
	}{
		{"nobody", 0, 0, LevelEmpty, 0},
		{"a handful", 10, 10, LevelQuiet, 0.2},
		{"quiet boundary", 25, 25, LevelQuiet, 0.5},
		{"moderate crowd", 100, 50, LevelModerate, 2.0},
		{"busy afternoon", 150, 63, LevelBusy, 3.0},
		{"busy boundary", 200, 75, LevelBusy, 4.0},
		{"packed", 300, 88, LevelVeryBusy, 6.0},
		{"saturated", 400, 100, LevelVeryBusy, 8.0},
		{"beyond saturation", 1000, 100, LevelVeryBusy, 20.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Compute(tt.count, area)
			require.NoError(t, err)
			assert.Equal(t, tt.wantScore, got.Score)
			assert.Equal(t, tt.wantLevel, got.Level)
			assert.InDelta(t, tt.wantDensity, got.Density, 1e-9)
		})
	}
}

func TestComputeScoreRange(t *testing.T) {
	area := NewTargetArea(1000)
	for count := 0; count <= 500; count++ {
		got, err := Compute(count, area)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.Score, 0, "count %d", count)
		assert.LessOrEqual(t, got.Score, 100, "count %d", count)
	}
}

func TestComputeMonotoneInDensity(t *testing.T) {
	area := NewTargetArea(2500)
	prev := -1
	for count := 0; count <= 400; count++ {
		got, err := Compute(count, area)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.Score, prev, "score regressed at count %d", count)
		prev = got.Score
	}
}

func TestComputeDependsOnlyOnDensity(t *testing.T) {
	// 20 people on 2000 sqm and 100 people on 10000 sqm are both one
	// person per 100 sqm and must score identically.
	small, err := Compute(20, NewTargetArea(2000))
	require.NoError(t, err)
	large, err := Compute(100, NewTargetArea(10000))
	require.NoError(t, err)

	assert.Equal(t, small.Score, large.Score)
	assert.Equal(t, small.Level, large.Level)
	assert.InDelta(t, small.Density, large.Density, 1e-9)
}

func TestComputeEmptyOnlyAtZero(t *testing.T) {
	got, err := Compute(0, NewTargetArea(5000))
	require.NoError(t, err)
	assert.Equal(t, Busyness{Density: 0, Score: 0, Level: LevelEmpty}, got)

	got, err = Compute(1, NewTargetArea(100000))
	require.NoError(t, err)
	assert.Equal(t, LevelQuiet, got.Level, "any person at all leaves empty")
}

func TestComputeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		count int
		area  TargetArea
		check func(error) bool
	}{
		{"zero area", 10, NewTargetArea(0), errdefs.IsConfiguration},
		{"negative area", 10, NewTargetArea(-50), errdefs.IsConfiguration},
		{"negative count", -1, NewTargetArea(5000), errdefs.IsInvalidArgument},
		{
			"descending thresholds", 10,
			TargetArea{AreaSqm: 5000, Thresholds: Thresholds{Quiet: 2, Moderate: 1, Busy: 4, VeryBusy: 8}},
			errdefs.IsConfiguration,
		},
		{
			"zero quiet threshold", 10,
			TargetArea{AreaSqm: 5000, Thresholds: Thresholds{Quiet: 0, Moderate: 2, Busy: 4, VeryBusy: 8}},
			errdefs.IsConfiguration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compute(tt.count, tt.area)
			require.Error(t, err)
			assert.True(t, tt.check(err), "got %v", err)
		})
	}
}

func TestComputeCustomThresholds(t *testing.T) {
	// A small plaza saturates at much lower densities than a beach.
	area := TargetArea{
		AreaSqm:    500,
		Thresholds: Thresholds{Quiet: 0.2, Moderate: 1.0, Busy: 2.0, VeryBusy: 3.0},
	}

	got, err := Compute(15, area) // density 3.0
	require.NoError(t, err)
	assert.Equal(t, 100, got.Score)
	assert.Equal(t, LevelVeryBusy, got.Level)
}

func BenchmarkCompute(b *testing.B) {
	area := NewTargetArea(5000)
	for i := 0; i < b.N; i++ {
		if _, err := Compute(i%500, area); err != nil {
			b.Fatal(err)
		}
	}
}

func ExampleCompute() {
	busyness, _ := Compute(100, NewTargetArea(5000))
	fmt.Printf("%d %s %.1f\n", busyness.Score, busyness.Level, busyness.Density)
	// Output: 50 moderate 2.0
}
