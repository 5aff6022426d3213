package images

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beachwatch/go-crowd/errdefs"
)

func TestPlanTilesCoversEveryPixel(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
	}{
		{"full hd", 1920, 1080},
		{"4k", 3840, 2160},
		{"photo", 4000, 3000},
		{"smaller than one tile", 600, 400},
		{"exactly one tile", 640, 640},
		{"one pixel past a tile", 641, 641},
		{"narrow strip", 5000, 100},
		{"tall strip", 100, 5000},
	}

	cfg := DefaultTilingConfig()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tiles, err := PlanTiles(tt.width, tt.height, cfg)
			require.NoError(t, err)
			require.NotEmpty(t, tiles)

			covered := make([]bool, tt.width*tt.height)
			for _, tile := range tiles {
				assert.GreaterOrEqual(t, tile.X, 0)
				assert.GreaterOrEqual(t, tile.Y, 0)
				assert.LessOrEqual(t, tile.X+tile.Width, tt.width)
				assert.LessOrEqual(t, tile.Y+tile.Height, tt.height)
				for y := tile.Y; y < tile.Y+tile.Height; y++ {
					for x := tile.X; x < tile.X+tile.Width; x++ {
						covered[y*tt.width+x] = true
					}
				}
			}
			for i, ok := range covered {
				if !ok {
					t.Fatalf("pixel (%d,%d) not covered by any tile", i%tt.width, i/tt.width)
				}
			}
		})
	}
}

func TestPlanTilesKeepsFullTileSizeAtEdges(t *testing.T) {
	tiles, err := PlanTiles(1920, 1080, DefaultTilingConfig())
	require.NoError(t, err)

	for _, tile := range tiles {
		assert.Equal(t, 640, tile.Width, "tile at (%d,%d)", tile.X, tile.Y)
		assert.Equal(t, 640, tile.Height, "tile at (%d,%d)", tile.X, tile.Y)
	}
}

func TestPlanTilesClipsWhenImageSmallerThanTile(t *testing.T) {
	tiles, err := PlanTiles(500, 300, DefaultTilingConfig())
	require.NoError(t, err)
	require.Len(t, tiles, 1)

	assert.Equal(t, Tile{X: 0, Y: 0, Width: 500, Height: 300}, tiles[0])
}

func TestPlanTilesIsDeterministic(t *testing.T) {
	first, err := PlanTiles(2560, 1440, DefaultTilingConfig())
	require.NoError(t, err)
	second, err := PlanTiles(2560, 1440, DefaultTilingConfig())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPlanTilesStride(t *testing.T) {
	// 25% overlap on 640 tiles advances 480 pixels per step.
	tiles, err := PlanTiles(1760, 640, DefaultTilingConfig())
	require.NoError(t, err)

	xs := make([]int, 0, len(tiles))
	for _, tile := range tiles {
		xs = append(xs, tile.X)
	}
	assert.Equal(t, []int{0, 480, 960, 1120}, xs)
}

func TestPlanTilesRejectsBadInput(t *testing.T) {
	tests := []struct {
		name   string
		width  int
		height int
		cfg    TilingConfig
	}{
		{"zero width", 0, 1080, DefaultTilingConfig()},
		{"negative height", 1920, -1, DefaultTilingConfig()},
		{"zero tile size", 1920, 1080, TilingConfig{TileSize: 0, Overlap: 0.25}},
		{"negative overlap", 1920, 1080, TilingConfig{TileSize: 640, Overlap: -0.1}},
		{"overlap of one", 1920, 1080, TilingConfig{TileSize: 640, Overlap: 1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanTiles(tt.width, tt.height, tt.cfg)
			require.Error(t, err)
			assert.True(t, errdefs.IsConfiguration(err))
		})
	}
}

func BenchmarkPlanTiles4K(b *testing.B) {
	cfg := DefaultTilingConfig()
	for i := 0; i < b.N; i++ {
		if _, err := PlanTiles(3840, 2160, cfg); err != nil {
			b.Fatal(err)
		}
	}
}
