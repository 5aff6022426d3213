package images

import (
	"github.com/beachwatch/go-crowd/errdefs"
)

// TilingConfig controls how a large still is split for detection. Small
// people near the horizon vanish when a full frame is squeezed into a
// detector's input resolution; overlapping tiles keep them at usable scale.
type TilingConfig struct {
	// TileSize is the square tile edge in pixels. Matches the detector
	// input resolution so tiles are inferred without rescaling.
	TileSize int `json:"tile_size"`
	// Overlap is the fraction of a tile shared with its neighbor, in
	// [0, 1). People straddling a tile seam appear whole in at least one
	// tile; the merger removes the resulting duplicates.
	Overlap float64 `json:"overlap"`
}

// DefaultTilingConfig returns the calibrated production tiling: 640 pixel
// tiles with 25% overlap.
func DefaultTilingConfig() TilingConfig {
	return TilingConfig{TileSize: 640, Overlap: 0.25}
}

// Validate checks the configuration, returning a configuration error for
// values the planner cannot work with.
func (c TilingConfig) Validate() error {
	if c.TileSize <= 0 {
		return errdefs.Configuration("tile size %d must be positive", c.TileSize)
	}
	if c.Overlap < 0 || c.Overlap >= 1 {
		return errdefs.Configuration("tile overlap %.3f must be in [0, 1)", c.Overlap)
	}
	return nil
}

// Tile is one planned detection region within the source image.
type Tile struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect returns the tile's region in source image coordinates.
func (t Tile) Rect() Rect {
	return NewRect(t.X, t.Y, t.Width, t.Height)
}

// PlanTiles computes the tile grid covering a width x height image. The
// plan is deterministic and performs no I/O.
//
// The grid walks in strides of TileSize*(1-Overlap). A tile that would
// run past the right or bottom edge is shifted back so it ends exactly on
// the edge and keeps its full size; only an image smaller than a tile in
// a dimension produces a clipped tile in that dimension. Every pixel is
// covered by at least one tile.
//
// Non-positive image dimensions or an invalid config return a
// configuration error.
func PlanTiles(width, height int, cfg TilingConfig) ([]Tile, error) {
	if width <= 0 || height <= 0 {
		return nil, errdefs.Configuration("image dimensions %dx%d must be positive", width, height)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	stride := int(float64(cfg.TileSize) * (1 - cfg.Overlap))
	if stride < 1 {
		stride = 1
	}

	var tiles []Tile
	for y := 0; ; y += stride {
		yEnd := min(y+cfg.TileSize, height)
		yStart := max(0, yEnd-cfg.TileSize)

		for x := 0; ; x += stride {
			xEnd := min(x+cfg.TileSize, width)
			xStart := max(0, xEnd-cfg.TileSize)

			tiles = append(tiles, Tile{
				X:      xStart,
				Y:      yStart,
				Width:  xEnd - xStart,
				Height: yEnd - yStart,
			})

			if xEnd >= width {
				break
			}
		}
		if yEnd >= height {
			break
		}
	}
	return tiles, nil
}
