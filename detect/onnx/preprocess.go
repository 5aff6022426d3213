package onnx

import (
	"image"

	"github.com/nfnt/resize"

	"github.com/beachwatch/go-crowd/errdefs"
)

// prepareInput resizes the region to the model edge and writes it into
// the session's input tensor as planar CHW float32 scaled to [0, 1].
func prepareInput(region image.Image, dst interface{ GetData() []float32 }, size int) error {
	data := dst.GetData()
	plane := size * size
	if len(data) < 3*plane {
		return errdefs.Unavailable(nil, "input tensor holds %d values, want %d", len(data), 3*plane)
	}
	red := data[:plane]
	green := data[plane : 2*plane]
	blue := data[2*plane : 3*plane]

	resized := resize.Resize(uint(size), uint(size), region, resize.Lanczos3)
	origin := resized.Bounds().Min
	i := 0
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(origin.X+x, origin.Y+y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}
