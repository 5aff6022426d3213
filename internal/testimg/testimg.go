// Package testimg builds deterministic synthetic frames for tests. A scene
// is a flat background plus colored patches, so the pixel heuristics see
// exactly the signal a test places and nothing else.
package testimg

import (
	"image"
	"image/color"
)

// Calibrated fills. Neutral carries no skin, bright, or edge signal;
// Skin sits inside both calibrated HSV skin ranges; Bright clears the
// brightness threshold; Dark contrasts hard against Neutral.
var (
	Neutral = color.RGBA{R: 200, G: 200, B: 200, A: 255}
	Skin    = color.RGBA{R: 224, G: 172, B: 138, A: 255}
	Bright  = color.RGBA{R: 250, G: 250, B: 250, A: 255}
	Dark    = color.RGBA{R: 40, G: 44, B: 52, A: 255}
)

// Frame is a synthetic scene under construction.
type Frame struct {
	img *image.RGBA
}

// New creates a scene filled with the neutral background.
func New(width, height int) *Frame {
	return NewFilled(width, height, Neutral)
}

// NewFilled creates a scene filled with c.
func NewFilled(width, height int, c color.RGBA) *Frame {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return &Frame{img: img}
}

// Patch fills the w by h rectangle at (x, y) with c, clipping anything
// outside the frame.
func (f *Frame) Patch(x, y, w, h int, c color.RGBA) *Frame {
	bounds := f.img.Bounds()
	for yy := max(y, 0); yy < y+h && yy < bounds.Max.Y; yy++ {
		for xx := max(x, 0); xx < x+w && xx < bounds.Max.X; xx++ {
			f.img.SetRGBA(xx, yy, c)
		}
	}
	return f
}

// Person stamps a rough person-sized figure at (x, y): a skin head over a
// dark torso, feeding the skin, brightness, and edge signals at once.
func (f *Frame) Person(x, y int) *Frame {
	f.Patch(x+4, y, 8, 8, Skin)
	f.Patch(x, y+8, 16, 24, Dark)
	return f
}

// Image returns the built frame.
func (f *Frame) Image() *image.RGBA { return f.img }
