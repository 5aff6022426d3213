package heuristic

import (
	"image"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/beachwatch/go-crowd/images"
)

// Signals are the per-pixel evidence fractions the estimate is built
// from, each in [0, 1] over the analyzed frame.
type Signals struct {
	// Skin is the fraction of pixels inside the calibrated skin-tone
	// HSV ranges: people with exposed skin.
	Skin float64 `json:"skin_fraction"`
	// Bright is the fraction of saturated, well-lit pixels: swimwear,
	// towels, umbrellas, and other gear people bring.
	Bright float64 `json:"bright_fraction"`
	// Edge is the fraction of pixels on a strong luminance gradient:
	// texture people and their belongings add to an open space.
	Edge float64 `json:"edge_fraction"`
	// Activity is the weighted combination the count estimate uses.
	Activity float64 `json:"activity"`
	// Strength is the raw signal percentage driving the synthetic
	// confidence: the mean of skin and bright coverage, in percent.
	Strength float64 `json:"strength"`
}

// hsv converts one pixel to OpenCV-scale HSV: hue in [0, 180), saturation
// and value in [0, 255]. The calibrated thresholds below were measured on
// that scale.
func hsv(r, g, b uint8) (h, s, v float32) {
	rf, gf, bf := float32(r), float32(g), float32(b)
	v = math32.Max(rf, math32.Max(gf, bf))
	minC := math32.Min(rf, math32.Min(gf, bf))
	delta := v - minC

	if v > 0 {
		s = delta / v * 255
	}
	if delta > 0 {
		switch v {
		case rf:
			h = 30 * (gf - bf) / delta
		case gf:
			h = 60 + 30*(bf-rf)/delta
		default:
			h = 120 + 30*(rf-gf)/delta
		}
		if h < 0 {
			h += 180
		}
	}
	return h, s, v
}

// skinTone reports whether an HSV pixel falls in either calibrated
// skin-tone range. Two ranges cover the spread of lighting conditions
// webcams see over a day.
func skinTone(h, s, v float32) bool {
	if h <= 20 && s >= 20 && v >= 70 {
		return true
	}
	return h <= 25 && s >= 10 && s <= 150 && v >= 60
}

// brightGear reports whether an HSV pixel is saturated and lit enough to
// be beach gear rather than sand or water glare.
func brightGear(s, v float32) bool {
	return s >= 50 && v >= 100
}

// scanMasks builds the skin and bright mask planes in one pass over the
// frame, fanning rows out across CPU cores.
func scanMasks(img image.Image) (skin, bright []float32, width, height int) {
	bounds := img.Bounds()
	width = bounds.Dx()
	height = bounds.Dy()

	skin = make([]float32, width*height)
	bright = make([]float32, width*height)

	images.Parallel(height, func(partStart, partEnd int) {
		for y := partStart; y < partEnd; y++ {
			srcY := bounds.Min.Y + y
			offset := y * width
			for x := 0; x < width; x++ {
				r, g, b, _ := img.At(bounds.Min.X+x, srcY).RGBA()
				h, s, v := hsv(uint8(r>>8), uint8(g>>8), uint8(b>>8))
				if skinTone(h, s, v) {
					skin[offset+x] = 1
				}
				if brightGear(s, v) {
					bright[offset+x] = 1
				}
			}
		}
	})
	return skin, bright, width, height
}

// edgeMask marks pixels whose Sobel gradient magnitude exceeds threshold.
// Border pixels without a full 3x3 window are left unmarked.
func edgeMask(gray []float32, width, height int, threshold float32) []float32 {
	mask := make([]float32, width*height)
	if width < 3 || height < 3 {
		return mask
	}

	images.Parallel(height-2, func(partStart, partEnd int) {
		for row := partStart; row < partEnd; row++ {
			y := row + 1
			for x := 1; x < width-1; x++ {
				i := y*width + x
				gx := -gray[i-width-1] + gray[i-width+1] +
					-2*gray[i-1] + 2*gray[i+1] +
					-gray[i+width-1] + gray[i+width+1]
				gy := -gray[i-width-1] - 2*gray[i-width] - gray[i-width+1] +
					gray[i+width-1] + 2*gray[i+width] + gray[i+width+1]

				magnitude := math32.Sqrt(gx*gx + gy*gy)
				if magnitude > 255 {
					magnitude = 255
				}
				if magnitude > threshold {
					mask[i] = 1
				}
			}
		}
	})
	return mask
}

// coverage reduces a mask plane to its covered fraction.
func coverage(mask []float32, width, height int) (float64, error) {
	t := tensor.New(tensor.WithShape(height, width), tensor.WithBacking(mask))
	sum, err := t.Sum()
	if err != nil {
		return 0, errors.Wrap(err, "summing mask plane")
	}
	switch v := sum.Data().(type) {
	case float32:
		return float64(v) / float64(len(mask)), nil
	case []float32:
		if len(v) == 1 {
			return float64(v[0]) / float64(len(mask)), nil
		}
	}
	return 0, errors.Errorf("mask sum has unexpected shape %v", sum.Shape())
}
