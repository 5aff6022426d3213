package images

import (
	"image"
	"image/color"
	"image/draw"
)

// Annotation is one box to burn into a debug frame.
type Annotation struct {
	Box   Rect
	Score float32
}

// Confidence colors follow the band scheme used in review tooling: green
// for high, yellow for medium, red for low.
var (
	annotationHigh   = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	annotationMedium = color.RGBA{R: 230, G: 200, B: 0, A: 255}
	annotationLow    = color.RGBA{R: 220, G: 60, B: 30, A: 255}
)

// DrawAnnotations copies the frame and strokes each annotation box onto
// it. Intended for visual review of a run, not for the analysis path.
func DrawAnnotations(img image.Image, anns []Annotation) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Src)

	for _, ann := range anns {
		strokeRect(out, ann.Box.Clamp(bounds.Dx(), bounds.Dy()), colorFor(ann.Score), 2)
	}
	return out
}

func colorFor(score float32) color.RGBA {
	switch {
	case score >= 0.7:
		return annotationHigh
	case score >= 0.5:
		return annotationMedium
	default:
		return annotationLow
	}
}

func strokeRect(dst *image.RGBA, r Rect, c color.RGBA, thickness int) {
	if r.Empty() {
		return
	}
	for t := 0; t < thickness; t++ {
		x1, y1 := r.X1+t, r.Y1+t
		x2, y2 := r.X2-1-t, r.Y2-1-t
		if x2 <= x1 || y2 <= y1 {
			return
		}
		for x := x1; x <= x2; x++ {
			dst.SetRGBA(x, y1, c)
			dst.SetRGBA(x, y2, c)
		}
		for y := y1; y <= y2; y++ {
			dst.SetRGBA(x1, y, c)
			dst.SetRGBA(x2, y, c)
		}
	}
}
