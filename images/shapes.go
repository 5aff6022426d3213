// Package images provides the geometry, tiling, and pixel utilities the
// analysis pipeline is built on: rectangles with IoU overlap math, the
// tile planner for sliced detection, a codec for the formats webcams
// actually emit, and parallel pixel scan helpers.
package images

import "image"

// Rect is an axis-aligned box in pixel coordinates. X1,Y1 is the top-left
// corner and X2,Y2 the exclusive bottom-right corner, matching the slicing
// convention of image.Rectangle.
type Rect struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// NewRect builds a Rect from a corner and dimensions.
func NewRect(x, y, width, height int) Rect {
	return Rect{X1: x, Y1: y, X2: x + width, Y2: y + height}
}

// Width returns the horizontal extent of the rectangle.
func (r Rect) Width() int { return r.X2 - r.X1 }

// Height returns the vertical extent of the rectangle.
func (r Rect) Height() int { return r.Y2 - r.Y1 }

// Area returns the number of pixels covered, zero for degenerate boxes.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width() * r.Height()
}

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool { return r.X2 <= r.X1 || r.Y2 <= r.Y1 }

// Add translates the rectangle by (dx, dy). Detections made inside a tile
// are shifted back into full-frame coordinates with the tile's origin.
func (r Rect) Add(dx, dy int) Rect {
	return Rect{X1: r.X1 + dx, Y1: r.Y1 + dy, X2: r.X2 + dx, Y2: r.Y2 + dy}
}

// Clamp restricts the rectangle to the bounds of a width x height image.
func (r Rect) Clamp(width, height int) Rect {
	return Rect{
		X1: min(max(r.X1, 0), width),
		Y1: min(max(r.Y1, 0), height),
		X2: min(max(r.X2, 0), width),
		Y2: min(max(r.Y2, 0), height),
	}
}

// ToImageRect converts to the standard library representation.
func (r Rect) ToImageRect() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// FromImageRect converts from the standard library representation.
func FromImageRect(r image.Rectangle) Rect {
	return Rect{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Intersect returns the overlapping region of two rectangles. The result
// is Empty when they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	out := Rect{
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
		X2: min(r.X2, o.X2),
		Y2: min(r.Y2, o.Y2),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

// IoU computes Intersection over Union between two rectangles, the overlap
// measure duplicate suppression is keyed on. Result is in [0, 1]: 0 for
// disjoint or degenerate boxes, 1 for identical ones.
func IoU(r, o Rect) float32 {
	inter := r.Intersect(o).Area()
	if inter == 0 {
		return 0
	}
	union := r.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return float32(inter) / float32(union)
}
