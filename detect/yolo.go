package detect

import (
	"github.com/beachwatch/go-crowd/images"
)

// YOLOAnchors returns the anchor grid size for a square model input:
// one cell per stride-8, stride-16, and stride-32 position. The
// standard 640 input yields 8400.
func YOLOAnchors(inputSize int) int {
	s8 := inputSize / 8
	s16 := inputSize / 16
	s32 := inputSize / 32
	return s8*s8 + s16*s16 + s32*s32
}

// YOLOLayout describes one flat [1, 4+classes, anchors] output buffer
// and how to map its boxes back onto the analyzed region.
type YOLOLayout struct {
	Anchors      int
	PersonIndex  int
	InputSize    int
	RegionWidth  int
	RegionHeight int
	Threshold    float32
	NMSIoU       float32
}

// DecodeYOLO reads a raw YOLO-family output buffer. Row r of anchor i
// sits at raw[l.Anchors*r+i]: rows 0..3 are xc, yc, w, h in
// model-input space, row 4+c is the score for class c. Only the person
// row is consulted; boxes are scaled back to region pixels, clamped,
// and deduplicated with NMS.
func DecodeYOLO(raw []float32, l YOLOLayout) []Detection {
	sx := float32(l.RegionWidth) / float32(l.InputSize)
	sy := float32(l.RegionHeight) / float32(l.InputSize)
	scoreRow := l.Anchors * (4 + l.PersonIndex)

	dets := make([]Detection, 0, 16)
	for i := 0; i < l.Anchors; i++ {
		score := raw[scoreRow+i]
		if score < l.Threshold {
			continue
		}
		xc := raw[i]
		yc := raw[l.Anchors+i]
		w := raw[2*l.Anchors+i]
		h := raw[3*l.Anchors+i]

		box := images.Rect{
			X1: int((xc - w/2) * sx),
			Y1: int((yc - h/2) * sy),
			X2: int((xc + w/2) * sx),
			Y2: int((yc + h/2) * sy),
		}.Clamp(l.RegionWidth, l.RegionHeight)
		if box.Empty() {
			continue
		}
		dets = append(dets, Detection{Box: box, Score: score, Class: ClassPerson})
	}
	return NMS(dets, l.NMSIoU)
}
