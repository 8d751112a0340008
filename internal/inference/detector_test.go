package inference

import (
	"testing"

	"github.com/adam-mcguinness/sup-linux/internal/model"
	ort "github.com/yalue/onnxruntime_go"
)

func TestParseDetectionsStandardLayout(t *testing.T) {
	// [1, 2, 5]: 2 predictions of [cx, cy, w, h, conf] in pixel space.
	data := []float32{
		50, 50, 40, 40, 0.9,
		80, 80, 30, 30, 0.2,
	}
	shape := ort.NewShape(1, 2, 5)

	boxes := parseDetections(data, shape, 100, 100)
	if len(boxes) != 2 {
		t.Fatalf("expected both boxes past the noise floor, got %d", len(boxes))
	}
}

func TestParseDetectionsTransposedLayout(t *testing.T) {
	// [1, 5, 2]: transposed, 2 predictions, channel-major.
	data := []float32{
		50, 80, // cx
		50, 80, // cy
		40, 30, // w
		40, 30, // h
		0.9, 0.2, // conf
	}
	shape := ort.NewShape(1, 5, 2)

	boxes := parseDetections(data, shape, 100, 100)
	if len(boxes) != 2 {
		t.Fatalf("expected both boxes past the noise floor, got %d", len(boxes))
	}
}

func TestParseDetectionsDropsTinyBoxes(t *testing.T) {
	data := []float32{50, 50, 2, 2, 0.99}
	shape := ort.NewShape(1, 1, 5)
	boxes := parseDetections(data, shape, 100, 100)
	if len(boxes) != 0 {
		t.Fatalf("expected tiny box to be dropped by the area gate, got %d boxes", len(boxes))
	}
}

func TestFilterByConfidenceDropsBelowThreshold(t *testing.T) {
	boxes := []model.FaceBox{
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.9},
		{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.2},
	}
	filtered := filterByConfidence(boxes, 0.5)
	if len(filtered) != 1 {
		t.Fatalf("expected 1 box above threshold, got %d", len(filtered))
	}
	if filtered[0].Confidence != 0.9 {
		t.Errorf("expected confidence 0.9, got %f", filtered[0].Confidence)
	}
}

func TestFilterByConfidenceCapsAtFive(t *testing.T) {
	var boxes []model.FaceBox
	for i := 0; i < 10; i++ {
		boxes = append(boxes, model.FaceBox{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.5 + float32(i)*0.01})
	}
	filtered := filterByConfidence(boxes, 0.1)
	if len(filtered) != maxFacesReturned {
		t.Fatalf("expected %d boxes (capped), got %d", maxFacesReturned, len(filtered))
	}
}

func TestNonMaxSuppressRemovesOverlaps(t *testing.T) {
	boxes := []model.FaceBox{
		{X1: 0, Y1: 0, X2: 40, Y2: 40, Confidence: 0.9},
		{X1: 2, Y1: 2, X2: 42, Y2: 42, Confidence: 0.8}, // heavy overlap, should be suppressed
		{X1: 100, Y1: 100, X2: 140, Y2: 140, Confidence: 0.7}, // distinct, should survive
	}
	kept := nonMaxSuppress(boxes, 0.45)
	if len(kept) != 2 {
		t.Fatalf("expected 2 surviving boxes, got %d", len(kept))
	}
}

func TestIoUIdenticalBoxesIsOne(t *testing.T) {
	a := model.FaceBox{X1: 0, Y1: 0, X2: 10, Y2: 10}
	if got := iou(a, a); got < 0.999 {
		t.Errorf("expected IoU of identical boxes to be 1, got %f", got)
	}
}

func TestGrayToCHWReplicatesChannels(t *testing.T) {
	frame := model.Frame{Width: 2, Height: 2, Gray: []byte{0, 255, 255, 0}}
	chw := grayToCHW(frame, 2, 2)
	planeSize := 4
	for i := 0; i < planeSize; i++ {
		if chw[i] != chw[planeSize+i] || chw[i] != chw[2*planeSize+i] {
			t.Fatalf("expected all 3 channels equal at index %d", i)
		}
	}
}
