package inference

import (
	"fmt"
	"sort"

	"github.com/adam-mcguinness/sup-linux/internal/apperror"
	"github.com/adam-mcguinness/sup-linux/internal/config"
	"github.com/adam-mcguinness/sup-linux/internal/model"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	minConfidenceFloor = 1e-3
	minFaceAreaPixels  = 100
	maxFacesReturned   = 5
	nmsIoUThreshold    = 0.45
)

// Detector runs a YOLO-style ONNX face detector over a grayscale frame.
type Detector struct {
	session    *ort.DynamicAdvancedSession
	inputName  string
	outputName string
	inputW     int
	inputH     int
	minScore   float32
}

// NewDetector loads the detector ONNX model described by cfg.
func NewDetector(cfg config.DetectorConfig) (*Detector, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, apperror.New(apperror.CodeModel, fmt.Errorf("inspect detector model: %w", err))
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, apperror.New(apperror.CodeModel, fmt.Errorf("detector model exposes no input/output tensors"))
	}

	opts, err := buildSessionOptions(cfg.ExecutionProvider)
	if err != nil {
		return nil, apperror.New(apperror.CodeModel, err)
	}
	defer opts.Destroy()

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, apperror.New(apperror.CodeModel, fmt.Errorf("create detector session: %w", err))
	}

	return &Detector{
		session:    session,
		inputName:  inputs[0].Name,
		outputName: outputs[0].Name,
		inputW:     cfg.InputWidth,
		inputH:     cfg.InputHeight,
		minScore:   float32(cfg.ConfidenceThreshold),
	}, nil
}

// Close releases the underlying ONNX session.
func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
}

// Detect runs the detector over frame and returns up to maxFacesReturned boxes in the
// frame's original coordinate space, confidence-filtered and NMS-deduplicated.
func (d *Detector) Detect(frame model.Frame) ([]model.FaceBox, error) {
	chw := grayToCHW(frame, d.inputW, d.inputH)

	inputShape := ort.NewShape(1, 3, int64(d.inputH), int64(d.inputW))
	inputTensor, err := ort.NewTensor(inputShape, chw)
	if err != nil {
		return nil, apperror.New(apperror.CodeModel, err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := d.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, apperror.New(apperror.CodeModel, fmt.Errorf("run detector: %w", err))
	}
	outTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, apperror.New(apperror.CodeModel, fmt.Errorf("unexpected detector output tensor type"))
	}
	defer outTensor.Destroy()

	boxes := parseDetections(outTensor.GetData(), outTensor.GetShape(), d.inputW, d.inputH)
	boxes = nonMaxSuppress(boxes, nmsIoUThreshold)
	boxes = filterByConfidence(boxes, d.minScore)

	scaleX := float32(frame.Width) / float32(d.inputW)
	scaleY := float32(frame.Height) / float32(d.inputH)
	result := make([]model.FaceBox, 0, len(boxes))
	for _, b := range boxes {
		b.X1 *= scaleX
		b.X2 *= scaleX
		b.Y1 *= scaleY
		b.Y2 *= scaleY
		result = append(result, b)
	}
	return result, nil
}

// parseDetections decodes a YOLO-style output tensor, auto-detecting whether it is laid
// out as [1, N, K] (K small) or the transposed [1, K, N]. It only drops boxes below the
// noise floor (minConfidenceFloor, minFaceAreaPixels); the operator-configured confidence
// threshold is applied after NMS by filterByConfidence.
func parseDetections(data []float32, shape ort.Shape, inputW, inputH int) []model.FaceBox {
	if len(shape) < 2 {
		return nil
	}

	var numPredictions, predictionLen int
	transposed := false
	switch {
	case len(shape) >= 3 && shape[2] < 5 && shape[1] >= 5:
		numPredictions, predictionLen, transposed = int(shape[2]), int(shape[1]), true
	case len(shape) >= 3 && shape[1] < 5 && shape[2] >= 5:
		numPredictions, predictionLen = int(shape[1]), int(shape[2])
	case len(shape) >= 3 && shape[2] > shape[1] && shape[1] <= 10:
		numPredictions, predictionLen, transposed = int(shape[2]), int(shape[1]), true
	case len(shape) >= 3:
		numPredictions, predictionLen = int(shape[1]), int(shape[2])
	default:
		numPredictions, predictionLen = int(shape[0]), int(shape[1])
	}
	if predictionLen < 5 {
		return nil
	}

	var boxes []model.FaceBox
	for i := 0; i < numPredictions; i++ {
		var cx, cy, w, h, conf float32
		if transposed {
			cx = data[i]
			cy = data[numPredictions+i]
			w = data[2*numPredictions+i]
			h = data[3*numPredictions+i]
			conf = data[4*numPredictions+i]
		} else {
			base := i * predictionLen
			cx, cy, w, h, conf = data[base], data[base+1], data[base+2], data[base+3], data[base+4]
		}

		scale := float32(1)
		if cx <= 1.0 && cy <= 1.0 && w <= 1.0 && h <= 1.0 {
			scale = float32(inputW)
		}
		cx, cy, w, h = cx*scale, cy*scale, w*scale, h*scale

		if conf <= minConfidenceFloor {
			continue
		}

		x1 := clampF(cx-w/2, 0, float32(inputW))
		y1 := clampF(cy-h/2, 0, float32(inputH))
		x2 := clampF(cx+w/2, 0, float32(inputW))
		y2 := clampF(cy+h/2, 0, float32(inputH))
		if x2 <= x1 || y2 <= y1 || (x2-x1)*(y2-y1) < minFaceAreaPixels {
			continue
		}

		boxes = append(boxes, model.FaceBox{X1: x1, Y1: y1, X2: x2, Y2: y2, Confidence: conf})
	}

	return boxes
}

// filterByConfidence drops boxes below the operator-configured threshold, then sorts by
// descending confidence and caps the result at maxFacesReturned. Runs after NMS so a
// near-duplicate box is never allowed to bump a kept box out of the cap.
func filterByConfidence(boxes []model.FaceBox, minScore float32) []model.FaceBox {
	var filtered []model.FaceBox
	for _, b := range boxes {
		if b.Confidence >= minScore {
			filtered = append(filtered, b)
		}
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Confidence > filtered[j].Confidence })
	if len(filtered) > maxFacesReturned {
		filtered = filtered[:maxFacesReturned]
	}
	return filtered
}

func nonMaxSuppress(boxes []model.FaceBox, iouThreshold float32) []model.FaceBox {
	if len(boxes) == 0 {
		return boxes
	}
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].Confidence > boxes[j].Confidence })

	keep := make([]model.FaceBox, 0, len(boxes))
	suppressed := make([]bool, len(boxes))
	for i := range boxes {
		if suppressed[i] {
			continue
		}
		keep = append(keep, boxes[i])
		for j := i + 1; j < len(boxes); j++ {
			if suppressed[j] {
				continue
			}
			if iou(boxes[i], boxes[j]) >= iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return keep
}

func iou(a, b model.FaceBox) float32 {
	x1 := maxF(a.X1, b.X1)
	y1 := maxF(a.Y1, b.Y1)
	x2 := minF(a.X2, b.X2)
	y2 := minF(a.Y2, b.Y2)

	intersection := maxF(0, x2-x1) * maxF(0, y2-y1)
	union := a.Area() + b.Area() - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxF(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

// grayToCHW resizes frame's grayscale plane to targetW x targetH (nearest-neighbor) and
// replicates it across 3 channels, normalized to [0, 1], matching the detector's expected
// 3-channel input despite a single-channel IR source.
func grayToCHW(frame model.Frame, targetW, targetH int) []float32 {
	out := make([]float32, 3*targetW*targetH)
	planeSize := targetW * targetH

	for y := 0; y < targetH; y++ {
		srcY := y * frame.Height / targetH
		for x := 0; x < targetW; x++ {
			srcX := x * frame.Width / targetW
			v := float32(frame.Gray[srcY*frame.Width+srcX]) / 255.0
			idx := y*targetW + x
			out[idx] = v
			out[planeSize+idx] = v
			out[2*planeSize+idx] = v
		}
	}
	return out
}
