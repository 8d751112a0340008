// Package quality scores per-frame detections and per-enrollment embedding sets. The
// weights and thresholds here are fixed protocol constants, not tunables.
package quality

import (
	"math"

	"github.com/adam-mcguinness/sup-linux/internal/model"
)

// Metrics is the per-frame quality assessment of one detected face.
type Metrics struct {
	DetectionConfidence float32
	FaceSizeRatio       float32
	CenteringScore      float32
	BrightnessScore     float32
	ContrastScore       float32
	Overall             float32
}

// Score computes Metrics for a face detected in frame, per §4.3.
func Score(frame model.Frame, face model.FaceBox) Metrics {
	imgWidth := float32(frame.Width)
	imgHeight := float32(frame.Height)

	faceArea := face.Area()
	imageArea := imgWidth * imgHeight
	sizeRatio := clip01(faceArea / imageArea)

	centerX := (face.X1 + face.X2) / 2
	centerY := (face.Y1 + face.Y2) / 2
	imgCenterX := imgWidth / 2
	imgCenterY := imgHeight / 2

	xOffset := minF(absF((centerX-imgCenterX)/imgCenterX), 1)
	yOffset := minF(absF((centerY-imgCenterY)/imgCenterY), 1)
	centering := clip01(1 - (xOffset+yOffset)/2)

	brightness, contrast := brightnessContrast(frame, face)

	overall := face.Confidence*0.30 + sizeRatio*0.20 + centering*0.20 + brightness*0.15 + contrast*0.15

	return Metrics{
		DetectionConfidence: face.Confidence,
		FaceSizeRatio:       sizeRatio,
		CenteringScore:      centering,
		BrightnessScore:     brightness,
		ContrastScore:       contrast,
		Overall:             overall,
	}
}

// MeetsMinimum reports whether m's overall score is acceptable for enrollment/authentication.
func (m Metrics) MeetsMinimum(minQuality float32) bool {
	return m.Overall >= minQuality
}

func brightnessContrast(frame model.Frame, face model.FaceBox) (float32, float32) {
	x1 := clampInt(int(face.X1), 0, frame.Width)
	y1 := clampInt(int(face.Y1), 0, frame.Height)
	x2 := clampInt(int(face.X2), 0, frame.Width)
	y2 := clampInt(int(face.Y2), 0, frame.Height)

	if x2 <= x1 || y2 <= y1 {
		return 0.5, 0.5
	}

	var sum, sumSq uint64
	var count uint32
	for y := y1; y < y2; y++ {
		row := y * frame.Width
		for x := x1; x < x2; x++ {
			v := uint64(frame.Gray[row+x])
			sum += v
			sumSq += v * v
			count++
		}
	}
	if count == 0 {
		return 0.5, 0.5
	}

	mean := float32(sum) / float32(count)
	variance := float32(sumSq)/float32(count) - mean*mean
	if variance < 0 {
		variance = 0
	}
	stdDev := float32(math.Sqrt(float64(variance)))

	brightness := 1 - minF(absF(mean-127.5)/127.5, 1)
	contrast := minF(stdDev/64, 1)
	return brightness, contrast
}

// Consistency scores how "same-person-but-varied" an enrollment embedding set is, per §4.3.
func Consistency(embeddings []model.Embedding) float32 {
	if len(embeddings) < 2 {
		return 0.8
	}

	var similarities []float32
	for i := 0; i < len(embeddings); i++ {
		for j := i + 1; j < len(embeddings); j++ {
			similarities = append(similarities, model.CosineSimilarity(embeddings[i], embeddings[j]))
		}
	}
	if len(similarities) == 0 {
		return 0.8
	}

	var sum float32
	for _, s := range similarities {
		sum += s
	}
	mean := sum / float32(len(similarities))

	var sqDiff float32
	for _, s := range similarities {
		d := s - mean
		sqDiff += d * d
	}
	variance := sqDiff / float32(len(similarities))

	const idealSimilarity = 0.82
	const idealVariance = 0.005

	similarityScore := 1 - absF(mean-idealSimilarity)*2

	var varianceScore float32
	switch {
	case variance < 0.001:
		varianceScore = 0.7
	case variance > 0.02:
		varianceScore = 0.7
	default:
		varianceScore = 1 - absF(variance-idealVariance)*10
	}

	combined := similarityScore*0.7 + varianceScore*0.3
	return clip01(combined)
}

func clip01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func absF(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
