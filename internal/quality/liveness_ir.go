package quality

import (
	"math"

	"github.com/adam-mcguinness/sup-linux/internal/model"
)

// movementThreshold is the minimum average frame-to-frame embedding drift expected from a
// live subject; a perfectly static embedding sequence is more likely a printed photo than a
// person holding still.
const movementThreshold = 0.02

// FramePresenceScore is the one liveness signal an IR capture pipeline gets for free:
// frame-to-frame embedding drift across a short burst. It is a standalone score: Score does
// not include it in Overall, no engine calls it, and it is not a pass/fail liveness gate.
func FramePresenceScore(embeddings []model.Embedding) float32 {
	if len(embeddings) < 3 {
		return 0.5
	}

	var total float32
	for i := 1; i < len(embeddings); i++ {
		total += embeddingDistance(embeddings[i-1], embeddings[i])
	}
	avg := total / float32(len(embeddings)-1)

	switch {
	case avg < movementThreshold:
		return 0.3 // suspiciously static, likely a still image
	case avg > 0.6:
		return 0.3 // too much drift to be the same face settling into frame
	default:
		return 1.0
	}
}

func embeddingDistance(a, b model.Embedding) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		d := a[i] - b[i]
		sum += d * d
	}
	return float32(math.Sqrt(float64(sum)))
}
