package enrollengine

import (
	"fmt"
	"strings"
)

// buildReport renders the terminal enrollment/enhancement summary as a plain-text ASCII
// block: per-capture quality bars, an average-quality rating, and a consistency rating.
func buildReport(username string, captured, total uint32, qualities []float32, consistency float32, success bool) string {
	var lines []string

	lines = append(lines, "==================================================")
	lines = append(lines, "          ENROLLMENT COMPLETE - REPORT")
	lines = append(lines, "==================================================")
	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("User: %s", username))
	if success {
		lines = append(lines, fmt.Sprintf("Status: SUCCESS (%d/%d captures)", captured, total))
	} else {
		lines = append(lines, fmt.Sprintf("Status: FAILED (%d/%d captures)", captured, total))
	}
	lines = append(lines, "")

	if len(qualities) > 0 {
		lines = append(lines, "Quality Scores:")
		var sum float32
		for i, q := range qualities {
			pct := int(q * 100)
			barLen := pct * 20 / 100
			bar := strings.Repeat("#", barLen) + strings.Repeat("-", 20-barLen)
			lines = append(lines, fmt.Sprintf("  Capture %d: [%s] %d%%", i+1, bar, pct))
			sum += q
		}
		lines = append(lines, "")

		avg := sum / float32(len(qualities))
		lines = append(lines, fmt.Sprintf("Average Quality: %d%% (%s)", int(avg*100), qualityRating(avg)))
		lines = append(lines, fmt.Sprintf("Consistency: %d%% (%s)", int(consistency*100), consistencyRating(consistency)))
		lines = append(lines, "")
	}

	if success {
		lines = append(lines, "Enrollment successful!")
		lines = append(lines, fmt.Sprintf("  %d high-quality face captures saved", captured))
	} else {
		lines = append(lines, "Enrollment failed!")
		lines = append(lines, "")
		lines = append(lines, "Suggestions:")
		switch {
		case captured == 0:
			lines = append(lines, "  - Ensure your face is visible to the camera")
			lines = append(lines, "  - Check lighting conditions")
		case captured < total:
			lines = append(lines, "  - Keep your face in view throughout enrollment")
			lines = append(lines, "  - Maintain a consistent distance from the camera")
		}
	}

	return strings.Join(lines, "\r\n")
}

func qualityRating(avg float32) string {
	switch {
	case avg >= 0.8:
		return "Excellent"
	case avg >= 0.7:
		return "Good"
	case avg >= 0.6:
		return "Acceptable"
	default:
		return "Poor"
	}
}

func consistencyRating(c float32) string {
	switch {
	case c >= 0.85:
		return "Excellent - optimal variation"
	case c >= 0.75:
		return "Good - well balanced"
	case c >= 0.65:
		return "Acceptable - adequate"
	default:
		return "Poor - too inconsistent"
	}
}
