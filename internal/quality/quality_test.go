package quality

import (
	"testing"

	"github.com/adam-mcguinness/sup-linux/internal/model"
)

func solidFrame(w, h int, value byte) model.Frame {
	gray := make([]byte, w*h)
	for i := range gray {
		gray[i] = value
	}
	return model.Frame{Width: w, Height: h, Gray: gray}
}

func TestScoreCenteredHighConfidenceFace(t *testing.T) {
	frame := solidFrame(100, 100, 128)
	face := model.FaceBox{X1: 30, Y1: 30, X2: 70, Y2: 70, Confidence: 1.0}

	m := Score(frame, face)
	if m.CenteringScore < 0.99 {
		t.Errorf("expected near-perfect centering, got %f", m.CenteringScore)
	}
	if m.BrightnessScore < 0.99 {
		t.Errorf("expected near-perfect brightness at mean 128, got %f", m.BrightnessScore)
	}
	if m.Overall <= 0 {
		t.Errorf("expected positive overall score, got %f", m.Overall)
	}
}

func TestScoreOffCenterFaceScoresLower(t *testing.T) {
	frame := solidFrame(100, 100, 128)
	centered := model.FaceBox{X1: 30, Y1: 30, X2: 70, Y2: 70, Confidence: 1.0}
	offCenter := model.FaceBox{X1: 0, Y1: 0, X2: 40, Y2: 40, Confidence: 1.0}

	centeredScore := Score(frame, centered)
	offScore := Score(frame, offCenter)
	if offScore.CenteringScore >= centeredScore.CenteringScore {
		t.Errorf("expected off-center face to score lower centering: off=%f centered=%f", offScore.CenteringScore, centeredScore.CenteringScore)
	}
}

func TestScoreInvalidBoxFallsBackToDefaults(t *testing.T) {
	frame := solidFrame(100, 100, 128)
	face := model.FaceBox{X1: 50, Y1: 50, X2: 50, Y2: 50, Confidence: 0.9}
	m := Score(frame, face)
	if m.BrightnessScore != 0.5 || m.ContrastScore != 0.5 {
		t.Errorf("expected default 0.5/0.5 for a degenerate box, got %f/%f", m.BrightnessScore, m.ContrastScore)
	}
}

func TestMeetsMinimum(t *testing.T) {
	m := Metrics{Overall: 0.55}
	if !m.MeetsMinimum(0.5) {
		t.Error("expected 0.55 to meet a 0.5 minimum")
	}
	if m.MeetsMinimum(0.6) {
		t.Error("expected 0.55 to fail a 0.6 minimum")
	}
}

func TestConsistencySingleEmbeddingDefault(t *testing.T) {
	if got := Consistency([]model.Embedding{{1, 2, 3}}); got != 0.8 {
		t.Errorf("expected default 0.8 for <2 embeddings, got %f", got)
	}
}

func TestConsistencyIdenticalEmbeddingsPenalized(t *testing.T) {
	e := model.Embedding{1, 0, 0}
	got := Consistency([]model.Embedding{e, e, e})
	// Identical embeddings -> mean similarity 1.0, variance 0: far from the 0.82 ideal and
	// zero variance, so the combined score is well below 1: 0.7*0.64 + 0.3*0.7 = 0.658.
	if got > 0.66 {
		t.Errorf("expected identical embeddings to be penalized, got %f", got)
	}
}

func TestConsistencyNearIdealScoresHigh(t *testing.T) {
	// Hand-built vectors whose pairwise cosine similarities sit near 0.82 with small variance.
	embeddings := []model.Embedding{
		{1, 0},
		{0.82, 0.5724}, // cos ~ 0.82 with {1,0}
		{0.9, 0.3},
	}
	got := Consistency(embeddings)
	if got <= 0.5 {
		t.Errorf("expected near-ideal similarity spread to score reasonably high, got %f", got)
	}
}
