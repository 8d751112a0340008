package authengine

import (
	"context"
	"testing"

	"github.com/adam-mcguinness/sup-linux/internal/config"
	"github.com/adam-mcguinness/sup-linux/internal/model"
	"github.com/adam-mcguinness/sup-linux/internal/store"
)

type fakeStore struct {
	record model.UserRecord
	err    error
}

func (f *fakeStore) Load(username string) (model.UserRecord, error) {
	return f.record, f.err
}

type fakeCapture struct {
	frame model.Frame
	err   error
}

func (f *fakeCapture) Capture() (model.Frame, error) {
	return f.frame, f.err
}

// fakeDetector returns faces from a queue, one slice per call; the last entry repeats.
type fakeDetector struct {
	calls [][]model.FaceBox
	i     int
}

func (f *fakeDetector) Detect(frame model.Frame) ([]model.FaceBox, error) {
	idx := f.i
	if idx >= len(f.calls) {
		idx = len(f.calls) - 1
	}
	f.i++
	return f.calls[idx], nil
}

// fakeRecognizer returns embeddings from a queue, one per call; the last entry repeats.
type fakeRecognizer struct {
	embeddings []model.Embedding
	i          int
}

func (f *fakeRecognizer) Embed(frame model.Frame, face model.FaceBox) (model.Embedding, error) {
	idx := f.i
	if idx >= len(f.embeddings) {
		idx = len(f.embeddings) - 1
	}
	f.i++
	return f.embeddings[idx], nil
}

func baseConfig() config.AuthConfig {
	return config.AuthConfig{
		K:                   2,
		N:                   3,
		SimilarityThreshold: 0.5,
		TimeoutSeconds:      2,
		LostFaceTimeoutMs:   500,
		FusionBufferSize:    5,
		UseEmbeddingFusion:  false,
	}
}

func oneFace() []model.FaceBox {
	return []model.FaceBox{{X1: 0, Y1: 0, X2: 10, Y2: 10, Confidence: 0.9}}
}

func TestAuthenticateSucceedsAfterKHits(t *testing.T) {
	enrolled := model.Embedding{1, 0, 0}
	store := &fakeStore{record: model.UserRecord{Username: "alice", Embeddings: []model.Embedding{enrolled}}}
	cam := &fakeCapture{frame: model.Frame{Width: 10, Height: 10}}
	det := &fakeDetector{calls: [][]model.FaceBox{oneFace()}}
	rec := &fakeRecognizer{embeddings: []model.Embedding{{1, 0, 0}}}

	e := New(store, det, rec, baseConfig())
	result, err := e.Authenticate(context.Background(), cam, "alice", []byte("challenge"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}
	if result.Attempts != 2 {
		t.Errorf("expected 2 attempts to reach K=2, got %d", result.Attempts)
	}
	if len(result.Signature) != 32 {
		t.Errorf("expected a 32-byte SHA-256 signature, got %d bytes", len(result.Signature))
	}
}

func TestAuthenticateTimesOutOnPoorMatch(t *testing.T) {
	enrolled := model.Embedding{1, 0, 0}
	store := &fakeStore{record: model.UserRecord{Username: "alice", Embeddings: []model.Embedding{enrolled}}}
	cam := &fakeCapture{frame: model.Frame{Width: 10, Height: 10}}
	det := &fakeDetector{calls: [][]model.FaceBox{oneFace()}}
	rec := &fakeRecognizer{embeddings: []model.Embedding{{0, 1, 0}}}

	cfg := baseConfig()
	cfg.TimeoutSeconds = 1
	e := New(store, det, rec, cfg)

	result, err := e.Authenticate(context.Background(), cam, "alice", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatalf("expected failure for a mismatched embedding, got success")
	}
	if result.Message != "timeout" {
		t.Errorf("expected timeout message, got %q", result.Message)
	}
}

func TestAuthenticateReturnsNotEnrolledResultWhenUserMissing(t *testing.T) {
	fs := &fakeStore{err: store.ErrNotFound}
	cam := &fakeCapture{}
	det := &fakeDetector{calls: [][]model.FaceBox{{}}}
	rec := &fakeRecognizer{embeddings: []model.Embedding{{1}}}

	e := New(fs, det, rec, baseConfig())
	result, err := e.Authenticate(context.Background(), cam, "ghost", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatal("expected success=false for an unenrolled user")
	}
	if result.Message != "user not enrolled" {
		t.Errorf("expected 'user not enrolled' message, got %q", result.Message)
	}
}

func TestSlidingWindowDropsOldestOnOverflow(t *testing.T) {
	w := newSlidingWindow(3)
	w.push(true)
	w.push(true)
	w.push(false)
	if w.hits() != 2 {
		t.Fatalf("expected 2 hits, got %d", w.hits())
	}
	w.push(true) // window now holds [true, false, true]; oldest true evicted
	if w.hits() != 2 {
		t.Fatalf("expected 2 hits after eviction, got %d", w.hits())
	}
}

func TestFusionBufferMeanRequiresAtLeastTwo(t *testing.T) {
	b := newFusionBuffer(3)
	b.push(model.Embedding{1, 0})
	if b.len() >= 2 {
		t.Fatalf("expected len < 2 after a single push")
	}
	b.push(model.Embedding{0, 1})
	mean := b.mean()
	if mean[0] != 0.5 || mean[1] != 0.5 {
		t.Fatalf("expected mean [0.5, 0.5], got %v", mean)
	}
}
