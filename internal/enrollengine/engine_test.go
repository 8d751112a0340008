package enrollengine

import (
	"context"
	"errors"
	"testing"

	"github.com/adam-mcguinness/sup-linux/internal/codec"
	"github.com/adam-mcguinness/sup-linux/internal/config"
	"github.com/adam-mcguinness/sup-linux/internal/model"
)

type fakeStore struct {
	record       model.UserRecord
	loadErr      error
	saved        model.UserRecord
	enrollDir    string
	enrollDirErr error
}

func (f *fakeStore) Load(username string) (model.UserRecord, error) { return f.record, f.loadErr }
func (f *fakeStore) Save(record model.UserRecord) error             { f.saved = record; return nil }
func (f *fakeStore) EnrollmentDir(username string) (string, error) {
	return f.enrollDir, f.enrollDirErr
}

type fakeCapture struct{ frame model.Frame }

func (f *fakeCapture) Capture() (model.Frame, error) { return f.frame, nil }

type fakeDetector struct{ faces []model.FaceBox }

func (f *fakeDetector) Detect(frame model.Frame) ([]model.FaceBox, error) { return f.faces, nil }

// fakeRecognizer returns a distinct embedding per call so Consistency scoring has
// something non-degenerate to chew on.
type fakeRecognizer struct{ i int }

func (f *fakeRecognizer) Embed(frame model.Frame, face model.FaceBox) (model.Embedding, error) {
	f.i++
	return model.Embedding{float32(f.i), 1, 0}, nil
}

func testFrame() model.Frame {
	gray := make([]byte, 20*20)
	for i := range gray {
		gray[i] = 150
	}
	return model.Frame{Width: 20, Height: 20, Gray: gray}
}

func oneFace() []model.FaceBox {
	return []model.FaceBox{{X1: 2, Y1: 2, X2: 18, Y2: 18, Confidence: 0.95}}
}

func enrollConfig(target int) config.EnrollmentConfig {
	return config.EnrollmentConfig{
		TargetCount:       target,
		CaptureIntervalMs: 100,
		MinQuality:        0,
		AsciiWidth:        10,
		AsciiHeight:       5,
	}
}

func TestEnrollSucceedsWithTargetCaptures(t *testing.T) {
	dir := t.TempDir()
	st := &fakeStore{enrollDir: dir}
	cam := &fakeCapture{frame: testFrame()}
	det := &fakeDetector{faces: oneFace()}
	rec := &fakeRecognizer{}

	e := New(st, det, rec, enrollConfig(3))
	resp, err := e.Enroll(context.Background(), cam, "alice", false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if len(st.saved.Embeddings) != 3 {
		t.Fatalf("expected 3 saved embeddings, got %d", len(st.saved.Embeddings))
	}
	if st.saved.AveragedEmbedding == nil {
		t.Fatal("expected averaged embedding to be computed")
	}
}

func TestEnrollFailsWhenStoreDirUnavailable(t *testing.T) {
	st := &fakeStore{enrollDirErr: errors.New("disk full")}
	cam := &fakeCapture{frame: testFrame()}
	det := &fakeDetector{faces: oneFace()}
	rec := &fakeRecognizer{}

	e := New(st, det, rec, enrollConfig(3))
	_, err := e.Enroll(context.Background(), cam, "alice", false, nil)
	if err == nil {
		t.Fatal("expected an error when the enrollment directory cannot be resolved")
	}
}

func TestEnrollEmitsPreviewFramesWhenEnabled(t *testing.T) {
	dir := t.TempDir()
	st := &fakeStore{enrollDir: dir}
	cam := &fakeCapture{frame: testFrame()}
	det := &fakeDetector{faces: oneFace()}
	rec := &fakeRecognizer{}

	var frames int
	emit := func(msg codec.StreamMessage) error {
		if msg.PreviewFrame != nil {
			frames++
		}
		return nil
	}

	e := New(st, det, rec, enrollConfig(2))
	resp, err := e.Enroll(context.Background(), cam, "alice", true, emit)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if frames == 0 {
		t.Fatal("expected at least one preview frame to be emitted")
	}
}

func TestEnhanceMergesOntoExistingRecord(t *testing.T) {
	dir := t.TempDir()
	existing := model.UserRecord{
		Username:   "alice",
		Embeddings: []model.Embedding{{1, 0, 0}},
		Qualities:  []float32{0.9},
	}
	existing.Recompute()
	st := &fakeStore{enrollDir: dir, record: existing}
	cam := &fakeCapture{frame: testFrame()}
	det := &fakeDetector{faces: oneFace()}
	rec := &fakeRecognizer{}

	e := New(st, det, rec, enrollConfig(5))
	resp, err := e.Enhance(context.Background(), cam, "alice", 2, false, false, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.EmbeddingsBefore != 1 {
		t.Errorf("expected 1 embedding before, got %d", resp.EmbeddingsBefore)
	}
	if resp.EmbeddingsAfter != 3 {
		t.Errorf("expected 3 embeddings after appending 2, got %d", resp.EmbeddingsAfter)
	}
}

func TestEnhanceFailsWhenUserNotEnrolled(t *testing.T) {
	st := &fakeStore{loadErr: errors.New("not enrolled")}
	cam := &fakeCapture{frame: testFrame()}
	det := &fakeDetector{faces: oneFace()}
	rec := &fakeRecognizer{}

	e := New(st, det, rec, enrollConfig(5))
	_, err := e.Enhance(context.Background(), cam, "ghost", 1, false, false, nil)
	if err == nil {
		t.Fatal("expected an error for an unenrolled user")
	}
}
