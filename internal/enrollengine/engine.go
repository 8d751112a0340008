// Package enrollengine drives the timed multi-capture enrollment and enhancement flows:
// gate each frame on detection and quality, extract an embedding, persist a snapshot, and
// report progress over an optional preview stream.
package enrollengine

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/adam-mcguinness/sup-linux/internal/codec"
	"github.com/adam-mcguinness/sup-linux/internal/config"
	"github.com/adam-mcguinness/sup-linux/internal/logging"
	"github.com/adam-mcguinness/sup-linux/internal/metrics"
	"github.com/adam-mcguinness/sup-linux/internal/model"
	"github.com/adam-mcguinness/sup-linux/internal/quality"
	"github.com/adam-mcguinness/sup-linux/internal/store"
)

// Capture is the frame source the engine pulls from. *capture.Session satisfies it.
type Capture interface {
	Capture() (model.Frame, error)
}

// Detector finds faces in a frame. *inference.Detector satisfies it.
type Detector interface {
	Detect(frame model.Frame) ([]model.FaceBox, error)
}

// Recognizer turns a detected face into an embedding. *inference.Recognizer satisfies it.
type Recognizer interface {
	Embed(frame model.Frame, face model.FaceBox) (model.Embedding, error)
}

// Store is the subset of *store.FileStore the engine depends on.
type Store interface {
	Load(username string) (model.UserRecord, error)
	Save(record model.UserRecord) error
	EnrollmentDir(username string) (string, error)
}

// Emit is how the engine pushes interstitial stream frames (preview, status) to the
// caller. Passing nil disables preview streaming; the engine still runs its capture loop.
type Emit func(codec.StreamMessage) error

// Engine holds the collaborators shared by enrollment and enhancement.
type Engine struct {
	store      Store
	detector   Detector
	recognizer Recognizer
	cfg        config.EnrollmentConfig
}

// New builds an Engine from its collaborators and the capture policy.
func New(store Store, detector Detector, recognizer Recognizer, cfg config.EnrollmentConfig) *Engine {
	return &Engine{store: store, detector: detector, recognizer: recognizer, cfg: cfg}
}

// captureRun is the outcome of the shared capture loop.
type captureRun struct {
	embeddings []model.Embedding
	qualities  []float32
	captured   uint32
}

// runCapture is the loop both Enroll and Enhance drive: capture, detect, optionally
// preview, gate on quality, extract an embedding, save a snapshot, repeat until target
// captures are reached or the deadline expires.
func (e *Engine) runCapture(ctx context.Context, cam Capture, username, snapshotPrefix string, snapshotDir string, startIndex uint32, target uint32, emit Emit) (captureRun, error) {
	log := logging.Component("enrollengine").WithField("username", username)

	intervalMs := e.cfg.CaptureIntervalMs
	if intervalMs <= 0 {
		intervalMs = 2000
	}
	interval := time.Duration(intervalMs) * time.Millisecond

	multiplier := 3
	if emit != nil {
		multiplier = 5
	}
	deadline := time.Duration(int64(target)*int64(intervalMs)*int64(multiplier)) * time.Millisecond
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	renderer := newRenderer(e.cfg.AsciiWidth, e.cfg.AsciiHeight)
	minQuality := float32(e.cfg.MinQuality)

	var run captureRun
	lastCapture := time.Time{}

	for run.captured < target {
		select {
		case <-ctx.Done():
			return run, nil
		case <-time.After(50 * time.Millisecond):
		}

		frame, err := cam.Capture()
		if err != nil {
			log.WithError(err).Warn("frame capture failed, retrying")
			continue
		}

		faces, err := e.detector.Detect(frame)
		if err != nil {
			log.WithError(err).Warn("detection failed, continuing with no detections this frame")
			faces = nil
		}

		if emit != nil {
			ascii := renderer.renderProgress(frame, faces, run.captured, target)
			if err := emit(codec.StreamMessage{PreviewFrame: &codec.PreviewFrame{ASCII: ascii, Captured: run.captured, Total: target}}); err != nil {
				log.WithError(err).Warn("failed to emit preview frame")
			}
		}

		if len(faces) == 0 {
			continue
		}
		if !lastCapture.IsZero() && time.Since(lastCapture) < interval {
			continue
		}

		face := faces[0]
		q := quality.Score(frame, face)
		if !q.MeetsMinimum(minQuality) {
			log.WithField("quality", q.Overall).Debug("capture below minimum quality, skipping")
			continue
		}

		embedding, err := e.recognizer.Embed(frame, face)
		if err != nil {
			log.WithError(err).Warn("embedding extraction failed, retrying")
			continue
		}

		idx := startIndex + run.captured
		path := filepath.Join(snapshotDir, fmt.Sprintf("%s_%d.jpg", snapshotPrefix, idx))
		if err := saveFrameJPEG(frame, path); err != nil {
			log.WithError(err).Warn("failed to save enrollment snapshot")
		}

		run.embeddings = append(run.embeddings, embedding)
		run.qualities = append(run.qualities, q.Overall)
		run.captured++
		lastCapture = time.Now()

		if emit != nil {
			msg := fmt.Sprintf("Captured image %d/%d with quality %.2f", run.captured, target, q.Overall)
			if err := emit(codec.StreamMessage{StatusUpdate: &codec.StatusUpdate{Message: msg}}); err != nil {
				log.WithError(err).Debug("failed to emit status update")
			}
		}
	}

	return run, nil
}

// Enroll runs a fresh enrollment: target_count captures, building a new UserRecord.
func (e *Engine) Enroll(ctx context.Context, cam Capture, username string, enablePreview bool, emit Emit) (codec.EnrollResponse, error) {
	target := uint32(e.cfg.TargetCount)
	if target == 0 {
		target = 5
	}

	dir, err := e.store.EnrollmentDir(username)
	if err != nil {
		metrics.EnrollmentsTotal.WithLabelValues("enroll", "error").Inc()
		return codec.EnrollResponse{}, err
	}

	var activeEmit Emit
	if enablePreview {
		activeEmit = emit
	}

	run, err := e.runCapture(ctx, cam, username, "enroll", dir, 0, target, activeEmit)
	if err != nil {
		metrics.EnrollmentsTotal.WithLabelValues("enroll", "error").Inc()
		return codec.EnrollResponse{}, err
	}

	success := run.captured >= target
	consistency := float32(0)
	if len(run.embeddings) > 1 {
		consistency = quality.Consistency(run.embeddings)
	}

	report := buildReport(username, run.captured, target, run.qualities, consistency, success)
	if activeEmit != nil {
		_ = activeEmit(codec.StreamMessage{PreviewFrame: &codec.PreviewFrame{ASCII: report, Captured: run.captured, Total: target}})
	}

	if !success {
		metrics.EnrollmentsTotal.WithLabelValues("enroll", "incomplete").Inc()
		return codec.EnrollResponse{
			Success: false,
			Message: fmt.Sprintf("enrollment failed: only %d/%d captures completed", run.captured, target),
		}, nil
	}

	record := model.UserRecord{
		Version:    model.CurrentVersion,
		Username:   username,
		Embeddings: run.embeddings,
		Qualities:  run.qualities,
	}
	record.Recompute()

	if err := e.store.Save(record); err != nil {
		metrics.EnrollmentsTotal.WithLabelValues("enroll", "error").Inc()
		return codec.EnrollResponse{}, err
	}

	metrics.EnrollmentsTotal.WithLabelValues("enroll", "success").Inc()
	return codec.EnrollResponse{Success: true, Message: fmt.Sprintf("enrolled %d captures", run.captured)}, nil
}

// Enhance runs additional captures against an existing record, merging them in per the
// replace-weak policy.
func (e *Engine) Enhance(ctx context.Context, cam Capture, username string, additional uint32, replaceWeak, enablePreview bool, emit Emit) (codec.EnhanceResponse, error) {
	existing, err := e.store.Load(username)
	if err != nil {
		metrics.EnrollmentsTotal.WithLabelValues("enhance", "error").Inc()
		return codec.EnhanceResponse{}, err
	}

	target := additional
	if target == 0 {
		target = uint32(e.cfg.TargetCount)
		if target == 0 {
			target = 5
		}
	}

	dir, err := e.store.EnrollmentDir(username)
	if err != nil {
		metrics.EnrollmentsTotal.WithLabelValues("enhance", "error").Inc()
		return codec.EnhanceResponse{}, err
	}

	var activeEmit Emit
	if enablePreview {
		activeEmit = emit
	}

	startIndex := uint32(len(existing.Embeddings))
	run, err := e.runCapture(ctx, cam, username, "enhance", dir, startIndex, target, activeEmit)
	if err != nil {
		metrics.EnrollmentsTotal.WithLabelValues("enhance", "error").Inc()
		return codec.EnhanceResponse{}, err
	}

	success := len(run.embeddings) > 0
	consistency := float32(0)
	if len(run.embeddings) > 1 {
		consistency = quality.Consistency(run.embeddings)
	}
	report := buildReport(username, run.captured, target, run.qualities, consistency, success)
	if activeEmit != nil {
		_ = activeEmit(codec.StreamMessage{PreviewFrame: &codec.PreviewFrame{ASCII: report, Captured: run.captured, Total: target}})
	}

	if !success {
		metrics.EnrollmentsTotal.WithLabelValues("enhance", "incomplete").Inc()
		return codec.EnhanceResponse{
			Success:          false,
			Message:          "enhancement failed: no valid captures completed",
			EmbeddingsBefore: uint64(len(existing.Embeddings)),
			EmbeddingsAfter:  uint64(len(existing.Embeddings)),
		}, nil
	}

	merged, added, replaced := store.Merge(existing, run.embeddings, run.qualities, replaceWeak)
	if err := e.store.Save(merged); err != nil {
		metrics.EnrollmentsTotal.WithLabelValues("enhance", "error").Inc()
		return codec.EnhanceResponse{}, err
	}

	metrics.EnrollmentsTotal.WithLabelValues("enhance", "success").Inc()
	return codec.EnhanceResponse{
		Success:          true,
		Message:          fmt.Sprintf("added %d, replaced %d", added, replaced),
		EmbeddingsBefore: uint64(len(existing.Embeddings)),
		EmbeddingsAfter:  uint64(len(merged.Embeddings)),
		ReplacedCount:    uint64(replaced),
	}, nil
}
