// Package authengine drives the K-of-N sliding-window authentication loop: capture a
// frame, detect a face, embed it, compare against the enrolled record, and decide
// success/timeout/reset the way the IR face-unlock pipeline this daemon replaces does.
package authengine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"math"
	"time"

	"github.com/adam-mcguinness/sup-linux/internal/config"
	"github.com/adam-mcguinness/sup-linux/internal/logging"
	"github.com/adam-mcguinness/sup-linux/internal/metrics"
	"github.com/adam-mcguinness/sup-linux/internal/model"
	"github.com/adam-mcguinness/sup-linux/internal/store"
)

// iterationDelay is the pause between capture attempts, giving the camera and the
// caller's CPU room to breathe between frames.
const iterationDelay = 50 * time.Millisecond

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

// Store loads the enrolled record the engine compares against. *store.FileStore satisfies it.
type Store interface {
	Load(username string) (model.UserRecord, error)
}

// Result is the outcome of one Authenticate call, shaped to map directly onto
// codec.AuthResponse.
type Result struct {
	Success   bool
	Message   string
	Attempts  uint32
	Signature []byte
	Timestamp time.Time
}

// Engine holds the collaborators and policy needed to run the authentication loop.
// One Engine is built once at daemon startup and reused across requests.
type Engine struct {
	store      Store
	detector   Detector
	recognizer Recognizer
	cfg        config.AuthConfig
}

// New builds an Engine from its collaborators and the K-of-N policy.
func New(store Store, detector Detector, recognizer Recognizer, cfg config.AuthConfig) *Engine {
	return &Engine{store: store, detector: detector, recognizer: recognizer, cfg: cfg}
}

// state carries the per-call sliding window, fusion buffer, and lost-face tracking
// across loop iterations. A fresh state is built at the start of every Authenticate call.
type state struct {
	window       *slidingWindow
	fusion       *fusionBuffer
	faceSeen     bool
	lastFaceTime time.Time
}

func newState(cfg config.AuthConfig) *state {
	return &state{
		window: newSlidingWindow(cfg.N),
		fusion: newFusionBuffer(cfg.FusionBufferSize),
	}
}

func (s *state) reset() {
	s.window.reset()
	s.fusion.reset()
	s.faceSeen = false
}

// Authenticate runs the K-of-N sliding-window loop against cam until it succeeds, times
// out, or the context is cancelled. challenge is folded into the success signature so a
// captured signature cannot be replayed against a different authentication request.
func (e *Engine) Authenticate(ctx context.Context, cam Capture, username string, challenge []byte) (Result, error) {
	start := time.Now()
	log := logging.Component("authengine").WithField("username", username)

	record, err := e.store.Load(username)
	if errors.Is(err, store.ErrNotFound) {
		metrics.AuthAttemptsTotal.WithLabelValues("not_enrolled").Inc()
		metrics.AuthDuration.Observe(time.Since(start).Seconds())
		log.Info("authentication rejected: user not enrolled")
		return Result{Success: false, Message: "user not enrolled", Timestamp: time.Now()}, nil
	}
	if err != nil {
		metrics.AuthAttemptsTotal.WithLabelValues("error").Inc()
		metrics.AuthDuration.Observe(time.Since(start).Seconds())
		return Result{}, err
	}

	timeout := time.Duration(e.cfg.TimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	lostFaceTimeout := time.Duration(e.cfg.LostFaceTimeoutMs) * time.Millisecond
	threshold := float32(e.cfg.SimilarityThreshold)

	st := newState(e.cfg)
	var attempts uint32

	for {
		select {
		case <-ctx.Done():
			metrics.AuthAttemptsTotal.WithLabelValues("timeout").Inc()
			metrics.AuthDuration.Observe(time.Since(start).Seconds())
			log.WithField("attempts", attempts).Info("authentication timed out")
			return Result{Success: false, Message: "timeout", Attempts: attempts, Timestamp: time.Now()}, nil
		case <-time.After(iterationDelay):
		}

		frame, err := cam.Capture()
		if err != nil {
			log.WithError(err).Warn("frame capture failed, retrying")
			continue
		}

		faces, err := e.detector.Detect(frame)
		if err != nil {
			log.WithError(err).Warn("detection failed, retrying")
			continue
		}

		if len(faces) == 0 {
			if st.faceSeen && time.Since(st.lastFaceTime) > lostFaceTimeout {
				log.Debug("face lost, resetting authentication state")
				st.reset()
			}
			continue
		}

		st.faceSeen = true
		st.lastFaceTime = time.Now()
		attempts++

		embedding, err := e.recognizer.Embed(frame, faces[0])
		if err != nil {
			log.WithError(err).Warn("embedding extraction failed, retrying")
			continue
		}
		st.fusion.push(embedding)

		best := bestSimilarity(embedding, record, st.fusion, e.cfg.UseEmbeddingFusion)
		hit := best > threshold
		st.window.push(hit)

		log.WithFields(logging.Fields{
			"attempt":    attempts,
			"similarity": best,
			"hit":        hit,
			"hit_count":  st.window.hits(),
		}).Debug("authentication attempt")

		if st.window.hits() >= e.cfg.K {
			sig := signEmbedding(embedding, challenge)
			metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
			metrics.AuthDuration.Observe(time.Since(start).Seconds())
			log.WithField("attempts", attempts).Info("authentication succeeded")
			return Result{Success: true, Message: "authenticated", Attempts: attempts, Signature: sig, Timestamp: time.Now()}, nil
		}
	}
}

// bestSimilarity is the maximum cosine similarity between the current embedding and
// every comparison the policy allows: each stored embedding, the stored averaged
// embedding, and (if fusion is enabled and enough samples have accumulated) the mean of
// the recent-embedding fusion buffer against the same set.
func bestSimilarity(current model.Embedding, record model.UserRecord, fusion *fusionBuffer, useFusion bool) float32 {
	var best float32

	for _, stored := range record.Embeddings {
		if sim := model.CosineSimilarity(current, stored); sim > best {
			best = sim
		}
	}
	if record.AveragedEmbedding != nil {
		if sim := model.CosineSimilarity(current, record.AveragedEmbedding); sim > best {
			best = sim
		}
	}

	if useFusion && fusion.len() >= 2 {
		fused := fusion.mean()
		for _, stored := range record.Embeddings {
			if sim := model.CosineSimilarity(fused, stored); sim > best {
				best = sim
			}
		}
		if record.AveragedEmbedding != nil {
			if sim := model.CosineSimilarity(fused, record.AveragedEmbedding); sim > best {
				best = sim
			}
		}
	}

	return best
}

// signEmbedding derives the success signature: SHA-256 of the embedding's little-endian
// float32 bytes concatenated with the caller-supplied challenge, binding the signature
// to both the matched face and the specific request that asked for it.
func signEmbedding(embedding model.Embedding, challenge []byte) []byte {
	buf := make([]byte, 4*len(embedding))
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	h := sha256.New()
	h.Write(buf)
	h.Write(challenge)
	return h.Sum(nil)
}
