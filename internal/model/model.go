// Package model holds the data shapes shared by the store, quality, inference, and
// authentication engines: embeddings, user records, and frames.
package model

import (
	"math"
	"time"
)

// Embedding is a fixed-length face descriptor. Similarity between two embeddings is
// angle-based (cosine), never Euclidean.
type Embedding []float32

// UserRecord is the persisted per-user enrollment. All embeddings share one dimension;
// AveragedEmbedding, when present, equals their component-wise mean; Qualities, when
// present, has one entry per embedding.
type UserRecord struct {
	Version           uint32
	Username          string
	Embeddings        []Embedding
	AveragedEmbedding Embedding
	Qualities         []float32
}

// CurrentVersion is the schema version written by this build.
const CurrentVersion uint32 = 1

// Frame is a captured luminance image: row-major grayscale bytes, width*height long.
type Frame struct {
	Width     int
	Height    int
	Gray      []byte
	Timestamp time.Time
}

// FaceBox is a detected face region with the detector's confidence for that region.
type FaceBox struct {
	X1, Y1, X2, Y2 float32
	Confidence     float32
}

// Width returns the pixel width of the box.
func (b FaceBox) Width() float32 { return b.X2 - b.X1 }

// Height returns the pixel height of the box.
func (b FaceBox) Height() float32 { return b.Y2 - b.Y1 }

// Area returns the pixel area of the box.
func (b FaceBox) Area() float32 { return b.Width() * b.Height() }

// Recompute sets AveragedEmbedding to the component-wise mean of Embeddings. Called after
// every mutation that changes the embedding set.
func (u *UserRecord) Recompute() {
	if len(u.Embeddings) == 0 {
		u.AveragedEmbedding = nil
		return
	}
	dim := len(u.Embeddings[0])
	avg := make(Embedding, dim)
	for _, e := range u.Embeddings {
		for i, v := range e {
			avg[i] += v
		}
	}
	n := float32(len(u.Embeddings))
	for i := range avg {
		avg[i] /= n
	}
	u.AveragedEmbedding = avg
}

// CosineSimilarity returns the cosine similarity of a and b, defined as 0 for a zero vector.
func CosineSimilarity(a, b Embedding) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// MeanEmbedding returns the component-wise mean of embeddings. Callers must ensure
// embeddings is non-empty and all entries share one dimension.
func MeanEmbedding(embeddings []Embedding) Embedding {
	if len(embeddings) == 0 {
		return nil
	}
	dim := len(embeddings[0])
	mean := make(Embedding, dim)
	for _, e := range embeddings {
		for i, v := range e {
			mean[i] += v
		}
	}
	n := float32(len(embeddings))
	for i := range mean {
		mean[i] /= n
	}
	return mean
}
