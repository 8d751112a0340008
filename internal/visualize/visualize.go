// Package visualize renders a user's stored embeddings as plain text or CSV for offline
// inspection: a pairwise similarity matrix, summary statistics, and a data export. It reads
// the store directly and touches neither the camera nor a model session.
package visualize

import (
	"fmt"
	"io"
	"math"

	"github.com/adam-mcguinness/sup-linux/internal/model"
	"github.com/adam-mcguinness/sup-linux/internal/quality"
)

// SimilarityMatrix writes the pairwise cosine similarity of every stored embedding, plus
// each embedding's similarity to the averaged embedding when one is present.
func SimilarityMatrix(w io.Writer, record model.UserRecord) error {
	fmt.Fprintf(w, "Similarity matrix for user: %s\n", record.Username)
	fmt.Fprintf(w, "Number of embeddings: %d\n", len(record.Embeddings))
	if record.AveragedEmbedding != nil {
		fmt.Fprintln(w, "Has averaged embedding: yes")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Pairwise similarities:")
	for i := 0; i < len(record.Embeddings); i++ {
		for j := i + 1; j < len(record.Embeddings); j++ {
			sim := model.CosineSimilarity(record.Embeddings[i], record.Embeddings[j])
			fmt.Fprintf(w, "embedding %d vs %d: %.3f\n", i, j, sim)
		}
	}

	if record.AveragedEmbedding != nil {
		fmt.Fprintln(w, "\nSimilarities with averaged embedding:")
		for i, e := range record.Embeddings {
			sim := model.CosineSimilarity(e, record.AveragedEmbedding)
			fmt.Fprintf(w, "embedding %d vs averaged: %.3f\n", i, sim)
		}
	}
	return nil
}

// Stats writes per-embedding mean/stddev/min/max/L2-norm, and the record's consistency.
func Stats(w io.Writer, record model.UserRecord) error {
	fmt.Fprintf(w, "Embedding statistics for user: %s\n", record.Username)
	fmt.Fprintf(w, "Number of embeddings: %d\n", len(record.Embeddings))
	dim := 0
	if len(record.Embeddings) > 0 {
		dim = len(record.Embeddings[0])
	}
	fmt.Fprintf(w, "Embedding dimension: %d\n\n", dim)

	for i, e := range record.Embeddings {
		mean, stddev, min, max := componentStats(e)
		fmt.Fprintf(w, "embedding %d:\n", i)
		fmt.Fprintf(w, "  mean: %.6f\n", mean)
		fmt.Fprintf(w, "  std dev: %.6f\n", stddev)
		fmt.Fprintf(w, "  min: %.6f\n", min)
		fmt.Fprintf(w, "  max: %.6f\n", max)
		fmt.Fprintf(w, "  l2 norm: %.6f\n\n", l2Norm(e))
	}

	if len(record.Qualities) > 0 {
		var sum float32
		for _, q := range record.Qualities {
			sum += q
		}
		fmt.Fprintf(w, "average quality: %.3f\n", sum/float32(len(record.Qualities)))
	}
	fmt.Fprintf(w, "consistency: %.3f\n", quality.Consistency(record.Embeddings))
	return nil
}

// ExportCSV writes one row per embedding, one column per dimension, plus a trailing
// "averaged" row if the record has one, so the output can be loaded by any plotting tool.
func ExportCSV(w io.Writer, record model.UserRecord) error {
	if len(record.Embeddings) == 0 {
		fmt.Fprintln(w, "embedding_id")
		return nil
	}

	dim := len(record.Embeddings[0])
	fmt.Fprint(w, "embedding_id")
	for i := 0; i < dim; i++ {
		fmt.Fprintf(w, ",dim_%d", i)
	}
	fmt.Fprintln(w)

	for i, e := range record.Embeddings {
		fmt.Fprintf(w, "%d", i)
		for _, v := range e {
			fmt.Fprintf(w, ",%g", v)
		}
		fmt.Fprintln(w)
	}

	if record.AveragedEmbedding != nil {
		fmt.Fprint(w, "averaged")
		for _, v := range record.AveragedEmbedding {
			fmt.Fprintf(w, ",%g", v)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func componentStats(e model.Embedding) (mean, stddev, min, max float32) {
	if len(e) == 0 {
		return 0, 0, 0, 0
	}
	var sum float32
	min, max = e[0], e[0]
	for _, v := range e {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	mean = sum / float32(len(e))

	var variance float32
	for _, v := range e {
		d := v - mean
		variance += d * d
	}
	variance /= float32(len(e))
	stddev = float32(math.Sqrt(float64(variance)))
	return mean, stddev, min, max
}

func l2Norm(e model.Embedding) float32 {
	var sum float32
	for _, v := range e {
		sum += v * v
	}
	return float32(math.Sqrt(float64(sum)))
}
