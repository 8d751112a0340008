package visualize

import (
	"bytes"
	"strings"
	"testing"

	"github.com/adam-mcguinness/sup-linux/internal/model"
)

func sampleRecord() model.UserRecord {
	r := model.UserRecord{
		Username:   "alice",
		Embeddings: []model.Embedding{{1, 0, 0}, {0, 1, 0}, {1, 1, 0}},
		Qualities:  []float32{0.9, 0.8, 0.7},
	}
	r.Recompute()
	return r
}

func TestSimilarityMatrixListsEveryPair(t *testing.T) {
	var buf bytes.Buffer
	if err := SimilarityMatrix(&buf, sampleRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"embedding 0 vs 1", "embedding 0 vs 2", "embedding 1 vs 2", "Similarities with averaged embedding"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestStatsReportsDimensionAndConsistency(t *testing.T) {
	var buf bytes.Buffer
	if err := Stats(&buf, sampleRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Embedding dimension: 3") {
		t.Errorf("expected dimension line, got:\n%s", out)
	}
	if !strings.Contains(out, "consistency:") {
		t.Errorf("expected consistency line, got:\n%s", out)
	}
}

func TestExportCSVIncludesHeaderAndAveragedRow(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportCSV(&buf, sampleRecord()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "embedding_id,dim_0,dim_1,dim_2" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if lines[len(lines)-1][:8] != "averaged" {
		t.Errorf("expected trailing averaged row, got %q", lines[len(lines)-1])
	}
}

func TestExportCSVHandlesEmptyRecord(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportCSV(&buf, model.UserRecord{Username: "empty"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "embedding_id" {
		t.Errorf("expected bare header for empty record, got %q", buf.String())
	}
}
