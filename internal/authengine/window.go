package authengine

import "github.com/adam-mcguinness/sup-linux/internal/model"

// slidingWindow tracks hit/miss outcomes over the last N authentication attempts,
// maintaining a running count of hits so success can be checked in O(1) per attempt.
type slidingWindow struct {
	n        int
	attempts []bool
	hitCount int
}

func newSlidingWindow(n int) *slidingWindow {
	return &slidingWindow{n: n, attempts: make([]bool, 0, n)}
}

// push appends a hit/miss outcome, evicting the oldest attempt once the window is full.
func (w *slidingWindow) push(hit bool) {
	w.attempts = append(w.attempts, hit)
	if hit {
		w.hitCount++
	}
	if len(w.attempts) > w.n {
		oldest := w.attempts[0]
		w.attempts = w.attempts[1:]
		if oldest {
			w.hitCount--
		}
	}
}

func (w *slidingWindow) reset() {
	w.attempts = w.attempts[:0]
	w.hitCount = 0
}

func (w *slidingWindow) hits() int {
	return w.hitCount
}

// fusionBuffer is a FIFO of the most recent embeddings used to compute a fused
// (mean) embedding once enough samples have accumulated.
type fusionBuffer struct {
	capacity int
	items    []model.Embedding
}

func newFusionBuffer(capacity int) *fusionBuffer {
	return &fusionBuffer{capacity: capacity, items: make([]model.Embedding, 0, capacity)}
}

func (b *fusionBuffer) push(embedding model.Embedding) {
	b.items = append(b.items, embedding)
	if len(b.items) > b.capacity {
		b.items = b.items[1:]
	}
}

func (b *fusionBuffer) reset() {
	b.items = b.items[:0]
}

func (b *fusionBuffer) len() int {
	return len(b.items)
}

// mean returns the component-wise mean of the buffered embeddings. Callers must check
// len() >= 2 first; fusing a single sample or an empty buffer is meaningless.
func (b *fusionBuffer) mean() model.Embedding {
	return model.MeanEmbedding(b.items)
}
