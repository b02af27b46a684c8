// Package merger selects the best-scoring hits.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/ranker"
)

// TopK returns at most limit hits ordered by descending score. Equal scores
// are ordered by ascending document number, so the result is stable for a
// given snapshot.
func TopK(docs []ranker.ScoredDoc, limit int) []ranker.ScoredDoc {
	if limit <= 0 {
		return []ranker.ScoredDoc{}
	}
	h := &scoredDocHeap{}
	heap.Init(h)
	for _, doc := range docs {
		if h.Len() < limit {
			heap.Push(h, doc)
			continue
		}
		if worse((*h)[0], doc) {
			(*h)[0] = doc
			heap.Fix(h, 0)
		}
	}
	result := make([]ranker.ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ranker.ScoredDoc)
	}
	return result
}

// worse reports whether a ranks below b.
func worse(a, b ranker.ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Doc > b.Doc
}

// scoredDocHeap is a min-heap: the root is the worst hit kept so far.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool { return worse(h[i], h[j]) }

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
