package merger

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/ranker"
)

func docs(pairs ...any) []ranker.ScoredDoc {
	out := make([]ranker.ScoredDoc, 0, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, ranker.ScoredDoc{Doc: uint32(pairs[i].(int)), Score: pairs[i+1].(float64)})
	}
	return out
}

func order(hits []ranker.ScoredDoc) []uint32 {
	out := make([]uint32, len(hits))
	for i, h := range hits {
		out[i] = h.Doc
	}
	return out
}

func TestTopK(t *testing.T) {
	in := docs(0, 1.0, 1, 3.0, 2, 2.0, 3, 5.0, 4, 0.5)
	assert.Equal(t, []uint32{3, 1, 2}, order(TopK(in, 3)))
	assert.Equal(t, []uint32{3, 1, 2, 0, 4}, order(TopK(in, 10)))
}

func TestTopKTiesByDocNumber(t *testing.T) {
	in := docs(7, 1.0, 2, 1.0, 5, 1.0, 1, 2.0, 3, 1.0)
	assert.Equal(t, []uint32{1, 2, 3}, order(TopK(in, 3)))
	assert.Equal(t, []uint32{1, 2, 3, 5, 7}, order(TopK(in, 5)))
}

func TestTopKNonPositiveLimit(t *testing.T) {
	in := docs(0, 1.0)
	assert.Empty(t, TopK(in, 0))
	assert.Empty(t, TopK(in, -1))
	assert.Empty(t, TopK(nil, 5))
}
