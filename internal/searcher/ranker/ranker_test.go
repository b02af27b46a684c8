package ranker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDFDecreasesWithDocFreq(t *testing.T) {
	rare := IDF(100, 1)
	common := IDF(100, 50)
	assert.Greater(t, rare, common)
	assert.Greater(t, IDF(100, 100), 0.0, "a term in every document still scores")
}

func TestTermScore(t *testing.T) {
	stats := FieldStats{TotalDocs: 10, AvgFieldLength: 4}
	idf := IDF(10, 2)

	short := TermScore(idf, 1, 2, stats)
	long := TermScore(idf, 1, 8, stats)
	assert.Greater(t, short, long, "shorter fields score higher")

	once := TermScore(idf, 1, 4, stats)
	twice := TermScore(idf, 2, 4, stats)
	assert.Greater(t, twice, once)
	assert.Less(t, twice, 2*once, "term frequency saturates")

	assert.Zero(t, TermScore(idf, 1, 4, FieldStats{}))
}

func TestFuzzyBoost(t *testing.T) {
	assert.Equal(t, 1.0, FuzzyBoost(0, 5, 5))
	assert.InDelta(t, 0.8, FuzzyBoost(1, 5, 5), 1e-9)
	assert.InDelta(t, 0.6, FuzzyBoost(2, 5, 6), 1e-9)
	assert.Zero(t, FuzzyBoost(3, 2, 5))
	assert.Zero(t, FuzzyBoost(1, 0, 0))
}
