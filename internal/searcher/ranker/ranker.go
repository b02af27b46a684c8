// Package ranker scores postings with BM25 using per-field length
// normalisation.
package ranker

import (
	"math"
)

const (
	k1 = 1.2
	b  = 0.75
)

// ScoredDoc is a ranked hit. Doc is the global document number within the
// snapshot the query ran against.
type ScoredDoc struct {
	Doc       uint32  `json:"doc"`
	ProductID string  `json:"product_id"`
	Score     float64 `json:"score"`
}

// FieldStats are the collection statistics of one field in a snapshot.
type FieldStats struct {
	TotalDocs      int64
	AvgFieldLength float64
}

// IDF is the BM25 inverse document frequency of a term found in docFreq of
// totalDocs documents.
func IDF(totalDocs, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

// TermScore is the BM25 contribution of a term with frequency tf in a field
// of length fieldLen.
func TermScore(idf float64, tf, fieldLen int, stats FieldStats) float64 {
	return idf * computeTFNorm(float64(tf), float64(fieldLen), stats.AvgFieldLength)
}

// FuzzyBoost scales the score of a fuzzy expansion by its similarity to the
// query term: 1 for an exact match, falling linearly with edit distance.
func FuzzyBoost(distance, queryLen, termLen int) float64 {
	shorter := queryLen
	if termLen < shorter {
		shorter = termLen
	}
	if shorter == 0 {
		return 0
	}
	boost := 1 - float64(distance)/float64(shorter)
	if boost < 0 {
		return 0
	}
	return boost
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
