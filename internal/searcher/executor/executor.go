// Package executor evaluates query trees against an index snapshot and
// returns ranked hits.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/query"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/ranker"
)

// MaxFuzzyExpansions caps how many dictionary terms one fuzzy leaf expands to.
// The closest terms win.
const MaxFuzzyExpansions = 50

type SearchResult struct {
	Query      string             `json:"query"`
	Generation uint64             `json:"generation"`
	TotalHits  int                `json:"total_hits"`
	Results    []ranker.ScoredDoc `json:"results"`
}

// ProductIDs returns the product ids of the hits in rank order.
func (r *SearchResult) ProductIDs() []string {
	ids := make([]string, len(r.Results))
	for i, hit := range r.Results {
		ids[i] = hit.ProductID
	}
	return ids
}

type Executor struct {
	logger *slog.Logger
}

func New() *Executor {
	return &Executor{
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute evaluates q over snap and keeps the limit best hits. TotalHits
// counts every matching document. A nil query matches nothing.
func (e *Executor) Execute(ctx context.Context, snap *indexer.Snapshot, q query.Query, limit int) (*SearchResult, error) {
	result := &SearchResult{
		Generation: snap.Generation(),
		Results:    []ranker.ScoredDoc{},
	}
	if q == nil {
		return result, nil
	}
	result.Query = q.String()

	ev := &evaluator{
		ctx:   ctx,
		snap:  snap,
		segs:  snap.Segments(),
		stats: make(map[string]ranker.FieldStats),
	}
	matches, err := ev.eval(q)
	if err != nil {
		return nil, fmt.Errorf("evaluating %s: %w", q, err)
	}

	candidates := make([]ranker.ScoredDoc, 0, matches.docs.GetCardinality())
	it := matches.docs.Iterator()
	for it.HasNext() {
		doc := it.Next()
		candidates = append(candidates, ranker.ScoredDoc{Doc: doc, Score: matches.scores[doc]})
	}
	top := merger.TopK(candidates, limit)
	for i := range top {
		rec, ok := snap.Doc(top[i].Doc)
		if !ok {
			return nil, fmt.Errorf("document %d outside snapshot", top[i].Doc)
		}
		top[i].ProductID = rec.ProductID()
	}
	result.TotalHits = len(candidates)
	result.Results = top

	e.logger.Debug("query executed",
		"query", result.Query,
		"generation", result.Generation,
		"candidates", result.TotalHits,
		"results", len(top),
	)
	return result, nil
}

// matchSet is the documents a subtree matched, keyed by global document
// number, with their scores.
type matchSet struct {
	docs   *roaring.Bitmap
	scores map[uint32]float64
}

func emptySet() *matchSet {
	return &matchSet{docs: roaring.New(), scores: map[uint32]float64{}}
}

func (m *matchSet) add(doc uint32, score float64) {
	m.docs.Add(doc)
	m.scores[doc] += score
}

// maxMerge folds src into m, keeping the larger score per document.
func (m *matchSet) maxMerge(src *matchSet, boost float64) {
	it := src.docs.Iterator()
	for it.HasNext() {
		doc := it.Next()
		s := src.scores[doc] * boost
		if cur, ok := m.scores[doc]; !ok || s > cur {
			m.scores[doc] = s
		}
	}
	m.docs.Or(src.docs)
}

type evaluator struct {
	ctx   context.Context
	snap  *indexer.Snapshot
	segs  []*segment.Reader
	stats map[string]ranker.FieldStats
}

func (ev *evaluator) fieldStats(field string) ranker.FieldStats {
	if s, ok := ev.stats[field]; ok {
		return s
	}
	s := ranker.FieldStats{
		TotalDocs:      int64(ev.snap.DocCount()),
		AvgFieldLength: ev.snap.AvgFieldLength(field),
	}
	ev.stats[field] = s
	return s
}

func (ev *evaluator) eval(q query.Query) (*matchSet, error) {
	if err := ev.ctx.Err(); err != nil {
		return nil, err
	}
	switch q := q.(type) {
	case query.Term:
		return ev.term(q.Field, q.Text)
	case query.Phrase:
		return ev.phrase(q)
	case query.Prefix:
		return ev.prefix(q)
	case query.Fuzzy:
		return ev.fuzzy(q)
	case *query.Boolean:
		return ev.boolean(q)
	case query.MatchNone:
		return emptySet(), nil
	default:
		return nil, fmt.Errorf("unsupported query node %T", q)
	}
}

func (ev *evaluator) term(field, text string) (*matchSet, error) {
	out := emptySet()
	stats := ev.fieldStats(field)
	idf := ranker.IDF(stats.TotalDocs, int64(ev.snap.DocFreq(field, text)))
	for i, seg := range ev.segs {
		postings, err := seg.Postings(field, text)
		if err != nil {
			return nil, fmt.Errorf("reading %s:%s from %s: %w", field, text, seg.Name(), err)
		}
		base := ev.snap.Base(i)
		for _, p := range postings {
			fieldLen := seg.Doc(p.Doc).Lengths[field]
			out.add(base+p.Doc, ranker.TermScore(idf, p.Frequency, fieldLen, stats))
		}
	}
	return out, nil
}

func (ev *evaluator) phrase(q query.Phrase) (*matchSet, error) {
	if len(q.Terms) == 0 {
		return emptySet(), nil
	}
	if len(q.Terms) == 1 {
		return ev.term(q.Field, q.Terms[0])
	}
	type hit struct {
		doc      uint32
		freq     int
		fieldLen int
	}
	var hits []hit
	for i, seg := range ev.segs {
		lists := make([]map[uint32]index.Posting, len(q.Terms))
		var first index.PostingList
		missing := false
		for k, term := range q.Terms {
			postings, err := seg.Postings(q.Field, term)
			if err != nil {
				return nil, fmt.Errorf("reading %s:%s from %s: %w", q.Field, term, seg.Name(), err)
			}
			if len(postings) == 0 {
				missing = true
				break
			}
			if k == 0 {
				first = postings
			}
			byDoc := make(map[uint32]index.Posting, len(postings))
			for _, p := range postings {
				byDoc[p.Doc] = p
			}
			lists[k] = byDoc
		}
		if missing {
			continue
		}
		base := ev.snap.Base(i)
		for _, p := range first {
			if freq := phraseFreq(p, lists); freq > 0 {
				hits = append(hits, hit{
					doc:      base + p.Doc,
					freq:     freq,
					fieldLen: seg.Doc(p.Doc).Lengths[q.Field],
				})
			}
		}
	}

	out := emptySet()
	stats := ev.fieldStats(q.Field)
	var idf float64
	for _, term := range q.Terms {
		idf += ranker.IDF(stats.TotalDocs, int64(ev.snap.DocFreq(q.Field, term)))
	}
	for _, h := range hits {
		out.add(h.doc, ranker.TermScore(idf, h.freq, h.fieldLen, stats))
	}
	return out, nil
}

// phraseFreq counts the start positions in first at which every following
// term occurs at the next position.
func phraseFreq(first index.Posting, lists []map[uint32]index.Posting) int {
	positions := make([]map[int]struct{}, len(lists))
	for k := 1; k < len(lists); k++ {
		p, ok := lists[k][first.Doc]
		if !ok {
			return 0
		}
		set := make(map[int]struct{}, len(p.Positions))
		for _, pos := range p.Positions {
			set[pos] = struct{}{}
		}
		positions[k] = set
	}
	freq := 0
	for _, start := range first.Positions {
		matched := true
		for k := 1; k < len(lists); k++ {
			if _, ok := positions[k][start+k]; !ok {
				matched = false
				break
			}
		}
		if matched {
			freq++
		}
	}
	return freq
}

func (ev *evaluator) prefix(q query.Prefix) (*matchSet, error) {
	terms := make(map[string]struct{})
	for _, seg := range ev.segs {
		for _, entry := range seg.PrefixTerms(q.Field, q.Prefix) {
			terms[entry.Term] = struct{}{}
		}
	}
	out := emptySet()
	for _, term := range sortedKeys(terms) {
		m, err := ev.term(q.Field, term)
		if err != nil {
			return nil, err
		}
		out.maxMerge(m, 1)
	}
	return out, nil
}

type expansion struct {
	term     string
	distance int
}

func (ev *evaluator) fuzzy(q query.Fuzzy) (*matchSet, error) {
	target := []rune(q.Text)
	seen := make(map[string]struct{})
	var candidates []expansion
	for _, seg := range ev.segs {
		for _, entry := range seg.FieldTerms(q.Field) {
			if _, ok := seen[entry.Term]; ok {
				continue
			}
			seen[entry.Term] = struct{}{}
			if d := editDistance(target, []rune(entry.Term), q.MaxEdits); d <= q.MaxEdits {
				candidates = append(candidates, expansion{term: entry.Term, distance: d})
			}
		}
		if err := ev.ctx.Err(); err != nil {
			return nil, err
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		return candidates[i].term < candidates[j].term
	})
	if len(candidates) > MaxFuzzyExpansions {
		candidates = candidates[:MaxFuzzyExpansions]
	}

	out := emptySet()
	queryLen := tokenizer.Length(q.Text)
	for _, c := range candidates {
		boost := ranker.FuzzyBoost(c.distance, queryLen, tokenizer.Length(c.term))
		if boost == 0 {
			continue
		}
		m, err := ev.term(q.Field, c.term)
		if err != nil {
			return nil, err
		}
		out.maxMerge(m, boost)
	}
	return out, nil
}

func (ev *evaluator) boolean(q *query.Boolean) (*matchSet, error) {
	var must, should, mustNot []*matchSet
	for _, c := range q.Clauses {
		m, err := ev.eval(c.Query)
		if err != nil {
			return nil, err
		}
		switch c.Occur {
		case query.Must:
			must = append(must, m)
		case query.MustNot:
			mustNot = append(mustNot, m)
		default:
			should = append(should, m)
		}
	}

	var docs *roaring.Bitmap
	switch {
	case len(must) > 0:
		bitmaps := make([]*roaring.Bitmap, len(must))
		for i, m := range must {
			bitmaps[i] = m.docs
		}
		docs = roaring.FastAnd(bitmaps...)
	case len(should) > 0:
		bitmaps := make([]*roaring.Bitmap, len(should))
		for i, m := range should {
			bitmaps[i] = m.docs
		}
		docs = roaring.FastOr(bitmaps...)
	default:
		return emptySet(), nil
	}
	for _, m := range mustNot {
		docs.AndNot(m.docs)
	}

	out := &matchSet{docs: docs, scores: make(map[uint32]float64, docs.GetCardinality())}
	it := docs.Iterator()
	for it.HasNext() {
		doc := it.Next()
		var score float64
		for _, m := range must {
			score += m.scores[doc]
		}
		for _, m := range should {
			score += m.scores[doc]
		}
		out.scores[doc] = score
	}
	return out, nil
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
