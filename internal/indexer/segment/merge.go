package segment

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
)

// Merge combines readers, in order, into one batch. Document numbers of each
// reader are shifted by the document count of the readers before it, so the
// merged order matches the order documents were indexed in.
func Merge(readers []*Reader) (*index.Batch, error) {
	merged := make(map[index.TermKey]index.PostingList)
	batch := &index.Batch{}
	var base uint32
	for _, r := range readers {
		for _, entry := range r.dict {
			postings, err := r.ReadPostings(entry)
			if err != nil {
				return nil, fmt.Errorf("merging %s: %w", r.Name(), err)
			}
			key := index.TermKey{Field: entry.Field, Term: entry.Term}
			for _, p := range postings {
				p.Doc += base
				merged[key] = append(merged[key], p)
			}
		}
		batch.Docs = append(batch.Docs, r.docs...)
		base += r.DocCount()
	}
	batch.Terms = make([]index.TermEntry, 0, len(merged))
	for key, postings := range merged {
		batch.Terms = append(batch.Terms, index.TermEntry{
			Field:    key.Field,
			Term:     key.Term,
			Postings: postings,
		})
	}
	index.SortEntries(batch.Terms)
	return batch, nil
}
