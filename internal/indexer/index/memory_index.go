package index

import (
	"sort"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/tokenizer"
)

// MemoryIndex buffers documents that have been added but not yet committed.
// Nothing in the buffer is visible to searches.
type MemoryIndex struct {
	mu    sync.RWMutex
	index map[TermKey]map[uint32]*Posting
	docs  []DocRecord
	size  int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index: make(map[TermKey]map[uint32]*Posting),
	}
}

// AddDocument analyzes the searchable fields of doc and appends it to the
// buffer. It returns the buffer-local document number.
func (m *MemoryIndex) AddDocument(doc Document) uint32 {
	termData := make(map[TermKey]*Posting)
	lengths := make(map[string]int, len(doc.Text))

	m.mu.Lock()
	defer m.mu.Unlock()

	docNum := uint32(len(m.docs))
	for field, text := range doc.Text {
		if !IsSearchable(field) {
			continue
		}
		tokens := tokenizer.Tokenize(text)
		lengths[field] = len(tokens)
		for _, token := range tokens {
			key := TermKey{Field: field, Term: token.Term}
			p, exists := termData[key]
			if !exists {
				p = &Posting{
					Doc:       docNum,
					Positions: make([]int, 0, 2),
				}
				termData[key] = p
			}
			p.Frequency++
			p.Positions = append(p.Positions, token.Position)
		}
	}

	for key, posting := range termData {
		if _, exists := m.index[key]; !exists {
			m.index[key] = make(map[uint32]*Posting)
		}
		m.index[key][docNum] = posting
		m.size += int64(len(key.Field) + len(key.Term) + len(posting.Positions)*8 + 32)
	}

	stored := make(map[string]string, len(doc.Stored))
	for k, v := range doc.Stored {
		stored[k] = v
		m.size += int64(len(k) + len(v))
	}
	m.docs = append(m.docs, DocRecord{Stored: stored, Lengths: lengths})
	return docNum
}

// Snapshot freezes the buffer into a Batch sorted by field and term.
func (m *MemoryIndex) Snapshot() *Batch {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for key, docs := range m.index {
		postings := make(PostingList, 0, len(docs))
		for _, posting := range docs {
			postings = append(postings, *posting)
		}
		sort.Slice(postings, func(i, j int) bool {
			return postings[i].Doc < postings[j].Doc
		})
		entries = append(entries, TermEntry{
			Field:    key.Field,
			Term:     key.Term,
			Postings: postings,
		})
	}
	SortEntries(entries)
	docs := make([]DocRecord, len(m.docs))
	copy(docs, m.docs)
	return &Batch{Terms: entries, Docs: docs}
}

// SortEntries orders term entries by field, then term.
func SortEntries(entries []TermEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Field != entries[j].Field {
			return entries[i].Field < entries[j].Field
		}
		return entries[i].Term < entries[j].Term
	})
}

func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.index = make(map[TermKey]map[uint32]*Posting)
	m.docs = nil
	m.size = 0
}
