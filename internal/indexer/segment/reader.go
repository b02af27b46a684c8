package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
)

// Reader serves lookups against one immutable segment. The dictionary and
// document records are held in memory; postings are read on demand.
type Reader struct {
	file       *os.File
	filePath   string
	header     SegmentHeader
	dict       []DictEntry
	docs       []index.DocRecord
	fieldTotal map[string]int64
	postBase   int64
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func load(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	if info.Size() < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("invalid segment file: truncated (%d bytes)", info.Size())
	}
	headerBytes, err := readSection(f, 0, int64(HeaderSize))
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("invalid segment file: bad magic bytes %x", header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported segment version %d", header.Version)
	}
	footer, err := readSection(f, info.Size()-int64(FooterSize), int64(FooterSize))
	if err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}

	dictBytes, err := readSection(f, header.DictOffset, header.DictSize)
	if err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	if crc32.ChecksumIEEE(dictBytes) != binary.LittleEndian.Uint32(footer[0:4]) {
		return nil, fmt.Errorf("dictionary checksum mismatch in %s", filepath.Base(path))
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}

	docsBytes, err := readSection(f, header.DocsOffset, header.DocsSize)
	if err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}
	if crc32.ChecksumIEEE(docsBytes) != binary.LittleEndian.Uint32(footer[4:8]) {
		return nil, fmt.Errorf("document checksum mismatch in %s", filepath.Base(path))
	}
	var docs []index.DocRecord
	if err := json.Unmarshal(docsBytes, &docs); err != nil {
		return nil, fmt.Errorf("parsing documents: %w", err)
	}
	if uint32(len(docs)) != header.DocCount {
		return nil, fmt.Errorf("document count mismatch: header %d, section %d", header.DocCount, len(docs))
	}

	fieldTotal := make(map[string]int64)
	for _, d := range docs {
		for field, n := range d.Lengths {
			fieldTotal[field] += int64(n)
		}
	}
	return &Reader{
		file:       f,
		filePath:   path,
		header:     header,
		dict:       dict,
		docs:       docs,
		fieldTotal: fieldTotal,
		postBase:   header.PostOffset,
	}, nil
}

// Lookup finds the dictionary entry for an exact field/term pair.
func (r *Reader) Lookup(field, term string) (DictEntry, bool) {
	idx := r.lowerBound(field, term)
	if idx >= len(r.dict) || r.dict[idx].Field != field || r.dict[idx].Term != term {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

// Postings returns the posting list of field/term, or nil when absent.
func (r *Reader) Postings(field, term string) (index.PostingList, error) {
	entry, ok := r.Lookup(field, term)
	if !ok {
		return nil, nil
	}
	return r.ReadPostings(entry)
}

// ReadPostings loads the postings a dictionary entry points at.
func (r *Reader) ReadPostings(entry DictEntry) (index.PostingList, error) {
	postingsBytes, err := readSection(r.file, r.postBase+entry.PostOffset, int64(entry.PostLen))
	if err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

// PrefixTerms returns the dictionary entries of field whose term starts with
// prefix, in term order.
func (r *Reader) PrefixTerms(field, prefix string) []DictEntry {
	start := r.lowerBound(field, prefix)
	end := start
	for end < len(r.dict) && r.dict[end].Field == field && strings.HasPrefix(r.dict[end].Term, prefix) {
		end++
	}
	return r.dict[start:end]
}

// FieldTerms returns every dictionary entry of field.
func (r *Reader) FieldTerms(field string) []DictEntry {
	return r.PrefixTerms(field, "")
}

func (r *Reader) lowerBound(field, term string) int {
	return sort.Search(len(r.dict), func(i int) bool {
		e := r.dict[i]
		if e.Field != field {
			return e.Field > field
		}
		return e.Term >= term
	})
}

// Doc returns the record of local document num.
func (r *Reader) Doc(num uint32) index.DocRecord {
	return r.docs[num]
}

// FieldLengthTotal is the sum of analyzed lengths of field over all documents.
func (r *Reader) FieldLengthTotal(field string) int64 {
	return r.fieldTotal[field]
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

// Name returns the segment file name.
func (r *Reader) Name() string {
	return filepath.Base(r.filePath)
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Close() error {
	return r.file.Close()
}
