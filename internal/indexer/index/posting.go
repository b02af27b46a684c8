package index

// Posting records one document's occurrences of a term within a segment.
// Doc is the segment-local document number.
type Posting struct {
	Doc       uint32 `json:"d"`
	Frequency int    `json:"f"`
	Positions []int  `json:"p"`
}

type PostingList []Posting

// TermKey addresses a term within a field.
type TermKey struct {
	Field string
	Term  string
}

type TermEntry struct {
	Field    string
	Term     string
	Postings PostingList
}

// DocRecord is what a segment keeps per document besides postings: the
// stored fields and the analyzed length of each searchable field.
type DocRecord struct {
	Stored  map[string]string `json:"s"`
	Lengths map[string]int    `json:"l"`
}

// ProductID returns the stored product id of the record.
func (d DocRecord) ProductID() string {
	return d.Stored[FieldProductID]
}

// Batch is a frozen copy of buffered documents ready to be written as a
// segment. Terms are sorted by field then term; Docs are in insertion order
// and their index is the local document number.
type Batch struct {
	Terms []TermEntry
	Docs  []DocRecord
}
