package segment

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
)

func buildBatch(products ...catalog.Product) *index.Batch {
	m := index.NewMemoryIndex()
	for _, p := range products {
		m.AddDocument(index.FromProduct(p))
	}
	return m.Snapshot()
}

func writeSegment(t *testing.T, dir string, seq uint64, products ...catalog.Product) *Reader {
	t.Helper()
	w := NewWriter(dir)
	name := Name(seq)
	require.NoError(t, w.Write(name, buildBatch(products...)))
	r, err := OpenReader(filepath.Join(dir, name))
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	r := writeSegment(t, dir, 1,
		catalog.Product{ProductID: "P1", Supplier: "Acme Beverage Co", ItemDescription: "cola cola"},
		catalog.Product{ProductID: "P2", Supplier: "Zed Foods", ItemDescription: "cola crisps"},
	)

	assert.Equal(t, uint32(2), r.DocCount())
	assert.Equal(t, "seg_0000000001.spdx", r.Name())
	assert.Equal(t, "P2", r.Doc(1).ProductID())

	postings, err := r.Postings(index.FieldItemDescription, "cola")
	require.NoError(t, err)
	require.Len(t, postings, 2)
	assert.Equal(t, 2, postings[0].Frequency)
	assert.Equal(t, uint32(1), postings[1].Doc)

	missing, err := r.Postings(index.FieldSupplier, "cola")
	require.NoError(t, err)
	assert.Nil(t, missing)

	assert.Equal(t, int64(4), r.FieldLengthTotal(index.FieldItemDescription))

	_, err = os.Stat(filepath.Join(dir, Name(1)+".tmp"))
	assert.True(t, os.IsNotExist(err), "temp file left behind")
}

func TestPrefixAndFieldTerms(t *testing.T) {
	r := writeSegment(t, t.TempDir(), 1,
		catalog.Product{ProductID: "P1", DigitalBrandName: "Coke"},
		catalog.Product{ProductID: "P2", DigitalBrandName: "Cokely"},
		catalog.Product{ProductID: "P3", DigitalBrandName: "Cake"},
	)

	var prefixed []string
	for _, e := range r.PrefixTerms(index.FieldBrand, "coke") {
		prefixed = append(prefixed, e.Term)
	}
	assert.Equal(t, []string{"coke", "cokely"}, prefixed)

	var all []string
	for _, e := range r.FieldTerms(index.FieldBrand) {
		all = append(all, e.Term)
	}
	assert.Equal(t, []string{"cake", "coke", "cokely"}, all)

	assert.Empty(t, r.PrefixTerms(index.FieldBrand, "pepsi"))
	assert.Empty(t, r.FieldTerms("unknown"))
}

func TestWriteRejectsEmptyBatch(t *testing.T) {
	w := NewWriter(t.TempDir())
	assert.Error(t, w.Write(Name(1), &index.Batch{}))
}

func TestOpenReaderRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, Name(9))
	require.NoError(t, os.WriteFile(path, make([]byte, HeaderSize+FooterSize), 0644))

	_, err := OpenReader(path)
	assert.ErrorContains(t, err, "bad magic")

	require.NoError(t, os.WriteFile(path, []byte("short"), 0644))
	_, err = OpenReader(path)
	assert.ErrorContains(t, err, "truncated")
}

func TestOpenReaderDetectsChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	r := writeSegment(t, dir, 1, catalog.Product{ProductID: "P1", Supplier: "Acme"})
	path := r.Path()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[r.header.DictOffset+2] ^= 0xff
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err = OpenReader(path)
	assert.ErrorContains(t, err, "checksum")
}

func TestMerge(t *testing.T) {
	dir := t.TempDir()
	a := writeSegment(t, dir, 1,
		catalog.Product{ProductID: "P1", Supplier: "Acme"},
		catalog.Product{ProductID: "P2", Supplier: "Zed"},
	)
	b := writeSegment(t, dir, 2,
		catalog.Product{ProductID: "P3", Supplier: "Acme"},
	)

	batch, err := Merge([]*Reader{a, b})
	require.NoError(t, err)
	require.Len(t, batch.Docs, 3)
	assert.Equal(t, "P3", batch.Docs[2].ProductID())

	var acme index.PostingList
	for _, e := range batch.Terms {
		if e.Field == index.FieldSupplier && e.Term == "acme" {
			acme = e.Postings
		}
	}
	require.Len(t, acme, 2)
	assert.Equal(t, uint32(0), acme[0].Doc)
	assert.Equal(t, uint32(2), acme[1].Doc)

	require.NoError(t, NewWriter(dir).Write(Name(3), batch))
	merged, err := OpenReader(filepath.Join(dir, Name(3)))
	require.NoError(t, err)
	defer merged.Close()
	assert.Equal(t, uint32(3), merged.DocCount())
}
