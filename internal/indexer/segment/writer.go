package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 32
	Extension            = ".spdx"
)

// SegmentHeader is the 64-byte header at the start of every segment.
// Layout: magic, version, term count, doc count (4 bytes each), then the
// offset and size of the postings, dictionary and document sections
// (8 bytes each).
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	TermCount  uint32
	DocCount   uint32
	PostOffset int64
	PostSize   int64
	DictOffset int64
	DictSize   int64
	DocsOffset int64
	DocsSize   int64
}

// DictEntry maps a field/term pair to its postings offset, length, and
// document frequency in the segment file.
type DictEntry struct {
	Field      string `json:"f"`
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// Writer serialises batches into new .spdx segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Name returns the file name used for segment sequence number seq.
func Name(seq uint64) string {
	return fmt.Sprintf("seg_%010d%s", seq, Extension)
}

// Write atomically creates segment name from batch. It writes to a .tmp file,
// syncs, and renames on success. A batch with no documents is rejected.
func (w *Writer) Write(name string, batch *index.Batch) error {
	if batch == nil || len(batch.Docs) == 0 {
		return fmt.Errorf("cannot write empty segment")
	}
	finalPath := filepath.Join(w.dataDir, name)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp segment file: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			f.Close()
			os.Remove(tmpPath)
		}
	}()

	headerBytes := make([]byte, HeaderSize)
	if _, err := f.Write(headerBytes); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	postingsStart := int64(HeaderSize)
	offset := postingsStart
	dict := make([]DictEntry, 0, len(batch.Terms))
	for _, entry := range batch.Terms {
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return fmt.Errorf("marshaling postings for %s:%q: %w", entry.Field, entry.Term, err)
		}
		if _, err := f.Write(postingsData); err != nil {
			return fmt.Errorf("writing postings for %s:%q: %w", entry.Field, entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Field:      entry.Field,
			Term:       entry.Term,
			PostOffset: offset - postingsStart,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
		})
		offset += int64(len(postingsData))
	}
	postingsSize := offset - postingsStart

	dictData, err := json.Marshal(dict)
	if err != nil {
		return fmt.Errorf("marshaling dictionary: %w", err)
	}
	dictStart := offset
	if _, err := f.Write(dictData); err != nil {
		return fmt.Errorf("writing dictionary: %w", err)
	}
	offset += int64(len(dictData))

	docsData, err := json.Marshal(batch.Docs)
	if err != nil {
		return fmt.Errorf("marshaling documents: %w", err)
	}
	docsStart := offset
	if _, err := f.Write(docsData); err != nil {
		return fmt.Errorf("writing documents: %w", err)
	}

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], crc32.ChecksumIEEE(docsData))
	binary.LittleEndian.PutUint32(footer[8:12], uint32(len(batch.Docs)))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(time.Now().Unix()))
	if _, err := f.Write(footer); err != nil {
		return fmt.Errorf("writing footer: %w", err)
	}

	header := SegmentHeader{
		Magic:      MagicBytes,
		Version:    FormatVersion,
		TermCount:  uint32(len(dict)),
		DocCount:   uint32(len(batch.Docs)),
		PostOffset: postingsStart,
		PostSize:   postingsSize,
		DictOffset: dictStart,
		DictSize:   int64(len(dictData)),
		DocsOffset: docsStart,
		DocsSize:   int64(len(docsData)),
	}
	encodeHeader(headerBytes, header)
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
		return fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing segment file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing segment file: %w", err)
	}
	ok = true
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming segment file: %w", err)
	}
	return nil
}

func encodeHeader(buf []byte, h SegmentHeader) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(h.DocsOffset))
	binary.LittleEndian.PutUint64(buf[56:64], uint64(h.DocsSize))
}

func decodeHeader(buf []byte) SegmentHeader {
	return SegmentHeader{
		Magic:      binary.LittleEndian.Uint32(buf[0:4]),
		Version:    binary.LittleEndian.Uint32(buf[4:8]),
		TermCount:  binary.LittleEndian.Uint32(buf[8:12]),
		DocCount:   binary.LittleEndian.Uint32(buf[12:16]),
		PostOffset: int64(binary.LittleEndian.Uint64(buf[16:24])),
		PostSize:   int64(binary.LittleEndian.Uint64(buf[24:32])),
		DictOffset: int64(binary.LittleEndian.Uint64(buf[32:40])),
		DictSize:   int64(binary.LittleEndian.Uint64(buf[40:48])),
		DocsOffset: int64(binary.LittleEndian.Uint64(buf[48:56])),
		DocsSize:   int64(binary.LittleEndian.Uint64(buf[56:64])),
	}
}

// readSection reads size bytes at off.
func readSection(r io.ReaderAt, off, size int64) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := r.ReadAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}
