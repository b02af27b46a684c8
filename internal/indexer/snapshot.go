package indexer

import (
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/segment"
)

// segmentRef keeps a segment reader open while the engine or any snapshot
// uses it. A retired segment is closed and its file removed when the last
// reference is dropped.
type segmentRef struct {
	reader  *segment.Reader
	refs    atomic.Int32
	retired atomic.Bool
	logger  *slog.Logger
}

func newSegmentRef(r *segment.Reader, logger *slog.Logger) *segmentRef {
	ref := &segmentRef{reader: r, logger: logger}
	ref.refs.Store(1)
	return ref
}

func (s *segmentRef) acquire() {
	s.refs.Add(1)
}

func (s *segmentRef) release() {
	if s.refs.Add(-1) != 0 {
		return
	}
	if err := s.reader.Close(); err != nil {
		s.logger.Error("closing segment reader", "segment", s.reader.Name(), "error", err)
	}
	if s.retired.Load() {
		if err := os.Remove(s.reader.Path()); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("removing retired segment", "segment", s.reader.Name(), "error", err)
		} else {
			s.logger.Debug("retired segment removed", "segment", s.reader.Name())
		}
	}
}

// Snapshot is an immutable view of one committed generation. Documents
// committed after the snapshot was opened are never visible through it.
// Global document numbers run across segments in commit order.
type Snapshot struct {
	generation uint64
	segments   []*segmentRef
	bases      []uint32
	docCount   uint32
	released   atomic.Bool
}

func newSnapshot(generation uint64, refs []*segmentRef) *Snapshot {
	s := &Snapshot{
		generation: generation,
		segments:   refs,
		bases:      make([]uint32, len(refs)),
	}
	for i, ref := range refs {
		ref.acquire()
		s.bases[i] = s.docCount
		s.docCount += ref.reader.DocCount()
	}
	return s
}

// Generation is the manifest generation this snapshot was opened at.
func (s *Snapshot) Generation() uint64 {
	return s.generation
}

// DocCount is the number of committed documents visible in the snapshot.
func (s *Snapshot) DocCount() uint32 {
	return s.docCount
}

// Segments returns the readers of the snapshot in commit order.
func (s *Snapshot) Segments() []*segment.Reader {
	out := make([]*segment.Reader, len(s.segments))
	for i, ref := range s.segments {
		out[i] = ref.reader
	}
	return out
}

// Base returns the global document number of the first document of segment i.
func (s *Snapshot) Base(i int) uint32 {
	return s.bases[i]
}

// Doc resolves a global document number to its record.
func (s *Snapshot) Doc(global uint32) (index.DocRecord, bool) {
	if global >= s.docCount {
		return index.DocRecord{}, false
	}
	lo, hi := 0, len(s.bases)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if s.bases[mid] <= global {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return s.segments[lo].reader.Doc(global - s.bases[lo]), true
}

// AvgFieldLength is the mean analyzed length of field across the snapshot.
func (s *Snapshot) AvgFieldLength(field string) float64 {
	if s.docCount == 0 {
		return 0
	}
	var total int64
	for _, ref := range s.segments {
		total += ref.reader.FieldLengthTotal(field)
	}
	return float64(total) / float64(s.docCount)
}

// DocFreq is the number of documents containing field/term in the snapshot.
func (s *Snapshot) DocFreq(field, term string) int {
	df := 0
	for _, ref := range s.segments {
		if e, ok := ref.reader.Lookup(field, term); ok {
			df += e.DocFreq
		}
	}
	return df
}

// Release drops the snapshot's hold on its segments. It is safe to call more
// than once.
func (s *Snapshot) Release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	for _, ref := range s.segments {
		ref.release()
	}
}
