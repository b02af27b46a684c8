// Package indexer owns the on-disk product index: a buffer of uncommitted
// documents, immutable segment files, and a manifest that names the segments
// of the current committed generation. Searches read through snapshots and
// only ever see committed generations.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
)

// ErrClosed is the cause of every operation attempted after Close.
var ErrClosed = errors.New("engine closed")

// Stats describes the committed state of the index.
type Stats struct {
	Generation   uint64 `json:"generation"`
	Documents    int64  `json:"documents"`
	Segments     int    `json:"segments"`
	BufferedDocs int    `json:"buffered_docs"`
}

// Engine is the index store handle. All mutations (Clear, AddDocument,
// Commit) are serialised by writeMu; snapshots may be opened concurrently
// with each other and with writes.
type Engine struct {
	writeMu  sync.Mutex
	memIndex *index.MemoryIndex
	writer   *segment.Writer
	lock     *flock.Flock

	readerMu   sync.RWMutex
	live       []*segmentRef
	generation uint64
	nextSeq    uint64
	docCount   int64

	cfg    config.IndexerConfig
	logger *slog.Logger
	closed bool
}

// Open acquires the writer lock on cfg.DataDir and loads the last committed
// generation. Files left behind by an interrupted commit are removed.
func Open(cfg config.IndexerConfig) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating index data directory: %w", err)
	}
	lock := flock.New(filepath.Join(cfg.DataDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring index lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrIndexLocked, cfg.DataDir)
	}
	e := &Engine{
		memIndex: index.NewMemoryIndex(),
		writer:   segment.NewWriter(cfg.DataDir),
		lock:     lock,
		cfg:      cfg,
		logger:   slog.Default().With("component", "indexer"),
	}
	if err := e.loadManifest(); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("loading index: %w", err)
	}
	return e, nil
}

// AddDocument buffers doc for the next commit. It is not visible to searches
// until Commit succeeds.
func (e *Engine) AddDocument(doc index.Document) error {
	if strings.TrimSpace(doc.ProductID()) == "" {
		return apperrors.ErrMissingProductID
	}
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.closed {
		return &apperrors.IndexWriteError{Op: "add", Err: ErrClosed}
	}
	docNum := e.memIndex.AddDocument(doc)
	e.logger.Debug("document buffered",
		"product_id", doc.ProductID(),
		"buffer_doc", docNum,
		"buffer_size", e.memIndex.Size(),
	)
	return nil
}

// Commit makes every buffered document durable and visible. A commit with an
// empty buffer still publishes a new generation.
func (e *Engine) Commit() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.closed {
		return &apperrors.IndexWriteError{Op: "commit", Err: ErrClosed}
	}
	return e.commitLocked()
}

func (e *Engine) commitLocked() error {
	start := time.Now()
	batch := e.memIndex.Snapshot()

	e.readerMu.RLock()
	refs := append([]*segmentRef(nil), e.live...)
	next := &manifest{
		Generation: e.generation + 1,
		NextSeq:    e.nextSeq,
		DocCount:   e.docCount,
	}
	e.readerMu.RUnlock()

	var added *segmentRef
	if len(batch.Docs) > 0 {
		name := segment.Name(next.NextSeq)
		next.NextSeq++
		if err := e.writer.Write(name, batch); err != nil {
			return &apperrors.IndexWriteError{Op: "commit", Err: err}
		}
		reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
		if err != nil {
			os.Remove(filepath.Join(e.cfg.DataDir, name))
			return &apperrors.IndexWriteError{Op: "commit", Err: fmt.Errorf("opening new segment: %w", err)}
		}
		added = newSegmentRef(reader, e.logger)
		refs = append(refs, added)
		next.DocCount += int64(reader.DocCount())
	}
	next.Segments = segmentNames(refs)

	if err := writeManifest(e.cfg.DataDir, next); err != nil {
		if added != nil {
			added.retired.Store(true)
			added.release()
		}
		return &apperrors.IndexWriteError{Op: "commit", Err: err}
	}
	e.publish(next, refs)
	e.memIndex.Reset()

	e.logger.Info("index committed",
		"generation", next.Generation,
		"docs_added", len(batch.Docs),
		"total_docs", next.DocCount,
		"segments", len(refs),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if e.cfg.MaxSegmentsBeforeMerge > 0 && len(refs) > e.cfg.MaxSegmentsBeforeMerge {
		if err := e.mergeLocked(); err != nil {
			// The commit itself is durable; a failed merge only leaves more
			// segments than configured.
			e.logger.Error("segment merge failed", "error", err)
		}
	}
	return nil
}

// Clear removes every document. The empty generation is committed
// immediately and buffered documents are discarded.
func (e *Engine) Clear() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.closed {
		return &apperrors.IndexWriteError{Op: "clear", Err: ErrClosed}
	}
	e.readerMu.RLock()
	next := &manifest{
		Generation: e.generation + 1,
		NextSeq:    e.nextSeq,
		Segments:   []string{},
	}
	e.readerMu.RUnlock()
	if err := writeManifest(e.cfg.DataDir, next); err != nil {
		return &apperrors.IndexWriteError{Op: "clear", Err: err}
	}
	e.publish(next, nil)
	e.memIndex.Reset()
	e.logger.Info("index cleared", "generation", next.Generation)
	return nil
}

// mergeLocked rewrites all live segments as one. Snapshots opened earlier
// keep reading the old segments until they are released.
func (e *Engine) mergeLocked() error {
	e.readerMu.RLock()
	refs := append([]*segmentRef(nil), e.live...)
	next := &manifest{
		Generation: e.generation + 1,
		NextSeq:    e.nextSeq,
		DocCount:   e.docCount,
	}
	e.readerMu.RUnlock()
	if len(refs) < 2 {
		return nil
	}

	readers := make([]*segment.Reader, len(refs))
	for i, ref := range refs {
		readers[i] = ref.reader
	}
	batch, err := segment.Merge(readers)
	if err != nil {
		return err
	}
	name := segment.Name(next.NextSeq)
	next.NextSeq++
	if err := e.writer.Write(name, batch); err != nil {
		return fmt.Errorf("writing merged segment: %w", err)
	}
	reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
	if err != nil {
		os.Remove(filepath.Join(e.cfg.DataDir, name))
		return fmt.Errorf("opening merged segment: %w", err)
	}
	merged := newSegmentRef(reader, e.logger)
	next.Segments = []string{name}
	if err := writeManifest(e.cfg.DataDir, next); err != nil {
		merged.retired.Store(true)
		merged.release()
		return err
	}
	e.publish(next, []*segmentRef{merged})
	e.logger.Info("segments merged",
		"generation", next.Generation,
		"merged", len(refs),
		"segment", name,
		"docs", reader.DocCount(),
	)
	return nil
}

// publish swaps in the new live set and drops the engine's hold on segments
// that are no longer part of it.
func (e *Engine) publish(m *manifest, refs []*segmentRef) {
	keep := make(map[*segmentRef]struct{}, len(refs))
	for _, r := range refs {
		keep[r] = struct{}{}
	}
	e.readerMu.Lock()
	old := e.live
	e.live = refs
	e.generation = m.Generation
	e.nextSeq = m.NextSeq
	e.docCount = m.DocCount
	e.readerMu.Unlock()

	for _, r := range old {
		if _, ok := keep[r]; ok {
			continue
		}
		r.retired.Store(true)
		r.release()
	}
}

// OpenSnapshot returns a view of the current committed generation. The
// caller must Release it.
func (e *Engine) OpenSnapshot() (*Snapshot, error) {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	if e.closed {
		return nil, &apperrors.SnapshotOpenError{Err: ErrClosed}
	}
	return newSnapshot(e.generation, e.live), nil
}

// Generation returns the current committed generation.
func (e *Engine) Generation() uint64 {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	return e.generation
}

// Stats reports the committed document count and related counters.
func (e *Engine) Stats() Stats {
	e.readerMu.RLock()
	defer e.readerMu.RUnlock()
	return Stats{
		Generation:   e.generation,
		Documents:    e.docCount,
		Segments:     len(e.live),
		BufferedDocs: e.memIndex.DocCount(),
	}
}

// StartCommitLoop commits buffered documents every cfg.CommitInterval until
// ctx is cancelled, then performs a final commit. The returned channel is
// closed once the loop has exited; it is closed immediately when the
// interval is not positive.
func (e *Engine) StartCommitLoop(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if e.cfg.CommitInterval <= 0 {
		close(done)
		return done
	}
	ticker := time.NewTicker(e.cfg.CommitInterval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				if e.memIndex.DocCount() > 0 {
					e.logger.Info("commit loop stopping, committing buffered documents")
					e.loopCommit("final")
				}
				return
			case <-ticker.C:
				if e.memIndex.DocCount() > 0 {
					e.loopCommit("periodic")
				}
			}
		}
	}()
	return done
}

// loopCommit commits on behalf of the commit loop. An engine closed under
// the loop already committed its buffer in Close.
func (e *Engine) loopCommit(kind string) {
	err := e.Commit()
	if err == nil || errors.Is(err, ErrClosed) {
		return
	}
	e.logger.Error(kind+" commit failed", "error", err)
}

// Close commits buffered documents, releases the engine's segments and the
// writer lock. Outstanding snapshots stay readable until released.
func (e *Engine) Close() error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if e.closed {
		return nil
	}
	if e.memIndex.DocCount() > 0 {
		if err := e.commitLocked(); err != nil {
			e.logger.Error("final commit on close failed", "error", err)
		}
	}
	e.readerMu.Lock()
	old := e.live
	e.live = nil
	e.closed = true
	e.readerMu.Unlock()
	for _, r := range old {
		r.release()
	}
	if err := e.lock.Unlock(); err != nil {
		return fmt.Errorf("releasing index lock: %w", err)
	}
	return nil
}

func (e *Engine) loadManifest() error {
	m, err := readManifest(e.cfg.DataDir)
	if err != nil {
		return err
	}
	listed := make(map[string]struct{}, len(m.Segments))
	refs := make([]*segmentRef, 0, len(m.Segments))
	var docs int64
	for _, name := range m.Segments {
		reader, err := segment.OpenReader(filepath.Join(e.cfg.DataDir, name))
		if err != nil {
			for _, r := range refs {
				r.release()
			}
			return fmt.Errorf("opening segment %s: %w", name, err)
		}
		listed[name] = struct{}{}
		refs = append(refs, newSegmentRef(reader, e.logger))
		docs += int64(reader.DocCount())
		e.logger.Info("loaded segment",
			"segment", name,
			"terms", reader.Terms(),
			"docs", reader.DocCount(),
		)
	}
	e.removeOrphans(listed)
	e.live = refs
	e.generation = m.Generation
	e.nextSeq = m.NextSeq
	e.docCount = docs
	e.logger.Info("index recovery complete",
		"generation", m.Generation,
		"segments_loaded", len(refs),
		"documents", docs,
	)
	return nil
}

func (e *Engine) removeOrphans(listed map[string]struct{}) {
	entries, err := os.ReadDir(e.cfg.DataDir)
	if err != nil {
		e.logger.Warn("scanning for orphaned segments", "error", err)
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		orphan := strings.HasSuffix(name, ".tmp")
		if strings.HasSuffix(name, segment.Extension) {
			_, ok := listed[name]
			orphan = !ok
		}
		if !orphan {
			continue
		}
		if err := os.Remove(filepath.Join(e.cfg.DataDir, name)); err != nil {
			e.logger.Warn("removing orphaned file", "file", name, "error", err)
			continue
		}
		e.logger.Info("removed orphaned file", "file", name)
	}
}

func segmentNames(refs []*segmentRef) []string {
	names := make([]string, len(refs))
	for i, r := range refs {
		names[i] = r.reader.Name()
	}
	return names
}
