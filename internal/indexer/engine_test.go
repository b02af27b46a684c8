package indexer

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
)

func testConfig(dir string) config.IndexerConfig {
	return config.IndexerConfig{
		DataDir:   dir,
		BatchSize: 1000,
	}
}

func openEngine(t *testing.T, cfg config.IndexerConfig) *Engine {
	t.Helper()
	e, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func doc(id, supplier string) index.Document {
	return index.FromProduct(catalog.Product{ProductID: id, Supplier: supplier})
}

func TestAddIsInvisibleUntilCommit(t *testing.T) {
	e := openEngine(t, testConfig(t.TempDir()))

	require.NoError(t, e.AddDocument(doc("P1", "Acme")))
	assert.Zero(t, e.Stats().Documents)
	assert.Equal(t, 1, e.Stats().BufferedDocs)

	snap, err := e.OpenSnapshot()
	require.NoError(t, err)
	assert.Zero(t, snap.DocCount())
	snap.Release()

	require.NoError(t, e.Commit())
	assert.Equal(t, int64(1), e.Stats().Documents)
	assert.Zero(t, e.Stats().BufferedDocs)
}

func TestSnapshotIsolation(t *testing.T) {
	e := openEngine(t, testConfig(t.TempDir()))
	require.NoError(t, e.AddDocument(doc("P1", "Acme")))
	require.NoError(t, e.Commit())

	before, err := e.OpenSnapshot()
	require.NoError(t, err)
	defer before.Release()

	require.NoError(t, e.AddDocument(doc("P2", "Acme")))
	require.NoError(t, e.Commit())

	after, err := e.OpenSnapshot()
	require.NoError(t, err)
	defer after.Release()

	assert.Equal(t, uint32(1), before.DocCount())
	assert.Equal(t, uint32(2), after.DocCount())
	assert.Greater(t, after.Generation(), before.Generation())

	rec, ok := after.Doc(1)
	require.True(t, ok)
	assert.Equal(t, "P2", rec.ProductID())
	_, ok = before.Doc(1)
	assert.False(t, ok)
}

func TestDuplicatesAccumulate(t *testing.T) {
	e := openEngine(t, testConfig(t.TempDir()))
	require.NoError(t, e.AddDocument(doc("P1", "Acme")))
	require.NoError(t, e.AddDocument(doc("P1", "Acme")))
	require.NoError(t, e.Commit())

	snap, err := e.OpenSnapshot()
	require.NoError(t, err)
	defer snap.Release()
	assert.Equal(t, 2, snap.DocFreq(index.FieldSupplier, "acme"))
	assert.Equal(t, int64(2), e.Stats().Documents)
}

func TestClear(t *testing.T) {
	e := openEngine(t, testConfig(t.TempDir()))
	require.NoError(t, e.AddDocument(doc("P1", "Acme")))
	require.NoError(t, e.Commit())
	require.NoError(t, e.AddDocument(doc("P2", "Acme")))

	require.NoError(t, e.Clear())
	assert.Zero(t, e.Stats().Documents)
	assert.Zero(t, e.Stats().BufferedDocs, "clear discards the buffer")

	require.NoError(t, e.Commit())
	assert.Zero(t, e.Stats().Documents, "empty commit keeps the index empty")
}

func TestClearOnEmptyStore(t *testing.T) {
	e := openEngine(t, testConfig(t.TempDir()))
	require.NoError(t, e.Clear())
	require.NoError(t, e.Clear())
	assert.Zero(t, e.Stats().Documents)
}

func TestEmptyCommitAdvancesGeneration(t *testing.T) {
	e := openEngine(t, testConfig(t.TempDir()))
	g := e.Generation()
	require.NoError(t, e.Commit())
	assert.Equal(t, g+1, e.Generation())
	assert.Zero(t, e.Stats().Segments)
}

func TestMissingProductID(t *testing.T) {
	e := openEngine(t, testConfig(t.TempDir()))
	err := e.AddDocument(doc("  ", "Acme"))
	assert.ErrorIs(t, err, apperrors.ErrMissingProductID)
}

func TestRetiredSegmentsOutliveSnapshots(t *testing.T) {
	dir := t.TempDir()
	e := openEngine(t, testConfig(dir))
	require.NoError(t, e.AddDocument(doc("P1", "Acme")))
	require.NoError(t, e.Commit())

	snap, err := e.OpenSnapshot()
	require.NoError(t, err)
	require.NoError(t, e.Clear())

	segPath := filepath.Join(dir, segment.Name(0))
	_, err = os.Stat(segPath)
	require.NoError(t, err, "segment must survive while a snapshot holds it")

	postings, err := snap.Segments()[0].Postings(index.FieldSupplier, "acme")
	require.NoError(t, err)
	assert.Len(t, postings, 1)

	snap.Release()
	snap.Release()
	_, err = os.Stat(segPath)
	assert.True(t, os.IsNotExist(err))
}

func TestReopenRecoversCommittedState(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)

	e, err := Open(cfg)
	require.NoError(t, err)
	require.NoError(t, e.AddDocument(doc("P1", "Acme")))
	require.NoError(t, e.Commit())
	require.NoError(t, e.AddDocument(doc("P2", "Acme")))
	require.NoError(t, e.Close())

	orphan := filepath.Join(dir, segment.Name(99))
	require.NoError(t, os.WriteFile(orphan, []byte("junk"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json.tmp"), []byte("{"), 0644))

	reopened := openEngine(t, cfg)
	assert.Equal(t, int64(2), reopened.Stats().Documents, "close commits buffered documents")
	_, err = os.Stat(orphan)
	assert.True(t, os.IsNotExist(err), "orphaned segment removed")
	_, err = os.Stat(filepath.Join(dir, "manifest.json.tmp"))
	assert.True(t, os.IsNotExist(err), "temp manifest removed")
}

func TestWriterLockIsExclusive(t *testing.T) {
	dir := t.TempDir()
	openEngine(t, testConfig(dir))

	_, err := Open(testConfig(dir))
	assert.True(t, errors.Is(err, apperrors.ErrIndexLocked), "got %v", err)
}

func TestMergeKeepsDocumentOrder(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.MaxSegmentsBeforeMerge = 2
	e := openEngine(t, cfg)

	for _, id := range []string{"P1", "P2", "P3"} {
		require.NoError(t, e.AddDocument(doc(id, "Acme")))
		require.NoError(t, e.Commit())
	}
	st := e.Stats()
	assert.Equal(t, 1, st.Segments)
	assert.Equal(t, int64(3), st.Documents)

	snap, err := e.OpenSnapshot()
	require.NoError(t, err)
	defer snap.Release()
	for i, want := range []string{"P1", "P2", "P3"} {
		rec, ok := snap.Doc(uint32(i))
		require.True(t, ok)
		assert.Equal(t, want, rec.ProductID())
	}
}

func TestClosedEngineRejectsWork(t *testing.T) {
	e, err := Open(testConfig(t.TempDir()))
	require.NoError(t, err)
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	assert.ErrorIs(t, e.AddDocument(doc("P1", "Acme")), apperrors.ErrIndexWrite)
	assert.ErrorIs(t, e.Commit(), apperrors.ErrIndexWrite)
	assert.ErrorIs(t, e.Commit(), ErrClosed)
	_, err = e.OpenSnapshot()
	assert.ErrorIs(t, err, apperrors.ErrSnapshotOpen)
}

func TestCommitLoop(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.CommitInterval = 10 * time.Millisecond
	e := openEngine(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.StartCommitLoop(ctx)
	require.NoError(t, e.AddDocument(doc("P1", "Acme")))
	assert.Eventually(t, func() bool { return e.Stats().Documents == 1 }, time.Second, 5*time.Millisecond)
}

func TestCommitLoopCommitsOnCancel(t *testing.T) {
	cfg := testConfig(t.TempDir())
	cfg.CommitInterval = time.Hour
	e := openEngine(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := e.StartCommitLoop(ctx)
	require.NoError(t, e.AddDocument(doc("P1", "Acme")))
	cancel()
	<-done
	assert.Equal(t, int64(1), e.Stats().Documents)
}

func TestCommitLoopDisabled(t *testing.T) {
	e := openEngine(t, testConfig(t.TempDir()))
	select {
	case <-e.StartCommitLoop(context.Background()):
	default:
		t.Fatal("loop without an interval should report done immediately")
	}
}

func TestLoopCommitAfterCloseIsQuiet(t *testing.T) {
	e := openEngine(t, testConfig(t.TempDir()))
	require.NoError(t, e.AddDocument(doc("P1", "Acme")))
	require.NoError(t, e.Close())

	var logs bytes.Buffer
	e.logger = slog.New(slog.NewTextHandler(&logs, nil))
	e.loopCommit("final")
	assert.Empty(t, logs.String())
}
