package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	cfg := config.Default()
	cfg.Store.Driver = "sqlite"
	cfg.SQLite.Path = ":memory:"
	s, err := Open(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *SQLStore) {
	t.Helper()
	require.NoError(t, s.InsertBatch(context.Background(), []catalog.Product{
		{ProductID: "P3", Supplier: "S2", ItemDescription: "Orange juice", DigitalBrandName: "Sunny"},
		{ProductID: "P1", Supplier: "S1", ItemDescription: "Diet cola", DigitalBrandName: "Coke"},
		{ProductID: "P2", Supplier: "S1", ItemDescription: "100% cola", DigitalBrandName: "Pepsi"},
	}))
}

func TestInsertAndListAll(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	var ids []string
	err := s.ListAll(context.Background(), func(p catalog.Product) error {
		ids = append(ids, p.ProductID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"P1", "P2", "P3"}, ids)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestInsertBatchUpserts(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	require.NoError(t, s.InsertBatch(context.Background(), []catalog.Product{
		{ProductID: "P1", Supplier: "S9", ItemDescription: "Zero cola"},
	}))

	p, err := s.Get(context.Background(), "P1")
	require.NoError(t, err)
	assert.Equal(t, "S9", p.Supplier)
	assert.Equal(t, "", p.DigitalBrandName)

	n, err := s.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestListAllStopsOnCallbackError(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	stop := errors.New("stop")
	calls := 0
	err := s.ListAll(context.Background(), func(catalog.Product) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, apperrors.ErrProductNotFound)
}

func TestGetManyPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	got, err := s.GetMany(context.Background(), []string{"P3", "missing", "P1", "P3"})
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, p := range got {
		ids[i] = p.ProductID
	}
	assert.Equal(t, []string{"P3", "P1", "P3"}, ids)

	empty, err := s.GetMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFindBySuppliers(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)
	got, err := s.FindBySuppliers(context.Background(), []string{"S1"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "P1", got[0].ProductID)

	got, err = s.FindBySuppliers(context.Background(), []string{"S1", "S2"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestSearchLike(t *testing.T) {
	s := newTestStore(t)
	seed(t, s)

	got, err := s.SearchLike(context.Background(), "COLA", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.SearchLike(context.Background(), "100%", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "P2", got[0].ProductID)

	got, err = s.SearchLike(context.Background(), "cola", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = s.SearchLike(context.Background(), "  ", 10)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: Postgres}
	assert.Equal(t, "a = $1 AND b IN ($2, $3)", pg.rebind("a = ? AND b IN (?, ?)"))
	lite := &SQLStore{dialect: SQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}
