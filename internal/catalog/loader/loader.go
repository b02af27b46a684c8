// Package loader imports the pipe-delimited product feed into the record
// store in concurrent batches.
package loader

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
)

// Columns is the number of fields a feed row must carry.
const Columns = 9

const maxLineBytes = 1 << 20

// Inserter persists a batch of products.
type Inserter interface {
	InsertBatch(ctx context.Context, products []catalog.Product) error
}

type ImportReport struct {
	Rows     int           `json:"rows"`
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Duration time.Duration `json:"-"`
}

type Loader struct {
	store       Inserter
	batchSize   int
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func New(store Inserter, cfg config.LoaderConfig, m *metrics.Metrics) *Loader {
	l := &Loader{
		store:       store,
		batchSize:   cfg.BatchSize,
		concurrency: cfg.Concurrency,
		metrics:     m,
		logger:      slog.Default().With("component", "feed-loader"),
	}
	if l.batchSize <= 0 {
		l.batchSize = 1000
	}
	if l.concurrency <= 0 {
		l.concurrency = 1
	}
	if l.metrics == nil {
		l.metrics = metrics.NewUnregistered()
	}
	return l
}

// ParseLine splits one feed row. The columns are, in order: supplier group
// id, product id, supplier, primary-supplier flag, item description, smkts
// category, liquor category, brand, sub-brand. Rows with fewer columns are
// rejected; extra columns are ignored.
func ParseLine(line string) (catalog.Product, bool) {
	f := strings.Split(line, "|")
	if len(f) < Columns {
		return catalog.Product{}, false
	}
	for i := range f[:Columns] {
		f[i] = strings.TrimSpace(f[i])
	}
	return catalog.Product{
		SupplierGroupID:    f[0],
		ProductID:          f[1],
		Supplier:           f[2],
		IsPrimarySupplier:  f[3],
		ItemDescription:    f[4],
		SmktsMerchCategory: f[5],
		LiqMerchCategory:   f[6],
		DigitalBrandName:   f[7],
		SubBrandName:       f[8],
	}, true
}

// ImportFile opens path and imports it.
func (l *Loader) ImportFile(ctx context.Context, path string) (ImportReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return ImportReport{}, fmt.Errorf("opening feed: %w", err)
	}
	defer f.Close()
	return l.Import(ctx, f)
}

// Import reads the feed from r, skipping the header row, and inserts rows in
// batches. The first failed batch cancels the rest; the report then counts
// only rows from batches that were stored.
func (l *Loader) Import(ctx context.Context, r io.Reader) (ImportReport, error) {
	start := time.Now()
	var report ImportReport
	var imported atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	flush := func(batch []catalog.Product) {
		g.Go(func() error {
			if err := l.store.InsertBatch(gctx, batch); err != nil {
				return fmt.Errorf("inserting batch of %d: %w", len(batch), err)
			}
			n := imported.Add(int64(len(batch)))
			l.metrics.LoaderRowsTotal.WithLabelValues("inserted").Add(float64(len(batch)))
			l.logger.Debug("batch stored", "imported_so_far", n)
			return nil
		})
	}

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLineBytes)
	header := true
	batch := make([]catalog.Product, 0, l.batchSize)
	var scanErr error
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		if gctx.Err() != nil {
			break
		}
		report.Rows++
		p, ok := ParseLine(sc.Text())
		if !ok {
			report.Skipped++
			l.metrics.LoaderRowsTotal.WithLabelValues("skipped").Inc()
			continue
		}
		batch = append(batch, p)
		if len(batch) >= l.batchSize {
			flush(batch)
			batch = make([]catalog.Product, 0, l.batchSize)
		}
	}
	if err := sc.Err(); err != nil {
		scanErr = fmt.Errorf("reading feed line %d: %w", report.Rows+2, err)
	}
	if len(batch) > 0 && scanErr == nil && gctx.Err() == nil {
		flush(batch)
	}
	err := g.Wait()
	report.Imported = int(imported.Load())
	report.Duration = time.Since(start)
	if err == nil {
		err = scanErr
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return report, err
	}
	l.logger.Info("feed imported",
		"rows", report.Rows,
		"imported", report.Imported,
		"skipped", report.Skipped,
		"duration", report.Duration.Round(time.Millisecond),
	)
	return report, nil
}
