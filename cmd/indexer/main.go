package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog/events"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog/store"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
)

// The indexer rebuilds the on-disk index from the product store while the
// catalog service is down. With -request it asks a running service to
// rebuild over Kafka instead.
func main() {
	configPath := flag.String("config", "", "path to config file")
	request := flag.Bool("request", false, "publish a reindex request instead of rebuilding locally")
	reason := flag.String("reason", "manual", "reason recorded with the rebuild")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *request {
		err = requestRebuild(ctx, cfg, *reason)
	} else {
		err = rebuild(ctx, cfg, *reason)
	}
	if err != nil {
		slog.Error("indexer failed", "error", err)
		os.Exit(1)
	}
}

func requestRebuild(ctx context.Context, cfg *config.Config, reason string) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka.brokers is empty; cannot publish a reindex request")
	}
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Reindex)
	defer producer.Close()
	if err := events.RequestReindex(ctx, producer, reason); err != nil {
		return err
	}
	slog.Info("reindex requested", "topic", cfg.Kafka.Topics.Reindex, "reason", reason)
	return nil
}

func rebuild(ctx context.Context, cfg *config.Config, reason string) error {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	engine, err := indexer.Open(cfg.Indexer)
	if err != nil {
		if errors.Is(err, apperrors.ErrIndexLocked) {
			slog.Error("index is held by a running service; use -request", "data_dir", cfg.Indexer.DataDir)
		}
		return err
	}
	defer engine.Close()

	svc := searcher.NewService(engine, st, cfg.Search,
		searcher.WithMetrics(metrics.NewUnregistered()),
		searcher.WithCommitBatch(cfg.Indexer.BatchSize),
	)
	slog.Info("rebuilding index", "data_dir", cfg.Indexer.DataDir, "reason", reason)
	report, err := svc.IndexAll(ctx)
	if err != nil && !errors.Is(err, apperrors.ErrPartialReindex) {
		return err
	}
	ixStats := svc.IndexStats()
	slog.Info("index rebuilt",
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration,
		"generation", ixStats.Generation,
		"segments", ixStats.Segments,
	)

	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer producer.Close()
		done := events.IndexCompleted{
			Reason:      reason,
			Indexed:     report.Indexed,
			Skipped:     report.Skipped,
			Failed:      report.Failed,
			DurationMs:  report.Duration.Milliseconds(),
			CompletedAt: time.Now().UTC(),
		}
		if err != nil {
			done.Error = err.Error()
		}
		if perr := producer.Publish(ctx, kafka.Event{Key: "index", Value: done}); perr != nil {
			slog.Warn("failed to publish index-complete", "error", perr)
		}
	}
	return err
}
