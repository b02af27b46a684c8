package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog/events"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog/loader"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog/store"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	file := flag.String("file", "", "pipe-delimited product feed")
	reindex := flag.Bool("reindex", true, "ask the catalog service to rebuild after the import")
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "usage: loader -file <feed> [-config <path>] [-reindex=false]")
		os.Exit(2)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *file, *reindex); err != nil {
		slog.Error("import failed", "file", *file, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, file string, reindex bool) error {
	st, err := store.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	report, err := loader.New(st, cfg.Loader, metrics.NewUnregistered()).ImportFile(ctx, file)
	if err != nil {
		return err
	}
	slog.Info("feed imported",
		"rows", report.Rows,
		"imported", report.Imported,
		"skipped", report.Skipped,
		"duration", report.Duration,
	)

	if !reindex {
		return nil
	}
	if len(cfg.Kafka.Brokers) == 0 {
		slog.Warn("kafka not configured; rebuild with the indexer or POST /api/search/index/rebuild")
		return nil
	}
	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Reindex)
	defer producer.Close()
	return events.RequestReindex(ctx, producer, "feed import: "+file)
}
