package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog/events"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog/handler"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog/loader"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog/router"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/catalog/store"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/catalog-search/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	importPath := flag.String("import", "", "pipe-delimited product feed to import before serving")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	tracing.SetEnabled(cfg.Tracing.Enabled)
	slog.Info("starting catalog search service", "port", cfg.Server.Port, "store", cfg.Store.Driver)

	if err := run(cfg, *importPath); err != nil {
		slog.Error("catalog search service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("catalog search service stopped")
}

func run(cfg *config.Config, importPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)

	var st *store.SQLStore
	err := resilience.Retry(ctx, "open product store", resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: time.Second,
	}, func() error {
		var err error
		st, err = store.Open(ctx, cfg)
		return err
	})
	if err != nil {
		return err
	}
	defer st.Close()

	engine, err := indexer.Open(cfg.Indexer)
	if err != nil {
		return err
	}
	defer engine.Close()
	commitLoopDone := engine.StartCommitLoop(ctx)
	defer func() {
		stop()
		<-commitLoopDone
	}()

	var redisClient *pkgredis.Client
	var remote cache.Remote
	if cfg.Redis.Addr != "" {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, caching in-process only", "error", err)
		} else {
			defer redisClient.Close()
			remote = redisClient
		}
	}
	queryCache := cache.New(cfg.Search.LocalCacheSize, cfg.Search.CacheTTL, remote)

	kafkaEnabled := len(cfg.Kafka.Brokers) > 0
	agg := analytics.NewAggregator()
	var tracker analytics.Tracker = agg
	var collector *analytics.Collector
	var consumers []*kafka.Consumer
	if kafkaEnabled {
		analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer analyticsProducer.Close()
		collector = analytics.NewCollector(analyticsProducer, 500, 2*time.Second)
		collector.Start(ctx)
		tracker = collector
		consumers = append(consumers, kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, agg.HandleEvent()))
	}

	svc := searcher.NewService(engine, st, cfg.Search,
		searcher.WithCache(queryCache),
		searcher.WithMetrics(m),
		searcher.WithTracker(tracker),
		searcher.WithCommitBatch(cfg.Indexer.BatchSize),
	)

	if importPath != "" {
		report, err := loader.New(st, cfg.Loader, m).ImportFile(ctx, importPath)
		if err != nil {
			return fmt.Errorf("importing %s: %w", importPath, err)
		}
		slog.Info("feed imported", "rows", report.Rows, "imported", report.Imported, "skipped", report.Skipped)
	}
	if err := rebuildIfStale(ctx, svc, st, importPath != ""); err != nil {
		return err
	}

	var handlerOpts []handler.Option
	if kafkaEnabled {
		completed := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		defer completed.Close()
		upserts := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ProductUpserts)
		defer upserts.Close()
		handlerOpts = append(handlerOpts, handler.WithUpsertPublisher(upserts))

		ev := events.NewHandlers(svc, completed)
		consumers = append(consumers,
			kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.Reindex, ev.HandleReindex()),
			kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ProductUpserts, ev.HandleUpsert()),
		)
	}
	var wg sync.WaitGroup
	for _, c := range consumers {
		c.OnResult(func(topic string, err error) {
			status := "ok"
			if err != nil {
				status = "error"
			}
			m.EventsConsumedTotal.WithLabelValues(topic, status).Inc()
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Start(ctx); err != nil {
				slog.Error("consumer error", "error", err)
			}
		}()
	}

	snapshots := analytics.NewSnapshotStore(st.DB(), cfg.Store.Driver)
	if err := snapshots.EnsureSchema(ctx); err != nil {
		slog.Warn("analytics snapshots disabled", "error", err)
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshots.Run(ctx, agg, time.Minute)
		}()
	}

	breaker := resilience.NewCircuitBreaker("product-store", resilience.CircuitBreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     15 * time.Second,
		IsFailure:        handler.IsStoreFailure,
		OnStateChange: func(name string, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	handlerOpts = append(handlerOpts, handler.WithStoreBreaker(breaker))

	checker := health.NewChecker()
	checker.Register("store", health.Ping(st.Ping, true))
	checker.Register("index", func(ctx context.Context) health.ComponentHealth {
		snap, err := engine.OpenSnapshot()
		if err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		defer snap.Release()
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d documents, generation %d", snap.DocCount(), engine.Generation()),
		}
	})
	if redisClient != nil {
		checker.Register("redis", health.Ping(redisClient.Ping, false))
	}

	limiter := ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateWindow)
	go limiter.Run(ctx, time.Minute)

	var metricsServer *http.Server
	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.Server.Port {
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler:      metrics.Handler(),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("metrics server listening", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr: fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router.New(router.Deps{
			Catalog:   handler.New(svc, st, cfg.Search, handlerOpts...),
			Analytics: agg,
			Health:    checker,
			Limiter:   limiter,
			Metrics:   m,
			Timeout:   cfg.Server.WriteTimeout,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("catalog search service listening", "addr", server.Addr, "kafka", kafkaEnabled, "redis", redisClient != nil)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		return err
	}

	wg.Wait()
	if collector != nil {
		collector.Wait()
	}
	return nil
}

// rebuildIfStale rebuilds the index when the feed was just imported or the
// committed index is empty while the store is not.
func rebuildIfStale(ctx context.Context, svc *searcher.Service, st *store.SQLStore, imported bool) error {
	if !imported {
		if svc.IndexStats().Documents > 0 {
			return nil
		}
		n, err := st.Count(ctx)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
	}
	report, err := svc.IndexAll(ctx)
	if err != nil && !errors.Is(err, apperrors.ErrPartialReindex) {
		return fmt.Errorf("initial rebuild: %w", err)
	}
	slog.Info("index rebuilt at startup",
		"indexed", report.Indexed,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"duration", report.Duration,
	)
	return nil
}
