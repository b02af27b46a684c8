package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// target is one kind of request the workers cycle through.
type target struct {
	name  string
	build func(supplier, term string) string
}

var targets = []target{
	{"supplier", func(s, _ string) string {
		return "/api/search/supplier?supplierIds=" + url.QueryEscape(s) + "&limit=100"
	}},
	{"filtered", func(s, t string) string {
		return "/api/productBySupplier/" + url.PathEscape(s) + "?brandSearch=" + url.QueryEscape(t) + "&limit=50"
	}},
	{"lucene", func(s, _ string) string {
		return "/api/search/lucene?query=" + url.QueryEscape(s) + "&limit=50"
	}},
}

type routeStats struct {
	requests  atomic.Int64
	errors    atomic.Int64
	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func (s *routeStats) record(d time.Duration, code int, err error) {
	s.requests.Add(1)
	if err != nil || code < 200 || code >= 300 {
		s.errors.Add(1)
	}
	if err != nil {
		return
	}
	s.mu.Lock()
	s.latencies = append(s.latencies, d)
	s.codes[code]++
	s.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the catalog service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	suppliers := flag.String("suppliers", "S1,S2,S3,S1,S2", "comma-separated supplier ids to query")
	terms := flag.String("terms", "coke,pepsi,fanta,sprite,water", "comma-separated brand terms for filtered searches")
	flag.Parse()

	supplierList := strings.Split(*suppliers, ",")
	termList := strings.Split(*terms, ",")

	fmt.Println("=== Catalog Search Load Test ===")
	fmt.Printf("Target:      %s\n", *baseURL)
	fmt.Printf("Concurrency: %d\n", *concurrency)
	fmt.Printf("Duration:    %s\n", *duration)
	fmt.Printf("Suppliers:   %d, terms: %d\n", len(supplierList), len(termList))
	fmt.Println()

	stats := make(map[string]*routeStats, len(targets))
	for _, t := range targets {
		stats[t.name] = &routeStats{codes: make(map[int]int64)}
	}

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        *concurrency * 2,
			MaxIdleConnsPerHost: *concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	for w := range *concurrency {
		g.Go(func() error {
			for i := w; ctx.Err() == nil; i++ {
				t := targets[i%len(targets)]
				path := t.build(supplierList[i%len(supplierList)], termList[i%len(termList)])
				req, err := http.NewRequestWithContext(ctx, http.MethodGet, *baseURL+path, nil)
				if err != nil {
					return err
				}
				start := time.Now()
				resp, err := client.Do(req)
				elapsed := time.Since(start)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					stats[t.name].record(elapsed, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats[t.name].record(elapsed, resp.StatusCode, nil)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fmt.Fprintf(os.Stderr, "load test aborted: %v\n", err)
		os.Exit(1)
	}

	var total int64
	for _, t := range targets {
		s := stats[t.name]
		total += s.requests.Load()
		printRoute(t.name, s, *duration)
	}
	if total == 0 {
		fmt.Println("WARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func printRoute(name string, s *routeStats, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.requests.Load()
	fmt.Printf("=== %s ===\n", name)
	fmt.Printf("Requests:     %d (%.2f/s)\n", total, float64(total)/duration.Seconds())
	if total > 0 {
		fmt.Printf("Error Rate:   %.2f%%\n", float64(s.errors.Load())/float64(total)*100)
	}
	if len(s.latencies) > 0 {
		sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })
		fmt.Printf("P50/P95/P99:  %s / %s / %s\n",
			percentile(s.latencies, 50), percentile(s.latencies, 95), percentile(s.latencies, 99))
		fmt.Printf("Max:          %s\n", s.latencies[len(s.latencies)-1])
	}
	codes := make([]int, 0, len(s.codes))
	for c := range s.codes {
		codes = append(codes, c)
	}
	sort.Ints(codes)
	for _, c := range codes {
		fmt.Printf("  %d: %d\n", c, s.codes[c])
	}
	fmt.Println()
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}
