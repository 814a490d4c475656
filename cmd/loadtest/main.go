// Command loadtest drives the search service with concurrent queries and
// reports throughput, latency percentiles and status codes.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -queries queries.txt -qps 200
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

var defaultQueries = []string{
	"title:frankenstein",
	"body:monster AND body:creator",
	`body:"arctic expedition"`,
	"title:dracula OR title:carmilla",
	"body:castle -body:vampire",
	"year:[1800 TO 1850]",
	"+body:letter body:sister",
	"body:science",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	QPS         float64
	Limit       int
	Queries     []string
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	qps := flag.Float64("qps", 0, "overall request rate limit (0 = unlimited)")
	limit := flag.Int("limit", 10, "hits requested per query")
	queryFile := flag.String("queries", "", "file with one query per line")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		var err error
		if queries, err = loadQueries(*queryFile); err != nil {
			fmt.Fprintf(os.Stderr, "loading queries: %v\n", err)
			os.Exit(1)
		}
	}

	cfg := Config{
		BaseURL:     strings.TrimRight(*baseURL, "/"),
		Concurrency: max(1, *concurrency),
		Duration:    *duration,
		QPS:         *qps,
		Limit:       *limit,
		Queries:     queries,
	}

	fmt.Println("=== Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	if cfg.QPS > 0 {
		fmt.Printf("Rate limit:  %.0f req/s\n", cfg.QPS)
	}
	fmt.Printf("Queries:     %d unique\n", len(cfg.Queries))
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()
	stats := run(ctx, cfg, newHTTPClient(cfg.Concurrency))
	report := stats.Report(cfg.Duration)
	report.Print(os.Stdout)
	if report.Total == 0 {
		fmt.Println("\nWARNING: No requests completed. Is the service running?")
		os.Exit(1)
	}
}

func newHTTPClient(concurrency int) *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

func loadQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var queries []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		queries = append(queries, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("%s contains no queries", path)
	}
	return queries, nil
}

// run issues queries until ctx is done. Worker i starts at query i so
// concurrent workers spread over the query set.
func run(ctx context.Context, cfg Config, client *http.Client) *Stats {
	stats := NewStats()
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.QPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.QPS), max(1, int(cfg.QPS/10)))
	}

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			for i := w; ; i++ {
				if err := limiter.Wait(ctx); err != nil {
					return nil
				}
				q := cfg.Queries[i%len(cfg.Queries)]
				searchURL := fmt.Sprintf("%s/api/v1/search?q=%s&limit=%d", cfg.BaseURL, url.QueryEscape(q), cfg.Limit)
				start := time.Now()
				status, hits, err := search(ctx, client, searchURL)
				if ctx.Err() != nil {
					return nil
				}
				stats.Record(time.Since(start), status, hits, err)
			}
		})
	}
	_ = g.Wait()
	return stats
}

func search(ctx context.Context, client *http.Client, rawURL string) (int, uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, 0, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, 0, nil
	}
	var body struct {
		TotalHits uint64 `json:"total_hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return resp.StatusCode, 0, err
	}
	return resp.StatusCode, body.TotalHits, nil
}
