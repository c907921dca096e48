// Command loadgen drives a running router with random route queries inside a
// bounding box and reports latency, status codes and whether repeated
// queries returned identical paths.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/azybler/route_finder/pkg/config"
)

type bbox struct {
	MinLat, MinLng, MaxLat, MaxLng float64
}

type query struct {
	OriginLat, OriginLon, DestLat, DestLon float64
}

func (q query) url(base string) string {
	v := url.Values{}
	v.Set("origin_lat", strconv.FormatFloat(q.OriginLat, 'f', 6, 64))
	v.Set("origin_lon", strconv.FormatFloat(q.OriginLon, 'f', 6, 64))
	v.Set("destination_lat", strconv.FormatFloat(q.DestLat, 'f', 6, 64))
	v.Set("destination_lon", strconv.FormatFloat(q.DestLon, 'f', 6, 64))
	return base + "/get-route?" + v.Encode()
}

type options struct {
	BaseURL  string
	Duration time.Duration
	Workers  int
	Queries  int
	BBox     bbox
	Seed     int64
}

// result is what one request produced.
type result struct {
	Query   int
	Status  int
	Latency time.Duration
	Points  [][2]float64
	Err     error
}

type summary struct {
	Requests    int
	Errors      int
	ByStatus    map[int]int
	Mismatches  int
	P50         time.Duration
	P95         time.Duration
	P99         time.Duration
	Max         time.Duration
	Throughput  float64
	ElapsedTime time.Duration
}

func main() {
	base := flag.String("url", "http://localhost:5000", "Router base URL")
	duration := flag.Duration("duration", 30*time.Second, "How long to run")
	workers := flag.Int("workers", 8, "Concurrent clients")
	queries := flag.Int("queries", 200, "Distinct random queries; each is repeated to check determinism")
	box := flag.String("bbox", "12.83,77.46,13.14,77.78", "Query area: minLat,minLng,maxLat,maxLng")
	seed := flag.Int64("seed", 1, "Random seed for query generation")
	flag.Parse()

	logger, err := config.NewLogger("info", "console")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	var b bbox
	if _, err := fmt.Sscanf(*box, "%f,%f,%f,%f", &b.MinLat, &b.MinLng, &b.MaxLat, &b.MaxLng); err != nil {
		logger.Fatal("invalid bbox format (expected minLat,minLng,maxLat,maxLng)", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("running loadgen",
		zap.String("url", *base),
		zap.Duration("duration", *duration),
		zap.Int("workers", *workers),
		zap.Int("queries", *queries))

	s, err := run(ctx, &http.Client{Timeout: 15 * time.Second}, options{
		BaseURL:  *base,
		Duration: *duration,
		Workers:  *workers,
		Queries:  *queries,
		BBox:     b,
		Seed:     *seed,
	}, logger)
	if err != nil {
		logger.Fatal("loadgen failed", zap.Error(err))
	}
	printSummary(os.Stdout, s)
	if s.Mismatches > 0 {
		os.Exit(1)
	}
}

func randomQueries(n int, b bbox, seed int64) []query {
	r := rand.New(rand.NewPCG(uint64(seed), 0))
	point := func() (float64, float64) {
		return b.MinLat + r.Float64()*(b.MaxLat-b.MinLat), b.MinLng + r.Float64()*(b.MaxLng-b.MinLng)
	}
	qs := make([]query, n)
	for i := range qs {
		qs[i].OriginLat, qs[i].OriginLon = point()
		qs[i].DestLat, qs[i].DestLon = point()
	}
	return qs
}

// run sends queries round-robin from opt.Workers goroutines until the
// duration elapses or ctx is cancelled.
func run(ctx context.Context, client *http.Client, opt options, logger *zap.Logger) (summary, error) {
	if opt.Queries < 1 || opt.Workers < 1 {
		return summary{}, fmt.Errorf("workers and queries must be positive")
	}
	qs := randomQueries(opt.Queries, opt.BBox, opt.Seed)

	ctx, cancel := context.WithTimeout(ctx, opt.Duration)
	defer cancel()

	results := make(chan result, opt.Workers*4)
	var next atomic.Int64
	take := func() int {
		return int((next.Add(1) - 1) % int64(len(qs)))
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < opt.Workers; w++ {
		g.Go(func() error {
			for gctx.Err() == nil {
				i := take()
				res := fetch(gctx, client, opt.BaseURL, qs[i])
				res.Query = i
				if gctx.Err() != nil && res.Err != nil {
					return nil
				}
				select {
				case results <- res:
				case <-gctx.Done():
					return nil
				}
			}
			return nil
		})
	}
	go func() {
		g.Wait()
		close(results)
	}()

	s, firstSeen := collect(results, logger)
	s.ElapsedTime = time.Since(start)
	if s.ElapsedTime > 0 {
		s.Throughput = float64(s.Requests) / s.ElapsedTime.Seconds()
	}
	logger.Info("distinct queries answered", zap.Int("count", len(firstSeen)))
	return s, nil
}

func fetch(ctx context.Context, client *http.Client, base string, q query) result {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.url(base), nil)
	if err != nil {
		return result{Err: err}
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return result{Err: err, Latency: time.Since(start)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	res := result{Status: resp.StatusCode, Latency: time.Since(start), Err: err}
	if err == nil && resp.StatusCode == http.StatusOK {
		res.Err = json.Unmarshal(body, &res.Points)
	}
	return res
}

// collect drains results, comparing each successful answer to the first
// answer seen for the same query.
func collect(results <-chan result, logger *zap.Logger) (summary, map[int][][2]float64) {
	s := summary{ByStatus: make(map[int]int)}
	firstSeen := make(map[int][][2]float64)
	var latencies []time.Duration

	for res := range results {
		s.Requests++
		latencies = append(latencies, res.Latency)
		if res.Err != nil {
			s.Errors++
			continue
		}
		s.ByStatus[res.Status]++
		if res.Status != http.StatusOK {
			continue
		}
		prev, ok := firstSeen[res.Query]
		if !ok {
			firstSeen[res.Query] = res.Points
			continue
		}
		if diff := cmp.Diff(prev, res.Points); diff != "" {
			s.Mismatches++
			logger.Warn("repeated query returned a different path",
				zap.Int("query", res.Query), zap.String("diff", diff))
		}
	}

	s.P50 = percentile(latencies, 50)
	s.P95 = percentile(latencies, 95)
	s.P99 = percentile(latencies, 99)
	if len(latencies) > 0 {
		s.Max = slices.Max(latencies)
	}
	return s, firstSeen
}

// percentile returns the nearest-rank percentile of d. It sorts d in place.
func percentile(d []time.Duration, p int) time.Duration {
	if len(d) == 0 {
		return 0
	}
	slices.Sort(d)
	rank := (p*len(d) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return d[rank-1]
}

func printSummary(w io.Writer, s summary) {
	fmt.Fprintln(w, "\n========== LOADGEN SUMMARY ==========")
	fmt.Fprintf(w, "Total Requests: %d\n", s.Requests)
	fmt.Fprintf(w, "Transport Errors: %d\n", s.Errors)
	codes := make([]int, 0, len(s.ByStatus))
	for code := range s.ByStatus {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  HTTP %d: %d\n", code, s.ByStatus[code])
	}
	fmt.Fprintf(w, "Non-deterministic answers: %d\n", s.Mismatches)
	fmt.Fprintf(w, "Throughput: %.1f req/s\n", s.Throughput)
	fmt.Fprintf(w, "Latency p50=%s p95=%s p99=%s max=%s\n",
		s.P50.Round(time.Microsecond), s.P95.Round(time.Microsecond),
		s.P99.Round(time.Microsecond), s.Max.Round(time.Microsecond))
	fmt.Fprintln(w, "=====================================")
}
