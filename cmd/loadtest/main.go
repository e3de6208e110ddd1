// Command loadtest drives traffic at the index service.
//
// In http mode (the default) workers mix delta writes against POST
// /api/v1/index with reads of GET /api/v1/index. In kafka mode workers
// publish asset events to the ingress topic instead.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mvkrishnan/photoindex/internal/ingest"
	"github.com/mvkrishnan/photoindex/pkg/config"
	"github.com/mvkrishnan/photoindex/pkg/kafka"
)

type Config struct {
	Mode        string
	BaseURL     string
	Brokers     []string
	Topic       string
	Concurrency int
	Duration    time.Duration
	ReadRatio   float64
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

var (
	sampleTags   = []string{"sunset", "beach", "mountain", "portrait", "wedding", "city", "food", "macro", "wildlife", "blackandwhite"}
	samplePeople = []string{"alice", "bob", "cynthia", "dmitri", "esther", "farid", "grace", "hank"}
)

func main() {
	mode := flag.String("mode", "http", "traffic mode: http or kafka")
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the index service")
	brokers := flag.String("brokers", "localhost:9092", "comma-separated Kafka brokers (kafka mode)")
	topic := flag.String("topic", "asset-events", "Kafka topic (kafka mode)")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	readRatio := flag.Float64("read-ratio", 0.5, "fraction of read requests (http mode)")
	flag.Parse()

	cfg := Config{
		Mode:        *mode,
		BaseURL:     *baseURL,
		Brokers:     strings.Split(*brokers, ","),
		Topic:       *topic,
		Concurrency: *concurrency,
		Duration:    *duration,
		ReadRatio:   *readRatio,
	}

	fmt.Println("=== Photo Index Load Test ===")
	fmt.Printf("Mode:        %s\n", cfg.Mode)
	if cfg.Mode == "kafka" {
		fmt.Printf("Brokers:     %s\n", strings.Join(cfg.Brokers, ","))
		fmt.Printf("Topic:       %s\n", cfg.Topic)
	} else {
		fmt.Printf("Target:      %s\n", cfg.BaseURL)
	}
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	worker := httpWorker(cfg, stats)
	if cfg.Mode == "kafka" {
		producer := kafka.NewProducer(config.KafkaConfig{Brokers: cfg.Brokers}, cfg.Topic)
		defer producer.Close()
		worker = kafkaWorker(producer, stats)
	}

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(workerID) + time.Now().UnixNano()))

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				worker(ctx, rng)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func httpWorker(cfg Config, stats *Stats) func(context.Context, *rand.Rand) {
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	indexURL := cfg.BaseURL + "/api/v1/index"

	return func(ctx context.Context, rng *rand.Rand) {
		var req *http.Request
		var err error
		if rng.Float64() < cfg.ReadRatio {
			req, err = http.NewRequestWithContext(ctx, http.MethodGet, indexURL, nil)
		} else {
			body, _ := json.Marshal(randomUpdate(rng))
			req, err = http.NewRequestWithContext(ctx, http.MethodPost, indexURL, bytes.NewReader(body))
			if req != nil {
				req.Header.Set("Content-Type", "application/json")
			}
		}
		if err != nil {
			stats.RecordRequest(0, 0, err)
			return
		}

		start := time.Now()
		resp, err := client.Do(req)
		duration := time.Since(start)

		if err != nil {
			stats.RecordRequest(duration, 0, err)
			return
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		stats.RecordRequest(duration, resp.StatusCode, nil)
	}
}

func kafkaWorker(producer *kafka.Producer, stats *Stats) func(context.Context, *rand.Rand) {
	return func(ctx context.Context, rng *rand.Rand) {
		event := randomEvent(rng)

		start := time.Now()
		err := producer.Publish(ctx, kafka.Event{Key: event.AssetID, Value: event})
		duration := time.Since(start)

		if err != nil {
			stats.RecordRequest(duration, 0, err)
			return
		}
		stats.RecordRequest(duration, http.StatusOK, nil)
	}
}

func randomUpdate(rng *rand.Rand) map[string]map[string]int64 {
	update := map[string]map[string]int64{
		"tags":   {},
		"people": {},
	}
	for i := 0; i < 1+rng.Intn(3); i++ {
		update["tags"][sampleTags[rng.Intn(len(sampleTags))]] = int64(rng.Intn(3) - 1)
	}
	for i := 0; i < 1+rng.Intn(2); i++ {
		update["people"][samplePeople[rng.Intn(len(samplePeople))]] = int64(rng.Intn(3) - 1)
	}
	return update
}

func randomEvent(rng *rand.Rand) ingest.AssetEvent {
	action := ingest.ActionAdd
	if rng.Float64() < 0.3 {
		action = ingest.ActionRemove
	}
	return ingest.AssetEvent{
		AssetID: fmt.Sprintf("asset-%06d", rng.Intn(1000000)),
		Action:  action,
		Tags:    []string{sampleTags[rng.Intn(len(sampleTags))], sampleTags[rng.Intn(len(sampleTags))]},
		People:  []string{samplePeople[rng.Intn(len(samplePeople))]},
	}
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Printf("Avg Latency:     %s\n", avg.Round(time.Microsecond))
		fmt.Printf("P50 Latency:     %s\n", percentile(latencies, 50).Round(time.Microsecond))
		fmt.Printf("P95 Latency:     %s\n", percentile(latencies, 95).Round(time.Microsecond))
		fmt.Printf("P99 Latency:     %s\n", percentile(latencies, 99).Round(time.Microsecond))
	}

	stats.statusCodesMu.Lock()
	defer stats.statusCodesMu.Unlock()
	if len(stats.statusCodes) > 0 {
		fmt.Println()
		fmt.Println("Status Codes:")
		codes := make([]int, 0, len(stats.statusCodes))
		for code := range stats.statusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			fmt.Printf("  %d: %d\n", code, stats.statusCodes[code].Load())
		}
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
