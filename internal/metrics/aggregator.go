// Package metrics aggregates test results as they stream out of the runner.
// All updates are online: memory use is constant in the number of results.
package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/failproof/stressor/internal/result"
)

// Aggregator records per-result metrics in a thread-safe manner.
type Aggregator struct {
	mu              sync.Mutex
	hist            *hdrhistogram.Histogram
	total           int64
	byClass         map[result.Classification]int64
	byStatus        map[result.Status]int64
	vulnsByTag      map[string]int64
	totalVulns      int64
	totalAttempts   int64
	minLatency      time.Duration
	maxLatency      time.Duration
	latencyObserved int64

	// Welford running mean and M2 over latency in milliseconds.
	mean float64
	m2   float64

	start   time.Time
	lastRun time.Time
}

// Stats is a snapshot of the aggregate. Rates are percentages in [0, 100],
// latencies are milliseconds.
type Stats struct {
	TotalTestCases       int64     `json:"total_test_cases"`
	SuccessRate          float64   `json:"success_rate"`
	AverageLatency       float64   `json:"average_latency"`
	LatencyStdDev        float64   `json:"latency_std_dev"`
	TotalVulnerabilities int64     `json:"total_vulnerabilities"`
	LastRun              time.Time `json:"last_run"`

	MinLatencyMs float64 `json:"min_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`
	P50LatencyMs float64 `json:"p50_latency_ms"`
	P90LatencyMs float64 `json:"p90_latency_ms"`
	P99LatencyMs float64 `json:"p99_latency_ms"`

	MeanAttempts float64 `json:"mean_attempts"`
	DurationMs   float64 `json:"duration_ms"`
	CasesPerSec  float64 `json:"cases_per_sec"`

	Classifications map[string]int64 `json:"classifications,omitempty"`
	Statuses        map[string]int64 `json:"statuses,omitempty"`
	Vulnerabilities map[string]int64 `json:"vulnerabilities,omitempty"`
}

func NewAggregator() *Aggregator {
	// Track latencies from 1ms up to 10min with 3 significant figures.
	h := hdrhistogram.New(1, 600_000, 3)
	return &Aggregator{
		hist:       h,
		byClass:    make(map[result.Classification]int64),
		byStatus:   make(map[result.Status]int64),
		vulnsByTag: make(map[string]int64),
		start:      time.Now(),
	}
}

// Observe folds one result into the aggregate.
func (a *Aggregator) Observe(res result.TestResult) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.byClass[res.Classification]++
	a.byStatus[res.Status]++
	a.totalAttempts += int64(res.AttemptCount)
	a.lastRun = res.Timestamp

	for _, f := range res.Flags {
		a.vulnsByTag[f.Tag]++
		a.totalVulns++
	}

	if res.LatencyMs > 0 {
		lat := time.Duration(res.LatencyMs) * time.Millisecond
		ms := res.LatencyMs
		if ms < a.hist.LowestTrackableValue() {
			ms = a.hist.LowestTrackableValue()
		}
		if ms > a.hist.HighestTrackableValue() {
			ms = a.hist.HighestTrackableValue()
		}
		_ = a.hist.RecordValue(ms)

		a.latencyObserved++
		delta := float64(res.LatencyMs) - a.mean
		a.mean += delta / float64(a.latencyObserved)
		a.m2 += delta * (float64(res.LatencyMs) - a.mean)

		if a.minLatency == 0 || lat < a.minLatency {
			a.minLatency = lat
		}
		if lat > a.maxLatency {
			a.maxLatency = lat
		}
	}
}

// Stats computes and returns the current aggregate snapshot.
func (a *Aggregator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	stats := Stats{
		TotalTestCases:       a.total,
		TotalVulnerabilities: a.totalVulns,
		LastRun:              a.lastRun,
		MinLatencyMs:         float64(a.minLatency) / float64(time.Millisecond),
		MaxLatencyMs:         float64(a.maxLatency) / float64(time.Millisecond),
		AverageLatency:       a.mean,
	}

	if a.total > 0 {
		stats.SuccessRate = 100 * float64(a.byClass[result.ClassSuccess]) / float64(a.total)
		stats.MeanAttempts = float64(a.totalAttempts) / float64(a.total)
	}
	if a.latencyObserved > 1 {
		stats.LatencyStdDev = math.Sqrt(a.m2 / float64(a.latencyObserved-1))
	}
	if a.hist.TotalCount() > 0 {
		stats.P50LatencyMs = float64(a.hist.ValueAtQuantile(50))
		stats.P90LatencyMs = float64(a.hist.ValueAtQuantile(90))
		stats.P99LatencyMs = float64(a.hist.ValueAtQuantile(99))
	}

	elapsed := time.Since(a.start)
	stats.DurationMs = float64(elapsed) / float64(time.Millisecond)
	if elapsed > 0 && a.total > 0 {
		stats.CasesPerSec = float64(a.total) / elapsed.Seconds()
	}

	if len(a.byClass) > 0 {
		stats.Classifications = make(map[string]int64, len(a.byClass))
		for k, v := range a.byClass {
			stats.Classifications[string(k)] = v
		}
	}
	if len(a.byStatus) > 0 {
		stats.Statuses = make(map[string]int64, len(a.byStatus))
		for k, v := range a.byStatus {
			stats.Statuses[string(k)] = v
		}
	}
	if len(a.vulnsByTag) > 0 {
		stats.Vulnerabilities = make(map[string]int64, len(a.vulnsByTag))
		for k, v := range a.vulnsByTag {
			stats.Vulnerabilities[k] = v
		}
	}

	return stats
}

// ClassBucket is one row of the per-classification breakdown.
type ClassBucket struct {
	Classification string
	Count          int64
}

// ClassBreakdown returns classification counts sorted by descending count,
// then name, for table rendering.
func (a *Aggregator) ClassBreakdown() []ClassBucket {
	stats := a.Stats()
	rows := make([]ClassBucket, 0, len(stats.Classifications))
	for k, v := range stats.Classifications {
		rows = append(rows, ClassBucket{Classification: k, Count: v})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Classification < rows[j].Classification
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
