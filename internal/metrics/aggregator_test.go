package metrics

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/failproof/stressor/internal/result"
)

func res(class result.Classification, latencyMs int64) result.TestResult {
	status := result.StatusSuccess
	if class == result.ClassCrash {
		status = result.StatusError
	}
	return result.TestResult{
		TestCaseID:     "tc",
		RunID:          "run",
		LatencyMs:      latencyMs,
		AttemptCount:   1,
		Status:         status,
		Classification: class,
		Timestamp:      time.Now(),
	}
}

func TestSuccessRate(t *testing.T) {
	a := NewAggregator()
	for i := 0; i < 7; i++ {
		a.Observe(res(result.ClassSuccess, 100))
	}
	for i := 0; i < 3; i++ {
		a.Observe(res(result.ClassRefusal, 100))
	}

	stats := a.Stats()
	if stats.TotalTestCases != 10 {
		t.Errorf("TotalTestCases = %d, want 10", stats.TotalTestCases)
	}
	if stats.SuccessRate != 70 {
		t.Errorf("SuccessRate = %v, want 70", stats.SuccessRate)
	}
}

func TestEmptyAggregatorStats(t *testing.T) {
	a := NewAggregator()
	stats := a.Stats()
	if stats.TotalTestCases != 0 || stats.SuccessRate != 0 || stats.AverageLatency != 0 {
		t.Errorf("empty stats not zero: %+v", stats)
	}
}

func TestWelfordMeanAndStdDev(t *testing.T) {
	a := NewAggregator()
	latencies := []int64{100, 200, 300, 400, 500}
	for _, l := range latencies {
		a.Observe(res(result.ClassSuccess, l))
	}

	stats := a.Stats()
	if stats.AverageLatency != 300 {
		t.Errorf("AverageLatency = %v, want 300", stats.AverageLatency)
	}
	// Sample standard deviation of 100..500 step 100.
	want := math.Sqrt(25000)
	if math.Abs(stats.LatencyStdDev-want) > 1e-9 {
		t.Errorf("LatencyStdDev = %v, want %v", stats.LatencyStdDev, want)
	}
}

func TestVulnerabilityTally(t *testing.T) {
	a := NewAggregator()
	r := res(result.ClassPolicyViolation, 50)
	r.Flags = []result.VulnerabilityFlag{
		{Tag: "system_prompt_leak", Confidence: 0.9},
		{Tag: "role_confusion", Confidence: 0.7},
	}
	a.Observe(r)
	a.Observe(res(result.ClassSuccess, 50))

	stats := a.Stats()
	if stats.TotalVulnerabilities != 2 {
		t.Errorf("TotalVulnerabilities = %d, want 2", stats.TotalVulnerabilities)
	}
	if stats.Vulnerabilities["system_prompt_leak"] != 1 {
		t.Errorf("leak count = %d, want 1", stats.Vulnerabilities["system_prompt_leak"])
	}
}

func TestZeroLatencySkipsHistogram(t *testing.T) {
	a := NewAggregator()
	a.Observe(res(result.ClassCrash, 0))

	stats := a.Stats()
	if stats.TotalTestCases != 1 {
		t.Errorf("TotalTestCases = %d, want 1", stats.TotalTestCases)
	}
	if stats.AverageLatency != 0 {
		t.Errorf("AverageLatency = %v, want 0 when no latency observed", stats.AverageLatency)
	}
	if stats.P50LatencyMs != 0 {
		t.Errorf("P50LatencyMs = %v, want 0", stats.P50LatencyMs)
	}
}

func TestPercentiles(t *testing.T) {
	a := NewAggregator()
	for i := int64(1); i <= 100; i++ {
		a.Observe(res(result.ClassSuccess, i*10))
	}

	stats := a.Stats()
	if stats.P50LatencyMs < 450 || stats.P50LatencyMs > 550 {
		t.Errorf("P50LatencyMs = %v, want near 500", stats.P50LatencyMs)
	}
	if stats.P99LatencyMs < 950 {
		t.Errorf("P99LatencyMs = %v, want near 990", stats.P99LatencyMs)
	}
	if stats.MinLatencyMs != 10 {
		t.Errorf("MinLatencyMs = %v, want 10", stats.MinLatencyMs)
	}
	if stats.MaxLatencyMs != 1000 {
		t.Errorf("MaxLatencyMs = %v, want 1000", stats.MaxLatencyMs)
	}
}

func TestConcurrentObserve(t *testing.T) {
	a := NewAggregator()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				a.Observe(res(result.ClassSuccess, 42))
			}
		}()
	}
	wg.Wait()

	if got := a.Stats().TotalTestCases; got != 1000 {
		t.Errorf("TotalTestCases = %d, want 1000", got)
	}
}

func TestClassBreakdownOrdering(t *testing.T) {
	a := NewAggregator()
	for i := 0; i < 5; i++ {
		a.Observe(res(result.ClassSuccess, 10))
	}
	for i := 0; i < 3; i++ {
		a.Observe(res(result.ClassRefusal, 10))
	}
	a.Observe(res(result.ClassCrash, 0))

	rows := a.ClassBreakdown()
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if rows[0].Classification != "success" || rows[0].Count != 5 {
		t.Errorf("rows[0] = %+v, want success/5", rows[0])
	}
	if rows[1].Classification != "refusal" || rows[1].Count != 3 {
		t.Errorf("rows[1] = %+v, want refusal/3", rows[1])
	}
}
