package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/failproof/stressor/internal/metrics"
)

// ProgressReporter prints a live status line while a run executes.
type ProgressReporter struct {
	agg      *metrics.Aggregator
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	total    int
}

// NewProgressReporter creates a reporter updating at the given interval.
// total is the number of submitted cases, used for the percentage display.
func NewProgressReporter(agg *metrics.Aggregator, total int, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		agg:      agg,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
		total:    total,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and waits for the reporter goroutine.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			stats := p.agg.Stats()
			line := fmt.Sprintf("\rCases: %d/%d | Success: %.1f%% | Vulns: %d | P99: %.0fms",
				stats.TotalTestCases, p.total, stats.SuccessRate,
				stats.TotalVulnerabilities, stats.P99LatencyMs)
			fmt.Fprint(p.writer, line)
		case <-p.done:
			return
		}
	}
}
