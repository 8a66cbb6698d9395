// Package dashboard renders a live terminal UI for a running stress test.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/failproof/stressor/internal/metrics"
)

// RunInfo holds the run parameters shown in the header.
type RunInfo struct {
	RunName     string
	Provider    string
	Model       string
	Concurrency int
	TotalCases  int
	Rate        int // requests per second, 0 = unlimited
	Timeout     time.Duration
	MaxAttempts int
	ConfigFile  string
}

// Dashboard displays streaming aggregate stats until the run finishes or the
// user quits.
type Dashboard struct {
	agg          *metrics.Aggregator
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid           *ui.Grid
	latencySparkle *widgets.SparklineGroup
	latencyPara    *widgets.Paragraph
	successGauge   *widgets.Gauge
	classList      *widgets.List
	vulnList       *widgets.List
	summaryPara    *widgets.Paragraph
	metricsPara    *widgets.Paragraph
	latencyHistory []float64
	startTime      time.Time
	info           RunInfo
}

// New creates a Dashboard reading from agg. shutdownFunc is invoked when the
// user presses q or Ctrl-C.
func New(agg *metrics.Aggregator, info RunInfo, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		agg:            agg,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, 100),
		startTime:      time.Now(),
		info:           info,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "Latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Real-time Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.latencyPara = widgets.NewParagraph()
	d.latencyPara.Title = "Latency Stats"
	d.latencyPara.Text = "Min: 0ms\nMean: 0ms\nP50: 0ms\nP90: 0ms\nP99: 0ms"
	d.latencyPara.BorderStyle.Fg = ui.ColorCyan

	d.successGauge = widgets.NewGauge()
	d.successGauge.Title = "Success Rate"
	d.successGauge.Percent = 0
	d.successGauge.BarColor = ui.ColorBlue
	d.successGauge.BorderStyle.Fg = ui.ColorCyan
	d.successGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.classList = widgets.NewList()
	d.classList.Title = "Classifications"
	d.classList.Rows = []string{"Awaiting data"}
	d.classList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.classList.BorderStyle.Fg = ui.ColorCyan

	d.vulnList = widgets.NewList()
	d.vulnList.Title = "Vulnerability Flags"
	d.vulnList.Rows = []string{"No flags"}
	d.vulnList.TextStyle = ui.NewStyle(ui.ColorRed)
	d.vulnList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run Summary"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.metricsPara = widgets.NewParagraph()
	d.metricsPara.Title = "Metrics"
	d.metricsPara.Text = "Waiting for data..."
	d.metricsPara.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.20,
			ui.NewCol(0.5, d.successGauge),
			ui.NewCol(0.5, d.metricsPara),
		),
		ui.NewRow(0.30,
			ui.NewCol(0.65, d.latencySparkle),
			ui.NewCol(0.35, d.latencyPara),
		),
		ui.NewRow(0.34,
			ui.NewCol(0.5, d.classList),
			ui.NewCol(0.5, d.vulnList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			// Drain any remaining events
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Do not return here; wait for Stop() to cancel context
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update refreshes all widget data from the aggregator.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	stats := d.agg.Stats()

	if stats.AverageLatency > 0 {
		d.latencyHistory = append(d.latencyHistory, stats.AverageLatency)
		if len(d.latencyHistory) > 100 {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf(
			"Real-time Latency | Mean: %.2fms | Min: %.2fms | Max: %.2fms",
			stats.AverageLatency,
			stats.MinLatencyMs,
			stats.MaxLatencyMs,
		)
	}

	percent := int(stats.SuccessRate)
	if percent > 100 {
		percent = 100
	}
	d.successGauge.Percent = percent
	d.successGauge.Label = fmt.Sprintf("%.1f%%", stats.SuccessRate)

	d.summaryPara.Text = fmt.Sprintf(
		"Target: %s/%s\n%s\nElapsed: %s | Cases: %d/%d | Vulnerabilities: %d",
		d.info.Provider,
		d.info.Model,
		d.formatRunParams(),
		elapsed.Round(time.Second),
		stats.TotalTestCases,
		d.info.TotalCases,
		stats.TotalVulnerabilities,
	)

	d.metricsPara.Text = fmt.Sprintf(
		"Test Cases:        %d\nSuccess Rate:      %.1f%%\nVulnerabilities:   %d\nCases/sec:         %.2f\nMean Attempts:     %.2f\nP50/P90/P99:       %.1f / %.1f / %.1f ms",
		stats.TotalTestCases,
		stats.SuccessRate,
		stats.TotalVulnerabilities,
		stats.CasesPerSec,
		stats.MeanAttempts,
		stats.P50LatencyMs,
		stats.P90LatencyMs,
		stats.P99LatencyMs,
	)

	d.latencyPara.Text = fmt.Sprintf(
		"Min:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP99:  %.2fms",
		stats.MinLatencyMs,
		stats.AverageLatency,
		stats.P50LatencyMs,
		stats.P90LatencyMs,
		stats.P99LatencyMs,
	)

	d.classList.Rows = formatClassRows(d.agg.ClassBreakdown())
	d.vulnList.Rows = formatVulnRows(stats.Vulnerabilities)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func formatClassRows(buckets []metrics.ClassBucket) []string {
	if len(buckets) == 0 {
		return []string{"[Awaiting data](fg:green)"}
	}
	rows := make([]string, 0, len(buckets))
	for _, b := range buckets {
		color := "green"
		if b.Classification != "success" {
			color = "yellow"
		}
		rows = append(rows, fmt.Sprintf("[%s](fg:%s) %d", b.Classification, color, b.Count))
	}
	return rows
}

func formatVulnRows(vulns map[string]int64) []string {
	if len(vulns) == 0 {
		return []string{"[No flags](fg:green)"}
	}
	tags := make([]string, 0, len(vulns))
	for tag := range vulns {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool {
		if vulns[tags[i]] == vulns[tags[j]] {
			return tags[i] < tags[j]
		}
		return vulns[tags[i]] > vulns[tags[j]]
	})
	maxRows := len(tags)
	if maxRows > 10 {
		maxRows = 10
	}
	rows := make([]string, 0, maxRows)
	for i := 0; i < maxRows; i++ {
		rows = append(rows, fmt.Sprintf("[%s](fg:red) %d", tags[i], vulns[tags[i]]))
	}
	return rows
}

// formatRunParams formats run parameters for the header line.
func (d *Dashboard) formatRunParams() string {
	var parts []string

	if d.info.RunName != "" {
		parts = append(parts, fmt.Sprintf("Run: %s", d.info.RunName))
	}
	if d.info.Concurrency > 0 {
		parts = append(parts, fmt.Sprintf("Workers: %d", d.info.Concurrency))
	}
	if d.info.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %d/s", d.info.Rate))
	} else {
		parts = append(parts, "Rate: unlimited")
	}
	if d.info.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", d.info.Timeout))
	}
	if d.info.MaxAttempts > 0 {
		parts = append(parts, fmt.Sprintf("Attempts: %d", d.info.MaxAttempts))
	}
	if d.info.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.info.ConfigFile))
	}

	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, " | ")
}
