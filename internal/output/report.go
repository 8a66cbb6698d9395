// Package output renders final reports and live progress for a run.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/failproof/stressor/internal/metrics"
	"github.com/failproof/stressor/internal/result"
	"github.com/failproof/stressor/internal/threshold"
)

// Report bundles everything the final output needs.
type Report struct {
	Run        *result.TestRun    `json:"run"`
	Stats      metrics.Stats      `json:"stats"`
	Thresholds []threshold.Result `json:"thresholds,omitempty"`
}

// PrintReport outputs a human-readable summary.
func PrintReport(w io.Writer, rep Report) {
	fmt.Fprintln(w, "\n--- Stress Test Results ---")
	if rep.Run != nil {
		fmt.Fprintf(w, "Run:               %s", rep.Run.ID)
		if rep.Run.Name != "" {
			fmt.Fprintf(w, " (%s)", rep.Run.Name)
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Status:            %s\n", rep.Run.Status)
		fmt.Fprintf(w, "Provider/Model:    %s/%s\n", rep.Run.Config.Provider, rep.Run.Config.Model)
		if rep.Run.Error != "" {
			fmt.Fprintf(w, "Error:             %s\n", rep.Run.Error)
		}
	}

	stats := rep.Stats
	fmt.Fprintf(w, "Test Cases:        %d\n", stats.TotalTestCases)
	fmt.Fprintf(w, "Success Rate:      %.1f%%\n", stats.SuccessRate)
	fmt.Fprintf(w, "Vulnerabilities:   %d\n", stats.TotalVulnerabilities)
	fmt.Fprintf(w, "Duration:          %s\n", time.Duration(stats.DurationMs*float64(time.Millisecond)).Round(time.Millisecond))
	fmt.Fprintf(w, "Cases/sec:         %.2f\n", stats.CasesPerSec)

	fmt.Fprintln(w, "\nLatency (ms):")
	fmt.Fprintf(w, "  Min:             %.1f\n", stats.MinLatencyMs)
	fmt.Fprintf(w, "  Max:             %.1f\n", stats.MaxLatencyMs)
	fmt.Fprintf(w, "  Mean:            %.1f\n", stats.AverageLatency)
	fmt.Fprintf(w, "  P50:             %.1f\n", stats.P50LatencyMs)
	fmt.Fprintf(w, "  P90:             %.1f\n", stats.P90LatencyMs)
	fmt.Fprintf(w, "  P99:             %.1f\n", stats.P99LatencyMs)

	if len(stats.Classifications) > 0 {
		fmt.Fprintln(w, "\nClassifications:")
		writeSortedCounts(w, stats.Classifications, "  ")
	}
	if len(stats.Vulnerabilities) > 0 {
		fmt.Fprintln(w, "\nVulnerability Flags:")
		writeSortedCounts(w, stats.Vulnerabilities, "  ")
	}

	if len(rep.Thresholds) > 0 {
		fmt.Fprintln(w, "\nThresholds:")
		for _, res := range rep.Thresholds {
			fmt.Fprintf(w, "  %s\n", res.Message)
		}
	}
}

// PrintJSONReport outputs the report as indented JSON.
func PrintJSONReport(w io.Writer, rep Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

func writeSortedCounts(w io.Writer, counts map[string]int64, indent string) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] == counts[keys[j]] {
			return keys[i] < keys[j]
		}
		return counts[keys[i]] > counts[keys[j]]
	})
	for _, k := range keys {
		fmt.Fprintf(w, "%s%-18s %d\n", indent, k+":", counts[k])
	}
}
