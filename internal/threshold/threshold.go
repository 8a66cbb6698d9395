// Package threshold parses and evaluates robustness assertions over the
// final aggregate, e.g. "success_rate:value >= 90" or
// "case_duration:p95 < 2000". A failed assertion makes the run exit non-zero.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/failproof/stressor/internal/metrics"
)

// Threshold is one assertion over the run's aggregate stats.
type Threshold struct {
	Metric    string  // e.g. "success_rate", "case_duration", "vulnerabilities"
	Aggregate string  // e.g. "value", "p95", "avg", "count", "rate"
	Operator  string  // <, <=, >, >=, ==
	Value     float64
	Raw       string // original string for display
}

// Result is the outcome of evaluating one threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator checks thresholds against aggregate stats.
type Evaluator struct {
	thresholds []Threshold
}

func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate checks all thresholds. AllPassed is a convenience over the slice.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}
	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, stats))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, stats metrics.Stats) Result {
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		return Result{Threshold: t, Pass: false, Message: fmt.Sprintf("error: %v", err)}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse parses a threshold string. Supported forms:
//
//	"success_rate:value >= 90"       (classification success percentage)
//	"case_duration:p95 < 2000"       (latency percentile in ms)
//	"case_duration:avg < 500"        (average latency in ms)
//	"vulnerabilities:count == 0"     (total flags raised)
//	"crashes:rate < 0.05"            (crash fraction of all cases)
//	"test_cases:count >= 100"        (cases executed)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'success_rate:value >= 90')", s)
	}

	metric, aggregate, operator, valueStr := matches[1], matches[2], matches[3], matches[4]
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	if !isValidMetric(metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: success_rate, case_duration, vulnerabilities, test_cases, crashes, refusals, policy_violations)", metric)
	}
	if !isValidAggregate(aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate: %q (supported: value, p50, p90, p95, p99, avg, min, max, rate, count)", aggregate)
	}
	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{Metric: metric, Aggregate: aggregate, Operator: operator, Value: value, Raw: s}, nil
}

// ParseMultiple parses a list of threshold strings, reporting all errors.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string
	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}
	return result, nil
}

func isValidMetric(metric string) bool {
	switch metric {
	case "success_rate", "case_duration", "vulnerabilities", "test_cases",
		"crashes", "refusals", "policy_violations":
		return true
	}
	return false
}

func isValidAggregate(aggregate string) bool {
	switch aggregate {
	case "value", "p50", "p90", "p95", "p99", "avg", "min", "max", "rate", "count":
		return true
	}
	return false
}

func isValidOperator(operator string) bool {
	switch operator {
	case "<", "<=", ">", ">=", "==":
		return true
	}
	return false
}

func extractMetricValue(t Threshold, stats metrics.Stats) (float64, error) {
	switch t.Metric {
	case "success_rate":
		if t.Aggregate != "value" {
			return 0, fmt.Errorf("unsupported aggregate %q for success_rate (use 'value')", t.Aggregate)
		}
		return stats.SuccessRate, nil
	case "case_duration":
		return extractLatencyMetric(t.Aggregate, stats)
	case "vulnerabilities":
		if t.Aggregate != "count" {
			return 0, fmt.Errorf("unsupported aggregate %q for vulnerabilities (use 'count')", t.Aggregate)
		}
		return float64(stats.TotalVulnerabilities), nil
	case "test_cases":
		switch t.Aggregate {
		case "count":
			return float64(stats.TotalTestCases), nil
		case "rate":
			return stats.CasesPerSec, nil
		}
		return 0, fmt.Errorf("unsupported aggregate %q for test_cases (use 'count' or 'rate')", t.Aggregate)
	case "crashes":
		return classMetric(t.Aggregate, "crash", stats)
	case "refusals":
		return classMetric(t.Aggregate, "refusal", stats)
	case "policy_violations":
		return classMetric(t.Aggregate, "policy_violation", stats)
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractLatencyMetric(aggregate string, stats metrics.Stats) (float64, error) {
	switch aggregate {
	case "p50":
		return stats.P50LatencyMs, nil
	case "p90":
		return stats.P90LatencyMs, nil
	case "p95":
		// Approximate p95 from p90 and p99.
		return (stats.P90LatencyMs + stats.P99LatencyMs) / 2, nil
	case "p99":
		return stats.P99LatencyMs, nil
	case "avg", "mean":
		return stats.AverageLatency, nil
	case "min":
		return stats.MinLatencyMs, nil
	case "max":
		return stats.MaxLatencyMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for case_duration", aggregate)
	}
}

func classMetric(aggregate, class string, stats metrics.Stats) (float64, error) {
	count := float64(stats.Classifications[class])
	switch aggregate {
	case "count":
		return count, nil
	case "rate":
		if stats.TotalTestCases == 0 {
			return 0, nil
		}
		return count / float64(stats.TotalTestCases), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s (use 'count' or 'rate')", aggregate, class)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
