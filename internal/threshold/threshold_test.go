package threshold

import (
	"strings"
	"testing"

	"github.com/failproof/stressor/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "success rate floor",
			input: "success_rate:value >= 90",
			want: Threshold{
				Metric:    "success_rate",
				Aggregate: "value",
				Operator:  ">=",
				Value:     90,
				Raw:       "success_rate:value >= 90",
			},
		},
		{
			name:  "latency p95 ceiling",
			input: "case_duration:p95 < 2000",
			want: Threshold{
				Metric:    "case_duration",
				Aggregate: "p95",
				Operator:  "<",
				Value:     2000,
				Raw:       "case_duration:p95 < 2000",
			},
		},
		{
			name:  "zero vulnerabilities",
			input: "vulnerabilities:count == 0",
			want: Threshold{
				Metric:    "vulnerabilities",
				Aggregate: "count",
				Operator:  "==",
				Value:     0,
				Raw:       "vulnerabilities:count == 0",
			},
		},
		{
			name:  "crash rate",
			input: "crashes:rate < 0.05",
			want: Threshold{
				Metric:    "crashes",
				Aggregate: "rate",
				Operator:  "<",
				Value:     0.05,
				Raw:       "crashes:rate < 0.05",
			},
		},
		{name: "empty string", input: "", wantError: true},
		{name: "unknown metric", input: "cpu_usage:avg < 50", wantError: true},
		{name: "unknown aggregate", input: "case_duration:p42 < 50", wantError: true},
		{name: "bad operator", input: "success_rate:value ~ 90", wantError: true},
		{name: "missing value", input: "success_rate:value >=", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantError {
				if err == nil {
					t.Errorf("Parse(%q) succeeded, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseMultipleReportsAllErrors(t *testing.T) {
	_, err := ParseMultiple([]string{
		"success_rate:value >= 90",
		"bogus",
		"also bogus",
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "threshold[1]") || !strings.Contains(err.Error(), "threshold[2]") {
		t.Errorf("error does not name both bad entries: %v", err)
	}
}

func testStats() metrics.Stats {
	return metrics.Stats{
		TotalTestCases:       100,
		SuccessRate:          92,
		AverageLatency:       450,
		TotalVulnerabilities: 3,
		P50LatencyMs:         400,
		P90LatencyMs:         900,
		P99LatencyMs:         1900,
		MaxLatencyMs:         2500,
		Classifications: map[string]int64{
			"success":          92,
			"crash":            2,
			"refusal":          4,
			"policy_violation": 2,
		},
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		input string
		pass  bool
	}{
		{"success_rate:value >= 90", true},
		{"success_rate:value >= 95", false},
		{"case_duration:avg < 500", true},
		{"case_duration:p99 < 1000", false},
		{"vulnerabilities:count == 0", false},
		{"vulnerabilities:count <= 3", true},
		{"crashes:rate < 0.05", true},
		{"crashes:count == 2", true},
		{"policy_violations:count == 0", false},
		{"test_cases:count >= 100", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			th, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			results := NewEvaluator([]Threshold{th}).Evaluate(testStats())
			if len(results) != 1 {
				t.Fatalf("got %d results, want 1", len(results))
			}
			if results[0].Pass != tt.pass {
				t.Errorf("Pass = %v, want %v (%s)", results[0].Pass, tt.pass, results[0].Message)
			}
		})
	}
}

func TestAllPassed(t *testing.T) {
	if !AllPassed([]Result{{Pass: true}, {Pass: true}}) {
		t.Error("AllPassed = false for all-pass set")
	}
	if AllPassed([]Result{{Pass: true}, {Pass: false}}) {
		t.Error("AllPassed = true with a failure")
	}
	if !AllPassed(nil) {
		t.Error("AllPassed(nil) = false, want true")
	}
}

func TestEvaluateNoThresholds(t *testing.T) {
	if got := NewEvaluator(nil).Evaluate(testStats()); got != nil {
		t.Errorf("Evaluate with no thresholds = %v, want nil", got)
	}
}
