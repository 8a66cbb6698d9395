// Package result defines the immutable run and result records emitted by the
// orchestration engine and consumed by storage, aggregation, and reporting.
package result

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunStatus is the lifecycle state of a TestRun. Transitions are monotonic:
// pending -> running -> {completed, failed, cancelled}.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// Status is the terminal execution state of one test case.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusError     Status = "error"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// Classification is the failure-taxonomy label assigned to a TestResult.
type Classification string

const (
	ClassCrash           Classification = "crash"
	ClassPolicyViolation Classification = "policy_violation"
	ClassRefusal         Classification = "refusal"
	ClassIncorrectOutput Classification = "incorrect_output"
	ClassSuccess         Classification = "success"
)

// VulnerabilityFlag is a tagged, confidence-scored indicator that a response
// exhibits a successful attack pattern. Confidence is in [0, 1].
type VulnerabilityFlag struct {
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
	Evidence   string  `json:"evidence,omitempty"`
}

// RunConfig is the configuration snapshot captured when a run starts.
type RunConfig struct {
	Provider         string        `json:"provider"`
	Model            string        `json:"model"`
	MaxConcurrent    int           `json:"max_concurrent"`
	RequestTimeout   time.Duration `json:"request_timeout"`
	MaxAttempts      int           `json:"max_attempts"`
	RatePerMinute    int           `json:"rate_limit_per_minute"`
	RatePerHour      int           `json:"rate_limit_per_hour"`
	AdmissionTimeout time.Duration `json:"admission_timeout"`
}

// TestRun is one execution batch. The runner owns it until the run reaches a
// terminal status; afterwards it is read-only.
type TestRun struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      RunStatus  `json:"status"`
	Config      RunConfig  `json:"config"`
	TotalCases  int        `json:"total_cases"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// NewTestRun creates a pending run with a ULID identifier.
func NewTestRun(name string, cfg RunConfig, totalCases int) *TestRun {
	now := time.Now().UTC()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0)
	return &TestRun{
		ID:         ulid.MustNew(ulid.Timestamp(now), entropy).String(),
		Name:       name,
		Status:     RunPending,
		Config:     cfg,
		TotalCases: totalCases,
		CreatedAt:  now,
	}
}

// Finalize moves the run into a terminal status. CompletedAt is set exactly
// once, on the first terminal transition; later calls are ignored.
func (r *TestRun) Finalize(status RunStatus, errMsg string) {
	if r.Status.Terminal() {
		return
	}
	r.Status = status
	r.Error = errMsg
	now := time.Now().UTC()
	r.CompletedAt = &now
}

// TestResult is the terminal, immutable outcome of executing one TestCase
// within one TestRun. The runner emits exactly one per submitted case.
type TestResult struct {
	TestCaseID     string              `json:"test_case_id"`
	RunID          string              `json:"run_id"`
	ModelName      string              `json:"model_name"`
	RawResponse    string              `json:"raw_response,omitempty"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	LatencyMs      int64               `json:"latency_ms"`
	AttemptCount   int                 `json:"attempt_count"`
	Status         Status              `json:"status"`
	Classification Classification      `json:"classification"`
	Flags          []VulnerabilityFlag `json:"vulnerability_flags,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
}

// RunSummary is the per-run reporting contract consumed by any dashboard or
// API surface. Rates are percentages 0-100, latency is milliseconds.
type RunSummary struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Status         RunStatus `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	TotalCases     int       `json:"total_cases"`
	SuccessRate    float64   `json:"success_rate"`
	AverageLatency float64   `json:"average_latency"`
}
