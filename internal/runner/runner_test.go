package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/failproof/stressor/internal/adapter"
	"github.com/failproof/stressor/internal/result"
	"github.com/failproof/stressor/internal/retry"
	"github.com/failproof/stressor/internal/testcase"
)

// fakeAdapter scripts per-call outcomes. The script is keyed by call number
// per test case id; missing entries succeed.
type fakeAdapter struct {
	mu    sync.Mutex
	calls map[string]int
	fail  func(id string, call int) error
	delay time.Duration
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{calls: make(map[string]int)}
}

func (f *fakeAdapter) Provider() string { return "fake" }

func (f *fakeAdapter) Execute(ctx context.Context, prompt string, _ adapter.Params) (*adapter.Response, error) {
	f.mu.Lock()
	f.calls[prompt]++
	call := f.calls[prompt]
	fail := f.fail
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail != nil {
		if err := fail(prompt, call); err != nil {
			return nil, err
		}
	}
	return &adapter.Response{Text: "ok response", Latency: time.Millisecond}, nil
}

func (f *fakeAdapter) callCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func makeCases(n int) []testcase.TestCase {
	cases := make([]testcase.TestCase, n)
	for i := range cases {
		id := fmt.Sprintf("tc-%d", i)
		cases[i] = testcase.TestCase{ID: id, Category: "edge_case", Payload: id}
	}
	return cases
}

func fastRetry(attempts int) *retry.Policy {
	p := retry.NewPolicy(attempts, time.Millisecond, 2*time.Millisecond)
	p.Jitter = func(time.Duration) time.Duration { return 0 }
	return p
}

func collect(t *testing.T, ch <-chan result.TestResult) []result.TestResult {
	t.Helper()
	var out []result.TestResult
	timeout := time.After(10 * time.Second)
	for {
		select {
		case res, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, res)
		case <-timeout:
			t.Fatalf("result channel did not close; got %d results", len(out))
		}
	}
}

func TestRunAllSuccess(t *testing.T) {
	fake := newFakeAdapter()
	r, err := New(Options{
		Adapter:       fake,
		Params:        adapter.Params{Model: "m"},
		MaxConcurrent: 3,
		Retry:         fastRetry(3),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	run, ch, err := r.Run(context.Background(), makeCases(10))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	results := collect(t, ch)

	if len(results) != 10 {
		t.Fatalf("got %d results, want 10", len(results))
	}
	seen := make(map[string]bool)
	for _, res := range results {
		if seen[res.TestCaseID] {
			t.Errorf("duplicate result for %s", res.TestCaseID)
		}
		seen[res.TestCaseID] = true
		if res.Status != result.StatusSuccess {
			t.Errorf("%s status = %q, want success", res.TestCaseID, res.Status)
		}
		if res.Classification != result.ClassSuccess {
			t.Errorf("%s classification = %q, want success", res.TestCaseID, res.Classification)
		}
		if res.AttemptCount != 1 {
			t.Errorf("%s attempts = %d, want 1", res.TestCaseID, res.AttemptCount)
		}
		if res.RunID != run.ID {
			t.Errorf("%s run id = %q, want %q", res.TestCaseID, res.RunID, run.ID)
		}
	}
	final := r.Final()
	if final == nil {
		t.Fatal("Final is nil after channel close")
	}
	if final.Status != result.RunCompleted {
		t.Errorf("run status = %q, want completed", final.Status)
	}
	if final.CompletedAt == nil {
		t.Error("CompletedAt not set on terminal run")
	}
}

func TestRunSnapshotSafeToReadDuringRun(t *testing.T) {
	fake := newFakeAdapter()
	fake.delay = 5 * time.Millisecond
	r, err := New(Options{
		Adapter:       fake,
		Params:        adapter.Params{Model: "m"},
		MaxConcurrent: 4,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	run, ch, err := r.Run(context.Background(), makeCases(40))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Callers persist the pending record while workers execute; the snapshot
	// must marshal cleanly and never change underneath them.
	if _, err := json.Marshal(run); err != nil {
		t.Fatalf("Marshal pending run: %v", err)
	}
	if run.Status != result.RunRunning {
		t.Errorf("pending status = %q, want running", run.Status)
	}
	if r.Final() != nil {
		t.Error("Final non-nil while results still stream")
	}

	collect(t, ch)

	if run.Status != result.RunRunning {
		t.Errorf("snapshot mutated after completion: status = %q", run.Status)
	}
	final := r.Final()
	if final == nil {
		t.Fatal("Final is nil after channel close")
	}
	if final.Status != result.RunCompleted {
		t.Errorf("final status = %q, want completed", final.Status)
	}
	if final.ID != run.ID {
		t.Errorf("final run id = %q, want %q", final.ID, run.ID)
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	fake := newFakeAdapter()
	fake.delay = 20 * time.Millisecond
	r, err := New(Options{
		Adapter:       fake,
		Params:        adapter.Params{Model: "m"},
		MaxConcurrent: 3,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, ch, err := r.Run(context.Background(), makeCases(12))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	collect(t, ch)

	if got := r.MaxObservedConcurrency(); got > 3 {
		t.Errorf("max in-flight = %d, want <= 3", got)
	}
}

func TestTransientErrorRetried(t *testing.T) {
	fake := newFakeAdapter()
	fake.fail = func(id string, call int) error {
		if id == "tc-0" && call == 1 {
			return &adapter.RateLimitError{Provider: "fake"}
		}
		return nil
	}
	r, err := New(Options{
		Adapter: fake,
		Params:  adapter.Params{Model: "m"},
		Retry:   fastRetry(3),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, ch, err := r.Run(context.Background(), makeCases(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	results := collect(t, ch)

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if results[0].Status != result.StatusSuccess {
		t.Errorf("status = %q, want success after retry", results[0].Status)
	}
	if results[0].AttemptCount != 2 {
		t.Errorf("attempts = %d, want 2", results[0].AttemptCount)
	}
}

func TestPermanentErrorNotRetried(t *testing.T) {
	fake := newFakeAdapter()
	fake.fail = func(string, int) error {
		return &adapter.ProviderError{Provider: "fake", StatusCode: 400, Message: "bad request"}
	}
	r, err := New(Options{
		Adapter: fake,
		Params:  adapter.Params{Model: "m"},
		Retry:   fastRetry(5),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, ch, err := r.Run(context.Background(), makeCases(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	results := collect(t, ch)

	if results[0].Status != result.StatusError {
		t.Errorf("status = %q, want error", results[0].Status)
	}
	if results[0].Classification != result.ClassCrash {
		t.Errorf("classification = %q, want crash", results[0].Classification)
	}
	if got := fake.callCount("tc-0"); got != 1 {
		t.Errorf("adapter called %d times, want 1 for permanent error", got)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	fake := newFakeAdapter()
	fake.fail = func(string, int) error {
		return &adapter.ProviderError{Provider: "fake", StatusCode: 503, Message: "overloaded"}
	}
	r, err := New(Options{
		Adapter: fake,
		Params:  adapter.Params{Model: "m"},
		Retry:   fastRetry(3),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, ch, err := r.Run(context.Background(), makeCases(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	results := collect(t, ch)

	if results[0].AttemptCount != 3 {
		t.Errorf("attempts = %d, want 3", results[0].AttemptCount)
	}
	if results[0].Status != result.StatusError {
		t.Errorf("status = %q, want error", results[0].Status)
	}
}

func TestAuthErrorIsRunFatal(t *testing.T) {
	fake := newFakeAdapter()
	fake.delay = 5 * time.Millisecond
	fake.fail = func(id string, _ int) error {
		if id == "tc-0" {
			return &adapter.AuthError{Provider: "fake", Message: "bad key"}
		}
		return nil
	}
	r, err := New(Options{
		Adapter:       fake,
		Params:        adapter.Params{Model: "m"},
		MaxConcurrent: 1,
		Retry:         fastRetry(3),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, ch, err := r.Run(context.Background(), makeCases(20))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	results := collect(t, ch)

	if len(results) != 20 {
		t.Fatalf("got %d results, want 20 (one per case)", len(results))
	}
	final := r.Final()
	if final.Status != result.RunFailed {
		t.Errorf("run status = %q, want failed", final.Status)
	}
	if final.Error == "" {
		t.Error("run error message empty after auth failure")
	}

	cancelled := 0
	for _, res := range results {
		if res.Status == result.StatusCancelled {
			cancelled++
		}
	}
	if cancelled == 0 {
		t.Error("expected pending cases to be cancelled after fatal auth error")
	}
}

func TestCancellationEmitsAllResults(t *testing.T) {
	fake := newFakeAdapter()
	fake.delay = 30 * time.Millisecond
	r, err := New(Options{
		Adapter:       fake,
		Params:        adapter.Params{Model: "m"},
		MaxConcurrent: 2,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, ch, err := r.Run(ctx, makeCases(30))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	cancel()
	results := collect(t, ch)

	if len(results) != 30 {
		t.Fatalf("got %d results, want 30 (one per case even when cancelled)", len(results))
	}
	if final := r.Final(); final.Status != result.RunCancelled {
		t.Errorf("run status = %q, want cancelled", final.Status)
	}
	for _, res := range results {
		switch res.Status {
		case result.StatusSuccess, result.StatusCancelled, result.StatusError, result.StatusTimeout:
		default:
			t.Errorf("%s has non-terminal status %q", res.TestCaseID, res.Status)
		}
	}
}

func TestInvalidOptions(t *testing.T) {
	_, err := New(Options{})
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("New(empty) = %v, want *ConfigError", err)
	}
	if len(ce.Issues) == 0 {
		t.Error("ConfigError carries no issues")
	}
}

func TestRunRejectsEmptyAndInvalidCases(t *testing.T) {
	r, err := New(Options{Adapter: newFakeAdapter(), Params: adapter.Params{Model: "m"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, _, err := r.Run(context.Background(), nil); err == nil {
		t.Error("Run(nil) should fail")
	}

	bad := []testcase.TestCase{{ID: "", Category: "c", Payload: "p"}}
	_, _, err = r.Run(context.Background(), bad)
	var ce *ConfigError
	if !errors.As(err, &ce) {
		t.Errorf("Run(invalid case) = %v, want *ConfigError", err)
	}
}

func TestTimeoutStatus(t *testing.T) {
	fake := newFakeAdapter()
	fake.fail = func(string, int) error {
		return &adapter.TimeoutError{Elapsed: time.Second}
	}
	r, err := New(Options{
		Adapter: fake,
		Params:  adapter.Params{Model: "m"},
		Retry:   fastRetry(2),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, ch, err := r.Run(context.Background(), makeCases(1))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	results := collect(t, ch)

	if results[0].Status != result.StatusTimeout {
		t.Errorf("status = %q, want timeout", results[0].Status)
	}
	if results[0].AttemptCount != 2 {
		t.Errorf("attempts = %d, want 2 (timeouts are transient)", results[0].AttemptCount)
	}
}

func TestSchedulerCountsDispatches(t *testing.T) {
	var executed atomic.Int64
	fake := newFakeAdapter()
	fake.fail = func(string, int) error {
		executed.Add(1)
		return nil
	}
	r, err := New(Options{
		Adapter:       fake,
		Params:        adapter.Params{Model: "m"},
		MaxConcurrent: 4,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, ch, err := r.Run(context.Background(), makeCases(25))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	collect(t, ch)

	if got := executed.Load(); got != 25 {
		t.Errorf("executed %d cases, want 25", got)
	}
}
