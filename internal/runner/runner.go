// Package runner orchestrates test case execution: a scheduler feeds a
// bounded worker pool, each worker drives one case through admission control,
// the adapter, retry, classification, and vulnerability scanning, and every
// submitted case produces exactly one result on the output channel.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/failproof/stressor/internal/adapter"
	"github.com/failproof/stressor/internal/classify"
	"github.com/failproof/stressor/internal/result"
	"github.com/failproof/stressor/internal/retry"
	"github.com/failproof/stressor/internal/testcase"
	"github.com/failproof/stressor/internal/tracing"
)

// Runner executes batches of test cases against one model backend.
type Runner struct {
	opt Options

	mu    sync.Mutex
	final *result.TestRun

	inFlight    atomic.Int64
	maxInFlight atomic.Int64
}

func New(opt Options) (*Runner, error) {
	if err := opt.validate(); err != nil {
		return nil, err
	}
	opt.normalize()
	return &Runner{opt: opt}, nil
}

// MaxObservedConcurrency reports the high-water mark of concurrently
// executing cases. Diagnostic only.
func (r *Runner) MaxObservedConcurrency() int64 {
	return r.maxInFlight.Load()
}

// Run starts the batch and returns a snapshot of the pending run record plus
// the result stream. The snapshot is never mutated after return, so callers
// may read or persist it while the run executes. The terminal record is
// available from Final once the channel has closed. A non-nil error means
// invalid input and that nothing was started.
func (r *Runner) Run(ctx context.Context, cases []testcase.TestCase) (*result.TestRun, <-chan result.TestResult, error) {
	if len(cases) == 0 {
		return nil, nil, &ConfigError{Issues: []string{"no test cases supplied"}}
	}
	for i, tc := range cases {
		if err := tc.Validate(); err != nil {
			return nil, nil, &ConfigError{Issues: []string{fmt.Sprintf("case %d: %v", i, err)}}
		}
	}

	cfg := result.RunConfig{
		Provider:         r.opt.Adapter.Provider(),
		Model:            r.opt.Params.Model,
		MaxConcurrent:    r.opt.MaxConcurrent,
		RequestTimeout:   r.opt.RequestTimeout,
		MaxAttempts:      r.opt.Retry.MaxAttempts,
		RatePerMinute:    r.opt.RatePerMinute,
		RatePerHour:      r.opt.RatePerHour,
		AdmissionTimeout: r.opt.AdmissionTimeout,
	}
	run := result.NewTestRun(r.opt.RunName, cfg, len(cases))
	run.Status = result.RunRunning
	snapshot := *run

	results := make(chan result.TestResult, len(cases))
	go r.execute(ctx, run, cases, results)
	return &snapshot, results, nil
}

// Final returns the terminal run record of the most recent batch. It is nil
// until that batch's result channel has closed.
func (r *Runner) Final() *result.TestRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.final
}

// fatalErr holds the first run-fatal error observed by any worker.
type fatalErr struct {
	mu  sync.Mutex
	err error
}

func (f *fatalErr) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}

func (f *fatalErr) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (r *Runner) execute(parent context.Context, run *result.TestRun, cases []testcase.TestCase, results chan<- result.TestResult) {
	log := r.opt.Logger.With().Str("run_id", run.ID).Logger()
	log.Info().
		Str("provider", run.Config.Provider).
		Str("model", run.Config.Model).
		Int("cases", len(cases)).
		Int("max_concurrent", r.opt.MaxConcurrent).
		Msg("run started")

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var fatal fatalErr
	pacer := r.opt.LimiterFactory(r.opt.RatePerSecond)

	queue := make(chan testcase.TestCase)
	undispatched := make(chan []testcase.TestCase, 1)

	// Scheduler: serializes pacing so workers never overshoot the dispatch
	// rate in a burst. The queue is unbuffered; a case not handed to a
	// worker counts as undispatched when the run stops early.
	go func() {
		defer close(queue)
		for i, tc := range cases {
			if ctx.Err() != nil {
				undispatched <- cases[i:]
				return
			}
			if err := pacer.Wait(ctx); err != nil {
				undispatched <- cases[i:]
				return
			}
			select {
			case queue <- tc:
			case <-ctx.Done():
				undispatched <- cases[i:]
				return
			}
		}
		undispatched <- nil
	}()

	var wg sync.WaitGroup
	wg.Add(r.opt.MaxConcurrent)
	for i := 0; i < r.opt.MaxConcurrent; i++ {
		go func() {
			defer wg.Done()
			for tc := range queue {
				cur := r.inFlight.Add(1)
				for {
					prev := r.maxInFlight.Load()
					if cur <= prev || r.maxInFlight.CompareAndSwap(prev, cur) {
						break
					}
				}

				res, execErr := r.runCase(ctx, run.ID, tc)
				r.inFlight.Add(-1)

				var authErr *adapter.AuthError
				if errors.As(execErr, &authErr) {
					fatal.set(authErr)
					cancel()
				}
				results <- res
			}
		}()
	}
	wg.Wait()

	// Exactly one result per submitted case: emit the never-dispatched
	// remainder as cancelled.
	for _, tc := range <-undispatched {
		results <- cancelledResult(run.ID, r.opt.Params.Model, tc)
	}

	switch {
	case fatal.get() != nil:
		run.Finalize(result.RunFailed, fatal.get().Error())
	case parent.Err() != nil:
		run.Finalize(result.RunCancelled, parent.Err().Error())
	default:
		run.Finalize(result.RunCompleted, "")
	}

	log.Info().
		Str("status", string(run.Status)).
		Msg("run finished")

	// The execute goroutine owns the record until here; publish it before
	// closing the channel so Final never observes a non-terminal run.
	r.mu.Lock()
	r.final = run
	r.mu.Unlock()
	close(results)
}

// runCase drives one test case through admission, execution, and retry, then
// classifies and scans the outcome. The terminal execution error is returned
// alongside the result so the worker can spot run-fatal faults.
func (r *Runner) runCase(ctx context.Context, runID string, tc testcase.TestCase) (result.TestResult, error) {
	caseCtx, span := tracing.StartCaseSpan(ctx, r.opt.Tracer, tc.ID, tc.Category)

	var (
		resp     *adapter.Response
		execErr  error
		attempts int
	)
	start := time.Now()

	for {
		attempts++
		resp, execErr = r.attempt(caseCtx, tc)
		if execErr == nil {
			break
		}
		if attempts >= r.opt.Retry.MaxAttempts || !retry.Transient(execErr) {
			break
		}
		// Backoff is zero-based: the wait before retry N uses attempt N-1.
		if err := r.opt.Retry.Sleep(caseCtx, attempts-1); err != nil {
			execErr = err
			break
		}
	}
	elapsed := time.Since(start)

	res := result.TestResult{
		TestCaseID:   tc.ID,
		RunID:        runID,
		ModelName:    r.opt.Params.Model,
		AttemptCount: attempts,
		Timestamp:    time.Now().UTC(),
	}

	switch {
	case execErr == nil:
		res.Status = result.StatusSuccess
		res.RawResponse = resp.Text
		res.LatencyMs = resp.Latency.Milliseconds()
	case errors.Is(execErr, context.Canceled):
		res.Status = result.StatusCancelled
		res.ErrorMessage = execErr.Error()
	case isTimeout(execErr):
		res.Status = result.StatusTimeout
		res.ErrorMessage = execErr.Error()
		res.LatencyMs = elapsed.Milliseconds()
	default:
		res.Status = result.StatusError
		res.ErrorMessage = execErr.Error()
		res.LatencyMs = elapsed.Milliseconds()
	}

	res.Classification = classify.Classify(resp, execErr, tc)
	if execErr == nil && r.opt.Detector != nil {
		res.Flags = r.opt.Detector.Scan(resp.Text, tc)
	}

	tracing.EndSpan(span, execErr,
		attribute.Int("case.attempts", attempts),
		attribute.String("case.classification", string(res.Classification)),
	)
	return res, execErr
}

// attempt performs one admission plus one adapter call.
func (r *Runner) attempt(ctx context.Context, tc testcase.TestCase) (*adapter.Response, error) {
	if r.opt.Limiter != nil {
		if err := r.opt.Limiter.Acquire(ctx, r.opt.LimiterKey); err != nil {
			return nil, err
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, r.opt.RequestTimeout)
	defer cancel()
	return r.opt.Adapter.Execute(callCtx, tc.Payload, r.opt.Params)
}

func cancelledResult(runID, model string, tc testcase.TestCase) result.TestResult {
	return result.TestResult{
		TestCaseID:     tc.ID,
		RunID:          runID,
		ModelName:      model,
		ErrorMessage:   "run stopped before dispatch",
		Status:         result.StatusCancelled,
		Classification: result.ClassCrash,
		Timestamp:      time.Now().UTC(),
	}
}

func isTimeout(err error) bool {
	var te *adapter.TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
