// Package storage persists runs and results. The engine only depends on the
// Store interface; callers pick a backend at startup.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/failproof/stressor/internal/result"
)

// ErrNotFound is returned when a run id has no record.
var ErrNotFound = errors.New("run not found")

// Store is the persistence boundary for runs and results.
type Store interface {
	CreateRun(ctx context.Context, run *result.TestRun) error
	UpdateRun(ctx context.Context, run *result.TestRun) error
	GetRun(ctx context.Context, id string) (*result.TestRun, error)
	ListRuns(ctx context.Context, limit int) ([]result.TestRun, error)
	SaveResult(ctx context.Context, res result.TestResult) error
	ListResults(ctx context.Context, runID string) ([]result.TestResult, error)
	Close() error
}

// Open builds a store from a backend name and a DSN or path.
//
//	memory            in-process, lost on exit
//	jsonl:<path>      append-only file
//	postgres:<dsn>    pgx pool against Postgres
func Open(ctx context.Context, spec string) (Store, error) {
	backend, arg := spec, ""
	if i := strings.IndexByte(spec, ':'); i >= 0 {
		backend, arg = spec[:i], spec[i+1:]
	}
	switch backend {
	case "", "memory":
		return NewMemory(), nil
	case "jsonl":
		if arg == "" {
			return nil, fmt.Errorf("jsonl store requires a path, e.g. jsonl:results.jsonl")
		}
		return OpenJSONL(arg)
	case "postgres", "postgresql":
		if arg == "" {
			return nil, fmt.Errorf("postgres store requires a DSN")
		}
		return OpenPostgres(ctx, postgresDSN(spec, arg))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// postgresDSN picks the string handed to pgx. URL specs ("postgres://...")
// are complete DSNs on their own; keyword specs ("postgres:host=x user=y")
// only parse without the backend prefix.
func postgresDSN(spec, arg string) string {
	if strings.HasPrefix(arg, "//") {
		return spec
	}
	return arg
}

// Summarize derives the reporting summary for a run from its stored results.
func Summarize(run *result.TestRun, results []result.TestResult) result.RunSummary {
	s := result.RunSummary{
		ID:         run.ID,
		Name:       run.Name,
		Status:     run.Status,
		CreatedAt:  run.CreatedAt,
		TotalCases: run.TotalCases,
	}
	if len(results) == 0 {
		return s
	}
	var successes int
	var latencySum, latencyCount int64
	for _, r := range results {
		if r.Classification == result.ClassSuccess {
			successes++
		}
		if r.LatencyMs > 0 {
			latencySum += r.LatencyMs
			latencyCount++
		}
	}
	s.SuccessRate = 100 * float64(successes) / float64(len(results))
	if latencyCount > 0 {
		s.AverageLatency = float64(latencySum) / float64(latencyCount)
	}
	return s
}
