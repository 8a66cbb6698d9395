package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/failproof/stressor/internal/result"
)

// Memory keeps runs and results in process. Useful for tests and one-shot
// runs that only need the final report.
type Memory struct {
	mu      sync.RWMutex
	runs    map[string]result.TestRun
	results map[string][]result.TestResult
}

func NewMemory() *Memory {
	return &Memory{
		runs:    make(map[string]result.TestRun),
		results: make(map[string][]result.TestResult),
	}
}

func (m *Memory) CreateRun(_ context.Context, run *result.TestRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *Memory) UpdateRun(_ context.Context, run *result.TestRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		return ErrNotFound
	}
	m.runs[run.ID] = *run
	return nil
}

func (m *Memory) GetRun(_ context.Context, id string) (*result.TestRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &run, nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]result.TestRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	runs := make([]result.TestRun, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (m *Memory) SaveResult(_ context.Context, res result.TestResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[res.RunID] = append(m.results[res.RunID], res)
	return nil
}

func (m *Memory) ListResults(_ context.Context, runID string) ([]result.TestResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]result.TestResult, len(m.results[runID]))
	copy(out, m.results[runID])
	return out, nil
}

func (m *Memory) Close() error { return nil }
