package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/failproof/stressor/internal/result"
)

// JSONL appends runs and results to a single file, one JSON record per line.
// Records are replayed into memory on open, so reads are served without
// touching disk. Run updates append a new record; the latest wins on replay.
type JSONL struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	mem  *Memory
	path string
}

type jsonlRecord struct {
	Run    *result.TestRun    `json:"run,omitempty"`
	Result *result.TestResult `json:"result,omitempty"`
}

// OpenJSONL opens or creates the file at path and replays its records.
func OpenJSONL(path string) (*JSONL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open results file: %w", err)
	}

	s := &JSONL{f: f, w: bufio.NewWriter(f), mem: NewMemory(), path: path}
	if err := s.replay(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *JSONL) replay() error {
	if _, err := s.f.Seek(0, 0); err != nil {
		return err
	}
	sc := bufio.NewScanner(s.f)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec jsonlRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("%s:%d: %w", s.path, line, err)
		}
		ctx := context.Background()
		switch {
		case rec.Run != nil:
			_ = s.mem.CreateRun(ctx, rec.Run)
		case rec.Result != nil:
			_ = s.mem.SaveResult(ctx, *rec.Result)
		}
	}
	return sc.Err()
}

func (s *JSONL) append(rec jsonlRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *JSONL) CreateRun(ctx context.Context, run *result.TestRun) error {
	if err := s.mem.CreateRun(ctx, run); err != nil {
		return err
	}
	return s.append(jsonlRecord{Run: run})
}

func (s *JSONL) UpdateRun(ctx context.Context, run *result.TestRun) error {
	if err := s.mem.UpdateRun(ctx, run); err != nil {
		return err
	}
	return s.append(jsonlRecord{Run: run})
}

func (s *JSONL) GetRun(ctx context.Context, id string) (*result.TestRun, error) {
	return s.mem.GetRun(ctx, id)
}

func (s *JSONL) ListRuns(ctx context.Context, limit int) ([]result.TestRun, error) {
	return s.mem.ListRuns(ctx, limit)
}

func (s *JSONL) SaveResult(ctx context.Context, res result.TestResult) error {
	if err := s.mem.SaveResult(ctx, res); err != nil {
		return err
	}
	return s.append(jsonlRecord{Result: &res})
}

func (s *JSONL) ListResults(ctx context.Context, runID string) ([]result.TestResult, error) {
	return s.mem.ListResults(ctx, runID)
}

func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return err
	}
	return s.f.Close()
}
