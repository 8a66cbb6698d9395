package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/failproof/stressor/internal/result"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS test_runs (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	status       TEXT NOT NULL,
	config       JSONB NOT NULL,
	total_cases  INTEGER NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ,
	error        TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS test_results (
	id             BIGSERIAL PRIMARY KEY,
	run_id         TEXT NOT NULL REFERENCES test_runs(id),
	test_case_id   TEXT NOT NULL,
	model_name     TEXT NOT NULL,
	raw_response   TEXT NOT NULL DEFAULT '',
	error_message  TEXT NOT NULL DEFAULT '',
	latency_ms     BIGINT NOT NULL,
	attempt_count  INTEGER NOT NULL,
	status         TEXT NOT NULL,
	classification TEXT NOT NULL,
	flags          JSONB,
	created_at     TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_test_results_run ON test_results (run_id);
`

// Postgres persists runs and results through a pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects, applies the schema, and returns the store.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) CreateRun(ctx context.Context, run *result.TestRun) error {
	cfg, err := json.Marshal(run.Config)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx, `
		INSERT INTO test_runs (id, name, status, config, total_cases, created_at, completed_at, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.Name, string(run.Status), cfg, run.TotalCases,
		run.CreatedAt, run.CompletedAt, run.Error)
	return err
}

func (p *Postgres) UpdateRun(ctx context.Context, run *result.TestRun) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE test_runs SET status = $2, completed_at = $3, error = $4 WHERE id = $1`,
		run.ID, string(run.Status), run.CompletedAt, run.Error)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetRun(ctx context.Context, id string) (*result.TestRun, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, name, status, config, total_cases, created_at, completed_at, error
		FROM test_runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

func (p *Postgres) ListRuns(ctx context.Context, limit int) ([]result.TestRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, name, status, config, total_cases, created_at, completed_at, error
		FROM test_runs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []result.TestRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func scanRun(row pgx.Row) (*result.TestRun, error) {
	var (
		run         result.TestRun
		status      string
		cfg         []byte
		completedAt *time.Time
	)
	if err := row.Scan(&run.ID, &run.Name, &status, &cfg, &run.TotalCases,
		&run.CreatedAt, &completedAt, &run.Error); err != nil {
		return nil, err
	}
	run.Status = result.RunStatus(status)
	run.CompletedAt = completedAt
	if err := json.Unmarshal(cfg, &run.Config); err != nil {
		return nil, fmt.Errorf("decode run config: %w", err)
	}
	return &run, nil
}

func (p *Postgres) SaveResult(ctx context.Context, res result.TestResult) error {
	var flags []byte
	if len(res.Flags) > 0 {
		var err error
		flags, err = json.Marshal(res.Flags)
		if err != nil {
			return err
		}
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO test_results (run_id, test_case_id, model_name, raw_response,
			error_message, latency_ms, attempt_count, status, classification, flags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		res.RunID, res.TestCaseID, res.ModelName, res.RawResponse,
		res.ErrorMessage, res.LatencyMs, res.AttemptCount,
		string(res.Status), string(res.Classification), flags, res.Timestamp)
	return err
}

func (p *Postgres) ListResults(ctx context.Context, runID string) ([]result.TestResult, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT run_id, test_case_id, model_name, raw_response, error_message,
			latency_ms, attempt_count, status, classification, flags, created_at
		FROM test_results WHERE run_id = $1 ORDER BY id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []result.TestResult
	for rows.Next() {
		var (
			res           result.TestResult
			status, class string
			flags         []byte
		)
		if err := rows.Scan(&res.RunID, &res.TestCaseID, &res.ModelName,
			&res.RawResponse, &res.ErrorMessage, &res.LatencyMs, &res.AttemptCount,
			&status, &class, &flags, &res.Timestamp); err != nil {
			return nil, err
		}
		res.Status = result.Status(status)
		res.Classification = result.Classification(class)
		if len(flags) > 0 {
			if err := json.Unmarshal(flags, &res.Flags); err != nil {
				return nil, fmt.Errorf("decode flags: %w", err)
			}
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
