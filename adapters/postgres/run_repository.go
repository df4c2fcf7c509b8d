// Package postgres persists deconvolution runs to PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"gosane/domain/deconv"
	"gosane/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS deconv_runs (
	id          TEXT PRIMARY KEY,
	dirty_name  TEXT NOT NULL,
	psf_name    TEXT NOT NULL,
	params      JSONB NOT NULL,
	status      TEXT NOT NULL,
	complete    BOOLEAN NOT NULL DEFAULT FALSE,
	error       TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS deconv_run_iterations (
	run_id       TEXT NOT NULL REFERENCES deconv_runs(id) ON DELETE CASCADE,
	major_iter   INTEGER NOT NULL,
	scale_count  INTEGER NOT NULL,
	max_scale    INTEGER NOT NULL,
	max_coeff    DOUBLE PRECISION NOT NULL,
	minor_iters  INTEGER NOT NULL,
	snr          DOUBLE PRECISION NOT NULL,
	residual_std DOUBLE PRECISION NOT NULL,
	std_ratio    DOUBLE PRECISION NOT NULL,
	reverted     BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, major_iter)
);
`

// RunRepository implements ports.RunRepository on PostgreSQL.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository connects to the database and ensures the schema exists.
func NewRunRepository(databaseURL string) (*RunRepository, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &RunRepository{db: db}, nil
}

var _ ports.RunRepository = (*RunRepository)(nil)

// Close releases the connection pool.
func (r *RunRepository) Close() error { return r.db.Close() }

// Create inserts a new run record.
func (r *RunRepository) Create(ctx context.Context, run *deconv.Run) error {
	params, err := json.Marshal(run.Params)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO deconv_runs (id, dirty_name, psf_name, params, status, complete, error, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, run.ID, run.DirtyName, run.PSFName, params, run.Status, run.Complete, run.Error, run.StartedAt)
	return err
}

// UpdateStatus updates a run's state, stamping the finish time for terminal
// statuses.
func (r *RunRepository) UpdateStatus(ctx context.Context, id deconv.RunID, status deconv.Status, complete bool, errMsg string) error {
	var res sql.Result
	var err error
	if status.Terminal() {
		res, err = r.db.ExecContext(ctx, `
			UPDATE deconv_runs SET status = $2, complete = $3, error = $4, finished_at = NOW()
			WHERE id = $1
		`, id, status, complete, errMsg)
	} else {
		res, err = r.db.ExecContext(ctx, `
			UPDATE deconv_runs SET status = $2, complete = $3, error = $4
			WHERE id = $1
		`, id, status, complete, errMsg)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return deconv.ErrRunNotFound
	}
	return nil
}

// AppendIteration records one major-iteration metric row.
func (r *RunRepository) AppendIteration(ctx context.Context, id deconv.RunID, m deconv.IterationMetrics) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO deconv_run_iterations
			(run_id, major_iter, scale_count, max_scale, max_coeff, minor_iters, snr, residual_std, std_ratio, reverted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, id, m.MajorIter, m.ScaleCount, m.MaxScale, m.MaxCoeff, m.MinorIters, m.SNR, m.ResidualStd, m.StdRatio, m.Reverted)
	return err
}

// Get loads one run with its iteration history.
func (r *RunRepository) Get(ctx context.Context, id deconv.RunID) (*deconv.Run, error) {
	run, err := r.scanRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := r.db.SelectContext(ctx, &run.Iterations, `
		SELECT major_iter, scale_count, max_scale, max_coeff, minor_iters, snr, residual_std, std_ratio, reverted
		FROM deconv_run_iterations WHERE run_id = $1 ORDER BY major_iter
	`, id); err != nil {
		return nil, err
	}
	return run, nil
}

// List returns every run, newest first, without iteration history.
func (r *RunRepository) List(ctx context.Context) ([]*deconv.Run, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, dirty_name, psf_name, params, status, complete, error, started_at, finished_at
		FROM deconv_runs ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*deconv.Run
	for rows.Next() {
		run, err := scanRunRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *RunRepository) scanRun(ctx context.Context, id deconv.RunID) (*deconv.Run, error) {
	row := r.db.QueryRowxContext(ctx, `
		SELECT id, dirty_name, psf_name, params, status, complete, error, started_at, finished_at
		FROM deconv_runs WHERE id = $1
	`, id)
	run, err := scanRunRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, deconv.ErrRunNotFound
	}
	return run, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRunRow(row rowScanner) (*deconv.Run, error) {
	var run deconv.Run
	var params []byte
	if err := row.Scan(&run.ID, &run.DirtyName, &run.PSFName, &params, &run.Status,
		&run.Complete, &run.Error, &run.StartedAt, &run.FinishedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params, &run.Params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return &run, nil
}
