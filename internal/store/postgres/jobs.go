package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/stockimport/internal/core"
)

// JobStore is a core.JobStore keeping each job as a JSONB document.
type JobStore struct {
	pool *pgxpool.Pool
}

// Save implements core.JobStore. A save carrying an older sequence number
// than the stored row is ignored.
func (s *JobStore) Save(ctx context.Context, job *core.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO import_jobs (id, tenant, status, terminal, seq, data, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			terminal = EXCLUDED.terminal,
			seq = EXCLUDED.seq,
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at
		 WHERE import_jobs.seq <= EXCLUDED.seq`,
		job.ID, job.Tenant, string(job.Status), job.Status.Terminal(), job.Seq, data, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Get implements core.JobStore.
func (s *JobStore) Get(ctx context.Context, id string) (*core.Job, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM import_jobs WHERE id = $1`, id).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	var job core.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Sweep deletes finished jobs last updated before cutoff.
func (s *JobStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM import_jobs WHERE terminal AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
