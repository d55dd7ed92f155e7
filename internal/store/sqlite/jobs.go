package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/JonMunkholm/stockimport/internal/core"
)

// JobStore is a core.JobStore keeping each job as a JSON document.
type JobStore struct {
	db *sql.DB
}

// Save implements core.JobStore. A save carrying an older sequence number
// than the stored row is ignored.
func (s *JobStore) Save(ctx context.Context, job *core.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, tenant, status, terminal, seq, data, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			terminal = excluded.terminal,
			seq = excluded.seq,
			data = excluded.data,
			updated_at = excluded.updated_at
		 WHERE excluded.seq >= jobs.seq`,
		job.ID, job.Tenant, string(job.Status), job.Status.Terminal(), job.Seq, string(data), job.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// Get implements core.JobStore.
func (s *JobStore) Get(ctx context.Context, id string) (*core.Job, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM jobs WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", core.ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	var job core.Job
	if err := json.Unmarshal([]byte(data), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", id, err)
	}
	return &job, nil
}

// Sweep deletes finished jobs last updated before cutoff.
func (s *JobStore) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE terminal = 1 AND updated_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweep jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sweep jobs: %w", err)
	}
	return int(n), nil
}
