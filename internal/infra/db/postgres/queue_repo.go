package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	domain "github.com/Djamsy/veille-uptade-sub000/internal/domain/sentiment"
)

// QueueRepository persists analysis jobs in sentiment_jobs.
//
// At-most-one-in-flight rides on a partial unique index:
//   CREATE UNIQUE INDEX uq_sentiment_jobs_active ON sentiment_jobs (fingerprint)
//   WHERE status IN ('pending','in_progress');
// A duplicate insert fails with unique_violation (23505) instead of creating a
// second non-terminal job.
type QueueRepository struct{ db *sql.DB }

func NewQueueRepository(db *sql.DB) *QueueRepository { return &QueueRepository{db: db} }

const jobColumns = `id, fingerprint, input_text, status, attempts, result_json, error_detail, archive_url, created_at, updated_at`

// EnqueueIfAbsent inserts a pending job unless a non-terminal one exists.
func (r *QueueRepository) EnqueueIfAbsent(ctx context.Context, fingerprint, text string) (*domain.Job, bool, error) {
	const q = `
INSERT INTO sentiment_jobs
 (id, fingerprint, input_text, status, attempts, created_at, updated_at)
VALUES ($1,$2,$3,$4,0,$5,$5);`

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx, q, id, fingerprint, text, domain.StatusPending, now)
	if err != nil {
		var pe *pq.Error
		if errors.As(err, &pe) && pe.Code == "23505" {
			existing, gerr := r.active(ctx, fingerprint)
			if gerr != nil {
				return nil, false, gerr
			}
			if existing != nil {
				return existing, false, nil
			}
			// Active job went terminal between insert and lookup; retry once.
			return r.EnqueueIfAbsent(ctx, fingerprint, text)
		}
		return nil, false, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	return &domain.Job{
		ID:          domain.JobID(id),
		Fingerprint: fingerprint,
		Text:        text,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, true, nil
}

// ClaimNext claims the oldest pending job in a single statement.
// SKIP LOCKED keeps concurrent workers off each other's rows.
func (r *QueueRepository) ClaimNext(ctx context.Context) (*domain.Job, error) {
	const q = `
UPDATE sentiment_jobs
SET status=$1, updated_at=$2
WHERE id = (
    SELECT id FROM sentiment_jobs
    WHERE status=$3
    ORDER BY created_at
    FOR UPDATE SKIP LOCKED
    LIMIT 1
)
RETURNING ` + jobColumns + `;`

	row := r.db.QueryRowContext(ctx, q, domain.StatusInProgress, time.Now().UTC(), domain.StatusPending)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	return job, nil
}

// MarkDone transitions the in-flight job to done; terminal rows stay untouched.
func (r *QueueRepository) MarkDone(ctx context.Context, fingerprint, result, archiveURL string) error {
	const q = `
UPDATE sentiment_jobs
SET status=$1, result_json=$2, archive_url=$3, updated_at=$4
WHERE fingerprint=$5 AND status=$6;`

	res, err := r.db.ExecContext(ctx, q,
		domain.StatusDone, result, archiveURL, time.Now().UTC(),
		fingerprint, domain.StatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// MarkError transitions the in-flight job to error and bumps attempts.
func (r *QueueRepository) MarkError(ctx context.Context, fingerprint, detail string) error {
	const q = `
UPDATE sentiment_jobs
SET status=$1, error_detail=$2, attempts=attempts+1, updated_at=$3
WHERE fingerprint=$4 AND status IN ($5,$6);`

	res, err := r.db.ExecContext(ctx, q,
		domain.StatusError, detail, time.Now().UTC(),
		fingerprint, domain.StatusPending, domain.StatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Get by job ID or fingerprint, newest first; nil when absent
func (r *QueueRepository) Get(ctx context.Context, ref string) (*domain.Job, error) {
	const q = `
SELECT ` + jobColumns + `
FROM sentiment_jobs
WHERE id=$1 OR fingerprint=$1
ORDER BY created_at DESC
LIMIT 1;`

	job, err := scanJob(r.db.QueryRowContext(ctx, q, ref))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	return job, nil
}

// PurgeBefore deletes terminal jobs last touched before the cutoff
func (r *QueueRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `
DELETE FROM sentiment_jobs
WHERE status IN ($1,$2) AND updated_at < $3;`
	res, err := r.db.ExecContext(ctx, q, domain.StatusDone, domain.StatusError, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	return res.RowsAffected()
}

func (r *QueueRepository) active(ctx context.Context, fingerprint string) (*domain.Job, error) {
	const q = `
SELECT ` + jobColumns + `
FROM sentiment_jobs
WHERE fingerprint=$1 AND status IN ($2,$3)
LIMIT 1;`

	job, err := scanJob(r.db.QueryRowContext(ctx, q, fingerprint, domain.StatusPending, domain.StatusInProgress))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	return job, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	var result, detail, archive sql.NullString
	if err := row.Scan(
		&j.ID, &j.Fingerprint, &j.Text, &j.Status, &j.Attempts,
		&result, &detail, &archive,
		&j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}
	j.Result = result.String
	j.ErrorDetail = detail.String
	j.ArchiveURL = archive.String
	return &j, nil
}
