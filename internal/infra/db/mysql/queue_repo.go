package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"

	domain "github.com/Djamsy/veille-uptade-sub000/internal/domain/sentiment"
)

// QueueRepository persists analysis jobs in sentiment_jobs.
//
// The at-most-one-in-flight invariant rides on the unique index over
// (fingerprint, active): active is 1 for pending/in_progress rows and NULL for
// terminal rows, and MySQL unique indexes never collide on NULL. A duplicate
// insert therefore fails with ER_DUP_ENTRY instead of creating a second
// non-terminal job.
type QueueRepository struct {
	db *sql.DB
}

func NewQueueRepository(db *sql.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

const jobColumns = `id, fingerprint, input_text, status, attempts, result_json, error_detail, archive_url, created_at, updated_at`

// EnqueueIfAbsent inserts a pending job unless a non-terminal one exists.
// The insert itself is the atomicity point; there is no read-then-write.
func (r *QueueRepository) EnqueueIfAbsent(ctx context.Context, fingerprint, text string) (*domain.Job, bool, error) {
	const q = `
INSERT INTO sentiment_jobs
 (id, fingerprint, input_text, status, attempts, active, created_at, updated_at)
VALUES (?,?,?,?,0,1,?,?);
`
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx, q, id, fingerprint, text, domain.StatusPending, now, now)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			// Lost the race (or a job was already in flight); hand back the winner.
			existing, gerr := r.active(ctx, fingerprint)
			if gerr != nil {
				return nil, false, gerr
			}
			if existing != nil {
				return existing, false, nil
			}
			// The active job went terminal between our insert and the lookup.
			// One retry is enough; the window is a single row update.
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

// ClaimNext flips one pending job to in_progress inside a transaction.
// SKIP LOCKED keeps concurrent workers off each other's rows.
func (r *QueueRepository) ClaimNext(ctx context.Context) (*domain.Job, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	defer tx.Rollback()

	const sel = `
SELECT ` + jobColumns + `
FROM sentiment_jobs
WHERE status=? AND active=1
ORDER BY created_at
LIMIT 1
FOR UPDATE SKIP LOCKED;
`
	job, err := scanJob(tx.QueryRowContext(ctx, sel, domain.StatusPending))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	now := time.Now().UTC()
	const upd = `UPDATE sentiment_jobs SET status=?, updated_at=? WHERE id=?;`
	if _, err := tx.ExecContext(ctx, upd, domain.StatusInProgress, now, job.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}

	job.Status = domain.StatusInProgress
	job.UpdatedAt = now
	return job, nil
}

// MarkDone transitions the in-flight job to done. Conditional on the current
// status so a terminal row is never silently rewritten.
func (r *QueueRepository) MarkDone(ctx context.Context, fingerprint, result, archiveURL string) error {
	const q = `
UPDATE sentiment_jobs
SET status=?, result_json=?, archive_url=?, active=NULL, updated_at=?
WHERE fingerprint=? AND active=1 AND status=?;
`
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
SET status=?, error_detail=?, attempts=attempts+1, active=NULL, updated_at=?
WHERE fingerprint=? AND active=1;
`
	res, err := r.db.ExecContext(ctx, q, domain.StatusError, detail, time.Now().UTC(), fingerprint)
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
WHERE id=? OR fingerprint=?
ORDER BY created_at DESC
LIMIT 1;
`
	job, err := scanJob(r.db.QueryRowContext(ctx, q, ref, ref))
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
	const q = `DELETE FROM sentiment_jobs WHERE active IS NULL AND updated_at < ?;`
	res, err := r.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	return res.RowsAffected()
}

// active returns the single non-terminal job for a fingerprint, nil when none.
func (r *QueueRepository) active(ctx context.Context, fingerprint string) (*domain.Job, error) {
	const q = `
SELECT ` + jobColumns + `
FROM sentiment_jobs
WHERE fingerprint=? AND active=1
LIMIT 1;
`
	job, err := scanJob(r.db.QueryRowContext(ctx, q, fingerprint))
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
