package sentiment

import (
	"context"
	"time"
)

// Cache port (interface for the result cache)
type Cache interface {
	// Get returns the entry for a fingerprint regardless of age, nil when absent.
	Get(ctx context.Context, fingerprint string) (*CacheEntry, error)
	// Put upserts; last write wins, at most one entry per fingerprint.
	Put(ctx context.Context, e *CacheEntry) error
	// Paginate returns recent entries ordered by computed_at desc.
	Paginate(ctx context.Context, page, pageSize int) (PaginatedResult, error)
	// Summary counts entries by sentiment label over the last N days.
	Summary(ctx context.Context, sinceDays int) (Summary, error)
	// PurgeBefore deletes entries computed before the cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Queue port (interface for job coordination)
type Queue interface {
	// EnqueueIfAbsent atomically inserts a pending job for the fingerprint
	// unless a non-terminal job already exists, in which case that job is
	// returned with created=false. Single storage operation, never read-then-write.
	EnqueueIfAbsent(ctx context.Context, fingerprint, text string) (job *Job, created bool, err error)
	// ClaimNext atomically flips one pending job to in_progress and returns it.
	// Returns nil when the queue is idle. Safe across concurrent workers.
	ClaimNext(ctx context.Context) (*Job, error)
	// MarkDone transitions an in_progress job to done with the result attached.
	MarkDone(ctx context.Context, fingerprint, result, archiveURL string) error
	// MarkError transitions a non-terminal job to error and increments attempts.
	MarkError(ctx context.Context, fingerprint, detail string) error
	// Get looks a job up by job ID or fingerprint, latest first. Nil when absent.
	Get(ctx context.Context, ref string) (*Job, error)
	// PurgeBefore deletes terminal jobs last updated before the cutoff.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Analyzer port (interface for the external analysis provider)
type Analyzer interface {
	Analyze(ctx context.Context, text string) (string, error)
}

// ArchiveStore port (interface for raw payload archiving)
type ArchiveStore interface {
	PutJSON(ctx context.Context, key string, payload []byte) (string, error)
}

// Summary counts cached analyses by sentiment label.
type Summary struct {
	Total    int `json:"total"`
	Positive int `json:"positif"`
	Negative int `json:"negatif"`
	Neutral  int `json:"neutre"`
}
