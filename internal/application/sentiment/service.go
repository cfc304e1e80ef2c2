package sentiment

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/Djamsy/veille-uptade-sub000/internal/application"
	domain "github.com/Djamsy/veille-uptade-sub000/internal/domain/sentiment"
)

const (
	defaultMaxAge        = 24 * time.Hour
	defaultSyncTimeout   = 60 * time.Second
	defaultAwaitInterval = 500 * time.Millisecond
)

// Service implements use-cases for sentiment analysis requests.
// Dependencies are injected explicitly; construct once at startup and share.
// Safe for concurrent use.
type Service struct {
	Cache    domain.Cache
	Queue    domain.Queue
	Analyzer domain.Analyzer
	Clock    application.Clock

	// MaxAge is the cache freshness window. Zero means 24h.
	MaxAge time.Duration
	// SyncTimeout bounds inline provider calls. Zero means 60s.
	SyncTimeout time.Duration
	// AwaitInterval is the poll interval used when a sync request finds an
	// analysis already in flight. Zero means 500ms.
	AwaitInterval time.Duration
}

// AnalyzeResult is what the front door returns for both sync and async mode.
type AnalyzeResult struct {
	TaskID string          `json:"task_id"`
	Status string          `json:"status"`
	Cached bool            `json:"cached"`
	Result json.RawMessage `json:"result,omitempty"`
}

// JobStatus is the poller view of a job.
type JobStatus struct {
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts,omitempty"`
	QueuedAt    *time.Time      `json:"queued_at,omitempty"`
	UpdatedAt   *time.Time      `json:"updated_at,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorDetail string          `json:"error,omitempty"`
}

func (s *Service) maxAge() time.Duration {
	if s.MaxAge > 0 {
		return s.MaxAge
	}
	return defaultMaxAge
}

func (s *Service) syncTimeout() time.Duration {
	if s.SyncTimeout > 0 {
		return s.SyncTimeout
	}
	return defaultSyncTimeout
}

func (s *Service) awaitInterval() time.Duration {
	if s.AwaitInterval > 0 {
		return s.AwaitInterval
	}
	return defaultAwaitInterval
}

// Analyze is the front door: fresh cache hit first, then either an async
// enqueue or an inline provider call. The fingerprint doubles as the task id.
func (s *Service) Analyze(ctx context.Context, text string, async bool) (AnalyzeResult, error) {
	fp, err := domain.Fingerprint(text)
	if err != nil {
		return AnalyzeResult{}, err
	}

	// Cache errors are a miss, not a failure (fail open).
	entry, err := s.Cache.Get(ctx, fp)
	if err != nil {
		log.Printf("sentiment cache read failed, treating as miss: fingerprint=%s err=%v", fp, err)
	} else if entry != nil && entry.Fresh(s.Clock.Now(), s.maxAge()) {
		return AnalyzeResult{
			TaskID: fp,
			Status: "cached",
			Cached: true,
			Result: json.RawMessage(entry.Result),
		}, nil
	}

	if async {
		job, _, err := s.Queue.EnqueueIfAbsent(ctx, fp, text)
		if err != nil {
			return AnalyzeResult{}, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
		}
		return AnalyzeResult{TaskID: fp, Status: string(job.Status)}, nil
	}

	// Sync mode. If another request already has this fingerprint in flight,
	// await that job instead of launching a redundant provider call, so
	// at-most-one-in-flight holds here too.
	if job, err := s.Queue.Get(ctx, fp); err == nil && job != nil && !job.Status.Terminal() {
		return s.await(ctx, fp)
	}

	return s.analyzeInline(ctx, fp, text)
}

// analyzeInline calls the provider directly with a bounded timeout and
// mirrors the result into the cache.
func (s *Service) analyzeInline(ctx context.Context, fingerprint, text string) (AnalyzeResult, error) {
	cctx, cancel := context.WithTimeout(ctx, s.syncTimeout())
	defer cancel()

	result, err := s.Analyzer.Analyze(cctx, text)
	if err != nil {
		return AnalyzeResult{}, fmt.Errorf("%w: %v", domain.ErrProvider, err)
	}

	e := &domain.CacheEntry{
		Fingerprint: fingerprint,
		Label:       domain.LabelFromResult(result),
		Result:      result,
		ComputedAt:  s.Clock.Now(),
	}
	if err := s.Cache.Put(ctx, e); err != nil {
		// The result is in hand; a cache write failure only costs a recompute.
		log.Printf("sentiment cache write failed: fingerprint=%s err=%v", fingerprint, err)
	}

	return AnalyzeResult{TaskID: fingerprint, Status: "done", Result: json.RawMessage(result)}, nil
}

// await polls the queue until the in-flight job for the fingerprint reaches a
// terminal state or the context runs out.
func (s *Service) await(ctx context.Context, fingerprint string) (AnalyzeResult, error) {
	cctx, cancel := context.WithTimeout(ctx, s.syncTimeout())
	defer cancel()

	ticker := time.NewTicker(s.awaitInterval())
	defer ticker.Stop()

	for {
		select {
		case <-cctx.Done():
			return AnalyzeResult{}, fmt.Errorf("%w: timed out waiting for in-flight analysis %s", domain.ErrProvider, fingerprint)
		case <-ticker.C:
			job, err := s.Queue.Get(cctx, fingerprint)
			if err != nil {
				return AnalyzeResult{}, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
			}
			if job == nil {
				return AnalyzeResult{}, domain.ErrNotFound
			}
			switch job.Status {
			case domain.StatusDone:
				return AnalyzeResult{TaskID: fingerprint, Status: "done", Result: json.RawMessage(job.Result)}, nil
			case domain.StatusError:
				return AnalyzeResult{}, fmt.Errorf("%w: %s", domain.ErrProvider, job.ErrorDetail)
			}
		}
	}
}

// Status reports job state for pollers. Side-effect free. The reference may be
// a job ID or a fingerprint; a done cache entry answers for jobs that have
// already been purged.
func (s *Service) Status(ctx context.Context, ref string) (JobStatus, error) {
	job, err := s.Queue.Get(ctx, ref)
	if err != nil {
		return JobStatus{}, fmt.Errorf("%w: %v", domain.ErrQueueUnavailable, err)
	}
	if job != nil {
		st := JobStatus{
			Status:    string(job.Status),
			Attempts:  job.Attempts,
			QueuedAt:  &job.CreatedAt,
			UpdatedAt: &job.UpdatedAt,
		}
		switch job.Status {
		case domain.StatusDone:
			st.Result = json.RawMessage(job.Result)
			// The cache is the canonical copy once a job is done.
			if entry, cerr := s.Cache.Get(ctx, job.Fingerprint); cerr == nil && entry != nil {
				st.Result = json.RawMessage(entry.Result)
			}
		case domain.StatusError:
			st.ErrorDetail = job.ErrorDetail
		}
		return st, nil
	}

	if entry, err := s.Cache.Get(ctx, ref); err == nil && entry != nil {
		return JobStatus{
			Status:    string(domain.StatusDone),
			UpdatedAt: &entry.ComputedAt,
			Result:    json.RawMessage(entry.Result),
		}, nil
	}

	return JobStatus{}, domain.ErrNotFound
}

// Result returns the completed payload only. ErrNotFound while the job is
// still running, errored, or unknown.
func (s *Service) Result(ctx context.Context, ref string) (json.RawMessage, error) {
	st, err := s.Status(ctx, ref)
	if err != nil {
		return nil, err
	}
	if st.Status != string(domain.StatusDone) || len(st.Result) == 0 {
		return nil, domain.ErrNotFound
	}
	return st.Result, nil
}

// Recent returns a page of cached analyses for the dashboard.
func (s *Service) Recent(ctx context.Context, page, pageSize int) (domain.PaginatedResult, error) {
	return s.Cache.Paginate(ctx, page, pageSize)
}

// Summary counts cached analyses by sentiment over the last N days.
func (s *Service) Summary(ctx context.Context, days int) (domain.Summary, error) {
	return s.Cache.Summary(ctx, days)
}
