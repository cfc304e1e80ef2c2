// Package memory provides in-process implementations of the sentiment cache
// and job queue, used by the test suite and by the "memory" database driver
// for local development. Each store is guarded by a single mutex, which makes
// EnqueueIfAbsent and ClaimNext trivially atomic.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	domain "github.com/Djamsy/veille-uptade-sub000/internal/domain/sentiment"
)

// Cache is an in-memory result cache keyed by fingerprint.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*domain.CacheEntry
	nowFunc func() time.Time
}

func NewCache() *Cache {
	return &Cache{
		entries: make(map[string]*domain.CacheEntry),
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the store clock. Test hook.
func (c *Cache) SetNowFunc(f func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowFunc = f
}

func (c *Cache) Get(ctx context.Context, fingerprint string) (*domain.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fingerprint]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (c *Cache) Put(ctx context.Context, e *domain.CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *e
	if cp.ComputedAt.IsZero() {
		cp.ComputedAt = c.nowFunc()
	}
	c.entries[cp.Fingerprint] = &cp
	return nil
}

func (c *Cache) Paginate(ctx context.Context, page, pageSize int) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	all := make([]*domain.CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		cp := *e
		all = append(all, &cp)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ComputedAt.After(all[j].ComputedAt) })

	total := int64(len(all))
	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	return domain.PaginatedResult{
		Data:       all[start:end],
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

func (c *Cache) Summary(ctx context.Context, sinceDays int) (domain.Summary, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cut := c.nowFunc().AddDate(0, 0, -sinceDays)
	var sum domain.Summary
	for _, e := range c.entries {
		if e.ComputedAt.Before(cut) {
			continue
		}
		sum.Total++
		switch e.Label {
		case domain.LabelPositive:
			sum.Positive++
		case domain.LabelNegative:
			sum.Negative++
		case domain.LabelNeutral:
			sum.Neutral++
		}
	}
	return sum, nil
}

func (c *Cache) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	for fp, e := range c.entries {
		if e.ComputedAt.Before(cutoff) {
			delete(c.entries, fp)
			n++
		}
	}
	return n, nil
}

// Queue is an in-memory job queue with at-most-one non-terminal job per
// fingerprint.
type Queue struct {
	mu      sync.Mutex
	jobs    []*domain.Job
	byID    map[domain.JobID]*domain.Job
	nowFunc func() time.Time
}

func NewQueue() *Queue {
	return &Queue{
		byID:    make(map[domain.JobID]*domain.Job),
		nowFunc: time.Now,
	}
}

// SetNowFunc overrides the store clock. Test hook.
func (q *Queue) SetNowFunc(f func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nowFunc = f
}

func (q *Queue) EnqueueIfAbsent(ctx context.Context, fingerprint, text string) (*domain.Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if j := q.activeLocked(fingerprint); j != nil {
		cp := *j
		return &cp, false, nil
	}

	now := q.nowFunc()
	job := &domain.Job{
		ID:          domain.JobID(uuid.New().String()),
		Fingerprint: fingerprint,
		Text:        text,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	q.jobs = append(q.jobs, job)
	q.byID[job.ID] = job

	cp := *job
	return &cp, true, nil
}

func (q *Queue) ClaimNext(ctx context.Context) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var oldest *domain.Job
	for _, j := range q.jobs {
		if j.Status != domain.StatusPending {
			continue
		}
		if oldest == nil || j.CreatedAt.Before(oldest.CreatedAt) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, nil
	}

	oldest.Status = domain.StatusInProgress
	oldest.UpdatedAt = q.nowFunc()
	cp := *oldest
	return &cp, nil
}

func (q *Queue) MarkDone(ctx context.Context, fingerprint, result, archiveURL string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j := q.activeLocked(fingerprint)
	if j == nil || j.Status != domain.StatusInProgress {
		return domain.ErrNotFound
	}
	j.Status = domain.StatusDone
	j.Result = result
	j.ArchiveURL = archiveURL
	j.UpdatedAt = q.nowFunc()
	return nil
}

func (q *Queue) MarkError(ctx context.Context, fingerprint, detail string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	j := q.activeLocked(fingerprint)
	if j == nil {
		return domain.ErrNotFound
	}
	j.Status = domain.StatusError
	j.ErrorDetail = detail
	j.Attempts++
	j.UpdatedAt = q.nowFunc()
	return nil
}

func (q *Queue) Get(ctx context.Context, ref string) (*domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if j, ok := q.byID[domain.JobID(ref)]; ok {
		cp := *j
		return &cp, nil
	}

	var latest *domain.Job
	for _, j := range q.jobs {
		if j.Fingerprint != ref {
			continue
		}
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (q *Queue) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var n int64
	kept := q.jobs[:0]
	for _, j := range q.jobs {
		if j.Status.Terminal() && j.UpdatedAt.Before(cutoff) {
			delete(q.byID, j.ID)
			n++
			continue
		}
		kept = append(kept, j)
	}
	q.jobs = kept
	return n, nil
}

// activeLocked returns the single non-terminal job for a fingerprint.
// Caller holds q.mu.
func (q *Queue) activeLocked(fingerprint string) *domain.Job {
	for _, j := range q.jobs {
		if j.Fingerprint == fingerprint && !j.Status.Terminal() {
			return j
		}
	}
	return nil
}
