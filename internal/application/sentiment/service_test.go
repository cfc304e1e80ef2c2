package sentiment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	domain "github.com/Djamsy/veille-uptade-sub000/internal/domain/sentiment"
	"github.com/Djamsy/veille-uptade-sub000/internal/infra/db/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls int
	fn    func(text string) (string, error)
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, text string) (string, error) {
	a.mu.Lock()
	a.calls++
	fn := a.fn
	a.mu.Unlock()
	if fn != nil {
		return fn(text)
	}
	return fmt.Sprintf(`{"sentiment":"neutre","score":0,"summary":%q}`, text), nil
}

func (a *fakeAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func newTestService() (*Service, *memory.Cache, *memory.Queue, *fakeAnalyzer, *fakeClock) {
	cache := memory.NewCache()
	queue := memory.NewQueue()
	analyzer := &fakeAnalyzer{}
	clock := newFakeClock()
	svc := &Service{
		Cache:         cache,
		Queue:         queue,
		Analyzer:      analyzer,
		Clock:         clock,
		AwaitInterval: 5 * time.Millisecond,
	}
	return svc, cache, queue, analyzer, clock
}

func TestAnalyzeInvalidInput(t *testing.T) {
	svc, _, queue, analyzer, _ := newTestService()

	for _, async := range []bool{true, false} {
		_, err := svc.Analyze(context.Background(), "   ", async)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("Analyze(empty, async=%v) error = %v, want ErrInvalidInput", async, err)
		}
	}
	if analyzer.callCount() != 0 {
		t.Error("invalid input reached the provider")
	}
	if job, _ := queue.Get(context.Background(), "d41d8cd98f00b204e9800998ecf8427e"); job != nil {
		t.Error("invalid input created a queue entry")
	}
}

func TestAnalyzeAsyncEnqueues(t *testing.T) {
	svc, _, queue, analyzer, _ := newTestService()
	ctx := context.Background()

	res, err := svc.Analyze(ctx, "Guy Losbar annonce un budget", true)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Cached {
		t.Error("empty cache reported a hit")
	}
	if res.Status != string(domain.StatusPending) {
		t.Errorf("status = %s, want pending", res.Status)
	}
	if res.TaskID == "" {
		t.Fatal("no task id returned")
	}
	if analyzer.callCount() != 0 {
		t.Error("async request called the provider synchronously")
	}

	job, err := queue.Get(ctx, res.TaskID)
	if err != nil || job == nil {
		t.Fatalf("queue entry missing for %s: %v", res.TaskID, err)
	}
	if job.Text != "Guy Losbar annonce un budget" {
		t.Errorf("queue entry lost the text: %q", job.Text)
	}

	// Re-submitting while pending returns the same task, no duplicate.
	res2, err := svc.Analyze(ctx, "Guy Losbar annonce un budget", true)
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if res2.TaskID != res.TaskID {
		t.Errorf("re-submit produced a different task: %s vs %s", res2.TaskID, res.TaskID)
	}
}

func TestAnalyzeSyncInline(t *testing.T) {
	svc, cache, _, analyzer, _ := newTestService()
	ctx := context.Background()

	res, err := svc.Analyze(ctx, "ouverture du CHU", false)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Status != "done" || len(res.Result) == 0 {
		t.Fatalf("sync result = %+v, want done with payload", res)
	}
	if analyzer.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", analyzer.callCount())
	}

	// The inline result must be mirrored into the cache.
	entry, err := cache.Get(ctx, res.TaskID)
	if err != nil || entry == nil {
		t.Fatalf("cache entry missing after sync analyze: %v", err)
	}

	// Second sync call inside the freshness window is a pure cache hit.
	res2, err := svc.Analyze(ctx, "ouverture du CHU", false)
	if err != nil {
		t.Fatalf("second Analyze: %v", err)
	}
	if !res2.Cached {
		t.Error("second call missed the cache")
	}
	if analyzer.callCount() != 1 {
		t.Errorf("provider calls = %d after cache hit, want still 1", analyzer.callCount())
	}
}

func TestAnalyzeFreshnessBoundary(t *testing.T) {
	svc, cache, _, _, clock := newTestService()
	ctx := context.Background()

	fp, _ := domain.Fingerprint("coupure d'eau au Gosier")
	cache.Put(ctx, &domain.CacheEntry{
		Fingerprint: fp,
		Result:      `{"sentiment":"négatif","score":-0.6}`,
		Label:       domain.LabelNegative,
		ComputedAt:  clock.Now(),
	})

	// 23h old: fresh.
	clock.Advance(23 * time.Hour)
	res, err := svc.Analyze(ctx, "coupure d'eau au Gosier", true)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !res.Cached {
		t.Error("23h-old entry was not served")
	}

	// 24h1s old: stale, a new job is queued.
	clock.Advance(1*time.Hour + time.Second)
	res, err = svc.Analyze(ctx, "coupure d'eau au Gosier", true)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Cached {
		t.Error("stale entry was served as fresh")
	}
	if res.Status != string(domain.StatusPending) {
		t.Errorf("status = %s, want pending recompute", res.Status)
	}
}

func TestAnalyzeSyncAwaitsInFlightJob(t *testing.T) {
	svc, cache, queue, analyzer, clock := newTestService()
	ctx := context.Background()

	text := "débat au conseil départemental"
	fp, _ := domain.Fingerprint(text)
	queue.EnqueueIfAbsent(ctx, fp, text)
	queue.ClaimNext(ctx)

	// Complete the in-flight job shortly after the sync request starts waiting.
	go func() {
		time.Sleep(20 * time.Millisecond)
		result := `{"sentiment":"positif","score":0.4}`
		cache.Put(ctx, &domain.CacheEntry{Fingerprint: fp, Result: result, ComputedAt: clock.Now()})
		queue.MarkDone(ctx, fp, result, "")
	}()

	res, err := svc.Analyze(ctx, text, false)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Status != "done" {
		t.Errorf("status = %s, want done", res.Status)
	}
	if string(res.Result) != `{"sentiment":"positif","score":0.4}` {
		t.Errorf("result = %s", res.Result)
	}
	if analyzer.callCount() != 0 {
		t.Error("sync request launched a redundant provider call while a job was in flight")
	}
}

func TestStatusLifecycle(t *testing.T) {
	svc, cache, queue, _, clock := newTestService()
	ctx := context.Background()

	text := "Guy Losbar annonce un budget"
	res, err := svc.Analyze(ctx, text, true)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	fp := res.TaskID

	st, err := svc.Status(ctx, fp)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Status != string(domain.StatusPending) {
		t.Errorf("status = %s, want pending", st.Status)
	}
	if len(st.Result) != 0 {
		t.Error("pending status carried a result")
	}

	job, _ := queue.ClaimNext(ctx)
	st, _ = svc.Status(ctx, fp)
	if st.Status != string(domain.StatusInProgress) {
		t.Errorf("status = %s, want in_progress", st.Status)
	}

	// Status lookups by job ID work too.
	byID, err := svc.Status(ctx, string(job.ID))
	if err != nil || byID.Status != string(domain.StatusInProgress) {
		t.Errorf("Status by job ID = %+v, %v", byID, err)
	}

	payload := `{"sentiment":"neutre","score":0}`
	cache.Put(ctx, &domain.CacheEntry{Fingerprint: fp, Result: payload, ComputedAt: clock.Now()})
	queue.MarkDone(ctx, fp, payload, "")

	st, _ = svc.Status(ctx, fp)
	if st.Status != string(domain.StatusDone) {
		t.Errorf("status = %s, want done", st.Status)
	}
	if string(st.Result) != payload {
		t.Errorf("result = %s, want %s", st.Result, payload)
	}

	// Repeated polls are side-effect-free reads.
	again, _ := svc.Status(ctx, fp)
	if again.Status != st.Status || string(again.Result) != string(st.Result) {
		t.Error("repeated poll changed the answer")
	}
}

func TestStatusErroredJob(t *testing.T) {
	svc, _, queue, _, _ := newTestService()
	ctx := context.Background()

	fp := "aaaa0000aaaa0000aaaa0000aaaa0000"
	queue.EnqueueIfAbsent(ctx, fp, "texte")
	queue.ClaimNext(ctx)
	queue.MarkError(ctx, fp, "provider call failed: rate limited")

	st, err := svc.Status(ctx, fp)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Status != string(domain.StatusError) {
		t.Errorf("status = %s, want error", st.Status)
	}
	if st.ErrorDetail != "provider call failed: rate limited" {
		t.Errorf("error detail = %q", st.ErrorDetail)
	}
	if len(st.Result) != 0 {
		t.Error("errored job returned a result as if successful")
	}

	// Result endpoint treats errored jobs as unavailable.
	if _, err := svc.Result(ctx, fp); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Result on errored job = %v, want ErrNotFound", err)
	}
}

func TestStatusNotFound(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	_, err := svc.Status(context.Background(), "ffffffffffffffffffffffffffffffff")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Status(unknown) = %v, want ErrNotFound", err)
	}
	_, err = svc.Result(context.Background(), "ffffffffffffffffffffffffffffffff")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Result(unknown) = %v, want ErrNotFound", err)
	}
}

func TestStatusAnswersFromCacheAlone(t *testing.T) {
	svc, cache, _, _, clock := newTestService()
	ctx := context.Background()

	// Jobs can be purged while the cache entry lives on.
	fp := "bbbb0000bbbb0000bbbb0000bbbb0000"
	cache.Put(ctx, &domain.CacheEntry{Fingerprint: fp, Result: `{"sentiment":"positif"}`, ComputedAt: clock.Now()})

	st, err := svc.Status(ctx, fp)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Status != string(domain.StatusDone) || len(st.Result) == 0 {
		t.Errorf("Status from cache = %+v, want done with result", st)
	}
}
