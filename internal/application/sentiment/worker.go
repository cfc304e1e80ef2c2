package sentiment

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Djamsy/veille-uptade-sub000/internal/application"
	domain "github.com/Djamsy/veille-uptade-sub000/internal/domain/sentiment"
)

var analysesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "veille_analyses_processed_total",
	Help: "Analysis jobs processed by the worker, by outcome.",
}, []string{"outcome"})

const (
	defaultPollInterval    = 2 * time.Second
	defaultProviderTimeout = 90 * time.Second
	janitorInterval        = time.Hour
)

// Worker drains the job queue: claim, call the provider, persist.
// Multiple loops (and multiple processes) may run concurrently; ClaimNext is
// the only claim path, so no job is ever processed twice.
type Worker struct {
	Queue    domain.Queue
	Cache    domain.Cache
	Analyzer domain.Analyzer
	Archive  domain.ArchiveStore // optional
	Clock    application.Clock

	// PollInterval is the idle sleep between empty claims. Zero means 2s.
	PollInterval time.Duration
	// ProviderTimeout bounds each provider call. Zero means 90s.
	ProviderTimeout time.Duration
	// Concurrency is the number of claim loops. Zero means 1.
	Concurrency int
	// Retention removes terminal jobs and stale cache entries older than this.
	// Zero keeps everything.
	Retention time.Duration
}

func (w *Worker) pollInterval() time.Duration {
	if w.PollInterval > 0 {
		return w.PollInterval
	}
	return defaultPollInterval
}

func (w *Worker) providerTimeout() time.Duration {
	if w.ProviderTimeout > 0 {
		return w.ProviderTimeout
	}
	return defaultProviderTimeout
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	n := w.Concurrency
	if n <= 0 {
		n = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	if w.Retention > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.janitor(ctx)
		}()
	}
	wg.Wait()
}

func (w *Worker) loop(ctx context.Context, id int) {
	ticker := time.NewTicker(w.pollInterval())
	defer ticker.Stop()

	for {
		job, err := w.Queue.ClaimNext(ctx)
		if err != nil {
			log.Printf("worker %d claim failed: %v", id, err)
		} else if job != nil {
			w.process(ctx, job)
			if ctx.Err() != nil {
				return
			}
			// Drain without sleeping while work is available.
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// process runs one claimed job to a terminal state. Provider failures become
// error status on the entry, never a crash; the original caller may be long
// gone in async mode.
func (w *Worker) process(ctx context.Context, job *domain.Job) {
	cctx, cancel := context.WithTimeout(ctx, w.providerTimeout())
	defer cancel()

	result, err := w.Analyzer.Analyze(cctx, job.Text)
	if err != nil {
		detail := fmt.Sprintf("provider call failed: %v", err)
		if merr := w.Queue.MarkError(ctx, job.Fingerprint, detail); merr != nil {
			log.Printf("mark error failed: fingerprint=%s err=%v", job.Fingerprint, merr)
		}
		analysesProcessed.WithLabelValues("error").Inc()
		return
	}

	archiveURL := ""
	if w.Archive != nil {
		key := fmt.Sprintf("analyses/%s/%s.json", job.Fingerprint[:2], job.Fingerprint)
		url, aerr := w.Archive.PutJSON(ctx, key, []byte(result))
		if aerr != nil {
			// Archiving is best effort, the result still lands in cache+queue.
			log.Printf("archive upload failed: fingerprint=%s err=%v", job.Fingerprint, aerr)
		} else {
			archiveURL = url
		}
	}

	entry := &domain.CacheEntry{
		Fingerprint: job.Fingerprint,
		Label:       domain.LabelFromResult(result),
		Result:      result,
		ComputedAt:  w.Clock.Now(),
	}
	if err := w.Cache.Put(ctx, entry); err != nil {
		// Pollers still get the result off the queue entry.
		log.Printf("cache write failed: fingerprint=%s err=%v", job.Fingerprint, err)
	}

	if err := w.Queue.MarkDone(ctx, job.Fingerprint, result, archiveURL); err != nil {
		log.Printf("mark done failed: fingerprint=%s err=%v", job.Fingerprint, err)
	}
	analysesProcessed.WithLabelValues("done").Inc()
}

func (w *Worker) janitor(ctx context.Context) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := w.Clock.Now().Add(-w.Retention)
			if n, err := w.Queue.PurgeBefore(ctx, cutoff); err != nil {
				log.Printf("queue purge failed: %v", err)
			} else if n > 0 {
				log.Printf("purged %d terminal jobs older than %s", n, w.Retention)
			}
			if n, err := w.Cache.PurgeBefore(ctx, cutoff); err != nil {
				log.Printf("cache purge failed: %v", err)
			} else if n > 0 {
				log.Printf("purged %d cache entries older than %s", n, w.Retention)
			}
		}
	}
}
