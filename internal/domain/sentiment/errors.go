package sentiment

import "errors"

// ErrInvalidInput indicates an empty or malformed analysis request. Never queued.
var ErrInvalidInput = errors.New("invalid input text")

// ErrNotFound indicates no queue or cache entry matches the reference.
var ErrNotFound = errors.New("analysis not found")

// ErrCacheUnavailable indicates a cache storage I/O failure. Callers treat it
// as a cache miss (fail open) so analysis is never permanently blocked.
var ErrCacheUnavailable = errors.New("result cache unavailable")

// ErrQueueUnavailable indicates a queue storage I/O failure. The queue is the
// correctness boundary, so this one fails loud.
var ErrQueueUnavailable = errors.New("job queue unavailable")

// ErrProvider indicates the analysis provider call failed or timed out.
var ErrProvider = errors.New("analysis provider error")

// ErrQuotaExceeded indicates the provider returned a quota/limit error (HTTP 429 or similar).
var ErrQuotaExceeded = errors.New("analysis quota exceeded")
