package sentiment

import (
	"encoding/json"
	"time"
)

// JobID tipe for analysis jobs
type JobID string

// Status enum for queue entries
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Terminal reports whether no further transition is allowed without a new submission.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Sentiment labels produced by the provider (French, matches the dashboard).
const (
	LabelPositive = "positif"
	LabelNegative = "négatif"
	LabelNeutral  = "neutre"
)

// CacheEntry stores a previously computed analysis result keyed by fingerprint.
// At most one entry exists per fingerprint (upsert semantics).
type CacheEntry struct {
	Fingerprint string    `json:"fingerprint"`
	Label       string    `json:"label,omitempty"`
	Result      string    `json:"result"` // JSON string from the provider
	ComputedAt  time.Time `json:"computed_at"`
}

// Fresh reports whether the entry is still within the validity window.
// Staleness is the caller's decision, not the store's.
func (e *CacheEntry) Fresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(e.ComputedAt) <= maxAge
}

// Job is a queue entry coordinating at-most-one in-flight analysis per fingerprint.
// The raw text rides along because the fingerprint alone cannot reconstruct it.
type Job struct {
	ID          JobID     `json:"id"`
	Fingerprint string    `json:"fingerprint"`
	Text        string    `json:"text,omitempty"`
	Status      Status    `json:"status"`
	Attempts    int       `json:"attempts"`
	Result      string    `json:"result,omitempty"`
	ErrorDetail string    `json:"error_detail,omitempty"`
	ArchiveURL  string    `json:"archive_url,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// LabelFromResult extracts the sentiment label out of a provider payload.
// Returns "" when the payload is not parseable; the raw payload stays opaque.
func LabelFromResult(result string) string {
	var payload struct {
		Sentiment string `json:"sentiment"`
	}
	if err := json.Unmarshal([]byte(result), &payload); err != nil {
		return ""
	}
	return payload.Sentiment
}
