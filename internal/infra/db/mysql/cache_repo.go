package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	domain "github.com/Djamsy/veille-uptade-sub000/internal/domain/sentiment"
)

type CacheRepository struct {
	db *sql.DB
}

func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db}
}

// Put upserts the cache entry for a fingerprint, last write wins
func (r *CacheRepository) Put(ctx context.Context, e *domain.CacheEntry) error {
	const q = `
INSERT INTO sentiment_cache (fingerprint, label, result_json, computed_at)
VALUES (?,?,?,?)
ON DUPLICATE KEY UPDATE
 label=VALUES(label), result_json=VALUES(result_json), computed_at=VALUES(computed_at);
`
	result := e.Result
	if result == "" {
		// result_json column requires valid JSON; use empty object
		result = "{}"
	}
	computed := e.ComputedAt
	if computed.IsZero() {
		computed = time.Now()
	}

	_, err := r.db.ExecContext(ctx, q, e.Fingerprint, e.Label, result, computed)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return nil
}

// Get by fingerprint; nil when absent, any age
func (r *CacheRepository) Get(ctx context.Context, fingerprint string) (*domain.CacheEntry, error) {
	const q = `
SELECT fingerprint, label, result_json, computed_at
FROM sentiment_cache
WHERE fingerprint=? LIMIT 1;
`
	row := r.db.QueryRowContext(ctx, q, fingerprint)

	var e domain.CacheEntry
	if err := row.Scan(&e.Fingerprint, &e.Label, &e.Result, &e.ComputedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return &e, nil
}

// Paginate with offset + limit (classic pagination)
func (r *CacheRepository) Paginate(ctx context.Context, page, pageSize int) (domain.PaginatedResult, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	const q = `
SELECT fingerprint, label, result_json, computed_at
FROM sentiment_cache
ORDER BY computed_at DESC, fingerprint DESC
LIMIT ? OFFSET ?;
`
	rows, err := r.db.QueryContext(ctx, q, pageSize, offset)
	if err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("querying analyses: %w", err)
	}
	defer rows.Close()

	var entries []*domain.CacheEntry
	for rows.Next() {
		var e domain.CacheEntry
		if err := rows.Scan(&e.Fingerprint, &e.Label, &e.Result, &e.ComputedAt); err != nil {
			return domain.PaginatedResult{}, fmt.Errorf("scanning row: %w", err)
		}
		entries = append(entries, &e)
	}
	if err = rows.Err(); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("iterating rows: %w", err)
	}

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sentiment_cache;`).Scan(&total); err != nil {
		return domain.PaginatedResult{}, fmt.Errorf("getting total count: %w", err)
	}

	return domain.PaginatedResult{
		Data:       entries,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
	}, nil
}

// Summary counts cached analyses by label since N days
func (r *CacheRepository) Summary(ctx context.Context, sinceDays int) (domain.Summary, error) {
	if sinceDays <= 0 {
		sinceDays = 7
	}
	cut := time.Now().AddDate(0, 0, -sinceDays)

	const q = `
SELECT COUNT(*) AS total,
       COALESCE(SUM(label='positif'),0)  AS positif,
       COALESCE(SUM(label='négatif'),0)  AS negatif,
       COALESCE(SUM(label='neutre'),0)   AS neutre
FROM sentiment_cache
WHERE computed_at >= ?;
`
	var s domain.Summary
	if err := r.db.QueryRowContext(ctx, q, cut).Scan(&s.Total, &s.Positive, &s.Negative, &s.Neutral); err != nil {
		return domain.Summary{}, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return s, nil
}

// PurgeBefore deletes entries computed before the cutoff
func (r *CacheRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sentiment_cache WHERE computed_at < ?;`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrCacheUnavailable, err)
	}
	return res.RowsAffected()
}
