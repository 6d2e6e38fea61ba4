package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/ziadkadry99/actiongate/internal/db"
)

// SQLiteLimiter is a fixed-window counter in the shared SQLite
// database. The per-attempt increment is one upsert statement, so
// concurrent callers across processes never lose counts.
type SQLiteLimiter struct {
	db     *db.DB
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewSQLiteLimiter allows at most limit attempts per identity in each
// window.
func NewSQLiteLimiter(database *db.DB, limit int, window time.Duration) *SQLiteLimiter {
	return &SQLiteLimiter{db: database, limit: limit, window: window, now: time.Now}
}

// Check implements Limiter.
func (l *SQLiteLimiter) Check(ctx context.Context, identity string) (Decision, error) {
	now := l.now().UTC()
	windowStart := now.Truncate(l.window)

	var count int
	err := l.db.QueryRowContext(ctx, `
		INSERT INTO rate_limit_windows (identity, window_start, count) VALUES (?, ?, 1)
		ON CONFLICT(identity, window_start) DO UPDATE SET count = count + 1
		RETURNING count`,
		identity, windowStart.Unix(),
	).Scan(&count)
	if err != nil {
		return Decision{}, fmt.Errorf("updating rate limit window: %w", err)
	}

	if count > l.limit {
		return Decision{
			Allowed:    false,
			RetryAfter: windowStart.Add(l.window).Sub(now),
		}, nil
	}
	return Decision{Allowed: true, Remaining: l.limit - count}, nil
}

// PurgeStale removes windows that ended before the current one.
func (l *SQLiteLimiter) PurgeStale(ctx context.Context) (int64, error) {
	cutoff := l.now().UTC().Truncate(l.window).Unix()
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM rate_limit_windows WHERE window_start < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purging rate limit windows: %w", err)
	}
	return res.RowsAffected()
}
