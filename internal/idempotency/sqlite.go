package idempotency

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/actiongate/internal/callback"
	"github.com/ziadkadry99/actiongate/internal/db"
)

// SQLiteManager backs reservations with the shared SQLite database.
// The first-caller decision rides on the token primary key: the
// insert-or-ignore either claims the row or observes the winner's.
type SQLiteManager struct {
	db        *db.DB
	resultTTL time.Duration
	now       func() time.Time
}

// NewSQLiteManager creates a SQLiteManager. A non-positive resultTTL
// falls back to DefaultResultTTL.
func NewSQLiteManager(database *db.DB, resultTTL time.Duration) *SQLiteManager {
	if resultTTL <= 0 {
		resultTTL = DefaultResultTTL
	}
	return &SQLiteManager{db: database, resultTTL: resultTTL, now: time.Now}
}

// Reserve implements Manager.
func (m *SQLiteManager) Reserve(ctx context.Context, token string) (*Reservation, error) {
	now := m.now().UTC()

	res, err := m.db.ExecContext(ctx, `
		INSERT INTO idempotency_reservations (token, state, created_at, expires_at)
		VALUES (?, 'in_progress', ?, ?)
		ON CONFLICT(token) DO NOTHING`,
		token, now.Unix(), now.Add(m.resultTTL).Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("reserving token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reserving token: %w", err)
	}
	if n == 1 {
		return &Reservation{First: true}, nil
	}

	var (
		state  string
		result sql.NullString
	)
	err = m.db.QueryRowContext(ctx, `
		SELECT state, result FROM idempotency_reservations
		WHERE token = ? AND expires_at > ?`, token, now.Unix(),
	).Scan(&state, &result)
	if errors.Is(err, sql.ErrNoRows) {
		// The winner's reservation already expired; treat this caller
		// as racing an in-progress attempt.
		return &Reservation{State: callback.DuplicateInProgress}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading reservation: %w", err)
	}

	r := &Reservation{State: callback.DuplicateState(state)}
	if result.Valid {
		r.Result = []byte(result.String)
	}
	return r, nil
}

// Complete implements Manager.
func (m *SQLiteManager) Complete(ctx context.Context, token string, result json.RawMessage) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE idempotency_reservations SET state = 'completed', result = ?
		WHERE token = ?`,
		string(result), token,
	)
	if err != nil {
		return fmt.Errorf("completing reservation: %w", err)
	}
	return nil
}

// Release implements Manager. The state guard keeps a completed
// reservation, and its cached result, in place.
func (m *SQLiteManager) Release(ctx context.Context, token string) error {
	_, err := m.db.ExecContext(ctx, `
		DELETE FROM idempotency_reservations
		WHERE token = ? AND state = 'in_progress'`, token)
	if err != nil {
		return fmt.Errorf("releasing reservation: %w", err)
	}
	return nil
}

// PurgeExpired removes reservations past their result TTL.
func (m *SQLiteManager) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := m.db.ExecContext(ctx,
		`DELETE FROM idempotency_reservations WHERE expires_at <= ?`, m.now().UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("purging reservations: %w", err)
	}
	return res.RowsAffected()
}
