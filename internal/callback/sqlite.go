package callback

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ziadkadry99/actiongate/internal/db"
)

// SQLiteStore persists callback records in the shared SQLite database.
// Every state transition is a single UPDATE guarded by the current
// status, so the pending→processing handoff stays atomic even when
// several server processes share one database file.
type SQLiteStore struct {
	db  *db.DB
	now func() time.Time
}

// NewSQLiteStore creates a SQLiteStore backed by the given database.
func NewSQLiteStore(database *db.DB) *SQLiteStore {
	return &SQLiteStore{db: database, now: time.Now}
}

// Issue mints a token and persists a pending record under the entry TTL.
func (s *SQLiteStore) Issue(ctx context.Context, entry Entry) (string, error) {
	if entry.Handler == "" {
		return "", fmt.Errorf("handler is required")
	}
	if entry.UserID == "" {
		return "", fmt.Errorf("user id is required")
	}

	token, err := NewToken(entry.GraphType)
	if err != nil {
		return "", err
	}

	params, err := json.Marshal(paramsOrEmpty(entry.Params))
	if err != nil {
		return "", fmt.Errorf("marshalling params: %w", err)
	}
	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshalling metadata: %w", err)
	}

	now := s.now().UTC()
	expires := now.Add(entry.Metadata.TTL()).Unix()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO callback_records (token, graph_type, handler, user_id, params, status, created_at, retries, last_error, metadata, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, '', ?, ?)`,
		token, entry.GraphType, entry.Handler, entry.UserID,
		string(params), string(StatusPending), now.Format(time.DateTime),
		string(metadata), expires,
	)
	if err != nil {
		return "", fmt.Errorf("inserting callback record: %w", err)
	}
	return token, nil
}

const recordColumns = `token, graph_type, handler, user_id, params, status, created_at, retries, last_error, metadata, expires_at`

// Get returns an unexpired record without changing its state.
func (s *SQLiteStore) Get(ctx context.Context, token string) (*Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM callback_records
		WHERE token = ? AND expires_at > ?`,
		token, s.now().UTC().Unix(),
	))
}

// GetAndLock transitions a pending, unexpired record to processing and
// returns it. The guarded UPDATE and the read of the resulting row run
// as one RETURNING statement, so exactly one of any number of
// concurrent callers wins and each winner sees the row it locked.
func (s *SQLiteStore) GetAndLock(ctx context.Context, token string) (*Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx, `
		UPDATE callback_records SET status = ?
		WHERE token = ? AND status = ? AND expires_at > ?
		RETURNING `+recordColumns,
		string(StatusProcessing), token, string(StatusPending), s.now().UTC().Unix(),
	))
}

// Fail marks an unexpired record failed and increments its retry count.
func (s *SQLiteStore) Fail(ctx context.Context, token, message string) (*Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx, `
		UPDATE callback_records SET status = ?, retries = retries + 1, last_error = ?
		WHERE token = ? AND expires_at > ?
		RETURNING `+recordColumns,
		string(StatusFailed), message, token, s.now().UTC().Unix(),
	))
}

// Retry moves a failed record back to pending, preserving its retry count.
func (s *SQLiteStore) Retry(ctx context.Context, token string) (*Record, error) {
	return scanRecord(s.db.QueryRowContext(ctx, `
		UPDATE callback_records SET status = ?
		WHERE token = ? AND status = ? AND expires_at > ?
		RETURNING `+recordColumns,
		string(StatusPending), token, string(StatusFailed), s.now().UTC().Unix(),
	))
}

// Finalize deletes the record. Idempotent.
func (s *SQLiteStore) Finalize(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM callback_records WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("finalizing callback record: %w", err)
	}
	return nil
}

// PurgeExpired removes records past their TTL. Expired records already
// behave as never issued; this only reclaims space.
func (s *SQLiteStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM callback_records WHERE expires_at <= ?`, s.now().UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("purging expired callback records: %w", err)
	}
	return res.RowsAffected()
}

func scanRecord(row *sql.Row) (*Record, error) {
	var (
		rec          Record
		status       string
		created      string
		paramsJSON   string
		metadataJSON string
		expires      int64
	)
	err := row.Scan(&rec.Token, &rec.GraphType, &rec.Handler, &rec.UserID, &paramsJSON,
		&status, &created, &rec.Retries, &rec.LastError, &metadataJSON, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading callback record: %w", err)
	}

	rec.Status = Status(status)
	if t, parseErr := time.Parse(time.DateTime, created); parseErr == nil {
		rec.CreatedAt = t.UTC()
	}

	// Unparseable stored state must never surface to callers.
	if err := json.Unmarshal([]byte(paramsJSON), &rec.Params); err != nil {
		return nil, ErrNotFound
	}
	if err := json.Unmarshal([]byte(metadataJSON), &rec.Metadata); err != nil {
		return nil, ErrNotFound
	}

	return &rec, nil
}

func paramsOrEmpty(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return p
}
