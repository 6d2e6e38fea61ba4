package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/actiongate/internal/callback"
	"github.com/ziadkadry99/actiongate/internal/db"
)

// Store provides append and read operations for audit entries. The
// audit trail is write-only from the dispatch pipeline's point of view:
// Log failures never influence a redemption outcome.
type Store struct {
	db *db.DB
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// Log inserts a new audit entry. If entry.ID is empty a UUID is
// generated; if Timestamp is zero the current time is used.
func (s *Store) Log(ctx context.Context, entry Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, timestamp, token, graph_type, handler, user_id, outcome, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Timestamp.UTC().Format(time.DateTime),
		entry.Token,
		entry.GraphType,
		entry.Handler,
		entry.UserID,
		string(entry.Outcome),
		entry.Error,
		entry.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}
	return nil
}

// GetByID retrieves a single audit entry.
func (s *Store) GetByID(ctx context.Context, id string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, timestamp, token, graph_type, handler, user_id, outcome, error, duration_ms
		FROM audit_entries WHERE id = ?`, id)

	return scanInto(row)
}

// QueryFilter controls which audit entries are returned by Query.
type QueryFilter struct {
	Token     string
	GraphType string
	Handler   string
	UserID    string
	Outcome   callback.Outcome
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// Query returns audit entries matching the filter, newest first.
func (s *Store) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	var (
		clauses []string
		args    []any
	)

	if filter.Token != "" {
		clauses = append(clauses, "token = ?")
		args = append(args, filter.Token)
	}
	if filter.GraphType != "" {
		clauses = append(clauses, "graph_type = ?")
		args = append(args, filter.GraphType)
	}
	if filter.Handler != "" {
		clauses = append(clauses, "handler = ?")
		args = append(args, filter.Handler)
	}
	if filter.UserID != "" {
		clauses = append(clauses, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Outcome != "" {
		clauses = append(clauses, "outcome = ?")
		args = append(args, string(filter.Outcome))
	}
	if filter.Since != nil {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(time.DateTime))
	}
	if filter.Until != nil {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, filter.Until.UTC().Format(time.DateTime))
	}

	query := "SELECT id, timestamp, token, graph_type, handler, user_id, outcome, error, duration_ms FROM audit_entries"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY timestamp DESC, id"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying audit entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// DeleteBefore removes all audit entries older than the given time.
// Returns the number of deleted rows.
func (s *Store) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM audit_entries WHERE timestamp < ?",
		before.UTC().Format(time.DateTime),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting old audit entries: %w", err)
	}
	return res.RowsAffected()
}

// scanner is implemented by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanInto(sc scanner) (*Entry, error) {
	var (
		e       Entry
		ts      string
		outcome string
	)

	err := sc.Scan(&e.ID, &ts, &e.Token, &e.GraphType, &e.Handler,
		&e.UserID, &outcome, &e.Error, &e.DurationMs)
	if err != nil {
		return nil, err
	}

	e.Outcome = callback.Outcome(outcome)
	if t, parseErr := time.Parse(time.DateTime, ts); parseErr == nil {
		e.Timestamp = t.UTC()
	}

	return &e, nil
}
