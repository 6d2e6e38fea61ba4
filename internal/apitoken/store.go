// Package apitoken authenticates API callers with bearer tokens. Only a
// sha256 hash of each token is stored; the plaintext is shown once at
// mint time.
package apitoken

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/actiongate/internal/db"
)

// Scopes order operations by privilege. redeem covers redemption and
// retry, issue additionally covers minting action tokens, admin covers
// everything including audit reads.
const (
	ScopeRedeem = "redeem"
	ScopeIssue  = "issue"
	ScopeAdmin  = "admin"
)

// ErrInvalidToken is returned for unknown, expired or malformed tokens.
var ErrInvalidToken = errors.New("invalid api token")

// Token is the stored identity behind a bearer token.
type Token struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	UserID    string     `json:"user_id"`
	Scope     string     `json:"scope"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	LastUsed  *time.Time `json:"last_used,omitempty"`
}

// Allows reports whether the token's scope covers the required one.
func (t *Token) Allows(required string) bool {
	switch t.Scope {
	case ScopeAdmin:
		return true
	case ScopeIssue:
		return required == ScopeIssue || required == ScopeRedeem
	case ScopeRedeem:
		return required == ScopeRedeem
	default:
		return false
	}
}

// Store persists API tokens in SQLite.
type Store struct {
	db  *db.DB
	now func() time.Time
}

// NewStore creates a Store backed by the given database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database, now: time.Now}
}

func validScope(scope string) bool {
	return scope == ScopeRedeem || scope == ScopeIssue || scope == ScopeAdmin
}

// Mint creates a token and returns its plaintext alongside the stored
// record. The plaintext cannot be recovered later.
func (s *Store) Mint(ctx context.Context, name, userID, scope string, ttl time.Duration) (string, *Token, error) {
	if name == "" || userID == "" {
		return "", nil, fmt.Errorf("name and user id are required")
	}
	if !validScope(scope) {
		return "", nil, fmt.Errorf("unknown scope %q", scope)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", nil, fmt.Errorf("generating token: %w", err)
	}
	plaintext := "agt_" + base64.RawURLEncoding.EncodeToString(raw)

	token := &Token{
		ID:        uuid.New().String(),
		Name:      name,
		UserID:    userID,
		Scope:     scope,
		CreatedAt: s.now().UTC(),
	}
	var expiresAt any
	if ttl > 0 {
		exp := token.CreatedAt.Add(ttl)
		token.ExpiresAt = &exp
		expiresAt = exp.Unix()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_tokens (id, name, user_id, token_hash, scope, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		token.ID, token.Name, token.UserID, hashToken(plaintext), token.Scope,
		token.CreatedAt.Unix(), expiresAt,
	)
	if err != nil {
		return "", nil, fmt.Errorf("inserting api token: %w", err)
	}
	return plaintext, token, nil
}

// Authenticate resolves a plaintext bearer token to its stored identity
// and stamps last_used. Expired tokens are invalid.
func (s *Store) Authenticate(ctx context.Context, plaintext string) (*Token, error) {
	if plaintext == "" {
		return nil, ErrInvalidToken
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, user_id, scope, created_at, expires_at, last_used
		FROM api_tokens WHERE token_hash = ?`, hashToken(plaintext))

	var (
		token     Token
		createdAt int64
		expiresAt sql.NullInt64
		lastUsed  sql.NullInt64
	)
	err := row.Scan(&token.ID, &token.Name, &token.UserID, &token.Scope,
		&createdAt, &expiresAt, &lastUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("querying api token: %w", err)
	}

	token.CreatedAt = time.Unix(createdAt, 0).UTC()
	if expiresAt.Valid {
		exp := time.Unix(expiresAt.Int64, 0).UTC()
		token.ExpiresAt = &exp
		if !s.now().Before(exp) {
			return nil, ErrInvalidToken
		}
	}
	if lastUsed.Valid {
		used := time.Unix(lastUsed.Int64, 0).UTC()
		token.LastUsed = &used
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE api_tokens SET last_used = ? WHERE id = ?`,
		s.now().Unix(), token.ID); err != nil {
		log.Printf("apitoken: stamping last_used for %s: %v", token.ID, err)
	}
	return &token, nil
}

// Revoke deletes a token by id.
func (s *Store) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM api_tokens WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting api token: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrInvalidToken
	}
	return nil
}

// List returns all tokens, newest first, without hashes.
func (s *Store) List(ctx context.Context) ([]Token, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, user_id, scope, created_at, expires_at, last_used
		FROM api_tokens ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("listing api tokens: %w", err)
	}
	defer rows.Close()

	var tokens []Token
	for rows.Next() {
		var (
			token     Token
			createdAt int64
			expiresAt sql.NullInt64
			lastUsed  sql.NullInt64
		)
		if err := rows.Scan(&token.ID, &token.Name, &token.UserID, &token.Scope,
			&createdAt, &expiresAt, &lastUsed); err != nil {
			return nil, fmt.Errorf("scanning api token: %w", err)
		}
		token.CreatedAt = time.Unix(createdAt, 0).UTC()
		if expiresAt.Valid {
			exp := time.Unix(expiresAt.Int64, 0).UTC()
			token.ExpiresAt = &exp
		}
		if lastUsed.Valid {
			used := time.Unix(lastUsed.Int64, 0).UTC()
			token.LastUsed = &used
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

func hashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}
