package callback

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Its transitions are only
// atomic within one process, so it is suitable for tests and local
// single-process runs, never for a multi-process deployment.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*memoryRecord
	now     func() time.Time
}

type memoryRecord struct {
	rec     Record
	expires time.Time
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*memoryRecord),
		now:     time.Now,
	}
}

// Issue mints a token and stores a pending record under the entry TTL.
func (s *MemoryStore) Issue(ctx context.Context, entry Entry) (string, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.records[token] = &memoryRecord{
		rec: Record{
			Token:     token,
			GraphType: entry.GraphType,
			Handler:   entry.Handler,
			UserID:    entry.UserID,
			Params:    paramsOrEmpty(entry.Params),
			Status:    StatusPending,
			CreatedAt: now.UTC(),
			Metadata:  entry.Metadata,
		},
		expires: now.Add(entry.Metadata.TTL()),
	}
	return token, nil
}

// Get returns an unexpired record without changing its state.
func (s *MemoryStore) Get(ctx context.Context, token string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mr := s.live(token)
	if mr == nil {
		return nil, ErrNotFound
	}
	rec := mr.rec
	return &rec, nil
}

// GetAndLock transitions a pending record to processing and returns it.
func (s *MemoryStore) GetAndLock(ctx context.Context, token string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mr := s.live(token)
	if mr == nil || mr.rec.Status != StatusPending {
		return nil, ErrNotFound
	}
	mr.rec.Status = StatusProcessing
	rec := mr.rec
	return &rec, nil
}

// Fail marks a record failed and increments its retry count.
func (s *MemoryStore) Fail(ctx context.Context, token, message string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mr := s.live(token)
	if mr == nil {
		return nil, ErrNotFound
	}
	mr.rec.Status = StatusFailed
	mr.rec.Retries++
	mr.rec.LastError = message
	rec := mr.rec
	return &rec, nil
}

// Retry moves a failed record back to pending.
func (s *MemoryStore) Retry(ctx context.Context, token string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mr := s.live(token)
	if mr == nil || mr.rec.Status != StatusFailed {
		return nil, ErrNotFound
	}
	mr.rec.Status = StatusPending
	rec := mr.rec
	return &rec, nil
}

// Finalize deletes the record. Idempotent.
func (s *MemoryStore) Finalize(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, token)
	return nil
}

// live returns the record for token, dropping it if expired.
// Callers must hold s.mu.
func (s *MemoryStore) live(token string) *memoryRecord {
	mr, ok := s.records[token]
	if !ok {
		return nil
	}
	if !s.now().Before(mr.expires) {
		delete(s.records, token)
		return nil
	}
	return mr
}
