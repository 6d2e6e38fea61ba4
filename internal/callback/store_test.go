package callback

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ziadkadry99/actiongate/internal/db"
)

// storeUnderTest bundles a Store with a clock override for TTL tests.
type storeUnderTest struct {
	Store
	advance func(d time.Duration)
}

// stores returns every implementation exercised by the lifecycle suite.
func stores(t *testing.T) map[string]func(t *testing.T) storeUnderTest {
	return map[string]func(t *testing.T) storeUnderTest{
		"sqlite": func(t *testing.T) storeUnderTest {
			t.Helper()
			database, err := db.OpenMemory()
			if err != nil {
				t.Fatalf("OpenMemory: %v", err)
			}
			t.Cleanup(func() { database.Close() })

			s := NewSQLiteStore(database)
			base := time.Now()
			var offset time.Duration
			var mu sync.Mutex
			s.now = func() time.Time {
				mu.Lock()
				defer mu.Unlock()
				return base.Add(offset)
			}
			return storeUnderTest{Store: s, advance: func(d time.Duration) {
				mu.Lock()
				defer mu.Unlock()
				offset += d
			}}
		},
		"memory": func(t *testing.T) storeUnderTest {
			t.Helper()
			s := NewMemoryStore()
			base := time.Now()
			var offset time.Duration
			var mu sync.Mutex
			s.now = func() time.Time {
				mu.Lock()
				defer mu.Unlock()
				return base.Add(offset)
			}
			return storeUnderTest{Store: s, advance: func(d time.Duration) {
				mu.Lock()
				defer mu.Unlock()
				offset += d
			}}
		},
	}
}

func testEntry() Entry {
	return Entry{
		GraphType: "orders",
		Handler:   "approve-order",
		UserID:    "u1",
		Params:    map[string]any{"order_id": "ORD-1"},
	}
}

func TestIssueAndLock(t *testing.T) {
	for name, setup := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()

			token, err := s.Issue(ctx, testEntry())
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			if !strings.HasPrefix(token, "cb::orders::") {
				t.Errorf("token = %q, want cb::orders:: prefix", token)
			}

			rec, err := s.GetAndLock(ctx, token)
			if err != nil {
				t.Fatalf("GetAndLock: %v", err)
			}
			if rec.Status != StatusProcessing {
				t.Errorf("Status = %q, want %q", rec.Status, StatusProcessing)
			}
			if rec.GraphType != "orders" || rec.Handler != "approve-order" || rec.UserID != "u1" {
				t.Errorf("unexpected record %+v", rec)
			}
			if got := rec.Params["order_id"]; got != "ORD-1" {
				t.Errorf("Params[order_id] = %v, want ORD-1", got)
			}
			if rec.Retries != 0 {
				t.Errorf("Retries = %d, want 0", rec.Retries)
			}

			// A second lock on the same token must miss.
			if _, err := s.GetAndLock(ctx, token); !errors.Is(err, ErrNotFound) {
				t.Errorf("second GetAndLock err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestIssueRequiresHandlerAndUser(t *testing.T) {
	for name, setup := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()

			e := testEntry()
			e.Handler = ""
			if _, err := s.Issue(ctx, e); err == nil {
				t.Error("Issue accepted an entry without a handler")
			}

			e = testEntry()
			e.UserID = ""
			if _, err := s.Issue(ctx, e); err == nil {
				t.Error("Issue accepted an entry without a user")
			}
		})
	}
}

func TestGetLeavesStateUntouched(t *testing.T) {
	for name, setup := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()

			token, err := s.Issue(ctx, testEntry())
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}

			rec, err := s.Get(ctx, token)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if rec.Status != StatusPending {
				t.Errorf("Status = %q, want %q", rec.Status, StatusPending)
			}
			if rec.UserID != "u1" {
				t.Errorf("UserID = %q, want u1", rec.UserID)
			}

			// Reading must not consume the pending state.
			if _, err := s.GetAndLock(ctx, token); err != nil {
				t.Errorf("GetAndLock after Get: %v", err)
			}
			if rec, err = s.Get(ctx, token); err != nil {
				t.Fatalf("Get on locked record: %v", err)
			}
			if rec.Status != StatusProcessing {
				t.Errorf("Status = %q, want %q", rec.Status, StatusProcessing)
			}

			if _, err := s.Get(ctx, "cb::orders::missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get on unknown token err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestGetHonorsExpiry(t *testing.T) {
	for name, setup := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()

			entry := testEntry()
			entry.Metadata.TTLSec = 1
			token, err := s.Issue(ctx, entry)
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}

			s.advance(2 * time.Second)

			if _, err := s.Get(ctx, token); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get on expired record err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestLockAtMostOnce(t *testing.T) {
	for name, setup := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()

			token, err := s.Issue(ctx, testEntry())
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}

			const callers = 16
			var wg sync.WaitGroup
			var wins int64
			var mu sync.Mutex

			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					rec, err := s.GetAndLock(ctx, token)
					if err == nil && rec.Status == StatusProcessing {
						mu.Lock()
						wins++
						mu.Unlock()
					} else if !errors.Is(err, ErrNotFound) {
						t.Errorf("GetAndLock err = %v, want nil or ErrNotFound", err)
					}
				}()
			}
			wg.Wait()

			if wins != 1 {
				t.Errorf("locks won = %d, want exactly 1", wins)
			}
		})
	}
}

func TestFinalizeIsTerminal(t *testing.T) {
	for name, setup := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()

			token, err := s.Issue(ctx, testEntry())
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			if _, err := s.GetAndLock(ctx, token); err != nil {
				t.Fatalf("GetAndLock: %v", err)
			}
			if err := s.Finalize(ctx, token); err != nil {
				t.Fatalf("Finalize: %v", err)
			}

			if _, err := s.GetAndLock(ctx, token); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetAndLock after finalize err = %v, want ErrNotFound", err)
			}
			if _, err := s.Fail(ctx, token, "x"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Fail after finalize err = %v, want ErrNotFound", err)
			}
			if _, err := s.Retry(ctx, token); !errors.Is(err, ErrNotFound) {
				t.Errorf("Retry after finalize err = %v, want ErrNotFound", err)
			}

			// Finalize stays idempotent.
			if err := s.Finalize(ctx, token); err != nil {
				t.Errorf("second Finalize: %v", err)
			}
		})
	}
}

func TestFailRetryRoundTrip(t *testing.T) {
	for name, setup := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()

			token, err := s.Issue(ctx, testEntry())
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			if _, err := s.GetAndLock(ctx, token); err != nil {
				t.Fatalf("GetAndLock: %v", err)
			}

			rec, err := s.Fail(ctx, token, "Connection refused")
			if err != nil {
				t.Fatalf("Fail: %v", err)
			}
			if rec.Status != StatusFailed {
				t.Errorf("Status = %q, want %q", rec.Status, StatusFailed)
			}
			if rec.Retries != 1 {
				t.Errorf("Retries = %d, want 1", rec.Retries)
			}
			if rec.LastError != "Connection refused" {
				t.Errorf("LastError = %q, want %q", rec.LastError, "Connection refused")
			}

			// A failed record is unredeemable until retried.
			if _, err := s.GetAndLock(ctx, token); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetAndLock on failed record err = %v, want ErrNotFound", err)
			}

			rec, err = s.Retry(ctx, token)
			if err != nil {
				t.Fatalf("Retry: %v", err)
			}
			if rec.Status != StatusPending {
				t.Errorf("Status = %q, want %q", rec.Status, StatusPending)
			}

			rec, err = s.GetAndLock(ctx, token)
			if err != nil {
				t.Fatalf("GetAndLock after retry: %v", err)
			}
			if rec.Status != StatusProcessing {
				t.Errorf("Status = %q, want %q", rec.Status, StatusProcessing)
			}
			if rec.Retries != 1 {
				t.Errorf("Retries = %d, want 1 through the second lock", rec.Retries)
			}
		})
	}
}

func TestFailAgainIncrementsRetries(t *testing.T) {
	for name, setup := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()

			token, err := s.Issue(ctx, testEntry())
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			if _, err := s.GetAndLock(ctx, token); err != nil {
				t.Fatalf("GetAndLock: %v", err)
			}

			if _, err := s.Fail(ctx, token, "Connection refused"); err != nil {
				t.Fatalf("Fail: %v", err)
			}
			rec, err := s.Fail(ctx, token, "Connection refused")
			if err != nil {
				t.Fatalf("second Fail: %v", err)
			}
			if rec.Retries != 2 {
				t.Errorf("Retries = %d, want 2", rec.Retries)
			}
		})
	}
}

func TestTTLExpiry(t *testing.T) {
	for name, setup := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()

			entry := testEntry()
			entry.Metadata.TTLSec = 1
			token, err := s.Issue(ctx, entry)
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}

			s.advance(2 * time.Second)

			if _, err := s.GetAndLock(ctx, token); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetAndLock on expired record err = %v, want ErrNotFound", err)
			}
			if _, err := s.Fail(ctx, token, "x"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Fail on expired record err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestUnknownTokenNotFound(t *testing.T) {
	for name, setup := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()

			if _, err := s.GetAndLock(ctx, "cb::orders::missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("GetAndLock err = %v, want ErrNotFound", err)
			}
			if _, err := s.Retry(ctx, "cb::orders::missing"); !errors.Is(err, ErrNotFound) {
				t.Errorf("Retry err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestRetryRequiresFailedStatus(t *testing.T) {
	for name, setup := range stores(t) {
		t.Run(name, func(t *testing.T) {
			s := setup(t)
			ctx := context.Background()

			token, err := s.Issue(ctx, testEntry())
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}

			// Pending and processing records are not retryable.
			if _, err := s.Retry(ctx, token); !errors.Is(err, ErrNotFound) {
				t.Errorf("Retry on pending err = %v, want ErrNotFound", err)
			}
			if _, err := s.GetAndLock(ctx, token); err != nil {
				t.Fatalf("GetAndLock: %v", err)
			}
			if _, err := s.Retry(ctx, token); !errors.Is(err, ErrNotFound) {
				t.Errorf("Retry on processing err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestCorruptRecordIsNotFound(t *testing.T) {
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	s := NewSQLiteStore(database)
	ctx := context.Background()

	token, err := s.Issue(ctx, testEntry())
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := database.Exec(
		`UPDATE callback_records SET params = 'not json' WHERE token = ?`, token); err != nil {
		t.Fatalf("corrupting record: %v", err)
	}

	if _, err := s.GetAndLock(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetAndLock on corrupt record err = %v, want ErrNotFound", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	s := NewSQLiteStore(database)
	base := time.Now()
	var offset time.Duration
	s.now = func() time.Time { return base.Add(offset) }
	ctx := context.Background()

	entry := testEntry()
	entry.Metadata.TTLSec = 1
	if _, err := s.Issue(ctx, entry); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := s.Issue(ctx, testEntry()); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	offset = 2 * time.Second
	purged, err := s.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
}
