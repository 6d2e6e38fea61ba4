package callback

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "callback:"

// RedisStore persists callback records as Redis hashes with native TTL.
// The immutable issuance data lives in one field; the mutable lifecycle
// fields (status, retries, last_error) are separate hash fields so that
// transitions touch only scalars. The pending→processing handoff runs
// as a server-evaluated Lua script, which is what keeps it atomic
// across any number of consumer processes.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a RedisStore on the given client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

var lockScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') == 'pending' then
	redis.call('HSET', KEYS[1], 'status', 'processing')
	return redis.call('HGETALL', KEYS[1])
end
return false`)

var failScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return false
end
redis.call('HSET', KEYS[1], 'status', 'failed', 'last_error', ARGV[1])
redis.call('HINCRBY', KEYS[1], 'retries', 1)
return redis.call('HGETALL', KEYS[1])`)

var retryScript = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'status') == 'failed' then
	redis.call('HSET', KEYS[1], 'status', 'pending')
	return redis.call('HGETALL', KEYS[1])
end
return false`)

// redisData is the immutable part of a record, written once at issuance.
type redisData struct {
	GraphType string         `json:"graph_type"`
	Handler   string         `json:"handler"`
	UserID    string         `json:"user_id"`
	Params    map[string]any `json:"params"`
	Metadata  Metadata       `json:"metadata"`
	CreatedAt time.Time      `json:"created_at"`
}

// Issue mints a token and persists a pending record under the entry TTL.
func (s *RedisStore) Issue(ctx context.Context, entry Entry) (string, error) {
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

	data, err := json.Marshal(redisData{
		GraphType: entry.GraphType,
		Handler:   entry.Handler,
		UserID:    entry.UserID,
		Params:    paramsOrEmpty(entry.Params),
		Metadata:  entry.Metadata,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("marshalling callback record: %w", err)
	}

	key := redisKeyPrefix + token
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key,
		"data", string(data),
		"status", string(StatusPending),
		"retries", 0,
		"last_error", "",
	)
	pipe.Expire(ctx, key, entry.Metadata.TTL())
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("storing callback record: %w", err)
	}
	return token, nil
}

// Get returns the record without changing its state. Expiry is native:
// the hash disappears with its TTL.
func (s *RedisStore) Get(ctx context.Context, token string) (*Record, error) {
	fields, err := s.client.HGetAll(ctx, redisKeyPrefix+token).Result()
	if err != nil {
		return nil, fmt.Errorf("reading callback record: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return recordFromMap(token, fields)
}

// GetAndLock transitions a pending record to processing and returns it.
func (s *RedisStore) GetAndLock(ctx context.Context, token string) (*Record, error) {
	return s.runScript(ctx, lockScript, token)
}

// Fail marks a record failed and increments its retry count.
func (s *RedisStore) Fail(ctx context.Context, token, message string) (*Record, error) {
	return s.runScript(ctx, failScript, token, message)
}

// Retry moves a failed record back to pending.
func (s *RedisStore) Retry(ctx context.Context, token string) (*Record, error) {
	return s.runScript(ctx, retryScript, token)
}

// Finalize deletes the record. Idempotent.
func (s *RedisStore) Finalize(ctx context.Context, token string) error {
	if err := s.client.Del(ctx, redisKeyPrefix+token).Err(); err != nil {
		return fmt.Errorf("finalizing callback record: %w", err)
	}
	return nil
}

func (s *RedisStore) runScript(ctx context.Context, script *redis.Script, token string, args ...any) (*Record, error) {
	res, err := script.Run(ctx, s.client, []string{redisKeyPrefix + token}, args...).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("running callback script: %w", err)
	}

	fields, ok := res.([]any)
	if !ok {
		return nil, ErrNotFound
	}
	return recordFromFields(token, fields)
}

// recordFromFields rebuilds a Record from a script's HGETALL reply.
func recordFromFields(token string, fields []any) (*Record, error) {
	m := make(map[string]string, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		k, kok := fields[i].(string)
		v, vok := fields[i+1].(string)
		if kok && vok {
			m[k] = v
		}
	}
	return recordFromMap(token, m)
}

// recordFromMap rebuilds a Record from hash fields. Any missing or
// unparseable field is reported as not-found, never as corrupt state.
func recordFromMap(token string, m map[string]string) (*Record, error) {
	var data redisData
	if err := json.Unmarshal([]byte(m["data"]), &data); err != nil {
		return nil, ErrNotFound
	}
	status := Status(m["status"])
	switch status {
	case StatusPending, StatusProcessing, StatusFailed:
	default:
		return nil, ErrNotFound
	}
	retries, err := strconv.Atoi(m["retries"])
	if err != nil {
		return nil, ErrNotFound
	}

	return &Record{
		Token:     token,
		GraphType: data.GraphType,
		Handler:   data.Handler,
		UserID:    data.UserID,
		Params:    data.Params,
		Status:    status,
		CreatedAt: data.CreatedAt,
		Retries:   retries,
		LastError: m["last_error"],
		Metadata:  data.Metadata,
	}, nil
}
