package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ziadkadry99/actiongate/internal/callback"
)

const redisKeyPrefix = "reservation:"

// RedisManager backs reservations with Redis. SET NX decides the first
// caller atomically on the server.
type RedisManager struct {
	client    *redis.Client
	resultTTL time.Duration
}

// NewRedisManager creates a RedisManager. A non-positive resultTTL
// falls back to DefaultResultTTL.
func NewRedisManager(client *redis.Client, resultTTL time.Duration) *RedisManager {
	if resultTTL <= 0 {
		resultTTL = DefaultResultTTL
	}
	return &RedisManager{client: client, resultTTL: resultTTL}
}

// releaseScript deletes a reservation only while it is still
// in_progress, so a completed reservation's cached result survives.
var releaseScript = redis.NewScript(`
local raw = redis.call('GET', KEYS[1])
if raw then
	local v = cjson.decode(raw)
	if v.state == 'in_progress' then
		redis.call('DEL', KEYS[1])
	end
end
return true`)

// reservationValue is the JSON stored per reservation.
type reservationValue struct {
	State  callback.DuplicateState `json:"state"`
	Result json.RawMessage         `json:"result,omitempty"`
}

// Reserve implements Manager.
func (m *RedisManager) Reserve(ctx context.Context, token string) (*Reservation, error) {
	key := redisKeyPrefix + token

	initial, err := json.Marshal(reservationValue{State: callback.DuplicateInProgress})
	if err != nil {
		return nil, fmt.Errorf("marshalling reservation: %w", err)
	}

	won, err := m.client.SetNX(ctx, key, string(initial), m.resultTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("reserving token: %w", err)
	}
	if won {
		return &Reservation{First: true}, nil
	}

	raw, err := m.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return &Reservation{State: callback.DuplicateInProgress}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading reservation: %w", err)
	}

	var v reservationValue
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return &Reservation{State: callback.DuplicateInProgress}, nil
	}
	return &Reservation{State: v.State, Result: v.Result}, nil
}

// Complete implements Manager.
func (m *RedisManager) Complete(ctx context.Context, token string, result json.RawMessage) error {
	value, err := json.Marshal(reservationValue{
		State:  callback.DuplicateCompleted,
		Result: result,
	})
	if err != nil {
		return fmt.Errorf("marshalling reservation: %w", err)
	}
	if err := m.client.Set(ctx, redisKeyPrefix+token, string(value), m.resultTTL).Err(); err != nil {
		return fmt.Errorf("completing reservation: %w", err)
	}
	return nil
}

// Release implements Manager.
func (m *RedisManager) Release(ctx context.Context, token string) error {
	if err := releaseScript.Run(ctx, m.client, []string{redisKeyPrefix + token}).Err(); err != nil {
		return fmt.Errorf("releasing reservation: %w", err)
	}
	return nil
}
