package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/orderflow/payment-core/internal/core"
	"github.com/orderflow/payment-core/internal/port/output"
	"github.com/redis/go-redis/v9"
)

// Each script runs atomically server-side, so check-and-create and the
// terminal writes have no race window without any client-side locking.

var checkScript = redis.NewScript(`
local key = KEYS[1]
local request_hash = ARGV[1]
local ttl_ms = ARGV[2]

if redis.call("EXISTS", key) == 0 then
  redis.call("HSET", key, "request_hash", request_hash, "status", "pending")
  redis.call("PEXPIRE", key, ttl_ms)
  return {"proceed"}
end

if redis.call("HGET", key, "request_hash") ~= request_hash then
  return {"conflict"}
end

if redis.call("HGET", key, "status") == "completed" then
  return {"cached",
    redis.call("HGET", key, "response_status") or "0",
    redis.call("HGET", key, "content_type") or "",
    redis.call("HGET", key, "response_body") or ""}
end

return {"proceed"}
`)

var completeScript = redis.NewScript(`
local key = KEYS[1]
local status = redis.call("HGET", key, "status")
if status == false or status == "completed" then
  return 0
end
redis.call("HSET", key, "status", "completed",
  "response_status", ARGV[1], "content_type", ARGV[2], "response_body", ARGV[3])
return 1
`)

var failScript = redis.NewScript(`
local key = KEYS[1]
local status = redis.call("HGET", key, "status")
if status == false or status == "completed" then
  return 0
end
redis.call("HSET", key, "status", "failed")
return 1
`)

// RedisIdempotencyStore is the Redis-backed IdempotencyStore. Expiry is
// delegated to key TTLs; CleanupExpired is a no-op reporting zero.
type RedisIdempotencyStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates the store with the standard TTL.
func NewRedisIdempotencyStore(client redis.UniversalClient, prefix string) *RedisIdempotencyStore {
	if prefix == "" {
		prefix = "idem"
	}
	return &RedisIdempotencyStore{client: client, prefix: prefix, ttl: core.IdempotencyTTL}
}

var _ output.IdempotencyStore = (*RedisIdempotencyStore)(nil)

func (s *RedisIdempotencyStore) redisKey(scope, keyHash string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, scope, keyHash)
}

// Check classifies a request as proceed, cached replay, or conflict.
func (s *RedisIdempotencyStore) Check(ctx context.Context, rawKey, scope string, payload map[string]any) (core.IdempotencyCheck, error) {
	keyHash := core.KeyHash(rawKey)
	requestHash, err := core.RequestHash(payload)
	if err != nil {
		return core.IdempotencyCheck{}, err
	}

	raw, err := checkScript.Run(ctx, s.client,
		[]string{s.redisKey(scope, keyHash)},
		requestHash,
		s.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return core.IdempotencyCheck{}, fmt.Errorf("idempotency check script failed: %w", err)
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) == 0 {
		return core.IdempotencyCheck{}, fmt.Errorf("unexpected idempotency check reply")
	}

	record := &core.IdempotencyRecord{
		KeyHash:     keyHash,
		Scope:       scope,
		RequestHash: requestHash,
		Status:      core.IdempotencyPending,
		ExpiresAt:   time.Now().Add(s.ttl),
	}

	switch asString(values[0]) {
	case "proceed":
		return core.IdempotencyCheck{Outcome: core.CheckProceed, Record: record}, nil
	case "conflict":
		return core.IdempotencyCheck{Outcome: core.CheckConflict}, nil
	case "cached":
		if len(values) < 4 {
			return core.IdempotencyCheck{}, fmt.Errorf("unexpected cached reply shape")
		}
		statusCode, err := strconv.Atoi(asString(values[1]))
		if err != nil {
			return core.IdempotencyCheck{}, fmt.Errorf("failed to parse cached status code: %w", err)
		}
		return core.IdempotencyCheck{
			Outcome: core.CheckCached,
			Cached: &core.CachedResponse{
				StatusCode:  statusCode,
				ContentType: asString(values[2]),
				Body:        []byte(asString(values[3])),
			},
		}, nil
	default:
		return core.IdempotencyCheck{}, fmt.Errorf("unknown idempotency check state %q", asString(values[0]))
	}
}

// MarkCompleted stores the response to replay. A record that failed earlier
// may still be completed by a retried attempt; a completed one is immutable.
func (s *RedisIdempotencyStore) MarkCompleted(ctx context.Context, record *core.IdempotencyRecord, response core.CachedResponse) error {
	err := completeScript.Run(ctx, s.client,
		[]string{s.redisKey(record.Scope, record.KeyHash)},
		response.StatusCode,
		response.ContentType,
		string(response.Body),
	).Err()
	if err != nil {
		return fmt.Errorf("idempotency complete script failed: %w", err)
	}
	record.Status = core.IdempotencyCompleted
	record.Response = &response
	return nil
}

// MarkFailed marks the attempt failed unless a response was already cached.
func (s *RedisIdempotencyStore) MarkFailed(ctx context.Context, record *core.IdempotencyRecord) error {
	err := failScript.Run(ctx, s.client,
		[]string{s.redisKey(record.Scope, record.KeyHash)},
	).Err()
	if err != nil {
		return fmt.Errorf("idempotency fail script failed: %w", err)
	}
	record.Status = core.IdempotencyFailed
	return nil
}

// CleanupExpired is satisfied by Redis key TTLs; nothing to sweep.
func (s *RedisIdempotencyStore) CleanupExpired(context.Context) (int64, error) {
	return 0, nil
}

func asString(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case []byte:
		return string(value)
	default:
		return fmt.Sprintf("%v", value)
	}
}
