package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCounterMissing means the confirmed counter for an event is not in
// Redis (expired or never seeded). Callers reseed from the durable ledger
// and retry.
var ErrCounterMissing = errors.New("counter: confirmed counter missing")

// reserveSlotScript atomically admits a confirmed slot while the count is
// below capacity. KEYS[1] = counter key, ARGV[1] = capacity, ARGV[2] = ttl
// seconds. Returns {1, count} when admitted, {0, count} when the event is
// full, {-1, -1} when the counter is missing.
const reserveSlotScript = `
local count = redis.call("GET", KEYS[1])
if not count then
  return {-1, -1}
end
count = tonumber(count)
local capacity = tonumber(ARGV[1])
if count < capacity then
  count = redis.call("INCR", KEYS[1])
  redis.call("EXPIRE", KEYS[1], ARGV[2])
  return {1, count}
end
redis.call("EXPIRE", KEYS[1], ARGV[2])
return {0, count}
`

// releaseSlotScript frees a confirmed slot, never dropping below zero.
// Returns the new count, or -1 when the counter is missing.
const releaseSlotScript = `
local count = redis.call("GET", KEYS[1])
if not count then
  return -1
end
count = tonumber(count)
if count > 0 then
  count = redis.call("DECR", KEYS[1])
end
redis.call("EXPIRE", KEYS[1], ARGV[1])
return count
`

// Counter is the Redis-materialized view of an event's confirmed count.
// The durable attendance store stays authoritative; the counter exists so
// the capacity check is a single atomic conditional update per event id.
// A missing key is reseeded from the store, so expiry only costs one extra
// round trip.
type Counter struct {
	Redis *redis.Client
	TTL   time.Duration
}

func NewCounter(redisClient *redis.Client, ttl time.Duration) *Counter {
	return &Counter{Redis: redisClient, TTL: ttl}
}

func (c *Counter) Key(eventID string) string {
	return fmt.Sprintf("rsvp:confirmed:%s", eventID)
}

func (c *Counter) ttlSeconds() int {
	return int(c.TTL.Seconds())
}

// Reserve attempts to take a confirmed slot. admitted is false when the
// event is at capacity. Returns ErrCounterMissing when the counter needs
// seeding.
func (c *Counter) Reserve(ctx context.Context, eventID string, capacity int) (bool, error) {
	res, err := c.Redis.Eval(ctx, reserveSlotScript, []string{c.Key(eventID)}, capacity, c.ttlSeconds()).Result()
	if err != nil {
		return false, err
	}

	reply, ok := res.([]interface{})
	if !ok || len(reply) != 2 {
		return false, fmt.Errorf("counter: unexpected reserve reply %v", res)
	}

	admitted, _ := reply[0].(int64)
	if admitted == -1 {
		return false, ErrCounterMissing
	}

	return admitted == 1, nil
}

// Release frees a confirmed slot after a cancellation. A missing counter is
// fine here; the next RSVP reseeds it from the store.
func (c *Counter) Release(ctx context.Context, eventID string) error {
	return c.Redis.Eval(ctx, releaseSlotScript, []string{c.Key(eventID)}, c.ttlSeconds()).Err()
}

// Seed initializes the counter from the durable confirmed count. SETNX so a
// concurrent seeder cannot clobber a counter that already took writes.
func (c *Counter) Seed(ctx context.Context, eventID string, count int) error {
	return c.Redis.SetNX(ctx, c.Key(eventID), count, c.TTL).Err()
}

// Invalidate drops the cached counter so the next reserve reseeds it from
// the durable count. Called after an admit had to bypass the counter, which
// would otherwise leave it stale and undercounting.
func (c *Counter) Invalidate(ctx context.Context, eventID string) error {
	return c.Redis.Del(ctx, c.Key(eventID)).Err()
}

// Confirmed reads the current cached count. Returns ErrCounterMissing when
// the key is gone.
func (c *Counter) Confirmed(ctx context.Context, eventID string) (int, error) {
	count, err := c.Redis.Get(ctx, c.Key(eventID)).Int()
	if err == redis.Nil {
		return 0, ErrCounterMissing
	} else if err != nil {
		return 0, err
	}
	return count, nil
}
