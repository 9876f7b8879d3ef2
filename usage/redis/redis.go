// Package redis keeps the monthly send counters in Redis so several engine
// instances share one quota.
//
// Each counter is a plain integer key. The conditional increment runs as a
// Lua script, so the check against the limit and the INCR happen in one
// server-side step.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/usage"
)

var _ usage.Store = (*Store)(nil)

// DefaultPrefix namespaces counter keys.
const DefaultPrefix = "tally:usage"

// DefaultRetention keeps a month's counter around long enough to report on
// the previous period.
const DefaultRetention = 62 * 24 * time.Hour

// incrementScript returns {count, 1} after a successful increment and
// {count, 0} when the counter is at the limit. A negative limit is unlimited.
var incrementScript = goredis.NewScript(`
local limit = tonumber(ARGV[1])
local ttl = tonumber(ARGV[2])
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if limit >= 0 and cur >= limit then
  return {cur, 0}
end
local n = redis.call('INCR', KEYS[1])
if ttl > 0 then
  redis.call('EXPIRE', KEYS[1], ttl)
end
return {n, 1}
`)

var releaseScript = goredis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[1]) or '0')
if cur > 0 then
  return redis.call('DECR', KEYS[1])
end
return 0
`)

// Store implements usage.Store on a Redis client.
type Store struct {
	client    goredis.Cmdable
	prefix    string
	retention time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithRetention sets how long a counter key lives after its last write.
// Zero disables expiry.
func WithRetention(d time.Duration) Option {
	return func(s *Store) { s.retention = d }
}

// New creates a Redis-backed usage store.
func New(client goredis.Cmdable, opts ...Option) *Store {
	s := &Store{
		client:    client,
		prefix:    DefaultPrefix,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) IncrementUsage(ctx context.Context, businessID id.BusinessID, period string, limit int64) (int64, bool, error) {
	res, err := incrementScript.Run(ctx, s.client,
		[]string{s.key(businessID, period)},
		limit, int64(s.retention/time.Second),
	).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("tally/redis: increment usage: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("tally/redis: increment usage: unexpected reply %v", res)
	}
	return res[0], res[1] == 1, nil
}

func (s *Store) ReleaseUsage(ctx context.Context, businessID id.BusinessID, period string) error {
	if err := releaseScript.Run(ctx, s.client, []string{s.key(businessID, period)}).Err(); err != nil {
		return fmt.Errorf("tally/redis: release usage: %w", err)
	}
	return nil
}

func (s *Store) GetUsage(ctx context.Context, businessID id.BusinessID, period string) (int64, error) {
	n, err := s.client.Get(ctx, s.key(businessID, period)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("tally/redis: get usage: %w", err)
	}
	return n, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) key(businessID id.BusinessID, period string) string {
	return s.prefix + ":" + businessID.String() + ":" + period
}
