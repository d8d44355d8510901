package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "limit:"

// Redis is a sliding window limiter shared by every instance of the service.
// Hits are stored as members of a sorted set scored by their timestamp in
// microseconds.
type Redis struct {
	rdb    redis.UniversalClient
	max    int
	window time.Duration
}

// NewRedis creates a limiter backed by rdb.
func NewRedis(rdb redis.UniversalClient, max int, window time.Duration) *Redis {
	return &Redis{rdb: rdb, max: max, window: window}
}

// NewRedisFromURL parses a redis:// URL and creates a limiter.
func NewRedisFromURL(rawURL string, max int, window time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedis(redis.NewClient(opts), max, window), nil
}

// Ping checks connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

// Close releases the client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

func (r *Redis) Get(ctx context.Context, id string) (Ticket, error) {
	key := redisKeyPrefix + id
	now := time.Now()
	nowMicros := now.UnixMicro()
	windowStart := now.Add(-r.window).UnixMicro()

	var (
		count  *redis.IntCmd
		oldest *redis.ZSliceCmd
	)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
		count = pipe.ZCard(ctx, key)
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(nowMicros), Member: strconv.FormatInt(nowMicros, 10) + "-" + uuid.NewString()})
		oldest = pipe.ZRangeWithScores(ctx, key, 0, 0)
		pipe.PExpire(ctx, key, r.window)
		return nil
	})
	if err != nil {
		return Ticket{}, fmt.Errorf("rate limit %q: %w", id, err)
	}

	reset := now.Add(r.window)
	if first := oldest.Val(); len(first) > 0 {
		reset = time.UnixMicro(int64(first[0].Score)).Add(r.window)
	}
	return Ticket{
		Total:     r.max,
		Remaining: remaining(r.max, int(count.Val())),
		Reset:     reset,
	}, nil
}
