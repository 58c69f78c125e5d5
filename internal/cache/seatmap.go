// Package cache holds read-through snapshots that are safe to serve stale for
// a short while.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/metinatakli/cinex-booking/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultSeatMapTTL = 2 * time.Second

	generationTTL = 24 * time.Hour
)

// KEYS[1] snapshot, KEYS[2] generation. The snapshot is only written when no
// invalidation happened since the caller read the generation.
var setIfCurrentScript = redis.NewScript(`
	local current = redis.call("GET", KEYS[2]) or "0"
	if current ~= ARGV[1] then
		return 0
	end
	redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	return 1
`)

var invalidateScript = redis.NewScript(`
	redis.call("DEL", KEYS[1])
	redis.call("INCR", KEYS[2])
	redis.call("PEXPIRE", KEYS[2], ARGV[1])
	return 1
`)

// RedisSeatMapCache stores availability snapshots as JSON under
// seat_map:{showID}. Writers invalidate the key after every commit and bump
// the show's generation so a reader that loaded the seat map before the
// commit cannot put its snapshot back. The TTL bounds staleness if an
// invalidation is lost.
type RedisSeatMapCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisSeatMapCache(client redis.UniversalClient, ttl time.Duration) *RedisSeatMapCache {
	if ttl <= 0 {
		ttl = DefaultSeatMapTTL
	}

	return &RedisSeatMapCache{
		client: client,
		ttl:    ttl,
	}
}

// Get returns a nil snapshot on a cache miss. The generation is returned
// either way and must be handed back to Set.
func (c *RedisSeatMapCache) Get(ctx context.Context, showID int) (*domain.SeatMap, int64, error) {
	values, err := c.client.MGet(ctx, seatMapKey(showID), generationKey(showID)).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read seat map of show %d from cache: %w", showID, err)
	}

	var generation int64

	if raw, ok := values[1].(string); ok {
		generation, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("invalid seat map generation of show %d: %w", showID, err)
		}
	}

	raw, ok := values[0].(string)
	if !ok {
		return nil, generation, nil
	}

	var seatMap domain.SeatMap

	err = json.Unmarshal([]byte(raw), &seatMap)
	if err != nil {
		return nil, generation, fmt.Errorf("failed to decode cached seat map of show %d: %w", showID, err)
	}

	return &seatMap, generation, nil
}

// Set is a no-op when the show was invalidated after generation was read.
func (c *RedisSeatMapCache) Set(ctx context.Context, showID int, generation int64, seatMap domain.SeatMap) error {
	data, err := json.Marshal(seatMap)
	if err != nil {
		return err
	}

	keys := []string{seatMapKey(showID), generationKey(showID)}

	err = setIfCurrentScript.Run(ctx, c.client, keys, generation, string(data), c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("failed to cache seat map of show %d: %w", showID, err)
	}

	return nil
}

func (c *RedisSeatMapCache) Invalidate(ctx context.Context, showID int) error {
	keys := []string{seatMapKey(showID), generationKey(showID)}

	err := invalidateScript.Run(ctx, c.client, keys, generationTTL.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("failed to invalidate seat map of show %d: %w", showID, err)
	}

	return nil
}

// Both keys share a hash tag so the scripts stay on one cluster slot.
func seatMapKey(showID int) string {
	return fmt.Sprintf("seat_map:{%d}", showID)
}

func generationKey(showID int) string {
	return fmt.Sprintf("seat_map_gen:{%d}", showID)
}

// NopSeatMapCache always misses. It is used when no Redis is configured.
type NopSeatMapCache struct{}

func (NopSeatMapCache) Get(context.Context, int) (*domain.SeatMap, int64, error) { return nil, 0, nil }

func (NopSeatMapCache) Set(context.Context, int, int64, domain.SeatMap) error { return nil }

func (NopSeatMapCache) Invalidate(context.Context, int) error { return nil }
