package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/mrwolf/her-server/internal/history"
)

const keyPrefix = "her:asked:"

// AskedCache keeps reconstructed asked-question records in Redis so repeated
// question requests do not rescan a user's whole history.
//
// Records live under a per-user generation. Invalidate bumps the generation,
// so a Put computed from a scan that raced an append lands on a key nobody
// reads again and simply expires.
type AskedCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

// Dial connects to Redis and checks the connection
func Dial(ctx context.Context, addr string, ttl time.Duration) (*AskedCache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, ttl), nil
}

// New wraps an existing client
func New(rdb *goredis.Client, ttl time.Duration) *AskedCache {
	return &AskedCache{rdb: rdb, ttl: ttl}
}

func genKey(userID string) string {
	return keyPrefix + userID + ":gen"
}

func dataKey(userID string, gen int64) string {
	return keyPrefix + userID + ":" + strconv.FormatInt(gen, 10)
}

func (c *AskedCache) generation(ctx context.Context, userID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, genKey(userID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading asked generation: %w", err)
	}
	return gen, nil
}

// Get returns the cached records, the generation they were read at and
// whether they were present. The generation is valid even on a miss.
func (c *AskedCache) Get(ctx context.Context, userID string) (map[string]history.AskedRecord, int64, bool, error) {
	gen, err := c.generation(ctx, userID)
	if err != nil {
		return nil, 0, false, err
	}

	raw, err := c.rdb.Get(ctx, dataKey(userID, gen)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, gen, false, nil
	}
	if err != nil {
		return nil, gen, false, fmt.Errorf("reading asked records: %w", err)
	}

	var records map[string]history.AskedRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, gen, false, fmt.Errorf("decoding asked records: %w", err)
	}
	return records, gen, true, nil
}

// Put stores records under gen
func (c *AskedCache) Put(ctx context.Context, userID string, gen int64, records map[string]history.AskedRecord) error {
	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encoding asked records: %w", err)
	}
	return c.rdb.Set(ctx, dataKey(userID, gen), raw, c.ttl).Err()
}

// Invalidate moves the user to a new generation
func (c *AskedCache) Invalidate(ctx context.Context, userID string) error {
	return c.rdb.Incr(ctx, genKey(userID)).Err()
}

func (c *AskedCache) Close() error {
	return c.rdb.Close()
}
