package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"chatrelay/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// RecentCache holds recent-history snapshots per room. Every snapshot is
// tagged with the room's invalidation version so a snapshot read before an
// invalidation is never written after it.
type RecentCache interface {
	// Recent returns the cached snapshot and the current version of room.
	Recent(ctx context.Context, room string, limit int) (msgs []models.Message, version int64, hit bool, err error)
	// StoreRecent saves msgs unless room was invalidated after version was read.
	StoreRecent(ctx context.Context, room string, limit int, version int64, msgs []models.Message) error
	Invalidate(ctx context.Context, room string) error
}

// RedisCache implements RecentCache with one hash per room (field = limit)
// and a version counter per room.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, prefix string, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisCache) snapshotKey(room string) string { return c.prefix + "recent:" + room }
func (c *RedisCache) versionKey(room string) string  { return c.prefix + "recent-version:" + room }

func (c *RedisCache) Recent(ctx context.Context, room string, limit int) ([]models.Message, int64, bool, error) {
	pipe := c.client.Pipeline()
	versionCmd := pipe.Get(ctx, c.versionKey(room))
	snapshotCmd := pipe.HGet(ctx, c.snapshotKey(room), strconv.Itoa(limit))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, fmt.Errorf("cache get error: %w", err)
	}

	version, err := versionCmd.Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, 0, false, fmt.Errorf("cache version error: %w", err)
	}

	data, err := snapshotCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, version, false, nil
	}
	if err != nil {
		return nil, version, false, fmt.Errorf("cache get error: %w", err)
	}

	var msgs []models.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, version, false, fmt.Errorf("cache unmarshal error: %w", err)
	}
	return msgs, version, true, nil
}

func (c *RedisCache) StoreRecent(ctx context.Context, room string, limit int, version int64, msgs []models.Message) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}

	versionKey := c.versionKey(room)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, versionKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != version {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, c.snapshotKey(room), strconv.Itoa(limit), data)
			pipe.Expire(ctx, c.snapshotKey(room), c.ttl)
			return nil
		})
		return err
	}, versionKey)
	if errors.Is(err, redis.TxFailedErr) {
		// Invalidated while we were writing.
		return nil
	}
	if err != nil {
		return fmt.Errorf("cache set error: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, room string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, c.versionKey(room))
		pipe.Del(ctx, c.snapshotKey(room))
		return nil
	})
	if err != nil {
		return fmt.Errorf("cache delete error: %w", err)
	}
	return nil
}
