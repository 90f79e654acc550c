package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// Compile-time check that RedisBackend implements Backend.
var _ Backend = (*RedisBackend)(nil)

const redisKeyPrefix = "apex:collection:"

// RedisBackend keeps each collection in a hash with "data" and "version"
// fields. Put uses WATCH/MULTI so a concurrent writer aborts the transaction.
type RedisBackend struct {
	rdb *redis.Client
}

// OpenRedis connects to the Redis server at addr.
func OpenRedis(ctx context.Context, addr, password string, db int) (*RedisBackend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", addr, err)
	}
	return &RedisBackend{rdb: rdb}, nil
}

func (r *RedisBackend) Get(ctx context.Context, collection string) (Blob, error) {
	fields, err := r.rdb.HGetAll(ctx, redisKeyPrefix+collection).Result()
	if err != nil {
		return Blob{}, fmt.Errorf("reading collection %s: %w", collection, err)
	}
	if len(fields) == 0 {
		return Blob{}, nil
	}
	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return Blob{}, fmt.Errorf("parsing version of %s: %w", collection, err)
	}
	return Blob{Data: []byte(fields["data"]), Version: version}, nil
}

func (r *RedisBackend) Put(ctx context.Context, collection string, data []byte, expect int64) (int64, error) {
	key := redisKeyPrefix + collection
	next := expect + 1

	err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "version").Int64()
		if errors.Is(err, redis.Nil) {
			current = 0
		} else if err != nil {
			return err
		}
		if current != expect {
			return fmt.Errorf("%s at version %d, expected %d: %w", collection, current, expect, ErrConflict)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "data", data, "version", next)
			return nil
		})
		return err
	}, key)

	if errors.Is(err, redis.TxFailedErr) {
		return 0, fmt.Errorf("%s changed during write: %w", collection, ErrConflict)
	}
	if err != nil {
		return 0, fmt.Errorf("writing collection %s: %w", collection, err)
	}
	return next, nil
}

func (r *RedisBackend) Delete(ctx context.Context, collection string) error {
	return r.rdb.Del(ctx, redisKeyPrefix+collection).Err()
}

func (r *RedisBackend) Close() error {
	return r.rdb.Close()
}
