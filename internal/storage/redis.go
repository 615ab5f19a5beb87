// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// =============================================================================
// REDIS BACKEND
// =============================================================================

// DefaultRedisPrefix namespaces keys when RedisOptions.Prefix is empty.
const DefaultRedisPrefix = "rigrun:stream:"

// RedisOptions configures the redis backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisKV stores values as plain redis strings under a prefix and publishes
// each change on "<prefix>changes" so other clients can follow along.
type RedisKV struct {
	rdb    *redis.Client
	prefix string
	origin string
}

// OpenRedis connects to redis and verifies the connection.
func OpenRedis(opts RedisOptions) (*RedisKV, error) {
	if opts.Addr == "" {
		return nil, errors.New("redis backend requires an address")
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", opts.Addr)
	}
	return NewRedis(rdb, prefix), nil
}

// NewRedis wraps an existing client.
func NewRedis(rdb *redis.Client, prefix string) *RedisKV {
	return &RedisKV{rdb: rdb, prefix: prefix, origin: uuid.NewString()}
}

func (r *RedisKV) channel() string {
	return r.prefix + "changes"
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Key: key, Err: err}
	}
	return v, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte) error {
	if !json.Valid(value) {
		return &StoreError{Op: "set", Key: key, Err: ErrInvalidValue}
	}
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.prefix+key, value, 0)
		pipe.Publish(ctx, r.channel(), r.origin+"|"+key)
		return nil
	})
	if err != nil {
		return &StoreError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.prefix+key)
		pipe.Publish(ctx, r.channel(), r.origin+"|"+key)
		return nil
	})
	if err != nil {
		return &StoreError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (r *RedisKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := r.rdb.Scan(ctx, 0, escapeGlob(r.prefix+prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, &StoreError{Op: "keys", Key: prefix, Err: err}
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *RedisKV) Close() error {
	return r.rdb.Close()
}

// Watch subscribes to the change channel and reports keys written by other
// clients. Messages published by this instance are skipped.
func (r *RedisKV) Watch(ctx context.Context, fn func(key string)) error {
	sub := r.rdb.Subscribe(ctx, r.channel())
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "subscribe to change feed")
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			origin, key, found := strings.Cut(msg.Payload, "|")
			if !found || origin == r.origin {
				continue
			}
			fn(key)
		}
	}
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
