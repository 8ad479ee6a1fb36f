package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis initializes a Redis client from a redis:// URL or host:port input.
func ConnectRedis(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("redis url is empty")
	}
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisKV stores one profile as two Redis hashes: field values and field kinds.
type RedisKV struct {
	client  redis.Cmdable
	dataKey string
	kindKey string
}

var _ KV = (*RedisKV)(nil)

// NewRedisKV returns the KV view of profile on client.
func NewRedisKV(client redis.Cmdable, profile string) *RedisKV {
	if profile == "" {
		profile = DefaultProfile
	}
	return &RedisKV{
		client:  client,
		dataKey: "reflink:" + profile,
		kindKey: "reflink:" + profile + ":kinds",
	}
}

func (r *RedisKV) get(ctx context.Context, key, want string) (string, bool, error) {
	var data, kind *redis.StringCmd
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		data = p.HGet(ctx, r.dataKey, key)
		kind = p.HGet(ctx, r.kindKey, key)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	value, err := data.Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	if k := kind.Val(); k != "" && k != want {
		return "", false, wrongKind(key, want, k)
	}
	return value, true, nil
}

func (r *RedisKV) set(ctx context.Context, key, kind, value string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, r.dataKey, key, value)
		p.HSet(ctx, r.kindKey, key, kind)
		return nil
	})
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (r *RedisKV) GetString(ctx context.Context, key string) (string, bool, error) {
	return r.get(ctx, key, kindString)
}

func (r *RedisKV) SetString(ctx context.Context, key, value string) error {
	return r.set(ctx, key, kindString, value)
}

func (r *RedisKV) GetInt64(ctx context.Context, key string) (int64, bool, error) {
	raw, ok, err := r.get(ctx, key, kindInt)
	if err != nil || !ok {
		return 0, ok, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("get %q: %w", key, err)
	}
	return n, true, nil
}

func (r *RedisKV) SetInt64(ctx context.Context, key string, value int64) error {
	return r.set(ctx, key, kindInt, strconv.FormatInt(value, 10))
}

// Clear removes every key of the profile.
func (r *RedisKV) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.dataKey, r.kindKey).Err()
}
