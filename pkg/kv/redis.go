package kv

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const updateRetries = 10

// Redis 基于 go-redis 的实现，多进程共享熔断器状态
type Redis struct {
	rdb    *redis.Client
	prefix string
}

func NewRedis(rdb *redis.Client, prefix string) *Redis {
	return &Redis{rdb: rdb, prefix: prefix}
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

func (r *Redis) Get(ctx context.Context, key string, out any) (bool, error) {
	raw, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, out)
}

func (r *Redis) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key(key), data, 0).Err()
}

// Update 使用 WATCH/MULTI 乐观锁，冲突时重试
func (r *Redis) Update(ctx context.Context, key string, ptr any, fn func(found bool) error) error {
	k := r.key(key)
	txf := func(tx *redis.Tx) error {
		resetValue(ptr)
		found := true
		raw, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			found = false
		} else if err != nil {
			return err
		}
		if found {
			if err := json.Unmarshal(raw, ptr); err != nil {
				return err
			}
		}
		if err := fn(found); err != nil {
			return err
		}
		data, err := json.Marshal(ptr)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := r.rdb.Watch(ctx, txf, k)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

func (r *Redis) Delete(ctx context.Context, keys ...string) error {
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, r.key(k))
	}
	return r.rdb.Del(ctx, full...).Err()
}

func (r *Redis) IncrBy(ctx context.Context, key, field string, delta int64) error {
	return r.rdb.HIncrBy(ctx, r.key(key), field, delta).Err()
}

func (r *Redis) Counters(ctx context.Context, key string) (map[string]int64, error) {
	raw, err := r.rdb.HGetAll(ctx, r.key(key)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for field, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}

func (r *Redis) PushCapped(ctx context.Context, key string, value float64, max int) error {
	k := r.key(key)
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, k, value)
		if max > 0 {
			pipe.LTrim(ctx, k, 0, int64(max-1))
		}
		return nil
	})
	return err
}

func (r *Redis) List(ctx context.Context, key string) ([]float64, error) {
	raw, err := r.rdb.LRange(ctx, r.key(key), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}
