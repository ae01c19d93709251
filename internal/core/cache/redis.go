package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewRedis(addr, pass string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}

// envelope 持久层的存储格式；版本不一致视为未命中并删除
type envelope struct {
	Version   string          `json:"v"`
	StoredAt  int64           `json:"ts"`
	ExpiresAt int64           `json:"exp"`
	Data      json.RawMessage `json:"data"`
}

// Persistent Redis 持久层，key 统一加前缀
type Persistent struct {
	rdb     *redis.Client
	prefix  string
	version string
	now     func() time.Time
}

func NewPersistent(rdb *redis.Client, prefix, version string) *Persistent {
	return &Persistent{rdb: rdb, prefix: prefix, version: version, now: time.Now}
}

func (p *Persistent) WithClock(now func() time.Time) *Persistent {
	p.now = now
	return p
}

func (p *Persistent) Client() *redis.Client { return p.rdb }

func (p *Persistent) k(key string) string { return p.prefix + key }

// Set ttl<=0 时不写（写入即过期）并删除旧值
func (p *Persistent) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	if ttl <= 0 {
		return p.rdb.Del(ctx, p.k(key)).Err()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	now := p.now()
	b, err := json.Marshal(envelope{
		Version:   p.version,
		StoredAt:  now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
		Data:      data,
	})
	if err != nil {
		return err
	}
	return p.rdb.Set(ctx, p.k(key), b, ttl).Err()
}

// Get 命中时解码到 out 并返回写入时间
func (p *Persistent) Get(ctx context.Context, key string, out any) (time.Time, bool, error) {
	b, err := p.rdb.Get(ctx, p.k(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		misses.WithLabelValues(tierRedis).Inc()
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil || env.Version != p.version || p.now().UnixMilli() >= env.ExpiresAt {
		// 旧版本 / 损坏 / 过期：清掉
		_ = p.rdb.Del(ctx, p.k(key)).Err()
		misses.WithLabelValues(tierRedis).Inc()
		return time.Time{}, false, nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		_ = p.rdb.Del(ctx, p.k(key)).Err()
		misses.WithLabelValues(tierRedis).Inc()
		return time.Time{}, false, nil
	}
	hits.WithLabelValues(tierRedis).Inc()
	return time.UnixMilli(env.StoredAt), true, nil
}

func (p *Persistent) Invalidate(ctx context.Context, key string) error {
	return p.rdb.Del(ctx, p.k(key)).Err()
}

// InvalidatePattern SCAN 前缀下所有 key，按正则（前缀匹配）删除
func (p *Persistent) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	re, err := compilePrefix(pattern)
	if err != nil {
		return 0, err
	}
	var (
		cursor uint64
		n      int
	)
	for {
		keys, next, err := p.rdb.Scan(ctx, cursor, p.prefix+"*", 200).Result()
		if err != nil {
			return n, err
		}
		var del []string
		for _, full := range keys {
			if re.MatchString(full[len(p.prefix):]) {
				del = append(del, full)
			}
		}
		if len(del) > 0 {
			if err := p.rdb.Del(ctx, del...).Err(); err != nil {
				return n, err
			}
			n += len(del)
		}
		cursor = next
		if cursor == 0 {
			return n, nil
		}
	}
}
