package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Tiered 内存 + 可选 Redis 的读穿缓存；Redis 不可用时只降级为内存
type Tiered struct {
	mem   *Memory
	store *Persistent
	log   *zap.Logger
	sf    singleflight.Group
}

func NewTiered(mem *Memory, store *Persistent, l *zap.Logger) *Tiered {
	if l == nil {
		l = zap.NewNop()
	}
	return &Tiered{mem: mem, store: store, log: l}
}

func (t *Tiered) Memory() *Memory         { return t.mem }
func (t *Tiered) Persistent() *Persistent { return t.store }

// GetOrFetch 依次查内存、Redis，最后回源；回源错误不缓存
func GetOrFetch[T any](ctx context.Context, t *Tiered, key string, ttl time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := t.mem.Get(key); ok {
		if tv, ok := v.(T); ok {
			hits.WithLabelValues(tierMemory).Inc()
			return tv, nil
		}
	}
	misses.WithLabelValues(tierMemory).Inc()

	if t.store != nil {
		var out T
		_, ok, err := t.store.Get(ctx, key, &out)
		if err != nil {
			t.log.Warn("cache: redis get failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			t.mem.Set(key, out, ttl)
			return out, nil
		}
	}

	v, err, _ := t.sf.Do(key, func() (any, error) {
		gen := t.mem.Generation()
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		// 回源期间有失效发生，结果只返回不缓存
		if !t.mem.SetIfGen(key, v, ttl, gen) {
			return v, nil
		}
		if t.store != nil {
			if e := t.store.Set(ctx, key, v, ttl); e != nil {
				t.log.Warn("cache: redis set failed", zap.String("key", key), zap.Error(e))
			} else if t.mem.Generation() != gen {
				t.Invalidate(ctx, key)
			}
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	tv, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: unexpected type %T for key %q", v, key)
	}
	return tv, nil
}

func (t *Tiered) Set(ctx context.Context, key string, v any, ttl time.Duration) {
	t.mem.Set(key, v, ttl)
	if t.store != nil {
		if err := t.store.Set(ctx, key, v, ttl); err != nil {
			t.log.Warn("cache: redis set failed", zap.String("key", key), zap.Error(err))
		}
	}
}

func (t *Tiered) Invalidate(ctx context.Context, key string) {
	t.mem.Invalidate(key)
	if t.store != nil {
		if err := t.store.Invalidate(ctx, key); err != nil {
			t.log.Warn("cache: redis del failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// InvalidatePattern 两层都按前缀正则清除
func (t *Tiered) InvalidatePattern(ctx context.Context, pattern string) int {
	n, err := t.mem.InvalidatePattern(pattern)
	if err != nil {
		t.log.Error("cache: bad pattern", zap.String("pattern", pattern), zap.Error(err))
		return 0
	}
	if t.store != nil {
		m, err := t.store.InvalidatePattern(ctx, pattern)
		if err != nil {
			t.log.Warn("cache: redis pattern invalidate failed", zap.String("pattern", pattern), zap.Error(err))
		}
		n += m
	}
	return n
}

func (t *Tiered) Cleanup() int { return t.mem.Cleanup() }
