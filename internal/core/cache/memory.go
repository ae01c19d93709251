package cache

import (
	"context"
	"regexp"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	data    any
	stored  time.Time
	expires time.Time
}

// Memory 进程内 TTL 缓存：读时惰性淘汰，Cleanup / Run 定期清扫
type Memory struct {
	mu         sync.Mutex
	items      map[string]entry
	sf         singleflight.Group
	now        func() time.Time
	defaultTTL time.Duration
	gen        uint64 // 每次失效递增
}

func NewMemory(defaultTTL time.Duration) *Memory {
	return &Memory{items: make(map[string]entry), now: time.Now, defaultTTL: defaultTTL}
}

// WithClock 测试时注入时钟
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return m.defaultTTL
	}
	return ttl
}

// Set ttl<0 用默认 TTL；ttl=0 写入即过期
func (m *Memory) Set(key string, v any, ttl time.Duration) {
	now := m.now()
	m.mu.Lock()
	m.items[key] = entry{data: v, stored: now, expires: now.Add(m.ttlOrDefault(ttl))}
	m.mu.Unlock()
}

// Generation 回源前记下，写回时用 SetIfGen 比对
func (m *Memory) Generation() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen
}

// SetIfGen 期间没有发生过失效才写入
func (m *Memory) SetIfGen(key string, v any, ttl time.Duration, gen uint64) bool {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen {
		return false
	}
	m.items[key] = entry{data: v, stored: now, expires: now.Add(m.ttlOrDefault(ttl))}
	return true
}

func (m *Memory) Get(key string) (any, bool) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok {
		return nil, false
	}
	if !now.Before(e.expires) {
		delete(m.items, key)
		return nil, false
	}
	return e.data, true
}

// StoredAt 命中时返回写入时间
func (m *Memory) StoredAt(key string) (time.Time, bool) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.items[key]
	if !ok || !now.Before(e.expires) {
		return time.Time{}, false
	}
	return e.stored, true
}

// GetOrFetch 未命中时回源并写入；回源出错不缓存，并发同 key 只回源一次
func (m *Memory) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (any, error)) (any, error) {
	if v, ok := m.Get(key); ok {
		hits.WithLabelValues(tierMemory).Inc()
		return v, nil
	}
	misses.WithLabelValues(tierMemory).Inc()
	v, err, _ := m.sf.Do(key, func() (any, error) {
		if v, ok := m.Get(key); ok {
			return v, nil
		}
		gen := m.Generation()
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		m.SetIfGen(key, v, ttl, gen)
		return v, nil
	})
	return v, err
}

func (m *Memory) Invalidate(key string) {
	m.mu.Lock()
	delete(m.items, key)
	m.gen++
	m.mu.Unlock()
}

// InvalidatePattern 删除 key 以 pattern（正则）开头匹配的条目，返回删除数
func (m *Memory) InvalidatePattern(pattern string) (int, error) {
	re, err := compilePrefix(pattern)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	n := 0
	for k := range m.items {
		if re.MatchString(k) {
			delete(m.items, k)
			n++
		}
	}
	return n, nil
}

// Clear 清空（登出 / 测试）
func (m *Memory) Clear() {
	m.mu.Lock()
	m.items = make(map[string]entry)
	m.gen++
	m.mu.Unlock()
}

// Cleanup 清扫所有过期条目，返回清掉的数量
func (m *Memory) Cleanup() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, e := range m.items {
		if !now.Before(e.expires) {
			delete(m.items, k)
			n++
		}
	}
	return n
}

func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Run 定时 Cleanup，直到 ctx 结束
func (m *Memory) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Cleanup(); n > 0 {
				evictions.Add(float64(n))
			}
		}
	}
}

func compilePrefix(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("^(?:" + pattern + ")")
}
