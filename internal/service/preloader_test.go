package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront/internal/core/cache"
	"storefront/internal/domain"
)

type gatedFetch struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func newGatedFetch() *gatedFetch { return &gatedFetch{release: make(chan struct{})} }

func (g *gatedFetch) fetch(ctx context.Context, limit int) ([]domain.Product, error) {
	g.calls.Add(1)
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if g.err != nil {
		return nil, g.err
	}
	out := make([]domain.Product, 0, 3)
	for i := 0; i < 3 && i < limit; i++ {
		out = append(out, domain.Product{ID: fmt.Sprintf("p%d", i), Images: []string{fmt.Sprintf("https://img/%d.jpg", i)}})
	}
	return out, nil
}

func instantFetch(g *gatedFetch) *gatedFetch {
	close(g.release)
	return g
}

func TestPreloader_SingleFetchForConcurrentStarts(t *testing.T) {
	g := newGatedFetch()
	p := NewPreloader(zap.NewNop(), g.fetch, cache.NewMemory(time.Minute), nil, PreloaderOpts{TTL: time.Minute})
	ctx := context.Background()

	require.True(t, p.StartBackgroundPreload(ctx))
	assert.False(t, p.StartBackgroundPreload(ctx))
	assert.Equal(t, PreloadPreloading, p.State())

	type result struct {
		n      int
		source string
	}
	got := make(chan result, 1)
	go func() {
		ps, src, err := p.GetProducts(ctx)
		assert.NoError(t, err)
		got <- result{len(ps), src}
	}()

	close(g.release)
	r := <-got
	assert.Equal(t, 3, r.n)
	assert.Equal(t, PreloadFromInflight, r.source)
	assert.EqualValues(t, 1, g.calls.Load())

	assert.Eventually(t, func() bool { return p.State() == PreloadReady }, time.Second, 5*time.Millisecond)
	assert.False(t, p.StartBackgroundPreload(ctx))

	ps, src, err := p.GetProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, ps, 3)
	assert.Equal(t, PreloadFromMemory, src)
	assert.EqualValues(t, 1, g.calls.Load())
}

func TestPreloader_StaleAfterTTL(t *testing.T) {
	g := instantFetch(newGatedFetch())
	p := NewPreloader(zap.NewNop(), g.fetch, cache.NewMemory(time.Minute), nil, PreloaderOpts{TTL: time.Minute})
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	require.True(t, p.StartBackgroundPreload(context.Background()))
	require.Eventually(t, func() bool { return p.State() == PreloadReady }, time.Second, 5*time.Millisecond)

	now = now.Add(time.Minute)
	assert.Equal(t, PreloadStale, p.State())
	assert.True(t, p.StartBackgroundPreload(context.Background()))
	require.Eventually(t, func() bool { return p.State() == PreloadReady }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, p.Status().Fetches)
}

func TestPreloader_PersistentSnapshotSurvivesRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	store := cache.NewPersistent(cache.NewRedis(mr.Addr(), "", 0), "test:", "1")
	ctx := context.Background()

	first := instantFetch(newGatedFetch())
	p1 := NewPreloader(zap.NewNop(), first.fetch, cache.NewMemory(time.Minute), store, PreloaderOpts{TTL: time.Minute})
	ps, src, err := p1.GetProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, PreloadFromDirect, src)
	assert.Len(t, ps, 3)

	// 新进程：内存是空的，Redis 里还有
	second := instantFetch(newGatedFetch())
	p2 := NewPreloader(zap.NewNop(), second.fetch, cache.NewMemory(time.Minute), store, PreloaderOpts{TTL: time.Minute})
	ps, src, err = p2.GetProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, PreloadFromPersistent, src)
	assert.Len(t, ps, 3)
	assert.EqualValues(t, 0, second.calls.Load())
	assert.Equal(t, PreloadReady, p2.State())

	_, src, err = p2.GetProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, PreloadFromMemory, src)

	p2.MarkStale(ctx)
	assert.Equal(t, PreloadStale, p2.State())
	_, src, err = p2.GetProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, PreloadFromDirect, src)
	assert.EqualValues(t, 1, second.calls.Load())
}

func TestPreloader_WriteDuringFetchKeepsSnapshotStale(t *testing.T) {
	g := newGatedFetch()
	mem := cache.NewMemory(time.Minute)
	p := NewPreloader(zap.NewNop(), g.fetch, mem, nil, PreloaderOpts{TTL: time.Minute})
	ctx := context.Background()

	require.True(t, p.StartBackgroundPreload(ctx))
	require.Eventually(t, func() bool { return g.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	// 拉取还没返回时商品被改了
	p.MarkStale(ctx)
	close(g.release)

	require.Eventually(t, func() bool { return p.State() == PreloadStale }, time.Second, 5*time.Millisecond)
	_, ok := mem.Get(cache.KeyPreloadSnapshot)
	assert.False(t, ok, "outdated batch must not be served from memory")

	require.True(t, p.StartBackgroundPreload(ctx))
	require.Eventually(t, func() bool { return p.State() == PreloadReady }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 2, g.calls.Load())
	_, src, err := p.GetProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, PreloadFromMemory, src)
}

func TestPreloader_FetchFailure(t *testing.T) {
	g := newGatedFetch()
	g.err = errors.New("backend down")
	close(g.release)
	p := NewPreloader(zap.NewNop(), g.fetch, cache.NewMemory(time.Minute), nil, PreloaderOpts{})

	require.True(t, p.StartBackgroundPreload(context.Background()))
	require.Eventually(t, func() bool { return p.Status().LastErr != "" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, PreloadIdle, p.State())

	_, _, err := p.GetProducts(context.Background())
	assert.Error(t, err)
}

type recordingWarmer struct {
	mu   sync.Mutex
	urls []string
}

func (w *recordingWarmer) Warm(_ context.Context, url string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.urls = append(w.urls, url)
	if url == "https://img/0.jpg" {
		return errors.New("404")
	}
	return nil
}

func (w *recordingWarmer) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.urls)
}

func TestPreloader_WarmsFirstImages(t *testing.T) {
	g := instantFetch(newGatedFetch())
	w := &recordingWarmer{}
	p := NewPreloader(zap.NewNop(), g.fetch, cache.NewMemory(time.Minute), nil, PreloaderOpts{ImageCount: 2, Warmer: w})

	require.True(t, p.StartBackgroundPreload(context.Background()))
	require.Eventually(t, func() bool { return w.count() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, PreloadReady, p.State())
}

func TestPreloader_DelayHonoursCancel(t *testing.T) {
	g := instantFetch(newGatedFetch())
	p := NewPreloader(zap.NewNop(), g.fetch, cache.NewMemory(time.Minute), nil, PreloaderOpts{Delay: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, p.StartBackgroundPreload(ctx))
	cancel()
	require.Eventually(t, func() bool { return p.State() == PreloadIdle }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 0, g.calls.Load())
}
