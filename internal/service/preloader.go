package service

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storefront/internal/core/cache"
	"storefront/internal/domain"
)

type PreloadState string

const (
	PreloadIdle       PreloadState = "idle"
	PreloadPreloading PreloadState = "preloading"
	PreloadReady      PreloadState = "ready"
	PreloadStale      PreloadState = "stale"
)

var preloadStateGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
	Name: "preloader_state",
	Help: "1 for the current preloader state",
}, []string{"state"})

func init() { prometheus.MustRegister(preloadStateGauge) }

// 预加载快照从哪里拿到的
const (
	PreloadFromMemory     = "memory"
	PreloadFromPersistent = "persistent"
	PreloadFromInflight   = "inflight"
	PreloadFromDirect     = "direct"
)

type FetchFunc func(ctx context.Context, limit int) ([]domain.Product, error)

// ImageWarmer 预热商品图（例如让 CDN 先拉一遍）
type ImageWarmer interface {
	Warm(ctx context.Context, url string) error
}

type PreloaderOpts struct {
	Delay      time.Duration
	BatchSize  int
	TTL        time.Duration
	ImageCount int
	Warmer     ImageWarmer // 为空则不预热图片
}

type PreloadStatus struct {
	State    PreloadState `json:"state"`
	Count    int          `json:"count"`
	LoadedAt *time.Time   `json:"loadedAt,omitempty"`
	Fetches  int          `json:"fetches"`
	LastErr  string       `json:"lastError,omitempty"`
}

// Preloader 进程内唯一；启动后延迟拉一批商品放进内存和 Redis
type Preloader struct {
	fetch FetchFunc
	mem   *cache.Memory
	store *cache.Persistent
	opt   PreloaderOpts
	log   *zap.Logger
	now   func() time.Time

	mu       sync.Mutex
	state    PreloadState
	products []domain.Product
	loadedAt time.Time
	inflight chan struct{}
	fetches  int
	lastErr  error
	gen      uint64 // MarkStale 时递增；拉取期间变过的结果不进快照
}

func NewPreloader(l *zap.Logger, fetch FetchFunc, mem *cache.Memory, store *cache.Persistent, o PreloaderOpts) *Preloader {
	if l == nil {
		l = zap.NewNop()
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 50
	}
	if o.TTL <= 0 {
		o.TTL = 10 * time.Minute
	}
	p := &Preloader{fetch: fetch, mem: mem, store: store, opt: o, log: l, now: time.Now, state: PreloadIdle}
	p.setGauge(PreloadIdle)
	return p
}

func (p *Preloader) setGauge(s PreloadState) {
	for _, st := range []PreloadState{PreloadIdle, PreloadPreloading, PreloadReady, PreloadStale} {
		v := 0.0
		if st == s {
			v = 1
		}
		preloadStateGauge.WithLabelValues(string(st)).Set(v)
	}
}

// stateLocked ready 超过 TTL 视为 stale
func (p *Preloader) stateLocked() PreloadState {
	if p.state == PreloadReady && !p.now().Before(p.loadedAt.Add(p.opt.TTL)) {
		return PreloadStale
	}
	return p.state
}

func (p *Preloader) State() PreloadState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Preloader) Status() PreloadStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := PreloadStatus{State: p.stateLocked(), Count: len(p.products), Fetches: p.fetches}
	if !p.loadedAt.IsZero() {
		t := p.loadedAt
		st.LoadedAt = &t
	}
	if p.lastErr != nil {
		st.LastErr = p.lastErr.Error()
	}
	return st
}

// StartBackgroundPreload 正在预加载或快照仍新鲜时什么都不做，返回是否真正启动
func (p *Preloader) StartBackgroundPreload(ctx context.Context) bool {
	p.mu.Lock()
	switch p.stateLocked() {
	case PreloadPreloading, PreloadReady:
		p.mu.Unlock()
		return false
	}
	done := make(chan struct{})
	p.state, p.inflight = PreloadPreloading, done
	p.mu.Unlock()
	p.setGauge(PreloadPreloading)

	go p.run(ctx, done, p.opt.Delay)
	return true
}

func (p *Preloader) run(ctx context.Context, done chan struct{}, delay time.Duration) {
	defer close(done)
	if delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			p.finish(nil, 0, ctx.Err())
			return
		case <-t.C:
		}
	}
	products, gen, err := p.doFetch(ctx)
	if p.finish(products, gen, err) {
		p.persist(ctx, products)
		p.warmImages(ctx, products)
	}
}

func (p *Preloader) doFetch(ctx context.Context) ([]domain.Product, uint64, error) {
	p.mu.Lock()
	p.fetches++
	gen := p.gen
	p.mu.Unlock()
	ps, err := p.fetch(ctx, p.opt.BatchSize)
	return ps, gen, err
}

// finish 返回结果是否成为新鲜快照；拉取期间被 MarkStale 过的结果只记为 stale
func (p *Preloader) finish(products []domain.Product, gen uint64, err error) bool {
	p.mu.Lock()
	p.inflight = nil
	fresh := false
	switch {
	case err != nil:
		p.lastErr = err
		p.state = PreloadIdle
		if len(p.products) > 0 {
			p.state = PreloadStale
		}
	case gen != p.gen:
		p.products, p.loadedAt, p.lastErr = products, p.now(), nil
		p.state = PreloadStale
	default:
		p.products, p.loadedAt, p.lastErr = products, p.now(), nil
		p.state = PreloadReady
		p.mem.Set(cache.KeyPreloadSnapshot, products, p.opt.TTL)
		fresh = true
	}
	st := p.state
	p.mu.Unlock()
	p.setGauge(st)
	switch {
	case err != nil:
		p.log.Warn("product preload failed", zap.Error(err))
	case !fresh:
		p.log.Info("product preload outdated by a write, kept as stale", zap.Int("count", len(products)))
	default:
		p.log.Info("product preload done", zap.Int("count", len(products)))
	}
	return fresh
}

func (p *Preloader) persist(ctx context.Context, products []domain.Product) {
	if p.store == nil {
		return
	}
	if err := p.store.Set(ctx, cache.KeyPreloadSnapshot, products, p.opt.TTL); err != nil {
		p.log.Warn("persist preload snapshot failed", zap.Error(err))
	}
}

// GetProducts 依次取：内存快照 → Redis 快照（TTL 内）→ 等正在进行的预加载 → 直接拉取
func (p *Preloader) GetProducts(ctx context.Context) ([]domain.Product, string, error) {
	if v, ok := p.mem.Get(cache.KeyPreloadSnapshot); ok {
		if ps, ok := v.([]domain.Product); ok {
			return ps, PreloadFromMemory, nil
		}
	}

	if p.store != nil {
		var ps []domain.Product
		storedAt, ok, err := p.store.Get(ctx, cache.KeyPreloadSnapshot, &ps)
		if err != nil {
			p.log.Warn("read preload snapshot failed", zap.Error(err))
		} else if ok && p.now().Sub(storedAt) < p.opt.TTL {
			p.adopt(ps, storedAt)
			return ps, PreloadFromPersistent, nil
		}
	}

	p.mu.Lock()
	inflight := p.inflight
	p.mu.Unlock()
	if inflight != nil {
		select {
		case <-ctx.Done():
			return nil, "", ctx.Err()
		case <-inflight:
		}
		p.mu.Lock()
		ps, ready := p.products, p.stateLocked() == PreloadReady
		p.mu.Unlock()
		if ready && ps != nil {
			return ps, PreloadFromInflight, nil
		}
	}

	ps, gen, err := p.doFetch(ctx)
	if err != nil {
		return nil, "", err
	}
	if p.finish(ps, gen, nil) {
		p.persist(ctx, ps)
	}
	return ps, PreloadFromDirect, nil
}

// adopt 从 Redis 恢复的快照同时写回内存
func (p *Preloader) adopt(ps []domain.Product, at time.Time) {
	p.mu.Lock()
	p.products, p.loadedAt, p.lastErr = ps, at, nil
	if p.state != PreloadPreloading {
		p.state = PreloadReady
	}
	p.mu.Unlock()
	if left := p.opt.TTL - p.now().Sub(at); left > 0 {
		p.mem.Set(cache.KeyPreloadSnapshot, ps, left)
	}
}

// MarkStale 商品写操作后让快照失效，下次 Start 会重新拉取
func (p *Preloader) MarkStale(ctx context.Context) {
	p.mem.Invalidate(cache.KeyPreloadSnapshot)
	if p.store != nil {
		if err := p.store.Invalidate(ctx, cache.KeyPreloadSnapshot); err != nil {
			p.log.Warn("invalidate preload snapshot failed", zap.Error(err))
		}
	}
	p.mu.Lock()
	p.gen++
	if p.state == PreloadReady {
		p.state = PreloadStale
	}
	st := p.state
	p.mu.Unlock()
	p.setGauge(st)
}

// warmImages 尽力而为：单张失败只记 debug，不影响其它
func (p *Preloader) warmImages(ctx context.Context, products []domain.Product) {
	if p.opt.Warmer == nil || p.opt.ImageCount <= 0 {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	n := 0
	for i := range products {
		if n >= p.opt.ImageCount {
			break
		}
		url := products[i].PrimaryImage()
		if url == "" {
			continue
		}
		n++
		g.Go(func() error {
			if err := p.opt.Warmer.Warm(gctx, url); err != nil {
				p.log.Debug("warm image failed", zap.String("url", url), zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

// HTTPWarmer 对图片地址发 HEAD 请求
type HTTPWarmer struct {
	Client *http.Client
}

func (w HTTPWarmer) Warm(ctx context.Context, url string) error {
	c := w.Client
	if c == nil {
		c = &http.Client{Timeout: 5 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}
