package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"storefront/internal/core/apperr"
	"storefront/internal/core/cache"
	"storefront/internal/core/validate"
	"storefront/internal/domain"
	"storefront/pkg/utils"
)

const (
	searchCorpusSize = 200
	relatedDefault   = 4
	featuredDefault  = 8
)

var errBackendOff = apperr.Unavailable("Product catalog backend is not configured.", nil)

// ProductService 商品读写。读路径出错时记录并降级到 mock 数据；写路径把分类后的错误抛给调用方
type ProductService struct {
	repo  domain.ProductRepository // nil 表示后端未配置
	mock  *MockProductService
	cache *cache.Tiered
	errs  *ErrorService
	cb    *gobreaker.CircuitBreaker
	log   *zap.Logger
	ttl   time.Duration

	afterWrite []func(context.Context)
}

type ProductServiceOpts struct {
	Repo   domain.ProductRepository
	Cache  *cache.Tiered
	Errors *ErrorService
	TTL    time.Duration
}

func NewProductService(l *zap.Logger, o ProductServiceOpts) *ProductService {
	if l == nil {
		l = zap.NewNop()
	}
	if o.Errors == nil {
		o.Errors = NewErrorService(l, ErrorServiceOpts{})
	}
	if o.Cache == nil {
		o.Cache = cache.NewTiered(cache.NewMemory(o.TTL), nil, l)
	}
	return &ProductService{
		repo:  o.Repo,
		mock:  NewMockProductService(),
		cache: o.Cache,
		errs:  o.Errors,
		cb:    newBreaker("products", l),
		log:   l,
		ttl:   o.TTL,
	}
}

// OnWrite 注册写操作成功后的回调（如让预加载快照过期）
func (s *ProductService) OnWrite(fn func(context.Context)) { s.afterWrite = append(s.afterWrite, fn) }

func (s *ProductService) Configured() bool { return s.repo != nil }

// GetProducts 过滤 + 单字段排序 + 游标分页；多取一条判断 hasMore
func (s *ProductService) GetProducts(ctx context.Context, q ProductListQuery) (domain.ProductPage, error) {
	q.Sort = q.Sort.Normalize()
	after, err := domain.DecodeCursor(q.Page.Cursor, q.Sort)
	if err != nil {
		return domain.ProductPage{}, apperr.Validation("cursor is invalid for this sort order")
	}
	if s.repo == nil {
		return s.mock.GetProducts(ctx, q, after), nil
	}

	page, err := s.storePage(ctx, q, after, q.Page.Size())
	if err != nil {
		s.errs.LogError(ctx, err, map[string]any{"operation": "getProducts", "filter": q.Filter, "sort": q.Sort}, domain.SeverityMedium)
		return s.mock.GetProducts(ctx, q, after), nil
	}
	return page, nil
}

// storePage 直接读仓储（带缓存），size 不受公开分页上限约束；出错原样返回
func (s *ProductService) storePage(ctx context.Context, q ProductListQuery, after *domain.Cursor, size int) (domain.ProductPage, error) {
	key := cache.KeyProductQuery("list", q.Filter, q.Sort, size, q.Page.Cursor)
	fetched := false
	page, err := cache.GetOrFetch(ctx, s.cache, key, s.ttl, func(ctx context.Context) (domain.ProductPage, error) {
		fetched = true
		rows, err := guarded(s.cb, func() ([]domain.Product, error) {
			return s.repo.Query(ctx, domain.ProductQuery{Filter: q.Filter, Sort: q.Sort, After: after, Limit: size + 1})
		})
		if err != nil {
			return domain.ProductPage{}, err
		}
		return pageOf(rows, q.Sort, size, domain.SourceStore), nil
	})
	if err != nil {
		return domain.ProductPage{}, err
	}
	if !fetched {
		page.Source = domain.SourceCache
	}
	return page, nil
}

// activeBatch 上架商品的一批；未配置后端时取 mock
func (s *ProductService) activeBatch(ctx context.Context, sort domain.ProductSort, limit int) ([]domain.Product, error) {
	yes := true
	q := ProductListQuery{Filter: domain.ProductFilter{IsActive: &yes}, Sort: sort.Normalize()}
	if s.repo == nil {
		q.Page.PageSize = limit
		return s.mock.GetProducts(ctx, q, nil).Products, nil
	}
	page, err := s.storePage(ctx, q, nil, limit)
	if err != nil {
		return nil, err
	}
	return page.Products, nil
}

// GetProduct 单个商品；读失败降级到 mock，找不到返回 not_found
func (s *ProductService) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if s.repo == nil {
		if p := s.mock.GetByID(ctx, id); p != nil {
			return p, nil
		}
		return nil, apperr.NotFound("Product not found.")
	}
	p, err := cache.GetOrFetch(ctx, s.cache, cache.KeyProduct(id), s.ttl, func(ctx context.Context) (domain.Product, error) {
		p, err := guarded(s.cb, func() (*domain.Product, error) { return s.repo.FindByID(ctx, id) })
		if err != nil {
			return domain.Product{}, err
		}
		if p == nil {
			return domain.Product{}, apperr.NotFound("Product not found.")
		}
		return *p, nil
	})
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}
		s.errs.LogError(ctx, err, map[string]any{"operation": "getProduct", "id": id}, domain.SeverityMedium)
		if mp := s.mock.GetByID(ctx, id); mp != nil {
			return mp, nil
		}
		return nil, apperr.NotFound("Product not found.")
	}
	return &p, nil
}

func (s *ProductService) Featured(ctx context.Context, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = featuredDefault
	}
	yes := true
	page, err := s.GetProducts(ctx, ProductListQuery{
		Filter: domain.ProductFilter{Featured: &yes, IsActive: &yes},
		Sort:   domain.DefaultSort,
		Page:   domain.Pagination{PageSize: limit},
	})
	return page.Products, err
}

func (s *ProductService) ByCategory(ctx context.Context, category string, sort domain.ProductSort, page domain.Pagination) (domain.ProductPage, error) {
	yes := true
	return s.GetProducts(ctx, ProductListQuery{
		Filter: domain.ProductFilter{Category: category, IsActive: &yes},
		Sort:   sort,
		Page:   page,
	})
}

// Related 同分类的其它上架商品
func (s *ProductService) Related(ctx context.Context, id string, limit int) ([]domain.Product, error) {
	if limit <= 0 {
		limit = relatedDefault
	}
	p, err := s.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	page, err := s.ByCategory(ctx, p.Category, domain.DefaultSort, domain.Pagination{PageSize: limit + 1})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Product, 0, limit)
	for _, r := range page.Products {
		if r.ID != id && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

// SearchProducts 先粗取一批上架商品，再在内存里做子串匹配
func (s *ProductService) SearchProducts(ctx context.Context, term string, limit int) ([]domain.Product, error) {
	if strings.TrimSpace(term) == "" {
		return []domain.Product{}, nil
	}
	if limit <= 0 {
		limit = domain.DefaultPageSize
	}
	corpus, err := s.activeBatch(ctx, domain.ProductSort{Field: domain.SortName}, searchCorpusSize)
	if err != nil {
		s.errs.LogError(ctx, err, map[string]any{"operation": "searchProducts", "term": term}, domain.SeverityMedium)
		return s.mock.Search(ctx, term, limit), nil
	}
	return searchIn(corpus, term, limit), nil
}

// PreloadBatch 预加载用：最新的一批上架商品。后端出错时返回错误而不是 mock，避免把 mock 写进快照
func (s *ProductService) PreloadBatch(ctx context.Context, limit int) ([]domain.Product, error) {
	return s.activeBatch(ctx, domain.DefaultSort, limit)
}

func prepareProduct(p *domain.Product) {
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	if p.Status == "" {
		p.Status = domain.StatusNone
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
}

// AddProduct 先校验再写；成功后清掉所有商品相关缓存
func (s *ProductService) AddProduct(ctx context.Context, p *domain.Product, actor string) (*domain.Product, error) {
	if s.repo == nil {
		return nil, errBackendOff
	}
	prepareProduct(p)
	if err := validate.Struct(p); err != nil {
		return nil, err
	}
	if p.ID == "" {
		p.ID = utils.NewID()
	}
	p.CreatedBy = actor
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, s.errs.Report(ctx, "addProduct", err, map[string]any{"name": p.Name}, domain.SeverityHigh)
	}
	s.invalidate(ctx)
	return p, nil
}

// UpdateProduct 整体覆盖，保留创建时间 / 创建人
func (s *ProductService) UpdateProduct(ctx context.Context, id string, p *domain.Product) (*domain.Product, error) {
	if s.repo == nil {
		return nil, errBackendOff
	}
	prepareProduct(p)
	if err := validate.Struct(p); err != nil {
		return nil, err
	}
	cur, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.errs.Report(ctx, "updateProduct", err, map[string]any{"id": id}, domain.SeverityHigh)
	}
	if cur == nil {
		return nil, apperr.NotFound("Product not found.")
	}
	p.ID, p.CreatedAt, p.CreatedBy = id, cur.CreatedAt, cur.CreatedBy
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, s.errs.Report(ctx, "updateProduct", err, map[string]any{"id": id}, domain.SeverityHigh)
	}
	s.invalidate(ctx)
	return p, nil
}

// DeleteProduct 硬删除
func (s *ProductService) DeleteProduct(ctx context.Context, id string) error {
	if s.repo == nil {
		return errBackendOff
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gormNotFound) {
			return apperr.NotFound("Product not found.")
		}
		return s.errs.Report(ctx, "deleteProduct", err, map[string]any{"id": id}, domain.SeverityHigh)
	}
	s.invalidate(ctx)
	return nil
}

// SetActive 软删除 / 恢复上架
func (s *ProductService) SetActive(ctx context.Context, id string, active bool) error {
	return s.updateFields(ctx, "setActive", id, map[string]any{"is_active": active})
}

// AdjustStock 库存增减，结果不能小于 0
func (s *ProductService) AdjustStock(ctx context.Context, id string, delta int) (*domain.Product, error) {
	if s.repo == nil {
		return nil, errBackendOff
	}
	if err := s.repo.AdjustStock(ctx, id, delta); err != nil {
		switch {
		case errors.Is(err, domain.ErrInsufficientStock):
			return nil, apperr.Validation("stock must be at least 0")
		case errors.Is(err, gormNotFound):
			return nil, apperr.NotFound("Product not found.")
		}
		return nil, s.errs.Report(ctx, "adjustStock", err, map[string]any{"id": id, "delta": delta}, domain.SeverityHigh)
	}
	s.invalidate(ctx)
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.errs.Report(ctx, "adjustStock", err, map[string]any{"id": id}, domain.SeverityMedium)
	}
	return p, nil
}

// BulkSetStatus 批量改展示状态，返回成功更新的数量；遇到错误即停止，已更新的不回滚
func (s *ProductService) BulkSetStatus(ctx context.Context, ids []string, status domain.ProductStatus) (int, error) {
	if s.repo == nil {
		return 0, errBackendOff
	}
	switch status {
	case domain.StatusNone, domain.StatusNew, domain.StatusSale:
	default:
		return 0, apperr.Validation("status must be one of [none new sale]")
	}
	n := 0
	defer func() {
		if n > 0 {
			s.invalidate(ctx)
		}
	}()
	for _, id := range ids {
		err := s.repo.UpdateFields(ctx, id, map[string]any{"status": status})
		if errors.Is(err, gormNotFound) {
			continue
		}
		if err != nil {
			return n, s.errs.Report(ctx, "bulkSetStatus", err, map[string]any{"id": id}, domain.SeverityHigh)
		}
		n++
	}
	return n, nil
}

func (s *ProductService) Count(ctx context.Context, f domain.ProductFilter) (int64, error) {
	if s.repo == nil {
		var n int64
		for _, p := range s.mock.All() {
			if f.Match(&p) {
				n++
			}
		}
		return n, nil
	}
	n, err := s.repo.Count(ctx, f)
	if err != nil {
		return 0, apperr.Classify(err)
	}
	return n, nil
}

func (s *ProductService) updateFields(ctx context.Context, op, id string, fields map[string]any) error {
	if s.repo == nil {
		return errBackendOff
	}
	if err := s.repo.UpdateFields(ctx, id, fields); err != nil {
		if errors.Is(err, gormNotFound) {
			return apperr.NotFound("Product not found.")
		}
		return s.errs.Report(ctx, op, err, map[string]any{"id": id}, domain.SeverityHigh)
	}
	s.invalidate(ctx)
	return nil
}

// invalidate 粗粒度：所有 products: 开头的 key 一起清
func (s *ProductService) invalidate(ctx context.Context) {
	n := s.cache.InvalidatePattern(ctx, cache.PatternProducts)
	s.log.Debug("product cache invalidated", zap.Int("keys", n))
	for _, fn := range s.afterWrite {
		fn(ctx)
	}
}
