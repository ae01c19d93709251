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

// DefaultCategories 库里没有分类或读不到时的兜底列表
func DefaultCategories() []domain.Category {
	names := []struct{ id, name, desc string }{
		{"default-caps", "Caps", "Caps and hats"},
		{"default-tshirts", "T-Shirts", "Tees and tops"},
		{"default-hoodies", "Hoodies", "Hoodies and sweatshirts"},
		{"default-accessories", "Accessories", "Bags, socks and more"},
	}
	out := make([]domain.Category, 0, len(names))
	for _, n := range names {
		out = append(out, domain.Category{ID: n.id, Name: n.name, Description: n.desc, IsActive: true, CreatedAt: fixtureEpoch, UpdatedAt: fixtureEpoch})
	}
	return out
}

type CategoryService struct {
	repo  domain.CategoryRepository // nil 表示后端未配置
	cache *cache.Tiered
	errs  *ErrorService
	cb    *gobreaker.CircuitBreaker
	log   *zap.Logger
	ttl   time.Duration

	afterDelete []func(context.Context)
}

func NewCategoryService(l *zap.Logger, repo domain.CategoryRepository, c *cache.Tiered, errs *ErrorService, ttl time.Duration) *CategoryService {
	if l == nil {
		l = zap.NewNop()
	}
	if errs == nil {
		errs = NewErrorService(l, ErrorServiceOpts{})
	}
	if c == nil {
		c = cache.NewTiered(cache.NewMemory(ttl), nil, l)
	}
	return &CategoryService{repo: repo, cache: c, errs: errs, cb: newBreaker("categories", l), log: l, ttl: ttl}
}

// OnDelete 级联删除后的回调（商品也被删了）
func (s *CategoryService) OnDelete(fn func(context.Context)) { s.afterDelete = append(s.afterDelete, fn) }

// List 读失败或为空时返回默认分类
func (s *CategoryService) List(ctx context.Context, activeOnly bool) ([]domain.Category, error) {
	if s.repo == nil {
		return DefaultCategories(), nil
	}
	key := cache.KeyAllCategories
	if activeOnly {
		key = cache.KeyActiveCategories
	}
	cs, err := cache.GetOrFetch(ctx, s.cache, key, s.ttl, func(ctx context.Context) ([]domain.Category, error) {
		return guarded(s.cb, func() ([]domain.Category, error) { return s.repo.List(ctx, activeOnly) })
	})
	if err != nil {
		s.errs.LogError(ctx, err, map[string]any{"operation": "listCategories"}, domain.SeverityMedium)
		return DefaultCategories(), nil
	}
	if len(cs) == 0 {
		return DefaultCategories(), nil
	}
	return cs, nil
}

func (s *CategoryService) Get(ctx context.Context, id string) (*domain.Category, error) {
	if s.repo == nil {
		for _, c := range DefaultCategories() {
			if c.ID == id {
				return &c, nil
			}
		}
		return nil, apperr.NotFound("Category not found.")
	}
	c, err := cache.GetOrFetch(ctx, s.cache, cache.KeyCategory(id), s.ttl, func(ctx context.Context) (domain.Category, error) {
		c, err := guarded(s.cb, func() (*domain.Category, error) { return s.repo.FindByID(ctx, id) })
		if err != nil {
			return domain.Category{}, err
		}
		if c == nil {
			return domain.Category{}, apperr.NotFound("Category not found.")
		}
		return *c, nil
	})
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, err
		}
		return nil, s.errs.Report(ctx, "getCategory", err, map[string]any{"id": id}, domain.SeverityMedium)
	}
	return &c, nil
}

// ensureUniqueActive 启用状态下名称唯一
func (s *CategoryService) ensureUniqueActive(ctx context.Context, c *domain.Category) error {
	if !c.IsActive {
		return nil
	}
	dup, err := s.repo.FindActiveByName(ctx, c.Name)
	if err != nil {
		return s.errs.Report(ctx, "checkCategoryName", err, map[string]any{"name": c.Name}, domain.SeverityHigh)
	}
	if dup != nil && dup.ID != c.ID {
		return apperr.Conflict("An active category named \"" + c.Name + "\" already exists.")
	}
	return nil
}

func (s *CategoryService) Create(ctx context.Context, c *domain.Category) (*domain.Category, error) {
	if s.repo == nil {
		return nil, errBackendOff
	}
	c.Name = strings.TrimSpace(c.Name)
	if err := validate.Struct(c); err != nil {
		return nil, err
	}
	c.ID = utils.NewID()
	if err := s.ensureUniqueActive(ctx, c); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, s.errs.Report(ctx, "createCategory", err, map[string]any{"name": c.Name}, domain.SeverityHigh)
	}
	s.cache.InvalidatePattern(ctx, cache.PatternCategories)
	return c, nil
}

func (s *CategoryService) Update(ctx context.Context, id string, in *domain.Category) (*domain.Category, error) {
	if s.repo == nil {
		return nil, errBackendOff
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	cur, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.errs.Report(ctx, "updateCategory", err, map[string]any{"id": id}, domain.SeverityHigh)
	}
	if cur == nil {
		return nil, apperr.NotFound("Category not found.")
	}
	cur.Name, cur.Description, cur.IsActive = in.Name, in.Description, in.IsActive
	if err := s.ensureUniqueActive(ctx, cur); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, cur); err != nil {
		return nil, s.errs.Report(ctx, "updateCategory", err, map[string]any{"id": id}, domain.SeverityHigh)
	}
	s.cache.InvalidatePattern(ctx, cache.PatternCategories)
	return cur, nil
}

// Deactivate 软删除
func (s *CategoryService) Deactivate(ctx context.Context, id string) (*domain.Category, error) {
	if s.repo == nil {
		return nil, errBackendOff
	}
	cur, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.errs.Report(ctx, "deactivateCategory", err, map[string]any{"id": id}, domain.SeverityHigh)
	}
	if cur == nil {
		return nil, apperr.NotFound("Category not found.")
	}
	cur.IsActive = false
	if err := s.repo.Update(ctx, cur); err != nil {
		return nil, s.errs.Report(ctx, "deactivateCategory", err, map[string]any{"id": id}, domain.SeverityHigh)
	}
	s.cache.InvalidatePattern(ctx, cache.PatternCategories)
	return cur, nil
}

// Delete 硬删除分类并级联删除其下商品，返回删除的商品数
func (s *CategoryService) Delete(ctx context.Context, id string) (int64, error) {
	if s.repo == nil {
		return 0, errBackendOff
	}
	n, err := s.repo.DeleteCascade(ctx, id)
	if err != nil {
		if errors.Is(err, gormNotFound) {
			return 0, apperr.NotFound("Category not found.")
		}
		return 0, s.errs.Report(ctx, "deleteCategory", err, map[string]any{"id": id}, domain.SeverityCritical)
	}
	s.cache.InvalidatePattern(ctx, cache.PatternCategories)
	s.cache.InvalidatePattern(ctx, cache.PatternProducts)
	for _, fn := range s.afterDelete {
		fn(ctx)
	}
	s.log.Info("category deleted", zap.String("id", id), zap.Int64("products_removed", n))
	return n, nil
}

func (s *CategoryService) Count(ctx context.Context) (int64, error) {
	if s.repo == nil {
		return int64(len(DefaultCategories())), nil
	}
	n, err := s.repo.Count(ctx)
	if err != nil {
		return 0, apperr.Classify(err)
	}
	return n, nil
}
