package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storefront/internal/core/cache"
	"storefront/internal/core/database/dbtest"
	"storefront/internal/domain"
	"storefront/internal/repo"
)

var errBackendDown = errors.New("dial tcp 10.0.0.1:5432: connect: connection refused")

// downProductRepo 模拟不可达的后端
type downProductRepo struct {
	domain.ProductRepository
	calls atomic.Int32
}

func (r *downProductRepo) Query(context.Context, domain.ProductQuery) ([]domain.Product, error) {
	r.calls.Add(1)
	return nil, errBackendDown
}

func (r *downProductRepo) FindByID(context.Context, string) (*domain.Product, error) {
	r.calls.Add(1)
	return nil, errBackendDown
}

// countingProductRepo 统计真正打到仓储的写 / 查次数
type countingProductRepo struct {
	domain.ProductRepository
	creates atomic.Int32
	queries atomic.Int32
}

func (r *countingProductRepo) Create(ctx context.Context, p *domain.Product) error {
	r.creates.Add(1)
	return r.ProductRepository.Create(ctx, p)
}

func (r *countingProductRepo) Query(ctx context.Context, q domain.ProductQuery) ([]domain.Product, error) {
	r.queries.Add(1)
	return r.ProductRepository.Query(ctx, q)
}

func newTiered() *cache.Tiered {
	return cache.NewTiered(cache.NewMemory(time.Minute), nil, zap.NewNop())
}

func newProductSvc(t *testing.T, db *gorm.DB) (*ProductService, *countingProductRepo) {
	t.Helper()
	r := &countingProductRepo{ProductRepository: repo.NewProductRepo(db)}
	return NewProductService(zap.NewNop(), ProductServiceOpts{Repo: r, Cache: newTiered(), TTL: time.Minute}), r
}

var seedBase = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func seed(t *testing.T, db *gorm.DB, category string, n int, mut func(i int, p *domain.Product)) []domain.Product {
	t.Helper()
	r := repo.NewProductRepo(db)
	out := make([]domain.Product, 0, n)
	for i := 0; i < n; i++ {
		p := domain.Product{
			ID:        fmt.Sprintf("%s-%02d", category, i),
			Name:      fmt.Sprintf("%s %02d", category, i),
			Price:     float64(20 + i),
			Category:  category,
			Stock:     5,
			IsActive:  true,
			Status:    domain.StatusNone,
			Images:    []string{},
			Tags:      []string{},
			CreatedAt: seedBase.Add(time.Duration(i) * time.Minute),
		}
		if mut != nil {
			mut(i, &p)
		}
		require.NoError(t, r.Create(context.Background(), &p))
		out = append(out, p)
	}
	return out
}

func openDB(t *testing.T) *gorm.DB { return dbtest.Open(t) }

func boolPtr(b bool) *bool { return &b }
