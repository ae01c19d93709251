package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"storefront/internal/domain"
)

type DashboardStats struct {
	Products       int64   `json:"products"`
	ActiveProducts int64   `json:"activeProducts"`
	Categories     int64   `json:"categories"`
	Users          int64   `json:"users"`
	Orders         int64   `json:"orders"`
	Revenue        float64 `json:"revenue"`
}

type DashboardService struct {
	products   *ProductService
	categories *CategoryService
	users      *UserService
	orders     *OrderService
	errs       *ErrorService
}

func NewDashboardService(p *ProductService, c *CategoryService, u *UserService, o *OrderService, errs *ErrorService) *DashboardService {
	if errs == nil {
		errs = NewErrorService(nil, ErrorServiceOpts{})
	}
	return &DashboardService{products: p, categories: c, users: u, orders: o, errs: errs}
}

// Stats 各项计数并行查询
func (s *DashboardService) Stats(ctx context.Context) (DashboardStats, error) {
	return HandleServiceError(ctx, s.errs, "dashboardStats", nil, domain.SeverityMedium, s.stats)
}

func (s *DashboardService) stats(ctx context.Context) (DashboardStats, error) {
	var st DashboardStats
	yes := true
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { st.Products, err = s.products.Count(ctx, domain.ProductFilter{}); return })
	g.Go(func() (err error) {
		st.ActiveProducts, err = s.products.Count(ctx, domain.ProductFilter{IsActive: &yes})
		return
	})
	g.Go(func() (err error) { st.Categories, err = s.categories.Count(ctx); return })
	g.Go(func() (err error) { st.Users, err = s.users.Count(ctx); return })
	g.Go(func() (err error) { st.Orders, err = s.orders.Count(ctx); return })
	g.Go(func() (err error) { st.Revenue, err = s.orders.Revenue(ctx); return })
	if err := g.Wait(); err != nil {
		return DashboardStats{}, err
	}
	return st, nil
}
