package service

import (
	"context"
	"strings"
	"time"

	"storefront/internal/domain"
)

var fixtureEpoch = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

// mockFixture 后端未配置或不可用时展示的静态商品（含一件已下架）
func mockFixture() []domain.Product {
	mk := func(i int, p domain.Product) domain.Product {
		p.CreatedAt = fixtureEpoch.Add(time.Duration(i) * time.Hour)
		p.UpdatedAt = p.CreatedAt
		if p.Status == "" {
			p.Status = domain.StatusNone
		}
		return p
	}
	return []domain.Product{
		mk(0, domain.Product{
			ID: "mock-classic-cap", Name: "Classic Logo Cap", Price: 24.99,
			Description: "Six-panel cotton twill cap with embroidered logo.",
			Category:    "Caps", Brand: "House", SKU: "CAP-001", Stock: 40,
			Images:   []string{"/static/mock/classic-cap.jpg"},
			Tags:     []string{"cotton", "bestseller"},
			Featured: true, IsActive: true, Status: domain.StatusNew,
		}),
		mk(1, domain.Product{
			ID: "mock-washed-cap", Name: "Washed Dad Cap", Price: 22,
			Description: "Garment-washed unstructured cap.",
			Category:    "Caps", Brand: "House", SKU: "CAP-002", Stock: 25,
			Images:   []string{"/static/mock/washed-cap.jpg"},
			Tags:     []string{"cotton"},
			IsActive: true,
		}),
		mk(2, domain.Product{
			ID: "mock-heavy-tee", Name: "Heavyweight Tee", Price: 35,
			Description: "240gsm boxy fit tee.",
			Category:    "T-Shirts", Brand: "House", SKU: "TEE-001", Stock: 60,
			Images:   []string{"/static/mock/heavy-tee.jpg"},
			Tags:     []string{"cotton", "essentials"},
			Featured: true, IsActive: true,
			Variants: []domain.Variant{
				{Attributes: map[string]string{"size": "M"}, Stock: 30},
				{Attributes: map[string]string{"size": "L"}, Stock: 30},
			},
		}),
		mk(3, domain.Product{
			ID: "mock-oversized-hoodie", Name: "Oversized Hoodie", Price: 68,
			Description: "Brushed fleece hoodie with dropped shoulders.",
			Category:    "Hoodies", Brand: "House", SKU: "HOD-001", Stock: 12,
			Images:   []string{"/static/mock/hoodie.jpg"},
			Tags:     []string{"fleece"},
			IsActive: true, Status: domain.StatusSale,
		}),
		mk(4, domain.Product{
			ID: "mock-vintage-snapback", Name: "Vintage Snapback", Price: 27.5,
			Description: "Retired colourway.",
			Category:    "Caps", Brand: "House", SKU: "CAP-003", Stock: 0,
			Images:   []string{"/static/mock/snapback.jpg"},
			IsActive: false,
		}),
	}
}

// MockProductService 静态数据集上的同一套查询语义
type MockProductService struct {
	products []domain.Product
}

func NewMockProductService() *MockProductService {
	return &MockProductService{products: mockFixture()}
}

func (m *MockProductService) All() []domain.Product {
	return append([]domain.Product(nil), m.products...)
}

func (m *MockProductService) GetProducts(_ context.Context, q ProductListQuery, after *domain.Cursor) domain.ProductPage {
	sort := q.Sort.Normalize()
	size := q.Page.Size()
	rows := filterSorted(m.products, domain.ProductQuery{Filter: q.Filter, Sort: sort, After: after, Limit: size + 1})
	return pageOf(rows, sort, size, domain.SourceMock)
}

func (m *MockProductService) GetByID(_ context.Context, id string) *domain.Product {
	for i := range m.products {
		if m.products[i].ID == id {
			p := m.products[i]
			return &p
		}
	}
	return nil
}

func (m *MockProductService) Search(_ context.Context, term string, limit int) []domain.Product {
	return searchIn(m.products, term, limit)
}

// searchIn 名称 / 描述 / 品牌 / 分类 / 标签的不区分大小写子串匹配，只看上架商品
func searchIn(all []domain.Product, term string, limit int) []domain.Product {
	term = strings.ToLower(strings.TrimSpace(term))
	out := []domain.Product{}
	if term == "" {
		return out
	}
	for i := range all {
		p := &all[i]
		if !p.IsActive || !matchesTerm(p, term) {
			continue
		}
		out = append(out, *p)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func matchesTerm(p *domain.Product, term string) bool {
	for _, s := range []string{p.Name, p.Description, p.Brand, p.Category, p.Subcategory, p.SKU} {
		if strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	for _, t := range p.Tags {
		if strings.Contains(strings.ToLower(t), term) {
			return true
		}
	}
	return false
}
