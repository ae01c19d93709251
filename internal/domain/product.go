package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
)

type ProductStatus string

const (
	StatusNone ProductStatus = "none"
	StatusNew  ProductStatus = "new"
	StatusSale ProductStatus = "sale"
)

// Variant 按属性区分的子记录，如 {"size":"M","color":"black"}
type Variant struct {
	Attributes map[string]string `json:"attributes"`
	SKU        string            `json:"sku,omitempty"`
	Price      float64           `json:"price,omitempty" validate:"gte=0"`
	Stock      int               `json:"stock" validate:"gte=0"`
}

type Product struct {
	ID          string            `gorm:"primaryKey;size:32" json:"id"`
	Name        string            `gorm:"size:191;not null" json:"name" validate:"required,max=191"`
	Description string            `gorm:"type:text" json:"description"`
	Price       float64           `gorm:"not null;index" json:"price" validate:"gt=0"`
	Category    string            `gorm:"size:64;index" json:"category" validate:"required,max=64"`
	Subcategory string            `gorm:"size:64" json:"subcategory,omitempty"`
	Brand       string            `gorm:"size:64;index" json:"brand,omitempty"`
	SKU         string            `gorm:"size:64" json:"sku,omitempty"`
	Stock       int               `gorm:"not null" json:"stock" validate:"gte=0"`
	Images      []string          `gorm:"serializer:json;type:text" json:"images"`
	Tags        []string          `gorm:"serializer:json;type:text" json:"tags"`
	Featured    bool              `gorm:"index" json:"featured"`
	IsActive    bool              `gorm:"index" json:"isActive"`
	Status      ProductStatus     `gorm:"size:8" json:"status" validate:"omitempty,oneof=none new sale"`
	SEO         datatypes.JSONMap `json:"seo,omitempty"`
	Variants    []Variant         `gorm:"serializer:json;type:text" json:"variants,omitempty" validate:"dive"`
	CreatedBy   string            `gorm:"size:32" json:"createdBy,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

func (Product) TableName() string { return "products" }

// PrimaryImage 首图，没有则为空
func (p *Product) PrimaryImage() string {
	if len(p.Images) == 0 {
		return ""
	}
	return p.Images[0]
}

func (p *Product) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ProductFilter 等值 / 区间条件，零值表示不过滤
type ProductFilter struct {
	Category    string        `form:"category" json:"category,omitempty"`
	Subcategory string        `form:"subcategory" json:"subcategory,omitempty"`
	Brand       string        `form:"brand" json:"brand,omitempty"`
	MinPrice    *float64      `form:"minPrice" json:"minPrice,omitempty"`
	MaxPrice    *float64      `form:"maxPrice" json:"maxPrice,omitempty"`
	IsActive    *bool         `form:"isActive" json:"isActive,omitempty"`
	Featured    *bool         `form:"featured" json:"featured,omitempty"`
	Status      ProductStatus `form:"status" json:"status,omitempty"`
	Tag         string        `form:"tag" json:"tag,omitempty"`
}

// Match 内存侧的同一套过滤语义（mock / 预加载快照使用）
func (f ProductFilter) Match(p *Product) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Subcategory != "" && p.Subcategory != f.Subcategory {
		return false
	}
	if f.Brand != "" && p.Brand != f.Brand {
		return false
	}
	if f.MinPrice != nil && p.Price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && p.Price > *f.MaxPrice {
		return false
	}
	if f.IsActive != nil && p.IsActive != *f.IsActive {
		return false
	}
	if f.Featured != nil && p.Featured != *f.Featured {
		return false
	}
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Tag != "" && !p.HasTag(f.Tag) {
		return false
	}
	return true
}

// Pagination 游标分页；Cursor 为上一页返回的 NextCursor
type Pagination struct {
	PageSize int    `form:"pageSize" json:"pageSize"`
	Cursor   string `form:"cursor" json:"cursor,omitempty"`
}

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
)

func (p Pagination) Size() int {
	if p.PageSize <= 0 {
		return DefaultPageSize
	}
	if p.PageSize > MaxPageSize {
		return MaxPageSize
	}
	return p.PageSize
}

type ProductPage struct {
	Products   []Product `json:"products"`
	HasMore    bool      `json:"hasMore"`
	LastDoc    *Product  `json:"lastDoc,omitempty"`
	NextCursor string    `json:"nextCursor,omitempty"`
	Source     string    `json:"source,omitempty"`
}

// 数据来源
const (
	SourceStore = "store"
	SourceCache = "cache"
	SourceMock  = "mock"
)

// ProductQuery 仓储层查询（Limit 由服务层给出，通常是 pageSize+1）
type ProductQuery struct {
	Filter ProductFilter
	Sort   ProductSort
	After  *Cursor
	Limit  int
}

type ProductRepository interface {
	Create(ctx context.Context, p *Product) error
	FindByID(ctx context.Context, id string) (*Product, error)
	FindByIDs(ctx context.Context, ids []string) ([]Product, error)
	Query(ctx context.Context, q ProductQuery) ([]Product, error)
	Count(ctx context.Context, f ProductFilter) (int64, error)
	Update(ctx context.Context, p *Product) error
	UpdateFields(ctx context.Context, id string, fields map[string]any) error
	AdjustStock(ctx context.Context, id string, delta int) error
	Delete(ctx context.Context, id string) error
	DeleteByCategory(ctx context.Context, category string) (int64, error)
}
