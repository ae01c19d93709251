package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/domain"
)

type ProductRepo struct{ db *gorm.DB }

func NewProductRepo(db *gorm.DB) *ProductRepo { return &ProductRepo{db: db} }

func (r *ProductRepo) Create(ctx context.Context, p *domain.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *ProductRepo) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *ProductRepo) FindByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	var ps []domain.Product
	if len(ids) == 0 {
		return ps, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&ps).Error
	return ps, err
}

// applyFilter 等值 / 区间条件；标签按 JSON 文本包含匹配
func applyFilter(q *gorm.DB, f domain.ProductFilter) *gorm.DB {
	if f.Category != "" {
		q = q.Where("category = ?", f.Category)
	}
	if f.Subcategory != "" {
		q = q.Where("subcategory = ?", f.Subcategory)
	}
	if f.Brand != "" {
		q = q.Where("brand = ?", f.Brand)
	}
	if f.MinPrice != nil {
		q = q.Where("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		q = q.Where("price <= ?", *f.MaxPrice)
	}
	if f.IsActive != nil {
		q = q.Where("is_active = ?", *f.IsActive)
	}
	if f.Featured != nil {
		q = q.Where("featured = ?", *f.Featured)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Tag != "" {
		q = q.Where("tags LIKE ?", "%"+jsonQuoted(f.Tag)+"%")
	}
	return q
}

func (r *ProductRepo) Query(ctx context.Context, pq domain.ProductQuery) ([]domain.Product, error) {
	s := pq.Sort.Normalize()
	col := string(s.Field)
	q := applyFilter(r.db.WithContext(ctx).Model(&domain.Product{}), pq.Filter)

	if pq.After != nil {
		v, err := pq.After.TypedValue()
		if err != nil {
			return nil, err
		}
		op := ">"
		if s.Desc {
			op = "<"
		}
		q = q.Where(fmt.Sprintf("(%s %s ?) OR (%s = ? AND id %s ?)", col, op, col, op), v, v, pq.After.ID)
	}
	q = q.Order(clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: s.Desc}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}, Desc: s.Desc})
	if pq.Limit > 0 {
		q = q.Limit(pq.Limit)
	}
	var ps []domain.Product
	if err := q.Find(&ps).Error; err != nil {
		return nil, err
	}
	return ps, nil
}

func (r *ProductRepo) Count(ctx context.Context, f domain.ProductFilter) (int64, error) {
	var n int64
	err := applyFilter(r.db.WithContext(ctx).Model(&domain.Product{}), f).Count(&n).Error
	return n, err
}

func (r *ProductRepo) Update(ctx context.Context, p *domain.Product) error {
	res := r.db.WithContext(ctx).Model(p).Select("*").Omit("created_at", "created_by").Updates(p)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ProductRepo) UpdateFields(ctx context.Context, id string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.Product{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AdjustStock 原子增减库存，不允许减到负数
func (r *ProductRepo) AdjustStock(ctx context.Context, id string, delta int) error {
	return adjustStock(r.db.WithContext(ctx), id, delta)
}

func adjustStock(tx *gorm.DB, id string, delta int) error {
	res := tx.Model(&domain.Product{}).
		Where("id = ? AND stock + ? >= 0", id, delta).
		Update("stock", gorm.Expr("stock + ?", delta))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var n int64
		if err := tx.Model(&domain.Product{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return gorm.ErrRecordNotFound
		}
		return domain.ErrInsufficientStock
	}
	return nil
}

func (r *ProductRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *ProductRepo) DeleteByCategory(ctx context.Context, category string) (int64, error) {
	res := r.db.WithContext(ctx).Where("category = ?", category).Delete(&domain.Product{})
	return res.RowsAffected, res.Error
}
