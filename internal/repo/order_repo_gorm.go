package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"storefront/internal/domain"
)

type OrderRepo struct{ db *gorm.DB }

func NewOrderRepo(db *gorm.DB) *OrderRepo { return &OrderRepo{db: db} }

// Place 扣库存、写订单、清空购物车在同一事务里；任一步失败整体回滚
func (r *OrderRepo) Place(ctx context.Context, o *domain.Order) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, it := range o.Items {
			if err := adjustStock(tx, it.ProductID, -it.Quantity); err != nil {
				return err
			}
		}
		if err := tx.Create(o).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", o.UserID).Delete(&domain.Cart{}).Error
	})
}

func (r *OrderRepo) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	err := r.db.WithContext(ctx).First(&o, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *OrderRepo) List(ctx context.Context, q domain.OrderListQuery) ([]domain.Order, int64, error) {
	tx := r.db.WithContext(ctx).Model(&domain.Order{})
	if q.UserID != "" {
		tx = tx.Where("user_id = ?", q.UserID)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []domain.Order
	err := tx.Offset(max(0, q.Offset)).Limit(clampLimit(q.Limit, 20, 100)).
		Order("created_at desc").Order("id desc").Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// UpdateStatus 乐观校验：只有当前状态仍是 from 时才更新。
// 取消订单时把库存加回去。
func (r *OrderRepo) UpdateStatus(ctx context.Context, id string, from, to domain.OrderStatus) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Order{}).Where("id = ? AND status = ?", id, from).Update("status", to)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		if to != domain.OrderCancelled {
			return nil
		}
		var o domain.Order
		if err := tx.First(&o, "id = ?", id).Error; err != nil {
			return err
		}
		for _, it := range o.Items {
			err := adjustStock(tx, it.ProductID, it.Quantity)
			// 商品已被删除时跳过
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
		}
		return nil
	})
}

func (r *OrderRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Order{}).Count(&n).Error
	return n, err
}

// Revenue 只统计已送达的订单
func (r *OrderRepo) Revenue(ctx context.Context) (float64, error) {
	var sum float64
	err := r.db.WithContext(ctx).Model(&domain.Order{}).
		Where("status = ?", domain.OrderDelivered).
		Select("COALESCE(SUM(total), 0)").Scan(&sum).Error
	return sum, err
}
