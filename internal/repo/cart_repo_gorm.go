package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/domain"
)

type CartRepo struct{ db *gorm.DB }

func NewCartRepo(db *gorm.DB) *CartRepo { return &CartRepo{db: db} }

// Get 不存在时返回空购物车
func (r *CartRepo) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	c := domain.Cart{UserID: userID}
	err := r.db.WithContext(ctx).First(&c, "user_id = ?", userID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if c.Items == nil {
		c.Items = []domain.LineItem{}
	}
	return &c, nil
}

func (r *CartRepo) Save(ctx context.Context, c *domain.Cart) error {
	c.Recalculate()
	return upsert(r.db.WithContext(ctx), c, "items", "item_count", "subtotal", "updated_at")
}

func (r *CartRepo) Delete(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.Cart{}).Error
}

type WishlistRepo struct{ db *gorm.DB }

func NewWishlistRepo(db *gorm.DB) *WishlistRepo { return &WishlistRepo{db: db} }

func (r *WishlistRepo) Get(ctx context.Context, userID string) (*domain.Wishlist, error) {
	w := domain.Wishlist{UserID: userID}
	err := r.db.WithContext(ctx).First(&w, "user_id = ?", userID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if w.Items == nil {
		w.Items = []domain.LineItem{}
	}
	return &w, nil
}

func (r *WishlistRepo) Save(ctx context.Context, w *domain.Wishlist) error {
	w.Recalculate()
	return upsert(r.db.WithContext(ctx), w, "items", "item_count", "total_value", "updated_at")
}

func (r *WishlistRepo) Delete(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.Wishlist{}).Error
}

// upsert 按 user_id 覆盖写
func upsert(db *gorm.DB, v any, cols ...string) error {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(v).Error
}
