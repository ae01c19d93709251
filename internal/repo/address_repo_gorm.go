package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"storefront/internal/domain"
)

// AddressRepo 地址簿的增删改查走通用 CRUD，这里只放下单和默认地址要用的查询
type AddressRepo struct{ db *gorm.DB }

func NewAddressRepo(db *gorm.DB) *AddressRepo { return &AddressRepo{db: db} }

func (r *AddressRepo) FindOwned(ctx context.Context, userID, id string) (*domain.Address, error) {
	var a domain.Address
	err := r.db.WithContext(ctx).First(&a, "id = ? AND user_id = ?", id, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ClearDefault 取消用户其余地址的默认标记
func (r *AddressRepo) ClearDefault(ctx context.Context, userID, exceptID string) error {
	return r.db.WithContext(ctx).Model(&domain.Address{}).
		Where("user_id = ? AND id <> ? AND is_default = ?", userID, exceptID, true).
		Update("is_default", false).Error
}
