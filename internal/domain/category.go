package domain

import (
	"context"
	"time"
)

type Category struct {
	ID          string    `gorm:"primaryKey;size:32" json:"id"`
	Name        string    `gorm:"size:64;not null;index" json:"name" validate:"required,max=64"`
	Description string    `gorm:"size:512" json:"description" validate:"max=512"`
	IsActive    bool      `gorm:"index" json:"isActive"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (Category) TableName() string { return "categories" }

type CategoryRepository interface {
	Create(ctx context.Context, c *Category) error
	FindByID(ctx context.Context, id string) (*Category, error)
	FindActiveByName(ctx context.Context, name string) (*Category, error)
	List(ctx context.Context, activeOnly bool) ([]Category, error)
	Update(ctx context.Context, c *Category) error
	Count(ctx context.Context) (int64, error)
	// DeleteCascade 硬删除分类及其下所有商品，返回删除的商品数
	DeleteCascade(ctx context.Context, id string) (int64, error)
}
