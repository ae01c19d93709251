package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// LineItem 下单 / 加购时的商品快照
type LineItem struct {
	ProductID string    `json:"productId" validate:"required"`
	Name      string    `json:"name"`
	Image     string    `json:"image,omitempty"`
	Price     float64   `json:"price" validate:"gte=0"`
	Quantity  int       `json:"quantity" validate:"gte=1"`
	Size      string    `json:"size,omitempty"`
	Color     string    `json:"color,omitempty"`
	AddedAt   time.Time `json:"addedAt"`
}

// SameLine 同一商品同一尺码颜色合并为一行
func (l LineItem) SameLine(o LineItem) bool {
	return l.ProductID == o.ProductID && l.Size == o.Size && l.Color == o.Color
}

func (l LineItem) LineTotal() decimal.Decimal {
	return decimal.NewFromFloat(l.Price).Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Totals 按快照价格汇总（两位小数）
func Totals(items []LineItem) (count int, amount float64) {
	sum := decimal.Zero
	for _, it := range items {
		count += it.Quantity
		sum = sum.Add(it.LineTotal())
	}
	amount, _ = sum.Round(2).Float64()
	return count, amount
}

type Cart struct {
	UserID    string     `gorm:"primaryKey;size:32" json:"userId"`
	Items     []LineItem `gorm:"serializer:json;type:text" json:"items"`
	ItemCount int        `json:"itemCount"`
	Subtotal  float64    `json:"subtotal"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

func (Cart) TableName() string { return "carts" }

func (c *Cart) Recalculate() { c.ItemCount, c.Subtotal = Totals(c.Items) }

type Wishlist struct {
	UserID     string     `gorm:"primaryKey;size:32" json:"userId"`
	Items      []LineItem `gorm:"serializer:json;type:text" json:"items"`
	ItemCount  int        `json:"itemCount"`
	TotalValue float64    `json:"totalValue"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

func (Wishlist) TableName() string { return "wishlists" }

func (w *Wishlist) Recalculate() { w.ItemCount, w.TotalValue = Totals(w.Items) }

type CartRepository interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, userID string) error
}

type WishlistRepository interface {
	Get(ctx context.Context, userID string) (*Wishlist, error)
	Save(ctx context.Context, w *Wishlist) error
	Delete(ctx context.Context, userID string) error
}
