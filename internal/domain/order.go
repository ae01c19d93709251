package domain

import (
	"context"
	"errors"
	"time"
)

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderProcessing, OrderCancelled},
	OrderProcessing: {OrderShipped, OrderCancelled},
	OrderShipped:    {OrderDelivered},
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderProcessing, OrderShipped, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, n := range orderTransitions[s] {
		if n == to {
			return true
		}
	}
	return false
}

// ShippingAddress 下单时的地址快照
type ShippingAddress struct {
	Name       string `json:"name" validate:"required"`
	Line1      string `json:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country" validate:"required"`
	Phone      string `json:"phone,omitempty"`
}

type Order struct {
	ID        string           `gorm:"primaryKey;size:32" json:"id"`
	UserID    string           `gorm:"index;size:32;not null" json:"userId"`
	Items     []LineItem       `gorm:"serializer:json;type:text" json:"items" validate:"required,min=1,dive"`
	ItemCount int              `json:"itemCount"`
	Total     float64          `json:"total"`
	Status    OrderStatus      `gorm:"size:16;index;not null" json:"status"`
	Shipping  *ShippingAddress `gorm:"serializer:json;type:text" json:"shipping,omitempty"`
	Note      string           `gorm:"size:512" json:"note,omitempty"`
	CreatedAt time.Time        `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

func (Order) TableName() string { return "orders" }

var ErrInsufficientStock = errors.New("insufficient stock")

type OrderListQuery struct {
	UserID string
	Status OrderStatus
	Offset int
	Limit  int
}

type OrderRepository interface {
	// Place 同一事务内：扣库存、写订单、清空购物车
	Place(ctx context.Context, o *Order) error
	FindByID(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, q OrderListQuery) ([]Order, int64, error)
	UpdateStatus(ctx context.Context, id string, from, to OrderStatus) error
	Count(ctx context.Context) (int64, error)
	Revenue(ctx context.Context) (float64, error)
}
