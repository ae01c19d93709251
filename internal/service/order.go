package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"storefront/internal/core/apperr"
	"storefront/internal/core/cache"
	"storefront/internal/core/validate"
	"storefront/internal/domain"
	"storefront/pkg/utils"
)

type PlaceOrderInput struct {
	AddressID string                  `json:"addressId"`
	Shipping  *domain.ShippingAddress `json:"shipping"`
	Note      string                  `json:"note" validate:"max=512"`
}

// AddressLookup 用地址簿里的地址下单
type AddressLookup interface {
	FindOwned(ctx context.Context, userID, id string) (*domain.Address, error)
}

// ProfileLookup 地址没有收件人时取账号姓名
type ProfileLookup interface {
	FindByID(ctx context.Context, id string) (*domain.User, error)
}

type OrderService struct {
	orders    domain.OrderRepository
	carts     domain.CartRepository
	products  ProductLookup
	addresses AddressLookup
	users     ProfileLookup
	cache     *cache.Tiered
	errs      *ErrorService
	log       *zap.Logger
	now       func() time.Time
}

type OrderServiceOpts struct {
	Orders    domain.OrderRepository
	Carts     domain.CartRepository
	Products  ProductLookup
	Addresses AddressLookup
	Users     ProfileLookup // 可为空
	Cache     *cache.Tiered
	Errors    *ErrorService
}

func NewOrderService(l *zap.Logger, o OrderServiceOpts) *OrderService {
	if l == nil {
		l = zap.NewNop()
	}
	if o.Errors == nil {
		o.Errors = NewErrorService(l, ErrorServiceOpts{})
	}
	return &OrderService{
		orders: o.Orders, carts: o.Carts, products: o.Products, addresses: o.Addresses, users: o.Users,
		cache: o.Cache, errs: o.Errors, log: l, now: time.Now,
	}
}

// PlaceOrder 以当前价格重新快照购物车；扣库存、写订单、清空购物车在同一事务里
func (s *OrderService) PlaceOrder(ctx context.Context, uid string, in PlaceOrderInput) (*domain.Order, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	ship, err := s.shippingFor(ctx, uid, in)
	if err != nil {
		return nil, err
	}
	cart, err := s.carts.Get(ctx, uid)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	if len(cart.Items) == 0 {
		return nil, apperr.Validation("cart is empty")
	}

	now := s.now()
	items := make([]domain.LineItem, 0, len(cart.Items))
	for _, it := range cart.Items {
		line, _, err := snapshot(ctx, s.products, it.ProductID, now)
		if err != nil {
			return nil, err
		}
		line.Quantity, line.Size, line.Color = it.Quantity, it.Size, it.Color
		items = append(items, line)
	}
	o := &domain.Order{
		ID:       utils.NewID(),
		UserID:   uid,
		Items:    items,
		Status:   domain.OrderPending,
		Shipping: ship,
		Note:     in.Note,
	}
	o.ItemCount, o.Total = domain.Totals(items)
	if err := validate.Struct(o); err != nil {
		return nil, err
	}

	if err := s.orders.Place(ctx, o); err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			return nil, apperr.Validation("some items no longer have enough stock")
		}
		if errors.Is(err, gormNotFound) {
			return nil, apperr.Validation("some items are no longer available")
		}
		return nil, s.errs.Report(ctx, "placeOrder", err, map[string]any{"uid": uid}, domain.SeverityHigh)
	}
	s.stockChanged(ctx)
	s.log.Info("order placed", zap.String("order", o.ID), zap.String("uid", uid), zap.Float64("total", o.Total))
	return o, nil
}

func (s *OrderService) shippingFor(ctx context.Context, uid string, in PlaceOrderInput) (*domain.ShippingAddress, error) {
	if in.AddressID != "" && s.addresses != nil {
		a, err := s.addresses.FindOwned(ctx, uid, in.AddressID)
		if err != nil {
			return nil, apperr.Classify(err)
		}
		if a == nil {
			return nil, apperr.NotFound("Address not found.")
		}
		name, err := s.recipientFor(ctx, uid, a)
		if err != nil {
			return nil, err
		}
		return &domain.ShippingAddress{
			Name: name, Line1: a.Line1, Line2: a.Line2, City: a.City,
			State: a.State, PostalCode: a.PostalCode, Country: a.Country, Phone: a.Phone,
		}, nil
	}
	if in.Shipping == nil {
		return nil, apperr.Validation("shipping address is required")
	}
	if err := validate.Struct(in.Shipping); err != nil {
		return nil, err
	}
	return in.Shipping, nil
}

// recipientFor 收件人：地址上的 > 账号姓名 > 邮箱 > 地址标签
func (s *OrderService) recipientFor(ctx context.Context, uid string, a *domain.Address) (string, error) {
	if n := strings.TrimSpace(a.Recipient); n != "" {
		return n, nil
	}
	if s.users != nil {
		u, err := s.users.FindByID(ctx, uid)
		if err != nil {
			return "", apperr.Classify(err)
		}
		if u != nil {
			if n := u.FullName(); n != "" {
				return n, nil
			}
			if u.Email != "" {
				return u.Email, nil
			}
		}
	}
	if n := strings.TrimSpace(a.Label); n != "" {
		return n, nil
	}
	return "", apperr.Validation("recipient is required for this address")
}

func (s *OrderService) Mine(ctx context.Context, uid string, offset, limit int) ([]domain.Order, int64, error) {
	return s.List(ctx, domain.OrderListQuery{UserID: uid, Offset: offset, Limit: limit})
}

func (s *OrderService) List(ctx context.Context, q domain.OrderListQuery) ([]domain.Order, int64, error) {
	if q.Status != "" && !q.Status.Valid() {
		return nil, 0, apperr.Validation("status is not a valid order status")
	}
	orders, total, err := s.orders.List(ctx, q)
	if err != nil {
		return nil, 0, apperr.Classify(err)
	}
	return orders, total, nil
}

// Get uid 为空表示后台查看，不校验归属
func (s *OrderService) Get(ctx context.Context, uid, id string) (*domain.Order, error) {
	o, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	if o == nil || (uid != "" && o.UserID != uid) {
		return nil, apperr.NotFound("Order not found.")
	}
	return o, nil
}

// UpdateStatus 只允许合法的状态流转；并发修改时返回冲突
func (s *OrderService) UpdateStatus(ctx context.Context, id string, to domain.OrderStatus) (*domain.Order, error) {
	if !to.Valid() {
		return nil, apperr.Validation("status is not a valid order status")
	}
	o, err := s.Get(ctx, "", id)
	if err != nil {
		return nil, err
	}
	if !o.Status.CanTransition(to) {
		return nil, apperr.Validation("order cannot move from " + string(o.Status) + " to " + string(to))
	}
	if err := s.orders.UpdateStatus(ctx, id, o.Status, to); err != nil {
		if errors.Is(err, gormNotFound) {
			return nil, apperr.Conflict("The order was changed by someone else. Reload and try again.")
		}
		return nil, s.errs.Report(ctx, "updateOrderStatus", err, map[string]any{"id": id, "to": to}, domain.SeverityHigh)
	}
	if to == domain.OrderCancelled {
		s.stockChanged(ctx)
	}
	o.Status = to
	return o, nil
}

// CancelMine 用户只能取消自己未发货的订单
func (s *OrderService) CancelMine(ctx context.Context, uid, id string) (*domain.Order, error) {
	if _, err := s.Get(ctx, uid, id); err != nil {
		return nil, err
	}
	return s.UpdateStatus(ctx, id, domain.OrderCancelled)
}

func (s *OrderService) Count(ctx context.Context) (int64, error) {
	n, err := s.orders.Count(ctx)
	if err != nil {
		return 0, apperr.Classify(err)
	}
	return n, nil
}

func (s *OrderService) Revenue(ctx context.Context) (float64, error) {
	v, err := s.orders.Revenue(ctx)
	if err != nil {
		return 0, apperr.Classify(err)
	}
	return v, nil
}

// stockChanged 库存变了，商品缓存作废
func (s *OrderService) stockChanged(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidatePattern(ctx, cache.PatternProducts)
	}
}
