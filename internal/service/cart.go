package service

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/core/apperr"
	"storefront/internal/domain"
)

// ProductLookup 加购 / 下单时取商品快照
type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

type AddItemInput struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

// LineRef 定位购物车里的一行
type LineRef struct {
	ProductID string `json:"productId" form:"productId"`
	Size      string `json:"size" form:"size"`
	Color     string `json:"color" form:"color"`
}

func (r LineRef) item() domain.LineItem {
	return domain.LineItem{ProductID: r.ProductID, Size: r.Size, Color: r.Color}
}

type CartService struct {
	carts    domain.CartRepository
	products ProductLookup
	now      func() time.Time
}

func NewCartService(carts domain.CartRepository, products ProductLookup) *CartService {
	return &CartService{carts: carts, products: products, now: time.Now}
}

func (s *CartService) Get(ctx context.Context, uid string) (*domain.Cart, error) {
	c, err := s.carts.Get(ctx, uid)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	c.Recalculate()
	return c, nil
}

// snapshot 上架商品的名称 / 首图 / 价格快照
func snapshot(ctx context.Context, products ProductLookup, id string, now time.Time) (domain.LineItem, *domain.Product, error) {
	p, err := products.GetProduct(ctx, id)
	if err != nil {
		return domain.LineItem{}, nil, err
	}
	if !p.IsActive {
		return domain.LineItem{}, nil, apperr.Validation(p.Name + " is no longer available")
	}
	return domain.LineItem{ProductID: p.ID, Name: p.Name, Image: p.PrimaryImage(), Price: p.Price, AddedAt: now.UTC()}, p, nil
}

// AddItem 同商品同规格合并数量，总数不超过库存
func (s *CartService) AddItem(ctx context.Context, uid string, in AddItemInput) (*domain.Cart, error) {
	if in.ProductID == "" {
		return nil, apperr.Validation("productId is required")
	}
	if in.Quantity <= 0 {
		in.Quantity = 1
	}
	line, p, err := snapshot(ctx, s.products, in.ProductID, s.now())
	if err != nil {
		return nil, err
	}
	line.Quantity, line.Size, line.Color = in.Quantity, in.Size, in.Color

	c, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	merged := false
	for i := range c.Items {
		if c.Items[i].SameLine(line) {
			c.Items[i].Quantity += line.Quantity
			c.Items[i].Price, c.Items[i].Name, c.Items[i].Image = line.Price, line.Name, line.Image
			line = c.Items[i]
			merged = true
			break
		}
	}
	if !merged {
		c.Items = append(c.Items, line)
	}
	if line.Quantity > p.Stock {
		return nil, apperr.Validation(fmt.Sprintf("only %d of %s left in stock", p.Stock, p.Name))
	}
	return s.save(ctx, c)
}

// UpdateQuantity 数量 <= 0 等同删除
func (s *CartService) UpdateQuantity(ctx context.Context, uid string, ref LineRef, qty int) (*domain.Cart, error) {
	if qty <= 0 {
		return s.RemoveItem(ctx, uid, ref)
	}
	c, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	idx := indexOf(c.Items, ref.item())
	if idx < 0 {
		return nil, apperr.NotFound("Item is not in your cart.")
	}
	p, err := s.products.GetProduct(ctx, ref.ProductID)
	if err != nil {
		return nil, err
	}
	if qty > p.Stock {
		return nil, apperr.Validation(fmt.Sprintf("only %d of %s left in stock", p.Stock, p.Name))
	}
	c.Items[idx].Quantity = qty
	return s.save(ctx, c)
}

func (s *CartService) RemoveItem(ctx context.Context, uid string, ref LineRef) (*domain.Cart, error) {
	c, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	idx := indexOf(c.Items, ref.item())
	if idx < 0 {
		return c, nil
	}
	c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
	return s.save(ctx, c)
}

func (s *CartService) Clear(ctx context.Context, uid string) error {
	if err := s.carts.Delete(ctx, uid); err != nil {
		return apperr.Classify(err)
	}
	return nil
}

func (s *CartService) save(ctx context.Context, c *domain.Cart) (*domain.Cart, error) {
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, apperr.Classify(err)
	}
	return c, nil
}

func indexOf(items []domain.LineItem, it domain.LineItem) int {
	for i := range items {
		if items[i].SameLine(it) {
			return i
		}
	}
	return -1
}
