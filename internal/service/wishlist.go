package service

import (
	"context"
	"time"

	"storefront/internal/core/apperr"
	"storefront/internal/domain"
)

type WishlistService struct {
	lists    domain.WishlistRepository
	products ProductLookup
	cart     *CartService
	now      func() time.Time
}

func NewWishlistService(lists domain.WishlistRepository, products ProductLookup, cart *CartService) *WishlistService {
	return &WishlistService{lists: lists, products: products, cart: cart, now: time.Now}
}

func (s *WishlistService) Get(ctx context.Context, uid string) (*domain.Wishlist, error) {
	w, err := s.lists.Get(ctx, uid)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	w.Recalculate()
	return w, nil
}

// Add 已在心愿单里则不重复添加
func (s *WishlistService) Add(ctx context.Context, uid, productID string) (*domain.Wishlist, error) {
	w, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	if s.find(w, productID) >= 0 {
		return w, nil
	}
	line, _, err := snapshot(ctx, s.products, productID, s.now())
	if err != nil {
		return nil, err
	}
	line.Quantity = 1
	w.Items = append(w.Items, line)
	return s.save(ctx, w)
}

func (s *WishlistService) Remove(ctx context.Context, uid, productID string) (*domain.Wishlist, error) {
	w, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	i := s.find(w, productID)
	if i < 0 {
		return w, nil
	}
	w.Items = append(w.Items[:i], w.Items[i+1:]...)
	return s.save(ctx, w)
}

// Toggle 返回操作后是否在心愿单中
func (s *WishlistService) Toggle(ctx context.Context, uid, productID string) (*domain.Wishlist, bool, error) {
	w, err := s.Get(ctx, uid)
	if err != nil {
		return nil, false, err
	}
	if s.find(w, productID) >= 0 {
		w, err = s.Remove(ctx, uid, productID)
		return w, false, err
	}
	w, err = s.Add(ctx, uid, productID)
	return w, err == nil, err
}

func (s *WishlistService) Clear(ctx context.Context, uid string) error {
	if err := s.lists.Delete(ctx, uid); err != nil {
		return apperr.Classify(err)
	}
	return nil
}

// MoveToCart 加入购物车成功后才从心愿单移除
func (s *WishlistService) MoveToCart(ctx context.Context, uid, productID string, in AddItemInput) (*domain.Cart, *domain.Wishlist, error) {
	w, err := s.Get(ctx, uid)
	if err != nil {
		return nil, nil, err
	}
	if s.find(w, productID) < 0 {
		return nil, nil, apperr.NotFound("Item is not in your wishlist.")
	}
	in.ProductID = productID
	c, err := s.cart.AddItem(ctx, uid, in)
	if err != nil {
		return nil, nil, err
	}
	w, err = s.Remove(ctx, uid, productID)
	if err != nil {
		return nil, nil, err
	}
	return c, w, nil
}

func (s *WishlistService) find(w *domain.Wishlist, productID string) int {
	for i := range w.Items {
		if w.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

func (s *WishlistService) save(ctx context.Context, w *domain.Wishlist) (*domain.Wishlist, error) {
	if err := s.lists.Save(ctx, w); err != nil {
		return nil, apperr.Classify(err)
	}
	return w, nil
}
