package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	"storefront/internal/service"
	"storefront/internal/transport/http/ez"
)

// Shopping 购物车 / 收藏 / 订单，全部要求登录
type Shopping struct {
	cart     *service.CartService
	wishlist *service.WishlistService
	orders   *service.OrderService
	auth     gin.HandlerFunc
}

func NewShopping(cart *service.CartService, wl *service.WishlistService, orders *service.OrderService, auth gin.HandlerFunc) *Shopping {
	return &Shopping{cart: cart, wishlist: wl, orders: orders, auth: auth}
}

func (h *Shopping) Priority() int { return 30 }

type quantityIn struct {
	service.LineRef
	Quantity int `json:"quantity"`
}

type productRefIn struct {
	ProductID string `json:"productId"`
}

func (h *Shopping) MountAPI(g *gin.RouterGroup) {
	e := ez.New(g.Group("", h.auth))

	// 购物车
	e.GET("/cart", func(c *gin.Context) (any, error) {
		return h.cart.Get(c.Request.Context(), uid(c))
	})
	ez.POST(e, "/cart/items", func(c *gin.Context, in service.AddItemInput) (any, error) {
		return h.cart.AddItem(c.Request.Context(), uid(c), in)
	})
	ez.PUT(e, "/cart/items", func(c *gin.Context, in quantityIn) (any, error) {
		return h.cart.UpdateQuantity(c.Request.Context(), uid(c), in.LineRef, in.Quantity)
	})
	e.DELETE("/cart/items", func(c *gin.Context) (any, error) {
		ref := service.LineRef{ProductID: c.Query("productId"), Size: c.Query("size"), Color: c.Query("color")}
		return h.cart.RemoveItem(c.Request.Context(), uid(c), ref)
	})
	e.DELETE("/cart", func(c *gin.Context) (any, error) {
		return gin.H{"cleared": true}, h.cart.Clear(c.Request.Context(), uid(c))
	})

	// 收藏
	e.GET("/wishlist", func(c *gin.Context) (any, error) {
		return h.wishlist.Get(c.Request.Context(), uid(c))
	})
	ez.POST(e, "/wishlist/items", func(c *gin.Context, in productRefIn) (any, error) {
		return h.wishlist.Add(c.Request.Context(), uid(c), in.ProductID)
	})
	ez.POST(e, "/wishlist/toggle", func(c *gin.Context, in productRefIn) (any, error) {
		w, added, err := h.wishlist.Toggle(c.Request.Context(), uid(c), in.ProductID)
		if err != nil {
			return nil, err
		}
		return gin.H{"wishlist": w, "added": added}, nil
	})
	e.DELETE("/wishlist/items/:productId", func(c *gin.Context) (any, error) {
		return h.wishlist.Remove(c.Request.Context(), uid(c), c.Param("productId"))
	})
	e.DELETE("/wishlist", func(c *gin.Context) (any, error) {
		return gin.H{"cleared": true}, h.wishlist.Clear(c.Request.Context(), uid(c))
	})
	ez.POST(e, "/wishlist/items/:productId/move-to-cart", func(c *gin.Context, in service.AddItemInput) (any, error) {
		in.ProductID = c.Param("productId")
		cart, w, err := h.wishlist.MoveToCart(c.Request.Context(), uid(c), in.ProductID, in)
		if err != nil {
			return nil, err
		}
		return gin.H{"cart": cart, "wishlist": w}, nil
	})

	// 订单
	ez.POST(e, "/orders", func(c *gin.Context, in service.PlaceOrderInput) (any, error) {
		return h.orders.PlaceOrder(c.Request.Context(), uid(c), in)
	})
	e.GET("/orders", func(c *gin.Context) (any, error) {
		items, total, err := h.orders.Mine(c.Request.Context(), uid(c), queryInt(c, "offset", 0), queryInt(c, "limit", 20))
		if err != nil {
			return nil, err
		}
		return listOf[domain.Order](items, total), nil
	})
	e.GET("/orders/:id", func(c *gin.Context) (any, error) {
		return h.orders.Get(c.Request.Context(), uid(c), c.Param("id"))
	})
	ez.RegisterAction(e, ez.Action[struct{}, *domain.Order]{
		Method: http.MethodPost,
		Path:   "/orders/:id/cancel",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.Order, error) {
			return h.orders.CancelMine(c.Request.Context(), uid(c), c.Param("id"))
		},
	})
}
