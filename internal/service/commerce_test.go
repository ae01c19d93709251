package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storefront/internal/core/apperr"
	"storefront/internal/core/auth"
	"storefront/internal/domain"
	"storefront/internal/repo"
)

type shop struct {
	db       *gorm.DB
	products *ProductService
	carts    *CartService
	wishes   *WishlistService
	orders   *OrderService
	addrs    *repo.AddressRepo
}

func newShop(t *testing.T) *shop {
	t.Helper()
	db := openDB(t)
	tiered := newTiered()
	products := NewProductService(zap.NewNop(), ProductServiceOpts{Repo: repo.NewProductRepo(db), Cache: tiered, TTL: time.Minute})
	carts := NewCartService(repo.NewCartRepo(db), products)
	addrs := repo.NewAddressRepo(db)
	return &shop{
		db:       db,
		products: products,
		carts:    carts,
		wishes:   NewWishlistService(repo.NewWishlistRepo(db), products, carts),
		addrs:    addrs,
		orders: NewOrderService(zap.NewNop(), OrderServiceOpts{
			Orders: repo.NewOrderRepo(db), Carts: repo.NewCartRepo(db), Products: products,
			Addresses: addrs, Users: repo.NewUserRepo(db), Cache: tiered,
		}),
	}
}

var testShipping = &domain.ShippingAddress{Name: "Ada", Line1: "1 Main St", City: "Springfield", Country: "US"}

func TestCartService_MergeAndStock(t *testing.T) {
	sh := newShop(t)
	seed(t, sh.db, "Caps", 2, nil) // 价格 20 / 21，库存 5
	ctx := context.Background()

	c, err := sh.carts.AddItem(ctx, "u1", AddItemInput{ProductID: "Caps-00", Quantity: 2, Size: "M"})
	require.NoError(t, err)
	c, err = sh.carts.AddItem(ctx, "u1", AddItemInput{ProductID: "Caps-00", Size: "M"})
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 3, c.Items[0].Quantity)

	c, err = sh.carts.AddItem(ctx, "u1", AddItemInput{ProductID: "Caps-00", Quantity: 1, Size: "L"})
	require.NoError(t, err)
	c, err = sh.carts.AddItem(ctx, "u1", AddItemInput{ProductID: "Caps-01", Quantity: 1})
	require.NoError(t, err)
	assert.Len(t, c.Items, 3)
	assert.Equal(t, 5, c.ItemCount)
	assert.InDelta(t, 20*4+21, c.Subtotal, 1e-9)

	_, err = sh.carts.AddItem(ctx, "u1", AddItemInput{ProductID: "Caps-00", Quantity: 3, Size: "M"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	c, err = sh.carts.UpdateQuantity(ctx, "u1", LineRef{ProductID: "Caps-00", Size: "L"}, 0)
	require.NoError(t, err)
	assert.Len(t, c.Items, 2)
	_, err = sh.carts.UpdateQuantity(ctx, "u1", LineRef{ProductID: "Caps-00", Size: "XL"}, 1)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = sh.carts.UpdateQuantity(ctx, "u1", LineRef{ProductID: "Caps-01"}, 6)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	require.NoError(t, sh.products.SetActive(ctx, "Caps-01", false))
	_, err = sh.carts.AddItem(ctx, "u1", AddItemInput{ProductID: "Caps-01"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	require.NoError(t, sh.carts.Clear(ctx, "u1"))
	c, err = sh.carts.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)
}

func TestWishlistService_ToggleAndMove(t *testing.T) {
	sh := newShop(t)
	seed(t, sh.db, "Caps", 2, nil)
	ctx := context.Background()

	w, in, err := sh.wishes.Toggle(ctx, "u1", "Caps-00")
	require.NoError(t, err)
	assert.True(t, in)
	w, err = sh.wishes.Add(ctx, "u1", "Caps-00")
	require.NoError(t, err)
	assert.Len(t, w.Items, 1)
	_, err = sh.wishes.Add(ctx, "u1", "Caps-01")
	require.NoError(t, err)

	_, in, err = sh.wishes.Toggle(ctx, "u1", "Caps-01")
	require.NoError(t, err)
	assert.False(t, in)

	c, w, err := sh.wishes.MoveToCart(ctx, "u1", "Caps-00", AddItemInput{Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, c.ItemCount)
	assert.Empty(t, w.Items)

	_, _, err = sh.wishes.MoveToCart(ctx, "u1", "Caps-00", AddItemInput{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = sh.wishes.Add(ctx, "u1", "ghost")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestOrderService_PlaceAndLifecycle(t *testing.T) {
	sh := newShop(t)
	seed(t, sh.db, "Caps", 2, nil)
	ctx := context.Background()

	_, err := sh.orders.PlaceOrder(ctx, "u1", PlaceOrderInput{Shipping: testShipping})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "empty cart")

	_, err = sh.carts.AddItem(ctx, "u1", AddItemInput{ProductID: "Caps-00", Quantity: 2})
	require.NoError(t, err)

	_, err = sh.orders.PlaceOrder(ctx, "u1", PlaceOrderInput{})
	assert.True(t, apperr.Is(err, apperr.KindValidation), "no address")

	// 加购后涨价，下单按当前价格
	_, err = sh.products.UpdateProduct(ctx, "Caps-00", &domain.Product{Name: "Caps 00", Price: 25, Category: "Caps", Stock: 5, IsActive: true})
	require.NoError(t, err)

	o, err := sh.orders.PlaceOrder(ctx, "u1", PlaceOrderInput{Shipping: testShipping, Note: "leave at door"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.InDelta(t, 50, o.Total, 1e-9)
	assert.Equal(t, 2, o.ItemCount)

	p, err := sh.products.GetProduct(ctx, "Caps-00")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
	c, err := sh.carts.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	_, err = sh.orders.Get(ctx, "u2", o.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	mine, total, err := sh.orders.Mine(ctx, "u1", 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, o.ID, mine[0].ID)

	_, err = sh.orders.UpdateStatus(ctx, o.ID, domain.OrderDelivered)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = sh.orders.CancelMine(ctx, "u2", o.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	cancelled, err := sh.orders.CancelMine(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, cancelled.Status)

	p, err = sh.products.GetProduct(ctx, "Caps-00")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock, "stock restored")
}

func TestOrderService_StockAndAddressBook(t *testing.T) {
	sh := newShop(t)
	seed(t, sh.db, "Caps", 1, nil)
	ctx := context.Background()

	addr := &domain.Address{ID: "a1", UserID: "u1", Label: "Home", Line1: "1 Main St", City: "Springfield", Country: "US"}
	require.NoError(t, sh.db.Create(addr).Error)

	_, err := sh.carts.AddItem(ctx, "u1", AddItemInput{ProductID: "Caps-00", Quantity: 4})
	require.NoError(t, err)
	// 另一个人先买走了
	_, err = sh.products.AdjustStock(ctx, "Caps-00", -3)
	require.NoError(t, err)

	_, err = sh.orders.PlaceOrder(ctx, "u1", PlaceOrderInput{AddressID: "a1"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	c, err := sh.carts.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, c.Items, 1, "cart kept on failure")

	_, err = sh.orders.PlaceOrder(ctx, "u2", PlaceOrderInput{AddressID: "a1"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "someone else's address")

	_, err = sh.carts.UpdateQuantity(ctx, "u1", LineRef{ProductID: "Caps-00"}, 2)
	require.NoError(t, err)
	o, err := sh.orders.PlaceOrder(ctx, "u1", PlaceOrderInput{AddressID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, "Springfield", o.Shipping.City)
}

func TestOrderService_UnlabelledAddressUsesProfileName(t *testing.T) {
	sh := newShop(t)
	seed(t, sh.db, "Caps", 1, nil)
	ctx := context.Background()

	require.NoError(t, sh.db.Create(&domain.User{
		ID: "u1", Email: "ada@example.com", PasswordHash: "x", FirstName: "Ada", LastName: "Lovelace",
		Role: domain.RoleCustomer, Status: domain.AccountActive,
	}).Error)
	require.NoError(t, sh.db.Create(&domain.Address{
		ID: "a1", UserID: "u1", Line1: "1 Main St", City: "Springfield", Country: "US",
	}).Error)
	require.NoError(t, sh.db.Create(&domain.Address{
		ID: "a2", UserID: "u1", Recipient: "Charles Babbage", Line1: "2 Main St", City: "Springfield", Country: "US",
	}).Error)

	_, err := sh.carts.AddItem(ctx, "u1", AddItemInput{ProductID: "Caps-00", Quantity: 1})
	require.NoError(t, err)
	o, err := sh.orders.PlaceOrder(ctx, "u1", PlaceOrderInput{AddressID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", o.Shipping.Name)

	_, err = sh.carts.AddItem(ctx, "u1", AddItemInput{ProductID: "Caps-00", Quantity: 1})
	require.NoError(t, err)
	o, err = sh.orders.PlaceOrder(ctx, "u1", PlaceOrderInput{AddressID: "a2"})
	require.NoError(t, err)
	assert.Equal(t, "Charles Babbage", o.Shipping.Name)
}

func TestDashboardService_Stats(t *testing.T) {
	sh := newShop(t)
	seed(t, sh.db, "Caps", 3, func(i int, p *domain.Product) { p.IsActive = i != 2 })
	ctx := context.Background()

	cats := NewCategoryService(zap.NewNop(), repo.NewCategoryRepo(sh.db), nil, nil, time.Minute)
	_, err := cats.Create(ctx, &domain.Category{Name: "Caps", IsActive: true})
	require.NoError(t, err)
	users := NewUserService(zap.NewNop(), repo.NewUserRepo(sh.db), auth.NewJWTer("k", "t", time.Hour))
	_, err = users.SignUp(ctx, SignUpInput{Email: "ada@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = sh.carts.AddItem(ctx, "u1", AddItemInput{ProductID: "Caps-01", Quantity: 1})
	require.NoError(t, err)
	o, err := sh.orders.PlaceOrder(ctx, "u1", PlaceOrderInput{Shipping: testShipping})
	require.NoError(t, err)
	for _, st := range []domain.OrderStatus{domain.OrderProcessing, domain.OrderShipped, domain.OrderDelivered} {
		_, err = sh.orders.UpdateStatus(ctx, o.ID, st)
		require.NoError(t, err)
	}

	stats, err := NewDashboardService(sh.products, cats, users, sh.orders, nil).Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, DashboardStats{
		Products: 3, ActiveProducts: 2, Categories: 1, Users: 1, Orders: 1, Revenue: 21,
	}, stats)
}
