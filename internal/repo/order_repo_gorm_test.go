package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront/internal/core/database/dbtest"
	"storefront/internal/domain"
)

func newOrder(id string, qty int) *domain.Order {
	items := []domain.LineItem{{ProductID: "p00", Name: "Product 00", Price: 10, Quantity: qty}}
	o := &domain.Order{ID: id, UserID: "u1", Items: items, Status: domain.OrderPending}
	o.ItemCount, o.Total = domain.Totals(items)
	return o
}

func TestOrderRepo_PlaceClearsCartAndDecrementsStock(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	seedProducts(t, db, 1, nil)
	carts := NewCartRepo(db)
	orders := NewOrderRepo(db)

	require.NoError(t, carts.Save(ctx, &domain.Cart{UserID: "u1", Items: []domain.LineItem{{ProductID: "p00", Price: 10, Quantity: 3}}}))
	require.NoError(t, orders.Place(ctx, newOrder("o1", 3)))

	p, err := NewProductRepo(db).FindByID(ctx, "p00")
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)

	c, err := carts.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	o, err := orders.FindByID(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, 30.0, o.Total)
}

func TestOrderRepo_PlaceRollsBackOnInsufficientStock(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	seedProducts(t, db, 1, nil)
	orders := NewOrderRepo(db)

	err := orders.Place(ctx, newOrder("o1", 11))
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	o, err := orders.FindByID(ctx, "o1")
	require.NoError(t, err)
	assert.Nil(t, o)
	p, _ := NewProductRepo(db).FindByID(ctx, "p00")
	assert.Equal(t, 10, p.Stock)
}

func TestOrderRepo_StatusAndRevenue(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	seedProducts(t, db, 1, nil)
	orders := NewOrderRepo(db)
	require.NoError(t, orders.Place(ctx, newOrder("o1", 2)))
	require.NoError(t, orders.Place(ctx, newOrder("o2", 1)))

	rev, err := orders.Revenue(ctx)
	require.NoError(t, err)
	assert.Zero(t, rev)

	// 状态已变，旧的 from 不再生效
	require.NoError(t, orders.UpdateStatus(ctx, "o1", domain.OrderPending, domain.OrderCancelled))
	assert.ErrorIs(t, orders.UpdateStatus(ctx, "o1", domain.OrderPending, domain.OrderProcessing), gorm.ErrRecordNotFound)

	p, _ := NewProductRepo(db).FindByID(ctx, "p00")
	assert.Equal(t, 9, p.Stock)

	list, total, err := orders.List(ctx, domain.OrderListQuery{UserID: "u1", Status: domain.OrderPending})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "o2", list[0].ID)

	require.NoError(t, orders.UpdateStatus(ctx, "o2", domain.OrderPending, domain.OrderProcessing))
	require.NoError(t, orders.UpdateStatus(ctx, "o2", domain.OrderProcessing, domain.OrderShipped))
	require.NoError(t, orders.UpdateStatus(ctx, "o2", domain.OrderShipped, domain.OrderDelivered))
	rev, err = orders.Revenue(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, rev, 0.001)
}
