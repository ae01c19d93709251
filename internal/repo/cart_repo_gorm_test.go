package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/core/database/dbtest"
	"storefront/internal/domain"
)

func TestCartRepo_SaveOverwritesAndTotals(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	r := NewCartRepo(db)

	c, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, c.Items)

	c.Items = append(c.Items, domain.LineItem{ProductID: "p1", Price: 19.99, Quantity: 2})
	require.NoError(t, r.Save(ctx, c))
	c.Items = append(c.Items, domain.LineItem{ProductID: "p2", Price: 0.1, Quantity: 3})
	require.NoError(t, r.Save(ctx, c))

	got, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
	assert.Equal(t, 5, got.ItemCount)
	assert.Equal(t, 40.28, got.Subtotal)

	require.NoError(t, r.Delete(ctx, "u1"))
	got, err = r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.Items)
}

func TestWishlistRepo_Save(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	r := NewWishlistRepo(db)
	w, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	w.Items = []domain.LineItem{{ProductID: "p1", Price: 5, Quantity: 1}}
	require.NoError(t, r.Save(ctx, w))
	got, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5.0, got.TotalValue)
}
