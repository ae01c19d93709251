package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, DefaultSort, ProductSort{}.Normalize())
	assert.Equal(t, DefaultSort, ProductSort{Field: "rating"}.Normalize())
	assert.Equal(t, ProductSort{Field: SortCreatedAt}, ProductSort{Field: "createdAt"}.Normalize())
	assert.Equal(t, ProductSort{Field: SortPrice, Desc: true}, ProductSort{Field: "PRICE", Desc: true}.Normalize())
}

func TestCompareTieBreaksOnID(t *testing.T) {
	a := &Product{ID: "a", Price: 5}
	b := &Product{ID: "b", Price: 5}
	asc := ProductSort{Field: SortPrice}
	desc := ProductSort{Field: SortPrice, Desc: true}
	assert.Equal(t, -1, asc.Compare(a, b))
	assert.Equal(t, 1, desc.Compare(a, b))
	assert.Equal(t, 0, asc.Compare(a, a))
}

func TestCursorRoundTrip(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 123456000, time.UTC)
	p := &Product{ID: "p1", CreatedAt: ts, Price: 9.5}

	s := ProductSort{Field: SortCreatedAt, Desc: true}
	c, err := DecodeCursor(CursorFor(s, p).Encode(), s)
	require.NoError(t, err)
	v, err := c.TypedValue()
	require.NoError(t, err)
	assert.True(t, v.(time.Time).Equal(ts))
	assert.Equal(t, "p1", c.ID)

	// 换排序字段后旧游标失效
	_, err = DecodeCursor(CursorFor(s, p).Encode(), ProductSort{Field: SortPrice})
	assert.ErrorIs(t, err, ErrBadCursor)

	_, err = DecodeCursor("%%%", s)
	assert.ErrorIs(t, err, ErrBadCursor)

	c, err = DecodeCursor("", s)
	assert.NoError(t, err)
	assert.Nil(t, c)
}

func TestCursorBefore(t *testing.T) {
	s := ProductSort{Field: SortPrice}
	c := CursorFor(s, &Product{ID: "m", Price: 10})
	assert.True(t, c.Before(s, &Product{ID: "z", Price: 9}))
	assert.True(t, c.Before(s, &Product{ID: "a", Price: 10}))
	assert.True(t, c.Before(s, &Product{ID: "m", Price: 10}))
	assert.False(t, c.Before(s, &Product{ID: "n", Price: 10}))
	assert.False(t, c.Before(s, &Product{ID: "a", Price: 11}))
}
