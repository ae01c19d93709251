package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTieredGetOrFetch(t *testing.T) {
	mr := newTestRedis(t)
	store := NewPersistent(NewRedis(mr.Addr(), "", 0), "sf:", "1")
	tc := NewTiered(NewMemory(time.Minute), store, nil)
	ctx := context.Background()

	calls := 0
	fetch := func(context.Context) ([]string, error) {
		calls++
		return []string{"Caps", "Hoodies"}, nil
	}
	v, err := GetOrFetch(ctx, tc, KeyAllCategories, time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, []string{"Caps", "Hoodies"}, v)
	assert.True(t, mr.Exists("sf:"+KeyAllCategories))

	// 新进程：内存为空，Redis 命中
	tc2 := NewTiered(NewMemory(time.Minute), store, nil)
	v, err = GetOrFetch(ctx, tc2, KeyAllCategories, time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, []string{"Caps", "Hoodies"}, v)
	assert.Equal(t, 1, calls)
	_, ok := tc2.Memory().Get(KeyAllCategories)
	assert.True(t, ok)
}

func TestTieredMemoryOnlyAndErrors(t *testing.T) {
	tc := NewTiered(NewMemory(time.Minute), nil, nil)
	ctx := context.Background()
	boom := errors.New("down")

	_, err := GetOrFetch(ctx, tc, "products:id:1", time.Minute, func(context.Context) (int, error) { return 0, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, tc.Memory().Len())

	tc.Set(ctx, "products:id:1", 7, time.Minute)
	tc.Set(ctx, "categories:active", 1, time.Minute)
	assert.Equal(t, 1, tc.InvalidatePattern(ctx, PatternProducts))
	assert.Equal(t, 1, tc.Memory().Len())
}

func TestKeyProductQueryStable(t *testing.T) {
	a := KeyProductQuery("Caps", true, 12)
	b := KeyProductQuery("Caps", true, 12)
	c := KeyProductQuery("Caps", false, 12)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, PatternProducts)
}

func TestTieredFetchRacingInvalidateIsNotCached(t *testing.T) {
	mr := newTestRedis(t)
	tc := NewTiered(NewMemory(time.Minute), NewPersistent(NewRedis(mr.Addr(), "", 0), "gen:", "1"), nil)
	ctx := context.Background()
	key := "products:list:x"

	calls := 0
	fetch := func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			// 回源还没返回时发生了写入
			tc.InvalidatePattern(ctx, "products:")
			return "before-write", nil
		}
		return "after-write", nil
	}
	v, err := GetOrFetch(ctx, tc, key, time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "before-write", v)
	_, ok := tc.Memory().Get(key)
	assert.False(t, ok)
	assert.False(t, mr.Exists("gen:"+key))

	v, err = GetOrFetch(ctx, tc, key, time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, "after-write", v)
	assert.Equal(t, 2, calls)
	_, ok = tc.Memory().Get(key)
	assert.True(t, ok)
}
