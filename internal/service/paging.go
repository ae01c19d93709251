package service

import (
	"slices"

	"storefront/internal/domain"
)

// ProductListQuery 列表查询入参（来自 query string）
type ProductListQuery struct {
	Filter domain.ProductFilter
	Sort   domain.ProductSort
	Page   domain.Pagination
}

// pageOf 由 size+1 条结果得到一页；多出来的那条只用来判断 hasMore
func pageOf(rows []domain.Product, sort domain.ProductSort, size int, source string) domain.ProductPage {
	page := domain.ProductPage{Products: rows, Source: source}
	if len(rows) > size {
		page.Products = rows[:size]
		page.HasMore = true
	}
	if page.Products == nil {
		page.Products = []domain.Product{}
	}
	if n := len(page.Products); n > 0 {
		last := page.Products[n-1]
		page.LastDoc = &last
		if page.HasMore {
			page.NextCursor = domain.CursorFor(sort, &last).Encode()
		}
	}
	return page
}

// filterSorted 内存版的 过滤 + 排序 + 游标 + limit，语义和仓储层 SQL 一致
func filterSorted(all []domain.Product, q domain.ProductQuery) []domain.Product {
	sort := q.Sort.Normalize()
	out := make([]domain.Product, 0, len(all))
	for i := range all {
		if q.Filter.Match(&all[i]) {
			out = append(out, all[i])
		}
	}
	slices.SortStableFunc(out, func(a, b domain.Product) int { return sort.Compare(&a, &b) })
	if q.After != nil {
		i := 0
		for i < len(out) && q.After.Before(sort, &out[i]) {
			i++
		}
		out = out[i:]
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}
