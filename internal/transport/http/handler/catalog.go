package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/core/apperr"
	"storefront/internal/domain"
	"storefront/internal/service"
	"storefront/internal/transport/http/ez"
)

var responsiveWidths = []int{320, 640, 960, 1280}

// 下架商品对前台等同不存在
var errProductGone = apperr.NotFound("Product not found")

// Catalog 前台商品 / 分类浏览，全部匿名可访问
type Catalog struct {
	products   *service.ProductService
	categories *service.CategoryService
	preloader  *service.Preloader
	images     *service.ImageService
}

func NewCatalog(p *service.ProductService, c *service.CategoryService, pre *service.Preloader, img *service.ImageService) *Catalog {
	return &Catalog{products: p, categories: c, preloader: pre, images: img}
}

func (h *Catalog) Priority() int { return 10 }

// productListIn 查询串：过滤 + 排序 + 分页
type productListIn struct {
	domain.ProductFilter
	domain.ProductSort
	domain.Pagination
}

func (in productListIn) query() service.ProductListQuery {
	return service.ProductListQuery{Filter: in.ProductFilter, Sort: in.ProductSort, Page: in.Pagination}
}

func (h *Catalog) MountAPI(g *gin.RouterGroup) {
	e := ez.New(g)

	ez.RegisterAction(e, ez.Action[productListIn, domain.ProductPage]{
		Method: http.MethodGet,
		Path:   "/products",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *productListIn) (domain.ProductPage, error) {
			// 前台只看上架商品
			yes := true
			in.IsActive = &yes
			return h.products.GetProducts(c.Request.Context(), in.query())
		},
	})

	e.GET("/products/featured", func(c *gin.Context) (any, error) {
		return h.products.Featured(c.Request.Context(), queryInt(c, "limit", 0))
	})

	e.GET("/products/search", func(c *gin.Context) (any, error) {
		return h.products.SearchProducts(c.Request.Context(), c.Query("q"), queryInt(c, "limit", 0))
	})

	e.GET("/products/preloaded", func(c *gin.Context) (any, error) {
		ps, src, err := h.preloader.GetProducts(c.Request.Context())
		if err != nil {
			return nil, err
		}
		return gin.H{"products": ps, "source": src, "status": h.preloader.Status()}, nil
	})

	e.GET("/products/:id", func(c *gin.Context) (any, error) {
		return h.activeProduct(c)
	})

	e.GET("/products/:id/related", func(c *gin.Context) (any, error) {
		p, err := h.activeProduct(c)
		if err != nil {
			return nil, err
		}
		return h.products.Related(c.Request.Context(), p.ID, queryInt(c, "limit", 0))
	})

	// 每张图的缩略图和 srcset 变体
	e.GET("/products/:id/images", func(c *gin.Context) (any, error) {
		p, err := h.activeProduct(c)
		if err != nil {
			return nil, err
		}
		widths := parseWidths(c.Query("widths"))
		quality := queryInt(c, "q", 75)
		out := make([]gin.H, 0, len(p.Images))
		for _, img := range p.Images {
			out = append(out, gin.H{
				"src":       h.images.BuildCDNURL(img, service.CDNOptions{Quality: quality}),
				"thumbnail": h.images.BuildCDNURL(img, service.CDNOptions{Width: 300, Height: 300, Quality: quality}),
				"srcset":    h.images.ResponsiveURLs(img, widths, quality),
			})
		}
		return out, nil
	})

	e.GET("/categories", func(c *gin.Context) (any, error) {
		return h.categories.List(c.Request.Context(), true)
	})

	e.GET("/categories/:id", func(c *gin.Context) (any, error) {
		return h.categories.Get(c.Request.Context(), c.Param("id"))
	})

	ez.RegisterAction(e, ez.Action[productListIn, domain.ProductPage]{
		Method: http.MethodGet,
		Path:   "/categories/:id/products",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *productListIn) (domain.ProductPage, error) {
			cat, err := h.categories.Get(c.Request.Context(), c.Param("id"))
			if err != nil {
				return domain.ProductPage{}, err
			}
			return h.products.ByCategory(c.Request.Context(), cat.Name, in.ProductSort, in.Pagination)
		},
	})
}

// activeProduct 前台只能看到上架商品
func (h *Catalog) activeProduct(c *gin.Context) (*domain.Product, error) {
	p, err := h.products.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, errProductGone
	}
	return p, nil
}

func parseWidths(s string) []int {
	if strings.TrimSpace(s) == "" {
		return responsiveWidths
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		if w, err := strconv.Atoi(strings.TrimSpace(part)); err == nil && w > 0 && w <= 4096 {
			out = append(out, w)
		}
	}
	if len(out) == 0 {
		return responsiveWidths
	}
	return out
}
