package handler

import (
	"mime/multipart"
	"net/http"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/core/apperr"
	"storefront/internal/domain"
	"storefront/internal/service"
	"storefront/internal/transport/http/ez"
)

// AdminCatalog 后台商品 / 分类 / 图片管理
type AdminCatalog struct {
	products   *service.ProductService
	categories *service.CategoryService
	images     *service.ImageService
}

func NewAdminCatalog(p *service.ProductService, c *service.CategoryService, img *service.ImageService) *AdminCatalog {
	return &AdminCatalog{products: p, categories: c, images: img}
}

func (h *AdminCatalog) Priority() int { return 10 }

type stockIn struct {
	Delta int `json:"delta"`
}

type activeIn struct {
	Active bool `json:"active"`
}

type bulkStatusIn struct {
	IDs    []string             `json:"ids" binding:"required,min=1,max=500"`
	Status domain.ProductStatus `json:"status"`
}

func (h *AdminCatalog) MountAdmin(g *gin.RouterGroup) {
	e := ez.New(g)

	// 后台列表不限制上架状态，isActive 由查询串决定
	ez.RegisterAction(e, ez.Action[productListIn, domain.ProductPage]{
		Method: http.MethodGet,
		Path:   "/products",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *productListIn) (domain.ProductPage, error) {
			return h.products.GetProducts(c.Request.Context(), in.query())
		},
	})
	e.GET("/products/:id", func(c *gin.Context) (any, error) {
		return h.products.GetProduct(c.Request.Context(), c.Param("id"))
	})
	ez.POST(e, "/products", func(c *gin.Context, in domain.Product) (any, error) {
		in.ID = ""
		return h.products.AddProduct(c.Request.Context(), &in, uid(c))
	})
	ez.PUT(e, "/products/:id", func(c *gin.Context, in domain.Product) (any, error) {
		return h.products.UpdateProduct(c.Request.Context(), c.Param("id"), &in)
	})
	e.DELETE("/products/:id", func(c *gin.Context) (any, error) {
		return gin.H{"deleted": c.Param("id")}, h.products.DeleteProduct(c.Request.Context(), c.Param("id"))
	})
	ez.POST(e, "/products/:id/stock", func(c *gin.Context, in stockIn) (any, error) {
		return h.products.AdjustStock(c.Request.Context(), c.Param("id"), in.Delta)
	})
	ez.POST(e, "/products/:id/active", func(c *gin.Context, in activeIn) (any, error) {
		if err := h.products.SetActive(c.Request.Context(), c.Param("id"), in.Active); err != nil {
			return nil, err
		}
		return gin.H{"id": c.Param("id"), "isActive": in.Active}, nil
	})
	ez.POST(e, "/products/bulk-status", func(c *gin.Context, in bulkStatusIn) (any, error) {
		n, err := h.products.BulkSetStatus(c.Request.Context(), in.IDs, in.Status)
		if err != nil {
			return nil, err
		}
		return gin.H{"updated": n}, nil
	})

	// 分类
	e.GET("/categories", func(c *gin.Context) (any, error) {
		return h.categories.List(c.Request.Context(), c.Query("activeOnly") == "true")
	})
	ez.POST(e, "/categories", func(c *gin.Context, in domain.Category) (any, error) {
		return h.categories.Create(c.Request.Context(), &in)
	})
	ez.PUT(e, "/categories/:id", func(c *gin.Context, in domain.Category) (any, error) {
		return h.categories.Update(c.Request.Context(), c.Param("id"), &in)
	})
	ez.RegisterAction(e, ez.Action[struct{}, *domain.Category]{
		Method: http.MethodPost,
		Path:   "/categories/:id/deactivate",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (*domain.Category, error) {
			return h.categories.Deactivate(c.Request.Context(), c.Param("id"))
		},
	})
	// 硬删除：分类下的商品一起删
	e.DELETE("/categories/:id", func(c *gin.Context) (any, error) {
		n, err := h.categories.Delete(c.Request.Context(), c.Param("id"))
		if err != nil {
			return nil, err
		}
		return gin.H{"deleted": c.Param("id"), "productsDeleted": n}, nil
	})

	// 图片：multipart 字段 file，压缩参数走查询串
	ez.POSTFILE(e, "/images", "file", func(c *gin.Context, fh *multipart.FileHeader) (any, error) {
		var opts service.ImageOptions
		if err := c.ShouldBindQuery(&opts); err != nil {
			return nil, apperr.Validation(err.Error())
		}
		f, err := fh.Open()
		if err != nil {
			return nil, apperr.Validation("cannot read uploaded file")
		}
		defer f.Close()
		return h.images.UploadAndOptimizeImage(c.Request.Context(), f, uploadDir(c.Query("dir")), opts)
	})
	e.GET("/images/cdn", func(c *gin.Context) (any, error) {
		src := c.Query("url")
		if src == "" {
			return nil, apperr.Validation("url is required")
		}
		q := queryInt(c, "q", 75)
		return gin.H{
			"url": h.images.BuildCDNURL(src, service.CDNOptions{
				Width: queryInt(c, "w", 0), Height: queryInt(c, "h", 0), Quality: q, Format: c.Query("fm"),
			}),
			"srcset": h.images.ResponsiveURLs(src, parseWidths(c.Query("widths")), q),
		}, nil
	})
}

// uploadDir 只允许一级子目录，默认 products
func uploadDir(dir string) string {
	dir = strings.Trim(path.Clean("/"+dir), "/")
	if dir == "" || strings.Contains(dir, "/") {
		return "products"
	}
	return dir
}
