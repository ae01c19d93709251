package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront/internal/domain"
	"storefront/internal/service"
	"storefront/internal/transport/http/ez"
)

// AdminOps 订单 / 用户 / 看板 / 错误日志 / 预加载
type AdminOps struct {
	orders    *service.OrderService
	users     *service.UserService
	dashboard *service.DashboardService
	errs      *service.ErrorService
	preloader *service.Preloader
	// 预加载任务挂在进程级 ctx 上，不能跟随单个请求取消
	bg context.Context
}

func NewAdminOps(bg context.Context, o *service.OrderService, u *service.UserService, d *service.DashboardService,
	errs *service.ErrorService, pre *service.Preloader) *AdminOps {
	return &AdminOps{bg: bg, orders: o, users: u, dashboard: d, errs: errs, preloader: pre}
}

func (h *AdminOps) Priority() int { return 20 }

type orderListIn struct {
	Status domain.OrderStatus `form:"status"`
	UserID string             `form:"userId"`
	Offset int                `form:"offset"`
	Limit  int                `form:"limit"`
}

type userListIn struct {
	Q      string               `form:"q"`
	Role   domain.Role          `form:"role"`
	Status domain.AccountStatus `form:"status"`
	Offset int                  `form:"offset"`
	Limit  int                  `form:"limit"`
}

type orderStatusIn struct {
	Status domain.OrderStatus `json:"status" binding:"required"`
}

type roleIn struct {
	Role domain.Role `json:"role" binding:"required"`
}

type accountStatusIn struct {
	Status domain.AccountStatus `json:"status" binding:"required"`
}

func (h *AdminOps) MountAdmin(g *gin.RouterGroup) {
	e := ez.New(g)

	// 订单
	ez.RegisterAction(e, ez.Action[orderListIn, listOut[domain.Order]]{
		Method: http.MethodGet,
		Path:   "/orders",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *orderListIn) (listOut[domain.Order], error) {
			items, total, err := h.orders.List(c.Request.Context(), domain.OrderListQuery{
				UserID: in.UserID, Status: in.Status, Offset: in.Offset, Limit: in.Limit,
			})
			return listOf(items, total), err
		},
	})
	e.GET("/orders/:id", func(c *gin.Context) (any, error) {
		// uid 为空：后台可看任意订单
		return h.orders.Get(c.Request.Context(), "", c.Param("id"))
	})
	ez.PUT(e, "/orders/:id/status", func(c *gin.Context, in orderStatusIn) (any, error) {
		return h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), in.Status)
	})

	// 用户；改角色 / 状态只有 admin 可以，moderator 只读
	ez.RegisterAction(e, ez.Action[userListIn, listOut[domain.User]]{
		Method: http.MethodGet,
		Path:   "/users",
		Binder: ez.BindQuery,
		Handler: func(c *gin.Context, in *userListIn) (listOut[domain.User], error) {
			items, total, err := h.users.List(c.Request.Context(), domain.UserListQuery{
				Q: in.Q, Role: in.Role, Status: in.Status, Offset: in.Offset, Limit: in.Limit,
			})
			return listOf(items, total), err
		},
	})
	ez.RegisterAction(e, ez.Action[roleIn, *domain.User]{
		Method: http.MethodPut,
		Path:   "/users/:id/role",
		Binder: ez.BindJSON,
		Auth:   true,
		Roles:  []string{string(domain.RoleAdmin)},
		Handler: func(c *gin.Context, in *roleIn) (*domain.User, error) {
			return h.users.SetRole(c.Request.Context(), uid(c), c.Param("id"), in.Role)
		},
	})
	ez.RegisterAction(e, ez.Action[accountStatusIn, *domain.User]{
		Method: http.MethodPut,
		Path:   "/users/:id/status",
		Binder: ez.BindJSON,
		Auth:   true,
		Roles:  []string{string(domain.RoleAdmin)},
		Handler: func(c *gin.Context, in *accountStatusIn) (*domain.User, error) {
			return h.users.SetStatus(c.Request.Context(), uid(c), c.Param("id"), in.Status)
		},
	})

	e.GET("/dashboard", func(c *gin.Context) (any, error) {
		return h.dashboard.Stats(c.Request.Context())
	})

	// 错误日志
	e.GET("/errors", func(c *gin.Context) (any, error) {
		return h.errs.Recent(queryInt(c, "limit", 50)), nil
	})
	e.GET("/errors/:id", func(c *gin.Context) (any, error) {
		return h.errs.Lookup(c.Request.Context(), c.Param("id"))
	})

	// 预加载
	e.GET("/preloader", func(c *gin.Context) (any, error) {
		return h.preloader.Status(), nil
	})
	ez.RegisterAction(e, ez.Action[struct{}, gin.H]{
		Method: http.MethodPost,
		Path:   "/preloader/refresh",
		Binder: ez.BindNone,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			h.preloader.MarkStale(c.Request.Context())
			started := h.preloader.StartBackgroundPreload(h.bg)
			return gin.H{"started": started, "status": h.preloader.Status()}, nil
		},
	})
}
