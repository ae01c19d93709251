package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"storefront/internal/core/validate"
	"storefront/internal/domain"
	"storefront/internal/repo"
	"storefront/internal/service"
	"storefront/internal/transport/http/ez"
)

// Account 注册 / 登录 / 个人资料 / 地址簿
type Account struct {
	users    *service.UserService
	cart     *service.CartService
	wishlist *service.WishlistService
	db       *gorm.DB // 为空时不挂地址簿
	auth     gin.HandlerFunc
}

func NewAccount(users *service.UserService, cart *service.CartService, wl *service.WishlistService, db *gorm.DB, auth gin.HandlerFunc) *Account {
	return &Account{users: users, cart: cart, wishlist: wl, db: db, auth: auth}
}

func (h *Account) Priority() int { return 20 }

type signInIn struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Account) MountAPI(g *gin.RouterGroup) {
	e := ez.New(g)

	ez.POST(e, "/auth/signup", func(c *gin.Context, in service.SignUpInput) (any, error) {
		return h.users.SignUp(c.Request.Context(), in)
	})
	ez.RegisterAction(e, ez.Action[signInIn, *service.AuthResult]{
		Method: http.MethodPost,
		Path:   "/auth/signin",
		Binder: ez.BindJSON,
		Handler: func(c *gin.Context, in *signInIn) (*service.AuthResult, error) {
			return h.users.SignIn(c.Request.Context(), in.Email, in.Password)
		},
	})

	authed := g.Group("", h.auth)
	a := ez.New(authed)

	// token 无状态，登出只清空购物车和收藏；客户端自行丢弃 token
	ez.RegisterAction(a, ez.Action[struct{}, gin.H]{
		Method: http.MethodPost,
		Path:   "/auth/signout",
		Binder: ez.BindNone,
		Auth:   true,
		Handler: func(c *gin.Context, _ *struct{}) (gin.H, error) {
			ctx := c.Request.Context()
			if err := h.cart.Clear(ctx, uid(c)); err != nil {
				return nil, err
			}
			if err := h.wishlist.Clear(ctx, uid(c)); err != nil {
				return nil, err
			}
			return gin.H{"signedOut": true}, nil
		},
	})

	a.GET("/me", func(c *gin.Context) (any, error) {
		return h.users.Me(c.Request.Context(), uid(c))
	})
	ez.PUT(a, "/me", func(c *gin.Context, in service.ProfileInput) (any, error) {
		return h.users.UpdateProfile(c.Request.Context(), uid(c), in)
	})

	if h.db == nil {
		return
	}
	addrs := repo.NewAddressRepo(h.db)
	clearOthers := func(c *gin.Context, m *domain.Address) error {
		if !m.IsDefault {
			return nil
		}
		return addrs.ClearDefault(c.Request.Context(), m.UserID, m.ID)
	}
	ez.Crud(ez.CrudConfig[domain.Address]{
		DB:    h.db,
		Group: authed,
		Path:  "/addresses",
		New:   func() *domain.Address { return &domain.Address{} },
		Hooks: ez.CrudHooks[domain.Address]{
			BeforeCreate: func(_ *gin.Context, m *domain.Address) error { return validate.Struct(m) },
			BeforeUpdate: func(_ *gin.Context, m *domain.Address) error { return validate.Struct(m) },
			AfterSave:    clearOthers,
		},
		AllowCreate: true,
		AllowList:   true,
		AllowGet:    true,
		AllowUpdate: true,
		AllowDelete: true,
		OwnerField:  "UserID",
		OrderBy:     "is_default DESC, created_at DESC",
	})
}
