package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront/internal/core/config"
	"storefront/internal/domain"
	resp "storefront/internal/transport/http/response"
	"storefront/internal/transport/http/router"
)

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func testConfig(t *testing.T, withDB bool) *config.Config {
	t.Helper()
	c := &config.Config{
		App: config.App{Name: "storefront", Env: "test"},
		JWT: config.JWT{Secret: "test-secret", Issuer: "storefront", AccessTokenTTLMin: 60},
		Cache: config.Cache{
			TTLSec: 60, Prefix: "t:", Version: "1", CategoryTTL: 60,
		},
		Preload: config.Preload{BatchSize: 10, TTLSec: 60},
		Storage: config.Storage{Driver: "local", BaseDir: t.TempDir(), PublicURL: "/uploads"},
		Errors:  config.Errors{RingSize: 20},
	}
	if withDB {
		name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
		c.DB = config.DB{
			Driver:       "sqlite",
			DSN:          fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
			MaxOpenConns: 1,
			AutoMigrate:  true,
			LogLevel:     "silent",
		}
	}
	return c
}

func build(t *testing.T, withDB bool) *App {
	t.Helper()
	a, err := Build(context.Background(), testConfig(t, withDB), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func apiEngine(a *App) http.Handler {
	return router.NewAPIEngine(a.Log, a.APIRegistry(), a.RouterOptions(gin.TestMode))
}

func adminEngine(a *App) http.Handler {
	return router.NewAdminEngine(a.Log, a.AdminRegistry(context.Background()), a.JWT, a.Users, a.RouterOptions(gin.TestMode))
}

func call(t *testing.T, h http.Handler, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var env envelope
	if w.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v), string(env.Data))
	return v
}

func signUp(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	_, env := call(t, h, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{
		"email": email, "password": "secret1", "displayName": "Tester",
	})
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)
	return decode[struct {
		Token string `json:"token"`
	}](t, env).Token
}

func TestAPI_MockCatalogWithoutBackend(t *testing.T) {
	a := build(t, false)
	h := apiEngine(a)

	status, _ := call(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, status)

	_, env := call(t, h, http.MethodGet, "/api/v1/products?pageSize=10", "", nil)
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)
	page := decode[domain.ProductPage](t, env)
	assert.Len(t, page.Products, 4)
	assert.Equal(t, domain.SourceMock, page.Source)

	_, env = call(t, h, http.MethodGet, "/api/v1/products?category=Caps", "", nil)
	assert.Len(t, decode[domain.ProductPage](t, env).Products, 2)

	// 下架商品前台不可见
	for _, path := range []string{"", "/related", "/images"} {
		_, env = call(t, h, http.MethodGet, "/api/v1/products/mock-vintage-snapback"+path, "", nil)
		assert.Equal(t, resp.CodeNotFound, env.Code, path)
	}
	_, env = call(t, h, http.MethodGet, "/api/v1/products/mock-classic-cap/related", "", nil)
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)
	assert.NotEmpty(t, decode[[]domain.Product](t, env))

	_, env = call(t, h, http.MethodGet, "/api/v1/products/mock-classic-cap/images?widths=320,640", "", nil)
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)
	imgs := decode[[]struct {
		Src    string            `json:"src"`
		Srcset map[string]string `json:"srcset"`
	}](t, env)
	require.Len(t, imgs, 1)
	assert.Len(t, imgs[0].Srcset, 2)

	_, env = call(t, h, http.MethodGet, "/api/v1/categories", "", nil)
	assert.Len(t, decode[[]domain.Category](t, env), 4)

	// 没有数据库时账号相关路由不挂载
	status, _ = call(t, h, http.MethodPost, "/api/v1/auth/signup", "", map[string]string{"email": "a@b.co"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_AccountAndShopping(t *testing.T) {
	a := build(t, true)
	h := apiEngine(a)
	ctx := context.Background()

	_, env := call(t, h, http.MethodGet, "/api/v1/me", "", nil)
	assert.Equal(t, 401, env.Code)

	tok := signUp(t, h, "ada@example.com")
	_, env = call(t, h, http.MethodGet, "/api/v1/me", tok, nil)
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)
	me := decode[domain.User](t, env)
	assert.Equal(t, "ada@example.com", me.Email)

	// 地址簿：缺必填字段被拒；设为默认时其它地址取消默认
	_, env = call(t, h, http.MethodPost, "/api/v1/addresses", tok, map[string]any{"line1": "1 Main St"})
	assert.Equal(t, 400, env.Code)
	_, env = call(t, h, http.MethodPost, "/api/v1/addresses", tok, map[string]any{
		"line1": "1 Main St", "city": "Springfield", "country": "US", "isDefault": true,
	})
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)
	first := decode[domain.Address](t, env)
	_, env = call(t, h, http.MethodPost, "/api/v1/addresses", tok, map[string]any{
		"line1": "2 Side St", "city": "Shelbyville", "country": "US", "isDefault": true,
	})
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)
	second := decode[domain.Address](t, env)
	_, env = call(t, h, http.MethodGet, "/api/v1/addresses/"+first.ID, tok, nil)
	assert.False(t, decode[domain.Address](t, env).IsDefault)

	p, err := a.Products.AddProduct(ctx, &domain.Product{
		Name: "Classic Cap", Price: 25, Category: "Caps", Stock: 3, IsActive: true,
	}, "seed")
	require.NoError(t, err)

	_, env = call(t, h, http.MethodPost, "/api/v1/cart/items", tok, map[string]any{"productId": p.ID, "quantity": 2})
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)
	assert.Equal(t, 50.0, decode[domain.Cart](t, env).Subtotal)

	_, env = call(t, h, http.MethodPost, "/api/v1/wishlist/toggle", tok, map[string]any{"productId": p.ID})
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)
	assert.True(t, decode[struct {
		Added bool `json:"added"`
	}](t, env).Added)

	_, env = call(t, h, http.MethodPost, "/api/v1/orders", tok, map[string]any{"addressId": second.ID})
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)
	order := decode[domain.Order](t, env)
	assert.Equal(t, 50.0, order.Total)
	assert.Equal(t, "2 Side St", order.Shipping.Line1)
	assert.Equal(t, "Tester", order.Shipping.Name, "unlabelled address ships to the account name")

	_, env = call(t, h, http.MethodGet, "/api/v1/orders", tok, nil)
	assert.EqualValues(t, 1, decode[struct {
		Total int64 `json:"total"`
	}](t, env).Total)

	// 别人的订单看不到
	other := signUp(t, h, "bob@example.com")
	_, env = call(t, h, http.MethodGet, "/api/v1/orders/"+order.ID, other, nil)
	assert.Equal(t, 404, env.Code)

	_, env = call(t, h, http.MethodPost, "/api/v1/orders/"+order.ID+"/cancel", tok, nil)
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)
	assert.Equal(t, domain.OrderCancelled, decode[domain.Order](t, env).Status)

	got, err := a.Products.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Stock)

	// 登出清空购物车和收藏
	_, env = call(t, h, http.MethodPost, "/api/v1/cart/items", tok, map[string]any{"productId": p.ID, "quantity": 1})
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)
	_, env = call(t, h, http.MethodPost, "/api/v1/auth/signout", tok, nil)
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)
	_, env = call(t, h, http.MethodGet, "/api/v1/cart", tok, nil)
	assert.Empty(t, decode[domain.Cart](t, env).Items)
	_, env = call(t, h, http.MethodGet, "/api/v1/wishlist", tok, nil)
	assert.Empty(t, decode[domain.Wishlist](t, env).Items)
}

func TestAdmin_RequiresAdminsTable(t *testing.T) {
	a := build(t, true)
	api, admin := apiEngine(a), adminEngine(a)

	_, env := call(t, admin, http.MethodGet, "/admin/v1/dashboard", "", nil)
	assert.Equal(t, 401, env.Code)

	tok := signUp(t, api, "ada@example.com")
	_, env = call(t, admin, http.MethodGet, "/admin/v1/dashboard", tok, nil)
	assert.Equal(t, 403, env.Code)

	// 授权后旧 token 也能用：权限以 admins 表为准
	_, err := a.Users.BootstrapAdmin(context.Background(), "ada@example.com")
	require.NoError(t, err)
	_, env = call(t, admin, http.MethodGet, "/admin/v1/dashboard", tok, nil)
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)

	_, env = call(t, admin, http.MethodPost, "/admin/v1/products", tok, map[string]any{
		"name": "Bucket Hat", "price": 30, "category": "Hats", "stock": 4, "isActive": true,
	})
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)
	created := decode[domain.Product](t, env)

	_, env = call(t, api, http.MethodGet, "/api/v1/products/"+created.ID, "", nil)
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)

	_, env = call(t, admin, http.MethodPost, "/admin/v1/products/"+created.ID+"/stock", tok, map[string]int{"delta": -5})
	assert.Equal(t, 400, env.Code)

	_, env = call(t, admin, http.MethodPost, "/admin/v1/products", tok, map[string]any{"name": "", "price": 0})
	assert.Equal(t, 400, env.Code)

	// moderator 能看不能改角色
	bobTok := signUp(t, api, "bob@example.com")
	bob, _, err := a.Users.List(context.Background(), domain.UserListQuery{Q: "bob@"})
	require.NoError(t, err)
	require.Len(t, bob, 1)
	_, env = call(t, admin, http.MethodPut, "/admin/v1/users/"+bob[0].ID+"/role", tok, map[string]string{"role": "moderator"})
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)

	_, env = call(t, admin, http.MethodGet, "/admin/v1/users", bobTok, nil)
	assert.Equal(t, resp.CodeOK, env.Code)
	_, env = call(t, admin, http.MethodPut, "/admin/v1/users/"+bob[0].ID+"/role", bobTok, map[string]string{"role": "admin"})
	assert.Equal(t, 403, env.Code)

	_, env = call(t, admin, http.MethodPost, "/admin/v1/preloader/refresh", tok, nil)
	require.Equal(t, resp.CodeOK, env.Code, env.Msg)
}
