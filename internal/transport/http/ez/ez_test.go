package ez

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront/internal/core/apperr"
	resp "storefront/internal/transport/http/response"
)

func init() { gin.SetMode(gin.TestMode) }

func TestCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.Validation("bad"), resp.CodeBadRequest},
		{apperr.Auth(apperr.AuthWrongPassword), resp.CodeUnauthorized},
		{apperr.Auth(apperr.AuthTooManyRequests), resp.CodeTooManyRequests},
		{apperr.Auth(apperr.AuthRequiresAdmin), resp.CodeForbidden},
		{apperr.Forbidden("no"), resp.CodeForbidden},
		{apperr.NotFound("gone"), resp.CodeNotFound},
		{apperr.Conflict("dup"), resp.CodeConflict},
		{apperr.Unavailable("off", nil), resp.CodeUnavailable},
		{apperr.Classify(context.DeadlineExceeded), resp.CodeTimeout},
		{errors.New("boom"), resp.CodeServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CodeOf(tc.err), fmt.Sprint(tc.err))
	}
}

type body struct {
	Code int            `json:"code"`
	Msg  string         `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func do(t *testing.T, r *gin.Engine, method, path, payload string) body {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	var b body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b), w.Body.String())
	return b
}

func TestFail_HidesUnclassifiedDetails(t *testing.T) {
	r := gin.New()
	e := New(r.Group(""))
	e.GET("/raw", func(*gin.Context) (any, error) { return nil, errors.New("pq: password=hunter2") })
	e.GET("/ref", func(*gin.Context) (any, error) {
		return nil, apperr.Classify(errors.New("x")).WithCorrelation("err_1")
	})

	b := do(t, r, http.MethodGet, "/raw", "")
	assert.Equal(t, 500, b.Code)
	assert.Equal(t, apperr.GenericMessage, b.Msg)
	assert.NotContains(t, b.Msg, "hunter2")

	b = do(t, r, http.MethodGet, "/ref", "")
	assert.Contains(t, b.Msg, "err_1")
	var ref struct {
		CorrelationID string `json:"correlationId"`
	}
	require.NoError(t, json.Unmarshal(b.Data, &ref))
	assert.Equal(t, "err_1", ref.CorrelationID)
}

func TestRegisterAction_BindAndRoles(t *testing.T) {
	type in struct {
		N int `json:"n" binding:"required,min=1"`
	}
	r := gin.New()
	g := r.Group("", func(c *gin.Context) {
		c.Set(CtxUserID, "u1")
		c.Set(CtxRole, c.GetHeader("X-Role"))
	})
	RegisterAction(New(g), Action[in, int]{
		Method: http.MethodPost,
		Path:   "/double",
		Binder: BindJSON,
		Auth:   true,
		Roles:  []string{"admin"},
		Handler: func(_ *gin.Context, i *in) (int, error) {
			return i.N * 2, nil
		},
	})

	call := func(role, payload string) body {
		req := httptest.NewRequest(http.MethodPost, "/double", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Role", role)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		var b body
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &b), w.Body.String())
		return b
	}
	assert.Equal(t, 403, call("moderator", `{"n":2}`).Code)
	assert.Equal(t, 400, call("admin", `{"n":0}`).Code)
	ok := call("admin", `{"n":2}`)
	require.Equal(t, resp.CodeOK, ok.Code, ok.Msg)
	assert.JSONEq(t, `4`, string(ok.Data))
}
