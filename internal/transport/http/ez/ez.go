// Package ez gin 的轻封装：handler 返回 (data, error)，统一输出 {code,msg,data}
package ez

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"storefront/internal/core/apperr"
	resp "storefront/internal/transport/http/response"
)

// gin.Context 里的 key，由鉴权中间件写入
const (
	CtxUserID = "userId"
	CtxRole   = "role"
	CtxEmail  = "email"
	// 信封里的业务码，供访问日志 / 指标使用
	CtxRespCode = "respCode"
)

type EZ struct{ g *gin.RouterGroup }

func New(g *gin.RouterGroup) EZ { return EZ{g: g} }

func (e EZ) Group() *gin.RouterGroup { return e.g }

// CodeOf apperr 分类 → 响应码
func CodeOf(err error) int {
	ae := apperr.Classify(err)
	switch ae.Kind {
	case apperr.KindValidation:
		return resp.CodeBadRequest
	case apperr.KindAuth:
		if ae.Code == apperr.AuthTooManyRequests {
			return resp.CodeTooManyRequests
		}
		if ae.Code == apperr.AuthRequiresAdmin {
			return resp.CodeForbidden
		}
		return resp.CodeUnauthorized
	case apperr.KindForbidden:
		return resp.CodeForbidden
	case apperr.KindNotFound:
		return resp.CodeNotFound
	case apperr.KindConflict:
		return resp.CodeConflict
	case apperr.KindUnavailable:
		return resp.CodeUnavailable
	case apperr.KindDatabase:
		if ae.Code == apperr.CodeDeadlineExceeded {
			return resp.CodeTimeout
		}
	}
	return resp.CodeServerError
}

// Fail 统一错误输出；未分类的底层错误只给通用提示
func Fail(c *gin.Context, err error) {
	ae := apperr.Classify(err)
	data := gin.H{"kind": ae.Kind}
	if ae.Code != "" {
		data["errorCode"] = ae.Code
	}
	if ae.CorrelationID != "" {
		data["correlationId"] = ae.CorrelationID
	}
	if len(ae.Details) > 0 {
		data["details"] = ae.Details
	}
	msg := ae.Error()
	if ae.Kind == apperr.KindUnknown {
		msg = apperr.GenericMessage
		if ae.CorrelationID != "" {
			msg += " (ref: " + ae.CorrelationID + ")"
		}
	}
	code := CodeOf(err)
	c.Set(CtxRespCode, code)
	c.JSON(http.StatusOK, resp.ErrorWith(code, msg, data))
}

func OK(c *gin.Context, data any) { c.JSON(http.StatusOK, resp.OK(data)) }

func reply(c *gin.Context, data any, err error) {
	if err != nil {
		Fail(c, err)
		return
	}
	OK(c, data)
}

func badBind(err error) error { return apperr.Validation(err.Error()) }

func (e EZ) GET(path string, h func(c *gin.Context) (any, error)) {
	e.g.GET(path, func(c *gin.Context) {
		data, err := h(c)
		reply(c, data, err)
	})
}

func (e EZ) DELETE(path string, h func(c *gin.Context) (any, error)) {
	e.g.DELETE(path, func(c *gin.Context) {
		data, err := h(c)
		reply(c, data, err)
	})
}

func POST[T any](e EZ, path string, h func(c *gin.Context, in T) (any, error)) {
	e.g.POST(path, jsonHandler(h))
}

func PUT[T any](e EZ, path string, h func(c *gin.Context, in T) (any, error)) {
	e.g.PUT(path, jsonHandler(h))
}

func PATCH[T any](e EZ, path string, h func(c *gin.Context, in T) (any, error)) {
	e.g.PATCH(path, jsonHandler(h))
}

func jsonHandler[T any](h func(c *gin.Context, in T) (any, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in T
		if err := c.ShouldBindJSON(&in); err != nil {
			Fail(c, badBind(err))
			return
		}
		data, err := h(c, in)
		reply(c, data, err)
	}
}

// POSTFILE 处理 multipart/form-data 单文件上传
func POSTFILE(e EZ, path string, fieldName string, h func(c *gin.Context, file *multipart.FileHeader) (any, error)) {
	e.g.POST(path, func(c *gin.Context) {
		fh, err := c.FormFile(fieldName)
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				Fail(c, apperr.Validation("request body too large"))
				return
			}
			Fail(c, apperr.Validation("no file uploaded in field "+fieldName))
			return
		}
		data, err := h(c, fh)
		reply(c, data, err)
	})
}

/* ================== Action（非 CRUD 一行注册） ================== */

// 绑定方式
type Binder string

const (
	BindJSON  Binder = "json"  // 从 JSON 绑定
	BindQuery Binder = "query" // 从 URL ?a=b 绑定
	BindNone  Binder = "none"  // 不绑定，自己从 c.Param / c.PostForm 取
)

// 动作定义：I 入参，O 出参
type Action[I any, O any] struct {
	Method  string   // "GET" | "POST" | "PUT" | "PATCH" | "DELETE"
	Path    string   // 例："/auth/signin"、"/orders/:id/cancel"
	Binder  Binder   // 绑定方式
	Auth    bool     // 是否要求登录（检查 userId）
	Roles   []string // 限定角色（可选）
	Handler func(c *gin.Context, in *I) (O, error)
}

// RegisterAction 在当前 EZ 下注册动作接口
func RegisterAction[I any, O any](e EZ, a Action[I, O]) {
	h := func(c *gin.Context) {
		// 1) 鉴权/角色
		if a.Auth && c.GetString(CtxUserID) == "" {
			Fail(c, apperr.Auth(apperr.AuthMissingToken))
			return
		}
		if len(a.Roles) > 0 {
			role := c.GetString(CtxRole)
			ok := false
			for _, r := range a.Roles {
				if role == r {
					ok = true
					break
				}
			}
			if !ok {
				Fail(c, apperr.Forbidden("You don't have permission to perform this action."))
				return
			}
		}

		// 2) 绑定入参
		var in I
		var bindErr error
		switch a.Binder {
		case BindJSON:
			bindErr = c.ShouldBindJSON(&in)
		case BindQuery:
			bindErr = c.ShouldBindQuery(&in)
		default: // BindNone: 不绑定
		}
		if bindErr != nil {
			Fail(c, badBind(bindErr))
			return
		}

		// 3) 执行 + 统一错误映射
		out, err := a.Handler(c, &in)
		reply(c, out, err)
	}

	switch strings.ToUpper(a.Method) {
	case http.MethodGet:
		e.g.GET(a.Path, h)
	case http.MethodPut:
		e.g.PUT(a.Path, h)
	case http.MethodPatch:
		e.g.PATCH(a.Path, h)
	case http.MethodDelete:
		e.g.DELETE(a.Path, h)
	default: // 默认 POST
		e.g.POST(a.Path, h)
	}
}
