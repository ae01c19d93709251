// Package apperr 统一错误分类：认证 / 数据库 / 校验 / 未知。
// 读路径拿到分类后降级，写路径把分类后的错误原样抛给调用方。
package apperr

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"gorm.io/gorm"
)

type Kind string

const (
	KindAuth        Kind = "auth"
	KindForbidden   Kind = "forbidden"
	KindDatabase    Kind = "database"
	KindValidation  Kind = "validation"
	KindNotFound    Kind = "not_found"
	KindConflict    Kind = "conflict"
	KindUnavailable Kind = "unavailable"
	KindUnknown     Kind = "unknown"
)

// 数据库 / 服务错误码（沿用托管文档库的错误码命名）
const (
	CodePermissionDenied  = "permission-denied"
	CodeNotFound          = "not-found"
	CodeAlreadyExists     = "already-exists"
	CodeResourceExhausted = "resource-exhausted"
	CodeUnavailable       = "unavailable"
	CodeDeadlineExceeded  = "deadline-exceeded"
	CodeCancelled         = "cancelled"
	CodeUnauthenticated   = "unauthenticated"
	CodeInvalidArgument   = "invalid-argument"
)

// 认证错误码
const (
	AuthUserNotFound     = "auth/user-not-found"
	AuthWrongPassword    = "auth/wrong-password"
	AuthEmailInUse       = "auth/email-already-in-use"
	AuthWeakPassword     = "auth/weak-password"
	AuthInvalidEmail     = "auth/invalid-email"
	AuthUserDisabled     = "auth/user-disabled"
	AuthTooManyRequests  = "auth/too-many-requests"
	AuthInvalidToken     = "auth/invalid-token"
	AuthMissingToken     = "auth/missing-token"
	AuthRequiresAdmin    = "auth/admin-required"
	GenericMessage       = "Something went wrong. Please try again."
	validationMsgDefault = "Validation failed"
)

var authMessages = map[string]string{
	AuthUserNotFound:    "No account found with this email address.",
	AuthWrongPassword:   "Incorrect password. Please try again.",
	AuthEmailInUse:      "An account with this email already exists.",
	AuthWeakPassword:    "Password should be at least 6 characters.",
	AuthInvalidEmail:    "Please enter a valid email address.",
	AuthUserDisabled:    "This account has been disabled.",
	AuthTooManyRequests: "Too many attempts. Please try again later.",
	AuthInvalidToken:    "Your session has expired. Please sign in again.",
	AuthMissingToken:    "Please sign in to continue.",
	AuthRequiresAdmin:   "Administrator access is required.",
}

var dbMessages = map[string]string{
	CodePermissionDenied:  "You don't have permission to perform this action.",
	CodeNotFound:          "The requested item was not found.",
	CodeAlreadyExists:     "This item already exists.",
	CodeResourceExhausted: "Service is busy. Please try again later.",
	CodeUnavailable:       "Service is temporarily unavailable. Please try again later.",
	CodeDeadlineExceeded:  "The request took too long. Please try again.",
	CodeCancelled:         "The request was cancelled.",
	CodeUnauthenticated:   "Please sign in to continue.",
	CodeInvalidArgument:   "Invalid data provided.",
}

// AuthMessage 认证错误码 → 面向用户的提示
func AuthMessage(code string) string {
	if m, ok := authMessages[code]; ok {
		return m
	}
	return "Authentication failed. Please try again."
}

// DatabaseMessage 数据库错误码 → 面向用户的提示
func DatabaseMessage(code string) string {
	if m, ok := dbMessages[code]; ok {
		return m
	}
	return GenericMessage
}

type Error struct {
	Kind          Kind
	Code          string
	Msg           string
	Details       []string
	CorrelationID string
	Err           error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = GenericMessage
	}
	if e.CorrelationID != "" {
		msg += " (ref: " + e.CorrelationID + ")"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// WithCorrelation 复制一份并附上关联 ID
func (e *Error) WithCorrelation(id string) *Error {
	cp := *e
	cp.CorrelationID = id
	return &cp
}

func Auth(code string) *Error {
	return &Error{Kind: KindAuth, Code: code, Msg: AuthMessage(code)}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Code: CodePermissionDenied, Msg: msg}
}

func NotFound(msg string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Msg: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Code: CodeAlreadyExists, Msg: msg}
}

func Unavailable(msg string, err error) *Error {
	if msg == "" {
		msg = DatabaseMessage(CodeUnavailable)
	}
	return &Error{Kind: KindUnavailable, Code: CodeUnavailable, Msg: msg, Err: err}
}

func Database(code string, err error) *Error {
	return &Error{Kind: KindDatabase, Code: code, Msg: DatabaseMessage(code), Err: err}
}

// Validation 多条校验信息合并为一条 msg
func Validation(details ...string) *Error {
	msg := validationMsgDefault
	if len(details) > 0 {
		msg = strings.Join(details, "; ")
	}
	return &Error{Kind: KindValidation, Code: CodeInvalidArgument, Msg: msg, Details: details}
}

// Classify 把任意底层错误归类；已分类的错误原样返回
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, mongo.ErrNoDocuments),
		errors.Is(err, redis.Nil):
		return &Error{Kind: KindNotFound, Code: CodeNotFound, Msg: DatabaseMessage(CodeNotFound), Err: err}
	case errors.Is(err, gorm.ErrDuplicatedKey), mongo.IsDuplicateKeyError(err), isDupKey(err):
		return &Error{Kind: KindConflict, Code: CodeAlreadyExists, Msg: DatabaseMessage(CodeAlreadyExists), Err: err}
	case errors.Is(err, context.DeadlineExceeded), mongo.IsTimeout(err):
		return Database(CodeDeadlineExceeded, err)
	case errors.Is(err, context.Canceled):
		return Database(CodeCancelled, err)
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests),
		mongo.IsNetworkError(err), errors.Is(err, gorm.ErrInvalidDB):
		return &Error{Kind: KindUnavailable, Code: CodeUnavailable, Msg: DatabaseMessage(CodeUnavailable), Err: err}
	case errors.Is(err, gorm.ErrInvalidData), errors.Is(err, gorm.ErrInvalidValue):
		return Database(CodeInvalidArgument, err)
	}
	return &Error{Kind: KindUnknown, Msg: GenericMessage, Err: err}
}

func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return Classify(err).Kind
}

func Is(err error, k Kind) bool { return err != nil && KindOf(err) == k }

func isDupKey(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "unique violation")
}
