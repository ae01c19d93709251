package service

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/datatypes"

	"storefront/internal/core/apperr"
	"storefront/internal/domain"
)

const persistTimeout = 3 * time.Second

// ErrorService 统一的错误记录入口：分配关联 ID、保留最近 N 条、生产环境落库
type ErrorService struct {
	log        *zap.Logger
	repo       domain.ErrorLogRepository
	env        string
	production bool
	now        func() time.Time

	mu   sync.Mutex
	ring []domain.ErrorLog
	next int
	full bool
}

type ErrorServiceOpts struct {
	Env        string
	Production bool
	RingSize   int
	Repo       domain.ErrorLogRepository // 可为空
}

func NewErrorService(l *zap.Logger, o ErrorServiceOpts) *ErrorService {
	if l == nil {
		l = zap.NewNop()
	}
	if o.RingSize <= 0 {
		o.RingSize = 100
	}
	return &ErrorService{
		log:        l,
		repo:       o.Repo,
		env:        o.Env,
		production: o.Production,
		now:        time.Now,
		ring:       make([]domain.ErrorLog, o.RingSize),
	}
}

func severityLevel(s domain.Severity) zapcore.Level {
	switch s {
	case domain.SeverityLow:
		return zapcore.DebugLevel
	case domain.SeverityHigh:
		return zapcore.WarnLevel
	case domain.SeverityCritical:
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// LogError 记录一条错误并返回条目（含关联 ID）；落库失败只打日志
func (s *ErrorService) LogError(ctx context.Context, err error, fields map[string]any, sev domain.Severity) domain.ErrorLog {
	if sev == "" {
		sev = domain.SeverityMedium
	}
	ae := apperr.Classify(err)
	e := domain.ErrorLog{
		ID:          uuid.NewString(),
		Kind:        string(apperr.KindUnknown),
		Severity:    sev,
		Environment: s.env,
		CreatedAt:   s.now().UTC(),
	}
	if err != nil {
		e.Message = err.Error()
	}
	if ae != nil {
		e.Kind, e.Code = string(ae.Kind), ae.Code
	}
	if len(fields) > 0 {
		e.Context = datatypes.JSONMap{}
		for k, v := range fields {
			e.Context[k] = v
		}
		if op, ok := fields["operation"].(string); ok {
			e.Operation = op
		}
	}
	if sev == domain.SeverityHigh || sev == domain.SeverityCritical {
		e.Stack = string(debug.Stack())
	}

	s.push(e)

	if ce := s.log.Check(severityLevel(sev), "service error"); ce != nil {
		ce.Write(
			zap.String("correlation_id", e.ID),
			zap.String("kind", e.Kind),
			zap.String("code", e.Code),
			zap.String("operation", e.Operation),
			zap.Any("context", fields),
			zap.Error(err),
		)
	}

	if s.production && s.repo != nil {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if perr := s.repo.Insert(pctx, &e); perr != nil {
			s.log.Warn("persist error log failed", zap.String("correlation_id", e.ID), zap.Error(perr))
		}
	}
	return e
}

func (s *ErrorService) push(e domain.ErrorLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring[s.next] = e
	s.next = (s.next + 1) % len(s.ring)
	if s.next == 0 {
		s.full = true
	}
}

// Recent 最近的错误，新的在前
func (s *ErrorService) Recent(limit int) []domain.ErrorLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	if s.full {
		n = len(s.ring)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.ErrorLog, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + len(s.ring)) % len(s.ring)
		out = append(out, s.ring[idx])
	}
	return out
}

// Lookup 先查内存环，再查持久化的 error_logs
func (s *ErrorService) Lookup(ctx context.Context, id string) (*domain.ErrorLog, error) {
	s.mu.Lock()
	for i := range s.ring {
		if s.ring[i].ID == id && id != "" {
			e := s.ring[i]
			s.mu.Unlock()
			return &e, nil
		}
	}
	s.mu.Unlock()
	if s.repo == nil {
		return nil, apperr.NotFound("error log not found")
	}
	e, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperr.Classify(err)
	}
	if e == nil {
		return nil, apperr.NotFound("error log not found")
	}
	return e, nil
}

// Report 记录并返回带关联 ID 的分类错误，写路径统一用它抛给调用方
func (s *ErrorService) Report(ctx context.Context, op string, err error, fields map[string]any, sev domain.Severity) error {
	if err == nil {
		return nil
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["operation"] = op
	e := s.LogError(ctx, err, fields, sev)
	return apperr.Classify(err).WithCorrelation(e.ID)
}

// HandleServiceError 包一层操作：出错时记录并把关联 ID 带进返回的错误
func HandleServiceError[T any](ctx context.Context, s *ErrorService, op string, fields map[string]any, sev domain.Severity, fn func(context.Context) (T, error)) (T, error) {
	v, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, s.Report(ctx, op, err, fields, sev)
	}
	return v, nil
}
