package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"storefront/internal/domain"
)

// ErrorLogRepo 没有配置 Mongo 时，error_logs 落到关系库
type ErrorLogRepo struct{ db *gorm.DB }

func NewErrorLogRepo(db *gorm.DB) *ErrorLogRepo { return &ErrorLogRepo{db: db} }

func (r *ErrorLogRepo) Insert(ctx context.Context, e *domain.ErrorLog) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *ErrorLogRepo) FindByID(ctx context.Context, id string) (*domain.ErrorLog, error) {
	var e domain.ErrorLog
	err := r.db.WithContext(ctx).First(&e, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *ErrorLogRepo) Recent(ctx context.Context, limit int) ([]domain.ErrorLog, error) {
	var es []domain.ErrorLog
	err := r.db.WithContext(ctx).Order("created_at desc").Limit(clampLimit(limit, 50, 500)).Find(&es).Error
	return es, err
}
