package domain

import (
	"context"
	"time"

	"gorm.io/datatypes"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorLog 以关联 ID 作主键，便于按 ID 回查
type ErrorLog struct {
	ID          string            `gorm:"primaryKey;size:36" json:"id" bson:"_id"`
	Message     string            `gorm:"type:text" json:"message" bson:"message"`
	Kind        string            `gorm:"size:16" json:"kind" bson:"kind"`
	Code        string            `gorm:"size:64" json:"code,omitempty" bson:"code,omitempty"`
	Severity    Severity          `gorm:"size:16;index" json:"severity" bson:"severity"`
	Operation   string            `gorm:"size:128" json:"operation,omitempty" bson:"operation,omitempty"`
	Context     datatypes.JSONMap `json:"context,omitempty" bson:"context,omitempty"`
	Stack       string            `gorm:"type:text" json:"stack,omitempty" bson:"stack,omitempty"`
	Environment string            `gorm:"size:32" json:"environment" bson:"environment"`
	CreatedAt   time.Time         `gorm:"index" json:"createdAt" bson:"created_at"`
}

func (ErrorLog) TableName() string { return "error_logs" }

type ErrorLogRepository interface {
	Insert(ctx context.Context, e *ErrorLog) error
	FindByID(ctx context.Context, id string) (*ErrorLog, error)
	Recent(ctx context.Context, limit int) ([]ErrorLog, error)
}
