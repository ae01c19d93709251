package utils

import (
	"strings"

	"github.com/google/uuid"
)

// NewID 生成 32 位无横线 ID（文档主键统一用它）
func NewID() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }
