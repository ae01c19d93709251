// Package service 业务逻辑层：组合仓储、缓存和错误记录
package service

import "gorm.io/gorm"

var gormNotFound = gorm.ErrRecordNotFound
