// Package storage 对象存储：按路径约定存放商品图 / 头像（{path}/original 等）
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
)

var ErrNotFound = errors.New("object not found")

type Object struct {
	Key         string
	URL         string
	Size        int64
	ContentType string
}

type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// CleanKey 统一成不带前导 / 的相对路径，拒绝 ..
func CleanKey(key string) (string, error) {
	k := strings.Trim(strings.ReplaceAll(key, "\\", "/"), "/")
	if k == "" {
		return "", errors.New("empty object key")
	}
	for _, seg := range strings.Split(k, "/") {
		if seg == ".." || seg == "." || seg == "" {
			return "", errors.New("invalid object key: " + key)
		}
	}
	return k, nil
}

func joinURL(base, key string) string {
	if base == "" {
		return "/" + key
	}
	return strings.TrimRight(base, "/") + "/" + key
}
