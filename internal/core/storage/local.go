package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path"

	"github.com/spf13/afero"
)

// Local 本地目录（或测试用内存 FS），由 HTTP 静态目录对外提供
type Local struct {
	fs        afero.Fs
	publicURL string
}

func NewLocal(baseDir, publicURL string) *Local {
	return NewLocalFs(afero.NewBasePathFs(afero.NewOsFs(), baseDir), publicURL)
}

func NewLocalFs(fsys afero.Fs, publicURL string) *Local {
	return &Local{fs: fsys, publicURL: publicURL}
}

func (l *Local) Fs() afero.Fs { return l.fs }

func (l *Local) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) (Object, error) {
	k, err := CleanKey(key)
	if err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	if err := l.fs.MkdirAll(path.Dir(k), 0o755); err != nil {
		return Object{}, err
	}
	f, err := l.fs.Create(k)
	if err != nil {
		return Object{}, err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = l.fs.Remove(k)
		return Object{}, err
	}
	return Object{Key: k, URL: l.URL(k), Size: n, ContentType: contentType}, nil
}

func (l *Local) Get(_ context.Context, key string) (io.ReadCloser, error) {
	k, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := l.fs.Open(k)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return f, err
}

func (l *Local) Delete(_ context.Context, key string) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	err = l.fs.Remove(k)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func (l *Local) URL(key string) string { return joinURL(l.publicURL, key) }
