package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"storefront/internal/core/apperr"
	"storefront/internal/core/storage"
)

var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

type ImageOptions struct {
	MaxWidth  int    `form:"maxWidth" json:"maxWidth"`
	MaxHeight int    `form:"maxHeight" json:"maxHeight"`
	Quality   int    `form:"quality" json:"quality"`     // 1-100，只对 jpeg 生效
	Format    string `form:"format" json:"format"`       // jpeg | png，空则 jpeg
	Thumbnail *bool  `form:"thumbnail" json:"thumbnail"` // 默认生成
	ThumbSize int    `form:"thumbSize" json:"thumbSize"`
}

type ImageDefaults struct {
	MaxBytes  int64
	MaxWidth  int
	MaxHeight int
	Quality   int
	ThumbSize int
	MaxPixels int64 // 解码前按声明的宽高拦截
}

type UploadResult struct {
	Original         string  `json:"original"`
	Optimized        string  `json:"optimized"`
	Thumbnail        string  `json:"thumbnail,omitempty"`
	OriginalSize     int64   `json:"originalSize"`
	OptimizedSize    int64   `json:"optimizedSize"`
	ThumbnailSize    int64   `json:"thumbnailSize,omitempty"`
	CompressionRatio float64 `json:"compressionRatio"`
	Width            int     `json:"width"`
	Height           int     `json:"height"`
	Format           string  `json:"format"`
	MIME             string  `json:"mime"`
}

type ImageService struct {
	store storage.Store
	def   ImageDefaults
	cdn   string
	log   *zap.Logger
}

func NewImageService(l *zap.Logger, store storage.Store, def ImageDefaults, cdnBase string) *ImageService {
	if l == nil {
		l = zap.NewNop()
	}
	if def.MaxBytes <= 0 {
		def.MaxBytes = 10 << 20
	}
	if def.MaxWidth <= 0 {
		def.MaxWidth = 1920
	}
	if def.MaxHeight <= 0 {
		def.MaxHeight = 1920
	}
	if def.Quality <= 0 || def.Quality > 100 {
		def.Quality = 80
	}
	if def.ThumbSize <= 0 {
		def.ThumbSize = 300
	}
	if def.MaxPixels <= 0 {
		def.MaxPixels = 40_000_000
	}
	return &ImageService{store: store, def: def, cdn: cdnBase, log: l}
}

func (s *ImageService) withDefaults(o ImageOptions) ImageOptions {
	if o.MaxWidth <= 0 {
		o.MaxWidth = s.def.MaxWidth
	}
	if o.MaxHeight <= 0 {
		o.MaxHeight = s.def.MaxHeight
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = s.def.Quality
	}
	if o.ThumbSize <= 0 {
		o.ThumbSize = s.def.ThumbSize
	}
	o.Format = strings.ToLower(strings.TrimSpace(o.Format))
	if o.Format == "jpg" || o.Format == "" {
		o.Format = "jpeg"
	}
	return o
}

// UploadAndOptimizeImage 校验、缩放、重新编码、生成缩略图，三份文件并行上传。
// 并行上传中某一份失败不会回滚已成功的文件。
func (s *ImageService) UploadAndOptimizeImage(ctx context.Context, r io.Reader, dir string, o ImageOptions) (*UploadResult, error) {
	o = s.withDefaults(o)
	if o.Format != "jpeg" && o.Format != "png" {
		return nil, apperr.Validation("format must be one of [jpeg png]")
	}
	dir, err := storage.CleanKey(dir)
	if err != nil {
		return nil, apperr.Validation("path is invalid")
	}

	raw, err := io.ReadAll(io.LimitReader(r, s.def.MaxBytes+1))
	if err != nil {
		return nil, apperr.Validation("could not read upload")
	}
	if int64(len(raw)) > s.def.MaxBytes {
		return nil, apperr.Validation(fmt.Sprintf("image must be at most %d bytes", s.def.MaxBytes))
	}
	mt := mimetype.Detect(raw)
	if !allowedImageTypes[mt.String()] {
		return nil, apperr.Validation("file type " + mt.String() + " is not an allowed image type")
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, apperr.Validation("image could not be decoded")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > s.def.MaxPixels {
		return nil, apperr.Validation(fmt.Sprintf("image must be at most %d pixels", s.def.MaxPixels))
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, apperr.Validation("image could not be decoded")
	}
	optimized := resizeWithin(src, o.MaxWidth, o.MaxHeight)
	optBytes, err := encode(optimized, o.Format, o.Quality)
	if err != nil {
		return nil, err
	}

	res := &UploadResult{
		OriginalSize:  int64(len(raw)),
		OptimizedSize: int64(len(optBytes)),
		Width:         optimized.Bounds().Dx(),
		Height:        optimized.Bounds().Dy(),
		Format:        o.Format,
		MIME:          mt.String(),
	}
	res.CompressionRatio = float64(res.OptimizedSize) / float64(res.OriginalSize)

	var thumbBytes []byte
	if o.Thumbnail == nil || *o.Thumbnail {
		thumbBytes, err = encode(thumbnail(src, o.ThumbSize), o.Format, o.Quality)
		if err != nil {
			return nil, err
		}
		res.ThumbnailSize = int64(len(thumbBytes))
	}

	outType := "image/" + o.Format
	g, gctx := errgroup.WithContext(ctx)
	put := func(name string, data []byte, ct string, dst *string) {
		g.Go(func() error {
			obj, err := s.store.Put(gctx, path.Join(dir, name), bytes.NewReader(data), int64(len(data)), ct)
			if err != nil {
				return fmt.Errorf("upload %s: %w", name, err)
			}
			*dst = obj.URL
			return nil
		})
	}
	put("original", raw, mt.String(), &res.Original)
	put("optimized", optBytes, outType, &res.Optimized)
	if thumbBytes != nil {
		put("thumbnail", thumbBytes, outType, &res.Thumbnail)
	}
	if err := g.Wait(); err != nil {
		s.log.Error("image upload failed", zap.String("path", dir), zap.Error(err))
		return nil, apperr.Unavailable("Image upload failed. Please try again.", err)
	}
	return res, nil
}

// resizeWithin 等比缩小到 maxW x maxH 以内，不放大
func resizeWithin(src image.Image, maxW, maxH int) image.Image {
	b := src.Bounds()
	w, h := fitWithin(b.Dx(), b.Dy(), maxW, maxH)
	if w == b.Dx() && h == b.Dy() {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}

func fitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= maxW && h <= maxH {
		return w, h
	}
	scale := min(float64(maxW)/float64(w), float64(maxH)/float64(h))
	nw, nh := int(float64(w)*scale+0.5), int(float64(h)*scale+0.5)
	return max(1, nw), max(1, nh)
}

// thumbnail 居中裁成正方形再缩放到 size x size
func thumbnail(src image.Image, size int) image.Image {
	b := src.Bounds()
	side := min(b.Dx(), b.Dy())
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, crop, draw.Over, nil)
	return dst
}

func encode(img image.Image, format string, quality int) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = (&png.Encoder{CompressionLevel: png.BestCompression}).Encode(&buf, img)
	default:
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

type CDNOptions struct {
	Width   int
	Height  int
	Quality int
	Format  string
}

// BuildCDNURL 追加 w/h/q/fm 参数，由外部 CDN 实时变换。相对地址会拼上 CDN 域名。
func (s *ImageService) BuildCDNURL(raw string, o CDNOptions) string {
	if raw == "" {
		return ""
	}
	if s.cdn != "" && strings.HasPrefix(raw, "/") {
		raw = strings.TrimRight(s.cdn, "/") + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if o.Width > 0 {
		q.Set("w", strconv.Itoa(o.Width))
	}
	if o.Height > 0 {
		q.Set("h", strconv.Itoa(o.Height))
	}
	if o.Quality > 0 {
		q.Set("q", strconv.Itoa(o.Quality))
	}
	if o.Format != "" {
		q.Set("fm", o.Format)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ResponsiveURLs 每个宽度一条变体地址，供 srcset 使用
func (s *ImageService) ResponsiveURLs(raw string, widths []int, quality int) map[int]string {
	out := make(map[int]string, len(widths))
	for _, w := range widths {
		out[w] = s.BuildCDNURL(raw, CDNOptions{Width: w, Quality: quality, Format: "webp"})
	}
	return out
}
