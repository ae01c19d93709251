package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/url"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront/internal/core/apperr"
	"storefront/internal/core/storage"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	// 伪随机噪声，压不小
	seed := uint32(2463534242)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			seed ^= seed << 13
			seed ^= seed >> 17
			seed ^= seed << 5
			img.Set(x, y, color.RGBA{R: uint8(seed), G: uint8(seed >> 8), B: uint8(seed >> 16), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newImageSvc(def ImageDefaults) (*ImageService, afero.Fs) {
	fs := afero.NewMemMapFs()
	return NewImageService(zap.NewNop(), storage.NewLocalFs(fs, "/uploads"), def, "https://cdn.example.com"), fs
}

func TestImageService_UploadAndOptimize(t *testing.T) {
	s, fs := newImageSvc(ImageDefaults{})
	raw := pngBytes(t, 800, 400)

	res, err := s.UploadAndOptimizeImage(context.Background(), bytes.NewReader(raw), "products/p1", ImageOptions{MaxWidth: 400, MaxHeight: 400, ThumbSize: 64})
	require.NoError(t, err)

	assert.Equal(t, 400, res.Width)
	assert.Equal(t, 200, res.Height)
	assert.Equal(t, "image/png", res.MIME)
	assert.Equal(t, "jpeg", res.Format)
	assert.Equal(t, "/uploads/products/p1/optimized", res.Optimized)
	assert.EqualValues(t, len(raw), res.OriginalSize)
	assert.InDelta(t, float64(res.OptimizedSize)/float64(res.OriginalSize), res.CompressionRatio, 1e-9)

	for _, name := range []string{"original", "optimized", "thumbnail"} {
		ok, err := afero.Exists(fs, "products/p1/"+name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}

	f, err := fs.Open("products/p1/thumbnail")
	require.NoError(t, err)
	defer f.Close()
	thumb, err := jpeg.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 64), thumb.Bounds())
}

func TestImageService_NoUpscaleNoThumbnail(t *testing.T) {
	s, fs := newImageSvc(ImageDefaults{})
	no := false
	res, err := s.UploadAndOptimizeImage(context.Background(), bytes.NewReader(pngBytes(t, 120, 90)), "small", ImageOptions{Format: "png", Thumbnail: &no})
	require.NoError(t, err)
	assert.Equal(t, 120, res.Width)
	assert.Equal(t, 90, res.Height)
	assert.Empty(t, res.Thumbnail)
	ok, _ := afero.Exists(fs, "small/thumbnail")
	assert.False(t, ok)
}

func TestImageService_Rejects(t *testing.T) {
	s, _ := newImageSvc(ImageDefaults{MaxBytes: 1024})
	ctx := context.Background()

	_, err := s.UploadAndOptimizeImage(ctx, strings.NewReader("just some text, not an image"), "x", ImageOptions{})
	require.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Contains(t, err.Error(), "text/plain")

	_, err = s.UploadAndOptimizeImage(ctx, bytes.NewReader(pngBytes(t, 200, 200)), "x", ImageOptions{})
	require.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Contains(t, err.Error(), "at most 1024 bytes")

	_, err = s.UploadAndOptimizeImage(ctx, bytes.NewReader(pngBytes(t, 4, 4)), "../etc", ImageOptions{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = s.UploadAndOptimizeImage(ctx, bytes.NewReader(pngBytes(t, 4, 4)), "x", ImageOptions{Format: "bmp"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

// hugeHeaderPNG 1x1 的 PNG，把 IHDR 里声明的宽高改大
func hugeHeaderPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	raw := pngBytes(t, 1, 1)
	binary.BigEndian.PutUint32(raw[16:20], w)
	binary.BigEndian.PutUint32(raw[20:24], h)
	binary.BigEndian.PutUint32(raw[29:33], crc32.ChecksumIEEE(raw[12:29]))
	return raw
}

func TestImageService_RejectsOversizedDimensions(t *testing.T) {
	s, fs := newImageSvc(ImageDefaults{})
	ctx := context.Background()

	_, err := s.UploadAndOptimizeImage(ctx, bytes.NewReader(hugeHeaderPNG(t, 60000, 60000)), "bomb", ImageOptions{})
	require.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Contains(t, err.Error(), "pixels")
	ok, _ := afero.Exists(fs, "bomb/original")
	assert.False(t, ok)

	small, _ := newImageSvc(ImageDefaults{MaxPixels: 100})
	_, err = small.UploadAndOptimizeImage(ctx, bytes.NewReader(pngBytes(t, 20, 20)), "x", ImageOptions{})
	require.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = small.UploadAndOptimizeImage(ctx, bytes.NewReader(pngBytes(t, 10, 10)), "x", ImageOptions{})
	assert.NoError(t, err)
}

func TestFitWithin(t *testing.T) {
	cases := []struct{ w, h, mw, mh, ew, eh int }{
		{800, 400, 400, 400, 400, 200},
		{400, 800, 400, 400, 200, 400},
		{100, 50, 400, 400, 100, 50},
		{3000, 10, 300, 300, 300, 1},
	}
	for _, c := range cases {
		w, h := fitWithin(c.w, c.h, c.mw, c.mh)
		assert.Equal(t, [2]int{c.ew, c.eh}, [2]int{w, h}, "%dx%d", c.w, c.h)
	}
}

func TestBuildCDNURL(t *testing.T) {
	s, _ := newImageSvc(ImageDefaults{})
	assert.Empty(t, s.BuildCDNURL("", CDNOptions{Width: 10}))

	got := s.BuildCDNURL("/uploads/p1/optimized", CDNOptions{Width: 320, Quality: 70, Format: "webp"})
	u, err := url.Parse(got)
	require.NoError(t, err)
	assert.Equal(t, "cdn.example.com", u.Host)
	assert.Equal(t, "/uploads/p1/optimized", u.Path)
	assert.Equal(t, "320", u.Query().Get("w"))
	assert.Equal(t, "70", u.Query().Get("q"))
	assert.Equal(t, "webp", u.Query().Get("fm"))
	assert.Empty(t, u.Query().Get("h"))

	abs := s.BuildCDNURL("https://img.other.com/a.jpg?v=2", CDNOptions{Height: 100})
	assert.Equal(t, "https://img.other.com/a.jpg?h=100&v=2", abs)

	rs := s.ResponsiveURLs("/a.jpg", []int{320, 640}, 75)
	require.Len(t, rs, 2)
	assert.Contains(t, rs[640], "w=640")
}
