package repo

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront/internal/domain"
)

var base = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func seedProducts(t *testing.T, db *gorm.DB, n int, mut func(i int, p *domain.Product)) []domain.Product {
	t.Helper()
	r := NewProductRepo(db)
	out := make([]domain.Product, 0, n)
	for i := 0; i < n; i++ {
		p := domain.Product{
			ID:        fmt.Sprintf("p%02d", i),
			Name:      fmt.Sprintf("Product %02d", i),
			Price:     float64(10 + i),
			Category:  "shirts",
			Stock:     10,
			IsActive:  true,
			Status:    domain.StatusNone,
			Images:    []string{fmt.Sprintf("https://img.example.com/%d.jpg", i)},
			Tags:      []string{"cotton"},
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if mut != nil {
			mut(i, &p)
		}
		require.NoError(t, r.Create(context.Background(), &p))
		out = append(out, p)
	}
	return out
}

func ptr[T any](v T) *T { return &v }
