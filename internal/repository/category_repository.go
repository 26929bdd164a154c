package repository

import (
	"context"

	"storefront/internal/domain/model"
)

// 一覧用。有効な商品数つき
type CategoryWithCount struct {
	model.Category
	ProductCount int64 `json:"product_count"`
}

type CategoryRepository interface {
	ListActiveWithCounts(ctx context.Context) ([]CategoryWithCount, error)
	FindActiveBySlug(ctx context.Context, slug string) (model.Category, error)
	FindByID(ctx context.Context, id int64) (model.Category, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	Create(ctx context.Context, c model.Category) (model.Category, error)
}
