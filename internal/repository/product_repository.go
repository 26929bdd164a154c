package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"storefront/internal/domain/model"
)

const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortNameAsc   = "name_asc"
	SortNameDesc  = "name_desc"
)

// 一覧検索
type ProductListQuery struct {
	Page         int
	Limit        int
	Q            string
	CategorySlug string
	CategoryID   *int64
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	InStock      bool
	OnSale       bool
	Sort         string
}

// 商品の永続化（保存・取得）だけを約束。
type ProductRepository interface {
	// 有効な商品のみ
	ListPublic(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	ListRelated(ctx context.Context, p model.Product, limit int) ([]model.Product, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)
	FindActiveBySlug(ctx context.Context, slug string) (model.Product, error)
	// id 昇順で SELECT ... FOR UPDATE。見つからない id は結果に含まれない
	LockByIDs(ctx context.Context, ids []int64) ([]model.Product, error)
	// 論理削除済みも含めて判定
	SlugExists(ctx context.Context, slug string) (bool, error)
	SKUExists(ctx context.Context, sku string) (bool, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	Update(ctx context.Context, p model.Product) error
	SoftDelete(ctx context.Context, id int64) error
}
