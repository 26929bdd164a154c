package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type ProductGormRepository struct {
	db *gorm.DB
}

// DI
func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

// 公開商品のみを、検索/カテゴリ/価格帯/在庫/セール/ソート/ページング付きで返す。
func (r *ProductGormRepository) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	var products []model.Product
	var total int64

	tx := r.db.WithContext(ctx).Model(&model.Product{})

	// 公開（is_active=true）かつ、商品削除されていないものだけ
	tx = tx.Where("products.is_active = ?", true)

	// q nameを対象（大文字小文字は無視）
	if s := strings.TrimSpace(q.Q); s != "" {
		tx = tx.Where("LOWER(products.name) LIKE ?", "%"+strings.ToLower(s)+"%")
	}

	if q.CategorySlug != "" {
		sub := r.db.Model(&model.Category{}).Select("id").Where("slug = ? AND is_active = ?", q.CategorySlug, true)
		tx = tx.Where("products.category_id IN (?)", sub)
	}
	if q.CategoryID != nil {
		tx = tx.Where("products.category_id = ?", *q.CategoryID)
	}

	//価格帯（定価）
	if q.MinPrice != nil {
		tx = tx.Where("products.price >= ?", *q.MinPrice)
	}
	if q.MaxPrice != nil {
		tx = tx.Where("products.price <= ?", *q.MaxPrice)
	}

	if q.InStock {
		tx = tx.Where("products.stock > 0")
	}
	if q.OnSale {
		tx = tx.Where("products.sale_price IS NOT NULL AND products.sale_price < products.price")
	}

	//total（件数）
	if err := tx.Count(&total).Error; err != nil {
		return []model.Product{}, 0, err
	}

	//sort
	switch q.Sort {
	case repo.SortPriceAsc:
		tx = tx.Order("products.price asc").Order("products.id asc")
	case repo.SortPriceDesc:
		tx = tx.Order("products.price desc").Order("products.id desc")
	case repo.SortNameAsc:
		tx = tx.Order("products.name asc").Order("products.id asc")
	case repo.SortNameDesc:
		tx = tx.Order("products.name desc").Order("products.id desc")
	default:
		tx = tx.Order("products.created_at desc").Order("products.id desc")
	}

	if err := tx.Preload("Category").Offset(offset(q.Page, q.Limit)).Limit(q.Limit).Find(&products).Error; err != nil {
		return []model.Product{}, 0, err
	}

	return products, total, nil
}

// 同じカテゴリの他の公開商品
func (r *ProductGormRepository) ListRelated(ctx context.Context, p model.Product, limit int) ([]model.Product, error) {
	var products []model.Product
	err := r.db.WithContext(ctx).
		Where("category_id = ? AND id <> ? AND is_active = ?", p.CategoryID, p.ID, true).
		Order("sort_order asc").Order("id desc").
		Limit(limit).
		Find(&products).Error
	if err != nil {
		return []model.Product{}, err
	}
	return products, nil
}

// IDで商品を取得
func (r *ProductGormRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return model.Product{}, translate(err)
	}
	return p, nil
}

func (r *ProductGormRepository) FindActiveBySlug(ctx context.Context, slug string) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).
		Preload("Category").
		Where("slug = ? AND is_active = ?", slug, true).
		First(&p).Error
	if err != nil {
		return model.Product{}, translate(err)
	}
	return p, nil
}

// 注文確定用に行ロック。デッドロックを避けるため常に id 昇順
func (r *ProductGormRepository) LockByIDs(ctx context.Context, ids []int64) ([]model.Product, error) {
	if len(ids) == 0 {
		return []model.Product{}, nil
	}
	var products []model.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id asc").
		Find(&products).Error
	if err != nil {
		return []model.Product{}, err
	}
	return products, nil
}

func (r *ProductGormRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Unscoped().Model(&model.Product{}).Where("slug = ?", slug).Count(&n).Error
	return n > 0, err
}

func (r *ProductGormRepository) SKUExists(ctx context.Context, sku string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Unscoped().Model(&model.Product{}).Where("sku = ?", sku).Count(&n).Error
	return n > 0, err
}

// 商品の作成
func (r *ProductGormRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(&p).Error; err != nil {
		return model.Product{}, translate(err)
	}
	return p, nil
}

// 商品の更新（在庫は Inventory 経由でのみ変える）
func (r *ProductGormRepository) Update(ctx context.Context, p model.Product) error {
	var sale any
	if p.SalePrice != nil {
		sale = *p.SalePrice
	}
	res := r.db.WithContext(ctx).Model(&model.Product{}).Where("id = ?", p.ID).Updates(map[string]any{
		"category_id":       p.CategoryID,
		"name":              p.Name,
		"short_description": p.ShortDescription,
		"description":       p.Description,
		"price":             p.Price,
		"sale_price":        sale,
		"image":             p.Image,
		"is_active":         p.IsActive,
		"is_featured":       p.IsFeatured,
		"sort_order":        p.SortOrder,
	})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// 商品削除（論理削除）
func (r *ProductGormRepository) SoftDelete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Delete(&model.Product{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
