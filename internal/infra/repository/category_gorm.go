package repository

import (
	"context"

	"gorm.io/gorm"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type CategoryGormRepository struct {
	db *gorm.DB
}

func NewCategoryGormRepository(db *gorm.DB) *CategoryGormRepository {
	return &CategoryGormRepository{db: db}
}

// 公開カテゴリ一覧（sort_order, name 順）と公開商品数
func (r *CategoryGormRepository) ListActiveWithCounts(ctx context.Context) ([]repo.CategoryWithCount, error) {
	var rows []repo.CategoryWithCount
	err := r.db.WithContext(ctx).
		Model(&model.Category{}).
		Select(
			"categories.*, (SELECT COUNT(*) FROM products WHERE products.category_id = categories.id AND products.is_active = ? AND products.deleted_at IS NULL) AS product_count",
			true,
		).
		Where("categories.is_active = ?", true).
		Order("categories.sort_order asc").Order("categories.name asc").
		Scan(&rows).Error
	if err != nil {
		return []repo.CategoryWithCount{}, err
	}
	return rows, nil
}

func (r *CategoryGormRepository) FindActiveBySlug(ctx context.Context, slug string) (model.Category, error) {
	var c model.Category
	if err := r.db.WithContext(ctx).Where("slug = ? AND is_active = ?", slug, true).First(&c).Error; err != nil {
		return model.Category{}, translate(err)
	}
	return c, nil
}

func (r *CategoryGormRepository) FindByID(ctx context.Context, id int64) (model.Category, error) {
	var c model.Category
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return model.Category{}, translate(err)
	}
	return c, nil
}

func (r *CategoryGormRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Category{}).Where("slug = ?", slug).Count(&n).Error
	return n > 0, err
}

func (r *CategoryGormRepository) Create(ctx context.Context, c model.Category) (model.Category, error) {
	if err := r.db.WithContext(ctx).Create(&c).Error; err != nil {
		return model.Category{}, translate(err)
	}
	return c, nil
}
