package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"storefront/internal/domain/model"
	"storefront/internal/domain/slug"
	repo "storefront/internal/repository"
	"storefront/internal/validator"
)

const (
	DefaultPageSize = 12
	MaxPageSize     = 100
	relatedLimit    = 4
	skuPrefix       = "PRD-"
	skuRandomLength = 8
)

type CatalogUsecase struct {
	products   repo.ProductRepository
	categories repo.CategoryRepository
	tx         repo.TransactionManager
	idGen      IDGenerator
	clock      Clock
}

// DI
func NewCatalogUsecase(
	products repo.ProductRepository,
	categories repo.CategoryRepository,
	tx repo.TransactionManager,
	idGen IDGenerator,
	clock Clock,
) *CatalogUsecase {
	return &CatalogUsecase{
		products:   products,
		categories: categories,
		tx:         tx,
		idGen:      idGen,
		clock:      clock,
	}
}

// 一覧・詳細で返す商品。実売価格などの派生値つき
type ProductView struct {
	model.Product
	EffectivePrice     decimal.Decimal `json:"effective_price"`
	OnSale             bool            `json:"on_sale"`
	InStock            bool            `json:"in_stock"`
	DiscountPercentage *int64          `json:"discount_percentage,omitempty"`
}

func toProductView(p model.Product) ProductView {
	return ProductView{
		Product:            p,
		EffectivePrice:     p.EffectivePrice(),
		OnSale:             p.IsOnSale(),
		InStock:            p.InStock(),
		DiscountPercentage: p.DiscountPercentage(),
	}
}

func toProductViews(ps []model.Product) []ProductView {
	out := make([]ProductView, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProductView(p))
	}
	return out
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Page     int
	Limit    int
	Q        string
	Category string
	MinPrice *decimal.Decimal
	MaxPrice *decimal.Decimal
	InStock  bool
	OnSale   bool
	Sort     string
}

type ProductListOutput struct {
	Items []ProductView `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

type ProductDetailOutput struct {
	Product ProductView   `json:"product"`
	Related []ProductView `json:"related"`
}

type CategoryDetailOutput struct {
	Category model.Category    `json:"category"`
	Products ProductListOutput `json:"products"`
}

// page / limit の既定値と上限
func normalizePage(page, limit int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if page < 1 {
		return 0, 0, fieldError("page", "must be at least 1")
	}
	if limit < 1 || limit > MaxPageSize {
		return 0, 0, fieldError("limit", fmt.Sprintf("must be between 1 and %d", MaxPageSize))
	}
	return page, limit, nil
}

func (u *CatalogUsecase) ListProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	page, limit, err := normalizePage(in.Page, in.Limit)
	if err != nil {
		return ProductListOutput{}, err
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, fieldError("q", "must be at most 100 characters")
	}
	if in.MinPrice != nil && in.MinPrice.IsNegative() {
		return ProductListOutput{}, fieldError("min_price", "must be >= 0")
	}
	if in.MaxPrice != nil && in.MaxPrice.IsNegative() {
		return ProductListOutput{}, fieldError("max_price", "must be >= 0")
	}
	if in.MinPrice != nil && in.MaxPrice != nil && in.MinPrice.GreaterThan(*in.MaxPrice) {
		return ProductListOutput{}, fieldError("min_price", "must be <= max_price")
	}
	sort := in.Sort
	switch sort {
	case "":
		sort = repo.SortNewest
	case repo.SortNewest, repo.SortPriceAsc, repo.SortPriceDesc, repo.SortNameAsc, repo.SortNameDesc:
	default:
		return ProductListOutput{}, fieldError("sort", "is invalid")
	}

	items, total, err := u.products.ListPublic(ctx, repo.ProductListQuery{
		Page:         page,
		Limit:        limit,
		Q:            strings.TrimSpace(in.Q),
		CategorySlug: strings.TrimSpace(in.Category),
		MinPrice:     in.MinPrice,
		MaxPrice:     in.MaxPrice,
		InStock:      in.InStock,
		OnSale:       in.OnSale,
		Sort:         sort,
	})
	if err != nil {
		return ProductListOutput{}, NewInternal(err)
	}

	return ProductListOutput{
		Items: toProductViews(items),
		Total: total,
		Page:  page,
		Limit: limit,
	}, nil
}

// 公開商品と同じカテゴリの関連商品（最大4件）
func (u *CatalogUsecase) GetProductBySlug(ctx context.Context, productSlug string) (ProductDetailOutput, error) {
	productSlug = strings.TrimSpace(productSlug)
	if productSlug == "" {
		return ProductDetailOutput{}, NewNotFound("product")
	}

	p, err := u.products.FindActiveBySlug(ctx, productSlug)
	if errors.Is(err, repo.ErrNotFound) {
		return ProductDetailOutput{}, NewNotFound("product")
	}
	if err != nil {
		return ProductDetailOutput{}, NewInternal(err)
	}

	related, err := u.products.ListRelated(ctx, p, relatedLimit)
	if err != nil {
		return ProductDetailOutput{}, NewInternal(err)
	}

	return ProductDetailOutput{Product: toProductView(p), Related: toProductViews(related)}, nil
}

func (u *CatalogUsecase) ListCategories(ctx context.Context) ([]repo.CategoryWithCount, error) {
	rows, err := u.categories.ListActiveWithCounts(ctx)
	if err != nil {
		return nil, NewInternal(err)
	}
	return rows, nil
}

func (u *CatalogUsecase) GetCategoryBySlug(ctx context.Context, categorySlug string, page, limit int) (CategoryDetailOutput, error) {
	page, limit, err := normalizePage(page, limit)
	if err != nil {
		return CategoryDetailOutput{}, err
	}

	c, err := u.categories.FindActiveBySlug(ctx, strings.TrimSpace(categorySlug))
	if errors.Is(err, repo.ErrNotFound) {
		return CategoryDetailOutput{}, NewNotFound("category")
	}
	if err != nil {
		return CategoryDetailOutput{}, NewInternal(err)
	}

	items, total, err := u.products.ListPublic(ctx, repo.ProductListQuery{
		Page:       page,
		Limit:      limit,
		CategoryID: &c.ID,
		Sort:       repo.SortNewest,
	})
	if err != nil {
		return CategoryDetailOutput{}, NewInternal(err)
	}

	return CategoryDetailOutput{
		Category: c,
		Products: ProductListOutput{Items: toProductViews(items), Total: total, Page: page, Limit: limit},
	}, nil
}

// 管理者の商品作成・更新の入力。Stock は作成時の初期在庫としてのみ使う
type ProductInput struct {
	CategoryID       int64            `json:"category_id" validate:"required,gt=0"`
	Name             string           `json:"name" validate:"required,max=255"`
	SKU              string           `json:"sku" validate:"max=64"`
	ShortDescription string           `json:"short_description" validate:"max=500"`
	Description      string           `json:"description"`
	Image            string           `json:"image" validate:"max=255"`
	Price            decimal.Decimal  `json:"price"`
	SalePrice        *decimal.Decimal `json:"sale_price"`
	Stock            int64            `json:"stock" validate:"gte=0"`
	IsActive         bool             `json:"is_active"`
	IsFeatured       bool             `json:"is_featured"`
	SortOrder        int              `json:"sort_order"`
}

// validate タグの結果（常に non-nil）
func validatorFields(s any) map[string]string {
	fields := validator.Struct(s)
	if fields == nil {
		fields = map[string]string{}
	}
	return fields
}

func (in ProductInput) validate() error {
	fields := validatorFields(in)
	if in.Price.IsNegative() {
		fields["price"] = "must be >= 0"
	}
	if in.SalePrice != nil && in.SalePrice.IsNegative() {
		fields["sale_price"] = "must be >= 0"
	}
	if len(fields) > 0 {
		return NewValidationError("invalid product", fields)
	}
	return nil
}

func (u *CatalogUsecase) CreateProduct(ctx context.Context, actorID int64, in ProductInput) (model.Product, error) {
	if actorID <= 0 {
		return model.Product{}, NewUnauthorized()
	}
	in.Name = strings.TrimSpace(in.Name)
	in.SKU = strings.ToUpper(strings.TrimSpace(in.SKU))
	if err := in.validate(); err != nil {
		return model.Product{}, err
	}

	var created model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if err := ensureCategory(ctx, r, in.CategoryID); err != nil {
			return err
		}

		productSlug, err := slug.Unique(slug.Make(in.Name), func(s string) (bool, error) {
			return r.Products().SlugExists(ctx, s)
		})
		if err != nil {
			return NewInternal(err)
		}

		sku, err := u.resolveSKU(ctx, r, in.SKU)
		if err != nil {
			return err
		}

		p, err := r.Products().Create(ctx, model.Product{
			CategoryID:       in.CategoryID,
			Name:             in.Name,
			Slug:             productSlug,
			SKU:              sku,
			ShortDescription: in.ShortDescription,
			Description:      in.Description,
			Image:            in.Image,
			Price:            in.Price.Round(2),
			SalePrice:        roundPtr(in.SalePrice),
			Stock:            in.Stock,
			IsActive:         in.IsActive,
			IsFeatured:       in.IsFeatured,
			SortOrder:        in.SortOrder,
		})
		if errors.Is(err, repo.ErrDuplicate) {
			return NewConflict("product slug or sku already exists")
		}
		if err != nil {
			return NewInternal(err)
		}

		if p.Stock > 0 {
			if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
				ProductID:   p.ID,
				ActorUserID: actorID,
				Delta:       p.Stock,
				Reason:      "initial stock",
				CreatedAt:   u.clock.Now(),
			}); err != nil {
				return NewInternal(err)
			}
		}

		created = p
		return writeAudit(ctx, r, u.clock, actorID, model.AuditActionCreateProduct, model.AuditResourceProduct, p.ID, nil, p)
	})
	if err != nil {
		return model.Product{}, passThrough(err)
	}
	return created, nil
}

// 空なら PRD-XXXXXXXX を採番
func (u *CatalogUsecase) resolveSKU(ctx context.Context, r repo.TxRepos, requested string) (string, error) {
	if requested != "" {
		taken, err := r.Products().SKUExists(ctx, requested)
		if err != nil {
			return "", NewInternal(err)
		}
		if taken {
			return "", fieldError("sku", "has already been taken")
		}
		return requested, nil
	}

	for i := 0; i < 5; i++ {
		candidate := skuPrefix + randomCode(u.idGen, skuRandomLength)
		taken, err := r.Products().SKUExists(ctx, candidate)
		if err != nil {
			return "", NewInternal(err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", NewConflict("could not allocate a sku")
}

func (u *CatalogUsecase) UpdateProduct(ctx context.Context, actorID int64, productID int64, in ProductInput) (model.Product, error) {
	if actorID <= 0 {
		return model.Product{}, NewUnauthorized()
	}
	if productID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	in.Name = strings.TrimSpace(in.Name)
	if err := in.validate(); err != nil {
		return model.Product{}, err
	}

	var updated model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		before, err := r.Products().FindByID(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewNotFound("product")
		}
		if err != nil {
			return NewInternal(err)
		}
		if err := ensureCategory(ctx, r, in.CategoryID); err != nil {
			return err
		}

		after := before
		after.CategoryID = in.CategoryID
		after.Category = nil
		after.Name = in.Name
		after.ShortDescription = in.ShortDescription
		after.Description = in.Description
		after.Image = in.Image
		after.Price = in.Price.Round(2)
		after.SalePrice = roundPtr(in.SalePrice)
		after.IsActive = in.IsActive
		after.IsFeatured = in.IsFeatured
		after.SortOrder = in.SortOrder

		if err := r.Products().Update(ctx, after); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewNotFound("product")
			}
			return NewInternal(err)
		}

		updated = after
		return writeAudit(ctx, r, u.clock, actorID, model.AuditActionUpdateProduct, model.AuditResourceProduct, productID, before, after)
	})
	if err != nil {
		return model.Product{}, passThrough(err)
	}
	return updated, nil
}

func (u *CatalogUsecase) DeleteProduct(ctx context.Context, actorID int64, productID int64) error {
	if actorID <= 0 {
		return NewUnauthorized()
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		err := r.Products().SoftDelete(ctx, productID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewNotFound("product")
		}
		if err != nil {
			return NewInternal(err)
		}
		return writeAudit(ctx, r, u.clock, actorID, model.AuditActionDeleteProduct, model.AuditResourceProduct, productID, nil, nil)
	})
	return passThrough(err)
}

// 在庫を現在値に設定し、差分を調整履歴と監査ログに残す
func (u *CatalogUsecase) Restock(ctx context.Context, actorID int64, productID int64, newStock int64, reason string) (model.Product, error) {
	if actorID <= 0 {
		return model.Product{}, NewUnauthorized()
	}
	if productID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}
	if newStock < 0 {
		return model.Product{}, fieldError("stock", "must be >= 0")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Product{}, fieldError("reason", "is required")
	}
	if len(reason) > 255 {
		return model.Product{}, fieldError("reason", "must be at most 255 characters")
	}

	var out model.Product
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		//変更前の在庫（before）を行ロックして読む
		locked, err := r.Products().LockByIDs(ctx, []int64{productID})
		if err != nil {
			return NewInternal(err)
		}
		if len(locked) == 0 {
			return NewNotFound("product")
		}
		p := locked[0]

		if err := r.Inventory().SetStock(ctx, productID, newStock); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewNotFound("product")
			}
			return NewInternal(err)
		}

		//履歴を作成（差分）
		if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
			ProductID:   productID,
			ActorUserID: actorID,
			Delta:       newStock - p.Stock,
			Reason:      reason,
			CreatedAt:   u.clock.Now(),
		}); err != nil {
			return NewInternal(err)
		}

		out = p
		out.Stock = newStock
		return writeAudit(ctx, r, u.clock, actorID, model.AuditActionUpdateStock, model.AuditResourceProduct, productID,
			map[string]int64{"stock": p.Stock}, map[string]int64{"stock": newStock})
	})
	if err != nil {
		return model.Product{}, passThrough(err)
	}
	return out, nil
}

type CategoryInput struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
	Image       string `json:"image" validate:"max=255"`
	IsActive    bool   `json:"is_active"`
	SortOrder   int    `json:"sort_order"`
}

func (u *CatalogUsecase) CreateCategory(ctx context.Context, actorID int64, in CategoryInput) (model.Category, error) {
	if actorID <= 0 {
		return model.Category{}, NewUnauthorized()
	}
	in.Name = strings.TrimSpace(in.Name)
	if fields := validator.Struct(in); fields != nil {
		return model.Category{}, NewValidationError("invalid category", fields)
	}

	var created model.Category
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		categorySlug, err := slug.Unique(slug.Make(in.Name), func(s string) (bool, error) {
			return r.Categories().SlugExists(ctx, s)
		})
		if err != nil {
			return NewInternal(err)
		}

		c, err := r.Categories().Create(ctx, model.Category{
			Name:        in.Name,
			Slug:        categorySlug,
			Description: in.Description,
			Image:       in.Image,
			IsActive:    in.IsActive,
			SortOrder:   in.SortOrder,
		})
		if errors.Is(err, repo.ErrDuplicate) {
			return NewConflict("category slug already exists")
		}
		if err != nil {
			return NewInternal(err)
		}

		created = c
		return writeAudit(ctx, r, u.clock, actorID, model.AuditActionCreateCategory, model.AuditResourceCategory, c.ID, nil, c)
	})
	if err != nil {
		return model.Category{}, passThrough(err)
	}
	return created, nil
}

func ensureCategory(ctx context.Context, r repo.TxRepos, categoryID int64) error {
	_, err := r.Categories().FindByID(ctx, categoryID)
	if errors.Is(err, repo.ErrNotFound) {
		return fieldError("category_id", "does not exist")
	}
	if err != nil {
		return NewInternal(err)
	}
	return nil
}

func roundPtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := d.Round(2)
	return &v
}

// randomCode は ID の英数字部分から n 文字の大文字コードを作る
func randomCode(idGen IDGenerator, n int) string {
	var b strings.Builder
	for b.Len() < n {
		for _, r := range strings.ToUpper(idGen.NewID()) {
			if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
				if b.Len() == n {
					break
				}
			}
		}
	}
	return b.String()
}

// 監査ログ（before / after は JSON 文字列で保存）
func writeAudit(
	ctx context.Context,
	r repo.TxRepos,
	clock Clock,
	actorID int64,
	action model.AuditAction,
	resource model.AuditResourceType,
	resourceID int64,
	before, after any,
) error {
	log := model.AuditLog{
		ActorUserID:  actorID,
		Action:       action,
		ResourceType: resource,
		ResourceID:   resourceID,
		BeforeJSON:   toJSON(before),
		AfterJSON:    toJSON(after),
		CreatedAt:    clock.Now(),
	}
	if err := r.AuditLogs().Create(ctx, log); err != nil {
		return NewInternal(err)
	}
	return nil
}

func toJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
