package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"storefront/internal/domain/model"
	"storefront/internal/domain/money"
	"storefront/internal/domain/slug"
	"storefront/internal/infra/db/dbtest"
	infrarepo "storefront/internal/infra/repository"
	"storefront/internal/logger"
	"storefront/internal/metrics"
)

var testNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

// SQLite 上に実際のリポジトリで組み立てたユースケース一式
type shopFixture struct {
	conn      *gorm.DB
	category  model.Category
	reg       *prometheus.Registry
	catalog   *CatalogUsecase
	cart      *CartUsecase
	checkout  *CheckoutUsecase
	orders    *OrderUsecase
	lifecycle *OrderLifecycleUsecase
}

func newShopFixture(t *testing.T, idGen IDGenerator) *shopFixture {
	t.Helper()
	return newShopFixtureOn(t, dbtest.Open(t), idGen)
}

func newShopFixtureOn(t *testing.T, conn *gorm.DB, idGen IDGenerator) *shopFixture {
	t.Helper()

	tx := infrarepo.NewTxManagerGorm(conn)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	clock := fixedClock{t: testNow}
	policy := money.DefaultPolicy()
	log := logger.Nop()

	category := model.Category{Name: "General", Slug: "general", IsActive: true}
	require.NoError(t, conn.Create(&category).Error)

	return &shopFixture{
		conn:     conn,
		category: category,
		reg:      reg,
		catalog: NewCatalogUsecase(
			infrarepo.NewProductGormRepository(conn),
			infrarepo.NewCategoryGormRepository(conn),
			tx, idGen, clock,
		),
		cart: NewCartUsecase(tx, policy),
		checkout: NewCheckoutUsecase(tx, policy, CheckoutConfig{
			OrderNumberPrefix: "ORD",
			MaxAttempts:       3,
		}, idGen, clock, log, m),
		orders:    NewOrderUsecase(tx),
		lifecycle: NewOrderLifecycleUsecase(tx, clock, log, m),
	}
}

func (f *shopFixture) seedProduct(t *testing.T, name string, price string, stock int64) model.Product {
	t.Helper()
	s := slug.Make(name)
	p := model.Product{
		CategoryID: f.category.ID,
		Name:       name,
		Slug:       s,
		SKU:        "SKU-" + s,
		Price:      decimal.RequireFromString(price),
		Stock:      stock,
		IsActive:   true,
	}
	require.NoError(t, f.conn.Create(&p).Error)
	return p
}

func (f *shopFixture) stockOf(t *testing.T, productID int64) int64 {
	t.Helper()
	var p model.Product
	require.NoError(t, f.conn.Unscoped().First(&p, productID).Error)
	return p.Stock
}

func (f *shopFixture) count(t *testing.T, m any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(m).Count(&n).Error)
	return n
}

func (f *shopFixture) adjustments(t *testing.T, productID int64) []model.InventoryAdjustment {
	t.Helper()
	adjs, err := infrarepo.NewInventoryGormRepository(f.conn).ListAdjustments(context.Background(), productID)
	require.NoError(t, err)
	return adjs
}

func validShipping() ShippingDetails {
	return ShippingDetails{
		Name:       "Hanako Yamada",
		Email:      "hanako@example.com",
		Phone:      "090-1234-5678",
		Address:    "1-2-3 Shibuya",
		City:       "Tokyo",
		PostalCode: "150-0002",
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
