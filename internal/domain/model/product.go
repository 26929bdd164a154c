package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID               int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	CategoryID       int64            `gorm:"not null;index" json:"category_id"`
	Category         *Category        `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Name             string           `gorm:"type:varchar(255);not null" json:"name"`
	Slug             string           `gorm:"type:varchar(255);not null;uniqueIndex" json:"slug"`
	SKU              string           `gorm:"column:sku;type:varchar(64);not null;uniqueIndex" json:"sku"`
	ShortDescription string           `gorm:"type:varchar(500)" json:"short_description"`
	Description      string           `gorm:"type:text" json:"description"`
	Price            decimal.Decimal  `gorm:"type:numeric(10,2);not null" json:"price"`
	SalePrice        *decimal.Decimal `gorm:"type:numeric(10,2)" json:"sale_price"`
	Stock            int64            `gorm:"not null;default:0" json:"stock"`
	Image            string           `gorm:"type:varchar(255)" json:"image"`
	IsActive         bool             `gorm:"not null" json:"is_active"`
	IsFeatured       bool             `gorm:"not null;default:false" json:"is_featured"`
	SortOrder        int              `gorm:"not null;default:0" json:"sort_order"`
	CreatedAt        time.Time        `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt   `gorm:"index" json:"-"`
}

// IsOnSale はセール価格が定価より安いとき true
func (p Product) IsOnSale() bool {
	return p.SalePrice != nil && p.SalePrice.LessThan(p.Price)
}

// EffectivePrice は実際に支払う単価
func (p Product) EffectivePrice() decimal.Decimal {
	if p.IsOnSale() {
		return *p.SalePrice
	}
	return p.Price
}

func (p Product) InStock() bool {
	return p.Stock > 0
}

// DiscountPercentage は割引率（整数 %）。セール中でなければ nil
func (p Product) DiscountPercentage() *int64 {
	if !p.IsOnSale() || !p.Price.IsPositive() {
		return nil
	}
	pct := p.Price.Sub(*p.SalePrice).Div(p.Price).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
	return &pct
}

// Purchasable は有効かつ在庫が qty 以上あるか
func (p Product) Purchasable(qty int64) bool {
	return p.IsActive && qty > 0 && p.Stock >= qty
}
