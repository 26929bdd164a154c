package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 注文明細。商品名・SKU・単価は注文時点のスナップショット
type OrderItem struct {
	ID          int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID     int64           `gorm:"not null;index" json:"order_id"`
	ProductID   int64           `gorm:"not null;index" json:"product_id"`
	Product     *Product        `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT" json:"-"`
	ProductName string          `gorm:"type:varchar(255);not null" json:"product_name"`
	ProductSKU  string          `gorm:"column:product_sku;type:varchar(64);not null" json:"product_sku"`
	Price       decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	Quantity    int64           `gorm:"not null" json:"quantity"`
	Subtotal    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	CreatedAt   time.Time       `gorm:"not null;autoCreateTime" json:"created_at"`
}
