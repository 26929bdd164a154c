package money

import (
	"github.com/shopspring/decimal"
)

// Scale は金額の小数桁（numeric(10,2)）
const Scale = 2

var (
	DefaultTaxRate               = decimal.RequireFromString("0.085")
	DefaultFreeShippingThreshold = decimal.NewFromInt(50)
	DefaultFlatShippingFee       = decimal.NewFromInt(5)
)

// Round2 は 2 桁に丸める（四捨五入、0 から遠い方へ）
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// LineTotal = 単価 × 数量
func LineTotal(price decimal.Decimal, qty int64) decimal.Decimal {
	return Round2(price.Mul(decimal.NewFromInt(qty)))
}

// PricingPolicy は税と送料の計算規則
type PricingPolicy struct {
	TaxRate               decimal.Decimal
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal
}

func DefaultPolicy() PricingPolicy {
	return PricingPolicy{
		TaxRate:               DefaultTaxRate,
		FreeShippingThreshold: DefaultFreeShippingThreshold,
		FlatShippingFee:       DefaultFlatShippingFee,
	}
}

func (p PricingPolicy) Tax(subtotal decimal.Decimal) decimal.Decimal {
	return Round2(subtotal.Mul(p.TaxRate))
}

// Shipping は空カート（subtotal=0）なら 0、閾値以上なら無料
func (p PricingPolicy) Shipping(subtotal decimal.Decimal) decimal.Decimal {
	if !subtotal.IsPositive() {
		return decimal.Zero
	}
	if subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		return decimal.Zero
	}
	return Round2(p.FlatShippingFee)
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

func (p PricingPolicy) Summarize(subtotal decimal.Decimal) Totals {
	subtotal = Round2(subtotal)
	tax := p.Tax(subtotal)
	shipping := p.Shipping(subtotal)
	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Shipping: shipping,
		Total:    subtotal.Add(tax).Add(shipping),
	}
}
