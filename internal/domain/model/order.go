package model

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// IsTerminal: DELIVERED / CANCELLED はこれ以上変わらない
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

type PaymentStatus string

const (
	PaymentStatusUnpaid            PaymentStatus = "UNPAID"
	PaymentStatusPaid              PaymentStatus = "PAID"
	PaymentStatusRefunded          PaymentStatus = "REFUNDED"
	PaymentStatusPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
	PaymentStatusFailed            PaymentStatus = "FAILED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPaid, PaymentStatusRefunded,
		PaymentStatusPartiallyRefunded, PaymentStatusFailed:
		return true
	}
	return false
}

// OrderAction は管理者が行うステータス操作
type OrderAction string

const (
	OrderActionConfirm OrderAction = "confirm"
	OrderActionProcess OrderAction = "process"
	OrderActionShip    OrderAction = "ship"
	OrderActionDeliver OrderAction = "deliver"
	OrderActionCancel  OrderAction = "cancel"
)

type transition struct {
	from []OrderStatus
	to   OrderStatus
}

// 遷移表
var transitions = map[OrderAction]transition{
	OrderActionConfirm: {from: []OrderStatus{OrderStatusPending}, to: OrderStatusConfirmed},
	OrderActionProcess: {from: []OrderStatus{OrderStatusConfirmed}, to: OrderStatusProcessing},
	OrderActionShip:    {from: []OrderStatus{OrderStatusConfirmed, OrderStatusProcessing}, to: OrderStatusShipped},
	OrderActionDeliver: {from: []OrderStatus{OrderStatusShipped}, to: OrderStatusDelivered},
	OrderActionCancel: {
		from: []OrderStatus{OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped},
		to:   OrderStatusCancelled,
	},
}

func ParseOrderAction(s string) (OrderAction, bool) {
	a := OrderAction(s)
	_, ok := transitions[a]
	return a, ok
}

// Target は action の遷移先。from から実行できなければ false
func (a OrderAction) Target(from OrderStatus) (OrderStatus, bool) {
	t, ok := transitions[a]
	if !ok {
		return "", false
	}
	for _, s := range t.from {
		if s == from {
			return t.to, true
		}
	}
	return "", false
}

var (
	ErrRefundNotAllowed   = errors.New("refund is only allowed for paid orders")
	ErrRefundAmount       = errors.New("refund amount must be positive")
	ErrRefundExceedsTotal = errors.New("refunded amount would exceed order total")
)

type Order struct {
	ID          int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber string `gorm:"type:varchar(32);not null;uniqueIndex" json:"order_number"`
	UserID      int64  `gorm:"not null;index;uniqueIndex:idx_orders_user_idempotency" json:"user_id"`

	Status        OrderStatus   `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);not null;index" json:"payment_status"`

	Subtotal       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	Tax            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tax"`
	ShippingFee    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"shipping_fee"`
	Total          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`
	RefundedAmount decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"refunded_amount"`

	PaymentMethod    string `gorm:"type:varchar(50)" json:"payment_method"`
	PaymentReference string `gorm:"type:varchar(255)" json:"payment_reference"`

	// 配送先のスナップショット
	ShippingName       string `gorm:"type:varchar(255);not null" json:"shipping_name"`
	ShippingEmail      string `gorm:"type:varchar(255);not null" json:"shipping_email"`
	ShippingPhone      string `gorm:"type:varchar(20);not null" json:"shipping_phone"`
	ShippingAddress    string `gorm:"type:varchar(500);not null" json:"shipping_address"`
	ShippingCity       string `gorm:"type:varchar(100);not null" json:"shipping_city"`
	ShippingPostalCode string `gorm:"type:varchar(10);not null" json:"shipping_postal_code"`

	CustomerNotes string `gorm:"type:text" json:"customer_notes"`
	AdminNotes    string `gorm:"type:text" json:"admin_notes,omitempty"`

	// 同じキーなら同じ注文を返す（NULL は重複可）
	IdempotencyKey *string `gorm:"type:varchar(255);uniqueIndex:idx_orders_user_idempotency" json:"-"`

	ConfirmedAt *time.Time `json:"confirmed_at"`
	ShippedAt   *time.Time `json:"shipped_at"`
	DeliveredAt *time.Time `json:"delivered_at"`
	CancelledAt *time.Time `json:"cancelled_at"`
	PaidAt      *time.Time `json:"paid_at"`
	RefundedAt  *time.Time `json:"refunded_at"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// Apply は遷移表に沿って状態を変える。不正な遷移なら何もせず false
func (o *Order) Apply(action OrderAction, now time.Time) bool {
	to, ok := action.Target(o.Status)
	if !ok {
		return false
	}
	o.Status = to
	t := now
	switch to {
	case OrderStatusConfirmed:
		o.ConfirmedAt = &t
	case OrderStatusShipped:
		o.ShippedAt = &t
	case OrderStatusDelivered:
		o.DeliveredAt = &t
	case OrderStatusCancelled:
		o.CancelledAt = &t
	}
	return true
}

func (o *Order) Confirm(now time.Time) bool { return o.Apply(OrderActionConfirm, now) }
func (o *Order) MarkProcessing(now time.Time) bool { return o.Apply(OrderActionProcess, now) }
func (o *Order) Ship(now time.Time) bool { return o.Apply(OrderActionShip, now) }
func (o *Order) Deliver(now time.Time) bool { return o.Apply(OrderActionDeliver, now) }
func (o *Order) Cancel(now time.Time) bool { return o.Apply(OrderActionCancel, now) }

// MarkPaid は未払い / 失敗からのみ
func (o *Order) MarkPaid(method, reference string, now time.Time) bool {
	if o.PaymentStatus != PaymentStatusUnpaid && o.PaymentStatus != PaymentStatusFailed {
		return false
	}
	t := now
	o.PaymentStatus = PaymentStatusPaid
	o.PaymentMethod = method
	o.PaymentReference = reference
	o.PaidAt = &t
	return true
}

func (o *Order) MarkPaymentFailed() bool {
	if o.PaymentStatus != PaymentStatusUnpaid {
		return false
	}
	o.PaymentStatus = PaymentStatusFailed
	return true
}

// ApplyRefund は返金額を積み上げる。合計を超える返金はエラー
func (o *Order) ApplyRefund(amount decimal.Decimal, now time.Time) error {
	if o.PaymentStatus != PaymentStatusPaid && o.PaymentStatus != PaymentStatusPartiallyRefunded {
		return ErrRefundNotAllowed
	}
	// 2桁に丸めてから正の値か確認
	amount = amount.Round(2)
	if !amount.IsPositive() {
		return ErrRefundAmount
	}
	next := o.RefundedAmount.Add(amount)
	if next.GreaterThan(o.Total) {
		return ErrRefundExceedsTotal
	}

	t := now
	o.RefundedAmount = next
	o.RefundedAt = &t
	if next.Equal(o.Total) {
		o.PaymentStatus = PaymentStatusRefunded
	} else {
		o.PaymentStatus = PaymentStatusPartiallyRefunded
	}
	return nil
}

// RestocksOnCancel: 出荷前のキャンセルだけ在庫を戻す
func RestocksOnCancel(from OrderStatus) bool {
	switch from {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing:
		return true
	}
	return false
}
