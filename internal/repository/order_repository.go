package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page          int
	Limit         int
	Status        string
	PaymentStatus string
	UserID        *int64
	From          *time.Time
	To            *time.Time
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	// SELECT ... FOR UPDATE
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (model.Order, error)
	OrderNumberExists(ctx context.Context, orderNumber string) (bool, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)

	// status が from のときだけ status と各タイムスタンプを書き込む。更新できたら true
	UpdateStatusIf(ctx context.Context, order model.Order, from model.OrderStatus) (bool, error)
	// 支払い関連の列（payment_status, paid_at, refunded_amount ...）を保存
	UpdatePayment(ctx context.Context, order model.Order) error
	UpdateAdminNotes(ctx context.Context, orderID int64, notes string) error

	//検索（同じキーなら同じ結果を返す）
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (model.Order, bool, error)
	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
}
