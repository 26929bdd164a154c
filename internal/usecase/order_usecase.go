package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

// 注文の参照系（本人の注文・管理者の一覧）
type OrderUsecase struct {
	tx repo.TransactionManager
}

func NewOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	return &OrderUsecase{tx: tx}
}

type OrderOutput struct {
	model.Order
	Items []model.OrderItem `json:"items"`
}

type OrderListOutput struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

func toOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	if items == nil {
		items = []model.OrderItem{}
	}
	return OrderOutput{Order: o, Items: items}
}

// 購入者向けには管理メモを出さない
func toCustomerOrderOutput(o model.Order, items []model.OrderItem) OrderOutput {
	o.AdminNotes = ""
	return toOrderOutput(o, items)
}

func loadOrderOutputs(ctx context.Context, r repo.TxRepos, orders []model.Order, customer bool) ([]OrderOutput, error) {
	ids := make([]int64, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	byOrder, err := r.OrderItems().ListByOrderIDs(ctx, ids)
	if err != nil {
		return nil, NewInternal(err)
	}

	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		if customer {
			outs = append(outs, toCustomerOrderOutput(o, byOrder[o.ID]))
		} else {
			outs = append(outs, toOrderOutput(o, byOrder[o.ID]))
		}
	}
	return outs, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, page, limit int) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, NewUnauthorized()
	}
	page, limit, err := normalizePage(page, limit)
	if err != nil {
		return OrderListOutput{}, err
	}

	var out OrderListOutput
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListByUserID(ctx, userID, page, limit)
		if err != nil {
			return NewInternal(err)
		}
		items, err := loadOrderOutputs(ctx, r, orders, true)
		if err != nil {
			return err
		}
		out = OrderListOutput{Items: items, Total: total, Page: page, Limit: limit}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, passThrough(err)
	}
	return out, nil
}

// 注文番号で本人の注文を取得。他人の注文は「存在しない扱い」にする
func (u *OrderUsecase) GetMyOrder(ctx context.Context, userID int64, orderNumber string) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewUnauthorized()
	}
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" {
		return OrderOutput{}, NewNotFound("order")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByOrderNumber(ctx, orderNumber)
		if errors.Is(err, repo.ErrNotFound) {
			return NewNotFound("order")
		}
		if err != nil {
			return NewInternal(err)
		}
		if o.UserID != userID {
			return NewNotFound("order")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
		if err != nil {
			return NewInternal(err)
		}
		out = toCustomerOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, passThrough(err)
	}
	return out, nil
}

type AdminListOrdersInput struct {
	Page          int
	Limit         int
	Status        string
	PaymentStatus string
	UserID        *int64
	From          string // RFC3339
	To            string // RFC3339
}

// 注文一覧（管理者）
func (u *OrderUsecase) List(ctx context.Context, in AdminListOrdersInput) (OrderListOutput, error) {
	page, limit, err := normalizePage(in.Page, in.Limit)
	if err != nil {
		return OrderListOutput{}, err
	}

	status := strings.ToUpper(strings.TrimSpace(in.Status))
	if status != "" && !model.OrderStatus(status).Valid() {
		return OrderListOutput{}, fieldError("status", "is invalid")
	}
	paymentStatus := strings.ToUpper(strings.TrimSpace(in.PaymentStatus))
	if paymentStatus != "" && !model.PaymentStatus(paymentStatus).Valid() {
		return OrderListOutput{}, fieldError("payment_status", "is invalid")
	}
	if in.UserID != nil && *in.UserID <= 0 {
		return OrderListOutput{}, fieldError("user_id", "is invalid")
	}

	from, ok := parseDateTimeRFC3339(in.From)
	if !ok {
		return OrderListOutput{}, fieldError("from", "must be RFC3339")
	}
	to, ok := parseDateTimeRFC3339(in.To)
	if !ok {
		return OrderListOutput{}, fieldError("to", "must be RFC3339")
	}
	if from != nil && to != nil && from.After(*to) {
		return OrderListOutput{}, fieldError("from", "must be before to")
	}

	var out OrderListOutput
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orders, total, err := r.Orders().ListAdmin(ctx, repo.AdminOrderListFilter{
			Page:          page,
			Limit:         limit,
			Status:        status,
			PaymentStatus: paymentStatus,
			UserID:        in.UserID,
			From:          from,
			To:            to,
		})
		if err != nil {
			return NewInternal(err)
		}
		items, err := loadOrderOutputs(ctx, r, orders, false)
		if err != nil {
			return err
		}
		out = OrderListOutput{Items: items, Total: total, Page: page, Limit: limit}
		return nil
	})
	if err != nil {
		return OrderListOutput{}, passThrough(err)
	}
	return out, nil
}

func (u *OrderUsecase) Get(ctx context.Context, orderID int64) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewNotFound("order")
		}
		if err != nil {
			return NewInternal(err)
		}
		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewInternal(err)
		}
		out = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return OrderOutput{}, passThrough(err)
	}
	return out, nil
}

// 空なら (nil, true)。不正な書式なら (nil, false)
func parseDateTimeRFC3339(s string) (*time.Time, bool) {
	if strings.TrimSpace(s) == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return nil, false
	}
	return &t, true
}
