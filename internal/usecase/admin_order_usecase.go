package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"storefront/internal/domain/model"
	"storefront/internal/logger"
	"storefront/internal/metrics"
	repo "storefront/internal/repository"
)

// OrderLifecycleUsecase は管理者による注文ステータス・支払い・メモの更新
type OrderLifecycleUsecase struct {
	tx      repo.TransactionManager
	clock   Clock
	log     *logger.Logger
	metrics *metrics.ShopMetrics
}

func NewOrderLifecycleUsecase(tx repo.TransactionManager, clock Clock, log *logger.Logger, m *metrics.ShopMetrics) *OrderLifecycleUsecase {
	if log == nil {
		log = logger.Nop()
	}
	return &OrderLifecycleUsecase{tx: tx, clock: clock, log: log, metrics: m}
}

// 不正な遷移は Applied=false（エラーではない）
type TransitionResult struct {
	Applied bool              `json:"applied"`
	From    model.OrderStatus `json:"from"`
	To      model.OrderStatus `json:"to"`
	Order   OrderOutput       `json:"order"`
}

func (u *OrderLifecycleUsecase) Transition(ctx context.Context, actorID int64, orderID int64, action string) (TransitionResult, error) {
	if actorID <= 0 {
		return TransitionResult{}, NewUnauthorized()
	}
	if orderID <= 0 {
		return TransitionResult{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	act, ok := model.ParseOrderAction(strings.ToLower(strings.TrimSpace(action)))
	if !ok {
		return TransitionResult{}, fieldError("action", "is invalid")
	}

	var out TransitionResult
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewNotFound("order")
		}
		if err != nil {
			return NewInternal(err)
		}

		from := o.Status
		out.From = from
		out.To = from

		if !o.Apply(act, u.clock.Now()) {
			items, err := r.OrderItems().ListByOrderID(ctx, orderID)
			if err != nil {
				return NewInternal(err)
			}
			out.Order = toOrderOutput(o, items)
			return nil
		}

		updated, err := r.Orders().UpdateStatusIf(ctx, o, from)
		if err != nil {
			return NewInternal(err)
		}
		if !updated {
			// 別の更新が先に入った
			return NewConflict("order status changed concurrently")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewInternal(err)
		}

		// 出荷前のキャンセルだけ在庫戻し
		if act == model.OrderActionCancel && model.RestocksOnCancel(from) {
			for _, it := range items {
				if err := r.Inventory().IncreaseStock(ctx, it.ProductID, it.Quantity); err != nil {
					return NewInternal(err)
				}
				if err := r.Inventory().CreateAdjustment(ctx, model.InventoryAdjustment{
					ProductID:   it.ProductID,
					ActorUserID: actorID,
					Delta:       it.Quantity,
					Reason:      "cancel:" + o.OrderNumber,
					CreatedAt:   u.clock.Now(),
				}); err != nil {
					return NewInternal(err)
				}
			}
		}

		if err := writeAudit(ctx, r, u.clock, actorID, model.AuditActionUpdateOrderStatus, model.AuditResourceOrder, orderID,
			map[string]string{"status": string(from)}, map[string]string{"status": string(o.Status)}); err != nil {
			return err
		}

		out.Applied = true
		out.To = o.Status
		out.Order = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return TransitionResult{}, passThrough(err)
	}

	u.metrics.IncTransition(string(act), out.Applied)
	u.log.Info(u.log.WithFields(ctx, map[string]any{
		"order_id": orderID,
		"action":   string(act),
		"from":     string(out.From),
		"to":       string(out.To),
		"applied":  out.Applied,
	}), "order.transition")
	return out, nil
}

const (
	PaymentActionPaid   = "paid"
	PaymentActionFailed = "failed"
	PaymentActionRefund = "refund"
)

type PaymentInput struct {
	Action    string           `json:"action" validate:"required,oneof=paid failed refund"`
	Method    string           `json:"method" validate:"max=50"`
	Reference string           `json:"reference" validate:"max=255"`
	Amount    *decimal.Decimal `json:"amount"`
}

type PaymentResult struct {
	Applied bool                `json:"applied"`
	From    model.PaymentStatus `json:"from"`
	To      model.PaymentStatus `json:"to"`
	Order   OrderOutput         `json:"order"`
}

// 入金・失敗・返金。返金の金額エラーは VALIDATION_ERROR
func (u *OrderLifecycleUsecase) UpdatePayment(ctx context.Context, actorID int64, orderID int64, in PaymentInput) (PaymentResult, error) {
	if actorID <= 0 {
		return PaymentResult{}, NewUnauthorized()
	}
	if orderID <= 0 {
		return PaymentResult{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	in.Action = strings.ToLower(strings.TrimSpace(in.Action))
	in.Method = strings.TrimSpace(in.Method)
	in.Reference = strings.TrimSpace(in.Reference)
	if err := validatePaymentInput(in); err != nil {
		return PaymentResult{}, err
	}

	var out PaymentResult
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewNotFound("order")
		}
		if err != nil {
			return NewInternal(err)
		}

		before := o
		out.From = o.PaymentStatus
		out.To = o.PaymentStatus
		now := u.clock.Now()

		applied := false
		switch in.Action {
		case PaymentActionPaid:
			applied = o.MarkPaid(in.Method, in.Reference, now)
		case PaymentActionFailed:
			applied = o.MarkPaymentFailed()
		case PaymentActionRefund:
			if err := o.ApplyRefund(*in.Amount, now); err != nil {
				return refundError(err)
			}
			applied = true
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return NewInternal(err)
		}
		if !applied {
			out.Order = toOrderOutput(o, items)
			return nil
		}

		if err := r.Orders().UpdatePayment(ctx, o); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewNotFound("order")
			}
			return NewInternal(err)
		}

		if err := writeAudit(ctx, r, u.clock, actorID, model.AuditActionUpdatePaymentStatus, model.AuditResourceOrder, orderID,
			paymentSnapshot(before), paymentSnapshot(o)); err != nil {
			return err
		}

		out.Applied = true
		out.To = o.PaymentStatus
		out.Order = toOrderOutput(o, items)
		return nil
	})
	if err != nil {
		return PaymentResult{}, passThrough(err)
	}

	u.metrics.IncTransition("payment_"+in.Action, out.Applied)
	u.log.Info(u.log.WithFields(ctx, map[string]any{
		"order_id": orderID,
		"action":   in.Action,
		"from":     string(out.From),
		"to":       string(out.To),
		"applied":  out.Applied,
	}), "order.payment")
	return out, nil
}

func validatePaymentInput(in PaymentInput) error {
	fields := validatorFields(in)
	if in.Action == PaymentActionRefund {
		if in.Amount == nil {
			fields["amount"] = "is required"
		} else if !in.Amount.IsPositive() {
			fields["amount"] = "must be greater than 0"
		}
	}
	if len(fields) > 0 {
		return NewValidationError("invalid payment update", fields)
	}
	return nil
}

func refundError(err error) error {
	switch {
	case errors.Is(err, model.ErrRefundAmount):
		return fieldError("amount", "must be greater than 0")
	case errors.Is(err, model.ErrRefundExceedsTotal):
		return fieldError("amount", "exceeds the refundable amount")
	case errors.Is(err, model.ErrRefundNotAllowed):
		return fieldError("action", "refund is only allowed for paid orders")
	default:
		return NewInternal(err)
	}
}

func paymentSnapshot(o model.Order) map[string]string {
	return map[string]string{
		"payment_status":  string(o.PaymentStatus),
		"refunded_amount": o.RefundedAmount.StringFixed(2),
	}
}

type NotesInput struct {
	AdminNotes string `json:"admin_notes" validate:"max=2000"`
}

// 管理メモだけは状態に関係なく更新できる
func (u *OrderLifecycleUsecase) UpdateNotes(ctx context.Context, actorID int64, orderID int64, in NotesInput) (OrderOutput, error) {
	if actorID <= 0 {
		return OrderOutput{}, NewUnauthorized()
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	in.AdminNotes = strings.TrimSpace(in.AdminNotes)
	if fields := validatorFields(in); len(fields) > 0 {
		return OrderOutput{}, NewValidationError("invalid notes", fields)
	}

	var out OrderOutput
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewNotFound("order")
		}
		if err != nil {
			return NewInternal(err)
		}

		if err := r.Orders().UpdateAdminNotes(ctx, orderID, in.AdminNotes); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return NewNotFound("order")
			}
			return NewInternal(err)
		}

		before := o.AdminNotes
		o.AdminNotes = in.AdminNotes
		if err := writeAudit(ctx, r, u.clock, actorID, model.AuditActionUpdateOrderNotes, model.AuditResourceOrder, orderID,
			map[string]string{"admin_notes": before}, map[string]string{"admin_notes": o.AdminNotes}); err != nil {
			return err
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
