package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"storefront/internal/domain/model"
	"storefront/internal/logger"
	repo "storefront/internal/repository"
)

type lifecycleFixture struct {
	tx     *txManagerMock
	orders *orderRepoMock
	items  *orderItemRepoMock
	inv    *inventoryRepoMock
	audit  *auditRepoMock
	uc     *OrderLifecycleUsecase
}

func newLifecycleFixture() *lifecycleFixture {
	f := &lifecycleFixture{
		tx:     new(txManagerMock),
		orders: new(orderRepoMock),
		items:  new(orderItemRepoMock),
		inv:    new(inventoryRepoMock),
		audit:  new(auditRepoMock),
	}
	f.tx.repos = &txReposMock{
		orders:     f.orders,
		orderItems: f.items,
		inventory:  f.inv,
		auditLogs:  f.audit,
	}
	f.tx.On("WithinTx", mock.Anything).Return(nil)
	clock := fixedClock{t: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	f.uc = NewOrderLifecycleUsecase(f.tx, clock, logger.Nop(), nil)
	return f
}

func TestOrderLifecycle_Transition_InvalidAction(t *testing.T) {
	f := newLifecycleFixture()

	_, err := f.uc.Transition(context.Background(), 1, 10, "teleport")
	assert.True(t, IsCode(err, CodeValidation))
	f.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
}

func TestOrderLifecycle_Transition_IllegalIsNotAnError(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	f.orders.On("FindByIDForUpdate", mock.Anything, int64(10)).
		Return(model.Order{ID: 10, Status: model.OrderStatusShipped}, nil)
	f.items.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)

	res, err := f.uc.Transition(ctx, 1, 10, "confirm")
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, model.OrderStatusShipped, res.From)
	assert.Equal(t, model.OrderStatusShipped, res.To)

	f.orders.AssertNotCalled(t, "UpdateStatusIf", mock.Anything, mock.Anything, mock.Anything)
	f.audit.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestOrderLifecycle_Transition_CancelBeforeShipmentRestocks(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	f.orders.On("FindByIDForUpdate", mock.Anything, int64(7)).
		Return(model.Order{ID: 7, OrderNumber: "ORD-20240501-AAAAA", Status: model.OrderStatusConfirmed}, nil)
	f.orders.On("UpdateStatusIf", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.Status == model.OrderStatusCancelled && o.CancelledAt != nil
	}), model.OrderStatusConfirmed).Return(true, nil)
	f.items.On("ListByOrderID", mock.Anything, int64(7)).
		Return([]model.OrderItem{{ProductID: 3, Quantity: 2}, {ProductID: 4, Quantity: 1}}, nil)
	f.inv.On("IncreaseStock", mock.Anything, int64(3), int64(2)).Return(nil)
	f.inv.On("IncreaseStock", mock.Anything, int64(4), int64(1)).Return(nil)
	f.inv.On("CreateAdjustment", mock.Anything, mock.MatchedBy(func(a model.InventoryAdjustment) bool {
		return a.Delta > 0 && a.Reason == "cancel:ORD-20240501-AAAAA" && a.ActorUserID == 1
	})).Return(nil).Twice()
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionUpdateOrderStatus &&
			l.ResourceID == 7 &&
			l.BeforeJSON == `{"status":"CONFIRMED"}` &&
			l.AfterJSON == `{"status":"CANCELLED"}`
	})).Return(nil)

	res, err := f.uc.Transition(ctx, 1, 7, "cancel")
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, model.OrderStatusConfirmed, res.From)
	assert.Equal(t, model.OrderStatusCancelled, res.To)
	assert.NotNil(t, res.Order.CancelledAt)

	f.orders.AssertExpectations(t)
	f.inv.AssertExpectations(t)
	f.audit.AssertExpectations(t)
}

func TestOrderLifecycle_Transition_CancelAfterShipmentKeepsStock(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	f.orders.On("FindByIDForUpdate", mock.Anything, int64(8)).
		Return(model.Order{ID: 8, Status: model.OrderStatusShipped}, nil)
	f.orders.On("UpdateStatusIf", mock.Anything, mock.Anything, model.OrderStatusShipped).Return(true, nil)
	f.items.On("ListByOrderID", mock.Anything, int64(8)).
		Return([]model.OrderItem{{ProductID: 3, Quantity: 2}}, nil)
	f.audit.On("Create", mock.Anything, mock.Anything).Return(nil)

	res, err := f.uc.Transition(ctx, 1, 8, "cancel")
	require.NoError(t, err)
	assert.True(t, res.Applied)

	f.inv.AssertNotCalled(t, "IncreaseStock", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderLifecycle_Transition_LostRaceIsConflict(t *testing.T) {
	f := newLifecycleFixture()

	f.orders.On("FindByIDForUpdate", mock.Anything, int64(9)).
		Return(model.Order{ID: 9, Status: model.OrderStatusPending}, nil)
	f.orders.On("UpdateStatusIf", mock.Anything, mock.Anything, model.OrderStatusPending).Return(false, nil)

	_, err := f.uc.Transition(context.Background(), 1, 9, "confirm")
	assert.True(t, IsCode(err, CodeConflict))
}

func TestOrderLifecycle_Transition_NotFound(t *testing.T) {
	f := newLifecycleFixture()

	f.orders.On("FindByIDForUpdate", mock.Anything, int64(99)).Return(model.Order{}, repo.ErrNotFound)

	_, err := f.uc.Transition(context.Background(), 1, 99, "ship")
	assert.True(t, IsCode(err, CodeNotFound))
}

func TestOrderLifecycle_UpdatePayment_PartialRefund(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	f.orders.On("FindByIDForUpdate", mock.Anything, int64(5)).Return(model.Order{
		ID:            5,
		Status:        model.OrderStatusDelivered,
		PaymentStatus: model.PaymentStatusPaid,
		Total:         decimal.RequireFromString("37.55"),
	}, nil)
	f.items.On("ListByOrderID", mock.Anything, int64(5)).Return([]model.OrderItem{}, nil)
	f.orders.On("UpdatePayment", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.PaymentStatus == model.PaymentStatusPartiallyRefunded &&
			o.RefundedAmount.Equal(decimal.NewFromInt(10)) &&
			o.RefundedAt != nil
	})).Return(nil)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionUpdatePaymentStatus
	})).Return(nil)

	amount := decimal.NewFromInt(10)
	res, err := f.uc.UpdatePayment(ctx, 1, 5, PaymentInput{Action: "refund", Amount: &amount})
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, model.PaymentStatusPaid, res.From)
	assert.Equal(t, model.PaymentStatusPartiallyRefunded, res.To)

	f.orders.AssertExpectations(t)
	f.audit.AssertExpectations(t)
}

func TestOrderLifecycle_UpdatePayment_RefundOverTotalRejected(t *testing.T) {
	f := newLifecycleFixture()

	f.orders.On("FindByIDForUpdate", mock.Anything, int64(5)).Return(model.Order{
		ID:             5,
		PaymentStatus:  model.PaymentStatusPartiallyRefunded,
		Total:          decimal.RequireFromString("20.00"),
		RefundedAmount: decimal.RequireFromString("15.00"),
	}, nil)

	amount := decimal.RequireFromString("5.01")
	_, err := f.uc.UpdatePayment(context.Background(), 1, 5, PaymentInput{Action: "refund", Amount: &amount})
	require.Error(t, err)
	he, ok := AsHTTPError(err)
	require.True(t, ok)
	assert.Equal(t, CodeValidation, he.Code)
	assert.Contains(t, he.Fields, "amount")

	f.orders.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything)
}

func TestOrderLifecycle_UpdatePayment_RefundNeedsAmount(t *testing.T) {
	f := newLifecycleFixture()

	_, err := f.uc.UpdatePayment(context.Background(), 1, 5, PaymentInput{Action: "refund"})
	assert.True(t, IsCode(err, CodeValidation))
	f.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
}

func TestOrderLifecycle_UpdatePayment_FailedAfterPaidNotApplied(t *testing.T) {
	f := newLifecycleFixture()

	f.orders.On("FindByIDForUpdate", mock.Anything, int64(6)).
		Return(model.Order{ID: 6, PaymentStatus: model.PaymentStatusPaid}, nil)
	f.items.On("ListByOrderID", mock.Anything, int64(6)).Return([]model.OrderItem{}, nil)

	res, err := f.uc.UpdatePayment(context.Background(), 1, 6, PaymentInput{Action: "failed"})
	require.NoError(t, err)
	assert.False(t, res.Applied)
	assert.Equal(t, model.PaymentStatusPaid, res.To)
	f.orders.AssertNotCalled(t, "UpdatePayment", mock.Anything, mock.Anything)
}

func TestOrderLifecycle_UpdateNotes(t *testing.T) {
	f := newLifecycleFixture()

	f.orders.On("FindByIDForUpdate", mock.Anything, int64(4)).
		Return(model.Order{ID: 4, Status: model.OrderStatusDelivered, AdminNotes: "old"}, nil)
	f.orders.On("UpdateAdminNotes", mock.Anything, int64(4), "call before delivery").Return(nil)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionUpdateOrderNotes && l.BeforeJSON == `{"admin_notes":"old"}`
	})).Return(nil)
	f.items.On("ListByOrderID", mock.Anything, int64(4)).Return([]model.OrderItem{}, nil)

	out, err := f.uc.UpdateNotes(context.Background(), 1, 4, NotesInput{AdminNotes: "  call before delivery "})
	require.NoError(t, err)
	assert.Equal(t, "call before delivery", out.AdminNotes)
	f.orders.AssertExpectations(t)
	f.audit.AssertExpectations(t)
}
