package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allStatuses = []OrderStatus{
	OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
	OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled,
}

func TestOrderApply_TransitionTable(t *testing.T) {
	legal := map[OrderAction]map[OrderStatus]OrderStatus{
		OrderActionConfirm: {OrderStatusPending: OrderStatusConfirmed},
		OrderActionProcess: {OrderStatusConfirmed: OrderStatusProcessing},
		OrderActionShip: {
			OrderStatusConfirmed:  OrderStatusShipped,
			OrderStatusProcessing: OrderStatusShipped,
		},
		OrderActionDeliver: {OrderStatusShipped: OrderStatusDelivered},
		OrderActionCancel: {
			OrderStatusPending:    OrderStatusCancelled,
			OrderStatusConfirmed:  OrderStatusCancelled,
			OrderStatusProcessing: OrderStatusCancelled,
			OrderStatusShipped:    OrderStatusCancelled,
		},
	}
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for action, table := range legal {
		for _, from := range allStatuses {
			o := Order{Status: from}
			applied := o.Apply(action, now)

			want, ok := table[from]
			if ok {
				assert.True(t, applied, "%s from %s", action, from)
				assert.Equal(t, want, o.Status)
			} else {
				assert.False(t, applied, "%s from %s", action, from)
				assert.Equal(t, from, o.Status, "status must stay unchanged")
			}
		}
	}
}

func TestOrderApply_SetsTimestamps(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	o := Order{Status: OrderStatusPending}

	require.True(t, o.Confirm(now))
	require.NotNil(t, o.ConfirmedAt)
	assert.Equal(t, now, *o.ConfirmedAt)

	require.True(t, o.MarkProcessing(now))
	require.True(t, o.Ship(now.Add(time.Hour)))
	require.NotNil(t, o.ShippedAt)
	assert.Equal(t, now.Add(time.Hour), *o.ShippedAt)

	require.True(t, o.Deliver(now.Add(2*time.Hour)))
	require.NotNil(t, o.DeliveredAt)

	assert.False(t, o.Cancel(now), "delivered orders cannot be cancelled")
	assert.Nil(t, o.CancelledAt)
}

func TestOrder_ShipPendingFails(t *testing.T) {
	o := Order{Status: OrderStatusPending}

	assert.False(t, o.Ship(time.Now()))
	assert.Equal(t, OrderStatusPending, o.Status)
	assert.Nil(t, o.ShippedAt)
}

func TestParseOrderAction(t *testing.T) {
	a, ok := ParseOrderAction("ship")
	assert.True(t, ok)
	assert.Equal(t, OrderActionShip, a)

	_, ok = ParseOrderAction("teleport")
	assert.False(t, ok)
}

func TestRestocksOnCancel(t *testing.T) {
	assert.True(t, RestocksOnCancel(OrderStatusPending))
	assert.True(t, RestocksOnCancel(OrderStatusProcessing))
	assert.False(t, RestocksOnCancel(OrderStatusShipped))
}

func TestOrderPayment_PaidAndFailed(t *testing.T) {
	now := time.Now()
	o := Order{PaymentStatus: PaymentStatusUnpaid}

	require.True(t, o.MarkPaid("card", "pi_123", now))
	assert.Equal(t, PaymentStatusPaid, o.PaymentStatus)
	assert.Equal(t, "card", o.PaymentMethod)
	assert.Equal(t, "pi_123", o.PaymentReference)
	require.NotNil(t, o.PaidAt)

	assert.False(t, o.MarkPaid("card", "pi_456", now), "already paid")
	assert.False(t, o.MarkPaymentFailed())

	failed := Order{PaymentStatus: PaymentStatusUnpaid}
	assert.True(t, failed.MarkPaymentFailed())
	assert.True(t, failed.MarkPaid("card", "retry", now), "a failed payment can be retried")
}

func TestOrderApplyRefund(t *testing.T) {
	now := time.Now()
	o := Order{
		PaymentStatus:  PaymentStatusPaid,
		Total:          decimal.RequireFromString("37.55"),
		RefundedAmount: decimal.Zero,
	}

	require.NoError(t, o.ApplyRefund(decimal.RequireFromString("10"), now))
	assert.Equal(t, PaymentStatusPartiallyRefunded, o.PaymentStatus)
	assert.Equal(t, "10.00", o.RefundedAmount.StringFixed(2))
	require.NotNil(t, o.RefundedAt)

	assert.ErrorIs(t, o.ApplyRefund(decimal.RequireFromString("30"), now), ErrRefundExceedsTotal)
	assert.Equal(t, "10.00", o.RefundedAmount.StringFixed(2))

	assert.ErrorIs(t, o.ApplyRefund(decimal.Zero, now), ErrRefundAmount)

	require.NoError(t, o.ApplyRefund(decimal.RequireFromString("27.55"), now))
	assert.Equal(t, PaymentStatusRefunded, o.PaymentStatus)
	assert.True(t, o.RefundedAmount.Equal(o.Total))

	assert.ErrorIs(t, o.ApplyRefund(decimal.RequireFromString("1"), now), ErrRefundNotAllowed)
}

func TestOrderApplyRefund_Amounts(t *testing.T) {
	tests := []struct {
		name     string
		amount   string
		wantErr  error
		refunded string
		status   PaymentStatus
	}{
		{name: "rounds to zero", amount: "0.004", wantErr: ErrRefundAmount, refunded: "0.00", status: PaymentStatusPaid},
		{name: "negative", amount: "-1", wantErr: ErrRefundAmount, refunded: "0.00", status: PaymentStatusPaid},
		{name: "rounds up to a cent", amount: "0.005", refunded: "0.01", status: PaymentStatusPartiallyRefunded},
		{name: "rounds to the full total", amount: "37.549", refunded: "37.55", status: PaymentStatusRefunded},
		{name: "over total after rounding", amount: "37.555", wantErr: ErrRefundExceedsTotal, refunded: "0.00", status: PaymentStatusPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := Order{PaymentStatus: PaymentStatusPaid, Total: decimal.RequireFromString("37.55")}

			err := o.ApplyRefund(decimal.RequireFromString(tt.amount), time.Now())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, o.RefundedAt)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, o.RefundedAt)
			}
			assert.Equal(t, tt.refunded, o.RefundedAmount.StringFixed(2))
			assert.Equal(t, tt.status, o.PaymentStatus)
		})
	}
}

func TestOrderApplyRefund_UnpaidRejected(t *testing.T) {
	o := Order{PaymentStatus: PaymentStatusUnpaid, Total: decimal.NewFromInt(10)}
	assert.ErrorIs(t, o.ApplyRefund(decimal.NewFromInt(1), time.Now()), ErrRefundNotAllowed)
}
