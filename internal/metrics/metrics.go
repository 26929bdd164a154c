package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ShopMetrics は注文確定と注文ステータス遷移の結果を数える。
// nil レシーバでも安全に呼べる（テストや metrics 無効時）。
type ShopMetrics struct {
	checkouts   *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *ShopMetrics {
	if reg == nil {
		return nil
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkouts_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_order_transitions_total",
		Help: "Order status/payment transitions by action and result.",
	}, []string{"action", "result"})
	reg.MustRegister(checkouts, transitions)

	return &ShopMetrics{checkouts: checkouts, transitions: transitions}
}

// IncCheckout は outcome（success / empty_cart / insufficient_stock など）を記録
func (m *ShopMetrics) IncCheckout(outcome string) {
	if m == nil {
		return
	}
	m.checkouts.WithLabelValues(normalize(outcome)).Inc()
}

func (m *ShopMetrics) IncTransition(action string, applied bool) {
	if m == nil {
		return
	}
	result := "rejected"
	if applied {
		result = "applied"
	}
	m.transitions.WithLabelValues(normalize(action), result).Inc()
}

func normalize(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
