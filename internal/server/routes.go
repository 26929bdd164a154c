package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/db"
	"storefront/internal/middleware"
	"storefront/internal/repository"
)

// Handlers はルーティングに載せるハンドラ一式
type Handlers struct {
	Catalog      *handler.CatalogHandler
	Cart         *handler.CartHandler
	Checkout     *handler.CheckoutHandler
	Orders       *handler.OrderHandler
	AdminOrders  *handler.AdminOrderHandler
	AdminCatalog *handler.AdminProductHandler
	AdminAudit   *handler.AdminAuditLogHandler
}

// RegisterRoutes は公開 API と運用系（/healthz, /metrics）を登録する
func RegisterRoutes(
	e *echo.Echo,
	cfg config.Config,
	conn *gorm.DB,
	gatherer prometheus.Gatherer,
	userRepo repository.UserRepository,
	h Handlers,
) {
	e.GET("/healthz", func(c echo.Context) error {
		if err := db.Ping(c.Request().Context(), conn); err != nil {
			c.Set(middleware.CtxErrorKey, err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	h.Catalog.RegisterRoutes(e)
	h.Cart.RegisterRoutes(e, cfg, userRepo)
	h.Checkout.RegisterRoutes(e, cfg, userRepo)
	h.Orders.RegisterRoutes(e, cfg, userRepo)
	h.AdminOrders.RegisterRoutes(e, cfg, userRepo)
	h.AdminCatalog.RegisterRoutes(e, cfg, userRepo)
	h.AdminAudit.RegisterRoutes(e, cfg, userRepo)
}
