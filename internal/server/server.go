package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"storefront/internal/config"
	"storefront/internal/logger"
	"storefront/internal/middleware"
)

const shutdownTimeout = 10 * time.Second

// New は共通ミドルウェアを積んだ echo を返す。ルートは RegisterRoutes で載せる
func New(cfg config.Config, log *logger.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(middleware.RequestContext(log))

	if cfg.App.FEURL != "" {
		e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
			AllowOrigins: []string{cfg.App.FEURL},
			AllowHeaders: []string{
				echo.HeaderContentType,
				echo.HeaderAuthorization,
				"X-Idempotency-Key",
			},
			ExposeHeaders: []string{echo.HeaderLocation, echo.HeaderXRequestID},
		}))
	}

	return e
}

// Start は ctx がキャンセルされるまでサーバを動かし、その後グレースフルに止める
func Start(ctx context.Context, e *echo.Echo, addr string, log *logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info(log.WithField(ctx, "addr", addr), "server.started")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info(context.Background(), "server.stopped")
	return nil
}
