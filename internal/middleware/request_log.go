package middleware

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"storefront/internal/logger"
)

// RequestContext はリクエストIDをロガーの context に載せる（RequestID の後に置く）
func RequestContext(log *logger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			ctx := log.WithRequestID(c.Request().Context(), rid)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// RequestLogger はアクセスログを1行ずつ出す（RequestContext より外側に置く）。5xx はハンドラのエラーも付ける
func RequestLogger(log *logger.Logger) echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := map[string]any{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency_ms": v.Latency.Milliseconds(),
			}
			if uid, ok := c.Get(CtxUserIDKey).(int64); ok {
				fields["user_id"] = uid
			}
			ctx := log.WithFields(c.Request().Context(), fields)

			err := v.Error
			if handlerErr, ok := c.Get(CtxErrorKey).(error); ok && err == nil {
				err = handlerErr
			}
			if err != nil && v.Status >= 500 {
				log.Error(ctx, "http.request", err)
				return nil
			}
			if v.Status >= 400 {
				log.Warn(ctx, "http.request")
				return nil
			}
			log.Info(ctx, "http.request")
			return nil
		},
	})
}
