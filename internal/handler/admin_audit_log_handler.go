package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/usecase"
)

// GET /admin/audit-logs
type AdminAuditLogHandler struct {
	uc *usecase.AuditLogUsecase
}

func NewAdminAuditLogHandler(uc *usecase.AuditLogUsecase) *AdminAuditLogHandler {
	return &AdminAuditLogHandler{uc: uc}
}

func (h *AdminAuditLogHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	admin := e.Group("/admin")

	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.TokenVersionGuard(userRepo))
	admin.Use(middleware.AdminRoleGuard())

	admin.GET("/audit-logs", h.list)
}

func (h *AdminAuditLogHandler) list(c echo.Context) error {
	page, ok := queryInt(c, "page")
	if !ok {
		return fieldInvalid(c, map[string]string{"page": "must be a number"})
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return fieldInvalid(c, map[string]string{"limit": "must be a number"})
	}
	actorID, ok := queryOptionalID(c, "actor_user_id")
	if !ok {
		return fieldInvalid(c, map[string]string{"actor_user_id": "must be a number"})
	}
	resourceID, ok := queryOptionalID(c, "resource_id")
	if !ok {
		return fieldInvalid(c, map[string]string{"resource_id": "must be a number"})
	}

	out, err := h.uc.List(c.Request().Context(), usecase.AuditLogListInput{
		Page:         page,
		Limit:        limit,
		ActorUserID:  actorID,
		Action:       c.QueryParam("action"),
		ResourceType: c.QueryParam("resource_type"),
		ResourceID:   resourceID,
		From:         c.QueryParam("from"),
		To:           c.QueryParam("to"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
