package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/middleware"
	"storefront/internal/repository"
	"storefront/internal/usecase"
)

// 適用できなかった遷移（usecase ではエラーにしない）
const codeInvalidTransition = "INVALID_TRANSITION"

type AdminOrderHandler struct {
	orders    *usecase.OrderUsecase
	lifecycle *usecase.OrderLifecycleUsecase
}

func NewAdminOrderHandler(orders *usecase.OrderUsecase, lifecycle *usecase.OrderLifecycleUsecase) *AdminOrderHandler {
	return &AdminOrderHandler{orders: orders, lifecycle: lifecycle}
}

func (h *AdminOrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	admin := e.Group("/admin")
	admin.Use(middleware.AuthJWT(cfg))
	admin.Use(middleware.TokenVersionGuard(userRepo))
	admin.Use(middleware.AdminRoleGuard())

	admin.GET("/orders", h.list)
	admin.GET("/orders/:id", h.detail)
	for _, action := range []model.OrderAction{
		model.OrderActionConfirm,
		model.OrderActionProcess,
		model.OrderActionShip,
		model.OrderActionDeliver,
		model.OrderActionCancel,
	} {
		admin.POST("/orders/:id/"+string(action), h.transition(action))
	}
	admin.PUT("/orders/:id/payment", h.updatePayment)
	admin.PUT("/orders/:id/notes", h.updateNotes)
}

func (h *AdminOrderHandler) list(c echo.Context) error {
	page, ok := queryInt(c, "page")
	if !ok {
		return fieldInvalid(c, map[string]string{"page": "must be a number"})
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return fieldInvalid(c, map[string]string{"limit": "must be a number"})
	}

	userID, ok := queryOptionalID(c, "user_id")
	if !ok {
		return fieldInvalid(c, map[string]string{"user_id": "must be a number"})
	}

	out, err := h.orders.List(c.Request().Context(), usecase.AdminListOrdersInput{
		Page:          page,
		Limit:         limit,
		Status:        c.QueryParam("status"),
		PaymentStatus: c.QueryParam("payment_status"),
		UserID:        userID,
		From:          c.QueryParam("from"),
		To:            c.QueryParam("to"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *AdminOrderHandler) detail(c echo.Context) error {
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	out, err := h.orders.Get(c.Request().Context(), orderID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// 遷移できなければ 409
func (h *AdminOrderHandler) transition(action model.OrderAction) echo.HandlerFunc {
	return func(c echo.Context) error {
		adminID, ok := getUserIDFromContext(c)
		if !ok {
			return unauthorized(c)
		}
		orderID, ok := parseIDParam(c, "id")
		if !ok {
			return badRequest(c, "invalid id")
		}

		res, err := h.lifecycle.Transition(c.Request().Context(), adminID, orderID, string(action))
		if err != nil {
			return writeError(c, err)
		}
		if !res.Applied {
			return c.JSON(http.StatusConflict, ErrorResponse{
				Error: fmt.Sprintf("cannot %s an order in status %s", action, res.From),
				Code:  codeInvalidTransition,
			})
		}
		return c.JSON(http.StatusOK, res)
	}
}

func (h *AdminOrderHandler) updatePayment(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	var req usecase.PaymentInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	res, err := h.lifecycle.UpdatePayment(c.Request().Context(), adminID, orderID, req)
	if err != nil {
		return writeError(c, err)
	}
	if !res.Applied {
		return c.JSON(http.StatusConflict, ErrorResponse{
			Error: fmt.Sprintf("cannot mark payment %s from %s", req.Action, res.From),
			Code:  codeInvalidTransition,
		})
	}
	return c.JSON(http.StatusOK, res)
}

func (h *AdminOrderHandler) updateNotes(c echo.Context) error {
	adminID, ok := getUserIDFromContext(c)
	if !ok {
		return unauthorized(c)
	}
	orderID, ok := parseIDParam(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}

	var req usecase.NotesInput
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	out, err := h.lifecycle.UpdateNotes(c.Request().Context(), adminID, orderID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
