package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"storefront/internal/usecase"
)

// /products と /categories の公開API
type CatalogHandler struct {
	uc *usecase.CatalogUsecase
}

// DI
func NewCatalogHandler(uc *usecase.CatalogUsecase) *CatalogHandler {
	return &CatalogHandler{uc: uc}
}

// 公開ルートを登録（認証なし）
func (h *CatalogHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/products", h.listProducts)
	e.GET("/products/:slug", h.productDetail)
	e.GET("/categories", h.listCategories)
	e.GET("/categories/:slug", h.categoryDetail)
}

func (h *CatalogHandler) listProducts(c echo.Context) error {
	page, ok := queryInt(c, "page")
	if !ok {
		return fieldInvalid(c, map[string]string{"page": "must be a number"})
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return fieldInvalid(c, map[string]string{"limit": "must be a number"})
	}

	minPrice, ok := queryDecimal(c, "min_price")
	if !ok {
		return fieldInvalid(c, map[string]string{"min_price": "must be a number"})
	}
	maxPrice, ok := queryDecimal(c, "max_price")
	if !ok {
		return fieldInvalid(c, map[string]string{"max_price": "must be a number"})
	}

	out, err := h.uc.ListProducts(c.Request().Context(), usecase.ListProductsInput{
		Page:     page,
		Limit:    limit,
		Q:        c.QueryParam("q"),
		Category: c.QueryParam("category"),
		MinPrice: minPrice,
		MaxPrice: maxPrice,
		InStock:  queryBool(c, "in_stock"),
		OnSale:   queryBool(c, "on_sale"),
		Sort:     c.QueryParam("sort"),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CatalogHandler) productDetail(c echo.Context) error {
	out, err := h.uc.GetProductBySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CatalogHandler) listCategories(c echo.Context) error {
	out, err := h.uc.ListCategories(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CatalogHandler) categoryDetail(c echo.Context) error {
	page, ok := queryInt(c, "page")
	if !ok {
		return fieldInvalid(c, map[string]string{"page": "must be a number"})
	}
	limit, ok := queryInt(c, "limit")
	if !ok {
		return fieldInvalid(c, map[string]string{"limit": "must be a number"})
	}

	out, err := h.uc.GetCategoryBySlug(c.Request().Context(), c.Param("slug"), page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func queryDecimal(c echo.Context, name string) (*decimal.Decimal, bool) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, true
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return nil, false
	}
	return &d, true
}

// "1" / "true" など。解釈できなければ false
func queryBool(c echo.Context, name string) bool {
	b, err := strconv.ParseBool(c.QueryParam(name))
	return err == nil && b
}
