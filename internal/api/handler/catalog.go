package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// CatalogHandler は路線・バス・運行会社の参照API
type CatalogHandler struct {
	service SeatServiceInterface
}

func NewCatalogHandler(s SeatServiceInterface) *CatalogHandler {
	return &CatalogHandler{service: s}
}

// ListRoutes godoc
// @Summary 路線一覧
// @Tags catalog
// @Produce json
// @Param source query string false "出発地"
// @Param destination query string false "到着地"
// @Success 200 {array} RouteResponse
// @Router /routes [get]
func (h *CatalogHandler) ListRoutes(c echo.Context) error {
	routes, err := h.service.ListRoutes(c.Request().Context(), c.QueryParam("source"), c.QueryParam("destination"))
	if err != nil {
		return err
	}
	resp := make([]*RouteResponse, len(routes))
	for i, r := range routes {
		resp[i] = toRouteResponse(r)
	}
	return c.JSON(http.StatusOK, resp)
}

// Cities godoc
// @Summary 出発地・到着地の一覧
// @Tags catalog
// @Produce json
// @Success 200 {array} string
// @Router /routes/cities [get]
func (h *CatalogHandler) Cities(c echo.Context) error {
	cities, err := h.service.Cities(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cities)
}

// ListBuses godoc
// @Summary 路線のバス一覧
// @Tags catalog
// @Produce json
// @Param routeId query string true "路線ID"
// @Param date query string false "乗車日 YYYY-MM-DD"
// @Success 200 {array} BusResponse
// @Failure 400 {object} map[string]string
// @Router /buses [get]
func (h *CatalogHandler) ListBuses(c echo.Context) error {
	routeID := c.QueryParam("routeId")
	if routeID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "routeId は必須です")
	}
	summaries, err := h.service.ListBuses(c.Request().Context(), routeID, c.QueryParam("date"))
	if err != nil {
		return err
	}
	resp := make([]BusResponse, len(summaries))
	for i, s := range summaries {
		resp[i] = toBusResponse(s)
	}
	return c.JSON(http.StatusOK, resp)
}

// GetBus godoc
// @Summary バスの詳細
// @Tags catalog
// @Produce json
// @Param busId path string true "バスID"
// @Param date query string false "乗車日 YYYY-MM-DD"
// @Success 200 {object} BusResponse
// @Failure 404 {object} map[string]string
// @Router /buses/{busId} [get]
func (h *CatalogHandler) GetBus(c echo.Context) error {
	summary, err := h.service.GetBus(c.Request().Context(), c.Param("busId"), c.QueryParam("date"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBusResponse(summary))
}

// Operators godoc
// @Summary 運行会社一覧
// @Tags catalog
// @Produce json
// @Success 200 {array} OperatorResponse
// @Router /operators [get]
func (h *CatalogHandler) Operators(c echo.Context) error {
	operators, err := h.service.Operators(c.Request().Context())
	if err != nil {
		return err
	}
	resp := make([]*OperatorResponse, len(operators))
	for i, o := range operators {
		resp[i] = toOperatorResponse(o)
	}
	return c.JSON(http.StatusOK, resp)
}
