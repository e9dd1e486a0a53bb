package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/application"
)

type SeatHandler struct {
	locks SeatLockServiceInterface
	seats SeatServiceInterface
}

func NewSeatHandler(locks SeatLockServiceInterface, seats SeatServiceInterface) *SeatHandler {
	return &SeatHandler{locks: locks, seats: seats}
}

type SeatLockRequest struct {
	SeatID string `json:"seatId" validate:"required" example:"1A"`
	UserID string `json:"userId" validate:"required" example:"user-123"`
	Date   string `json:"date" validate:"travel_date" example:"2025-06-01"`
}

type LockResponse struct {
	Success bool `json:"success"`
	TTL     int  `json:"ttl,omitempty" example:"600"`
}

// GetSeats godoc
// @Summary 座席状態を取得
// @Description 確定予約とロック状態を合成した座席一覧を返します
// @Tags seats
// @Produce json
// @Param busId path string true "バスID"
// @Param userId query string false "ユーザーID（自分のロックは mine になる）"
// @Param date query string false "乗車日 YYYY-MM-DD（省略時は当日）"
// @Success 200 {array} SeatStateResponse
// @Failure 404 {object} map[string]string
// @Router /buses/{busId}/seats [get]
func (h *SeatHandler) GetSeats(c echo.Context) error {
	states, err := h.seats.GetSeatsWithState(c.Request().Context(), c.Param("busId"), c.QueryParam("userId"), c.QueryParam("date"))
	if err != nil {
		return err
	}
	resp := make([]SeatStateResponse, len(states))
	for i, s := range states {
		resp[i] = toSeatStateResponse(s)
	}
	return c.JSON(http.StatusOK, resp)
}

// Lock godoc
// @Summary 決済用に座席をロック
// @Description 仮押さえより長いTTLで座席を排他的に確保します
// @Tags seats
// @Accept json
// @Produce json
// @Param busId path string true "バスID"
// @Param request body SeatLockRequest true "座席"
// @Success 200 {object} LockResponse
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string "他のユーザーが決済中"
// @Router /buses/{busId}/seats/lock [post]
func (h *SeatHandler) Lock(c echo.Context) error {
	input, err := h.bindSeatInput(c)
	if err != nil {
		return err
	}
	res, err := h.locks.LockSeat(c.Request().Context(), input)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LockResponse{Success: true, TTL: int(res.TTL.Seconds())})
}

// Unlock godoc
// @Summary 座席ロックを解放
// @Tags seats
// @Accept json
// @Produce json
// @Param busId path string true "バスID"
// @Param request body SeatLockRequest true "座席"
// @Success 200 {object} LockResponse
// @Failure 403 {object} map[string]string "ロックを保持していない"
// @Router /buses/{busId}/seats/unlock [post]
func (h *SeatHandler) Unlock(c echo.Context) error {
	input, err := h.bindSeatInput(c)
	if err != nil {
		return err
	}
	if err := h.locks.ReleaseLock(c.Request().Context(), input); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, LockResponse{Success: true})
}

func (h *SeatHandler) bindSeatInput(c echo.Context) (application.SeatInput, error) {
	var req SeatLockRequest
	if err := c.Bind(&req); err != nil {
		return application.SeatInput{}, echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return application.SeatInput{}, err
	}
	return application.SeatInput{BusID: c.Param("busId"), SeatID: req.SeatID, UserID: req.UserID, Date: req.Date}, nil
}
