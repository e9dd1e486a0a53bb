package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/application"
)

type BookingHandler struct {
	service BookingServiceInterface
}

func NewBookingHandler(s BookingServiceInterface) *BookingHandler {
	return &BookingHandler{service: s}
}

type BookRequest struct {
	BusID         string `json:"busId" validate:"required" example:"bus-101"`
	SeatID        string `json:"seatId" validate:"required" example:"1A"`
	UserID        string `json:"userId" validate:"required" example:"user-123"`
	PassengerName string `json:"passengerName" validate:"required" example:"Taro Yamada"`
	Phone         string `json:"phone" validate:"required" example:"9876543210"`
	Date          string `json:"date" validate:"travel_date" example:"2025-06-01"`
}

type CancelRequest struct {
	PNR string `json:"pnr" validate:"required" example:"AB12CD"`
}

type RescheduleRequest struct {
	PNR       string `json:"pnr" validate:"required"`
	NewBusID  string `json:"newBusId" validate:"required"`
	NewSeatID string `json:"newSeatId" validate:"required"`
	NewDate   string `json:"newDate" validate:"travel_date"`
	UserID    string `json:"userId" validate:"required"`
}

type BookResponse struct {
	Booking   *BookingResponse `json:"booking"`
	QRPayload *TicketResponse  `json:"qrPayload"`
}

type CancelResponse struct {
	Booking        *BookingResponse `json:"booking"`
	PenaltyPercent int64            `json:"penaltyPercent" example:"25"`
	Penalty        string           `json:"penalty" example:"213"`
	Refund         string           `json:"refund" example:"637"`
	OriginalPrice  string           `json:"originalPrice" example:"850"`
}

type RescheduleResponse struct {
	OldBooking *BookingResponse `json:"oldBooking"`
	NewBooking *BookingResponse `json:"newBooking"`
	QRPayload  *TicketResponse  `json:"qrPayload"`
}

type TicketViewResponse struct {
	Booking   *BookingResponse  `json:"booking"`
	Bus       *BusResponse      `json:"bus"`
	Route     *RouteResponse    `json:"route"`
	Operator  *OperatorResponse `json:"operator"`
	QRPayload *TicketResponse   `json:"qrPayload"`
}

// Book godoc
// @Summary 座席を予約
// @Description ロック中の座席を確定予約にします。同じユーザーの再送信は既存の予約を返します
// @Tags bookings
// @Accept json
// @Produce json
// @Param request body BookRequest true "予約情報"
// @Success 201 {object} BookResponse
// @Failure 400 {object} map[string]string
// @Failure 409 {object} map[string]string "座席が既に予約済み"
// @Failure 412 {object} map[string]string "ロックが必要"
// @Router /book [post]
func (h *BookingHandler) Book(c echo.Context) error {
	var req BookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	res, err := h.service.BookSeat(c.Request().Context(), application.BookSeatInput{
		BusID: req.BusID, SeatID: req.SeatID, UserID: req.UserID,
		PassengerName: req.PassengerName, Phone: req.Phone, Date: req.Date,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, BookResponse{
		Booking:   toBookingResponse(res.Booking),
		QRPayload: toTicketResponse(res.Ticket),
	})
}

// Cancel godoc
// @Summary 予約をキャンセル
// @Description 出発までの残り時間に応じたキャンセル料を差し引いて返金額を計算します
// @Tags bookings
// @Accept json
// @Produce json
// @Param request body CancelRequest true "PNR"
// @Success 200 {object} CancelResponse
// @Failure 404 {object} map[string]string
// @Failure 412 {object} map[string]string "有効な予約ではない・出発済み"
// @Router /cancel [post]
func (h *BookingHandler) Cancel(c echo.Context) error {
	var req CancelRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	res, err := h.service.CancelBooking(c.Request().Context(), req.PNR)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, CancelResponse{
		Booking:        toBookingResponse(res.Booking),
		PenaltyPercent: res.Cancellation.PenaltyPercent,
		Penalty:        res.Cancellation.Penalty.String(),
		Refund:         res.Cancellation.Refund.String(),
		OriginalPrice:  res.Cancellation.OriginalPrice.String(),
	})
}

// Reschedule godoc
// @Summary 予約を振替
// @Description 仮押さえかロック中の座席に予約を振り替えます
// @Tags bookings
// @Accept json
// @Produce json
// @Param request body RescheduleRequest true "振替先"
// @Success 200 {object} RescheduleResponse
// @Failure 404 {object} map[string]string
// @Failure 409 {object} map[string]string
// @Failure 412 {object} map[string]string
// @Router /reschedule [post]
func (h *BookingHandler) Reschedule(c echo.Context) error {
	var req RescheduleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "無効なリクエスト")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	res, err := h.service.RescheduleBooking(c.Request().Context(), application.RescheduleInput{
		PNR: req.PNR, NewBusID: req.NewBusID, NewSeatID: req.NewSeatID, NewDate: req.NewDate, UserID: req.UserID,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, RescheduleResponse{
		OldBooking: toBookingResponse(res.Old),
		NewBooking: toBookingResponse(res.New),
		QRPayload:  toTicketResponse(res.Ticket),
	})
}

// GetTicket godoc
// @Summary 乗車券を取得
// @Tags bookings
// @Produce json
// @Param pnr path string true "PNR"
// @Success 200 {object} TicketViewResponse
// @Failure 404 {object} map[string]string
// @Router /tickets/{pnr} [get]
func (h *BookingHandler) GetTicket(c echo.Context) error {
	view, err := h.service.GetTicket(c.Request().Context(), c.Param("pnr"))
	if err != nil {
		return err
	}
	resp := TicketViewResponse{
		Booking:   toBookingResponse(view.Booking),
		Route:     toRouteResponse(view.Route),
		Operator:  toOperatorResponse(view.Operator),
		QRPayload: toTicketResponse(view.Ticket),
	}
	if view.Bus != nil {
		bus := toBusResponse(&application.BusSummary{Bus: view.Bus, Operator: view.Operator})
		resp.Bus = &bus
	}
	return c.JSON(http.StatusOK, resp)
}
