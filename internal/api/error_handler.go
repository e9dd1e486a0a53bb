package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/catalog"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seatlock"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/pkg/logger"
)

// ErrorResponse はエラーレスポンスの統一フォーマット
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

var statusByError = []struct {
	err    error
	status int
}{
	{seatlock.ErrSeatUnavailable, http.StatusConflict},
	{booking.ErrSeatAlreadyBooked, http.StatusConflict},
	{seatlock.ErrNotOwner, http.StatusForbidden},
	{catalog.ErrBusNotFound, http.StatusNotFound},
	{catalog.ErrSeatNotFound, http.StatusNotFound},
	{catalog.ErrRouteNotFound, http.StatusNotFound},
	{catalog.ErrOperatorNotFound, http.StatusNotFound},
	{booking.ErrBookingNotFound, http.StatusNotFound},
	{booking.ErrLockRequired, http.StatusPreconditionFailed},
	{booking.ErrHoldOrLockRequired, http.StatusPreconditionFailed},
	{booking.ErrDeparted, http.StatusPreconditionFailed},
	{booking.ErrBookingNotActive, http.StatusPreconditionFailed},
	{seatlock.ErrStoreUnavailable, http.StatusServiceUnavailable},
	{seat.ErrInvalidDate, http.StatusBadRequest},
	{seat.ErrSeatIDRequired, http.StatusBadRequest},
	{seat.ErrUserIDRequired, http.StatusBadRequest},
	{booking.ErrBusIDRequired, http.StatusBadRequest},
	{booking.ErrSeatIDRequired, http.StatusBadRequest},
	{booking.ErrUserIDRequired, http.StatusBadRequest},
	{booking.ErrPassengerNameRequired, http.StatusBadRequest},
}

// StatusCode はエラーに対応するHTTPステータスを返す
func StatusCode(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	for _, e := range statusByError {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

// CustomHTTPErrorHandler はカスタムエラーハンドラー
// ドメインエラーはステータスコードに変換し、メッセージをそのまま返す
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := StatusCode(err)
	message := err.Error()

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	} else if code >= 500 {
		message = "内部サーバーエラー"
		if code == http.StatusServiceUnavailable {
			message = seatlock.ErrStoreUnavailable.Error()
		}
	}

	// エラーログを出力（5xx エラーの場合）
	if code >= 500 {
		logger.Error("サーバーエラー",
			zap.Int("status", code),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err),
		)
	}

	if err := c.JSON(code, ErrorResponse{
		Error: message,
		Code:  code,
	}); err != nil {
		logger.Error("エラーレスポンス送信失敗", zap.Error(err))
	}
}
