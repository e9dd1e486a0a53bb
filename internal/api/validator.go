package api

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seat"
)

// CustomValidator はEcho用のカスタムバリデーター
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator は新しいバリデーターを作成する
// 乗車日は空（当日）か YYYY-MM-DD を受け付ける
func NewValidator() *CustomValidator {
	v := validator.New()
	_ = v.RegisterValidation("travel_date", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || isDate(s)
	})
	return &CustomValidator{validator: v}
}

// Validate はリクエストのバリデーションを実行する
func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func isDate(s string) bool {
	_, err := time.Parse(seat.DateLayout, s)
	return err == nil
}
