package booking

import (
	"time"

	"github.com/shopspring/decimal"
)

// Cancellation はキャンセル料の計算結果
type Cancellation struct {
	PenaltyPercent int64
	Penalty        decimal.Decimal
	Refund         decimal.Decimal
	OriginalPrice  decimal.Decimal
}

// PenaltyPercent は出発までの残り時間からキャンセル料率（%）を返す
//
//	24時間超: 10%
//	12時間超: 25%
//	6時間超:  50%
//	それ以外: 75%
func PenaltyPercent(untilDeparture time.Duration) int64 {
	switch {
	case untilDeparture > 24*time.Hour:
		return 10
	case untilDeparture > 12*time.Hour:
		return 25
	case untilDeparture > 6*time.Hour:
		return 50
	default:
		return 75
	}
}

// CalculateCancellation はキャンセル料と返金額を計算する
// キャンセル料は整数単位に四捨五入し、返金額は残額とする
func CalculateCancellation(price decimal.Decimal, untilDeparture time.Duration) Cancellation {
	percent := PenaltyPercent(untilDeparture)
	penalty := price.Mul(decimal.NewFromInt(percent)).Div(decimal.NewFromInt(100)).Round(0)
	return Cancellation{
		PenaltyPercent: percent,
		Penalty:        penalty,
		Refund:         price.Sub(penalty),
		OriginalPrice:  price,
	}
}
