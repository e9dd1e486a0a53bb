package application

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/catalog"
)

// 紛らわしい文字（I, O, 0, 1）を除いた文字集合
const pnrCharset = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	pnrPrefix      = "PNR"
	pnrLength      = 6
	checksumLength = 8
)

// TicketPayload は乗車券（QRコード）に埋め込む情報
type TicketPayload struct {
	PNR       string
	Operator  string
	Bus       string
	Route     string
	Seat      string
	Date      string
	Departure string
	Passenger string
	Checksum  string
}

// GeneratePNR は予約番号を生成する
func GeneratePNR() (string, error) {
	buf := make([]byte, 0, len(pnrPrefix)+pnrLength)
	buf = append(buf, pnrPrefix...)
	limit := big.NewInt(int64(len(pnrCharset)))
	for i := 0; i < pnrLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("予約番号の生成に失敗: %w", err)
		}
		buf = append(buf, pnrCharset[n.Int64()])
	}
	return string(buf), nil
}

func newBookingID() string {
	return "bk_" + uuid.NewString()[:8]
}

// Checksum は乗車券の改ざん検出用チェックサムを返す
func Checksum(pnr, seatID, busID, secret string) string {
	sum := sha256.Sum256([]byte(pnr + seatID + busID + secret))
	return hex.EncodeToString(sum[:])[:checksumLength]
}

// BuildTicketPayload は予約から乗車券の情報を組み立てる
// route, operator が見つからない場合は空欄にする
func BuildTicketPayload(b *booking.Booking, bus *catalog.Bus, route *catalog.Route, operator *catalog.Operator, secret string) *TicketPayload {
	p := &TicketPayload{
		PNR:       b.PNR,
		Seat:      b.SeatID,
		Date:      b.Date,
		Passenger: b.PassengerName,
		Checksum:  Checksum(b.PNR, b.SeatID, b.BusID, secret),
	}
	if bus != nil {
		p.Bus = bus.Name
		p.Departure = bus.Departure
	}
	if route != nil {
		p.Route = route.Label()
	}
	if operator != nil {
		p.Operator = operator.Name
	}
	return p
}
