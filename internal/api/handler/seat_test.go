package handler

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/application"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/booking"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/catalog"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seatlock"
)

func TestSeatHandler_GetSeats(t *testing.T) {
	t.Run("座席状態を返す", func(t *testing.T) {
		a := newTestAPI()
		owner := "user-a"
		kind := seatlock.KindHold
		ttl := 25
		a.seats.On("GetSeatsWithState", mock.Anything, "bus-101", "user-b", "2025-06-01").Return([]seat.State{
			{ID: "1A", Row: 1, Column: 1, Type: "window", Status: seat.StatusHeld, LockedBy: &owner, LockKind: &kind, TTLSeconds: &ttl},
			{ID: "1B", Row: 1, Column: 2, Type: "aisle", Status: seat.StatusAvailable},
		}, nil)

		rec := a.get("/api/buses/bus-101/seats?userId=user-b&date=2025-06-01")

		require.Equal(t, http.StatusOK, rec.Code)
		var resp []SeatStateResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp, 2)
		assert.Equal(t, "held", resp[0].Status)
		assert.Equal(t, "hold", *resp[0].LockType)
		assert.Equal(t, 25, *resp[0].TTL)
		assert.Nil(t, resp[1].LockedBy)
		a.seats.AssertExpectations(t)
	})

	t.Run("存在しないバスは404", func(t *testing.T) {
		a := newTestAPI()
		a.seats.On("GetSeatsWithState", mock.Anything, "bus-x", "", "").Return(nil, catalog.ErrBusNotFound)

		rec := a.get("/api/buses/bus-x/seats")

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), catalog.ErrBusNotFound.Error())
	})

	t.Run("不正な日付は400", func(t *testing.T) {
		a := newTestAPI()
		a.seats.On("GetSeatsWithState", mock.Anything, "bus-101", "", "2025-13-01").Return(nil, seat.ErrInvalidDate)

		rec := a.get("/api/buses/bus-101/seats?date=2025-13-01")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSeatHandler_Lock(t *testing.T) {
	input := application.SeatInput{BusID: "bus-101", SeatID: "1A", UserID: "user-a", Date: "2025-06-01"}
	body := `{"seatId":"1A","userId":"user-a","date":"2025-06-01"}`

	t.Run("ロックを取得してTTLを返す", func(t *testing.T) {
		a := newTestAPI()
		a.locks.On("LockSeat", mock.Anything, input).Return(&application.SeatLockResult{
			Key: seatlock.NewKey("bus-101", "2025-06-01", "1A"), Kind: seatlock.KindLock, TTL: 10 * time.Minute,
		}, nil)

		rec := a.post("/api/buses/bus-101/seats/lock", body)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true,"ttl":600}`, rec.Body.String())
		a.locks.AssertExpectations(t)
	})

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"他のユーザーが決済中なら409", seatlock.ErrSeatUnavailable, http.StatusConflict},
		{"予約済みなら409", booking.ErrSeatAlreadyBooked, http.StatusConflict},
		{"存在しない座席は404", catalog.ErrSeatNotFound, http.StatusNotFound},
		{"ストア障害は503", seatlock.ErrStoreUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAPI()
			a.locks.On("LockSeat", mock.Anything, input).Return(nil, tt.err)

			rec := a.post("/api/buses/bus-101/seats/lock", body)

			assert.Equal(t, tt.want, rec.Code)
		})
	}

	t.Run("必須項目がなければ400", func(t *testing.T) {
		a := newTestAPI()

		rec := a.post("/api/buses/bus-101/seats/lock", `{"seatId":"1A"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		a.locks.AssertNotCalled(t, "LockSeat", mock.Anything, mock.Anything)
	})

	t.Run("日付の形式が不正なら400", func(t *testing.T) {
		a := newTestAPI()

		rec := a.post("/api/buses/bus-101/seats/lock", `{"seatId":"1A","userId":"user-a","date":"06/01/2025"}`)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestSeatHandler_Unlock(t *testing.T) {
	input := application.SeatInput{BusID: "bus-101", SeatID: "1A", UserID: "user-a"}
	body := `{"seatId":"1A","userId":"user-a"}`

	t.Run("ロックを解放する", func(t *testing.T) {
		a := newTestAPI()
		a.locks.On("ReleaseLock", mock.Anything, input).Return(nil)

		rec := a.post("/api/buses/bus-101/seats/unlock", body)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	})

	t.Run("ロックを保持していなければ403", func(t *testing.T) {
		a := newTestAPI()
		a.locks.On("ReleaseLock", mock.Anything, input).Return(seatlock.ErrNotOwner)

		rec := a.post("/api/buses/bus-101/seats/unlock", body)

		assert.Equal(t, http.StatusForbidden, rec.Code)
		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, seatlock.ErrNotOwner.Error(), resp["error"])
		assert.Equal(t, float64(http.StatusForbidden), resp["code"])
	})
}
