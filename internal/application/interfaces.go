package application

import (
	"context"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seatlock"
)

// Broadcaster は座席状態の変化をルームの購読者に配信する
type Broadcaster interface {
	BroadcastSeatUpdate(ctx context.Context, u seat.Update)
	BroadcastSeatExpired(ctx context.Context, e seat.Expiry)
}

// ReleaseObserver は明示的に解放されたキーを受け取る
// 期限切れ検出が解放を期限切れとして通知しないために使う
type ReleaseObserver interface {
	Forget(key seatlock.Key)
}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastSeatUpdate(context.Context, seat.Update)  {}
func (nopBroadcaster) BroadcastSeatExpired(context.Context, seat.Expiry) {}
