package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/application"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seatlock"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/pkg/logger"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/pkg/metrics"
)

// Hub はルーム（バス・日付）ごとの購読者を管理し、イベントを配信する
type Hub struct {
	mu      sync.RWMutex
	rooms   map[seatlock.Room]map[*Subscription]struct{}
	metrics *metrics.Metrics
}

var _ application.Broadcaster = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{rooms: make(map[seatlock.Room]map[*Subscription]struct{})}
}

// SetMetrics はメトリクスを設定する
func (h *Hub) SetMetrics(m *metrics.Metrics) {
	h.metrics = m
}

// Join は購読をルームに登録し、登録後の閲覧者数を返す
func (h *Hub) Join(room seatlock.Room, sub *Subscription) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[room]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.rooms[room] = subs
	}
	subs[sub] = struct{}{}
	h.metrics.SetRoomViewers(room.String(), len(subs))
	return len(subs)
}

// Leave は購読をルームから外し、残りの閲覧者数を返す
func (h *Hub) Leave(room seatlock.Room, sub *Subscription) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.remove(room, sub)
}

// Viewers はルームの閲覧者数を返す
func (h *Hub) Viewers(room seatlock.Room) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// BroadcastSeatUpdate は座席状態の変化をルームに配信する
func (h *Hub) BroadcastSeatUpdate(ctx context.Context, u seat.Update) {
	h.broadcast(u.Key.Room(), seatUpdatedEvent(u))
}

// BroadcastSeatExpired はTTL切れをルームに配信する
func (h *Hub) BroadcastSeatExpired(ctx context.Context, e seat.Expiry) {
	h.broadcast(e.Key.Room(), seatExpiredEvent(e))
}

// BroadcastViewers は現在の閲覧者数をルームに配信する
func (h *Hub) BroadcastViewers(room seatlock.Room) {
	h.broadcast(room, viewersEvent(room, h.Viewers(room)))
}

// CloseAll はすべての購読を閉じる
func (h *Hub) CloseAll() {
	h.mu.Lock()
	var subs []*Subscription
	for room, members := range h.rooms {
		for sub := range members {
			subs = append(subs, sub)
		}
		delete(h.rooms, room)
		h.metrics.SetRoomViewers(room.String(), 0)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (h *Hub) broadcast(room seatlock.Room, ev Event) {
	h.mu.RLock()
	var lagging []*Subscription
	for sub := range h.rooms[room] {
		if !sub.Send(ev) {
			lagging = append(lagging, sub)
		}
	}
	h.mu.RUnlock()

	if len(lagging) == 0 {
		return
	}
	h.mu.Lock()
	for _, sub := range lagging {
		h.remove(room, sub)
	}
	h.mu.Unlock()

	for _, sub := range lagging {
		logger.Warn("送信が追いつかない購読者を切断", zap.String("room", room.String()), zap.String("subscription_id", sub.ID()))
		sub.Close()
	}
}

// remove は h.mu を保持して呼ぶ
func (h *Hub) remove(room seatlock.Room, sub *Subscription) int {
	subs, ok := h.rooms[room]
	if !ok {
		return 0
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.rooms, room)
	}
	h.metrics.SetRoomViewers(room.String(), len(subs))
	return len(subs)
}
