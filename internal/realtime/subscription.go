package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultBufferSize は購読ごとの送信バッファ
const DefaultBufferSize = 64

// Subscription は1接続分の購読
// 送信バッファが溢れた購読は取り残さずに閉じ、クライアントに再接続とスナップショットの再取得を任せる
type Subscription struct {
	id     string
	events chan Event
	done   chan struct{}

	mu      sync.Mutex
	userID  string
	syncing bool
	pending []Event
	closed  bool
}

// NewSubscription は新しい購読を作成する
func NewSubscription(bufferSize int) *Subscription {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Subscription{
		id:     uuid.NewString(),
		events: make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}
}

func (s *Subscription) ID() string { return s.id }

// Events は送信待ちのイベントを返す
func (s *Subscription) Events() <-chan Event { return s.events }

// Done は購読が閉じられると閉じる
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Subscription) SetUserID(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

// BeginSync はスナップショット送信までのイベントを保留する
func (s *Subscription) BeginSync() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncing = true
	s.pending = nil
}

// EndSync は first を送信し、replay が true なら保留していたイベントを続けて送る
func (s *Subscription) EndSync(first Event, replay bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pending := s.pending
	s.syncing = false
	s.pending = nil
	if !s.push(first) {
		return false
	}
	if !replay {
		return true
	}
	for _, ev := range pending {
		if !s.push(ev) {
			return false
		}
	}
	return true
}

// Send はイベントを送信バッファに積む
// バッファが溢れた場合は false を返す
func (s *Subscription) Send(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncing {
		if len(s.pending) >= cap(s.events) {
			return false
		}
		s.pending = append(s.pending, s.personalize(ev))
		return true
	}
	return s.push(ev)
}

// Close は購読を閉じる。複数回呼んでもよい
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

func (s *Subscription) push(ev Event) bool {
	if s.closed {
		return true
	}
	select {
	case s.events <- s.personalize(ev):
		return true
	default:
		return false
	}
}

// personalize は受信者ごとの内容を確定させる（mu を保持して呼ぶ）
func (s *Subscription) personalize(ev Event) Event {
	if ev.render == nil {
		return ev
	}
	return Event{Type: ev.Type, Payload: ev.render(s.userID)}
}
