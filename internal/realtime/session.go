package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/application"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seat"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seatlock"
	"github.com/sanosuguru/go-bus-seat-reservation/internal/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

var errUnknownMessage = errors.New("不明なメッセージです")

// SeatLocker は座席の仮押さえ・解放を行う
type SeatLocker interface {
	HoldSeat(ctx context.Context, input application.SeatInput) (*application.SeatLockResult, error)
	ReleaseSeat(ctx context.Context, input application.SeatInput) (bool, error)
	ReleaseUserHold(ctx context.Context, userID string) (*seatlock.Key, error)
}

// SeatStateReader は座席状態のスナップショットを返す
type SeatStateReader interface {
	GetSeatsWithState(ctx context.Context, busID, userID, date string) ([]seat.State, error)
}

// SeatBooker は予約を確定する
type SeatBooker interface {
	BookSeat(ctx context.Context, input application.BookSeatInput) (*application.BookingResult, error)
}

// Services はセッションが呼び出すアプリケーションサービス
type Services struct {
	Locks    SeatLocker
	Seats    SeatStateReader
	Bookings SeatBooker
}

// Session は1接続分の処理を行う
// 受信メッセージは到着順に1つずつ処理し、送信は writePump だけが行う
type Session struct {
	conn *websocket.Conn
	hub  *Hub
	svc  Services
	sub  *Subscription
	room *seatlock.Room
	now  func() time.Time
}

func newSession(conn *websocket.Conn, hub *Hub, svc Services, bufferSize int) *Session {
	return &Session{
		conn: conn,
		hub:  hub,
		svc:  svc,
		sub:  NewSubscription(bufferSize),
		now:  time.Now,
	}
}

// Run は接続が閉じるまで送受信を行う
func (s *Session) Run(ctx context.Context) {
	logger.Debug("websocket接続", zap.String("subscription_id", s.sub.ID()))

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		s.writePump()
	}()

	s.readPump(ctx)

	s.cleanup(context.WithoutCancel(ctx))
	s.sub.Close()
	<-writeDone
	logger.Debug("websocket切断", zap.String("subscription_id", s.sub.ID()))
}

func (s *Session) readPump(ctx context.Context) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var env Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("websocketの読み込みに失敗", zap.Error(err))
			}
			return
		}
		s.dispatch(ctx, env)

		select {
		case <-s.sub.Done():
			return
		default:
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case ev := <-s.sub.Events():
			if err := s.write(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.sub.Done():
			// 残っているイベントを送ってから閉じる
			for {
				select {
				case ev := <-s.sub.Events():
					if err := s.write(ev); err != nil {
						return
					}
				default:
					_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
					_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (s *Session) write(ev Event) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		logger.Error("メッセージのエンコードに失敗", zap.String("type", ev.Type), zap.Error(err))
		return nil
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(Envelope{Type: ev.Type, Payload: payload})
}

func (s *Session) dispatch(ctx context.Context, env Envelope) {
	var err error
	switch env.Type {
	case TypeJoin:
		var req joinRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			s.join(ctx, req)
		}
	case TypeLeave:
		var req leaveRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			s.leave(ctx, req)
		}
	case TypeSeatSelect:
		var req seatRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			s.selectSeat(ctx, req)
		}
	case TypeSeatRelease:
		var req seatRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			s.releaseSeat(ctx, req)
		}
	case TypeSeatBook:
		var req bookRequest
		if err = json.Unmarshal(env.Payload, &req); err == nil {
			s.bookSeat(ctx, req)
		}
	default:
		err = errUnknownMessage
	}
	if err != nil {
		logger.Debug("不正なメッセージ", zap.String("type", env.Type), zap.Error(err))
		s.send(errorEvent(err))
	}
}

// join はルームに参加し、スナップショットを送信してから閲覧者数を配信する
// 登録からスナップショット送信までに届いたイベントはスナップショットの後に送る
func (s *Session) join(ctx context.Context, req joinRequest) {
	date, err := seat.NormalizeDate(req.Date, s.now())
	if err != nil {
		s.send(errorEvent(err))
		return
	}
	room := seatlock.Room{BusID: req.BusID, Date: date}
	if s.room != nil && *s.room != room {
		s.leaveRoom(ctx)
	}
	if req.UserID != "" {
		s.sub.SetUserID(req.UserID)
	}

	s.sub.BeginSync()
	s.hub.Join(room, s.sub)
	s.room = &room

	states, err := s.svc.Seats.GetSeatsWithState(ctx, req.BusID, req.UserID, date)
	if err != nil {
		s.hub.Leave(room, s.sub)
		s.room = nil
		s.sub.EndSync(errorEvent(err), false)
		return
	}
	if !s.sub.EndSync(snapshotEvent(room, states), true) {
		s.hub.Leave(room, s.sub)
		s.sub.Close()
		return
	}
	s.hub.BroadcastViewers(room)
}

func (s *Session) leave(ctx context.Context, req leaveRequest) {
	if s.room == nil {
		return
	}
	date := req.Date
	if date == "" {
		date = s.room.Date
	}
	if (seatlock.Room{BusID: req.BusID, Date: date}) != *s.room {
		return
	}
	s.leaveRoom(ctx)
}

// leaveRoom はルームから抜けて閲覧者数を配信し、仮押さえを解放する
// ロックは決済中の可能性があるため残す
func (s *Session) leaveRoom(ctx context.Context) {
	room := *s.room
	s.room = nil
	s.hub.Leave(room, s.sub)
	s.hub.BroadcastViewers(room)
	s.releaseHold(ctx)
}

func (s *Session) releaseHold(ctx context.Context) {
	userID := s.sub.UserID()
	if userID == "" {
		return
	}
	if _, err := s.svc.Locks.ReleaseUserHold(ctx, userID); err != nil {
		logger.Warn("仮押さえの解放に失敗", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Session) cleanup(ctx context.Context) {
	if s.room != nil {
		s.leaveRoom(ctx)
		return
	}
	s.releaseHold(ctx)
}

func (s *Session) selectSeat(ctx context.Context, req seatRequest) {
	input, key, err := s.seatInput(req)
	if err == nil {
		_, err = s.svc.Locks.HoldSeat(ctx, input)
	}
	s.send(resultEvent(TypeSelectResult, key, true, err))
}

func (s *Session) releaseSeat(ctx context.Context, req seatRequest) {
	input, key, err := s.seatInput(req)
	released := false
	if err == nil {
		released, err = s.svc.Locks.ReleaseSeat(ctx, input)
	}
	s.send(resultEvent(TypeReleaseResult, key, released, err))
}

func (s *Session) bookSeat(ctx context.Context, req bookRequest) {
	input, key, err := s.seatInput(seatRequest{BusID: req.BusID, SeatID: req.SeatID, UserID: req.UserID, Date: req.Date})
	var res *application.BookingResult
	if err == nil {
		res, err = s.svc.Bookings.BookSeat(ctx, application.BookSeatInput{
			BusID:         input.BusID,
			SeatID:        input.SeatID,
			UserID:        input.UserID,
			PassengerName: req.PassengerName,
			Phone:         req.Phone,
			Date:          input.Date,
		})
	}
	s.send(bookResultEvent(key, res, err))
}

// seatInput は日付とユーザーを参加中のルームの値で補う
func (s *Session) seatInput(req seatRequest) (application.SeatInput, seatlock.Key, error) {
	date := req.Date
	if date == "" && s.room != nil {
		date = s.room.Date
	}
	userID := req.UserID
	if userID == "" {
		userID = s.sub.UserID()
	} else if s.sub.UserID() == "" {
		s.sub.SetUserID(userID)
	}

	date, err := seat.NormalizeDate(date, s.now())
	key := seatlock.NewKey(req.BusID, date, req.SeatID)
	return application.SeatInput{BusID: req.BusID, SeatID: req.SeatID, UserID: userID, Date: date}, key, err
}

func (s *Session) send(ev Event) {
	if !s.sub.Send(ev) {
		logger.Warn("送信バッファが溢れたため切断", zap.String("subscription_id", s.sub.ID()))
		s.sub.Close()
	}
}
