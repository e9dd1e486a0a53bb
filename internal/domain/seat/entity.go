package seat

import (
	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seatlock"
)

// Status は座席の表示状態を表す
type Status string

const (
	StatusAvailable Status = "available"
	StatusHeld      Status = "held"
	StatusLocked    Status = "locked"
	StatusBooked    Status = "booked"
	// StatusMine は要求ユーザー自身の仮押さえ・ロック（スナップショットのみ）
	StatusMine Status = "mine"
)

// State は予約台帳とロック状態を合成した座席ごとのビュー
type State struct {
	ID         string
	Row        int
	Column     int
	Type       string
	Status     Status
	LockedBy   *string
	LockKind   *seatlock.Kind
	TTLSeconds *int
}

// IsAvailable は座席が選択可能かを返す
func (s *State) IsAvailable() bool {
	return s.Status == StatusAvailable
}

// Resolve は優先順位（確定予約 > ロック > 仮押さえ > 空席）に従って状態を決める
func Resolve(booked bool, lock *seatlock.SeatLock, requestingUserID string) (Status, *seatlock.SeatLock) {
	if booked {
		return StatusBooked, nil
	}
	if lock == nil {
		return StatusAvailable, nil
	}
	if requestingUserID != "" && lock.IsOwnedBy(requestingUserID) {
		return StatusMine, lock
	}
	if lock.Kind == seatlock.KindLock {
		return StatusLocked, lock
	}
	return StatusHeld, lock
}

// Update は座席状態の変化を通知するイベント
// 受信側が再取得せずに状態を更新できるだけの情報を持つ
type Update struct {
	Key        seatlock.Key
	Status     Status
	OwnerID    string
	LockKind   seatlock.Kind
	TTLSeconds int
}

// AvailableUpdate は座席が空いたことを表すイベントを作成する
func AvailableUpdate(key seatlock.Key) Update {
	return Update{Key: key, Status: StatusAvailable}
}

// BookedUpdate は座席が確定予約されたことを表すイベントを作成する
func BookedUpdate(key seatlock.Key) Update {
	return Update{Key: key, Status: StatusBooked}
}

// LockUpdate は現在のロックからイベントを作成する
func LockUpdate(lock *seatlock.SeatLock) Update {
	status := StatusHeld
	if lock.Kind == seatlock.KindLock {
		status = StatusLocked
	}
	return Update{
		Key:        lock.Key,
		Status:     status,
		OwnerID:    lock.OwnerID,
		LockKind:   lock.Kind,
		TTLSeconds: lock.TTLSeconds(),
	}
}

// Expiry はTTL切れによる座席解放のイベント
type Expiry struct {
	Key         seatlock.Key
	ExpiredKind seatlock.Kind
}
