package seatlock

import "errors"

// SeatLock ドメインのエラー定義
var (
	ErrSeatUnavailable  = errors.New("座席は他のユーザーが決済中です")
	ErrNotOwner         = errors.New("この座席のロックを保持していません")
	ErrStoreUnavailable = errors.New("ロックストアに接続できません")
)
