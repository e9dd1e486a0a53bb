package seatlock

import (
	"strings"
	"time"
)

// Kind はシートロックの種類を表す
type Kind string

const (
	// KindHold は閲覧中の仮押さえ（短いTTL、横取り可能）
	KindHold Kind = "hold"
	// KindLock は決済中の確保（長いTTL、排他）
	KindLock Kind = "lock"
)

// IsValid は既知のロック種別かを返す
func (k Kind) IsValid() bool {
	return k == KindHold || k == KindLock
}

const keyPrefix = "seat:"

// Room はバスと日付の組を表す（購読の単位）
type Room struct {
	BusID string
	Date  string
}

// String は "busId:date" 形式の文字列を返す
func (r Room) String() string {
	return r.BusID + ":" + r.Date
}

// Key は座席ロックのキー（バス・日付・座席）
type Key struct {
	BusID  string
	Date   string
	SeatID string
}

// NewKey は新しいキーを作成する
func NewKey(busID, date, seatID string) Key {
	return Key{BusID: busID, Date: date, SeatID: seatID}
}

// String はストア上のキー文字列 seat:{busId}:{date}:{seatId} を返す
func (k Key) String() string {
	return keyPrefix + k.BusID + ":" + k.Date + ":" + k.SeatID
}

// Room はキーが属するルームを返す
func (k Key) Room() Room {
	return Room{BusID: k.BusID, Date: k.Date}
}

// ParseKey はストア上のキー文字列をKeyに変換する
// 座席IDには ":" が含まれていてもよい
func ParseKey(s string) (Key, bool) {
	if !strings.HasPrefix(s, keyPrefix) {
		return Key{}, false
	}
	parts := strings.SplitN(strings.TrimPrefix(s, keyPrefix), ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Key{}, false
	}
	return Key{BusID: parts[0], Date: parts[1], SeatID: parts[2]}, true
}

// RoomPattern はルーム内の全座席キーにマッチするパターンを返す
func RoomPattern(busID, date string) string {
	return keyPrefix + busID + ":" + date + ":*"
}

// AllPattern は全座席キーにマッチするパターンを返す
func AllPattern() string {
	return keyPrefix + "*"
}

// SeatLock は座席に対する現在のロック
type SeatLock struct {
	Key       Key
	OwnerID   string
	Kind      Kind
	TTL       time.Duration
	ExpiresAt time.Time
}

// IsOwnedBy は指定ユーザーが所有しているかを返す
func (l *SeatLock) IsOwnedBy(userID string) bool {
	return l != nil && l.OwnerID == userID
}

// IsLock はハードロックかを返す
func (l *SeatLock) IsLock() bool {
	return l != nil && l.Kind == KindLock
}

// TTLSeconds は残りTTLを秒で返す（切り上げ）
func (l *SeatLock) TTLSeconds() int {
	if l == nil || l.TTL <= 0 {
		return 0
	}
	return int((l.TTL + time.Second - 1) / time.Second)
}

// EncodeValue はストアに保存するタグ付き値を返す
func EncodeValue(kind Kind, userID string) string {
	return string(kind) + ":" + userID
}

// DecodeValue はタグ付き値を種別と所有者に分解する
// タグのない値は旧形式としてロック扱いにする
func DecodeValue(v string) (Kind, string, bool) {
	if v == "" {
		return "", "", false
	}
	if owner, ok := strings.CutPrefix(v, string(KindHold)+":"); ok {
		return KindHold, owner, true
	}
	if owner, ok := strings.CutPrefix(v, string(KindLock)+":"); ok {
		return KindLock, owner, true
	}
	return KindLock, v, true
}

// TrackingKey はユーザーごとの追跡ポインタのキーを返す
func TrackingKey(kind Kind, userID string) string {
	return "user:" + string(kind) + ":" + userID
}

// HoldResult は仮押さえ取得の結果
// AlreadyLocked は呼び出し元自身のロックがあり何もしなかったことを表す
type HoldResult struct {
	Acquired      bool
	AlreadyLocked bool
	ReleasedHold  *Key
	ReleasedLock  *Key
}

// LockResult はハードロック取得の結果
type LockResult struct {
	Acquired        bool
	Released        *Key
	ReleasedHold    *Key
	PreemptedHolder string
}
