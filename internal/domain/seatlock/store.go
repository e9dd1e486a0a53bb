package seatlock

import (
	"context"
	"time"
)

// Store はTTL付きの座席ロックストアのインターフェース
// 取得・解放はキー単位で線形化可能であること
type Store interface {
	// AcquireHold は仮押さえを取得する（既存の別座席の仮押さえは自動解放）
	AcquireHold(ctx context.Context, key Key, userID string, ttl time.Duration) (HoldResult, error)

	// AcquireLock はハードロックを取得する（既存の別座席のロックは自動解放）
	AcquireLock(ctx context.Context, key Key, userID string, ttl time.Duration) (LockResult, error)

	// ReleaseHold は所有者確認付きで仮押さえを解放する
	ReleaseHold(ctx context.Context, key Key, userID string) (bool, error)

	// ReleaseLock は所有者確認付きでハードロックを解放する
	ReleaseLock(ctx context.Context, key Key, userID string) (bool, error)

	// Get はキーの現在のロックを返す（存在しない場合は nil）
	Get(ctx context.Context, key Key) (*SeatLock, error)

	// List はルーム内の全ロックを一括で取得する（座席ID → ロック）
	List(ctx context.Context, busID, date string) (map[string]*SeatLock, error)

	// ListAll は全ロックをルームごとにまとめて返す（座席ID → 種別）
	ListAll(ctx context.Context) (map[Room]map[string]Kind, error)

	// TrackedKey はユーザーが現在所有している指定種別のキーを返す
	TrackedKey(ctx context.Context, userID string, kind Kind) (*Key, error)
}
