package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sanosuguru/go-bus-seat-reservation/internal/domain/seatlock"
)

const scanCount = 200

// SeatLockStore は Redis を使用した座席ロックストア
// 取得・解放は1回のLuaスクリプト実行で完結する
type SeatLockStore struct {
	client            *redis.Client
	releaseLockOnHold bool
	now               func() time.Time
}

// SeatLockStoreOption はストアの設定オプション
type SeatLockStoreOption func(*SeatLockStore)

// WithReleaseLockOnHold は仮押さえ取得時に別座席の自分のロックを解放するかを設定する
func WithReleaseLockOnHold(release bool) SeatLockStoreOption {
	return func(s *SeatLockStore) {
		s.releaseLockOnHold = release
	}
}

// NewSeatLockStore は新しいSeatLockStoreを作成する
func NewSeatLockStore(client *redis.Client, opts ...SeatLockStoreOption) *SeatLockStore {
	s := &SeatLockStore{
		client:            client,
		releaseLockOnHold: true,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ seatlock.Store = (*SeatLockStore)(nil)

// AcquireHold は仮押さえを取得する
func (s *SeatLockStore) AcquireHold(ctx context.Context, key seatlock.Key, userID string, ttl time.Duration) (seatlock.HoldResult, error) {
	flag := "0"
	if s.releaseLockOnHold {
		flag = "1"
	}
	keys := []string{
		key.String(),
		seatlock.TrackingKey(seatlock.KindHold, userID),
		seatlock.TrackingKey(seatlock.KindLock, userID),
	}
	res, err := holdScript.Run(ctx, s.client, keys, userID, ttl.Milliseconds(), flag).Slice()
	if err != nil {
		return seatlock.HoldResult{}, storeError("仮押さえの取得に失敗", err)
	}
	if len(res) != 4 {
		return seatlock.HoldResult{}, fmt.Errorf("仮押さえスクリプトの戻り値が不正: %v", res)
	}
	return seatlock.HoldResult{
		Acquired:      toInt(res[0]) == 1,
		AlreadyLocked: toInt(res[1]) == 1,
		ReleasedHold:  toKey(res[2]),
		ReleasedLock:  toKey(res[3]),
	}, nil
}

// AcquireLock はハードロックを取得する
func (s *SeatLockStore) AcquireLock(ctx context.Context, key seatlock.Key, userID string, ttl time.Duration) (seatlock.LockResult, error) {
	keys := []string{
		key.String(),
		seatlock.TrackingKey(seatlock.KindLock, userID),
		seatlock.TrackingKey(seatlock.KindHold, userID),
	}
	res, err := lockScript.Run(ctx, s.client, keys, userID, ttl.Milliseconds()).Slice()
	if err != nil {
		return seatlock.LockResult{}, storeError("ロックの取得に失敗", err)
	}
	if len(res) != 4 {
		return seatlock.LockResult{}, fmt.Errorf("ロックスクリプトの戻り値が不正: %v", res)
	}
	preempted, _ := res[3].(string)
	return seatlock.LockResult{
		Acquired:        toInt(res[0]) == 1,
		Released:        toKey(res[1]),
		ReleasedHold:    toKey(res[2]),
		PreemptedHolder: preempted,
	}, nil
}

// ReleaseHold は所有者確認付きで仮押さえを解放する
func (s *SeatLockStore) ReleaseHold(ctx context.Context, key seatlock.Key, userID string) (bool, error) {
	return s.release(ctx, key, userID, seatlock.KindHold)
}

// ReleaseLock は所有者確認付きでハードロックを解放する
func (s *SeatLockStore) ReleaseLock(ctx context.Context, key seatlock.Key, userID string) (bool, error) {
	return s.release(ctx, key, userID, seatlock.KindLock)
}

func (s *SeatLockStore) release(ctx context.Context, key seatlock.Key, userID string, kind seatlock.Kind) (bool, error) {
	keys := []string{key.String(), seatlock.TrackingKey(kind, userID)}
	n, err := releaseScript.Run(ctx, s.client, keys, seatlock.EncodeValue(kind, userID)).Int()
	if err != nil {
		return false, storeError("座席の解放に失敗", err)
	}
	return n == 1, nil
}

// Get はキーの現在のロックを返す（存在しない場合は nil）
func (s *SeatLockStore) Get(ctx context.Context, key seatlock.Key) (*seatlock.SeatLock, error) {
	pipe := s.client.TxPipeline()
	getCmd := pipe.Get(ctx, key.String())
	ttlCmd := pipe.PTTL(ctx, key.String())
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, storeError("ロックの取得に失敗", err)
	}

	value, err := getCmd.Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("ロックの取得に失敗", err)
	}
	return s.decode(key, value, ttlCmd.Val()), nil
}

// List はルーム内の全ロックを一括で取得する
// キーの列挙後、値とTTLを1回のMULTI/EXECで読み取る
func (s *SeatLockStore) List(ctx context.Context, busID, date string) (map[string]*seatlock.SeatLock, error) {
	keys, err := s.scan(ctx, seatlock.RoomPattern(busID, date))
	if err != nil {
		return nil, err
	}
	locks := make(map[string]*seatlock.SeatLock, len(keys))
	if len(keys) == 0 {
		return locks, nil
	}

	pipe := s.client.TxPipeline()
	getCmds := make([]*redis.StringCmd, len(keys))
	ttlCmds := make([]*redis.DurationCmd, len(keys))
	for i, k := range keys {
		getCmds[i] = pipe.Get(ctx, k)
		ttlCmds[i] = pipe.PTTL(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, storeError("ロック一覧の取得に失敗", err)
	}

	for i, k := range keys {
		key, ok := seatlock.ParseKey(k)
		if !ok || key.BusID != busID || key.Date != date {
			continue
		}
		value, err := getCmds[i].Result()
		if err != nil {
			// SCAN後に期限切れになったキー
			continue
		}
		if lock := s.decode(key, value, ttlCmds[i].Val()); lock != nil {
			locks[key.SeatID] = lock
		}
	}
	return locks, nil
}

// ListAll は全ロックをルームごとにまとめて返す
func (s *SeatLockStore) ListAll(ctx context.Context) (map[seatlock.Room]map[string]seatlock.Kind, error) {
	keys, err := s.scan(ctx, seatlock.AllPattern())
	if err != nil {
		return nil, err
	}
	rooms := make(map[seatlock.Room]map[string]seatlock.Kind)
	if len(keys) == 0 {
		return rooms, nil
	}

	pipe := s.client.TxPipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Get(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, storeError("ロック一覧の取得に失敗", err)
	}

	for i, k := range keys {
		key, ok := seatlock.ParseKey(k)
		if !ok {
			continue
		}
		value, err := cmds[i].Result()
		if err != nil {
			continue
		}
		kind, _, ok := seatlock.DecodeValue(value)
		if !ok {
			continue
		}
		room := key.Room()
		if rooms[room] == nil {
			rooms[room] = make(map[string]seatlock.Kind)
		}
		rooms[room][key.SeatID] = kind
	}
	return rooms, nil
}

// TrackedKey はユーザーが現在所有している指定種別のキーを返す
func (s *SeatLockStore) TrackedKey(ctx context.Context, userID string, kind seatlock.Kind) (*seatlock.Key, error) {
	value, err := s.client.Get(ctx, seatlock.TrackingKey(kind, userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, storeError("追跡ポインタの取得に失敗", err)
	}
	key, ok := seatlock.ParseKey(value)
	if !ok {
		return nil, nil
	}
	return &key, nil
}

func (s *SeatLockStore) scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, storeError("キーの列挙に失敗", err)
	}
	return keys, nil
}

func (s *SeatLockStore) decode(key seatlock.Key, value string, ttl time.Duration) *seatlock.SeatLock {
	kind, owner, ok := seatlock.DecodeValue(value)
	if !ok {
		return nil
	}
	if ttl < 0 {
		ttl = 0
	}
	return &seatlock.SeatLock{
		Key:       key,
		OwnerID:   owner,
		Kind:      kind,
		TTL:       ttl,
		ExpiresAt: s.now().Add(ttl),
	}
}

func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, seatlock.ErrStoreUnavailable, err)
}

func toInt(v interface{}) int64 {
	n, _ := v.(int64)
	return n
}

func toKey(v interface{}) *seatlock.Key {
	s, _ := v.(string)
	if s == "" {
		return nil
	}
	key, ok := seatlock.ParseKey(s)
	if !ok {
		return nil
	}
	return &key
}
