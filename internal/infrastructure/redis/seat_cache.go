package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("キャッシュが見つかりません")
)

// SeatCache はバス・日付ごとの空席数のキャッシュを管理する
type SeatCache struct {
	client *redis.Client
}

// NewSeatCache は新しいSeatCacheインスタンスを作成する
func NewSeatCache(client *redis.Client) *SeatCache {
	return &SeatCache{client: client}
}

// GetAvailableCount は空席数をキャッシュから取得する
func (c *SeatCache) GetAvailableCount(ctx context.Context, busID, date string) (int, error) {
	val, err := c.client.Get(ctx, c.availableCountKey(busID, date)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrCacheMiss
		}
		return 0, fmt.Errorf("キャッシュ取得に失敗: %w", err)
	}
	return val, nil
}

// SetAvailableCount は空席数をキャッシュに保存する
func (c *SeatCache) SetAvailableCount(ctx context.Context, busID, date string, count int, ttl time.Duration) error {
	err := c.client.Set(ctx, c.availableCountKey(busID, date), count, ttl).Err()
	if err != nil {
		return fmt.Errorf("キャッシュ保存に失敗: %w", err)
	}
	return nil
}

// Invalidate はキャッシュを無効化する
func (c *SeatCache) Invalidate(ctx context.Context, busID, date string) error {
	err := c.client.Del(ctx, c.availableCountKey(busID, date)).Err()
	if err != nil {
		return fmt.Errorf("キャッシュ無効化に失敗: %w", err)
	}
	return nil
}

// 座席ロックの "seat:*" と重ならないキーを使う
func (c *SeatCache) availableCountKey(busID, date string) string {
	return fmt.Sprintf("seats:available:%s:%s", busID, date)
}
