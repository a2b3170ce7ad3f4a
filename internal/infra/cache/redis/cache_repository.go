package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/Matthew0wolf/Apront/internal/repository"
)

// RedisListCacheRepository 是 ListCacheRepository 接口的 Redis 实现。
// 这里只负责忠实地报告错误；fail-open（把错误当未命中）是上层
// ListCacheService 的职责。
type RedisListCacheRepository struct {
	client    *redis.Client
	keyPrefix string // Redis key 前缀，方便多应用共用实例时隔离
}

// NewRedisListCacheRepository 创建 RedisListCacheRepository 实例
func NewRedisListCacheRepository(client *redis.Client, keyPrefix string) *RedisListCacheRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisListCacheRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "apront:"
	}
	return &RedisListCacheRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (r *RedisListCacheRepository) snapshotKey(companyID uint, userID uint) string {
	return fmt.Sprintf("%srundowns:company:%d:user:%d", r.keyPrefix, companyID, userID)
}

func (r *RedisListCacheRepository) companyPattern(companyID uint) string {
	return fmt.Sprintf("%srundowns:company:%d:*", r.keyPrefix, companyID)
}

func (r *RedisListCacheRepository) relayChannel(rundownID uint) string {
	return fmt.Sprintf("%srelay:rundown:%d", r.keyPrefix, rundownID)
}

// --- ListCacheRepository Interface Implementation ---

// GetSnapshot 读取 (公司, 用户) 维度的列表快照，未命中映射为 ErrNotFound
func (r *RedisListCacheRepository) GetSnapshot(ctx context.Context, companyID uint, userID uint) ([]byte, error) {
	key := r.snapshotKey(companyID, userID)
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis: failed to get list snapshot from %s: %w", key, err)
	}
	return data, nil
}

// SetSnapshot 写入列表快照，带 TTL
func (r *RedisListCacheRepository) SetSnapshot(ctx context.Context, companyID uint, userID uint, snapshot []byte, ttl time.Duration) error {
	key := r.snapshotKey(companyID, userID)
	if err := r.client.Set(ctx, key, snapshot, ttl).Err(); err != nil {
		return fmt.Errorf("redis: failed to set list snapshot on %s: %w", key, err)
	}
	return nil
}

// InvalidateCompany 按模式删除某公司全部用户的快照。
// SCAN 而不是 KEYS，避免在大键空间上阻塞 Redis。
func (r *RedisListCacheRepository) InvalidateCompany(ctx context.Context, companyID uint) (int64, error) {
	pattern := r.companyPattern(companyID)
	var deleted int64

	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	keys := make([]string, 0, 16)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("redis: scan failed for pattern %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		return n, fmt.Errorf("redis: failed to delete %d snapshot keys for company %d: %w", len(keys), companyID, err)
	}
	return n, nil
}

// InvalidateUser 删除单个用户的快照
func (r *RedisListCacheRepository) InvalidateUser(ctx context.Context, companyID uint, userID uint) error {
	key := r.snapshotKey(companyID, userID)
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: failed to delete snapshot key %s: %w", key, err)
	}
	return nil
}

// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
// 使用 Pipeline 减少网络往返。
func (r *RedisListCacheRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: pipeline failed for rate limit check on key %s: %w", key, err)
	}
	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to get incr result for rate limit on key %s: %w", key, err)
	}
	return count > int64(limit), nil
}

// PublishRelay 把变更事件镜像发布到跨实例中继频道（fire-and-forget）
func (r *RedisListCacheRepository) PublishRelay(ctx context.Context, rundownID uint, payload []byte) error {
	channel := r.relayChannel(rundownID)
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel":      channel,
			"payload_size": len(payload),
			"rundown_id":   rundownID,
		}).WithError(err).Error("Redis relay publish failed")
		return fmt.Errorf("redis: failed to publish relay event to channel %s: %w", channel, err)
	}
	return nil
}
