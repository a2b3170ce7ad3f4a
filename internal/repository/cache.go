package repository

import (
	"context"
	"time"
)

// ListCacheRepository 定义了 rundown 列表快照缓存的底层操作，由 Redis 实现。
// 缓存只是优化：这里返回的任何错误都由上层按"未命中/空操作"处理（fail-open），
// 系统在没有缓存时必须保持正确，只是变慢。
type ListCacheRepository interface {
	// GetSnapshot 读取 (用户, 公司) 维度的列表快照。
	// 未命中时返回 ErrNotFound。
	GetSnapshot(ctx context.Context, companyID uint, userID uint) ([]byte, error)

	// SetSnapshot 写入列表快照，带 TTL。
	SetSnapshot(ctx context.Context, companyID uint, userID uint, snapshot []byte, ttl time.Duration) error

	// InvalidateCompany 同步删除某公司全部用户的快照。
	// 返回删除的条目数。
	InvalidateCompany(ctx context.Context, companyID uint) (int64, error)

	// InvalidateUser 删除某用户在某公司下的快照。
	InvalidateUser(ctx context.Context, companyID uint, userID uint) error

	// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
	// 返回 true 表示超限。
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)

	// PublishRelay 把一条变更事件镜像发布到跨实例中继频道（fire-and-forget）。
	// 消费端属于多实例部署的协作者边界，本进程不订阅。
	PublishRelay(ctx context.Context, rundownID uint, payload []byte) error
}
