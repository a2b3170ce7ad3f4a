package service

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Matthew0wolf/Apront/internal/repository"
)

// DefaultListCacheTTL 是列表快照的默认过期时间。
// 失效逻辑才是一致性的主力，TTL 只是兜底。
const DefaultListCacheTTL = 300 * time.Second

// ListCacheService 在仓库层的 Redis 操作之上实现 fail-open 语义：
// 缓存读写失败永远不影响请求结果，只记日志。
// 读路径把任何错误当未命中，写路径把任何错误吞掉。
type ListCacheService struct {
	cacheRepo repository.ListCacheRepository
	ttl       time.Duration
}

// NewListCacheService 创建 ListCacheService 实例
func NewListCacheService(cacheRepo repository.ListCacheRepository, ttl time.Duration) *ListCacheService {
	if cacheRepo == nil {
		panic("ListCacheRepository cannot be nil for ListCacheService")
	}
	if ttl <= 0 {
		ttl = DefaultListCacheTTL
	}
	return &ListCacheService{cacheRepo: cacheRepo, ttl: ttl}
}

// Read 读取 (公司, 用户) 维度的列表快照。
// bypass 为 true（?fresh=1）时跳过缓存直接返回未命中。
// 第二个返回值表示是否命中。
func (s *ListCacheService) Read(ctx context.Context, companyID, userID uint, bypass bool) ([]byte, bool) {
	if bypass {
		return nil, false
	}
	data, err := s.cacheRepo.GetSnapshot(ctx, companyID, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			// fail-open：缓存故障当未命中，走数据库
			logrus.WithFields(logrus.Fields{
				"company_id": companyID,
				"user_id":    userID,
			}).WithError(err).Warn("List cache read failed, treating as miss")
		}
		return nil, false
	}
	return data, true
}

// Write 写入列表快照，失败只记日志
func (s *ListCacheService) Write(ctx context.Context, companyID, userID uint, snapshot []byte) {
	if err := s.cacheRepo.SetSnapshot(ctx, companyID, userID, snapshot, s.ttl); err != nil {
		logrus.WithFields(logrus.Fields{
			"company_id": companyID,
			"user_id":    userID,
		}).WithError(err).Warn("List cache write failed, skipping")
	}
}

// InvalidateCompany 同步删除某公司全部用户的快照。
// 失败只记 Error 不回传：TTL 保证最终收敛，而让一次缓存故障
// 挂掉已经持久化成功的变更得不偿失。
func (s *ListCacheService) InvalidateCompany(ctx context.Context, companyID uint) {
	deleted, err := s.cacheRepo.InvalidateCompany(ctx, companyID)
	if err != nil {
		logrus.WithField("company_id", companyID).WithError(err).Error("List cache company invalidation failed")
		return
	}
	if deleted > 0 {
		logrus.WithFields(logrus.Fields{
			"company_id":   companyID,
			"deleted_keys": deleted,
		}).Debug("List cache invalidated for company")
	}
}

// Relay 把 Rundown 房间事件镜像发布到跨实例中继频道。
// fire-and-forget：中继失败只影响别的实例的实时性，不影响本次请求。
func (s *ListCacheService) Relay(ctx context.Context, rundownID uint, payload []byte) {
	if err := s.cacheRepo.PublishRelay(ctx, rundownID, payload); err != nil {
		logrus.WithField("rundown_id", rundownID).WithError(err).Warn("Relay publish failed, local broadcast unaffected")
	}
}

// InvalidateUser 同步删除单个用户的快照，失败只记日志
func (s *ListCacheService) InvalidateUser(ctx context.Context, companyID, userID uint) {
	if err := s.cacheRepo.InvalidateUser(ctx, companyID, userID); err != nil {
		logrus.WithFields(logrus.Fields{
			"company_id": companyID,
			"user_id":    userID,
		}).WithError(err).Error("List cache user invalidation failed")
	}
}
