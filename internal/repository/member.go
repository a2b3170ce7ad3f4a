package repository

import (
	"context"

	"github.com/Matthew0wolf/Apront/internal/domain"
)

// MemberRepository 定义了 Rundown 成员关系的存储和检索操作。
type MemberRepository interface {
	// ListByRundown 返回某 Rundown 的全部成员关系行。
	ListByRundown(ctx context.Context, rundownID uint) ([]domain.RundownMember, error)

	// ListRundownIDsByUser 返回某用户拥有成员关系的全部 Rundown ID。
	ListRundownIDsByUser(ctx context.Context, userID uint) ([]uint, error)

	// Exists 检查 (rundown, user) 成员关系行是否存在。
	Exists(ctx context.Context, rundownID uint, userID uint) (bool, error)

	// Replace 在单个事务内用 members 整体替换某 Rundown 的成员关系。
	// owner 的保留逻辑属于业务层，这里只做原子替换。
	Replace(ctx context.Context, rundownID uint, members []domain.RundownMember) error

	// Add 追加单条成员关系（auto-heal 恢复路径用）。
	Add(ctx context.Context, member *domain.RundownMember) error
}

// UsageLogRepository 定义了使用记录的持久化（后台任务写入）。
type UsageLogRepository interface {
	// SaveBatch 批量保存使用记录。
	SaveBatch(ctx context.Context, logs []domain.UsageLog) error
}
