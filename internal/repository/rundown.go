package repository

import (
	"context"

	"github.com/Matthew0wolf/Apront/internal/domain"
)

// RundownRepository 定义了 Rundown 及其结构数据的存储和检索操作。
// 每次调用假定为事务性：要么整体成功，要么整体失败。
type RundownRepository interface {
	// FindByID 根据 ID 查找 Rundown（不预载结构）。
	// 不存在时返回 ErrRundownNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Rundown, error)

	// FindByIDWithStructure 根据 ID 查找 Rundown 并预载 Folders/Items（按 ordem 排序）。
	FindByIDWithStructure(ctx context.Context, id uint) (*domain.Rundown, error)

	// FindByIDs 按 ID 列表批量查找本次可见的 Rundown 并预载结构。
	// 部分 ID 不存在不算错误。
	FindByIDs(ctx context.Context, ids []uint) ([]domain.Rundown, error)

	// FindByCompany 查找某公司的全部 Rundown 并预载结构（管理员列表用）。
	FindByCompany(ctx context.Context, companyID uint) ([]domain.Rundown, error)

	// Save 保存 Rundown（存在则更新，否则创建）。
	Save(ctx context.Context, rundown *domain.Rundown) error

	// Delete 删除 Rundown，级联删除其结构和成员关系。
	// 不存在时返回 ErrRundownNotFound。
	Delete(ctx context.Context, id uint) error

	// ReplaceStructure 在单个事务内用 folders 整体替换 Rundown 的结构
	// （最后一次全量替换获胜，不做字段级合并），并返回带真实 ID 的
	// 规范化结构，供客户端核对临时 ID。
	ReplaceStructure(ctx context.Context, rundownID uint, folders []domain.Folder) ([]domain.Folder, error)
}

// TimerStateRepository 定义了计时器子状态的读写（Timer State Store 的持久化面）。
// 由 Rundown 表上的可选列支撑。
type TimerStateRepository interface {
	// GetTimerState 读取计时器状态。老 schema 缺列或子状态缺失时
	// 返回完整填充的默认状态（is_running=false, base=0, pointer=(0,0)）
	// 而不是报错；第二个返回值为 true 表示发生了退化。
	GetTimerState(ctx context.Context, rundownID uint) (domain.TimerState, bool, error)

	// SaveTimerState 以 last-write-wins 语义写回计时器状态。
	// 单 Rundown 单计时器的假设使并发写冲突罕见且低风险。
	SaveTimerState(ctx context.Context, rundownID uint, state domain.TimerState) error

	// ListRunning 返回所有标记为运行中的 Rundown ID（看门狗任务用）。
	ListRunning(ctx context.Context) ([]uint, error)
}
