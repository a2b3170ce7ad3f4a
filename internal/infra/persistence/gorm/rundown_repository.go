package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/Matthew0wolf/Apront/internal/domain"
	"github.com/Matthew0wolf/Apront/internal/repository"
)

// GormRundownRepository 是 RundownRepository 和 TimerStateRepository
// 接口的 GORM 实现。计时器子状态就是 rundowns 表上的可选列，
// 因此两个接口共用同一个仓库。
type GormRundownRepository struct {
	db *gorm.DB
}

// NewGormRundownRepository 创建 GormRundownRepository 实例
func NewGormRundownRepository(db *gorm.DB) *GormRundownRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRundownRepository")
	}
	return &GormRundownRepository{db: db}
}

// FindByID 实现根据 ID 查找 Rundown（不预载结构）
func (r *GormRundownRepository) FindByID(ctx context.Context, id uint) (*domain.Rundown, error) {
	var rundown domain.Rundown
	err := r.db.WithContext(ctx).First(&rundown, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRundownNotFound
		}
		return nil, fmt.Errorf("gorm: find rundown by id %d: %w", id, err)
	}
	return &rundown, nil
}

// FindByIDWithStructure 实现根据 ID 查找 Rundown 并预载结构
func (r *GormRundownRepository) FindByIDWithStructure(ctx context.Context, id uint) (*domain.Rundown, error) {
	var rundown domain.Rundown
	err := r.db.WithContext(ctx).
		Preload("Folders", func(db *gorm.DB) *gorm.DB { return db.Order("folders.ordem ASC") }).
		Preload("Folders.Items", func(db *gorm.DB) *gorm.DB { return db.Order("items.ordem ASC") }).
		First(&rundown, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRundownNotFound
		}
		return nil, fmt.Errorf("gorm: find rundown with structure by id %d: %w", id, err)
	}
	return &rundown, nil
}

// FindByIDs 实现按 ID 列表批量查找并预载结构
func (r *GormRundownRepository) FindByIDs(ctx context.Context, ids []uint) ([]domain.Rundown, error) {
	var rundowns []domain.Rundown
	if len(ids) == 0 {
		return rundowns, nil // 避免空的 IN 查询，直接返回空 slice
	}
	err := r.db.WithContext(ctx).
		Preload("Folders", func(db *gorm.DB) *gorm.DB { return db.Order("folders.ordem ASC") }).
		Preload("Folders.Items", func(db *gorm.DB) *gorm.DB { return db.Order("items.ordem ASC") }).
		Where("id IN ?", ids).Find(&rundowns).Error
	if err != nil {
		// 批量查询不返回 ErrRecordNotFound，部分 ID 没找到不算错误
		return nil, fmt.Errorf("gorm: find rundowns by ids: %w", err)
	}
	return rundowns, nil
}

// FindByCompany 实现查找某公司的全部 Rundown（管理员列表用）
func (r *GormRundownRepository) FindByCompany(ctx context.Context, companyID uint) ([]domain.Rundown, error) {
	var rundowns []domain.Rundown
	err := r.db.WithContext(ctx).
		Preload("Folders", func(db *gorm.DB) *gorm.DB { return db.Order("folders.ordem ASC") }).
		Preload("Folders.Items", func(db *gorm.DB) *gorm.DB { return db.Order("items.ordem ASC") }).
		Where("company_id = ?", companyID).Find(&rundowns).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find rundowns by company %d: %w", companyID, err)
	}
	return rundowns, nil
}

// Save 实现保存 Rundown（创建或更新）
func (r *GormRundownRepository) Save(ctx context.Context, rundown *domain.Rundown) error {
	result := r.db.WithContext(ctx).Omit("Folders", "Members").Save(rundown)
	if err := result.Error; err != nil {
		// 唯一约束检查 (MySQL 1062)
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save rundown (id: %d): %w", rundown.ID, err)
	}
	return nil
}

// Delete 实现删除 Rundown，在单个事务内级联删除结构和成员关系
func (r *GormRundownRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rundown domain.Rundown
		if err := tx.First(&rundown, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrRundownNotFound
			}
			return fmt.Errorf("gorm: find rundown %d for delete: %w", id, err)
		}

		// 手动级联：items -> folders -> members -> rundown
		// (外键约束在老库上不一定存在，显式删除更稳妥)
		if err := tx.Where("folder_id IN (?)",
			tx.Model(&domain.Folder{}).Select("id").Where("rundown_id = ?", id),
		).Delete(&domain.Item{}).Error; err != nil {
			return fmt.Errorf("gorm: delete items of rundown %d: %w", id, err)
		}
		if err := tx.Where("rundown_id = ?", id).Delete(&domain.Folder{}).Error; err != nil {
			return fmt.Errorf("gorm: delete folders of rundown %d: %w", id, err)
		}
		if err := tx.Where("rundown_id = ?", id).Delete(&domain.RundownMember{}).Error; err != nil {
			return fmt.Errorf("gorm: delete members of rundown %d: %w", id, err)
		}
		if err := tx.Delete(&domain.Rundown{}, id).Error; err != nil {
			return fmt.Errorf("gorm: delete rundown %d: %w", id, err)
		}
		return nil
	})
}

// ReplaceStructure 实现整体替换结构：最后一次全量替换获胜，不做字段级合并。
// 返回带真实数据库 ID 的规范化结构。
func (r *GormRundownRepository) ReplaceStructure(ctx context.Context, rundownID uint, folders []domain.Folder) ([]domain.Folder, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rundown domain.Rundown
		if err := tx.First(&rundown, rundownID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrRundownNotFound
			}
			return fmt.Errorf("gorm: find rundown %d for structure replace: %w", rundownID, err)
		}

		// 清空旧结构
		if err := tx.Where("folder_id IN (?)",
			tx.Model(&domain.Folder{}).Select("id").Where("rundown_id = ?", rundownID),
		).Delete(&domain.Item{}).Error; err != nil {
			return fmt.Errorf("gorm: clear items of rundown %d: %w", rundownID, err)
		}
		if err := tx.Where("rundown_id = ?", rundownID).Delete(&domain.Folder{}).Error; err != nil {
			return fmt.Errorf("gorm: clear folders of rundown %d: %w", rundownID, err)
		}

		// 重建新结构，ordem 按传入顺序赋值
		for fi := range folders {
			folder := &folders[fi]
			folder.ID = 0 // 忽略客户端的临时 ID，让数据库分配真实 ID
			folder.RundownID = rundownID
			folder.Ordem = fi
			items := folder.Items
			folder.Items = nil
			if err := tx.Create(folder).Error; err != nil {
				return fmt.Errorf("gorm: create folder '%s': %w", folder.Title, err)
			}
			for ii := range items {
				item := &items[ii]
				item.ID = 0
				item.FolderID = folder.ID
				item.Ordem = ii
				if err := tx.Create(item).Error; err != nil {
					return fmt.Errorf("gorm: create item '%s': %w", item.Title, err)
				}
			}
			folder.Items = items
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return folders, nil
}

// --- TimerStateRepository 实现 ---

// GetTimerState 实现计时器状态读取：缺失子状态退化为默认值，不报错
func (r *GormRundownRepository) GetTimerState(ctx context.Context, rundownID uint) (domain.TimerState, bool, error) {
	var rundown domain.Rundown
	err := r.db.WithContext(ctx).First(&rundown, rundownID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.DefaultTimerState(), false, repository.ErrRundownNotFound
		}
		return domain.DefaultTimerState(), false, fmt.Errorf("gorm: get timer state for rundown %d: %w", rundownID, err)
	}
	state, degraded := rundown.TimerState()
	return state, degraded, nil
}

// SaveTimerState 实现计时器状态写回（last-write-wins，无乐观锁）
func (r *GormRundownRepository) SaveTimerState(ctx context.Context, rundownID uint, state domain.TimerState) error {
	var rundown domain.Rundown
	if err := rundown.ApplyTimerState(state); err != nil {
		return fmt.Errorf("gorm: encode timer state for rundown %d: %w", rundownID, err)
	}
	result := r.db.WithContext(ctx).Model(&domain.Rundown{}).Where("id = ?", rundownID).
		Updates(map[string]interface{}{
			"is_timer_running":        rundown.IsTimerRunning,
			"timer_elapsed_base":      rundown.TimerElapsedBase,
			"timer_started_at":        rundown.TimerStartedAt,
			"current_item_index_json": rundown.CurrentItemIndexJSON,
		})
	if result.Error != nil {
		return fmt.Errorf("gorm: save timer state for rundown %d: %w", rundownID, result.Error)
	}
	// RowsAffected 为 0 可能只是写入了相同的值 (MySQL 语义)，
	// Rundown 是否存在由上层的成员校验提前保证，这里不重复判断。
	return nil
}

// ListRunning 实现查找所有标记为运行中的 Rundown ID（看门狗任务用）
func (r *GormRundownRepository) ListRunning(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&domain.Rundown{}).
		Where("is_timer_running = ?", true).Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list running timers: %w", err)
	}
	return ids, nil
}
