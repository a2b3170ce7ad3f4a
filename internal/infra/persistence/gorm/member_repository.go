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

// GormMemberRepository 是 MemberRepository 接口的 GORM 实现
type GormMemberRepository struct {
	db *gorm.DB
}

// NewGormMemberRepository 创建 GormMemberRepository 实例
func NewGormMemberRepository(db *gorm.DB) *GormMemberRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMemberRepository")
	}
	return &GormMemberRepository{db: db}
}

// ListByRundown 实现返回某 Rundown 的全部成员关系行
func (r *GormMemberRepository) ListByRundown(ctx context.Context, rundownID uint) ([]domain.RundownMember, error) {
	var members []domain.RundownMember
	err := r.db.WithContext(ctx).Where("rundown_id = ?", rundownID).Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list members of rundown %d: %w", rundownID, err)
	}
	return members, nil
}

// ListRundownIDsByUser 实现返回某用户的全部 Rundown ID
func (r *GormMemberRepository) ListRundownIDsByUser(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&domain.RundownMember{}).
		Where("user_id = ?", userID).Pluck("rundown_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list rundown ids for user %d: %w", userID, err)
	}
	return ids, nil
}

// Exists 实现检查成员关系行是否存在
func (r *GormMemberRepository) Exists(ctx context.Context, rundownID uint, userID uint) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.RundownMember{}).
		Where("rundown_id = ? AND user_id = ?", rundownID, userID).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count membership (rundown %d, user %d): %w", rundownID, userID, err)
	}
	return count > 0, nil
}

// Replace 实现在单个事务内整体替换成员关系
func (r *GormMemberRepository) Replace(ctx context.Context, rundownID uint, members []domain.RundownMember) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("rundown_id = ?", rundownID).Delete(&domain.RundownMember{}).Error; err != nil {
			return fmt.Errorf("gorm: clear members of rundown %d: %w", rundownID, err)
		}
		for i := range members {
			members[i].ID = 0
			members[i].RundownID = rundownID
			if err := tx.Create(&members[i]).Error; err != nil {
				return fmt.Errorf("gorm: create membership (rundown %d, user %d): %w",
					rundownID, members[i].UserID, err)
			}
		}
		return nil
	})
}

// Add 实现追加单条成员关系
func (r *GormMemberRepository) Add(ctx context.Context, member *domain.RundownMember) error {
	err := r.db.WithContext(ctx).Create(member).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: add membership (rundown %d, user %d): %w", member.RundownID, member.UserID, err)
	}
	return nil
}
