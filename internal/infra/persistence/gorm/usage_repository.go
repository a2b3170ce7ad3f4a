package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/Matthew0wolf/Apront/internal/domain"
)

// GormUsageLogRepository 是 UsageLogRepository 接口的 GORM 实现
type GormUsageLogRepository struct {
	db *gorm.DB
}

// NewGormUsageLogRepository 创建 GormUsageLogRepository 实例
func NewGormUsageLogRepository(db *gorm.DB) *GormUsageLogRepository {
	if db == nil {
		panic("database connection cannot be nil for GormUsageLogRepository")
	}
	return &GormUsageLogRepository{db: db}
}

// SaveBatch 实现批量保存使用记录
func (r *GormUsageLogRepository) SaveBatch(ctx context.Context, logs []domain.UsageLog) error {
	if len(logs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&logs).Error; err != nil {
		return fmt.Errorf("gorm: save usage log batch (size %d): %w", len(logs), err)
	}
	return nil
}
