package domain

import "time"

// UsageLog 记录一次受限操作的使用情况（配额统计与审计用）。
// 写入在请求路径之外由后台任务完成。
type UsageLog struct {
	ID           uint      `gorm:"primaryKey"`
	CompanyID    uint      `gorm:"index"`
	UserID       uint      `gorm:"index"`
	Action       string    `gorm:"size:50;not null"` // 例如 create_rundown, delete_rundown
	ResourceType string    `gorm:"size:50"`          // 例如 rundown
	ResourceID   uint      `gorm:""`
	Details      string    `gorm:"type:text"` // 附加信息的 JSON 字符串
	CreatedAt    time.Time `gorm:"autoCreateTime;index"`
}
