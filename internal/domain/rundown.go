package domain

import (
	"strings"
	"time"
)

// Rundown 的状态枚举值。保留原始产品的葡萄牙语字符串，
// 因为它们会原样出现在数据库、广播消息和前端中。
const (
	StatusNovo      = "Novo"      // 新建
	StatusAoVivo    = "Ao Vivo"   // 直播中
	StatusPausado   = "Pausado"   // 已暂停
	StatusEncerrado = "Encerrado" // 已结束
	StatusArquivado = "Arquivado" // 已归档
)

// NormalizeStatus 将各种 "live" 的别名写法统一为 "Ao Vivo"。
// 其他状态值原样保留，不做强制转换。
func NormalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "ao vivo", "aovivo", "live", "active":
		return StatusAoVivo
	default:
		return status
	}
}

// Rundown 表示一场直播的节目单（有序的分组与条目议程）。
// 每个 Rundown 只属于一个公司（租户）。
type Rundown struct {
	ID           uint      `gorm:"primaryKey"`             // 唯一标识符 (主键)
	CompanyID    uint      `gorm:"index;not null"`         // 所属公司 ID，租户隔离的关键列
	Name         string    `gorm:"size:120;not null"`      // 节目名称
	Type         string    `gorm:"size:50"`                // 节目类型 (自由文本)
	Status       string    `gorm:"size:30"`                // 状态，见上方枚举
	Duration     string    `gorm:"size:20"`                // 计划时长标签 (自由文本，如 "01:30:00")
	Created      string    `gorm:"size:50"`                // 创建时间 (ISO 字符串，沿用原始 schema)
	LastModified string    `gorm:"size:50"`                // 最后修改时间 (ISO 字符串)
	TeamMembers  int       `gorm:""`                       // 团队人数展示值
	CreatedAt    time.Time `gorm:"autoCreateTime"`         // 记录创建时间 (GORM 自动填充)
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`         // 记录最后更新时间 (GORM 自动填充)

	// 计时器子状态。这些列是可选的：老版本 schema 可能不存在，
	// 读取时必须退化为安全默认值而不是报错。
	TimerStartedAt       *string `gorm:"size:50"`  // 计时器启动时刻 (RFC3339)，仅运行中存在
	TimerElapsedBase     *int    `gorm:""`         // 上次暂停边界处累计的秒数
	IsTimerRunning       *bool   `gorm:""`         // 计时器是否在运行
	CurrentItemIndexJSON *string `gorm:"type:text"` // 当前在播条目指针 JSON: {"folderIndex":0,"itemIndex":0}

	Folders []Folder        `gorm:"constraint:OnDelete:CASCADE"` // 结构：有序分组
	Members []RundownMember `gorm:"constraint:OnDelete:CASCADE"` // 成员关系，随 Rundown 删除级联
}

// Folder 表示 Rundown 中的一个分组（文件夹），内含有序条目。
type Folder struct {
	ID        uint   `gorm:"primaryKey"`
	RundownID uint   `gorm:"index;not null"`
	Title     string `gorm:"size:120;not null"`
	Ordem     int    `gorm:"index"` // 分组在 Rundown 内的顺序

	Items []Item `gorm:"constraint:OnDelete:CASCADE"`
}

// Item 表示分组内的一个计时段（条目）。
type Item struct {
	ID          uint   `gorm:"primaryKey"`
	FolderID    uint   `gorm:"index;not null"`
	Title       string `gorm:"size:120;not null"`
	Duration    int    `gorm:""`          // 条目时长（秒）
	Description string `gorm:"type:text"`
	Type        string `gorm:"size:30"`
	Status      string `gorm:"size:30"`
	IconType    string `gorm:"size:30"`
	IconData    string `gorm:"size:60"`
	Color       string `gorm:"size:20"`
	Urgency     string `gorm:"size:20"`
	Reminder    string `gorm:"size:120"`
	Ordem       int    `gorm:"index"` // 条目在分组内的顺序
}

// 成员角色标签。空字符串视同 member。
const (
	MemberRoleOwner  = "owner"
	MemberRoleMember = "member"
)

// RundownMember 表示 Rundown 与用户之间的多对多成员关系。
// 不变量：除创建的原子窗口外，每个 Rundown 至少保有一个 owner。
type RundownMember struct {
	ID        uint   `gorm:"primaryKey"`
	RundownID uint   `gorm:"index:idx_rundown_user,unique;not null"`
	UserID    uint   `gorm:"index:idx_rundown_user,unique;not null"`
	Role      string `gorm:"size:30"` // "owner" 或 "member"（空视同 member）
}

// IsOwner 判断该成员关系是否带 owner 标签。
func (m RundownMember) IsOwner() bool {
	return strings.EqualFold(m.Role, MemberRoleOwner)
}
