package dto

import (
	"strconv"

	"github.com/Matthew0wolf/Apront/internal/domain"
)

// --- 列表 / 详情输出 ---

// RundownView 是 Rundown 的对外展示形状。
// ID 序列化为字符串：前端把它和结构内的临时 ID 统一按字符串处理。
type RundownView struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         string       `json:"type"`
	Created      string       `json:"created"`
	LastModified string       `json:"lastModified"`
	Status       string       `json:"status"`
	Duration     string       `json:"duration"`
	TeamMembers  int          `json:"teamMembers"`
	Items        []FolderView `json:"items"`
}

// FolderView 是结构树中的分组节点
type FolderView struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Type     string     `json:"type"` // 恒为 "folder"
	Children []ItemView `json:"children"`
}

// ItemView 是结构树中的条目节点
type ItemView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Duration    int    `json:"duration"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	IconType    string `json:"iconType"`
	IconData    string `json:"iconData"`
	Color       string `json:"color"`
	Urgency     string `json:"urgency"`
	Reminder    string `json:"reminder"`
}

// NewRundownView 把领域模型装配为对外展示形状。
// 假定 rundown.Folders 已按 ordem 预载排序。
func NewRundownView(rundown *domain.Rundown) RundownView {
	items := make([]FolderView, 0, len(rundown.Folders))
	for _, folder := range rundown.Folders {
		children := make([]ItemView, 0, len(folder.Items))
		for _, item := range folder.Items {
			children = append(children, ItemView{
				ID:          strconv.FormatUint(uint64(item.ID), 10),
				Title:       item.Title,
				Duration:    item.Duration,
				Description: item.Description,
				Type:        item.Type,
				Status:      item.Status,
				IconType:    item.IconType,
				IconData:    item.IconData,
				Color:       item.Color,
				Urgency:     item.Urgency,
				Reminder:    item.Reminder,
			})
		}
		items = append(items, FolderView{
			ID:       strconv.FormatUint(uint64(folder.ID), 10),
			Title:    folder.Title,
			Type:     "folder",
			Children: children,
		})
	}
	return RundownView{
		ID:           strconv.FormatUint(uint64(rundown.ID), 10),
		Name:         rundown.Name,
		Type:         rundown.Type,
		Created:      rundown.Created,
		LastModified: rundown.LastModified,
		Status:       rundown.Status,
		Duration:     rundown.Duration,
		TeamMembers:  rundown.TeamMembers,
		Items:        items,
	}
}

// --- 输入 ---

// CreateRundownInput 是创建 Rundown 的请求体
type CreateRundownInput struct {
	Name     string `json:"name" binding:"required"`
	Type     string `json:"type"`
	Duration string `json:"duration"`
	Status   string `json:"status"`
}

// UpdateRundownInput 是字段级更新的请求体，nil 表示不改
type UpdateRundownInput struct {
	Name        *string `json:"name"`
	Type        *string `json:"type"`
	Duration    *string `json:"duration"`
	TeamMembers *int    `json:"teamMembers"`
}

// UpdateStatusInput 是状态更新的请求体
type UpdateStatusInput struct {
	Status string `json:"status" binding:"required"`
}

// FolderInput 是结构整体替换时的分组输入。
// 客户端的临时 ID 会被忽略，服务端重新分配真实 ID。
type FolderInput struct {
	Title    string      `json:"title"`
	Children []ItemInput `json:"children"`
}

// ItemInput 是结构整体替换时的条目输入
type ItemInput struct {
	Title       string `json:"title"`
	Duration    int    `json:"duration"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	IconType    string `json:"iconType"`
	IconData    string `json:"iconData"`
	Color       string `json:"color"`
	Urgency     string `json:"urgency"`
	Reminder    string `json:"reminder"`
}

// UpdateStructureInput 是结构整体替换的请求体
type UpdateStructureInput struct {
	Items []FolderInput `json:"items"`
}

// MemberInput 是成员关系替换时的单条输入
type MemberInput struct {
	UserID uint   `json:"userId" binding:"required"`
	Role   string `json:"role"`
}

// UpdateMembersInput 是成员关系整体替换的请求体
type UpdateMembersInput struct {
	Members []MemberInput `json:"members"`
}

// MemberView 是成员关系的对外展示形状
type MemberView struct {
	UserID uint   `json:"userId"`
	Role   string `json:"role"`
}

// --- 计时器 ---

// SegmentPointerInput 是在播指针的请求体片段
type SegmentPointerInput struct {
	FolderIndex int `json:"folderIndex"`
	ItemIndex   int `json:"itemIndex"`
}

// UpdateTimerStateInput 是计时器更新的请求体，所有字段可选。
// 同一请求携带多个字段时按 运行状态 -> 秒数 -> 指针 的顺序应用。
type UpdateTimerStateInput struct {
	IsRunning        *bool                `json:"isRunning"`
	TimeElapsed      *int                 `json:"timeElapsed"`
	CurrentItemIndex *SegmentPointerInput `json:"currentItemIndex"`
}

// TimerStateView 是计时器状态的对外展示形状。
// timeElapsed 永远是服务端现场计算的权威值；timerElapsedBase 是
// 最近一次启动/seek 时落盘的基线，重连的客户端用它区分
// 基线和启动后的墙钟增量。
type TimerStateView struct {
	IsRunning        bool                `json:"isRunning"`
	TimeElapsed      int                 `json:"timeElapsed"`
	TimerElapsedBase int                 `json:"timerElapsedBase"`
	TimerStartedAt   *string             `json:"timerStartedAt"`
	CurrentItemIndex SegmentPointerInput `json:"currentItemIndex"`
	Status           string              `json:"status"`
}

// FieldChange 描述一次字段变更的前后值
type FieldChange struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// RundownUpdatedEvent 是 rundown_updated 广播的负载
type RundownUpdatedEvent struct {
	RundownID uint                   `json:"rundown_id"`
	UpdatedBy uint                   `json:"updated_by"`
	Changes   map[string]FieldChange `json:"changes,omitempty"`
	Rundown   *RundownView           `json:"rundown,omitempty"`
	Timer     *TimerStateView        `json:"timer,omitempty"`
}
