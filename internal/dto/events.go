package dto

import "encoding/json"

// WebSocket 事件名（服务端 -> 客户端）
const (
	// EventRundownUpdated 单个 Rundown 的字段 / 状态 / 计时器变更
	EventRundownUpdated = "rundown_updated"
	// EventItemReordered 文件夹内条目拖拽排序（不回发给发送者）
	EventItemReordered = "item_reordered"
	// EventFolderReordered 文件夹整体拖拽排序（不回发给发送者）
	EventFolderReordered = "folder_reordered"
	// EventRundownListChanged 公司维度的列表变更信号，客户端收到后重拉列表
	EventRundownListChanged = "rundown_list_changed"
)

// 控制消息类型（客户端 -> 服务端）
const (
	ControlJoinRundown     = "join_rundown"
	ControlLeaveRundown    = "leave_rundown"
	ControlJoinCompany     = "join_company"
	ControlItemReordered   = "item_reordered"
	ControlFolderReordered = "folder_reordered"
)

// ControlMessage 是客户端通过 WebSocket 发来的控制 / 中继消息。
// 字段按消息类型选用：join/leave 只看 ID 字段，
// reorder 消息额外携带排序负载原样中继给房间内其他客户端。
type ControlMessage struct {
	Type        string          `json:"type"`
	RundownID   uint            `json:"rundown_id,omitempty"`
	CompanyID   uint            `json:"company_id,omitempty"`
	FolderIndex *int            `json:"folder_index,omitempty"`
	NewOrder    json.RawMessage `json:"new_order,omitempty"`
}

// Envelope 是服务端推送消息的统一外层结构
type Envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// ReorderEvent 是 reorder 中继事件的广播负载
type ReorderEvent struct {
	RundownID   uint            `json:"rundown_id"`
	FolderIndex *int            `json:"folder_index,omitempty"`
	NewOrder    json.RawMessage `json:"new_order"`
}

// RundownListChangedEvent 通知客户端公司列表发生了变化
type RundownListChangedEvent struct {
	CompanyID uint   `json:"company_id"`
	Reason    string `json:"reason"` // "created" / "deleted" / "status" / "members"
	RundownID uint   `json:"rundown_id,omitempty"`
}
