package hub

import "fmt"

// RoomKind 区分房间的两个维度
type RoomKind int

const (
	// RoomKindRundown 单个 Rundown 的编辑房间
	RoomKindRundown RoomKind = iota
	// RoomKindCompany 公司维度的列表房间
	RoomKindCompany
)

// Room 标识 Hub 中的一个广播房间。
// 同一个客户端可以同时加入多个房间（典型场景：一个公司房间 + 若干 Rundown 房间）。
// Room 是可比较的值类型，直接用作 map key。
type Room struct {
	Kind RoomKind
	ID   uint
}

// RundownRoom 返回指定 Rundown 的房间标识
func RundownRoom(rundownID uint) Room {
	return Room{Kind: RoomKindRundown, ID: rundownID}
}

// CompanyRoom 返回指定公司的房间标识
func CompanyRoom(companyID uint) Room {
	return Room{Kind: RoomKindCompany, ID: companyID}
}

// String 返回房间的日志友好表示，如 "rundown:42" 或 "company:7"
func (r Room) String() string {
	switch r.Kind {
	case RoomKindRundown:
		return fmt.Sprintf("rundown:%d", r.ID)
	case RoomKindCompany:
		return fmt.Sprintf("company:%d", r.ID)
	default:
		return fmt.Sprintf("unknown:%d", r.ID)
	}
}
