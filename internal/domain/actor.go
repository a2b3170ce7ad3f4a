package domain

// Actor 表示一个已通过认证的用户，在核心被调用之前由传输层解析完成。
// 核心的所有操作都显式接收 Actor 参数，不依赖任何请求级全局状态。
type Actor struct {
	ID         uint   // 用户唯一标识符
	CompanyID  uint   // 所属公司（租户）ID，所有可见性与缓存边界均以此隔离
	Role       string // 角色: "admin", "operator", "presenter"
	CanOperate bool   // 是否允许操作导播台（结构/计时器变更）
	CanPresent bool   // 是否允许以主持人视图接入
}

// 角色常量
const (
	RoleAdmin     = "admin"
	RoleOperator  = "operator"
	RolePresenter = "presenter"
)

// IsAdmin 判断该 Actor 是否为公司管理员。
// 管理员可以看到本公司的所有 rundown，但永远不能跨公司。
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}
