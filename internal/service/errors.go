package service

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation 请求负载不合法。用 fmt.Errorf("%w: ...") 附加字段信息。
	ErrValidation = errors.New("validation failed")

	// ErrRundownNotFound 目标 Rundown 不存在，或请求者无权访问。
	// 两种情况刻意合并为同一个错误：对外不暴露"存在但无权"这一信息。
	ErrRundownNotFound = errors.New("rundown not found")

	// ErrPermissionDenied 请求者身份合法、目标可见，但角色权限不足
	// （如 presenter 尝试操作计时器、非 owner 改成员列表）。
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInternalServer 持久化或其他内部失败。
	ErrInternalServer = errors.New("internal server error")
)

// validationErr 构造带字段说明的校验错误
func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
