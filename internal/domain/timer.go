package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SegmentPointer 标识当前在播的条目：(分组下标, 条目下标)。
type SegmentPointer struct {
	FolderIndex int `json:"folderIndex"`
	ItemIndex   int `json:"itemIndex"`
}

// TimerState 是 Rundown 计时器的纯值状态。
// 服务端是计时器的唯一权威：elapsed 永远由本文件的纯函数根据
// 持久化状态和当前墙钟时间现场计算，而不是信任存储的 elapsed 值。
type TimerState struct {
	IsRunning   bool           // 是否运行中
	StartedAt   *time.Time     // 启动时刻；当且仅当 IsRunning 为 true 时存在
	ElapsedBase int            // 上次 暂停/启动 边界处累计的秒数，>= 0
	Pointer     SegmentPointer // 当前在播条目指针
}

// DefaultTimerState 返回完整填充的默认状态，
// 用于老 schema 缺列或子状态尚未初始化的情况。
func DefaultTimerState() TimerState {
	return TimerState{
		IsRunning:   false,
		StartedAt:   nil,
		ElapsedBase: 0,
		Pointer:     SegmentPointer{FolderIndex: 0, ItemIndex: 0},
	}
}

// Elapsed 计算到 now 为止的累计秒数。纯函数，无任何 I/O。
// 第二个返回值为 true 表示状态已损坏（运行中但没有启动时刻），
// 此时按未运行处理并返回 ElapsedBase —— 安全退化而不是报错。
func (s TimerState) Elapsed(now time.Time) (int, bool) {
	if !s.IsRunning {
		return s.ElapsedBase, false
	}
	if s.StartedAt == nil {
		// 损坏/未迁移的状态：当作未运行
		return s.ElapsedBase, true
	}
	delta := int(now.Sub(*s.StartedAt).Seconds())
	if delta < 0 {
		// 时钟回拨保护：now 早于 StartedAt 时不产生负增量
		delta = 0
	}
	return s.ElapsedBase + delta, false
}

// Start 启动计时器。已在运行时为幂等空操作（不会重复累计 ElapsedBase）。
func Start(s TimerState, now time.Time) TimerState {
	if s.IsRunning && s.StartedAt != nil {
		return s
	}
	started := now
	s.StartedAt = &started
	s.IsRunning = true
	return s
}

// Pause 暂停计时器：把运行中的增量折算进 ElapsedBase 并清除启动时刻。
// 已暂停时为幂等空操作。
func Pause(s TimerState, now time.Time) TimerState {
	if !s.IsRunning {
		return s
	}
	elapsed, _ := s.Elapsed(now)
	s.ElapsedBase = elapsed
	s.StartedAt = nil
	s.IsRunning = false
	return s
}

// Seek 把累计秒数直接设为 newElapsed，两种运行状态下都合法。
// 运行中 seek 会把 StartedAt 重置为 now（重新定基），
// 否则后续读取会把 seek 前的运行时间重复计入。
func Seek(s TimerState, newElapsed int, now time.Time) TimerState {
	s.ElapsedBase = newElapsed
	if s.IsRunning {
		started := now
		s.StartedAt = &started
	}
	return s
}

// WithPointer 更新当前在播指针，与运行状态正交，总是允许。
func WithPointer(s TimerState, p SegmentPointer) TimerState {
	s.Pointer = p
	return s
}

// ValidatePointer 校验指针负载的形状；不合法的负载在进入状态机前被拒绝。
func ValidatePointer(p SegmentPointer) error {
	if p.FolderIndex < 0 {
		return fmt.Errorf("folderIndex must be >= 0, got %d", p.FolderIndex)
	}
	if p.ItemIndex < 0 {
		return fmt.Errorf("itemIndex must be >= 0, got %d", p.ItemIndex)
	}
	return nil
}

// --- Rundown 计时器列与 TimerState 之间的转换 ---

// TimerState 从 Rundown 的可空计时器列装配出完整状态。
// 任何缺失或无法解析的子字段都退化为默认值，绝不报错。
// 第二个返回值为 true 表示出现了需要记录告警的退化。
func (r *Rundown) TimerState() (TimerState, bool) {
	state := DefaultTimerState()
	degraded := false

	if r.TimerElapsedBase != nil && *r.TimerElapsedBase >= 0 {
		state.ElapsedBase = *r.TimerElapsedBase
	}
	if r.IsTimerRunning != nil {
		state.IsRunning = *r.IsTimerRunning
	}
	if r.TimerStartedAt != nil && *r.TimerStartedAt != "" {
		if t, err := time.Parse(time.RFC3339, *r.TimerStartedAt); err == nil {
			state.StartedAt = &t
		} else {
			degraded = true
		}
	}
	if state.IsRunning && state.StartedAt == nil {
		// 不变量被破坏：运行中却没有启动时刻。按未运行处理。
		state.IsRunning = false
		degraded = true
	}
	if r.CurrentItemIndexJSON != nil && *r.CurrentItemIndexJSON != "" {
		var p SegmentPointer
		if err := json.Unmarshal([]byte(*r.CurrentItemIndexJSON), &p); err == nil && ValidatePointer(p) == nil {
			state.Pointer = p
		} else {
			degraded = true
		}
	}
	return state, degraded
}

// ApplyTimerState 把 TimerState 写回 Rundown 的可空列。
func (r *Rundown) ApplyTimerState(state TimerState) error {
	running := state.IsRunning
	base := state.ElapsedBase
	r.IsTimerRunning = &running
	r.TimerElapsedBase = &base

	if state.StartedAt != nil {
		started := state.StartedAt.UTC().Format(time.RFC3339)
		r.TimerStartedAt = &started
	} else {
		r.TimerStartedAt = nil
	}

	pointerBytes, err := json.Marshal(state.Pointer)
	if err != nil {
		return fmt.Errorf("failed to marshal segment pointer: %w", err)
	}
	pointerJSON := string(pointerBytes)
	r.CurrentItemIndexJSON = &pointerJSON
	return nil
}
