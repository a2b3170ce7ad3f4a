package tasks

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量
const (
	// TypeUsageLogPersistence 把一批使用记录异步写入数据库
	TypeUsageLogPersistence = "usage:log"
	// TypeTimerWatchdog 周期巡检计时器状态，修复损坏的运行中状态
	TypeTimerWatchdog = "timer:watchdog"
)

// UsageLogEntry 是单条使用记录的任务负载
type UsageLogEntry struct {
	UserID       uint      `json:"user_id"`
	CompanyID    uint      `json:"company_id"`
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   uint      `json:"resource_id"`
	Details      string    `json:"details,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// UsageLogPayload 定义使用记录持久化任务的数据结构
type UsageLogPayload struct {
	Entries []UsageLogEntry `json:"entries"`
}

// NewUsageLogTask 创建使用记录持久化任务（低优先级队列）
func NewUsageLogTask(entries []UsageLogEntry) (*asynq.Task, error) {
	payloadBytes, err := json.Marshal(UsageLogPayload{Entries: entries})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeUsageLogPersistence, payloadBytes, asynq.Queue("low")), nil
}

// NewTimerWatchdogTask 创建计时器巡检任务（调度器周期投递，无负载）
func NewTimerWatchdogTask() *asynq.Task {
	return asynq.NewTask(TypeTimerWatchdog, nil, asynq.Queue("default"))
}
