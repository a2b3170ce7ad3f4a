package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/Matthew0wolf/Apront/internal/repository"
)

// TimerWatchdogHandler 周期巡检所有标记为运行中的计时器，
// 修复"运行中却没有启动时刻"这类损坏状态（进程崩溃或老数据迁移遗留）。
// 修复动作就是读一遍再写回：读取路径的退化逻辑会把损坏状态
// 降级为已暂停，写回后存储恢复一致。
type TimerWatchdogHandler struct {
	timerRepo repository.TimerStateRepository
}

// NewTimerWatchdogHandler 创建 Handler 实例
func NewTimerWatchdogHandler(timerRepo repository.TimerStateRepository) *TimerWatchdogHandler {
	if timerRepo == nil {
		panic("TimerStateRepository cannot be nil for TimerWatchdogHandler")
	}
	return &TimerWatchdogHandler{timerRepo: timerRepo}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *TimerWatchdogHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	ids, err := h.timerRepo.ListRunning(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Watchdog: failed to list running timers")
		return fmt.Errorf("list running timers: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	healed := 0
	for _, id := range ids {
		state, degraded, err := h.timerRepo.GetTimerState(ctx, id)
		if err != nil {
			logCtx.WithField("rundown_id", id).WithError(err).Warn("Watchdog: failed to read timer state, skipping")
			continue
		}
		if !degraded {
			continue
		}
		// 读取已把损坏状态降级为安全值，写回即修复
		if err := h.timerRepo.SaveTimerState(ctx, id, state); err != nil {
			logCtx.WithField("rundown_id", id).WithError(err).Warn("Watchdog: failed to persist healed timer state")
			continue
		}
		healed++
		logCtx.WithFields(logrus.Fields{
			"rundown_id": id,
			"is_running": state.IsRunning,
		}).Warn("Watchdog: healed corrupt timer state")
	}

	logCtx.WithFields(logrus.Fields{
		"checked": len(ids),
		"healed":  healed,
	}).Info("Timer watchdog sweep completed")
	return nil
}
