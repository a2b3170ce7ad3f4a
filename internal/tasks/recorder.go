package tasks

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Recorder 把使用记录投递到 asynq 队列。
// fire-and-forget：入队失败只记日志，绝不影响请求路径。
type Recorder struct {
	client *asynq.Client
}

// NewRecorder 创建 Recorder 实例
func NewRecorder(client *asynq.Client) *Recorder {
	if client == nil {
		panic("asynq client cannot be nil for Recorder")
	}
	return &Recorder{client: client}
}

// Record 投递一条使用记录
func (r *Recorder) Record(ctx context.Context, entry UsageLogEntry) {
	task, err := NewUsageLogTask([]UsageLogEntry{entry})
	if err != nil {
		logrus.WithError(err).Error("Failed to build usage log task")
		return
	}
	if _, err := r.client.EnqueueContext(ctx, task); err != nil {
		logrus.WithFields(logrus.Fields{
			"action":      entry.Action,
			"resource_id": entry.ResourceID,
		}).WithError(err).Warn("Failed to enqueue usage log task")
	}
}
