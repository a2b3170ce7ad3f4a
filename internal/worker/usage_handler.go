package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/Matthew0wolf/Apront/internal/domain"
	"github.com/Matthew0wolf/Apront/internal/repository"
	"github.com/Matthew0wolf/Apront/internal/tasks"
)

// UsageLogHandler 处理使用记录的异步落库
type UsageLogHandler struct {
	usageRepo repository.UsageLogRepository
}

// NewUsageLogHandler 创建 Handler 实例
func NewUsageLogHandler(usageRepo repository.UsageLogRepository) *UsageLogHandler {
	if usageRepo == nil {
		panic("UsageLogRepository cannot be nil for UsageLogHandler")
	}
	return &UsageLogHandler{usageRepo: usageRepo}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *UsageLogHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	var payload tasks.UsageLogPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal usage log payload")
		// 负载坏了重试也没用
		return fmt.Errorf("unmarshal usage log payload: %v: %w", err, asynq.SkipRetry)
	}
	if len(payload.Entries) == 0 {
		return nil
	}

	logs := make([]domain.UsageLog, 0, len(payload.Entries))
	for _, e := range payload.Entries {
		logs = append(logs, domain.UsageLog{
			UserID:       e.UserID,
			CompanyID:    e.CompanyID,
			Action:       e.Action,
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			Details:      e.Details,
			CreatedAt:    e.OccurredAt,
		})
	}
	if err := h.usageRepo.SaveBatch(ctx, logs); err != nil {
		logCtx.WithError(err).Error("Failed to persist usage log batch")
		return fmt.Errorf("save usage log batch: %w", err)
	}

	logCtx.WithField("entry_count", len(logs)).Debug("Usage log batch persisted")
	return nil
}
