package worker

import (
	"context"
	"errors"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/Matthew0wolf/Apront/internal/repository"
	"github.com/Matthew0wolf/Apront/internal/tasks"
)

// WorkerServer 封装了 Asynq Worker Server 的启动和关闭逻辑
type WorkerServer struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	log       *logrus.Entry
	usageRepo repository.UsageLogRepository
	timerRepo repository.TimerStateRepository
}

// NewWorkerServer 创建一个新的 WorkerServer 实例。
// 同时挂一个调度器周期投递计时器巡检任务。
func NewWorkerServer(redisOpt asynq.RedisClientOpt, usageRepo repository.UsageLogRepository, timerRepo repository.TimerStateRepository, logger *logrus.Logger) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retryCount, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logEntry.WithFields(logrus.Fields{
					"task_type": task.Type(),
					"retries":   retryCount,
					"max_retry": maxRetry,
				}).Errorf("Task failed: %v", err)
			}),
		},
	)

	scheduler := asynq.NewScheduler(redisOpt, nil)

	return &WorkerServer{
		server:    server,
		scheduler: scheduler,
		log:       logEntry,
		usageRepo: usageRepo,
		timerRepo: timerRepo,
	}
}

// Start 运行 Worker Server 和调度器。
// 它应该在一个单独的 goroutine 中调用。
func (ws *WorkerServer) Start() {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeUsageLogPersistence, NewUsageLogHandler(ws.usageRepo).ProcessTask)
	mux.HandleFunc(tasks.TypeTimerWatchdog, NewTimerWatchdogHandler(ws.timerRepo).ProcessTask)

	if _, err := ws.scheduler.Register("@every 5m", tasks.NewTimerWatchdogTask()); err != nil {
		ws.log.Fatalf("Could not register timer watchdog schedule: %v", err)
	}
	if err := ws.scheduler.Start(); err != nil {
		ws.log.Fatalf("Could not start scheduler: %v", err)
	}

	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(mux); err != nil {
		if !errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Fatalf("Could not run worker server: %v", err)
		} else {
			ws.log.Info("Worker server stopped.")
		}
	}
}

// Shutdown 优雅地关闭调度器和 Worker Server
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.scheduler.Shutdown()
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}
