package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/app/services"
	businessflow "github.com/techiemaya-admin/lad-feature-campaigns-sub003/business_flow"
	"github.com/techiemaya-admin/lad-feature-campaigns-sub003/config"
	"go.uber.org/zap"
)

// TaskWorker consumes on-demand run and send-now tasks from the queue
type TaskWorker struct {
	queue  services.TaskQueue
	runner businessflow.CampaignRunFlow
	cfg    config.QueueConfig
	logger *zap.Logger

	wg sync.WaitGroup
}

func NewTaskWorker(queue services.TaskQueue, runner businessflow.CampaignRunFlow, cfg config.QueueConfig, logger *zap.Logger) *TaskWorker {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TaskWorker{
		queue:  queue,
		runner: runner,
		cfg:    cfg,
		logger: logger.Named("task_worker"),
	}
}

// Start launches cfg.Workers consumers and returns a stop function that waits for them
func (w *TaskWorker) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	for i := range w.cfg.Workers {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.loop(ctx, i)
		}()
	}
	w.logger.Info("task workers started", zap.Int("workers", w.cfg.Workers))

	return func() {
		cancel()
		w.wg.Wait()
	}
}

func (w *TaskWorker) loop(ctx context.Context, worker int) {
	for ctx.Err() == nil {
		if _, err := w.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("failed to poll task queue", zap.Int("worker", worker), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// Poll waits for one task and handles it; it reports whether a task was taken
func (w *TaskWorker) Poll(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx, w.cfg.PollTimeout)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	return true, w.Handle(ctx, task)
}

// Handle runs a task; transient failures are retried and permanent ones dropped
func (w *TaskWorker) Handle(ctx context.Context, task *services.Task) error {
	log := w.logger.With(
		zap.String("task_id", task.ID),
		zap.String("kind", string(task.Kind)),
		zap.Uint("campaign_id", task.CampaignID),
		zap.Uint("lead_id", task.LeadID),
		zap.Int("attempts", task.Attempts))

	err := w.run(ctx, task)
	switch {
	case err == nil:
		tasksHandledTotal.WithLabelValues(string(task.Kind), "ok").Inc()
		log.Info("task done")
		return nil
	case permanentTaskError(err):
		tasksHandledTotal.WithLabelValues(string(task.Kind), "dropped").Inc()
		log.Warn("task dropped", zap.Error(err))
		return nil
	}

	dead, retryErr := w.queue.Retry(ctx, task, err)
	if retryErr != nil {
		return fmt.Errorf("failed to reschedule task %s: %w", task.ID, retryErr)
	}
	if dead {
		tasksHandledTotal.WithLabelValues(string(task.Kind), "dead").Inc()
		log.Error("task dead-lettered", zap.Error(err))
		captureWithTags(err, map[string]string{"job": "task", "task_kind": string(task.Kind), "task_id": task.ID})
		return nil
	}
	tasksHandledTotal.WithLabelValues(string(task.Kind), "retried").Inc()
	log.Warn("task will be retried", zap.Error(err))
	return nil
}

var errUnknownTaskKind = errors.New("unknown task kind")

func (w *TaskWorker) run(parent context.Context, task *services.Task) error {
	ctx, cancel := context.WithTimeout(parent, w.cfg.TaskTimeout)
	defer cancel()

	switch task.Kind {
	case services.TaskKindRunCampaign:
		_, err := w.runner.ProcessCampaign(ctx, task.CampaignID)
		return err
	case services.TaskKindSendNow:
		_, err := w.runner.ProcessLead(ctx, task.CampaignID, task.LeadID)
		return err
	default:
		return fmt.Errorf("%w: %q", errUnknownTaskKind, task.Kind)
	}
}

// permanentTaskError reports failures that a retry cannot fix
func permanentTaskError(err error) bool {
	return errors.Is(err, errUnknownTaskKind) ||
		errors.Is(err, businessflow.ErrCampaignNotFound) ||
		errors.Is(err, businessflow.ErrCampaignNotRunning) ||
		errors.Is(err, businessflow.ErrLeadNotFound) ||
		errors.Is(err, businessflow.ErrLeadNotActive)
}
