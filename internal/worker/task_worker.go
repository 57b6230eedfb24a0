package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// TaskTypeDispatch is the asynq task type carrying a task id to dispatch
const TaskTypeDispatch = "task:dispatch"

// DispatchPayload is the asynq payload of TaskTypeDispatch
type DispatchPayload struct {
	TaskID string `json:"taskId"`
}

// Runner executes a persisted task
type Runner interface {
	Dispatch(ctx context.Context, taskID string) error
}

// TaskWorker processes dispatch tasks delivered by asynq
type TaskWorker struct {
	runner Runner
	log    zerolog.Logger
}

// NewTaskWorker creates a new task worker
func NewTaskWorker(runner Runner, log zerolog.Logger) *TaskWorker {
	return &TaskWorker{
		runner: runner,
		log:    log.With().Str("component", "task_worker").Logger(),
	}
}

// Register mounts the worker on an asynq mux.
func (w *TaskWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskTypeDispatch, w.ProcessTask)
}

// ProcessTask handles dispatch task processing. A malformed payload is never
// retried; a store failure returned by the runner is left to asynq retries.
func (w *TaskWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload DispatchPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal dispatch payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.TaskID == "" {
		return fmt.Errorf("dispatch payload without task id: %w", asynq.SkipRetry)
	}

	w.log.Debug().Str("task_id", payload.TaskID).Msg("processing dispatch")
	if err := w.runner.Dispatch(ctx, payload.TaskID); err != nil {
		w.log.Error().Err(err).Str("task_id", payload.TaskID).Msg("dispatch failed")
		return err
	}
	return nil
}
