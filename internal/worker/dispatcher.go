package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// DefaultQueue is the asynq queue dispatch tasks go to
const DefaultQueue = "tasks"

// enqueuer is the slice of asynq.Client the dispatcher needs
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqDispatcher schedules dispatch through the durable Redis queue
type AsynqDispatcher struct {
	client   enqueuer
	queue    string
	maxRetry int
}

func NewAsynqDispatcher(client *asynq.Client, maxRetry int) *AsynqDispatcher {
	return &AsynqDispatcher{client: client, queue: DefaultQueue, maxRetry: maxRetry}
}

// NewDispatchTask builds the asynq task for a task id.
func NewDispatchTask(taskID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DispatchPayload{TaskID: taskID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDispatch, payload), nil
}

// Schedule enqueues a dispatch. The task id doubles as the asynq id so a
// repeated Schedule of the same task is rejected by the queue.
func (d *AsynqDispatcher) Schedule(ctx context.Context, taskID string) error {
	task, err := NewDispatchTask(taskID)
	if err != nil {
		return fmt.Errorf("failed to create dispatch task: %w", err)
	}
	_, err = d.client.EnqueueContext(ctx, task,
		asynq.Queue(d.queue),
		asynq.TaskID(taskID),
		asynq.MaxRetry(d.maxRetry),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}
