package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu    sync.Mutex
	ids   []string
	err   error
	block chan struct{}
}

func (r *recordingRunner) Dispatch(ctx context.Context, taskID string) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, taskID)
	return r.err
}

func (r *recordingRunner) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestPoolRunsScheduledTasks(t *testing.T) {
	runner := &recordingRunner{}
	pool := NewPool(runner, PoolConfig{WorkerCount: 2, QueueSize: 8}, zerolog.Nop())
	pool.Start()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, pool.Schedule(context.Background(), id))
	}
	require.NoError(t, pool.Stop(context.Background()))

	assert.ElementsMatch(t, []string{"a", "b", "c"}, runner.seen())
}

func TestPoolRejectsWhenFull(t *testing.T) {
	runner := &recordingRunner{}
	pool := NewPool(runner, PoolConfig{WorkerCount: 1, QueueSize: 1}, zerolog.Nop())

	require.NoError(t, pool.Schedule(context.Background(), "a"))
	err := pool.Schedule(context.Background(), "b")
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestPoolRejectsAfterStop(t *testing.T) {
	pool := NewPool(&recordingRunner{}, PoolConfig{}, zerolog.Nop())
	pool.Start()
	require.NoError(t, pool.Stop(context.Background()))

	assert.ErrorIs(t, pool.Schedule(context.Background(), "a"), ErrQueueClosed)
	// stopping twice is harmless
	assert.NoError(t, pool.Stop(context.Background()))
}

func TestPoolStopHonoursDeadline(t *testing.T) {
	runner := &recordingRunner{block: make(chan struct{})}
	pool := NewPool(runner, PoolConfig{WorkerCount: 1}, zerolog.Nop())
	pool.Start()
	require.NoError(t, pool.Schedule(context.Background(), "slow"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(runner.block)
	}()
	assert.ErrorIs(t, pool.Stop(ctx), context.DeadlineExceeded)
}

func TestPoolKeepsWorkingAfterDispatchError(t *testing.T) {
	runner := &recordingRunner{err: errors.New("store down")}
	pool := NewPool(runner, PoolConfig{WorkerCount: 1}, zerolog.Nop())
	pool.Start()
	require.NoError(t, pool.Schedule(context.Background(), "a"))
	require.NoError(t, pool.Schedule(context.Background(), "b"))
	require.NoError(t, pool.Stop(context.Background()))

	assert.Equal(t, []string{"a", "b"}, runner.seen())
}

func TestProcessTask(t *testing.T) {
	runner := &recordingRunner{}
	w := NewTaskWorker(runner, zerolog.Nop())

	task, err := NewDispatchTask("0b5e7a52-4c7c-4d55-9d1a-3f9b1f0f9a11")
	require.NoError(t, err)
	require.NoError(t, w.ProcessTask(context.Background(), task))
	assert.Equal(t, []string{"0b5e7a52-4c7c-4d55-9d1a-3f9b1f0f9a11"}, runner.seen())

	runner.err = errors.New("store down")
	assert.Error(t, w.ProcessTask(context.Background(), task))
}

func TestProcessTaskSkipsRetryOnBadPayload(t *testing.T) {
	w := NewTaskWorker(&recordingRunner{}, zerolog.Nop())

	err := w.ProcessTask(context.Background(), asynq.NewTask(TaskTypeDispatch, []byte("not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = w.ProcessTask(context.Background(), asynq.NewTask(TaskTypeDispatch, []byte(`{}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

type fakeEnqueuer struct {
	task *asynq.Task
	opts []asynq.Option
	err  error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.task = task
	f.opts = opts
	if f.err != nil {
		return nil, f.err
	}
	return &asynq.TaskInfo{ID: "x", Queue: DefaultQueue}, nil
}

func TestAsynqDispatcherSchedule(t *testing.T) {
	fake := &fakeEnqueuer{}
	d := &AsynqDispatcher{client: fake, queue: DefaultQueue, maxRetry: 2}

	require.NoError(t, d.Schedule(context.Background(), "task-1"))
	require.NotNil(t, fake.task)
	assert.Equal(t, TaskTypeDispatch, fake.task.Type())

	var payload DispatchPayload
	require.NoError(t, json.Unmarshal(fake.task.Payload(), &payload))
	assert.Equal(t, "task-1", payload.TaskID)

	types := map[asynq.OptionType]interface{}{}
	for _, o := range fake.opts {
		types[o.Type()] = o.Value()
	}
	assert.Equal(t, DefaultQueue, types[asynq.QueueOpt])
	assert.Equal(t, "task-1", types[asynq.TaskIDOpt])
	assert.Equal(t, 2, types[asynq.MaxRetryOpt])

	fake.err = errors.New("redis down")
	assert.Error(t, d.Schedule(context.Background(), "task-2"))
}
