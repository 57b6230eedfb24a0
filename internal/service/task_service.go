package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/loopyluu007/anime-ai/internal/apperr"
	"github.com/loopyluu007/anime-ai/internal/client"
	"github.com/loopyluu007/anime-ai/internal/model"
	"github.com/loopyluu007/anime-ai/internal/store"
)

// Dispatcher hands a persisted task to whatever runs Dispatch later
type Dispatcher interface {
	Schedule(ctx context.Context, taskID string) error
}

// Notifier pushes task events to connected clients
type Notifier interface {
	NotifyTask(ownerID, taskID string, ev *model.Event) int
}

// Providers groups the generation backends
type Providers struct {
	Script client.ScriptGenerator
	Image  client.ImageGenerator
	Video  client.VideoGenerator
}

// VideoWait bounds how long Dispatch follows a video job
type VideoWait struct {
	MaxWait      time.Duration
	PollInterval time.Duration
}

const (
	defaultPageSize = 20
	maxPageSize     = 100

	stepQueued     = "queued"
	stepStarted    = "started"
	stepSubmitted  = "waiting for video"
	stepMirroring  = "storing media"
	stepCompleted  = "completed"
	stepFailed     = "failed"
	stepCancelled  = "cancelled"
	stepGenerating = "generating"
)

var (
	errNotPending    = errors.New("task is not pending")
	errNotProcessing = errors.New("task is not processing")
)

// TaskService owns the task lifecycle: creation, dispatch and the
// transitions between states. Every transition is a store Update whose
// mutate func checks the source state, so concurrent writers cannot move a
// task out of a terminal state.
type TaskService struct {
	store      store.TaskStore
	providers  Providers
	dispatcher Dispatcher
	notifier   Notifier
	mirror     client.MediaMirror
	validate   *validator.Validate
	videoWait  VideoWait
	now        func() time.Time
	log        zerolog.Logger
}

// Option configures a TaskService
type Option func(*TaskService)

// WithMirror re-hosts generated media after a successful task.
func WithMirror(m client.MediaMirror) Option {
	return func(s *TaskService) { s.mirror = m }
}

// WithVideoWait overrides the video polling budget.
func WithVideoWait(w VideoWait) Option {
	return func(s *TaskService) { s.videoWait = w }
}

// WithClock is used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *TaskService) { s.now = now }
}

func NewTaskService(st store.TaskStore, providers Providers, notifier Notifier, v *validator.Validate, log zerolog.Logger, opts ...Option) *TaskService {
	s := &TaskService{
		store:     st,
		providers: providers,
		notifier:  notifier,
		validate:  v,
		videoWait: VideoWait{MaxWait: 5 * time.Minute, PollInterval: 5 * time.Second},
		now:       time.Now,
		log:       log.With().Str("component", "task_service").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetDispatcher completes construction. The local worker pool needs the
// service to exist before it can be built.
func (s *TaskService) SetDispatcher(d Dispatcher) {
	s.dispatcher = d
}

// CreateInput is a task submission after the HTTP layer parsed it
type CreateInput struct {
	Type           string
	ConversationID string
	Params         json.RawMessage
}

// Create persists a pending task and schedules its dispatch.
func (s *TaskService) Create(ctx context.Context, ownerID string, in CreateInput) (*model.Task, error) {
	taskType, ok := model.ParseTaskType(in.Type)
	if !ok {
		return nil, apperr.Validation("Unsupported task type: %q", in.Type)
	}
	params, err := normalizeParams(in.Params)
	if err != nil {
		return nil, err
	}
	if s.dispatcher == nil {
		return nil, apperr.Unavailable("Task dispatcher not configured")
	}

	now := s.now().UTC()
	task := &model.Task{
		ID:             uuid.New().String(),
		OwnerID:        ownerID,
		ConversationID: in.ConversationID,
		Type:           taskType,
		Status:         model.TaskStatusPending,
		CurrentStep:    stepQueued,
		Params:         params,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to save task: %w", err)
	}

	if err := s.dispatcher.Schedule(ctx, task.ID); err != nil {
		s.log.Error().Err(err).Str("task_id", task.ID).Msg("failed to schedule task")
		failed := s.fail(context.WithoutCancel(ctx), task.ID, fmt.Errorf("failed to schedule task: %w", err))
		if failed != nil {
			task = failed
		}
		return task, apperr.Wrap(apperr.KindServiceUnavailable, err, "Task queue unavailable")
	}

	s.log.Info().Str("task_id", task.ID).Str("type", string(task.Type)).Str("owner_id", ownerID).Msg("task created")
	return task, nil
}

// normalizeParams requires a non-empty JSON object and compacts it.
func normalizeParams(raw json.RawMessage) (json.RawMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, apperr.Validation("params is required")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, apperr.Validation("params must be a JSON object")
	}
	if len(obj) == 0 {
		return nil, apperr.Validation("params must not be empty")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, apperr.Validation("params must be a JSON object")
	}
	return buf.Bytes(), nil
}

// Dispatch runs a task to a terminal state. A missing task or one another
// worker already claimed is a no-op. Provider failures end the task failed
// and are never returned; only store failures are.
func (s *TaskService) Dispatch(ctx context.Context, taskID string) error {
	log := s.log.With().Str("task_id", taskID).Logger()

	task, err := s.store.Update(ctx, taskID, func(t *model.Task) error {
		if t.Status != model.TaskStatusPending {
			return errNotPending
		}
		t.Status = model.TaskStatusProcessing
		t.Progress = model.ProgressStarted
		t.CurrentStep = stepStarted
		t.UpdatedAt = s.now().UTC()
		return nil
	})
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		log.Warn().Msg("dispatch of unknown task ignored")
		return nil
	case errors.Is(err, errNotPending):
		log.Debug().Msg("task already claimed")
		return nil
	case err != nil:
		return fmt.Errorf("failed to claim task: %w", err)
	}
	s.publishProgress(task)
	log.Info().Str("type", string(task.Type)).Msg("task started")

	result, err := s.execute(ctx, task)
	if err != nil {
		log.Warn().Err(err).Str("kind", string(apperr.KindOf(err))).Msg("task failed")
		if s.fail(context.WithoutCancel(ctx), taskID, err) == nil {
			return errors.New("failed to record task failure")
		}
		return nil
	}

	if _, err := s.complete(context.WithoutCancel(ctx), task, result); err != nil {
		return fmt.Errorf("failed to record task result: %w", err)
	}
	log.Info().Msg("task completed")
	return nil
}

func (s *TaskService) execute(ctx context.Context, task *model.Task) (interface{}, error) {
	switch task.Type {
	case model.TaskTypeScript:
		return s.runScript(ctx, task)
	case model.TaskTypeImage:
		return s.runImage(ctx, task)
	case model.TaskTypeVideo:
		return s.runVideo(ctx, task)
	}
	return nil, apperr.Validation("Unsupported task type: %q", task.Type)
}

// decodeParams fills dst from the stored params, applies defaults and validates.
func (s *TaskService) decodeParams(task *model.Task, dst interface{ ApplyDefaults() }) error {
	if err := json.Unmarshal(task.Params, dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, err, "Invalid %s params", task.Type)
	}
	dst.ApplyDefaults()
	if err := s.validate.Struct(dst); err != nil {
		return validationError(fmt.Sprintf("Invalid %s params", task.Type), err)
	}
	return nil
}

func (s *TaskService) runScript(ctx context.Context, task *model.Task) (interface{}, error) {
	if s.providers.Script == nil {
		return nil, apperr.Unavailable("Script provider not configured")
	}
	var params model.ScriptParams
	if err := s.decodeParams(task, &params); err != nil {
		return nil, err
	}
	s.setProgress(ctx, task.ID, model.ProgressStarted, stepGenerating)
	return s.providers.Script.GenerateScript(ctx, &params)
}

func (s *TaskService) runImage(ctx context.Context, task *model.Task) (interface{}, error) {
	if s.providers.Image == nil {
		return nil, apperr.Unavailable("Image provider not configured")
	}
	var params model.ImageParams
	if err := s.decodeParams(task, &params); err != nil {
		return nil, err
	}
	s.setProgress(ctx, task.ID, model.ProgressStarted, stepGenerating)
	img, err := s.providers.Image.GenerateImage(ctx, &params)
	if err != nil {
		return nil, err
	}
	result := &model.MediaResult{URL: img.URL, Model: params.Model, Size: params.Size}
	result.StorageURL = s.mirrorMedia(ctx, task, img.URL, "image")
	return result, nil
}

func (s *TaskService) runVideo(ctx context.Context, task *model.Task) (interface{}, error) {
	if s.providers.Video == nil {
		return nil, apperr.Unavailable("Video provider not configured")
	}
	var params model.VideoParams
	if err := s.decodeParams(task, &params); err != nil {
		return nil, err
	}
	job, err := s.providers.Video.GenerateVideo(ctx, &params)
	if err != nil {
		return nil, err
	}
	s.setProgress(ctx, task.ID, model.ProgressSubmitted, stepSubmitted)

	status, err := s.providers.Video.WaitForVideo(ctx, job.JobID, s.videoWait.MaxWait, s.videoWait.PollInterval)
	if err != nil {
		return nil, err
	}
	result := &model.MediaResult{
		URL:           status.URL,
		ProviderJobID: job.JobID,
		Model:         params.Model,
		Seconds:       params.Seconds,
	}
	result.StorageURL = s.mirrorMedia(ctx, task, status.URL, "video")
	return result, nil
}

// mirrorMedia copies media to our bucket. Failures are logged only.
func (s *TaskService) mirrorMedia(ctx context.Context, task *model.Task, sourceURL, kind string) string {
	if s.mirror == nil || sourceURL == "" {
		return ""
	}
	s.setProgress(ctx, task.ID, 90, stepMirroring)
	key := fmt.Sprintf("tasks/%s/%s/%s", task.OwnerID, task.ID, kind)
	storageURL, err := s.mirror.Mirror(ctx, sourceURL, key)
	if err != nil {
		s.log.Warn().Err(err).Str("task_id", task.ID).Msg("failed to mirror media")
		return ""
	}
	return storageURL
}

// setProgress raises the progress of a processing task and publishes it.
// It never lowers progress and ignores tasks that left processing.
func (s *TaskService) setProgress(ctx context.Context, taskID string, progress int, step string) {
	task, err := s.store.Update(ctx, taskID, func(t *model.Task) error {
		if t.Status != model.TaskStatusProcessing {
			return errNotProcessing
		}
		if progress > t.Progress {
			t.Progress = progress
		}
		t.CurrentStep = step
		t.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		if !errors.Is(err, errNotProcessing) {
			s.log.Warn().Err(err).Str("task_id", taskID).Msg("failed to update progress")
		}
		return
	}
	s.publishProgress(task)
}

func (s *TaskService) complete(ctx context.Context, task *model.Task, result interface{}) (*model.Task, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	done, err := s.store.Update(ctx, task.ID, func(t *model.Task) error {
		if t.Status != model.TaskStatusProcessing {
			return errNotProcessing
		}
		now := s.now().UTC()
		t.Status = model.TaskStatusCompleted
		t.Progress = model.ProgressDone
		t.CurrentStep = stepCompleted
		t.Result = raw
		t.Error = nil
		t.UpdatedAt = now
		t.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.notify(done, model.WSMessageTypeTaskCompleted, model.TaskCompletedData{Result: done.Result})
	return done, nil
}

// fail moves a non-terminal task to failed and publishes task.failed. It
// returns nil when the task could not be updated.
func (s *TaskService) fail(ctx context.Context, taskID string, cause error) *model.Task {
	msg := cause.Error()
	failed, err := s.store.Update(ctx, taskID, func(t *model.Task) error {
		if t.Status.IsTerminal() {
			return fmt.Errorf("task already %s", t.Status)
		}
		now := s.now().UTC()
		t.Status = model.TaskStatusFailed
		t.CurrentStep = stepFailed
		t.Result = nil
		t.Error = &msg
		t.UpdatedAt = now
		t.CompletedAt = &now
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("task_id", taskID).Msg("failed to mark task failed")
		return nil
	}
	s.notify(failed, model.WSMessageTypeTaskFailed, model.TaskFailedData{
		Error:  msg,
		Reason: string(apperr.KindOf(cause)),
	})
	return failed
}

// Get returns a task owned by ownerID.
func (s *TaskService) Get(ctx context.Context, ownerID, taskID string) (*model.Task, error) {
	task, err := s.store.Get(ctx, taskID)
	if errors.Is(err, store.ErrTaskNotFound) {
		return nil, apperr.NotFound("Task not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	if task.OwnerID != ownerID {
		return nil, apperr.Authorization("Access denied to this task")
	}
	return task, nil
}

// Authorize reports whether ownerID may observe taskID.
func (s *TaskService) Authorize(ctx context.Context, ownerID, taskID string) error {
	_, err := s.Get(ctx, ownerID, taskID)
	return err
}

// List returns one page of the owner's tasks, newest first.
func (s *TaskService) List(ctx context.Context, ownerID string, page, pageSize int) (*model.TaskListResponse, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	items, total, err := s.store.ListByOwner(ctx, ownerID, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	if items == nil {
		items = []*model.Task{}
	}
	return &model.TaskListResponse{Page: page, PageSize: pageSize, Total: total, Items: items}, nil
}

// Progress is the polling view of a task.
func (s *TaskService) Progress(ctx context.Context, ownerID, taskID string) (*model.TaskProgressResponse, error) {
	task, err := s.Get(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}
	return &model.TaskProgressResponse{
		Status:       task.Status,
		Progress:     task.Progress,
		CurrentStep:  task.CurrentStep,
		Result:       task.Result,
		ErrorMessage: task.Error,
	}, nil
}

// Cancel stops a task that has not started yet. Running and finished tasks
// cannot be cancelled.
func (s *TaskService) Cancel(ctx context.Context, ownerID, taskID string) (*model.TaskCancelResponse, error) {
	if _, err := s.Get(ctx, ownerID, taskID); err != nil {
		return nil, err
	}
	task, err := s.store.Update(ctx, taskID, func(t *model.Task) error {
		if t.Status != model.TaskStatusPending {
			return apperr.Conflict("Task cannot be cancelled in status %s", t.Status)
		}
		t.Status = model.TaskStatusCancelled
		t.CurrentStep = stepCancelled
		t.UpdatedAt = s.now().UTC()
		return nil
	})
	if err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return nil, err
		}
		if errors.Is(err, store.ErrTaskNotFound) {
			return nil, apperr.NotFound("Task not found")
		}
		return nil, fmt.Errorf("failed to cancel task: %w", err)
	}
	s.notify(task, model.WSMessageTypeTaskCancelled, model.TaskProgressData{
		Status:      task.Status,
		Progress:    task.Progress,
		CurrentStep: task.CurrentStep,
	})
	s.log.Info().Str("task_id", taskID).Msg("task cancelled")
	return &model.TaskCancelResponse{Success: true, TaskID: task.ID, Status: task.Status}, nil
}

func (s *TaskService) publishProgress(task *model.Task) {
	s.notify(task, model.WSMessageTypeTaskProgress, model.TaskProgressData{
		Status:      task.Status,
		Progress:    task.Progress,
		CurrentStep: task.CurrentStep,
	})
}

func (s *TaskService) notify(task *model.Task, eventType string, data interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.NotifyTask(task.OwnerID, task.ID, &model.Event{
		Type:           eventType,
		TaskID:         task.ID,
		ConversationID: task.ConversationID,
		Data:           data,
	})
}
