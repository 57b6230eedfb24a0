package model

import (
	"encoding/json"
	"time"
)

// Task is a unit of generation work owned by a user. Only the task
// service mutates it after creation.
type Task struct {
	ID             string          `json:"id"`
	OwnerID        string          `json:"ownerId"`
	ConversationID string          `json:"conversationId,omitempty"`
	Type           TaskType        `json:"type"`
	Status         TaskStatus      `json:"status"`
	Progress       int             `json:"progress"`
	CurrentStep    string          `json:"currentStep,omitempty"`
	Params         json.RawMessage `json:"params"`
	Result         json.RawMessage `json:"result,omitempty"`
	Error          *string         `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (t *Task) Clone() *Task {
	c := *t
	c.Params = cloneRaw(t.Params)
	c.Result = cloneRaw(t.Result)
	if t.Error != nil {
		msg := *t.Error
		c.Error = &msg
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		c.CompletedAt = &at
	}
	return &c
}

func cloneRaw(r json.RawMessage) json.RawMessage {
	if r == nil {
		return nil
	}
	out := make(json.RawMessage, len(r))
	copy(out, r)
	return out
}

// CreateTaskRequest is the body of POST /api/tasks
type CreateTaskRequest struct {
	Type           string          `json:"type" validate:"required,oneof=script screenplay image video"`
	ConversationID string          `json:"conversationId" validate:"omitempty,uuid"`
	Params         json.RawMessage `json:"params" validate:"required"`
}

// TaskCreatedResponse is returned when a task is accepted
type TaskCreatedResponse struct {
	ID        string     `json:"id"`
	Type      TaskType   `json:"type"`
	Status    TaskStatus `json:"status"`
	Progress  int        `json:"progress"`
	CreatedAt time.Time  `json:"createdAt"`
}

// TaskProgressResponse is the lightweight polling view of a task
type TaskProgressResponse struct {
	Status       TaskStatus      `json:"status"`
	Progress     int             `json:"progress"`
	CurrentStep  string          `json:"currentStep,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage *string         `json:"errorMessage,omitempty"`
}

// TaskListResponse is a page of tasks
type TaskListResponse struct {
	Page     int     `json:"page"`
	PageSize int     `json:"pageSize"`
	Total    int     `json:"total"`
	Items    []*Task `json:"items"`
}

// TaskCancelResponse is returned by the cancel endpoint
type TaskCancelResponse struct {
	Success bool       `json:"success"`
	TaskID  string     `json:"taskId"`
	Status  TaskStatus `json:"status"`
}
