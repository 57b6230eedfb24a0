// Package store persists task records. Every backend implements Update as an
// atomic read-modify-write so the task service can express compare-and-set
// transitions as plain Go functions.
package store

import (
	"context"
	"errors"

	"github.com/loopyluu007/anime-ai/internal/model"
)

var (
	ErrTaskNotFound = errors.New("task not found")
	ErrTaskExists   = errors.New("task already exists")
)

// MutateFunc edits a task in place. Returning an error aborts the update and
// the error is handed back to the caller unchanged.
type MutateFunc func(t *model.Task) error

// TaskStore is the persistence contract of the task service
type TaskStore interface {
	Create(ctx context.Context, task *model.Task) error
	Get(ctx context.Context, id string) (*model.Task, error)
	// ListByOwner returns one page of the owner's tasks, newest first, and
	// the owner's total task count. Pages start at 1.
	ListByOwner(ctx context.Context, ownerID string, page, pageSize int) ([]*model.Task, int, error)
	Update(ctx context.Context, id string, mutate MutateFunc) (*model.Task, error)
}

// offset converts a 1-based page into a slice window
func offset(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 1
	}
	start := (page - 1) * pageSize
	return start, start + pageSize
}
