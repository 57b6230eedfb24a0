package store

import (
	"context"
	"sort"
	"sync"

	"github.com/loopyluu007/anime-ai/internal/model"
)

// MemoryStore keeps tasks in process memory. Used for development and tests.
type MemoryStore struct {
	mu    sync.Mutex
	tasks map[string]*model.Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*model.Task)}
}

func (s *MemoryStore) Create(_ context.Context, task *model.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[task.ID]; ok {
		return ErrTaskExists
	}
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}
	return t.Clone(), nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string, page, pageSize int) ([]*model.Task, int, error) {
	s.mu.Lock()
	var owned []*model.Task
	for _, t := range s.tasks {
		if t.OwnerID == ownerID {
			owned = append(owned, t.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	start, end := offset(page, pageSize)
	if start >= len(owned) {
		return []*model.Task{}, len(owned), nil
	}
	if end > len(owned) {
		end = len(owned)
	}
	return owned[start:end], len(owned), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, mutate MutateFunc) (*model.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.tasks[id]
	if !ok {
		return nil, ErrTaskNotFound
	}

	next := current.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	s.tasks[id] = next
	return next.Clone(), nil
}
