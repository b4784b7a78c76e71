package task

import (
	"context"
	"sort"
	"sync"

	dErrors "taskdesk/pkg/domain-errors"
)

// InMemoryTaskStore keeps tasks in process memory behind a mutex. It is the
// development backend; the Store interface is the seam for a durable one.
type InMemoryTaskStore struct {
	mu    sync.RWMutex
	tasks map[string]Task
}

func NewInMemoryTaskStore() *InMemoryTaskStore {
	return &InMemoryTaskStore{tasks: make(map[string]Task)}
}

func (s *InMemoryTaskStore) Create(_ context.Context, t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; ok {
		return dErrors.New(dErrors.CodeConflict, "task already exists")
	}
	s.tasks[t.ID] = t
	return nil
}

func (s *InMemoryTaskStore) Get(_ context.Context, id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, dErrors.New(dErrors.CodeNotFound, "task not found")
	}
	return t, nil
}

func (s *InMemoryTaskStore) Update(_ context.Context, t Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[t.ID]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "task not found")
	}
	s.tasks[t.ID] = t
	return nil
}

func (s *InMemoryTaskStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[id]; !ok {
		return dErrors.New(dErrors.CodeNotFound, "task not found")
	}
	delete(s.tasks, id)
	return nil
}

func (s *InMemoryTaskStore) List(_ context.Context, f Filter) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.Priority != "" && t.Priority != f.Priority {
			continue
		}
		if f.AssigneeID != "" && t.AssigneeID != f.AssigneeID {
			continue
		}
		if f.CreatorID != "" && t.CreatorID != f.CreatorID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
