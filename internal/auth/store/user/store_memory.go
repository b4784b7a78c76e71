package user

import (
	"context"
	"strings"
	"sync"

	"taskdesk/internal/auth/models"
	dErrors "taskdesk/pkg/domain-errors"
)

// InMemoryUserStore keeps accounts in a mutex-guarded map. Persistence is an
// external collaborator; this store is the single-process implementation of
// the same create/read contract.
type InMemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]*models.User
	byEmail map[string]*models.User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{
		byID:    make(map[string]*models.User),
		byEmail: make(map[string]*models.User),
	}
}

func (s *InMemoryUserStore) Create(_ context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, exists := s.byEmail[email]; exists {
		return dErrors.New(dErrors.CodeConflict, "email already registered")
	}
	cp := *u
	s.byID[u.ID] = &cp
	s.byEmail[email] = &cp
	return nil
}

func (s *InMemoryUserStore) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, exists := s.byEmail[strings.ToLower(email)]; exists {
		cp := *u
		return &cp, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
}

func (s *InMemoryUserStore) GetByID(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if u, exists := s.byID[id]; exists {
		cp := *u
		return &cp, nil
	}
	return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
}
