package task

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	authModels "taskdesk/internal/auth/models"
	"taskdesk/internal/security/sanitize"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, t Task) error
	Get(ctx context.Context, id string) (Task, error)
	Update(ctx context.Context, t Task) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, f Filter) ([]Task, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Actor identifies who is performing an operation, as established by the
// credential gate.
type Actor struct {
	UserID string
	Role   authModels.Role
}

func (a Actor) elevated() bool {
	return a.Role == authModels.RoleAdmin || a.Role == authModels.RoleBoss
}

// canSee reports whether the actor may read or modify the task. Regular users
// only reach tasks they created or are assigned to.
func (a Actor) canSee(t Task) bool {
	if a.elevated() {
		return true
	}
	return t.CreatorID == a.UserID || t.AssigneeID == a.UserID
}

type CreateInput struct {
	Title       string
	Description string
	Priority    Priority
	AssigneeID  string
	DueDate     *time.Time
}

func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (Task, error) {
	now := requestcontext.Now(ctx)

	t := Task{
		ID:          uuid.NewString(),
		Title:       sanitize.String(in.Title, MaxTitleLength),
		Description: sanitize.String(in.Description, MaxDescriptionLength),
		Status:      StatusPending,
		Priority:    in.Priority,
		CreatorID:   actor.UserID,
		AssigneeID:  in.AssigneeID,
		DueDate:     in.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	if err := s.store.Create(ctx, t); err != nil {
		return Task{}, err
	}

	s.logger.Info("task_created", "task_id", t.ID, "creator_id", actor.UserID)
	return t, nil
}

func (s *Service) Get(ctx context.Context, actor Actor, id string) (Task, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if !actor.canSee(t) {
		// Hide existence from users outside the task's audience.
		return Task{}, dErrors.New(dErrors.CodeNotFound, "task not found")
	}
	return t, nil
}

type UpdateInput struct {
	Title       *string
	Description *string
	Status      *Status
	Priority    *Priority
	AssigneeID  *string
}

func (s *Service) Update(ctx context.Context, actor Actor, id string, in UpdateInput) (Task, error) {
	t, err := s.Get(ctx, actor, id)
	if err != nil {
		return Task{}, err
	}

	if in.Title != nil {
		t.Title = sanitize.String(*in.Title, MaxTitleLength)
	}
	if in.Description != nil {
		t.Description = sanitize.String(*in.Description, MaxDescriptionLength)
	}
	if in.Status != nil {
		t.Status = *in.Status
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	if in.AssigneeID != nil {
		t.AssigneeID = *in.AssigneeID
	}
	t.UpdatedAt = requestcontext.Now(ctx)

	if err := t.Validate(); err != nil {
		return Task{}, err
	}
	if err := s.store.Update(ctx, t); err != nil {
		return Task{}, err
	}
	return t, nil
}

// Delete removes a task. Only elevated roles may delete, regardless of
// ownership.
func (s *Service) Delete(ctx context.Context, actor Actor, id string) error {
	if !actor.elevated() {
		return dErrors.New(dErrors.CodeForbidden, "insufficient role for this operation")
	}
	if _, err := s.store.Get(ctx, id); err != nil {
		return err
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("task_deleted", "task_id", id, "actor_id", actor.UserID)
	return nil
}

// List returns tasks visible to the actor. Regular users are constrained to
// their own tasks even when the filter asks for more.
func (s *Service) List(ctx context.Context, actor Actor, f Filter) ([]Task, error) {
	tasks, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	if actor.elevated() {
		return tasks, nil
	}

	visible := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if actor.canSee(t) {
			visible = append(visible, t)
		}
	}
	return visible, nil
}
