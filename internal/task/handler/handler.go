package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"taskdesk/internal/guard"
	"taskdesk/internal/notify"
	"taskdesk/internal/task"
	"taskdesk/internal/transport/http/json"
	"taskdesk/internal/transport/http/shared"
	dErrors "taskdesk/pkg/domain-errors"
	strutil "taskdesk/pkg/string"
	"taskdesk/pkg/validation"
)

// Handler serves the task CRUD endpoints. All routes sit behind the guard
// pipeline, so bodies arrive pattern-checked and sanitized and claims are
// always present.
type Handler struct {
	svc    *task.Service
	hub    *notify.Hub
	logger *slog.Logger
}

func New(svc *task.Service, hub *notify.Hub, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, hub: hub, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/tasks", h.HandleList)
	r.Post("/tasks", h.HandleCreate)
	r.Get("/tasks/{task_id}", h.HandleGet)
	r.Patch("/tasks/{task_id}", h.HandleUpdate)
}

// RegisterElevated registers routes restricted to elevated roles. The service
// re-checks the role, so a wiring mistake here fails closed.
func (h *Handler) RegisterElevated(r chi.Router) {
	r.Delete("/tasks/{task_id}", h.HandleDelete)
}

func actorFrom(r *http.Request) (task.Actor, bool) {
	claims := guard.Claims(r.Context())
	if claims == nil {
		return task.Actor{}, false
	}
	return task.Actor{UserID: claims.Subject, Role: claims.Role}, true
}

type createTaskRequest struct {
	Title       string        `json:"title" validate:"required,notblank,max=200"`
	Description string        `json:"description" validate:"max=2000"`
	Priority    task.Priority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	AssigneeID  string        `json:"assignee_id"`
	DueDate     *time.Time    `json:"due_date"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := actorFrom(r)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	var req createTaskRequest
	if err := json.Decode(w, r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	strutil.TrimStrings(&req.Title, &req.Description, &req.AssigneeID)
	if err := validation.Validate(&req); err != nil {
		shared.WriteError(w, err)
		return
	}

	created, err := h.svc.Create(ctx, actor, task.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		AssigneeID:  req.AssigneeID,
		DueDate:     req.DueDate,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if created.AssigneeID != "" && created.AssigneeID != actor.UserID {
		h.hub.NotifyUser(created.AssigneeID, notify.Event{
			Type:    "task_assigned",
			Payload: map[string]any{"task_id": created.ID, "title": created.Title},
			At:      created.CreatedAt,
		})
	}

	json.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	got, err := h.svc.Get(r.Context(), actor, chi.URLParam(r, "task_id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, got)
}

type updateTaskRequest struct {
	Title       *string        `json:"title" validate:"omitempty,notblank,max=200"`
	Description *string        `json:"description" validate:"omitempty,max=2000"`
	Status      *task.Status   `json:"status" validate:"omitempty,oneof=PENDING IN_PROGRESS DONE"`
	Priority    *task.Priority `json:"priority" validate:"omitempty,oneof=LOW MEDIUM HIGH"`
	AssigneeID  *string        `json:"assignee_id"`
}

func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := actorFrom(r)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	var req updateTaskRequest
	if err := json.Decode(w, r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	if req.Title != nil {
		strutil.TrimStrings(req.Title)
	}
	if req.Description != nil {
		strutil.TrimStrings(req.Description)
	}
	if err := validation.Validate(&req); err != nil {
		shared.WriteError(w, err)
		return
	}

	updated, err := h.svc.Update(ctx, actor, chi.URLParam(r, "task_id"), task.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Priority:    req.Priority,
		AssigneeID:  req.AssigneeID,
	})
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	audience := map[string]struct{}{updated.CreatorID: {}}
	if updated.AssigneeID != "" {
		audience[updated.AssigneeID] = struct{}{}
	}
	delete(audience, actor.UserID)
	for userID := range audience {
		h.hub.NotifyUser(userID, notify.Event{
			Type:    "task_updated",
			Payload: map[string]any{"task_id": updated.ID, "status": string(updated.Status)},
			At:      updated.UpdatedAt,
		})
	}

	json.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	if err := h.svc.Delete(r.Context(), actor, chi.URLParam(r, "task_id")); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	q := r.URL.Query()
	filter := task.Filter{
		Status:     task.Status(q.Get("status")),
		Priority:   task.Priority(q.Get("priority")),
		AssigneeID: q.Get("assignee_id"),
	}

	tasks, err := h.svc.List(r.Context(), actor, filter)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}
