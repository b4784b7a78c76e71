package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"taskdesk/internal/guard"
	"taskdesk/internal/task"
	"taskdesk/internal/transport/http/json"
	"taskdesk/internal/transport/http/shared"
	"taskdesk/internal/upload"
	dErrors "taskdesk/pkg/domain-errors"
)

// formFieldName is the multipart field clients must use for the file part.
const formFieldName = "report"

// Handler serves report upload and download endpoints.
type Handler struct {
	svc      *upload.Service
	tasks    *task.Service
	maxBytes int64
	logger   *slog.Logger
}

func New(svc *upload.Service, tasks *task.Service, maxBytes int64, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, tasks: tasks, maxBytes: maxBytes, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Post("/tasks/{task_id}/reports", h.HandleUpload)
	r.Get("/tasks/{task_id}/reports", h.HandleList)
	r.Get("/reports/{report_id}", h.HandleGet)
	r.Get("/reports/{report_id}/content", h.HandleDownload)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (task.Actor, bool) {
	claims := guard.Claims(r.Context())
	if claims == nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return task.Actor{}, false
	}
	return task.Actor{UserID: claims.Subject, Role: claims.Role}, true
}

// HandleUpload implements POST /api/tasks/{task_id}/reports. The request body
// is capped a little above the per-file limit so the gate, not the HTTP
// layer, produces the rejection clients see.
func (h *Handler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	taskID := chi.URLParam(r, "task_id")
	if _, err := h.tasks.Get(ctx, actor, taskID); err != nil {
		shared.WriteError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+(1<<20))
	file, header, err := r.FormFile(formFieldName)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "multipart field 'report' is required"))
		return
	}
	defer file.Close()

	candidate := upload.Candidate{
		DeclaredName:     header.Filename,
		DeclaredMimeType: header.Header.Get("Content-Type"),
		SizeBytes:        header.Size,
	}

	report, err := h.svc.Store(ctx, taskID, actor.UserID, candidate, file)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusCreated, report)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	taskID := chi.URLParam(r, "task_id")
	if _, err := h.tasks.Get(ctx, actor, taskID); err != nil {
		shared.WriteError(w, err)
		return
	}

	reports := h.svc.ListByTask(ctx, taskID)
	if reports == nil {
		reports = []*upload.Report{}
	}
	json.WriteJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	report, err := h.svc.Get(ctx, chi.URLParam(r, "report_id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if _, err := h.tasks.Get(ctx, actor, report.TaskID); err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, report)
}

// HandleDownload streams the stored bytes. The response filename is the
// sanitized declared name, never a raw client string.
func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	actor, ok := h.actor(w, r)
	if !ok {
		return
	}

	rc, report, err := h.svc.OpenContent(ctx, chi.URLParam(r, "report_id"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	defer rc.Close()

	if _, err := h.tasks.Get(ctx, actor, report.TaskID); err != nil {
		shared.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Length", strconv.FormatInt(report.SizeBytes, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.DeclaredName+`"`)
	w.Header().Set("X-Content-Type-Options", "nosniff")

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.ErrorContext(ctx, "report download interrupted",
			"report_id", report.ID,
			"error", err,
		)
	}
}
