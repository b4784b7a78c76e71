package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"taskdesk/internal/guard"
	"taskdesk/internal/notify"
	"taskdesk/internal/transport/http/shared"
	dErrors "taskdesk/pkg/domain-errors"
)

// Handler serves the event stream endpoint over server-sent events.
type Handler struct {
	hub    *notify.Hub
	logger *slog.Logger
}

func New(hub *notify.Hub, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/events", h.HandleStream)
}

// HandleStream implements GET /api/events. The subscription handshake goes
// through the hub's admission checks; once admitted the connection stays open
// until the client disconnects.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims := guard.Claims(ctx)
	if claims == nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "streaming unsupported"))
		return
	}

	sub, err := h.hub.Subscribe(ctx, claims.Subject)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.logger.ErrorContext(ctx, "failed to encode event", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		case <-ctx.Done():
			return
		}
	}
}
