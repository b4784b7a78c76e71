// Package http assembles the routing surface: platform middleware on the
// outside, the guard pipeline per route class, handlers on the inside.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"taskdesk/internal/audit"
	authHandler "taskdesk/internal/auth/handler"
	authModels "taskdesk/internal/auth/models"
	"taskdesk/internal/guard"
	notifyHandler "taskdesk/internal/notify/handler"
	"taskdesk/internal/platform/metrics"
	"taskdesk/internal/platform/middleware"
	taskHandler "taskdesk/internal/task/handler"
	"taskdesk/internal/transport/http/json"
	"taskdesk/internal/transport/http/shared"
	uploadHandler "taskdesk/internal/upload/handler"
)

// Pipelines groups the pre-built guard chains for each route class. The
// ordering inside each chain is fixed; see guard.NewPipeline call sites in
// cmd/server.
type Pipelines struct {
	// Public covers unauthenticated JSON endpoints (register, login).
	Public *guard.Pipeline
	// Protected covers authenticated JSON endpoints.
	Protected *guard.Pipeline
	// Elevated additionally requires an ADMIN or BOSS role.
	Elevated *guard.Pipeline
	// Stream covers the event stream handshake.
	Stream *guard.Pipeline
	// Upload covers multipart endpoints (no JSON body inspection).
	Upload *guard.Pipeline
}

type Handlers struct {
	Auth   *authHandler.Handler
	Task   *taskHandler.Handler
	Upload *uploadHandler.Handler
	Notify *notifyHandler.Handler
}

type RouterConfig struct {
	FrontendOrigin string
	RequestTimeout time.Duration
}

// NewRouter builds the full HTTP handler tree.
func NewRouter(h Handlers, p Pipelines, cfg RouterConfig, logger *slog.Logger) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Get("/health", handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Group(func(pub chi.Router) {
			pub.Use(middleware.Timeout(cfg.RequestTimeout))
			pub.Use(middleware.ContentTypeJSON)
			pub.Use(p.Public.Middleware)
			h.Auth.Register(pub)
		})

		api.Group(func(priv chi.Router) {
			priv.Use(middleware.Timeout(cfg.RequestTimeout))
			priv.Use(middleware.ContentTypeJSON)
			priv.Use(p.Protected.Middleware)
			h.Auth.RegisterProtected(priv)
			h.Task.Register(priv)
		})

		api.Group(func(admin chi.Router) {
			admin.Use(middleware.Timeout(cfg.RequestTimeout))
			admin.Use(middleware.ContentTypeJSON)
			admin.Use(p.Elevated.Middleware)
			h.Task.RegisterElevated(admin)
		})

		api.Group(func(up chi.Router) {
			up.Use(middleware.Timeout(cfg.RequestTimeout))
			up.Use(p.Upload.Middleware)
			h.Upload.Register(up)
		})

		// No timeout on the stream group: subscriptions are long-lived.
		api.Group(func(stream chi.Router) {
			stream.Use(p.Stream.Middleware)
			h.Notify.Register(stream)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		json.WriteJSON(w, http.StatusNotFound, shared.ErrorResponse{
			Error:   "not_found",
			Message: "no such endpoint",
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	json.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// BuildPipelines wires the standard guard chains from shared defense
// components. Kept here so the router and the end-to-end tests construct
// identical stacks.
type PipelineDeps struct {
	GeneralLimiter guard.Guard
	AuthLimiter    guard.Guard
	BruteForce     guard.Guard
	PatternScan    guard.Guard
	Sanitize       guard.Guard
	Authenticate   guard.Guard
	Recorder       *audit.Recorder
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
	Sleep          func(time.Duration)
}

func BuildPipelines(d PipelineDeps) Pipelines {
	opts := []guard.Option{
		guard.WithLogger(d.Logger),
		guard.WithMetrics(d.Metrics),
	}
	if d.Sleep != nil {
		opts = append(opts, guard.WithSleep(d.Sleep))
	}

	newPipeline := func(guards ...guard.Guard) *guard.Pipeline {
		return guard.NewPipeline(guards, opts...)
	}

	anyRole := []authModels.Role{authModels.RoleUser, authModels.RoleAdmin, authModels.RoleBoss}
	elevated := []authModels.Role{authModels.RoleAdmin, authModels.RoleBoss}

	return Pipelines{
		Public: newPipeline(
			d.GeneralLimiter, d.AuthLimiter, d.BruteForce, d.PatternScan, d.Sanitize,
		),
		Protected: newPipeline(
			d.GeneralLimiter, d.PatternScan, d.Sanitize, d.Authenticate,
			guard.NewAuthorize(anyRole, d.Recorder),
		),
		Elevated: newPipeline(
			d.GeneralLimiter, d.PatternScan, d.Sanitize, d.Authenticate,
			guard.NewAuthorize(elevated, d.Recorder),
		),
		Stream: newPipeline(
			d.GeneralLimiter, d.Authenticate,
		),
		Upload: newPipeline(
			d.GeneralLimiter, d.PatternScan, d.Authenticate,
			guard.NewAuthorize(anyRole, d.Recorder),
		),
	}
}
