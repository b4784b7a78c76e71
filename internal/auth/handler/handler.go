package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"taskdesk/internal/auth"
	"taskdesk/internal/auth/models"
	"taskdesk/internal/guard"
	"taskdesk/internal/ratelimit"
	"taskdesk/internal/security/attempt"
	"taskdesk/internal/transport/http/json"
	"taskdesk/internal/transport/http/shared"
	dErrors "taskdesk/pkg/domain-errors"
	"taskdesk/pkg/requestcontext"
	strutil "taskdesk/pkg/string"
	"taskdesk/pkg/validation"
)

// Service is the slice of the auth service the handler needs.
type Service interface {
	Register(ctx context.Context, email, name, password string, role models.Role) (*models.User, string, error)
	Login(ctx context.Context, email, password string) (*models.User, string, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Handler serves the credential endpoints. It owns the bookkeeping the
// brute-force and auth-limiter guards rely on: failed logins are recorded,
// successful ones are forgiven.
type Handler struct {
	svc           Service
	loginAttempts *attempt.Tracker
	authLimiter   *ratelimit.Controller
	logger        *slog.Logger
	tokenTTL      int
}

func New(svc Service, loginAttempts *attempt.Tracker, authLimiter *ratelimit.Controller, tokenTTLSeconds int, logger *slog.Logger) *Handler {
	return &Handler{
		svc:           svc,
		loginAttempts: loginAttempts,
		authLimiter:   authLimiter,
		logger:        logger,
		tokenTTL:      tokenTTLSeconds,
	}
}

// Register registers the public credential routes.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/register", h.HandleRegister)
	r.Post("/auth/login", h.HandleLogin)
}

// RegisterProtected registers routes that require an authenticated caller.
func (h *Handler) RegisterProtected(r chi.Router) {
	r.Get("/auth/me", h.HandleMe)
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required,notblank,max=100"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type credentialResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        *models.User `json:"user"`
}

// HandleRegister implements POST /api/auth/register. New accounts always get
// the USER role; elevation is an operator action, not a signup option.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := json.Decode(w, r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	strutil.TrimStrings(&req.Email, &req.Name)
	if err := validation.Validate(&req); err != nil {
		shared.WriteError(w, err)
		return
	}

	user, token, err := h.svc.Register(ctx, req.Email, req.Name, req.Password, models.RoleUser)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	json.WriteJSON(w, http.StatusCreated, credentialResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   h.tokenTTL,
		User:        user,
	})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// HandleLogin implements POST /api/auth/login.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ip := requestcontext.ClientIP(ctx)

	var req loginRequest
	if err := json.Decode(w, r, &req); err != nil {
		shared.WriteError(w, err)
		return
	}
	strutil.TrimStrings(&req.Email)
	if err := validation.Validate(&req); err != nil {
		shared.WriteError(w, err)
		return
	}

	user, token, err := h.svc.Login(ctx, req.Email, req.Password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			h.loginAttempts.RecordFailure(ctx, guard.BruteForceKey("login", ip))
		}
		shared.WriteError(w, err)
		return
	}

	// A successful login clears the failure streak and refunds the auth
	// limiter slot, so legitimate users never accumulate toward either cap.
	h.loginAttempts.RecordSuccess(guard.BruteForceKey("login", ip))
	h.authLimiter.Forgive(ctx, ratelimit.NewKey(ratelimit.KeyPrefixAuth, ip, "").String())

	json.WriteJSON(w, http.StatusOK, credentialResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   h.tokenTTL,
		User:        user,
	})
}

// HandleMe implements GET /api/auth/me for the authenticated caller.
func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims := guard.Claims(ctx)
	if claims == nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	user, err := h.svc.GetUser(ctx, claims.Subject)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, user)
}

var _ Service = (*auth.Service)(nil)
