package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/accounts/internal/service"
)

// Registrar is the registration workflow as seen by HTTP.
type Registrar interface {
	Register(ctx context.Context, clientKey string, in service.RegisterInput) (*service.RegisterResult, error)
	ResendActivation(ctx context.Context, clientKey, email string) error
}

// Activator consumes verification tokens.
type Activator interface {
	Activate(ctx context.Context, token string) (*service.ActivationResult, error)
}

// RegistrationHandler serves signup, activation and resend.
//
//	POST /api/users/register            → 201 {message, email[, warning]}
//	GET  /api/users/activate/{token}    → 200 {message, email}
//	POST /api/users/activation/resend   → 200 {message}
type RegistrationHandler struct {
	registrar Registrar
	activator Activator
	logger    *slog.Logger
}

func NewRegistrationHandler(registrar Registrar, activator Activator, logger *slog.Logger) *RegistrationHandler {
	return &RegistrationHandler{registrar: registrar, activator: activator, logger: logger}
}

func (h *RegistrationHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var in service.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.registrar.Register(r.Context(), clientKey(r), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, MessageResponse{
		Message: service.MsgRegistered,
		Email:   res.Email,
		Warning: res.Warning,
	})
}

func (h *RegistrationHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	res, err := h.activator.Activate(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Message: service.MsgActivated,
		Email:   res.Email,
	})
}

type resendRequest struct {
	Email string `json:"email"`
}

func (h *RegistrationHandler) HandleResend(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.registrar.ResendActivation(r.Context(), clientKey(r), req.Email); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: service.MsgResendAccepted})
}
