package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/accounts/internal/apperror"
	"github.com/sakif/accounts/internal/auth"
	"github.com/sakif/accounts/internal/model"
	"github.com/sakif/accounts/internal/service"
)

// ProfileManager reads and updates the caller's profile.
type ProfileManager interface {
	Get(ctx context.Context, userID string) (*model.Profile, error)
	Update(ctx context.Context, userID string, in service.ProfileInput) (*model.Profile, error)
}

// ProfileHandler serves the caller's own profile. Both routes sit behind
// auth.RequireAuth; there is no way to address another user's profile.
//
//	GET /api/users/profile → 200 profile | 404
//	PUT /api/users/profile → 200 profile
type ProfileHandler struct {
	profiles ProfileManager
	logger   *slog.Logger
}

func NewProfileHandler(profiles ProfileManager, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, logger: logger}
}

// ProfileResponse renders birth_date as YYYY-MM-DD or null.
type ProfileResponse struct {
	Bio       string  `json:"bio"`
	Location  string  `json:"location"`
	BirthDate *string `json:"birth_date"`
}

func newProfileResponse(p *model.Profile) ProfileResponse {
	resp := ProfileResponse{Bio: p.Bio, Location: p.Location}
	if p.BirthDate != nil {
		d := p.BirthDate.Format(service.DateLayout)
		resp.BirthDate = &d
	}
	return resp
}

func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperror.Authentication(apperror.CodeUnauthorized, "Authentication credentials were not provided."))
		return
	}

	p, err := h.profiles.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(p))
}

func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperror.Authentication(apperror.CodeUnauthorized, "Authentication credentials were not provided."))
		return
	}

	var in service.ProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	p, err := h.profiles.Update(r.Context(), userID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(p))
}
