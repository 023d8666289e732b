package handlers

import (
	"errors"
	"net/http"

	"github.com/andrewanujbusiness/messenger/internal/auth"
	"github.com/andrewanujbusiness/messenger/internal/models"
)

// LoginRequest represents the login request body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the session token and the caller's profile.
type LoginResponse struct {
	Token string          `json:"token"`
	User  *models.Profile `json:"user"`
}

// Login handles username/password authentication.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, profile, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			h.Error(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		h.logger.Error().Err(err).Msg("login failed")
		h.Error(w, http.StatusInternalServerError, "login failed")
		return
	}

	h.JSON(w, http.StatusOK, LoginResponse{Token: token, User: profile})
}
