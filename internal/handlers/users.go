package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andrewanujbusiness/messenger/internal/api/middleware"
	"github.com/andrewanujbusiness/messenger/internal/models"
)

// ListUsers returns every user except the caller.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	me := middleware.GetUserFromContext(r.Context())
	if me == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("list users")
		h.Error(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	profiles := make([]models.Profile, 0, len(users))
	for i := range users {
		if users[i].ID == me.ID {
			continue
		}
		profiles = append(profiles, users[i].Profile())
	}

	h.JSON(w, http.StatusOK, profiles)
}

// GetUser handles profile lookup.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		h.logger.Error().Err(err).Str("user", id).Msg("get user")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if user == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	h.JSON(w, http.StatusOK, user.Profile())
}
