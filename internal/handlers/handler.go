package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/andrewanujbusiness/messenger/internal/auth"
	"github.com/andrewanujbusiness/messenger/internal/chat"
	"github.com/andrewanujbusiness/messenger/internal/store"
)

// Pusher delivers events to connected clients by user room.
type Pusher interface {
	PushEvent(room, event string, v interface{}) error
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	store  store.DataStore
	redis  *store.RedisStore // optional; only used for health reporting
	auth   *auth.Authenticator
	chat   *chat.Service
	pusher Pusher
	logger zerolog.Logger
}

// NewHandler creates a new Handler. redis and pusher may be nil.
func NewHandler(ds store.DataStore, redis *store.RedisStore, authn *auth.Authenticator, chatSvc *chat.Service, pusher Pusher, logger zerolog.Logger) *Handler {
	return &Handler{
		store:  ds,
		redis:  redis,
		auth:   authn,
		chat:   chatSvc,
		pusher: pusher,
		logger: logger.With().Str("component", "handlers").Logger(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into v, answering 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
