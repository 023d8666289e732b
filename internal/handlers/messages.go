package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andrewanujbusiness/messenger/internal/api/middleware"
	"github.com/andrewanujbusiness/messenger/internal/chat"
	"github.com/andrewanujbusiness/messenger/internal/metrics"
	"github.com/andrewanujbusiness/messenger/internal/models"
	"github.com/andrewanujbusiness/messenger/internal/realtime"
)

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	ReceiverID string `json:"receiverId"`
	Text       string `json:"text"`
}

// GetConversation returns the caller's history with another user, oldest
// first. An unknown user yields an empty list.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	me := middleware.GetUserFromContext(r.Context())
	if me == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	otherID := chi.URLParam(r, "userId")

	other, err := h.store.GetUserByID(r.Context(), otherID)
	if err != nil {
		h.logger.Error().Err(err).Msg("get conversation partner")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if other == nil || other.ID == me.ID {
		h.JSON(w, http.StatusOK, []models.Message{})
		return
	}

	key, err := h.store.ResolveConversation(r.Context(), me.ID, otherID)
	if err != nil {
		h.logger.Error().Err(err).Msg("resolve conversation")
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}

	messages, err := h.store.ListMessages(r.Context(), key)
	if err != nil {
		h.logger.Error().Err(err).Str("conversation", key).Msg("list messages")
		h.Error(w, http.StatusInternalServerError, "failed to fetch messages")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	h.JSON(w, http.StatusOK, messages)
}

// PostMessage sends a message without a realtime connection. The receiver
// still gets a push if connected; no auto-reply is scheduled.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	me := middleware.GetUserFromContext(r.Context())
	if me == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req SendMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.ReceiverID == "" {
		h.Error(w, http.StatusBadRequest, "receiverId is required")
		return
	}

	delivery, err := h.chat.Send(r.Context(), me.ID, req.ReceiverID, req.Text)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrUnknownRecipient):
			h.Error(w, http.StatusNotFound, "recipient not found")
		case errors.Is(err, chat.ErrTextTooLong):
			h.Error(w, http.StatusUnprocessableEntity, err.Error())
		case chat.IsValidationError(err):
			h.Error(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error().Err(err).Str("sender", me.ID).Msg("send message")
			h.Error(w, http.StatusInternalServerError, "failed to store message")
		}
		return
	}

	metrics.MessagesSent.WithLabelValues("http").Inc()

	if h.pusher != nil {
		if err := h.pusher.PushEvent(req.ReceiverID, realtime.EventReceiveMessage, delivery.Delivered); err != nil {
			h.logger.Warn().Err(err).Msg("push message")
		}
	}

	h.JSON(w, http.StatusCreated, delivery.Canonical)
}
