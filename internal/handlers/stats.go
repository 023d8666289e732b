package handlers

import (
	"net/http"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalUsers         int64 `json:"total_users"`
	TotalConversations int64 `json:"total_conversations"`
	TotalMessages      int64 `json:"total_messages"`
}

// Stats returns aggregate counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("stats")
		h.Error(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalUsers:         stats.Users,
		TotalConversations: stats.Conversations,
		TotalMessages:      stats.Messages,
	})
}
