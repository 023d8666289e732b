package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/andrewanujbusiness/messenger/internal/api/middleware"
	"github.com/andrewanujbusiness/messenger/internal/models"
)

// TonePreferenceRequest sets or clears (null tone) a preference.
type TonePreferenceRequest struct {
	TargetUserID string  `json:"targetUserId"`
	Tone         *string `json:"tone"`
}

// SetTonePreferenceResponse confirms the stored preference.
type SetTonePreferenceResponse struct {
	Success bool         `json:"success"`
	Tone    *models.Tone `json:"tone"`
}

// TonePreferenceResponse reports the current preference; Tone is null when unset.
type TonePreferenceResponse struct {
	Tone *models.Tone `json:"tone"`
}

// SetTonePreference records how the caller wants messages from the target rendered.
func (h *Handler) SetTonePreference(w http.ResponseWriter, r *http.Request) {
	me := middleware.GetUserFromContext(r.Context())
	if me == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req TonePreferenceRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.TargetUserID == "" {
		h.Error(w, http.StatusBadRequest, "targetUserId is required")
		return
	}

	var tone models.Tone
	if req.Tone != nil {
		var err error
		if tone, err = models.ParseTone(*req.Tone); err != nil {
			h.Error(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	target, err := h.store.GetUserByID(r.Context(), req.TargetUserID)
	if err != nil {
		h.logger.Error().Err(err).Msg("get tone target")
		h.Error(w, http.StatusInternalServerError, "database error")
		return
	}
	if target == nil {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	if err := h.store.SetTonePreference(r.Context(), me.ID, req.TargetUserID, tone); err != nil {
		h.logger.Error().Err(err).Str("observer", me.ID).Str("observed", req.TargetUserID).Msg("set tone preference")
		h.Error(w, http.StatusInternalServerError, "failed to save tone preference")
		return
	}

	h.JSON(w, http.StatusOK, SetTonePreferenceResponse{Success: true, Tone: tonePtr(tone)})
}

// GetTonePreference returns the caller's preference for the target user.
func (h *Handler) GetTonePreference(w http.ResponseWriter, r *http.Request) {
	me := middleware.GetUserFromContext(r.Context())
	if me == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
		return
	}
	targetID := chi.URLParam(r, "targetUserId")

	tone, err := h.store.GetTonePreference(r.Context(), me.ID, targetID)
	if err != nil {
		h.logger.Error().Err(err).Msg("get tone preference")
		h.Error(w, http.StatusInternalServerError, "failed to fetch tone preference")
		return
	}

	h.JSON(w, http.StatusOK, TonePreferenceResponse{Tone: tonePtr(tone)})
}

func tonePtr(t models.Tone) *models.Tone {
	if t == "" {
		return nil
	}
	return &t
}
