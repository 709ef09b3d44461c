package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"secrets/db"
	"secrets/models"
)

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func sendJSONResponse(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

// APIListSecrets is the JSON twin of the /secrets page.
func (h *Handler) APIListSecrets(w http.ResponseWriter, r *http.Request) {
	lang := h.i18n.DetectLanguage(r)

	secrets, err := h.secrets.List(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("api: failed to list secrets")
		status, key := http.StatusInternalServerError, "ErrorInternal"
		if errors.Is(err, db.ErrStoreUnavailable) {
			status, key = http.StatusServiceUnavailable, "ErrorStoreUnavailable"
		}
		sendJSONResponse(w, status, APIResponse{Status: "error", Message: h.i18n.T(lang, key)})
		return
	}

	if secrets == nil {
		secrets = []models.Secret{}
	}
	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Data: secrets})
}
