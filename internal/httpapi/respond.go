package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Reality-Reimagined/voiceai/internal/core"
)

type errorBody struct {
	Detail string `json:"detail"`
}

type statusBody struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	VoiceID   string `json:"voice_id,omitempty"`
	WebhookID string `json:"webhook_id,omitempty"`
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch core.KindOf(err) {
	case core.ErrValidation:
		return http.StatusBadRequest
	case core.ErrSynthesis, core.ErrStorage, core.ErrUnavailable:
		return http.StatusBadGateway
	case core.ErrAuth:
		return http.StatusUnauthorized
	case core.ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		s.log.Error("Unclassified request failure: %v", err)
	}

	writeJSON(w, status, errorBody{Detail: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON reads a bounded JSON body into dst and classifies failures as
// validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, op string, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))

	err := decoder.Decode(dst)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return core.E(core.ErrValidation, op, "", errBodyTooLarge)
		}

		return core.E(core.ErrValidation, op, "", err)
	}

	return nil
}
