package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/platformplatform/identity-core/internal/apierr"
	sessionservice "github.com/platformplatform/identity-core/internal/session/service"
)

// errorResponse is the JSON error body. Code is stable and machine-readable;
// Reason is set only for unauthorized outcomes.
type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Reason    string `json:"reason,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func statusForKind(kind apierr.Kind) int {
	switch kind {
	case apierr.KindNotFound:
		return http.StatusNotFound
	case apierr.KindBadRequest:
		return http.StatusBadRequest
	case apierr.KindForbidden:
		return http.StatusForbidden
	case apierr.KindTooManyRequests:
		return http.StatusTooManyRequests
	case apierr.KindConflict:
		return http.StatusConflict
	case apierr.KindUnauthorized:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// writeError maps domain errors onto the wire taxonomy. Unknown errors are
// logged and collapsed to a generic 500.
func writeError(w http.ResponseWriter, err error) {
	var ae *apierr.Error
	if errors.As(err, &ae) {
		resp := errorResponse{Code: ae.Code, Message: ae.Message, Retryable: ae.Retryable}
		if ae.Kind == apierr.KindUnauthorized {
			resp.Reason = ae.Code
		}
		writeJSON(w, statusForKind(ae.Kind), resp)
		return
	}

	switch {
	case errors.Is(err, sessionservice.ErrInvalidRefreshToken):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "invalid_refresh_token", Message: "the refresh token is invalid or expired"})
	case errors.Is(err, sessionservice.ErrSessionNotFound):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: apierr.ReasonSessionNotFound, Reason: apierr.ReasonSessionNotFound, Message: "session not found"})
	case errors.Is(err, sessionservice.ErrSessionRevoked):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: apierr.ReasonRevoked, Reason: apierr.ReasonRevoked, Message: "the session has been revoked"})
	case errors.Is(err, sessionservice.ErrReplayDetected):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: apierr.ReasonReplayDetected, Reason: apierr.ReasonReplayDetected, Message: "refresh token reuse detected; the session has been revoked"})
	case errors.Is(err, sessionservice.ErrInvalidAccessToken):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Code: "invalid_access_token", Message: "the access token is invalid or expired"})
	case errors.Is(err, sessionservice.ErrRefreshConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Code: "refresh_conflict", Message: "a concurrent refresh won; sign in again"})
	default:
		log.Printf("server: internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Code: "internal_error", Message: "an internal error occurred"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("server: encode response: %v", err)
	}
}
