package server

import (
	"net/http"
	"time"

	"github.com/platformplatform/identity-core/internal/identity"
)

type sessionResponse struct {
	SessionID string `json:"sessionId"`
}

// issueSession creates a session for the user and attaches both token
// carriers to the response.
func (s *Server) issueSession(w http.ResponseWriter, r *http.Request, user *identity.User) {
	pair, err := s.deps.Sessions.CreateAndIssue(r.Context(), user.Snapshot(), deviceContextFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	setTokenCarriers(w, pair, s.refreshTTL, s.secureCookies)
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: pair.SessionID})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	pair, err := s.deps.Sessions.Refresh(r.Context(), refreshTokenFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	setTokenCarriers(w, pair, s.refreshTTL, s.secureCookies)
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: pair.SessionID})
}

type sessionInfo struct {
	SessionID     string     `json:"sessionId"`
	DeviceClass   string     `json:"deviceClass"`
	UserAgent     string     `json:"userAgent"`
	IPAddress     string     `json:"ipAddress"`
	CreatedAt     time.Time  `json:"createdAt"`
	RevokedAt     *time.Time `json:"revokedAt,omitempty"`
	RevokedReason string     `json:"revokedReason,omitempty"`
}

// handleSessions lists the caller's sessions for the device-overview page,
// newest first.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.deps.Sessions.Sessions(r.Context(), accessTokenFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]sessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		info := sessionInfo{
			SessionID:   sess.ID,
			DeviceClass: string(sess.DeviceClass),
			UserAgent:   sess.UserAgent,
			IPAddress:   sess.IPAddress,
			CreatedAt:   sess.CreatedAt,
			RevokedAt:   sess.RevokedAt,
		}
		if sess.RevokedReason != nil {
			info.RevokedReason = string(*sess.RevokedReason)
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Sessions.Logout(r.Context(), refreshTokenFromRequest(r)); err != nil {
		writeError(w, err)
		return
	}
	clearTokenCarriers(w, s.secureCookies)
	w.WriteHeader(http.StatusNoContent)
}
