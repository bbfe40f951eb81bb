package server

import (
	"net/http"
	"time"

	sessionservice "github.com/platformplatform/identity-core/internal/session/service"
)

// Token carriers: each token travels via a response header and an HTTP-only
// cookie. SPAs read the headers; browser navigation relies on the cookies.
const (
	accessTokenHeader  = "X-Access-Token"
	refreshTokenHeader = "X-Refresh-Token"
	accessTokenCookie  = "access-token"
	refreshTokenCookie = "refresh-token"
)

func setTokenCarriers(w http.ResponseWriter, pair *sessionservice.TokenPair, refreshTTL time.Duration, secure bool) {
	w.Header().Set(accessTokenHeader, pair.AccessToken)
	w.Header().Set(refreshTokenHeader, pair.RefreshToken)
	http.SetCookie(w, &http.Cookie{
		Name:     accessTokenCookie,
		Value:    pair.AccessToken,
		Path:     "/",
		MaxAge:   int(time.Until(pair.AccessExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     refreshTokenCookie,
		Value:    pair.RefreshToken,
		Path:     "/",
		MaxAge:   int(refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearTokenCarriers(w http.ResponseWriter, secure bool) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   secure,
			SameSite: http.SameSiteLaxMode,
		})
	}
}

// accessTokenFromRequest reads the access token from the header first,
// falling back to the cookie.
func accessTokenFromRequest(r *http.Request) string {
	if token := r.Header.Get(accessTokenHeader); token != "" {
		return token
	}
	if c, err := r.Cookie(accessTokenCookie); err == nil {
		return c.Value
	}
	return ""
}

// refreshTokenFromRequest reads the refresh token from the header first,
// falling back to the cookie.
func refreshTokenFromRequest(r *http.Request) string {
	if token := r.Header.Get(refreshTokenHeader); token != "" {
		return token
	}
	if c, err := r.Cookie(refreshTokenCookie); err == nil {
		return c.Value
	}
	return ""
}
