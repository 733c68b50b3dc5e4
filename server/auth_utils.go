package server

import (
	"net/http"
	"time"
)

// SetAuthCookie stores the session token in the configured cookie. The cookie lives exactly as
// long as the token does.
func (s *Server) SetAuthCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetJWTCookieName(),
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearAuthCookie tells the client to drop the session cookie.
func (s *Server) ClearAuthCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.config.GetJWTCookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// authCookieValue returns "" when the request carries no session cookie.
func (s *Server) authCookieValue(r *http.Request) string {
	cookie, err := r.Cookie(s.config.GetJWTCookieName())
	if err != nil {
		return ""
	}
	return cookie.Value
}
