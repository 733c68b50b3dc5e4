package server

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/jrsteele09/auth-service/auth"
	"github.com/jrsteele09/auth-service/internal/utils"
)

const healthCheckTimeout = 2 * time.Second

type signupRequest struct {
	Email       *string `json:"email"`
	Password    *string `json:"password"`
	Requires2FA *bool   `json:"requires2FA"`
}

func (r *signupRequest) complete() bool {
	return r.Email != nil && r.Password != nil && r.Requires2FA != nil
}

type loginRequest struct {
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func (r *loginRequest) complete() bool {
	return r.Email != nil && r.Password != nil
}

type twoFactorAuthResponse struct {
	Message        string `json:"message"`
	LoginAttemptID string `json:"loginAttemptId"`
}

type verify2FARequest struct {
	Email          *string `json:"email"`
	LoginAttemptID *string `json:"loginAttemptId"`
	TwoFACode      *string `json:"2FACode"`
}

func (r *verify2FARequest) complete() bool {
	return r.Email != nil && r.LoginAttemptID != nil && r.TwoFACode != nil
}

type verifyTokenRequest struct {
	Token *string `json:"token"`
}

func (r *verifyTokenRequest) complete() bool {
	return r.Token != nil
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) SignupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signupRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if err := s.auth.Signup(r.Context(), utils.Value(req.Email), utils.Value(req.Password), utils.Value(req.Requires2FA)); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, messageResponse{Message: "User created successfully!"})
	}
}

// LoginHandler answers 200 with the session cookie, or 206 with a login attempt id when a
// second factor is needed.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := s.auth.Login(r.Context(), utils.Value(req.Email), utils.Value(req.Password))
		if err != nil {
			writeError(w, r, err)
			return
		}

		if res.State == auth.StatePending2FA {
			writeJSON(w, http.StatusPartialContent, twoFactorAuthResponse{
				Message:        "2FA required",
				LoginAttemptID: res.LoginAttemptID.String(),
			})
			return
		}
		s.SetAuthCookie(w, res.Token, res.ExpiresAt)
		writeJSON(w, http.StatusOK, messageResponse{Message: "Login successful"})
	}
}

func (s *Server) Verify2FAHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verify2FARequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		res, err := s.auth.VerifyTwoFactor(r.Context(), utils.Value(req.Email), utils.Value(req.LoginAttemptID), utils.Value(req.TwoFACode))
		if err != nil {
			writeError(w, r, err)
			return
		}
		s.SetAuthCookie(w, res.Token, res.ExpiresAt)
		writeJSON(w, http.StatusOK, messageResponse{Message: "Login successful"})
	}
}

// LogoutHandler revokes the token in the session cookie and clears the cookie.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.auth.Logout(r.Context(), s.authCookieValue(r)); err != nil {
			writeError(w, r, err)
			return
		}
		s.ClearAuthCookie(w)
		writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
	}
}

func (s *Server) VerifyTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req verifyTokenRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		if _, err := s.auth.VerifyToken(r.Context(), utils.Value(req.Token)); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Token is valid"})
	}
}

// HealthHandler runs every registered backend check. Any failure gives 503.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		names := make([]string, 0, len(s.healthChecks))
		for name := range s.healthChecks {
			names = append(names, name)
		}
		sort.Strings(names)

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			if err := s.healthChecks[name](ctx); err != nil {
				zerolog.Ctx(r.Context()).Warn().Err(err).Str("check", name).Msg("health check failed")
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		writeJSON(w, status, resp)
	}
}
