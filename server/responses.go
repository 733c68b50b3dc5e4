package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/auth-service/auth"
	apperrors "github.com/jrsteele09/auth-service/internal/errors"
)

const (
	maxBodyBytes = 1 << 20

	msgInvalidInput         = "Invalid credentials"
	msgUserAlreadyExists    = "User already exists"
	msgIncorrectCredentials = "Incorrect credentials"
	msgMissingToken         = "Missing auth token"
	msgInvalidToken         = "Invalid auth token"
	msgMalformedBody        = "Malformed request body"
	msgUnexpected           = "Unexpected error"
)

type errorResponse struct {
	Error string `json:"error"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps err to a status and a generic message. Internal detail only goes to the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := errorStatus(err)
	logger := zerolog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Msg(msg)
	} else {
		logger.Debug().Err(err).Stringer("kind", auth.Kind(err)).Msg(msg)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func errorStatus(err error) (int, string) {
	if errors.Is(err, apperrors.ErrMalformedBody) {
		return http.StatusUnprocessableEntity, msgMalformedBody
	}
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		return http.StatusBadRequest, msgInvalidInput
	case errors.Is(err, auth.ErrUserAlreadyExists):
		return http.StatusConflict, msgUserAlreadyExists
	case errors.Is(err, auth.ErrIncorrectCredentials):
		return http.StatusUnauthorized, msgIncorrectCredentials
	case errors.Is(err, auth.ErrMissingToken):
		return http.StatusBadRequest, msgMissingToken
	case errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, msgInvalidToken
	default:
		return http.StatusInternalServerError, msgUnexpected
	}
}

// requiredFields is implemented by request bodies whose fields must all be present
type requiredFields interface {
	complete() bool
}

// decodeJSON reads a single JSON object into dst. Any syntax, type or missing-field problem is
// ErrMalformedBody, which the caller reports as 422.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst requiredFields) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		return apperrors.Wrapf(apperrors.ErrMalformedBody, "decode %v", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return apperrors.Wrapf(apperrors.ErrMalformedBody, "trailing data after JSON object")
	}
	if !dst.complete() {
		return apperrors.Wrapf(apperrors.ErrMalformedBody, "missing field")
	}
	return nil
}
