package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/example/ride-events/internal/rides"
	"github.com/example/ride-events/internal/users"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

func (s *Server) writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps the domain failure taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rides.ErrNotFound) || errors.Is(err, users.ErrNotFound):
		s.writeErrorMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rides.ErrForbidden):
		s.writeErrorMessage(w, http.StatusForbidden, err.Error())
	case errors.Is(err, rides.ErrConflict),
		errors.Is(err, rides.ErrInvalidState),
		errors.Is(err, rides.ErrCapacityExceeded),
		errors.Is(err, users.ErrUsernameTaken):
		s.writeErrorMessage(w, http.StatusConflict, err.Error())
	case errors.Is(err, rides.ErrValidation) || errors.Is(err, users.ErrValidation):
		s.writeErrorMessage(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, users.ErrInvalidCredentials):
		s.writeErrorMessage(w, http.StatusUnauthorized, err.Error())
	default:
		s.logger.Error("internal error", "error", err)
		s.writeErrorMessage(w, http.StatusInternalServerError, "internal error")
	}
}
