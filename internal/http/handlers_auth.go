package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/ride-events/internal/users"
)

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in users.SignupInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u, err := s.users.Register(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, u, err := s.users.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"token": token, "user": u})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.users.Get(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, u)
}

func (s *Server) handlePresence(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	online, err := s.presence.IsOnline(r.Context(), userID)
	if err != nil {
		s.logger.Warn("presence lookup failed", "user_id", userID, "error", err)
		s.writeErrorMessage(w, http.StatusServiceUnavailable, "presence unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "online": online})
}
