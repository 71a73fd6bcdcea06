package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-events/internal/auth"
	"github.com/example/ride-events/internal/config"
	"github.com/example/ride-events/internal/hub"
	"github.com/example/ride-events/internal/presence"
	"github.com/example/ride-events/internal/rides"
	"github.com/example/ride-events/internal/users"
)

// Server is the HTTP boundary: routing, auth, request parsing. All domain
// decisions live in the injected services.
type Server struct {
	cfg      config.ServerConfig
	logger   *slog.Logger
	rides    *rides.Service
	users    *users.Service
	hub      *hub.Hub
	tokens   *auth.TokenManager
	presence presence.Tracker
	mux      *mux.Router
}

func NewServer(
	cfg config.ServerConfig,
	logger *slog.Logger,
	rideSvc *rides.Service,
	userSvc *users.Service,
	h *hub.Hub,
	tokens *auth.TokenManager,
	tracker presence.Tracker,
) *Server {
	if tracker == nil {
		tracker = presence.NopTracker{}
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		rides:    rideSvc,
		users:    userSvc,
		hub:      h,
		tokens:   tokens,
		presence: tracker,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	// unauthenticated
	s.mux.HandleFunc("/api/v1/auth/signup", s.handleSignup).Methods("POST")
	s.mux.HandleFunc("/api/v1/auth/login", s.handleLogin).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	// token travels as a query parameter on the websocket handshake
	s.mux.HandleFunc("/ws", s.handleWS).Methods("GET")

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/users/me", s.handleMe).Methods("GET")
	api.HandleFunc("/users/{user_id}/presence", s.handlePresence).Methods("GET")
	api.HandleFunc("/rides", s.handleCreateRide).Methods("POST")
	api.HandleFunc("/rides", s.handleListRides).Methods("GET")
	api.HandleFunc("/rides/{ride_id}", s.handleRideDetails).Methods("GET")
	api.HandleFunc("/rides/{ride_id}/request", s.handleRequestParticipation).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/participants/{user_id}/decision", s.handleDecideParticipation).Methods("POST")
	api.HandleFunc("/rides/{ride_id}/leave", s.handleLeaveRide).Methods("DELETE")
	api.HandleFunc("/rides/{ride_id}/cancel", s.handleCancelRide).Methods("PATCH")
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
