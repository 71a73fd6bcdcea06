package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/ride-events/internal/models"
)

func (s *Server) handleCreateRide(w http.ResponseWriter, r *http.Request) {
	var spec models.RideSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ride, err := s.rides.CreateRide(r.Context(), userIDFromContext(r.Context()), spec)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ride)
}

func (s *Server) handleListRides(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r)
	if err != nil {
		s.writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}
	summaries, err := s.rides.ListRides(r.Context(), userIDFromContext(r.Context()), f)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"rides": summaries})
}

func (s *Server) handleRideDetails(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	details, err := s.rides.GetRideDetails(r.Context(), rideID, userIDFromContext(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleRequestParticipation(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	p, err := s.rides.RequestParticipation(r.Context(), userIDFromContext(r.Context()), rideID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleDecideParticipation(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body struct {
		Approve *bool `json:"approve"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Approve == nil {
		s.writeErrorMessage(w, http.StatusBadRequest, "body must be {\"approve\": true|false}")
		return
	}
	p, err := s.rides.DecideParticipation(r.Context(), userIDFromContext(r.Context()), vars["ride_id"], vars["user_id"], *body.Approve)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleLeaveRide(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	if err := s.rides.LeaveRide(r.Context(), userIDFromContext(r.Context()), rideID); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"message": "successfully left the ride"})
}

func (s *Server) handleCancelRide(w http.ResponseWriter, r *http.Request) {
	rideID := mux.Vars(r)["ride_id"]
	failed, err := s.rides.CancelRide(r.Context(), userIDFromContext(r.Context()), rideID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"message":       "ride cancelled",
		"failedUpdates": failed,
	})
}

func parseListFilter(r *http.Request) (models.ListFilter, error) {
	q := r.URL.Query()
	var f models.ListFilter
	if v := q.Get("status"); v != "" {
		st := models.RideStatus(v)
		switch st {
		case models.RideUpcoming, models.RideOngoing, models.RideCompleted, models.RideCancelled:
			f.Status = &st
		default:
			return f, errInvalidQuery("status", v)
		}
	}
	var err error
	if f.HostedByMe, err = parseBoolParam(q.Get("hosted")); err != nil {
		return f, errInvalidQuery("hosted", q.Get("hosted"))
	}
	if f.Participating, err = parseBoolParam(q.Get("participating")); err != nil {
		return f, errInvalidQuery("participating", q.Get("participating"))
	}
	if f.Available, err = parseBoolParam(q.Get("available")); err != nil {
		return f, errInvalidQuery("available", q.Get("available"))
	}
	if f.Skip, err = parseIntParam(q.Get("skip")); err != nil {
		return f, errInvalidQuery("skip", q.Get("skip"))
	}
	if f.Limit, err = parseIntParam(q.Get("limit")); err != nil {
		return f, errInvalidQuery("limit", q.Get("limit"))
	}
	return f, nil
}

func parseBoolParam(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func parseIntParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

type queryError struct{ param, value string }

func errInvalidQuery(param, value string) error { return &queryError{param, value} }

func (e *queryError) Error() string { return "invalid " + e.param + " parameter: " + e.value }
