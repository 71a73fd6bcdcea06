package rides

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/ride-events/internal/models"
	"github.com/example/ride-events/internal/observability"
	"github.com/example/ride-events/internal/storage"
)

const defaultMaxParticipants = 20

// Notifier pushes an event to every live connection of a user. Delivery is
// best-effort; implementations never report failure to the caller.
type Notifier interface {
	SendToUser(userID string, ev models.Event)
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) SendToUser(string, models.Event) {}

// Change is a committed state change emitted to the audit stream.
type Change struct {
	Kind   string    `json:"kind"`
	RideID string    `json:"rideId"`
	UserID string    `json:"userId,omitempty"`
	At     time.Time `json:"at"`
}

// Publisher receives committed changes, after the store write. Failures are
// logged and dropped; they never roll back the operation.
type Publisher interface {
	Publish(ctx context.Context, c Change) error
}

// Service coordinates ride lifecycle and participation admission. All state
// goes through the store; notifications and audit events fire only after the
// corresponding write has committed.
type Service struct {
	store     storage.RideStore
	users     storage.UserStore
	admission *AdmissionController
	notifier  Notifier
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(store storage.RideStore, users storage.UserStore, notifier Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		users:     users,
		admission: NewAdmissionController(store),
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}
}

// SetPublisher attaches an optional audit-stream publisher.
func (s *Service) SetPublisher(p Publisher) { s.publisher = p }

// CreateRide stores a new UPCOMING ride owned by hostID.
func (s *Service) CreateRide(ctx context.Context, hostID string, spec models.RideSpec) (*models.Ride, error) {
	if spec.MaxParticipants == 0 {
		spec.MaxParticipants = defaultMaxParticipants
	}
	if err := validateRideSpec(spec); err != nil {
		return nil, err
	}
	r := &models.Ride{
		ID:              uuid.NewString(),
		HostID:          hostID,
		Name:            spec.Name,
		StartTime:       spec.StartTime,
		StartPoint:      spec.StartPoint,
		EndPoint:        spec.EndPoint,
		Duration:        spec.Duration,
		HaltDuration:    spec.HaltDuration,
		RouteLink:       spec.RouteLink,
		MaxParticipants: spec.MaxParticipants,
		Status:          models.RideUpcoming,
		CreatedAt:       s.now().UTC(),
	}
	if err := s.store.CreateRide(ctx, r); err != nil {
		return nil, err
	}
	observability.RidesCreatedTotal.Inc()
	s.publish(ctx, Change{Kind: "ride.created", RideID: r.ID, UserID: hostID, At: r.CreatedAt})
	return r, nil
}

// RequestParticipation files a PENDING request by userID on the ride and
// notifies the host. A record for the pair in any status, including a prior
// rejection, blocks the request with ErrConflict.
func (s *Service) RequestParticipation(ctx context.Context, userID, rideID string) (*models.Participation, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if err := CheckRequest(ride, userID); err != nil {
		return nil, err
	}
	p := &models.Participation{
		RideID:      rideID,
		UserID:      userID,
		Status:      models.ParticipationPending,
		RequestedAt: s.now().UTC(),
	}
	if err := s.store.CreateParticipation(ctx, p); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return nil, fmt.Errorf("%w: user has already requested or joined this ride", ErrConflict)
		}
		return nil, err
	}
	observability.ParticipationRequestsTotal.Inc()
	s.notifier.SendToUser(ride.HostID, models.Event{
		Type:     models.EventNewJoinRequest,
		RideID:   rideID,
		FromUser: userID,
	})
	s.publish(ctx, Change{Kind: "participation.requested", RideID: rideID, UserID: userID, At: p.RequestedAt})
	return p, nil
}

// DecideParticipation applies the host's approve/reject decision to a
// PENDING request and notifies the participant. Approval is gated on
// remaining capacity; on a full ride the record stays PENDING and
// ErrCapacityExceeded is returned.
func (s *Service) DecideParticipation(ctx context.Context, hostID, rideID, participantID string, approve bool) (*models.Participation, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	// permission before the participation lookup: a non-host caller must not
	// learn whether a request exists
	if err := CheckDecide(ride, hostID, participantID); err != nil {
		return nil, err
	}
	p, err := s.store.GetParticipation(ctx, rideID, participantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: participation request not found", ErrNotFound)
		}
		return nil, err
	}
	if !ValidDecision(p.Status) {
		return nil, fmt.Errorf("%w: participation already %s", ErrInvalidState, p.Status)
	}

	decisionAt := s.now().UTC()
	if approve {
		if err := s.admission.Approve(ctx, ride, participantID, decisionAt); err != nil {
			if errors.Is(err, ErrCapacityExceeded) {
				observability.CapacityExceededTotal.Inc()
			}
			return nil, err
		}
		observability.AdmissionsApprovedTotal.Inc()
		p.Status = models.ParticipationApproved
	} else {
		if err := s.store.RejectIfPending(ctx, rideID, participantID, decisionAt); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				// decided concurrently between the fetch and the write
				return nil, fmt.Errorf("%w: participation is no longer pending", ErrInvalidState)
			}
			return nil, err
		}
		observability.AdmissionsRejectedTotal.Inc()
		p.Status = models.ParticipationRejected
	}
	p.DecisionAt = &decisionAt

	approved := approve
	s.notifier.SendToUser(participantID, models.Event{
		Type:     models.EventParticipationDecision,
		RideID:   rideID,
		Approved: &approved,
	})
	s.publish(ctx, Change{Kind: "participation.decided", RideID: rideID, UserID: participantID, At: decisionAt})
	return p, nil
}

// LeaveRide deletes the caller's participation record, whatever its status,
// freeing an admission slot if it was APPROVED.
func (s *Service) LeaveRide(ctx context.Context, userID, rideID string) error {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return err
	}
	if err := CheckLeave(ride, userID); err != nil {
		return err
	}
	if err := s.store.DeleteParticipation(ctx, rideID, userID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%w: user is not part of this ride", ErrNotFound)
		}
		return err
	}
	s.publish(ctx, Change{Kind: "participation.left", RideID: rideID, UserID: userID, At: s.now().UTC()})
	return nil
}

// CancelRide moves the ride to CANCELLED and forces every participation
// record, PENDING and APPROVED alike, to REJECTED. The cascade is best
// effort: a failing record is logged and skipped, never aborting the rest.
// The returned count is the number of records that could not be updated.
func (s *Service) CancelRide(ctx context.Context, hostID, rideID string) (int, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return 0, err
	}
	if err := CheckCancel(ride, hostID); err != nil {
		return 0, err
	}
	if err := s.store.UpdateRideStatus(ctx, rideID, models.RideCancelled); err != nil {
		return 0, err
	}

	decisionAt := s.now().UTC()
	parts, err := s.store.ListParticipants(ctx, rideID)
	if err != nil {
		s.logger.Error("cancel cascade: listing participants failed", "ride_id", rideID, "error", err)
		return 0, nil
	}
	failed := 0
	for _, p := range parts {
		if p.Status == models.ParticipationRejected {
			continue
		}
		if err := s.store.SetParticipationStatus(ctx, rideID, p.UserID, models.ParticipationRejected, decisionAt); err != nil {
			failed++
			observability.CancelCascadeFailuresTotal.Inc()
			s.logger.Error("cancel cascade: participant update failed",
				"ride_id", rideID, "user_id", p.UserID, "error", err)
		}
	}
	s.publish(ctx, Change{Kind: "ride.cancelled", RideID: rideID, UserID: hostID, At: decisionAt})
	return failed, nil
}

// ListRides returns a page of ride summaries matching the filter, ordered by
// creation time (ties broken by ride id). No total count accompanies the
// page.
func (s *Service) ListRides(ctx context.Context, requesterID string, f models.ListFilter) ([]models.RideSummary, error) {
	if f.Skip < 0 || f.Limit < 0 {
		return nil, fmt.Errorf("%w: skip and limit must be non-negative", ErrValidation)
	}
	all, err := s.store.ListRides(ctx)
	if err != nil {
		return nil, err
	}

	var joined map[string]bool
	if f.Participating {
		joined = make(map[string]bool)
		ps, err := s.store.ListUserParticipations(ctx, requesterID)
		if err != nil {
			return nil, err
		}
		for _, p := range ps {
			if p.Status == models.ParticipationApproved {
				joined[p.RideID] = true
			}
		}
	}

	out := make([]models.RideSummary, 0, len(all))
	for _, r := range all {
		if f.Status != nil && r.Status != *f.Status {
			continue
		}
		if f.HostedByMe && r.HostID != requesterID {
			continue
		}
		if f.Participating && !joined[r.ID] {
			continue
		}
		count, err := s.store.CountApproved(ctx, r.ID)
		if err != nil {
			return nil, err
		}
		if f.Available && (r.Status != models.RideUpcoming || count >= r.MaxParticipants) {
			continue
		}
		out = append(out, models.RideSummary{Ride: r, ApprovedCount: count})
	}

	if f.Skip >= len(out) {
		return []models.RideSummary{}, nil
	}
	out = out[f.Skip:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

// GetRideDetails returns the ride with participants grouped by status. The
// pending and rejected groups are filled in for the host only; every other
// requester sees just the approved group.
func (s *Service) GetRideDetails(ctx context.Context, rideID, requesterID string) (*models.RideDetails, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	parts, err := s.store.ListParticipants(ctx, rideID)
	if err != nil {
		return nil, err
	}

	isHost := ride.HostID == requesterID
	d := &models.RideDetails{
		Ride:     *ride,
		Host:     s.userSummary(ctx, ride.HostID),
		Approved: []models.ParticipantEntry{},
		Pending:  []models.ParticipantEntry{},
		Rejected: []models.ParticipantEntry{},
	}
	for _, p := range parts {
		entry := models.ParticipantEntry{User: s.userSummary(ctx, p.UserID), Status: p.Status}
		switch p.Status {
		case models.ParticipationApproved:
			d.Approved = append(d.Approved, entry)
		case models.ParticipationPending:
			if isHost {
				d.Pending = append(d.Pending, entry)
			}
		case models.ParticipationRejected:
			if isHost {
				d.Rejected = append(d.Rejected, entry)
			}
		}
	}
	return d, nil
}

func (s *Service) getRide(ctx context.Context, rideID string) (*models.Ride, error) {
	ride, err := s.store.GetRide(ctx, rideID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: ride %s", ErrNotFound, rideID)
		}
		return nil, err
	}
	return ride, nil
}

func (s *Service) userSummary(ctx context.Context, userID string) models.UserSummary {
	if s.users != nil {
		if u, err := s.users.GetUser(ctx, userID); err == nil {
			return models.UserSummary{ID: u.ID, Username: u.Username}
		}
	}
	return models.UserSummary{ID: userID}
}

func (s *Service) publish(ctx context.Context, c Change) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, c); err != nil {
		s.logger.Warn("audit publish failed", "kind", c.Kind, "ride_id", c.RideID, "error", err)
	}
}

func validateRideSpec(spec models.RideSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("%w: ride name is required", ErrValidation)
	}
	if spec.StartTime.IsZero() {
		return fmt.Errorf("%w: ride start time is required", ErrValidation)
	}
	if spec.StartPoint == "" || spec.EndPoint == "" {
		return fmt.Errorf("%w: start and end points are required", ErrValidation)
	}
	if spec.MaxParticipants < 1 {
		return fmt.Errorf("%w: maxParticipants must be at least 1", ErrValidation)
	}
	return nil
}
