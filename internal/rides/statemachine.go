package rides

import (
	"fmt"

	"github.com/example/ride-events/internal/models"
)

// rideTransitions is the legal ride status graph. UPCOMING may start or be
// cancelled; ONGOING may complete or be cancelled; the terminal states admit
// nothing.
var rideTransitions = map[models.RideStatus][]models.RideStatus{
	models.RideUpcoming: {models.RideOngoing, models.RideCancelled},
	models.RideOngoing:  {models.RideCompleted, models.RideCancelled},
}

// ValidRideTransition reports whether a ride may move from one status to
// another.
func ValidRideTransition(from, to models.RideStatus) bool {
	for _, next := range rideTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ValidDecision reports whether a participation status may receive an
// admission decision. Only PENDING records are decidable; APPROVED and
// REJECTED are terminal.
func ValidDecision(from models.ParticipationStatus) bool {
	return from == models.ParticipationPending
}

// CheckRequest validates the preconditions for a new participation request:
// the ride must be UPCOMING and the requester must not be its host. Existence
// of a prior record is enforced by the store's uniqueness guarantee.
func CheckRequest(ride *models.Ride, userID string) error {
	if ride.HostID == userID {
		return fmt.Errorf("%w: host cannot request participation in their own ride", ErrForbidden)
	}
	if ride.Status != models.RideUpcoming {
		return fmt.Errorf("%w: ride is %s, participation requires UPCOMING", ErrInvalidState, ride.Status)
	}
	return nil
}

// CheckDecide validates that hostID may decide participantID's request on
// the ride. It runs before the participation record is fetched, so a caller
// without permission learns nothing about whether a request exists.
func CheckDecide(ride *models.Ride, hostID, participantID string) error {
	if ride.HostID != hostID {
		return fmt.Errorf("%w: only the host decides participation", ErrForbidden)
	}
	if participantID == hostID {
		return fmt.Errorf("%w: host cannot be a participant", ErrForbidden)
	}
	if ride.Status != models.RideUpcoming {
		return fmt.Errorf("%w: ride is %s, decisions require UPCOMING", ErrInvalidState, ride.Status)
	}
	return nil
}

// CheckLeave validates a voluntary departure. Hosts cannot leave; they
// cancel instead.
func CheckLeave(ride *models.Ride, userID string) error {
	if ride.HostID == userID {
		return fmt.Errorf("%w: host cannot leave the ride, cancel it instead", ErrForbidden)
	}
	return nil
}

// CheckCancel validates a cancellation. Only ownership is checked; the ride
// moves to CANCELLED regardless of its current status, so re-cancelling is
// idempotent.
func CheckCancel(ride *models.Ride, hostID string) error {
	if ride.HostID != hostID {
		return fmt.Errorf("%w: only the host can cancel the ride", ErrForbidden)
	}
	return nil
}
