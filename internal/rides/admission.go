package rides

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/example/ride-events/internal/models"
	"github.com/example/ride-events/internal/storage"
)

// AdmissionController serializes capacity-sensitive approvals per ride so
// that the approved count can never exceed the ride's capacity. Decisions for
// different rides run fully in parallel; decisions for the same ride queue on
// a ride-scoped lock. The store's conditional approve is itself atomic, which
// keeps the invariant intact even when another process shares the database.
type AdmissionController struct {
	store storage.RideStore

	mu    sync.Mutex
	locks map[string]*rideLock
}

type rideLock struct {
	mu   sync.Mutex
	refs int
}

func NewAdmissionController(store storage.RideStore) *AdmissionController {
	return &AdmissionController{store: store, locks: make(map[string]*rideLock)}
}

// Approve flips the participant's PENDING record to APPROVED if a slot
// remains. On a full ride it returns ErrCapacityExceeded and the record stays
// PENDING; if the record vanished or was decided concurrently it returns
// ErrInvalidState.
func (a *AdmissionController) Approve(ctx context.Context, ride *models.Ride, participantID string, decisionAt time.Time) error {
	release := a.acquire(ride.ID)
	defer release()

	err := a.store.ApproveWithinCapacity(ctx, ride.ID, participantID, ride.MaxParticipants, decisionAt)
	switch {
	case errors.Is(err, storage.ErrCapacity):
		return fmt.Errorf("%w: ride %s is full (%d participants)", ErrCapacityExceeded, ride.ID, ride.MaxParticipants)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: participation is no longer pending", ErrInvalidState)
	default:
		return err
	}
}

// acquire takes the ride-scoped lock, creating it on first use and pruning
// it once the last holder releases.
func (a *AdmissionController) acquire(rideID string) func() {
	a.mu.Lock()
	l, ok := a.locks[rideID]
	if !ok {
		l = &rideLock{}
		a.locks[rideID] = l
	}
	l.refs++
	a.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		a.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(a.locks, rideID)
		}
		a.mu.Unlock()
	}
}
