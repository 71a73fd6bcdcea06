package storage

import (
	"context"
	"errors"
	"time"

	"github.com/example/ride-events/internal/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrExists is returned when a create collides with an existing record.
	ErrExists = errors.New("record already exists")
	// ErrCapacity is returned by ApproveWithinCapacity when no approved
	// slot remains on the ride.
	ErrCapacity = errors.New("ride capacity reached")
)

// RideStore defines persistence for rides and participation records.
// Implementations must make ApproveWithinCapacity atomic: the approved-count
// check and the status flip commit as one unit.
type RideStore interface {
	CreateRide(ctx context.Context, r *models.Ride) error
	GetRide(ctx context.Context, rideID string) (*models.Ride, error)
	// ListRides returns every ride ordered by creation time, ties broken
	// by ride id.
	ListRides(ctx context.Context) ([]models.Ride, error)
	UpdateRideStatus(ctx context.Context, rideID string, status models.RideStatus) error

	// CreateParticipation fails with ErrExists if a record for the
	// (ride, user) pair already exists in any status.
	CreateParticipation(ctx context.Context, p *models.Participation) error
	GetParticipation(ctx context.Context, rideID, userID string) (*models.Participation, error)
	ListParticipants(ctx context.Context, rideID string) ([]models.Participation, error)
	ListUserParticipations(ctx context.Context, userID string) ([]models.Participation, error)
	SetParticipationStatus(ctx context.Context, rideID, userID string, status models.ParticipationStatus, decisionAt time.Time) error
	DeleteParticipation(ctx context.Context, rideID, userID string) error

	CountApproved(ctx context.Context, rideID string) (int, error)
	// ApproveWithinCapacity flips the (ride, user) record from PENDING to
	// APPROVED only while the ride's approved count is below max, in one
	// atomic step. Returns ErrCapacity when the ride is full and
	// ErrNotFound when no PENDING record exists for the pair.
	ApproveWithinCapacity(ctx context.Context, rideID, userID string, max int, decisionAt time.Time) error
	// RejectIfPending flips the record to REJECTED only if it is still
	// PENDING, so a decision can never overwrite a terminal status. Returns
	// ErrNotFound when no PENDING record exists for the pair.
	RejectIfPending(ctx context.Context, rideID, userID string, decisionAt time.Time) error
}

// UserStore defines persistence for user accounts.
type UserStore interface {
	// CreateUser fails with ErrExists on a username collision.
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}
