package models

import "time"

// RideStatus is the lifecycle state of a ride. Transitions are monotonic:
// UPCOMING -> ONGOING -> COMPLETED, with CANCELLED reachable from any
// non-terminal state by the host.
type RideStatus string

const (
	RideUpcoming  RideStatus = "UPCOMING"
	RideOngoing   RideStatus = "ONGOING"
	RideCompleted RideStatus = "COMPLETED"
	RideCancelled RideStatus = "CANCELLED"
)

// ParticipationStatus is the admission state of a rider on one ride.
// PENDING may move to APPROVED or REJECTED exactly once; leaving a ride
// deletes the record instead of transitioning it.
type ParticipationStatus string

const (
	ParticipationPending  ParticipationStatus = "PENDING"
	ParticipationApproved ParticipationStatus = "APPROVED"
	ParticipationRejected ParticipationStatus = "REJECTED"
)

// Ride is a hosted shared-travel event with a capacity limit.
type Ride struct {
	ID              string     `json:"rideId"`
	HostID          string     `json:"hostId"`
	Name            string     `json:"rideName"`
	StartTime       time.Time  `json:"rideStartTime"`
	StartPoint      string     `json:"rideStartPoint"`
	EndPoint        string     `json:"rideEndPoint"`
	Duration        *float64   `json:"rideDuration,omitempty"`
	HaltDuration    *float64   `json:"haltDuration,omitempty"`
	RouteLink       string     `json:"routeLink"`
	MaxParticipants int        `json:"maxParticipants"`
	Status          RideStatus `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// RideSpec is the host-supplied input for creating a ride.
type RideSpec struct {
	Name            string    `json:"rideName"`
	StartTime       time.Time `json:"rideStartTime"`
	StartPoint      string    `json:"rideStartPoint"`
	EndPoint        string    `json:"rideEndPoint"`
	Duration        *float64  `json:"rideDuration,omitempty"`
	HaltDuration    *float64  `json:"haltDuration,omitempty"`
	RouteLink       string    `json:"routeLink,omitempty"`
	MaxParticipants int       `json:"maxParticipants"`
}

// Participation is a rider's membership record for one ride. The (RideID,
// UserID) pair is its identity; the record is never recreated once it exists.
type Participation struct {
	RideID      string              `json:"rideId"`
	UserID      string              `json:"userId"`
	Status      ParticipationStatus `json:"status"`
	RequestedAt time.Time           `json:"requestedAt"`
	DecisionAt  *time.Time          `json:"decisionAt,omitempty"`
}

// User is an account that may host or join rides.
type User struct {
	ID           string    `json:"userId"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	BikeName     string    `json:"bikeName"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserSummary is the participant-facing slice of a user record.
type UserSummary struct {
	ID       string `json:"userId"`
	Username string `json:"username"`
}

// ListFilter narrows a ride listing. Filters compose independently; Skip and
// Limit paginate the filtered set ordered by creation time.
type ListFilter struct {
	Status        *RideStatus
	HostedByMe    bool
	Participating bool
	Available     bool
	Skip          int
	Limit         int
}

// RideSummary is one row of a listing: the ride plus its approved headcount.
type RideSummary struct {
	Ride          Ride `json:"ride"`
	ApprovedCount int  `json:"approvedCount"`
}

// ParticipantEntry is one member of a grouped participant list.
type ParticipantEntry struct {
	User   UserSummary         `json:"user"`
	Status ParticipationStatus `json:"status"`
}

// RideDetails is the full view of a ride. Pending and Rejected are populated
// for the host only; every other requester sees just the approved group.
type RideDetails struct {
	Ride     Ride               `json:"ride"`
	Host     UserSummary        `json:"host"`
	Approved []ParticipantEntry `json:"approved"`
	Pending  []ParticipantEntry `json:"pending"`
	Rejected []ParticipantEntry `json:"rejected"`
}

// EventType tags a notification pushed over a live connection.
type EventType string

const (
	EventNewJoinRequest        EventType = "NEW_JOIN_REQUEST"
	EventParticipationDecision EventType = "PARTICIPATION_DECISION"
)

// Event is the wire shape written to every live connection of the target
// user. FromUser is set for NEW_JOIN_REQUEST, Approved for
// PARTICIPATION_DECISION.
type Event struct {
	Type     EventType `json:"type"`
	RideID   string    `json:"rideId"`
	FromUser string    `json:"fromUser,omitempty"`
	Approved *bool     `json:"approved,omitempty"`
}
